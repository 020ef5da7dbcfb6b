package response

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/bolsa-labs/bolsa-api/internal/types"
)

// fallbackMessage is surfaced for unexpected faults. Internal error
// detail never reaches the caller.
const fallbackMessage = "An unexpected error occurred while processing the order"

// TradeAccepted writes the success envelope for an order or cancel.
func TradeAccepted(c *gin.Context, operationNumber int64, message string, order interface{}) {
	c.JSON(http.StatusOK, gin.H{
		"ok":              true,
		"numeroOperacion": operationNumber,
		"mensaje":         message,
		"order":           order,
	})
}

// OK writes a plain 200 payload.
func OK(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, data)
}

// BadRequest writes a 400 with a bare error message.
func BadRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, gin.H{"error": message})
}

// Validation writes a 400 scoped to the offending field.
func Validation(c *gin.Context, field, message string) {
	c.JSON(http.StatusBadRequest, gin.H{"error": message, "field": field})
}

// Unauthorized writes a 401.
func Unauthorized(c *gin.Context, message string) {
	c.JSON(http.StatusUnauthorized, gin.H{"error": message})
}

// NotFound writes a 404.
func NotFound(c *gin.Context, message string) {
	c.JSON(http.StatusNotFound, gin.H{"error": message})
}

// RateLimited writes a 429 with the standard rate-limit headers.
func RateLimited(c *gin.Context, limit, remaining, retryAfter int64) {
	c.Header("Retry-After", strconv.FormatInt(retryAfter, 10))
	c.Header("X-RateLimit-Limit", strconv.FormatInt(limit, 10))
	c.Header("X-RateLimit-Remaining", strconv.FormatInt(remaining, 10))
	c.JSON(http.StatusTooManyRequests, gin.H{
		"error":      "Too many requests, slow down",
		"retryAfter": retryAfter,
	})
}

// InternalError writes the 500 envelope with a generic message.
func InternalError(c *gin.Context) {
	c.JSON(http.StatusInternalServerError, gin.H{
		"ok":    false,
		"error": fallbackMessage,
	})
}

// HandleTradeError maps the trade error taxonomy onto the wire contract.
// Anything outside the taxonomy falls through to a generic 500.
func HandleTradeError(c *gin.Context, err error) {
	var fieldErr *types.FieldError
	var holdingsErr *types.InsufficientHoldingsError
	var brokerErr *types.BrokerRejectedError

	switch {
	case errors.As(err, &fieldErr):
		Validation(c, fieldErr.Field, fieldErr.Message)
	case errors.As(err, &holdingsErr):
		BadRequest(c, holdingsErr.Error())
	case errors.As(err, &brokerErr):
		BadRequest(c, brokerErr.Message)
	case errors.Is(err, types.ErrNotConnected):
		BadRequest(c, types.ErrNotConnected.Error())
	case errors.Is(err, types.ErrNotFound):
		NotFound(c, "Resource not found")
	case errors.Is(err, types.ErrUnauthenticated):
		Unauthorized(c, types.ErrUnauthenticated.Error())
	default:
		InternalError(c)
	}
}
