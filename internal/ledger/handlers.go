package ledger

import (
	"context"
	"errors"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/bolsa-labs/bolsa-api/internal/types"
	"github.com/bolsa-labs/bolsa-api/pkg/response"
)

// PriceSource supplies advisory last-trade prices for the positions
// listing. Lookups are best effort; a failed lookup never fails the
// request.
type PriceSource interface {
	LastPrice(ctx context.Context, subjectID, symbol string) (float64, error)
}

// GinHandlers contains HTTP handlers for ledger endpoints.
type GinHandlers struct {
	service *Service
	prices  PriceSource
}

// NewGinHandlers creates handlers for the ledger endpoints. prices may
// be nil, in which case stored advisory prices are served as-is.
func NewGinHandlers(service *Service, prices PriceSource) *GinHandlers {
	return &GinHandlers{service: service, prices: prices}
}

type transactionInput struct {
	Type         string  `json:"type"`
	Quantity     float64 `json:"quantity"`
	PricePerUnit float64 `json:"price_per_unit"`
}

// ListPositionsHandler handles GET requests for a subject's positions,
// refreshing advisory prices on the way out.
func (h *GinHandlers) ListPositionsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		subjectID := c.GetString("clientID")
		if subjectID == "" {
			response.Unauthorized(c, types.ErrUnauthenticated.Error())
			return
		}

		positions, err := h.service.GetPositions(subjectID)
		if err != nil {
			response.InternalError(c)
			return
		}

		if h.prices != nil {
			for i := range positions {
				price, err := h.prices.LastPrice(c.Request.Context(), subjectID, positions[i].Symbol)
				if err != nil {
					log.Debug().Err(err).Str("symbol", positions[i].Symbol).Msg("price refresh skipped")
					continue
				}
				positions[i].CurrentPrice = price
				if err := h.service.RefreshCurrentPrice(positions[i].ID, price); err != nil {
					log.Warn().Err(err).Uint("position_id", positions[i].ID).Msg("failed to store advisory price")
				}
			}
		}

		response.OK(c, positions)
	}
}

// GetPositionHandler handles GET requests for a single position.
func (h *GinHandlers) GetPositionHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		subjectID := c.GetString("clientID")

		positionID, err := strconv.ParseUint(c.Param("position_id"), 10, 32)
		if err != nil {
			response.BadRequest(c, "Invalid position id")
			return
		}

		position, err := h.service.GetPosition(subjectID, uint(positionID))
		if err != nil {
			if errors.Is(err, types.ErrNotFound) {
				response.NotFound(c, "Position not found")
				return
			}
			response.InternalError(c)
			return
		}

		response.OK(c, position)
	}
}

// RecordTransactionHandler handles POST requests that record a manual
// buy or sell against a position and recompute its ledger row.
func (h *GinHandlers) RecordTransactionHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		subjectID := c.GetString("clientID")

		positionID, err := strconv.ParseUint(c.Param("position_id"), 10, 32)
		if err != nil {
			response.BadRequest(c, "Invalid position id")
			return
		}

		var input transactionInput
		if err := c.ShouldBindJSON(&input); err != nil {
			response.BadRequest(c, "Invalid request body")
			return
		}

		position, err := h.service.ApplyTransaction(c.Request.Context(), subjectID,
			uint(positionID), input.Type, input.Quantity, input.PricePerUnit)
		if err != nil {
			switch {
			case errors.Is(err, types.ErrNotFound):
				response.NotFound(c, "Position not found")
			case errors.Is(err, ErrInvalidTransaction):
				response.BadRequest(c, err.Error())
			default:
				response.InternalError(c)
			}
			return
		}

		response.OK(c, position)
	}
}
