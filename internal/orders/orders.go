package orders

import (
	"context"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/bolsa-labs/bolsa-api/internal/audit"
	"github.com/bolsa-labs/bolsa-api/internal/broker"
	"github.com/bolsa-labs/bolsa-api/internal/credentials"
	"github.com/bolsa-labs/bolsa-api/internal/types"
	"github.com/bolsa-labs/bolsa-api/pkg/response"
)

// Service runs the order submission pipeline: validate, verify holdings
// for sells, audit the attempt, dispatch to the broker, audit the
// terminal outcome. Dispatch is never retried; a possibly-executed trade
// must not be sent twice.
type Service struct {
	credentials *credentials.Manager
	recorder    *audit.Recorder
	provider    string
}

// NewService creates an order service dispatching through the given
// broker provider.
func NewService(creds *credentials.Manager, recorder *audit.Recorder, provider string) *Service {
	return &Service{
		credentials: creds,
		recorder:    recorder,
		provider:    provider,
	}
}

// SubmitResult is the caller-facing outcome of an accepted submission.
type SubmitResult struct {
	OperationNumber int64
	Message         string
	Order           *types.OrderRequest
}

// Submit validates and dispatches a buy or sell order for the subject.
// Rejections before the audit attempt (validation, missing credential,
// insufficient holdings) leave no audit trace; once the attempt row is
// written, every path ends in a terminal audit row.
func (s *Service) Submit(ctx context.Context, subjectID, clientIP string, input types.OrderInput) (*SubmitResult, error) {
	req, fieldErr := ParseOrder(input)
	if fieldErr != nil {
		return nil, fieldErr
	}

	logger := log.With().
		Str("subject_id", subjectID).
		Str("action", req.Action).
		Str("symbol", req.Symbol).
		Int64("quantity", req.Quantity).
		Logger()

	var result *SubmitResult

	err := s.credentials.WithSession(ctx, subjectID, s.provider, func(session broker.Session) error {
		if req.Action == types.ActionSell {
			if err := verifyHoldings(ctx, session, req.Symbol, req.Quantity); err != nil {
				return err
			}
		}

		entryID, err := s.recorder.RecordAttempt(*req, subjectID, clientIP)
		if err != nil {
			return err
		}

		dispatch := session.PlaceBuyOrder
		if req.Action == types.ActionSell {
			dispatch = session.PlaceSellOrder
		}

		dispatchResult, err := dispatch(ctx, *req)
		outcome, terminalErr := s.settleOutcome(entryID, dispatchResult, err)
		if terminalErr != nil {
			return terminalErr
		}

		logger.Info().
			Str("entry_id", entryID).
			Int64("operation_number", outcome.OperationNumber).
			Msg("order dispatched")

		result = &SubmitResult{
			OperationNumber: outcome.OperationNumber,
			Message:         outcome.Message,
			Order:           req,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Cancel dispatches a cancel for an existing broker operation, with the
// same attempt/terminal audit shape as a submission.
func (s *Service) Cancel(ctx context.Context, subjectID, clientIP string, operationNumber int64) (*SubmitResult, error) {
	var result *SubmitResult

	err := s.credentials.WithSession(ctx, subjectID, s.provider, func(session broker.Session) error {
		entryID, err := s.recorder.RecordCancelAttempt(operationNumber, subjectID, clientIP)
		if err != nil {
			return err
		}

		dispatchResult, err := session.CancelOrder(ctx, operationNumber)
		outcome, terminalErr := s.settleOutcome(entryID, dispatchResult, err)
		if terminalErr != nil {
			return terminalErr
		}

		result = &SubmitResult{
			OperationNumber: outcome.OperationNumber,
			Message:         outcome.Message,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// settleOutcome writes the terminal audit row for a dispatch and maps
// the broker's verdict onto the error taxonomy. A failed terminal write
// after a successful dispatch is logged at error level rather than
// reported as a trade failure; the trade did execute.
func (s *Service) settleOutcome(entryID string, dispatchResult *broker.DispatchResult, dispatchErr error) (*audit.Outcome, error) {
	if dispatchErr != nil {
		outcome := audit.Outcome{Message: dispatchErr.Error()}
		if err := s.recorder.RecordOutcome(entryID, audit.StatusFailed, outcome); err != nil {
			log.Error().Err(err).Str("entry_id", entryID).Msg("failed to record dispatch failure")
		}
		return nil, &types.DispatchError{Err: dispatchErr}
	}

	if !dispatchResult.OK {
		outcome := audit.Outcome{Code: dispatchResult.Code, Message: dispatchResult.Message}
		if err := s.recorder.RecordOutcome(entryID, audit.StatusFailed, outcome); err != nil {
			log.Error().Err(err).Str("entry_id", entryID).Msg("failed to record broker rejection")
		}
		return nil, &types.BrokerRejectedError{Message: dispatchResult.Message}
	}

	outcome := audit.Outcome{
		Code:            dispatchResult.Code,
		Message:         dispatchResult.Message,
		OperationNumber: dispatchResult.OperationNumber,
	}
	if err := s.recorder.RecordOutcome(entryID, audit.StatusSuccess, outcome); err != nil {
		log.Error().Err(err).Str("entry_id", entryID).Msg("failed to record dispatch success")
	}
	return &outcome, nil
}

// GinHandlers contains HTTP handlers for the trade endpoints.
type GinHandlers struct {
	service *Service
}

// NewGinHandlers creates a new set of HTTP handlers for trade endpoints.
func NewGinHandlers(service *Service) *GinHandlers {
	return &GinHandlers{service: service}
}

// SubmitTradeHandler handles POST requests that place a buy or sell order.
func (h *GinHandlers) SubmitTradeHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		subjectID := c.GetString("clientID")
		if subjectID == "" {
			response.Unauthorized(c, types.ErrUnauthenticated.Error())
			return
		}

		var input types.OrderInput
		if err := c.ShouldBindJSON(&input); err != nil {
			response.BadRequest(c, "Invalid request body")
			return
		}

		result, err := h.service.Submit(c.Request.Context(), subjectID, c.ClientIP(), input)
		if err != nil {
			response.HandleTradeError(c, err)
			return
		}

		response.TradeAccepted(c, result.OperationNumber, result.Message, result.Order)
	}
}

// CancelTradeHandler handles DELETE requests that cancel a pending order
// by its broker operation number.
func (h *GinHandlers) CancelTradeHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		subjectID := c.GetString("clientID")
		if subjectID == "" {
			response.Unauthorized(c, types.ErrUnauthenticated.Error())
			return
		}

		raw := c.Query("operationNumber")
		if raw == "" {
			response.BadRequest(c, "operationNumber is required")
			return
		}
		operationNumber, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			response.BadRequest(c, "operationNumber must be numeric")
			return
		}

		result, err := h.service.Cancel(c.Request.Context(), subjectID, c.ClientIP(), operationNumber)
		if err != nil {
			response.HandleTradeError(c, err)
			return
		}

		response.TradeAccepted(c, result.OperationNumber, result.Message, nil)
	}
}
