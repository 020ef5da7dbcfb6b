package audit

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/bolsa-labs/bolsa-api/internal/types"
)

// Outcome is the broker's terminal word on a dispatched order or cancel.
type Outcome struct {
	Code            string
	Message         string
	OperationNumber int64
}

// Recorder keeps the append-only audit trail of every order and cancel
// attempt. The attempt row is written synchronously before the gateway
// is contacted, so even a crash mid-dispatch leaves a durable trace.
type Recorder struct {
	db *Database
}

// NewRecorder creates a recorder on the given database connection.
func NewRecorder(gormDB *gorm.DB) *Recorder {
	return &Recorder{db: NewDatabase(gormDB)}
}

// RecordAttempt durably records that an order is about to be dispatched
// and returns the entry id used to correlate the terminal row.
func (r *Recorder) RecordAttempt(req types.OrderRequest, subjectID, clientIP string) (string, error) {
	entry := &Entry{
		EntryID:    uuid.New().String(),
		SubjectID:  subjectID,
		Action:     req.Action,
		Symbol:     req.Symbol,
		Market:     req.Market,
		Quantity:   req.Quantity,
		Price:      req.Price,
		Term:       req.Term,
		OrderType:  req.OrderType,
		Status:     StatusAttempted,
		ClientIP:   clientIP,
		RecordedAt: time.Now(),
	}

	if err := r.db.CreateEntry(entry); err != nil {
		return "", fmt.Errorf("failed to record order attempt: %w", err)
	}

	log.Debug().
		Str("entry_id", entry.EntryID).
		Str("subject_id", subjectID).
		Str("action", req.Action).
		Str("symbol", req.Symbol).
		Msg("recorded order attempt")

	return entry.EntryID, nil
}

// RecordCancelAttempt records that a cancel for an existing broker
// operation is about to be dispatched.
func (r *Recorder) RecordCancelAttempt(operationNumber int64, subjectID, clientIP string) (string, error) {
	entry := &Entry{
		EntryID:         uuid.New().String(),
		SubjectID:       subjectID,
		Action:          types.ActionCancel,
		Status:          StatusAttempted,
		OperationNumber: operationNumber,
		ClientIP:        clientIP,
		RecordedAt:      time.Now(),
	}

	if err := r.db.CreateEntry(entry); err != nil {
		return "", fmt.Errorf("failed to record cancel attempt: %w", err)
	}

	return entry.EntryID, nil
}

// RecordOutcome appends the terminal row for an attempt. The attempt row
// is never touched; the terminal row mirrors its order fields and adds
// the broker's verdict. Recording a second terminal row for the same
// entry id is refused; the check and the insert run in one transaction
// so the dispatcher and the reconciler cannot both terminate an entry.
func (r *Recorder) RecordOutcome(entryID, status string, outcome Outcome) error {
	if status != StatusSuccess && status != StatusFailed {
		return fmt.Errorf("invalid terminal status %q", status)
	}

	var operationNumber int64

	err := r.db.Transaction(func(tx *Database) error {
		attempt, err := tx.GetAttempt(entryID)
		if err != nil {
			return fmt.Errorf("failed to load attempt %s: %w", entryID, err)
		}
		if attempt == nil {
			return fmt.Errorf("no attempt recorded for entry %s", entryID)
		}

		done, err := tx.HasTerminal(entryID)
		if err != nil {
			return err
		}
		if done {
			return fmt.Errorf("entry %s already has a terminal row", entryID)
		}

		operationNumber = outcome.OperationNumber
		if operationNumber == 0 {
			operationNumber = attempt.OperationNumber
		}

		entry := &Entry{
			EntryID:         entryID,
			SubjectID:       attempt.SubjectID,
			Action:          attempt.Action,
			Symbol:          attempt.Symbol,
			Market:          attempt.Market,
			Quantity:        attempt.Quantity,
			Price:           attempt.Price,
			Term:            attempt.Term,
			OrderType:       attempt.OrderType,
			Status:          status,
			BrokerCode:      outcome.Code,
			BrokerMessage:   outcome.Message,
			OperationNumber: operationNumber,
			ClientIP:        attempt.ClientIP,
			RecordedAt:      time.Now(),
		}

		if err := tx.CreateEntry(entry); err != nil {
			return fmt.Errorf("failed to record outcome for entry %s: %w", entryID, err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	log.Debug().
		Str("entry_id", entryID).
		Str("status", status).
		Int64("operation_number", operationNumber).
		Msg("recorded order outcome")

	return nil
}

// UnresolvedAttempts exposes stuck attempts to the reconciliation job.
func (r *Recorder) UnresolvedAttempts(cutoff time.Time) ([]Entry, error) {
	return r.db.GetUnresolvedAttempts(cutoff)
}
