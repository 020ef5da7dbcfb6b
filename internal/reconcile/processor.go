package reconcile

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/bolsa-labs/bolsa-api/internal/audit"
	"github.com/bolsa-labs/bolsa-api/internal/broker"
	"github.com/bolsa-labs/bolsa-api/internal/credentials"
)

// sideNames maps audit actions to the broker's operation side labels.
var sideNames = map[string]string{
	"buy":  "compra",
	"sell": "venta",
}

// Processor resolves audit entries stuck at "attempted": a dispatch
// that timed out after the broker accepted it leaves no terminal row,
// so we periodically check the broker's own operations listing. A match
// gets a success outcome with the broker's number; attempts past the
// abandon age get a failed outcome so the trail always terminates.
type Processor struct {
	recorder    *audit.Recorder
	credentials *credentials.Manager
	provider    string

	interval   time.Duration
	pendingAge time.Duration
	abandonAge time.Duration
}

// NewProcessor creates a reconciliation processor. pendingAge is how
// old an attempt must be before it is considered stuck; abandonAge is
// when an unmatched attempt is closed as failed.
func NewProcessor(recorder *audit.Recorder, creds *credentials.Manager, provider string, interval, pendingAge, abandonAge time.Duration) *Processor {
	return &Processor{
		recorder:    recorder,
		credentials: creds,
		provider:    provider,
		interval:    interval,
		pendingAge:  pendingAge,
		abandonAge:  abandonAge,
	}
}

// Start begins the reconciliation loop.
func (p *Processor) Start(ctx context.Context) {
	logger := log.With().Str("component", "reconcile_processor").Logger()
	logger.Info().Msg("starting audit reconciliation processor")

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info().Msg("shutting down reconciliation processor")
			return
		case <-ticker.C:
			if err := p.RunOnce(ctx); err != nil {
				logger.Error().Err(err).Msg("reconciliation pass failed")
			}
		}
	}
}

// RunOnce performs a single reconciliation pass.
func (p *Processor) RunOnce(ctx context.Context) error {
	logger := log.With().Str("component", "reconcile_processor").Logger()

	entries, err := p.recorder.UnresolvedAttempts(time.Now().Add(-p.pendingAge))
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		return nil
	}

	logger.Info().Int("stuck_attempts", len(entries)).Msg("reconciling stuck attempts")

	bySubject := make(map[string][]audit.Entry)
	for _, entry := range entries {
		bySubject[entry.SubjectID] = append(bySubject[entry.SubjectID], entry)
	}

	for subjectID, subjectEntries := range bySubject {
		err := p.credentials.WithSession(ctx, subjectID, p.provider, func(session broker.Session) error {
			return p.reconcileSubject(ctx, session, subjectEntries)
		})
		if err != nil {
			logger.Warn().
				Err(err).
				Str("subject_id", subjectID).
				Msg("could not reconcile subject, will retry next pass")
		}
	}

	return nil
}

func (p *Processor) reconcileSubject(ctx context.Context, session broker.Session, entries []audit.Entry) error {
	since := entries[0].RecordedAt
	for _, entry := range entries[1:] {
		if entry.RecordedAt.Before(since) {
			since = entry.RecordedAt
		}
	}

	operations, err := session.Operations(ctx, since.Add(-24*time.Hour))
	if err != nil {
		return err
	}

	for _, entry := range entries {
		if match := findMatch(entry, operations); match != nil {
			outcome := audit.Outcome{
				Message:         "reconciled against broker operations",
				OperationNumber: match.Number,
			}
			if err := p.recorder.RecordOutcome(entry.EntryID, audit.StatusSuccess, outcome); err != nil {
				log.Error().Err(err).Str("entry_id", entry.EntryID).Msg("failed to record reconciled outcome")
			}
			continue
		}

		if time.Since(entry.RecordedAt) > p.abandonAge {
			outcome := audit.Outcome{Message: "dispatch outcome unknown, no matching broker operation found"}
			if err := p.recorder.RecordOutcome(entry.EntryID, audit.StatusFailed, outcome); err != nil {
				log.Error().Err(err).Str("entry_id", entry.EntryID).Msg("failed to close abandoned attempt")
			}
		}
	}

	return nil
}

// findMatch pairs a stuck attempt with a broker operation of the same
// symbol, side and quantity submitted near the attempt time. Cancels
// carry the operation number already, so they match on that alone.
func findMatch(entry audit.Entry, operations []broker.Operation) *broker.Operation {
	for i := range operations {
		op := &operations[i]

		if entry.Action == "cancel" {
			if op.Number == entry.OperationNumber {
				return op
			}
			continue
		}

		if !strings.EqualFold(op.Symbol, entry.Symbol) {
			continue
		}
		if !strings.EqualFold(op.Side, sideNames[entry.Action]) {
			continue
		}
		if op.Quantity != entry.Quantity {
			continue
		}
		drift := op.SubmittedAt.Sub(entry.RecordedAt)
		if drift < -15*time.Minute || drift > 15*time.Minute {
			continue
		}
		return op
	}
	return nil
}
