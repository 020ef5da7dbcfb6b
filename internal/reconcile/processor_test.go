package reconcile

import (
	"context"
	"errors"
	"testing"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/bolsa-labs/bolsa-api/internal/audit"
	"github.com/bolsa-labs/bolsa-api/internal/broker"
	"github.com/bolsa-labs/bolsa-api/internal/credentials"
	"github.com/bolsa-labs/bolsa-api/internal/types"
)

type listingSession struct {
	cred       types.BrokerCredential
	operations []broker.Operation
	listErr    error
}

func (s *listingSession) PlaceBuyOrder(ctx context.Context, spec types.OrderRequest) (*broker.DispatchResult, error) {
	return nil, nil
}

func (s *listingSession) PlaceSellOrder(ctx context.Context, spec types.OrderRequest) (*broker.DispatchResult, error) {
	return nil, nil
}

func (s *listingSession) CancelOrder(ctx context.Context, operationNumber int64) (*broker.DispatchResult, error) {
	return nil, nil
}

func (s *listingSession) Portfolios(ctx context.Context) (*broker.Portfolios, error) {
	return nil, nil
}

func (s *listingSession) Operations(ctx context.Context, since time.Time) ([]broker.Operation, error) {
	if s.listErr != nil {
		return nil, s.listErr
	}
	return s.operations, nil
}

func (s *listingSession) Quote(ctx context.Context, market, symbol string) (*broker.Quote, error) {
	return nil, nil
}

func (s *listingSession) CurrentCredential() types.BrokerCredential {
	return s.cred
}

type listingGateway struct {
	session *listingSession
}

func (g *listingGateway) NewSession(cred types.BrokerCredential) broker.Session {
	g.session.cred = cred
	return g.session
}

func newTestProcessor(t *testing.T, session *listingSession) (*Processor, *gorm.DB) {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	if err := db.AutoMigrate(&audit.Entry{}, &credentials.Credential{}); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}

	manager, err := credentials.NewManager(db, &listingGateway{session: session},
		[]byte("0123456789abcdef0123456789abcdef"))
	if err != nil {
		t.Fatalf("failed to create manager: %v", err)
	}
	cred := types.BrokerCredential{
		AccessToken:  "access",
		RefreshToken: "refresh",
		ExpiresAt:    time.Now().Add(time.Hour),
	}
	if err := manager.Save("subject-1", "iol", cred); err != nil {
		t.Fatalf("failed to save credential: %v", err)
	}

	recorder := audit.NewRecorder(db)
	processor := NewProcessor(recorder, manager, "iol",
		time.Minute, 10*time.Minute, 24*time.Hour)
	return processor, db
}

func seedStuckAttempt(t *testing.T, db *gorm.DB, entryID string, age time.Duration, action string, operationNumber int64) audit.Entry {
	t.Helper()

	entry := audit.Entry{
		EntryID:         entryID,
		SubjectID:       "subject-1",
		Action:          action,
		Symbol:          "GGAL",
		Market:          "bCBA",
		Quantity:        10,
		Price:           250,
		Status:          audit.StatusAttempted,
		OperationNumber: operationNumber,
		RecordedAt:      time.Now().Add(-age),
	}
	if err := db.Create(&entry).Error; err != nil {
		t.Fatalf("failed to seed attempt: %v", err)
	}
	return entry
}

func terminalStatus(t *testing.T, db *gorm.DB, entryID string) (string, int64) {
	t.Helper()

	var entries []audit.Entry
	err := db.Where("entry_id = ? AND status <> ?", entryID, audit.StatusAttempted).
		Find(&entries).Error
	if err != nil {
		t.Fatalf("failed to load terminal rows: %v", err)
	}
	if len(entries) == 0 {
		return "", 0
	}
	if len(entries) > 1 {
		t.Fatalf("entry %s has %d terminal rows", entryID, len(entries))
	}
	return entries[0].Status, entries[0].OperationNumber
}

func TestRunOnce_MatchesBrokerOperation(t *testing.T) {
	session := &listingSession{}
	processor, db := newTestProcessor(t, session)

	entry := seedStuckAttempt(t, db, "stuck-buy", time.Hour, "buy", 0)
	session.operations = []broker.Operation{{
		Number:      4711,
		Symbol:      "ggal",
		Side:        "Compra",
		Quantity:    10,
		Status:      "terminada",
		SubmittedAt: entry.RecordedAt.Add(time.Minute),
	}}

	if err := processor.RunOnce(context.Background()); err != nil {
		t.Fatalf("reconciliation failed: %v", err)
	}

	status, number := terminalStatus(t, db, "stuck-buy")
	if status != audit.StatusSuccess {
		t.Fatalf("expected success, got %q", status)
	}
	if number != 4711 {
		t.Errorf("expected operation number 4711, got %d", number)
	}
}

func TestRunOnce_AbandonsOldUnmatchedAttempt(t *testing.T) {
	session := &listingSession{}
	processor, db := newTestProcessor(t, session)

	seedStuckAttempt(t, db, "stuck-old", 48*time.Hour, "buy", 0)

	if err := processor.RunOnce(context.Background()); err != nil {
		t.Fatalf("reconciliation failed: %v", err)
	}

	status, _ := terminalStatus(t, db, "stuck-old")
	if status != audit.StatusFailed {
		t.Errorf("expected failed, got %q", status)
	}
}

func TestRunOnce_LeavesRecentUnmatchedAttemptOpen(t *testing.T) {
	session := &listingSession{}
	processor, db := newTestProcessor(t, session)

	seedStuckAttempt(t, db, "stuck-recent", time.Hour, "buy", 0)

	if err := processor.RunOnce(context.Background()); err != nil {
		t.Fatalf("reconciliation failed: %v", err)
	}

	status, _ := terminalStatus(t, db, "stuck-recent")
	if status != "" {
		t.Errorf("recent unmatched attempt must stay open, got %q", status)
	}
}

func TestRunOnce_FailedListingDoesNotAbandon(t *testing.T) {
	session := &listingSession{
		listErr: errors.New("broker rejected read /api/v2/operaciones: sesion invalida"),
	}
	processor, db := newTestProcessor(t, session)

	seedStuckAttempt(t, db, "stuck-old", 48*time.Hour, "buy", 0)

	if err := processor.RunOnce(context.Background()); err != nil {
		t.Fatalf("reconciliation failed: %v", err)
	}

	status, _ := terminalStatus(t, db, "stuck-old")
	if status != "" {
		t.Errorf("an unreadable listing must leave the attempt open for the next pass, got %q", status)
	}
}

func TestRunOnce_MatchesCancelByOperationNumber(t *testing.T) {
	session := &listingSession{}
	processor, db := newTestProcessor(t, session)

	seedStuckAttempt(t, db, "stuck-cancel", time.Hour, "cancel", 4711)
	session.operations = []broker.Operation{{
		Number: 4711,
		Status: "cancelada",
	}}

	if err := processor.RunOnce(context.Background()); err != nil {
		t.Fatalf("reconciliation failed: %v", err)
	}

	status, number := terminalStatus(t, db, "stuck-cancel")
	if status != audit.StatusSuccess {
		t.Fatalf("expected success, got %q", status)
	}
	if number != 4711 {
		t.Errorf("expected operation number 4711, got %d", number)
	}
}
