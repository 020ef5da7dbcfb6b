package ledger

import (
	"context"
	"errors"
	"math"
	"testing"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/bolsa-labs/bolsa-api/internal/types"
)

func newTestLedger(t *testing.T) (*Service, *gorm.DB) {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	if err := db.AutoMigrate(&Position{}, &Transaction{}); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}

	return NewService(db), db
}

func assertPosition(t *testing.T, position *Position, quantity, averageCost float64) {
	t.Helper()
	if math.Abs(position.Quantity-quantity) > 1e-9 {
		t.Errorf("expected quantity %v, got %v", quantity, position.Quantity)
	}
	if math.Abs(position.AverageCost-averageCost) > 1e-9 {
		t.Errorf("expected average cost %v, got %v", averageCost, position.AverageCost)
	}
}

func TestApplyTransaction_WeightedAverageSequence(t *testing.T) {
	service, _ := newTestLedger(t)
	ctx := context.Background()

	position, err := service.CreatePosition("subject-1", "GGAL", "accion")
	if err != nil {
		t.Fatalf("failed to create position: %v", err)
	}

	steps := []struct {
		txType   string
		quantity float64
		price    float64
		wantQty  float64
		wantAvg  float64
	}{
		{TransactionBuy, 10, 100, 10, 100},
		{TransactionBuy, 10, 200, 20, 150},
		{TransactionSell, 5, 180, 15, 150}, // sells never move the average
		{TransactionBuy, 5, 50, 20, 125},
		{TransactionSell, 20, 60, 0, 125}, // full liquidation keeps the average
	}

	for i, step := range steps {
		updated, err := service.ApplyTransaction(ctx, "subject-1", position.ID, step.txType, step.quantity, step.price)
		if err != nil {
			t.Fatalf("step %d: unexpected error: %v", i+1, err)
		}
		assertPosition(t, updated, step.wantQty, step.wantAvg)
	}
}

func TestApplyTransaction_SellClampsAtZero(t *testing.T) {
	service, _ := newTestLedger(t)
	ctx := context.Background()

	position, _ := service.CreatePosition("subject-1", "YPFD", "accion")
	if _, err := service.ApplyTransaction(ctx, "subject-1", position.ID, TransactionBuy, 10, 50); err != nil {
		t.Fatalf("buy failed: %v", err)
	}

	updated, err := service.ApplyTransaction(ctx, "subject-1", position.ID, TransactionSell, 25, 55)
	if err != nil {
		t.Fatalf("sell failed: %v", err)
	}
	assertPosition(t, updated, 0, 50)
}

func TestApplyTransaction_RecordsImmutableTransaction(t *testing.T) {
	service, db := newTestLedger(t)
	ctx := context.Background()

	position, _ := service.CreatePosition("subject-1", "PAMP", "accion")
	if _, err := service.ApplyTransaction(ctx, "subject-1", position.ID, TransactionBuy, 4, 250); err != nil {
		t.Fatalf("buy failed: %v", err)
	}

	var transactions []Transaction
	if err := db.Find(&transactions).Error; err != nil {
		t.Fatalf("failed to load transactions: %v", err)
	}
	if len(transactions) != 1 {
		t.Fatalf("expected 1 transaction, got %d", len(transactions))
	}
	if transactions[0].TotalAmount != 1000 {
		t.Errorf("expected total amount 1000, got %v", transactions[0].TotalAmount)
	}
	if transactions[0].PositionID != position.ID {
		t.Errorf("transaction bound to wrong position")
	}
}

func TestApplyTransaction_ForeignSubjectWritesNothing(t *testing.T) {
	service, db := newTestLedger(t)
	ctx := context.Background()

	position, _ := service.CreatePosition("subject-1", "GGAL", "accion")

	_, err := service.ApplyTransaction(ctx, "someone-else", position.ID, TransactionBuy, 10, 100)
	if !errors.Is(err, types.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	var transactionCount int64
	db.Model(&Transaction{}).Count(&transactionCount)
	if transactionCount != 0 {
		t.Errorf("expected no transaction rows, got %d", transactionCount)
	}

	reloaded, err := service.GetPosition("subject-1", position.ID)
	if err != nil {
		t.Fatalf("failed to reload position: %v", err)
	}
	assertPosition(t, reloaded, 0, 0)
}

func TestApplyTransaction_RejectsInvalidInput(t *testing.T) {
	service, _ := newTestLedger(t)
	ctx := context.Background()

	position, _ := service.CreatePosition("subject-1", "GGAL", "accion")

	tests := []struct {
		name     string
		txType   string
		quantity float64
		price    float64
	}{
		{"unknown type", "short", 10, 100},
		{"zero quantity", TransactionBuy, 0, 100},
		{"negative price", TransactionBuy, 10, -1},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := service.ApplyTransaction(ctx, "subject-1", position.ID, tc.txType, tc.quantity, tc.price)
			if !errors.Is(err, ErrInvalidTransaction) {
				t.Errorf("expected ErrInvalidTransaction, got %v", err)
			}
		})
	}
}
