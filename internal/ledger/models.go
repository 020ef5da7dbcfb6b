package ledger

import (
	"time"

	"gorm.io/gorm"
)

// Transaction types recorded against a position.
const (
	TransactionBuy  = "buy"
	TransactionSell = "sell"
)

// Position is one ledger row: what a subject holds of an instrument and
// at what weighted-average cost. Quantity never goes negative; average
// cost only moves on buys. Mutated exclusively inside ApplyTransaction.
type Position struct {
	gorm.Model   `json:"-"`
	SubjectID    string  `gorm:"uniqueIndex:idx_position_identity,priority:1" json:"subject_id"`
	Symbol       string  `gorm:"uniqueIndex:idx_position_identity,priority:2" json:"symbol"`
	Category     string  `gorm:"uniqueIndex:idx_position_identity,priority:3" json:"category"`
	Quantity     float64 `json:"quantity"`
	AverageCost  float64 `json:"average_cost"`
	CurrentPrice float64 `json:"current_price"` // advisory only, never part of cost math
}

// Transaction is the immutable record of one recorded buy or sell.
// Created once inside the same database transaction that updates the
// position, never updated afterwards.
type Transaction struct {
	gorm.Model   `json:"-"`
	PositionID   uint      `gorm:"index" json:"position_id"`
	Type         string    `json:"type"`
	Quantity     float64   `json:"quantity"`
	PricePerUnit float64   `json:"price_per_unit"`
	TotalAmount  float64   `json:"total_amount"`
	Currency     string    `json:"currency"`
	ExecutedAt   time.Time `json:"executed_at"`
}
