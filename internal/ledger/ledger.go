package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/bolsa-labs/bolsa-api/internal/types"
)

// ErrInvalidTransaction rejects a malformed transaction before anything
// is written.
var ErrInvalidTransaction = errors.New("invalid transaction")

// Service applies recorded transactions to the position ledger. Every
// update runs as one database transaction: the position lookup takes a
// row lock, so two writers racing for the same position serialize at
// the store instead of losing an update.
type Service struct {
	gormDB *gorm.DB
	db     *Database
}

// NewService creates a new ledger service with the given database connection.
func NewService(gormDB *gorm.DB) *Service {
	return &Service{
		gormDB: gormDB,
		db:     NewDatabase(gormDB),
	}
}

// CreatePosition opens an empty ledger row for a subject and instrument.
func (s *Service) CreatePosition(subjectID, symbol, category string) (*Position, error) {
	position := &Position{
		SubjectID: subjectID,
		Symbol:    symbol,
		Category:  category,
	}
	if err := s.db.CreatePosition(position); err != nil {
		return nil, fmt.Errorf("failed to create position: %w", err)
	}
	return position, nil
}

// GetPosition returns a position owned by the subject.
func (s *Service) GetPosition(subjectID string, positionID uint) (*Position, error) {
	return s.db.GetPosition(subjectID, positionID)
}

// GetPositions lists all of a subject's positions.
func (s *Service) GetPositions(subjectID string) ([]Position, error) {
	return s.db.GetPositionsBySubject(subjectID)
}

// RefreshCurrentPrice stores an advisory price against a position.
func (s *Service) RefreshCurrentPrice(positionID uint, price float64) error {
	return s.db.UpdateCurrentPrice(positionID, price)
}

// ApplyTransaction records a buy or sell against a position and
// recomputes its quantity and weighted-average cost atomically.
//
// Buy:  newAvg = (oldQty*oldAvg + qty*price) / (oldQty + qty)
// Sell: quantity clamps at zero; average cost is left untouched, even
// on full liquidation.
//
// A position that does not belong to subjectID fails with ErrNotFound
// and writes nothing.
func (s *Service) ApplyTransaction(ctx context.Context, subjectID string, positionID uint, txType string, quantity, pricePerUnit float64) (*Position, error) {
	if txType != TransactionBuy && txType != TransactionSell {
		return nil, fmt.Errorf("%w: unknown type %q", ErrInvalidTransaction, txType)
	}
	if quantity <= 0 {
		return nil, fmt.Errorf("%w: quantity must be positive", ErrInvalidTransaction)
	}
	if pricePerUnit <= 0 {
		return nil, fmt.Errorf("%w: price must be positive", ErrInvalidTransaction)
	}

	var position Position

	err := s.gormDB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ? AND subject_id = ?", positionID, subjectID).
			First(&position).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return types.ErrNotFound
			}
			return err
		}

		qty := decimal.NewFromFloat(quantity)
		price := decimal.NewFromFloat(pricePerUnit)
		total := qty.Mul(price)

		record := &Transaction{
			PositionID:   position.ID,
			Type:         txType,
			Quantity:     quantity,
			PricePerUnit: pricePerUnit,
			TotalAmount:  total.InexactFloat64(),
			Currency:     "ARS",
			ExecutedAt:   time.Now(),
		}
		if err := tx.Create(record).Error; err != nil {
			return fmt.Errorf("failed to record transaction: %w", err)
		}

		oldQty := decimal.NewFromFloat(position.Quantity)
		oldAvg := decimal.NewFromFloat(position.AverageCost)

		switch txType {
		case TransactionBuy:
			newQty := oldQty.Add(qty)
			if newQty.IsPositive() {
				totalCost := oldQty.Mul(oldAvg).Add(total)
				position.AverageCost = totalCost.Div(newQty).InexactFloat64()
			}
			position.Quantity = newQty.InexactFloat64()

		case TransactionSell:
			newQty := oldQty.Sub(qty)
			if newQty.IsNegative() {
				newQty = decimal.Zero
			}
			position.Quantity = newQty.InexactFloat64()
		}

		return tx.Model(&Position{}).Where("id = ?", position.ID).
			Updates(map[string]interface{}{
				"quantity":     position.Quantity,
				"average_cost": position.AverageCost,
			}).Error
	})
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("subject_id", subjectID).
		Uint("position_id", positionID).
		Str("type", txType).
		Float64("quantity", quantity).
		Float64("price_per_unit", pricePerUnit).
		Float64("new_quantity", position.Quantity).
		Float64("new_average_cost", position.AverageCost).
		Msg("applied ledger transaction")

	return &position, nil
}
