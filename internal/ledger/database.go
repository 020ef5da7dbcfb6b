package ledger

import (
	"errors"

	"gorm.io/gorm"

	"github.com/bolsa-labs/bolsa-api/internal/types"
)

type Database struct {
	db *gorm.DB
}

func NewDatabase(db *gorm.DB) *Database {
	return &Database{db: db}
}

func (d *Database) CreatePosition(position *Position) error {
	return d.db.Create(position).Error
}

func (d *Database) GetPosition(subjectID string, positionID uint) (*Position, error) {
	var position Position
	err := d.db.Where("id = ? AND subject_id = ?", positionID, subjectID).First(&position).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, types.ErrNotFound
		}
		return nil, err
	}
	return &position, nil
}

func (d *Database) GetPositionsBySubject(subjectID string) ([]Position, error) {
	var positions []Position
	err := d.db.Where("subject_id = ?", subjectID).Order("symbol ASC").Find(&positions).Error
	if err != nil {
		return nil, err
	}
	return positions, nil
}

func (d *Database) GetTransactionsByPosition(positionID uint) ([]Transaction, error) {
	var transactions []Transaction
	err := d.db.Where("position_id = ?", positionID).Order("executed_at ASC").Find(&transactions).Error
	if err != nil {
		return nil, err
	}
	return transactions, nil
}

// UpdateCurrentPrice refreshes the advisory price on a position without
// touching quantity or cost.
func (d *Database) UpdateCurrentPrice(positionID uint, price float64) error {
	return d.db.Model(&Position{}).Where("id = ?", positionID).
		Update("current_price", price).Error
}
