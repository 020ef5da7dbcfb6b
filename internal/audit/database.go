package audit

import (
	"errors"
	"time"

	"gorm.io/gorm"
)

type Database struct {
	db *gorm.DB
}

func NewDatabase(db *gorm.DB) *Database {
	return &Database{db: db}
}

func (d *Database) CreateEntry(entry *Entry) error {
	return d.db.Create(entry).Error
}

// Transaction runs fn against a transaction-scoped Database, committing
// on nil and rolling back on error.
func (d *Database) Transaction(fn func(tx *Database) error) error {
	return d.db.Transaction(func(tx *gorm.DB) error {
		return fn(NewDatabase(tx))
	})
}

// GetAttempt retrieves the attempted row for an entry id.
func (d *Database) GetAttempt(entryID string) (*Entry, error) {
	var entry Entry
	err := d.db.Where("entry_id = ? AND status = ?", entryID, StatusAttempted).First(&entry).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &entry, nil
}

// HasTerminal reports whether a terminal row already exists for the entry id.
func (d *Database) HasTerminal(entryID string) (bool, error) {
	var count int64
	err := d.db.Model(&Entry{}).
		Where("entry_id = ? AND status <> ?", entryID, StatusAttempted).
		Count(&count).Error
	return count > 0, err
}

// GetUnresolvedAttempts returns attempted rows recorded before the
// cutoff that have no terminal row yet.
func (d *Database) GetUnresolvedAttempts(cutoff time.Time) ([]Entry, error) {
	resolved := d.db.Model(&Entry{}).
		Select("entry_id").
		Where("status <> ?", StatusAttempted)

	var entries []Entry
	err := d.db.
		Where("status = ? AND recorded_at < ?", StatusAttempted, cutoff).
		Where("entry_id NOT IN (?)", resolved).
		Order("recorded_at ASC").
		Find(&entries).Error
	if err != nil {
		return nil, err
	}
	return entries, nil
}

// GetEntriesBySubject lists a subject's audit trail, newest first.
func (d *Database) GetEntriesBySubject(subjectID string, limit int) ([]Entry, error) {
	var entries []Entry
	err := d.db.
		Where("subject_id = ?", subjectID).
		Order("recorded_at DESC").
		Limit(limit).
		Find(&entries).Error
	if err != nil {
		return nil, err
	}
	return entries, nil
}
