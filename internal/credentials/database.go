package credentials

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

func (d *Database) GetCredential(subjectID, provider string) (*Credential, error) {
	var credential Credential
	err := d.db.Where("subject_id = ? AND provider = ?", subjectID, provider).First(&credential).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &credential, nil
}

func (d *Database) CreateCredential(credential *Credential) error {
	return d.db.Create(credential).Error
}

// UpdateCredentialIfVersion rewrites the token pair only when the row
// still carries the expected version. Returns false when another writer
// got there first; the caller's refresh is stale and must be dropped.
func (d *Database) UpdateCredentialIfVersion(id uint, expectedVersion int64, accessToken, refreshToken string, expiresAt time.Time) (bool, error) {
	result := d.db.Model(&Credential{}).
		Where("id = ? AND version = ?", id, expectedVersion).
		Updates(map[string]interface{}{
			"access_token":  accessToken,
			"refresh_token": refreshToken,
			"expires_at":    expiresAt,
			"version":       expectedVersion + 1,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (d *Database) DeleteCredential(subjectID, provider string) error {
	return d.db.Where("subject_id = ? AND provider = ?", subjectID, provider).
		Delete(&Credential{}).Error
}
