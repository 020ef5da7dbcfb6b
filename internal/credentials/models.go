package credentials

import (
	"time"

	"gorm.io/gorm"
)

// Credential is the stored broker session for one (subject, provider).
// Token fields hold AES-GCM ciphertext, never plaintext. Version guards
// against a stale concurrent refresh overwriting a newer one.
type Credential struct {
	gorm.Model   `json:"-"`
	SubjectID    string    `gorm:"uniqueIndex:idx_credential_identity,priority:1" json:"subject_id"`
	Provider     string    `gorm:"uniqueIndex:idx_credential_identity,priority:2" json:"provider"`
	AccessToken  string    `json:"-"`
	RefreshToken string    `json:"-"`
	ExpiresAt    time.Time `json:"expires_at"`
	Version      int64     `json:"-"`
}
