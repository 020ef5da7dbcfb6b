package credentials

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/bolsa-labs/bolsa-api/internal/broker"
	"github.com/bolsa-labs/bolsa-api/internal/types"
)

// Manager owns broker credentials at rest. It decrypts the stored pair,
// opens a gateway session with it, and persists whatever rotated
// credential the session ends up holding, writing only when the pair
// actually changed.
type Manager struct {
	db      *Database
	gateway broker.Gateway
	cipher  *tokenCipher
}

// NewManager creates a credential manager. key is the 32-byte AES key
// protecting tokens at rest.
func NewManager(gormDB *gorm.DB, gateway broker.Gateway, key []byte) (*Manager, error) {
	cipher, err := newTokenCipher(key)
	if err != nil {
		return nil, err
	}
	return &Manager{
		db:      NewDatabase(gormDB),
		gateway: gateway,
		cipher:  cipher,
	}, nil
}

// Save stores a freshly connected credential for the subject.
func (m *Manager) Save(subjectID, provider string, cred types.BrokerCredential) error {
	encAccess, err := m.cipher.encrypt(cred.AccessToken)
	if err != nil {
		return err
	}
	encRefresh, err := m.cipher.encrypt(cred.RefreshToken)
	if err != nil {
		return err
	}

	existing, err := m.db.GetCredential(subjectID, provider)
	if err != nil {
		return err
	}
	if existing == nil {
		return m.db.CreateCredential(&Credential{
			SubjectID:    subjectID,
			Provider:     provider,
			AccessToken:  encAccess,
			RefreshToken: encRefresh,
			ExpiresAt:    cred.ExpiresAt,
		})
	}

	_, err = m.db.UpdateCredentialIfVersion(existing.ID, existing.Version,
		encAccess, encRefresh, cred.ExpiresAt)
	return err
}

// WithSession loads the subject's decrypted credential, runs fn with a
// gateway session bound to it, and persists a rotated credential after
// fn completes. fn's own error is returned untouched; the refreshed
// credential is persisted either way, since the gateway may rotate the
// token even when the business call fails.
//
// Two concurrent calls for the same subject may both rotate; the
// version check makes the second, stale write a no-op instead of
// clobbering the newer token pair.
func (m *Manager) WithSession(ctx context.Context, subjectID, provider string, fn func(broker.Session) error) error {
	row, err := m.db.GetCredential(subjectID, provider)
	if err != nil {
		return fmt.Errorf("failed to load credential: %w", err)
	}
	if row == nil {
		return types.ErrNotConnected
	}

	accessToken, err := m.cipher.decrypt(row.AccessToken)
	if err != nil {
		return fmt.Errorf("failed to decrypt access token: %w", err)
	}
	refreshToken, err := m.cipher.decrypt(row.RefreshToken)
	if err != nil {
		return fmt.Errorf("failed to decrypt refresh token: %w", err)
	}

	loaded := types.BrokerCredential{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresAt:    row.ExpiresAt,
	}

	session := m.gateway.NewSession(loaded)
	fnErr := fn(session)

	if current := session.CurrentCredential(); !current.Equal(loaded) {
		if err := m.persistRotation(row, current); err != nil {
			log.Error().
				Err(err).
				Str("subject_id", subjectID).
				Str("provider", provider).
				Msg("failed to persist rotated credential")
		}
	}

	return fnErr
}

func (m *Manager) persistRotation(row *Credential, current types.BrokerCredential) error {
	encAccess, err := m.cipher.encrypt(current.AccessToken)
	if err != nil {
		return err
	}
	encRefresh, err := m.cipher.encrypt(current.RefreshToken)
	if err != nil {
		return err
	}

	updated, err := m.db.UpdateCredentialIfVersion(row.ID, row.Version,
		encAccess, encRefresh, current.ExpiresAt)
	if err != nil {
		return err
	}
	if !updated {
		log.Warn().
			Str("subject_id", row.SubjectID).
			Str("provider", row.Provider).
			Msg("stale credential rotation dropped, a newer refresh already landed")
		return nil
	}

	log.Debug().
		Str("subject_id", row.SubjectID).
		Str("provider", row.Provider).
		Msg("persisted rotated broker credential")
	return nil
}
