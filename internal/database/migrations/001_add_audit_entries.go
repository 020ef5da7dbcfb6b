package migrations

import (
	"github.com/bolsa-labs/bolsa-api/internal/audit"
	"gorm.io/gorm"
)

func AddAuditEntries(db *gorm.DB) error {
	if err := db.AutoMigrate(&audit.Entry{}); err != nil {
		return err
	}

	// Reconciliation scans for attempted rows without a terminal row;
	// the composite (entry_id, status) index from the model tags covers
	// that lookup, the recorded_at index covers the age cutoff.
	if !db.Migrator().HasIndex(&audit.Entry{}, "idx_audit_entries_recorded_at") {
		if err := db.Exec("CREATE INDEX idx_audit_entries_recorded_at ON audit_entries(recorded_at)").Error; err != nil {
			return err
		}
	}

	return nil
}
