package audit

import (
	"time"

	"gorm.io/gorm"
)

// Entry statuses. An accepted order produces exactly one attempted row
// and, eventually, exactly one terminal (success or failed) row.
const (
	StatusAttempted = "attempted"
	StatusSuccess   = "success"
	StatusFailed    = "failed"
)

// Entry is one immutable row of the order audit trail. Rows are only
// ever inserted; an outcome is a new row sharing the attempt's EntryID,
// never an update to the attempt itself.
type Entry struct {
	gorm.Model      `json:"-"`
	EntryID         string    `gorm:"index:idx_audit_entry_status,priority:1" json:"entry_id"`
	SubjectID       string    `gorm:"index" json:"subject_id"`
	Action          string    `json:"action"` // buy, sell or cancel
	Symbol          string    `json:"symbol"`
	Market          string    `json:"market"`
	Quantity        int64     `json:"quantity"`
	Price           float64   `json:"price"`
	Term            string    `json:"term"`
	OrderType       string    `json:"order_type"`
	Status          string    `gorm:"index:idx_audit_entry_status,priority:2" json:"status"`
	BrokerCode      string    `json:"broker_code"`
	BrokerMessage   string    `json:"broker_message"`
	OperationNumber int64     `json:"operation_number"`
	ClientIP        string    `json:"client_ip"`
	RecordedAt      time.Time `json:"recorded_at"`
}

func (Entry) TableName() string {
	return "audit_entries"
}
