package model

import (
	"errors"
	"time"
)

// LedgerEntryType represents the type of a credit ledger entry.
type LedgerEntryType string

const (
	// LedgerEntryPurchase records credits bought via the billing provider.
	LedgerEntryPurchase LedgerEntryType = "purchase"
	// LedgerEntryReserve records a provisional hold placed at job acceptance.
	LedgerEntryReserve LedgerEntryType = "reserve"
	// LedgerEntryUsage records credits actually consumed by a finished job.
	LedgerEntryUsage LedgerEntryType = "usage"
	// LedgerEntryRefund records the unused portion of a reservation returned to the user.
	LedgerEntryRefund LedgerEntryType = "refund"
)

// Valid returns true if the LedgerEntryType is a known type.
func (t LedgerEntryType) Valid() bool {
	switch t {
	case LedgerEntryPurchase, LedgerEntryReserve, LedgerEntryUsage, LedgerEntryRefund:
		return true
	}
	return false
}

// LedgerEntry is one append-only row in the credit ledger.
// The balance for a user is the sum of Amount over all of their entries.
// Reserve and usage entries carry negative amounts; purchases and refunds
// carry positive amounts.
type LedgerEntry struct {
	ID        string          `json:"id"               db:"id"`
	UserID    string          `json:"user_id"          db:"user_id"`
	JobID     *string         `json:"job_id,omitempty" db:"job_id"`
	EntryType LedgerEntryType `json:"entry_type"       db:"entry_type"`
	Amount    int64           `json:"amount"           db:"amount"`
	Note      string          `json:"note"             db:"note"`
	CreatedAt time.Time       `json:"created_at"       db:"created_at"`
}

// ErrInvalidLedgerAmount is returned when a ledger operation receives a
// non-positive amount where a positive one is required.
var ErrInvalidLedgerAmount = errors.New("ledger amount must be positive")
