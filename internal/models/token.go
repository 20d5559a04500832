package models

import "time"

// TokenEntryType classifies a token balance delta.
type TokenEntryType string

const (
	TokenEntryBid    TokenEntryType = "BID"
	TokenEntryRefund TokenEntryType = "REFUND"
	TokenEntryReset  TokenEntryType = "RESET"
	TokenEntryTopup  TokenEntryType = "TOPUP"
	TokenEntrySelect TokenEntryType = "SELECT"
)

// TokenHistoryEntry is an append-only record of a token balance change.
// Rows are never mutated after insertion; SELECT and RESET entries carry
// amount 0 and exist so selection transitions remain observable.
type TokenHistoryEntry struct {
	ID            string         `db:"id" json:"id"`
	StudentID     string         `db:"student_id" json:"student_id"`
	OpportunityID *string        `db:"opportunity_id" json:"opportunity_id,omitempty"`
	Amount        int            `db:"amount" json:"amount"`
	EntryType     TokenEntryType `db:"entry_type" json:"entry_type"`
	Description   string         `db:"description" json:"description"`
	CreatedAt     time.Time      `db:"created_at" json:"created_at"`
}

// TokenHistoryFilter provides filters for listing history entries.
type TokenHistoryFilter struct {
	StudentID     string
	OpportunityID string
	EntryType     TokenEntryType
	Page          int
	PageSize      int
}
