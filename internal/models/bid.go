package models

import "time"

// BidStatus reflects where a bid stands in the selection lifecycle.
type BidStatus string

const (
	BidStatusPlaced       BidStatus = "PLACED"
	BidStatusSelected     BidStatus = "SELECTED"
	BidStatusRejected     BidStatus = "REJECTED"
	BidStatusAutoSelected BidStatus = "AUTO_SELECTED"
)

// Bid is a student's claim on an opportunity. It consumes one token on
// submission; (student_id, opportunity_id) is unique.
type Bid struct {
	ID            string    `db:"id" json:"id"`
	StudentID     string    `db:"student_id" json:"student_id"`
	OpportunityID string    `db:"opportunity_id" json:"opportunity_id"`
	BidAmount     int       `db:"bid_amount" json:"bid_amount"`
	IsWinner      bool      `db:"is_winner" json:"is_winner"`
	BidStatus     BidStatus `db:"bid_status" json:"bid_status"`
	SubmittedAt   time.Time `db:"submitted_at" json:"submitted_at"`
}

// BidderDetail joins a bid with student identity for selection views.
type BidderDetail struct {
	Bid
	StudentName   string `db:"student_name" json:"student_name"`
	StudentNumber string `db:"student_number" json:"student_number"`
}

// SelectionOutcome reports how many rows a selection run touched.
type SelectionOutcome struct {
	UpdatedWinners int `json:"updated_winners"`
	UpdatedLosers  int `json:"updated_losers"`
}
