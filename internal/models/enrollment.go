package models

import "time"

// TokenStatus is derived from the remaining balance, never stored.
type TokenStatus string

const (
	TokenStatusUnused TokenStatus = "UNUSED"
	TokenStatusUsed   TokenStatus = "USED"
)

// BiddingResult tracks the outcome of the student's bid in a class's
// active selection round.
type BiddingResult string

const (
	BiddingResultPending BiddingResult = "PENDING"
	BiddingResultWon     BiddingResult = "WON"
	BiddingResultLost    BiddingResult = "LOST"
)

// Enrollment captures a student's membership in a class together with the
// token ledger state. (student_id, class_id) is unique.
type Enrollment struct {
	ID              string        `db:"id" json:"id"`
	StudentID       string        `db:"student_id" json:"student_id"`
	ClassID         string        `db:"class_id" json:"class_id"`
	TokensRemaining int           `db:"tokens_remaining" json:"tokens_remaining"`
	BiddingResult   BiddingResult `db:"bidding_result" json:"bidding_result"`
	JoinedAt        time.Time     `db:"joined_at" json:"joined_at"`
}

// TokenStatus reports USED once the balance is exhausted.
func (e Enrollment) TokenStatus() TokenStatus {
	if e.TokensRemaining <= 0 {
		return TokenStatusUsed
	}
	return TokenStatusUnused
}

// EnrollmentDetail enriches Enrollment with student and class info.
type EnrollmentDetail struct {
	Enrollment
	StudentName   string `db:"student_name" json:"student_name"`
	StudentNumber string `db:"student_number" json:"student_number"`
	ClassName     string `db:"class_name" json:"class_name"`
}

// EnrollmentFilter provides filters for listing enrollments.
type EnrollmentFilter struct {
	StudentID string
	ClassID   string
	Result    BiddingResult
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}
