package models

import "time"

// OpportunityStatus is a pure function of the clock, never persisted.
type OpportunityStatus string

const (
	OpportunityStatusUpcoming  OpportunityStatus = "UPCOMING"
	OpportunityStatusOpen      OpportunityStatus = "OPEN"
	OpportunityStatusClosed    OpportunityStatus = "CLOSED"
	OpportunityStatusCompleted OpportunityStatus = "COMPLETED"
)

// Opportunity is a time-boxed, capacity-bound biddable slot within a class.
type Opportunity struct {
	ID          string    `db:"id" json:"id"`
	ClassID     string    `db:"class_id" json:"class_id"`
	Title       string    `db:"title" json:"title"`
	Description string    `db:"description" json:"description"`
	OpensAt     time.Time `db:"opens_at" json:"opens_at"`
	ClosesAt    time.Time `db:"closes_at" json:"closes_at"`
	EventDate   time.Time `db:"event_date" json:"event_date"`
	Capacity    int       `db:"capacity" json:"capacity"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}

// StatusAt derives the lifecycle stage at the given instant:
// upcoming until opens_at, open until closes_at, closed until event_date,
// completed afterwards.
func (o Opportunity) StatusAt(now time.Time) OpportunityStatus {
	switch {
	case now.Before(o.OpensAt):
		return OpportunityStatusUpcoming
	case now.Before(o.ClosesAt):
		return OpportunityStatusOpen
	case now.Before(o.EventDate):
		return OpportunityStatusClosed
	default:
		return OpportunityStatusCompleted
	}
}

// OpenAt reports whether bids are accepted at the given instant.
func (o Opportunity) OpenAt(now time.Time) bool {
	return o.StatusAt(now) == OpportunityStatusOpen
}

// OpportunityDetail adds the derived status and current bid count for
// read endpoints.
type OpportunityDetail struct {
	Opportunity
	Status   OpportunityStatus `db:"-" json:"status"`
	BidCount int               `db:"bid_count" json:"bid_count"`
}

// OpportunityFilter provides filters for listing opportunities.
type OpportunityFilter struct {
	ClassID   string
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}
