package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/zcahkwn/student-bid-sub000/internal/models"
	appErrors "github.com/zcahkwn/student-bid-sub000/pkg/errors"
)

// BidRepository owns the bid ledger transactions. Submit and Withdraw open
// their own transaction and compose the enrollment ledger and token history
// inside it, so either every write lands or none do.
type BidRepository struct {
	db          *sqlx.DB
	enrollments *EnrollmentRepository
	history     *TokenHistoryRepository
}

// NewBidRepository constructs the repository.
func NewBidRepository(db *sqlx.DB, enrollments *EnrollmentRepository, history *TokenHistoryRepository) *BidRepository {
	return &BidRepository{db: db, enrollments: enrollments, history: history}
}

// FindByStudentAndOpportunity returns the unique bid for the pair.
func (r *BidRepository) FindByStudentAndOpportunity(ctx context.Context, studentID, opportunityID string) (*models.Bid, error) {
	const query = `SELECT id, student_id, opportunity_id, bid_amount, is_winner, bid_status, submitted_at
        FROM bids WHERE student_id = $1 AND opportunity_id = $2`
	var bid models.Bid
	if err := r.db.GetContext(ctx, &bid, query, studentID, opportunityID); err != nil {
		return nil, err
	}
	return &bid, nil
}

// ListByOpportunity returns all bids on an opportunity with student info,
// oldest submission first.
func (r *BidRepository) ListByOpportunity(ctx context.Context, opportunityID string) ([]models.BidderDetail, error) {
	const query = `SELECT b.id, b.student_id, b.opportunity_id, b.bid_amount, b.is_winner, b.bid_status, b.submitted_at,
        s.full_name AS student_name, s.student_number AS student_number
        FROM bids b
        JOIN students s ON s.id = b.student_id
        WHERE b.opportunity_id = $1
        ORDER BY b.submitted_at ASC`
	var bids []models.BidderDetail
	if err := r.db.SelectContext(ctx, &bids, query, opportunityID); err != nil {
		return nil, fmt.Errorf("list bids: %w", err)
	}
	return bids, nil
}

// CountPlaced returns the number of bids still in PLACED state.
func (r *BidRepository) CountPlaced(ctx context.Context, opportunityID string) (int, error) {
	const query = `SELECT COUNT(*) FROM bids WHERE opportunity_id = $1 AND bid_status = $2`
	var count int
	if err := r.db.GetContext(ctx, &count, query, opportunityID, models.BidStatusPlaced); err != nil {
		return 0, fmt.Errorf("count placed bids: %w", err)
	}
	return count, nil
}

// Submit runs the full bid admission flow in one transaction:
// lock the opportunity row (capacity serialization), lock the enrollment row
// (token serialization), re-validate window/duplicate/balance/capacity under
// those locks, then insert the bid, debit the token and append the history
// entry.
func (r *BidRepository) Submit(ctx context.Context, opp *models.Opportunity, studentID string, enforceCapacity bool) (bid *models.Bid, err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin submit transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var gate struct {
		Capacity int       `db:"capacity"`
		OpensAt  time.Time `db:"opens_at"`
		ClosesAt time.Time `db:"closes_at"`
	}
	const lockOpportunity = `SELECT capacity, opens_at, closes_at FROM opportunities WHERE id = $1 FOR UPDATE`
	if err = tx.GetContext(ctx, &gate, lockOpportunity, opp.ID); err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "opportunity not found")
		}
		return nil, fmt.Errorf("lock opportunity: %w", translateDBError(err))
	}
	now := time.Now().UTC()
	if now.Before(gate.OpensAt) || !now.Before(gate.ClosesAt) {
		err = appErrors.Clone(appErrors.ErrOpportunityClosed, "")
		return nil, err
	}
	capacity := gate.Capacity

	enrollment, err := r.enrollments.LockForUpdate(ctx, tx, studentID, opp.ClassID)
	if err != nil {
		return nil, err
	}
	if enrollment.TokensRemaining <= 0 {
		err = appErrors.Clone(appErrors.ErrInsufficientTokens, "")
		return nil, err
	}

	var exists int
	const dupQuery = `SELECT 1 FROM bids WHERE student_id = $1 AND opportunity_id = $2`
	if err = tx.GetContext(ctx, &exists, dupQuery, studentID, opp.ID); err == nil {
		err = appErrors.Clone(appErrors.ErrDuplicateBid, "")
		return nil, err
	} else if err != sql.ErrNoRows {
		return nil, fmt.Errorf("check duplicate bid: %w", translateDBError(err))
	}
	err = nil

	if enforceCapacity {
		var placed int
		const countQuery = `SELECT COUNT(*) FROM bids WHERE opportunity_id = $1 AND bid_status = $2`
		if err = tx.GetContext(ctx, &placed, countQuery, opp.ID, models.BidStatusPlaced); err != nil {
			return nil, fmt.Errorf("count placed bids: %w", translateDBError(err))
		}
		if placed >= capacity {
			err = appErrors.Clone(appErrors.ErrCapacityExceeded, "")
			return nil, err
		}
	}

	bid = &models.Bid{
		ID:            uuid.NewString(),
		StudentID:     studentID,
		OpportunityID: opp.ID,
		BidAmount:     1,
		IsWinner:      false,
		BidStatus:     models.BidStatusPlaced,
		SubmittedAt:   time.Now().UTC(),
	}
	const insertQuery = `INSERT INTO bids (id, student_id, opportunity_id, bid_amount, is_winner, bid_status, submitted_at)
        VALUES (:id, :student_id, :opportunity_id, :bid_amount, :is_winner, :bid_status, :submitted_at)`
	if _, err = sqlx.NamedExecContext(ctx, tx, insertQuery, bid); err != nil {
		return nil, fmt.Errorf("insert bid: %w", translateDBError(err))
	}

	if err = r.enrollments.DebitToken(ctx, tx, studentID, opp.ClassID); err != nil {
		return nil, err
	}

	entry := &models.TokenHistoryEntry{
		StudentID:     studentID,
		OpportunityID: &opp.ID,
		Amount:        -1,
		EntryType:     models.TokenEntryBid,
		Description:   fmt.Sprintf("bid on %s", opp.Title),
	}
	if err = r.history.Append(ctx, tx, entry); err != nil {
		return nil, err
	}

	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit submit transaction: %w", translateDBError(err))
	}
	return bid, nil
}

// Withdraw deletes a non-winning bid and refunds the token in one
// transaction. Winning bids are immutable here.
func (r *BidRepository) Withdraw(ctx context.Context, opp *models.Opportunity, studentID string) (err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin withdraw transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var bid models.Bid
	const lockBid = `SELECT id, student_id, opportunity_id, bid_amount, is_winner, bid_status, submitted_at
        FROM bids WHERE student_id = $1 AND opportunity_id = $2 FOR UPDATE`
	if err = tx.GetContext(ctx, &bid, lockBid, studentID, opp.ID); err != nil {
		if err == sql.ErrNoRows {
			return appErrors.Clone(appErrors.ErrBidNotFound, "")
		}
		return fmt.Errorf("lock bid: %w", translateDBError(err))
	}
	if bid.IsWinner {
		err = appErrors.Clone(appErrors.ErrCannotWithdrawWinner, "")
		return err
	}

	if _, err = r.enrollments.LockForUpdate(ctx, tx, studentID, opp.ClassID); err != nil {
		return err
	}

	if _, err = tx.ExecContext(ctx, `DELETE FROM bids WHERE id = $1`, bid.ID); err != nil {
		return fmt.Errorf("delete bid: %w", translateDBError(err))
	}
	if err = r.enrollments.CreditToken(ctx, tx, studentID, opp.ClassID); err != nil {
		return err
	}
	if err = r.enrollments.SetResult(ctx, tx, studentID, opp.ClassID, models.BiddingResultPending); err != nil {
		return err
	}

	entry := &models.TokenHistoryEntry{
		StudentID:     studentID,
		OpportunityID: &opp.ID,
		Amount:        1,
		EntryType:     models.TokenEntryRefund,
		Description:   fmt.Sprintf("withdrew bid on %s", opp.Title),
	}
	if err = r.history.Append(ctx, tx, entry); err != nil {
		return err
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit withdraw transaction: %w", translateDBError(err))
	}
	return nil
}
