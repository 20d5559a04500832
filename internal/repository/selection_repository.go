package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/zcahkwn/student-bid-sub000/internal/models"
)

// SelectionRepository applies bulk winner/loser outcomes for one
// opportunity. Every operation is a single transaction over all targeted
// bid and enrollment rows; a failure anywhere rolls the whole batch back.
type SelectionRepository struct {
	db      *sqlx.DB
	history *TokenHistoryRepository
}

// NewSelectionRepository constructs the repository.
func NewSelectionRepository(db *sqlx.DB, history *TokenHistoryRepository) *SelectionRepository {
	return &SelectionRepository{db: db, history: history}
}

// SelectWinners marks the selected students' bids as won and everyone else
// in loserIDs as rejected, mirroring the outcome onto the enrollments. The
// bidder set is re-derived under lock inside the transaction; request IDs
// without a bid row are ignored so enrollments of non-bidders never move.
func (r *SelectionRepository) SelectWinners(ctx context.Context, opp *models.Opportunity, selectedIDs, loserIDs []string) (outcome models.SelectionOutcome, err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return outcome, fmt.Errorf("begin selection transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	bidders, err := lockBidders(ctx, tx, opp.ID)
	if err != nil {
		return outcome, err
	}
	bidderSet := make(map[string]struct{}, len(bidders))
	for _, id := range bidders {
		bidderSet[id] = struct{}{}
	}
	selectedIDs = filterToBidders(selectedIDs, bidderSet)
	loserIDs = filterToBidders(loserIDs, bidderSet)

	if len(selectedIDs) > 0 {
		const winnerBids = `UPDATE bids SET is_winner = TRUE, bid_status = $3
            WHERE opportunity_id = $1 AND student_id = ANY($2)`
		res, execErr := tx.ExecContext(ctx, winnerBids, opp.ID, pq.Array(selectedIDs), models.BidStatusSelected)
		if execErr != nil {
			err = fmt.Errorf("mark winning bids: %w", translateDBError(execErr))
			return outcome, err
		}
		affected, _ := res.RowsAffected()
		outcome.UpdatedWinners = int(affected)

		const winnerEnrollments = `UPDATE enrollments SET bidding_result = $3
            WHERE class_id = $1 AND student_id = ANY($2)`
		if _, err = tx.ExecContext(ctx, winnerEnrollments, opp.ClassID, pq.Array(selectedIDs), models.BiddingResultWon); err != nil {
			err = fmt.Errorf("mark winning enrollments: %w", translateDBError(err))
			return outcome, err
		}
	}

	if len(loserIDs) > 0 {
		const loserBids = `UPDATE bids SET is_winner = FALSE, bid_status = $3
            WHERE opportunity_id = $1 AND student_id = ANY($2)`
		res, execErr := tx.ExecContext(ctx, loserBids, opp.ID, pq.Array(loserIDs), models.BidStatusRejected)
		if execErr != nil {
			err = fmt.Errorf("mark rejected bids: %w", translateDBError(execErr))
			return outcome, err
		}
		affected, _ := res.RowsAffected()
		outcome.UpdatedLosers = int(affected)

		const loserEnrollments = `UPDATE enrollments SET bidding_result = $3
            WHERE class_id = $1 AND student_id = ANY($2)`
		if _, err = tx.ExecContext(ctx, loserEnrollments, opp.ClassID, pq.Array(loserIDs), models.BiddingResultLost); err != nil {
			err = fmt.Errorf("mark rejected enrollments: %w", translateDBError(err))
			return outcome, err
		}
	}

	for _, studentID := range selectedIDs {
		entry := &models.TokenHistoryEntry{
			StudentID:     studentID,
			OpportunityID: &opp.ID,
			Amount:        0,
			EntryType:     models.TokenEntrySelect,
			Description:   fmt.Sprintf("selected for %s", opp.Title),
		}
		if err = r.history.Append(ctx, tx, entry); err != nil {
			return outcome, err
		}
	}
	for _, studentID := range loserIDs {
		entry := &models.TokenHistoryEntry{
			StudentID:     studentID,
			OpportunityID: &opp.ID,
			Amount:        0,
			EntryType:     models.TokenEntrySelect,
			Description:   fmt.Sprintf("not selected for %s", opp.Title),
		}
		if err = r.history.Append(ctx, tx, entry); err != nil {
			return outcome, err
		}
	}

	if err = tx.Commit(); err != nil {
		return outcome, fmt.Errorf("commit selection transaction: %w", translateDBError(err))
	}
	return outcome, nil
}

// Reset returns every bid on the opportunity to PLACED and every bidder's
// enrollment to PENDING without touching token balances, so a selection run
// can be repeated from a clean slate.
func (r *SelectionRepository) Reset(ctx context.Context, opp *models.Opportunity) (count int, err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin reset transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	bidders, err := lockBidders(ctx, tx, opp.ID)
	if err != nil {
		return 0, err
	}

	const resetBids = `UPDATE bids SET bid_status = $2, is_winner = FALSE, bid_amount = 1 WHERE opportunity_id = $1`
	res, err := tx.ExecContext(ctx, resetBids, opp.ID, models.BidStatusPlaced)
	if err != nil {
		return 0, fmt.Errorf("reset bids: %w", translateDBError(err))
	}
	affected, _ := res.RowsAffected()
	count = int(affected)

	if len(bidders) > 0 {
		const resetEnrollments = `UPDATE enrollments SET bidding_result = $3
            WHERE class_id = $1 AND student_id = ANY($2)`
		if _, err = tx.ExecContext(ctx, resetEnrollments, opp.ClassID, pq.Array(bidders), models.BiddingResultPending); err != nil {
			return 0, fmt.Errorf("reset enrollments: %w", translateDBError(err))
		}
	}

	for _, studentID := range bidders {
		entry := &models.TokenHistoryEntry{
			StudentID:     studentID,
			OpportunityID: &opp.ID,
			Amount:        0,
			EntryType:     models.TokenEntryReset,
			Description:   fmt.Sprintf("selection reset for %s", opp.Title),
		}
		if err = r.history.Append(ctx, tx, entry); err != nil {
			return 0, err
		}
	}

	if err = tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit reset transaction: %w", translateDBError(err))
	}
	return count, nil
}

// AutoSelectAndRefund marks every bidder as winner, zeroes their bid amount
// and restores their token allowance, for opportunities where no
// competitive selection is needed.
func (r *SelectionRepository) AutoSelectAndRefund(ctx context.Context, opp *models.Opportunity, tokenAllowance int) (count int, err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin auto-select transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	bidders, err := lockBidders(ctx, tx, opp.ID)
	if err != nil {
		return 0, err
	}

	const autoBids = `UPDATE bids SET is_winner = TRUE, bid_status = $2, bid_amount = 0 WHERE opportunity_id = $1`
	res, err := tx.ExecContext(ctx, autoBids, opp.ID, models.BidStatusAutoSelected)
	if err != nil {
		return 0, fmt.Errorf("auto-select bids: %w", translateDBError(err))
	}
	affected, _ := res.RowsAffected()
	count = int(affected)

	if len(bidders) > 0 {
		const refundEnrollments = `UPDATE enrollments SET tokens_remaining = $3, bidding_result = $4
            WHERE class_id = $1 AND student_id = ANY($2)`
		if _, err = tx.ExecContext(ctx, refundEnrollments, opp.ClassID, pq.Array(bidders), tokenAllowance, models.BiddingResultPending); err != nil {
			return 0, fmt.Errorf("refund enrollments: %w", translateDBError(err))
		}
	}

	for _, studentID := range bidders {
		entry := &models.TokenHistoryEntry{
			StudentID:     studentID,
			OpportunityID: &opp.ID,
			Amount:        1,
			EntryType:     models.TokenEntryRefund,
			Description:   fmt.Sprintf("auto-selected for %s", opp.Title),
		}
		if err = r.history.Append(ctx, tx, entry); err != nil {
			return 0, err
		}
	}

	if err = tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit auto-select transaction: %w", translateDBError(err))
	}
	return count, nil
}

// filterToBidders drops every ID without a locked bid row, preserving order.
func filterToBidders(ids []string, bidders map[string]struct{}) []string {
	filtered := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := bidders[id]; ok {
			filtered = append(filtered, id)
		}
	}
	return filtered
}

// lockBidders returns the student IDs bidding on the opportunity with their
// bid rows locked for the remainder of the transaction.
func lockBidders(ctx context.Context, tx *sqlx.Tx, opportunityID string) ([]string, error) {
	const query = `SELECT student_id FROM bids WHERE opportunity_id = $1 ORDER BY student_id FOR UPDATE`
	var bidders []string
	if err := tx.SelectContext(ctx, &bidders, query, opportunityID); err != nil {
		return nil, fmt.Errorf("lock bidders: %w", translateDBError(err))
	}
	return bidders, nil
}
