package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/zcahkwn/student-bid-sub000/internal/models"
	appErrors "github.com/zcahkwn/student-bid-sub000/pkg/errors"
)

// CascadeRepository removes parent records together with their dependents.
// Each deletion is one transaction in strict dependency order, refunding
// tokens before any bid row disappears.
type CascadeRepository struct {
	db          *sqlx.DB
	enrollments *EnrollmentRepository
	history     *TokenHistoryRepository
}

// NewCascadeRepository constructs the repository.
func NewCascadeRepository(db *sqlx.DB, enrollments *EnrollmentRepository, history *TokenHistoryRepository) *CascadeRepository {
	return &CascadeRepository{db: db, enrollments: enrollments, history: history}
}

// DeleteOpportunity refunds every bidder, resets their result, appends
// refund history, then deletes the bids and the opportunity itself.
// Returns the number of refunded bidders.
func (r *CascadeRepository) DeleteOpportunity(ctx context.Context, opp *models.Opportunity) (refunded int, err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin opportunity delete transaction: %w", err)
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

	if len(bidders) > 0 {
		const refundQuery = `UPDATE enrollments SET tokens_remaining = tokens_remaining + 1, bidding_result = $3
            WHERE class_id = $1 AND student_id = ANY($2)`
		if _, err = tx.ExecContext(ctx, refundQuery, opp.ClassID, pq.Array(bidders), models.BiddingResultPending); err != nil {
			return 0, fmt.Errorf("refund bidders: %w", translateDBError(err))
		}
	}

	for _, studentID := range bidders {
		entry := &models.TokenHistoryEntry{
			StudentID:     studentID,
			OpportunityID: &opp.ID,
			Amount:        1,
			EntryType:     models.TokenEntryRefund,
			Description:   fmt.Sprintf("opportunity %s deleted", opp.Title),
		}
		if err = r.history.Append(ctx, tx, entry); err != nil {
			return 0, err
		}
	}

	if _, err = tx.ExecContext(ctx, `DELETE FROM bids WHERE opportunity_id = $1`, opp.ID); err != nil {
		return 0, fmt.Errorf("delete bids: %w", translateDBError(err))
	}
	if _, err = tx.ExecContext(ctx, `DELETE FROM opportunities WHERE id = $1`, opp.ID); err != nil {
		return 0, fmt.Errorf("delete opportunity: %w", translateDBError(err))
	}

	if err = tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit opportunity delete transaction: %w", translateDBError(err))
	}
	return len(bidders), nil
}

// DeleteClass removes the class and all dependents in dependency order:
// bids, token history, opportunities, enrollments, class. Returns rows
// removed per table. A missing class fails with NotFound and nothing is
// deleted.
func (r *CascadeRepository) DeleteClass(ctx context.Context, classID string) (counts models.ClassDeletionCounts, err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return counts, fmt.Errorf("begin class delete transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var id string
	if err = tx.GetContext(ctx, &id, `SELECT id FROM classes WHERE id = $1 FOR UPDATE`, classID); err != nil {
		if err == sql.ErrNoRows {
			return counts, appErrors.Clone(appErrors.ErrNotFound, "class not found")
		}
		return counts, fmt.Errorf("lock class: %w", translateDBError(err))
	}

	steps := []struct {
		query string
		dest  *int
	}{
		{`DELETE FROM bids WHERE opportunity_id IN (SELECT id FROM opportunities WHERE class_id = $1)`, &counts.Bids},
		{`DELETE FROM token_history WHERE opportunity_id IN (SELECT id FROM opportunities WHERE class_id = $1)`, &counts.TokenHistory},
		{`DELETE FROM opportunities WHERE class_id = $1`, &counts.Opportunities},
		{`DELETE FROM enrollments WHERE class_id = $1`, &counts.Enrollments},
	}
	for _, step := range steps {
		res, execErr := tx.ExecContext(ctx, step.query, classID)
		if execErr != nil {
			err = fmt.Errorf("cascade delete class: %w", translateDBError(execErr))
			return counts, err
		}
		affected, _ := res.RowsAffected()
		*step.dest = int(affected)
	}

	if _, err = tx.ExecContext(ctx, `DELETE FROM classes WHERE id = $1`, classID); err != nil {
		return counts, fmt.Errorf("delete class: %w", translateDBError(err))
	}

	if err = tx.Commit(); err != nil {
		return counts, fmt.Errorf("commit class delete transaction: %w", translateDBError(err))
	}
	return counts, nil
}

// RemoveStudentFromClass deletes the enrollment unless the student has any
// bid on the class's opportunities; when no enrollment remains anywhere the
// student record is deleted too.
func (r *CascadeRepository) RemoveStudentFromClass(ctx context.Context, studentID, classID string) (studentDeleted bool, err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin removal transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	enrollment, err := r.enrollments.LockForUpdate(ctx, tx, studentID, classID)
	if err != nil {
		return false, err
	}

	var hasBid int
	const bidQuery = `SELECT 1 FROM bids b
        JOIN opportunities o ON o.id = b.opportunity_id
        WHERE b.student_id = $1 AND o.class_id = $2 LIMIT 1`
	if err = tx.GetContext(ctx, &hasBid, bidQuery, studentID, classID); err == nil {
		err = appErrors.Clone(appErrors.ErrHasExistingBid, "")
		return false, err
	} else if err != sql.ErrNoRows {
		return false, fmt.Errorf("check existing bids: %w", translateDBError(err))
	}
	err = nil

	if _, err = tx.ExecContext(ctx, `DELETE FROM enrollments WHERE id = $1`, enrollment.ID); err != nil {
		return false, fmt.Errorf("delete enrollment: %w", translateDBError(err))
	}

	var remaining int
	if err = tx.GetContext(ctx, &remaining, `SELECT COUNT(*) FROM enrollments WHERE student_id = $1`, studentID); err != nil {
		return false, fmt.Errorf("count remaining enrollments: %w", translateDBError(err))
	}
	if remaining == 0 {
		// The student is leaving the system entirely; their history goes too,
		// otherwise the student row cannot be removed.
		if _, err = tx.ExecContext(ctx, `DELETE FROM token_history WHERE student_id = $1`, studentID); err != nil {
			return false, fmt.Errorf("delete student token history: %w", translateDBError(err))
		}
		if _, err = tx.ExecContext(ctx, `DELETE FROM students WHERE id = $1`, studentID); err != nil {
			return false, fmt.Errorf("delete student: %w", translateDBError(err))
		}
		studentDeleted = true
	}

	if err = tx.Commit(); err != nil {
		return false, fmt.Errorf("commit removal transaction: %w", translateDBError(err))
	}
	return studentDeleted, nil
}
