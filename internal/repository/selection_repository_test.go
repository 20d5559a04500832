package repository

import (
	"context"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zcahkwn/student-bid-sub000/internal/models"
)

func newSelectionRepo(db *sqlx.DB) *SelectionRepository {
	return NewSelectionRepository(db, NewTokenHistoryRepository(db))
}

func TestSelectionRepositorySelectWinners(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := newSelectionRepo(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT student_id FROM bids WHERE opportunity_id = $1 ORDER BY student_id FOR UPDATE")).
		WithArgs("opp-1").
		WillReturnRows(sqlmock.NewRows([]string{"student_id"}).
			AddRow("student-1").AddRow("student-2").AddRow("student-3"))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE bids SET is_winner = TRUE, bid_status = $3")).
		WithArgs("opp-1", sqlmock.AnyArg(), models.BidStatusSelected).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE enrollments SET bidding_result = $3")).
		WithArgs("class-1", sqlmock.AnyArg(), models.BiddingResultWon).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE bids SET is_winner = FALSE, bid_status = $3")).
		WithArgs("opp-1", sqlmock.AnyArg(), models.BidStatusRejected).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE enrollments SET bidding_result = $3")).
		WithArgs("class-1", sqlmock.AnyArg(), models.BiddingResultLost).
		WillReturnResult(sqlmock.NewResult(0, 1))
	for range []int{0, 1, 2} {
		mock.ExpectExec(regexp.QuoteMeta("INSERT INTO token_history")).
			WillReturnResult(sqlmock.NewResult(1, 1))
	}
	mock.ExpectCommit()

	outcome, err := repo.SelectWinners(context.Background(), testOpportunity(),
		[]string{"student-1", "student-2"}, []string{"student-3"})
	require.NoError(t, err)
	assert.Equal(t, 2, outcome.UpdatedWinners)
	assert.Equal(t, 1, outcome.UpdatedLosers)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSelectionRepositorySelectWinnersAllLosers(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := newSelectionRepo(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT student_id FROM bids WHERE opportunity_id = $1 ORDER BY student_id FOR UPDATE")).
		WithArgs("opp-1").
		WillReturnRows(sqlmock.NewRows([]string{"student_id"}).
			AddRow("student-1").AddRow("student-2"))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE bids SET is_winner = FALSE, bid_status = $3")).
		WithArgs("opp-1", sqlmock.AnyArg(), models.BidStatusRejected).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE enrollments SET bidding_result = $3")).
		WithArgs("class-1", sqlmock.AnyArg(), models.BiddingResultLost).
		WillReturnResult(sqlmock.NewResult(0, 2))
	for range []int{0, 1} {
		mock.ExpectExec(regexp.QuoteMeta("INSERT INTO token_history")).
			WillReturnResult(sqlmock.NewResult(1, 1))
	}
	mock.ExpectCommit()

	outcome, err := repo.SelectWinners(context.Background(), testOpportunity(),
		nil, []string{"student-1", "student-2"})
	require.NoError(t, err)
	assert.Equal(t, 0, outcome.UpdatedWinners)
	assert.Equal(t, 2, outcome.UpdatedLosers)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSelectionRepositorySelectWinnersIgnoresNonBidders(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := newSelectionRepo(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT student_id FROM bids WHERE opportunity_id = $1 ORDER BY student_id FOR UPDATE")).
		WithArgs("opp-1").
		WillReturnRows(sqlmock.NewRows([]string{"student_id"}).AddRow("student-1"))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE bids SET is_winner = TRUE, bid_status = $3")).
		WithArgs("opp-1", pq.Array([]string{"student-1"}), models.BidStatusSelected).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE enrollments SET bidding_result = $3")).
		WithArgs("class-1", pq.Array([]string{"student-1"}), models.BiddingResultWon).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO token_history")).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	// student-9 never bid; no loser updates may touch their enrollment.
	outcome, err := repo.SelectWinners(context.Background(), testOpportunity(),
		[]string{"student-1"}, []string{"student-9"})
	require.NoError(t, err)
	assert.Equal(t, 1, outcome.UpdatedWinners)
	assert.Equal(t, 0, outcome.UpdatedLosers)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSelectionRepositoryReset(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := newSelectionRepo(db)

	bidders := sqlmock.NewRows([]string{"student_id"}).AddRow("student-1").AddRow("student-2")

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT student_id FROM bids WHERE opportunity_id = $1 ORDER BY student_id FOR UPDATE")).
		WithArgs("opp-1").
		WillReturnRows(bidders)
	mock.ExpectExec(regexp.QuoteMeta("UPDATE bids SET bid_status = $2, is_winner = FALSE, bid_amount = 1")).
		WithArgs("opp-1", models.BidStatusPlaced).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE enrollments SET bidding_result = $3")).
		WithArgs("class-1", sqlmock.AnyArg(), models.BiddingResultPending).
		WillReturnResult(sqlmock.NewResult(0, 2))
	for range []int{0, 1} {
		mock.ExpectExec(regexp.QuoteMeta("INSERT INTO token_history")).
			WillReturnResult(sqlmock.NewResult(1, 1))
	}
	mock.ExpectCommit()

	count, err := repo.Reset(context.Background(), testOpportunity())
	require.NoError(t, err)
	assert.Equal(t, 2, count)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSelectionRepositoryAutoSelectAndRefund(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := newSelectionRepo(db)

	bidders := sqlmock.NewRows([]string{"student_id"}).AddRow("student-1").AddRow("student-2")

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT student_id FROM bids WHERE opportunity_id = $1 ORDER BY student_id FOR UPDATE")).
		WithArgs("opp-1").
		WillReturnRows(bidders)
	mock.ExpectExec(regexp.QuoteMeta("UPDATE bids SET is_winner = TRUE, bid_status = $2, bid_amount = 0")).
		WithArgs("opp-1", models.BidStatusAutoSelected).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE enrollments SET tokens_remaining = $3, bidding_result = $4")).
		WithArgs("class-1", sqlmock.AnyArg(), 1, models.BiddingResultPending).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO token_history")).
		WithArgs(sqlmock.AnyArg(), "student-1", "opp-1", 1, models.TokenEntryRefund, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO token_history")).
		WithArgs(sqlmock.AnyArg(), "student-2", "opp-1", 1, models.TokenEntryRefund, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	count, err := repo.AutoSelectAndRefund(context.Background(), testOpportunity(), 1)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSelectionRepositoryAutoSelectNoBidders(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := newSelectionRepo(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT student_id FROM bids WHERE opportunity_id = $1 ORDER BY student_id FOR UPDATE")).
		WithArgs("opp-1").
		WillReturnRows(sqlmock.NewRows([]string{"student_id"}))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE bids SET is_winner = TRUE, bid_status = $2, bid_amount = 0")).
		WithArgs("opp-1", models.BidStatusAutoSelected).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	count, err := repo.AutoSelectAndRefund(context.Background(), testOpportunity(), 1)
	require.NoError(t, err)
	assert.Equal(t, 0, count)
	assert.NoError(t, mock.ExpectationsWereMet())
}
