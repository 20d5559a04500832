package repository

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zcahkwn/student-bid-sub000/internal/models"
	appErrors "github.com/zcahkwn/student-bid-sub000/pkg/errors"
)

func TestEnrollmentRepositoryDebitTokenExhausted(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db, NewTokenHistoryRepository(db))

	mock.ExpectExec(regexp.QuoteMeta("UPDATE enrollments SET tokens_remaining = tokens_remaining - 1")).
		WithArgs("student-1", "class-1").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.DebitToken(context.Background(), db, "student-1", "class-1")
	var appErr *appErrors.Error
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, appErrors.ErrInsufficientTokens.Code, appErr.Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryCreditTokenMissingEnrollment(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db, NewTokenHistoryRepository(db))

	mock.ExpectExec(regexp.QuoteMeta("UPDATE enrollments SET tokens_remaining = tokens_remaining + 1")).
		WithArgs("student-1", "class-1").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.CreditToken(context.Background(), db, "student-1", "class-1")
	var appErr *appErrors.Error
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, appErrors.ErrNotEnrolled.Code, appErr.Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryTopUp(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db, NewTokenHistoryRepository(db))

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("FROM enrollments WHERE student_id = $1 AND class_id = $2 FOR UPDATE")).
		WithArgs("student-1", "class-1").
		WillReturnRows(enrollmentRows(0))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE enrollments SET tokens_remaining = tokens_remaining + 1")).
		WithArgs("student-1", "class-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO token_history")).
		WithArgs(sqlmock.AnyArg(), "student-1", nil, 1, models.TokenEntryTopup, "manual grant", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	enrollment, err := repo.TopUp(context.Background(), "student-1", "class-1", "manual grant")
	require.NoError(t, err)
	assert.Equal(t, 1, enrollment.TokensRemaining)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryCreateDuplicate(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db, NewTokenHistoryRepository(db))

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO enrollments")).
		WillReturnError(&pq.Error{Code: "23505", Constraint: "enrollments_student_class_key"})

	err := repo.Create(context.Background(), &models.Enrollment{
		StudentID: "student-1",
		ClassID:   "class-1",
	})
	var appErr *appErrors.Error
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, appErrors.ErrConflict.Code, appErr.Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}
