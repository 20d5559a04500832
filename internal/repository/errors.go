package repository

import (
	"errors"

	"github.com/lib/pq"

	appErrors "github.com/zcahkwn/student-bid-sub000/pkg/errors"
)

// Constraint names from migrations/0001_init.sql.
const (
	bidUniqueConstraint        = "bids_student_opportunity_key"
	enrollmentUniqueConstraint = "enrollments_student_class_key"
	tokensNonNegativeCheck     = "enrollments_tokens_remaining_check"
)

// translateDBError maps Postgres failures onto the domain error taxonomy.
// The unique index on (student_id, opportunity_id) is the backstop against
// double submission, so a unique violation there surfaces as a duplicate bid
// even when row locking did not serialize the requests.
func translateDBError(err error) error {
	if err == nil {
		return nil
	}
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return err
	}
	switch pqErr.Code {
	case "40001", "40P01": // serialization_failure, deadlock_detected
		return appErrors.Wrap(err, appErrors.ErrConcurrencyConflict.Code, appErrors.ErrConcurrencyConflict.Status, appErrors.ErrConcurrencyConflict.Message)
	case "23505": // unique_violation
		switch pqErr.Constraint {
		case bidUniqueConstraint:
			return appErrors.Wrap(err, appErrors.ErrDuplicateBid.Code, appErrors.ErrDuplicateBid.Status, appErrors.ErrDuplicateBid.Message)
		case enrollmentUniqueConstraint:
			return appErrors.Wrap(err, appErrors.ErrConflict.Code, appErrors.ErrConflict.Status, "student already enrolled in class")
		}
		return appErrors.Wrap(err, appErrors.ErrConflict.Code, appErrors.ErrConflict.Status, appErrors.ErrConflict.Message)
	case "23514": // check_violation
		if pqErr.Constraint == tokensNonNegativeCheck {
			return appErrors.Wrap(err, appErrors.ErrInsufficientTokens.Code, appErrors.ErrInsufficientTokens.Status, appErrors.ErrInsufficientTokens.Message)
		}
		return appErrors.Wrap(err, appErrors.ErrIntegrityViolation.Code, appErrors.ErrIntegrityViolation.Status, appErrors.ErrIntegrityViolation.Message)
	case "23503": // foreign_key_violation
		return appErrors.Wrap(err, appErrors.ErrIntegrityViolation.Code, appErrors.ErrIntegrityViolation.Status, appErrors.ErrIntegrityViolation.Message)
	}
	return err
}
