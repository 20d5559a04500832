package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/zcahkwn/student-bid-sub000/internal/models"
	appErrors "github.com/zcahkwn/student-bid-sub000/pkg/errors"
)

// EnrollmentRepository is the token ledger: one row per (student, class)
// holding the balance and bidding result. The ledger mutators run against
// the caller's transaction and hold no transaction boundary of their own.
type EnrollmentRepository struct {
	db      *sqlx.DB
	history *TokenHistoryRepository
}

// NewEnrollmentRepository constructs the repository.
func NewEnrollmentRepository(db *sqlx.DB, history *TokenHistoryRepository) *EnrollmentRepository {
	return &EnrollmentRepository{db: db, history: history}
}

// List returns enrollments filtered by the provided criteria.
func (r *EnrollmentRepository) List(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, int, error) {
	base := `FROM enrollments e
LEFT JOIN students s ON s.id = e.student_id
LEFT JOIN classes c ON c.id = e.class_id`
	var conditions []string
	var args []interface{}

	if filter.StudentID != "" {
		conditions = append(conditions, fmt.Sprintf("e.student_id = $%d", len(args)+1))
		args = append(args, filter.StudentID)
	}
	if filter.ClassID != "" {
		conditions = append(conditions, fmt.Sprintf("e.class_id = $%d", len(args)+1))
		args = append(args, filter.ClassID)
	}
	if filter.Result != "" {
		conditions = append(conditions, fmt.Sprintf("e.bidding_result = $%d", len(args)+1))
		args = append(args, filter.Result)
	}

	clause := ""
	if len(conditions) > 0 {
		clause = " WHERE " + strings.Join(conditions, " AND ")
	}

	allowedSorts := map[string]string{
		"joined_at":    "e.joined_at",
		"student_name": "s.full_name",
		"class_name":   "c.name",
	}
	sortBy := filter.SortBy
	if sortBy == "" {
		sortBy = "joined_at"
	}
	orderBy := allowedSorts[sortBy]
	if orderBy == "" {
		orderBy = "e.joined_at"
	}
	order := strings.ToUpper(filter.SortOrder)
	if order != "ASC" && order != "DESC" {
		order = "DESC"
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	offset := (page - 1) * size

	query := fmt.Sprintf(`SELECT e.id, e.student_id, e.class_id, e.tokens_remaining, e.bidding_result, e.joined_at,
        s.full_name AS student_name, s.student_number AS student_number, c.name AS class_name
        %s ORDER BY %s %s LIMIT %d OFFSET %d`, base+clause, orderBy, order, size, offset)

	var enrollments []models.EnrollmentDetail
	if err := r.db.SelectContext(ctx, &enrollments, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list enrollments: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base+clause)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count enrollments: %w", err)
	}
	return enrollments, total, nil
}

// FindByID returns an enrollment by its ID.
func (r *EnrollmentRepository) FindByID(ctx context.Context, id string) (*models.Enrollment, error) {
	const query = `SELECT id, student_id, class_id, tokens_remaining, bidding_result, joined_at FROM enrollments WHERE id = $1`
	var enrollment models.Enrollment
	if err := r.db.GetContext(ctx, &enrollment, query, id); err != nil {
		return nil, err
	}
	return &enrollment, nil
}

// FindByStudentAndClass returns the unique enrollment for the pair.
func (r *EnrollmentRepository) FindByStudentAndClass(ctx context.Context, studentID, classID string) (*models.Enrollment, error) {
	const query = `SELECT id, student_id, class_id, tokens_remaining, bidding_result, joined_at FROM enrollments WHERE student_id = $1 AND class_id = $2`
	var enrollment models.Enrollment
	if err := r.db.GetContext(ctx, &enrollment, query, studentID, classID); err != nil {
		return nil, err
	}
	return &enrollment, nil
}

// Create persists a new enrollment record.
func (r *EnrollmentRepository) Create(ctx context.Context, enrollment *models.Enrollment) error {
	if enrollment.ID == "" {
		enrollment.ID = uuid.NewString()
	}
	if enrollment.JoinedAt.IsZero() {
		enrollment.JoinedAt = time.Now().UTC()
	}
	if enrollment.BiddingResult == "" {
		enrollment.BiddingResult = models.BiddingResultPending
	}
	const query = `INSERT INTO enrollments (id, student_id, class_id, tokens_remaining, bidding_result, joined_at)
        VALUES (:id, :student_id, :class_id, :tokens_remaining, :bidding_result, :joined_at)`
	if _, err := r.db.NamedExecContext(ctx, query, enrollment); err != nil {
		return fmt.Errorf("create enrollment: %w", translateDBError(err))
	}
	return nil
}

// LockForUpdate loads the enrollment row under FOR UPDATE within the
// caller's transaction. This is the contention point that serializes
// concurrent submit/withdraw calls for one enrollment.
func (r *EnrollmentRepository) LockForUpdate(ctx context.Context, q sqlx.ExtContext, studentID, classID string) (*models.Enrollment, error) {
	const query = `SELECT id, student_id, class_id, tokens_remaining, bidding_result, joined_at
        FROM enrollments WHERE student_id = $1 AND class_id = $2 FOR UPDATE`
	var enrollment models.Enrollment
	if err := sqlx.GetContext(ctx, q, &enrollment, query, studentID, classID); err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotEnrolled, "")
		}
		return nil, fmt.Errorf("lock enrollment: %w", translateDBError(err))
	}
	return &enrollment, nil
}

// DebitToken decrements the balance by one iff it is positive. The guard in
// the WHERE clause keeps the balance non-negative even if the caller's
// validation raced.
func (r *EnrollmentRepository) DebitToken(ctx context.Context, q sqlx.ExtContext, studentID, classID string) error {
	const query = `UPDATE enrollments SET tokens_remaining = tokens_remaining - 1
        WHERE student_id = $1 AND class_id = $2 AND tokens_remaining > 0`
	res, err := q.ExecContext(ctx, query, studentID, classID)
	if err != nil {
		return fmt.Errorf("debit token: %w", translateDBError(err))
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("debit token result: %w", err)
	}
	if affected == 0 {
		return appErrors.Clone(appErrors.ErrInsufficientTokens, "")
	}
	return nil
}

// CreditToken increments the balance by one. Idempotency is the caller's
// responsibility: the bid ledger only credits while deleting the bid that
// debited, inside the same transaction.
func (r *EnrollmentRepository) CreditToken(ctx context.Context, q sqlx.ExtContext, studentID, classID string) error {
	const query = `UPDATE enrollments SET tokens_remaining = tokens_remaining + 1
        WHERE student_id = $1 AND class_id = $2`
	res, err := q.ExecContext(ctx, query, studentID, classID)
	if err != nil {
		return fmt.Errorf("credit token: %w", translateDBError(err))
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("credit token result: %w", err)
	}
	if affected == 0 {
		return appErrors.Clone(appErrors.ErrNotEnrolled, "")
	}
	return nil
}

// TopUp is the one ledger composite owned here: an administrative credit
// of a single token together with its TOPUP history entry, in one
// transaction of its own.
func (r *EnrollmentRepository) TopUp(ctx context.Context, studentID, classID, description string) (enrollment *models.Enrollment, err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin topup transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	enrollment, err = r.LockForUpdate(ctx, tx, studentID, classID)
	if err != nil {
		return nil, err
	}
	if err = r.CreditToken(ctx, tx, studentID, classID); err != nil {
		return nil, err
	}
	enrollment.TokensRemaining++

	entry := &models.TokenHistoryEntry{
		StudentID:   studentID,
		Amount:      1,
		EntryType:   models.TokenEntryTopup,
		Description: description,
	}
	if err = r.history.Append(ctx, tx, entry); err != nil {
		return nil, err
	}

	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit topup transaction: %w", translateDBError(err))
	}
	return enrollment, nil
}

// SetResult updates the bidding result for one enrollment.
func (r *EnrollmentRepository) SetResult(ctx context.Context, q sqlx.ExtContext, studentID, classID string, result models.BiddingResult) error {
	const query = `UPDATE enrollments SET bidding_result = $3 WHERE student_id = $1 AND class_id = $2`
	if _, err := q.ExecContext(ctx, query, studentID, classID, result); err != nil {
		return fmt.Errorf("set bidding result: %w", translateDBError(err))
	}
	return nil
}
