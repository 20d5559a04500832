package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/zcahkwn/student-bid-sub000/internal/models"
)

// TokenHistoryRepository persists the append-only token audit trail.
type TokenHistoryRepository struct {
	db *sqlx.DB
}

// NewTokenHistoryRepository constructs the repository.
func NewTokenHistoryRepository(db *sqlx.DB) *TokenHistoryRepository {
	return &TokenHistoryRepository{db: db}
}

// Append inserts one history entry against the caller's transaction.
// History rows are never updated or deleted here; the class cascade is the
// single sanctioned deletion path.
func (r *TokenHistoryRepository) Append(ctx context.Context, q sqlx.ExtContext, entry *models.TokenHistoryEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO token_history (id, student_id, opportunity_id, amount, entry_type, description, created_at)
        VALUES (:id, :student_id, :opportunity_id, :amount, :entry_type, :description, :created_at)`
	if _, err := sqlx.NamedExecContext(ctx, q, query, entry); err != nil {
		return fmt.Errorf("append token history: %w", translateDBError(err))
	}
	return nil
}

// List returns history entries filtered by the provided criteria, newest first.
func (r *TokenHistoryRepository) List(ctx context.Context, filter models.TokenHistoryFilter) ([]models.TokenHistoryEntry, int, error) {
	base := "FROM token_history"
	var conditions []string
	var args []interface{}

	if filter.StudentID != "" {
		conditions = append(conditions, fmt.Sprintf("student_id = $%d", len(args)+1))
		args = append(args, filter.StudentID)
	}
	if filter.OpportunityID != "" {
		conditions = append(conditions, fmt.Sprintf("opportunity_id = $%d", len(args)+1))
		args = append(args, filter.OpportunityID)
	}
	if filter.EntryType != "" {
		conditions = append(conditions, fmt.Sprintf("entry_type = $%d", len(args)+1))
		args = append(args, filter.EntryType)
	}

	clause := ""
	if len(conditions) > 0 {
		clause = " WHERE " + strings.Join(conditions, " AND ")
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

	query := fmt.Sprintf(`SELECT id, student_id, opportunity_id, amount, entry_type, description, created_at
        %s ORDER BY created_at DESC LIMIT %d OFFSET %d`, base+clause, size, offset)

	var entries []models.TokenHistoryEntry
	if err := r.db.SelectContext(ctx, &entries, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list token history: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base+clause)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count token history: %w", err)
	}
	return entries, total, nil
}
