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

// OpportunityRepository handles persistence of opportunities. Lifecycle
// status is derived from timestamps at read time, never stored.
type OpportunityRepository struct {
	db *sqlx.DB
}

// NewOpportunityRepository constructs the repository.
func NewOpportunityRepository(db *sqlx.DB) *OpportunityRepository {
	return &OpportunityRepository{db: db}
}

// FindByID returns an opportunity by its ID.
func (r *OpportunityRepository) FindByID(ctx context.Context, id string) (*models.Opportunity, error) {
	const query = `SELECT id, class_id, title, description, opens_at, closes_at, event_date, capacity, created_at
        FROM opportunities WHERE id = $1`
	var opp models.Opportunity
	if err := r.db.GetContext(ctx, &opp, query, id); err != nil {
		return nil, err
	}
	return &opp, nil
}

// FindDetailByID returns an opportunity with its current bid count.
func (r *OpportunityRepository) FindDetailByID(ctx context.Context, id string) (*models.OpportunityDetail, error) {
	const query = `SELECT o.id, o.class_id, o.title, o.description, o.opens_at, o.closes_at, o.event_date, o.capacity, o.created_at,
        COUNT(b.id) AS bid_count
        FROM opportunities o
        LEFT JOIN bids b ON b.opportunity_id = o.id
        WHERE o.id = $1
        GROUP BY o.id`
	var detail models.OpportunityDetail
	if err := r.db.GetContext(ctx, &detail, query, id); err != nil {
		return nil, err
	}
	detail.Status = detail.StatusAt(time.Now().UTC())
	return &detail, nil
}

// List returns opportunities filtered by the provided criteria.
func (r *OpportunityRepository) List(ctx context.Context, filter models.OpportunityFilter) ([]models.OpportunityDetail, int, error) {
	base := `FROM opportunities o LEFT JOIN bids b ON b.opportunity_id = o.id`
	var conditions []string
	var args []interface{}

	if filter.ClassID != "" {
		conditions = append(conditions, fmt.Sprintf("o.class_id = $%d", len(args)+1))
		args = append(args, filter.ClassID)
	}

	clause := ""
	if len(conditions) > 0 {
		clause = " WHERE " + strings.Join(conditions, " AND ")
	}

	allowedSorts := map[string]string{
		"opens_at":   "o.opens_at",
		"closes_at":  "o.closes_at",
		"event_date": "o.event_date",
		"title":      "o.title",
	}
	sortBy := filter.SortBy
	if sortBy == "" {
		sortBy = "event_date"
	}
	orderBy := allowedSorts[sortBy]
	if orderBy == "" {
		orderBy = "o.event_date"
	}
	order := strings.ToUpper(filter.SortOrder)
	if order != "ASC" && order != "DESC" {
		order = "ASC"
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

	query := fmt.Sprintf(`SELECT o.id, o.class_id, o.title, o.description, o.opens_at, o.closes_at, o.event_date, o.capacity, o.created_at,
        COUNT(b.id) AS bid_count
        %s GROUP BY o.id ORDER BY %s %s LIMIT %d OFFSET %d`, base+clause, orderBy, order, size, offset)

	var opportunities []models.OpportunityDetail
	if err := r.db.SelectContext(ctx, &opportunities, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list opportunities: %w", err)
	}
	now := time.Now().UTC()
	for i := range opportunities {
		opportunities[i].Status = opportunities[i].StatusAt(now)
	}

	countQuery := "SELECT COUNT(*) FROM opportunities o" + clause
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count opportunities: %w", err)
	}
	return opportunities, total, nil
}

// Create persists a new opportunity.
func (r *OpportunityRepository) Create(ctx context.Context, opp *models.Opportunity) error {
	if opp.ID == "" {
		opp.ID = uuid.NewString()
	}
	if opp.CreatedAt.IsZero() {
		opp.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO opportunities (id, class_id, title, description, opens_at, closes_at, event_date, capacity, created_at)
        VALUES (:id, :class_id, :title, :description, :opens_at, :closes_at, :event_date, :capacity, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, opp); err != nil {
		return fmt.Errorf("create opportunity: %w", translateDBError(err))
	}
	return nil
}
