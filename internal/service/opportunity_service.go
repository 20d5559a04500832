package service

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/zcahkwn/student-bid-sub000/internal/models"
	appErrors "github.com/zcahkwn/student-bid-sub000/pkg/errors"
)

type opportunityRepository interface {
	FindByID(ctx context.Context, id string) (*models.Opportunity, error)
	FindDetailByID(ctx context.Context, id string) (*models.OpportunityDetail, error)
	List(ctx context.Context, filter models.OpportunityFilter) ([]models.OpportunityDetail, int, error)
	Create(ctx context.Context, opp *models.Opportunity) error
}

type opportunityCascade interface {
	DeleteOpportunity(ctx context.Context, opp *models.Opportunity) (int, error)
}

type classReader interface {
	FindByID(ctx context.Context, id string) (*models.Class, error)
}

type opportunityCache interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	DeleteByPattern(ctx context.Context, pattern string) error
}

// CreateOpportunityRequest describes opportunity creation. Capacity falls
// back to the owning class's default when omitted.
type CreateOpportunityRequest struct {
	ClassID     string    `json:"class_id" validate:"required"`
	Title       string    `json:"title" validate:"required"`
	Description string    `json:"description"`
	OpensAt     time.Time `json:"opens_at" validate:"required"`
	ClosesAt    time.Time `json:"closes_at" validate:"required,gtfield=OpensAt"`
	EventDate   time.Time `json:"event_date" validate:"required"`
	Capacity    int       `json:"capacity" validate:"omitempty,gt=0"`
}

// OpportunityService manages the opportunity registry and fronts the
// cascade deletion path for single opportunities.
type OpportunityService struct {
	repo      opportunityRepository
	cascades  opportunityCascade
	classes   classReader
	cache     opportunityCache
	cacheTTL  time.Duration
	validator *validator.Validate
	logger    *zap.Logger
}

// NewOpportunityService constructs OpportunityService.
func NewOpportunityService(repo opportunityRepository, cascades opportunityCascade, classes classReader, cache opportunityCache, cacheTTL time.Duration, validate *validator.Validate, logger *zap.Logger) *OpportunityService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OpportunityService{
		repo:      repo,
		cascades:  cascades,
		classes:   classes,
		cache:     cache,
		cacheTTL:  cacheTTL,
		validator: validate,
		logger:    logger,
	}
}

// Create registers a new opportunity in its class.
func (s *OpportunityService) Create(ctx context.Context, req CreateOpportunityRequest) (*models.Opportunity, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid opportunity payload")
	}
	if req.EventDate.Before(req.ClosesAt) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "event date must not precede the bidding close")
	}

	class, err := s.classes.FindByID(ctx, req.ClassID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "class not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load class")
	}

	capacity := req.Capacity
	if capacity <= 0 {
		capacity = class.DefaultCapacity
	}

	opp := &models.Opportunity{
		ClassID:     req.ClassID,
		Title:       req.Title,
		Description: req.Description,
		OpensAt:     req.OpensAt.UTC(),
		ClosesAt:    req.ClosesAt.UTC(),
		EventDate:   req.EventDate.UTC(),
		Capacity:    capacity,
	}
	if err := s.repo.Create(ctx, opp); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create opportunity")
	}
	return opp, nil
}

// Get returns an opportunity with derived status and bid count, served
// from cache when fresh enough.
func (s *OpportunityService) Get(ctx context.Context, id string) (*models.OpportunityDetail, error) {
	if s.cache != nil {
		var cached models.OpportunityDetail
		if err := s.cache.Get(ctx, opportunityDetailKey(id), &cached); err == nil {
			cached.Status = cached.StatusAt(time.Now().UTC())
			return &cached, nil
		}
	}

	detail, err := s.repo.FindDetailByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "opportunity not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load opportunity")
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, opportunityDetailKey(id), detail, s.cacheTTL); err != nil {
			s.logger.Warn("opportunity_cache_write_failed", zap.String("opportunity_id", id), zap.Error(err))
		}
	}
	return detail, nil
}

// List returns opportunities with pagination metadata.
func (s *OpportunityService) List(ctx context.Context, filter models.OpportunityFilter) ([]models.OpportunityDetail, *models.Pagination, error) {
	opportunities, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list opportunities")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 20
	}
	pagination := &models.Pagination{Page: page, PageSize: size, TotalCount: total}
	return opportunities, pagination, nil
}

// Delete removes the opportunity, refunding every bidder first. Returns
// the number of refunded bidders.
func (s *OpportunityService) Delete(ctx context.Context, id string) (int, error) {
	opp, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return 0, appErrors.Clone(appErrors.ErrNotFound, "opportunity not found")
		}
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load opportunity")
	}

	refunded, err := s.cascades.DeleteOpportunity(ctx, opp)
	if err != nil {
		return 0, err
	}

	if s.cache != nil {
		if err := s.cache.DeleteByPattern(ctx, opportunityCachePattern(id)); err != nil {
			s.logger.Warn("opportunity_cache_invalidation_failed", zap.String("opportunity_id", id), zap.Error(err))
		}
	}
	s.logger.Info("opportunity_deleted", zap.String("opportunity_id", id), zap.Int("refunded", refunded))
	return refunded, nil
}

func opportunityDetailKey(id string) string {
	return fmt.Sprintf("opportunity:detail:%s", id)
}

func opportunityCachePattern(id string) string {
	return fmt.Sprintf("opportunity:*:%s", id)
}
