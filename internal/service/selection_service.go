package service

import (
	"context"
	"database/sql"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/zcahkwn/student-bid-sub000/internal/models"
	appErrors "github.com/zcahkwn/student-bid-sub000/pkg/errors"
)

type selectionRepository interface {
	SelectWinners(ctx context.Context, opp *models.Opportunity, selectedIDs, loserIDs []string) (models.SelectionOutcome, error)
	Reset(ctx context.Context, opp *models.Opportunity) (int, error)
	AutoSelectAndRefund(ctx context.Context, opp *models.Opportunity, tokenAllowance int) (int, error)
}

type selectionMetrics interface {
	RecordSelectionRun()
	RecordTokensRefunded(count int)
}

// SelectWinnersRequest carries the admin's winner choice. AllBidderIDs is
// the full set of students who bid on the opportunity; everyone outside
// SelectedIDs is marked as a loser.
type SelectWinnersRequest struct {
	SelectedIDs  []string `json:"selected_ids" validate:"required"`
	AllBidderIDs []string `json:"all_bidder_ids" validate:"required,min=1"`
}

// SelectionService partitions an opportunity's bidders into winners and
// losers as one atomic batch, and supports reset and the auto-select
// variant.
type SelectionService struct {
	selections     selectionRepository
	opportunities  opportunityReader
	cache          cacheInvalidator
	metrics        selectionMetrics
	tokenAllowance int
	validator      *validator.Validate
	logger         *zap.Logger
}

// NewSelectionService constructs SelectionService.
func NewSelectionService(selections selectionRepository, opportunities opportunityReader, cache cacheInvalidator, metrics selectionMetrics, tokenAllowance int, validate *validator.Validate, logger *zap.Logger) *SelectionService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if tokenAllowance <= 0 {
		tokenAllowance = 1
	}
	return &SelectionService{
		selections:     selections,
		opportunities:  opportunities,
		cache:          cache,
		metrics:        metrics,
		tokenAllowance: tokenAllowance,
		validator:      validate,
		logger:         logger,
	}
}

// SelectWinners applies the winner/loser partition for one opportunity.
func (s *SelectionService) SelectWinners(ctx context.Context, opportunityID string, req SelectWinnersRequest) (*models.SelectionOutcome, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid selection payload")
	}

	opp, err := s.loadOpportunity(ctx, opportunityID)
	if err != nil {
		return nil, err
	}

	bidders := make(map[string]struct{}, len(req.AllBidderIDs))
	for _, id := range req.AllBidderIDs {
		bidders[id] = struct{}{}
	}
	selected := make([]string, 0, len(req.SelectedIDs))
	seen := make(map[string]struct{}, len(req.SelectedIDs))
	for _, id := range req.SelectedIDs {
		if _, ok := bidders[id]; !ok {
			return nil, appErrors.Clone(appErrors.ErrValidation, "selected student is not among the bidders")
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		selected = append(selected, id)
	}
	losers := make([]string, 0, len(req.AllBidderIDs)-len(selected))
	for _, id := range req.AllBidderIDs {
		if _, ok := seen[id]; !ok {
			losers = append(losers, id)
		}
	}

	outcome, err := s.selections.SelectWinners(ctx, opp, selected, losers)
	if err != nil {
		return nil, err
	}

	s.invalidate(ctx, opp.ID)
	if s.metrics != nil {
		s.metrics.RecordSelectionRun()
	}
	s.logger.Info("selection_completed",
		zap.String("opportunity_id", opp.ID),
		zap.Int("winners", outcome.UpdatedWinners),
		zap.Int("losers", outcome.UpdatedLosers),
	)
	return &outcome, nil
}

// Reset returns every bid and bidder enrollment on the opportunity to the
// pre-selection state so the same selection can be re-run idempotently.
func (s *SelectionService) Reset(ctx context.Context, opportunityID string) (int, error) {
	opp, err := s.loadOpportunity(ctx, opportunityID)
	if err != nil {
		return 0, err
	}

	count, err := s.selections.Reset(ctx, opp)
	if err != nil {
		return 0, err
	}

	s.invalidate(ctx, opp.ID)
	s.logger.Info("selection_reset", zap.String("opportunity_id", opp.ID), zap.Int("reset_count", count))
	return count, nil
}

// AutoSelectAndRefund marks every bidder as winner and restores their token
// allowance, for opportunities with no competitive selection.
func (s *SelectionService) AutoSelectAndRefund(ctx context.Context, opportunityID string) (int, error) {
	opp, err := s.loadOpportunity(ctx, opportunityID)
	if err != nil {
		return 0, err
	}

	count, err := s.selections.AutoSelectAndRefund(ctx, opp, s.tokenAllowance)
	if err != nil {
		return 0, err
	}

	s.invalidate(ctx, opp.ID)
	if s.metrics != nil {
		s.metrics.RecordSelectionRun()
		s.metrics.RecordTokensRefunded(count)
	}
	s.logger.Info("auto_selection_completed", zap.String("opportunity_id", opp.ID), zap.Int("selected_count", count))
	return count, nil
}

func (s *SelectionService) loadOpportunity(ctx context.Context, opportunityID string) (*models.Opportunity, error) {
	opp, err := s.opportunities.FindByID(ctx, opportunityID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "opportunity not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load opportunity")
	}
	return opp, nil
}

func (s *SelectionService) invalidate(ctx context.Context, opportunityID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.DeleteByPattern(ctx, opportunityCachePattern(opportunityID)); err != nil {
		s.logger.Warn("opportunity_cache_invalidation_failed", zap.String("opportunity_id", opportunityID), zap.Error(err))
	}
}
