package service

import (
	"context"
	"database/sql"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/zcahkwn/student-bid-sub000/internal/models"
	appErrors "github.com/zcahkwn/student-bid-sub000/pkg/errors"
)

type bidRepository interface {
	FindByStudentAndOpportunity(ctx context.Context, studentID, opportunityID string) (*models.Bid, error)
	ListByOpportunity(ctx context.Context, opportunityID string) ([]models.BidderDetail, error)
	CountPlaced(ctx context.Context, opportunityID string) (int, error)
	Submit(ctx context.Context, opp *models.Opportunity, studentID string, enforceCapacity bool) (*models.Bid, error)
	Withdraw(ctx context.Context, opp *models.Opportunity, studentID string) error
}

type opportunityReader interface {
	FindByID(ctx context.Context, id string) (*models.Opportunity, error)
}

type enrollmentReader interface {
	FindByStudentAndClass(ctx context.Context, studentID, classID string) (*models.Enrollment, error)
}

type cacheInvalidator interface {
	DeleteByPattern(ctx context.Context, pattern string) error
}

type bidMetrics interface {
	RecordBidSubmitted()
	RecordBidWithdrawn()
}

// SubmitBidRequest identifies the bidder and the target opportunity. Both
// IDs are explicit parameters; the service holds no per-caller state.
type SubmitBidRequest struct {
	StudentID     string `json:"student_id" validate:"required"`
	OpportunityID string `json:"opportunity_id" validate:"required"`
}

// WithdrawBidRequest identifies the bid to withdraw.
type WithdrawBidRequest struct {
	StudentID     string `json:"student_id" validate:"required"`
	OpportunityID string `json:"opportunity_id" validate:"required"`
}

// BidService orchestrates bid submission and withdrawal. All validation
// failures are detected before any write; the repository re-verifies the
// same conditions under row locks inside the transaction.
type BidService struct {
	bids            bidRepository
	opportunities   opportunityReader
	enrollments     enrollmentReader
	cache           cacheInvalidator
	metrics         bidMetrics
	enforceCapacity bool
	validator       *validator.Validate
	logger          *zap.Logger
	now             func() time.Time
}

// NewBidService constructs BidService.
func NewBidService(bids bidRepository, opportunities opportunityReader, enrollments enrollmentReader, cache cacheInvalidator, metrics bidMetrics, enforceCapacity bool, validate *validator.Validate, logger *zap.Logger) *BidService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BidService{
		bids:            bids,
		opportunities:   opportunities,
		enrollments:     enrollments,
		cache:           cache,
		metrics:         metrics,
		enforceCapacity: enforceCapacity,
		validator:       validate,
		logger:          logger,
		now:             func() time.Time { return time.Now().UTC() },
	}
}

// Submit places a bid, debiting one token from the student's enrollment.
func (s *BidService) Submit(ctx context.Context, req SubmitBidRequest) (*models.Bid, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid bid payload")
	}

	opp, err := s.opportunities.FindByID(ctx, req.OpportunityID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "opportunity not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load opportunity")
	}
	if !opp.OpenAt(s.now()) {
		return nil, appErrors.Clone(appErrors.ErrOpportunityClosed, "")
	}

	enrollment, err := s.enrollments.FindByStudentAndClass(ctx, req.StudentID, opp.ClassID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotEnrolled, "")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment")
	}
	if enrollment.TokensRemaining <= 0 {
		return nil, appErrors.Clone(appErrors.ErrInsufficientTokens, "")
	}

	if _, err := s.bids.FindByStudentAndOpportunity(ctx, req.StudentID, req.OpportunityID); err == nil {
		return nil, appErrors.Clone(appErrors.ErrDuplicateBid, "")
	} else if err != sql.ErrNoRows {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check existing bid")
	}

	if s.enforceCapacity {
		placed, err := s.bids.CountPlaced(ctx, req.OpportunityID)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count bids")
		}
		if placed >= opp.Capacity {
			return nil, appErrors.Clone(appErrors.ErrCapacityExceeded, "")
		}
	}

	bid, err := s.bids.Submit(ctx, opp, req.StudentID, s.enforceCapacity)
	if err != nil {
		return nil, err
	}

	s.invalidateOpportunity(ctx, opp.ID)
	if s.metrics != nil {
		s.metrics.RecordBidSubmitted()
	}
	s.logger.Info("bid_submitted",
		zap.String("student_id", req.StudentID),
		zap.String("opportunity_id", opp.ID),
		zap.String("bid_id", bid.ID),
	)
	return bid, nil
}

// Withdraw removes a non-winning bid and refunds the token.
func (s *BidService) Withdraw(ctx context.Context, req WithdrawBidRequest) error {
	if err := s.validator.Struct(req); err != nil {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid withdrawal payload")
	}

	opp, err := s.opportunities.FindByID(ctx, req.OpportunityID)
	if err != nil {
		if err == sql.ErrNoRows {
			return appErrors.Clone(appErrors.ErrNotFound, "opportunity not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load opportunity")
	}

	if err := s.bids.Withdraw(ctx, opp, req.StudentID); err != nil {
		return err
	}

	s.invalidateOpportunity(ctx, opp.ID)
	if s.metrics != nil {
		s.metrics.RecordBidWithdrawn()
	}
	s.logger.Info("bid_withdrawn",
		zap.String("student_id", req.StudentID),
		zap.String("opportunity_id", opp.ID),
	)
	return nil
}

// ListBidders returns all bids on an opportunity with student info.
func (s *BidService) ListBidders(ctx context.Context, opportunityID string) ([]models.BidderDetail, error) {
	if _, err := s.opportunities.FindByID(ctx, opportunityID); err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "opportunity not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load opportunity")
	}
	bidders, err := s.bids.ListByOpportunity(ctx, opportunityID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list bidders")
	}
	return bidders, nil
}

func (s *BidService) invalidateOpportunity(ctx context.Context, opportunityID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.DeleteByPattern(ctx, opportunityCachePattern(opportunityID)); err != nil {
		s.logger.Warn("opportunity_cache_invalidation_failed", zap.String("opportunity_id", opportunityID), zap.Error(err))
	}
}
