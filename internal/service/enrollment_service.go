package service

import (
	"context"
	"database/sql"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/zcahkwn/student-bid-sub000/internal/models"
	appErrors "github.com/zcahkwn/student-bid-sub000/pkg/errors"
)

type enrollmentRepository interface {
	List(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, int, error)
	FindByStudentAndClass(ctx context.Context, studentID, classID string) (*models.Enrollment, error)
	Create(ctx context.Context, enrollment *models.Enrollment) error
	TopUp(ctx context.Context, studentID, classID, description string) (*models.Enrollment, error)
}

type studentReader interface {
	FindByID(ctx context.Context, id string) (*models.Student, error)
}

// EnrollRequest joins a student to a class with the starting token allowance.
type EnrollRequest struct {
	StudentID string `json:"student_id" validate:"required"`
	ClassID   string `json:"class_id" validate:"required"`
}

// TopUpRequest grants one extra token to an enrollment.
type TopUpRequest struct {
	StudentID string `json:"student_id" validate:"required"`
	ClassID   string `json:"class_id" validate:"required"`
	Reason    string `json:"reason"`
}

// EnrollmentService manages class membership and the administrative side of
// the token ledger.
type EnrollmentService struct {
	repo           enrollmentRepository
	students       studentReader
	classes        classReader
	tokenAllowance int
	validator      *validator.Validate
	logger         *zap.Logger
}

// NewEnrollmentService constructs EnrollmentService.
func NewEnrollmentService(repo enrollmentRepository, students studentReader, classes classReader, tokenAllowance int, validate *validator.Validate, logger *zap.Logger) *EnrollmentService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if tokenAllowance <= 0 {
		tokenAllowance = 1
	}
	return &EnrollmentService{
		repo:           repo,
		students:       students,
		classes:        classes,
		tokenAllowance: tokenAllowance,
		validator:      validate,
		logger:         logger,
	}
}

// Enroll creates the (student, class) ledger row with the starting balance.
func (s *EnrollmentService) Enroll(ctx context.Context, req EnrollRequest) (*models.Enrollment, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid enrollment payload")
	}

	if _, err := s.students.FindByID(ctx, req.StudentID); err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	if _, err := s.classes.FindByID(ctx, req.ClassID); err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "class not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load class")
	}

	enrollment := &models.Enrollment{
		StudentID:       req.StudentID,
		ClassID:         req.ClassID,
		TokensRemaining: s.tokenAllowance,
		BiddingResult:   models.BiddingResultPending,
	}
	if err := s.repo.Create(ctx, enrollment); err != nil {
		return nil, err
	}
	s.logger.Info("student_enrolled",
		zap.String("student_id", req.StudentID),
		zap.String("class_id", req.ClassID),
		zap.Int("tokens", s.tokenAllowance),
	)
	return enrollment, nil
}

// Get returns the enrollment for a (student, class) pair.
func (s *EnrollmentService) Get(ctx context.Context, studentID, classID string) (*models.Enrollment, error) {
	enrollment, err := s.repo.FindByStudentAndClass(ctx, studentID, classID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotEnrolled, "")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment")
	}
	return enrollment, nil
}

// List returns enrollments with pagination metadata.
func (s *EnrollmentService) List(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, *models.Pagination, error) {
	enrollments, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list enrollments")
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
	return enrollments, pagination, nil
}

// TopUp credits one token to the enrollment with a TOPUP history entry.
func (s *EnrollmentService) TopUp(ctx context.Context, req TopUpRequest) (*models.Enrollment, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid topup payload")
	}
	description := req.Reason
	if description == "" {
		description = "administrative token topup"
	}
	enrollment, err := s.repo.TopUp(ctx, req.StudentID, req.ClassID, description)
	if err != nil {
		return nil, err
	}
	s.logger.Info("token_topped_up",
		zap.String("student_id", req.StudentID),
		zap.String("class_id", req.ClassID),
		zap.Int("balance", enrollment.TokensRemaining),
	)
	return enrollment, nil
}
