package service

import (
	"context"
	"database/sql"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/zcahkwn/student-bid-sub000/internal/models"
	appErrors "github.com/zcahkwn/student-bid-sub000/pkg/errors"
)

type classRepository interface {
	FindByID(ctx context.Context, id string) (*models.Class, error)
	List(ctx context.Context, search string, page, pageSize int) ([]models.Class, int, error)
	Create(ctx context.Context, class *models.Class) error
}

type classCascade interface {
	DeleteClass(ctx context.Context, classID string) (models.ClassDeletionCounts, error)
	RemoveStudentFromClass(ctx context.Context, studentID, classID string) (bool, error)
}

// CreateClassRequest describes class creation.
type CreateClassRequest struct {
	Name            string `json:"name" validate:"required"`
	DefaultCapacity int    `json:"default_capacity" validate:"omitempty,gt=0"`
}

// RemovalResult reports the outcome of removing a student from a class.
type RemovalResult struct {
	EnrollmentDeleted bool `json:"enrollment_deleted"`
	UserDeleted       bool `json:"user_deleted"`
}

// ClassService manages classes and fronts the class-level cascade paths.
type ClassService struct {
	repo      classRepository
	cascades  classCascade
	validator *validator.Validate
	logger    *zap.Logger
}

// NewClassService constructs ClassService.
func NewClassService(repo classRepository, cascades classCascade, validate *validator.Validate, logger *zap.Logger) *ClassService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ClassService{repo: repo, cascades: cascades, validator: validate, logger: logger}
}

// Create registers a new class.
func (s *ClassService) Create(ctx context.Context, req CreateClassRequest) (*models.Class, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid class payload")
	}
	capacity := req.DefaultCapacity
	if capacity <= 0 {
		capacity = 7
	}
	class := &models.Class{Name: req.Name, DefaultCapacity: capacity}
	if err := s.repo.Create(ctx, class); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create class")
	}
	return class, nil
}

// Get returns a class by ID.
func (s *ClassService) Get(ctx context.Context, id string) (*models.Class, error) {
	class, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "class not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load class")
	}
	return class, nil
}

// List returns classes with pagination metadata.
func (s *ClassService) List(ctx context.Context, search string, page, pageSize int) ([]models.Class, *models.Pagination, error) {
	classes, total, err := s.repo.List(ctx, search, page, pageSize)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list classes")
	}
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 20
	}
	pagination := &models.Pagination{Page: page, PageSize: pageSize, TotalCount: total}
	return classes, pagination, nil
}

// Delete removes the class and all dependents in dependency order,
// returning rows removed per table.
func (s *ClassService) Delete(ctx context.Context, id string) (*models.ClassDeletionCounts, error) {
	counts, err := s.cascades.DeleteClass(ctx, id)
	if err != nil {
		return nil, err
	}
	s.logger.Info("class_deleted",
		zap.String("class_id", id),
		zap.Int("opportunities", counts.Opportunities),
		zap.Int("bids", counts.Bids),
		zap.Int("enrollments", counts.Enrollments),
		zap.Int("token_history", counts.TokenHistory),
	)
	return &counts, nil
}

// RemoveStudent deletes the student's enrollment in the class, and the
// student record itself when no enrollment remains anywhere. Removal is
// blocked while any bid exists within the class.
func (s *ClassService) RemoveStudent(ctx context.Context, studentID, classID string) (*RemovalResult, error) {
	studentDeleted, err := s.cascades.RemoveStudentFromClass(ctx, studentID, classID)
	if err != nil {
		return nil, err
	}
	s.logger.Info("student_removed_from_class",
		zap.String("student_id", studentID),
		zap.String("class_id", classID),
		zap.Bool("user_deleted", studentDeleted),
	)
	return &RemovalResult{EnrollmentDeleted: true, UserDeleted: studentDeleted}, nil
}
