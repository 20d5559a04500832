package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/zcahkwn/student-bid-sub000/internal/models"
	appErrors "github.com/zcahkwn/student-bid-sub000/pkg/errors"
)

type tokenHistoryReader interface {
	List(ctx context.Context, filter models.TokenHistoryFilter) ([]models.TokenHistoryEntry, int, error)
}

// TokenHistoryService exposes the append-only token trail for review.
type TokenHistoryService struct {
	repo   tokenHistoryReader
	logger *zap.Logger
}

// NewTokenHistoryService constructs TokenHistoryService.
func NewTokenHistoryService(repo tokenHistoryReader, logger *zap.Logger) *TokenHistoryService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TokenHistoryService{repo: repo, logger: logger}
}

// List returns history entries with pagination metadata, newest first.
func (s *TokenHistoryService) List(ctx context.Context, filter models.TokenHistoryFilter) ([]models.TokenHistoryEntry, *models.Pagination, error) {
	entries, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list token history")
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
	return entries, pagination, nil
}
