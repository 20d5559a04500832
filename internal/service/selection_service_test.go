package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zcahkwn/student-bid-sub000/internal/models"
	appErrors "github.com/zcahkwn/student-bid-sub000/pkg/errors"
)

type mockSelectionRepo struct {
	selected   []string
	losers     []string
	resetCount int
	autoCount  int
}

func (m *mockSelectionRepo) SelectWinners(ctx context.Context, opp *models.Opportunity, selectedIDs, loserIDs []string) (models.SelectionOutcome, error) {
	m.selected = selectedIDs
	m.losers = loserIDs
	return models.SelectionOutcome{UpdatedWinners: len(selectedIDs), UpdatedLosers: len(loserIDs)}, nil
}

func (m *mockSelectionRepo) Reset(ctx context.Context, opp *models.Opportunity) (int, error) {
	return m.resetCount, nil
}

func (m *mockSelectionRepo) AutoSelectAndRefund(ctx context.Context, opp *models.Opportunity, tokenAllowance int) (int, error) {
	return m.autoCount, nil
}

func newTestSelectionService(selections *mockSelectionRepo, cache cacheInvalidator, metrics selectionMetrics) *SelectionService {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	opps := &mockOpportunityReader{opportunities: map[string]models.Opportunity{"opp-1": openOpportunity(now)}}
	return NewSelectionService(selections, opps, cache, metrics, 1, nil, nil)
}

func TestSelectionServiceSelectWinners(t *testing.T) {
	selections := &mockSelectionRepo{}
	cache := &mockInvalidator{}
	metrics := &mockDomainMetrics{}
	svc := newTestSelectionService(selections, cache, metrics)

	outcome, err := svc.SelectWinners(context.Background(), "opp-1", SelectWinnersRequest{
		SelectedIDs:  []string{"student-2", "student-1"},
		AllBidderIDs: []string{"student-1", "student-2", "student-3", "student-4"},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, outcome.UpdatedWinners)
	assert.Equal(t, 2, outcome.UpdatedLosers)
	assert.ElementsMatch(t, []string{"student-1", "student-2"}, selections.selected)
	assert.ElementsMatch(t, []string{"student-3", "student-4"}, selections.losers)
	assert.Equal(t, 1, metrics.runs)
	assert.Len(t, cache.patterns, 1)
}

func TestSelectionServiceSelectWinnersDedupes(t *testing.T) {
	selections := &mockSelectionRepo{}
	svc := newTestSelectionService(selections, nil, nil)

	outcome, err := svc.SelectWinners(context.Background(), "opp-1", SelectWinnersRequest{
		SelectedIDs:  []string{"student-1", "student-1"},
		AllBidderIDs: []string{"student-1", "student-2"},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, outcome.UpdatedWinners)
	assert.Equal(t, []string{"student-1"}, selections.selected)
	assert.Equal(t, []string{"student-2"}, selections.losers)
}

func TestSelectionServiceSelectWinnersOutsideBidders(t *testing.T) {
	svc := newTestSelectionService(&mockSelectionRepo{}, nil, nil)

	_, err := svc.SelectWinners(context.Background(), "opp-1", SelectWinnersRequest{
		SelectedIDs:  []string{"student-9"},
		AllBidderIDs: []string{"student-1", "student-2"},
	})
	assertErrorCode(t, err, appErrors.ErrValidation.Code)
}

func TestSelectionServiceSelectWinnersUnknownOpportunity(t *testing.T) {
	svc := newTestSelectionService(&mockSelectionRepo{}, nil, nil)

	_, err := svc.SelectWinners(context.Background(), "opp-99", SelectWinnersRequest{
		SelectedIDs:  []string{"student-1"},
		AllBidderIDs: []string{"student-1"},
	})
	assertErrorCode(t, err, appErrors.ErrNotFound.Code)
}

func TestSelectionServiceReset(t *testing.T) {
	selections := &mockSelectionRepo{resetCount: 3}
	cache := &mockInvalidator{}
	svc := newTestSelectionService(selections, cache, nil)

	count, err := svc.Reset(context.Background(), "opp-1")
	require.NoError(t, err)
	assert.Equal(t, 3, count)
	assert.Len(t, cache.patterns, 1)
}

func TestSelectionServiceAutoSelectAndRefund(t *testing.T) {
	selections := &mockSelectionRepo{autoCount: 4}
	metrics := &mockDomainMetrics{}
	svc := newTestSelectionService(selections, &mockInvalidator{}, metrics)

	count, err := svc.AutoSelectAndRefund(context.Background(), "opp-1")
	require.NoError(t, err)
	assert.Equal(t, 4, count)
	assert.Equal(t, 1, metrics.runs)
	assert.Equal(t, 4, metrics.refunded)
}
