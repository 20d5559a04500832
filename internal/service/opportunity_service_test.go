package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zcahkwn/student-bid-sub000/internal/models"
	appErrors "github.com/zcahkwn/student-bid-sub000/pkg/errors"
)

type mockOpportunityRepo struct {
	opportunities map[string]models.Opportunity
	details       map[string]models.OpportunityDetail
	created       *models.Opportunity
	detailReads   int
}

func (m *mockOpportunityRepo) FindByID(ctx context.Context, id string) (*models.Opportunity, error) {
	if o, ok := m.opportunities[id]; ok {
		return &o, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockOpportunityRepo) FindDetailByID(ctx context.Context, id string) (*models.OpportunityDetail, error) {
	m.detailReads++
	if d, ok := m.details[id]; ok {
		return &d, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockOpportunityRepo) List(ctx context.Context, filter models.OpportunityFilter) ([]models.OpportunityDetail, int, error) {
	details := make([]models.OpportunityDetail, 0, len(m.details))
	for _, d := range m.details {
		details = append(details, d)
	}
	return details, len(details), nil
}

func (m *mockOpportunityRepo) Create(ctx context.Context, opp *models.Opportunity) error {
	opp.ID = "opp-new"
	m.created = opp
	return nil
}

type mockCascade struct {
	refunded int
	deleted  []string
}

func (m *mockCascade) DeleteOpportunity(ctx context.Context, opp *models.Opportunity) (int, error) {
	m.deleted = append(m.deleted, opp.ID)
	return m.refunded, nil
}

type mockClassReader struct {
	classes map[string]models.Class
}

func (m *mockClassReader) FindByID(ctx context.Context, id string) (*models.Class, error) {
	if c, ok := m.classes[id]; ok {
		return &c, nil
	}
	return nil, sql.ErrNoRows
}

type mockProjectionCache struct {
	entries  map[string][]byte
	patterns []string
}

func newMockProjectionCache() *mockProjectionCache {
	return &mockProjectionCache{entries: map[string][]byte{}}
}

func (m *mockProjectionCache) Get(ctx context.Context, key string, dest interface{}) error {
	raw, ok := m.entries[key]
	if !ok {
		return sql.ErrNoRows
	}
	return json.Unmarshal(raw, dest)
}

func (m *mockProjectionCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	m.entries[key] = raw
	return nil
}

func (m *mockProjectionCache) DeleteByPattern(ctx context.Context, pattern string) error {
	m.patterns = append(m.patterns, pattern)
	return nil
}

func defaultClasses() *mockClassReader {
	return &mockClassReader{classes: map[string]models.Class{
		"class-1": {ID: "class-1", Name: "Year 10 History", DefaultCapacity: 7},
	}}
}

func TestOpportunityServiceCreate(t *testing.T) {
	repo := &mockOpportunityRepo{}
	svc := NewOpportunityService(repo, &mockCascade{}, defaultClasses(), nil, time.Minute, nil, nil)

	opens := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	opp, err := svc.Create(context.Background(), CreateOpportunityRequest{
		ClassID:   "class-1",
		Title:     "Museum Visit",
		OpensAt:   opens,
		ClosesAt:  opens.Add(72 * time.Hour),
		EventDate: opens.Add(240 * time.Hour),
		Capacity:  12,
	})
	require.NoError(t, err)
	assert.Equal(t, "opp-new", opp.ID)
	assert.Equal(t, 12, opp.Capacity)
	require.NotNil(t, repo.created)
}

func TestOpportunityServiceCreateCapacityDefaultsFromClass(t *testing.T) {
	repo := &mockOpportunityRepo{}
	svc := NewOpportunityService(repo, &mockCascade{}, defaultClasses(), nil, time.Minute, nil, nil)

	opens := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	opp, err := svc.Create(context.Background(), CreateOpportunityRequest{
		ClassID:   "class-1",
		Title:     "Museum Visit",
		OpensAt:   opens,
		ClosesAt:  opens.Add(time.Hour),
		EventDate: opens.Add(48 * time.Hour),
	})
	require.NoError(t, err)
	assert.Equal(t, 7, opp.Capacity)
}

func TestOpportunityServiceCreateEventBeforeClose(t *testing.T) {
	svc := NewOpportunityService(&mockOpportunityRepo{}, &mockCascade{}, defaultClasses(), nil, time.Minute, nil, nil)

	opens := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	_, err := svc.Create(context.Background(), CreateOpportunityRequest{
		ClassID:   "class-1",
		Title:     "Museum Visit",
		OpensAt:   opens,
		ClosesAt:  opens.Add(72 * time.Hour),
		EventDate: opens.Add(time.Hour),
	})
	assertErrorCode(t, err, appErrors.ErrValidation.Code)
}

func TestOpportunityServiceCreateUnknownClass(t *testing.T) {
	svc := NewOpportunityService(&mockOpportunityRepo{}, &mockCascade{}, defaultClasses(), nil, time.Minute, nil, nil)

	opens := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	_, err := svc.Create(context.Background(), CreateOpportunityRequest{
		ClassID:   "class-99",
		Title:     "Museum Visit",
		OpensAt:   opens,
		ClosesAt:  opens.Add(time.Hour),
		EventDate: opens.Add(48 * time.Hour),
	})
	assertErrorCode(t, err, appErrors.ErrNotFound.Code)
}

func TestOpportunityServiceGetCachesDetail(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	repo := &mockOpportunityRepo{details: map[string]models.OpportunityDetail{
		"opp-1": {Opportunity: openOpportunity(now), BidCount: 3},
	}}
	cache := newMockProjectionCache()
	svc := NewOpportunityService(repo, &mockCascade{}, defaultClasses(), cache, time.Minute, nil, nil)

	first, err := svc.Get(context.Background(), "opp-1")
	require.NoError(t, err)
	assert.Equal(t, 3, first.BidCount)
	assert.Equal(t, 1, repo.detailReads)

	second, err := svc.Get(context.Background(), "opp-1")
	require.NoError(t, err)
	assert.Equal(t, 3, second.BidCount)
	assert.Equal(t, 1, repo.detailReads, "second read should be served from cache")
}

func TestOpportunityServiceGetMissing(t *testing.T) {
	svc := NewOpportunityService(&mockOpportunityRepo{}, &mockCascade{}, defaultClasses(), nil, time.Minute, nil, nil)

	_, err := svc.Get(context.Background(), "opp-99")
	assertErrorCode(t, err, appErrors.ErrNotFound.Code)
}

func TestOpportunityServiceDelete(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	repo := &mockOpportunityRepo{opportunities: map[string]models.Opportunity{"opp-1": openOpportunity(now)}}
	cascade := &mockCascade{refunded: 5}
	cache := newMockProjectionCache()
	svc := NewOpportunityService(repo, cascade, defaultClasses(), cache, time.Minute, nil, nil)

	refunded, err := svc.Delete(context.Background(), "opp-1")
	require.NoError(t, err)
	assert.Equal(t, 5, refunded)
	assert.Equal(t, []string{"opp-1"}, cascade.deleted)
	assert.Len(t, cache.patterns, 1)
}
