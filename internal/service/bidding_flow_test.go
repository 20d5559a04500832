package service

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zcahkwn/student-bid-sub000/internal/models"
	appErrors "github.com/zcahkwn/student-bid-sub000/pkg/errors"
)

// fakeLedger is an in-memory stand-in for the repository layer. It applies
// the same admission rules the SQL transactions enforce, serialized by one
// mutex, so service-level flows can be composed and raced without a
// database.
type fakeLedger struct {
	mu            sync.Mutex
	opportunities map[string]models.Opportunity
	enrollments   map[string]*models.Enrollment
	bids          map[string]*models.Bid
	history       []models.TokenHistoryEntry
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{
		opportunities: map[string]models.Opportunity{},
		enrollments:   map[string]*models.Enrollment{},
		bids:          map[string]*models.Bid{},
	}
}

func ledgerKey(a, b string) string { return a + "|" + b }

func (l *fakeLedger) addOpportunity(opp models.Opportunity) {
	l.opportunities[opp.ID] = opp
}

func (l *fakeLedger) enroll(studentID, classID string, tokens int) {
	l.enrollments[ledgerKey(studentID, classID)] = &models.Enrollment{
		ID:              "enroll-" + studentID,
		StudentID:       studentID,
		ClassID:         classID,
		TokensRemaining: tokens,
		BiddingResult:   models.BiddingResultPending,
	}
}

func (l *fakeLedger) tokens(studentID, classID string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.enrollments[ledgerKey(studentID, classID)].TokensRemaining
}

func (l *fakeLedger) result(studentID, classID string) models.BiddingResult {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.enrollments[ledgerKey(studentID, classID)].BiddingResult
}

func (l *fakeLedger) bidStatus(studentID, opportunityID string) (models.BidStatus, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	bid, ok := l.bids[ledgerKey(studentID, opportunityID)]
	if !ok {
		return "", false
	}
	return bid.BidStatus, true
}

func (l *fakeLedger) bidCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.bids)
}

func (l *fakeLedger) historyNet() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	net := 0
	for _, entry := range l.history {
		net += entry.Amount
	}
	return net
}

func (l *fakeLedger) FindByID(ctx context.Context, id string) (*models.Opportunity, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if opp, ok := l.opportunities[id]; ok {
		return &opp, nil
	}
	return nil, sql.ErrNoRows
}

func (l *fakeLedger) FindDetailByID(ctx context.Context, id string) (*models.OpportunityDetail, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	opp, ok := l.opportunities[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	detail := &models.OpportunityDetail{Opportunity: opp}
	for _, bid := range l.bids {
		if bid.OpportunityID == id {
			detail.BidCount++
		}
	}
	return detail, nil
}

func (l *fakeLedger) List(ctx context.Context, filter models.OpportunityFilter) ([]models.OpportunityDetail, int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	details := make([]models.OpportunityDetail, 0, len(l.opportunities))
	for _, opp := range l.opportunities {
		details = append(details, models.OpportunityDetail{Opportunity: opp})
	}
	return details, len(details), nil
}

func (l *fakeLedger) Create(ctx context.Context, opp *models.Opportunity) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if opp.ID == "" {
		opp.ID = fmt.Sprintf("opp-%d", len(l.opportunities)+1)
	}
	l.opportunities[opp.ID] = *opp
	return nil
}

func (l *fakeLedger) FindByStudentAndClass(ctx context.Context, studentID, classID string) (*models.Enrollment, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if enrollment, ok := l.enrollments[ledgerKey(studentID, classID)]; ok {
		copied := *enrollment
		return &copied, nil
	}
	return nil, sql.ErrNoRows
}

func (l *fakeLedger) FindByStudentAndOpportunity(ctx context.Context, studentID, opportunityID string) (*models.Bid, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if bid, ok := l.bids[ledgerKey(studentID, opportunityID)]; ok {
		copied := *bid
		return &copied, nil
	}
	return nil, sql.ErrNoRows
}

func (l *fakeLedger) ListByOpportunity(ctx context.Context, opportunityID string) ([]models.BidderDetail, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var bidders []models.BidderDetail
	for _, bid := range l.bids {
		if bid.OpportunityID == opportunityID {
			bidders = append(bidders, models.BidderDetail{Bid: *bid})
		}
	}
	return bidders, nil
}

func (l *fakeLedger) CountPlaced(ctx context.Context, opportunityID string) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	placed := 0
	for _, bid := range l.bids {
		if bid.OpportunityID == opportunityID && bid.BidStatus == models.BidStatusPlaced {
			placed++
		}
	}
	return placed, nil
}

func (l *fakeLedger) Submit(ctx context.Context, opp *models.Opportunity, studentID string, enforceCapacity bool) (*models.Bid, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	stored, ok := l.opportunities[opp.ID]
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "opportunity not found")
	}
	enrollment, ok := l.enrollments[ledgerKey(studentID, stored.ClassID)]
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrNotEnrolled, "")
	}
	if enrollment.TokensRemaining <= 0 {
		return nil, appErrors.Clone(appErrors.ErrInsufficientTokens, "")
	}
	if _, dup := l.bids[ledgerKey(studentID, opp.ID)]; dup {
		return nil, appErrors.Clone(appErrors.ErrDuplicateBid, "")
	}
	if enforceCapacity {
		placed := 0
		for _, bid := range l.bids {
			if bid.OpportunityID == opp.ID && bid.BidStatus == models.BidStatusPlaced {
				placed++
			}
		}
		if placed >= stored.Capacity {
			return nil, appErrors.Clone(appErrors.ErrCapacityExceeded, "")
		}
	}

	bid := &models.Bid{
		ID:            fmt.Sprintf("bid-%s-%s", studentID, opp.ID),
		StudentID:     studentID,
		OpportunityID: opp.ID,
		BidAmount:     1,
		BidStatus:     models.BidStatusPlaced,
		SubmittedAt:   time.Now().UTC(),
	}
	l.bids[ledgerKey(studentID, opp.ID)] = bid
	enrollment.TokensRemaining--
	l.history = append(l.history, models.TokenHistoryEntry{
		StudentID: studentID, OpportunityID: &bid.OpportunityID, Amount: -1, EntryType: models.TokenEntryBid,
	})
	copied := *bid
	return &copied, nil
}

func (l *fakeLedger) Withdraw(ctx context.Context, opp *models.Opportunity, studentID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	bid, ok := l.bids[ledgerKey(studentID, opp.ID)]
	if !ok {
		return appErrors.Clone(appErrors.ErrBidNotFound, "")
	}
	if bid.IsWinner {
		return appErrors.Clone(appErrors.ErrCannotWithdrawWinner, "")
	}
	delete(l.bids, ledgerKey(studentID, opp.ID))
	enrollment := l.enrollments[ledgerKey(studentID, opp.ClassID)]
	enrollment.TokensRemaining++
	enrollment.BiddingResult = models.BiddingResultPending
	l.history = append(l.history, models.TokenHistoryEntry{
		StudentID: studentID, OpportunityID: &opp.ID, Amount: 1, EntryType: models.TokenEntryRefund,
	})
	return nil
}

func (l *fakeLedger) SelectWinners(ctx context.Context, opp *models.Opportunity, selectedIDs, loserIDs []string) (models.SelectionOutcome, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var outcome models.SelectionOutcome
	for _, studentID := range selectedIDs {
		bid, ok := l.bids[ledgerKey(studentID, opp.ID)]
		if !ok {
			continue
		}
		bid.IsWinner = true
		bid.BidStatus = models.BidStatusSelected
		l.enrollments[ledgerKey(studentID, opp.ClassID)].BiddingResult = models.BiddingResultWon
		outcome.UpdatedWinners++
	}
	for _, studentID := range loserIDs {
		bid, ok := l.bids[ledgerKey(studentID, opp.ID)]
		if !ok {
			continue
		}
		bid.IsWinner = false
		bid.BidStatus = models.BidStatusRejected
		l.enrollments[ledgerKey(studentID, opp.ClassID)].BiddingResult = models.BiddingResultLost
		outcome.UpdatedLosers++
	}
	return outcome, nil
}

func (l *fakeLedger) Reset(ctx context.Context, opp *models.Opportunity) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	count := 0
	for _, bid := range l.bids {
		if bid.OpportunityID != opp.ID {
			continue
		}
		bid.IsWinner = false
		bid.BidStatus = models.BidStatusPlaced
		bid.BidAmount = 1
		l.enrollments[ledgerKey(bid.StudentID, opp.ClassID)].BiddingResult = models.BiddingResultPending
		count++
	}
	return count, nil
}

func (l *fakeLedger) AutoSelectAndRefund(ctx context.Context, opp *models.Opportunity, tokenAllowance int) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	count := 0
	for _, bid := range l.bids {
		if bid.OpportunityID != opp.ID {
			continue
		}
		bid.IsWinner = true
		bid.BidStatus = models.BidStatusAutoSelected
		bid.BidAmount = 0
		enrollment := l.enrollments[ledgerKey(bid.StudentID, opp.ClassID)]
		enrollment.TokensRemaining = tokenAllowance
		enrollment.BiddingResult = models.BiddingResultPending
		l.history = append(l.history, models.TokenHistoryEntry{
			StudentID: bid.StudentID, OpportunityID: &opp.ID, Amount: 1, EntryType: models.TokenEntryRefund,
		})
		count++
	}
	return count, nil
}

func (l *fakeLedger) DeleteOpportunity(ctx context.Context, opp *models.Opportunity) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	refunded := 0
	for key, bid := range l.bids {
		if bid.OpportunityID != opp.ID {
			continue
		}
		enrollment := l.enrollments[ledgerKey(bid.StudentID, opp.ClassID)]
		enrollment.TokensRemaining++
		enrollment.BiddingResult = models.BiddingResultPending
		l.history = append(l.history, models.TokenHistoryEntry{
			StudentID: bid.StudentID, OpportunityID: &opp.ID, Amount: 1, EntryType: models.TokenEntryRefund,
		})
		delete(l.bids, key)
		refunded++
	}
	delete(l.opportunities, opp.ID)
	return refunded, nil
}

func TestBiddingLifecycle(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	ledger := newFakeLedger()
	ledger.addOpportunity(models.Opportunity{
		ID:        "opp-1",
		ClassID:   "class-1",
		Title:     "Museum Visit",
		OpensAt:   now.Add(-time.Hour),
		ClosesAt:  now.Add(time.Hour),
		EventDate: now.Add(48 * time.Hour),
		Capacity:  2,
	})
	ledger.enroll("student-1", "class-1", 1)
	ledger.enroll("student-2", "class-1", 1)

	bidSvc := NewBidService(ledger, ledger, ledger, nil, nil, true, nil, nil)
	bidSvc.now = func() time.Time { return now }
	selectionSvc := NewSelectionService(ledger, ledger, nil, nil, 1, nil, nil)
	opportunitySvc := NewOpportunityService(ledger, ledger, defaultClasses(), nil, time.Minute, nil, nil)
	ctx := context.Background()

	_, err := bidSvc.Submit(ctx, SubmitBidRequest{StudentID: "student-1", OpportunityID: "opp-1"})
	require.NoError(t, err)
	assert.Equal(t, 0, ledger.tokens("student-1", "class-1"))

	_, err = bidSvc.Submit(ctx, SubmitBidRequest{StudentID: "student-1", OpportunityID: "opp-1"})
	assertErrorCode(t, err, appErrors.ErrDuplicateBid.Code)

	_, err = bidSvc.Submit(ctx, SubmitBidRequest{StudentID: "student-2", OpportunityID: "opp-1"})
	require.NoError(t, err)

	outcome, err := selectionSvc.SelectWinners(ctx, "opp-1", SelectWinnersRequest{
		SelectedIDs:  []string{"student-1"},
		AllBidderIDs: []string{"student-1", "student-2"},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, outcome.UpdatedWinners)
	assert.Equal(t, 1, outcome.UpdatedLosers)
	assert.Equal(t, models.BiddingResultWon, ledger.result("student-1", "class-1"))
	assert.Equal(t, models.BiddingResultLost, ledger.result("student-2", "class-1"))
	status, _ := ledger.bidStatus("student-1", "opp-1")
	assert.Equal(t, models.BidStatusSelected, status)

	err = bidSvc.Withdraw(ctx, WithdrawBidRequest{StudentID: "student-1", OpportunityID: "opp-1"})
	assertErrorCode(t, err, appErrors.ErrCannotWithdrawWinner.Code)

	resetCount, err := selectionSvc.Reset(ctx, "opp-1")
	require.NoError(t, err)
	assert.Equal(t, 2, resetCount)
	assert.Equal(t, models.BiddingResultPending, ledger.result("student-1", "class-1"))
	status, _ = ledger.bidStatus("student-1", "opp-1")
	assert.Equal(t, models.BidStatusPlaced, status)
	assert.Equal(t, 0, ledger.tokens("student-1", "class-1"), "reset must not refund tokens")

	refunded, err := opportunitySvc.Delete(ctx, "opp-1")
	require.NoError(t, err)
	assert.Equal(t, 2, refunded)
	assert.Equal(t, 1, ledger.tokens("student-1", "class-1"))
	assert.Equal(t, 1, ledger.tokens("student-2", "class-1"))
	assert.Equal(t, 0, ledger.bidCount())
	assert.Equal(t, 0, ledger.historyNet(), "every debit must have a matching refund")

	_, err = opportunitySvc.Get(ctx, "opp-1")
	assertErrorCode(t, err, appErrors.ErrNotFound.Code)
}

func TestConcurrentSubmitsSingleToken(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	ledger := newFakeLedger()
	const attempts = 8
	for i := 0; i < attempts; i++ {
		ledger.addOpportunity(models.Opportunity{
			ID:        fmt.Sprintf("opp-%d", i),
			ClassID:   "class-1",
			Title:     fmt.Sprintf("Visit %d", i),
			OpensAt:   now.Add(-time.Hour),
			ClosesAt:  now.Add(time.Hour),
			EventDate: now.Add(48 * time.Hour),
			Capacity:  5,
		})
	}
	ledger.enroll("student-1", "class-1", 1)

	bidSvc := NewBidService(ledger, ledger, ledger, nil, nil, true, nil, nil)
	bidSvc.now = func() time.Time { return now }

	errs := make([]error, attempts)
	var wg sync.WaitGroup
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = bidSvc.Submit(context.Background(), SubmitBidRequest{
				StudentID:     "student-1",
				OpportunityID: fmt.Sprintf("opp-%d", i),
			})
		}(i)
	}
	wg.Wait()

	successes := 0
	for _, err := range errs {
		if err == nil {
			successes++
			continue
		}
		assertErrorCode(t, err, appErrors.ErrInsufficientTokens.Code)
	}
	assert.Equal(t, 1, successes, "one token admits exactly one bid")
	assert.Equal(t, 0, ledger.tokens("student-1", "class-1"))
	assert.Equal(t, 1, ledger.bidCount())
}
