package service

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zcahkwn/student-bid-sub000/internal/models"
	appErrors "github.com/zcahkwn/student-bid-sub000/pkg/errors"
	"github.com/zcahkwn/student-bid-sub000/pkg/storage"
)

func reportFixtures(now time.Time) (*mockOpportunityReader, *mockBidRepo) {
	opps := &mockOpportunityReader{opportunities: map[string]models.Opportunity{"opp-1": openOpportunity(now)}}
	bids := &mockBidRepo{bidderList: []models.BidderDetail{
		{
			Bid:           models.Bid{StudentID: "student-1", OpportunityID: "opp-1", BidStatus: models.BidStatusSelected, IsWinner: true, SubmittedAt: now},
			StudentName:   "Ada Lovelace",
			StudentNumber: "S001",
		},
		{
			Bid:           models.Bid{StudentID: "student-2", OpportunityID: "opp-1", BidStatus: models.BidStatusRejected, SubmittedAt: now},
			StudentName:   "Alan Turing",
			StudentNumber: "S002",
		},
	}}
	return opps, bids
}

func TestReportServiceSelectionReportCSV(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	opps, bids := reportFixtures(now)
	svc := NewReportService(opps, bids, nil, nil, nil)

	report, err := svc.SelectionReport(context.Background(), "opp-1", ReportFormatCSV)
	require.NoError(t, err)
	assert.Equal(t, "text/csv", report.ContentType)
	assert.True(t, strings.HasSuffix(report.FileName, ".csv"))
	assert.Empty(t, report.DownloadToken)

	body := string(report.Content)
	assert.Contains(t, body, "Student Number,Student Name,Bid Status,Winner,Submitted At")
	assert.Contains(t, body, "S001,Ada Lovelace,SELECTED,true")
	assert.Contains(t, body, "S002,Alan Turing,REJECTED,false")
}

func TestReportServiceSelectionReportPDF(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	opps, bids := reportFixtures(now)
	svc := NewReportService(opps, bids, nil, nil, nil)

	report, err := svc.SelectionReport(context.Background(), "opp-1", ReportFormatPDF)
	require.NoError(t, err)
	assert.Equal(t, "application/pdf", report.ContentType)
	assert.True(t, strings.HasSuffix(report.FileName, ".pdf"))
	assert.True(t, strings.HasPrefix(string(report.Content), "%PDF"))
}

func TestReportServiceSelectionReportUnknownFormat(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	opps, bids := reportFixtures(now)
	svc := NewReportService(opps, bids, nil, nil, nil)

	_, err := svc.SelectionReport(context.Background(), "opp-1", ReportFormat("xlsx"))
	assertErrorCode(t, err, appErrors.ErrValidation.Code)
}

func TestReportServiceArchiveRoundTrip(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	opps, bids := reportFixtures(now)

	dir := t.TempDir()
	archive, err := storage.NewLocalStorage(dir)
	require.NoError(t, err)
	signer := storage.NewSignedURLSigner("test-secret", time.Hour)
	svc := NewReportService(opps, bids, archive, signer, nil)

	report, err := svc.SelectionReport(context.Background(), "opp-1", ReportFormatCSV)
	require.NoError(t, err)
	require.NotEmpty(t, report.DownloadToken)
	assert.WithinDuration(t, time.Now().Add(time.Hour), report.TokenExpires, time.Minute)

	filePath, fileName, contentType, err := svc.OpenArchived(report.DownloadToken)
	require.NoError(t, err)
	assert.Equal(t, report.FileName, fileName)
	assert.Equal(t, "text/csv", contentType)

	archived, err := os.ReadFile(filePath)
	require.NoError(t, err)
	assert.Equal(t, report.Content, archived)
}

func TestReportServiceOpenArchivedBadToken(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	opps, bids := reportFixtures(now)

	archive, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	signer := storage.NewSignedURLSigner("test-secret", time.Hour)
	svc := NewReportService(opps, bids, archive, signer, nil)

	_, _, _, err = svc.OpenArchived("not-a-valid-token")
	assertErrorCode(t, err, appErrors.ErrForbidden.Code)
}
