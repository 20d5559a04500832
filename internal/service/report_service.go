package service

import (
	"context"
	"database/sql"
	"fmt"
	"path"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/zcahkwn/student-bid-sub000/internal/models"
	appErrors "github.com/zcahkwn/student-bid-sub000/pkg/errors"
	"github.com/zcahkwn/student-bid-sub000/pkg/export"
	"github.com/zcahkwn/student-bid-sub000/pkg/storage"
)

type bidderLister interface {
	ListByOpportunity(ctx context.Context, opportunityID string) ([]models.BidderDetail, error)
}

// ReportFormat selects the rendering of a selection report.
type ReportFormat string

const (
	ReportFormatCSV ReportFormat = "csv"
	ReportFormatPDF ReportFormat = "pdf"
)

// Report is a rendered export with its transport metadata. DownloadToken
// is set when the report was archived and can be fetched again later.
type Report struct {
	FileName      string
	ContentType   string
	Content       []byte
	DownloadToken string
	TokenExpires  time.Time
}

// ReportService renders the selection outcome of an opportunity as a
// downloadable table. Rendered reports are archived on disk so they can be
// re-downloaded through a signed link without re-rendering.
type ReportService struct {
	opportunities opportunityReader
	bidders       bidderLister
	csv           *export.CSVExporter
	pdf           *export.PDFExporter
	archive       *storage.LocalStorage
	signer        *storage.SignedURLSigner
	logger        *zap.Logger
}

// NewReportService constructs ReportService. Archive and signer may be nil,
// in which case reports are rendered on every request and never persisted.
func NewReportService(opportunities opportunityReader, bidders bidderLister, archive *storage.LocalStorage, signer *storage.SignedURLSigner, logger *zap.Logger) *ReportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReportService{
		opportunities: opportunities,
		bidders:       bidders,
		csv:           export.NewCSVExporter(),
		pdf:           export.NewPDFExporter(),
		archive:       archive,
		signer:        signer,
		logger:        logger,
	}
}

// SelectionReport produces the bidder table for one opportunity in the
// requested format.
func (s *ReportService) SelectionReport(ctx context.Context, opportunityID string, format ReportFormat) (*Report, error) {
	opp, err := s.opportunities.FindByID(ctx, opportunityID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "opportunity not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load opportunity")
	}

	bidders, err := s.bidders.ListByOpportunity(ctx, opportunityID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list bidders")
	}

	dataset := export.Dataset{
		Headers: []string{"Student Number", "Student Name", "Bid Status", "Winner", "Submitted At"},
	}
	for _, bidder := range bidders {
		dataset.Rows = append(dataset.Rows, map[string]string{
			"Student Number": bidder.StudentNumber,
			"Student Name":   bidder.StudentName,
			"Bid Status":     string(bidder.BidStatus),
			"Winner":         strconv.FormatBool(bidder.IsWinner),
			"Submitted At":   bidder.SubmittedAt.UTC().Format(time.RFC3339),
		})
	}

	stamp := time.Now().UTC().Format("20060102")
	var report *Report
	switch format {
	case ReportFormatPDF:
		content, err := s.pdf.Render(dataset, fmt.Sprintf("Selection Report: %s", opp.Title))
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render report")
		}
		report = &Report{
			FileName:    fmt.Sprintf("selection-%s-%s.pdf", opp.ID, stamp),
			ContentType: "application/pdf",
			Content:     content,
		}
	case ReportFormatCSV, "":
		content, err := s.csv.Render(dataset)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render report")
		}
		report = &Report{
			FileName:    fmt.Sprintf("selection-%s-%s.csv", opp.ID, stamp),
			ContentType: "text/csv",
			Content:     content,
		}
	default:
		return nil, appErrors.Clone(appErrors.ErrValidation, "unsupported report format")
	}

	s.archiveReport(opp.ID, report)
	return report, nil
}

// OpenArchived resolves a signed download token to the archived file.
func (s *ReportService) OpenArchived(token string) (filePath, fileName, contentType string, err error) {
	if s.archive == nil || s.signer == nil {
		return "", "", "", appErrors.Clone(appErrors.ErrNotFound, "report archive disabled")
	}
	_, relPath, _, err := s.signer.Parse(token, false)
	if err != nil {
		return "", "", "", appErrors.Clone(appErrors.ErrForbidden, "invalid or expired download token")
	}
	fileName = path.Base(relPath)
	contentType = "text/csv"
	if strings.HasSuffix(fileName, ".pdf") {
		contentType = "application/pdf"
	}
	return s.archive.Path(relPath), fileName, contentType, nil
}

func (s *ReportService) archiveReport(opportunityID string, report *Report) {
	if s.archive == nil || s.signer == nil {
		return
	}
	relPath := path.Join("selection", report.FileName)
	if _, err := s.archive.Save(relPath, report.Content); err != nil {
		s.logger.Warn("report_archive_failed", zap.String("opportunity_id", opportunityID), zap.Error(err))
		return
	}
	token, expires, err := s.signer.Generate(opportunityID, relPath)
	if err != nil {
		s.logger.Warn("report_token_failed", zap.String("opportunity_id", opportunityID), zap.Error(err))
		return
	}
	report.DownloadToken = token
	report.TokenExpires = expires
}
