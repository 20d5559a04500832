package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/zcahkwn/student-bid-sub000/internal/models"
	"github.com/zcahkwn/student-bid-sub000/internal/service"
	appErrors "github.com/zcahkwn/student-bid-sub000/pkg/errors"
	"github.com/zcahkwn/student-bid-sub000/pkg/response"
)

// OpportunityHandler exposes opportunity endpoints.
type OpportunityHandler struct {
	opportunities *service.OpportunityService
	reports       *service.ReportService
}

// NewOpportunityHandler constructs OpportunityHandler.
func NewOpportunityHandler(opportunities *service.OpportunityService, reports *service.ReportService) *OpportunityHandler {
	return &OpportunityHandler{opportunities: opportunities, reports: reports}
}

// List godoc
// @Summary List opportunities
// @Tags Opportunities
// @Produce json
// @Param classId query string false "Filter by class"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /opportunities [get]
func (h *OpportunityHandler) List(c *gin.Context) {
	var filter models.OpportunityFilter
	filter.ClassID = c.Query("classId")
	if page, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil {
		filter.Page = page
	}
	if size, err := strconv.Atoi(c.DefaultQuery("limit", "20")); err == nil {
		filter.PageSize = size
	}
	filter.SortBy = c.Query("sort")
	filter.SortOrder = c.Query("order")

	opportunities, pagination, err := h.opportunities.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, opportunities, pagination)
}

// Get godoc
// @Summary Get opportunity detail with derived status
// @Tags Opportunities
// @Produce json
// @Param id path string true "Opportunity ID"
// @Success 200 {object} response.Envelope
// @Router /opportunities/{id} [get]
func (h *OpportunityHandler) Get(c *gin.Context) {
	detail, err := h.opportunities.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, detail, nil)
}

// Create godoc
// @Summary Create opportunity
// @Tags Opportunities
// @Accept json
// @Produce json
// @Param payload body service.CreateOpportunityRequest true "Opportunity payload"
// @Success 201 {object} response.Envelope
// @Router /opportunities [post]
func (h *OpportunityHandler) Create(c *gin.Context) {
	var req service.CreateOpportunityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	opp, err := h.opportunities.Create(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, opp)
}

// Delete godoc
// @Summary Delete opportunity, refunding every bidder
// @Tags Opportunities
// @Produce json
// @Param id path string true "Opportunity ID"
// @Success 200 {object} response.Envelope
// @Router /opportunities/{id} [delete]
func (h *OpportunityHandler) Delete(c *gin.Context) {
	refunded, err := h.opportunities.Delete(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"refunded_bidders": refunded}, nil)
}

// Report godoc
// @Summary Download the selection report
// @Tags Opportunities
// @Produce text/csv
// @Produce application/pdf
// @Param id path string true "Opportunity ID"
// @Param format query string false "csv or pdf" default(csv)
// @Success 200 {file} file
// @Router /opportunities/{id}/report [get]
func (h *OpportunityHandler) Report(c *gin.Context) {
	format := service.ReportFormat(c.DefaultQuery("format", "csv"))
	report, err := h.reports.SelectionReport(c.Request.Context(), c.Param("id"), format)
	if err != nil {
		response.Error(c, err)
		return
	}
	if report.DownloadToken != "" {
		c.Header("X-Report-Token", report.DownloadToken)
	}
	c.Header("Content-Disposition", "attachment; filename="+report.FileName)
	c.Data(http.StatusOK, report.ContentType, report.Content)
}

// DownloadReport godoc
// @Summary Download an archived report via a signed token
// @Tags Opportunities
// @Produce text/csv
// @Produce application/pdf
// @Param token query string true "Signed download token"
// @Success 200 {file} file
// @Router /reports/download [get]
func (h *OpportunityHandler) DownloadReport(c *gin.Context) {
	filePath, fileName, contentType, err := h.reports.OpenArchived(c.Query("token"))
	if err != nil {
		response.Error(c, err)
		return
	}
	c.Header("Content-Type", contentType)
	c.FileAttachment(filePath, fileName)
}
