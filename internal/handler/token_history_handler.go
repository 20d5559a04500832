package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/zcahkwn/student-bid-sub000/internal/models"
	"github.com/zcahkwn/student-bid-sub000/internal/service"
	"github.com/zcahkwn/student-bid-sub000/pkg/response"
)

// TokenHistoryHandler exposes the token audit trail.
type TokenHistoryHandler struct {
	history *service.TokenHistoryService
}

// NewTokenHistoryHandler constructs TokenHistoryHandler.
func NewTokenHistoryHandler(history *service.TokenHistoryService) *TokenHistoryHandler {
	return &TokenHistoryHandler{history: history}
}

// List godoc
// @Summary List token history entries
// @Tags TokenHistory
// @Produce json
// @Param studentId query string false "Filter by student"
// @Param opportunityId query string false "Filter by opportunity"
// @Param type query string false "Filter by entry type"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /token-history [get]
func (h *TokenHistoryHandler) List(c *gin.Context) {
	var filter models.TokenHistoryFilter
	filter.StudentID = c.Query("studentId")
	filter.OpportunityID = c.Query("opportunityId")
	filter.EntryType = models.TokenEntryType(c.Query("type"))
	if page, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil {
		filter.Page = page
	}
	if size, err := strconv.Atoi(c.DefaultQuery("limit", "20")); err == nil {
		filter.PageSize = size
	}

	entries, pagination, err := h.history.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, entries, pagination)
}
