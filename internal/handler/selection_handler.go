package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/zcahkwn/student-bid-sub000/internal/service"
	appErrors "github.com/zcahkwn/student-bid-sub000/pkg/errors"
	"github.com/zcahkwn/student-bid-sub000/pkg/response"
)

// SelectionHandler exposes winner selection, reset and auto-selection.
type SelectionHandler struct {
	selections *service.SelectionService
}

// NewSelectionHandler constructs SelectionHandler.
func NewSelectionHandler(selections *service.SelectionService) *SelectionHandler {
	return &SelectionHandler{selections: selections}
}

// Select godoc
// @Summary Select winners among the bidders
// @Tags Selection
// @Accept json
// @Produce json
// @Param id path string true "Opportunity ID"
// @Param payload body service.SelectWinnersRequest true "Selection payload"
// @Success 200 {object} response.Envelope
// @Router /opportunities/{id}/selection [post]
func (h *SelectionHandler) Select(c *gin.Context) {
	var req service.SelectWinnersRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	outcome, err := h.selections.SelectWinners(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, outcome, nil)
}

// Reset godoc
// @Summary Reset a selection back to the pre-selection state
// @Tags Selection
// @Produce json
// @Param id path string true "Opportunity ID"
// @Success 200 {object} response.Envelope
// @Router /opportunities/{id}/selection [delete]
func (h *SelectionHandler) Reset(c *gin.Context) {
	count, err := h.selections.Reset(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"reset_count": count}, nil)
}

// AutoSelect godoc
// @Summary Mark every bidder as winner and restore token allowances
// @Tags Selection
// @Produce json
// @Param id path string true "Opportunity ID"
// @Success 200 {object} response.Envelope
// @Router /opportunities/{id}/auto-selection [post]
func (h *SelectionHandler) AutoSelect(c *gin.Context) {
	count, err := h.selections.AutoSelectAndRefund(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"selected_count": count}, nil)
}
