package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/zcahkwn/student-bid-sub000/internal/models"
	"github.com/zcahkwn/student-bid-sub000/internal/service"
	appErrors "github.com/zcahkwn/student-bid-sub000/pkg/errors"
	"github.com/zcahkwn/student-bid-sub000/pkg/response"
)

// BidHandler exposes bid submission and withdrawal.
type BidHandler struct {
	bids *service.BidService
}

// NewBidHandler constructs BidHandler.
func NewBidHandler(bids *service.BidService) *BidHandler {
	return &BidHandler{bids: bids}
}

// Submit godoc
// @Summary Submit a bid on an opportunity
// @Tags Bids
// @Accept json
// @Produce json
// @Param payload body service.SubmitBidRequest true "Bid payload"
// @Success 201 {object} response.Envelope
// @Router /bids [post]
func (h *BidHandler) Submit(c *gin.Context) {
	var req service.SubmitBidRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	if !mayActFor(c, req.StudentID) {
		response.Error(c, appErrors.ErrForbidden)
		return
	}
	bid, err := h.bids.Submit(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, bid)
}

// Withdraw godoc
// @Summary Withdraw a bid and refund the token
// @Tags Bids
// @Accept json
// @Produce json
// @Param payload body service.WithdrawBidRequest true "Withdrawal payload"
// @Success 204
// @Router /bids [delete]
func (h *BidHandler) Withdraw(c *gin.Context) {
	var req service.WithdrawBidRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	if !mayActFor(c, req.StudentID) {
		response.Error(c, appErrors.ErrForbidden)
		return
	}
	if err := h.bids.Withdraw(c.Request.Context(), req); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// mayActFor reports whether the caller may bid on behalf of the student.
// Admins may act for anyone; students only for themselves.
func mayActFor(c *gin.Context, studentID string) bool {
	claims := claimsFromContext(c)
	if claims == nil {
		return false
	}
	if claims.Role == models.RoleAdmin {
		return true
	}
	return claims.ActorID == studentID
}

// ListBidders godoc
// @Summary List bidders on an opportunity
// @Tags Bids
// @Produce json
// @Param id path string true "Opportunity ID"
// @Success 200 {object} response.Envelope
// @Router /opportunities/{id}/bidders [get]
func (h *BidHandler) ListBidders(c *gin.Context) {
	bidders, err := h.bids.ListBidders(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, bidders, nil)
}
