package handler

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"payouts/internal/lifecycle"
	"payouts/internal/repository"
	"payouts/internal/service"
)

// PayoutHandler is the admin read surface over payouts plus the review
// actions. Approve/reject delegate to the review workflow so the state
// machine guard applies on this path too.
type PayoutHandler struct {
	Repo   repository.Repository
	Review *service.ReviewWorkflowService
}

func (h *PayoutHandler) Register(r *gin.Engine) {
	g := r.Group("/api/v1/payouts")
	g.GET("", h.list)
	g.GET("/review-queue", h.reviewQueue)
	g.GET("/:id", h.get)
	g.GET("/:id/ledger", h.ledger)
	g.POST("/:id/approve", h.approve)
	g.POST("/:id/reject", h.reject)
}

func (h *PayoutHandler) list(c *gin.Context) {
	if h.Repo == nil {
		Error(c, http.StatusInternalServerError, "repo unavailable", nil)
		return
	}
	limit := intQuery(c, "limit", 50)
	offset := intQuery(c, "offset", 0)
	status := stringQueryPtr(c, "status")
	if status != nil && !lifecycle.Valid(*status) {
		Error(c, http.StatusBadRequest, "unknown status", nil)
		return
	}
	params := repository.ListPayoutsParams{
		Limit:          limit,
		Offset:         offset,
		Status:         status,
		OrganizationID: uint64QueryPtr(c, "organization_id"),
		EventID:        uint64QueryPtr(c, "event_id"),
		Currency:       stringQueryPtr(c, "currency"),
		OrderBy:        "created_at",
		Asc:            boolPtr(false),
	}
	items, err := h.Repo.ListPayouts(c.Request.Context(), params)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	total, err := h.Repo.CountPayouts(c.Request.Context(), params)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	Ok(c, items, paginationMeta(limit, offset, total))
}

func (h *PayoutHandler) reviewQueue(c *gin.Context) {
	if h.Repo == nil {
		Error(c, http.StatusInternalServerError, "repo unavailable", nil)
		return
	}
	limit := intQuery(c, "limit", 50)
	offset := intQuery(c, "offset", 0)
	held := lifecycle.StatusHeld
	params := repository.ListPayoutsParams{
		Limit:          limit,
		Offset:         offset,
		Status:         &held,
		RequiresReview: boolPtr(true),
		OrderBy:        "created_at",
		Asc:            boolPtr(true), // oldest waiting first
	}
	items, err := h.Repo.ListPayouts(c.Request.Context(), params)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	total, err := h.Repo.CountPayouts(c.Request.Context(), params)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	Ok(c, items, paginationMeta(limit, offset, total))
}

func (h *PayoutHandler) get(c *gin.Context) {
	if h.Repo == nil {
		Error(c, http.StatusInternalServerError, "repo unavailable", nil)
		return
	}
	id := uint64Param(c, "id")
	if id == 0 {
		Error(c, http.StatusBadRequest, "invalid id", nil)
		return
	}
	payout, err := h.Repo.GetPayoutByID(c.Request.Context(), id)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	if payout == nil {
		Error(c, http.StatusNotFound, "payout not found", nil)
		return
	}
	org, _ := h.Repo.GetOrganizationByID(c.Request.Context(), payout.OrganizationID)
	event, _ := h.Repo.GetAuctionEventByID(c.Request.Context(), payout.EventID)
	Ok(c, map[string]any{
		"payout":       payout,
		"organization": org,
		"event":        event,
	}, nil)
}

func (h *PayoutHandler) ledger(c *gin.Context) {
	if h.Repo == nil {
		Error(c, http.StatusInternalServerError, "repo unavailable", nil)
		return
	}
	id := uint64Param(c, "id")
	if id == 0 {
		Error(c, http.StatusBadRequest, "invalid id", nil)
		return
	}
	payout, err := h.Repo.GetPayoutByID(c.Request.Context(), id)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	if payout == nil {
		Error(c, http.StatusNotFound, "payout not found", nil)
		return
	}
	entries, err := h.Repo.ListReserveLedgerEntries(c.Request.Context(), id)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	disposed, err := h.Repo.SumReserveDisposals(c.Request.Context(), id)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	Ok(c, map[string]any{
		"reserve_amount": payout.ReserveAmount,
		"disposed":       disposed,
		"remaining":      payout.ReserveAmount.Sub(disposed),
		"entries":        entries,
	}, nil)
}

type reviewActionRequest struct {
	AdminID string `json:"admin_id"`
	Notes   string `json:"notes"`
	Reason  string `json:"reason"`
}

func (h *PayoutHandler) approve(c *gin.Context) {
	if h.Review == nil {
		Error(c, http.StatusInternalServerError, "review service unavailable", nil)
		return
	}
	id := uint64Param(c, "id")
	if id == 0 {
		Error(c, http.StatusBadRequest, "invalid id", nil)
		return
	}
	var req reviewActionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Error(c, http.StatusBadRequest, "invalid body", nil)
		return
	}
	if strings.TrimSpace(req.AdminID) == "" {
		Error(c, http.StatusBadRequest, "admin_id is required", nil)
		return
	}
	payout, err := h.Review.ApprovePayout(c.Request.Context(), id, req.AdminID, req.Notes)
	if err != nil {
		respondReviewError(c, err)
		return
	}
	Ok(c, payout, nil)
}

func (h *PayoutHandler) reject(c *gin.Context) {
	if h.Review == nil {
		Error(c, http.StatusInternalServerError, "review service unavailable", nil)
		return
	}
	id := uint64Param(c, "id")
	if id == 0 {
		Error(c, http.StatusBadRequest, "invalid id", nil)
		return
	}
	var req reviewActionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Error(c, http.StatusBadRequest, "invalid body", nil)
		return
	}
	if strings.TrimSpace(req.AdminID) == "" {
		Error(c, http.StatusBadRequest, "admin_id is required", nil)
		return
	}
	if strings.TrimSpace(req.Reason) == "" {
		Error(c, http.StatusBadRequest, "reason is required", nil)
		return
	}
	payout, err := h.Review.RejectPayout(c.Request.Context(), id, req.AdminID, req.Reason)
	if err != nil {
		respondReviewError(c, err)
		return
	}
	Ok(c, payout, nil)
}

func respondReviewError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrNotFound):
		Error(c, http.StatusNotFound, err.Error(), nil)
	case errors.Is(err, service.ErrInvalidState), errors.Is(err, lifecycle.ErrIllegalTransition):
		Error(c, http.StatusConflict, err.Error(), nil)
	default:
		Error(c, http.StatusBadGateway, err.Error(), nil)
	}
}
