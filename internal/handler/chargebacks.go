package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"payouts/internal/repository"
	"payouts/internal/service"
)

// ChargebackHandler exposes the dispute list, the gateway webhook intake and
// the manual resolution endpoint.
type ChargebackHandler struct {
	Repo    repository.Repository
	Service *service.ChargebackService
}

func (h *ChargebackHandler) Register(r *gin.Engine) {
	g := r.Group("/api/v1/chargebacks")
	g.GET("", h.list)
	g.POST("/webhook", h.webhook)
	g.POST("/:id/resolve", h.resolve)
}

func (h *ChargebackHandler) list(c *gin.Context) {
	if h.Repo == nil {
		Error(c, http.StatusInternalServerError, "repo unavailable", nil)
		return
	}
	limit := intQuery(c, "limit", 50)
	offset := intQuery(c, "offset", 0)
	params := repository.ListChargebacksParams{
		Limit:          limit,
		Offset:         offset,
		Status:         stringQueryPtr(c, "status"),
		OrganizationID: uint64QueryPtr(c, "organization_id"),
		EventID:        uint64QueryPtr(c, "event_id"),
		OrderBy:        "created_at",
		Asc:            boolPtr(false),
	}
	if val := c.Query("deducted"); val == "true" || val == "false" {
		params.Deducted = boolPtr(val == "true")
	}
	items, err := h.Repo.ListChargebacks(c.Request.Context(), params)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	total, err := h.Repo.CountChargebacks(c.Request.Context(), params)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	Ok(c, items, paginationMeta(limit, offset, total))
}

type disputeWebhookRequest struct {
	DisputeID      string  `json:"dispute_id" binding:"required"`
	OrganizationID uint64  `json:"organization_id" binding:"required"`
	EventID        *uint64 `json:"event_id"`
	Amount         string  `json:"amount" binding:"required"`
	Currency       string  `json:"currency"`
	Reason         string  `json:"reason"`
}

// webhook ingests a gateway dispute notification. Deliveries repeat, so the
// write is idempotent on dispute_id and replays return the stored row.
func (h *ChargebackHandler) webhook(c *gin.Context) {
	if h.Service == nil {
		Error(c, http.StatusInternalServerError, "chargeback service unavailable", nil)
		return
	}
	var req disputeWebhookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Error(c, http.StatusBadRequest, "invalid body", nil)
		return
	}
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		Error(c, http.StatusBadRequest, "invalid amount", nil)
		return
	}
	stored, err := h.Service.RecordDispute(c.Request.Context(), service.DisputeInput{
		OrganizationID:   req.OrganizationID,
		EventID:          req.EventID,
		Amount:           amount,
		Currency:         req.Currency,
		Reason:           req.Reason,
		GatewayDisputeID: req.DisputeID,
	})
	if err != nil {
		Error(c, http.StatusBadRequest, err.Error(), nil)
		return
	}
	Ok(c, stored, nil)
}

type resolveDisputeRequest struct {
	Status string `json:"status" binding:"required"`
}

func (h *ChargebackHandler) resolve(c *gin.Context) {
	if h.Service == nil {
		Error(c, http.StatusInternalServerError, "chargeback service unavailable", nil)
		return
	}
	id := uint64Param(c, "id")
	if id == 0 {
		Error(c, http.StatusBadRequest, "invalid id", nil)
		return
	}
	var req resolveDisputeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Error(c, http.StatusBadRequest, "invalid body", nil)
		return
	}
	item, err := h.Service.ResolveDispute(c.Request.Context(), id, req.Status, time.Now().UTC())
	if err != nil {
		switch {
		case errors.Is(err, service.ErrNotFound):
			Error(c, http.StatusNotFound, err.Error(), nil)
		case errors.Is(err, service.ErrInvalidState):
			Error(c, http.StatusConflict, err.Error(), nil)
		default:
			Error(c, http.StatusBadGateway, err.Error(), nil)
		}
		return
	}
	Ok(c, item, nil)
}
