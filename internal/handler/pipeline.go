package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"payouts/internal/models"
	"payouts/internal/repository"
	"payouts/internal/service"
)

// PipelineHandler lets operators kick the periodic jobs by hand and inspect
// run history. Manual triggers run synchronously so the caller gets the
// counters of the run they caused, not a fire-and-forget ack.
type PipelineHandler struct {
	Repo      repository.Repository
	Finalizer *service.PayoutFinalizerService
	Sweep     *service.EligibilitySweepService
	Processor *service.PayoutProcessorService
	Reserve   *service.ReserveReleaseService
}

func (h *PipelineHandler) Register(r *gin.Engine) {
	g := r.Group("/api/v1")
	g.POST("/payouts/finalize", h.finalize)
	g.POST("/payouts/sweep", h.sweep)
	g.POST("/payouts/process", h.process)
	g.POST("/reserves/process", h.releaseReserves)
	g.GET("/runs", h.runs)
}

func (h *PipelineHandler) finalize(c *gin.Context) {
	if h.Finalizer == nil {
		Error(c, http.StatusInternalServerError, "finalizer unavailable", nil)
		return
	}
	result, err := h.Finalizer.RunOnce(c.Request.Context(), models.RunTriggerManual)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	Ok(c, result, nil)
}

func (h *PipelineHandler) sweep(c *gin.Context) {
	if h.Sweep == nil {
		Error(c, http.StatusInternalServerError, "sweep unavailable", nil)
		return
	}
	result, err := h.Sweep.RunOnce(c.Request.Context(), models.RunTriggerManual)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	Ok(c, result, nil)
}

func (h *PipelineHandler) process(c *gin.Context) {
	if h.Processor == nil {
		Error(c, http.StatusInternalServerError, "processor unavailable", nil)
		return
	}
	result, err := h.Processor.ProcessEligiblePayouts(c.Request.Context(), models.RunTriggerManual)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	Ok(c, result, nil)
}

func (h *PipelineHandler) releaseReserves(c *gin.Context) {
	if h.Reserve == nil {
		Error(c, http.StatusInternalServerError, "reserve service unavailable", nil)
		return
	}
	result, err := h.Reserve.ProcessReserveReleases(c.Request.Context(), models.RunTriggerManual)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	Ok(c, result, nil)
}

func (h *PipelineHandler) runs(c *gin.Context) {
	if h.Repo == nil {
		Error(c, http.StatusInternalServerError, "repo unavailable", nil)
		return
	}
	limit := intQuery(c, "limit", 50)
	offset := intQuery(c, "offset", 0)
	items, err := h.Repo.ListPayoutRuns(c.Request.Context(), repository.ListPayoutRunsParams{
		Limit:   limit,
		Offset:  offset,
		Job:     stringQueryPtr(c, "job"),
		Trigger: stringQueryPtr(c, "trigger"),
		OrderBy: "started_at",
		Asc:     boolPtr(false),
	})
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	Ok(c, items, map[string]any{"limit": limit, "offset": offset})
}
