package handler

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"payouts/internal/repository"
	"payouts/internal/service"
)

// SettingsHandler reads and flips the DB-stored runtime switches. Writes are
// restricted to known keys so a typo cannot mint a switch nothing reads.
type SettingsHandler struct {
	Repo     repository.Repository
	Settings *service.SystemSettingsService
}

func (h *SettingsHandler) Register(r *gin.Engine) {
	g := r.Group("/api/v1/settings")
	g.GET("/switches", h.list)
	g.PUT("/switches/:key", h.update)
}

func (h *SettingsHandler) list(c *gin.Context) {
	if h.Repo == nil {
		Error(c, http.StatusInternalServerError, "repo unavailable", nil)
		return
	}
	items, err := h.Repo.ListSystemSettings(c.Request.Context(), repository.ListSystemSettingsParams{
		Limit:   intQuery(c, "limit", 100),
		Offset:  intQuery(c, "offset", 0),
		Prefix:  stringQueryPtr(c, "prefix"),
		OrderBy: "key",
		Asc:     boolPtr(true),
	})
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	Ok(c, items, nil)
}

type switchUpdateRequest struct {
	Enabled *bool `json:"enabled" binding:"required"`
}

func (h *SettingsHandler) update(c *gin.Context) {
	if h.Settings == nil {
		Error(c, http.StatusInternalServerError, "settings service unavailable", nil)
		return
	}
	key := strings.TrimSpace(c.Param("key"))
	if !knownSwitch(key) {
		Error(c, http.StatusBadRequest, "unknown switch key", nil)
		return
	}
	var req switchUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Enabled == nil {
		Error(c, http.StatusBadRequest, "invalid body", nil)
		return
	}
	if err := h.Settings.SetEnabled(c.Request.Context(), key, *req.Enabled); err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	Ok(c, map[string]any{"key": key, "enabled": *req.Enabled}, nil)
}

func knownSwitch(key string) bool {
	if key == service.SettingPlatformFreeMode {
		return true
	}
	_, ok := service.DefaultFeatureSwitches()[key]
	return ok
}
