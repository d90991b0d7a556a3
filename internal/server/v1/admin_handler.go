package v1

import (
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/proapi/proapi/internal/config"
	"github.com/proapi/proapi/internal/gateway"
	"github.com/proapi/proapi/internal/store"
	"github.com/proapi/proapi/pkg/api"
	"go.uber.org/zap"
)

// AdminHandler serves the operational endpoints: config reload and, when a
// store is attached, request log queries.
type AdminHandler struct {
	service *gateway.Service
	loader  *config.Loader
	repo    store.Repository
	logger  *zap.Logger
}

func NewAdminHandler(service *gateway.Service, loader *config.Loader, repo store.Repository, logger *zap.Logger) *AdminHandler {
	return &AdminHandler{
		service: service,
		loader:  loader,
		repo:    repo,
		logger:  logger,
	}
}

// Reload re-reads the manifest and swaps the routing table. A manifest that
// fails to parse leaves the current table untouched.
func (h *AdminHandler) Reload(c *gin.Context) {
	cfg, err := h.loader.Load()
	if err != nil {
		_ = c.Error(err)
		return
	}

	h.service.Reload(cfg)
	h.logger.Info("config reloaded",
		zap.Int("providers", len(cfg.Providers)),
		zap.Int("tokens", len(cfg.Tokens)),
	)

	c.JSON(http.StatusOK, gin.H{
		"status":    "ok",
		"providers": len(cfg.Providers),
		"models":    len(h.service.Snapshot().ModelNames()),
	})
}

// RecentLogs returns the latest request logs, newest first.
func (h *AdminHandler) RecentLogs(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if err != nil || limit < 1 || limit > 1000 {
		_ = c.Error(api.ValidationError(map[string]string{"limit": "must be an integer between 1 and 1000"}))
		return
	}

	logs, err := h.repo.Requests().GetRecent(c.Request.Context(), limit)
	if err != nil {
		_ = c.Error(api.InternalError("Failed to query request logs", err))
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": logs})
}

// LogByID returns one request log by its correlation id.
func (h *AdminHandler) LogByID(c *gin.Context) {
	entry, err := h.repo.Requests().GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			_ = c.Error(api.NewError(http.StatusNotFound, "Not Found",
				fmt.Sprintf("No request log with id %q", c.Param("id"))))
			return
		}
		_ = c.Error(api.InternalError("Failed to query request log", err))
		return
	}

	c.JSON(http.StatusOK, entry)
}

// DailyStats returns per-day aggregates over the trailing window.
func (h *AdminHandler) DailyStats(c *gin.Context) {
	days, err := strconv.Atoi(c.DefaultQuery("days", "7"))
	if err != nil || days < 1 || days > 90 {
		_ = c.Error(api.ValidationError(map[string]string{"days": "must be an integer between 1 and 90"}))
		return
	}

	stats, err := h.repo.Requests().GetDailyStats(c.Request.Context(), days)
	if err != nil {
		_ = c.Error(api.InternalError("Failed to query daily stats", err))
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": stats})
}
