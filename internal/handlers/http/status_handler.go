package http

import (
	"net/http"
	"strconv"

	"telecare/internal/core/domain"
	"telecare/internal/core/services"
	"telecare/internal/infrastructure/monitoring"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// CallController is the slice of the orchestrator the diagnostics API needs.
type CallController interface {
	State() domain.CallState
	MediaStats() domain.MediaStats
	Hangup()
	SetMicEnabled(enabled bool)
	SetVideoEnabled(enabled bool)
	SwitchCamera()
}

// StatusHandler exposes the local diagnostics API: call state, media quality,
// consultation history and the in-call controls a desktop shell binds to.
type StatusHandler struct {
	call      CallController
	journal   *services.JournalService
	health    *monitoring.HealthChecker
	collector *monitoring.PrometheusCollector
}

func NewStatusHandler(
	call CallController,
	journal *services.JournalService,
	health *monitoring.HealthChecker,
	collector *monitoring.PrometheusCollector,
) *StatusHandler {
	return &StatusHandler{
		call:      call,
		journal:   journal,
		health:    health,
		collector: collector,
	}
}

func (h *StatusHandler) SetupRoutes(router *gin.Engine) {
	router.GET("/healthz", h.Healthz)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := router.Group("/api/v1")
	{
		api.GET("/call/state", h.GetCallState)
		api.GET("/call/stats", h.GetCallStats)
		api.POST("/call/hangup", h.Hangup)
		api.POST("/call/mic", h.SetMic)
		api.POST("/call/video", h.SetVideo)
		api.POST("/call/camera/switch", h.SwitchCamera)

		api.GET("/journal/recent", h.ListRecentCalls)
		api.GET("/journal/calls/:id", h.GetCallRecord)
	}
}

func (h *StatusHandler) Healthz(c *gin.Context) {
	status := h.health.CheckAll(c.Request.Context())

	code := http.StatusOK
	if status.Status != "healthy" {
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, status)
}

func (h *StatusHandler) GetCallState(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"state": h.call.State(),
	})
}

func (h *StatusHandler) GetCallStats(c *gin.Context) {
	stats := h.call.MediaStats()
	if h.collector != nil {
		h.collector.UpdateMediaStats(&stats)
	}

	c.JSON(http.StatusOK, gin.H{
		"state": h.call.State(),
		"stats": stats,
	})
}

func (h *StatusHandler) Hangup(c *gin.Context) {
	h.call.Hangup()
	c.JSON(http.StatusAccepted, gin.H{"status": "hangup requested"})
}

func (h *StatusHandler) SetMic(c *gin.Context) {
	var req struct {
		Enabled *bool `json:"enabled" binding:"required"`
	}
	if err := c.BindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	h.call.SetMicEnabled(*req.Enabled)
	c.JSON(http.StatusOK, gin.H{"mic_enabled": *req.Enabled})
}

func (h *StatusHandler) SetVideo(c *gin.Context) {
	var req struct {
		Enabled *bool `json:"enabled" binding:"required"`
	}
	if err := c.BindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	h.call.SetVideoEnabled(*req.Enabled)
	c.JSON(http.StatusOK, gin.H{"video_enabled": *req.Enabled})
}

func (h *StatusHandler) SwitchCamera(c *gin.Context) {
	h.call.SwitchCamera()
	c.JSON(http.StatusAccepted, gin.H{"status": "camera switch requested"})
}

func (h *StatusHandler) ListRecentCalls(c *gin.Context) {
	limit := 20
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 || parsed > 100 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be in 1..100"})
			return
		}
		limit = parsed
	}

	records, err := h.journal.Recent(c.Request.Context(), limit)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"records": records})
}

func (h *StatusHandler) GetCallRecord(c *gin.Context) {
	callID := domain.CallID(c.Param("id"))

	record, err := h.journal.Get(c.Request.Context(), callID)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"record": record})
}
