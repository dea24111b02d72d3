package http

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/dejely/manobela/internal/core/domain"
	"github.com/dejely/manobela/internal/core/ports"
	"github.com/dejely/manobela/internal/core/services"
	"github.com/dejely/manobela/internal/infrastructure/monitoring"
	"github.com/dejely/manobela/pkg/cache"
	"github.com/dejely/manobela/pkg/validation"

	"github.com/gin-gonic/gin"
)

const sessionListCacheKey = "sessions:list"

// MonitorHandler exposes the local control and status API.
type MonitorHandler struct {
	controller *services.SessionController
	logger     ports.MetricsLogger
	sessions   ports.SessionRepository
	metrics    ports.MetricRepository
	health     *monitoring.HealthChecker
	cache      *cache.Cache
}

func NewMonitorHandler(
	controller *services.SessionController,
	metricsLogger ports.MetricsLogger,
	sessions ports.SessionRepository,
	metrics ports.MetricRepository,
	health *monitoring.HealthChecker,
) *MonitorHandler {
	return &MonitorHandler{
		controller: controller,
		logger:     metricsLogger,
		sessions:   sessions,
		metrics:    metrics,
		health:     health,
		cache:      cache.NewCache(5 * time.Second),
	}
}

func (h *MonitorHandler) SetupRoutes(router *gin.Engine) {
	router.GET("/health", h.GetHealth)

	api := router.Group("/api/v1")
	{
		api.GET("/session", h.GetStatus)
		api.POST("/session/start", h.StartMonitoring)
		api.POST("/session/stop", h.StopMonitoring)
		api.POST("/session/pause", h.PauseMonitoring)
		api.POST("/session/resume", h.ResumeMonitoring)
		api.POST("/session/recalibrate", h.RecalibrateHeadPose)
		api.GET("/inference/latest", h.GetLatestInference)
		api.GET("/sessions", h.ListSessions)
		api.GET("/sessions/:id/metrics", h.GetSessionMetrics)
		api.DELETE("/sessions", h.ClearSessions)
	}
}

func (h *MonitorHandler) GetHealth(c *gin.Context) {
	status := h.health.CheckAll(c.Request.Context())

	code := http.StatusOK
	if status.Status != "healthy" {
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, status)
}

func (h *MonitorHandler) GetStatus(c *gin.Context) {
	c.JSON(http.StatusOK, h.controller.Status())
}

func (h *MonitorHandler) StartMonitoring(c *gin.Context) {
	if err := h.controller.Start(c.Request.Context()); err != nil {
		h.sessionError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, h.controller.Status())
}

func (h *MonitorHandler) StopMonitoring(c *gin.Context) {
	if err := h.controller.Stop(c.Request.Context()); err != nil {
		h.sessionError(c, err)
		return
	}
	h.cache.Delete(sessionListCacheKey)
	c.JSON(http.StatusOK, h.controller.Status())
}

func (h *MonitorHandler) PauseMonitoring(c *gin.Context) {
	if err := h.controller.Pause(c.Request.Context()); err != nil {
		h.sessionError(c, err)
		return
	}
	c.JSON(http.StatusOK, h.controller.Status())
}

func (h *MonitorHandler) ResumeMonitoring(c *gin.Context) {
	if err := h.controller.Resume(c.Request.Context()); err != nil {
		h.sessionError(c, err)
		return
	}
	c.JSON(http.StatusOK, h.controller.Status())
}

func (h *MonitorHandler) RecalibrateHeadPose(c *gin.Context) {
	if err := h.controller.RecalibrateHeadPose(); err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "requested"})
}

func (h *MonitorHandler) GetLatestInference(c *gin.Context) {
	latest := h.controller.LatestInference()
	if latest == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no inference received yet"})
		return
	}
	c.JSON(http.StatusOK, latest)
}

type sessionSummary struct {
	Session     *domain.Session `json:"session"`
	MetricCount int64           `json:"metric_count"`
}

func (h *MonitorHandler) ListSessions(c *gin.Context) {
	value, err := h.cache.GetOrSet(c.Request.Context(), sessionListCacheKey, func(ctx context.Context) (interface{}, error) {
		sessions, err := h.sessions.List(ctx)
		if err != nil {
			return nil, err
		}

		summaries := make([]sessionSummary, 0, len(sessions))
		for _, session := range sessions {
			count, err := h.metrics.CountBySession(ctx, session.ID)
			if err != nil {
				return nil, err
			}
			summaries = append(summaries, sessionSummary{Session: session, MetricCount: count})
		}
		return summaries, nil
	}, 5*time.Second)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"sessions": value})
}

func (h *MonitorHandler) GetSessionMetrics(c *gin.Context) {
	sessionID := c.Param("id")
	if err := validation.ValidateSessionID(sessionID); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if _, err := h.sessions.GetByID(c.Request.Context(), sessionID); err != nil {
		if errors.Is(err, domain.ErrSessionNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	rows, err := h.metrics.ListBySession(c.Request.Context(), sessionID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"session_id": sessionID,
		"metrics":    rows,
	})
}

// ClearSessions wipes all persisted sessions and metrics. A still-open
// logging session is ended first, and the logger is read-only for the
// duration of the wipe so no rows land mid-delete.
func (h *MonitorHandler) ClearSessions(c *gin.Context) {
	ctx := c.Request.Context()

	if h.logger.CurrentSessionID() != "" {
		if err := h.logger.EndSession(ctx, h.controller.DurationMs()); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
	}

	h.logger.SetReadOnly(true)
	defer h.logger.SetReadOnly(false)

	// Metrics first so session references never dangle.
	if err := h.metrics.DeleteAll(ctx); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if err := h.sessions.DeleteAll(ctx); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	h.logger.Reset()
	h.cache.Delete(sessionListCacheKey)

	c.JSON(http.StatusOK, gin.H{"status": "cleared"})
}

func (h *MonitorHandler) sessionError(c *gin.Context, err error) {
	if errors.Is(err, domain.ErrInvalidState) {
		c.JSON(http.StatusConflict, gin.H{
			"error": "operation not allowed in state " + string(h.controller.State()),
		})
		return
	}
	if errors.Is(err, domain.ErrNoMediaStream) {
		c.JSON(http.StatusPreconditionFailed, gin.H{"error": "no camera stream available"})
		return
	}
	c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
}

var _ ports.HTTPHandler = (*MonitorHandler)(nil)
