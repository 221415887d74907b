package api

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/lysyi3m/rss-bulletin/app/database"
	"github.com/lysyi3m/rss-bulletin/app/feed"
	"github.com/lysyi3m/rss-bulletin/app/tasks"
)

func NewHandler(config *feed.Config, store database.SeenStore,
	scheduler tasks.TaskSchedulerInterface, location *time.Location, version string) *Handler {
	if location == nil {
		location = time.UTC
	}

	return &Handler{
		config:    config,
		store:     store,
		scheduler: scheduler,
		location:  location,
		version:   version,
	}
}

// GetInfo describes the service and the endpoints that are enabled.
func (h *Handler) GetInfo(apiEnabled bool) gin.HandlerFunc {
	endpoints := map[string]string{
		"health": "/health",
		"stats":  "/stats",
	}
	if apiEnabled {
		endpoints["runs"] = "/api/runs (POST, requires X-API-Key header)"
		endpoints["state"] = "/api/state (requires X-API-Key header)"
	}

	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"service":     "RSS Bulletin",
			"version":     h.version,
			"description": "Scheduled RSS/Atom bulletins delivered to Telegram",
			"endpoints":   endpoints,
			"categories":  h.config.CategoryNames(),
			"api_enabled": apiEnabled,
		})
	}
}

func (h *Handler) GetHealth(c *gin.Context) {
	feeds := 0
	for _, category := range h.config.Categories {
		feeds += len(category.Feeds)
	}

	health := map[string]interface{}{
		"status":     "ok",
		"version":    h.version,
		"timestamp":  time.Now().In(h.location).Format(time.RFC3339),
		"categories": len(h.config.Categories),
		"feeds":      feeds,
	}

	if next, ok := h.scheduler.NextRun(); ok {
		health["next_run_at"] = next.In(h.location).Format(time.RFC3339)
	}

	c.JSON(http.StatusOK, health)
}

func (h *Handler) GetStats(c *gin.Context) {
	report, ok := h.scheduler.LastReport()
	if !ok {
		c.JSON(http.StatusOK, gin.H{"last_run": nil})
		return
	}

	c.JSON(http.StatusOK, gin.H{"last_run": reportJSON(report, h.location)})
}

func (h *Handler) APITriggerRun(c *gin.Context) {
	err := h.scheduler.Trigger()
	if errors.Is(err, tasks.ErrQueueFull) {
		c.JSON(http.StatusConflict, gin.H{"error": "A run is already queued"})
		return
	}
	if err != nil {
		slog.Error("Error enqueueing digest run", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "Failed to enqueue run",
			"details": err.Error(),
		})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"success": true,
		"message": "Digest run enqueued",
	})
}

func (h *Handler) APIGetState(c *gin.Context) {
	result := h.store.Load(c.Request.Context())
	ids := result.Seen.IDs()

	recent := ids
	if len(recent) > recentIDs {
		recent = recent[len(recent)-recentIDs:]
	}

	state := gin.H{
		"status":     result.Status.String(),
		"count":      len(ids),
		"recent_ids": recent,
	}
	if result.Err != nil {
		state["error"] = result.Err.Error()
	}

	c.JSON(http.StatusOK, state)
}

func reportJSON(report tasks.Report, location *time.Location) gin.H {
	out := gin.H{
		"started_at":      report.StartedAt.In(location).Format(time.RFC3339),
		"duration":        report.Duration.String(),
		"outcome":         report.Outcome,
		"state":           report.StateStatus.String(),
		"feeds_fetched":   report.FeedsFetched,
		"feeds_failed":    report.FeedsFailed,
		"items_selected":  report.ItemsSelected,
		"items_delivered": report.ItemsDelivered,
		"items_trimmed":   report.ItemsTrimmed,
		"format":          report.Format,
	}
	if report.Err != nil {
		out["error"] = report.Err.Error()
	}
	return out
}
