package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/klsr/podcast-comb/app/episodes"
	"github.com/klsr/podcast-comb/app/feed"
	"github.com/klsr/podcast-comb/app/tasks"
)

const genericFailureMessage = "Unable to load podcasts. Please check your internet connection."

func NewHandler(service EpisodeService, scheduler tasks.TaskSchedulerInterface, version string) *Handler {
	return &Handler{
		service:   service,
		scheduler: scheduler,
		version:   version,
	}
}

func (h *Handler) GetEpisodes(c *gin.Context) {
	forceRefresh := c.Query("refresh") == "true"
	page := positiveQuery(c, "page", 1)
	perPage := positiveQuery(c, "per_page", defaultPerPage)
	if perPage > maxPerPage {
		perPage = maxPerPage
	}

	result, err := h.service.GetEpisodes(c.Request.Context(), forceRefresh)
	if err != nil {
		message := genericFailureMessage
		var failure *episodes.AllSourcesFailedError
		if errors.As(err, &failure) {
			message = failure.UserMessage()
		}
		slog.Error("Failed to serve episodes", "error", err)
		c.JSON(http.StatusServiceUnavailable, EpisodesResponse{
			Status:   string(episodes.StatusError),
			Message:  message,
			Page:     page,
			PerPage:  perPage,
			Episodes: []feed.Episode{},
		})
		return
	}

	total := len(result.Episodes)
	totalPages := (total + perPage - 1) / perPage

	// Compare pages before multiplying so huge page numbers cannot overflow.
	start := total
	if page <= totalPages {
		start = (page - 1) * perPage
	}
	end := start + perPage
	if end > total {
		end = total
	}

	fetchedAt := result.FetchedAt
	c.Header("X-Feed-Items", strconv.Itoa(total))
	c.JSON(http.StatusOK, EpisodesResponse{
		Status:     string(episodes.StatusLoaded),
		Warning:    result.Warning,
		Stale:      result.Stale,
		FetchedAt:  &fetchedAt,
		Total:      total,
		Page:       page,
		PerPage:    perPage,
		TotalPages: totalPages,
		Episodes:   result.Episodes[start:end],
	})
}

func (h *Handler) GetStatus(c *gin.Context) {
	c.JSON(http.StatusOK, h.service.State())
}

func (h *Handler) GetHealth(c *gin.Context) {
	now := time.Now()
	health := map[string]interface{}{
		"timestamp": now.In(time.Local).Format(time.RFC3339),
		"version":   h.version,
		"state":     h.service.State().Status,
	}

	snapshot, err := h.service.Snapshot(c.Request.Context())
	if err != nil {
		slog.Warn("Failed to read snapshot for health check", "error", err)
	} else if snapshot != nil {
		health["snapshot"] = map[string]interface{}{
			"episodes":   len(snapshot.Episodes),
			"fetched_at": snapshot.FetchedAt().In(time.Local).Format(time.RFC3339),
			"age":        snapshot.Age(now).Round(time.Second).String(),
		}
	}

	c.JSON(http.StatusOK, health)
}

func (h *Handler) APIRefresh(c *gin.Context) {
	task := tasks.NewRefreshPodcastTask(h.service, true, tasks.TriggerManual)
	if err := h.scheduler.EnqueueTask(task); err != nil {
		slog.Error("Error enqueueing refresh task", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "Failed to enqueue refresh task",
			"details": err.Error(),
		})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"success": true,
		"message": "Refresh task enqueued",
		"task": gin.H{
			"id":   task.ID,
			"type": task.Type,
		},
	})
}

// positiveQuery falls back to def for missing, malformed or non-positive values.
func positiveQuery(c *gin.Context, name string, def int) int {
	raw := c.Query(name)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return def
	}
	return n
}
