package api

import (
	"context"
	"time"

	"github.com/klsr/podcast-comb/app/episodes"
	"github.com/klsr/podcast-comb/app/feed"
	"github.com/klsr/podcast-comb/app/storage"
	"github.com/klsr/podcast-comb/app/tasks"
)

const (
	defaultPerPage = 15
	maxPerPage     = 100
)

type EpisodeService interface {
	GetEpisodes(ctx context.Context, forceRefresh bool) (episodes.Result, error)
	State() episodes.State
	Snapshot(ctx context.Context) (*storage.Snapshot, error)
}

var _ EpisodeService = (*episodes.Service)(nil)

type Handler struct {
	service   EpisodeService
	scheduler tasks.TaskSchedulerInterface
	version   string
}

type EpisodesResponse struct {
	Status     string         `json:"status"`
	Message    string         `json:"message,omitempty"`
	Warning    string         `json:"warning,omitempty"`
	Stale      bool           `json:"stale"`
	FetchedAt  *time.Time     `json:"fetched_at,omitempty"`
	Total      int            `json:"total"`
	Page       int            `json:"page"`
	PerPage    int            `json:"per_page"`
	TotalPages int            `json:"total_pages"`
	Episodes   []feed.Episode `json:"episodes"`
}
