package tasks

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

var errServedStale = errors.New("refresh fell back to stale snapshot")

type RefreshPodcastTask struct {
	Task
	Force  bool
	source EpisodeSource
}

func NewRefreshPodcastTask(source EpisodeSource, force bool, trigger Trigger) *RefreshPodcastTask {
	return &RefreshPodcastTask{
		Task:   NewTask(TaskTypeRefreshPodcast, trigger),
		Force:  force,
		source: source,
	}
}

// Execute fails when no fresh data was obtained, so the scheduler retries
// a refresh that only produced the stale fallback.
func (t *RefreshPodcastTask) Execute(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	result, err := t.source.GetEpisodes(ctx, t.Force)
	if err != nil {
		return fmt.Errorf("failed to refresh podcast: %w", err)
	}
	if result.Stale {
		return errServedStale
	}

	slog.Debug("Podcast refresh task completed", "id", t.ID, "episodes", len(result.Episodes), "force", t.Force, "trigger", string(t.Trigger))
	return nil
}
