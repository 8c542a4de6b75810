package tasks

import (
	"context"

	"github.com/klsr/podcast-comb/app/episodes"
)

// TaskSchedulerInterface is what the HTTP layer needs to queue work.
//
//	scheduler := NewScheduler(service, workerCount, interval)
//	scheduler.Start()
//	defer scheduler.Stop()
//	scheduler.EnqueueTask(NewRefreshPodcastTask(service, true, TriggerManual))
type TaskSchedulerInterface interface {
	Start()
	Stop()
	EnqueueTask(task TaskInterface) error
}

// EpisodeSource is the part of episodes.Service a refresh task drives.
type EpisodeSource interface {
	GetEpisodes(ctx context.Context, forceRefresh bool) (episodes.Result, error)
}

var _ EpisodeSource = (*episodes.Service)(nil)
