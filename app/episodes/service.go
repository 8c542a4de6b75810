// Package episodes serves the podcast episode list from a snapshot cache,
// refreshing it through the proxy chain when stale and falling back to the
// last good snapshot when a refresh fails.
package episodes

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/klsr/podcast-comb/app/feed"
	"github.com/klsr/podcast-comb/app/proxy"
	"github.com/klsr/podcast-comb/app/storage"
)

type Status string

const (
	StatusLoading Status = "loading"
	StatusLoaded  Status = "loaded"
	StatusError   Status = "error"
)

const (
	StaleWarning = "Using cached data. Check your connection."

	messageNetwork   = "Network error. Please check your connection."
	messageNoContent = "No podcasts available at the moment."
	messageGeneric   = "Unable to load podcasts. Please check your internet connection."
)

type Fetcher interface {
	Fetch(ctx context.Context, target string) ([]byte, error)
}

type Parser interface {
	Run(data []byte) ([]feed.Episode, error)
}

var (
	_ Fetcher = (*proxy.Fetcher)(nil)
	_ Parser  = (*feed.Parser)(nil)
)

// State is the caller-facing status with an optional warning or error text.
type State struct {
	Status  Status `json:"status"`
	Message string `json:"message,omitempty"`
}

type Result struct {
	Episodes  []feed.Episode
	FetchedAt time.Time
	Stale     bool
	Warning   string
}

// AllSourcesFailedError means no fresh data could be fetched and no snapshot
// of any age exists.
type AllSourcesFailedError struct {
	Cause error
}

func (e *AllSourcesFailedError) Error() string {
	return "all sources failed: " + e.Cause.Error()
}

func (e *AllSourcesFailedError) Unwrap() error {
	return e.Cause
}

// UserMessage tells network trouble apart from a feed with nothing to play.
func (e *AllSourcesFailedError) UserMessage() string {
	var exhausted *proxy.FetchExhaustedError
	switch {
	case errors.As(e.Cause, &exhausted):
		return messageNetwork
	case feed.IsNoContent(e.Cause):
		return messageNoContent
	default:
		return messageGeneric
	}
}

type Options struct {
	FeedURL  string
	CacheKey string
	TTL      time.Duration
	Now      func() time.Time
}

type Service struct {
	fetcher  Fetcher
	parser   Parser
	store    storage.Store
	feedURL  string
	cacheKey string
	ttl      time.Duration
	now      func() time.Time

	group singleflight.Group

	mu       sync.RWMutex
	state    State
	inflight int
}

func NewService(fetcher Fetcher, parser Parser, store storage.Store, opts Options) *Service {
	if opts.CacheKey == "" {
		opts.CacheKey = feed.DefaultCacheKey
	}
	if opts.TTL <= 0 {
		opts.TTL = time.Hour
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Service{
		fetcher:  fetcher,
		parser:   parser,
		store:    store,
		feedURL:  opts.FeedURL,
		cacheKey: opts.CacheKey,
		ttl:      opts.TTL,
		now:      opts.Now,
		state:    State{Status: StatusLoading},
	}
}

// GetEpisodes returns the fresh snapshot when there is one, otherwise
// refreshes. Concurrent refreshes share a single fetch.
func (s *Service) GetEpisodes(ctx context.Context, forceRefresh bool) (Result, error) {
	if !forceRefresh {
		if snapshot := s.loadSnapshot(ctx); snapshot != nil && snapshot.Age(s.now()) < s.ttl {
			slog.Debug("Using cached data", "age", snapshot.Age(s.now()), "episodes", len(snapshot.Episodes))
			s.markFresh()
			return Result{Episodes: snapshot.Episodes, FetchedAt: snapshot.FetchedAt()}, nil
		}
	}

	// A refresh in flight runs to completion even if this caller goes away.
	refreshCtx := context.WithoutCancel(ctx)
	value, err, shared := s.group.Do(s.cacheKey, func() (interface{}, error) {
		return s.refresh(refreshCtx)
	})
	if shared {
		slog.Debug("Joined in-flight refresh")
	}
	if err != nil {
		return Result{}, err
	}
	return value.(Result), nil
}

// State reports the status of the most recent request.
func (s *Service) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Snapshot returns the stored snapshot regardless of age.
func (s *Service) Snapshot(ctx context.Context) (*storage.Snapshot, error) {
	return s.store.Load(ctx, s.cacheKey)
}

func (s *Service) refresh(ctx context.Context) (Result, error) {
	s.beginRefresh()
	defer s.endRefresh()
	start := s.now()

	episodes, err := s.fetchAndParse(ctx)
	if err == nil {
		fetchedAt := s.now()
		if saveErr := s.store.Save(ctx, s.cacheKey, storage.NewSnapshot(episodes, fetchedAt)); saveErr != nil {
			slog.Error("Failed to persist snapshot", "key", s.cacheKey, "error", saveErr)
		}
		s.setState(StatusLoaded, "")
		slog.Info("Podcast refreshed", "episodes", len(episodes), "duration", fetchedAt.Sub(start))
		return Result{Episodes: episodes, FetchedAt: fetchedAt}, nil
	}

	slog.Error("Podcast fetch failed", "url", s.feedURL, "error", err)

	if snapshot := s.loadSnapshot(ctx); snapshot != nil {
		slog.Warn("Using expired cache as fallback", "age", snapshot.Age(s.now()), "episodes", len(snapshot.Episodes))
		s.setState(StatusLoaded, StaleWarning)
		return Result{
			Episodes:  snapshot.Episodes,
			FetchedAt: snapshot.FetchedAt(),
			Stale:     true,
			Warning:   StaleWarning,
		}, nil
	}

	failure := &AllSourcesFailedError{Cause: err}
	s.setState(StatusError, failure.UserMessage())
	return Result{}, failure
}

func (s *Service) fetchAndParse(ctx context.Context) ([]feed.Episode, error) {
	data, err := s.fetcher.Fetch(ctx, s.feedURL)
	if err != nil {
		return nil, err
	}
	slog.Debug("RSS feed fetched", "bytes", len(data))

	return s.parser.Run(data)
}

// loadSnapshot treats a storage error like a missing snapshot.
func (s *Service) loadSnapshot(ctx context.Context) *storage.Snapshot {
	snapshot, err := s.store.Load(ctx, s.cacheKey)
	if err != nil {
		slog.Warn("Failed to read snapshot", "key", s.cacheKey, "error", err)
		return nil
	}
	return snapshot
}

func (s *Service) beginRefresh() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inflight++
	s.state = State{Status: StatusLoading}
}

func (s *Service) endRefresh() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inflight--
}

// markFresh reports a cache hit as loaded unless a refresh is still running.
func (s *Service) markFresh() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.inflight > 0 {
		return
	}
	s.state = State{Status: StatusLoaded}
}

func (s *Service) setState(status Status, message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = State{Status: status, Message: message}
}
