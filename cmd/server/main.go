package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/klsr/podcast-comb/app/api"
	"github.com/klsr/podcast-comb/app/cfg"
	"github.com/klsr/podcast-comb/app/episodes"
	"github.com/klsr/podcast-comb/app/feed"
	"github.com/klsr/podcast-comb/app/proxy"
	"github.com/klsr/podcast-comb/app/storage"
	"github.com/klsr/podcast-comb/app/tasks"
)

func main() {
	appCfg, err := cfg.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}
	if appCfg == nil {
		// Help was shown
		return
	}

	setupLogger(appCfg.Debug)

	slog.Info("Starting Podcast Comb server", "version", appCfg.Version, "timezone", appCfg.Timezone)

	podcastConfig, err := feed.LoadConfig(appCfg.PodcastConfig)
	if err != nil {
		slog.Error("Failed to load podcast configuration", "path", appCfg.PodcastConfig, "error", err)
		os.Exit(1)
	}
	slog.Info("Podcast configuration loaded", "url", podcastConfig.URL, "proxies", len(podcastConfig.Proxies), "cache_ttl", podcastConfig.CacheTTLDuration())

	store, err := openStore()
	if err != nil {
		slog.Error("Failed to open snapshot store", "store", appCfg.Store, "error", err)
		os.Exit(1)
	}
	defer store.Close()

	httpClient := &http.Client{Timeout: podcastConfig.TimeoutDuration()}
	fetcher := proxy.NewFetcher(httpClient, proxy.StrategiesFromConfig(podcastConfig.Proxies), appCfg.UserAgent)
	parser := feed.NewParser(podcastConfig.Settings.PlaceholderImage, time.Local)

	service := episodes.NewService(fetcher, parser, store, episodes.Options{
		FeedURL:  podcastConfig.URL,
		CacheKey: podcastConfig.CacheKey,
		TTL:      podcastConfig.CacheTTLDuration(),
	})

	slog.Info("Starting background scheduler", "workers", appCfg.WorkerCount, "interval", appCfg.SchedulerIntervalDuration())
	scheduler := tasks.NewScheduler(service, appCfg.WorkerCount, appCfg.SchedulerIntervalDuration())
	scheduler.Start()
	defer scheduler.Stop()

	// A forced refresh may walk the whole proxy chain within one request.
	writeTimeout := podcastConfig.TimeoutDuration()*time.Duration(len(podcastConfig.Proxies)) + 30*time.Second

	handler := api.NewHandler(service, scheduler, appCfg.Version)
	server := api.NewServer(handler, appCfg.APIAccessKey)

	httpServer := &http.Server{
		Addr:         ":" + appCfg.Port,
		Handler:      server,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: writeTimeout,
		IdleTimeout:  120 * time.Second,
	}

	serverErrChan := make(chan error, 1)
	go func() {
		slog.Info("Starting HTTP server", "port", appCfg.Port)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrChan <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		slog.Info("Received signal", "signal", sig.String())
	case err := <-serverErrChan:
		slog.Error("Server error", "error", err)
	}

	slog.Info("Shutting down server gracefully")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	} else {
		slog.Info("HTTP server stopped")
	}
}

func setupLogger(debug bool) {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level})))
}

func openStore() (storage.Store, error) {
	appCfg := cfg.Get()

	switch appCfg.Store {
	case "redis":
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return storage.NewRedisStore(ctx, appCfg.RedisAddr)
	case "memory":
		return storage.NewMemoryStore(), nil
	default:
		store, err := storage.NewSQLiteStore(appCfg.DBPath)
		if err != nil {
			return nil, err
		}
		slog.Info("Connected to database", "path", appCfg.DBPath)
		return store, nil
	}
}
