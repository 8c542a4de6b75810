package feed

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	DefaultFeedURL          = "https://anchor.fm/s/1d6ad87c/podcast/rss"
	DefaultCacheKey         = "podcast_cache"
	DefaultPlaceholderImage = "./images/podcast.jpg"
)

// DefaultProxies is the chain used when the configuration lists none,
// ordered from most to least reliable.
func DefaultProxies() []ConfigProxy {
	return []ConfigProxy{
		{Name: "corsproxy", URL: "https://corsproxy.io/?{url}"},
		{Name: "allorigins", URL: "https://api.allorigins.win/get?url={url}", Envelope: "contents"},
		{Name: "public-cors", URL: "https://public.cors.workers.dev/?{url}"},
		{Name: "direct"},
	}
}

// LoadConfig reads the podcast configuration from configFile. A missing file
// yields the built-in defaults.
func LoadConfig(configFile string) (*Config, error) {
	var feedConfig Config

	data, err := os.ReadFile(configFile)
	switch {
	case os.IsNotExist(err):
		slog.Debug("Podcast configuration not found, using defaults", "path", configFile)
	case err != nil:
		return nil, fmt.Errorf("failed to read file: %w", err)
	default:
		if err := yaml.Unmarshal(data, &feedConfig); err != nil {
			return nil, fmt.Errorf("failed to parse YAML: %w", err)
		}
	}

	setDefaults(&feedConfig)

	if err := validateConfig(&feedConfig); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", configFile, err)
	}

	slog.Debug("Configuration loaded", "url", feedConfig.URL, "proxies", len(feedConfig.Proxies), "cache_ttl", feedConfig.Settings.CacheTTL)

	return &feedConfig, nil
}

func (c *Config) CacheTTLDuration() time.Duration {
	return time.Duration(c.Settings.CacheTTL) * time.Second
}

func (c *Config) TimeoutDuration() time.Duration {
	return time.Duration(c.Settings.Timeout) * time.Second
}

func setDefaults(feedConfig *Config) {
	if feedConfig.URL == "" {
		feedConfig.URL = DefaultFeedURL
	}
	if feedConfig.CacheKey == "" {
		feedConfig.CacheKey = DefaultCacheKey
	}
	if feedConfig.Settings.CacheTTL == 0 {
		feedConfig.Settings.CacheTTL = 3600
	}
	if feedConfig.Settings.Timeout == 0 {
		feedConfig.Settings.Timeout = 30
	}
	if feedConfig.Settings.PlaceholderImage == "" {
		feedConfig.Settings.PlaceholderImage = DefaultPlaceholderImage
	}
	if len(feedConfig.Proxies) == 0 {
		feedConfig.Proxies = DefaultProxies()
	}
}

func validateConfig(feedConfig *Config) error {
	if feedConfig == nil {
		return fmt.Errorf("feedConfig is nil")
	}

	if !strings.HasPrefix(feedConfig.URL, "http://") && !strings.HasPrefix(feedConfig.URL, "https://") {
		return fmt.Errorf("feed URL must be http(s): %s", feedConfig.URL)
	}

	nonNegativeFields := map[string]int{
		"cache ttl": feedConfig.Settings.CacheTTL,
		"timeout":   feedConfig.Settings.Timeout,
	}

	for fieldName, fieldValue := range nonNegativeFields {
		if fieldValue < 0 {
			return fmt.Errorf("%s must be non-negative", fieldName)
		}
	}

	seen := make(map[string]bool, len(feedConfig.Proxies))
	for i, proxy := range feedConfig.Proxies {
		if proxy.Name == "" {
			return fmt.Errorf("proxy at index %d must have a name", i)
		}
		if seen[proxy.Name] {
			return fmt.Errorf("duplicate proxy name at index %d: %s", i, proxy.Name)
		}
		seen[proxy.Name] = true

		if proxy.URL != "" && !strings.Contains(proxy.URL, "{url}") {
			return fmt.Errorf("proxy %s: url template must contain {url}", proxy.Name)
		}
	}

	return nil
}
