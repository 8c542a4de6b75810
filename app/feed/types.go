package feed

import (
	"errors"
)

// Episode is one normalized podcast episode. A parsed slice of episodes is
// never modified after Parser.Run returns it.
type Episode struct {
	Index           int    `json:"id"`
	Title           string `json:"title"`
	AudioURL        string `json:"url"`
	Published       string `json:"date"`
	CoverArtURL     string `json:"cover_art_url"`
	Description     string `json:"description"`
	FullDescription string `json:"full_description"`
}

// Parse failure reasons
const (
	ReasonInvalidFeed     = "invalid feed"
	ReasonNoItems         = "no items"
	ReasonNoValidEpisodes = "no valid episodes"
)

type ParseError struct {
	Reason string
	Err    error
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return "parse error: " + e.Reason + ": " + e.Err.Error()
	}
	return "parse error: " + e.Reason
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// IsNoContent reports whether err is a ParseError caused by a feed that
// parsed fine but carried nothing playable.
func IsNoContent(err error) bool {
	var parseErr *ParseError
	if !errors.As(err, &parseErr) {
		return false
	}
	return parseErr.Reason == ReasonNoItems || parseErr.Reason == ReasonNoValidEpisodes
}

// Configuration types

type Config struct {
	URL      string         `yaml:"url"`
	CacheKey string         `yaml:"cache_key"`
	Settings ConfigSettings `yaml:"settings"`
	Proxies  []ConfigProxy  `yaml:"proxies"`
}

type ConfigSettings struct {
	CacheTTL         int    `yaml:"cache_ttl"` // seconds
	Timeout          int    `yaml:"timeout"`   // seconds
	PlaceholderImage string `yaml:"placeholder_image"`
}

type ConfigProxy struct {
	Name     string `yaml:"name"`
	URL      string `yaml:"url"`      // template with {url}; empty means direct
	Envelope string `yaml:"envelope"` // JSON field carrying the feed body
}
