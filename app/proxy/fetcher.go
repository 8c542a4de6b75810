package proxy

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"
	jsoniter "github.com/json-iterator/go"

	"github.com/klsr/podcast-comb/app/feed"
)

const (
	acceptFeed     = "application/rss+xml, text/xml, */*"
	acceptEnvelope = "application/json, text/xml, */*"

	// MaxBodySize caps a single proxy response.
	MaxBodySize int64 = 32 << 20
)

// Strategy routes a request through one intermediary. An empty Template
// requests the target directly.
type Strategy struct {
	Name     string
	Template string
	Envelope string
}

// RequestURL rewrites target for this strategy.
func (s Strategy) RequestURL(target string) string {
	if s.Template == "" {
		return target
	}
	escaped := strings.ReplaceAll(url.QueryEscape(target), "+", "%20")
	return strings.ReplaceAll(s.Template, "{url}", escaped)
}

func StrategiesFromConfig(proxies []feed.ConfigProxy) []Strategy {
	strategies := make([]Strategy, 0, len(proxies))
	for _, p := range proxies {
		strategies = append(strategies, Strategy{Name: p.Name, Template: p.URL, Envelope: p.Envelope})
	}
	return strategies
}

// FetchExhaustedError is returned when every strategy failed. Last is the
// error of the final attempt, Attempts collects all of them in order.
type FetchExhaustedError struct {
	Last     error
	Attempts *multierror.Error
}

func (e *FetchExhaustedError) Error() string {
	return fmt.Sprintf("all proxy attempts failed: %v", e.Last)
}

func (e *FetchExhaustedError) Unwrap() error {
	return e.Last
}

type Fetcher struct {
	httpClient  *http.Client
	strategies  []Strategy
	userAgent   string
	maxBodySize int64
}

func NewFetcher(httpClient *http.Client, strategies []Strategy, userAgent string) *Fetcher {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Fetcher{
		httpClient:  httpClient,
		strategies:  strategies,
		userAgent:   userAgent,
		maxBodySize: MaxBodySize,
	}
}

// Fetch tries each strategy once, in order, and returns the first payload
// that could be retrieved.
func (f *Fetcher) Fetch(ctx context.Context, target string) ([]byte, error) {
	var attempts *multierror.Error
	var last error

	if len(f.strategies) == 0 {
		last = fmt.Errorf("no proxy strategies configured")
	}

	for _, strategy := range f.strategies {
		if err := ctx.Err(); err != nil {
			last = err
			attempts = multierror.Append(attempts, err)
			break
		}

		slog.Debug("Trying proxy", "proxy", strategy.Name)

		data, err := f.attempt(ctx, strategy, target)
		if err != nil {
			slog.Warn("Proxy failed", "proxy", strategy.Name, "error", err)
			last = fmt.Errorf("proxy %s: %w", strategy.Name, err)
			attempts = multierror.Append(attempts, last)
			continue
		}

		slog.Info("Proxy succeeded", "proxy", strategy.Name, "bytes", len(data))
		return data, nil
	}

	return nil, &FetchExhaustedError{Last: last, Attempts: attempts}
}

func (f *Fetcher) attempt(ctx context.Context, strategy Strategy, target string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strategy.RequestURL(target), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	if strategy.Envelope != "" {
		req.Header.Set("Accept", acceptEnvelope)
	} else {
		req.Header.Set("Accept", acceptFeed)
	}
	req.Header.Set("User-Agent", f.userAgent)

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("HTTP error: %d %s", resp.StatusCode, resp.Status)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBodySize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	if int64(len(data)) > f.maxBodySize {
		return nil, fmt.Errorf("response body exceeds %d bytes", f.maxBodySize)
	}

	if strategy.Envelope == "" {
		return data, nil
	}
	return unwrapEnvelope(data, strategy.Envelope)
}

func unwrapEnvelope(data []byte, field string) ([]byte, error) {
	value := jsoniter.Get(data, field)
	if err := value.LastError(); err != nil {
		return nil, fmt.Errorf("failed to read envelope field %q: %w", field, err)
	}
	if value.ValueType() != jsoniter.StringValue {
		return nil, fmt.Errorf("envelope field %q is not a string", field)
	}
	return []byte(value.ToString()), nil
}
