// Package source holds the job board adapters. Each adapter fetches one board and
// returns raw records; normalization happens in the ingestion pipeline.
package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/kailas-cloud/jobdex/internal/domain/job"
)

// Fetch defaults.
const (
	DefaultTimeout   = 30 * time.Second
	DefaultUserAgent = "Mozilla/5.0 (compatible; jobdex/1.0; +https://github.com/kailas-cloud/jobdex)"
	maxBodyBytes     = 16 << 20
	maxErrorExcerpt  = 256
)

// ErrUnknownSource is returned by New for a source without an adapter.
var ErrUnknownSource = errors.New("unknown source")

// Adapter fetches raw postings from one board.
type Adapter interface {
	Name() job.Source
	Fetch(ctx context.Context) ([]job.RawPosting, error)
}

// Fetcher is the shared HTTP client for all adapters.
type Fetcher struct {
	client    *http.Client
	userAgent string
	timeout   time.Duration
}

// NewFetcher creates a fetcher. A nil client uses a fresh http.Client.
func NewFetcher(client *http.Client, userAgent string, timeout time.Duration) *Fetcher {
	if client == nil {
		client = &http.Client{}
	}
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Fetcher{client: client, userAgent: userAgent, timeout: timeout}
}

// Get downloads url. Non-2xx responses are errors carrying the status and a body excerpt.
func (f *Fetcher) Get(ctx context.Context, url string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("build request %s: %w", url, err)
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "application/json, text/html;q=0.9, */*;q=0.5")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", url, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		excerpt, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorExcerpt))
		return nil, fmt.Errorf("get %s: status %d: %s", url, resp.StatusCode, strings.TrimSpace(string(excerpt)))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", url, err)
	}
	return body, nil
}

// Default board URLs.
const (
	DefaultHackerNewsURL = "https://news.ycombinator.com/item?id=42575537"
	DefaultRemoteOKURL   = "https://remoteok.com/api"
	DefaultArbeitNowURL  = "https://www.arbeitnow.com/api/job-board-api"
	DefaultTheMuseURL    = "https://www.themuse.com/api/public/jobs?category=Software%20Engineering&page=1"
)

// New builds the adapter for src. An empty url selects the board default.
func New(src job.Source, url string, f *Fetcher) (Adapter, error) {
	switch src {
	case job.HackerNews:
		return NewHackerNews(f, orDefault(url, DefaultHackerNewsURL)), nil
	case job.RemoteOK:
		return NewRemoteOK(f, orDefault(url, DefaultRemoteOKURL)), nil
	case job.ArbeitNow:
		return NewArbeitNow(f, orDefault(url, DefaultArbeitNowURL)), nil
	case job.TheMuse:
		return NewTheMuse(f, orDefault(url, DefaultTheMuseURL)), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownSource, src)
	}
}

func orDefault(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}
