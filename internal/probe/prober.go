// Package probe performs the single upstream fetch that backs a live-status
// check. It knows nothing about classification; it hands back whatever the
// platform returned so the detector can make sense of it.
package probe

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// Response captures the parts of an upstream reply the detector needs.
// Non-2xx statuses are represented here rather than as errors so blocking
// responses (403, 429) still reach classification.
type Response struct {
	StatusCode int
	FinalURL   string
	Body       string
}

// Prober issues exactly one upstream fetch per invocation.
type Prober interface {
	Probe(ctx context.Context, handle string) (*Response, error)
}

const (
	defaultUserAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"
	defaultAccept    = "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8"
	defaultLanguage  = "en-US,en;q=0.9"

	// maxBodyBytes caps how much of a live page is read; the status markers
	// sit in the embedded JSON state near the top of the document.
	maxBodyBytes = 1 << 20
)

// Options configure an HTTPProber.
type Options struct {
	// LivePageURL is a printf-style template with a single %s for the handle.
	LivePageURL string
	Timeout     time.Duration
	UserAgent   string
	// Rate and Burst pace outbound fetches across all requests so a burst of
	// cache misses does not hammer an upstream that already dislikes bots.
	Rate   float64
	Burst  int
	Logger *slog.Logger
}

// HTTPProber fetches live pages with a browser-like request signature.
type HTTPProber struct {
	client    *http.Client
	pageURL   string
	userAgent string
	pacer     *rate.Limiter
	logger    *slog.Logger
}

// NewHTTP builds a prober from the supplied options.
func NewHTTP(opts Options) (*HTTPProber, error) {
	if strings.Count(opts.LivePageURL, "%s") != 1 {
		return nil, fmt.Errorf("probe: live page url must contain exactly one %%s placeholder, got %q", opts.LivePageURL)
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	userAgent := opts.UserAgent
	if userAgent == "" {
		userAgent = defaultUserAgent
	}
	pace := rate.Limit(opts.Rate)
	if opts.Rate <= 0 {
		pace = rate.Inf
	}
	burst := opts.Burst
	if burst <= 0 {
		burst = 1
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &HTTPProber{
		client:    &http.Client{Timeout: timeout},
		pageURL:   opts.LivePageURL,
		userAgent: userAgent,
		pacer:     rate.NewLimiter(pace, burst),
		logger:    logger.With(slog.String("agent", "prober")),
	}, nil
}

// Probe issues one GET to the handle's live page. Redirects are followed and
// the final URL is reported so the caller can spot challenge redirects. A
// network failure or timeout returns an error; there are no retries, the next
// client poll retries naturally.
func (p *HTTPProber) Probe(ctx context.Context, handle string) (*Response, error) {
	if err := p.pacer.Wait(ctx); err != nil {
		return nil, fmt.Errorf("probe: pacing wait: %w", err)
	}

	url := fmt.Sprintf(p.pageURL, handle)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("probe: build request: %w", err)
	}
	req.Header.Set("User-Agent", p.userAgent)
	req.Header.Set("Accept", defaultAccept)
	req.Header.Set("Accept-Language", defaultLanguage)

	start := time.Now()
	resp, err := p.client.Do(req)
	if err != nil {
		p.logger.Debug("upstream fetch failed",
			slog.String("handle", handle),
			slog.Duration("elapsed", time.Since(start)),
			slog.Any("error", err))
		return nil, fmt.Errorf("probe: fetch %s: %w", handle, err)
	}

	body, readErr := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	closeErr := resp.Body.Close()
	if readErr != nil {
		return nil, fmt.Errorf("probe: read body: %w", readErr)
	}
	if closeErr != nil {
		return nil, fmt.Errorf("probe: close body: %w", closeErr)
	}

	finalURL := url
	if resp.Request != nil && resp.Request.URL != nil {
		finalURL = resp.Request.URL.String()
	}

	p.logger.Debug("upstream fetch completed",
		slog.String("handle", handle),
		slog.Int("status", resp.StatusCode),
		slog.Duration("elapsed", time.Since(start)))

	return &Response{
		StatusCode: resp.StatusCode,
		FinalURL:   finalURL,
		Body:       string(body),
	}, nil
}
