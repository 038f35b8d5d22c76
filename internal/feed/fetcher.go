package feed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/PaceOps/stride/internal/auth"
	"github.com/PaceOps/stride/internal/extract"
	"github.com/PaceOps/stride/internal/metrics"
	"github.com/PaceOps/stride/pkg/ratelimit"
	"github.com/cenkalti/backoff/v4"
)

// CursorFunc inspects a 2xx page body and reports the next pagination
// cursor and whether the page carried any entries. Keeping it injectable
// leaves the fetcher ignorant of the page layout.
type CursorFunc func(html []byte) (next string, hasEntries bool, err error)

// RetryPolicy bounds the transient-failure retry loop of FetchPage.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	// RateLimitFloor is the minimum wait before retrying a 429,
	// regardless of what the backoff schedule suggests.
	RateLimitFloor time.Duration
}

func (p RetryPolicy) withDefaults() RetryPolicy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = 3
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = 2 * time.Second
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = 30 * time.Second
	}
	if p.RateLimitFloor <= 0 {
		p.RateLimitFloor = 15 * time.Second
	}
	return p
}

// Config configures a Fetcher.
type Config struct {
	// BaseURL of the target site. Defaults to https://www.strava.com.
	BaseURL string
	// Cursors defaults to extract.PageCursor.
	Cursors CursorFunc
	Policy  RetryPolicy
	// Limiter paces attempts against the site; nil disables pacing.
	Limiter *ratelimit.Limiter
	Logger  *slog.Logger
}

// Fetcher retrieves single pages of a club's activity feed through an
// authenticated session, classifying every HTTP outcome and retrying
// the transient ones per policy.
type Fetcher struct {
	session *auth.Session
	base    *url.URL
	cursors CursorFunc
	policy  RetryPolicy
	limiter *ratelimit.Limiter
	logger  *slog.Logger
}

// NewFetcher creates a Fetcher on top of an established (or lazily
// logging-in) session.
func NewFetcher(session *auth.Session, cfg Config) (*Fetcher, error) {
	if session == nil {
		return nil, errors.New("feed: session is required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://www.strava.com"
	}
	base, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("feed: invalid base url: %w", err)
	}
	if cfg.Cursors == nil {
		cfg.Cursors = extract.PageCursor
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &Fetcher{
		session: session,
		base:    base,
		cursors: cfg.Cursors,
		policy:  cfg.Policy.withDefaults(),
		limiter: cfg.Limiter,
		logger:  cfg.Logger,
	}, nil
}

// FetchPage fetches and classifies one feed page. NotFound, RateLimited,
// and Transient outcomes are retried with exponential backoff up to the
// policy ceiling; exhausting the ceiling converts the result to Fatal
// with the original cause attached. OK and Fatal return immediately.
func (f *Fetcher) FetchPage(ctx context.Context, req PageRequest) PageResult {
	pageURL := f.pageURL(req)

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = f.policy.BaseDelay
	bo.MaxInterval = f.policy.MaxDelay
	bo.MaxElapsedTime = 0
	bo.Reset()

	var last PageResult
	for attempt := 1; attempt <= f.policy.MaxAttempts; attempt++ {
		if attempt > 1 {
			metrics.FetchRetries.WithLabelValues(last.Status.String()).Inc()

			wait := bo.NextBackOff()
			if last.Status == StatusRateLimited {
				if wait < f.policy.RateLimitFloor {
					wait = f.policy.RateLimitFloor
				}
				if last.RetryAfter > wait {
					wait = last.RetryAfter
				}
			}

			f.logger.Info("retrying page fetch",
				"event", "page_retry",
				"url", pageURL,
				"attempt", attempt,
				"max_attempts", f.policy.MaxAttempts,
				"cause", last.Status.String(),
				"wait", wait,
			)
			if err := ratelimit.Sleep(ctx, wait); err != nil {
				return PageResult{Status: StatusFatal, Err: err}
			}
		}

		if f.limiter != nil {
			if err := f.limiter.Wait(ctx); err != nil {
				return PageResult{Status: StatusFatal, Err: err}
			}
		}

		res := f.attempt(ctx, pageURL)
		if res.Status == StatusOK || res.Status == StatusFatal {
			return res
		}
		last = res
	}

	return PageResult{
		Status: StatusFatal,
		Err: &FetchError{
			URL:        pageURL,
			Status:     last.Status,
			Attempts:   f.policy.MaxAttempts,
			RetryAfter: last.RetryAfter,
			Err:        last.Err,
		},
	}
}

// attempt performs a single fetch and classifies the raw outcome.
func (f *Fetcher) attempt(ctx context.Context, pageURL string) PageResult {
	start := time.Now()
	resp, err := f.session.Execute(ctx, pageURL)
	metrics.FetchDuration.Observe(time.Since(start).Seconds())

	if err != nil {
		if errors.Is(err, auth.ErrSessionFailed) || ctx.Err() != nil {
			metrics.PagesFetched.WithLabelValues(StatusFatal.String()).Inc()
			return PageResult{Status: StatusFatal, Err: err}
		}
		// Disconnects and timeouts are expected to resolve on retry.
		metrics.PagesFetched.WithLabelValues(StatusTransient.String()).Inc()
		return PageResult{Status: StatusTransient, Err: err}
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		metrics.PagesFetched.WithLabelValues(StatusRateLimited.String()).Inc()
		return PageResult{
			Status:     StatusRateLimited,
			RetryAfter: retryAfterHint(resp.Header),
			Err:        fmt.Errorf("feed: %s: status 429", pageURL),
		}

	case resp.StatusCode == http.StatusNotFound:
		metrics.PagesFetched.WithLabelValues(StatusNotFound.String()).Inc()
		return PageResult{
			Status: StatusNotFound,
			Err:    fmt.Errorf("feed: %s: status 404", pageURL),
		}

	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		next, hasEntries, err := f.cursors(resp.Body)
		if err != nil {
			// Extraction errors are not the fetcher's to repair.
			metrics.PagesFetched.WithLabelValues(StatusFatal.String()).Inc()
			return PageResult{Status: StatusFatal, Err: err}
		}

		metrics.PagesFetched.WithLabelValues(StatusOK.String()).Inc()
		if !hasEntries {
			return PageResult{Status: StatusOK, HTML: resp.Body, LastPage: true}
		}
		return PageResult{Status: StatusOK, HTML: resp.Body, NextCursor: next}

	default:
		metrics.PagesFetched.WithLabelValues(StatusFatal.String()).Inc()
		return PageResult{
			Status: StatusFatal,
			Err:    fmt.Errorf("feed: %s: unexpected status %d", pageURL, resp.StatusCode),
		}
	}
}

// pageURL builds the feed page URL for a request. The site expects the
// cursor echoed twice: once as the raw token and once formatted as a
// float.
func (f *Fetcher) pageURL(req PageRequest) string {
	u := *f.base
	u.Path = fmt.Sprintf("/clubs/%d/feed", req.ClubID)

	q := url.Values{}
	q.Set("feed_type", "club")
	if req.Cursor != "" {
		q.Set("before", req.Cursor)
		q.Set("cursor", req.Cursor+".0")
	}
	u.RawQuery = q.Encode()
	return u.String()
}

func retryAfterHint(h http.Header) time.Duration {
	raw := h.Get("Retry-After")
	if raw == "" {
		return 0
	}
	secs, err := strconv.Atoi(raw)
	if err != nil || secs < 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}
