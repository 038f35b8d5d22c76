package feed

import (
	"fmt"
	"time"
)

// Status classifies the outcome of one page fetch.
type Status int

const (
	// StatusOK is a 2xx page, with or without further pages behind it.
	StatusOK Status = iota
	// StatusRateLimited is a 429; retried after a minimum wait floor.
	StatusRateLimited
	// StatusNotFound is a 404. The feed endpoint intermittently 404s on
	// pages that have not propagated yet, so this is treated as
	// transient rather than permanent.
	StatusNotFound
	// StatusTransient is a network-level failure: disconnect, timeout.
	StatusTransient
	// StatusFatal is anything that retrying cannot fix.
	StatusFatal
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusRateLimited:
		return "rate_limited"
	case StatusNotFound:
		return "not_found"
	case StatusTransient:
		return "transient"
	case StatusFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// PageRequest identifies one page of a club's activity feed. Immutable
// per fetch attempt.
type PageRequest struct {
	ClubID int64
	// Cursor is the pagination token from the previous page; empty for
	// the first page.
	Cursor string
}

// PageResult is the classified outcome of fetching one page.
type PageResult struct {
	Status Status
	// HTML is the page body; set for StatusOK.
	HTML []byte
	// NextCursor points at the following page for StatusOK; empty when
	// LastPage.
	NextCursor string
	// LastPage marks a 2xx page with no entries: the feed is exhausted.
	LastPage bool
	// RetryAfter carries the server's wait hint for StatusRateLimited.
	RetryAfter time.Duration
	// Err is set for StatusTransient and StatusFatal.
	Err error
}

// FetchError is the fatal error produced when the retry ceiling is
// exceeded. It carries the classification and the last underlying cause
// so the caller can decide whether to resume later.
type FetchError struct {
	URL        string
	Status     Status
	Attempts   int
	RetryAfter time.Duration
	Err        error
}

func (e *FetchError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("feed: fetch %s: %s after %d attempts: %v", e.URL, e.Status, e.Attempts, e.Err)
	}
	return fmt.Sprintf("feed: fetch %s: %s after %d attempts", e.URL, e.Status, e.Attempts)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}
