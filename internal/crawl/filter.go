package crawl

import (
	"time"

	"github.com/PaceOps/stride/internal/storage"
)

// FilterSpec is supplied once at pipeline start and read-only for the
// crawl's duration.
type FilterSpec struct {
	// MinDate drops everything older than this instant. Because the
	// feed is chronologically descending, the first record older than
	// MinDate proves no later page can match either.
	MinDate time.Time
	// Types keeps only the listed activity types ("run", "ride", ...).
	// Empty keeps everything.
	Types []string
}

// Decision is the filter verdict for a single record.
type Decision int

const (
	// Keep yields the record to the consumer.
	Keep Decision = iota
	// Drop skips the record and continues.
	Drop
	// StopAll skips the record and ends pagination: no subsequent
	// record can match.
	StopAll
)

func (d Decision) String() string {
	switch d {
	case Keep:
		return "keep"
	case Drop:
		return "drop"
	case StopAll:
		return "stop_all"
	default:
		return "unknown"
	}
}

// Decide evaluates one record against the filter. Pure function, no state.
func Decide(a *storage.Activity, spec FilterSpec) Decision {
	if !spec.MinDate.IsZero() && a.StartedAt.Before(spec.MinDate) {
		return StopAll
	}

	if len(spec.Types) > 0 {
		matched := false
		for _, t := range spec.Types {
			if a.Type == t {
				matched = true
				break
			}
		}
		if !matched {
			return Drop
		}
	}

	return Keep
}
