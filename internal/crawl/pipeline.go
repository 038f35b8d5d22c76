package crawl

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/PaceOps/stride/internal/extract"
	"github.com/PaceOps/stride/internal/feed"
	"github.com/PaceOps/stride/internal/metrics"
	"github.com/PaceOps/stride/internal/storage"
	"github.com/google/uuid"
)

// Extractor turns one feed page into ordered entries. The production
// implementation is internal/extract; tests substitute their own.
type Extractor interface {
	Entries(html []byte) ([]extract.Entry, error)
}

// feedExtractor adapts extract.ParseFeed to the Extractor interface.
type feedExtractor struct{}

func (feedExtractor) Entries(html []byte) ([]extract.Entry, error) {
	f, err := extract.ParseFeed(html)
	if err != nil {
		return nil, err
	}
	return f.Entries, nil
}

// Config configures a Pipeline.
type Config struct {
	// BaseURL resolves relative activity hrefs into absolute record
	// URLs. Defaults to https://www.strava.com.
	BaseURL   string
	Extractor Extractor
	Logger    *slog.Logger
}

// Pipeline orchestrates fetch, extract, and filter into a single lazy
// sequence of activity records. It holds no per-crawl state itself:
// every Crawl call starts an independent walk from page one.
type Pipeline struct {
	fetcher   *feed.Fetcher
	extractor Extractor
	base      *url.URL
	logger    *slog.Logger
}

// New creates a Pipeline over the given page fetcher.
func New(fetcher *feed.Fetcher, cfg Config) (*Pipeline, error) {
	if fetcher == nil {
		return nil, fmt.Errorf("crawl: fetcher is required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://www.strava.com"
	}
	base, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("crawl: invalid base url: %w", err)
	}
	if cfg.Extractor == nil {
		cfg.Extractor = feedExtractor{}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &Pipeline{
		fetcher:   fetcher,
		extractor: cfg.Extractor,
		base:      base,
		logger:    cfg.Logger,
	}, nil
}

// Crawl starts a lazy walk over the club's activity feed. Nothing is
// fetched until the first Next call; records are produced page by page
// and never buffered beyond the current page. The iterator is finite
// and not restartable: call Crawl again for a fresh walk (which spends
// request quota again).
func (p *Pipeline) Crawl(clubID int64, spec FilterSpec) *Iterator {
	return &Iterator{
		p:       p,
		crawlID: uuid.New().String(),
		spec:    spec,
		req:     feed.PageRequest{ClubID: clubID},
	}
}

// Iterator is a pull-based sequence of activity records, in feed order
// (page one's records before page two's, each page in the site's native
// descending-time order).
//
//	it := pipeline.Crawl(clubID, spec)
//	defer it.Close()
//	for it.Next(ctx) {
//	    use(it.Record())
//	}
//	if err := it.Err(); err != nil { ... }
type Iterator struct {
	p       *Pipeline
	crawlID string
	spec    FilterSpec

	req      feed.PageRequest
	pending  []storage.Activity
	lastPage bool

	cur  storage.Activity
	err  error
	done bool
}

// CrawlID identifies this walk; every record it yields carries it.
func (it *Iterator) CrawlID() string {
	return it.crawlID
}

// Next advances to the next record, fetching further pages as needed.
// It returns false when the sequence ends; Err distinguishes normal
// exhaustion (and filter cutoff) from a fatal failure.
func (it *Iterator) Next(ctx context.Context) bool {
	for {
		if it.done {
			return false
		}

		if len(it.pending) > 0 {
			rec := it.pending[0]
			it.pending = it.pending[1:]

			switch Decide(&rec, it.spec) {
			case Keep:
				it.cur = rec
				metrics.RecordsYielded.Inc()
				return true
			case Drop:
				continue
			case StopAll:
				it.p.logger.Info("filter cutoff reached, stopping pagination",
					"event", "early_stop",
					"crawl_id", it.crawlID,
					"min_date", it.spec.MinDate,
					"record_date", rec.StartedAt,
				)
				it.done = true
				return false
			}
		}

		if it.lastPage {
			it.done = true
			return false
		}

		if !it.fetchNextPage(ctx) {
			return false
		}
	}
}

// fetchNextPage pulls one more page into pending. Returns false when the
// sequence ended (fatal error or empty feed).
func (it *Iterator) fetchNextPage(ctx context.Context) bool {
	result := it.p.fetcher.FetchPage(ctx, it.req)

	if result.Status != feed.StatusOK {
		// Fatal by construction: FetchPage only surfaces OK or Fatal.
		it.err = result.Err
		it.done = true
		return false
	}

	if result.LastPage {
		it.done = true
		return false
	}

	entries, err := it.p.extractor.Entries(result.HTML)
	if err != nil {
		it.err = err
		it.done = true
		return false
	}

	now := time.Now().UTC()
	for _, e := range entries {
		metrics.ActivitiesExtracted.WithLabelValues(e.Type).Inc()
		it.pending = append(it.pending, it.toRecord(e, now))
	}

	// A cursor that fails to advance would loop on the same page forever.
	if result.NextCursor == "" || result.NextCursor == it.req.Cursor {
		it.lastPage = true
	}
	it.req.Cursor = result.NextCursor

	return true
}

func (it *Iterator) toRecord(e extract.Entry, crawledAt time.Time) storage.Activity {
	recordURL := e.Href
	if ref, err := url.Parse(e.Href); err == nil {
		recordURL = it.p.base.ResolveReference(ref).String()
	}

	return storage.Activity{
		ID:            uuid.New().String(),
		CrawlID:       it.crawlID,
		Routable:      e.Routable,
		Title:         e.Title,
		URL:           recordURL,
		Athlete:       e.Athlete,
		Type:          e.Type,
		StartedAt:     e.StartedAt,
		DistanceKm:    e.Stats.DistanceKm,
		MovingTime:    e.Stats.MovingTime,
		Pace:          e.Stats.Pace,
		ElevationGain: e.Stats.ElevationGain,
		Calories:      e.Stats.Calories,
		CreatedAt:     crawledAt,
	}
}

// Record returns the record produced by the last successful Next call.
func (it *Iterator) Record() storage.Activity {
	return it.cur
}

// Err returns the fatal error that terminated the sequence, or nil on
// normal exhaustion or filter cutoff. Records yielded before the error
// remain valid.
func (it *Iterator) Err() error {
	return it.err
}

// Close abandons the walk. Safe to call at any point, including after
// exhaustion; no further pages will be fetched.
func (it *Iterator) Close() {
	it.done = true
	it.pending = nil
}
