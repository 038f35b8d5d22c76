package storage

import (
	"context"
	"time"
)

// Activity is one club feed entry after extraction. Records are immutable
// once constructed: the pipeline builds a fresh value per extracted entry
// and never writes to it again.
type Activity struct {
	ID        string // unique record id
	CrawlID   string // id of the crawl run that produced this record
	Routable  bool   // entry carried a route map
	Title     string
	URL       string // absolute activity page URL
	Athlete   string // author nickname as shown in the feed
	Type      string // "run", "ride", ...
	StartedAt time.Time
	// Stats as shown inline in the feed entry.
	DistanceKm    float64
	MovingTime    time.Duration
	Pace          time.Duration // per km
	ElevationGain int           // meters
	Calories      int
	CreatedAt     time.Time // when the record was crawled
}

// Filter allows querying stored activities.
type Filter struct {
	CrawlID string
	Athlete string
	Type    string
	Since   *time.Time // StartedAt lower bound
	Limit   int
	Offset  int
}

// Backend defines the interface for persisting and querying crawled activities.
type Backend interface {
	Save(ctx context.Context, activity *Activity) error
	Query(ctx context.Context, filter Filter) ([]*Activity, error)
	Close() error
}
