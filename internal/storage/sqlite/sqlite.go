package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/PaceOps/stride/internal/storage"
	_ "modernc.org/sqlite"
)

// ensure sqliteBackend implements storage.Backend
var _ storage.Backend = (*sqliteBackend)(nil)

type sqliteBackend struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS activities (
	id TEXT PRIMARY KEY,
	crawl_id TEXT NOT NULL,
	routable BOOLEAN NOT NULL,
	title TEXT NOT NULL,
	url TEXT NOT NULL,
	athlete TEXT NOT NULL,
	type TEXT NOT NULL,
	started_at DATETIME NOT NULL,
	distance_km REAL NOT NULL,
	moving_time_s INTEGER NOT NULL,
	pace_s INTEGER NOT NULL,
	elevation_gain INTEGER NOT NULL,
	calories INTEGER NOT NULL,
	created_at DATETIME NOT NULL
);
`

// New creates a new SQLite-backed storage.Backend.
func New(dsn string) (storage.Backend, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite: %w", err)
	}

	return &sqliteBackend{db: db}, nil
}

func (b *sqliteBackend) Save(ctx context.Context, a *storage.Activity) error {
	query := `
	INSERT INTO activities (
		id, crawl_id, routable, title, url, athlete, type, started_at,
		distance_km, moving_time_s, pace_s, elevation_gain, calories, created_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := b.db.ExecContext(ctx, query,
		a.ID,
		a.CrawlID,
		a.Routable,
		a.Title,
		a.URL,
		a.Athlete,
		a.Type,
		a.StartedAt,
		a.DistanceKm,
		int64(a.MovingTime.Seconds()),
		int64(a.Pace.Seconds()),
		a.ElevationGain,
		a.Calories,
		a.CreatedAt,
	)

	if err != nil {
		return fmt.Errorf("sqlite: %w", err)
	}

	return nil
}

func (b *sqliteBackend) Query(ctx context.Context, filter storage.Filter) ([]*storage.Activity, error) {
	query := `SELECT id, crawl_id, routable, title, url, athlete, type, started_at,
	distance_km, moving_time_s, pace_s, elevation_gain, calories, created_at
	FROM activities WHERE 1=1`
	args := []any{}

	if filter.CrawlID != "" {
		query += ` AND crawl_id = ?`
		args = append(args, filter.CrawlID)
	}
	if filter.Athlete != "" {
		query += ` AND athlete = ?`
		args = append(args, filter.Athlete)
	}
	if filter.Type != "" {
		query += ` AND type = ?`
		args = append(args, filter.Type)
	}
	if filter.Since != nil {
		query += ` AND started_at >= ?`
		args = append(args, *filter.Since)
	}

	query += ` ORDER BY started_at DESC`

	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	}
	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := b.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: %w", err)
	}
	defer rows.Close()

	var results []*storage.Activity
	for rows.Next() {
		var a storage.Activity
		var movingS, paceS int64

		err := rows.Scan(
			&a.ID, &a.CrawlID, &a.Routable, &a.Title, &a.URL, &a.Athlete, &a.Type, &a.StartedAt,
			&a.DistanceKm, &movingS, &paceS, &a.ElevationGain, &a.Calories, &a.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("sqlite: %w", err)
		}

		a.MovingTime = time.Duration(movingS) * time.Second
		a.Pace = time.Duration(paceS) * time.Second

		results = append(results, &a)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: %w", err)
	}

	return results, nil
}

func (b *sqliteBackend) Close() error {
	return b.db.Close()
}
