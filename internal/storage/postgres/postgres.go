package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/PaceOps/stride/internal/storage"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ensure postgresBackend implements storage.Backend
var _ storage.Backend = (*postgresBackend)(nil)

type postgresBackend struct {
	pool *pgxpool.Pool
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
	started_at TIMESTAMPTZ NOT NULL,
	distance_km DOUBLE PRECISION NOT NULL,
	moving_time_s BIGINT NOT NULL,
	pace_s BIGINT NOT NULL,
	elevation_gain INTEGER NOT NULL,
	calories INTEGER NOT NULL,
	created_at TIMESTAMPTZ NOT NULL
);
`

// New creates a new Postgres-backed storage.Backend.
func New(ctx context.Context, dsn string) (storage.Backend, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("postgres: %w", err)
	}

	_, err = pool.Exec(ctx, schema)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: %w", err)
	}

	return &postgresBackend{pool: pool}, nil
}

func (b *postgresBackend) Save(ctx context.Context, a *storage.Activity) error {
	query := `
	INSERT INTO activities (
		id, crawl_id, routable, title, url, athlete, type, started_at,
		distance_km, moving_time_s, pace_s, elevation_gain, calories, created_at
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`

	_, err := b.pool.Exec(ctx, query,
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
		return fmt.Errorf("postgres: %w", err)
	}

	return nil
}

func (b *postgresBackend) Query(ctx context.Context, filter storage.Filter) ([]*storage.Activity, error) {
	query := `SELECT id, crawl_id, routable, title, url, athlete, type, started_at,
	distance_km, moving_time_s, pace_s, elevation_gain, calories, created_at
	FROM activities WHERE 1=1`
	args := []any{}
	paramCount := 1

	if filter.CrawlID != "" {
		query += fmt.Sprintf(` AND crawl_id = $%d`, paramCount)
		args = append(args, filter.CrawlID)
		paramCount++
	}
	if filter.Athlete != "" {
		query += fmt.Sprintf(` AND athlete = $%d`, paramCount)
		args = append(args, filter.Athlete)
		paramCount++
	}
	if filter.Type != "" {
		query += fmt.Sprintf(` AND type = $%d`, paramCount)
		args = append(args, filter.Type)
		paramCount++
	}
	if filter.Since != nil {
		query += fmt.Sprintf(` AND started_at >= $%d`, paramCount)
		args = append(args, *filter.Since)
		paramCount++
	}

	query += ` ORDER BY started_at DESC`

	if filter.Limit > 0 {
		query += fmt.Sprintf(` LIMIT $%d`, paramCount)
		args = append(args, filter.Limit)
		paramCount++
	}
	if filter.Offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, paramCount)
		args = append(args, filter.Offset)
		paramCount++
	}

	rows, err := b.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: %w", err)
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
			return nil, fmt.Errorf("postgres: %w", err)
		}

		a.MovingTime = time.Duration(movingS) * time.Second
		a.Pace = time.Duration(paceS) * time.Second

		results = append(results, &a)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: %w", err)
	}

	return results, nil
}

func (b *postgresBackend) Close() error {
	b.pool.Close()
	return nil
}
