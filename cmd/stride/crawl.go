package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/PaceOps/stride/internal/crawl"
	"github.com/PaceOps/stride/internal/feed"
	"github.com/PaceOps/stride/internal/metrics"
	"github.com/PaceOps/stride/internal/report"
	"github.com/PaceOps/stride/internal/storage"
	"github.com/PaceOps/stride/internal/storage/csvbackend"
	"github.com/PaceOps/stride/internal/storage/jsonbackend"
	"github.com/PaceOps/stride/internal/storage/postgres"
	"github.com/PaceOps/stride/internal/storage/sqlite"
	"github.com/PaceOps/stride/pkg/ratelimit"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func newCrawlCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "crawl",
		Short: "Crawl a club's activity feed into a storage backend",
		RunE:  runCrawl,
	}

	cmd.Flags().Int64("club-id", 0, "club id to crawl (required)")
	cmd.Flags().String("min-date", "", "drop activities older than this date (YYYY-MM-DD)")
	cmd.Flags().StringSlice("types", nil, "keep only these activity types (e.g. run,ride)")
	cmd.Flags().String("backend", "sqlite", "storage backend: sqlite, postgres, csv, json, none")
	cmd.Flags().String("dsn", "stride.db", "backend DSN or file path")
	cmd.Flags().Float64("rate", 1, "page fetches per second (0 = unlimited)")
	cmd.Flags().Float64("jitter", 0.2, "rate limiter jitter factor (0.0-1.0)")
	cmd.Flags().Int("retries", 3, "retry ceiling for transient page failures")
	cmd.Flags().String("report", "text", "summary format: text, json, none")
	_ = cmd.MarkFlagRequired("club-id")
	_ = viper.BindPFlags(cmd.Flags())

	return cmd
}

func runCrawl(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	clubID := viper.GetInt64("club-id")

	var spec crawl.FilterSpec
	if raw := viper.GetString("min-date"); raw != "" {
		minDate, err := time.Parse("2006-01-02", raw)
		if err != nil {
			return fmt.Errorf("invalid --min-date %q: %w", raw, err)
		}
		spec.MinDate = minDate
	}
	spec.Types = viper.GetStringSlice("types")

	if port := viper.GetInt("metrics-port"); port > 0 {
		srv := metrics.Start(port)
		defer func() { _ = srv.Stop(context.Background()) }()
	}

	session, err := newSession()
	if err != nil {
		return err
	}
	defer session.Close()

	limiter := ratelimit.NewLimiter(viper.GetFloat64("rate"), viper.GetFloat64("jitter"))
	defer limiter.Stop()

	fetcher, err := feed.NewFetcher(session, feed.Config{
		BaseURL: viper.GetString("base-url"),
		Policy:  feed.RetryPolicy{MaxAttempts: viper.GetInt("retries")},
		Limiter: limiter,
		Logger:  slog.Default(),
	})
	if err != nil {
		return err
	}

	pipeline, err := crawl.New(fetcher, crawl.Config{
		BaseURL: viper.GetString("base-url"),
		Logger:  slog.Default(),
	})
	if err != nil {
		return err
	}

	backend, err := openBackend(ctx)
	if err != nil {
		return err
	}
	if backend != nil {
		defer backend.Close()
	}

	it := pipeline.Crawl(clubID, spec)
	defer it.Close()

	var crawled []*storage.Activity
	for it.Next(ctx) {
		rec := it.Record()
		if backend != nil {
			if err := backend.Save(ctx, &rec); err != nil {
				return fmt.Errorf("save activity %s: %w", rec.URL, err)
			}
		}
		crawled = append(crawled, &rec)
	}
	if err := it.Err(); err != nil {
		// Records saved before the failure remain valid; say so.
		slog.Error("crawl terminated early", "crawl_id", it.CrawlID(), "saved", len(crawled), "err", err)
		return err
	}

	slog.Info("crawl finished", "crawl_id", it.CrawlID(), "activities", len(crawled))

	switch viper.GetString("report") {
	case "json":
		return report.WriteJSON(os.Stdout, report.GenerateSummary(crawled))
	case "text":
		return report.WriteText(os.Stdout, report.GenerateSummary(crawled))
	}
	return nil
}

func openBackend(ctx context.Context) (storage.Backend, error) {
	dsn := viper.GetString("dsn")
	switch backend := viper.GetString("backend"); backend {
	case "sqlite":
		return sqlite.New(dsn)
	case "postgres":
		return postgres.New(ctx, dsn)
	case "csv":
		return csvbackend.New(dsn)
	case "json":
		return jsonbackend.New(dsn)
	case "none":
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown backend %q", backend)
	}
}
