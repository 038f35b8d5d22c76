package metrics

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	PagesFetched = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stride_pages_fetched_total",
			Help: "Total feed page fetch attempts by outcome",
		},
		[]string{"outcome"},
	)

	FetchRetries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stride_fetch_retries_total",
			Help: "Total retried page fetches by the outcome that caused the retry",
		},
		[]string{"outcome"},
	)

	FetchDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "stride_fetch_duration_seconds",
			Help:    "Duration of a single page fetch attempt in seconds",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
		},
	)

	SessionInvalidations = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "stride_session_invalidations_total",
			Help: "Times the site silently logged the session out",
		},
	)

	SessionReconnects = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stride_session_reconnects_total",
			Help: "Reconnect attempts by result (ok, failed)",
		},
		[]string{"result"},
	)

	ActivitiesExtracted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stride_activities_extracted_total",
			Help: "Activities extracted from feed pages by activity type",
		},
		[]string{"type"},
	)

	RecordsYielded = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "stride_records_yielded_total",
			Help: "Activity records that passed filtering and were yielded to the consumer",
		},
	)
)

// Server encapsulates an HTTP server for Prometheus metrics.
type Server struct {
	srv *http.Server
}

// Start begins listening on the specified port and exposes /metrics.
func Start(port int) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: mux,
	}

	go func() {
		// Suppress the error from intentional shutdown
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			fmt.Printf("metrics server failed: %v\n", err)
		}
	}()

	return &Server{srv: srv}
}

// Stop gracefully shuts down the metrics server.
func (s *Server) Stop(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return s.srv.Shutdown(ctx)
}
