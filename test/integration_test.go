//go:build integration

package test

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/PaceOps/stride/internal/auth"
	"github.com/PaceOps/stride/internal/crawl"
	"github.com/PaceOps/stride/internal/feed"
	"github.com/PaceOps/stride/internal/report"
	"github.com/PaceOps/stride/internal/storage"
	"github.com/PaceOps/stride/pkg/httpclient"
	"github.com/PaceOps/stride/pkg/ratelimit"
)

// mockBackend is an in-memory storage.Backend for verifying results
type mockBackend struct {
	mu      sync.Mutex
	results []*storage.Activity
}

func (m *mockBackend) Save(ctx context.Context, a *storage.Activity) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.results = append(m.results, a)
	return nil
}
func (m *mockBackend) Query(ctx context.Context, filter storage.Filter) ([]*storage.Activity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.results, nil
}
func (m *mockBackend) Close() error { return nil }

func entry(updatedAt int64, id int, title, athlete, typ, ts string) string {
	return fmt.Sprintf(`
	<div class="activity entity-details feed-entry" data-updated-at="%d">
	  <div class="entry-head">
	    <a class="entry-athlete" href="/athletes/%d">%s</a>
	    <time class="timestamp" datetime="%s"></time>
	  </div>
	  <div class="app-icon icon-%s"></div>
	  <h3 class="entry-title"><strong><a href="/activities/%d">%s</a></strong></h3>
	  <ul class="inline-stats">
	    <li><div class="label">Distance</div><b>8.0 km</b></li>
	  </ul>
	</div>`, updatedAt, id, athlete, ts, typ, id, title)
}

func TestIntegration_CrawlWithMidCrawlInvalidation(t *testing.T) {
	// 1. Setup a fake member site: csrf login, a paginated club feed, and
	// a server-side session flag that gets dropped between pages.
	var (
		mu       sync.Mutex
		loggedIn bool
		logins   int
	)

	mux := http.NewServeMux()
	mux.HandleFunc("/login", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `<html class="logged-out"><head><meta name="csrf-token" content="tok"></head></html>`)
	})
	mux.HandleFunc("/session", func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		loggedIn = true
		logins++
		mu.Unlock()
		io.WriteString(w, `<html class="logged-in"><body>welcome</body></html>`)
	})
	mux.HandleFunc("/clubs/99/feed", func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		in := loggedIn
		mu.Unlock()
		if !in {
			io.WriteString(w, `<html class="logged-out"><body></body></html>`)
			return
		}

		switch r.URL.Query().Get("before") {
		case "":
			io.WriteString(w, `<html class="logged-in"><body>`+
				entry(200, 1, "Morning Run", "Jane Roe", "run", "2021-05-10 07:00:00 UTC")+
				entry(100, 2, "Evening Ride", "Max Power", "ride", "2021-05-09 18:00:00 UTC")+
				`</body></html>`)
			// Drop the session after page one; the crawler has to notice
			// and reconnect before fetching page two.
			mu.Lock()
			loggedIn = false
			mu.Unlock()
		case "100":
			io.WriteString(w, `<html class="logged-in"><body>`+
				entry(50, 3, "Recovery Run", "Jane Roe", "run", "2021-05-08 07:00:00 UTC")+
				`</body></html>`)
		default:
			io.WriteString(w, `<html class="logged-in"><body></body></html>`)
		}
	})

	srv := httptest.NewServer(mux)
	defer srv.Close()

	quiet := slog.New(slog.NewTextHandler(io.Discard, nil))

	// 2. Wire the full stack: session, fetcher, pipeline.
	client, err := httpclient.New(httpclient.Config{UseCookieJar: true})
	if err != nil {
		t.Fatal(err)
	}
	session, err := auth.NewSession(
		auth.Credentials{Email: "test@example.com", Password: "pw"},
		auth.Options{
			BaseURL: srv.URL,
			Client:  client,
			Reconnect: auth.ReconnectPolicy{
				MaxAttempts: 3,
				BaseDelay:   time.Millisecond,
				MaxDelay:    time.Millisecond,
			},
			Logger: quiet,
		},
	)
	if err != nil {
		t.Fatal(err)
	}
	defer session.Close()

	limiter := ratelimit.NewLimiter(100, 0)
	defer limiter.Stop()

	fetcher, err := feed.NewFetcher(session, feed.Config{
		BaseURL: srv.URL,
		Policy: feed.RetryPolicy{
			MaxAttempts:    2,
			BaseDelay:      time.Millisecond,
			MaxDelay:       time.Millisecond,
			RateLimitFloor: time.Millisecond,
		},
		Limiter: limiter,
		Logger:  quiet,
	})
	if err != nil {
		t.Fatal(err)
	}

	pipeline, err := crawl.New(fetcher, crawl.Config{BaseURL: srv.URL, Logger: quiet})
	if err != nil {
		t.Fatal(err)
	}

	// 3. Crawl into the backend.
	backend := &mockBackend{}
	ctx := context.Background()

	it := pipeline.Crawl(99, crawl.FilterSpec{})
	defer it.Close()

	for it.Next(ctx) {
		rec := it.Record()
		if err := backend.Save(ctx, &rec); err != nil {
			t.Fatal(err)
		}
	}
	if err := it.Err(); err != nil {
		t.Fatalf("crawl failed: %v", err)
	}

	// 4. Verify: all three records despite the mid-crawl invalidation,
	// which cost exactly one extra login.
	stored, _ := backend.Query(ctx, storage.Filter{})
	if len(stored) != 3 {
		t.Fatalf("expected 3 records, got %d", len(stored))
	}

	mu.Lock()
	totalLogins := logins
	mu.Unlock()
	if totalLogins != 2 {
		t.Errorf("expected initial login plus one reconnect, got %d logins", totalLogins)
	}

	summary := report.GenerateSummary(stored)
	if summary.TotalActivities != 3 || summary.ByType["run"] != 2 {
		t.Errorf("summary: %+v", summary)
	}
}
