package auth

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/PaceOps/stride/pkg/httpclient"
)

const (
	sitePassword = "hunter2"
	siteCSRF     = "tok-abc123"
)

// fakeSite is a minimal stand-in for the target site: a csrf-guarded
// login form, a member page, and a server-side login flag the tests can
// flip to simulate silent invalidation.
type fakeSite struct {
	mu         sync.Mutex
	loggedIn   bool
	logins     int
	rejectAll  bool
	stalePages bool
	memberHits int
}

func (f *fakeSite) handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/login", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `<html class="logged-out"><head><meta name="csrf-token" content="`+siteCSRF+`"></head><body></body></html>`)
	})

	mux.HandleFunc("/session", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		_ = r.ParseForm()

		f.mu.Lock()
		ok := !f.rejectAll &&
			r.PostForm.Get("authenticity_token") == siteCSRF &&
			r.PostForm.Get("password") == sitePassword
		if ok {
			f.loggedIn = true
			f.logins++
		}
		f.mu.Unlock()

		if !ok {
			io.WriteString(w, `<html class="logged-out"><head></head><body><div class="alert-message">Email or password incorrect.</div></body></html>`)
			return
		}
		io.WriteString(w, `<html class="logged-in"><head></head><body>welcome</body></html>`)
	})

	mux.HandleFunc("/page", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.memberHits++
		in := f.loggedIn && !f.stalePages
		f.mu.Unlock()

		if !in {
			io.WriteString(w, `<html class="logged-out"><body></body></html>`)
			return
		}
		io.WriteString(w, `<html class="logged-in"><body>member content</body></html>`)
	})

	return mux
}

func (f *fakeSite) invalidate() {
	f.mu.Lock()
	f.loggedIn = false
	f.mu.Unlock()
}

func (f *fakeSite) loginCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.logins
}

func (f *fakeSite) memberCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.memberHits
}

func newTestSession(t *testing.T, baseURL, password string) *Session {
	t.Helper()

	client, err := httpclient.New(httpclient.Config{UseCookieJar: true})
	if err != nil {
		t.Fatalf("httpclient.New: %v", err)
	}

	s, err := NewSession(
		Credentials{Email: "test@example.com", Password: password},
		Options{
			BaseURL: baseURL,
			Client:  client,
			Reconnect: ReconnectPolicy{
				MaxAttempts: 2,
				BaseDelay:   time.Millisecond,
				MaxDelay:    time.Millisecond,
			},
			Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		},
	)
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	return s
}

func TestNewSessionRequiresCredentials(t *testing.T) {
	if _, err := NewSession(Credentials{}, Options{}); err == nil {
		t.Fatal("expected error for empty credentials")
	}
}

func TestLogin(t *testing.T) {
	site := &fakeSite{}
	srv := httptest.NewServer(site.handler())
	defer srv.Close()

	s := newTestSession(t, srv.URL, sitePassword)
	defer s.Close()

	if got := s.State(); got != StateUnauthenticated {
		t.Fatalf("initial state: got %v", got)
	}

	if err := s.Login(context.Background()); err != nil {
		t.Fatalf("Login: %v", err)
	}
	if got := s.State(); got != StateAuthenticated {
		t.Errorf("state after login: got %v", got)
	}
	if site.loginCount() != 1 {
		t.Errorf("expected 1 login, got %d", site.loginCount())
	}

	// Idempotent: a second Login must not hit the network again.
	if err := s.Login(context.Background()); err != nil {
		t.Fatalf("second Login: %v", err)
	}
	if site.loginCount() != 1 {
		t.Errorf("second Login issued a network login, total %d", site.loginCount())
	}
}

func TestLoginBadCredentials(t *testing.T) {
	site := &fakeSite{}
	srv := httptest.NewServer(site.handler())
	defer srv.Close()

	s := newTestSession(t, srv.URL, "wrong")
	defer s.Close()

	err := s.Login(context.Background())
	if !errors.Is(err, ErrSessionFailed) {
		t.Fatalf("expected ErrSessionFailed, got %v", err)
	}
	// The site's own alert banner is the diagnostic.
	if !strings.Contains(err.Error(), "Email or password incorrect") {
		t.Errorf("error does not carry the alert message: %v", err)
	}
	if got := s.State(); got != StateFailed {
		t.Errorf("state after failed login: got %v", got)
	}
}

func TestExecuteLogsInLazily(t *testing.T) {
	site := &fakeSite{}
	srv := httptest.NewServer(site.handler())
	defer srv.Close()

	s := newTestSession(t, srv.URL, sitePassword)
	defer s.Close()

	resp, err := s.Execute(context.Background(), srv.URL+"/page")
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status: got %d", resp.StatusCode)
	}
	if !strings.Contains(string(resp.Body), "member content") {
		t.Errorf("unexpected body: %q", resp.Body)
	}
	if site.loginCount() != 1 {
		t.Errorf("expected lazy login, got %d logins", site.loginCount())
	}
}

func TestExecuteReconnectsAfterInvalidation(t *testing.T) {
	site := &fakeSite{}
	srv := httptest.NewServer(site.handler())
	defer srv.Close()

	s := newTestSession(t, srv.URL, sitePassword)
	defer s.Close()

	if err := s.Login(context.Background()); err != nil {
		t.Fatalf("Login: %v", err)
	}

	// Simulate the site dropping the session server-side.
	site.invalidate()

	resp, err := s.Execute(context.Background(), srv.URL+"/page")
	if err != nil {
		t.Fatalf("Execute after invalidation: %v", err)
	}
	if !strings.Contains(string(resp.Body), "member content") {
		t.Errorf("expected member content after reconnect, got %q", resp.Body)
	}
	if site.loginCount() != 2 {
		t.Errorf("expected exactly one reconnect login, total %d", site.loginCount())
	}
	if got := s.State(); got != StateAuthenticated {
		t.Errorf("state after reconnect: got %v", got)
	}
}

func TestConcurrentExecutesShareOneReconnect(t *testing.T) {
	site := &fakeSite{}
	srv := httptest.NewServer(site.handler())
	defer srv.Close()

	s := newTestSession(t, srv.URL, sitePassword)
	defer s.Close()

	if err := s.Login(context.Background()); err != nil {
		t.Fatalf("Login: %v", err)
	}
	site.invalidate()

	var wg sync.WaitGroup
	errs := make([]error, 8)
	for i := range errs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = s.Execute(context.Background(), srv.URL+"/page")
		}()
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Errorf("Execute %d: %v", i, err)
		}
	}
	if site.loginCount() != 2 {
		t.Errorf("expected one shared reconnect login, total %d", site.loginCount())
	}
}

func TestExecuteRejectsPageStillInvalidAfterReconnect(t *testing.T) {
	site := &fakeSite{}
	srv := httptest.NewServer(site.handler())
	defer srv.Close()

	s := newTestSession(t, srv.URL, sitePassword)
	defer s.Close()

	if err := s.Login(context.Background()); err != nil {
		t.Fatalf("Login: %v", err)
	}

	// Logins succeed, yet member pages keep rendering logged-out (a
	// locked account does this). The page must not be handed to the
	// caller as a valid response.
	site.mu.Lock()
	site.stalePages = true
	site.mu.Unlock()

	_, err := s.Execute(context.Background(), srv.URL+"/page")
	if !errors.Is(err, ErrSessionFailed) {
		t.Fatalf("expected ErrSessionFailed, got %v", err)
	}
	if site.loginCount() != 2 {
		t.Errorf("expected one reconnect login, total %d", site.loginCount())
	}
}

func TestReconnectCeilingFailsSession(t *testing.T) {
	site := &fakeSite{}
	srv := httptest.NewServer(site.handler())
	defer srv.Close()

	s := newTestSession(t, srv.URL, sitePassword)
	defer s.Close()

	if err := s.Login(context.Background()); err != nil {
		t.Fatalf("Login: %v", err)
	}

	// Invalidate and lock the account: every reconnect attempt fails.
	site.invalidate()
	site.mu.Lock()
	site.rejectAll = true
	site.mu.Unlock()

	_, err := s.Execute(context.Background(), srv.URL+"/page")
	if !errors.Is(err, ErrSessionFailed) {
		t.Fatalf("expected ErrSessionFailed, got %v", err)
	}
	if got := s.State(); got != StateFailed {
		t.Errorf("state after exhausted reconnects: got %v", got)
	}

	// A failed session fails fast without further traffic.
	before := site.memberCount()
	if _, err := s.Execute(context.Background(), srv.URL+"/page"); !errors.Is(err, ErrSessionFailed) {
		t.Fatalf("expected fail-fast ErrSessionFailed, got %v", err)
	}
	if site.memberCount() != before {
		t.Error("failed session still issued a page request")
	}
}
