package auth

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/PaceOps/stride/internal/extract"
	"github.com/PaceOps/stride/internal/fingerprint"
	"github.com/PaceOps/stride/internal/metrics"
	"github.com/PaceOps/stride/pkg/httpclient"
	"github.com/PaceOps/stride/pkg/ratelimit"
	"github.com/PaceOps/stride/pkg/useragent"
	"github.com/cenkalti/backoff/v4"
	"golang.org/x/sync/singleflight"
)

// ErrSessionFailed means a working session could not be created or
// restored: bad credentials, a lockout alert, or the reconnect ceiling
// was exhausted. It is fatal to the whole crawl.
var ErrSessionFailed = errors.New("auth: unable to create or update session")

// State is the position of a Session in its lifecycle.
type State int

const (
	StateUnauthenticated State = iota
	StateAuthenticating
	StateAuthenticated
	StateReconnecting
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateUnauthenticated:
		return "unauthenticated"
	case StateAuthenticating:
		return "authenticating"
	case StateAuthenticated:
		return "authenticated"
	case StateReconnecting:
		return "reconnecting"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// ReconnectPolicy bounds the login retry loop after a silent
// invalidation.
type ReconnectPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

func (p ReconnectPolicy) withDefaults() ReconnectPolicy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = 3
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = 5 * time.Second
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = time.Minute
	}
	return p
}

// Options configures a Session.
type Options struct {
	// BaseURL of the target site. Defaults to https://www.strava.com.
	BaseURL string
	// Client overrides the HTTP client. When nil, a cookie-jar client
	// with the configured fingerprint transport is built.
	Client      *httpclient.Client
	Fingerprint fingerprint.Profile
	UAPool      *useragent.Pool
	// Detectors override the session invalidation heuristics.
	Detectors []Detector
	Reconnect ReconnectPolicy
	Logger    *slog.Logger
}

// Response is the fully-read outcome of an authenticated request.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
	// URL is the final URL after redirects.
	URL *url.URL
}

// Session owns the authenticated state against the target site: the
// cookie jar, the login flag, and the reconnect machinery. Exactly one
// Session is live per crawl; every page request flows through Execute.
// Methods are safe for concurrent use, with at most one login/reconnect
// in flight at any time.
type Session struct {
	creds     Credentials
	base      *url.URL
	client    *httpclient.Client
	userAgent string
	detectors []Detector
	policy    ReconnectPolicy
	logger    *slog.Logger

	mu         sync.Mutex
	state      State
	lastLogin  time.Time
	reconnects int
	// generation counts completed logins. Reconnect uses it to tell a
	// finished reconnect apart from one that has not started yet.
	generation uint64

	flight singleflight.Group
}

// NewSession creates a session for the given account. No network traffic
// happens until Login or the first Execute.
func NewSession(creds Credentials, opts Options) (*Session, error) {
	if err := creds.Validate(); err != nil {
		return nil, err
	}

	if opts.BaseURL == "" {
		opts.BaseURL = "https://www.strava.com"
	}
	base, err := url.Parse(opts.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("auth: invalid base url: %w", err)
	}

	client := opts.Client
	if client == nil {
		if opts.Fingerprint == "" {
			opts.Fingerprint = fingerprint.ProfileChrome
		}
		transport, err := fingerprint.Transport(opts.Fingerprint)
		if err != nil {
			return nil, err
		}
		client, err = httpclient.New(httpclient.Config{
			UseCookieJar: true,
			Transport:    transport,
		})
		if err != nil {
			return nil, err
		}
	}

	uaPool := opts.UAPool
	if uaPool == nil {
		uaPool = useragent.NewPool(nil)
	}

	detectors := opts.Detectors
	if detectors == nil {
		detectors = DefaultDetectors()
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Session{
		creds: creds,
		base:  base,
		// One UA for the session's lifetime.
		userAgent: uaPool.Pin(),
		client:    client,
		detectors: detectors,
		policy:    opts.Reconnect.withDefaults(),
		logger:    logger,
	}, nil
}

// State reports the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Close releases the session's network resources. The session is never
// persisted: a new crawl always starts from a fresh login.
func (s *Session) Close() {
	s.client.CloseIdleConnections()
}

// Login establishes the session. It is idempotent: when the session is
// already authenticated it returns immediately without issuing a network
// login, and concurrent callers share a single login attempt.
func (s *Session) Login(ctx context.Context) error {
	s.mu.Lock()
	if s.state == StateAuthenticated {
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	_, err, _ := s.flight.Do("connect", func() (any, error) {
		s.mu.Lock()
		if s.state == StateAuthenticated {
			s.mu.Unlock()
			return nil, nil
		}
		s.state = StateAuthenticating
		s.mu.Unlock()

		if err := s.doLogin(ctx); err != nil {
			s.setState(StateFailed)
			return nil, fmt.Errorf("%w: %v", ErrSessionFailed, err)
		}

		s.markAuthenticated()
		s.logger.Info("session established")
		return nil, nil
	})
	return err
}

// Execute performs an authenticated GET of targetURL. If the session has
// not been established yet it logs in first. When the response shows the
// site silently logged us out, a reconnect cycle runs (shared across
// concurrent callers) and the request is re-issued once.
func (s *Session) Execute(ctx context.Context, targetURL string) (*Response, error) {
	s.mu.Lock()
	state := s.state
	s.mu.Unlock()

	if state == StateFailed {
		return nil, ErrSessionFailed
	}
	if state != StateAuthenticated {
		if err := s.Login(ctx); err != nil {
			return nil, err
		}
	}

	// The login generation behind this request. A reconnect triggered by
	// its response is redundant once a newer login exists.
	gen := s.loginGeneration()

	resp, err := s.get(ctx, targetURL)
	if err != nil {
		// Network-level failure; the page fetcher classifies and
		// retries it, and the retried request re-enters Execute.
		return nil, err
	}

	if invalid, reason := s.invalidated(resp); invalid {
		metrics.SessionInvalidations.Inc()
		s.logger.Warn("session invalidated",
			"event", "session_invalidated",
			"url", targetURL,
			"reason", reason,
		)

		if err := s.reconnect(ctx, gen); err != nil {
			return nil, err
		}

		resp, err = s.get(ctx, targetURL)
		if err != nil {
			return nil, err
		}

		// A page that still reads logged-out on a freshly established
		// session means the account itself is in trouble; returning the
		// body would let the caller misread it as an empty feed.
		if invalid, reason := s.invalidated(resp); invalid {
			return nil, fmt.Errorf("%w: still invalid after reconnect: %s", ErrSessionFailed, reason)
		}
	}

	return resp, nil
}

// reconnect runs the bounded login retry loop. Concurrent callers that
// observe an invalidated session share one in-flight reconnect via
// singleflight rather than each starting their own. since is the login
// generation the invalidated request was issued under: a generation
// that has advanced past it proves another caller already relogged in,
// so the flight returns without touching the session.
func (s *Session) reconnect(ctx context.Context, since uint64) error {
	_, err, _ := s.flight.Do("connect", func() (any, error) {
		s.mu.Lock()
		if s.generation > since {
			s.mu.Unlock()
			return nil, nil
		}
		s.state = StateReconnecting
		s.reconnects++
		s.mu.Unlock()

		bo := backoff.NewExponentialBackOff()
		bo.InitialInterval = s.policy.BaseDelay
		bo.MaxInterval = s.policy.MaxDelay
		bo.MaxElapsedTime = 0
		bo.Reset()

		for attempt := 1; attempt <= s.policy.MaxAttempts; attempt++ {
			err := s.doLogin(ctx)
			if err == nil {
				s.markAuthenticated()
				metrics.SessionReconnects.WithLabelValues("ok").Inc()
				s.logger.Info("session reestablished",
					"event", "session_reconnected",
					"attempt", attempt,
				)
				return nil, nil
			}

			s.logger.Error("reconnect attempt failed",
				"event", "session_reconnect_failed",
				"attempt", attempt,
				"max_attempts", s.policy.MaxAttempts,
				"err", err,
			)

			if ctx.Err() != nil {
				s.setState(StateFailed)
				return nil, fmt.Errorf("%w: %v", ErrSessionFailed, ctx.Err())
			}
			if attempt < s.policy.MaxAttempts {
				if err := ratelimit.Sleep(ctx, bo.NextBackOff()); err != nil {
					s.setState(StateFailed)
					return nil, fmt.Errorf("%w: %v", ErrSessionFailed, err)
				}
			}
		}

		s.setState(StateFailed)
		metrics.SessionReconnects.WithLabelValues("failed").Inc()
		return nil, fmt.Errorf("%w: %d reconnect attempts exhausted", ErrSessionFailed, s.policy.MaxAttempts)
	})
	return err
}

// doLogin performs one full login flow: fetch the login page, lift the
// csrf token, post the credential form, and verify the resulting page is
// authenticated.
func (s *Session) doLogin(ctx context.Context) error {
	// Stale cookies from a dead session confuse the login flow.
	if err := s.client.ResetJar(); err != nil {
		return err
	}

	loginPage, err := s.get(ctx, s.abs("/login"))
	if err != nil {
		return fmt.Errorf("fetch login page: %w", err)
	}

	token, err := extract.CSRFToken(loginPage.Body)
	if err != nil {
		return err
	}

	form := url.Values{
		"authenticity_token": {token},
		"email":              {s.creds.Email},
		"password":           {s.creds.Password},
	}

	resp, err := s.postForm(ctx, s.abs("/session"), form)
	if err != nil {
		return fmt.Errorf("post login form: %w", err)
	}

	if invalid, reason := s.invalidated(resp); invalid {
		// The alert banner carries the site's own diagnostic: bad
		// credentials, "already logged in", lockout.
		if alert := extract.AlertMessage(resp.Body); alert != "" {
			reason = alert
		}
		return fmt.Errorf("login rejected: %s", reason)
	}

	return nil
}

func (s *Session) invalidated(resp *Response) (bool, string) {
	for _, d := range s.detectors {
		if invalid, reason := d(resp.StatusCode, resp.URL, resp.Body); invalid {
			return true, reason
		}
	}
	return false, ""
}

func (s *Session) markAuthenticated() {
	s.mu.Lock()
	s.state = StateAuthenticated
	s.lastLogin = time.Now()
	s.generation++
	s.mu.Unlock()
}

func (s *Session) loginGeneration() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.generation
}

func (s *Session) setState(state State) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}

func (s *Session) abs(path string) string {
	u := *s.base
	u.Path = path
	return u.String()
}

func (s *Session) get(ctx context.Context, targetURL string) (*Response, error) {
	req, err := http.NewRequest(http.MethodGet, targetURL, nil)
	if err != nil {
		return nil, fmt.Errorf("auth: build request: %w", err)
	}
	return s.send(ctx, req)
}

func (s *Session) postForm(ctx context.Context, targetURL string, form url.Values) (*Response, error) {
	req, err := http.NewRequest(http.MethodPost, targetURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("auth: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return s.send(ctx, req)
}

func (s *Session) send(ctx context.Context, req *http.Request) (*Response, error) {
	req.Header.Set("User-Agent", s.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.5")

	resp, err := s.client.Do(ctx, req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("auth: read body: %w", err)
	}

	finalURL := req.URL
	if resp.Request != nil && resp.Request.URL != nil {
		finalURL = resp.Request.URL
	}

	return &Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       body,
		URL:        finalURL,
	}, nil
}
