package auth

import (
	"bytes"
	"net/url"
	"strings"
)

// Detector examines a response to decide whether the site has silently
// invalidated the session. The heuristics are duck-typing over HTML and
// will drift with site redesigns, so they stay injectable: the state
// machine never hard-codes them.
type Detector func(status int, finalURL *url.URL, body []byte) (invalid bool, reason string)

// DefaultDetectors returns the standard list of session invalidation detectors.
func DefaultDetectors() []Detector {
	return []Detector{
		detectLoggedOutMarker,
		detectLoginRedirect,
	}
}

// detectLoggedOutMarker looks for the "logged-out" body class the site
// renders on every page served to an unauthenticated visitor. Only the
// head of the document is scanned; the class sits on the <html> tag.
func detectLoggedOutMarker(status int, finalURL *url.URL, body []byte) (bool, string) {
	head := body
	if len(head) > 500 {
		head = head[:500]
	}
	if bytes.Contains(head, []byte("logged-out")) {
		return true, "logged-out marker in page head"
	}
	return false, ""
}

// detectLoginRedirect fires when a request for a member page ended up on
// the login page after redirects.
func detectLoginRedirect(status int, finalURL *url.URL, body []byte) (bool, string) {
	if finalURL == nil {
		return false, ""
	}
	if strings.HasPrefix(finalURL.Path, "/login") {
		return true, "redirected to login page"
	}
	return false, ""
}
