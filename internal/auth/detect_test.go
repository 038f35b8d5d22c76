package auth

import (
	"net/url"
	"strings"
	"testing"
)

func TestDetectLoggedOutMarker(t *testing.T) {
	loggedOut := []byte(`<!DOCTYPE html><html class="logged-out"><body></body></html>`)
	if invalid, _ := detectLoggedOutMarker(200, nil, loggedOut); !invalid {
		t.Error("expected logged-out page to be flagged")
	}

	loggedIn := []byte(`<!DOCTYPE html><html class="logged-in"><body></body></html>`)
	if invalid, _ := detectLoggedOutMarker(200, nil, loggedIn); invalid {
		t.Error("logged-in page flagged as invalid")
	}

	// The marker only counts when it sits in the document head; a page
	// merely mentioning the string further down is fine.
	deep := []byte(`<html class="logged-in">` + strings.Repeat(" ", 600) + `logged-out</html>`)
	if invalid, _ := detectLoggedOutMarker(200, nil, deep); invalid {
		t.Error("marker past the head flagged as invalid")
	}
}

func TestDetectLoginRedirect(t *testing.T) {
	login, _ := url.Parse("https://example.com/login")
	if invalid, _ := detectLoginRedirect(200, login, nil); !invalid {
		t.Error("expected login redirect to be flagged")
	}

	feed, _ := url.Parse("https://example.com/clubs/1/feed")
	if invalid, _ := detectLoginRedirect(200, feed, nil); invalid {
		t.Error("member page flagged as login redirect")
	}

	if invalid, _ := detectLoginRedirect(200, nil, nil); invalid {
		t.Error("nil URL flagged as login redirect")
	}
}
