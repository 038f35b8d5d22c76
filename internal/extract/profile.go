package extract

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// ErrNicknameNotFound reports a profile page without a usable title,
// e.g. a deleted account or a URL that never pointed at a profile.
var ErrNicknameNotFound = errors.New("extract: profile title not present")

// Nickname pulls the athlete nickname out of a profile page. The site
// renders profile titles as "<something> | <nickname>".
func Nickname(html []byte) (string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(html))
	if err != nil {
		return "", fmt.Errorf("extract: parse profile page: %w", err)
	}

	title := doc.Find("title").First()
	if title.Length() == 0 {
		return "", ErrNicknameNotFound
	}

	text := title.Text()
	idx := strings.Index(text, "| ")
	if idx < 0 {
		return "", ErrNicknameNotFound
	}

	nick := strings.TrimSpace(text[idx+2:])
	if nick == "" {
		return "", ErrNicknameNotFound
	}
	return nick, nil
}

// CSRFToken extracts the login form's csrf token from the login page
// <meta name="csrf-token" content="...">.
func CSRFToken(html []byte) (string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(html))
	if err != nil {
		return "", fmt.Errorf("extract: parse login page: %w", err)
	}

	token, ok := doc.Find(`meta[name="csrf-token"]`).Attr("content")
	if !ok || token == "" {
		return "", errors.New("extract: csrf token not present on login page")
	}
	return token, nil
}

// AlertMessage returns the text of the page's alert banner, if any. The
// site uses it for "already logged in", lockout, and bad-credential
// notices, which is the only diagnostic available after a failed login.
func AlertMessage(html []byte) string {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(html))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(doc.Find("div.alert-message").First().Text())
}
