// Package extract turns raw club feed HTML into ordered activity entries.
// It owns every layout-specific selector so the crawl core stays ignorant
// of the page structure; when the site ships a redesign, this package is
// the only thing that changes.
package extract

import (
	"bytes"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

// Entry is the raw field-set of one feed activity, in the order the site
// renders it (newest first). Values are parsed but not validated beyond
// what the selectors guarantee.
type Entry struct {
	Routable  bool
	Title     string
	Href      string // relative activity page href
	Athlete   string
	Type      string
	StartedAt time.Time
	Stats     Stats
}

// Stats are the inline statistics shown in the feed entry.
type Stats struct {
	DistanceKm    float64
	MovingTime    time.Duration
	Pace          time.Duration // per km
	ElevationGain int           // meters
	Calories      int
}

// Feed is one parsed page of a club's activity feed.
type Feed struct {
	Entries []Entry
	// NextCursor is the pagination token for the following page, or ""
	// when this page had no entries (i.e. the feed is exhausted).
	NextCursor string
}

const (
	singleEntrySel = "div.activity.entity-details.feed-entry"
	groupEntrySel  = "div.feed-entry.group-activity"
)

// The feed renders timestamps as "2021-05-08 18:38:29 UTC".
const timestampLayout = "2006-01-02 15:04:05 MST"

// ParseFeed extracts all activity entries from one feed page, preserving
// the site's native descending-time order across single and group blocks.
func ParseFeed(html []byte) (*Feed, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("extract: parse feed page: %w", err)
	}

	feed := &Feed{}
	minCursor := int64(-1)

	var parseErr error
	doc.Find(singleEntrySel + ", " + groupEntrySel).Each(func(i int, s *goquery.Selection) {
		if parseErr != nil {
			return
		}

		if raw, ok := s.Attr("data-updated-at"); ok {
			if v, err := strconv.ParseInt(raw, 10, 64); err == nil {
				if minCursor < 0 || v < minCursor {
					minCursor = v
				}
			}
		}

		if s.HasClass("group-activity") {
			entries, err := parseGroupBlock(s)
			if err != nil {
				parseErr = err
				return
			}
			feed.Entries = append(feed.Entries, entries...)
		} else {
			entry, err := parseSingleBlock(s)
			if err != nil {
				parseErr = err
				return
			}
			feed.Entries = append(feed.Entries, entry)
		}
	})
	if parseErr != nil {
		return nil, parseErr
	}

	if minCursor >= 0 {
		feed.NextCursor = strconv.FormatInt(minCursor, 10)
	}

	return feed, nil
}

// PageCursor is the cheap variant used by the page fetcher to classify a
// 2xx response: it only inspects the entry blocks' pagination attributes
// without building entries.
func PageCursor(html []byte) (cursor string, hasEntries bool, err error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(html))
	if err != nil {
		return "", false, fmt.Errorf("extract: parse feed page: %w", err)
	}

	minCursor := int64(-1)
	doc.Find(singleEntrySel + ", " + groupEntrySel).Each(func(i int, s *goquery.Selection) {
		hasEntries = true
		if raw, ok := s.Attr("data-updated-at"); ok {
			if v, err := strconv.ParseInt(raw, 10, 64); err == nil {
				if minCursor < 0 || v < minCursor {
					minCursor = v
				}
			}
		}
	})

	if minCursor >= 0 {
		cursor = strconv.FormatInt(minCursor, 10)
	}
	return cursor, hasEntries, nil
}

func parseSingleBlock(s *goquery.Selection) (Entry, error) {
	head := s.Find("div.entry-head")

	startedAt, err := parseTimestamp(head.Find("time.timestamp").AttrOr("datetime", ""))
	if err != nil {
		return Entry{}, err
	}

	titleLink := s.Find("h3.entry-title strong a").First()
	href, ok := titleLink.Attr("href")
	if !ok {
		return Entry{}, fmt.Errorf("extract: single entry without title link")
	}

	return Entry{
		Routable:  s.Find("a.entry-image.activity-map").Length() > 0,
		Title:     strings.TrimSpace(titleLink.Text()),
		Href:      href,
		Athlete:   cleanNickname(head.Find("a.entry-athlete").Text()),
		Type:      entryType(s),
		StartedAt: startedAt,
		Stats:     parseInlineStats(s.Find("ul.inline-stats").First()),
	}, nil
}

// parseGroupBlock handles a group activity cluster: one shared timestamp
// and map, one inner entry per participant.
func parseGroupBlock(s *goquery.Selection) ([]Entry, error) {
	startedAt, err := parseTimestamp(s.Find("div.entry-head time.timestamp").AttrOr("datetime", ""))
	if err != nil {
		return nil, err
	}
	routable := s.Find("div.group-map").Length() > 0

	var entries []Entry
	var innerErr error
	s.Find("li.feed-entry.entity-details").Each(func(i int, li *goquery.Selection) {
		if innerErr != nil {
			return
		}

		link := li.Find("a.minimal").First()
		href, ok := link.Attr("href")
		if !ok {
			innerErr = fmt.Errorf("extract: group entry without activity link")
			return
		}

		entries = append(entries, Entry{
			Routable:  routable,
			Title:     strings.TrimSpace(link.Text()),
			Href:      href,
			Athlete:   cleanNickname(li.Find("a.entry-athlete").Text()),
			Type:      entryType(li),
			StartedAt: startedAt,
			Stats:     parseInlineStats(li.Find("ul.inline-stats").First()),
		})
	})
	if innerErr != nil {
		return nil, innerErr
	}

	return entries, nil
}

func parseTimestamp(raw string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, fmt.Errorf("extract: entry without timestamp")
	}
	ts, err := time.Parse(timestampLayout, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("extract: bad entry timestamp %q: %w", raw, err)
	}
	return ts.UTC(), nil
}

// nicknameNoise matches the decoration around the athlete name, e.g.
// "\nJohn Doe\nSubscriber\n".
var nicknameNoise = regexp.MustCompile(`\n|\bSubscriber\b`)

func cleanNickname(raw string) string {
	return strings.TrimSpace(nicknameNoise.ReplaceAllString(raw, ""))
}

var iconTypeRe = regexp.MustCompile(`\bicon-([a-z]+)\b`)

// entryType derives the activity type from the entry's app-icon classes
// ("icon-run", "icon-ride", ...), skipping the sizing/shade modifiers.
func entryType(s *goquery.Selection) string {
	class, ok := s.Find(".app-icon").First().Attr("class")
	if !ok {
		return ""
	}
	for _, m := range iconTypeRe.FindAllStringSubmatch(class, -1) {
		switch m[1] {
		case "dark", "light", "lg", "sm", "xs":
			continue
		}
		return m[1]
	}
	return ""
}
