package report

import (
	"encoding/json"
	"fmt"
	"io"
	"text/template"
	"time"

	"github.com/PaceOps/stride/internal/storage"
)

// Summary contains aggregated metrics about one crawl run.
type Summary struct {
	CrawlID         string
	TotalActivities int
	ByType          map[string]int
	ByAthlete       map[string]int
	Routable        int
	TotalDistanceKm float64
	TotalMovingTime time.Duration
	TotalElevation  int
	TotalCalories   int
	EarliestStart   time.Time
	LatestStart     time.Time
}

// GenerateSummary aggregates a slice of crawled activities. The CrawlID
// is taken from the first record; mixing runs is the caller's problem.
func GenerateSummary(activities []*storage.Activity) Summary {
	s := Summary{
		ByType:    make(map[string]int),
		ByAthlete: make(map[string]int),
	}

	if len(activities) == 0 {
		return s
	}

	s.CrawlID = activities[0].CrawlID
	s.EarliestStart = activities[0].StartedAt
	s.LatestStart = activities[0].StartedAt

	for _, a := range activities {
		s.TotalActivities++
		s.ByType[a.Type]++
		s.ByAthlete[a.Athlete]++
		if a.Routable {
			s.Routable++
		}
		s.TotalDistanceKm += a.DistanceKm
		s.TotalMovingTime += a.MovingTime
		s.TotalElevation += a.ElevationGain
		s.TotalCalories += a.Calories

		if a.StartedAt.Before(s.EarliestStart) {
			s.EarliestStart = a.StartedAt
		}
		if a.StartedAt.After(s.LatestStart) {
			s.LatestStart = a.StartedAt
		}
	}

	return s
}

// WriteJSON writes the summary to the provided writer in JSON format.
func WriteJSON(w io.Writer, summary Summary) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(summary); err != nil {
		return fmt.Errorf("report: %w", err)
	}
	return nil
}

const textTmpl = `Stride Crawl Summary
--------------------
Crawl:         {{.CrawlID}}
Activities:    {{.TotalActivities}} ({{.Routable}} with route)
Span:          {{.EarliestStart.Format "2006-01-02 15:04:05"}} - {{.LatestStart.Format "2006-01-02 15:04:05"}}
Distance:      {{printf "%.1f" .TotalDistanceKm}} km
Moving time:   {{.TotalMovingTime}}
Elevation:     {{.TotalElevation}} m
Calories:      {{.TotalCalories}}

By type:
{{- range $type, $count := .ByType}}
  {{if $type}}{{$type}}{{else}}(unknown){{end}}: {{$count}}
{{- end}}

By athlete:
{{- range $name, $count := .ByAthlete}}
  {{$name}}: {{$count}}
{{- end}}
`

// WriteText writes a human-readable text summary to the provided writer.
func WriteText(w io.Writer, summary Summary) error {
	tmpl, err := template.New("summary").Parse(textTmpl)
	if err != nil {
		return fmt.Errorf("report: %w", err)
	}
	if err := tmpl.Execute(w, summary); err != nil {
		return fmt.Errorf("report: %w", err)
	}
	return nil
}
