package report

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/PaceOps/stride/internal/storage"
)

func sampleActivities() []*storage.Activity {
	return []*storage.Activity{
		{
			CrawlID:       "crawl-1",
			Routable:      true,
			Athlete:       "Jane Roe",
			Type:          "run",
			StartedAt:     time.Date(2021, 5, 10, 7, 0, 0, 0, time.UTC),
			DistanceKm:    10.5,
			MovingTime:    55 * time.Minute,
			ElevationGain: 120,
			Calories:      700,
		},
		{
			CrawlID:    "crawl-1",
			Athlete:    "Jane Roe",
			Type:       "run",
			StartedAt:  time.Date(2021, 5, 8, 7, 0, 0, 0, time.UTC),
			DistanceKm: 5.0,
			MovingTime: 30 * time.Minute,
			Calories:   300,
		},
		{
			CrawlID:       "crawl-1",
			Routable:      true,
			Athlete:       "Max Power",
			Type:          "ride",
			StartedAt:     time.Date(2021, 5, 9, 9, 0, 0, 0, time.UTC),
			DistanceKm:    42.0,
			MovingTime:    2 * time.Hour,
			ElevationGain: 600,
		},
	}
}

func TestGenerateSummary(t *testing.T) {
	s := GenerateSummary(sampleActivities())

	if s.CrawlID != "crawl-1" {
		t.Errorf("crawl id: got %q", s.CrawlID)
	}
	if s.TotalActivities != 3 {
		t.Errorf("total: got %d", s.TotalActivities)
	}
	if s.ByType["run"] != 2 || s.ByType["ride"] != 1 {
		t.Errorf("by type: %+v", s.ByType)
	}
	if s.ByAthlete["Jane Roe"] != 2 || s.ByAthlete["Max Power"] != 1 {
		t.Errorf("by athlete: %+v", s.ByAthlete)
	}
	if s.Routable != 2 {
		t.Errorf("routable: got %d", s.Routable)
	}
	if s.TotalDistanceKm != 57.5 {
		t.Errorf("distance: got %v", s.TotalDistanceKm)
	}
	if s.TotalMovingTime != 3*time.Hour+25*time.Minute {
		t.Errorf("moving time: got %v", s.TotalMovingTime)
	}
	if s.TotalElevation != 720 {
		t.Errorf("elevation: got %d", s.TotalElevation)
	}
	if s.TotalCalories != 1000 {
		t.Errorf("calories: got %d", s.TotalCalories)
	}

	wantEarliest := time.Date(2021, 5, 8, 7, 0, 0, 0, time.UTC)
	wantLatest := time.Date(2021, 5, 10, 7, 0, 0, 0, time.UTC)
	if !s.EarliestStart.Equal(wantEarliest) || !s.LatestStart.Equal(wantLatest) {
		t.Errorf("span: %v - %v", s.EarliestStart, s.LatestStart)
	}
}

func TestGenerateSummaryEmpty(t *testing.T) {
	s := GenerateSummary(nil)
	if s.TotalActivities != 0 {
		t.Errorf("total: got %d", s.TotalActivities)
	}
	if len(s.ByType) != 0 || len(s.ByAthlete) != 0 {
		t.Error("expected empty maps")
	}
}

func TestWriteText(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteText(&buf, GenerateSummary(sampleActivities())); err != nil {
		t.Fatalf("WriteText: %v", err)
	}

	out := buf.String()
	for _, want := range []string{"crawl-1", "run: 2", "ride: 1", "Jane Roe: 2", "57.5 km"} {
		if !strings.Contains(out, want) {
			t.Errorf("text summary missing %q:\n%s", want, out)
		}
	}
}

func TestWriteJSON(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteJSON(&buf, GenerateSummary(sampleActivities())); err != nil {
		t.Fatalf("WriteJSON: %v", err)
	}

	var round Summary
	if err := json.Unmarshal(buf.Bytes(), &round); err != nil {
		t.Fatalf("output is not valid JSON: %v", err)
	}
	if round.TotalActivities != 3 || round.ByType["run"] != 2 {
		t.Errorf("round trip: %+v", round)
	}
}
