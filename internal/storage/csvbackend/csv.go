package csvbackend

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/PaceOps/stride/internal/storage"
)

// ensure csvBackend implements storage.Backend
var _ storage.Backend = (*csvBackend)(nil)

type csvBackend struct {
	mu   sync.Mutex
	file *os.File
}

// headers defines the CSV column order
var headers = []string{
	"id",
	"crawl_id",
	"routable",
	"title",
	"url",
	"athlete",
	"type",
	"started_at",
	"distance_km",
	"moving_time_s",
	"pace_s",
	"elevation_gain",
	"calories",
	"created_at",
}

// New creates a new CSV-backed storage.Backend.
func New(filePath string) (storage.Backend, error) {
	// Open file for appending, create if it doesn't exist
	f, err := os.OpenFile(filePath, os.O_APPEND|os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return nil, fmt.Errorf("csvbackend: %w", err)
	}

	// Check if file is empty to write headers
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("csvbackend: %w", err)
	}

	if info.Size() == 0 {
		w := csv.NewWriter(f)
		if err := w.Write(headers); err != nil {
			f.Close()
			return nil, fmt.Errorf("csvbackend: %w", err)
		}
		w.Flush()
		if err := w.Error(); err != nil {
			f.Close()
			return nil, fmt.Errorf("csvbackend: %w", err)
		}
	}

	return &csvBackend{
		file: f,
	}, nil
}

func (b *csvBackend) Save(ctx context.Context, a *storage.Activity) error {
	record := []string{
		a.ID,
		a.CrawlID,
		strconv.FormatBool(a.Routable),
		a.Title,
		a.URL,
		a.Athlete,
		a.Type,
		a.StartedAt.Format(time.RFC3339),
		strconv.FormatFloat(a.DistanceKm, 'f', -1, 64),
		strconv.FormatInt(int64(a.MovingTime.Seconds()), 10),
		strconv.FormatInt(int64(a.Pace.Seconds()), 10),
		strconv.Itoa(a.ElevationGain),
		strconv.Itoa(a.Calories),
		a.CreatedAt.Format(time.RFC3339Nano),
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	// Ensure we're at the end of the file for appending (just in case)
	if _, err := b.file.Seek(0, io.SeekEnd); err != nil {
		return fmt.Errorf("csvbackend: %w", err)
	}

	w := csv.NewWriter(b.file)
	if err := w.Write(record); err != nil {
		return fmt.Errorf("csvbackend: %w", err)
	}
	w.Flush()

	if err := w.Error(); err != nil {
		return fmt.Errorf("csvbackend: %w", err)
	}

	return nil
}

func (b *csvBackend) Query(ctx context.Context, filter storage.Filter) ([]*storage.Activity, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	// Seek to the beginning of the file to read all entries
	if _, err := b.file.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("csvbackend: %w", err)
	}
	defer func() {
		// Restore pointer to end for writing
		_, _ = b.file.Seek(0, io.SeekEnd)
	}()

	r := csv.NewReader(b.file)

	// Read headers
	_, err := r.Read()
	if err != nil {
		if err == io.EOF {
			return []*storage.Activity{}, nil
		}
		return nil, fmt.Errorf("csvbackend: %w", err)
	}

	var allFiltered []*storage.Activity

	for {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("csvbackend: %w", err)
		}

		if len(record) != len(headers) {
			continue // skip malformed rows
		}

		routable, _ := strconv.ParseBool(record[2])
		startedAt, _ := time.Parse(time.RFC3339, record[7])
		distance, _ := strconv.ParseFloat(record[8], 64)
		movingS, _ := strconv.ParseInt(record[9], 10, 64)
		paceS, _ := strconv.ParseInt(record[10], 10, 64)
		elevation, _ := strconv.Atoi(record[11])
		calories, _ := strconv.Atoi(record[12])
		createdAt, _ := time.Parse(time.RFC3339Nano, record[13])

		a := &storage.Activity{
			ID:            record[0],
			CrawlID:       record[1],
			Routable:      routable,
			Title:         record[3],
			URL:           record[4],
			Athlete:       record[5],
			Type:          record[6],
			StartedAt:     startedAt,
			DistanceKm:    distance,
			MovingTime:    time.Duration(movingS) * time.Second,
			Pace:          time.Duration(paceS) * time.Second,
			ElevationGain: elevation,
			Calories:      calories,
			CreatedAt:     createdAt,
		}

		// Apply filters
		if filter.CrawlID != "" && a.CrawlID != filter.CrawlID {
			continue
		}
		if filter.Athlete != "" && a.Athlete != filter.Athlete {
			continue
		}
		if filter.Type != "" && a.Type != filter.Type {
			continue
		}
		if filter.Since != nil && a.StartedAt.Before(*filter.Since) {
			continue
		}

		allFiltered = append(allFiltered, a)
	}

	// Order by started_at DESC to match the SQL backends
	for i := 0; i < len(allFiltered); i++ {
		for j := i + 1; j < len(allFiltered); j++ {
			if allFiltered[j].StartedAt.After(allFiltered[i].StartedAt) {
				allFiltered[i], allFiltered[j] = allFiltered[j], allFiltered[i]
			}
		}
	}

	// Apply Offset
	if filter.Offset > 0 {
		if filter.Offset >= len(allFiltered) {
			return []*storage.Activity{}, nil
		}
		allFiltered = allFiltered[filter.Offset:]
	}

	// Apply Limit
	if filter.Limit > 0 && filter.Limit < len(allFiltered) {
		allFiltered = allFiltered[:filter.Limit]
	}

	return allFiltered, nil
}

func (b *csvBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.file.Close()
}
