package extract

import (
	"testing"
	"time"
)

func TestParseDistance(t *testing.T) {
	cases := []struct {
		in   string
		want float64
	}{
		{"7.52 km", 7.52},
		{"1,024.3 km", 1024.3},
		{"30 km", 30},
		{"", 0},
		{"n/a", 0},
	}
	for _, tc := range cases {
		if got := parseDistance(tc.in); got != tc.want {
			t.Errorf("parseDistance(%q): got %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestParseClock(t *testing.T) {
	cases := []struct {
		in   string
		want time.Duration
	}{
		{"41:23", 41*time.Minute + 23*time.Second},
		{"1:02:03", time.Hour + 2*time.Minute + 3*time.Second},
		{"58s", 58 * time.Second},
		{"", 0},
	}
	for _, tc := range cases {
		if got := parseClock(tc.in); got != tc.want {
			t.Errorf("parseClock(%q): got %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestParsePace(t *testing.T) {
	cases := []struct {
		in   string
		want time.Duration
	}{
		{"5:31 /km", 5*time.Minute + 31*time.Second},
		{"7s/km", 7 * time.Second},
		{"4:05/km", 4*time.Minute + 5*time.Second},
	}
	for _, tc := range cases {
		if got := parsePace(tc.in); got != tc.want {
			t.Errorf("parsePace(%q): got %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestParseCalories(t *testing.T) {
	cases := []struct {
		in   string
		want int
	}{
		{"684", 684},
		{"1,099", 1099},
		{"—", 0},
		{"-", 0},
		{"", 0},
	}
	for _, tc := range cases {
		if got := parseCalories(tc.in); got != tc.want {
			t.Errorf("parseCalories(%q): got %d, want %d", tc.in, got, tc.want)
		}
	}
}

func TestCleanNickname(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"\nJohn Doe\nSubscriber\n", "John Doe"},
		{"Jane Roe", "Jane Roe"},
		{"  Max Power  ", "Max Power"},
	}
	for _, tc := range cases {
		if got := cleanNickname(tc.in); got != tc.want {
			t.Errorf("cleanNickname(%q): got %q, want %q", tc.in, got, tc.want)
		}
	}
}
