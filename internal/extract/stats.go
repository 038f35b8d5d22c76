package extract

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

// parseInlineStats walks the inline-stats list of one entry and fills in
// whichever stat blocks the entry carries. Entries legitimately omit
// blocks (a ride has no pace, a treadmill run no elevation), so missing
// labels simply leave the zero value.
func parseInlineStats(list *goquery.Selection) Stats {
	var stats Stats

	list.Find("li").Each(func(i int, li *goquery.Selection) {
		label := strings.TrimSpace(li.Find("div.label").Text())
		value := strings.TrimSpace(li.Find("b, strong").First().Text())
		if value == "" {
			// Some layouts render the value as bare text next to the label.
			value = strings.TrimSpace(strings.Replace(li.Text(), label, "", 1))
		}

		switch {
		case label == "Distance":
			stats.DistanceKm = parseDistance(value)
		case label == "Moving Time" || label == "Elapsed Time" || label == "Time":
			stats.MovingTime = parseClock(value)
		case label == "Pace":
			stats.Pace = parsePace(value)
		case strings.HasPrefix(label, "Elev"):
			stats.ElevationGain = parseLeadingInt(value)
		case label == "Calories":
			stats.Calories = parseCalories(value)
		}
	})

	return stats
}

var numberRe = regexp.MustCompile(`[\d.]+`)

// parseDistance reads values like "7.52 km" or "1,024.3 km".
func parseDistance(s string) float64 {
	s = strings.ReplaceAll(s, ",", "")
	m := numberRe.FindString(s)
	if m == "" {
		return 0
	}
	v, err := strconv.ParseFloat(m, 64)
	if err != nil {
		return 0
	}
	return v
}

// parseClock reads "41:23" or "1:02:03" into a duration. A bare "58s"
// style value is treated as seconds.
func parseClock(s string) time.Duration {
	parts := strings.Split(s, ":")
	nums := make([]int, 0, len(parts))
	for _, p := range parts {
		nums = append(nums, parseLeadingInt(p))
	}

	switch len(nums) {
	case 3:
		return time.Duration(nums[0])*time.Hour + time.Duration(nums[1])*time.Minute + time.Duration(nums[2])*time.Second
	case 2:
		return time.Duration(nums[0])*time.Minute + time.Duration(nums[1])*time.Second
	case 1:
		return time.Duration(nums[0]) * time.Second
	}
	return 0
}

// parsePace reads "5:31 /km" or "7s/km" into a per-km duration.
func parsePace(s string) time.Duration {
	parts := strings.Split(s, ":")
	if len(parts) == 1 {
		return time.Duration(parseLeadingInt(parts[0])) * time.Second
	}
	min := parseLeadingInt(parts[0])
	sec := parseLeadingInt(parts[1])
	return time.Duration(min)*time.Minute + time.Duration(sec)*time.Second
}

var leadingIntRe = regexp.MustCompile(`\d+`)

func parseLeadingInt(s string) int {
	m := leadingIntRe.FindString(s)
	if m == "" {
		return 0
	}
	v, err := strconv.Atoi(m)
	if err != nil {
		return 0
	}
	return v
}

// parseCalories reads "684" or "1,099"; the site renders a dash for
// activities without calorie data.
func parseCalories(s string) int {
	if s == "—" || s == "-" {
		return 0
	}
	return parseLeadingInt(strings.ReplaceAll(s, ",", ""))
}
