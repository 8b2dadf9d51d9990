package store

import (
	"strings"
	"time"
)

var weekdays = map[string]time.Weekday{
	"sunday":    time.Sunday,
	"monday":    time.Monday,
	"tuesday":   time.Tuesday,
	"wednesday": time.Wednesday,
	"thursday":  time.Thursday,
	"friday":    time.Friday,
	"saturday":  time.Saturday,
}

var dueLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
}

// ParseDueDate understands "today", "tomorrow", "next week", weekday names
// (the next such day, never today) and ISO dates. Relative forms keep the
// time of day of now.
func ParseDueDate(value string, now time.Time) (time.Time, bool) {
	v := strings.ToLower(strings.TrimSpace(value))
	if v == "" {
		return time.Time{}, false
	}

	switch {
	case strings.Contains(v, "tomorrow"):
		return now.AddDate(0, 0, 1), true
	case strings.Contains(v, "today"), strings.Contains(v, "tonight"):
		return now, true
	case strings.Contains(v, "next week"):
		return now.AddDate(0, 0, 7), true
	}
	for name, day := range weekdays {
		if strings.Contains(v, name) {
			ahead := int(day - now.Weekday())
			if ahead <= 0 {
				ahead += 7
			}
			return now.AddDate(0, 0, ahead), true
		}
	}

	for _, layout := range dueLayouts {
		if t, err := time.Parse(layout, strings.TrimSpace(value)); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}
