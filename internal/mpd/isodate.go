package mpd

import (
	"fmt"
	"regexp"
	"strconv"
	"time"
)

var durationRe = regexp.MustCompile(`^P(?:(\d+)Y)?(?:(\d+)M)?(?:(\d+)D)?(?:T(?:(\d+)H)?(?:(\d+)M)?(?:([\d.]+)S)?)?$`)

// ParseISODuration parses an ISO-8601 duration (e.g. "PT1.5S") into seconds.
func ParseISODuration(s string) (float64, error) {
	if s == "" {
		return 0, nil
	}
	m := durationRe.FindStringSubmatch(s)
	if m == nil {
		return 0, fmt.Errorf("invalid ISO 8601 duration %q", s)
	}
	years, _ := strconv.ParseFloat(orZero(m[1]), 64)
	months, _ := strconv.ParseFloat(orZero(m[2]), 64)
	days, _ := strconv.ParseFloat(orZero(m[3]), 64)
	hours, _ := strconv.ParseFloat(orZero(m[4]), 64)
	minutes, _ := strconv.ParseFloat(orZero(m[5]), 64)
	seconds, _ := strconv.ParseFloat(orZero(m[6]), 64)
	total := years*365.25*86400 + months*30*86400 + days*86400 + hours*3600 + minutes*60 + seconds
	return total, nil
}

func orZero(s string) string {
	if s == "" {
		return "0"
	}
	return s
}

// ParseISODateTime parses an ISO-8601 timestamp (availabilityStartTime).
func ParseISODateTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339, s)
}
