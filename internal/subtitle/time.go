package subtitle

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
)

// ErrInvalidTimestamp marks timestamps that do not follow the ASS H:MM:SS.cc form.
var ErrInvalidTimestamp = errors.New("invalid timestamp")

var timestampPattern = regexp.MustCompile(`^(\d+):(\d{1,2}):(\d{1,2})(?:\.(\d+))?$`)

// ParseTimestamp converts an ASS timestamp such as "0:03:11.39" into seconds
// (191.39). The fractional part is in centiseconds.
func ParseTimestamp(ts string) (float64, error) {
	m := timestampPattern.FindStringSubmatch(ts)
	if m == nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidTimestamp, ts)
	}

	hours, _ := strconv.Atoi(m[1])
	minutes, _ := strconv.Atoi(m[2])
	seconds, _ := strconv.Atoi(m[3])
	centis := 0
	if m[4] != "" {
		centis, _ = strconv.Atoi(m[4])
	}

	return float64(hours)*3600 + float64(minutes)*60 + float64(seconds) + float64(centis)/100.0, nil
}

// FormatClock renders an ASS timestamp as a short MM:SS display string,
// folding hours into minutes ("0:03:11.39" becomes "03:11"). Inputs that do
// not parse are returned unchanged.
func FormatClock(ts string) string {
	m := timestampPattern.FindStringSubmatch(ts)
	if m == nil {
		return ts
	}

	hours, _ := strconv.Atoi(m[1])
	minutes, _ := strconv.Atoi(m[2])
	seconds, _ := strconv.Atoi(m[3])

	return fmt.Sprintf("%02d:%02d", hours*60+minutes, seconds)
}
