package indigobot

import (
	"errors"
	"fmt"
	"strings"
	"time"

	str2duration "github.com/xhit/go-str2duration/v2"
)

var errEmptyTimespan = errors.New("empty timespan")

// timespanReplacer maps the spelled-out unit names users tend to type
// ("1min", "2 hours", "1 week") onto the single-letter units
// str2duration understands. Longer names come first so "minutes"
// isn't mangled by the "min" rule.
var timespanReplacer = strings.NewReplacer(
	"minutes", "m",
	"minute", "m",
	"mins", "m",
	"min", "m",
	"seconds", "s",
	"second", "s",
	"secs", "s",
	"sec", "s",
	"hours", "h",
	"hour", "h",
	"hrs", "h",
	"hr", "h",
	"days", "d",
	"day", "d",
	"weeks", "w",
	"week", "w",
)

// parseTimespan parses a human-readable span string like "1min", "90s",
// "2h", "1d" or "1w" into a duration. Spans must be positive.
func parseTimespan(s string) (time.Duration, error) {
	normalized := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), " ", "")
	if normalized == "" {
		return 0, errEmptyTimespan
	}
	normalized = timespanReplacer.Replace(normalized)

	d, err := str2duration.ParseDuration(normalized)
	if err != nil {
		return 0, fmt.Errorf("invalid timespan %q: %w", s, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("timespan %q must be positive", s)
	}
	return d, nil
}
