package fetch

import (
	"fmt"
	"time"
)

const (
	// DateLayout is the date-only form accepted and produced by the service.
	DateLayout = "2006-01-02"
	// summaryLayout renders windows in fetch summaries.
	summaryLayout = "2006-01-02 15:04:05"
)

// layouts without an offset are read in the configured location.
var localLayouts = []string{
	DateLayout,
	"2006-01-02T15:04",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

// ParseTime accepts YYYY-MM-DD, YYYY-MM-DDTHH:MM[:SS] in loc, or RFC 3339
// with an explicit offset. A bare date means the start of that day.
func ParseTime(s string, loc *time.Location) (time.Time, error) {
	for _, layout := range localLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, nil
		}
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t.In(loc), nil
	}
	return time.Time{}, fmt.Errorf("%w: unrecognised date %q", ErrInvalidArgument, s)
}
