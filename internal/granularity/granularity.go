// Package granularity defines the output bucket widths and the window
// adjustment that keeps a requested width from exceeding the window.
package granularity

import (
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
)

// Granularity is a bucket width. Values are ordered by width.
type Granularity int

const (
	FifteenMinutes Granularity = iota
	Hour
	Day
	Week
	Month
)

var ErrInvalidGranularity = errors.New("invalid granularity")

var names = [...]string{
	FifteenMinutes: "15min",
	Hour:           "hour",
	Day:            "day",
	Week:           "week",
	Month:          "month",
}

// Parse converts one of "15min", "hour", "day", "week", "month".
func Parse(s string) (Granularity, error) {
	for g, name := range names {
		if name == s {
			return Granularity(g), nil
		}
	}
	return 0, fmt.Errorf("%w: %s", ErrInvalidGranularity, s)
}

// Valid reports whether g is one of the five known values.
func (g Granularity) Valid() bool {
	return g >= FifteenMinutes && g <= Month
}

func (g Granularity) String() string {
	if !g.Valid() {
		return fmt.Sprintf("Granularity(%d)", int(g))
	}
	return names[g]
}

// IndexField is the name of the store's bucket index field at this level.
func (g Granularity) IndexField() string {
	if g == FifteenMinutes {
		return "fifteenMinBucket"
	}
	return g.String()
}

func (g Granularity) MarshalText() ([]byte, error) {
	if !g.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrInvalidGranularity, int(g))
	}
	return []byte(g.String()), nil
}

func (g *Granularity) UnmarshalText(b []byte) error {
	parsed, err := Parse(string(b))
	if err != nil {
		return err
	}
	*g = parsed
	return nil
}

// Floor rounds t down to the start of its bucket, in t's location.
// Weeks start on Sunday.
func (g Granularity) Floor(t time.Time) time.Time {
	y, m, d := t.Date()
	loc := t.Location()
	switch g {
	case FifteenMinutes:
		return time.Date(y, m, d, t.Hour(), t.Minute()-t.Minute()%15, 0, 0, loc)
	case Hour:
		return time.Date(y, m, d, t.Hour(), 0, 0, 0, loc)
	case Day:
		return time.Date(y, m, d, 0, 0, 0, 0, loc)
	case Week:
		return time.Date(y, m, d-int(t.Weekday()), 0, 0, 0, 0, loc)
	case Month:
		return time.Date(y, m, 1, 0, 0, 0, 0, loc)
	}
	panic(fmt.Sprintf("granularity: Floor on %v", g))
}

// Advance moves t forward by one bucket width. Days, weeks and months are
// calendar units.
func (g Granularity) Advance(t time.Time) time.Time {
	switch g {
	case FifteenMinutes:
		return t.Add(15 * time.Minute)
	case Hour:
		return t.Add(time.Hour)
	case Day:
		return t.AddDate(0, 0, 1)
	case Week:
		return t.AddDate(0, 0, 7)
	case Month:
		return t.AddDate(0, 1, 0)
	}
	panic(fmt.Sprintf("granularity: Advance on %v", g))
}

// Adjust narrows the requested granularity when the window is shorter than
// one bucket of the requested level. It never coarsens. A window of exactly
// one day still counts as a single day.
func Adjust(start, end time.Time, requested Granularity, logger logrus.FieldLogger) Granularity {
	delta := end.Sub(start)
	adjusted := requested
	switch {
	case delta < 15*time.Minute && requested != FifteenMinutes:
		adjusted = FifteenMinutes
	case delta < time.Hour && requested > Hour:
		adjusted = Hour
	case delta <= 24*time.Hour && requested > Day:
		adjusted = Day
	case delta < 7*24*time.Hour && requested > Week:
		adjusted = Week
	}
	if adjusted != requested && logger != nil {
		logger.WithFields(logrus.Fields{
			"from": requested.String(),
			"to":   adjusted.String(),
		}).Info("Adjusting granularity to window")
	}
	return adjusted
}
