// Package decompose turns an arbitrary time window into the index-aligned
// queries the document store can answer, runs them and merges the results.
//
// The store only indexes the calendar components of a sample's start and
// the buckets it touches, so a window is split level by level, from year
// down to 15-minute buckets, until every piece is expressible as a
// conjunction of equality, range and membership predicates:
//
//	[2023-11-01, 2024-02-15)
//	├── [2023-11-01, 2024-01-01)  yearRange contains 2023 AND monthRange contains-any [11 12]
//	└── [2024-01-01, 2024-02-15)
//	    ├── [2024-01-01, 2024-02-01)  day range + touching 2024-01-01
//	    └── [2024-02-01, 2024-02-15)  day range + touching 2024-02-01
//
// Every leaf returns all samples touching its own window. Samples that
// start inside the window are found through the start fields; samples that
// start earlier are found through the membership arrays of the window's
// first instant, since the closed interval of such a sample contains it.
package decompose

import (
	"fmt"
	"strings"
	"time"

	"github.com/tejusbharadwaj/seriesfetch/internal/database"
)

// Level is the calendar level a leaf query was issued at.
type Level string

const (
	LevelYear     Level = "year"
	LevelMonth    Level = "month"
	LevelDay      Level = "day"
	LevelIntraday Level = "intraday"
)

// Window is a half-open time interval [Start, End).
type Window struct {
	Start time.Time
	End   time.Time
}

func (w Window) String() string {
	return fmt.Sprintf("[%s, %s)", w.Start.Format(time.RFC3339), w.End.Format(time.RFC3339))
}

// Leaf is one store query together with the window it covers.
type Leaf struct {
	Level  Level
	Window Window
	Where  []database.Predicate
}

func (l Leaf) String() string {
	preds := make([]string, len(l.Where))
	for i, p := range l.Where {
		preds[i] = p.String()
	}
	return fmt.Sprintf("%s %s where %s", l.Level, l.Window, strings.Join(preds, " AND "))
}

// Plan returns the leaf queries covering [start, end). The leaves' windows
// partition the input window; several leaves may share one window when a
// level needs two queries. Calendar boundaries are taken in start's
// location. Plan returns nil for an empty window.
func Plan(start, end time.Time) []Leaf {
	if !start.Before(end) {
		return nil
	}
	return plan(Window{Start: start, End: end.In(start.Location())})
}

func plan(w Window) []Leaf {
	start, end := w.Start, w.End
	last := end.Add(-time.Nanosecond)
	loc := start.Location()

	switch {
	case start.Year() != last.Year():
		if isYearStart(start) && isYearStart(end) {
			return []Leaf{{
				Level:  LevelYear,
				Window: w,
				Where: []database.Predicate{
					database.ContainsAny(database.FieldYearRange, intRange(start.Year(), last.Year())),
				},
			}}
		}
		next := time.Date(start.Year()+1, time.January, 1, 0, 0, 0, 0, loc)
		lastStart := time.Date(last.Year(), time.January, 1, 0, 0, 0, 0, loc)
		return split(start, next, lastStart, end)

	case start.Month() != last.Month():
		if isMonthStart(start) && isMonthStart(end) {
			return []Leaf{{
				Level:  LevelMonth,
				Window: w,
				Where: []database.Predicate{
					database.Contains(database.FieldYearRange, start.Year()),
					database.ContainsAny(database.FieldMonthRange, intRange(int(start.Month()), int(last.Month()))),
				},
			}}
		}
		next := time.Date(start.Year(), start.Month()+1, 1, 0, 0, 0, 0, loc)
		lastStart := time.Date(last.Year(), last.Month(), 1, 0, 0, 0, 0, loc)
		return split(start, next, lastStart, end)

	case start.Day() != last.Day():
		if isDayStart(start) && isDayStart(end) {
			return []Leaf{
				{
					Level:  LevelDay,
					Window: w,
					Where: []database.Predicate{
						database.Eq(database.FieldYearStart, start.Year()),
						database.Eq(database.FieldMonthStart, int(start.Month())),
						database.Gte(database.FieldDayStart, start.Day()),
						database.Lte(database.FieldDayStart, last.Day()),
					},
				},
				{
					Level:  LevelDay,
					Window: w,
					Where:  touching(start),
				},
			}
		}
		next := time.Date(start.Year(), start.Month(), start.Day()+1, 0, 0, 0, 0, loc)
		lastStart := time.Date(last.Year(), last.Month(), last.Day(), 0, 0, 0, 0, loc)
		return split(start, next, lastStart, end)
	}

	if isDayStart(start) && isDayStart(end) {
		return []Leaf{{Level: LevelIntraday, Window: w, Where: touching(start)}}
	}

	first, lastBucket := database.FifteenMinBucket(start), database.FifteenMinBucket(last)
	carried := with(touching(start), database.Contains(database.FieldFifteenMinBucketRange, first))
	if first != lastBucket {
		return []Leaf{
			{
				Level:  LevelIntraday,
				Window: w,
				Where: []database.Predicate{
					database.Eq(database.FieldYearStart, start.Year()),
					database.Eq(database.FieldMonthStart, int(start.Month())),
					database.Eq(database.FieldDayStart, start.Day()),
					database.Gte(database.FieldFifteenMinBucketStart, first),
					database.Lte(database.FieldFifteenMinBucketStart, lastBucket),
				},
			},
			{Level: LevelIntraday, Window: w, Where: carried},
		}
	}
	// a sample touching a single-bucket window touches that bucket
	return []Leaf{{Level: LevelIntraday, Window: w, Where: carried}}
}

// touching matches every sample whose interval touches the day of t,
// whichever year or month it started in.
func touching(t time.Time) []database.Predicate {
	return []database.Predicate{
		database.Contains(database.FieldYearRange, t.Year()),
		database.Contains(database.FieldMonthRange, int(t.Month())),
		database.Contains(database.FieldDayRange, t.Day()),
	}
}

// split recurses on [start, next), [next, lastStart) when non-empty, and
// [lastStart, end).
func split(start, next, lastStart, end time.Time) []Leaf {
	leaves := plan(Window{Start: start, End: next})
	if next.Before(lastStart) {
		leaves = append(leaves, plan(Window{Start: next, End: lastStart})...)
	}
	return append(leaves, plan(Window{Start: lastStart, End: end})...)
}

func with(base []database.Predicate, extra ...database.Predicate) []database.Predicate {
	out := make([]database.Predicate, 0, len(base)+len(extra))
	out = append(out, base...)
	return append(out, extra...)
}

func intRange(from, to int) []int {
	out := make([]int, 0, to-from+1)
	for i := from; i <= to; i++ {
		out = append(out, i)
	}
	return out
}

func isDayStart(t time.Time) bool {
	return t.Hour() == 0 && t.Minute() == 0 && t.Second() == 0 && t.Nanosecond() == 0
}

func isMonthStart(t time.Time) bool {
	return t.Day() == 1 && isDayStart(t)
}

func isYearStart(t time.Time) bool {
	return t.Month() == time.January && isMonthStart(t)
}
