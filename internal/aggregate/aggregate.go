// Package aggregate re-buckets raw samples into output granularity buckets
// and computes the per-bucket statistics of each series kind.
package aggregate

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/tejusbharadwaj/seriesfetch/internal/decompose"
	"github.com/tejusbharadwaj/seriesfetch/internal/granularity"
	"github.com/tejusbharadwaj/seriesfetch/internal/series"
)

const (
	// UnknownDevice labels buckets without samples.
	UnknownDevice = "unknown"
	WatchDevice   = "Apple Watch"
	PhoneDevice   = "iPhone"
)

// Boundaries returns start, every g-aligned instant strictly inside
// (start, end), and end. Consecutive pairs are the buckets.
func Boundaries(start, end time.Time, g granularity.Granularity) []time.Time {
	if !start.Before(end) {
		return nil
	}
	bounds := []time.Time{start}
	t := g.Floor(start)
	if !t.After(start) {
		t = g.Advance(t)
	}
	for ; t.Before(end); t = g.Advance(t) {
		bounds = append(bounds, t)
	}
	return append(bounds, end)
}

// Aggregate groups samples into the buckets of [start, end) at g, one
// DataPoint per bucket in chronological order. Buckets without samples are
// skipped unless includeEmpty is set.
func Aggregate(samples []decompose.RawSample, desc series.Descriptor, start, end time.Time, g granularity.Granularity, includeEmpty bool) ([]DataPoint, error) {
	if !desc.Kind.Valid() {
		return nil, fmt.Errorf("%w: %q for %s", series.ErrUnsupportedKind, desc.Kind, desc.Key())
	}

	bounds := Boundaries(start, end, g)
	points := make([]DataPoint, 0, len(bounds))
	for i := 1; i < len(bounds); i++ {
		bucketStart, bucketEnd := bounds[i-1], bounds[i]

		var selected []decompose.RawSample
		for _, s := range samples {
			if s.Overlaps(bucketStart, bucketEnd) {
				selected = append(selected, s)
			}
		}

		point := DataPoint{
			Start:  bucketStart,
			End:    bucketEnd.Add(-time.Second),
			Series: desc.Key(),
			Device: UnknownDevice,
			Kind:   desc.Kind,
			Unit:   desc.Unit,
		}
		if len(selected) == 0 {
			if includeEmpty {
				points = append(points, point)
			}
			continue
		}

		selected, point.Device = Disambiguate(selected)
		point.Values = pack(selected, desc.Kind, g)
		points = append(points, point)
	}
	return points, nil
}

// Disambiguate keeps the samples of one device. Apple Watch readings win
// over iPhone readings, which win over the most frequent other label (ties
// go to the lexicographically smallest). It returns the kept samples and the
// device name to report.
func Disambiguate(samples []decompose.RawSample) ([]decompose.RawSample, string) {
	if len(samples) == 0 {
		return samples, UnknownDevice
	}

	for _, rule := range []struct{ needle, label string }{
		{"watch", WatchDevice},
		{"iphone", PhoneDevice},
	} {
		kept := filter(samples, func(s decompose.RawSample) bool {
			return strings.Contains(strings.ToLower(s.Device), rule.needle)
		})
		if len(kept) > 0 {
			return kept, rule.label
		}
	}

	counts := make(map[string]int)
	for _, s := range samples {
		counts[s.Device]++
	}
	mode := ""
	for device, n := range counts {
		if n > counts[mode] || n == counts[mode] && device < mode {
			mode = device
		}
	}
	return filter(samples, func(s decompose.RawSample) bool { return s.Device == mode }), mode
}

func filter(samples []decompose.RawSample, keep func(decompose.RawSample) bool) []decompose.RawSample {
	var out []decompose.RawSample
	for _, s := range samples {
		if keep(s) {
			out = append(out, s)
		}
	}
	return out
}

func pack(samples []decompose.RawSample, kind series.Kind, g granularity.Granularity) RawValues {
	switch {
	case kind == series.KindEvent:
		events := make([]EventSample, len(samples))
		for i, s := range samples {
			events[i] = EventSample{
				Start:           s.Start,
				End:             s.End,
				DurationSeconds: s.End.Sub(s.Start).Seconds(),
				Type:            s.TypeCode,
			}
		}
		return RawValues{Events: events}

	case kind == series.KindCount && g >= granularity.Day:
		return RawValues{Daily: byDay(samples)}
	}

	flat := make([]float64, len(samples))
	for i, s := range samples {
		flat[i] = s.Value
	}
	return RawValues{Flat: flat}
}

// byDay groups values by the calendar date of the sample start, in date
// order.
func byDay(samples []decompose.RawSample) [][]float64 {
	type day struct{ y, m, d int }
	groups := make(map[day][]float64)
	var days []day
	for _, s := range samples {
		y, m, d := s.Start.Date()
		k := day{y, int(m), d}
		if _, ok := groups[k]; !ok {
			days = append(days, k)
		}
		groups[k] = append(groups[k], s.Value)
	}

	sort.Slice(days, func(i, j int) bool {
		a, b := days[i], days[j]
		if a.y != b.y {
			return a.y < b.y
		}
		if a.m != b.m {
			return a.m < b.m
		}
		return a.d < b.d
	})
	out := make([][]float64, len(days))
	for i, k := range days {
		out[i] = groups[k]
	}
	return out
}
