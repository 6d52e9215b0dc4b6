package aggregate

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/tejusbharadwaj/seriesfetch/internal/series"
)

// summaryTimeLayout renders bucket bounds as "Mon, 2024-01-01:00:00:00".
const summaryTimeLayout = "Mon, 2006-01-02:15:04:05"

// EventSample is one discrete occurrence inside an event bucket.
type EventSample struct {
	Start           time.Time `json:"start"`
	End             time.Time `json:"end"`
	DurationSeconds float64   `json:"durationSeconds"`
	Type            string    `json:"type"`
}

// RawValues holds the samples of one bucket in exactly one shape: Flat for
// rate series and fine-grained counts, Daily for counts at day granularity
// or coarser (one list per calendar day), Events for event series.
type RawValues struct {
	Flat   []float64
	Daily  [][]float64
	Events []EventSample
}

// Len is the number of samples, summed over days for the daily shape.
func (v RawValues) Len() int {
	switch {
	case v.Daily != nil:
		n := 0
		for _, day := range v.Daily {
			n += len(day)
		}
		return n
	case v.Events != nil:
		return len(v.Events)
	}
	return len(v.Flat)
}

// DataPoint is the aggregate of one bucket. End is the bucket end minus one
// second. Derived statistics are computed on read.
type DataPoint struct {
	Start  time.Time
	End    time.Time
	Series string
	Device string
	Kind   series.Kind
	Unit   string
	Values RawValues
}

// Len is the number of samples in the bucket.
func (p DataPoint) Len() int {
	return p.Values.Len()
}

// IsDailyCount reports whether p is a count bucket holding per-day lists.
func (p DataPoint) IsDailyCount() bool {
	return p.Kind == series.KindCount && len(p.Values.Daily) > 0
}

// DurationHours is the length of the reported range in hours.
func (p DataPoint) DurationHours() float64 {
	return p.End.Sub(p.Start).Hours()
}

// Value is the headline statistic of the bucket: the mean of daily sums for
// daily counts, the mean for rates with several readings, the sum for counts
// and single readings. It is nil for an empty bucket of a non-count series.
func (p DataPoint) Value() (*float64, error) {
	flat := p.Values.Flat
	switch {
	case p.IsDailyCount():
		return ptr(mean(dailySums(p.Values.Daily))), nil
	case p.Kind == series.KindRate && len(flat) > 1:
		return ptr(mean(flat)), nil
	case p.Kind == series.KindCount, p.Kind == series.KindRate && len(flat) == 1:
		return ptr(sum(flat)), nil
	case p.Len() == 0:
		return nil, nil
	}
	return nil, fmt.Errorf("%w: %q has no value for %d samples", series.ErrUnsupportedKind, p.Kind, p.Len())
}

func (p DataPoint) Maximum() (*float64, error) {
	switch {
	case p.Kind == series.KindRate && len(p.Values.Flat) > 1:
		return ptr(maxOf(p.Values.Flat)), nil
	case p.IsDailyCount():
		return ptr(maxOf(dailySums(p.Values.Daily))), nil
	}
	return p.Value()
}

func (p DataPoint) Minimum() (*float64, error) {
	switch {
	case p.Kind == series.KindRate && len(p.Values.Flat) > 1:
		return ptr(minOf(p.Values.Flat)), nil
	case p.IsDailyCount():
		return ptr(minOf(dailySums(p.Values.Daily))), nil
	}
	return p.Value()
}

// Summary renders the one-line (multi-line for events) description of the
// bucket used in fetch summaries.
func (p DataPoint) Summary() (string, error) {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s to %s: ", p.Start.Format(summaryTimeLayout), p.End.Format(summaryTimeLayout))

	n := p.Len()
	flat := p.Values.Flat
	switch {
	case n == 0:
		fmt.Fprintf(&sb, "No data from %s", p.Device)

	case p.Kind == series.KindRate && len(flat) > 1:
		fmt.Fprintf(&sb, "%.2f±%.2f (%.2f-%.2f) %s from %s (%d entries)",
			mean(flat), stddev(flat), minOf(flat), maxOf(flat), p.Unit, p.Device, n)

	case p.IsDailyCount():
		sums := dailySums(p.Values.Daily)
		fmt.Fprintf(&sb, "%.2f±%.2f (%.2f-%.2f) %s from %s (%d entries)",
			mean(sums), stddev(sums), minOf(sums), maxOf(sums), p.Unit, p.Device, n)

	case p.Kind == series.KindCount, p.Kind == series.KindRate && len(flat) == 1:
		fmt.Fprintf(&sb, "%.2f %s from %s (%d entries)", sum(flat), p.Unit, p.Device, n)

	case p.Kind == series.KindEvent:
		fmt.Fprintf(&sb, "%d events from %s", n, p.Device)
		writeEventGroups(&sb, p.Values.Events)

	default:
		return "", fmt.Errorf("%w: cannot summarize %q", series.ErrUnsupportedKind, p.Kind)
	}
	return sb.String(), nil
}

func (p DataPoint) String() string {
	s, err := p.Summary()
	if err != nil {
		return err.Error()
	}
	return s
}

// writeEventGroups appends one line per event type, in first-seen order.
func writeEventGroups(sb *strings.Builder, events []EventSample) {
	var order []string
	durations := make(map[string][]float64)
	for _, e := range events {
		if _, ok := durations[e.Type]; !ok {
			order = append(order, e.Type)
		}
		durations[e.Type] = append(durations[e.Type], e.DurationSeconds)
	}

	for _, typ := range order {
		d := durations[typ]
		totalMins := sum(d) / 60
		totalHours := sum(d) / 3600

		hours := ""
		if totalHours >= 1 {
			hours = fmt.Sprintf(" (%dh%dm)", int(totalHours), int(math.Mod(totalMins, 60)))
		}
		fmt.Fprintf(sb, "\n - %s: %d events, %.2f mins/event, %.2f mins%s total",
			typ, len(d), mean(d)/60, totalMins, hours)
	}
}

type dataPointJSON struct {
	Start         time.Time   `json:"start"`
	End           time.Time   `json:"end"`
	Series        string      `json:"series"`
	Device        string      `json:"device"`
	Kind          series.Kind `json:"kind"`
	Unit          string      `json:"unit"`
	Data          interface{} `json:"data"`
	Value         *float64    `json:"value"`
	Minimum       *float64    `json:"minimum"`
	Maximum       *float64    `json:"maximum"`
	DurationHours float64     `json:"durationHours"`
	IsDailyCount  bool        `json:"isDailyCount"`
}

// MarshalJSON includes the derived statistics. Statistics an event bucket
// does not have are encoded as null.
func (p DataPoint) MarshalJSON() ([]byte, error) {
	out := dataPointJSON{
		Start:         p.Start,
		End:           p.End,
		Series:        p.Series,
		Device:        p.Device,
		Kind:          p.Kind,
		Unit:          p.Unit,
		DurationHours: p.DurationHours(),
		IsDailyCount:  p.IsDailyCount(),
	}

	switch {
	case p.Values.Daily != nil:
		out.Data = p.Values.Daily
	case p.Values.Events != nil:
		out.Data = p.Values.Events
	case p.Values.Flat != nil:
		out.Data = p.Values.Flat
	default:
		out.Data = []float64{}
	}

	if p.Kind != series.KindEvent {
		var err error
		if out.Value, err = p.Value(); err != nil {
			return nil, err
		}
		if out.Minimum, err = p.Minimum(); err != nil {
			return nil, err
		}
		if out.Maximum, err = p.Maximum(); err != nil {
			return nil, err
		}
	}
	return json.Marshal(out)
}

// UnmarshalJSON restores a DataPoint written by MarshalJSON. Derived fields
// are ignored.
func (p *DataPoint) UnmarshalJSON(b []byte) error {
	var in struct {
		dataPointJSON
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(b, &in); err != nil {
		return err
	}

	*p = DataPoint{
		Start:  in.Start,
		End:    in.End,
		Series: in.Series,
		Device: in.Device,
		Kind:   in.Kind,
		Unit:   in.Unit,
	}
	if len(in.Data) == 0 || string(in.Data) == "null" {
		return nil
	}

	switch {
	case p.Kind == series.KindEvent:
		return json.Unmarshal(in.Data, &p.Values.Events)
	case in.IsDailyCount:
		return json.Unmarshal(in.Data, &p.Values.Daily)
	}
	return json.Unmarshal(in.Data, &p.Values.Flat)
}

func ptr(v float64) *float64 {
	return &v
}

func dailySums(days [][]float64) []float64 {
	sums := make([]float64, len(days))
	for i, day := range days {
		sums[i] = sum(day)
	}
	return sums
}

func sum(xs []float64) float64 {
	total := 0.0
	for _, x := range xs {
		total += x
	}
	return total
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return math.NaN()
	}
	return sum(xs) / float64(len(xs))
}

// stddev is the population standard deviation.
func stddev(xs []float64) float64 {
	m := mean(xs)
	ss := 0.0
	for _, x := range xs {
		ss += (x - m) * (x - m)
	}
	return math.Sqrt(ss / float64(len(xs)))
}

func minOf(xs []float64) float64 {
	m := math.Inf(1)
	for _, x := range xs {
		m = math.Min(m, x)
	}
	return m
}

func maxOf(xs []float64) float64 {
	m := math.Inf(-1)
	for _, x := range xs {
		m = math.Max(m, x)
	}
	return m
}
