package fetch

import (
	"context"
	"fmt"

	"github.com/tejusbharadwaj/seriesfetch/internal/aggregate"
	"github.com/tejusbharadwaj/seriesfetch/internal/granularity"
	"github.com/tejusbharadwaj/seriesfetch/internal/series"
)

// ChartSpec tells a frontend which chart to draw.
type ChartSpec struct {
	Type        string                  `json:"type"`
	Name        string                  `json:"name"`
	DataType    series.Kind             `json:"dataType"`
	Unit        string                  `json:"unit"`
	Granularity granularity.Granularity `json:"granularity"`
	Date        string                  `json:"date"`
}

// Visualization is the text announcing a chart plus the chart itself.
// Spec is nil for event series, which have no chart.
type Visualization struct {
	Text string     `json:"text"`
	Spec *ChartSpec `json:"spec,omitempty"`
}

// Visualize describes the day, week or month around date. An empty date
// means now.
func (o *Orchestrator) Visualize(ctx context.Context, userID, seriesKey, date, gran string) (Visualization, error) {
	desc, ok := o.registry.Lookup(seriesKey)
	if !ok {
		return Visualization{}, fmt.Errorf("%w: %q is not a registered series", ErrUnknownSeries, seriesKey)
	}
	g, err := calendarGranularity(gran)
	if err != nil {
		return Visualization{}, err
	}

	at := o.now().In(o.loc)
	if date != "" {
		if at, err = ParseTime(date, o.loc); err != nil {
			return Visualization{}, err
		}
	}

	var spec *ChartSpec
	if desc.Kind != series.KindEvent {
		spec = &ChartSpec{
			Type:        "visualization",
			Name:        desc.Key(),
			DataType:    desc.Kind,
			Unit:        desc.Unit,
			Granularity: g,
			Date:        at.Format(DateLayout),
		}
	}

	start := g.Floor(at)
	end := g.Advance(start)
	text := fmt.Sprintf("%s (%s) from %s to %s is now being shown to the user.",
		desc.Name, desc.Description, start.Format(DateLayout), end.Format(DateLayout))

	userDesc, err := o.userDescriptor(ctx, userID, seriesKey)
	if err != nil {
		return Visualization{}, err
	}
	res, err := o.fetch(ctx, userID, userDesc, start, end, g, false)
	if err != nil {
		return Visualization{}, err
	}

	return Visualization{Text: text + "\n" + res.Summary, Spec: spec}, nil
}

// CalendarView returns every bucket of the day, week or month containing
// date, empty buckets included. Days are shown in 15-minute buckets, weeks
// and months in days.
func (o *Orchestrator) CalendarView(ctx context.Context, userID, seriesKey, date, gran string) ([]aggregate.DataPoint, error) {
	g, err := calendarGranularity(gran)
	if err != nil {
		return nil, err
	}
	desc, err := o.userDescriptor(ctx, userID, seriesKey)
	if err != nil {
		return nil, err
	}
	at, err := ParseTime(date, o.loc)
	if err != nil {
		return nil, err
	}

	start := g.Floor(granularity.Day.Floor(at))
	end := g.Advance(start)

	bucket := granularity.Day
	if g == granularity.Day {
		bucket = granularity.FifteenMinutes
	}
	res, err := o.fetch(ctx, userID, desc, start, end, bucket, true)
	if err != nil {
		return nil, err
	}
	return res.Points, nil
}

func calendarGranularity(s string) (granularity.Granularity, error) {
	g, err := granularity.Parse(s)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrInvalidArgument, err)
	}
	if g < granularity.Day {
		return 0, fmt.Errorf("%w: granularity %s is too fine, use day, week or month", ErrInvalidArgument, g)
	}
	return g, nil
}
