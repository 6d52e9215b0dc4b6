package fetch

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tejusbharadwaj/seriesfetch/internal/cache"
	"github.com/tejusbharadwaj/seriesfetch/internal/database"
	"github.com/tejusbharadwaj/seriesfetch/internal/decompose"
	"github.com/tejusbharadwaj/seriesfetch/internal/granularity"
	"github.com/tejusbharadwaj/seriesfetch/internal/series"
)

const user = "u1"

var (
	stepsColl   = database.Collection{UserID: user, Namespace: "health", Series: "stepcount"}
	workoutColl = database.Collection{UserID: user, Namespace: "health", Series: "workout"}
	sleepColl   = database.Collection{UserID: user, Namespace: "health", Series: "sleepanalysis"}
)

func utc(y int, m time.Month, d, h, min int) time.Time {
	return time.Date(y, m, d, h, min, 0, 0, time.UTC)
}

func quietLogger() logrus.FieldLogger {
	logger, _ := test.NewNullLogger()
	return logger
}

// countingFetcher records how often the store is reached.
type countingFetcher struct {
	RawFetcher
	calls int
}

func (f *countingFetcher) FetchRaw(ctx context.Context, coll database.Collection, start, end time.Time) ([]decompose.RawSample, error) {
	f.calls++
	return f.RawFetcher.FetchRaw(ctx, coll, start, end)
}

type fixture struct {
	registry *series.Registry
	store    *database.MemoryStore
	fetcher  *countingFetcher
	orch     *Orchestrator
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	registry, err := series.Default()
	require.NoError(t, err)

	store := database.NewMemoryStore()
	// 500 steps in the first hour of 2024-01-01, then 100 per hour at 13:00-15:00
	store.Insert(stepsColl,
		database.NewDocument("s1", utc(2024, 1, 1, 0, 10), utc(2024, 1, 1, 0, 20), "Alice's iPhone", time.UTC).WithValue(500),
		database.NewDocument("s1w", utc(2024, 1, 1, 0, 10), utc(2024, 1, 1, 0, 20), "Alice's Apple Watch", time.UTC).WithValue(480),
	)
	for h := 13; h < 16; h++ {
		store.Insert(stepsColl, database.NewDocument(fmt.Sprintf("s%d", h), utc(2024, 1, 1, h, 5), utc(2024, 1, 1, h, 30), "Withings", time.UTC).WithValue(100))
	}
	store.Insert(workoutColl,
		database.NewDocument("w1", utc(2024, 1, 1, 7, 0), utc(2024, 1, 1, 8, 0), "Apple Watch", time.UTC).WithTypeCode("running"),
	)
	store.Insert(sleepColl,
		database.NewDocument("z1", utc(2024, 1, 1, 0, 0), utc(2024, 1, 1, 6, 0), "Apple Watch", time.UTC).WithValue(1),
	)

	fetcher := &countingFetcher{RawFetcher: decompose.New(store, decompose.WithLogger(quietLogger()))}
	opts = append([]Option{WithLogger(quietLogger())}, opts...)
	orch, err := New(registry, store, fetcher, opts...)
	require.NoError(t, err)

	return &fixture{registry: registry, store: store, fetcher: fetcher, orch: orch}
}

func TestFetchAggregatedStepsDay(t *testing.T) {
	f := newFixture(t)

	res, err := f.orch.FetchAggregated(context.Background(), user, "health.stepcount", "2024-01-01", "2024-01-02", "hour", false)
	require.NoError(t, err)

	assert.Equal(t, granularity.Hour, res.Granularity)
	require.Len(t, res.Points, 4)

	first := res.Points[0]
	assert.Equal(t, "Apple Watch", first.Device)
	value, err := first.Value()
	require.NoError(t, err)
	assert.Equal(t, 480.0, *value)

	lines := strings.Split(strings.TrimSuffix(res.Summary, "\n"), "\n")
	require.Len(t, lines, 5)
	assert.Equal(t, "Here is a summary of the data for health.stepcount from 2024-01-01 00:00:00 to 2024-01-02 00:00:00 at a granularity of hour:", lines[0])
	assert.Equal(t, "Mon, 2024-01-01:00:00:00 to Mon, 2024-01-01:00:59:59: 480.00 steps from Apple Watch (1 entries)", lines[1])
}

func TestFetchAggregatedAdjustsGranularity(t *testing.T) {
	f := newFixture(t)

	res, err := f.orch.FetchAggregated(context.Background(), user, "health.stepcount", "2024-01-01", "2024-01-02", "month", false)
	require.NoError(t, err)
	assert.Equal(t, granularity.Day, res.Granularity)
	require.Len(t, res.Points, 1)
	assert.True(t, res.Points[0].IsDailyCount())
}

func TestFetchAggregatedErrors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tests := []struct {
		name   string
		series string
		start  string
		end    string
		gran   string
		want   error
	}{
		{"unknown granularity", "health.stepcount", "2024-01-01", "2024-01-02", "fortnight", ErrInvalidArgument},
		{"unregistered series", "health.bloodglucose", "2024-01-01", "2024-01-02", "day", ErrUnknownSeries},
		{"registered but absent for user", "health.heartrate", "2024-01-01", "2024-01-02", "day", ErrUnknownSeries},
		{"unregistered collection of the user", "health.sleepanalysis", "2024-01-01", "2024-01-02", "day", ErrUnknownSeries},
		{"malformed start", "health.stepcount", "01/01/2024", "2024-01-02", "day", ErrInvalidArgument},
		{"end before start", "health.stepcount", "2024-01-02", "2024-01-01", "day", ErrEmptyRange},
		{"equal bounds", "health.stepcount", "2024-01-01T10:00", "2024-01-01T10:00:00", "hour", ErrEmptyRange},
		{"no samples", "health.stepcount", "2024-03-01", "2024-03-02", "hour", ErrNoData},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.orch.FetchAggregated(ctx, user, tt.series, tt.start, tt.end, tt.gran, false)
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.want), "got %v", err)
		})
	}

	_, err := f.orch.FetchAggregated(ctx, user, "health.stepcount", "2024-01-02", "2024-01-01", "day", false)
	assert.True(t, errors.Is(err, ErrInvalidArgument), "empty range is an invalid argument")
}

func TestFetchAggregatedUsesResultCache(t *testing.T) {
	results, err := cache.NewLRU[Result](16)
	require.NoError(t, err)
	f := newFixture(t, WithResultCache(results))
	ctx := context.Background()

	first, err := f.orch.FetchAggregated(ctx, user, "health.stepcount", "2024-01-01", "2024-01-02", "hour", false)
	require.NoError(t, err)
	second, err := f.orch.FetchAggregated(ctx, user, "health.stepcount", "2024-01-01T00:00", "2024-01-02T00:00:00", "hour", false)
	require.NoError(t, err)

	assert.Equal(t, 1, f.fetcher.calls, "equivalent requests share one store fetch")
	assert.Equal(t, first, second)

	_, err = f.orch.FetchAggregated(ctx, user, "health.stepcount", "2024-01-01", "2024-01-02", "hour", true)
	require.NoError(t, err)
	assert.Equal(t, 2, f.fetcher.calls, "includeEmpty is part of the key")

	require.NoError(t, f.orch.PurgeCache(ctx))
	_, err = f.orch.FetchAggregated(ctx, user, "health.stepcount", "2024-01-01", "2024-01-02", "hour", false)
	require.NoError(t, err)
	assert.Equal(t, 3, f.fetcher.calls)
}

func TestListSeries(t *testing.T) {
	f := newFixture(t)

	descs, err := f.orch.ListSeries(context.Background(), user)
	require.NoError(t, err)

	var keys []string
	for _, d := range descs {
		keys = append(keys, d.Key())
	}
	assert.Equal(t, []string{"health.stepcount", "health.workout"}, keys)

	none, err := f.orch.ListSeries(context.Background(), "someone-else")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestVisualize(t *testing.T) {
	now := func() time.Time { return utc(2024, 1, 1, 15, 30) }
	f := newFixture(t, WithClock(now))
	ctx := context.Background()
	steps, _ := f.registry.Lookup("health.stepcount")

	viz, err := f.orch.Visualize(ctx, user, "health.stepcount", "", "day")
	require.NoError(t, err)
	require.NotNil(t, viz.Spec)
	assert.Equal(t, ChartSpec{
		Type:        "visualization",
		Name:        "health.stepcount",
		DataType:    series.KindCount,
		Unit:        steps.Unit,
		Granularity: granularity.Day,
		Date:        "2024-01-01",
	}, *viz.Spec)

	header := fmt.Sprintf("stepcount (%s) from 2024-01-01 to 2024-01-02 is now being shown to the user.\n", steps.Description)
	assert.True(t, strings.HasPrefix(viz.Text, header), viz.Text)
	assert.Contains(t, viz.Text, "at a granularity of day:")

	week, err := f.orch.Visualize(ctx, user, "health.stepcount", "2024-01-03", "week")
	require.NoError(t, err)
	assert.Contains(t, week.Text, "from 2023-12-31 to 2024-01-07")
	assert.Equal(t, "2024-01-03", week.Spec.Date)

	events, err := f.orch.Visualize(ctx, user, "health.workout", "2024-01-01", "day")
	require.NoError(t, err)
	assert.Nil(t, events.Spec)
	assert.Contains(t, events.Text, "1 events from Apple Watch")

	_, err = f.orch.Visualize(ctx, user, "health.stepcount", "2024-01-01", "hour")
	assert.True(t, errors.Is(err, ErrInvalidArgument))
	_, err = f.orch.Visualize(ctx, user, "health.nope", "2024-01-01", "day")
	assert.True(t, errors.Is(err, ErrUnknownSeries))
}

func TestCalendarView(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	day, err := f.orch.CalendarView(ctx, user, "health.stepcount", "2024-01-01T12:34", "day")
	require.NoError(t, err)
	require.Len(t, day, 96)
	assert.Equal(t, utc(2024, 1, 1, 0, 0), day[0].Start)
	assert.Equal(t, "unknown", day[95].Device)

	week, err := f.orch.CalendarView(ctx, user, "health.stepcount", "2024-01-01", "week")
	require.NoError(t, err)
	require.Len(t, week, 7)
	assert.Equal(t, utc(2023, 12, 31, 0, 0), week[0].Start)

	month, err := f.orch.CalendarView(ctx, user, "health.stepcount", "2024-01-15", "month")
	require.NoError(t, err)
	assert.Len(t, month, 31)
}

func TestParseTime(t *testing.T) {
	pacific, err := time.LoadLocation("America/Los_Angeles")
	require.NoError(t, err)

	tests := []struct {
		in   string
		want time.Time
	}{
		{"2024-01-01", time.Date(2024, 1, 1, 0, 0, 0, 0, pacific)},
		{"2024-01-01T10:30", time.Date(2024, 1, 1, 10, 30, 0, 0, pacific)},
		{"2024-01-01T10:30:15", time.Date(2024, 1, 1, 10, 30, 15, 0, pacific)},
		{"2024-01-01T18:30:00Z", time.Date(2024, 1, 1, 10, 30, 0, 0, pacific)},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseTime(tt.in, pacific)
			require.NoError(t, err)
			assert.True(t, tt.want.Equal(got), "got %s", got)
			assert.Equal(t, pacific, got.Location())
		})
	}

	_, err = ParseTime("yesterday", pacific)
	assert.True(t, errors.Is(err, ErrInvalidArgument))
}
