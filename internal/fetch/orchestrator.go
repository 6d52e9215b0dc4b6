// Package fetch answers aggregated series requests: it validates the
// request, narrows the granularity to the window, decomposes the window into
// store queries and aggregates the samples into buckets.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/tejusbharadwaj/seriesfetch/internal/aggregate"
	"github.com/tejusbharadwaj/seriesfetch/internal/cache"
	"github.com/tejusbharadwaj/seriesfetch/internal/database"
	"github.com/tejusbharadwaj/seriesfetch/internal/decompose"
	"github.com/tejusbharadwaj/seriesfetch/internal/granularity"
	"github.com/tejusbharadwaj/seriesfetch/internal/series"
)

// userSeriesCacheSize bounds the per-user series list cache.
const userSeriesCacheSize = 128

// RawFetcher returns the deduplicated samples of a collection overlapping
// [start, end).
type RawFetcher interface {
	FetchRaw(ctx context.Context, coll database.Collection, start, end time.Time) ([]decompose.RawSample, error)
}

// SeriesLister lists the "namespace.name" keys a user has collections for.
type SeriesLister interface {
	ListSeries(ctx context.Context, userID string) ([]string, error)
}

// Result is an aggregated answer. Start and End are the parsed window and
// Granularity the adjusted one.
type Result struct {
	Series      string                  `json:"series"`
	Start       time.Time               `json:"start"`
	End         time.Time               `json:"end"`
	Granularity granularity.Granularity `json:"granularity"`
	Points      []aggregate.DataPoint   `json:"points"`
	Summary     string                  `json:"summary"`
}

// Orchestrator composes the registry, the decomposer and the aggregator.
type Orchestrator struct {
	registry   *series.Registry
	lister     SeriesLister
	fetcher    RawFetcher
	results    cache.Cache[Result]
	userSeries cache.Cache[[]string]
	cacheHits  *prometheus.CounterVec
	loc        *time.Location
	now        func() time.Time
	logger     logrus.FieldLogger
}

type Option func(*Orchestrator)

// WithResultCache memoizes FetchAggregated results.
func WithResultCache(c cache.Cache[Result]) Option {
	return func(o *Orchestrator) { o.results = c }
}

// WithCacheCounter counts result cache lookups. The counter must have a
// single "result" label, set to "hit" or "miss".
func WithCacheCounter(c *prometheus.CounterVec) Option {
	return func(o *Orchestrator) { o.cacheHits = c }
}

// WithLocation sets the location dates without an offset are read in.
func WithLocation(loc *time.Location) Option {
	return func(o *Orchestrator) { o.loc = loc }
}

// WithClock replaces time.Now, used when a visualization has no date.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

func WithLogger(logger logrus.FieldLogger) Option {
	return func(o *Orchestrator) { o.logger = logger }
}

// New creates an Orchestrator. Without WithResultCache results are not
// memoized. The user series list is always cached in a bounded LRU.
func New(registry *series.Registry, lister SeriesLister, fetcher RawFetcher, opts ...Option) (*Orchestrator, error) {
	userSeries, err := cache.NewLRU[[]string](userSeriesCacheSize)
	if err != nil {
		return nil, err
	}

	o := &Orchestrator{
		registry:   registry,
		lister:     lister,
		fetcher:    fetcher,
		userSeries: userSeries,
		loc:        time.UTC,
		now:        time.Now,
		logger:     logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

// PurgeCache drops memoized results and user series lists.
func (o *Orchestrator) PurgeCache(ctx context.Context) error {
	if err := o.userSeries.Purge(ctx); err != nil {
		return err
	}
	if o.results != nil {
		return o.results.Purge(ctx)
	}
	return nil
}

// FetchAggregated returns the buckets of series for user over [start, end)
// together with a textual summary.
//
// Errors wrap ErrInvalidArgument (bad granularity or date), ErrEmptyRange,
// ErrUnknownSeries or ErrNoData; store failures are returned wrapped.
func (o *Orchestrator) FetchAggregated(ctx context.Context, userID, seriesKey, start, end, gran string, includeEmpty bool) (Result, error) {
	g, err := granularity.Parse(gran)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrInvalidArgument, err)
	}

	desc, err := o.userDescriptor(ctx, userID, seriesKey)
	if err != nil {
		return Result{}, err
	}

	startTime, err := ParseTime(start, o.loc)
	if err != nil {
		return Result{}, err
	}
	endTime, err := ParseTime(end, o.loc)
	if err != nil {
		return Result{}, err
	}

	return o.fetch(ctx, userID, desc, startTime, endTime, g, includeEmpty)
}

type resultKey struct {
	User         string `json:"user"`
	Series       string `json:"series"`
	Start        string `json:"start"`
	End          string `json:"end"`
	Granularity  string `json:"granularity"`
	IncludeEmpty bool   `json:"includeEmpty"`
}

func (o *Orchestrator) fetch(ctx context.Context, userID string, desc series.Descriptor, start, end time.Time, requested granularity.Granularity, includeEmpty bool) (Result, error) {
	log := o.logger.WithFields(logrus.Fields{
		"user":   userID,
		"series": desc.Key(),
		"start":  start.Format(time.RFC3339),
		"end":    end.Format(time.RFC3339),
	})

	g := granularity.Adjust(start, end, requested, log)
	if !start.Before(end) {
		return Result{}, fmt.Errorf("%w: %s to %s", ErrEmptyRange, start.Format(summaryLayout), end.Format(summaryLayout))
	}
	log = log.WithField("granularity", g.String())

	key, err := cache.Key("fetch", resultKey{
		User:         userID,
		Series:       desc.Key(),
		Start:        start.Format(time.RFC3339Nano),
		End:          end.Format(time.RFC3339Nano),
		Granularity:  g.String(),
		IncludeEmpty: includeEmpty,
	})
	if err != nil {
		return Result{}, err
	}
	if res, ok := o.cachedResult(ctx, log, key); ok {
		return res, nil
	}

	fetchStart := time.Now()
	samples, err := o.fetcher.FetchRaw(ctx, collection(userID, desc), start, end)
	if err != nil {
		return Result{}, fmt.Errorf("failed to fetch %s: %w", desc.Key(), err)
	}
	if len(samples) == 0 {
		return Result{}, fmt.Errorf("%w: %s for user %s from %s to %s",
			ErrNoData, desc.Key(), userID, start.Format(summaryLayout), end.Format(summaryLayout))
	}
	fetched := time.Since(fetchStart)

	points, err := aggregate.Aggregate(samples, desc, start, end, g, includeEmpty)
	if err != nil {
		return Result{}, err
	}

	summary, err := describe(desc.Key(), start, end, g, points)
	if err != nil {
		return Result{}, err
	}

	res := Result{
		Series:      desc.Key(),
		Start:       start,
		End:         end,
		Granularity: g,
		Points:      points,
		Summary:     summary,
	}
	log.WithFields(logrus.Fields{
		"samples":   len(samples),
		"points":    len(points),
		"fetch_ms":  fetched.Milliseconds(),
		"total_ms":  time.Since(fetchStart).Milliseconds(),
		"requested": requested.String(),
	}).Info("Fetched aggregated data")

	if o.results != nil {
		if err := o.results.Add(ctx, key, res); err != nil {
			log.WithError(err).Warn("Failed to cache result")
		}
	}
	return res, nil
}

func (o *Orchestrator) cachedResult(ctx context.Context, log logrus.FieldLogger, key string) (Result, bool) {
	if o.results == nil {
		return Result{}, false
	}
	res, ok, err := o.results.Get(ctx, key)
	if err != nil {
		log.WithError(err).Warn("Result cache lookup failed")
		return Result{}, false
	}
	if o.cacheHits != nil {
		label := "miss"
		if ok {
			label = "hit"
		}
		o.cacheHits.WithLabelValues(label).Inc()
	}
	if ok {
		log.Debug("Serving cached result")
	}
	return res, ok
}

// describe renders the fetch summary, one line per data point.
func describe(key string, start, end time.Time, g granularity.Granularity, points []aggregate.DataPoint) (string, error) {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Here is a summary of the data for %s from %s to %s at a granularity of %s:\n",
		key, start.Format(summaryLayout), end.Format(summaryLayout), g)
	for _, p := range points {
		line, err := p.Summary()
		if err != nil {
			return "", err
		}
		sb.WriteString(line)
		sb.WriteString("\n")
	}
	return sb.String(), nil
}

func collection(userID string, desc series.Descriptor) database.Collection {
	return database.Collection{UserID: userID, Namespace: desc.Namespace, Series: desc.Name}
}

// userDescriptor resolves a key the user has data for.
func (o *Orchestrator) userDescriptor(ctx context.Context, userID, seriesKey string) (series.Descriptor, error) {
	desc, ok := o.registry.Lookup(seriesKey)
	if !ok {
		return series.Descriptor{}, fmt.Errorf("%w: %q is not a registered series", ErrUnknownSeries, seriesKey)
	}

	keys, err := o.userSeriesKeys(ctx, userID)
	if err != nil {
		return series.Descriptor{}, err
	}
	for _, k := range keys {
		if k == seriesKey {
			return desc, nil
		}
	}
	return series.Descriptor{}, fmt.Errorf("%w: %q not found for user %q", ErrUnknownSeries, seriesKey, userID)
}

func (o *Orchestrator) userSeriesKeys(ctx context.Context, userID string) ([]string, error) {
	if keys, ok, err := o.userSeries.Get(ctx, userID); err == nil && ok {
		return keys, nil
	}

	keys, err := o.lister.ListSeries(ctx, userID)
	if errors.Is(err, database.ErrCollectionNotFound) {
		keys, err = nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list series for user %q: %w", userID, err)
	}
	if err := o.userSeries.Add(ctx, userID, keys); err != nil {
		o.logger.WithError(err).Warn("Failed to cache user series")
	}
	return keys, nil
}

// ListSeries returns the registered series the user has data for, ordered
// by key. Unregistered collections are left out.
func (o *Orchestrator) ListSeries(ctx context.Context, userID string) ([]series.Descriptor, error) {
	keys, err := o.userSeriesKeys(ctx, userID)
	if err != nil {
		return nil, err
	}

	var out []series.Descriptor
	for _, k := range keys {
		if desc, ok := o.registry.Lookup(k); ok {
			out = append(out, desc)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key() < out[j].Key() })
	return out, nil
}
