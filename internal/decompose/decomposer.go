package decompose

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/sourcegraph/conc/pool"

	"github.com/tejusbharadwaj/seriesfetch/internal/database"
)

var ErrEmptyWindow = errors.New("window start must be before end")

// RawSample is one deduplicated sample read from the store. Value is set
// for count and rate series, TypeCode for event series.
type RawSample struct {
	ID       string
	Start    time.Time
	End      time.Time
	Device   string
	Value    float64
	TypeCode string
}

// Overlaps reports whether the sample touches [start, end).
func (s RawSample) Overlaps(start, end time.Time) bool {
	return s.Start.Before(end) && !s.End.Before(start)
}

// Decomposer runs the leaf queries of a Plan against a DocumentStore.
type Decomposer struct {
	store          database.DocumentStore
	loc            *time.Location
	maxConcurrency int
	logger         logrus.FieldLogger
	leafQueries    *prometheus.CounterVec
}

type Option func(*Decomposer)

// WithLocation sets the location calendar boundaries are computed in.
// Defaults to UTC.
func WithLocation(loc *time.Location) Option {
	return func(d *Decomposer) { d.loc = loc }
}

// WithMaxConcurrency bounds the number of leaf queries in flight.
// 1 runs them sequentially.
func WithMaxConcurrency(n int) Option {
	return func(d *Decomposer) { d.maxConcurrency = n }
}

func WithLogger(logger logrus.FieldLogger) Option {
	return func(d *Decomposer) { d.logger = logger }
}

// WithLeafCounter counts issued leaf queries. The counter must have a
// single "level" label.
func WithLeafCounter(c *prometheus.CounterVec) Option {
	return func(d *Decomposer) { d.leafQueries = c }
}

func New(store database.DocumentStore, opts ...Option) *Decomposer {
	d := &Decomposer{
		store:          store,
		loc:            time.UTC,
		maxConcurrency: 8,
		logger:         logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// FetchRaw returns every sample of the collection overlapping
// [start, end), once each, ordered by start then id.
//
// A collection that does not exist yields no samples and no error.
func (d *Decomposer) FetchRaw(ctx context.Context, coll database.Collection, start, end time.Time) ([]RawSample, error) {
	if !start.Before(end) {
		return nil, ErrEmptyWindow
	}

	log := d.logger.WithFields(logrus.Fields{
		"user":   coll.UserID,
		"series": coll.Key(),
		"start":  start.Format(time.RFC3339),
		"end":    end.Format(time.RFC3339),
	})

	exists, err := d.store.CollectionExists(ctx, coll)
	if err != nil {
		return nil, fmt.Errorf("failed to check collection %s: %w", coll.Key(), err)
	}
	if !exists {
		log.Debug("Collection does not exist, returning no samples")
		return nil, nil
	}

	leaves := Plan(start.In(d.loc), end.In(d.loc))
	results, err := d.run(ctx, coll, leaves)
	if errors.Is(err, database.ErrCollectionNotFound) {
		log.Debug("Collection disappeared during fetch, returning no samples")
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	samples := merge(results)
	log.WithFields(logrus.Fields{
		"leaves":  len(leaves),
		"samples": len(samples),
	}).Debug("Fetched raw samples")
	return samples, nil
}

func (d *Decomposer) run(ctx context.Context, coll database.Collection, leaves []Leaf) ([][]RawSample, error) {
	p := pool.NewWithResults[[]RawSample]().WithContext(ctx).WithCancelOnError()
	if d.maxConcurrency > 0 {
		p = p.WithMaxGoroutines(d.maxConcurrency)
	}
	for _, leaf := range leaves {
		leaf := leaf
		p.Go(func(ctx context.Context) ([]RawSample, error) {
			return d.runLeaf(ctx, coll, leaf)
		})
	}
	return p.Wait()
}

func (d *Decomposer) runLeaf(ctx context.Context, coll database.Collection, leaf Leaf) ([]RawSample, error) {
	d.logger.WithField("series", coll.Key()).Debugf("Leaf query: %s", leaf)
	if d.leafQueries != nil {
		d.leafQueries.WithLabelValues(string(leaf.Level)).Inc()
	}

	docs, err := d.store.Query(ctx, database.Query{Collection: coll, Where: leaf.Where})
	if err != nil {
		if errors.Is(err, database.ErrCollectionNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("%s leaf query %s failed: %w", leaf.Level, leaf.Window, err)
	}

	samples := make([]RawSample, 0, len(docs))
	for _, doc := range docs {
		s := RawSample{
			ID:       doc.ID,
			Start:    doc.IntervalStart.In(d.loc),
			End:      doc.IntervalEnd.In(d.loc),
			Device:   doc.Device,
			TypeCode: doc.TypeCode,
		}
		if doc.Value != nil {
			s.Value = *doc.Value
		}
		if s.Overlaps(leaf.Window.Start, leaf.Window.End) {
			samples = append(samples, s)
		}
	}
	return samples, nil
}

// merge flattens leaf results, keeping the first occurrence of each id.
func merge(results [][]RawSample) []RawSample {
	seen := make(map[string]struct{})
	var out []RawSample
	for _, samples := range results {
		for _, s := range samples {
			if _, dup := seen[s.ID]; dup {
				continue
			}
			seen[s.ID] = struct{}{}
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Start.Equal(out[j].Start) {
			return out[i].Start.Before(out[j].Start)
		}
		return out[i].ID < out[j].ID
	})
	return out
}
