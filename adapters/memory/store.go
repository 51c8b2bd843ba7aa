package memory

import (
	"cmp"
	"context"
	"slices"
	"sync"

	"gooutlier/domain/outlier"
	"gooutlier/ports"
)

// Store is an in-memory time-series repository. Each instance owns its data.
type Store struct {
	mu       sync.RWMutex
	series   map[string][]outlier.DataPoint
	outliers []outlier.Outlier
}

var (
	_ ports.TimeSeriesRepository = (*Store)(nil)
	_ ports.OutlierLister        = (*Store)(nil)
)

// NewStore creates an empty store
func NewStore() *Store {
	return &Store{series: make(map[string][]outlier.DataPoint)}
}

// Persist stores dp under measure with tags merged into its metadata.
// A point with the same (timestamp, value, record type) replaces the previous one.
func (s *Store) Persist(_ context.Context, measure string, dp outlier.DataPoint, tags map[string]string) error {
	stored := outlier.NewDataPoint(dp.Timestamp, dp.Value, dp.Metadata, dp.Source)
	for k, v := range tags {
		stored.Metadata[k] = v
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	points := s.series[measure]
	i, found := slices.BinarySearchFunc(points, stored, compareRecords)
	if found {
		points[i] = stored
		return nil
	}
	s.series[measure] = slices.Insert(points, i, stored)
	return nil
}

// compareRecords orders by (timestamp, value) and then by the type tag
func compareRecords(a, b outlier.DataPoint) int {
	if c := outlier.Compare(a, b); c != 0 {
		return c
	}
	return cmp.Compare(a.Metadata[outlier.TagType], b.Metadata[outlier.TagType])
}

// Retrieve returns the points of q.Measure between q.Range.Begin and the evaluation point
func (s *Store) Retrieve(_ context.Context, q ports.ContextQuery) ([]outlier.DataPoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return q.Select(s.series[q.Measure]), nil
}

// Publish records a confirmed outlier
func (s *Store) Publish(_ context.Context, o outlier.Outlier) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.outliers = append(s.outliers, o)
	return nil
}

// ListOutliers returns published outliers newest first, optionally for one source.
// A non-positive limit returns all of them.
func (s *Store) ListOutliers(_ context.Context, source string, limit int) ([]outlier.Outlier, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []outlier.Outlier
	for i := len(s.outliers) - 1; i >= 0; i-- {
		o := s.outliers[i]
		if source != "" && o.DataPoint.Source != source {
			continue
		}
		out = append(out, o)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

// Points returns a copy of a measure's records in (timestamp, value, type) order
func (s *Store) Points(measure string) []outlier.DataPoint {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.series[measure])
}

// Outliers returns a copy of every published outlier
func (s *Store) Outliers() []outlier.Outlier {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.outliers)
}

func (s *Store) Close() error {
	return nil
}
