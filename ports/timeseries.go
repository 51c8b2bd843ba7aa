package ports

import (
	"context"

	"gooutlier/domain/core"
	"gooutlier/domain/outlier"
)

// ContextQuery selects the points backing a batch confirmation
type ContextQuery struct {
	Measure string
	// the evaluation point, never returned as part of its own context
	Point  outlier.DataPoint
	Range  core.TimeRange
	Filter map[string]string
	// keep only the most recent Limit points; 0 keeps all
	Limit int
}

// Select applies the query to points sorted by (timestamp, value)
func (q ContextQuery) Select(sorted []outlier.DataPoint) []outlier.DataPoint {
	var out []outlier.DataPoint
	for _, p := range sorted {
		if p.Timestamp < q.Range.Begin || p.Timestamp > q.Point.Timestamp {
			continue
		}
		if outlier.SameIdentity(p, q.Point) || !outlier.MatchesFilter(p.Metadata, q.Filter) {
			continue
		}
		out = append(out, p)
	}
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[len(out)-q.Limit:]
	}
	return out
}

// PointSource yields points in timestamp order per source; io.EOF ends the stream
type PointSource interface {
	Next(ctx context.Context) (outlier.DataPoint, error)
}

// ContextRetriever fetches the points of a measure inside a time range
type ContextRetriever interface {
	Retrieve(ctx context.Context, q ContextQuery) ([]outlier.DataPoint, error)
}

// OutlierSink accepts confirmed outliers for persistence or publication
type OutlierSink interface {
	Publish(ctx context.Context, o outlier.Outlier) error
}

// TimeSeriesRepository persists tagged points and serves context windows
type TimeSeriesRepository interface {
	ContextRetriever
	OutlierSink
	Persist(ctx context.Context, measure string, dp outlier.DataPoint, tags map[string]string) error
	Close() error
}

// OutlierLister reads back published outliers, newest first
type OutlierLister interface {
	ListOutliers(ctx context.Context, source string, limit int) ([]outlier.Outlier, error)
}
