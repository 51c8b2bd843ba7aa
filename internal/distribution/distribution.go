package distribution

import (
	"fmt"
	"math"

	"gooutlier/domain/core"
	"gooutlier/domain/outlier"
	"gooutlier/domain/policy"
)

// Distribution is a sketch of values together with the time span they cover
type Distribution struct {
	sketch *Sketch
	begin  int64
	end    int64
}

// New creates a distribution seeded with a single scaled point
func New(dp outlier.DataPoint, scaling policy.ScalingFunction, stats *policy.GlobalStatistics, accuracy float64) (*Distribution, error) {
	sketch, err := NewSketch(accuracy)
	if err != nil {
		return nil, err
	}
	d := &Distribution{sketch: sketch, begin: dp.Timestamp, end: dp.Timestamp}
	if err := d.sketch.Add(scaling.Scale(dp.Value, stats)); err != nil {
		return nil, err
	}
	return d, nil
}

// Add absorbs a scaled point and widens the time span
func (d *Distribution) Add(dp outlier.DataPoint, scaling policy.ScalingFunction, stats *policy.GlobalStatistics) error {
	if err := d.sketch.Add(scaling.Scale(dp.Value, stats)); err != nil {
		return err
	}
	d.begin = min(d.begin, dp.Timestamp)
	d.end = max(d.end, dp.Timestamp)
	return nil
}

// Merge returns a new distribution holding the union of dists. Inputs are not modified.
func Merge(dists []*Distribution) (*Distribution, error) {
	var out *Distribution
	for _, d := range dists {
		if d == nil || d.sketch.IsEmpty() {
			continue
		}
		if out == nil {
			out = d.Copy()
			continue
		}
		if err := out.sketch.MergeWith(d.sketch); err != nil {
			return nil, err
		}
		out.begin = min(out.begin, d.begin)
		out.end = max(out.end, d.end)
	}
	if out == nil {
		return nil, core.ErrEmptyDistribution
	}
	return out, nil
}

// Copy returns an independent deep copy
func (d *Distribution) Copy() *Distribution {
	return &Distribution{sketch: d.sketch.Copy(), begin: d.begin, end: d.end}
}

func (d *Distribution) Amount() uint64 { return d.sketch.Count() }

func (d *Distribution) Begin() int64 { return d.begin }

func (d *Distribution) End() int64 { return d.end }

func (d *Distribution) Min() float64 { return d.sketch.Min() }

func (d *Distribution) Max() float64 { return d.sketch.Max() }

func (d *Distribution) Mean() float64 { return d.sketch.Mean() }

// TimeRange is the inclusive [begin, end] span of absorbed timestamps
func (d *Distribution) TimeRange() core.TimeRange {
	return core.TimeRange{Begin: d.begin, End: d.end}
}

// PercentileRange bounds the p-th quantile, p in [0, 1]
func (d *Distribution) PercentileRange(p float64) (ValueRange, error) {
	if p < 0 || p > 1 || math.IsNaN(p) {
		return ValueRange{}, fmt.Errorf("%w: got %g", core.ErrInvalidPercentile, p)
	}
	if d.sketch.IsEmpty() {
		return ValueRange{}, core.ErrEmptyDistribution
	}
	if p == 0 {
		return ValueRange{Lower: d.sketch.Min(), Upper: d.sketch.Min()}, nil
	}
	if p == 1 {
		return ValueRange{Lower: d.sketch.Max(), Upper: d.sketch.Max()}, nil
	}
	return d.sketch.QuantileRange(p)
}

// Percentile collapses PercentileRange with the given approximator
func (d *Distribution) Percentile(p float64, approx Approximator) (float64, error) {
	r, err := d.PercentileRange(p)
	if err != nil {
		return 0, err
	}
	if approx == nil {
		approx = Midpoint
	}
	return approx(r), nil
}

// Median is the midpoint of the 0.5 quantile bound
func (d *Distribution) Median() (float64, error) {
	return d.Percentile(0.5, Midpoint)
}

func (d *Distribution) String() string {
	return fmt.Sprintf("Distribution{amount=%d, range=%s}", d.Amount(), d.TimeRange())
}
