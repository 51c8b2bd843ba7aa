package distribution

import (
	"fmt"
	"math"

	"github.com/DataDog/sketches-go/ddsketch"
)

// DefaultRelativeAccuracy is the relative error bound of sketch quantiles
const DefaultRelativeAccuracy = 0.005

// ValueRange is a closed interval bounding a quantile estimate
type ValueRange struct {
	Lower float64 `json:"lower"`
	Upper float64 `json:"upper"`
}

// Approximator collapses a ValueRange into a single value
type Approximator func(ValueRange) float64

var (
	Midpoint Approximator = func(r ValueRange) float64 { return r.Lower + (r.Upper-r.Lower)/2 }
	Lower    Approximator = func(r ValueRange) float64 { return r.Lower }
	Upper    Approximator = func(r ValueRange) float64 { return r.Upper }
)

// Sketch wraps a DDSketch and tracks the exact moments the sketch cannot answer.
// Not safe for concurrent use.
type Sketch struct {
	dd        *ddsketch.DDSketch
	accuracy  float64
	count     uint64
	negatives uint64
	min       float64
	max       float64
	sum       float64
}

// NewSketch creates an empty sketch; accuracy <= 0 selects DefaultRelativeAccuracy
func NewSketch(accuracy float64) (*Sketch, error) {
	if accuracy <= 0 {
		accuracy = DefaultRelativeAccuracy
	}
	dd, err := ddsketch.NewDefaultDDSketch(accuracy)
	if err != nil {
		return nil, fmt.Errorf("failed to create sketch with accuracy %g: %w", accuracy, err)
	}
	return &Sketch{
		dd:       dd,
		accuracy: accuracy,
		min:      math.Inf(1),
		max:      math.Inf(-1),
	}, nil
}

// Add absorbs one value
func (s *Sketch) Add(v float64) error {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return fmt.Errorf("cannot add non-finite value %g to sketch", v)
	}
	if err := s.dd.Add(v); err != nil {
		return fmt.Errorf("failed to add %g to sketch: %w", v, err)
	}
	s.count++
	if v < 0 {
		s.negatives++
	}
	s.sum += v
	s.min = math.Min(s.min, v)
	s.max = math.Max(s.max, v)
	return nil
}

// MergeWith folds other into s; other is left untouched
func (s *Sketch) MergeWith(other *Sketch) error {
	if other == nil || other.count == 0 {
		return nil
	}
	if err := s.dd.MergeWith(other.dd); err != nil {
		return fmt.Errorf("failed to merge sketches: %w", err)
	}
	s.count += other.count
	s.negatives += other.negatives
	s.sum += other.sum
	s.min = math.Min(s.min, other.min)
	s.max = math.Max(s.max, other.max)
	return nil
}

// Copy returns an independent deep copy
func (s *Sketch) Copy() *Sketch {
	out := *s
	out.dd = s.dd.Copy()
	return &out
}

func (s *Sketch) Count() uint64 { return s.count }

func (s *Sketch) IsEmpty() bool { return s.count == 0 }

func (s *Sketch) Min() float64 { return s.min }

func (s *Sketch) Max() float64 { return s.max }

func (s *Sketch) Sum() float64 { return s.sum }

// Mean is exact: sum over count
func (s *Sketch) Mean() float64 {
	if s.count == 0 {
		return 0
	}
	return s.sum / float64(s.count)
}

// QuantileRange bounds the p-quantile by the order statistics either side of rank p*(n-1).
// The extremes are exact.
func (s *Sketch) QuantileRange(p float64) (ValueRange, error) {
	if p < 0 || p > 1 || math.IsNaN(p) {
		return ValueRange{}, fmt.Errorf("percentile %g outside [0, 1]", p)
	}
	if s.count == 0 {
		return ValueRange{}, fmt.Errorf("quantile of empty sketch")
	}
	rank := p * float64(s.count-1)
	lo, err := s.valueAtRank(math.Floor(rank))
	if err != nil {
		return ValueRange{}, err
	}
	hi, err := s.valueAtRank(math.Ceil(rank))
	if err != nil {
		return ValueRange{}, err
	}
	return ValueRange{Lower: lo, Upper: hi}, nil
}

// valueAtRank returns the approximate value of the k-th smallest element (0-based).
// DDSketch selects the first bucket whose cumulative count exceeds the requested rank,
// and mirrors ranks on the negative side, so the rank is nudged by a quarter toward
// the bucket that holds element k before converting it to a quantile.
func (s *Sketch) valueAtRank(k float64) (float64, error) {
	last := float64(s.count - 1)
	if k <= 0 || s.count == 1 {
		return s.min, nil
	}
	if k >= last {
		return s.max, nil
	}
	rank := k + 0.25
	if k < float64(s.negatives) {
		rank = k - 0.25
	}
	q := math.Min(1, math.Max(0, rank/last))
	v, err := s.dd.GetValueAtQuantile(q)
	if err != nil {
		return 0, fmt.Errorf("failed to read quantile %g: %w", q, err)
	}
	return math.Min(s.max, math.Max(s.min, v)), nil
}
