package core

import (
	"fmt"
	"time"
)

// TimeRange is an inclusive [Begin, End] interval of epoch milliseconds
type TimeRange struct {
	Begin int64 `json:"begin"`
	End   int64 `json:"end"`
}

// NewTimeRange validates begin <= end
func NewTimeRange(begin, end int64) (TimeRange, error) {
	if begin > end {
		return TimeRange{}, fmt.Errorf("%w: [%d, %d]", ErrInvalidTimeRange, begin, end)
	}
	return TimeRange{Begin: begin, End: end}, nil
}

// Contains reports whether ts lies inside the range
func (r TimeRange) Contains(ts int64) bool {
	return ts >= r.Begin && ts <= r.End
}

// Span returns the width of the range
func (r TimeRange) Span() time.Duration {
	return time.Duration(r.End-r.Begin) * time.Millisecond
}

// Extend widens the range backwards by headStart
func (r TimeRange) Extend(headStart time.Duration) TimeRange {
	return TimeRange{Begin: r.Begin - headStart.Milliseconds(), End: r.End}
}

func (r TimeRange) String() string {
	return fmt.Sprintf("(%d,%d)", r.Begin, r.End)
}
