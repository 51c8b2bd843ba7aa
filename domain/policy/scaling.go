package policy

import (
	"fmt"
	"strings"
)

// GlobalStatistics are externally supplied bounds for a series
type GlobalStatistics struct {
	Min *float64 `json:"min,omitempty" yaml:"min,omitempty"`
	Max *float64 `json:"max,omitempty" yaml:"max,omitempty"`
}

// ScalingFunction maps raw values into the domain the sketches operate on
type ScalingFunction int

const (
	// NoScaling passes values through
	NoScaling ScalingFunction = iota
	// ShiftToPositive moves the global minimum to 1
	ShiftToPositive
)

func (f ScalingFunction) String() string {
	switch f {
	case NoScaling:
		return "NONE"
	case ShiftToPositive:
		return "SHIFT_TO_POSITIVE"
	default:
		return fmt.Sprintf("ScalingFunction(%d)", int(f))
	}
}

// ParseScalingFunction accepts NONE and SHIFT_TO_POSITIVE
func ParseScalingFunction(s string) (ScalingFunction, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "NONE":
		return NoScaling, nil
	case "SHIFT_TO_POSITIVE":
		return ShiftToPositive, nil
	}
	return NoScaling, fmt.Errorf("unknown scaling function %q", s)
}

// Scale applies the function; without a known minimum it is the identity
func (f ScalingFunction) Scale(v float64, stats *GlobalStatistics) float64 {
	if f != ShiftToPositive || stats == nil || stats.Min == nil {
		return v
	}
	return v - *stats.Min + 1
}

// ResolveScaling picks the override when given, otherwise SHIFT_TO_POSITIVE
// exactly when the global minimum is negative
func ResolveScaling(override *ScalingFunction, stats *GlobalStatistics) ScalingFunction {
	if override != nil {
		return *override
	}
	if stats != nil && stats.Min != nil && *stats.Min < 0 {
		return ShiftToPositive
	}
	return NoScaling
}
