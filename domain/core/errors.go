package core

import (
	"errors"
	"fmt"
)

// Domain errors - centralized error definitions
var (
	// Configuration errors are fatal and surface at setup time
	ErrConfiguration    = errors.New("invalid configuration")
	ErrNotConfigured    = fmt.Errorf("%w: classifier is not configured", ErrConfiguration)
	ErrInvalidPolicy    = fmt.Errorf("%w: rotation policy", ErrConfiguration)
	ErrInvalidCutoffs   = fmt.Errorf("%w: severity cutoffs", ErrConfiguration)
	ErrInvalidPenalty   = fmt.Errorf("%w: rpca penalty", ErrConfiguration)
	ErrUnknownAlgorithm = fmt.Errorf("%w: unknown algorithm", ErrConfiguration)
	ErrUnknownBackend   = fmt.Errorf("%w: unknown time series backend", ErrConfiguration)

	// Data errors
	ErrEmptyDistribution   = errors.New("distribution has no data")
	ErrInvalidPercentile   = errors.New("percentile must be within [0, 1]")
	ErrInvalidTimeRange    = errors.New("time range begin is after end")
	ErrInsufficientContext = errors.New("insufficient context points for confirmation")
)

// Error constructors with context
func NewPolicyError(field string, reason string) error {
	return fmt.Errorf("%w: %s %s", ErrInvalidPolicy, field, reason)
}

func NewCutoffError(reason string) error {
	return fmt.Errorf("%w: %s", ErrInvalidCutoffs, reason)
}

func NewPenaltyError(field string, value float64) error {
	return fmt.Errorf("%w: %s must be non-negative, got %g", ErrInvalidPenalty, field, value)
}

func NewUnknownAlgorithmError(name string) error {
	return fmt.Errorf("%w %q", ErrUnknownAlgorithm, name)
}

// IsConfigurationError reports whether err must stop the classifier from processing points
func IsConfigurationError(err error) bool {
	return errors.Is(err, ErrConfiguration)
}
