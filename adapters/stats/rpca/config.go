package rpca

import (
	"fmt"
	"math"
	"time"

	"gooutlier/domain/core"
)

const (
	DefaultLPenalty  = 1.0
	sPenaltyScale    = 1.4
	DefaultHeadStart = 30 * time.Second
)

// Options is the raw configuration surface of the batch classifier.
// Nil penalties are derived from the matrix shape on every call.
type Options struct {
	LPenalty   *float64
	SPenalty   *float64
	MinRecords int
	ForceDiff  bool
	// zero selects DefaultHeadStart
	HeadStart time.Duration
}

// Config is the validated, immutable batch configuration
type Config struct {
	lPenalty   *float64
	sPenalty   *float64
	minRecords int
	forceDiff  bool
	headStart  time.Duration
}

// NewConfig rejects negative penalties, a negative record floor and a negative head start
func NewConfig(opts Options) (Config, error) {
	if opts.LPenalty != nil && (*opts.LPenalty < 0 || math.IsNaN(*opts.LPenalty)) {
		return Config{}, core.NewPenaltyError("lPenalty", *opts.LPenalty)
	}
	if opts.SPenalty != nil && (*opts.SPenalty < 0 || math.IsNaN(*opts.SPenalty)) {
		return Config{}, core.NewPenaltyError("sPenalty", *opts.SPenalty)
	}
	if opts.MinRecords < 0 {
		return Config{}, fmt.Errorf("%w: minRecords must be non-negative, got %d", core.ErrConfiguration, opts.MinRecords)
	}
	if opts.HeadStart < 0 {
		return Config{}, fmt.Errorf("%w: headStart must be non-negative, got %s", core.ErrConfiguration, opts.HeadStart)
	}

	cfg := Config{
		minRecords: opts.MinRecords,
		forceDiff:  opts.ForceDiff,
		headStart:  opts.HeadStart,
	}
	if cfg.headStart == 0 {
		cfg.headStart = DefaultHeadStart
	}
	if opts.LPenalty != nil {
		v := *opts.LPenalty
		cfg.lPenalty = &v
	}
	if opts.SPenalty != nil {
		v := *opts.SPenalty
		cfg.sPenalty = &v
	}
	return cfg, nil
}

// DefaultConfig derives both penalties and uses the default head start
func DefaultConfig() Config {
	return Config{headStart: DefaultHeadStart}
}

func (c Config) MinRecords() int { return c.minRecords }

func (c Config) HeadStart() time.Duration { return c.headStart }

// Penalties resolves (λl, λs) for a rows x cols input
func (c Config) Penalties(rows, cols int) (float64, float64) {
	l := DefaultLPenalty
	if c.lPenalty != nil {
		l = *c.lPenalty
	}
	s := sPenaltyScale / math.Sqrt(float64(max(rows, cols)))
	if c.sPenalty != nil {
		s = *c.sPenalty
	}
	return l, s
}
