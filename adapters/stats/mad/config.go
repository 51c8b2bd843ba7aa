package mad

import (
	"fmt"

	"gooutlier/domain/core"
	"gooutlier/domain/outlier"
	"gooutlier/domain/policy"
	"gooutlier/internal/distribution"
)

const (
	DefaultMinAmountToPredict  uint64  = 100
	DefaultMinZscorePercentile float64 = 95
)

// Options is the raw configuration surface of the streaming classifier
type Options struct {
	RotationPolicy   policy.RotationConfig
	ChunkingPolicy   policy.RotationConfig
	GlobalStatistics *policy.GlobalStatistics
	ScalingOverride  *policy.ScalingFunction
	GroupingKeys     []string
	ZScoreCutoffs    map[outlier.Severity]float64
	// nil selects DefaultMinAmountToPredict
	MinAmountToPredict *uint64
	// percentile in [0, 100]; nil selects DefaultMinZscorePercentile
	MinZscorePercentile *float64
	// bound on tracked sources, 0 for unbounded
	MaxSources       int
	RelativeAccuracy float64
}

// Config is the validated, immutable configuration built by NewConfig
type Config struct {
	rotation            policy.RotationConfig
	chunking            policy.RotationConfig
	globalStats         *policy.GlobalStatistics
	scaling             policy.ScalingFunction
	groupingKeys        []string
	normalCutoff        float64
	moderateCutoff      float64
	minAmountToPredict  uint64
	minZscorePercentile float64
	maxSources          int
	relativeAccuracy    float64
	validated           bool
}

// NewConfig validates the options. Both NORMAL and MODERATE_OUTLIER cutoffs are
// required and must be ordered.
func NewConfig(opts Options) (Config, error) {
	normal, hasNormal := opts.ZScoreCutoffs[outlier.Normal]
	moderate, hasModerate := opts.ZScoreCutoffs[outlier.ModerateOutlier]
	if !hasNormal || !hasModerate {
		return Config{}, core.NewCutoffError("NORMAL and MODERATE_OUTLIER cutoffs are both required")
	}
	if normal > moderate {
		return Config{}, core.NewCutoffError(fmt.Sprintf("NORMAL (%g) must not exceed MODERATE_OUTLIER (%g)", normal, moderate))
	}

	minAmount := DefaultMinAmountToPredict
	if opts.MinAmountToPredict != nil {
		minAmount = *opts.MinAmountToPredict
	}

	percentile := DefaultMinZscorePercentile
	if opts.MinZscorePercentile != nil {
		percentile = *opts.MinZscorePercentile
	}
	if percentile < 0 || percentile > 100 {
		return Config{}, fmt.Errorf("%w: minZscorePercentile %g outside [0, 100]", core.ErrConfiguration, percentile)
	}

	if opts.MaxSources < 0 {
		return Config{}, fmt.Errorf("%w: maxSources must be non-negative", core.ErrConfiguration)
	}
	if opts.RelativeAccuracy < 0 || opts.RelativeAccuracy >= 1 {
		return Config{}, fmt.Errorf("%w: relativeAccuracy %g outside [0, 1)", core.ErrConfiguration, opts.RelativeAccuracy)
	}
	accuracy := opts.RelativeAccuracy
	if accuracy == 0 {
		accuracy = distribution.DefaultRelativeAccuracy
	}

	return Config{
		rotation:            opts.RotationPolicy,
		chunking:            opts.ChunkingPolicy,
		globalStats:         opts.GlobalStatistics,
		scaling:             policy.ResolveScaling(opts.ScalingOverride, opts.GlobalStatistics),
		groupingKeys:        append([]string(nil), opts.GroupingKeys...),
		normalCutoff:        normal,
		moderateCutoff:      moderate,
		minAmountToPredict:  minAmount,
		minZscorePercentile: percentile / 100,
		maxSources:          opts.MaxSources,
		relativeAccuracy:    accuracy,
		validated:           true,
	}, nil
}

func (c Config) RotationPolicy() policy.RotationConfig { return c.rotation }

func (c Config) ChunkingPolicy() policy.RotationConfig { return c.chunking }

func (c Config) ScalingFunction() policy.ScalingFunction { return c.scaling }

func (c Config) GroupingKeys() []string { return append([]string(nil), c.groupingKeys...) }

func (c Config) MinAmountToPredict() uint64 { return c.minAmountToPredict }

// MinZscorePercentile is stored as a fraction
func (c Config) MinZscorePercentile() float64 { return c.minZscorePercentile }

// classify maps a z-score onto the configured cutoffs
func (c Config) classify(z float64) outlier.Severity {
	switch {
	case z < c.normalCutoff:
		return outlier.Normal
	case z < c.moderateCutoff:
		return outlier.ModerateOutlier
	default:
		return outlier.SevereOutlier
	}
}
