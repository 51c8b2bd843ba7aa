package mad

import (
	"fmt"
	"math"

	"go.uber.org/zap"

	"gooutlier/domain/core"
	"gooutlier/domain/outlier"
	"gooutlier/domain/policy"
	"gooutlier/internal/distribution"
)

const (
	// Name is the registry name of the streaming MAD classifier
	Name = "SKETCHY_MOVING_MAD"

	// ZScoreConstant converts a MAD into a normal-consistent sigma
	ZScoreConstant = 0.6745
	epsilon        = 1e-4
)

// SketchyMovingMAD flags points whose modified z-score against a windowed median
// and a windowed MAD crosses the configured cutoffs. State is kept per grouping key
// and callers must serialise points of the same key.
type SketchyMovingMAD struct {
	cfg      *Config
	sources  sourceTable
	history  []outlier.Outlier
	adjuster SeverityAdjuster
	logger   *zap.Logger
}

// Option customises a SketchyMovingMAD
type Option func(*SketchyMovingMAD)

// WithLogger sets the logger; nil keeps the nop logger
func WithLogger(logger *zap.Logger) Option {
	return func(m *SketchyMovingMAD) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithAdjuster replaces the NoopAdjuster
func WithAdjuster(a SeverityAdjuster) Option {
	return func(m *SketchyMovingMAD) {
		if a != nil {
			m.adjuster = a
		}
	}
}

// New creates an unconfigured classifier; Analyze fails until Configure succeeds
func New(opts ...Option) *SketchyMovingMAD {
	m := &SketchyMovingMAD{
		adjuster: NoopAdjuster{},
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// NewConfigured is New followed by Configure
func NewConfigured(cfg Config, opts ...Option) (*SketchyMovingMAD, error) {
	m := New(opts...)
	if err := m.Configure(cfg); err != nil {
		return nil, err
	}
	return m, nil
}

// Name returns the algorithm name
func (m *SketchyMovingMAD) Name() string {
	return Name
}

// Configure installs cfg and resets all per-source state. cfg must come from NewConfig.
func (m *SketchyMovingMAD) Configure(cfg Config) error {
	if !cfg.validated {
		return fmt.Errorf("%w: streaming config was not built by NewConfig", core.ErrConfiguration)
	}
	table, err := newSourceTable(cfg.maxSources, cfg.relativeAccuracy)
	if err != nil {
		return fmt.Errorf("%w: %v", core.ErrConfiguration, err)
	}
	m.cfg = &cfg
	m.sources = table
	m.history = m.history[:0]
	return nil
}

// Config returns the active configuration
func (m *SketchyMovingMAD) Config() (Config, bool) {
	if m.cfg == nil {
		return Config{}, false
	}
	return *m.cfg, true
}

// Analyze classifies dp against the history of its grouping key and then absorbs it
func (m *SketchyMovingMAD) Analyze(dp outlier.DataPoint) (outlier.Outlier, error) {
	if m.cfg == nil {
		return outlier.Outlier{}, core.ErrNotConfigured
	}
	cfg := m.cfg
	key := outlier.GroupingKey(dp, cfg.groupingKeys)
	state := m.sources.get(key)

	haveValues := state.value.Amount() > cfg.minAmountToPredict && math.Abs(dp.Value) > epsilon
	haveMedians := state.median.Amount() > cfg.minAmountToPredict
	canPredict := haveValues && haveMedians

	var median, mean float64
	if haveValues {
		current := state.value.Current()
		var err error
		if median, err = current.Median(); err != nil {
			return outlier.Outlier{}, fmt.Errorf("median of %s: %w", key, err)
		}
		mean = current.Mean()
	}

	if err := state.value.AddDataPoint(dp, cfg.rotation, cfg.chunking, cfg.scaling, cfg.globalStats); err != nil {
		return outlier.Outlier{}, fmt.Errorf("failed to absorb value for %s: %w", key, err)
	}
	scaled := cfg.scaling.Scale(dp.Value, cfg.globalStats)

	severity := outlier.NotEnoughData
	var score *float64
	if canPredict {
		var err error
		severity, score, err = m.score(state, dp, scaled, median)
		if err != nil {
			return outlier.Outlier{}, fmt.Errorf("failed to score %s: %w", key, err)
		}
	}

	if haveValues {
		if absDiff := math.Abs(scaled - median); absDiff > epsilon {
			dev := outlier.NewDataPoint(dp.Timestamp, absDiff, nil, dp.Source)
			if err := state.median.AddDataPoint(dev, cfg.rotation, cfg.chunking, policy.NoScaling, nil); err != nil {
				return outlier.Outlier{}, fmt.Errorf("failed to absorb deviation for %s: %w", key, err)
			}
		}
	}

	current := state.value.Current()
	verdict := outlier.New(dp, severity, current.TimeRange(), score, int(current.Amount()))
	verdict = m.adjuster.Adjust(m.History(), verdict)
	m.remember(verdict)

	if severity != outlier.NotEnoughData {
		m.logger.Debug("scored point",
			zap.String("key", key),
			zap.Int64("timestamp", dp.Timestamp),
			zap.Float64("value", dp.Value),
			zap.Float64("median", median),
			zap.Float64("mean", mean),
			zap.Stringer("severity", verdict.Severity))
	}
	return verdict, nil
}

// score computes the modified z-score and applies percentile suppression of severe verdicts
func (m *SketchyMovingMAD) score(state *sourceState, dp outlier.DataPoint, scaled, median float64) (outlier.Severity, *float64, error) {
	cfg := m.cfg
	mad, err := state.median.Current().Median()
	if err != nil {
		return outlier.NotEnoughData, nil, err
	}
	if mad < epsilon {
		return outlier.Normal, nil, nil
	}

	z := math.Abs(ZScoreConstant * (scaled - median) / mad)
	severity := cfg.classify(z)
	if severity == outlier.SevereOutlier && state.zscore.Amount() > cfg.minAmountToPredict {
		top, err := state.zscore.Current().Percentile(cfg.minZscorePercentile, distribution.Midpoint)
		if err != nil {
			return outlier.NotEnoughData, nil, err
		}
		if z < top {
			severity = outlier.ModerateOutlier
		}
	}

	if z > epsilon {
		zp := outlier.NewDataPoint(0, z, nil, dp.Source)
		if err := state.zscore.AddDataPoint(zp, cfg.rotation, cfg.chunking, policy.NoScaling, nil); err != nil {
			return outlier.NotEnoughData, nil, err
		}
	}
	return severity, outlier.Float(z), nil
}

func (m *SketchyMovingMAD) remember(o outlier.Outlier) {
	m.history = append(m.history, o)
	if len(m.history) > historySize {
		m.history = append(m.history[:0], m.history[len(m.history)-historySize:]...)
	}
}

// History returns the most recent verdicts, oldest first
func (m *SketchyMovingMAD) History() []outlier.Outlier {
	return append([]outlier.Outlier(nil), m.history...)
}

// Sources is the number of grouping keys currently tracked
func (m *SketchyMovingMAD) Sources() int {
	if m.sources == nil {
		return 0
	}
	return m.sources.len()
}

// ValueContext exposes the value window of a grouping key
func (m *SketchyMovingMAD) ValueContext(key string) (*distribution.Context, bool) {
	s, ok := m.lookup(key)
	if !ok {
		return nil, false
	}
	return s.value, true
}

// MedianContext exposes the absolute deviation window of a grouping key
func (m *SketchyMovingMAD) MedianContext(key string) (*distribution.Context, bool) {
	s, ok := m.lookup(key)
	if !ok {
		return nil, false
	}
	return s.median, true
}

// ZScoreContext exposes the z-score window of a grouping key
func (m *SketchyMovingMAD) ZScoreContext(key string) (*distribution.Context, bool) {
	s, ok := m.lookup(key)
	if !ok {
		return nil, false
	}
	return s.zscore, true
}

func (m *SketchyMovingMAD) lookup(key string) (*sourceState, bool) {
	if m.sources == nil {
		return nil, false
	}
	return m.sources.peek(key)
}
