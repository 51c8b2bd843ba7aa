package mad

import (
	"errors"
	"fmt"
	"math/rand"
	"testing"

	"gooutlier/domain/core"
	"gooutlier/domain/outlier"
	"gooutlier/domain/policy"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptr[T any](v T) *T { return &v }

func referenceOptions(t *testing.T) Options {
	t.Helper()
	rotation, err := policy.RotateByAmount(100)
	require.NoError(t, err)
	chunking, err := policy.RotateByAmount(10)
	require.NoError(t, err)
	return Options{
		RotationPolicy: rotation,
		ChunkingPolicy: chunking,
		ZScoreCutoffs: map[outlier.Severity]float64{
			outlier.Normal:          3.5,
			outlier.ModerateOutlier: 5,
		},
		MinAmountToPredict: ptr(uint64(100)),
	}
}

func newReference(t *testing.T, opts ...Option) *SketchyMovingMAD {
	t.Helper()
	cfg, err := NewConfig(referenceOptions(t))
	require.NoError(t, err)
	m, err := NewConfigured(cfg, opts...)
	require.NoError(t, err)
	return m
}

// pointAtZScore builds a value whose modified z-score against the current
// windows of key is exactly z
func pointAtZScore(t *testing.T, m *SketchyMovingMAD, key string, ts int64, z float64) outlier.DataPoint {
	t.Helper()
	values, ok := m.ValueContext(key)
	require.True(t, ok)
	deviations, ok := m.MedianContext(key)
	require.True(t, ok)

	median, err := values.Current().Median()
	require.NoError(t, err)
	mad, err := deviations.Current().Median()
	require.NoError(t, err)

	return outlier.NewDataPoint(ts, median+z*mad/ZScoreConstant, nil, key)
}

func TestReferenceScenario(t *testing.T) {
	m := newReference(t)
	r := rand.New(rand.NewSource(0))

	for i := 0; i < 10000; i++ {
		_, err := m.Analyze(outlier.NewDataPoint(int64(i), r.Float64()*1000, nil, "cpu"))
		require.NoError(t, err)
	}

	values, _ := m.ValueContext("cpu")
	assert.LessOrEqual(t, values.Amount(), uint64(110))
	assert.LessOrEqual(t, len(values.Chunks()), 12)
	deviations, _ := m.MedianContext("cpu")
	assert.LessOrEqual(t, deviations.Amount(), uint64(110))

	moderate, err := m.Analyze(pointAtZScore(t, m, "cpu", 10000, 3.6))
	require.NoError(t, err)
	assert.Equal(t, outlier.ModerateOutlier, moderate.Severity)
	require.True(t, moderate.HasScore())
	assert.InDelta(t, 3.6, *moderate.Score, 1e-6)

	severe, err := m.Analyze(pointAtZScore(t, m, "cpu", 10001, 6.0))
	require.NoError(t, err)
	assert.Equal(t, outlier.SevereOutlier, severe.Severity)
	assert.InDelta(t, 6.0, severe.ScoreOr(0), 1e-6)

	current := values.Current()
	assert.Equal(t, current.TimeRange(), severe.Range)
	assert.Equal(t, int(current.Amount()), severe.SampleSize)
	assert.Equal(t, int64(10001), severe.Range.End)
}

func TestWarmupIsNotEnoughData(t *testing.T) {
	m := newReference(t)
	r := rand.New(rand.NewSource(0))

	for i := 0; i < 150; i++ {
		o, err := m.Analyze(outlier.NewDataPoint(int64(i), r.Float64()*1000, nil, "cpu"))
		require.NoError(t, err)
		assert.Equal(t, outlier.NotEnoughData, o.Severity, "point %d", i)
		assert.False(t, o.HasScore())
	}
}

func TestConstantSeriesNeverPredicts(t *testing.T) {
	m := newReference(t)
	for i := 0; i < 500; i++ {
		o, err := m.Analyze(outlier.NewDataPoint(int64(i), 7, nil, "flat"))
		require.NoError(t, err)
		assert.Equal(t, outlier.NotEnoughData, o.Severity)
	}
	deviations, ok := m.MedianContext("flat")
	require.True(t, ok)
	assert.Zero(t, deviations.Amount())
}

func TestAnalyzeRequiresConfiguration(t *testing.T) {
	_, err := New().Analyze(outlier.NewDataPoint(1, 1, nil, "cpu"))
	assert.True(t, errors.Is(err, core.ErrNotConfigured))
	assert.True(t, core.IsConfigurationError(err))
}

func TestConfigureRejectsUnvalidatedConfig(t *testing.T) {
	m := New()
	err := m.Configure(Config{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, core.ErrConfiguration))

	_, ok := m.Config()
	assert.False(t, ok)
	_, err = m.Analyze(outlier.NewDataPoint(1, 1, nil, "cpu"))
	assert.True(t, errors.Is(err, core.ErrNotConfigured))

	_, err = NewConfigured(Config{})
	assert.True(t, core.IsConfigurationError(err))
}

// unrotatedReference keeps every point in window so window sizes are exact
func unrotatedReference(t *testing.T) (*SketchyMovingMAD, Config) {
	t.Helper()
	chunking, err := policy.RotateByAmount(10)
	require.NoError(t, err)
	cfg, err := NewConfig(Options{
		RotationPolicy: policy.NeverRotate(),
		ChunkingPolicy: chunking,
		ZScoreCutoffs: map[outlier.Severity]float64{
			outlier.Normal:          3.5,
			outlier.ModerateOutlier: 5,
		},
		MinAmountToPredict: ptr(uint64(10)),
	})
	require.NoError(t, err)
	m, err := NewConfigured(cfg)
	require.NoError(t, err)
	return m, cfg
}

func TestSevereBelowZScorePercentileIsModerate(t *testing.T) {
	m, cfg := unrotatedReference(t)
	r := rand.New(rand.NewSource(0))
	for i := 0; i < 200; i++ {
		_, err := m.Analyze(outlier.NewDataPoint(int64(i), r.Float64()*1000, nil, "cpu"))
		require.NoError(t, err)
	}

	zscores, ok := m.ZScoreContext("cpu")
	require.True(t, ok)
	for i := 0; i < 2000; i++ {
		seed := outlier.NewDataPoint(0, 50, nil, "cpu")
		require.NoError(t, zscores.AddDataPoint(seed, cfg.RotationPolicy(), cfg.ChunkingPolicy(), policy.NoScaling, nil))
	}
	top, err := zscores.Current().Percentile(cfg.MinZscorePercentile(), nil)
	require.NoError(t, err)
	assert.InDelta(t, 50, top, 1)
	before := zscores.Amount()

	o, err := m.Analyze(pointAtZScore(t, m, "cpu", 200, 6.0))
	require.NoError(t, err)
	assert.Equal(t, outlier.ModerateOutlier, o.Severity)
	assert.InDelta(t, 6.0, o.ScoreOr(0), 1e-6)

	assert.Equal(t, before+1, zscores.Amount())
}

func TestNearZeroMADIsNormalWithoutScore(t *testing.T) {
	m, cfg := unrotatedReference(t)
	for i := 0; i < 20; i++ {
		_, err := m.Analyze(outlier.NewDataPoint(int64(i), 7, nil, "flat"))
		require.NoError(t, err)
	}

	deviations, ok := m.MedianContext("flat")
	require.True(t, ok)
	require.Zero(t, deviations.Amount())
	for i := 0; i < 20; i++ {
		tiny := outlier.NewDataPoint(int64(i), 5e-5, nil, "flat")
		require.NoError(t, deviations.AddDataPoint(tiny, cfg.RotationPolicy(), cfg.ChunkingPolicy(), policy.NoScaling, nil))
	}

	o, err := m.Analyze(outlier.NewDataPoint(20, 7, nil, "flat"))
	require.NoError(t, err)
	assert.Equal(t, outlier.Normal, o.Severity)
	assert.False(t, o.HasScore())

	zscores, ok := m.ZScoreContext("flat")
	require.True(t, ok)
	assert.Zero(t, zscores.Amount())
}

func TestConfigValidation(t *testing.T) {
	t.Run("missing NORMAL", func(t *testing.T) {
		opts := referenceOptions(t)
		opts.ZScoreCutoffs = map[outlier.Severity]float64{outlier.ModerateOutlier: 1.0}
		_, err := NewConfig(opts)
		require.Error(t, err)
		assert.True(t, errors.Is(err, core.ErrInvalidCutoffs))
	})

	t.Run("missing MODERATE_OUTLIER", func(t *testing.T) {
		opts := referenceOptions(t)
		opts.ZScoreCutoffs = map[outlier.Severity]float64{outlier.Normal: 1.0}
		_, err := NewConfig(opts)
		assert.True(t, errors.Is(err, core.ErrInvalidCutoffs))
	})

	t.Run("unordered cutoffs", func(t *testing.T) {
		opts := referenceOptions(t)
		opts.ZScoreCutoffs = map[outlier.Severity]float64{outlier.Normal: 6, outlier.ModerateOutlier: 5}
		_, err := NewConfig(opts)
		assert.True(t, errors.Is(err, core.ErrInvalidCutoffs))
	})

	t.Run("percentile out of range", func(t *testing.T) {
		opts := referenceOptions(t)
		opts.MinZscorePercentile = ptr(150.0)
		_, err := NewConfig(opts)
		assert.True(t, core.IsConfigurationError(err))
	})

	t.Run("defaults", func(t *testing.T) {
		opts := referenceOptions(t)
		opts.MinAmountToPredict = nil
		cfg, err := NewConfig(opts)
		require.NoError(t, err)
		assert.Equal(t, DefaultMinAmountToPredict, cfg.MinAmountToPredict())
		assert.InDelta(t, 0.95, cfg.MinZscorePercentile(), 1e-12)
		assert.Equal(t, policy.NoScaling, cfg.ScalingFunction())
	})

	t.Run("negative global minimum shifts", func(t *testing.T) {
		opts := referenceOptions(t)
		opts.GlobalStatistics = &policy.GlobalStatistics{Min: ptr(-100.0)}
		cfg, err := NewConfig(opts)
		require.NoError(t, err)
		assert.Equal(t, policy.ShiftToPositive, cfg.ScalingFunction())
	})
}

func TestClassifyUsesCutoffs(t *testing.T) {
	cfg, err := NewConfig(referenceOptions(t))
	require.NoError(t, err)

	assert.Equal(t, outlier.Normal, cfg.classify(3.49))
	assert.Equal(t, outlier.ModerateOutlier, cfg.classify(3.5))
	assert.Equal(t, outlier.ModerateOutlier, cfg.classify(4.99))
	assert.Equal(t, outlier.SevereOutlier, cfg.classify(5))
}

func TestGroupingKeysSeparateState(t *testing.T) {
	opts := referenceOptions(t)
	opts.GroupingKeys = []string{"host"}
	cfg, err := NewConfig(opts)
	require.NoError(t, err)
	m, err := NewConfigured(cfg)
	require.NoError(t, err)

	for i := 0; i < 10; i++ {
		for _, host := range []string{"a", "b"} {
			_, err := m.Analyze(outlier.NewDataPoint(int64(i), float64(i), map[string]string{"host": host}, "cpu"))
			require.NoError(t, err)
		}
	}

	assert.Equal(t, 2, m.Sources())
	a, ok := m.ValueContext("cpu|a")
	require.True(t, ok)
	assert.Equal(t, uint64(10), a.Amount())
}

func TestMaxSourcesEvictsLeastRecent(t *testing.T) {
	opts := referenceOptions(t)
	opts.MaxSources = 2
	cfg, err := NewConfig(opts)
	require.NoError(t, err)
	m, err := NewConfigured(cfg)
	require.NoError(t, err)

	for i, source := range []string{"a", "b", "c"} {
		_, err := m.Analyze(outlier.NewDataPoint(int64(i), 1, nil, source))
		require.NoError(t, err)
	}

	assert.Equal(t, 2, m.Sources())
	_, ok := m.ValueContext("a")
	assert.False(t, ok)
	_, ok = m.ValueContext("c")
	assert.True(t, ok)
}

func TestHistoryFeedsAdjuster(t *testing.T) {
	var seen []int
	adjuster := AdjusterFunc(func(recent []outlier.Outlier, current outlier.Outlier) outlier.Outlier {
		seen = append(seen, len(recent))
		return current
	})
	m := newReference(t, WithAdjuster(adjuster))

	for i := 0; i < 6; i++ {
		_, err := m.Analyze(outlier.NewDataPoint(int64(i), float64(i+1), nil, "cpu"))
		require.NoError(t, err)
	}

	assert.Equal(t, []int{0, 1, 2, 3, 3, 3}, seen)
	history := m.History()
	require.Len(t, history, historySize)
	assert.Equal(t, int64(5), history[2].DataPoint.Timestamp)
}

func TestNoopAdjusterKeepsVerdict(t *testing.T) {
	o := outlier.New(outlier.DataPoint{}, outlier.SevereOutlier, core.TimeRange{}, nil, 0)
	recent := []outlier.Outlier{o, o, o}
	assert.Equal(t, outlier.SevereOutlier, NoopAdjuster{}.Adjust(recent, o).Severity)
}

func TestContextsAreIsolatedPerInstance(t *testing.T) {
	a := newReference(t)
	b := newReference(t)
	for i := 0; i < 5; i++ {
		_, err := a.Analyze(outlier.NewDataPoint(int64(i), 1, nil, fmt.Sprintf("s%d", i)))
		require.NoError(t, err)
	}
	assert.Equal(t, 5, a.Sources())
	assert.Equal(t, 0, b.Sources())
}
