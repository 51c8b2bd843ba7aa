package registry

import (
	"context"
	"errors"
	"testing"
	"time"

	"gooutlier/adapters/memory"
	"gooutlier/adapters/stats/mad"
	"gooutlier/adapters/stats/rpca"
	"gooutlier/domain/core"
	"gooutlier/domain/outlier"
	"gooutlier/domain/policy"
	"gooutlier/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveDefaultDetector(t *testing.T) {
	det, err := Default().Resolve(config.DefaultDetector(), nil)
	require.NoError(t, err)
	assert.Equal(t, rpca.Name, det.Batch.Name())
	assert.Equal(t, rpca.DefaultHeadStart, det.HeadStart)

	a, err := det.NewStreaming()
	require.NoError(t, err)
	b, err := det.NewStreaming()
	require.NoError(t, err)
	assert.Equal(t, mad.Name, a.Name())
	assert.NotSame(t, a, b, "each worker owns its own state")
}

func TestResolveUsesValidatedBatchSettings(t *testing.T) {
	doc := config.DefaultDetector()
	doc.Batch.HeadStart = 5 * time.Second
	doc.Batch.MinRecords = 7
	det, err := Default().Resolve(doc, nil)
	require.NoError(t, err)
	assert.Equal(t, 5*time.Second, det.HeadStart)
	assert.Equal(t, 7, det.MinRecords)

	doc.Batch.HeadStart = -time.Second
	_, err = Default().Resolve(doc, nil)
	assert.True(t, core.IsConfigurationError(err))
}

func TestResolveIsCaseInsensitive(t *testing.T) {
	doc := config.DefaultDetector()
	doc.Streaming.Algorithm = "sketchy_moving_mad"
	doc.Batch.Algorithm = " rpca "
	_, err := Default().Resolve(doc, nil)
	assert.NoError(t, err)
}

func TestResolveFailsFast(t *testing.T) {
	doc := config.DefaultDetector()
	doc.Streaming.ZScoreCutoffs = map[string]float64{"MODERATE_OUTLIER": 1}
	_, err := Default().Resolve(doc, nil)
	assert.True(t, errors.Is(err, core.ErrInvalidCutoffs))

	doc = config.DefaultDetector()
	doc.Streaming.Algorithm = "HOLT_WINTERS"
	_, err = Default().Resolve(doc, nil)
	assert.True(t, errors.Is(err, core.ErrUnknownAlgorithm))

	doc = config.DefaultDetector()
	doc.Batch.LPenalty = ptr(-1.0)
	_, err = Default().Resolve(doc, nil)
	assert.True(t, errors.Is(err, core.ErrInvalidPenalty))

	doc = config.DefaultDetector()
	doc.RotationPolicy = config.PolicyDoc{Type: "BY_TIME", Amount: 0, Unit: "SECONDS"}
	_, err = Default().Resolve(doc, nil)
	assert.True(t, errors.Is(err, core.ErrInvalidPolicy))

	doc = config.DefaultDetector()
	doc.Streaming.ZScoreCutoffs = map[string]float64{"NORMAL": 1, "MODERATE_OUTLIER": 2, "BAD": 3}
	_, err = Default().Resolve(doc, nil)
	assert.True(t, core.IsConfigurationError(err))
}

func TestStreamingOptions(t *testing.T) {
	doc := config.DefaultDetector()
	doc.ScalingFunction = "NONE"
	doc.GroupingKeys = []string{"host"}
	opts, err := StreamingOptions(doc)
	require.NoError(t, err)
	assert.Equal(t, policy.ByAmount, opts.RotationPolicy.Kind())
	assert.Equal(t, uint64(100), opts.ChunkingPolicy.Amount())
	assert.Equal(t, policy.NoScaling, *opts.ScalingOverride)
	assert.Equal(t, 3.5, opts.ZScoreCutoffs[outlier.Normal])
	assert.Equal(t, []string{"host"}, opts.GroupingKeys)
}

func TestBackends(t *testing.T) {
	r := Default()
	f, err := r.Backend(BackendMemory)
	require.NoError(t, err)
	repo, err := f(context.Background(), "")
	require.NoError(t, err)
	assert.IsType(t, &memory.Store{}, repo)

	f, err = r.Backend("sqlite3")
	require.NoError(t, err)
	repo, err = f(context.Background(), "file:registry?mode=memory&cache=shared")
	require.NoError(t, err)
	assert.NoError(t, repo.Close())

	_, err = r.Backend("cassandra")
	assert.True(t, errors.Is(err, core.ErrUnknownBackend))
}

func TestNames(t *testing.T) {
	streaming, batch := Default().Names()
	assert.Equal(t, []string{mad.Name}, streaming)
	assert.Equal(t, []string{rpca.Name}, batch)
}

func ptr[T any](v T) *T { return &v }
