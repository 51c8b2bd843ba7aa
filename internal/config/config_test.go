package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"gooutlier/domain/policy"
	"gooutlier/internal/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{"DATABASE_URL", "DATABASE_DRIVER", "PORT", "WORKERS", "TAG_KEYS", "CONTEXT_BACKOFF"} {
		t.Setenv(key, "")
	}

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "memory", cfg.Database.Driver)
	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, 4, cfg.Pipeline.Workers)
	assert.Equal(t, 200*time.Millisecond, cfg.Pipeline.ContextBackoff)
	assert.Empty(t, cfg.Pipeline.TagKeys)
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/outliers")
	t.Setenv("DATABASE_DRIVER", "")
	t.Setenv("WORKERS", "8")
	t.Setenv("CONTEXT_BACKOFF", "1s")
	t.Setenv("TAG_KEYS", "host, dc,,")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, 8, cfg.Pipeline.Workers)
	assert.Equal(t, time.Second, cfg.Pipeline.ContextBackoff)
	assert.Equal(t, []string{"host", "dc"}, cfg.Pipeline.TagKeys)
}

func TestLoadRejectsInvalid(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("DATABASE_DRIVER", "sqlite3")
	_, err := Load()
	require.Error(t, err)
	assert.Equal(t, errors.CodeConfigInvalid, errors.GetCode(err))

	t.Setenv("DATABASE_DRIVER", "mongo")
	_, err = Load()
	assert.Error(t, err)

	t.Setenv("DATABASE_DRIVER", "memory")
	t.Setenv("WORKERS", "0")
	_, err = Load()
	assert.Error(t, err)
}

func TestParseDetector(t *testing.T) {
	doc, err := ParseDetector([]byte(`
rotationPolicy: {type: BY_TIME, amount: 60, unit: SECONDS}
chunkingPolicy: {type: BY_TIME, amount: 10, unit: SECONDS}
globalStatistics: {min: -5}
groupingKeys: [host]
streaming:
  zScoreCutoffs: {NORMAL: 3, MODERATE_OUTLIER: 4}
  minAmountToPredict: 50
  maxSources: 1000
batch:
  minRecords: 20
  forceDiff: true
  headStart: 1m
`))
	require.NoError(t, err)

	rotation, err := doc.RotationPolicy.Build()
	require.NoError(t, err)
	assert.Equal(t, policy.ByTime, rotation.Kind())
	assert.Equal(t, time.Minute, rotation.Window())
	assert.Equal(t, -5.0, *doc.GlobalStatistics.Min)
	assert.Equal(t, map[string]float64{"NORMAL": 3, "MODERATE_OUTLIER": 4}, doc.Streaming.ZScoreCutoffs)
	assert.Equal(t, uint64(50), *doc.Streaming.MinAmountToPredict)
	assert.Equal(t, "SKETCHY_MOVING_MAD", doc.Streaming.Algorithm)
	assert.Equal(t, "RPCA", doc.Batch.Algorithm)
	assert.Equal(t, time.Minute, doc.Batch.HeadStart)
	assert.True(t, doc.Batch.ForceDiff)
}

func TestParseDetectorDefaultsAndErrors(t *testing.T) {
	doc, err := ParseDetector(nil)
	require.NoError(t, err)
	assert.Equal(t, DefaultDetector(), doc)

	doc, err = ParseDetector([]byte("groupingKeys: [dc]\n"))
	require.NoError(t, err)
	assert.Equal(t, DefaultDetector().RotationPolicy, doc.RotationPolicy)
	assert.Equal(t, 3.5, doc.Streaming.ZScoreCutoffs["NORMAL"])

	_, err = ParseDetector([]byte("rotation: {}\n"))
	assert.Error(t, err, "unknown fields are rejected")

	_, err = ParseDetector([]byte("batch: {headStart: soon}\n"))
	assert.Error(t, err)
}

func TestDetectorScaling(t *testing.T) {
	doc := DefaultDetector()
	f, err := doc.Scaling()
	require.NoError(t, err)
	assert.Nil(t, f)

	doc.ScalingFunction = "shift_to_positive"
	f, err = doc.Scaling()
	require.NoError(t, err)
	assert.Equal(t, policy.ShiftToPositive, *f)

	doc.ScalingFunction = "log"
	_, err = doc.Scaling()
	assert.Error(t, err)
}

func TestLoadDetectorFileRoundTrip(t *testing.T) {
	doc := DefaultDetector()
	doc.GroupingKeys = []string{"host"}
	doc.Batch.HeadStart = 45 * time.Second
	raw, err := doc.Encode()
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "detector.yaml")
	require.NoError(t, os.WriteFile(path, raw, 0o600))

	loaded, err := LoadDetector(path)
	require.NoError(t, err)
	assert.Equal(t, doc, loaded)

	_, err = LoadDetector(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
