package app

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"

	"gooutlier/adapters/extract"
	"gooutlier/adapters/memory"
	"gooutlier/domain/core"
	"gooutlier/domain/outlier"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingStreaming remembers the points it saw and calls everything normal
type recordingStreaming struct {
	mu   sync.Mutex
	seen []outlier.DataPoint
	err  error
}

func (r *recordingStreaming) Name() string { return "RECORDING" }

func (r *recordingStreaming) Analyze(dp outlier.DataPoint) (outlier.Outlier, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return outlier.Outlier{}, r.err
	}
	r.seen = append(r.seen, dp)
	return outlier.New(dp, outlier.Normal, core.TimeRange{Begin: dp.Timestamp, End: dp.Timestamp}, nil, 1), nil
}

func newRecordingServices(n int, store *memory.Store) ([]*OutlierService, []*recordingStreaming) {
	services := make([]*OutlierService, n)
	recorders := make([]*recordingStreaming, n)
	metrics := newMetrics()
	for i := range services {
		recorders[i] = &recordingStreaming{}
		services[i] = NewOutlierService(recorders[i], &mockBatch{}, store, metrics, nil, ServiceOptions{})
	}
	return services, recorders
}

func TestRunnerKeepsKeysOnOneWorkerInOrder(t *testing.T) {
	store := memory.NewStore()
	services, recorders := newRecordingServices(4, store)

	var mu sync.Mutex
	processed := 0
	runner := NewPartitionedRunner(context.Background(), services, []string{"host"}, 8, func(outlier.DataPoint, Result) {
		mu.Lock()
		processed++
		mu.Unlock()
	}, nil)

	ctx := context.Background()
	for ts := int64(0); ts < 50; ts++ {
		for h := 0; h < 10; h++ {
			dp := outlier.NewDataPoint(ts, float64(h), map[string]string{"host": fmt.Sprintf("h%d", h)}, "cpu")
			require.NoError(t, runner.Submit(ctx, dp))
		}
	}
	require.NoError(t, runner.Close())
	assert.Equal(t, 500, processed)

	owner := map[string]int{}
	total := 0
	for worker, rec := range recorders {
		last := map[string]int64{}
		for _, dp := range rec.seen {
			key := outlier.GroupingKey(dp, []string{"host"})
			if w, ok := owner[key]; ok {
				assert.Equal(t, w, worker, "key %s split across workers", key)
			}
			owner[key] = worker
			if prev, ok := last[key]; ok {
				assert.Less(t, prev, dp.Timestamp)
			}
			last[key] = dp.Timestamp
		}
		total += len(rec.seen)
	}
	assert.Equal(t, 500, total)
	assert.Len(t, owner, 10)

	assert.ErrorIs(t, runner.Submit(ctx, outlier.DataPoint{}), ErrRunnerClosed)
}

func TestRunnerDrainsPointSource(t *testing.T) {
	store := memory.NewStore()
	services, _ := newRecordingServices(2, store)
	runner := NewPartitionedRunner(context.Background(), services, nil, 4, nil, nil)

	src := extract.NewCSVSource(strings.NewReader("timestamp,value,source\n1,1,a\n2,2,b\n3,3,a\n"), "x")
	require.NoError(t, runner.Drain(context.Background(), src))
	require.NoError(t, runner.Close())

	assert.Len(t, store.Points("a"), 2)
	assert.Len(t, store.Points("b"), 1)
}

type failingSource struct{}

func (failingSource) Next(context.Context) (outlier.DataPoint, error) {
	return outlier.DataPoint{}, io.ErrUnexpectedEOF
}

func TestRunnerStopsOnConfigurationError(t *testing.T) {
	store := memory.NewStore()
	services, recorders := newRecordingServices(1, store)
	recorders[0].err = core.ErrNotConfigured
	runner := NewPartitionedRunner(context.Background(), services, nil, 1, nil, nil)

	_ = runner.Submit(context.Background(), outlier.NewDataPoint(1, 1, nil, "cpu"))
	err := runner.Close()
	assert.True(t, core.IsConfigurationError(err))
}

func TestRunnerPropagatesSourceErrors(t *testing.T) {
	services, _ := newRecordingServices(1, memory.NewStore())
	runner := NewPartitionedRunner(context.Background(), services, nil, 1, nil, nil)
	assert.ErrorIs(t, runner.Drain(context.Background(), failingSource{}), io.ErrUnexpectedEOF)
	assert.NoError(t, runner.Close())
}

func TestPartitionIsStable(t *testing.T) {
	services, _ := newRecordingServices(3, memory.NewStore())
	runner := NewPartitionedRunner(context.Background(), services, []string{"host"}, 1, nil, nil)
	defer runner.Close()

	dp := outlier.NewDataPoint(1, 1, map[string]string{"host": "web-1"}, "cpu")
	p := runner.Partition(dp)
	assert.Equal(t, p, runner.Partition(dp.WithMetadata("dc", "east")))
	assert.Less(t, p, runner.Workers())
}
