package app

import (
	"context"
	stderrors "errors"
	"hash/fnv"
	"io"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"gooutlier/domain/core"
	"gooutlier/domain/outlier"
	"gooutlier/ports"
)

// ErrRunnerClosed is returned by Submit once the runner stopped accepting points
var ErrRunnerClosed = stderrors.New("partitioned runner is closed")

// ResultHandler receives every processed point. It is called from worker
// goroutines and must be safe for concurrent use.
type ResultHandler func(dp outlier.DataPoint, result Result)

// PartitionedRunner routes points to workers by grouping key so that all points
// of a key are processed in order by the same OutlierService
type PartitionedRunner struct {
	queues       []chan outlier.DataPoint
	groupingKeys []string
	onResult     ResultHandler
	logger       *zap.Logger

	group *errgroup.Group
	ctx   context.Context

	mu     sync.RWMutex
	closed bool
}

// NewPartitionedRunner starts one worker per service. Workers stop when ctx is
// cancelled or a service reports a configuration error.
func NewPartitionedRunner(ctx context.Context, services []*OutlierService, groupingKeys []string, queueSize int, onResult ResultHandler, logger *zap.Logger) *PartitionedRunner {
	if logger == nil {
		logger = zap.NewNop()
	}
	if queueSize < 1 {
		queueSize = 1
	}
	group, gctx := errgroup.WithContext(ctx)
	r := &PartitionedRunner{
		queues:       make([]chan outlier.DataPoint, len(services)),
		groupingKeys: groupingKeys,
		onResult:     onResult,
		logger:       logger,
		group:        group,
		ctx:          gctx,
	}
	for i, svc := range services {
		queue := make(chan outlier.DataPoint, queueSize)
		r.queues[i] = queue
		worker := i
		svc := svc
		group.Go(func() error {
			return r.work(gctx, worker, svc, queue)
		})
	}
	return r
}

// Workers returns the number of partitions
func (r *PartitionedRunner) Workers() int {
	return len(r.queues)
}

// Partition returns the worker index for dp
func (r *PartitionedRunner) Partition(dp outlier.DataPoint) int {
	h := fnv.New32a()
	h.Write([]byte(outlier.GroupingKey(dp, r.groupingKeys)))
	return int(h.Sum32() % uint32(len(r.queues)))
}

// Submit queues dp on its partition, blocking while the queue is full
func (r *PartitionedRunner) Submit(ctx context.Context, dp outlier.DataPoint) error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		return ErrRunnerClosed
	}
	select {
	case r.queues[r.Partition(dp)] <- dp:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-r.ctx.Done():
		return ErrRunnerClosed
	}
}

// Drain submits every point of src until io.EOF
func (r *PartitionedRunner) Drain(ctx context.Context, src ports.PointSource) error {
	for {
		dp, err := src.Next(ctx)
		if stderrors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		if err := r.Submit(ctx, dp); err != nil {
			return err
		}
	}
}

// Close stops accepting points, lets workers finish their queues and returns
// the first worker error
func (r *PartitionedRunner) Close() error {
	r.mu.Lock()
	if !r.closed {
		r.closed = true
		for _, q := range r.queues {
			close(q)
		}
	}
	r.mu.Unlock()
	return r.group.Wait()
}

func (r *PartitionedRunner) work(ctx context.Context, worker int, svc *OutlierService, queue <-chan outlier.DataPoint) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case dp, ok := <-queue:
			if !ok {
				return nil
			}
			result, err := svc.Process(ctx, dp)
			if err != nil {
				if core.IsConfigurationError(err) {
					return err
				}
				r.logger.Error("failed to process point",
					zap.Int("worker", worker),
					zap.String("source", dp.Source),
					zap.Int64("timestamp", dp.Timestamp),
					zap.Error(err))
				continue
			}
			if r.onResult != nil {
				r.onResult(dp, result)
			}
		}
	}
}
