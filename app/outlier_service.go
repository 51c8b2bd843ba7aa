package app

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"gooutlier/domain/core"
	"gooutlier/domain/outlier"
	"gooutlier/internal/errors"
	"gooutlier/internal/telemetry"
	"gooutlier/ports"
)

// ServiceOptions tune how candidates are confirmed and stored
type ServiceOptions struct {
	// Topic prefixes measure ids
	Topic string
	// metadata keys copied into persistence tags
	TagKeys []string
	// metadata keys whose values must match for a point to join a context window
	GroupingKeys []string
	// widens the context window before the streaming range
	HeadStart time.Duration
	// a context with fewer points is retried
	MinContext     int
	ContextRetries int
	ContextBackoff time.Duration
}

// Result is the outcome of processing one point
type Result struct {
	Streaming outlier.Outlier
	// set only when the streaming verdict was severe
	Batch *outlier.Outlier
	// the annotated outlier handed to the sink, when confirmed
	Published *outlier.Outlier
}

// OutlierService runs one point at a time through the streaming classifier
// and confirms severe candidates with the batch classifier. An instance is
// not safe for concurrent use; the partitioned runner gives each worker its own.
type OutlierService struct {
	streaming ports.StreamingClassifier
	batch     ports.BatchClassifier
	repo      ports.TimeSeriesRepository
	metrics   *telemetry.Metrics
	logger    *zap.Logger
	opts      ServiceOptions
}

// NewOutlierService creates an outlier service
func NewOutlierService(
	streaming ports.StreamingClassifier,
	batch ports.BatchClassifier,
	repo ports.TimeSeriesRepository,
	metrics *telemetry.Metrics,
	logger *zap.Logger,
	opts ServiceOptions,
) *OutlierService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OutlierService{
		streaming: streaming,
		batch:     batch,
		repo:      repo,
		metrics:   metrics,
		logger:    logger,
		opts:      opts,
	}
}

// Process stores dp, classifies it and, when the streaming verdict is severe,
// fetches its context and asks the batch classifier for confirmation
func (s *OutlierService) Process(ctx context.Context, dp outlier.DataPoint) (Result, error) {
	measure := outlier.MeasureID(s.opts.Topic, dp.Source)
	s.metrics.PointsTotal.WithLabelValues(dp.Source).Inc()

	if err := s.repo.Persist(ctx, measure, dp, outlier.Tags(dp, outlier.TypeRaw, s.opts.TagKeys)); err != nil {
		s.metrics.ProcessingErrors.WithLabelValues("persist").Inc()
		return Result{}, errors.DatabaseError(fmt.Sprintf("failed to persist point for %s", measure), err)
	}

	start := time.Now()
	verdict, err := s.streaming.Analyze(dp)
	s.metrics.ObserveAnalyze(telemetry.StageStreaming, start)
	if err != nil {
		s.metrics.ProcessingErrors.WithLabelValues("streaming").Inc()
		return Result{}, errors.Wrapf(errors.FromDomain(err), "%s failed on %s", s.streaming.Name(), dp)
	}
	s.metrics.RecordVerdict(telemetry.StageStreaming, verdict.Severity.String())

	result := Result{Streaming: verdict}
	if verdict.Severity != outlier.SevereOutlier {
		return result, nil
	}

	tags := outlier.OutlierTags(dp, verdict.Severity, outlier.TypeProspective, s.opts.TagKeys)
	if err := s.repo.Persist(ctx, measure, dp, tags); err != nil {
		s.metrics.ProcessingErrors.WithLabelValues("persist").Inc()
		return result, errors.DatabaseError(fmt.Sprintf("failed to persist candidate for %s", measure), err)
	}

	confirmed, err := s.confirm(ctx, measure, verdict, dp)
	if err != nil {
		return result, err
	}
	result.Batch = &confirmed
	if confirmed.Severity != outlier.SevereOutlier {
		s.logger.Debug("candidate downgraded",
			zap.String("source", dp.Source),
			zap.Int64("timestamp", dp.Timestamp),
			zap.String("severity", confirmed.Severity.String()),
			zap.Int("sample_size", confirmed.SampleSize))
		return result, nil
	}

	published := confirmed.Annotate(verdict)
	tags = outlier.OutlierTags(published.DataPoint, published.Severity, outlier.TypeOutlier, s.opts.TagKeys)
	if err := s.repo.Persist(ctx, measure, dp, tags); err != nil {
		s.metrics.ProcessingErrors.WithLabelValues("persist").Inc()
		return result, errors.DatabaseError(fmt.Sprintf("failed to persist outlier for %s", measure), err)
	}
	if err := s.repo.Publish(ctx, published); err != nil {
		s.metrics.ProcessingErrors.WithLabelValues("publish").Inc()
		return result, errors.DatabaseError("failed to publish outlier", err)
	}
	s.metrics.PublishedTotal.WithLabelValues(published.Severity.String()).Inc()
	result.Published = &published

	s.logger.Info("outlier confirmed",
		zap.String("id", published.ID.String()),
		zap.String("source", dp.Source),
		zap.Int64("timestamp", dp.Timestamp),
		zap.Float64("value", dp.Value),
		zap.Float64("score", verdict.ScoreOr(0)),
		zap.Int("sample_size", published.SampleSize))
	return result, nil
}

func (s *OutlierService) confirm(ctx context.Context, measure string, candidate outlier.Outlier, dp outlier.DataPoint) (outlier.Outlier, error) {
	q := s.contextQuery(measure, candidate, dp)
	points, err := s.fetchContext(ctx, q)
	if err != nil {
		s.metrics.ProcessingErrors.WithLabelValues("context").Inc()
		return outlier.Outlier{}, errors.DatabaseError(fmt.Sprintf("failed to retrieve context for %s", measure), err)
	}
	s.metrics.ContextSize.Observe(float64(len(points)))

	start := time.Now()
	confirmed := s.batch.Analyze(candidate, points, dp)
	s.metrics.ObserveAnalyze(telemetry.StageBatch, start)
	s.metrics.RecordVerdict(telemetry.StageBatch, confirmed.Severity.String())
	return confirmed, nil
}

// contextQuery covers the raw records in [range.begin - headStart, dp.timestamp] for the point's grouping
func (s *OutlierService) contextQuery(measure string, candidate outlier.Outlier, dp outlier.DataPoint) ports.ContextQuery {
	filter := make(map[string]string, len(s.opts.GroupingKeys)+1)
	for _, k := range s.opts.GroupingKeys {
		filter[k] = dp.Metadata[k]
	}
	filter[outlier.TagType] = outlier.TypeRaw
	begin := candidate.Range.Begin
	if begin > dp.Timestamp {
		begin = dp.Timestamp
	}
	window := core.TimeRange{Begin: begin, End: dp.Timestamp}
	return ports.ContextQuery{
		Measure: measure,
		Point:   dp,
		Range:   window.Extend(s.opts.HeadStart),
		Filter:  filter,
	}
}

// fetchContext retries while the store returns fewer than MinContext points.
// Once retries run out the undersized context is returned as is.
func (s *OutlierService) fetchContext(ctx context.Context, q ports.ContextQuery) ([]outlier.DataPoint, error) {
	var points []outlier.DataPoint
	operation := func() error {
		var err error
		points, err = s.repo.Retrieve(ctx, q)
		if err != nil {
			return err
		}
		if len(points) < s.opts.MinContext {
			return fmt.Errorf("%w: got %d of %d", core.ErrInsufficientContext, len(points), s.opts.MinContext)
		}
		return nil
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = s.opts.ContextBackoff
	policy.MaxElapsedTime = 0
	var b backoff.BackOff = backoff.WithMaxRetries(policy, uint64(s.opts.ContextRetries))
	if s.opts.ContextBackoff <= 0 {
		b = backoff.WithMaxRetries(&backoff.ZeroBackOff{}, uint64(s.opts.ContextRetries))
	}

	err := backoff.RetryNotify(operation, backoff.WithContext(b, ctx), func(err error, wait time.Duration) {
		s.metrics.ContextRetries.Inc()
		s.logger.Debug("retrying context retrieval", zap.String("measure", q.Measure), zap.Duration("wait", wait), zap.Error(err))
	})
	if stderrors.Is(err, core.ErrInsufficientContext) {
		s.metrics.ContextGiveUps.Inc()
		s.logger.Warn("confirming with an undersized context", zap.String("measure", q.Measure), zap.Int("points", len(points)))
		return points, nil
	}
	return points, err
}
