package registry

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"gooutlier/adapters/memory"
	"gooutlier/adapters/sqlstore"
	"gooutlier/adapters/stats/mad"
	"gooutlier/adapters/stats/rpca"
	"gooutlier/domain/core"
	"gooutlier/domain/outlier"
	"gooutlier/internal/config"
	"gooutlier/internal/migration"
	"gooutlier/ports"
)

// BackendMemory is the registry name of the in-memory store
const BackendMemory = "memory"

// StreamingFactory builds one streaming classifier. Each worker owns its own instance.
type StreamingFactory func(doc config.Detector, logger *zap.Logger) (ports.StreamingClassifier, error)

// BatchFactory builds a batch classifier
type BatchFactory func(doc config.Detector, logger *zap.Logger) (ports.BatchClassifier, error)

// BackendFactory opens a time series repository
type BackendFactory func(ctx context.Context, dsn string) (ports.TimeSeriesRepository, error)

// Registry maps configuration names to constructors
type Registry struct {
	streaming map[string]StreamingFactory
	batch     map[string]BatchFactory
	backends  map[string]BackendFactory
}

// New returns an empty registry
func New() *Registry {
	return &Registry{
		streaming: make(map[string]StreamingFactory),
		batch:     make(map[string]BatchFactory),
		backends:  make(map[string]BackendFactory),
	}
}

// Default returns a registry with the built-in algorithms and backends
func Default() *Registry {
	r := New()
	r.RegisterStreaming(mad.Name, newMAD)
	r.RegisterBatch(rpca.Name, newRPCA)
	r.RegisterBackend(BackendMemory, func(context.Context, string) (ports.TimeSeriesRepository, error) {
		return memory.NewStore(), nil
	})
	r.RegisterBackend(sqlstore.DriverPostgres, sqlBackend(sqlstore.DriverPostgres))
	r.RegisterBackend(sqlstore.DriverSQLite, sqlBackend(sqlstore.DriverSQLite))
	return r
}

func normalize(name string) string {
	return strings.ToUpper(strings.TrimSpace(name))
}

func (r *Registry) RegisterStreaming(name string, f StreamingFactory) {
	r.streaming[normalize(name)] = f
}

func (r *Registry) RegisterBatch(name string, f BatchFactory) {
	r.batch[normalize(name)] = f
}

// RegisterBackend registers a backend; backend names are case sensitive driver names
func (r *Registry) RegisterBackend(name string, f BackendFactory) {
	r.backends[name] = f
}

// Streaming looks up a streaming algorithm
func (r *Registry) Streaming(name string) (StreamingFactory, error) {
	f, ok := r.streaming[normalize(name)]
	if !ok {
		return nil, core.NewUnknownAlgorithmError(name)
	}
	return f, nil
}

// Batch looks up a batch algorithm
func (r *Registry) Batch(name string) (BatchFactory, error) {
	f, ok := r.batch[normalize(name)]
	if !ok {
		return nil, core.NewUnknownAlgorithmError(name)
	}
	return f, nil
}

// Backend looks up a time series backend
func (r *Registry) Backend(name string) (BackendFactory, error) {
	f, ok := r.backends[name]
	if !ok {
		return nil, fmt.Errorf("%w %q", core.ErrUnknownBackend, name)
	}
	return f, nil
}

// Names lists the registered streaming and batch algorithms, sorted
func (r *Registry) Names() (streaming, batch []string) {
	for name := range r.streaming {
		streaming = append(streaming, name)
	}
	for name := range r.batch {
		batch = append(batch, name)
	}
	sort.Strings(streaming)
	sort.Strings(batch)
	return streaming, batch
}

// Detector is a resolved detector configuration
type Detector struct {
	newStreaming func() (ports.StreamingClassifier, error)
	Batch        ports.BatchClassifier
	HeadStart    time.Duration
	MinRecords   int
	GroupingKeys []string
}

// NewStreaming builds a fresh streaming classifier with its own per-source state
func (d *Detector) NewStreaming() (ports.StreamingClassifier, error) {
	return d.newStreaming()
}

// Resolve validates doc once and binds the algorithms it names
func (r *Registry) Resolve(doc config.Detector, logger *zap.Logger) (*Detector, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	streamingFactory, err := r.Streaming(doc.Streaming.Algorithm)
	if err != nil {
		return nil, err
	}
	batchFactory, err := r.Batch(doc.Batch.Algorithm)
	if err != nil {
		return nil, err
	}

	newStreaming := func() (ports.StreamingClassifier, error) {
		return streamingFactory(doc, logger)
	}
	// build one instance up front so configuration errors surface before any point
	if _, err := newStreaming(); err != nil {
		return nil, err
	}
	batch, err := batchFactory(doc, logger)
	if err != nil {
		return nil, err
	}

	batchCfg, err := rpca.NewConfig(BatchOptions(doc))
	if err != nil {
		return nil, err
	}
	return &Detector{
		newStreaming: newStreaming,
		Batch:        batch,
		HeadStart:    batchCfg.HeadStart(),
		MinRecords:   batchCfg.MinRecords(),
		GroupingKeys: append([]string(nil), doc.GroupingKeys...),
	}, nil
}

// StreamingOptions converts the document into MAD options
func StreamingOptions(doc config.Detector) (mad.Options, error) {
	rotation, err := doc.RotationPolicy.Build()
	if err != nil {
		return mad.Options{}, fmt.Errorf("rotationPolicy: %w", err)
	}
	chunking, err := doc.ChunkingPolicy.Build()
	if err != nil {
		return mad.Options{}, fmt.Errorf("chunkingPolicy: %w", err)
	}
	scaling, err := doc.Scaling()
	if err != nil {
		return mad.Options{}, fmt.Errorf("%w: %v", core.ErrConfiguration, err)
	}

	cutoffs := make(map[outlier.Severity]float64, len(doc.Streaming.ZScoreCutoffs))
	for name, v := range doc.Streaming.ZScoreCutoffs {
		sev, err := outlier.ParseSeverity(name)
		if err != nil {
			return mad.Options{}, core.NewCutoffError(err.Error())
		}
		cutoffs[sev] = v
	}

	return mad.Options{
		RotationPolicy:      rotation,
		ChunkingPolicy:      chunking,
		GlobalStatistics:    doc.GlobalStatistics,
		ScalingOverride:     scaling,
		GroupingKeys:        doc.GroupingKeys,
		ZScoreCutoffs:       cutoffs,
		MinAmountToPredict:  doc.Streaming.MinAmountToPredict,
		MinZscorePercentile: doc.Streaming.MinZscorePercentile,
		MaxSources:          doc.Streaming.MaxSources,
		RelativeAccuracy:    doc.Streaming.RelativeAccuracy,
	}, nil
}

// BatchOptions converts the document into RPCA options
func BatchOptions(doc config.Detector) rpca.Options {
	return rpca.Options{
		LPenalty:   doc.Batch.LPenalty,
		SPenalty:   doc.Batch.SPenalty,
		MinRecords: doc.Batch.MinRecords,
		ForceDiff:  doc.Batch.ForceDiff,
		HeadStart:  doc.Batch.HeadStart,
	}
}

func newMAD(doc config.Detector, logger *zap.Logger) (ports.StreamingClassifier, error) {
	opts, err := StreamingOptions(doc)
	if err != nil {
		return nil, err
	}
	cfg, err := mad.NewConfig(opts)
	if err != nil {
		return nil, err
	}
	m, err := mad.NewConfigured(cfg, mad.WithLogger(logger.Named("mad")))
	if err != nil {
		return nil, err
	}
	return m, nil
}

func newRPCA(doc config.Detector, logger *zap.Logger) (ports.BatchClassifier, error) {
	cfg, err := rpca.NewConfig(BatchOptions(doc))
	if err != nil {
		return nil, err
	}
	return rpca.NewClassifier(cfg, logger.Named("rpca")), nil
}

func sqlBackend(driver string) BackendFactory {
	return func(ctx context.Context, dsn string) (ports.TimeSeriesRepository, error) {
		repo, err := sqlstore.Open(ctx, driver, dsn)
		if err != nil {
			return nil, err
		}
		if err := migration.NewRunner().Run(ctx, repo.DB()); err != nil {
			repo.Close()
			return nil, err
		}
		return repo, nil
	}
}
