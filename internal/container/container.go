package container

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"gooutlier/adapters/extract"
	"gooutlier/adapters/sqlstore"
	"gooutlier/app"
	"gooutlier/internal/api"
	"gooutlier/internal/config"
	"gooutlier/internal/ops"
	"gooutlier/internal/registry"
	"gooutlier/internal/telemetry"
	"gooutlier/ports"
)

// Container holds all application dependencies and manages their lifecycle
type Container struct {
	Config   *config.Config
	Detector config.Detector
	Logger   *zap.Logger

	// Detection
	Registry  *registry.Registry
	Resolved  *registry.Detector
	Extractor *extract.Extractor
	Runner    *app.PartitionedRunner

	// Infrastructure
	Repo       ports.TimeSeriesRepository
	Prometheus *prometheus.Registry
	Metrics    *telemetry.Metrics
}

// New creates a new dependency injection container
func New(cfg *config.Config, detector config.Detector, logger *zap.Logger) (*Container, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Container{
		Config:   cfg,
		Detector: detector,
		Logger:   logger,
		Registry: registry.Default(),
	}, nil
}

// Init resolves the detector and opens the time series backend
func (c *Container) Init(ctx context.Context) error {
	if err := c.initDetector(); err != nil {
		return fmt.Errorf("failed to initialize detector: %w", err)
	}
	if err := c.initRepository(ctx); err != nil {
		return fmt.Errorf("failed to initialize repository: %w", err)
	}
	c.initMetrics()

	c.Logger.Info("container initialized",
		zap.String("backend", c.Config.Database.Driver),
		zap.String("streaming", c.Detector.Streaming.Algorithm),
		zap.String("batch", c.Detector.Batch.Algorithm),
		zap.Int("workers", c.Config.Pipeline.Workers))
	return nil
}

func (c *Container) initDetector() error {
	resolved, err := c.Registry.Resolve(c.Detector, c.Logger)
	if err != nil {
		return err
	}
	c.Resolved = resolved

	if len(c.Detector.Measurements) > 0 {
		extractor, err := extract.NewExtractor(c.Detector.Measurements)
		if err != nil {
			return err
		}
		c.Extractor = extractor
	}
	return nil
}

func (c *Container) initRepository(ctx context.Context) error {
	open, err := c.Registry.Backend(c.Config.Database.Driver)
	if err != nil {
		return err
	}
	repo, err := open(ctx, c.Config.Database.URL)
	if err != nil {
		return err
	}
	c.Repo = repo
	return nil
}

func (c *Container) initMetrics() {
	c.Prometheus = prometheus.NewRegistry()
	c.Prometheus.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	c.Metrics = telemetry.NewMetrics(c.Prometheus)
}

// NewServices builds one outlier service per worker, each with its own streaming state
func (c *Container) NewServices(workers int) ([]*app.OutlierService, error) {
	opts := app.ServiceOptions{
		Topic:          c.Config.Pipeline.Topic,
		TagKeys:        c.Config.Pipeline.TagKeys,
		GroupingKeys:   c.Resolved.GroupingKeys,
		HeadStart:      c.Resolved.HeadStart,
		MinContext:     c.Resolved.MinRecords + 1,
		ContextRetries: c.Config.Pipeline.ContextRetries,
		ContextBackoff: c.Config.Pipeline.ContextBackoff,
	}
	services := make([]*app.OutlierService, workers)
	for i := range services {
		streaming, err := c.Resolved.NewStreaming()
		if err != nil {
			return nil, err
		}
		services[i] = app.NewOutlierService(streaming, c.Resolved.Batch, c.Repo, c.Metrics, c.Logger.Named("service"), opts)
	}
	return services, nil
}

// StartRunner launches the partitioned workers
func (c *Container) StartRunner(ctx context.Context, onResult app.ResultHandler) error {
	services, err := c.NewServices(c.Config.Pipeline.Workers)
	if err != nil {
		return err
	}
	c.Runner = app.NewPartitionedRunner(ctx, services, c.Resolved.GroupingKeys, c.Config.Pipeline.QueueSize, onResult, c.Logger.Named("runner"))
	return nil
}

// IngestRouter builds the gin ingest API; StartRunner must have been called
func (c *Container) IngestRouter() (*gin.Engine, error) {
	lister, ok := c.Repo.(ports.OutlierLister)
	if !ok {
		return nil, fmt.Errorf("backend %s cannot list outliers", c.Config.Database.Driver)
	}
	handler := api.NewIngestHandler(c.Runner, c.Extractor, lister, c.Logger.Named("api"))
	return api.NewRouter(handler, c.Config.Server.GinMode), nil
}

// OpsRouter serves health checks and metrics
func (c *Container) OpsRouter() http.Handler {
	var pinger ops.Pinger
	if repo, ok := c.Repo.(*sqlstore.Repository); ok {
		pinger = repo.DB()
	}
	return ops.NewRouter(c.Prometheus, pinger)
}

// Close drains the runner and closes the repository
func (c *Container) Close() error {
	var runErr error
	if c.Runner != nil {
		runErr = c.Runner.Close()
	}
	if c.Repo != nil {
		if err := c.Repo.Close(); err != nil {
			return fmt.Errorf("failed to close repository: %w", err)
		}
	}
	return runErr
}
