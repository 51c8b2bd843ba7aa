package api

import (
	"context"
	stderrors "errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"gooutlier/adapters/extract"
	"gooutlier/app"
	"gooutlier/domain/outlier"
	"gooutlier/internal/errors"
	"gooutlier/ports"
)

const defaultOutlierLimit = 100

// Submitter queues points for detection
type Submitter interface {
	Submit(ctx context.Context, dp outlier.DataPoint) error
}

// IngestHandler accepts points over HTTP and serves confirmed outliers
type IngestHandler struct {
	submitter Submitter
	extractor *extract.Extractor
	outliers  ports.OutlierLister
	logger    *zap.Logger
}

// NewIngestHandler creates a new ingest handler. extractor may be nil, which
// disables raw payload ingestion.
func NewIngestHandler(submitter Submitter, extractor *extract.Extractor, outliers ports.OutlierLister, logger *zap.Logger) *IngestHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &IngestHandler{
		submitter: submitter,
		extractor: extractor,
		outliers:  outliers,
		logger:    logger,
	}
}

type pointRequest struct {
	Timestamp *int64            `json:"timestamp" binding:"required"`
	Value     *float64          `json:"value" binding:"required"`
	Source    string            `json:"source" binding:"required"`
	Metadata  map[string]string `json:"metadata"`
}

func (r pointRequest) dataPoint() outlier.DataPoint {
	return outlier.NewDataPoint(*r.Timestamp, *r.Value, r.Metadata, r.Source)
}

type batchRequest struct {
	Points []pointRequest `json:"points" binding:"required,min=1,dive"`
}

// Register mounts the handler's routes
func (h *IngestHandler) Register(r gin.IRouter) {
	v1 := r.Group("/api/v1")
	v1.POST("/points", h.PostPoint)
	v1.POST("/points/batch", h.PostBatch)
	v1.POST("/payloads", h.PostPayload)
	v1.GET("/outliers", h.ListOutliers)
}

// PostPoint queues a single point
func (h *IngestHandler) PostPoint(c *gin.Context) {
	var req pointRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.fail(c, errors.InvalidInput(err.Error()))
		return
	}
	h.submit(c, []outlier.DataPoint{req.dataPoint()})
}

// PostBatch queues several points, in request order
func (h *IngestHandler) PostBatch(c *gin.Context) {
	var req batchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.fail(c, errors.InvalidInput(err.Error()))
		return
	}
	points := make([]outlier.DataPoint, 0, len(req.Points))
	for _, p := range req.Points {
		points = append(points, p.dataPoint())
	}
	h.submit(c, points)
}

// PostPayload runs an arbitrary JSON document through the configured extractor
func (h *IngestHandler) PostPayload(c *gin.Context) {
	if h.extractor == nil {
		c.JSON(http.StatusNotImplemented, gin.H{"error": "no measurements configured", "code": errors.CodeNotFound})
		return
	}
	body, err := c.GetRawData()
	if err != nil {
		h.fail(c, errors.InvalidInput(err.Error()))
		return
	}
	points, err := h.extractor.Extract(body)
	if err != nil {
		h.fail(c, errors.InvalidInput(err.Error()))
		return
	}
	h.submit(c, points)
}

// ListOutliers returns published outliers, newest first
func (h *IngestHandler) ListOutliers(c *gin.Context) {
	limit := defaultOutlierLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			h.fail(c, errors.InvalidInput("limit must be a positive integer"))
			return
		}
		limit = n
	}

	found, err := h.outliers.ListOutliers(c.Request.Context(), c.Query("source"), limit)
	if err != nil {
		h.fail(c, errors.DatabaseError("failed to list outliers", err))
		return
	}
	docs := make([]map[string]interface{}, 0, len(found))
	for _, o := range found {
		docs = append(docs, o.Document())
	}
	c.JSON(http.StatusOK, gin.H{"outliers": docs, "count": len(docs)})
}

func (h *IngestHandler) submit(c *gin.Context, points []outlier.DataPoint) {
	for i, dp := range points {
		if err := h.submitter.Submit(c.Request.Context(), dp); err != nil {
			if stderrors.Is(err, app.ErrRunnerClosed) {
				c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error(), "accepted": i})
				return
			}
			h.fail(c, errors.Wrap(err, "failed to queue point"))
			return
		}
	}
	c.JSON(http.StatusAccepted, gin.H{"accepted": len(points)})
}

func (h *IngestHandler) fail(c *gin.Context, err error) {
	status := errors.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed", zap.String("path", c.FullPath()), zap.Error(err))
	}
	c.JSON(status, gin.H{"error": err.Error(), "code": errors.GetCode(err)})
}

// NewRouter builds the ingest engine with recovery and the handler's routes
func NewRouter(h *IngestHandler, mode string) *gin.Engine {
	if mode != "" {
		gin.SetMode(mode)
	}
	r := gin.New()
	r.Use(gin.Recovery())
	h.Register(r)
	return r
}
