package ports

import (
	"gooutlier/domain/outlier"
)

// StreamingClassifier scores one point at a time against per-key history.
// Points of one grouping key must be delivered sequentially.
type StreamingClassifier interface {
	Name() string
	Analyze(dp outlier.DataPoint) (outlier.Outlier, error)
}

// BatchClassifier confirms or downgrades a streaming candidate using a
// retrieved context window. Implementations are stateless per call.
type BatchClassifier interface {
	Name() string
	Analyze(candidate outlier.Outlier, context []outlier.DataPoint, dp outlier.DataPoint) outlier.Outlier
}
