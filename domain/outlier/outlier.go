package outlier

import (
	"encoding/json"
	"fmt"
	"strconv"

	"gooutlier/domain/core"
)

// Metadata keys added to a point once it has gone through both classifiers
const (
	MetaSketchyScore    = "sketchy_score"
	MetaSketchySeverity = "sketchy_severity"
	MetaRealSeverity    = "real_severity"
	MetaSampleSize      = "sample_size"
)

// Outlier is a classification verdict attached to a data point
type Outlier struct {
	ID         core.OutlierID `json:"id"`
	DataPoint  DataPoint      `json:"data_point"`
	Severity   Severity       `json:"severity"`
	Range      core.TimeRange `json:"range"`
	Score      *float64       `json:"score,omitempty"`
	SampleSize int            `json:"sample_size"`
}

// New creates an outlier verdict with a fresh id
func New(dp DataPoint, severity Severity, r core.TimeRange, score *float64, sampleSize int) Outlier {
	return Outlier{
		ID:         core.NewOutlierID(),
		DataPoint:  dp,
		Severity:   severity,
		Range:      r,
		Score:      score,
		SampleSize: sampleSize,
	}
}

// WithSeverity returns a copy of the verdict with a different severity
func (o Outlier) WithSeverity(severity Severity) Outlier {
	out := o
	out.Severity = severity
	return out
}

// HasScore reports whether a z-score was computed
func (o Outlier) HasScore() bool {
	return o.Score != nil
}

// ScoreOr returns the score or a fallback
func (o Outlier) ScoreOr(fallback float64) float64 {
	if o.Score == nil {
		return fallback
	}
	return *o.Score
}

// Annotate records the streaming and batch verdicts on the point metadata
func (o Outlier) Annotate(streaming Outlier) Outlier {
	dp := o.DataPoint.
		WithMetadata(MetaSketchySeverity, streaming.Severity.String()).
		WithMetadata(MetaRealSeverity, o.Severity.String()).
		WithMetadata(MetaSampleSize, strconv.Itoa(o.SampleSize))
	if streaming.Score != nil {
		dp = dp.WithMetadata(MetaSketchyScore, strconv.FormatFloat(*streaming.Score, 'g', -1, 64))
	}
	out := o
	out.DataPoint = dp
	return out
}

// Document flattens the outlier into a publishable JSON object
func (o Outlier) Document() map[string]interface{} {
	doc := make(map[string]interface{}, len(o.DataPoint.Metadata)+8)
	for k, v := range o.DataPoint.Metadata {
		doc[k] = v
	}
	doc["id"] = o.ID.String()
	doc["timestamp"] = o.DataPoint.Timestamp
	doc["value"] = o.DataPoint.Value
	doc["source"] = o.DataPoint.Source
	doc["severity"] = o.Severity.String()
	doc["range_begin"] = o.Range.Begin
	doc["range_end"] = o.Range.End
	doc["sample_size"] = o.SampleSize
	if o.Score != nil {
		doc["score"] = *o.Score
	}
	return doc
}

// ToJSON serialises Document
func (o Outlier) ToJSON() ([]byte, error) {
	b, err := json.Marshal(o.Document())
	if err != nil {
		return nil, fmt.Errorf("failed to marshal outlier %s: %w", o.ID, err)
	}
	return b, nil
}

func (o Outlier) String() string {
	score := "nil"
	if o.Score != nil {
		score = strconv.FormatFloat(*o.Score, 'f', 4, 64)
	}
	return fmt.Sprintf("Outlier{dataPoint=%s, severity=%s, range=%s, score=%s}", o.DataPoint, o.Severity, o.Range, score)
}

// Float returns a pointer to v, for optional scores
func Float(v float64) *float64 {
	return &v
}
