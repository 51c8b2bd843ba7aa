package config

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"gooutlier/adapters/extract"
	"gooutlier/domain/policy"
	"gooutlier/internal/errors"
)

// PolicyDoc is the (type, amount, unit) shape shared by rotation and chunking policies
type PolicyDoc struct {
	Type   string `yaml:"type" json:"type"`
	Amount uint64 `yaml:"amount" json:"amount"`
	Unit   string `yaml:"unit" json:"unit"`
}

// Build validates the document into a rotation policy
func (p PolicyDoc) Build() (policy.RotationConfig, error) {
	return policy.NewRotationConfig(p.Type, p.Amount, p.Unit)
}

// StreamingDoc configures the streaming classifier
type StreamingDoc struct {
	Algorithm           string             `yaml:"algorithm" json:"algorithm"`
	ZScoreCutoffs       map[string]float64 `yaml:"zScoreCutoffs" json:"zScoreCutoffs"`
	MinAmountToPredict  *uint64            `yaml:"minAmountToPredict" json:"minAmountToPredict"`
	MinZscorePercentile *float64           `yaml:"minZscorePercentile" json:"minZscorePercentile"`
	MaxSources          int                `yaml:"maxSources" json:"maxSources"`
	RelativeAccuracy    float64            `yaml:"relativeAccuracy" json:"relativeAccuracy"`
}

// BatchDoc configures the batch classifier
type BatchDoc struct {
	Algorithm  string        `yaml:"algorithm" json:"algorithm"`
	LPenalty   *float64      `yaml:"lPenalty" json:"lPenalty"`
	SPenalty   *float64      `yaml:"sPenalty" json:"sPenalty"`
	MinRecords int           `yaml:"minRecords" json:"minRecords"`
	ForceDiff  bool          `yaml:"forceDiff" json:"forceDiff"`
	HeadStart  time.Duration `yaml:"headStart" json:"headStart"`
}

// Detector is the detector configuration document
type Detector struct {
	RotationPolicy   PolicyDoc                `yaml:"rotationPolicy" json:"rotationPolicy"`
	ChunkingPolicy   PolicyDoc                `yaml:"chunkingPolicy" json:"chunkingPolicy"`
	GlobalStatistics *policy.GlobalStatistics `yaml:"globalStatistics" json:"globalStatistics"`
	ScalingFunction  string                   `yaml:"scalingFunction" json:"scalingFunction"`
	GroupingKeys     []string                 `yaml:"groupingKeys,omitempty" json:"groupingKeys,omitempty"`
	Streaming        StreamingDoc             `yaml:"streaming" json:"streaming"`
	Batch            BatchDoc                 `yaml:"batch" json:"batch"`
	// payload extraction rules for the raw ingest endpoint
	Measurements []extract.Measurement `yaml:"measurements,omitempty" json:"measurements,omitempty"`
}

// DefaultDetector returns the settings used when no detector file is configured
func DefaultDetector() Detector {
	return Detector{
		RotationPolicy: PolicyDoc{Type: "BY_AMOUNT", Amount: 1000, Unit: "POINTS"},
		ChunkingPolicy: PolicyDoc{Type: "BY_AMOUNT", Amount: 100, Unit: "POINTS"},
		Streaming: StreamingDoc{
			Algorithm:     "SKETCHY_MOVING_MAD",
			ZScoreCutoffs: map[string]float64{"NORMAL": 3.5, "MODERATE_OUTLIER": 5},
		},
		Batch: BatchDoc{Algorithm: "RPCA", MinRecords: 10},
	}
}

// ParseDetector decodes a YAML (or JSON) document over the defaults. Unknown fields are rejected.
func ParseDetector(data []byte) (Detector, error) {
	doc := DefaultDetector()
	if len(bytes.TrimSpace(data)) == 0 {
		return doc, nil
	}
	// policies and cutoffs replace the defaults instead of merging into them
	doc.RotationPolicy = PolicyDoc{}
	doc.ChunkingPolicy = PolicyDoc{}
	doc.Streaming.ZScoreCutoffs = nil

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil && err != io.EOF {
		return Detector{}, errors.Wrap(errors.ConfigInvalid(err.Error()), "failed to parse detector config")
	}
	defaults := DefaultDetector()
	if doc.RotationPolicy == (PolicyDoc{}) {
		doc.RotationPolicy = defaults.RotationPolicy
	}
	if doc.ChunkingPolicy == (PolicyDoc{}) {
		doc.ChunkingPolicy = defaults.ChunkingPolicy
	}
	if doc.Streaming.ZScoreCutoffs == nil {
		doc.Streaming.ZScoreCutoffs = defaults.Streaming.ZScoreCutoffs
	}
	return doc, nil
}

// LoadDetector reads the detector document at path; an empty path yields the defaults
func LoadDetector(path string) (Detector, error) {
	if path == "" {
		return DefaultDetector(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Detector{}, errors.Wrapf(errors.ConfigInvalid(err.Error()), "failed to read detector config %s", path)
	}
	return ParseDetector(data)
}

// Scaling parses the optional scaling override
func (d Detector) Scaling() (*policy.ScalingFunction, error) {
	if d.ScalingFunction == "" {
		return nil, nil
	}
	f, err := policy.ParseScalingFunction(d.ScalingFunction)
	if err != nil {
		return nil, fmt.Errorf("scalingFunction: %w", err)
	}
	return &f, nil
}

// Encode renders the document as YAML
func (d Detector) Encode() ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(d); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
