package extract

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"gooutlier/domain/outlier"
)

// Timestamp formats understood by Measurement.TimestampFormat
const (
	TimestampMillis  = "millis"
	TimestampSeconds = "seconds"
	TimestampRFC3339 = "rfc3339"
)

// Measurement describes how one data point is pulled out of a JSON payload.
// Field names are gjson paths.
type Measurement struct {
	// fixed source name; when empty the SourceFields values are joined with "/"
	Source           string   `yaml:"source" json:"source"`
	SourceFields     []string `yaml:"sourceFields" json:"sourceFields"`
	TimestampField   string   `yaml:"timestampField" json:"timestampField"`
	TimestampFormat  string   `yaml:"timestampFormat" json:"timestampFormat"`
	MeasurementField string   `yaml:"measurementField" json:"measurementField"`
	// when empty every other top-level field becomes metadata
	MetadataFields []string `yaml:"metadataFields" json:"metadataFields"`
}

// Extractor turns raw payloads into data points, one per configured measurement
type Extractor struct {
	measurements []Measurement
}

// NewExtractor validates the measurements
func NewExtractor(measurements []Measurement) (*Extractor, error) {
	if len(measurements) == 0 {
		return nil, fmt.Errorf("at least one measurement is required")
	}
	for i, m := range measurements {
		if m.TimestampField == "" || m.MeasurementField == "" {
			return nil, fmt.Errorf("measurement %d: timestampField and measurementField are required", i)
		}
		if m.Source == "" && len(m.SourceFields) == 0 {
			return nil, fmt.Errorf("measurement %d: source or sourceFields is required", i)
		}
		switch strings.ToLower(m.TimestampFormat) {
		case "", TimestampMillis, TimestampSeconds, TimestampRFC3339:
		default:
			return nil, fmt.Errorf("measurement %d: unknown timestamp format %q", i, m.TimestampFormat)
		}
	}
	return &Extractor{measurements: measurements}, nil
}

// Extract reads every measurement from a JSON object
func (e *Extractor) Extract(payload []byte) ([]outlier.DataPoint, error) {
	if !gjson.ValidBytes(payload) {
		return nil, fmt.Errorf("payload is not valid JSON")
	}
	root := gjson.ParseBytes(payload)
	if !root.IsObject() {
		return nil, fmt.Errorf("payload must be a JSON object")
	}

	points := make([]outlier.DataPoint, 0, len(e.measurements))
	for _, m := range e.measurements {
		dp, err := m.extract(root)
		if err != nil {
			return nil, err
		}
		points = append(points, dp)
	}
	return points, nil
}

func (m Measurement) extract(root gjson.Result) (outlier.DataPoint, error) {
	source := m.Source
	if source == "" {
		parts := make([]string, 0, len(m.SourceFields))
		for _, f := range m.SourceFields {
			v := root.Get(f)
			if !v.Exists() {
				return outlier.DataPoint{}, fmt.Errorf("unable to find source field %s", f)
			}
			parts = append(parts, v.String())
		}
		source = strings.Join(parts, "/")
	}

	tsField := root.Get(m.TimestampField)
	if !tsField.Exists() {
		return outlier.DataPoint{}, fmt.Errorf("unable to find %s", m.TimestampField)
	}
	ts, err := convertTimestamp(tsField, m.TimestampFormat)
	if err != nil {
		return outlier.DataPoint{}, fmt.Errorf("field %s: %w", m.TimestampField, err)
	}

	valueField := root.Get(m.MeasurementField)
	if !valueField.Exists() {
		return outlier.DataPoint{}, fmt.Errorf("unable to find %s", m.MeasurementField)
	}
	value, err := convertValue(valueField)
	if err != nil {
		return outlier.DataPoint{}, fmt.Errorf("field %s: %w", m.MeasurementField, err)
	}

	meta := make(map[string]string)
	if len(m.MetadataFields) > 0 {
		for _, f := range m.MetadataFields {
			if v := root.Get(f); v.Exists() {
				meta[f] = v.String()
			}
		}
	} else {
		root.ForEach(func(key, v gjson.Result) bool {
			k := key.String()
			if k != m.MeasurementField && k != m.TimestampField {
				meta[k] = v.String()
			}
			return true
		})
	}

	return outlier.DataPoint{Timestamp: ts, Value: value, Metadata: meta, Source: source}, nil
}

func convertTimestamp(v gjson.Result, format string) (int64, error) {
	switch strings.ToLower(format) {
	case TimestampRFC3339:
		t, err := time.Parse(time.RFC3339Nano, v.String())
		if err != nil {
			return 0, err
		}
		return t.UnixMilli(), nil
	case TimestampSeconds:
		f, err := convertValue(v)
		if err != nil {
			return 0, err
		}
		return int64(f * 1000), nil
	default:
		if v.Type == gjson.Number {
			return v.Int(), nil
		}
		return strconv.ParseInt(strings.TrimSpace(v.String()), 10, 64)
	}
}

func convertValue(v gjson.Result) (float64, error) {
	switch v.Type {
	case gjson.Number:
		return v.Float(), nil
	case gjson.String:
		return strconv.ParseFloat(strings.TrimSpace(v.String()), 64)
	default:
		return 0, fmt.Errorf("cannot convert %s to a number", v.Raw)
	}
}
