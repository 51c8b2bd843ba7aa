package outlier

import (
	"cmp"
	"fmt"
)

// DataPoint is a single observation for a source
type DataPoint struct {
	Timestamp int64             `json:"timestamp" db:"ts"`
	Value     float64           `json:"value" db:"value"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	Source    string            `json:"source" db:"source"`
}

// NewDataPoint builds a point that owns a copy of metadata
func NewDataPoint(timestamp int64, value float64, metadata map[string]string, source string) DataPoint {
	return DataPoint{
		Timestamp: timestamp,
		Value:     value,
		Metadata:  copyMetadata(metadata),
		Source:    source,
	}
}

// WithMetadata returns a copy of the point with an extra metadata entry
func (dp DataPoint) WithMetadata(key, value string) DataPoint {
	out := dp
	out.Metadata = copyMetadata(dp.Metadata)
	out.Metadata[key] = value
	return out
}

// WithSource returns a copy of the point attributed to a different source
func (dp DataPoint) WithSource(source string) DataPoint {
	out := dp
	out.Source = source
	return out
}

// Compare orders points by (timestamp, value)
func Compare(a, b DataPoint) int {
	if c := cmp.Compare(a.Timestamp, b.Timestamp); c != 0 {
		return c
	}
	return cmp.Compare(a.Value, b.Value)
}

// SameIdentity reports whether two points share the (timestamp, value) identity
func SameIdentity(a, b DataPoint) bool {
	return Compare(a, b) == 0
}

func (dp DataPoint) String() string {
	return fmt.Sprintf("DataPoint{source=%s, ts=%d, value=%g}", dp.Source, dp.Timestamp, dp.Value)
}

func copyMetadata(m map[string]string) map[string]string {
	out := make(map[string]string, len(m)+1)
	for k, v := range m {
		out[k] = v
	}
	return out
}
