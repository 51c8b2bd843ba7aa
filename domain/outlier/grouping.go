package outlier

import (
	"strings"
)

// GroupingKey partitions state beyond the source using selected metadata fields.
// Missing fields contribute an empty segment so keys stay positional.
func GroupingKey(dp DataPoint, keys []string) string {
	if len(keys) == 0 {
		return dp.Source
	}
	parts := make([]string, 0, len(keys)+1)
	parts = append(parts, dp.Source)
	for _, k := range keys {
		parts = append(parts, dp.Metadata[k])
	}
	return strings.Join(parts, "|")
}

// MeasureID names the stored series for a point arriving on topic
func MeasureID(topic, source string) string {
	if source == "" {
		return topic
	}
	if topic == "" {
		return source
	}
	return topic + "." + source
}

// Tag values used when persisting points
const (
	TagType     = "type"
	TagSeverity = "severity"

	TypeRaw         = "raw"
	TypeProspective = "prospective_outlier"
	TypeOutlier     = "outlier"
)

// Tags copies the listed metadata keys and stamps the record type
func Tags(dp DataPoint, recordType string, keys []string) map[string]string {
	tags := make(map[string]string, len(keys)+1)
	for _, k := range keys {
		if v, ok := dp.Metadata[k]; ok {
			tags[k] = v
		}
	}
	tags[TagType] = recordType
	return tags
}

// OutlierTags is Tags plus the severity of the verdict
func OutlierTags(dp DataPoint, severity Severity, recordType string, keys []string) map[string]string {
	tags := Tags(dp, recordType, keys)
	tags[TagSeverity] = severity.String()
	return tags
}

// MatchesFilter reports whether every filter entry is present in tags
func MatchesFilter(tags, filter map[string]string) bool {
	for k, v := range filter {
		if got, ok := tags[k]; !ok || got != v {
			return false
		}
	}
	return true
}
