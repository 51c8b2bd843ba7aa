package sqlstore

import (
	"github.com/tidwall/gjson"
)

// fields Outlier.Document writes alongside the point metadata
var documentFields = map[string]bool{
	"id":          true,
	"timestamp":   true,
	"value":       true,
	"source":      true,
	"severity":    true,
	"range_begin": true,
	"range_end":   true,
	"sample_size": true,
	"score":       true,
}

// documentMetadata recovers the point metadata from a stored outlier document
func documentMetadata(doc string) map[string]string {
	meta := make(map[string]string)
	if !gjson.Valid(doc) {
		return meta
	}
	gjson.Parse(doc).ForEach(func(key, value gjson.Result) bool {
		if !documentFields[key.String()] && value.Type == gjson.String {
			meta[key.String()] = value.String()
		}
		return true
	})
	return meta
}
