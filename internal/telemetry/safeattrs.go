package telemetry

import (
	"slices"
	"strings"

	"go.opentelemetry.io/otel/attribute"
)

const maxAttrValueLen = 256

// Key fragments that mark post text, drafts or credentials. Attributes whose
// key contains one of these are dropped before they reach an exporter.
var sensitiveKeyParts = []string{
	"title", "body", "selftext", "text", "draft", "content",
	"authorization", "api_key", "token", "secret", "password", "webhook",
}

func sensitiveKey(key string) bool {
	lk := strings.ToLower(key)
	return slices.ContainsFunc(sensitiveKeyParts, func(part string) bool {
		return strings.Contains(lk, part)
	})
}

// Attrs turns alternating key/value pairs into span attributes, dropping
// sensitive keys, oversized strings and value types it does not know.
func Attrs(kv ...any) []attribute.KeyValue {
	out := make([]attribute.KeyValue, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok || key == "" || sensitiveKey(key) {
			continue
		}
		switch v := kv[i+1].(type) {
		case string:
			if len(v) <= maxAttrValueLen {
				out = append(out, attribute.String(key, v))
			}
		case bool:
			out = append(out, attribute.Bool(key, v))
		case int:
			out = append(out, attribute.Int(key, v))
		case float64:
			out = append(out, attribute.Float64(key, v))
		case []string:
			out = append(out, attribute.StringSlice(key, v[:min(len(v), 32)]))
		}
	}
	return out
}
