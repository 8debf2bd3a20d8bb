package models

import (
	"time"

	"phishguard/internal/docstore"
)

// Field readers used by the normalizers. Each returns def when the field is
// absent or holds the wrong type.

func stringField(data map[string]any, key, def string) string {
	if s, ok := data[key].(string); ok && s != "" {
		return s
	}
	return def
}

func floatField(data map[string]any, key string, def float64) float64 {
	switch n := data[key].(type) {
	case float64:
		return n
	case float32:
		return float64(n)
	case int:
		return float64(n)
	case int64:
		return float64(n)
	}
	return def
}

func intField(data map[string]any, key string) int {
	return int(floatField(data, key, 0))
}

func timeField(data map[string]any, key string, def time.Time) time.Time {
	if t, ok := docstore.TimeValue(data[key]); ok {
		return t
	}
	return def
}

func mapField(data map[string]any, key string) map[string]any {
	if m, ok := data[key].(map[string]any); ok {
		return m
	}
	return nil
}

func stringsField(data map[string]any, key string) []string {
	switch v := data[key].(type) {
	case []string:
		return append([]string(nil), v...)
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}
