// Package logutil formats captured HTTP traffic for logs with credentials
// and session tokens redacted.
package logutil

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// Redacted replaces every sensitive value.
const Redacted = "[REDACTED]"

// IsSensitiveField returns true when a header or JSON key likely carries a
// credential. Matching ignores case, dashes and underscores.
func IsSensitiveField(key string) bool {
	normalized := strings.ToLower(strings.TrimSpace(key))
	normalized = strings.ReplaceAll(normalized, "-", "")
	normalized = strings.ReplaceAll(normalized, "_", "")

	switch {
	case normalized == "authorization", normalized == "xauthorization":
		return true
	case strings.Contains(normalized, "password"):
		return true
	case strings.Contains(normalized, "repass"):
		return true
	case strings.Contains(normalized, "token"):
		return true
	case strings.Contains(normalized, "secret"):
		return true
	case strings.Contains(normalized, "cookie"):
		return true
	default:
		return false
	}
}

// RedactHeaders returns a sorted, single-line rendering of headers with
// sensitive values replaced.
func RedactHeaders(headers map[string]string) string {
	if len(headers) == 0 {
		return "{}"
	}
	keys := make([]string, 0, len(headers))
	for k := range headers {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		v := headers[k]
		if IsSensitiveField(k) {
			v = Redacted
		}
		parts = append(parts, fmt.Sprintf("%s=%q", strings.ToLower(k), v))
	}
	return strings.Join(parts, "; ")
}

// RedactJSON replaces sensitive fields anywhere in a JSON document.
// It returns the input unchanged and false when body is not valid JSON.
func RedactJSON(body []byte) ([]byte, bool) {
	var payload any
	if err := json.Unmarshal(body, &payload); err != nil {
		return body, false
	}
	redactValue(payload)
	out, err := json.Marshal(payload)
	if err != nil {
		return body, false
	}
	return out, true
}

func redactValue(v any) {
	switch typed := v.(type) {
	case map[string]any:
		for k, child := range typed {
			if IsSensitiveField(k) {
				typed[k] = Redacted
				continue
			}
			redactValue(child)
		}
	case []any:
		for _, child := range typed {
			redactValue(child)
		}
	}
}

// FormatBody truncates and redacts a response body for logging. Non-JSON
// bodies are only truncated.
func FormatBody(contentType string, body []byte, maxBytes int) string {
	if len(body) == 0 {
		return ""
	}
	truncated := false
	if strings.Contains(strings.ToLower(contentType), "json") {
		if redacted, ok := RedactJSON(body); ok {
			body = redacted
		}
	}
	if maxBytes > 0 && len(body) > maxBytes {
		body = body[:maxBytes]
		truncated = true
	}
	text := string(body)
	if truncated {
		return text + " [truncated]"
	}
	return text
}

// Truncate returns a single-line preview of value of at most maxChars.
func Truncate(value string, maxChars int) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return ""
	}
	normalized := strings.ReplaceAll(trimmed, "\n", "\\n")
	if maxChars <= 0 || len(normalized) <= maxChars {
		return normalized
	}
	return normalized[:maxChars] + "... [truncated]"
}
