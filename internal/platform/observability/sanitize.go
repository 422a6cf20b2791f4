package observability

import (
	"strings"
	"unicode"
)

// sanitizeString drops control characters other than tab and newlines and caps the result at
// limit runes. It keeps request-derived values from forging log lines.
func sanitizeString(value string, limit int) string {
	if limit <= 0 {
		limit = 256
	}
	cleaned := strings.Map(func(r rune) rune {
		if unicode.IsControl(r) && r != '\n' && r != '\r' && r != '\t' {
			return -1
		}
		return r
	}, value)
	if runes := []rune(cleaned); len(runes) > limit {
		return string(runes[:limit])
	}
	return cleaned
}

// SanitizeRoute bounds a path or route pattern for logs and span attributes.
func SanitizeRoute(route string) string {
	if route == "" {
		return "/"
	}
	return sanitizeString(route, 180)
}

func SanitizeMethod(method string) string {
	return sanitizeString(method, 10)
}

// SanitizeTenantID bounds tenant identifiers taken from the URL before they reach logs.
func SanitizeTenantID(id string) string {
	return sanitizeString(id, 64)
}
