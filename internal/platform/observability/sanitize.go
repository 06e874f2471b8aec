package observability

import "unicode"

const defaultStringLimit = 256

// sanitizeString drops control characters and caps the length so request data cannot forge log lines.
func sanitizeString(value string, limit int) string {
	if limit <= 0 {
		limit = defaultStringLimit
	}
	cleaned := make([]rune, 0, len(value))
	for _, r := range value {
		if unicode.IsControl(r) {
			continue
		}
		cleaned = append(cleaned, r)
		if len(cleaned) == limit {
			break
		}
	}
	return string(cleaned)
}

// SanitizeRoute cleans a route or path for logging.
func SanitizeRoute(route string) string {
	if route == "" {
		return "/"
	}
	return sanitizeString(route, 180)
}

// SanitizeMethod cleans an HTTP method for logging.
func SanitizeMethod(method string) string {
	return sanitizeString(method, 10)
}
