package services

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

var plainTextPolicy = bluemonday.StrictPolicy()

// maxSanitizePasses bounds how many layers of entity encoding are peeled off.
const maxSanitizePasses = 4

// sanitizeText strips markup from user supplied text and trims surrounding whitespace. Entities are
// decoded before the policy runs so encoded markup is stripped like literal markup, and the pass
// repeats until the value is stable. Values are stored as plain text.
func sanitizeText(value string) string {
	value = strings.TrimSpace(value)
	for i := 0; i < maxSanitizePasses && value != ""; i++ {
		next := strings.TrimSpace(html.UnescapeString(plainTextPolicy.Sanitize(html.UnescapeString(value))))
		if next == value {
			return value
		}
		value = next
	}
	// Still changing: keep the policy's escaped output so nothing decodes into markup.
	return strings.TrimSpace(plainTextPolicy.Sanitize(value))
}
