package utils

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

var (
	textPolicy   = bluemonday.StrictPolicy()
	angleRemover = strings.NewReplacer("<", "", ">", "")
)

// maxSanitizePasses bounds how many layers of entity encoding are peeled.
const maxSanitizePasses = 4

// SanitizeText strips all markup from operator or customer supplied text and
// returns plain text, so stored names can be echoed into pages and e-mails.
// Escaped markup is decoded and stripped again; the result never contains '<' or '>'.
func SanitizeText(input string) string {
	out := input
	for i := 0; i < maxSanitizePasses; i++ {
		next := html.UnescapeString(textPolicy.Sanitize(out))
		if next == out {
			break
		}
		out = next
	}
	return strings.TrimSpace(angleRemover.Replace(out))
}
