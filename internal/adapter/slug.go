package adapter

import (
	"regexp"
	"strings"
)

var nonSlugChars = regexp.MustCompile(`[^a-z0-9]+`)

// Slugify lowercases text and collapses every run of non-alphanumerics into a
// single dash, trimming dashes at either end.
func Slugify(text string) string {
	s := nonSlugChars.ReplaceAllString(strings.ToLower(text), "-")
	return strings.Trim(s, "-")
}
