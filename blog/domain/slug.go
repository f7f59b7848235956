package domain

import (
	"regexp"
	"strings"

	"github.com/gosimple/unidecode"
)

var (
	slugStripRegex  = regexp.MustCompile(`[^\w\s-]`)
	slugHyphenRegex = regexp.MustCompile(`[-\s]+`)
)

// Slugify transliterates the title to ASCII, lowercases it and joins words with hyphens.
// Example: "Hello World" -> "hello-world"
func Slugify(title string) string {
	ascii := unidecode.Unidecode(title)

	// unidecode leaves characters it has no mapping for untouched
	var b strings.Builder
	for _, r := range ascii {
		if r < 128 {
			b.WriteRune(r)
		}
	}

	// only surrounding whitespace is trimmed, leading or trailing hyphens are kept
	s := strings.TrimSpace(slugStripRegex.ReplaceAllString(b.String(), ""))
	return slugHyphenRegex.ReplaceAllString(strings.ToLower(s), "-")
}
