package keyword

import (
	"regexp"
)

var nonSlugChars = regexp.MustCompile(`[^\pL\pN]+`)

// Reduces a name or label to its letters and digits, normalized and lower-cased, so "Sexual Explicit", "sexual_explicit" and "Sexual-Explicit" all compare equal.
func Slugify(orig string) string {
	return nonSlugChars.ReplaceAllString(Normalize(orig), "")
}
