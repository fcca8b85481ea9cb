package hugo

import (
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"
)

var (
	slugStripRe = regexp.MustCompile(`[^\p{L}\p{M}\p{N}_\s-]`)
	slugJoinRe  = regexp.MustCompile(`[-\s]+`)
)

// Slug turns a channel name into a URL path segment: lowercase, punctuation
// dropped, runs of whitespace and hyphens collapsed to a single hyphen.
func Slug(name string) string {
	s := strings.ToLower(norm.NFKC.String(name))
	s = slugStripRe.ReplaceAllString(s, "")
	s = slugJoinRe.ReplaceAllString(s, "-")
	return strings.Trim(s, "-")
}
