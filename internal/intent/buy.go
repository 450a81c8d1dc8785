package intent

import (
	"regexp"
	"strings"
)

var (
	cleanQtyRe    = regexp.MustCompile(`(?i)(?:qty|quantity|x)\s*\d+`)
	cleanNumberRe = regexp.MustCompile(`\b\d+\b`)
	cleanPunctRe  = regexp.MustCompile(`[^a-z0-9\s-]+`)
	cleanSpaceRe  = regexp.MustCompile(`\s+`)
)

// ItemID returns the upper-cased id-shaped token of s, if any
func ItemID(s string) (string, bool) {
	id := itemIDRe.FindString(s)
	if id == "" {
		return "", false
	}
	return strings.ToUpper(id), true
}

// CleanBuyQuery lower-cases a purchase query and strips quantity phrases,
// standalone numbers and punctuation other than hyphens.
func CleanBuyQuery(q string) string {
	q = strings.ToLower(q)
	q = cleanQtyRe.ReplaceAllString(q, " ")
	q = cleanNumberRe.ReplaceAllString(q, " ")
	q = cleanPunctRe.ReplaceAllString(q, " ")
	q = cleanSpaceRe.ReplaceAllString(q, " ")
	return strings.TrimSpace(q)
}
