// Package lexical implements synonym-aware strict matching and
// edit-distance tolerant fuzzy matching of free-text queries.
package lexical

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"commerce-agent/internal/models"
)

// Default fuzzy thresholds
const (
	DefaultShortMaxDistance = 1
	DefaultLongMaxDistance  = 2

	// tokens up to this many runes use the short threshold
	shortTokenLen = 4
	// max length difference between a token and a candidate word
	maxLenDelta = 2
)

var (
	alnumRe      = regexp.MustCompile(`(?i)[a-z0-9]`)
	pluralRe     = regexp.MustCompile(`s\b`)
	wordSplitRe  = regexp.MustCompile(`[^a-z0-9]+`)
	whitespaceRe = regexp.MustCompile(`\s+`)
)

// TokenGroup is one query word together with its synonyms
type TokenGroup []string

// Groups tokenizes a query and expands each token into its synonym group.
// Tokens without any alphanumeric character are dropped.
func Groups(query string) []TokenGroup {
	groups := make([]TokenGroup, 0)
	for _, tok := range whitespaceRe.Split(strings.ToLower(query), -1) {
		if tok == "" || !alnumRe.MatchString(tok) {
			continue
		}
		group := TokenGroup{tok}
		seen := map[string]bool{tok: true}
		for _, syn := range Synonyms(singular(tok)) {
			if !seen[syn] {
				seen[syn] = true
				group = append(group, syn)
			}
		}
		groups = append(groups, group)
	}
	return groups
}

// RawTokens splits a query on whitespace without synonym expansion or filtering
func RawTokens(query string) []string {
	tokens := make([]string, 0)
	for _, tok := range whitespaceRe.Split(strings.ToLower(query), -1) {
		if tok != "" {
			tokens = append(tokens, tok)
		}
	}
	return tokens
}

// singular strips the first "s" that ends a word
func singular(tok string) string {
	loc := pluralRe.FindStringIndex(tok)
	if loc == nil {
		return tok
	}
	return tok[:loc[0]] + tok[loc[1]:]
}

// MatchStrict reports whether every group has a variant contained in hay.
// An empty group list matches everything.
func MatchStrict(hay string, groups []TokenGroup) bool {
	for _, g := range groups {
		found := false
		for _, v := range g {
			if strings.Contains(hay, v) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// Matcher holds the configurable fuzzy thresholds
type Matcher struct {
	ShortMaxDistance int
	LongMaxDistance  int
}

// NewMatcher creates a matcher with the given edit-distance caps
func NewMatcher(shortMax, longMax int) *Matcher {
	return &Matcher{ShortMaxDistance: shortMax, LongMaxDistance: longMax}
}

// DefaultMatcher returns a matcher with the default thresholds
func DefaultMatcher() *Matcher {
	return NewMatcher(DefaultShortMaxDistance, DefaultLongMaxDistance)
}

// NearIncludes reports whether token is in hay directly or within the
// edit-distance threshold of one of hay's words.
func (m *Matcher) NearIncludes(hay, token string) bool {
	if token == "" || strings.Contains(hay, token) {
		return true
	}

	tokLen := utf8.RuneCountInString(token)
	maxDist := m.LongMaxDistance
	if tokLen <= shortTokenLen {
		maxDist = m.ShortMaxDistance
	}

	for _, w := range wordSplitRe.Split(hay, -1) {
		if w == "" {
			continue
		}
		delta := utf8.RuneCountInString(w) - tokLen
		if delta < -maxLenDelta || delta > maxLenDelta {
			continue
		}
		if Levenshtein(w, token) <= maxDist {
			return true
		}
	}
	return false
}

// MatchFuzzy reports whether every raw token near-matches hay
func (m *Matcher) MatchFuzzy(hay string, tokens []string) bool {
	for _, t := range tokens {
		if !m.NearIncludes(hay, t) {
			return false
		}
	}
	return true
}

// HaystackFunc builds the lower-cased searchable text of an item
type HaystackFunc func(item models.CatalogItem) string

// FullHaystack uses title, id and keywords
func FullHaystack(item models.CatalogItem) string {
	parts := make([]string, 0, 2+len(item.Keywords))
	parts = append(parts, item.Title, item.ID)
	parts = append(parts, item.Keywords...)
	return strings.ToLower(strings.Join(parts, " "))
}

// TitleHaystack uses title and id only
func TitleHaystack(item models.CatalogItem) string {
	return strings.ToLower(item.Title + " " + item.ID)
}

// Filter applies strict matching and falls back to fuzzy matching only
// when the query is non-empty and strict matching found nothing.
// The second return value reports whether the fuzzy fallback ran.
func (m *Matcher) Filter(items []models.CatalogItem, query string, hay HaystackFunc) ([]models.CatalogItem, bool) {
	groups := Groups(query)
	out := make([]models.CatalogItem, 0)
	for _, it := range items {
		if MatchStrict(hay(it), groups) {
			out = append(out, it)
		}
	}
	if len(out) > 0 || strings.TrimSpace(query) == "" {
		return out, false
	}

	tokens := RawTokens(query)
	for _, it := range items {
		if m.MatchFuzzy(hay(it), tokens) {
			out = append(out, it)
		}
	}
	return out, true
}
