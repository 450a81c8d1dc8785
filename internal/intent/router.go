// Package intent classifies chat utterances into actions.
package intent

import (
	"regexp"
	"strings"
)

// Kind tags an Action
type Kind string

const (
	KindUpdateQuantity Kind = "update_quantity"
	KindSearch         Kind = "search"
	KindBuy            Kind = "buy"
	KindConfirm        Kind = "confirm"
	KindCancel         Kind = "cancel"
	KindFreeform       Kind = "freeform"
)

// Action is the classified form of an utterance.
//
//	Search:         Query
//	Buy:            Query holds the id or free-text query, RawText the utterance
//	UpdateQuantity: Quantity
//	Freeform:       RawText
type Action struct {
	Kind     Kind
	Query    string
	RawText  string
	Quantity int
}

// State is the per-client context the router needs
type State struct {
	HasPending bool
}

var (
	searchRe       = regexp.MustCompile(`(?i)\bsearch\b|\bfind\b|look for`)
	searchSuffixRe = regexp.MustCompile(`(?i)(?:search|find|look for)\s+(.+)`)
	buyRe          = regexp.MustCompile(`(?i)\bbuy\b|\border\b`)
	buySuffixRe    = regexp.MustCompile(`(?i)(?:buy|order)\s+(.+)`)
	itemIDRe       = regexp.MustCompile(`[A-Za-z]\d{3,}`)
	confirmRe      = regexp.MustCompile(`(?i)\b(?:confirm|yes)\b`)
	cancelRe       = regexp.MustCompile(`(?i)\b(?:cancel|no)\b`)
)

// Rule is one guarded matcher. The first rule that matches wins.
type Rule struct {
	Name  string
	Match func(text string, st State) (Action, bool)
}

// Router classifies utterances with an ordered rule list
type Router struct {
	rules []Rule
}

// NewRouter creates a router with the default precedence:
// quantity update (only while pending), search, buy, confirm, cancel.
// Anything else is freeform.
func NewRouter() *Router {
	return &Router{rules: []Rule{
		{Name: string(KindUpdateQuantity), Match: matchQuantityUpdate},
		{Name: string(KindSearch), Match: matchSearch},
		{Name: string(KindBuy), Match: matchBuy},
		{Name: string(KindConfirm), Match: matchWord(confirmRe, KindConfirm)},
		{Name: string(KindCancel), Match: matchWord(cancelRe, KindCancel)},
	}}
}

// Rules returns the rule names in evaluation order
func (r *Router) Rules() []string {
	names := make([]string, len(r.rules))
	for i, rule := range r.rules {
		names[i] = rule.Name
	}
	return names
}

// Classify returns the action of the first matching rule
func (r *Router) Classify(text string, st State) Action {
	for _, rule := range r.rules {
		if a, ok := rule.Match(text, st); ok {
			return a
		}
	}
	return Action{Kind: KindFreeform, RawText: text}
}

func matchQuantityUpdate(text string, st State) (Action, bool) {
	if !st.HasPending {
		return Action{}, false
	}
	n, ok := QuantityUpdate(text)
	if !ok {
		return Action{}, false
	}
	return Action{Kind: KindUpdateQuantity, Quantity: n, RawText: text}, true
}

func matchSearch(text string, _ State) (Action, bool) {
	if !searchRe.MatchString(text) {
		return Action{}, false
	}
	q := text
	if m := searchSuffixRe.FindStringSubmatch(text); m != nil {
		q = m[1]
	}
	return Action{Kind: KindSearch, Query: strings.TrimSpace(q), RawText: text}, true
}

// matchBuy falls through when neither an id nor a suffix is present
func matchBuy(text string, _ State) (Action, bool) {
	if !buyRe.MatchString(text) {
		return Action{}, false
	}
	if id := itemIDRe.FindString(text); id != "" {
		return Action{Kind: KindBuy, Query: id, RawText: text, Quantity: ParseQuantity(text)}, true
	}
	m := buySuffixRe.FindStringSubmatch(text)
	if m == nil {
		return Action{}, false
	}
	q := strings.TrimSpace(m[1])
	if q == "" {
		return Action{}, false
	}
	return Action{Kind: KindBuy, Query: q, RawText: text, Quantity: ParseQuantity(text)}, true
}

func matchWord(re *regexp.Regexp, kind Kind) func(string, State) (Action, bool) {
	return func(text string, _ State) (Action, bool) {
		if !re.MatchString(text) {
			return Action{}, false
		}
		return Action{Kind: kind, RawText: text}, true
	}
}
