package intent

import (
	"regexp"
	"strconv"

	"commerce-agent/internal/models"
)

var (
	explicitQtyRe = regexp.MustCompile(`(?i)(?:qty|quantity|x)\s*(\d+)`)
	firstNumberRe = regexp.MustCompile(`\b(\d+)\b`)
	bareQtyRe     = regexp.MustCompile(`(?i)^\s*(\d+)\s*(?:x|units?|pcs|pieces|of\s+(?:them|it))?\s*$`)
)

// ParseQuantity prefers an explicit "qty|quantity|x N" phrase, then the
// first standalone integer. Missing or non-positive values become 1.
func ParseQuantity(text string) int {
	if m := explicitQtyRe.FindStringSubmatch(text); m != nil {
		return atoiQuantity(m[1])
	}
	if m := firstNumberRe.FindStringSubmatch(text); m != nil {
		return atoiQuantity(m[1])
	}
	return 1
}

// QuantityUpdate reports the quantity of an utterance that only restates a
// quantity, such as "5", "5 pcs", "3 of them" or "qty 2" anywhere in the text.
func QuantityUpdate(text string) (int, bool) {
	if m := explicitQtyRe.FindStringSubmatch(text); m != nil {
		return atoiQuantity(m[1]), true
	}
	if m := bareQtyRe.FindStringSubmatch(text); m != nil {
		return atoiQuantity(m[1]), true
	}
	return 0, false
}

func atoiQuantity(s string) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 1
	}
	return models.NormalizeQuantity(n)
}
