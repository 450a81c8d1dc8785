package lexical

// synonyms maps a singularized query token to the variants it should also match
var synonyms = map[string][]string{
	"earphone":  {"earphones", "earbuds", "buds", "in-ear", "iem", "headphones"},
	"earbuds":   {"earbuds", "buds", "earphones", "in-ear", "iem"},
	"headphone": {"headphone", "headphones", "over-ear", "on-ear"},
	"airpod":    {"airpod", "airpods", "air pod", "air pods"},
	"sony":      {"sony", "wf-1000xm5", "xm5"},
	"samsung":   {"samsung", "galaxy", "buds"},
	"beats":     {"beats", "studio buds", "buds"},
	// typo alias
	"earins": {"earbuds", "earphones"},
}

// Synonyms returns the synonym variants registered for a reduced token
func Synonyms(reduced string) []string {
	return synonyms[reduced]
}
