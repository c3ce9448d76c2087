package store

import (
	"regexp"
	"strings"
)

// tokenRegex matches runs of unicode word characters. Hierarchical
// vocabulary paths and hyphenated words split into their parts.
var tokenRegex = regexp.MustCompile(`[\p{L}\p{N}_]+`)

// Tokenize splits text into lowercased unicode word tokens. No stemming,
// no stop-word filtering: indexing and querying must agree exactly, and
// exact identifiers like "SKU-12345" must stay findable via their parts.
func Tokenize(text string) []string {
	words := tokenRegex.FindAllString(text, -1)
	tokens := make([]string, 0, len(words))
	for _, w := range words {
		tokens = append(tokens, strings.ToLower(w))
	}
	return tokens
}

// TokenSet returns the distinct tokens of text. Used for Jaccard overlap
// during result diversification.
func TokenSet(text string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, tok := range Tokenize(text) {
		set[tok] = struct{}{}
	}
	return set
}
