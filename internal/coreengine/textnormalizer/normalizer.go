// Package textnormalizer maps raw transcript text to the canonical form used
// before any error rate is computed.
package textnormalizer

import (
	"strings"
	"unicode"
)

// Punctuation is the ASCII punctuation set stripped by Normalize.
const Punctuation = "!\"#$%&'()*+,-./:;<=>?@[\\]^_`{|}~"

var punctuationStripper = strings.NewReplacer(punctuationPairs()...)

func punctuationPairs() []string {
	pairs := make([]string, 0, 2*len(Punctuation))
	for _, r := range Punctuation {
		pairs = append(pairs, string(r), "")
	}
	return pairs
}

// Normalize lowercases text, removes ASCII punctuation and collapses every
// whitespace run into a single space. Leading and trailing whitespace is trimmed.
// Reference and hypothesis must both go through Normalize before scoring.
func Normalize(text string) string {
	text = strings.ToLower(text)
	text = punctuationStripper.Replace(text)
	return strings.Join(strings.FieldsFunc(text, unicode.IsSpace), " ")
}

// Pair normalizes a reference/hypothesis pair in one call.
func Pair(reference, hypothesis string) (string, string) {
	return Normalize(reference), Normalize(hypothesis)
}
