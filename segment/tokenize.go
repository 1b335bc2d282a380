package segment

import (
	"regexp"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

var tokenPattern = regexp.MustCompile(`[\p{L}\p{N}]+(?:'[\p{L}]+)*`)

// Tokens case-folds a sentence and returns its word tokens in order.
// Apostrophes inside words are kept ("don't"), all other punctuation
// separates tokens.
func Tokens(sentence string) []string {
	// A Caser carries state, so each call gets its own.
	folded := cases.Fold().String(norm.NFKC.String(sentence))
	folded = strings.NewReplacer("’", "'", "‘", "'").Replace(folded)
	return tokenPattern.FindAllString(folded, -1)
}

// Terms returns the tokens of a sentence with stop-words removed.
func Terms(sentence string) []string {
	tokens := Tokens(sentence)
	terms := tokens[:0]
	for _, t := range tokens {
		if !IsStopWord(t) {
			terms = append(terms, t)
		}
	}
	return terms
}
