// Package segment splits document text into sentences and sentences into
// terms.
package segment

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

// abbreviations never end a sentence.
var abbreviations = map[string]struct{}{
	"mr": {}, "mrs": {}, "ms": {}, "dr": {}, "prof": {}, "sr": {}, "jr": {},
	"st": {}, "vs": {}, "e.g": {}, "i.e": {}, "cf": {}, "al": {}, "inc": {},
	"ltd": {}, "co": {}, "corp": {}, "dept": {}, "univ": {}, "approx": {},
	"est": {}, "gen": {}, "gov": {}, "sen": {}, "rep": {}, "mt": {},
	"ave": {}, "blvd": {}, "jan": {}, "feb": {}, "mar": {}, "apr": {},
	"jun": {}, "jul": {}, "aug": {}, "sep": {}, "sept": {}, "oct": {},
	"nov": {}, "dec": {}, "ph.d": {}, "u.s": {}, "u.k": {}, "a.m": {}, "p.m": {},
}

// numericAbbreviations only suppress a break when a number follows,
// as in "Fig. 3" or "pp. 12".
var numericAbbreviations = map[string]struct{}{
	"no": {}, "nos": {}, "fig": {}, "figs": {}, "vol": {}, "p": {}, "pp": {},
	"eq": {}, "eqs": {}, "sec": {}, "ch": {}, "art": {}, "ref": {}, "refs": {},
	"tab": {}, "op": {}, "ed": {},
}

var (
	hyphenBreak = regexp.MustCompile(`(\p{Ll})-[ \t]*\r?\n\s*(\p{Ll})`)
	dottedAbbr  = regexp.MustCompile(`^(\p{L}\.)+\p{L}$`)
)

// Normalize applies NFKC, rejoins words hyphenated across line breaks,
// drops control characters and collapses every whitespace run to a single
// space.
func Normalize(text string) string {
	text = norm.NFKC.String(text)
	text = strings.ReplaceAll(text, "\u00ad", "")
	text = hyphenBreak.ReplaceAllString(text, "$1$2")
	text = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) && !unicode.IsSpace(r) {
			return -1
		}
		return r
	}, text)
	return strings.Join(strings.Fields(text), " ")
}

// Split normalizes text and returns its sentences in document order.
// Sentences without a single letter or digit are dropped. The result is
// empty when nothing readable remains.
func Split(text string) []string {
	text = Normalize(text)
	if text == "" {
		return nil
	}

	var sentences []string
	start := 0
	for i := 0; i < len(text); {
		r, size := utf8.DecodeRuneInString(text[i:])
		i += size

		if !isTerminal(r) {
			continue
		}

		// Absorb runs like "?!" or `."` into the current sentence.
		end := i
		for end < len(text) {
			next, n := utf8.DecodeRuneInString(text[end:])
			if !isTerminal(next) && !isCloser(next) {
				break
			}
			end += n
		}

		if isBoundary(text, start, i-size, r, end) {
			sentences = appendSentence(sentences, text[start:end])
			start = end
		}
		i = end
	}
	if start < len(text) {
		sentences = appendSentence(sentences, text[start:])
	}
	return sentences
}

func appendSentence(sentences []string, s string) []string {
	s = strings.TrimSpace(s)
	if !hasWordRune(s) {
		return sentences
	}
	return append(sentences, s)
}

// isBoundary reports whether the terminal rune r at text[pos] ends the
// sentence that began at start. end is the offset just past the terminal
// run and any closing quotes or brackets.
func isBoundary(text string, start, pos int, r rune, end int) bool {
	if isFullWidthTerminal(r) {
		return true
	}
	if end == len(text) {
		return true
	}
	if text[end] != ' ' {
		// "3.14", "e.g.,", "example.com"
		return false
	}

	next := nextWordRune(text[end+1:])
	if unicode.IsLower(next) {
		return false
	}
	if r != '.' {
		return true
	}

	word := precedingWord(text[start:pos])
	if word == "" {
		return true
	}
	lower := strings.ToLower(word)
	if _, ok := abbreviations[lower]; ok {
		return false
	}
	if _, ok := numericAbbreviations[lower]; ok && unicode.IsDigit(next) {
		return false
	}
	// Initials such as "J. R. Smith".
	if n := utf8.RuneCountInString(word); n == 1 {
		first, _ := utf8.DecodeRuneInString(word)
		return !unicode.IsUpper(first)
	}
	return !dottedAbbr.MatchString(word)
}

// precedingWord returns the token that ends right before a period, with
// leading opening punctuation removed.
func precedingWord(s string) string {
	if i := strings.LastIndexByte(s, ' '); i >= 0 {
		s = s[i+1:]
	}
	return strings.TrimLeftFunc(s, func(r rune) bool {
		return isOpener(r) || isCloser(r)
	})
}

// nextWordRune returns the first rune of s after any opening quotes or
// brackets.
func nextWordRune(s string) rune {
	for _, r := range s {
		if isOpener(r) || isCloser(r) {
			continue
		}
		return r
	}
	return 0
}

func hasWordRune(s string) bool {
	return strings.IndexFunc(s, func(r rune) bool {
		return unicode.IsLetter(r) || unicode.IsDigit(r)
	}) >= 0
}

func isTerminal(r rune) bool {
	switch r {
	case '.', '!', '?':
		return true
	}
	return isFullWidthTerminal(r)
}

// isFullWidthTerminal matches the ideographic full stop, which is not
// followed by a space. NFKC has already folded the full-width "!" and "?".
func isFullWidthTerminal(r rune) bool {
	return r == '。'
}

func isCloser(r rune) bool {
	switch r {
	case '"', '\'', ')', ']', '}', '»', '”', '’', '」', '』':
		return true
	}
	return false
}

func isOpener(r rune) bool {
	switch r {
	case '"', '\'', '(', '[', '{', '«', '“', '‘', '「', '『':
		return true
	}
	return false
}
