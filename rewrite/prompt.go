package rewrite

import (
	"fmt"
	"math"
	"strings"

	"github.com/brunobiangulo/distill/segment"
)

const systemPrompt = `You rewrite extracted sentences into one fluent summary paragraph.
Use only facts stated in the input. Do not add opinions, headings, lists or preamble.`

func userPrompt(text string, maxWords, minWords int) string {
	var b strings.Builder
	if minWords > 0 {
		fmt.Fprintf(&b, "Summarize the following text in %d to %d words.\n\n", minWords, maxWords)
	} else {
		fmt.Fprintf(&b, "Summarize the following text in at most %d words.\n\n", maxWords)
	}
	b.WriteString("Text:\n")
	b.WriteString(text)
	return b.String()
}

// maxTokensFor allows about 1.3 tokens per English word.
func maxTokensFor(maxWords int) int {
	return int(math.Ceil(1.3 * float64(maxWords)))
}

// truncate cuts text to at most limit bytes, ending on the last whole
// sentence that fits. A first sentence longer than limit is cut on a rune
// boundary.
func truncate(text string, limit int) (string, bool) {
	if limit <= 0 || len(text) <= limit {
		return text, false
	}
	var b strings.Builder
	for _, s := range segment.Split(text) {
		need := len(s)
		if b.Len() > 0 {
			need++
		}
		if b.Len()+need > limit {
			break
		}
		if b.Len() > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(s)
	}
	if b.Len() > 0 {
		return b.String(), true
	}
	cut := limit
	for cut > 0 && !isRuneStart(text[cut]) {
		cut--
	}
	return text[:cut], true
}

func isRuneStart(b byte) bool { return b&0xC0 != 0x80 }

// wordCount counts whitespace-separated words.
func wordCount(s string) int { return len(strings.Fields(s)) }
