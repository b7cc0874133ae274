// Package chunker splits transcript text into ordered, bounded-size chunks
// on sentence boundaries.
package chunker

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// DefaultMaxChars is the chunk size used when the caller passes a
// non-positive limit.
const DefaultMaxChars = 1800

// Chunk greedily packs sentences into chunks of at most maxChars characters.
// Sentences are never split; a single sentence longer than maxChars becomes
// its own chunk. Sentences within a chunk are joined by a single space.
func Chunk(text string, maxChars int) []string {
	if maxChars <= 0 {
		maxChars = DefaultMaxChars
	}

	var (
		chunks []string
		buf    strings.Builder
		bufLen int
	)

	flush := func() {
		if bufLen > 0 {
			chunks = append(chunks, buf.String())
		}
		buf.Reset()
		bufLen = 0
	}

	for _, sentence := range Sentences(text) {
		n := utf8.RuneCountInString(sentence)
		if bufLen > 0 && bufLen+1+n > maxChars {
			flush()
		}
		if bufLen > 0 {
			buf.WriteByte(' ')
			bufLen++
		}
		buf.WriteString(sentence)
		bufLen += n
	}
	flush()

	return chunks
}

// Sentences splits text after '.', '!' or '?' when followed by whitespace.
// Each sentence keeps its terminator; internal whitespace runs collapse to a
// single space and empty sentences are dropped.
func Sentences(text string) []string {
	var (
		sentences []string
		cur       []rune
	)

	emit := func() {
		s := strings.Join(strings.Fields(string(cur)), " ")
		if s != "" {
			sentences = append(sentences, s)
		}
		cur = cur[:0]
	}

	runes := []rune(text)
	for i, r := range runes {
		cur = append(cur, r)
		if isTerminator(r) && i+1 < len(runes) && unicode.IsSpace(runes[i+1]) {
			emit()
		}
	}
	emit()

	return sentences
}

func isTerminator(r rune) bool {
	return r == '.' || r == '!' || r == '?'
}
