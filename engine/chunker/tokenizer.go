package chunker

import "strings"

// Tokenizer converts text to and from a token sequence. The sliding window
// operates on exact token units, so window size and overlap guarantees hold
// for whatever tokenizer is plugged in.
type Tokenizer interface {
	Encode(text string) []string
	Decode(tokens []string) string
	Count(text string) int
}

// WordTokenizer treats whitespace-delimited words as tokens. It is the
// default; an exact model tokenizer can be substituted without touching the
// chunking logic.
type WordTokenizer struct{}

func (WordTokenizer) Encode(text string) []string { return strings.Fields(text) }

func (WordTokenizer) Decode(tokens []string) string { return strings.Join(tokens, " ") }

func (WordTokenizer) Count(text string) int { return len(strings.Fields(text)) }
