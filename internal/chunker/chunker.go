// Package chunker splits cleaned text into token-bounded chunks on sentence boundaries.
package chunker

import (
	"regexp"
	"strings"

	"personal-rag/internal/tokenizer"
)

const DefaultMaxTokens = 512

var terminatorRe = regexp.MustCompile(`[.!?]+`)

type Chunker struct {
	tok       tokenizer.Tokenizer
	maxTokens int
}

func New(tok tokenizer.Tokenizer, maxTokens int) *Chunker {
	if tok == nil {
		tok = tokenizer.Default()
	}
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}
	return &Chunker{tok: tok, maxTokens: maxTokens}
}

func (c *Chunker) MaxTokens() int {
	return c.maxTokens
}

// Chunk packs whole sentences into chunks of at most maxTokens tokens.
// A sentence that alone exceeds the limit becomes its own oversize chunk.
// Consecutive chunks never overlap.
func (c *Chunker) Chunk(text string) []string {
	var chunks []string
	current := ""
	for _, sentence := range SplitSentences(text) {
		candidate := sentence
		if current != "" {
			candidate = current + " " + sentence
		}
		if c.tok.Count(candidate) > c.maxTokens && current != "" {
			chunks = append(chunks, current)
			current = sentence
			continue
		}
		current = candidate
	}
	if current != "" {
		chunks = append(chunks, current)
	}
	return chunks
}

// SplitSentences splits on runs of '.', '!' and '?', keeping each run with the
// sentence it ends. Sentences with nothing but whitespace before the run are dropped.
func SplitSentences(text string) []string {
	var sentences []string
	start := 0
	for _, loc := range terminatorRe.FindAllStringIndex(text, -1) {
		if strings.TrimSpace(text[start:loc[0]]) != "" {
			sentences = append(sentences, strings.TrimSpace(text[start:loc[1]]))
		}
		start = loc[1]
	}
	if s := strings.TrimSpace(text[start:]); s != "" {
		sentences = append(sentences, s)
	}
	return sentences
}
