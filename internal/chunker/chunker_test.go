package chunker

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// wordTokenizer counts whitespace separated words.
type wordTokenizer struct{}

func (wordTokenizer) Count(text string) int {
	return len(strings.Fields(text))
}

func TestSplitSentences(t *testing.T) {
	tests := []struct {
		name string
		text string
		want []string
	}{
		{"empty", "", nil},
		{"blank", "   ", nil},
		{"single without terminator", "no terminator here", []string{"no terminator here"}},
		{"mixed terminators", "One. Two! Three? Four", []string{"One.", "Two!", "Three?", "Four"}},
		{"collapsed terminators", "Wait... What?! Yes.", []string{"Wait...", "What?!", "Yes."}},
		{"stray terminators", "Hi. ... there", []string{"Hi.", "there"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SplitSentences(tt.text))
		})
	}
}

func TestChunkUnderLimitReturnsInput(t *testing.T) {
	c := New(wordTokenizer{}, 50)
	text := "The quick brown fox jumps. It lands softly! Does it run? Maybe"
	assert.Equal(t, []string{text}, c.Chunk(text))
}

func TestChunkEmptyInput(t *testing.T) {
	c := New(wordTokenizer{}, 10)
	assert.Empty(t, c.Chunk(""))
	assert.Empty(t, c.Chunk("  .  !  ? "))
}

func TestChunkRespectsLimit(t *testing.T) {
	c := New(wordTokenizer{}, 6)
	text := "one two three. four five six. seven eight. nine ten eleven twelve."

	chunks := c.Chunk(text)

	assert.Equal(t, []string{
		"one two three. four five six.",
		"seven eight. nine ten eleven twelve.",
	}, chunks)
	for _, chunk := range chunks {
		assert.LessOrEqual(t, wordTokenizer{}.Count(chunk), 6)
	}
}

func TestChunkOversizeSentenceIsKeptWhole(t *testing.T) {
	c := New(wordTokenizer{}, 3)
	text := "short one. this sentence is far too long for the limit. end."

	chunks := c.Chunk(text)

	require.Len(t, chunks, 3)
	assert.Equal(t, "this sentence is far too long for the limit.", chunks[1])
	assert.Greater(t, wordTokenizer{}.Count(chunks[1]), 3)
}

func TestChunkPreservesSentenceSequence(t *testing.T) {
	c := New(wordTokenizer{}, 7)
	text := "Alpha beta. Gamma delta epsilon! Zeta? Eta theta iota kappa lambda. Mu nu xi omicron pi rho sigma tau. Upsilon."

	chunks := c.Chunk(text)

	var rebuilt []string
	for _, chunk := range chunks {
		rebuilt = append(rebuilt, SplitSentences(chunk)...)
	}
	assert.Equal(t, SplitSentences(text), rebuilt)
	assert.Equal(t, text, strings.Join(chunks, " "))
}

func TestChunkIsDeterministic(t *testing.T) {
	c := New(wordTokenizer{}, 4)
	text := "a b c. d e f. g h. i j k l m. n."
	assert.Equal(t, c.Chunk(text), c.Chunk(text))
}

func TestNewDefaults(t *testing.T) {
	c := New(wordTokenizer{}, 0)
	assert.Equal(t, DefaultMaxTokens, c.MaxTokens())
}
