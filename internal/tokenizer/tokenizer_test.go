package tokenizer

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestApproxCount(t *testing.T) {
	tests := []struct {
		name string
		text string
		want int
	}{
		{"empty", "", 0},
		{"whitespace", "   \t\n", 0},
		{"words", "hello brave new world", 4},
		{"punctuation", "Hello, world!", 4},
		{"unicode", "crème brûlée", 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Approx{}.Count(tt.text))
		})
	}
}

func TestApproxIsDeterministic(t *testing.T) {
	text := "The same input always yields the same count."
	assert.Equal(t, Approx{}.Count(text), Approx{}.Count(text))
}
