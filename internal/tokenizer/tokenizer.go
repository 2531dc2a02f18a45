// Package tokenizer counts tokens the same way for chunking and reporting.
package tokenizer

import (
	"fmt"
	"regexp"
	"sync"

	"github.com/pkoukk/tiktoken-go"
	"github.com/rs/zerolog/log"
)

const DefaultEncoding = "cl100k_base"

// Tokenizer returns a reproducible token count for a piece of text.
type Tokenizer interface {
	Count(text string) int
}

type Tiktoken struct {
	enc *tiktoken.Tiktoken
}

// NewTiktoken loads a BPE encoding. The first load may fetch the ranks file.
func NewTiktoken(encoding string) (*Tiktoken, error) {
	enc, err := tiktoken.GetEncoding(encoding)
	if err != nil {
		return nil, fmt.Errorf("failed to load encoding %s: %w", encoding, err)
	}
	return &Tiktoken{enc: enc}, nil
}

func (t *Tiktoken) Count(text string) int {
	return len(t.enc.Encode(text, nil, nil))
}

var approxTokenRe = regexp.MustCompile(`[\p{L}\p{N}_]+|[^\p{L}\p{N}_\s]`)

// Approx counts words and punctuation marks. Used when no BPE encoding is available.
type Approx struct{}

func (Approx) Count(text string) int {
	return len(approxTokenRe.FindAllStringIndex(text, -1))
}

var (
	defaultOnce sync.Once
	defaultTok  Tokenizer
)

// Default returns the cl100k_base tokenizer, or Approx when it cannot be loaded.
func Default() Tokenizer {
	defaultOnce.Do(func() {
		tok, err := NewTiktoken(DefaultEncoding)
		if err != nil {
			log.Warn().Err(err).Msg("Falling back to approximate token counting")
			defaultTok = Approx{}
			return
		}
		defaultTok = tok
	})
	return defaultTok
}
