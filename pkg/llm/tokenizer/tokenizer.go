// Package tokenizer counts tokens for prompt budgeting.
package tokenizer

import (
	"fmt"

	"github.com/pkoukk/tiktoken-go"
)

// DefaultEncoding is the encoding used by the GPT-4 family.
const DefaultEncoding = "cl100k_base"

// Tokenizer counts tokens with a tiktoken encoding.
//
// A nil *Tokenizer is usable and falls back to Estimate, so callers can keep
// going when the encoding cannot be loaded.
type Tokenizer struct {
	enc *tiktoken.Tiktoken
}

// New loads the default encoding.
func New() (*Tokenizer, error) {
	enc, err := tiktoken.GetEncoding(DefaultEncoding)
	if err != nil {
		return nil, fmt.Errorf("failed to load %s encoding: %w", DefaultEncoding, err)
	}
	return &Tokenizer{enc: enc}, nil
}

// CountTokens returns the number of tokens in text.
func (t *Tokenizer) CountTokens(text string) int {
	if t == nil || t.enc == nil {
		return Estimate(text)
	}
	return len(t.enc.Encode(text, nil, nil))
}

// Estimate approximates a token count at four bytes per token.
func Estimate(text string) int {
	return (len(text) + 3) / 4
}
