// Package tokenizer counts tokens for budgeting prompts and usage accounting.
package tokenizer

import (
	"fmt"

	"github.com/pkoukk/tiktoken-go"
)

const defaultEncoding = "cl100k_base"

// Counter counts tokens using a tiktoken encoding.
type Counter struct {
	encoding *tiktoken.Tiktoken
}

// New creates a Counter. Empty encoding falls back to cl100k_base.
func New(encoding string) (*Counter, error) {
	if encoding == "" {
		encoding = defaultEncoding
	}
	enc, err := tiktoken.GetEncoding(encoding)
	if err != nil {
		return nil, fmt.Errorf("get encoding %s: %w", encoding, err)
	}
	return &Counter{encoding: enc}, nil
}

// Count returns the number of tokens in text.
func (c *Counter) Count(text string) int {
	if text == "" {
		return 0
	}
	return len(c.encoding.Encode(text, nil, nil))
}

// CountAll sums token counts over multiple texts.
func (c *Counter) CountAll(texts ...string) int {
	total := 0
	for _, t := range texts {
		total += c.Count(t)
	}
	return total
}
