package llm

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

// TokenCounter estimates prompt size for a model input.
type TokenCounter interface {
	Count(text string) int
}

type tiktokenCounter struct {
	once sync.Once
	enc  *tiktoken.Tiktoken
}

var sharedCounter = &tiktokenCounter{}

// DefaultTokenCounter returns a cl100k_base counter. The encoding is loaded on
// first use; when it cannot be loaded the count falls back to len/4.
func DefaultTokenCounter() TokenCounter {
	return sharedCounter
}

func (t *tiktokenCounter) Count(text string) int {
	t.once.Do(func() {
		enc, err := tiktoken.GetEncoding("cl100k_base")
		if err == nil {
			t.enc = enc
		}
	})
	if t.enc == nil {
		return approximateTokens(text)
	}
	return len(t.enc.Encode(text, nil, nil))
}

// ApproxCounter counts roughly four characters per token without loading an encoding.
type ApproxCounter struct{}

func (ApproxCounter) Count(text string) int { return approximateTokens(text) }

func approximateTokens(text string) int {
	if text == "" {
		return 0
	}
	return (len(text) + 3) / 4
}

// CountTokens estimates tokens for text using the configured counter.
func (c *Client) CountTokens(text string) int {
	if c == nil || c.tokens == nil {
		return approximateTokens(text)
	}
	return c.tokens.Count(text)
}
