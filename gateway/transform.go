package gateway

import (
	"context"
	"fmt"
	"time"

	"github.com/snipvault/snipvault/cache"
	"github.com/snipvault/snipvault/internal/types"
	"github.com/snipvault/snipvault/llm"
)

// Profile holds the minimal provider identity needed for cache keys.
type Profile struct {
	Name  string
	Model string
}

// Transformer encapsulates provider calls with caching.
// Zero value is not useful; create via NewTransformer.
type Transformer struct {
	cache *cache.Cache
}

// NewTransformer creates a Transformer with optional caching.
// A nil cache disables caching.
func NewTransformer(c *cache.Cache) *Transformer {
	return &Transformer{cache: c}
}

// Text runs a rendered prompt through the given completer, with cache
// lookup.
func (t *Transformer) Text(ctx context.Context, completer llm.Completer, profile Profile, prompt string) (string, types.Usage, error) {
	key := cache.GenerateKey(profile.Name, profile.Model, prompt)

	if text, usage, ok := t.getCached(key); ok {
		return text, usage, nil
	}

	text, usage, err := completer.Complete(ctx, []llm.Message{
		{Role: "user", Content: prompt},
	})
	if err != nil {
		return "", types.Usage{}, fmt.Errorf("transform text: %w", err)
	}

	t.setCache(key, text, usage)

	return text, usage, nil
}

// Image asks the given completer for the text content of a PNG.
func (t *Transformer) Image(ctx context.Context, completer llm.Completer, profile Profile, png []byte) (string, types.Usage, error) {
	key := cache.GenerateKey(profile.Name, profile.Model, VisionPrompt, string(png))

	if text, usage, ok := t.getCached(key); ok {
		return text, usage, nil
	}

	text, usage, err := completer.Complete(ctx, []llm.Message{
		{Role: "user", Content: VisionPrompt, Image: png},
	})
	if err != nil {
		return "", types.Usage{}, fmt.Errorf("extract image: %w", err)
	}

	t.setCache(key, text, usage)

	return text, usage, nil
}

func (t *Transformer) getCached(key string) (string, types.Usage, bool) {
	if t.cache == nil {
		return "", types.Usage{}, false
	}

	entry, found := t.cache.Get(key)
	if !found {
		return "", types.Usage{}, false
	}

	return entry.Text, types.Usage{
		PromptTokens:     entry.Usage.PromptTokens,
		CompletionTokens: entry.Usage.CompletionTokens,
		TotalTokens:      entry.Usage.TotalTokens,
		CacheHit:         true,
	}, true
}

func (t *Transformer) setCache(key, text string, usage types.Usage) {
	if t.cache == nil {
		return
	}

	entry := &cache.Entry{
		Text: text,
		Usage: cache.Usage{
			PromptTokens:     usage.PromptTokens,
			CompletionTokens: usage.CompletionTokens,
			TotalTokens:      usage.TotalTokens,
		},
		CreatedAt: time.Now(),
	}

	// Ignore error - caching is best effort
	_ = t.cache.Set(key, entry, cache.DefaultTTL)
}
