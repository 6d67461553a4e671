// Package llm provides HTTP clients for LLM API calls.
package llm

import (
	"context"
	"net/http"

	"github.com/snipvault/snipvault/internal/types"
)

// Message represents a chat message. Image, when set, holds raw PNG
// bytes; each completer encodes it in its provider's wire format.
type Message struct {
	Role    string
	Content string
	Image   []byte
}

// Options configures LLM completion behavior.
type Options struct {
	MaxTokens   int
	Temperature float64
}

// Completer performs chat completions.
type Completer interface {
	Complete(ctx context.Context, messages []Message) (string, types.Usage, error)
}

// completerConfig holds all parameters needed by completers.
type completerConfig struct {
	http        *http.Client
	apiKey      string
	baseURL     string
	model       string
	maxTokens   int
	temperature float64
}

// NewCompleter creates a Completer for the given provider type.
func NewCompleter(apiType, apiKey, baseURL, model string, opts Options) Completer {
	cfg := completerConfig{
		http:        &http.Client{},
		apiKey:      apiKey,
		baseURL:     baseURL,
		model:       model,
		maxTokens:   opts.MaxTokens,
		temperature: opts.Temperature,
	}

	switch apiType {
	case "gemini":
		return &geminiCompleter{cfg: cfg}
	case "claude":
		return &claudeCompleter{cfg: cfg}
	default:
		// Default to OpenAI format
		return &openaiCompleter{cfg: cfg}
	}
}
