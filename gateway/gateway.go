// Package gateway runs transform requests against the selected LLM
// provider, delivering exactly one terminal message per request to
// the event queue.
package gateway

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/snipvault/snipvault/cache"
	snverrors "github.com/snipvault/snipvault/internal/errors"
	"github.com/snipvault/snipvault/internal/types"
	"github.com/snipvault/snipvault/llm"
)

// requestTimeout bounds a single provider call.
const requestTimeout = 60 * time.Second

// Sink receives terminal messages for completed requests.
type Sink interface {
	Enqueue(msg types.Message) error
}

// Gateway fans transform requests out to worker goroutines. The
// provider is fixed at construction; requests made with no provider
// fail immediately. Requests are never retried.
type Gateway struct {
	provider    *llm.Provider
	transformer *Transformer
	sink        Sink

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	maxTokens int

	// Overridable in tests to avoid real HTTP.
	textC   llm.Completer
	visionC llm.Completer
}

// New creates a gateway. provider and c may be nil; a nil cache
// disables caching and a nil provider fails every request.
func New(provider *llm.Provider, c *cache.Cache, sink Sink) *Gateway {
	ctx, cancel := context.WithCancel(context.Background())
	return &Gateway{
		provider:    provider,
		transformer: NewTransformer(c),
		sink:        sink,
		ctx:         ctx,
		cancel:      cancel,
		maxTokens:   types.DefaultMaxTokens,
	}
}

// Available reports whether a provider was selected at startup.
func (g *Gateway) Available() bool {
	return g.provider != nil
}

// ProviderName returns the selected provider name, or "" when none.
func (g *Gateway) ProviderName() string {
	if g.provider == nil {
		return ""
	}
	return g.provider.Name
}

// TransformText renders the template over text and submits the result
// to the provider. The caller supplies the request id; the terminal
// Transformed or TransformFailed message carries the same id so the
// caller can key the result back to its request.
func (g *Gateway) TransformText(id, text, template string, persist bool) {
	prompt := RenderPrompt(template, text)

	g.wg.Add(1)
	go func() {
		defer g.wg.Done()
		g.runText(id, prompt, persist)
	}()
}

// ExtractImage submits a PNG to the provider's vision model.
func (g *Gateway) ExtractImage(id string, png []byte, persist bool) {
	g.wg.Add(1)
	go func() {
		defer g.wg.Done()
		g.runImage(id, png, persist)
	}()
}

// Close cancels in-flight requests and waits for workers to finish.
func (g *Gateway) Close() {
	g.cancel()
	g.wg.Wait()
}

func (g *Gateway) runText(id, prompt string, persist bool) {
	p := g.provider
	if p == nil {
		g.fail(id, "", snverrors.NewProviderUnavailable())
		return
	}

	ctx, cancel := context.WithTimeout(g.ctx, requestTimeout)
	defer cancel()

	completer := g.textC
	if completer == nil {
		completer = p.Completer(llm.Options{MaxTokens: g.maxTokens})
	}

	text, usage, err := g.transformer.Text(ctx, completer, Profile{Name: p.Name, Model: p.Model}, prompt)
	if err != nil {
		g.fail(id, p.Name, snverrors.NewProviderRequest(p.Name, err))
		return
	}

	g.done(id, types.TransformExplain, text, p.Model, usage, persist)
}

func (g *Gateway) runImage(id string, png []byte, persist bool) {
	p := g.provider
	if p == nil {
		g.fail(id, "", snverrors.NewProviderUnavailable())
		return
	}

	ctx, cancel := context.WithTimeout(g.ctx, requestTimeout)
	defer cancel()

	completer := g.visionC
	if completer == nil {
		completer = p.VisionCompleter(llm.Options{MaxTokens: g.maxTokens})
	}

	text, usage, err := g.transformer.Image(ctx, completer, Profile{Name: p.Name, Model: p.VisionModel}, png)
	if err != nil {
		g.fail(id, p.Name, snverrors.NewProviderRequest(p.Name, err))
		return
	}

	g.done(id, types.TransformExtract, text, p.VisionModel, usage, persist)
}

func (g *Gateway) done(id string, kind types.TransformKind, text, model string, usage types.Usage, persist bool) {
	msg := types.Transformed{
		Text:       text,
		SourceKind: kind,
		Meta: types.TransformMeta{
			RequestID: id,
			Provider:  g.provider.Name,
			Model:     model,
			Usage:     usage,
			Persist:   persist,
		},
	}
	if err := g.sink.Enqueue(msg); err != nil {
		slog.Warn("enqueue transform result", "request", id, "error", err)
	}
}

func (g *Gateway) fail(id, provider string, err error) {
	msg := types.TransformFailed{
		RequestID: id,
		Provider:  provider,
		Message:   err.Error(),
	}
	if qerr := g.sink.Enqueue(msg); qerr != nil {
		slog.Warn("enqueue transform failure", "request", id, "error", qerr)
	}
}
