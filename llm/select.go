package llm

import (
	snverrors "github.com/snipvault/snipvault/internal/errors"
)

// Default models per provider. Vision models are used for image
// extraction requests.
const (
	claudeModel       = "claude-3-5-sonnet-20241022"
	claudeVisionModel = "claude-3-5-sonnet-20241022"
	openaiModel       = "gpt-3.5-turbo"
	openaiVisionModel = "gpt-4-vision-preview"
	geminiModel       = "gemini-pro"
	geminiVisionModel = "gemini-pro-vision"
)

// Credentials holds the API keys available at startup, already
// resolved from the environment.
type Credentials struct {
	Claude string
	OpenAI string
	Gemini string
}

// Provider identifies the selected backend and its models. BaseURL
// overrides the provider's API endpoint when set.
type Provider struct {
	Name        string
	APIKey      string
	BaseURL     string
	Model       string
	VisionModel string
}

// Select picks the provider by fixed priority: claude, then openai,
// then gemini. Selection happens once at startup; keys added to the
// environment later are not picked up.
func Select(creds Credentials) (*Provider, error) {
	switch {
	case creds.Claude != "":
		return &Provider{
			Name:        "claude",
			APIKey:      creds.Claude,
			Model:       claudeModel,
			VisionModel: claudeVisionModel,
		}, nil
	case creds.OpenAI != "":
		return &Provider{
			Name:        "openai",
			APIKey:      creds.OpenAI,
			Model:       openaiModel,
			VisionModel: openaiVisionModel,
		}, nil
	case creds.Gemini != "":
		return &Provider{
			Name:        "gemini",
			APIKey:      creds.Gemini,
			Model:       geminiModel,
			VisionModel: geminiVisionModel,
		}, nil
	default:
		return nil, snverrors.NewProviderUnavailable()
	}
}

// Completer returns a text completer for the provider.
func (p *Provider) Completer(opts Options) Completer {
	return NewCompleter(p.Name, p.APIKey, p.BaseURL, p.Model, opts)
}

// VisionCompleter returns a completer using the provider's vision model.
func (p *Provider) VisionCompleter(opts Options) Completer {
	return NewCompleter(p.Name, p.APIKey, p.BaseURL, p.VisionModel, opts)
}
