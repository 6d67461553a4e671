package llm

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/snipvault/snipvault/internal/types"
)

const defaultGeminiBaseURL = "https://generativelanguage.googleapis.com/v1beta/models"

// geminiCompleter implements Completer for Gemini API.
type geminiCompleter struct {
	cfg completerConfig
}

// Gemini request/response types
type geminiRequest struct {
	Contents          []geminiContent   `json:"contents"`
	GenerationConfig  geminiConfig      `json:"generationConfig,omitempty"`
	SystemInstruction *geminiSystemInst `json:"systemInstruction,omitempty"`
}

type geminiContent struct {
	Role  string       `json:"role"`
	Parts []geminiPart `json:"parts"`
}

// Each part carries exactly one of Text or InlineData.
type geminiPart struct {
	Text       string            `json:"text,omitempty"`
	InlineData *geminiInlineData `json:"inline_data,omitempty"`
}

type geminiInlineData struct {
	MimeType string `json:"mime_type"`
	Data     string `json:"data"`
}

type geminiConfig struct {
	MaxOutputTokens int     `json:"maxOutputTokens,omitempty"`
	Temperature     float64 `json:"temperature,omitempty"`
}

type geminiSystemInst struct {
	Parts []geminiPart `json:"parts"`
}

type geminiResponse struct {
	Candidates    []geminiCandidate `json:"candidates"`
	UsageMetadata *geminiUsage      `json:"usageMetadata,omitempty"`
	Error         *geminiError      `json:"error,omitempty"`
}

type geminiCandidate struct {
	Content geminiContent `json:"content"`
}

type geminiUsage struct {
	PromptTokenCount     int `json:"promptTokenCount"`
	CandidatesTokenCount int `json:"candidatesTokenCount"`
	TotalTokenCount      int `json:"totalTokenCount"`
}

type geminiError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// buildRequest constructs the Gemini API request body from messages.
func (c *geminiCompleter) buildRequest(messages []Message) geminiRequest {
	var contents []geminiContent
	var systemPrompt string

	for _, msg := range messages {
		if msg.Role == "system" {
			systemPrompt += msg.Content + "\n"
			continue
		}

		role := "user"
		if msg.Role == "assistant" {
			role = "model"
		}

		parts := []geminiPart{{Text: msg.Content}}
		if msg.Image != nil {
			parts = append(parts, geminiPart{
				InlineData: &geminiInlineData{
					MimeType: "image/png",
					Data:     base64.StdEncoding.EncodeToString(msg.Image),
				},
			})
		}

		contents = append(contents, geminiContent{
			Role:  role,
			Parts: parts,
		})
	}

	req := geminiRequest{
		Contents: contents,
		GenerationConfig: geminiConfig{
			MaxOutputTokens: c.cfg.maxTokens,
			Temperature:     c.cfg.temperature,
		},
	}

	if systemPrompt != "" {
		req.SystemInstruction = &geminiSystemInst{
			Parts: []geminiPart{{Text: systemPrompt}},
		}
	}

	return req
}

// baseURL returns the configured or default base URL.
func (c *geminiCompleter) baseURL() string {
	if c.cfg.baseURL != "" {
		return c.cfg.baseURL
	}
	return defaultGeminiBaseURL
}

func (c *geminiCompleter) Complete(ctx context.Context, messages []Message) (string, types.Usage, error) {
	reqBody := c.buildRequest(messages)

	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		return "", types.Usage{}, fmt.Errorf("marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/%s:generateContent?key=%s", c.baseURL(), c.cfg.model, c.cfg.apiKey)

	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewBuffer(jsonBody))
	if err != nil {
		return "", types.Usage{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.cfg.http.Do(req)
	if err != nil {
		return "", types.Usage{}, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", types.Usage{}, fmt.Errorf("read response: %w", err)
	}

	var geminiResp geminiResponse
	if err := json.Unmarshal(body, &geminiResp); err != nil {
		return "", types.Usage{}, fmt.Errorf("unmarshal response: %w", err)
	}

	if geminiResp.Error != nil {
		return "", types.Usage{}, fmt.Errorf("api error: %d - %s", geminiResp.Error.Code, geminiResp.Error.Message)
	}

	if len(geminiResp.Candidates) == 0 || len(geminiResp.Candidates[0].Content.Parts) == 0 {
		return "", types.Usage{}, fmt.Errorf("no candidates returned")
	}

	return geminiResp.Candidates[0].Content.Parts[0].Text, geminiToUsage(geminiResp.UsageMetadata), nil
}

// geminiToUsage converts Gemini usage metadata to types.Usage.
func geminiToUsage(u *geminiUsage) types.Usage {
	if u == nil {
		return types.Usage{}
	}
	return types.Usage{
		PromptTokens:     u.PromptTokenCount,
		CompletionTokens: u.CandidatesTokenCount,
		TotalTokens:      u.TotalTokenCount,
	}
}
