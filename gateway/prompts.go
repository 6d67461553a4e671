package gateway

import "strings"

// DefaultPromptTemplate is applied to text transforms when the user
// has not configured a custom template. {text} is replaced with the
// capture content.
const DefaultPromptTemplate = `Explain this text clearly and concisely:
- What does it do/mean?
- Key points to understand
- Any important warnings or notes

Text to explain:
{text}`

// VisionPrompt asks the vision model to transcribe an image.
const VisionPrompt = "Extract all text from this image. Return only the text content."

// PromptPresets are ready-made templates selectable by name.
var PromptPresets = map[string]string{
	"Explain":   "Explain this clearly:\n{text}",
	"Code":      "Analyze this code:\n- What it does\n- How it works\n- Issues/improvements\n\n{text}",
	"Translate": "Translate to Chinese:\n{text}",
	"Summarize": "Summarize key points:\n{text}",
	"Fix":       "Fix any errors:\n{text}",
}

// RenderPrompt substitutes the capture text into a template.
func RenderPrompt(template, text string) string {
	return strings.ReplaceAll(template, "{text}", text)
}
