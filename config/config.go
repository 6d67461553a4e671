// Package config handles application settings and credentials.
package config

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"

	"github.com/snipvault/snipvault/llm"
)

const (
	appName          = "snipvault"
	settingsFileName = "settings.json"
)

// Settings is the persisted application state. Zero values defer to
// each component's own default (template, chord, queue capacity).
type Settings struct {
	PromptTemplate string   `json:"prompt_template,omitempty"`
	PresetName     string   `json:"preset_name,omitempty"`
	AutoStore      bool     `json:"auto_store"`
	HotkeyChord    []string `json:"hotkey_chord,omitempty"`
	QueueCapacity  int      `json:"queue_capacity,omitempty"`

	// Front-end passthrough. Persisted for the window layer; the
	// pipeline never interprets them.
	WindowGeometry string `json:"window_geometry,omitempty"`
	PanelExpanded  bool   `json:"panel_expanded"`

	dir string
}

// DefaultDir returns the per-user base directory holding settings,
// the item store, and the response cache.
func DefaultDir() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("get user config dir: %w", err)
	}
	return filepath.Join(dir, appName), nil
}

// Load reads settings from baseDir. A missing or unparseable file
// yields defaults; only an unreadable file is an error.
func Load(baseDir string) (*Settings, error) {
	path := filepath.Join(baseDir, settingsFileName)

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Defaults(baseDir), nil
		}
		return nil, fmt.Errorf("read settings: %w", err)
	}

	s := Defaults(baseDir)
	if err := json.Unmarshal(data, s); err != nil {
		slog.Warn("settings file corrupt, using defaults", "path", path, "error", err)
		return Defaults(baseDir), nil
	}
	return s, nil
}

// Save persists the settings to disk.
func (s *Settings) Save() error {
	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return fmt.Errorf("create settings dir: %w", err)
	}

	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}

	if err := os.WriteFile(filepath.Join(s.dir, settingsFileName), data, 0644); err != nil {
		return fmt.Errorf("write settings: %w", err)
	}
	return nil
}

// Dir returns the base directory these settings were loaded from.
func (s *Settings) Dir() string {
	return s.dir
}

// Defaults returns fresh default settings bound to baseDir.
func Defaults(baseDir string) *Settings {
	return &Settings{dir: baseDir}
}

// LoadCredentials resolves provider API keys from the environment.
// A .env file in the working directory is folded in first when
// present; real environment variables take precedence.
func LoadCredentials() llm.Credentials {
	_ = godotenv.Load()

	return llm.Credentials{
		Claude: envFirst("ANTHROPIC_API_KEY", "CLAUDE_API_KEY"),
		OpenAI: envFirst("OPENAI_API_KEY", "OPENAI_KEY"),
		Gemini: envFirst("GOOGLE_API_KEY", "GEMINI_API_KEY"),
	}
}

func envFirst(keys ...string) string {
	for _, key := range keys {
		if v := os.Getenv(key); v != "" {
			return v
		}
	}
	return ""
}
