// Package app provides the core application service for front-end
// bindings. This struct focuses on orchestration; behavior lives in
// the sub-components.
package app

import (
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/snipvault/snipvault/cache"
	"github.com/snipvault/snipvault/capture"
	"github.com/snipvault/snipvault/command"
	"github.com/snipvault/snipvault/config"
	"github.com/snipvault/snipvault/dispatch"
	"github.com/snipvault/snipvault/gateway"
	"github.com/snipvault/snipvault/internal/types"
	"github.com/snipvault/snipvault/llm"
	"github.com/snipvault/snipvault/queue"
	"github.com/snipvault/snipvault/store"
)

// Service wires the pipeline together and exposes its operations to a
// front end.
type Service struct {
	settings   *config.Settings
	queue      *queue.Queue
	store      *store.Store
	cache      *cache.Cache
	gateway    *gateway.Gateway
	dispatcher *dispatch.Dispatcher
	hotkey     *capture.HotkeyWatcher
	runner     *command.Runner
	provider   *llm.Provider

	version string
}

// Options configures Service construction.
type Options struct {
	// BaseDir overrides the storage location; empty selects
	// config.DefaultDir().
	BaseDir string
	// Version is reported by GetVersion (set by the caller).
	Version string
	// Callbacks receive dispatcher events.
	Callbacks dispatch.Callbacks
}

// New builds the full pipeline. The only fatal failure is an unusable
// storage directory; everything else degrades with a log line.
func New(opts Options) (*Service, error) {
	baseDir := opts.BaseDir
	if baseDir == "" {
		dir, err := config.DefaultDir()
		if err != nil {
			return nil, fmt.Errorf("resolve base dir: %w", err)
		}
		baseDir = dir
	}

	settings, err := config.Load(baseDir)
	if err != nil {
		slog.Error("load settings", "error", err)
		settings = config.Defaults(baseDir)
	}

	st, err := store.New(baseDir)
	if err != nil {
		return nil, fmt.Errorf("init store: %w", err)
	}

	s := &Service{
		settings: settings,
		store:    st,
		version:  opts.Version,
	}
	s.setupCache(baseDir)

	provider, err := llm.Select(config.LoadCredentials())
	if err != nil {
		slog.Warn("no provider credentials, transforms will fail fast")
	}
	s.provider = provider

	s.queue = queue.New(settings.QueueCapacity)
	s.gateway = gateway.New(provider, s.cache, s.queue)
	s.runner = command.NewRunner(s.queue)

	s.dispatcher = dispatch.New(dispatch.Config{
		Queue:     s.queue,
		Store:     st,
		Gateway:   s.gateway,
		Template:  settings.PromptTemplate,
		AutoStore: settings.AutoStore,
		Callbacks: opts.Callbacks,
	})

	chord := settings.HotkeyChord
	if len(chord) == 0 {
		chord = capture.DefaultChord
	}
	s.hotkey = capture.NewHotkeyWatcher(chord, capture.SystemReader(), s.queue)

	return s, nil
}

// Start launches the dispatcher loop and the hotkey listener.
func (s *Service) Start() error {
	if err := s.dispatcher.Start(); err != nil {
		return err
	}
	if err := s.hotkey.Start(); err != nil {
		slog.Error("start hotkey", "error", err)
	}
	slog.Info("pipeline started",
		"provider", s.gateway.ProviderName(),
		"items", s.store.Len())
	return nil
}

// Shutdown stops producers, waits for in-flight provider calls,
// drains the queue a final time, and persists settings.
func (s *Service) Shutdown() {
	if err := s.hotkey.Stop(); err != nil && err != capture.ErrNotRunning {
		slog.Error("stop hotkey", "error", err)
	}
	s.gateway.Close()
	s.runner.Close()
	if err := s.dispatcher.Stop(); err != nil && err != dispatch.ErrNotRunning {
		slog.Error("stop dispatcher", "error", err)
	}
	if err := s.settings.Save(); err != nil {
		slog.Error("save settings", "error", err)
	}
	if s.cache != nil {
		if err := s.cache.Close(); err != nil {
			slog.Error("close cache", "error", err)
		}
	}
}

// GetVersion returns the application version.
func (s *Service) GetVersion() string {
	return s.version
}

func (s *Service) setupCache(baseDir string) {
	cachePath := filepath.Join(baseDir, "cache")
	c, err := cache.New(cachePath)
	if err != nil {
		slog.Error("init cache", "error", err)
		return
	}
	s.cache = c
	slog.Info("cache initialized", "path", cachePath)
}

// ─────────────────────────────────────────────────────────────────────────────
// Items
// ─────────────────────────────────────────────────────────────────────────────

// Submit stores text as a new item.
func (s *Service) Submit(text string) (types.Item, error) {
	return s.dispatcher.Submit(text)
}

// Query returns items matching term; an empty term returns everything
// newest-first.
func (s *Service) Query(term string) ([]types.Item, error) {
	return s.store.Search(term)
}

// List returns all item metadata newest-first.
func (s *Service) List() []types.Item {
	return s.store.List()
}

// Get returns the metadata for one item.
func (s *Service) Get(id string) (types.Item, error) {
	return s.store.Get(id)
}

// Load returns an item's full content.
func (s *Service) Load(id string) (string, error) {
	return s.store.Load(id)
}

// Delete removes an item and its content file.
func (s *Service) Delete(id string) error {
	return s.store.Delete(id)
}

// Clear removes every item. Confirmation is the caller's job.
func (s *Service) Clear() error {
	return s.store.Clear()
}

// Export writes all items to a plain-text report and returns its
// path. An empty dir selects the store's exports directory.
func (s *Service) Export(dir string) (string, error) {
	return s.store.Export(dir)
}

// ─────────────────────────────────────────────────────────────────────────────
// Transforms
// ─────────────────────────────────────────────────────────────────────────────

// TransformText routes text through the provider using the active
// prompt template and returns the request id. When persist is set the
// result is stored as an item on success.
func (s *Service) TransformText(text string, persist bool) string {
	return s.dispatcher.RequestTransform(text, persist)
}

// CaptureRegion grabs the screen rectangle spanned by a drag (any
// direction) and routes it through the vision provider.
func (s *Service) CaptureRegion(x1, y1, x2, y2 int, persist bool) string {
	r := capture.Rect{X: x1, Y: y1, Width: x2 - x1, Height: y2 - y1}
	return s.dispatcher.RequestRegionCapture(r, persist)
}

// TransformState reports a request's lifecycle state.
func (s *Service) TransformState(id string) types.TransformState {
	return s.dispatcher.TransformState(id)
}

// Status returns the current status line.
func (s *Service) Status() string {
	return s.dispatcher.Status()
}

// Current returns the working text.
func (s *Service) Current() string {
	return s.dispatcher.Current()
}

// ProviderAvailable reports whether a provider was selected at
// startup.
func (s *Service) ProviderAvailable() bool {
	return s.gateway.Available()
}

// ProviderName returns the selected provider name, or "" when none.
func (s *Service) ProviderName() string {
	return s.gateway.ProviderName()
}

// ─────────────────────────────────────────────────────────────────────────────
// Commands
// ─────────────────────────────────────────────────────────────────────────────

// RunItem executes a stored command item. The outcome arrives as a
// CommandResult message.
func (s *Service) RunItem(id string) error {
	item, err := s.store.Get(id)
	if err != nil {
		return err
	}
	if item.Kind != types.KindCommand {
		return fmt.Errorf("item %s is not a command", id)
	}
	content, err := s.store.Load(id)
	if err != nil {
		return err
	}
	s.runner.Run(content)
	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Settings
// ─────────────────────────────────────────────────────────────────────────────

// SetAutoStore flips the auto-store mode and persists the setting.
func (s *Service) SetAutoStore(on bool) error {
	s.settings.AutoStore = on
	s.dispatcher.SetAutoStore(on)
	return s.settings.Save()
}

// AutoStore reports whether captures are stored on receipt.
func (s *Service) AutoStore() bool {
	return s.dispatcher.AutoStore()
}

// SetPromptTemplate installs a custom template and persists it. Empty
// restores the default.
func (s *Service) SetPromptTemplate(tmpl string) error {
	s.settings.PromptTemplate = tmpl
	s.settings.PresetName = ""
	s.dispatcher.SetPromptTemplate(tmpl)
	return s.settings.Save()
}

// UsePreset activates a named prompt preset.
func (s *Service) UsePreset(name string) error {
	tmpl, ok := gateway.PromptPresets[name]
	if !ok {
		return fmt.Errorf("unknown preset: %s", name)
	}
	s.settings.PromptTemplate = tmpl
	s.settings.PresetName = name
	s.dispatcher.SetPromptTemplate(tmpl)
	return s.settings.Save()
}

// PromptTemplate returns the active template.
func (s *Service) PromptTemplate() string {
	return s.dispatcher.PromptTemplate()
}

// SaveWindowState persists front-end layout passthrough fields.
func (s *Service) SaveWindowState(geometry string, panelExpanded bool) error {
	s.settings.WindowGeometry = geometry
	s.settings.PanelExpanded = panelExpanded
	return s.settings.Save()
}

// WindowState returns the persisted front-end layout fields.
func (s *Service) WindowState() (geometry string, panelExpanded bool) {
	return s.settings.WindowGeometry, s.settings.PanelExpanded
}
