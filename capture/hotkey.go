package capture

import (
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	hook "github.com/robotn/gohook"

	"github.com/snipvault/snipvault/internal/types"
)

// settleDelay gives the source application time to finish writing the
// clipboard after the chord fires.
const settleDelay = 100 * time.Millisecond

// DefaultChord is the capture hotkey when none is configured.
var DefaultChord = []string{"ctrl", "shift", "c"}

var (
	// ErrAlreadyRunning is returned by Start on a running watcher.
	ErrAlreadyRunning = errors.New("hotkey watcher already running")
	// ErrNotRunning is returned by Stop on a stopped watcher.
	ErrNotRunning = errors.New("hotkey watcher not running")
)

// Sink receives capture messages.
type Sink interface {
	Enqueue(msg types.Message) error
}

// HotkeyWatcher listens for a global key chord and snapshots the
// clipboard when it fires. Consecutive identical captures are
// dropped.
type HotkeyWatcher struct {
	chord  []string
	reader Reader
	sink   Sink

	mu      sync.Mutex
	running bool
	done    chan struct{}

	lastMu   sync.Mutex
	lastText string
}

// NewHotkeyWatcher creates a watcher for the given chord. An empty
// chord falls back to DefaultChord.
func NewHotkeyWatcher(chord []string, reader Reader, sink Sink) *HotkeyWatcher {
	if len(chord) == 0 {
		chord = DefaultChord
	}
	return &HotkeyWatcher{
		chord:  chord,
		reader: reader,
		sink:   sink,
	}
}

// Start registers the chord and begins listening. The OS event loop
// runs on its own goroutine until Stop.
func (w *HotkeyWatcher) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.running {
		return ErrAlreadyRunning
	}
	w.running = true
	w.done = make(chan struct{})

	hook.Register(hook.KeyDown, w.chord, func(e hook.Event) {
		// The callback runs on the listener thread; never block it.
		go w.capture()
	})

	go func() {
		defer close(w.done)
		events := hook.Start()
		<-hook.Process(events)
	}()

	slog.Info("hotkey registered", "chord", strings.Join(w.chord, "+"))
	return nil
}

// Stop ends the OS event loop and waits for it to exit.
func (w *HotkeyWatcher) Stop() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.running {
		return ErrNotRunning
	}
	w.running = false

	hook.End()
	<-w.done
	return nil
}

// capture reads the clipboard after the settle delay and enqueues the
// trimmed text unless it repeats the previous capture.
func (w *HotkeyWatcher) capture() {
	time.Sleep(settleDelay)

	text, err := w.reader.ReadAll()
	if err != nil {
		slog.Warn("read clipboard", "error", err)
		return
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return
	}

	w.lastMu.Lock()
	if text == w.lastText {
		w.lastMu.Unlock()
		return
	}
	w.lastText = text
	w.lastMu.Unlock()

	if err := w.sink.Enqueue(types.Captured{Text: text}); err != nil {
		slog.Warn("enqueue capture", "error", err)
	}
}
