// Package dispatch runs the single consumer of the event queue. A
// periodic tick drains pending messages in FIFO order and applies
// them to the store and to the view state the front end reads.
// Transform requests are tracked per request id, so results landing
// out of order still resolve to the right request.
package dispatch

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/snipvault/snipvault/capture"
	"github.com/snipvault/snipvault/gateway"
	snverrors "github.com/snipvault/snipvault/internal/errors"
	"github.com/snipvault/snipvault/internal/types"
	"github.com/snipvault/snipvault/queue"
	"github.com/snipvault/snipvault/store"
)

// DefaultInterval is the wake period of the drain loop.
const DefaultInterval = 100 * time.Millisecond

// statusRevertDelay is how long a transient status stays visible
// before the line reverts to ready.
const statusRevertDelay = 3 * time.Second

// requestRetireDelay is how long a finished transform request stays
// readable through TransformState before its record is dropped and
// the id reads idle again.
const requestRetireDelay = 3 * time.Second

const (
	statusReady = "Ready"
	statusError = "Error occurred"
)

var (
	ErrAlreadyRunning = errors.New("dispatcher already running")
	ErrNotRunning     = errors.New("dispatcher not running")
)

// Callbacks notify the owner of state changes. Nil fields are
// skipped. Callbacks run outside the dispatcher lock and must not
// block.
type Callbacks struct {
	OnCaptured      func(text string)
	OnTransformed   func(text string, kind types.TransformKind)
	OnCommandResult func(output string, success bool)
	OnStatus        func(status string)
	OnError         func(message string)
}

// Grabber captures a screen region as PNG bytes.
type Grabber interface {
	Capture(r capture.Rect) ([]byte, error)
}

// Gateway runs provider requests and reports each terminal result on
// the event queue under the caller's request id.
type Gateway interface {
	TransformText(id, text, template string, persist bool)
	ExtractImage(id string, png []byte, persist bool)
}

// Config assembles a Dispatcher. Queue, Store, and Gateway are
// required; the rest default.
type Config struct {
	Queue     *queue.Queue
	Store     *store.Store
	Gateway   Gateway
	Grabber   Grabber
	Template  string
	Interval  time.Duration
	AutoStore bool
	Callbacks Callbacks
}

// inflightEntry tracks one transform request. doneAt is set when the
// terminal message is consumed; the record retires after
// requestRetireDelay.
type inflightEntry struct {
	state  types.TransformState
	doneAt time.Time
}

// Dispatcher consumes the event queue and owns the mutable session
// state: the current working text, the status line, and the set of
// transform requests awaiting results.
type Dispatcher struct {
	queue   *queue.Queue
	store   *store.Store
	gateway Gateway
	grabber Grabber
	cb      Callbacks

	interval time.Duration

	mu        sync.Mutex
	current   string
	status    string
	revertAt  time.Time
	template  string
	autoStore bool
	inflight  map[string]inflightEntry
	running   bool
	stopc     chan struct{}
	done      chan struct{}
}

// New creates a stopped dispatcher from cfg.
func New(cfg Config) *Dispatcher {
	d := &Dispatcher{
		queue:     cfg.Queue,
		store:     cfg.Store,
		gateway:   cfg.Gateway,
		grabber:   cfg.Grabber,
		cb:        cfg.Callbacks,
		interval:  cfg.Interval,
		template:  cfg.Template,
		autoStore: cfg.AutoStore,
		status:    statusReady,
		inflight:  make(map[string]inflightEntry),
	}
	if d.interval <= 0 {
		d.interval = DefaultInterval
	}
	if d.template == "" {
		d.template = gateway.DefaultPromptTemplate
	}
	if d.grabber == nil {
		d.grabber = &capture.RegionCapturer{}
	}
	return d
}

// Start launches the drain loop.
func (d *Dispatcher) Start() error {
	d.mu.Lock()
	if d.running {
		d.mu.Unlock()
		return ErrAlreadyRunning
	}
	d.running = true
	d.stopc = make(chan struct{})
	d.done = make(chan struct{})
	d.mu.Unlock()

	go d.loop()
	slog.Info("dispatcher started", "interval", d.interval)
	return nil
}

// Stop halts the drain loop and waits for it to exit. The loop drains
// the queue once more on the way out.
func (d *Dispatcher) Stop() error {
	d.mu.Lock()
	if !d.running {
		d.mu.Unlock()
		return ErrNotRunning
	}
	d.running = false
	stopc, done := d.stopc, d.done
	d.mu.Unlock()

	close(stopc)
	<-done
	return nil
}

func (d *Dispatcher) loop() {
	defer close(d.done)
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()
	for {
		select {
		case <-d.stopc:
			// One final drain before exit.
			d.tick()
			return
		case <-ticker.C:
			d.tick()
		}
	}
}

// tick drains the queue, applies every message, then checks whether
// the transient status has aged out and retires finished requests.
func (d *Dispatcher) tick() {
	for _, msg := range d.queue.DrainAll() {
		d.handle(msg)
	}
	d.maybeRevertStatus()
	d.retireFinished()
}

func (d *Dispatcher) handle(msg types.Message) {
	switch m := msg.(type) {
	case types.Captured:
		d.mu.Lock()
		d.current = m.Text
		auto := d.autoStore
		d.mu.Unlock()
		if d.cb.OnCaptured != nil {
			d.cb.OnCaptured(m.Text)
		}
		if auto {
			if _, err := d.store.Create(m.Text); err != nil {
				slog.Error("auto-store capture", "error", err)
				if d.cb.OnError != nil {
					d.cb.OnError(err.Error())
				}
				d.setStatus(statusError)
				return
			}
		}
		n := utf8.RuneCountInString(m.Text)
		d.setStatus(fmt.Sprintf("Captured %d characters", n))
		slog.Info("captured", "chars", n, "stored", auto)

	case types.CommandResult:
		if d.cb.OnCommandResult != nil {
			d.cb.OnCommandResult(m.Output, m.Success)
		}

	case types.Transformed:
		d.mu.Lock()
		d.inflight[m.Meta.RequestID] = inflightEntry{state: types.StateCompleted, doneAt: time.Now()}
		d.current = m.Text
		d.mu.Unlock()
		if d.cb.OnTransformed != nil {
			d.cb.OnTransformed(m.Text, m.SourceKind)
		}
		if m.Meta.Persist {
			if _, err := d.store.Create(m.Text); err != nil {
				slog.Error("store transform result", "request", m.Meta.RequestID, "error", err)
				if d.cb.OnError != nil {
					d.cb.OnError(err.Error())
				}
				d.setStatus(statusError)
				return
			}
		}
		d.setStatus(fmt.Sprintf("Parsed %d characters from %s",
			utf8.RuneCountInString(m.Text), sourceLabel(m)))
		slog.Info("transform complete",
			"request", m.Meta.RequestID,
			"provider", m.Meta.Provider,
			"cached", m.Meta.Usage.CacheHit)

	case types.TransformFailed:
		d.mu.Lock()
		d.inflight[m.RequestID] = inflightEntry{state: types.StateFailed, doneAt: time.Now()}
		d.mu.Unlock()
		if d.cb.OnError != nil {
			d.cb.OnError(m.Message)
		}
		d.setStatus(statusError)
		slog.Warn("transform failed", "request", m.RequestID, "provider", m.Provider, "error", m.Message)

	case types.StatusUpdate:
		d.setStatus(m.Text)

	case types.Error:
		if d.cb.OnError != nil {
			d.cb.OnError(m.Message)
		}
		d.setStatus(statusError)
		slog.Error("pipeline error", "error", m.Message)
	}
}

func sourceLabel(m types.Transformed) string {
	if m.SourceKind == types.TransformExtract {
		return "screenshot"
	}
	if m.Meta.Provider != "" {
		return m.Meta.Provider
	}
	return "provider"
}

// setStatus publishes a transient status that reverts to ready after
// statusRevertDelay.
func (d *Dispatcher) setStatus(text string) {
	d.mu.Lock()
	d.status = text
	d.revertAt = time.Now().Add(statusRevertDelay)
	d.mu.Unlock()
	if d.cb.OnStatus != nil {
		d.cb.OnStatus(text)
	}
}

func (d *Dispatcher) maybeRevertStatus() {
	d.mu.Lock()
	if d.revertAt.IsZero() || time.Now().Before(d.revertAt) {
		d.mu.Unlock()
		return
	}
	d.status = statusReady
	d.revertAt = time.Time{}
	d.mu.Unlock()
	if d.cb.OnStatus != nil {
		d.cb.OnStatus(statusReady)
	}
}

// Submit stores text directly, bypassing the provider. It is the
// explicit "keep this" action.
func (d *Dispatcher) Submit(text string) (types.Item, error) {
	item, err := d.store.Create(text)
	if err != nil {
		return types.Item{}, err
	}
	d.setStatus(fmt.Sprintf("Stored %d characters", item.Length))
	return item, nil
}

// RequestTransform sends text through the active prompt template and
// returns the request id. The result arrives later as a Transformed
// or TransformFailed message carrying the same id. The request is
// registered before the gateway can deliver, so a terminal message is
// never consumed for an unknown id.
func (d *Dispatcher) RequestTransform(text string, persist bool) string {
	id := uuid.NewString()

	d.mu.Lock()
	tmpl := d.template
	d.inflight[id] = inflightEntry{state: types.StateRequested}
	d.mu.Unlock()

	d.gateway.TransformText(id, text, tmpl, persist)
	d.markInFlight(id)
	return id
}

// RequestRegionCapture grabs a screen region and, on success, routes
// the image through the vision provider under the returned request
// id. Grabbing runs on its own goroutine. A selection below the
// minimum size or a concurrent capture surfaces as a status line, not
// an error.
func (d *Dispatcher) RequestRegionCapture(r capture.Rect, persist bool) string {
	id := uuid.NewString()
	go func() {
		png, err := d.grabber.Capture(r)
		if err != nil {
			d.reportCaptureError(err)
			return
		}
		d.mu.Lock()
		d.inflight[id] = inflightEntry{state: types.StateRequested}
		d.mu.Unlock()

		d.gateway.ExtractImage(id, png, persist)
		d.markInFlight(id)
	}()
	return id
}

// markInFlight upgrades a request from requested to in-flight unless
// its terminal message already landed.
func (d *Dispatcher) markInFlight(id string) {
	d.mu.Lock()
	if e := d.inflight[id]; e.state == types.StateRequested {
		e.state = types.StateInFlight
		d.inflight[id] = e
	}
	d.mu.Unlock()
}

// retireFinished drops request records whose terminal message was
// consumed at least requestRetireDelay ago.
func (d *Dispatcher) retireFinished() {
	d.mu.Lock()
	defer d.mu.Unlock()
	now := time.Now()
	for id, e := range d.inflight {
		if !e.doneAt.IsZero() && now.Sub(e.doneAt) >= requestRetireDelay {
			delete(d.inflight, id)
		}
	}
}

func (d *Dispatcher) reportCaptureError(err error) {
	var msg types.Message
	switch {
	case snverrors.Is(err, snverrors.ErrCaptureTooSmall):
		msg = types.StatusUpdate{Text: "Selection too small"}
	case errors.Is(err, capture.ErrBusy):
		msg = types.StatusUpdate{Text: "Capture already in progress"}
	default:
		msg = types.Error{Message: err.Error()}
	}
	if qErr := d.queue.Enqueue(msg); qErr != nil {
		slog.Warn("enqueue capture result", "error", qErr)
	}
}

// Status returns the current status line.
func (d *Dispatcher) Status() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.status
}

// Current returns the working text: the most recent capture or
// transform result.
func (d *Dispatcher) Current() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.current
}

// TransformState reports where a request is in its lifecycle. Unknown
// ids read as idle; a finished request reads completed or failed until
// its record retires, after which it reads idle again.
func (d *Dispatcher) TransformState(id string) types.TransformState {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.inflight[id].state
}

// SetAutoStore toggles immediate persistence of captured clipboard
// text. Off by default; storing is otherwise an explicit action.
func (d *Dispatcher) SetAutoStore(on bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.autoStore = on
}

// AutoStore reports whether captures are persisted on receipt.
func (d *Dispatcher) AutoStore() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.autoStore
}

// SetPromptTemplate swaps the template used by subsequent transform
// requests. An empty template restores the default.
func (d *Dispatcher) SetPromptTemplate(tmpl string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if tmpl == "" {
		tmpl = gateway.DefaultPromptTemplate
	}
	d.template = tmpl
}

// PromptTemplate returns the active template.
func (d *Dispatcher) PromptTemplate() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.template
}
