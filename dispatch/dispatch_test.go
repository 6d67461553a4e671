package dispatch

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/snipvault/snipvault/capture"
	"github.com/snipvault/snipvault/gateway"
	"github.com/snipvault/snipvault/internal/types"
	"github.com/snipvault/snipvault/queue"
	"github.com/snipvault/snipvault/store"
)

// fakeGateway resolves every request synchronously by enqueueing its
// terminal message, so tests control exactly when results land.
type fakeGateway struct {
	q      *queue.Queue
	result string
	errMsg string

	mu      sync.Mutex
	prompts []string
	images  [][]byte
}

func (f *fakeGateway) TransformText(id, text, template string, persist bool) {
	f.mu.Lock()
	f.prompts = append(f.prompts, gateway.RenderPrompt(template, text))
	f.mu.Unlock()
	f.finish(id, types.TransformExplain, persist)
}

func (f *fakeGateway) ExtractImage(id string, png []byte, persist bool) {
	f.mu.Lock()
	f.images = append(f.images, png)
	f.mu.Unlock()
	f.finish(id, types.TransformExtract, persist)
}

func (f *fakeGateway) finish(id string, kind types.TransformKind, persist bool) {
	var msg types.Message
	if f.errMsg != "" {
		msg = types.TransformFailed{RequestID: id, Provider: "claude", Message: f.errMsg}
	} else {
		msg = types.Transformed{
			Text:       f.result,
			SourceKind: kind,
			Meta: types.TransformMeta{
				RequestID: id,
				Provider:  "claude",
				Model:     "claude-3-5-sonnet-20241022",
				Persist:   persist,
			},
		}
	}
	if err := f.q.Enqueue(msg); err != nil {
		panic(err)
	}
}

func (f *fakeGateway) renderedPrompts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.prompts...)
}

func (f *fakeGateway) capturedImages() [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]byte(nil), f.images...)
}

type fakeGrabber struct {
	png []byte
	err error
}

func (g *fakeGrabber) Capture(capture.Rect) ([]byte, error) {
	if g.err != nil {
		return nil, g.err
	}
	return g.png, nil
}

// recorder collects callback invocations.
type recorder struct {
	mu          sync.Mutex
	captured    []string
	transformed []string
	kinds       []types.TransformKind
	commands    []string
	statuses    []string
	errs        []string
}

func (r *recorder) callbacks() Callbacks {
	return Callbacks{
		OnCaptured: func(text string) {
			r.mu.Lock()
			r.captured = append(r.captured, text)
			r.mu.Unlock()
		},
		OnTransformed: func(text string, kind types.TransformKind) {
			r.mu.Lock()
			r.transformed = append(r.transformed, text)
			r.kinds = append(r.kinds, kind)
			r.mu.Unlock()
		},
		OnCommandResult: func(output string, success bool) {
			r.mu.Lock()
			r.commands = append(r.commands, fmt.Sprintf("%s:%t", output, success))
			r.mu.Unlock()
		},
		OnStatus: func(status string) {
			r.mu.Lock()
			r.statuses = append(r.statuses, status)
			r.mu.Unlock()
		},
		OnError: func(message string) {
			r.mu.Lock()
			r.errs = append(r.errs, message)
			r.mu.Unlock()
		},
	}
}

func (r *recorder) allErrors() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.errs...)
}

func (r *recorder) allStatuses() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.statuses...)
}

func (r *recorder) allTransformed() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.transformed...)
}

func (r *recorder) allCaptured() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.captured...)
}

func (r *recorder) allCommands() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.commands...)
}

func (r *recorder) allKinds() []types.TransformKind {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]types.TransformKind(nil), r.kinds...)
}

// newTestDispatcher builds a dispatcher over a real queue and store.
// Tests drive tick() directly; the interval only matters when Start
// is called.
func newTestDispatcher(t *testing.T, fg *fakeGateway, grab Grabber) (*Dispatcher, *queue.Queue, *store.Store, *recorder) {
	t.Helper()
	q := queue.New(0)
	if fg != nil {
		fg.q = q
	}
	s, err := store.New(t.TempDir())
	if err != nil {
		t.Fatalf("store.New: %v", err)
	}
	rec := &recorder{}
	d := New(Config{
		Queue:     q,
		Store:     s,
		Gateway:   fg,
		Grabber:   grab,
		Interval:  time.Hour,
		Callbacks: rec.callbacks(),
	})
	return d, q, s, rec
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("timed out waiting for " + what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestCapturedUpdatesCurrentAndStatus(t *testing.T) {
	d, q, _, rec := newTestDispatcher(t, &fakeGateway{}, nil)

	if err := q.Enqueue(types.Captured{Text: "héllo"}); err != nil {
		t.Fatal(err)
	}
	d.tick()

	if got := d.Current(); got != "héllo" {
		t.Errorf("Current() = %q", got)
	}
	if got := d.Status(); got != "Captured 5 characters" {
		t.Errorf("Status() = %q", got)
	}
	if got := rec.allCaptured(); len(got) != 1 || got[0] != "héllo" {
		t.Errorf("OnCaptured calls = %v", got)
	}
}

func TestAutoStorePersistsCaptures(t *testing.T) {
	d, q, s, _ := newTestDispatcher(t, &fakeGateway{}, nil)

	if d.AutoStore() {
		t.Fatal("auto-store on by default")
	}
	d.SetAutoStore(true)

	if err := q.Enqueue(types.Captured{Text: "remember this"}); err != nil {
		t.Fatal(err)
	}
	d.tick()

	if s.Len() != 1 {
		t.Fatalf("store.Len() = %d, want 1", s.Len())
	}
	if got := s.List()[0].Preview; got != "remember this" {
		t.Errorf("stored preview = %q", got)
	}

	d.SetAutoStore(false)
	if err := q.Enqueue(types.Captured{Text: "transient"}); err != nil {
		t.Fatal(err)
	}
	d.tick()

	if s.Len() != 1 {
		t.Errorf("store.Len() = %d after auto-store off, want 1", s.Len())
	}
}

func TestCommandResultInvokesCallback(t *testing.T) {
	d, q, _, rec := newTestDispatcher(t, &fakeGateway{}, nil)

	if err := q.Enqueue(types.CommandResult{Output: "3 files", Success: true}); err != nil {
		t.Fatal(err)
	}
	d.tick()

	if got := rec.allCommands(); len(got) != 1 || got[0] != "3 files:true" {
		t.Errorf("OnCommandResult calls = %v", got)
	}
}

func TestTransformDeliveredAndKeyed(t *testing.T) {
	fg := &fakeGateway{result: "explained"}
	d, _, _, rec := newTestDispatcher(t, fg, nil)

	id := d.RequestTransform("input", false)
	if id == "" {
		t.Fatal("empty request id")
	}
	if got := d.TransformState(id); got != types.StateInFlight {
		t.Fatalf("state before tick = %v", got)
	}

	d.tick()

	if got := d.TransformState(id); got != types.StateCompleted {
		t.Errorf("state after tick = %v", got)
	}
	if got := d.Current(); got != "explained" {
		t.Errorf("Current() = %q", got)
	}
	if got := rec.allTransformed(); len(got) != 1 || got[0] != "explained" {
		t.Errorf("OnTransformed calls = %v", got)
	}
	if kinds := rec.allKinds(); len(kinds) != 1 || kinds[0] != types.TransformExplain {
		t.Errorf("kinds = %v", kinds)
	}
	if got := d.Status(); got != "Parsed 9 characters from claude" {
		t.Errorf("Status() = %q", got)
	}
}

func TestTransformRendersActiveTemplate(t *testing.T) {
	fg := &fakeGateway{result: "ok"}
	d, _, _, _ := newTestDispatcher(t, fg, nil)

	if got := d.PromptTemplate(); got != gateway.DefaultPromptTemplate {
		t.Fatalf("default template = %q", got)
	}

	d.SetPromptTemplate("Custom: {text}")
	d.RequestTransform("hi", false)

	prompts := fg.renderedPrompts()
	if len(prompts) != 1 || prompts[0] != "Custom: hi" {
		t.Errorf("rendered prompts = %v", prompts)
	}

	d.SetPromptTemplate("")
	if got := d.PromptTemplate(); got != gateway.DefaultPromptTemplate {
		t.Errorf("template after reset = %q", got)
	}
}

func TestTransformPersistStoresResult(t *testing.T) {
	fg := &fakeGateway{result: "keep me"}
	d, _, s, rec := newTestDispatcher(t, fg, nil)

	d.RequestTransform("x", true)
	d.tick()

	if s.Len() != 1 {
		t.Fatalf("store.Len() = %d, want 1", s.Len())
	}
	if got := s.List()[0].Preview; got != "keep me" {
		t.Errorf("stored preview = %q", got)
	}
	if got := rec.allTransformed(); len(got) != 1 {
		t.Errorf("OnTransformed calls = %v", got)
	}
}

func TestTransformWithoutPersistStoresNothing(t *testing.T) {
	fg := &fakeGateway{result: "ephemeral"}
	d, _, s, _ := newTestDispatcher(t, fg, nil)

	d.RequestTransform("x", false)
	d.tick()

	if s.Len() != 0 {
		t.Errorf("store.Len() = %d, want 0", s.Len())
	}
	if got := d.Current(); got != "ephemeral" {
		t.Errorf("Current() = %q", got)
	}
}

func TestTransformFailure(t *testing.T) {
	fg := &fakeGateway{errMsg: "provider exploded"}
	d, _, _, rec := newTestDispatcher(t, fg, nil)

	id := d.RequestTransform("x", false)
	d.tick()

	if got := d.TransformState(id); got != types.StateFailed {
		t.Errorf("state = %v", got)
	}
	if errs := rec.allErrors(); len(errs) != 1 || !strings.Contains(errs[0], "provider exploded") {
		t.Errorf("OnError calls = %v", errs)
	}
	if got := d.Status(); got != "Error occurred" {
		t.Errorf("Status() = %q", got)
	}
}

func TestFinishedRequestRetiresToIdle(t *testing.T) {
	fg := &fakeGateway{result: "done"}
	d, _, _, _ := newTestDispatcher(t, fg, nil)

	id := d.RequestTransform("input", false)
	d.tick()

	if got := d.TransformState(id); got != types.StateCompleted {
		t.Fatalf("state after tick = %v", got)
	}

	// Age the finished record past the retire delay.
	d.mu.Lock()
	e := d.inflight[id]
	e.doneAt = e.doneAt.Add(-requestRetireDelay)
	d.inflight[id] = e
	d.mu.Unlock()
	d.tick()

	if got := d.TransformState(id); got != types.StateIdle {
		t.Errorf("state after retirement = %v, want idle", got)
	}
	d.mu.Lock()
	_, present := d.inflight[id]
	d.mu.Unlock()
	if present {
		t.Error("retired record still in the registry")
	}
}

func TestStatusRevertsToReady(t *testing.T) {
	d, q, _, rec := newTestDispatcher(t, &fakeGateway{}, nil)

	if err := q.Enqueue(types.StatusUpdate{Text: "Selection cancelled"}); err != nil {
		t.Fatal(err)
	}
	d.tick()
	if got := d.Status(); got != "Selection cancelled" {
		t.Fatalf("Status() = %q", got)
	}

	// Age the status past the revert delay.
	d.mu.Lock()
	d.revertAt = time.Now().Add(-time.Second)
	d.mu.Unlock()
	d.tick()

	if got := d.Status(); got != "Ready" {
		t.Errorf("Status() after revert = %q", got)
	}
	statuses := rec.allStatuses()
	if len(statuses) == 0 || statuses[len(statuses)-1] != "Ready" {
		t.Errorf("statuses = %v", statuses)
	}
}

func TestNewerStatusCancelsPendingRevert(t *testing.T) {
	d, q, _, _ := newTestDispatcher(t, &fakeGateway{}, nil)

	if err := q.Enqueue(types.StatusUpdate{Text: "older"}); err != nil {
		t.Fatal(err)
	}
	d.tick()

	// The older status is due to revert, but a newer one arrives in
	// the same tick and resets the deadline.
	d.mu.Lock()
	d.revertAt = time.Now().Add(-time.Second)
	d.mu.Unlock()
	if err := q.Enqueue(types.StatusUpdate{Text: "newer"}); err != nil {
		t.Fatal(err)
	}
	d.tick()

	if got := d.Status(); got != "newer" {
		t.Errorf("Status() = %q, want newer status to survive", got)
	}
}

func TestStatusDoesNotRevertEarly(t *testing.T) {
	d, q, _, _ := newTestDispatcher(t, &fakeGateway{}, nil)

	if err := q.Enqueue(types.StatusUpdate{Text: "Captured 5 characters"}); err != nil {
		t.Fatal(err)
	}
	d.tick()
	d.tick()

	if got := d.Status(); got != "Captured 5 characters" {
		t.Errorf("Status() = %q", got)
	}
}

func TestRegionCaptureTooSmallIsStatusNotError(t *testing.T) {
	// Nil grabber selects the real capturer, whose size check runs
	// before any platform call.
	d, q, _, rec := newTestDispatcher(t, &fakeGateway{}, nil)

	id := d.RequestRegionCapture(capture.Rect{X: 0, Y: 0, Width: 5, Height: 5}, false)
	waitFor(t, "capture status", func() bool { return q.Len() > 0 })
	d.tick()

	if got := d.Status(); got != "Selection too small" {
		t.Errorf("Status() = %q", got)
	}
	if errs := rec.allErrors(); len(errs) != 0 {
		t.Errorf("OnError calls = %v", errs)
	}
	if got := d.TransformState(id); got != types.StateIdle {
		t.Errorf("state = %v, want idle", got)
	}
}

func TestRegionCaptureBusyIsStatus(t *testing.T) {
	d, q, _, rec := newTestDispatcher(t, &fakeGateway{}, &fakeGrabber{err: capture.ErrBusy})

	d.RequestRegionCapture(capture.Rect{Width: 100, Height: 100}, false)
	waitFor(t, "capture status", func() bool { return q.Len() > 0 })
	d.tick()

	if got := d.Status(); got != "Capture already in progress" {
		t.Errorf("Status() = %q", got)
	}
	if errs := rec.allErrors(); len(errs) != 0 {
		t.Errorf("OnError calls = %v", errs)
	}
}

func TestRegionCaptureFailureIsError(t *testing.T) {
	grab := &fakeGrabber{err: errors.New("screenshot failed to save")}
	d, q, _, rec := newTestDispatcher(t, &fakeGateway{}, grab)

	d.RequestRegionCapture(capture.Rect{Width: 100, Height: 100}, false)
	waitFor(t, "capture error", func() bool { return q.Len() > 0 })
	d.tick()

	if errs := rec.allErrors(); len(errs) != 1 || !strings.Contains(errs[0], "screenshot failed") {
		t.Errorf("OnError calls = %v", errs)
	}
	if got := d.Status(); got != "Error occurred" {
		t.Errorf("Status() = %q", got)
	}
}

func TestRegionCaptureDeliversExtractedText(t *testing.T) {
	fg := &fakeGateway{result: "from image"}
	grab := &fakeGrabber{png: []byte{0x89, 'P', 'N', 'G'}}
	d, q, _, rec := newTestDispatcher(t, fg, grab)

	id := d.RequestRegionCapture(capture.Rect{Width: 200, Height: 100}, false)
	waitFor(t, "extract result", func() bool { return q.Len() > 0 })
	d.tick()

	if got := d.TransformState(id); got != types.StateCompleted {
		t.Errorf("state = %v", got)
	}
	if got := d.Current(); got != "from image" {
		t.Errorf("Current() = %q", got)
	}
	if kinds := rec.allKinds(); len(kinds) != 1 || kinds[0] != types.TransformExtract {
		t.Errorf("kinds = %v", kinds)
	}
	if got := d.Status(); got != "Parsed 10 characters from screenshot" {
		t.Errorf("Status() = %q", got)
	}
	imgs := fg.capturedImages()
	if len(imgs) != 1 || string(imgs[0]) != string([]byte{0x89, 'P', 'N', 'G'}) {
		t.Errorf("gateway received %v", imgs)
	}
}

func TestOutOfOrderResultsResolveByID(t *testing.T) {
	d, q, _, _ := newTestDispatcher(t, &fakeGateway{}, nil)

	second := types.Transformed{
		Text:       "second result",
		SourceKind: types.TransformExplain,
		Meta:       types.TransformMeta{RequestID: "req-b", Provider: "claude"},
	}
	first := types.Transformed{
		Text:       "first result",
		SourceKind: types.TransformExplain,
		Meta:       types.TransformMeta{RequestID: "req-a", Provider: "claude"},
	}
	if err := q.Enqueue(second); err != nil {
		t.Fatal(err)
	}
	if err := q.Enqueue(first); err != nil {
		t.Fatal(err)
	}
	d.tick()

	if got := d.TransformState("req-a"); got != types.StateCompleted {
		t.Errorf("req-a state = %v", got)
	}
	if got := d.TransformState("req-b"); got != types.StateCompleted {
		t.Errorf("req-b state = %v", got)
	}
	if got := d.Current(); got != "first result" {
		t.Errorf("Current() = %q, want last processed", got)
	}
}

func TestOverflowSurfacesAsSingleError(t *testing.T) {
	s, err := store.New(t.TempDir())
	if err != nil {
		t.Fatalf("store.New: %v", err)
	}
	q := queue.New(1)
	rec := &recorder{}
	d := New(Config{
		Queue:     q,
		Store:     s,
		Gateway:   &fakeGateway{q: q},
		Interval:  time.Hour,
		Callbacks: rec.callbacks(),
	})

	q.Enqueue(types.Captured{Text: "kept"})
	q.Enqueue(types.Captured{Text: "dropped 1"})
	q.Enqueue(types.Captured{Text: "dropped 2"})
	d.tick()

	if got := rec.allCaptured(); len(got) != 1 || got[0] != "kept" {
		t.Errorf("OnCaptured calls = %v", got)
	}
	errs := rec.allErrors()
	if len(errs) != 1 || !strings.Contains(errs[0], "2 message(s) dropped") {
		t.Errorf("OnError calls = %v", errs)
	}
	if got := d.Status(); got != "Error occurred" {
		t.Errorf("Status() = %q", got)
	}
}

func TestSubmitStoresDirectly(t *testing.T) {
	d, _, s, _ := newTestDispatcher(t, &fakeGateway{}, nil)

	item, err := d.Submit("hello world")
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if item.Length != 11 {
		t.Errorf("Length = %d", item.Length)
	}
	if s.Len() != 1 {
		t.Errorf("store.Len() = %d", s.Len())
	}
	if got := d.Status(); got != "Stored 11 characters" {
		t.Errorf("Status() = %q", got)
	}
}

func TestStartStopLifecycle(t *testing.T) {
	q := queue.New(0)
	s, err := store.New(t.TempDir())
	if err != nil {
		t.Fatalf("store.New: %v", err)
	}
	d := New(Config{
		Queue:    q,
		Store:    s,
		Gateway:  &fakeGateway{q: q},
		Interval: 10 * time.Millisecond,
	})

	if err := d.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := d.Start(); err != ErrAlreadyRunning {
		t.Errorf("second Start = %v", err)
	}

	if err := q.Enqueue(types.Captured{Text: "live"}); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "loop to drain", func() bool { return d.Current() == "live" })

	if err := d.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if err := d.Stop(); err != ErrNotRunning {
		t.Errorf("second Stop = %v", err)
	}
}

func TestStopDrainsPendingMessages(t *testing.T) {
	q := queue.New(0)
	s, err := store.New(t.TempDir())
	if err != nil {
		t.Fatalf("store.New: %v", err)
	}
	d := New(Config{
		Queue:    q,
		Store:    s,
		Gateway:  &fakeGateway{q: q},
		Interval: time.Hour,
	})

	if err := d.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := q.Enqueue(types.Captured{Text: "pending"}); err != nil {
		t.Fatal(err)
	}
	if err := d.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	if got := d.Current(); got != "pending" {
		t.Errorf("Current() = %q, want message drained on stop", got)
	}
}
