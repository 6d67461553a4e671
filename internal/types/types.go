// Package types provides shared type definitions for the application.
package types

import "time"

// Kind classifies stored content.
type Kind string

const (
	// KindText is plain captured text.
	KindText Kind = "text"
	// KindCommand is text that looks like a shell command.
	KindCommand Kind = "command"
)

// Item is the metadata handle for one stored capture. The content
// itself lives in a separate file owned by the store.
type Item struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	Kind      Kind      `json:"kind"`
	Preview   string    `json:"preview"`
	Length    int       `json:"length"`
}

// PreviewRunes is the maximum preview length in runes.
const PreviewRunes = 100

// DefaultMaxTokens is the default max tokens if not specified.
const DefaultMaxTokens = 1000

// Usage represents token usage statistics from provider API calls.
type Usage struct {
	PromptTokens     int  `json:"promptTokens"`
	CompletionTokens int  `json:"completionTokens"`
	TotalTokens      int  `json:"totalTokens"`
	CacheHit         bool `json:"cacheHit"`
}

// TransformKind identifies the provider operation for a request.
type TransformKind string

const (
	// TransformExplain sends text through the active prompt template.
	TransformExplain TransformKind = "explain-text"
	// TransformExtract asks the vision model for the text in an image.
	TransformExtract TransformKind = "extract-from-image"
)

// TransformState tracks one transform request through its lifecycle.
// Terminal states always produce exactly one queue message.
type TransformState int

const (
	StateIdle TransformState = iota
	StateRequested
	StateInFlight
	StateCompleted
	StateFailed
)

// String returns the state name for logging.
func (s TransformState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRequested:
		return "requested"
	case StateInFlight:
		return "in-flight"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// Queue Messages
// ─────────────────────────────────────────────────────────────────────────────

// Message is the tagged union carried on the event queue. Messages are
// immutable once enqueued; ownership transfers to the dispatcher on
// dequeue.
type Message interface {
	isMessage()
}

// Captured is produced by a capture source when new clipboard text
// arrives.
type Captured struct {
	Text string
}

// CommandResult reports the outcome of executing a command-like item.
type CommandResult struct {
	Output  string
	Success bool
}

// TransformMeta carries bookkeeping for a finished transform request.
type TransformMeta struct {
	RequestID string
	Provider  string
	Model     string
	Usage     Usage
	Persist   bool
}

// Transformed delivers a provider result back to the dispatcher,
// keyed to its originating request via Meta.RequestID.
type Transformed struct {
	Text       string
	SourceKind TransformKind
	Meta       TransformMeta
}

// TransformFailed reports a transform request that ended in error,
// keyed to its originating request so in-flight tracking can clear.
type TransformFailed struct {
	RequestID string
	Provider  string
	Message   string
}

// StatusUpdate sets the transient status line.
type StatusUpdate struct {
	Text string
}

// Error surfaces a producer or worker failure to the dispatcher.
type Error struct {
	Message string
}

func (Captured) isMessage()        {}
func (CommandResult) isMessage()   {}
func (Transformed) isMessage()     {}
func (TransformFailed) isMessage() {}
func (StatusUpdate) isMessage()    {}
func (Error) isMessage()           {}
