// Package errors defines the typed error taxonomy shared across the
// pipeline. Producer and worker failures are converted to queue
// messages at the goroutine boundary; these types carry the code the
// dispatcher switches on.
package errors

import "fmt"

// ErrorCode identifies a pipeline error class.
type ErrorCode string

const (
	ErrQueueOverflow     ErrorCode = "QUEUE_OVERFLOW"          // producer could not enqueue
	ErrStoreIO           ErrorCode = "STORE_IO"                // content/index read or write failed
	ErrStoreInconsistent ErrorCode = "STORE_INCONSISTENT"      // index entry with missing file, or vice versa
	ErrNotFound          ErrorCode = "NOT_FOUND"               // unknown item id
	ErrProviderNone      ErrorCode = "PROVIDER_UNAVAILABLE"    // no credentials configured
	ErrProviderRequest   ErrorCode = "PROVIDER_REQUEST_FAILED" // non-success response or timeout
	ErrCaptureTooSmall   ErrorCode = "CAPTURE_TOO_SMALL"       // selection below threshold; a no-op, not a failure
)

// PipelineError is a structured error with a code and optional cause.
type PipelineError struct {
	Code    ErrorCode
	Message string
	Err     error
}

// Error implements the error interface.
func (e *PipelineError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the wrapped cause, if any.
func (e *PipelineError) Unwrap() error {
	return e.Err
}

// NewQueueOverflow reports dropped messages since the last drain.
func NewQueueOverflow(dropped uint64) *PipelineError {
	return &PipelineError{
		Code:    ErrQueueOverflow,
		Message: fmt.Sprintf("event queue overflow: %d message(s) dropped", dropped),
	}
}

// NewStoreIO wraps a failed content or index read/write.
func NewStoreIO(op string, err error) *PipelineError {
	return &PipelineError{
		Code:    ErrStoreIO,
		Message: op,
		Err:     err,
	}
}

// NewStoreInconsistent reports index/file drift for an item.
func NewStoreInconsistent(id string) *PipelineError {
	return &PipelineError{
		Code:    ErrStoreInconsistent,
		Message: fmt.Sprintf("index entry without content file: %s", id),
	}
}

// NewNotFound reports an unknown item id.
func NewNotFound(id string) *PipelineError {
	return &PipelineError{
		Code:    ErrNotFound,
		Message: fmt.Sprintf("item not found: %s", id),
	}
}

// NewProviderUnavailable signals that no provider credentials were
// found at startup.
func NewProviderUnavailable() *PipelineError {
	return &PipelineError{
		Code:    ErrProviderNone,
		Message: "no provider credentials configured",
	}
}

// NewProviderRequest wraps a failed provider call.
func NewProviderRequest(provider string, err error) *PipelineError {
	return &PipelineError{
		Code:    ErrProviderRequest,
		Message: fmt.Sprintf("provider %s request failed", provider),
		Err:     err,
	}
}

// NewCaptureTooSmall reports a selection under the minimum size.
func NewCaptureTooSmall(w, h int) *PipelineError {
	return &PipelineError{
		Code:    ErrCaptureTooSmall,
		Message: fmt.Sprintf("selection %dx%d below minimum", w, h),
	}
}

// Is checks whether any error in err's chain is a PipelineError with
// the given code.
func Is(err error, code ErrorCode) bool {
	for err != nil {
		if pErr, ok := err.(*PipelineError); ok && pErr.Code == code {
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
