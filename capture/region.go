package capture

import (
	"errors"
	"sync/atomic"

	snverrors "github.com/snipvault/snipvault/internal/errors"
)

// MinDimension is the smallest selectable region edge in points.
// Anything smaller is almost certainly an accidental click.
const MinDimension = 10

var (
	// ErrUnsupported is returned where the platform has no screen
	// capture tool.
	ErrUnsupported = errors.New("region capture not supported on this platform")
	// ErrBusy is returned when a region capture is already in flight.
	ErrBusy = errors.New("region capture already in progress")
)

// Rect is a screen region in points.
type Rect struct {
	X      int
	Y      int
	Width  int
	Height int
}

// Normalize returns the rect with non-negative dimensions, moving the
// origin so a drag in any direction selects the same region.
func (r Rect) Normalize() Rect {
	if r.Width < 0 {
		r.X += r.Width
		r.Width = -r.Width
	}
	if r.Height < 0 {
		r.Y += r.Height
		r.Height = -r.Height
	}
	return r
}

// RegionCapturer grabs screen regions as PNG bytes. Requests are
// single-flight; a capture started while another runs fails with
// ErrBusy.
type RegionCapturer struct {
	busy atomic.Bool
}

// Capture validates the selection and grabs it from the screen.
func (c *RegionCapturer) Capture(r Rect) ([]byte, error) {
	if !c.busy.CompareAndSwap(false, true) {
		return nil, ErrBusy
	}
	defer c.busy.Store(false)

	r = r.Normalize()
	if r.Width < MinDimension || r.Height < MinDimension {
		return nil, snverrors.NewCaptureTooSmall(r.Width, r.Height)
	}

	return grabRegion(r)
}
