// Package capture produces queue messages from user-driven capture
// actions: a global hotkey that snapshots the clipboard, and screen
// region grabs for image extraction.
package capture

import (
	"github.com/atotto/clipboard"
)

// Reader abstracts clipboard access so the hotkey watcher can be
// tested without a display server.
type Reader interface {
	ReadAll() (string, error)
}

type systemReader struct{}

func (systemReader) ReadAll() (string, error) {
	return clipboard.ReadAll()
}

// SystemReader returns a Reader backed by the system clipboard.
func SystemReader() Reader {
	return systemReader{}
}
