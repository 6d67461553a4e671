//go:build darwin

package capture

/*
#cgo CFLAGS: -x objective-c
#cgo LDFLAGS: -framework CoreGraphics -framework Foundation
#import <CoreGraphics/CoreGraphics.h>
#import <Foundation/Foundation.h>

bool hasScreenRecordingPermission() {
    if (@available(macOS 11.0, *)) {
        return CGPreflightScreenCaptureAccess();
    }
    return true;
}

void requestScreenRecordingPermission() {
    if (@available(macOS 11.0, *)) {
        CGRequestScreenCaptureAccess();
    }
}
*/
import "C"
import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"
)

// HasPermission checks if the app has screen recording permission.
func HasPermission() bool {
	return bool(C.hasScreenRecordingPermission())
}

// RequestPermission requests screen recording permission from the system.
func RequestPermission() {
	C.requestScreenRecordingPermission()
}

// grabRegion shells out to screencapture for the given region and
// returns the PNG bytes.
func grabRegion(r Rect) ([]byte, error) {
	if !HasPermission() {
		RequestPermission()
		return nil, fmt.Errorf("screen recording permission required")
	}

	tmpDir := os.TempDir()
	fileName := fmt.Sprintf("snipvault_region_%d.png", time.Now().UnixNano())
	filePath := filepath.Join(tmpDir, fileName)

	// Command: screencapture -R x,y,w,h <path>
	// -R: capture the given rectangle
	// -x: do not play sound
	region := fmt.Sprintf("%d,%d,%d,%d", r.X, r.Y, r.Width, r.Height)
	cmd := exec.Command("screencapture", "-R", region, "-x", filePath)

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("screencapture failed: %w", err)
	}

	if _, err := os.Stat(filePath); os.IsNotExist(err) {
		return nil, fmt.Errorf("screenshot failed to save")
	}
	defer os.Remove(filePath)

	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("read screenshot: %w", err)
	}

	return data, nil
}
