//go:build !darwin

package capture

// HasPermission checks if the app has screen recording permission.
func HasPermission() bool {
	return false
}

// RequestPermission requests screen recording permission from the system.
func RequestPermission() {}

func grabRegion(_ Rect) ([]byte, error) {
	return nil, ErrUnsupported
}
