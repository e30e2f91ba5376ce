package capture

import (
	"errors"
	"fmt"
)

// Static errors shared by backend implementations.
var (
	// ErrCaptureFailed marks a single-frame extraction failure. Batches skip
	// the frame and continue.
	ErrCaptureFailed = errors.New("capture: frame capture failed")
	// ErrBackendFatal marks an unrecoverable engine failure. Batches abort.
	ErrBackendFatal = errors.New("capture: backend is unusable")
	// ErrFileLoaded is returned by Load when a previous file is still loaded.
	ErrFileLoaded = errors.New("capture: a file is already loaded")
	// ErrNoFileLoaded is returned when a capture is requested with no file.
	ErrNoFileLoaded = errors.New("capture: no file loaded")
)

// UnsupportedMediaError reports that a file could not be probed or decoded.
// It is fatal for that file only; batch orchestration continues with the next.
type UnsupportedMediaError struct {
	Path string
	Err  error
}

func (e *UnsupportedMediaError) Error() string {
	return fmt.Sprintf("capture: unsupported media %q: %v", e.Path, e.Err)
}

func (e *UnsupportedMediaError) Unwrap() error {
	return e.Err
}

// IsUnsupportedMedia reports whether err wraps an UnsupportedMediaError.
func IsUnsupportedMedia(err error) bool {
	var u *UnsupportedMediaError
	return errors.As(err, &u)
}
