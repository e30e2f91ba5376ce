// Package capture defines the contract shared by frame-capture backends and
// the session that drives one backend through a planned capture timeline.
//
// A backend wraps a media-decoding engine. Two variants exist: an event-driven
// engine controlled over an IPC bus (capture/mpv) and a one-shot external
// process per frame (capture/mplayer). Both expose the same capability set:
// load a file and report stream metadata, capture single frames at requested
// timestamps, and unload. Timestamps cross the boundary in the backend's
// native time unit.
package capture

import (
	"context"

	"github.com/tmorran/vidsheet/internal/mediainfo"
)

// Kind names a capture backend variant.
type Kind string

const (
	// KindMPV is the event-driven backend built on an mpv engine process.
	KindMPV Kind = "mpv"
	// KindMPlayer is the process-based backend built on mplayer/midentify.
	KindMPlayer Kind = "mplayer"
)

// IsValid returns true for a known backend kind.
func (k Kind) IsValid() bool {
	return k == KindMPV || k == KindMPlayer
}

// Backend is the capture engine contract.
//
// Exactly one file may be loaded at a time: Load fails if a previous file has
// not been unloaded. Unload is idempotent. Implementations are not safe for
// concurrent use; captures are issued strictly sequentially because the
// underlying engines hold a single seek position.
type Backend interface {
	// Load opens path and blocks until stream metadata is available.
	// It returns an *UnsupportedMediaError if the file cannot be probed.
	Load(ctx context.Context, path string) (*mediainfo.StreamInfo, error)

	// CaptureFrame grabs one frame at timestamp (native units) and moves it
	// to destination. An empty destination discards the frame; calibration
	// uses this to probe seekability without keeping output. The returned
	// timestamp is the actual encoded position, which may differ from the
	// request when the engine seeks to a keyframe.
	//
	// A per-frame failure is reported as ErrCaptureFailed; an error wrapping
	// ErrBackendFatal means the engine itself is unusable.
	CaptureFrame(ctx context.Context, timestamp float64, destination string) (float64, error)

	// Unload releases decoding resources held for the current file.
	Unload() error

	// TimeToSeconds converts the backend's native time unit into seconds.
	TimeToSeconds(t float64) float64

	// CapturePadding is the margin, in native units, at both ends of the
	// timeline that must not be targeted for capture. It keeps seeks inside
	// the range engines decode reliably.
	CapturePadding() float64

	// Close shuts the backend down entirely. Closing unloads any current
	// file and stops background workers.
	Close() error
}
