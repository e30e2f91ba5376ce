// Package mplayer implements the process-based capture backend. Every
// operation is one synchronous external invocation: midentify probes stream
// metadata, mplayer decodes a single frame per capture. The backend holds no
// engine state between calls beyond the loaded file path and the duration
// calibration scale.
package mplayer

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/tmorran/vidsheet/internal/capture"
	"github.com/tmorran/vidsheet/internal/mediainfo"
	"github.com/tmorran/vidsheet/internal/timeline"
)

// capturePadding is the reserved margin at both timeline ends, in seconds
// (this backend's native unit).
const capturePadding = 0.5

// scratchFrame is the fixed name mplayer's png video output writes for a
// single-frame run.
const scratchFrame = "00000001.png"

// Options configures the process-based backend.
type Options struct {
	// MPlayerPath locates the mplayer executable. Defaults to "mplayer".
	MPlayerPath string `validate:"required"`
	// MIdentifyPath locates the midentify executable. Defaults to "midentify".
	MIdentifyPath string `validate:"required"`
	// Timeout bounds every external invocation. A hung decoder process
	// otherwise blocks the caller indefinitely. Defaults to 30s.
	Timeout time.Duration `validate:"gte=0"`
}

// Backend captures frames by spawning one mplayer process per frame.
type Backend struct {
	opts    Options
	logger  *slog.Logger
	scratch string

	file  string
	info  *mediainfo.StreamInfo
	scale float64
}

// New creates a process-based backend. A private scratch directory receives
// mplayer's raw frame output before each frame is moved to its destination.
func New(opts Options, logger *slog.Logger) (*Backend, error) {
	if opts.MPlayerPath == "" {
		opts.MPlayerPath = "mplayer"
	}
	if opts.MIdentifyPath == "" {
		opts.MIdentifyPath = "midentify"
	}
	if opts.Timeout == 0 {
		opts.Timeout = 30 * time.Second
	}
	if err := validator.New().Struct(opts); err != nil {
		return nil, fmt.Errorf("mplayer: invalid options: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}

	scratch, err := os.MkdirTemp("", "vidsheet-mplayer-*")
	if err != nil {
		return nil, fmt.Errorf("mplayer: create scratch dir: %w", err)
	}

	return &Backend{
		opts:    opts,
		logger:  logger,
		scratch: scratch,
		scale:   1,
	}, nil
}

// Load probes path with midentify and caches the parsed stream metadata.
// When the probe reports the bogus framerate sentinel the duration is
// recalibrated with real capture probes and the unreliable framerate and
// bitrate fields are dropped.
func (b *Backend) Load(ctx context.Context, path string) (*mediainfo.StreamInfo, error) {
	if b.file != "" {
		return nil, capture.ErrFileLoaded
	}

	runCtx, cancel := context.WithTimeout(ctx, b.opts.Timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, b.opts.MIdentifyPath, path)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, &capture.UnsupportedMediaError{
			Path: path,
			Err:  fmt.Errorf("midentify: %w, stderr: %s", err, stderr.String()),
		}
	}

	info, err := parseProbeOutput(stdout.String())
	if err != nil {
		return nil, &capture.UnsupportedMediaError{Path: path, Err: err}
	}
	if info.Duration <= 0 {
		return nil, &capture.UnsupportedMediaError{
			Path: path,
			Err:  fmt.Errorf("probe reported no duration"),
		}
	}

	b.file = path
	b.scale = 1

	if info.VideoFramerate == sentinelFramerate {
		if err := b.calibrate(ctx, info); err != nil {
			b.file = ""
			return nil, err
		}
	}

	b.info = info
	return info.Clone(), nil
}

// calibrate rescales an untrustworthy duration by probing real captures at
// candidate scales. Each probe discards its frame.
func (b *Backend) calibrate(ctx context.Context, info *mediainfo.StreamInfo) error {
	b.logger.Info("bogus framerate sentinel detected, calibrating duration",
		slog.String("file", b.file),
		slog.Float64("reported_duration", info.Duration),
	)

	scale, err := timeline.Calibrate(func(s float64) bool {
		_, err := b.CaptureFrame(ctx, info.Duration*s, "")
		return err == nil
	})
	if err != nil {
		return fmt.Errorf("calibrate %s: %w", b.file, err)
	}

	b.scale = scale
	info.Duration *= scale
	// Probed alongside the broken duration, so just as unreliable.
	info.VideoFramerate = 0
	info.VideoBitrate = 0

	b.logger.Debug("duration calibrated",
		slog.Float64("scale", scale),
		slog.Float64("duration", info.Duration),
	)
	return nil
}

// CaptureFrame spawns one mplayer invocation seeking to timestamp and
// decoding a single frame. Success is determined by the scratch frame file
// existing afterwards, not by process output: mplayer emits warnings that are
// unrelated to failure. The requested timestamp is echoed back; this engine
// gives no precision guarantee on the frame it actually decoded.
func (b *Backend) CaptureFrame(ctx context.Context, timestamp float64, destination string) (float64, error) {
	if b.file == "" {
		return 0, capture.ErrNoFileLoaded
	}

	runCtx, cancel := context.WithTimeout(ctx, b.opts.Timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, b.opts.MPlayerPath,
		"-really-quiet",
		"-nosound",
		"-vo", "png:z=3:outdir="+b.scratch,
		"-frames", "1",
		"-ss", fmt.Sprintf("%f", timestamp),
		b.file,
	)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil && runCtx.Err() != nil {
		return 0, fmt.Errorf("mplayer timed out at %.2fs: %w", timestamp, capture.ErrCaptureFailed)
	}

	frame := filepath.Join(b.scratch, scratchFrame)
	if _, err := os.Stat(frame); err != nil {
		if destination != "" {
			b.logger.Warn("no frame produced",
				slog.Float64("timestamp", timestamp),
				slog.String("stderr", stderr.String()),
			)
		}
		return 0, fmt.Errorf("no frame at %.2fs: %w", timestamp, capture.ErrCaptureFailed)
	}

	if destination == "" {
		if err := os.Remove(frame); err != nil {
			return 0, fmt.Errorf("discard frame: %w", err)
		}
		return timestamp, nil
	}

	if err := os.Rename(frame, destination); err != nil {
		return 0, fmt.Errorf("move frame to %s: %w", destination, err)
	}
	return timestamp, nil
}

// Unload forgets the loaded file. Idempotent.
func (b *Backend) Unload() error {
	b.file = ""
	b.info = nil
	b.scale = 1
	return nil
}

// TimeToSeconds reverses the calibration scale applied to the duration, so
// reported times stay on the nominal timeline.
func (b *Backend) TimeToSeconds(t float64) float64 {
	return t / b.scale
}

// CapturePadding returns the reserved timeline margin in seconds.
func (b *Backend) CapturePadding() float64 {
	return capturePadding
}

// Close removes the scratch directory.
func (b *Backend) Close() error {
	_ = b.Unload()
	return os.RemoveAll(b.scratch)
}

var _ capture.Backend = (*Backend)(nil)
