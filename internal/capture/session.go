package capture

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/tmorran/vidsheet/internal/mediainfo"
	"github.com/tmorran/vidsheet/internal/timeline"
)

// Session drives one backend through the full capture workflow for a file:
// load, plan the timeline from the reported duration and the backend's
// padding, capture the batch, unload.
type Session struct {
	backend Backend
	dir     string
	logger  *slog.Logger
}

// NewSession creates a Session writing captured frames into dir.
func NewSession(backend Backend, dir string, logger *slog.Logger) *Session {
	if logger == nil {
		logger = slog.Default()
	}
	return &Session{backend: backend, dir: dir, logger: logger}
}

// Run captures frameCount frames from path distributed per focus. It returns
// the stream metadata and the ordered capture results; ownership of the
// result files transfers to the caller, which deletes them after use.
//
// Files whose duration leaves no room inside the capture padding are rejected
// as unsupported: the planner's precondition duration > 2*padding is enforced
// here, before any seek is issued.
func (s *Session) Run(ctx context.Context, path string, frameCount int, focus timeline.Focus) (*mediainfo.StreamInfo, []Result, error) {
	info, err := s.backend.Load(ctx, path)
	if err != nil {
		return nil, nil, fmt.Errorf("load %s: %w", path, err)
	}
	defer func() {
		if err := s.backend.Unload(); err != nil {
			s.logger.Warn("unload failed", slog.String("error", err.Error()))
		}
	}()

	padding := s.backend.CapturePadding()
	if info.Duration <= 2*padding {
		return nil, nil, &UnsupportedMediaError{
			Path: path,
			Err:  fmt.Errorf("duration %.3fs too short for capture padding", s.backend.TimeToSeconds(info.Duration)),
		}
	}

	times := timeline.Plan(info.Duration, padding, frameCount, focus)
	s.logger.Debug("capture timeline planned",
		slog.Int("frames", len(times)),
		slog.String("focus", string(focus)),
		slog.Float64("duration_secs", s.backend.TimeToSeconds(info.Duration)),
	)

	results, err := Batch(ctx, s.backend, s.dir, times, s.logger)
	if err != nil {
		return info, results, fmt.Errorf("capture batch: %w", err)
	}

	return info, results, nil
}
