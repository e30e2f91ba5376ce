package capture

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strconv"
)

// Result is one successful capture: the frame file, now owned by the caller,
// and the actual timestamp the engine encoded (native units).
type Result struct {
	Path      string
	Timestamp float64
}

// Batch captures one frame per timestamp, in order, writing outputs into dir
// as frame-<index>.png with indices zero-padded to the batch width (24 frames
// pad to 2 digits). Per-frame failures are skipped, not retried, so the result
// holds at most len(timestamps) entries and preserves request order. A fatal
// backend error aborts the remaining captures and is returned alongside the
// results gathered so far.
func Batch(ctx context.Context, b Backend, dir string, timestamps []float64, logger *slog.Logger) ([]Result, error) {
	width := len(strconv.Itoa(len(timestamps)))
	results := make([]Result, 0, len(timestamps))

	for i, ts := range timestamps {
		if err := ctx.Err(); err != nil {
			return results, err
		}

		name := fmt.Sprintf("frame-%0*d.png", width, i+1)
		dest := filepath.Join(dir, name)

		logger.Debug("capturing frame",
			slog.Int("frame", i+1),
			slog.Int("total", len(timestamps)),
			slog.Float64("timestamp_secs", b.TimeToSeconds(ts)),
		)

		actual, err := b.CaptureFrame(ctx, ts, dest)
		if err != nil {
			if errors.Is(err, ErrBackendFatal) {
				return results, fmt.Errorf("capture frame %d: %w", i+1, err)
			}
			logger.Warn("frame capture failed, skipping",
				slog.Int("frame", i+1),
				slog.Float64("timestamp_secs", b.TimeToSeconds(ts)),
				slog.String("error", err.Error()),
			)
			continue
		}

		results = append(results, Result{Path: dest, Timestamp: actual})
	}

	return results, nil
}
