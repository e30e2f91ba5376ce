package mpv

import (
	"context"
	"log/slog"
	"os/exec"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/dexterlb/mpvipc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tmorran/vidsheet/internal/capture"
	"github.com/tmorran/vidsheet/internal/mediainfo"
)

// newBusBackend builds a backend wired for event handling only, with no
// engine process behind it, so the bus drain logic is testable in isolation.
func newBusBackend() *Backend {
	return &Backend{
		logger: slog.New(slog.DiscardHandler),
		state:  stateIdle,
		loads:  make(chan error, 1),
		seeks:  make(chan struct{}, 1),
		fatal:  make(chan error, 1),
		done:   make(chan struct{}),
	}
}

func TestHandleEvent_FileLoaded(t *testing.T) {
	b := newBusBackend()
	b.handleEvent(&mpvipc.Event{Name: "file-loaded"})

	select {
	case err := <-b.loads:
		assert.NoError(t, err)
	default:
		t.Fatal("no load event forwarded")
	}
}

func TestHandleEvent_EndFileError(t *testing.T) {
	b := newBusBackend()
	b.handleEvent(&mpvipc.Event{Name: "end-file", Reason: "error"})

	select {
	case err := <-b.fatal:
		assert.ErrorIs(t, err, capture.ErrBackendFatal)
	default:
		t.Fatal("no fatal event forwarded")
	}

	// A blocked load is released with the same failure.
	select {
	case err := <-b.loads:
		assert.ErrorIs(t, err, capture.ErrBackendFatal)
	default:
		t.Fatal("no load event forwarded")
	}
}

func TestHandleEvent_EndFileEOFIgnored(t *testing.T) {
	b := newBusBackend()
	b.handleEvent(&mpvipc.Event{Name: "end-file", Reason: "eof"})

	select {
	case <-b.fatal:
		t.Fatal("eof must not be treated as fatal")
	case <-b.loads:
		t.Fatal("eof must not complete a load")
	default:
	}
}

func TestHandleEvent_SeekCompletionCoalesces(t *testing.T) {
	b := newBusBackend()
	b.handleEvent(&mpvipc.Event{Name: "playback-restart"})
	b.handleEvent(&mpvipc.Event{Name: "playback-restart"})

	<-b.seeks
	select {
	case <-b.seeks:
		t.Fatal("repeated confirmations must coalesce")
	default:
	}
}

func TestMergeTags(t *testing.T) {
	t.Run("title stored case-insensitively", func(t *testing.T) {
		b := newBusBackend()
		b.info = &mediainfo.StreamInfo{}
		b.handleEvent(&mpvipc.Event{
			Name: "property-change",
			ID:   metadataPropertyID,
			Data: map[string]interface{}{"TITLE": "Holiday Reel"},
		})
		assert.Equal(t, "Holiday Reel", b.info.Title)
	})

	t.Run("multi-valued tag skipped", func(t *testing.T) {
		b := newBusBackend()
		b.info = &mediainfo.StreamInfo{Title: "kept"}
		b.mergeTags(map[string]interface{}{
			"title": []interface{}{"one", "two"},
		})
		assert.Equal(t, "kept", b.info.Title)
	})

	t.Run("no file loaded is a no-op", func(t *testing.T) {
		b := newBusBackend()
		b.mergeTags(map[string]interface{}{"title": "late"})
	})

	t.Run("unexpected payload shape ignored", func(t *testing.T) {
		b := newBusBackend()
		b.info = &mediainfo.StreamInfo{}
		b.mergeTags("not a map")
		assert.Empty(t, b.info.Title)
	})
}

func TestStateTransitions(t *testing.T) {
	tests := []struct {
		from, to state
		ok       bool
	}{
		{stateIdle, stateLoaded, true},
		{stateLoaded, stateSeeking, true},
		{stateSeeking, stateCapturing, true},
		{stateCapturing, stateLoaded, true},
		{stateLoaded, stateIdle, true},
		{stateIdle, stateSeeking, false},
		{stateIdle, stateCapturing, false},
		{stateSeeking, stateIdle, false},
		{stateClosed, stateIdle, false},
		{stateLoaded, stateClosed, true},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.ok, canTransition(tc.from, tc.to), "%s -> %s", tc.from, tc.to)
	}
}

func TestCaptureWithoutLoad(t *testing.T) {
	b := newBusBackend()
	_, err := b.CaptureFrame(context.Background(), 1000, "")
	assert.ErrorIs(t, err, capture.ErrNoFileLoaded)
}

func TestPendingFatalShortCircuitsCapture(t *testing.T) {
	b := newBusBackend()
	b.state = stateLoaded
	b.handleEvent(&mpvipc.Event{Name: "end-file", Reason: "error"})

	_, err := b.CaptureFrame(context.Background(), 1000, "")
	assert.ErrorIs(t, err, capture.ErrBackendFatal)
}

func TestTimeConversion(t *testing.T) {
	b := newBusBackend()
	assert.InDelta(t, 12.5, b.TimeToSeconds(12500), 1e-9)
	assert.InDelta(t, 500.0, b.CapturePadding(), 1e-9)
}

// Integration coverage below drives a real engine and therefore needs both
// mpv and ffmpeg installed.

func skipIfNoEngine(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("mpv"); err != nil {
		t.Skip("mpv not installed")
	}
	if _, err := exec.LookPath("ffmpeg"); err != nil {
		t.Skip("ffmpeg not installed")
	}
}

func createTestVideo(t *testing.T, seconds int) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.mkv")
	cmd := exec.Command("ffmpeg",
		"-f", "lavfi", "-i", "testsrc=size=320x240:rate=25",
		"-t", strconv.Itoa(seconds),
		"-c:v", "libx264", "-preset", "ultrafast",
		"-y", path,
	)
	require.NoError(t, cmd.Run(), "ffmpeg failed to create test video")
	return path
}

func TestIntegration_CaptureFlow(t *testing.T) {
	skipIfNoEngine(t)

	video := createTestVideo(t, 2)

	b, err := New(Options{LoadTimeout: 15 * time.Second, CaptureTimeout: 15 * time.Second},
		slog.New(slog.DiscardHandler))
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.Close() })

	info, err := b.Load(context.Background(), video)
	require.NoError(t, err)
	assert.InDelta(t, 2000.0, info.Duration, 250)
	assert.Equal(t, 320, info.Width)
	assert.Equal(t, 240, info.Height)

	t.Run("double load rejected", func(t *testing.T) {
		_, err := b.Load(context.Background(), video)
		assert.ErrorIs(t, err, capture.ErrFileLoaded)
	})

	dest := filepath.Join(t.TempDir(), "frame.png")
	ts, err := b.CaptureFrame(context.Background(), 1000, dest)
	require.NoError(t, err)
	assert.FileExists(t, dest)
	assert.InDelta(t, 1000.0, ts, 500)

	_, err = b.CaptureFrame(context.Background(), 1500, "")
	require.NoError(t, err)

	require.NoError(t, b.Unload())
	require.NoError(t, b.Unload())
}
