package mplayer

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tmorran/vidsheet/internal/capture"
)

// writeFakeTool writes an executable shell script standing in for an external
// binary, so backend behavior is testable without mplayer installed.
func writeFakeTool(t *testing.T, dir, name, script string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("fake tool scripts require a POSIX shell")
	}
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+script), 0o755))
	return path
}

// fakeMPlayerScript emulates mplayer's single-frame png output: it locates the
// outdir and -ss arguments and writes the scratch frame when the seek target
// is within maxSeekable seconds.
func fakeMPlayerScript(maxSeekable float64) string {
	return fmt.Sprintf(`
while [ $# -gt 0 ]; do
  case "$1" in
    -vo) vo="$2"; shift 2 ;;
    -ss) ss="$2"; shift 2 ;;
    *) shift ;;
  esac
done
outdir="${vo#png:z=3:outdir=}"
if awk "BEGIN { exit !($ss <= %f) }"; then
  : > "$outdir/00000001.png"
fi
`, maxSeekable)
}

func probeScript(lines ...string) string {
	s := ""
	for _, l := range lines {
		s += "echo '" + l + "'\n"
	}
	return s
}

func newTestBackend(t *testing.T, mplayerScript, midentifyScript string) *Backend {
	t.Helper()
	dir := t.TempDir()
	b, err := New(Options{
		MPlayerPath:   writeFakeTool(t, dir, "mplayer", mplayerScript),
		MIdentifyPath: writeFakeTool(t, dir, "midentify", midentifyScript),
	}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.Close() })
	return b
}

func TestParseProbeOutput(t *testing.T) {
	t.Run("full field table", func(t *testing.T) {
		out := "ID_LENGTH=5427.34\n" +
			"ID_VIDEO_WIDTH=1920\n" +
			"ID_VIDEO_HEIGHT=1080\n" +
			"ID_VIDEO_FPS=23.976\n" +
			"ID_VIDEO_BITRATE=2300000\n" +
			"ID_VIDEO_FORMAT=H264\n" +
			"ID_AUDIO_NCH=2\n" +
			"ID_AUDIO_RATE=48000\n" +
			"ID_AUDIO_BITRATE=192000\n" +
			"ID_AUDIO_CODEC=ffaac\n"

		info, err := parseProbeOutput(out)
		require.NoError(t, err)
		assert.InDelta(t, 5427.34, info.Duration, 1e-9)
		assert.Equal(t, 1920, info.Width)
		assert.Equal(t, 1080, info.Height)
		assert.InDelta(t, 23.976, info.VideoFramerate, 1e-9)
		assert.InDelta(t, 2300000.0, info.VideoBitrate, 1e-9)
		assert.Equal(t, "H264", info.VideoCodec)
		assert.Equal(t, 2, info.AudioChannels)
		assert.InDelta(t, 48000.0, info.AudioRate, 1e-9)
		assert.InDelta(t, 192000.0, info.AudioBitrate, 1e-9)
		assert.Equal(t, "ffaac", info.AudioCodec)
	})

	t.Run("unknown keys ignored", func(t *testing.T) {
		info, err := parseProbeOutput("ID_LENGTH=10\nID_DEMUXER=lavf\nID_EXIT=EOF\n")
		require.NoError(t, err)
		assert.InDelta(t, 10.0, info.Duration, 1e-9)
	})

	t.Run("escapes stripped", func(t *testing.T) {
		info, err := parseProbeOutput("ID_LENGTH=10\nID_VIDEO_FORMAT=WMV\\3\n")
		require.NoError(t, err)
		assert.Equal(t, "WMV3", info.VideoCodec)
	})

	t.Run("blank lines and CR tolerated", func(t *testing.T) {
		info, err := parseProbeOutput("ID_LENGTH=10\r\n\r\nID_VIDEO_WIDTH=640\r\n")
		require.NoError(t, err)
		assert.Equal(t, 640, info.Width)
	})

	t.Run("line without separator is fatal", func(t *testing.T) {
		_, err := parseProbeOutput("ID_LENGTH=10\ngarbage output\n")
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrMalformedProbeLine)
	})

	t.Run("unparsable number is fatal", func(t *testing.T) {
		_, err := parseProbeOutput("ID_VIDEO_WIDTH=wide\n")
		require.Error(t, err)
	})
}

func TestLoad(t *testing.T) {
	b := newTestBackend(t,
		fakeMPlayerScript(1e9),
		probeScript("ID_LENGTH=120.0", "ID_VIDEO_WIDTH=1280", "ID_VIDEO_HEIGHT=720", "ID_VIDEO_FPS=25.0"),
	)

	info, err := b.Load(context.Background(), "movie.avi")
	require.NoError(t, err)
	assert.InDelta(t, 120.0, info.Duration, 1e-9)
	assert.Equal(t, 1280, info.Width)
	assert.InDelta(t, 25.0, info.VideoFramerate, 1e-9)

	// This backend's native unit is seconds.
	assert.InDelta(t, 120.0, b.TimeToSeconds(info.Duration), 1e-9)

	t.Run("second load without unload fails", func(t *testing.T) {
		_, err := b.Load(context.Background(), "other.avi")
		assert.ErrorIs(t, err, capture.ErrFileLoaded)
	})

	t.Run("unload then load succeeds", func(t *testing.T) {
		require.NoError(t, b.Unload())
		require.NoError(t, b.Unload()) // idempotent
		_, err := b.Load(context.Background(), "other.avi")
		assert.NoError(t, err)
	})
}

func TestLoad_ProbeFailure(t *testing.T) {
	b := newTestBackend(t, fakeMPlayerScript(1e9), "exit 1\n")

	_, err := b.Load(context.Background(), "broken.wmv")
	require.Error(t, err)
	assert.True(t, capture.IsUnsupportedMedia(err))
}

func TestLoad_MalformedProbeOutput(t *testing.T) {
	b := newTestBackend(t, fakeMPlayerScript(1e9), probeScript("ID_LENGTH=10", "not a key value pair"))

	_, err := b.Load(context.Background(), "odd.mkv")
	require.Error(t, err)
	assert.True(t, capture.IsUnsupportedMedia(err))
}

func TestLoad_SentinelCalibration(t *testing.T) {
	// midentify reports the framerate sentinel with a nominal duration of
	// 100s, while the decoder can only seek up to 70s: calibration should
	// land the corrected duration just below 70s and drop the unreliable
	// framerate and bitrate.
	b := newTestBackend(t,
		fakeMPlayerScript(70),
		probeScript("ID_LENGTH=100.0", "ID_VIDEO_FPS=1000.000", "ID_VIDEO_BITRATE=512000"),
	)

	info, err := b.Load(context.Background(), "broken.wmv")
	require.NoError(t, err)

	assert.LessOrEqual(t, info.Duration, 70.0)
	assert.InDelta(t, 70.0, info.Duration, 0.5)
	assert.Zero(t, info.VideoFramerate)
	assert.Zero(t, info.VideoBitrate)

	// Display times map back onto the nominal timeline.
	assert.InDelta(t, 100.0, b.TimeToSeconds(info.Duration), 0.5)
}

func TestCaptureFrame(t *testing.T) {
	b := newTestBackend(t, fakeMPlayerScript(60), probeScript("ID_LENGTH=120.0"))

	_, err := b.Load(context.Background(), "movie.avi")
	require.NoError(t, err)

	t.Run("success moves frame to destination", func(t *testing.T) {
		dest := filepath.Join(t.TempDir(), "frame-1.png")
		ts, err := b.CaptureFrame(context.Background(), 30, dest)
		require.NoError(t, err)
		assert.InDelta(t, 30.0, ts, 1e-9)
		assert.FileExists(t, dest)
	})

	t.Run("empty destination discards frame", func(t *testing.T) {
		_, err := b.CaptureFrame(context.Background(), 30, "")
		require.NoError(t, err)
		entries, err := os.ReadDir(b.scratch)
		require.NoError(t, err)
		assert.Empty(t, entries)
	})

	t.Run("missing output is a per-frame failure", func(t *testing.T) {
		_, err := b.CaptureFrame(context.Background(), 90, filepath.Join(t.TempDir(), "frame-2.png"))
		require.Error(t, err)
		assert.ErrorIs(t, err, capture.ErrCaptureFailed)
		assert.NotErrorIs(t, err, capture.ErrBackendFatal)
	})

	t.Run("capture without load fails", func(t *testing.T) {
		require.NoError(t, b.Unload())
		_, err := b.CaptureFrame(context.Background(), 10, "")
		assert.ErrorIs(t, err, capture.ErrNoFileLoaded)
	})
}

func TestCapturePadding(t *testing.T) {
	b := newTestBackend(t, fakeMPlayerScript(1), probeScript("ID_LENGTH=1"))
	assert.InDelta(t, 0.5, b.CapturePadding(), 1e-9)
}
