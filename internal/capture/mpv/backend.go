// Package mpv implements the event-driven capture backend on top of a
// headless mpv engine process controlled over its JSON IPC socket.
//
// The engine is asynchronous: commands return immediately and progress is
// reported as events on the IPC bus. One background goroutine drains the bus
// for the lifetime of the backend and forwards load completion, seek
// completion, tag metadata and fatal errors onto channels; the caller's
// goroutine issues all engine mutations (load, seek, screenshot) and blocks
// on those channels with a timeout.
//
// The backend's native time unit is milliseconds.
package mpv

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/dexterlb/mpvipc"
	"github.com/go-playground/validator/v10"

	"github.com/tmorran/vidsheet/internal/capture"
	"github.com/tmorran/vidsheet/internal/mediainfo"
)

const (
	// capturePadding is the reserved margin at both timeline ends, in
	// milliseconds (this backend's native unit).
	capturePadding = 500.0

	millisPerSecond = 1000.0

	// metadataPropertyID tags the observed metadata property so tag updates
	// can be told apart on the event bus.
	metadataPropertyID = 1

	// durationPollInterval paces the bounded retry loop waiting for the
	// engine to resolve the duration after a load.
	durationPollInterval = 100 * time.Millisecond

	// scratchFrame receives screenshot output before it is moved to its
	// destination.
	scratchFrame = "shot.png"
)

// Options configures the event-driven backend.
type Options struct {
	// MPVPath locates the mpv executable. Defaults to "mpv".
	MPVPath string `validate:"required"`
	// SocketPath overrides the IPC socket location. Defaults to a path
	// inside the backend's scratch directory.
	SocketPath string
	// ExtraArgs are appended to the engine command line.
	ExtraArgs []string
	// LoadTimeout bounds engine startup and per-file metadata resolution.
	// Defaults to 30s.
	LoadTimeout time.Duration `validate:"gte=0"`
	// CaptureTimeout bounds the wait for a single seek+capture. Defaults
	// to 30s.
	CaptureTimeout time.Duration `validate:"gte=0"`
}

// Session states. Transitions outside the table indicate a misuse of the
// backend (capture before load, double load) and are rejected.
type state string

const (
	stateIdle      state = "idle"
	stateLoaded    state = "loaded"
	stateSeeking   state = "seeking"
	stateCapturing state = "capturing"
	stateClosed    state = "closed"
)

var validTransitions = map[state][]state{
	stateIdle:      {stateLoaded, stateClosed},
	stateLoaded:    {stateSeeking, stateIdle, stateClosed},
	stateSeeking:   {stateCapturing, stateLoaded, stateClosed},
	stateCapturing: {stateLoaded, stateClosed},
	stateClosed:    {},
}

func canTransition(from, to state) bool {
	for _, s := range validTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Backend drives one mpv engine process. Not safe for concurrent use; the
// only cross-goroutine traffic is the event flow from the bus drain
// goroutine, synchronized through channels and the info mutex.
type Backend struct {
	opts    Options
	logger  *slog.Logger
	scratch string

	cmd  *exec.Cmd
	conn *mpvipc.Connection

	mu    sync.Mutex
	state state
	info  *mediainfo.StreamInfo

	loads chan error    // load outcome: nil on file-loaded, error on engine failure
	seeks chan struct{} // seek completion (playback-restart)
	fatal chan error    // unrecoverable engine errors
	done  chan struct{} // closed when the drain goroutine exits
}

// New spawns the engine process, connects to its IPC socket and starts the
// bus drain goroutine.
func New(opts Options, logger *slog.Logger) (*Backend, error) {
	if opts.MPVPath == "" {
		opts.MPVPath = "mpv"
	}
	if opts.LoadTimeout == 0 {
		opts.LoadTimeout = 30 * time.Second
	}
	if opts.CaptureTimeout == 0 {
		opts.CaptureTimeout = 30 * time.Second
	}
	if err := validator.New().Struct(opts); err != nil {
		return nil, fmt.Errorf("mpv: invalid options: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}

	scratch, err := os.MkdirTemp("", "vidsheet-mpv-*")
	if err != nil {
		return nil, fmt.Errorf("mpv: create scratch dir: %w", err)
	}
	if opts.SocketPath == "" {
		opts.SocketPath = filepath.Join(scratch, "ipc.sock")
	}

	args := append([]string{
		"--no-config",
		"--idle=yes",
		"--pause",
		"--no-terminal",
		"--force-window=no",
		"--keep-open=yes",
		"--vo=null",
		"--ao=null",
		"--input-ipc-server=" + opts.SocketPath,
	}, opts.ExtraArgs...)

	cmd := exec.Command(opts.MPVPath, args...) // #nosec G204 - path comes from configuration
	if err := cmd.Start(); err != nil {
		_ = os.RemoveAll(scratch)
		return nil, fmt.Errorf("mpv: start engine: %w", err)
	}

	b := &Backend{
		opts:    opts,
		logger:  logger,
		scratch: scratch,
		cmd:     cmd,
		state:   stateIdle,
		loads:   make(chan error, 1),
		seeks:   make(chan struct{}, 1),
		fatal:   make(chan error, 1),
		done:    make(chan struct{}),
	}

	if err := b.connect(); err != nil {
		_ = cmd.Process.Kill()
		_, _ = cmd.Process.Wait()
		_ = os.RemoveAll(scratch)
		return nil, err
	}

	return b, nil
}

// connect opens the IPC connection with bounded retry (the engine creates the
// socket asynchronously after startup) and wires the event listener.
func (b *Backend) connect() error {
	conn := mpvipc.NewConnection(b.opts.SocketPath)

	deadline := time.Now().Add(b.opts.LoadTimeout)
	for {
		err := conn.Open()
		if err == nil {
			break
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("mpv: connect to engine socket: %w", err)
		}
		time.Sleep(durationPollInterval)
	}
	b.conn = conn

	events, stopListening := conn.NewEventListener()
	go func() {
		conn.WaitUntilClosed()
		stopListening <- struct{}{}
	}()

	if _, err := conn.Call("observe_property", metadataPropertyID, "metadata"); err != nil {
		_ = conn.Close()
		return fmt.Errorf("mpv: observe metadata: %w", err)
	}

	go b.drainEvents(events)
	return nil
}

// drainEvents is the bus worker: it runs for the backend's whole lifetime and
// is the only goroutine that handles engine events.
func (b *Backend) drainEvents(events chan *mpvipc.Event) {
	defer close(b.done)
	for ev := range events {
		b.handleEvent(ev)
	}
}

func (b *Backend) handleEvent(ev *mpvipc.Event) {
	switch ev.Name {
	case "file-loaded":
		select {
		case b.loads <- nil:
		default:
		}

	case "end-file":
		if ev.Reason != "error" {
			return
		}
		err := fmt.Errorf("engine aborted playback: %w", capture.ErrBackendFatal)
		b.logger.Error("engine reported fatal decode error")
		select {
		case b.fatal <- err:
		default:
		}
		// A load may be blocked waiting for file-loaded.
		select {
		case b.loads <- err:
		default:
		}

	case "playback-restart":
		select {
		case b.seeks <- struct{}{}:
		default:
		}

	case "property-change":
		if ev.ID == metadataPropertyID {
			b.mergeTags(ev.Data)
		}
	}
}

// mergeTags folds an out-of-band tag map into the current StreamInfo. Tags
// arrive at arbitrary times relative to Load, so merging happens under the
// info mutex on the drain goroutine.
func (b *Backend) mergeTags(data interface{}) {
	tags, ok := data.(map[string]interface{})
	if !ok {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.info == nil {
		return
	}

	for key, value := range tags {
		s, ok := value.(string)
		if !ok {
			b.logger.Info("unexpected tag with multiple values",
				slog.String("tag", key),
				slog.Any("value", value),
			)
			continue
		}
		if strings.EqualFold(key, "title") {
			b.info.Title = s
		}
	}
}

// setState performs a checked session-state transition.
func (b *Backend) setState(to state) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !canTransition(b.state, to) {
		return fmt.Errorf("mpv: invalid transition %s -> %s", b.state, to)
	}
	b.state = to
	return nil
}

func (b *Backend) currentState() state {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// pendingFatal returns a previously reported engine failure, if any.
func (b *Backend) pendingFatal() error {
	select {
	case err := <-b.fatal:
		return err
	default:
		return nil
	}
}

// Load points the engine at path and blocks until stream metadata is
// available. The engine resolves the duration asynchronously, so after the
// load event the duration property is polled with short sleeps until it
// becomes queryable.
func (b *Backend) Load(ctx context.Context, path string) (*mediainfo.StreamInfo, error) {
	switch b.currentState() {
	case stateIdle:
	case stateClosed:
		return nil, capture.ErrBackendFatal
	default:
		return nil, capture.ErrFileLoaded
	}

	// Fresh info before the load so tag events arriving mid-load have a
	// place to land.
	b.mu.Lock()
	b.info = &mediainfo.StreamInfo{}
	b.mu.Unlock()

	// Discard events left over from a previous file.
	select {
	case <-b.loads:
	default:
	}
	select {
	case <-b.seeks:
	default:
	}

	if _, err := b.conn.Call("loadfile", path); err != nil {
		return nil, &capture.UnsupportedMediaError{Path: path, Err: err}
	}

	select {
	case err := <-b.loads:
		if err != nil {
			return nil, &capture.UnsupportedMediaError{Path: path, Err: err}
		}
	case <-time.After(b.opts.LoadTimeout):
		return nil, &capture.UnsupportedMediaError{Path: path, Err: errors.New("timed out waiting for load event")}
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	duration, err := b.awaitDuration(ctx)
	if err != nil {
		return nil, &capture.UnsupportedMediaError{Path: path, Err: err}
	}

	b.mu.Lock()
	b.info.Duration = duration * millisPerSecond
	b.introspectStreamsLocked()
	info := b.info.Clone()
	b.mu.Unlock()

	if err := b.setState(stateLoaded); err != nil {
		return nil, err
	}
	return info, nil
}

// awaitDuration polls the duration property until the engine has buffered
// enough to answer. Queries fail transiently right after a load.
func (b *Backend) awaitDuration(ctx context.Context) (float64, error) {
	deadline := time.Now().Add(b.opts.LoadTimeout)
	for {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		value, err := b.conn.Get("duration")
		if err == nil {
			if d, ok := value.(float64); ok && d > 0 {
				return d, nil
			}
		}
		if time.Now().After(deadline) {
			return 0, errors.New("timed out waiting for duration")
		}
		time.Sleep(durationPollInterval)
	}
}

// introspectStreamsLocked reads stream properties directly from the engine.
// Unlike tags these are available synchronously once the file is loaded.
// Callers hold b.mu.
func (b *Backend) introspectStreamsLocked() {
	if v, ok := b.getFloat("width"); ok {
		b.info.Width = int(v)
	}
	if v, ok := b.getFloat("height"); ok {
		b.info.Height = int(v)
	}
	if v, ok := b.getFloat("container-fps"); ok {
		b.info.VideoFramerate = v
	}
	if v, ok := b.getFloat("video-bitrate"); ok {
		b.info.VideoBitrate = v
	}
	if v, ok := b.getFloat("audio-bitrate"); ok {
		b.info.AudioBitrate = v
	}
	if v, ok := b.getFloat("audio-params/channel-count"); ok {
		b.info.AudioChannels = int(v)
	}
	if v, ok := b.getFloat("audio-params/samplerate"); ok {
		b.info.AudioRate = v
	}
	if v, err := b.conn.Get("video-format"); err == nil {
		if s, ok := v.(string); ok {
			b.info.VideoCodec = s
		}
	}
	if v, err := b.conn.Get("audio-codec-name"); err == nil {
		if s, ok := v.(string); ok {
			b.info.AudioCodec = s
		}
	}
}

// getFloat reads a numeric property, tolerating files that lack the stream
// the property describes.
func (b *Backend) getFloat(property string) (float64, bool) {
	value, err := b.conn.Get(property)
	if err != nil {
		return 0, false
	}
	f, ok := value.(float64)
	return f, ok
}

// CaptureFrame performs a flushing seek to timestamp, blocks until the engine
// confirms the seek on the bus, encodes the current frame to a scratch file
// and moves it to destination. The actual timestamp comes from the engine's
// resulting playback position, which may sit on the nearest keyframe rather
// than the requested time.
func (b *Backend) CaptureFrame(ctx context.Context, timestamp float64, destination string) (float64, error) {
	if err := b.pendingFatal(); err != nil {
		return 0, err
	}
	if err := b.setState(stateSeeking); err != nil {
		if b.currentState() == stateClosed {
			return 0, capture.ErrBackendFatal
		}
		return 0, capture.ErrNoFileLoaded
	}

	actual, err := b.captureLocked(ctx, timestamp, destination)
	if err != nil {
		if errors.Is(err, capture.ErrBackendFatal) {
			_ = b.setState(stateClosed)
			return 0, err
		}
		_ = b.setState(stateLoaded)
		return 0, err
	}

	if err := b.setState(stateLoaded); err != nil {
		return 0, err
	}
	return actual, nil
}

func (b *Backend) captureLocked(ctx context.Context, timestamp float64, destination string) (float64, error) {
	// Stale seek confirmations would satisfy the wait below prematurely.
	select {
	case <-b.seeks:
	default:
	}

	seconds := timestamp / millisPerSecond
	if _, err := b.conn.Call("seek", seconds, "absolute+exact"); err != nil {
		return 0, fmt.Errorf("seek to %.3fs: %v: %w", seconds, err, capture.ErrCaptureFailed)
	}
	if err := b.conn.Set("pause", false); err != nil {
		return 0, fmt.Errorf("resume engine: %v: %w", err, capture.ErrCaptureFailed)
	}

	select {
	case <-b.seeks:
	case err := <-b.fatal:
		return 0, err
	case <-time.After(b.opts.CaptureTimeout):
		return 0, fmt.Errorf("timed out waiting for seek to %.3fs: %w", seconds, capture.ErrCaptureFailed)
	case <-ctx.Done():
		return 0, ctx.Err()
	}

	if err := b.setState(stateCapturing); err != nil {
		return 0, err
	}
	// Freeze the engine again before encoding; the seek left it playing.
	if err := b.conn.Set("pause", true); err != nil {
		return 0, fmt.Errorf("pause engine: %v: %w", err, capture.ErrCaptureFailed)
	}

	shot := filepath.Join(b.scratch, scratchFrame)
	if _, err := b.conn.Call("screenshot-to-file", shot, "video"); err != nil {
		return 0, fmt.Errorf("screenshot at %.3fs: %v: %w", seconds, err, capture.ErrCaptureFailed)
	}
	if _, err := os.Stat(shot); err != nil {
		return 0, fmt.Errorf("no frame written at %.3fs: %w", seconds, capture.ErrCaptureFailed)
	}

	actual := timestamp
	if pos, ok := b.getFloat("time-pos"); ok {
		actual = pos * millisPerSecond
	}

	if destination == "" {
		if err := os.Remove(shot); err != nil {
			return 0, fmt.Errorf("discard frame: %w", err)
		}
		return actual, nil
	}
	if err := os.Rename(shot, destination); err != nil {
		return 0, fmt.Errorf("move frame to %s: %w", destination, err)
	}
	return actual, nil
}

// Unload stops playback and invalidates the stream metadata. Idempotent.
func (b *Backend) Unload() error {
	switch b.currentState() {
	case stateIdle, stateClosed:
		return nil
	case stateLoaded:
	default:
		return fmt.Errorf("mpv: unload during capture")
	}

	if _, err := b.conn.Call("stop"); err != nil {
		b.logger.Warn("engine stop failed", slog.String("error", err.Error()))
	}

	b.mu.Lock()
	b.info = nil
	b.mu.Unlock()
	return b.setState(stateIdle)
}

// TimeToSeconds converts engine-native milliseconds to seconds.
func (b *Backend) TimeToSeconds(t float64) float64 {
	return t / millisPerSecond
}

// CapturePadding returns the reserved timeline margin in milliseconds.
func (b *Backend) CapturePadding() float64 {
	return capturePadding
}

// Close tears the engine down: the IPC connection is closed, which ends the
// event stream and lets the drain goroutine exit, then the engine process is
// killed and the scratch directory removed.
func (b *Backend) Close() error {
	if b.currentState() == stateClosed {
		return nil
	}
	b.mu.Lock()
	b.state = stateClosed
	b.mu.Unlock()

	if b.conn != nil && !b.conn.IsClosed() {
		_ = b.conn.Close()
	}
	if b.cmd != nil && b.cmd.Process != nil {
		_ = b.cmd.Process.Kill()
		_, _ = b.cmd.Process.Wait()
	}

	select {
	case <-b.done:
	case <-time.After(time.Second):
	}

	return os.RemoveAll(b.scratch)
}

var _ capture.Backend = (*Backend)(nil)
