// Package preview orchestrates contact-sheet generation across a batch of
// input files: capture, annotation, montage and publishing. Files are
// processed independently; one broken video never aborts the run.
package preview

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/go-playground/validator/v10"

	"github.com/tmorran/vidsheet/internal/capture"
	"github.com/tmorran/vidsheet/internal/mediainfo"
	"github.com/tmorran/vidsheet/internal/sheet"
	"github.com/tmorran/vidsheet/internal/storage"
	"github.com/tmorran/vidsheet/internal/timeline"
)

// ErrInvalidFocus is returned when Options carries an unknown focus value.
var ErrInvalidFocus = errors.New("preview: invalid focus")

// Options holds the per-run choices for sheet generation.
type Options struct {
	// Rows and Cols define the grid; Rows*Cols frames are captured.
	Rows int `validate:"gt=0"`
	Cols int `validate:"gt=0"`
	// Width and Height size individual thumbnails. Zero means derive from
	// the video's aspect ratio.
	Width  int `validate:"gte=0"`
	Height int `validate:"gte=0"`
	// Title overrides the sheet heading. Empty falls back to the video's
	// title tag, then its filename.
	Title string
	// Focus skews captures toward the beginning or end of the timeline.
	Focus timeline.Focus
}

// Validate checks the option invariants.
func (o Options) Validate() error {
	if err := validator.New().Struct(o); err != nil {
		return fmt.Errorf("preview: invalid options: %w", err)
	}
	if !o.Focus.IsValid() {
		return fmt.Errorf("%w: %q", ErrInvalidFocus, o.Focus)
	}
	return nil
}

// composer is the slice of sheet.Composer the orchestrator needs.
type composer interface {
	AnnotateFrame(ctx context.Context, path string, width, height int, seconds float64) error
	ComposeSheet(ctx context.Context, workDir string, frames []string, cols, rows int, title, header string) (string, error)
}

// Previewer generates one contact sheet per input file.
type Previewer struct {
	backend   capture.Backend
	composer  composer
	publisher storage.Publisher
	workspace *storage.Workspace
	opts      Options
	logger    *slog.Logger
}

// New creates a Previewer. Options are validated up front.
func New(
	backend capture.Backend,
	comp composer,
	publisher storage.Publisher,
	workspace *storage.Workspace,
	opts Options,
	logger *slog.Logger,
) (*Previewer, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Previewer{
		backend:   backend,
		composer:  comp,
		publisher: publisher,
		workspace: workspace,
		opts:      opts,
		logger:    logger,
	}, nil
}

// Run processes every file in order and returns how many sheets were
// published. Per-file failures (missing file, unsupported media, composition
// errors) are logged and skipped; a backend-fatal error or cancelled context
// stops the run.
func (p *Previewer) Run(ctx context.Context, files []string) (int, error) {
	published := 0
	for _, file := range files {
		if err := ctx.Err(); err != nil {
			return published, err
		}

		if err := p.processFile(ctx, file); err != nil {
			if errors.Is(err, capture.ErrBackendFatal) || errors.Is(err, context.Canceled) {
				return published, err
			}
			p.logger.Error("skipping file",
				slog.String("file", file),
				slog.String("error", err.Error()),
			)
			continue
		}
		published++
	}
	return published, nil
}

func (p *Previewer) processFile(ctx context.Context, file string) error {
	p.logger.Info("processing file", slog.String("file", file))

	stat, err := os.Stat(file)
	if err != nil {
		return fmt.Errorf("stat input: %w", err)
	}

	frameDir, err := p.workspace.FrameDir()
	if err != nil {
		return err
	}
	defer func() { _ = os.RemoveAll(frameDir) }()

	session := capture.NewSession(p.backend, frameDir, p.logger)
	info, results, err := session.Run(ctx, file, p.opts.Rows*p.opts.Cols, p.opts.Focus)
	if err != nil {
		return err
	}
	if len(results) == 0 {
		return errors.New("no frames captured")
	}

	width, height := sheet.ThumbnailSize(info, p.opts.Width, p.opts.Height)
	p.logger.Debug("thumbnail size resolved",
		slog.Int("width", width),
		slog.Int("height", height),
	)

	frames := make([]string, 0, len(results))
	for _, r := range results {
		seconds := p.backend.TimeToSeconds(r.Timestamp)
		if err := p.composer.AnnotateFrame(ctx, r.Path, width, height, seconds); err != nil {
			return fmt.Errorf("annotate frame: %w", err)
		}
		frames = append(frames, r.Path)
	}

	header := sheet.HeaderText(info, stat.Size(), p.backend.TimeToSeconds(info.Duration))
	sheetPath, err := p.composer.ComposeSheet(ctx, frameDir, frames,
		p.opts.Cols, p.opts.Rows, p.title(file, info), header)
	if err != nil {
		return fmt.Errorf("compose sheet: %w", err)
	}

	location, err := p.publisher.Publish(ctx, sheetPath, file)
	if err != nil {
		return err
	}

	p.logger.Info("sheet published",
		slog.String("file", file),
		slog.String("location", location),
	)
	return nil
}

// title resolves the sheet heading: explicit option, then the video's title
// tag, then its filename.
func (p *Previewer) title(file string, info *mediainfo.StreamInfo) string {
	if p.opts.Title != "" {
		return p.opts.Title
	}
	if info.Title != "" {
		return info.Title
	}
	return filepath.Base(file)
}
