// Package sheet turns captured frames into the final contact sheet. All
// raster work is delegated to ImageMagick's convert and montage tools; this
// package only builds command lines and text.
package sheet

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
)

// Static errors for sheet composition.
var (
	// ErrNoFrames is returned when a sheet is requested with no frames.
	ErrNoFrames = errors.New("no frames to compose")
	// ErrMontageMissing is returned when montage exits cleanly but produced
	// no output file.
	ErrMontageMissing = errors.New("montage produced no output")
)

// Style holds the visual options for the sheet.
type Style struct {
	Background       string
	FontPath         string
	FontSize         int
	FontColor        string
	HeadingFontPath  string
	HeadingFontSize  int
	HeadingFontColor string
	Spacing          int
}

// DefaultStyle returns the stock dark theme.
func DefaultStyle() Style {
	return Style{
		Background:       "#2f2f2f",
		FontPath:         "/usr/share/fonts/truetype/ttf-dejavu/DejaVuSansMono.ttf",
		FontSize:         12,
		FontColor:        "#eeeeee",
		HeadingFontPath:  "/usr/share/fonts/truetype/ttf-dejavu/DejaVuSansMono-Bold.ttf",
		HeadingFontSize:  24,
		HeadingFontColor: "#575757",
		Spacing:          4,
	}
}

// Composer runs ImageMagick to assemble contact sheets.
type Composer struct {
	convertPath string
	montagePath string
	style       Style
	logger      *slog.Logger
}

// NewComposer creates a Composer. Empty tool paths default to the bare
// command names, resolved via PATH.
func NewComposer(convertPath, montagePath string, style Style, logger *slog.Logger) *Composer {
	if convertPath == "" {
		convertPath = "convert"
	}
	if montagePath == "" {
		montagePath = "montage"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Composer{
		convertPath: convertPath,
		montagePath: montagePath,
		style:       style,
		logger:      logger,
	}
}

// AnnotateFrame resizes a captured frame in place to width x height and
// stamps its display timestamp into the top-right corner.
func (c *Composer) AnnotateFrame(ctx context.Context, path string, width, height int, seconds float64) error {
	args := []string{
		path,
		"-resize", fmt.Sprintf("%dx%d!", width, height),
		"-fill", c.style.FontColor,
		"-undercolor", c.style.Background + "80",
		"-font", c.style.FontPath,
		"-pointsize", fmt.Sprintf("%d", c.style.FontSize),
		"-gravity", "NorthEast",
		"-annotate", "+0+0", " " + FormatDuration(seconds) + " ",
		"-bordercolor", c.style.FontColor,
		"-border", "1x1",
		path,
	}
	return c.run(ctx, c.convertPath, args)
}

// ComposeSheet tiles the frames into a grid and prepends the title and
// header block. The finished sheet is written to workDir and its path
// returned. When fewer frames than rows*cols survived capture the row count
// is recomputed so the grid stays dense.
func (c *Composer) ComposeSheet(ctx context.Context, workDir string, frames []string, cols, rows int, title, header string) (string, error) {
	if len(frames) == 0 {
		return "", ErrNoFrames
	}

	if len(frames) != rows*cols {
		rows = (len(frames) + cols - 1) / cols
		c.logger.Info("partial capture set, recomputed grid",
			slog.Int("frames", len(frames)),
			slog.Int("rows", rows),
			slog.Int("cols", cols),
		)
	}

	out := filepath.Join(workDir, "sheet.png")

	args := []string{
		"-geometry", fmt.Sprintf("+%d+%d", c.style.Spacing, c.style.Spacing),
		"-background", c.style.Background,
		"-fill", c.style.FontColor,
		"-tile", fmt.Sprintf("%dx%d", cols, rows),
	}
	args = append(args, frames...)
	args = append(args, out)
	if err := c.run(ctx, c.montagePath, args); err != nil {
		return "", err
	}
	if _, err := os.Stat(out); err != nil {
		return "", ErrMontageMissing
	}

	args = []string{
		"-background", c.style.Background,
		"-bordercolor", c.style.Background,

		"-fill", c.style.HeadingFontColor,
		"-font", c.style.HeadingFontPath,
		"-pointsize", fmt.Sprintf("%d", c.style.HeadingFontSize),
		"label:" + title,

		"-fill", c.style.FontColor,
		"-font", c.style.FontPath,
		"-pointsize", fmt.Sprintf("%d", c.style.FontSize),
		"label:" + header,

		"-border", fmt.Sprintf("%dx%d", c.style.Spacing, 0),

		out,
		"-border", fmt.Sprintf("%dx%d", c.style.Spacing, c.style.Spacing),
		"-append",
		out,
	}
	if err := c.run(ctx, c.convertPath, args); err != nil {
		return "", err
	}

	return out, nil
}

// run executes an ImageMagick tool and returns a ToolError carrying stderr
// when it fails.
func (c *Composer) run(ctx context.Context, tool string, args []string) error {
	// #nosec G204 - tool paths are set by the application, not user input
	cmd := exec.CommandContext(ctx, tool, args...)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("%s cancelled: %w", filepath.Base(tool), ctx.Err())
		}
		return &ToolError{
			Tool:   filepath.Base(tool),
			Args:   args,
			Stderr: stderr.String(),
			Err:    err,
		}
	}
	return nil
}

// ToolError represents a failed ImageMagick invocation, including its stderr.
type ToolError struct {
	Tool   string
	Args   []string
	Stderr string
	Err    error
}

func (e *ToolError) Error() string {
	return fmt.Sprintf("%s error: %v\nargs: %v\nstderr: %s", e.Tool, e.Err, e.Args, e.Stderr)
}

func (e *ToolError) Unwrap() error {
	return e.Err
}
