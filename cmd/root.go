// Package cmd implements the vidsheet command line interface.
package cmd

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/tmorran/vidsheet/internal/bootstrap"
	"github.com/tmorran/vidsheet/internal/capture"
	"github.com/tmorran/vidsheet/internal/config"
	"github.com/tmorran/vidsheet/internal/preview"
	"github.com/tmorran/vidsheet/internal/sheet"
	"github.com/tmorran/vidsheet/internal/timeline"
)

var rootCmd = &cobra.Command{
	Use:   "vidsheet [flags] FILE [FILE ...]",
	Short: "Generate contact-sheet previews for video files",
	Long: `vidsheet captures a grid of thumbnails from each video file and
assembles them into a single annotated contact sheet, saved next to the
source file (or to --output, or to S3 when configured).`,
	Args:          cobra.MinimumNArgs(1),
	RunE:          run,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	bindFlags(rootCmd.Flags())
}

func bindFlags(flags *pflag.FlagSet) {
	flags.IntP("rows", "r", 6, "Number of rows in the generated grid")
	flags.IntP("cols", "c", 4, "Number of columns in the generated grid")
	flags.StringP("title", "t", "", "Sheet title (defaults to the video's title tag or filename)")
	flags.IntP("width", "W", 0, "Width of a single thumbnail in pixels (0 = derive from aspect ratio)")
	flags.IntP("height", "H", 0, "Height of a single thumbnail in pixels (0 = derive from aspect ratio)")
	flags.String("focus", "none", "Concentrate captures at one end of the timeline: none, begin or end")
	flags.StringP("backend", "b", "mpv", "Capture backend: mpv or mplayer")
	flags.StringP("output", "o", "", "Directory for finished sheets (default: next to each video)")

	bindStyleFlags(flags)
}

func bindStyleFlags(fs *pflag.FlagSet) {
	style := sheet.DefaultStyle()
	fs.String("background", style.Background, "Background color")
	fs.String("font-family", style.FontPath, "Path to TTF file for text")
	fs.Int("font-size", style.FontSize, "Size of text in pixels")
	fs.String("font-color", style.FontColor, "Color of the text")
	fs.String("heading-font-family", style.HeadingFontPath, "Path to TTF file for the heading")
	fs.Int("heading-font-size", style.HeadingFontSize, "Size of the heading in pixels")
	fs.String("heading-font-color", style.HeadingFontColor, "Color of the heading")
	fs.IntP("spacing", "S", style.Spacing, "Space between images in the grid in pixels")
}

func run(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger := cfg.NewLogger()
	slog.SetDefault(logger)

	opts, kind, style, outputDir, err := optionsFromFlags(cmd.Flags())
	if err != nil {
		return err
	}

	logger.Info("starting vidsheet",
		slog.String("backend", string(kind)),
		slog.Int("rows", opts.Rows),
		slog.Int("cols", opts.Cols),
		slog.String("focus", string(opts.Focus)),
		slog.Int("files", len(args)),
		slog.Bool("s3_enabled", cfg.S3Enabled()),
	)

	deps, err := bootstrap.NewDependencies(cfg, kind, opts, style, outputDir, logger)
	if err != nil {
		return err
	}
	defer func() { _ = deps.Close() }()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	published, err := deps.Previewer.Run(ctx, args)
	if err != nil {
		return err
	}

	logger.Info("run finished",
		slog.Int("published", published),
		slog.Int("requested", len(args)),
	)
	if published == 0 {
		return errors.New("no sheets generated")
	}
	return nil
}

func optionsFromFlags(fs *pflag.FlagSet) (preview.Options, capture.Kind, sheet.Style, string, error) {
	rows, _ := fs.GetInt("rows")
	cols, _ := fs.GetInt("cols")
	title, _ := fs.GetString("title")
	width, _ := fs.GetInt("width")
	height, _ := fs.GetInt("height")
	focus, _ := fs.GetString("focus")
	backend, _ := fs.GetString("backend")
	output, _ := fs.GetString("output")

	opts := preview.Options{
		Rows:   rows,
		Cols:   cols,
		Width:  width,
		Height: height,
		Title:  title,
		Focus:  timeline.Focus(focus),
	}
	if err := opts.Validate(); err != nil {
		return preview.Options{}, "", sheet.Style{}, "", err
	}

	kind := capture.Kind(backend)
	if !kind.IsValid() {
		return preview.Options{}, "", sheet.Style{}, "", fmt.Errorf("unknown backend %q", backend)
	}

	style := sheet.DefaultStyle()
	style.Background, _ = fs.GetString("background")
	style.FontPath, _ = fs.GetString("font-family")
	style.FontSize, _ = fs.GetInt("font-size")
	style.FontColor, _ = fs.GetString("font-color")
	style.HeadingFontPath, _ = fs.GetString("heading-font-family")
	style.HeadingFontSize, _ = fs.GetInt("heading-font-size")
	style.HeadingFontColor, _ = fs.GetString("heading-font-color")
	style.Spacing, _ = fs.GetInt("spacing")

	return opts, kind, style, output, nil
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
