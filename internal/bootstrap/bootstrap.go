// Package bootstrap provides dependency initialization for vidsheet.
package bootstrap

import (
	"fmt"
	"log/slog"

	"github.com/google/shlex"

	"github.com/tmorran/vidsheet/internal/capture"
	"github.com/tmorran/vidsheet/internal/capture/mplayer"
	"github.com/tmorran/vidsheet/internal/capture/mpv"
	"github.com/tmorran/vidsheet/internal/config"
	"github.com/tmorran/vidsheet/internal/preview"
	"github.com/tmorran/vidsheet/internal/sheet"
	"github.com/tmorran/vidsheet/internal/storage"
)

// Dependencies holds all initialized dependencies for a preview run. Close
// releases the capture backend and the scratch workspace.
type Dependencies struct {
	Previewer *preview.Previewer

	backend   capture.Backend
	workspace *storage.Workspace
}

// NewDependencies wires backend, composer, publisher and workspace into a
// ready Previewer.
func NewDependencies(
	cfg *config.Config,
	kind capture.Kind,
	opts preview.Options,
	style sheet.Style,
	outputDir string,
	logger *slog.Logger,
) (*Dependencies, error) {
	backend, err := NewBackend(cfg, kind, logger)
	if err != nil {
		return nil, err
	}

	workspace, err := storage.NewWorkspace(cfg.TempDir)
	if err != nil {
		_ = backend.Close()
		return nil, err
	}

	publisher, err := initPublisher(cfg, outputDir, logger)
	if err != nil {
		_ = backend.Close()
		_ = workspace.Cleanup()
		return nil, err
	}

	composer := sheet.NewComposer(cfg.ConvertPath, cfg.MontagePath, style, logger)

	previewer, err := preview.New(backend, composer, publisher, workspace, opts, logger)
	if err != nil {
		_ = backend.Close()
		_ = workspace.Cleanup()
		return nil, err
	}

	return &Dependencies{
		Previewer: previewer,
		backend:   backend,
		workspace: workspace,
	}, nil
}

// Close releases everything NewDependencies acquired.
func (d *Dependencies) Close() error {
	err := d.backend.Close()
	if cleanupErr := d.workspace.Cleanup(); err == nil {
		err = cleanupErr
	}
	return err
}

// NewBackend creates the capture backend for the requested kind.
func NewBackend(cfg *config.Config, kind capture.Kind, logger *slog.Logger) (capture.Backend, error) {
	switch kind {
	case capture.KindMPV:
		extraArgs, err := shlex.Split(cfg.MPVExtraArgs)
		if err != nil {
			return nil, fmt.Errorf("parse engine extra args: %w", err)
		}
		return mpv.New(mpv.Options{
			MPVPath:        cfg.MPVPath,
			ExtraArgs:      extraArgs,
			LoadTimeout:    cfg.LoadTimeout,
			CaptureTimeout: cfg.CaptureTimeout,
		}, logger)
	case capture.KindMPlayer:
		return mplayer.New(mplayer.Options{
			MPlayerPath:   cfg.MPlayerPath,
			MIdentifyPath: cfg.MIdentifyPath,
			Timeout:       cfg.CaptureTimeout,
		}, logger)
	default:
		return nil, fmt.Errorf("unknown backend %q", kind)
	}
}

// initPublisher creates the appropriate publisher based on configuration.
func initPublisher(cfg *config.Config, outputDir string, logger *slog.Logger) (storage.Publisher, error) {
	if cfg.S3Enabled() {
		publisher, err := storage.NewS3Publisher(storage.S3Config{
			Bucket:          cfg.S3Bucket,
			Region:          cfg.S3Region,
			Endpoint:        cfg.S3Endpoint,
			AccessKeyID:     cfg.AWSAccessKeyID,
			SecretAccessKey: cfg.AWSSecretAccessKey,
			KeyPrefix:       cfg.S3KeyPrefix,
		})
		if err != nil {
			return nil, fmt.Errorf("create S3 publisher: %w", err)
		}
		logger.Info("S3 publishing configured",
			slog.String("bucket", cfg.S3Bucket),
			slog.String("region", cfg.S3Region),
		)
		return publisher, nil
	}

	publisher, err := storage.NewLocalPublisher(outputDir)
	if err != nil {
		return nil, fmt.Errorf("create local publisher: %w", err)
	}
	logger.Info("local publishing configured",
		slog.String("output_dir", outputDir),
	)
	return publisher, nil
}
