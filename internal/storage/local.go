package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// LocalPublisher moves finished sheets onto the local filesystem. With no
// output directory configured each sheet lands next to its source video.
type LocalPublisher struct {
	outputDir string
}

// NewLocalPublisher creates a LocalPublisher. A non-empty outputDir is
// created if missing and receives every published sheet.
func NewLocalPublisher(outputDir string) (*LocalPublisher, error) {
	if outputDir != "" {
		if err := os.MkdirAll(outputDir, 0750); err != nil {
			return nil, fmt.Errorf("create output directory: %w", err)
		}
	}
	return &LocalPublisher{outputDir: outputDir}, nil
}

// Publish moves the sheet to its destination and returns the final path.
func (p *LocalPublisher) Publish(ctx context.Context, sheetPath, videoPath string) (string, error) {
	select {
	case <-ctx.Done():
		return "", fmt.Errorf("context cancelled: %w", ctx.Err())
	default:
	}

	dir := p.outputDir
	if dir == "" {
		dir = filepath.Dir(videoPath)
	}
	dest := filepath.Join(dir, sheetName(videoPath))

	if err := moveFile(sheetPath, dest); err != nil {
		return "", fmt.Errorf("publish sheet: %w", err)
	}
	return dest, nil
}

// moveFile renames src to dst, falling back to copy+remove when the two live
// on different filesystems (the scratch dir usually does).
func moveFile(src, dst string) error {
	if err := os.Rename(src, dst); err == nil {
		return nil
	}

	in, err := os.Open(src) // #nosec G304 - paths are produced by this application
	if err != nil {
		return err
	}
	defer func() { _ = in.Close() }()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644) // #nosec G304
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		_ = os.Remove(dst)
		return err
	}
	if err := out.Close(); err != nil {
		_ = os.Remove(dst)
		return err
	}
	return os.Remove(src)
}

var _ Publisher = (*LocalPublisher)(nil)
