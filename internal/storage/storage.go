// Package storage decides where finished contact sheets end up and manages
// the scratch space intermediate frames live in while a file is processed.
// It defines the Publisher port with implementations for the local filesystem
// and S3.
package storage

import (
	"context"
	"path/filepath"
	"strings"
)

// Publisher delivers a finished contact sheet to its final location and
// returns that location (a filesystem path or a URL).
type Publisher interface {
	Publish(ctx context.Context, sheetPath, videoPath string) (location string, err error)
}

// sheetName derives the published filename for a video: its base name with
// the extension swapped for .png.
func sheetName(videoPath string) string {
	base := filepath.Base(videoPath)
	return strings.TrimSuffix(base, filepath.Ext(base)) + ".png"
}
