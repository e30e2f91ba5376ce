package storage

import (
	"fmt"
	"os"
)

// Workspace owns the per-run scratch directory that captured frames are
// written into before composition. One frame directory is handed out per
// processed file; Cleanup removes everything at once.
type Workspace struct {
	root string
}

// NewWorkspace creates a scratch directory under baseDir. An empty baseDir
// falls back to the system temp directory.
func NewWorkspace(baseDir string) (*Workspace, error) {
	if baseDir != "" {
		if err := os.MkdirAll(baseDir, 0750); err != nil {
			return nil, fmt.Errorf("create workspace base: %w", err)
		}
	}

	root, err := os.MkdirTemp(baseDir, "vidsheet-*")
	if err != nil {
		return nil, fmt.Errorf("create workspace: %w", err)
	}
	return &Workspace{root: root}, nil
}

// Root returns the workspace directory path.
func (w *Workspace) Root() string {
	return w.root
}

// FrameDir creates a fresh directory for one file's captured frames.
func (w *Workspace) FrameDir() (string, error) {
	dir, err := os.MkdirTemp(w.root, "frames-*")
	if err != nil {
		return "", fmt.Errorf("create frame directory: %w", err)
	}
	return dir, nil
}

// Cleanup removes the workspace and everything in it.
func (w *Workspace) Cleanup() error {
	return os.RemoveAll(w.root)
}
