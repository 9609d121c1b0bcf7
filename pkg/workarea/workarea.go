// Package workarea provides the ephemeral, job-private storage scope used to
// materialize a job's dependencies and capture its output artifact. Each
// working area lives exactly as long as one job execution and is released on
// every exit path.
package workarea

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

var (
	// ErrArtifactNotFound is returned when a named artifact does not exist
	// inside the working area.
	ErrArtifactNotFound = errors.New("artifact not found in working area")

	// ErrReleased is returned by operations on an already released area.
	ErrReleased = errors.New("working area already released")
)

// WorkingArea is a uniquely named directory scope owning the dependency
// files materialized for one job and the output artifact it produces. It is
// exclusively owned by that job: never shared, never reused.
type WorkingArea struct {
	root string

	mu       sync.Mutex
	released bool
}

// New creates a fresh working area under scratchDir. An empty scratchDir
// falls back to the system temp directory.
func New(scratchDir string) (*WorkingArea, error) {
	if scratchDir != "" {
		if err := os.MkdirAll(scratchDir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create scratch root: %w", err)
		}
	}
	root, err := os.MkdirTemp(scratchDir, "crucible-job-")
	if err != nil {
		return nil, fmt.Errorf("failed to create working area: %w", err)
	}
	return &WorkingArea{root: root}, nil
}

// Root returns the backing directory path.
func (w *WorkingArea) Root() string {
	return w.root
}

// Resources exposes the working area as a resource root, suitable for
// layering in front of the worker's ambient resolver.
func (w *WorkingArea) Resources() fs.FS {
	return os.DirFS(w.root)
}

// Materialize writes each dependency artifact into the area. A failed write
// leaves the area in a releasable state; whatever was written before the
// failure is still cleaned up by Release.
func (w *WorkingArea) Materialize(deps map[string][]byte) error {
	if w.isReleased() {
		return ErrReleased
	}
	for name, content := range deps {
		path, err := w.resolve(name)
		if err != nil {
			return err
		}
		if dir := filepath.Dir(path); dir != w.root {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return fmt.Errorf("failed to materialize %q: %w", name, err)
			}
		}
		if err := os.WriteFile(path, content, 0o644); err != nil {
			return fmt.Errorf("failed to materialize %q: %w", name, err)
		}
	}
	return nil
}

// CreateArtifact opens a named file inside the area for writing, truncating
// any previous content. The output observer uses it, which is what makes a
// re-run with an identical name overwrite rather than append.
func (w *WorkingArea) CreateArtifact(name string) (io.WriteCloser, error) {
	if w.isReleased() {
		return nil, ErrReleased
	}
	path, err := w.resolve(name)
	if err != nil {
		return nil, err
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create artifact %q: %w", name, err)
	}
	return f, nil
}

// ReadArtifact returns the bytes of a named file produced inside the area
// during execution. A missing artifact reports ErrArtifactNotFound so the
// caller can distinguish it from other I/O faults.
func (w *WorkingArea) ReadArtifact(name string) ([]byte, error) {
	if w.isReleased() {
		return nil, ErrReleased
	}
	path, err := w.resolve(name)
	if err != nil {
		return nil, err
	}
	content, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrArtifactNotFound, name)
		}
		return nil, fmt.Errorf("failed to read artifact %q: %w", name, err)
	}
	return content, nil
}

// Release deletes every byte written into the scope. It is idempotent and
// must run on every exit path; callers pair it with New via defer.
func (w *WorkingArea) Release() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.released {
		return nil
	}
	w.released = true
	if err := os.RemoveAll(w.root); err != nil {
		return fmt.Errorf("failed to release working area: %w", err)
	}
	return nil
}

// Released reports whether the area has been released.
func (w *WorkingArea) Released() bool {
	return w.isReleased()
}

func (w *WorkingArea) isReleased() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.released
}

// resolve maps an artifact name to a path inside the area, refusing names
// that would escape it.
func (w *WorkingArea) resolve(name string) (string, error) {
	cleaned := filepath.Clean(filepath.FromSlash(name))
	if cleaned == "." || filepath.IsAbs(cleaned) || strings.HasPrefix(cleaned, "..") {
		return "", fmt.Errorf("invalid artifact name %q", name)
	}
	return filepath.Join(w.root, cleaned), nil
}
