// Package resources implements the per-job resource resolution scope.
//
// A job's dynamically supplied artifacts must shadow the worker's own
// baseline resources without mutating any process-global state, so two jobs
// running concurrently with same-named artifacts never observe each other's
// bytes. The resolver is an explicit chain of fs.FS layers searched front to
// back; layering a job's working area in front of the worker's ambient
// resolver scopes the injection to that single job.
package resources

import (
	"errors"
	"io/fs"
)

// Resolver resolves named resources through an ordered chain of fs.FS
// layers. It is immutable: Layered returns a new resolver, so handing a
// resolver to a job can never affect resolution for anyone else.
type Resolver struct {
	layers []fs.FS
}

// NewResolver builds a resolver searching the given layers front to back.
func NewResolver(layers ...fs.FS) *Resolver {
	copied := make([]fs.FS, len(layers))
	copy(copied, layers)
	return &Resolver{layers: copied}
}

// Layered returns a new resolver that consults front before this resolver's
// own layers. The receiver is left untouched.
func (r *Resolver) Layered(front fs.FS) *Resolver {
	layers := make([]fs.FS, 0, len(r.layers)+1)
	layers = append(layers, front)
	layers = append(layers, r.layers...)
	return &Resolver{layers: layers}
}

// Open returns the named resource from the frontmost layer that has it.
// Resolver implements fs.FS, so it can be handed directly to loaders.
func (r *Resolver) Open(name string) (fs.File, error) {
	if !fs.ValidPath(name) {
		return nil, &fs.PathError{Op: "open", Path: name, Err: fs.ErrInvalid}
	}
	for _, layer := range r.layers {
		f, err := layer.Open(name)
		if err == nil {
			return f, nil
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}
	return nil, &fs.PathError{Op: "open", Path: name, Err: fs.ErrNotExist}
}

// ReadFile reads the full contents of the named resource.
func (r *Resolver) ReadFile(name string) ([]byte, error) {
	return fs.ReadFile(fsOnly{r}, name)
}

// Exists reports whether the named resource resolves through any layer.
func (r *Resolver) Exists(name string) bool {
	f, err := r.Open(name)
	if err != nil {
		return false
	}
	f.Close()
	return true
}

// fsOnly hides ReadFile from fs.ReadFile so it goes through Open and the
// layer ordering stays authoritative.
type fsOnly struct{ r *Resolver }

func (f fsOnly) Open(name string) (fs.File, error) { return f.r.Open(name) }
