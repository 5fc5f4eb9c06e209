package bookimport

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// Source serves the files of an unpacked package by rooted path.
type Source interface {
	// ReadFile returns the file content, or an error wrapping
	// ErrFileNotFound.
	ReadFile(name string) ([]byte, error)

	// Exists reports whether the file is present.
	Exists(name string) bool
}

// workspace is the temporary directory one import run unpacks a package
// into. It belongs to that run alone and is removed by Close.
type workspace struct {
	dir   string
	files map[string]string // rooted path -> file on disk
	lower map[string]string
}

// unpack extracts every entry of p into a fresh directory under root.
func unpack(p *Package, root string) (*workspace, error) {
	if root == "" {
		root = os.TempDir()
	}
	dir := filepath.Join(root, "bookimport-"+uuid.NewString())
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("bookimport: create workspace: %w", err)
	}

	w := &workspace{
		dir:   dir,
		files: make(map[string]string, len(p.entries)),
		lower: make(map[string]string, len(p.entries)),
	}
	for i, e := range p.entries {
		data, err := readZipFile(p.exact[e.Path])
		if err != nil {
			w.Close()
			return nil, err
		}
		target := filepath.Join(dir, fmt.Sprintf("%06d", i), filepath.Base(filepath.FromSlash(e.Path)))
		if err := os.MkdirAll(filepath.Dir(target), 0o700); err != nil {
			w.Close()
			return nil, fmt.Errorf("bookimport: unpack %s: %w", e.Path, err)
		}
		if err := os.WriteFile(target, data, 0o600); err != nil {
			w.Close()
			return nil, fmt.Errorf("bookimport: unpack %s: %w", e.Path, err)
		}
		w.files[e.Path] = target
		if lk := strings.ToLower(e.Path); w.lower[lk] == "" {
			w.lower[lk] = target
		}
	}
	return w, nil
}

func (w *workspace) lookup(name string) (string, bool) {
	key := CleanPath(name)
	if f, ok := w.files[key]; ok {
		return f, true
	}
	f, ok := w.lower[strings.ToLower(key)]
	return f, ok
}

func (w *workspace) ReadFile(name string) ([]byte, error) {
	f, ok := w.lookup(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrFileNotFound, name)
	}
	return os.ReadFile(f)
}

func (w *workspace) Exists(name string) bool {
	_, ok := w.lookup(name)
	return ok
}

// Close removes the workspace directory and everything in it.
func (w *workspace) Close() error {
	if w.dir == "" {
		return nil
	}
	err := os.RemoveAll(w.dir)
	w.dir = ""
	return err
}

// MapSource is a Source over in-memory files keyed by package path. It
// carries converted documents, such as the output of a Word conversion,
// through the import pipeline.
type MapSource map[string][]byte

func (m MapSource) ReadFile(name string) ([]byte, error) {
	if data, ok := m[CleanPath(name)]; ok {
		return data, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrFileNotFound, name)
}

func (m MapSource) Exists(name string) bool {
	_, ok := m[CleanPath(name)]
	return ok
}
