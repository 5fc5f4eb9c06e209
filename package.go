package bookimport

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"sort"
	"strings"
)

// expectedMimetype is the required content of the "mimetype" file in an EPUB.
const expectedMimetype = "application/epub+zip"

// Entry describes one file of an opened package.
type Entry struct {
	// Path is the rooted package path, relative to the detected base
	// directory (e.g., "/OEBPS/chapter1.xhtml").
	Path string

	// Size is the declared uncompressed size in bytes.
	Size int64
}

// Package is an opened EPUB archive. Paths handed to and returned by a
// Package are rooted package paths; a wrapper directory around the whole
// book (a zip of a folder) is detected and hidden.
//
// A Package is not safe for concurrent use by multiple goroutines.
type Package struct {
	zip      *zip.Reader
	closer   io.Closer // non-nil only when created via OpenPackageFile
	base     string    // wrapper directory prefix, "" or ending in "/"
	exact    map[string]*zip.File
	lower    map[string]*zip.File
	entries  []Entry
	warnings []string
}

// OpenPackage opens a package from an io.ReaderAt with the given size.
// Input that is not a ZIP archive yields ErrNotAnArchive.
func OpenPackage(r io.ReaderAt, size int64) (*Package, error) {
	zr, err := zip.NewReader(r, size)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotAnArchive, err)
	}
	return newPackage(zr, nil), nil
}

// OpenPackageBytes opens a package held in memory.
func OpenPackageBytes(data []byte) (*Package, error) {
	return OpenPackage(bytes.NewReader(data), int64(len(data)))
}

// OpenPackageFile opens the package at the given file path.
// The caller must call Close when done.
func OpenPackageFile(name string) (*Package, error) {
	zrc, err := zip.OpenReader(name)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %v", ErrNotAnArchive, name, err)
	}
	return newPackage(&zrc.Reader, zrc), nil
}

func newPackage(zr *zip.Reader, closer io.Closer) *Package {
	p := &Package{
		zip:    zr,
		closer: closer,
		base:   detectBaseDir(zr),
	}
	p.buildIndex()
	p.validateMimetype()
	return p
}

// detectBaseDir finds the directory that holds META-INF/container.xml. An
// archive whose files all sit under one wrapper folder returns that folder;
// the shallowest match wins.
func detectBaseDir(zr *zip.Reader) string {
	base, found := "", false
	for _, f := range zr.File {
		name := strings.ReplaceAll(f.Name, "\\", "/")
		if !strings.HasSuffix(strings.ToLower(name), strings.ToLower(containerPath)) {
			continue
		}
		prefix := name[:len(name)-len(containerPath)]
		if prefix != "" && !strings.HasSuffix(prefix, "/") {
			continue
		}
		if !found || len(prefix) < len(base) {
			base, found = prefix, true
		}
	}
	return base
}

// buildIndex builds exact-match and lowercase indexes keyed by rooted path.
// Entries outside the base directory and unsafe names are ignored.
func (p *Package) buildIndex() {
	p.exact = make(map[string]*zip.File, len(p.zip.File))
	p.lower = make(map[string]*zip.File, len(p.zip.File))
	for _, f := range p.zip.File {
		name := strings.ReplaceAll(f.Name, "\\", "/")
		if strings.HasSuffix(name, "/") || !strings.HasPrefix(name, p.base) {
			continue
		}
		if !isSafeEntryName(name) {
			p.warnings = append(p.warnings, fmt.Sprintf("skipping unsafe zip entry %q", f.Name))
			continue
		}
		key := CleanPath(name[len(p.base):])
		if _, exists := p.exact[key]; exists {
			continue // first match wins
		}
		p.exact[key] = f
		lk := strings.ToLower(key)
		if _, exists := p.lower[lk]; !exists {
			p.lower[lk] = f
		}
		p.entries = append(p.entries, Entry{Path: key, Size: int64(f.UncompressedSize64)})
	}
	sort.Slice(p.entries, func(i, j int) bool { return p.entries[i].Path < p.entries[j].Path })
}

// validateMimetype records a warning when the mimetype entry is missing or
// carries an unexpected value. Neither is fatal for an import.
func (p *Package) validateMimetype() {
	f := p.findFile("mimetype")
	if f == nil {
		p.warnings = append(p.warnings, "mimetype entry missing")
		return
	}
	data, err := readZipFile(f)
	if err != nil {
		p.warnings = append(p.warnings, fmt.Sprintf("cannot read mimetype entry: %v", err))
		return
	}
	if got := strings.TrimSpace(string(data)); got != expectedMimetype {
		p.warnings = append(p.warnings, fmt.Sprintf("unexpected mimetype: %q", got))
	}
}

// findFile looks up an entry by path, trying an exact match before a
// case-insensitive one.
func (p *Package) findFile(name string) *zip.File {
	key := CleanPath(name)
	if f, ok := p.exact[key]; ok {
		return f
	}
	if f, ok := p.lower[strings.ToLower(key)]; ok {
		return f
	}
	return nil
}

// Entries lists every file of the package, sorted by path.
func (p *Package) Entries() []Entry {
	return append([]Entry(nil), p.entries...)
}

// Has reports whether the package contains the named file.
func (p *Package) Has(name string) bool {
	return p.findFile(name) != nil
}

// ReadFile reads a file by package path. Both "OEBPS/a.xhtml" and
// "/OEBPS/a.xhtml" name the same entry.
func (p *Package) ReadFile(name string) ([]byte, error) {
	f := p.findFile(name)
	if f == nil {
		return nil, fmt.Errorf("%w: %s", ErrFileNotFound, name)
	}
	return readZipFile(f)
}

// Warnings returns the non-fatal problems noticed while reading the package.
func (p *Package) Warnings() []string {
	return append([]string(nil), p.warnings...)
}

// Close releases resources held by the Package. Close is idempotent.
func (p *Package) Close() error {
	if p.closer != nil {
		err := p.closer.Close()
		p.closer = nil
		return err
	}
	return nil
}
