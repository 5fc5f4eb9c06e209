package bookimport

import (
	"archive/zip"
	"bytes"
	"strings"
	"testing"
)

func zipEntry(t *testing.T, zr *zip.Reader, name string) *zip.File {
	t.Helper()
	for _, f := range zr.File {
		if f.Name == name {
			return f
		}
	}
	t.Fatalf("entry %q not found in zip", name)
	return nil
}

func TestIsSafeEntryName(t *testing.T) {
	tests := []struct {
		name string
		path string
		safe bool
	}{
		{"normal path", "OEBPS/content.opf", true},
		{"root file", "mimetype", true},
		{"nested", "a/b/c/d.txt", true},
		{"dot", ".", true},
		{"double dot", "..", false},
		{"traversal prefix", "../etc/passwd", false},
		{"deep traversal", "a/../../etc/passwd", false},
		{"absolute path", "/etc/passwd", false},
		{"backslash traversal", `..\secret`, false},
		{"clean traversal", "OEBPS/../../secret", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isSafeEntryName(tt.path); got != tt.safe {
				t.Errorf("isSafeEntryName(%q) = %v; want %v", tt.path, got, tt.safe)
			}
		})
	}
}

func TestStripBOM(t *testing.T) {
	tests := []struct {
		name  string
		input []byte
		want  []byte
	}{
		{"with BOM", []byte{0xEF, 0xBB, 0xBF, 'h', 'e', 'l', 'l', 'o'}, []byte("hello")},
		{"without BOM", []byte("hello"), []byte("hello")},
		{"empty", []byte{}, []byte{}},
		{"BOM only", []byte{0xEF, 0xBB, 0xBF}, []byte{}},
		{"partial BOM", []byte{0xEF, 0xBB}, []byte{0xEF, 0xBB}},
		{"BOM in middle (not stripped)", []byte{'a', 0xEF, 0xBB, 0xBF, 'b'}, []byte{'a', 0xEF, 0xBB, 0xBF, 'b'}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := stripBOM(tt.input); !bytes.Equal(got, tt.want) {
				t.Errorf("stripBOM(%v) = %v; want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestReadZipFile(t *testing.T) {
	zr := buildTestZip(t, map[string]string{
		"test.txt":    "hello world",
		"empty.txt":   "",
		"subdir/a.md": "# Title",
	})

	tests := []struct {
		entry string
		want  string
	}{
		{"test.txt", "hello world"},
		{"empty.txt", ""},
		{"subdir/a.md", "# Title"},
	}
	for _, tt := range tests {
		t.Run(tt.entry, func(t *testing.T) {
			got, err := readZipFile(zipEntry(t, zr, tt.entry))
			if err != nil {
				t.Fatalf("readZipFile(%q) error: %v", tt.entry, err)
			}
			if string(got) != tt.want {
				t.Errorf("readZipFile(%q) = %q; want %q", tt.entry, got, tt.want)
			}
		})
	}
}

func TestReadZipFile_ZipBomb(t *testing.T) {
	zr := buildTestZip(t, map[string]string{
		"big.txt": strings.Repeat("A", 200),
	})

	_, err := readZipFileWithLimit(zipEntry(t, zr, "big.txt"), 100)
	if err == nil {
		t.Fatal("readZipFileWithLimit should have returned an error for oversized entry")
	}
	if !strings.Contains(err.Error(), "too large") && !strings.Contains(err.Error(), "exceeds limit") {
		t.Errorf("unexpected error: %v", err)
	}
}
