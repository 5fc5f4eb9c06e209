package bookimport

import (
	"errors"
	"testing"
)

const testOPF = `<?xml version="1.0"?>
<package version="3.0" xmlns="http://www.idpf.org/2007/opf">
  <metadata xmlns:dc="http://purl.org/dc/elements/1.1/"><dc:title>T</dc:title></metadata>
  <manifest><item id="c1" href="ch1.xhtml" media-type="application/xhtml+xml"/></manifest>
  <spine><itemref idref="c1"/></spine>
</package>`

func TestParseContainerXML(t *testing.T) {
	tests := []struct {
		name    string
		data    string
		want    string
		wantErr error
	}{
		{
			name: "normal",
			data: testContainerXML,
			want: "OEBPS/content.opf",
		},
		{
			name: "with BOM",
			data: "\xEF\xBB\xBF" + testContainerXML,
			want: "OEBPS/content.opf",
		},
		{
			name: "prefers OPF media type",
			data: `<container><rootfiles>
  <rootfile full-path="other.pdf" media-type="application/pdf"/>
  <rootfile full-path="book.opf" media-type="application/oebps-package+xml"/>
</rootfiles></container>`,
			want: "book.opf",
		},
		{
			name: "falls back to first non-empty rootfile",
			data: `<container><rootfiles>
  <rootfile full-path="" media-type="application/oebps-package+xml"/>
  <rootfile full-path="book.opf"/>
</rootfiles></container>`,
			want: "book.opf",
		},
		{
			name: "empty rootfiles",
			data: `<container><rootfiles/></container>`,
			want: "",
		},
		{
			name:    "malformed",
			data:    `<container><rootfiles>`,
			wantErr: ErrMalformedXML,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseContainerXML([]byte(tt.data))
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("error = %v, want %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("full path = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestLocateManifest(t *testing.T) {
	tests := []struct {
		name     string
		files    map[string]string
		wantPath string
		wantErr  error
	}{
		{
			name: "via container",
			files: map[string]string{
				"META-INF/container.xml": testContainerXML,
				"OEBPS/content.opf":      testOPF,
			},
			wantPath: "/OEBPS/content.opf",
		},
		{
			name: "case-insensitive container",
			files: map[string]string{
				"meta-inf/container.xml": testContainerXML,
				"OEBPS/content.opf":      testOPF,
			},
			wantPath: "/OEBPS/content.opf",
		},
		{
			name: "fallback without container",
			files: map[string]string{
				"book/package.OPF": testOPF,
			},
			wantPath: "/book/package.OPF",
		},
		{
			name: "fallback when container names nothing",
			files: map[string]string{
				"META-INF/container.xml": `<container><rootfiles/></container>`,
				"x.opf":                  testOPF,
			},
			wantPath: "/x.opf",
		},
		{
			name:    "no package document",
			files:   map[string]string{"a.txt": "x"},
			wantErr: ErrMissingContainer,
		},
		{
			name: "container points at missing file",
			files: map[string]string{
				"META-INF/container.xml": testContainerXML,
			},
			wantErr: ErrMissingContainer,
		},
		{
			name: "malformed container",
			files: map[string]string{
				"META-INF/container.xml": `<container`,
				"OEBPS/content.opf":      testOPF,
			},
			wantErr: ErrMalformedXML,
		},
		{
			name: "malformed package document",
			files: map[string]string{
				"META-INF/container.xml": testContainerXML,
				"OEBPS/content.opf":      `<package><manifest>`,
			},
			wantErr: ErrMalformedXML,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := openTestPackage(t, tt.files)
			m, err := p.LocateManifest()
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("LocateManifest() error = %v, want %v", err, tt.wantErr)
			}
			if err != nil {
				return
			}
			if m.Path != tt.wantPath {
				t.Errorf("Path = %q, want %q", m.Path, tt.wantPath)
			}
			if len(m.Spine) != 1 {
				t.Errorf("len(Spine) = %d, want 1", len(m.Spine))
			}
		})
	}
}
