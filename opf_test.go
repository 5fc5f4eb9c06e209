package bookimport

import (
	"errors"
	"strings"
	"testing"
)

const testOPFv3 = `<?xml version="1.0" encoding="UTF-8"?>
<package version="3.0" xmlns="http://www.idpf.org/2007/opf" unique-identifier="uid">
  <metadata xmlns:dc="http://purl.org/dc/elements/1.1/">
    <dc:title>Test Book v3</dc:title>
  </metadata>
  <manifest>
    <item id="chap1" href="Text/chapter1.xhtml" media-type="application/xhtml+xml"/>
    <item id="chap2" href="Text/chapter%202.xhtml?v=1" media-type="application/xhtml+xml"/>
    <item id="nav" href="nav.xhtml" media-type="application/xhtml+xml" properties="nav"/>
    <item id="legacy" href="legacy.html" media-type="text/html; charset=utf-8"/>
    <item id="css" href="../Styles/style.css" media-type="text/css"/>
    <item id="broken" href="" media-type="image/png"/>
    <item id="chap1" href="dup.xhtml" media-type="application/xhtml+xml"/>
  </manifest>
  <spine toc="ncx">
    <itemref idref="chap1"/>
    <itemref idref="chap2" linear="no"/>
    <itemref idref="missing"/>
    <itemref idref="css"/>
    <itemref idref="legacy"/>
    <itemref idref="chap1"/>
  </spine>
</package>`

func TestParseOPF(t *testing.T) {
	t.Run("version default", func(t *testing.T) {
		pkg, err := parseOPF([]byte(`<package><metadata/></package>`))
		if err != nil {
			t.Fatalf("parseOPF() error: %v", err)
		}
		if pkg.Version != "2.0" {
			t.Errorf("Version = %q, want %q", pkg.Version, "2.0")
		}
	})

	t.Run("html entities", func(t *testing.T) {
		opf := `<package xmlns="http://www.idpf.org/2007/opf" version="2.0"><metadata xmlns:dc="http://purl.org/dc/elements/1.1/">` +
			`<dc:title>Caf&eacute; &amp; Cr&egrave;me&nbsp;Br&ucirc;l&eacute;e</dc:title></metadata></package>`
		_, err := parseOPF([]byte(opf))
		// &ucirc; is not in the entity table.
		if !errors.Is(err, ErrMalformedXML) {
			t.Fatalf("parseOPF() error = %v, want ErrMalformedXML", err)
		}

		opf = strings.ReplaceAll(opf, "&ucirc;", "u")
		pkg, err := parseOPF([]byte(opf))
		if err != nil {
			t.Fatalf("parseOPF() error: %v", err)
		}
		if got := pkg.Metadata.Titles[0].Value; got != "Caf\u00e9 & Cr\u00e8me\u00a0Brul\u00e9e" {
			t.Errorf("title = %q", got)
		}
	})

	t.Run("BOM", func(t *testing.T) {
		if _, err := parseOPF([]byte("\xEF\xBB\xBF" + testOPFv3)); err != nil {
			t.Errorf("parseOPF() error: %v", err)
		}
	})
}

func TestBuildManifest(t *testing.T) {
	pkg, err := parseOPF([]byte(testOPFv3))
	if err != nil {
		t.Fatalf("parseOPF() error: %v", err)
	}
	m := buildManifest(pkg, "/OEBPS/content.opf")

	if m.BaseDir != "/OEBPS/" || m.Version != "3.0" || m.TOC != "ncx" {
		t.Errorf("BaseDir, Version, TOC = %q, %q, %q", m.BaseDir, m.Version, m.TOC)
	}
	if m.Metadata.Title() != "Test Book v3" {
		t.Errorf("Title() = %q", m.Metadata.Title())
	}

	paths := map[string]string{
		"chap1": "/OEBPS/Text/chapter1.xhtml",
		"chap2": "/OEBPS/Text/chapter 2.xhtml",
		"css":   "/Styles/style.css",
	}
	for id, want := range paths {
		if got := m.Entries[id].Path; got != want {
			t.Errorf("Entries[%q].Path = %q, want %q", id, got, want)
		}
	}
	if len(m.Order) != 5 {
		t.Errorf("len(Order) = %d, want 5", len(m.Order))
	}
	if len(m.Spine) != 5 {
		t.Errorf("len(Spine) = %d, want 5", len(m.Spine))
	}

	// broken item, duplicate id, unknown spine ref
	if len(m.Warnings) != 3 {
		t.Errorf("Warnings = %q, want 3", m.Warnings)
	}
}

func TestChapterFiles(t *testing.T) {
	pkg, err := parseOPF([]byte(testOPFv3))
	if err != nil {
		t.Fatalf("parseOPF() error: %v", err)
	}
	files := buildManifest(pkg, "/OEBPS/content.opf").ChapterFiles()

	want := []ChapterFile{
		{Path: "/OEBPS/Text/chapter1.xhtml", ID: "chap1"},
		{Path: "/OEBPS/Text/chapter 2.xhtml", ID: "chap2", NonLinear: true},
		{Path: "/OEBPS/legacy.html", ID: "legacy"},
	}
	if len(files) != len(want) {
		t.Fatalf("ChapterFiles() = %+v, want %+v", files, want)
	}
	for i := range want {
		if files[i] != want[i] {
			t.Errorf("ChapterFiles()[%d] = %+v, want %+v", i, files[i], want[i])
		}
	}
}

func TestIsChapterMediaType(t *testing.T) {
	tests := []struct {
		mt   string
		want bool
	}{
		{"application/xhtml+xml", true},
		{"text/html", true},
		{"Text/HTML; charset=utf-8", true},
		{"text/css", false},
		{"image/svg+xml", false},
	}
	for _, tt := range tests {
		if got := isChapterMediaType(tt.mt); got != tt.want {
			t.Errorf("isChapterMediaType(%q) = %v, want %v", tt.mt, got, tt.want)
		}
	}
}
