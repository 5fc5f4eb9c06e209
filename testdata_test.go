package bookimport

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"
)

// buildTestZipBytes creates an in-memory ZIP archive from the provided files
// map (path → content). Entries are written in sorted order, with
// "mimetype" first when present, so archives are reproducible.
// It calls t.Fatal on any error.
func buildTestZipBytes(t testing.TB, files map[string]string) []byte {
	t.Helper()
	names := make([]string, 0, len(files))
	for name := range files {
		if name != "mimetype" {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	if _, ok := files["mimetype"]; ok {
		names = append([]string{"mimetype"}, names...)
	}

	buf := new(bytes.Buffer)
	zw := zip.NewWriter(buf)
	for _, name := range names {
		fw, err := zw.Create(name)
		if err != nil {
			t.Fatalf("buildTestZip: create %s: %v", name, err)
		}
		if _, err := io.WriteString(fw, files[name]); err != nil {
			t.Fatalf("buildTestZip: write %s: %v", name, err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("buildTestZip: close writer: %v", err)
	}
	return buf.Bytes()
}

// buildTestZip is buildTestZipBytes returning a *zip.Reader.
func buildTestZip(t testing.TB, files map[string]string) *zip.Reader {
	t.Helper()
	data := buildTestZipBytes(t, files)
	r, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		t.Fatalf("buildTestZip: open reader: %v", err)
	}
	return r
}

// openTestPackage builds an archive and opens it as a Package.
func openTestPackage(t testing.TB, files map[string]string) *Package {
	t.Helper()
	p, err := OpenPackageBytes(buildTestZipBytes(t, files))
	if err != nil {
		t.Fatalf("OpenPackageBytes: %v", err)
	}
	return p
}

// buildTestEPubFile writes an archive to a temporary file and returns its
// path.
func buildTestEPubFile(t testing.TB, files map[string]string) string {
	t.Helper()
	name := filepath.Join(t.TempDir(), "test.epub")
	if err := os.WriteFile(name, buildTestZipBytes(t, files), 0o644); err != nil {
		t.Fatalf("buildTestEPubFile: write: %v", err)
	}
	return name
}

const testContainerXML = `<?xml version="1.0" encoding="UTF-8"?>
<container version="1.0" xmlns="urn:oasis:names:tc:opendocument:xmlns:container">
  <rootfiles>
    <rootfile full-path="OEBPS/content.opf" media-type="application/oebps-package+xml"/>
  </rootfiles>
</container>`

// testDoc is one spine document of a generated EPUB.
type testDoc struct {
	id     string
	href   string
	body   string
	head   string
	linear string
}

// testEPub describes a small EPUB 2 book under OEBPS/.
type testEPub struct {
	title string
	meta  string // extra OPF metadata elements
	docs  []testDoc
	extra map[string]string // additional files, by path under OEBPS/
	ncx   string            // NCX navMap body; empty for no NCX
}

// files renders the book as an archive file map.
func (b testEPub) files() map[string]string {
	var items, refs strings.Builder
	for _, d := range b.docs {
		fmt.Fprintf(&items, `<item id="%s" href="%s" media-type="application/xhtml+xml"/>`+"\n", d.id, d.href)
		if d.linear != "" {
			fmt.Fprintf(&refs, `<itemref idref="%s" linear="%s"/>`+"\n", d.id, d.linear)
		} else {
			fmt.Fprintf(&refs, `<itemref idref="%s"/>`+"\n", d.id)
		}
	}
	for p := range b.extra {
		mt := "application/octet-stream"
		switch {
		case strings.HasSuffix(p, ".css"):
			mt = "text/css"
		case strings.HasSuffix(p, ".png"):
			mt = "image/png"
		}
		fmt.Fprintf(&items, `<item id="x-%s" href="%s" media-type="%s"/>`+"\n",
			strings.NewReplacer("/", "-", ".", "-").Replace(p), p, mt)
	}
	toc := ""
	if b.ncx != "" {
		items.WriteString(`<item id="ncx" href="toc.ncx" media-type="application/x-dtbncx+xml"/>` + "\n")
		toc = ` toc="ncx"`
	}

	files := map[string]string{
		"mimetype":               "application/epub+zip",
		"META-INF/container.xml": testContainerXML,
		"OEBPS/content.opf": fmt.Sprintf(`<?xml version="1.0" encoding="UTF-8"?>
<package version="2.0" xmlns="http://www.idpf.org/2007/opf">
  <metadata xmlns:dc="http://purl.org/dc/elements/1.1/"><dc:title>%s</dc:title>%s</metadata>
  <manifest>
%s  </manifest>
  <spine%s>
%s  </spine>
</package>`, b.title, b.meta, items.String(), toc, refs.String()),
	}
	for _, d := range b.docs {
		files["OEBPS/"+d.href] = fmt.Sprintf(
			`<html xmlns="http://www.w3.org/1999/xhtml"><head>%s</head><body>%s</body></html>`, d.head, d.body)
	}
	for p, content := range b.extra {
		files["OEBPS/"+p] = content
	}
	if b.ncx != "" {
		files["OEBPS/toc.ncx"] = `<?xml version="1.0"?><ncx xmlns="http://www.daisy.org/z3986/2005/ncx/"><navMap>` +
			b.ncx + `</navMap></ncx>`
	}
	return files
}

func (b testEPub) bytes(t testing.TB) []byte {
	t.Helper()
	return buildTestZipBytes(t, b.files())
}
