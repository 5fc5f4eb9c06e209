package bookimport

import (
	"bytes"
	"context"
	"errors"
	"strconv"
	"strings"
	"testing"

	"github.com/simp-lee/bookimport/wordconv"
)

const testDocumentXML = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"
 xmlns:r="http://schemas.openxmlformats.org/officeDocument/2006/relationships"
 xmlns:wp="http://schemas.openxmlformats.org/drawingml/2006/wordprocessingDrawing"
 xmlns:a="http://schemas.openxmlformats.org/drawingml/2006/main"><w:body>
<w:p><w:pPr><w:pStyle w:val="Heading1"/></w:pPr><w:r><w:t>Report</w:t></w:r></w:p>
<w:p><w:r><w:t>Intro</w:t></w:r></w:p>
<w:p><w:pPr><w:pStyle w:val="Heading2"/></w:pPr><w:bookmarkStart w:id="0" w:name="results"/><w:r><w:t>Results</w:t></w:r></w:p>
<w:p><w:r><w:drawing><wp:inline><wp:docPr id="1" name="Chart" descr="Chart"/><a:graphic><a:graphicData><a:blip r:embed="rId5"/></a:graphicData></a:graphic></wp:inline></w:drawing></w:r></w:p>
<w:p><w:pPr><w:pStyle w:val="Heading2"/></w:pPr><w:r><w:t>Summary</w:t></w:r></w:p>
<w:p><w:hyperlink w:anchor="results"><w:r><w:t>see results</w:t></w:r></w:hyperlink></w:p>
</w:body></w:document>`

const testDocumentRels = `<?xml version="1.0"?>
<Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships">
  <Relationship Id="rId5" Type="http://schemas.openxmlformats.org/officeDocument/2006/relationships/image" Target="media/chart.png"/>
</Relationships>`

func testDocx(t *testing.T) []byte {
	t.Helper()
	return buildTestZipBytes(t, map[string]string{
		"word/document.xml":            testDocumentXML,
		"word/_rels/document.xml.rels": testDocumentRels,
		"word/media/chart.png":         "PNG",
	})
}

func TestImportWord(t *testing.T) {
	store := NewMemoryStore()
	im := NewImporter(store)

	data := testDocx(t)
	res, err := im.ImportWord(context.Background(), 1, bytes.NewReader(data), int64(len(data)), splitSettings("h2"))
	if err != nil {
		t.Fatalf("ImportWord() error: %v", err)
	}
	if len(res.Chapters) != 3 {
		t.Fatalf("len(Chapters) = %d, want 3", len(res.Chapters))
	}

	titles := []string{res.Chapters[0].Title, res.Chapters[1].Title, res.Chapters[2].Title}
	if strings.Join(titles, "|") != "Report|Results|Summary" {
		t.Errorf("titles = %q", titles)
	}

	results := res.Chapters[1]
	if !strings.Contains(results.Content, `<img src="@@PLUGINFILE@@/images/chart.png" alt="Chart"/>`) {
		t.Errorf("image not relinked:\n%s", results.Content)
	}
	if img, ok := store.File(results.ID, "/images/chart.png"); !ok || string(img) != "PNG" {
		t.Errorf("image file = %q, %v", img, ok)
	}

	summary := res.Chapters[2].Content
	if !strings.Contains(summary, `href="/book/1/chapter/`+strconv.FormatInt(results.ID, 10)+`#results"`) {
		t.Errorf("bookmark link not rewritten:\n%s", summary)
	}
}

func TestImportWord_NotWord(t *testing.T) {
	im := NewImporter(NewMemoryStore())
	data := buildTestZipBytes(t, map[string]string{"mimetype": "application/epub+zip"})
	_, err := im.ImportWord(context.Background(), 1, bytes.NewReader(data), int64(len(data)), DefaultSettings())
	if !errors.Is(err, wordconv.ErrNotWordDocument) {
		t.Errorf("ImportWord() error = %v, want ErrNotWordDocument", err)
	}
}
