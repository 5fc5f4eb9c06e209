package bookimport

import (
	"context"
	"fmt"
	"io"

	"github.com/simp-lee/bookimport/wordconv"
	"go.uber.org/zap"
)

// wordDocumentPath is the package path a converted Word document is
// imported from.
const wordDocumentPath = "/index.html"

// ImportWord converts a .docx file to HTML and imports it into book bookID
// like a single-document package. Its images become chapter files.
func (im *Importer) ImportWord(ctx context.Context, bookID int64, r io.ReaderAt, size int64, s Settings) (*Result, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	doc, err := wordconv.Convert(r, size)
	if err != nil {
		return nil, fmt.Errorf("bookimport: convert word document: %w", err)
	}
	im.log.Debug("converted word document",
		zap.String("title", doc.Title),
		zap.Int("images", len(doc.Images)))

	src := MapSource{wordDocumentPath: doc.HTML}
	for name, data := range doc.Images {
		src[CleanPath("/"+wordconv.ImageDir+"/"+name)] = data
	}
	files := []ChapterFile{{Path: wordDocumentPath}}
	names := NavMap{wordDocumentPath: doc.Title}
	return im.Import(ctx, bookID, src, files, names, s)
}
