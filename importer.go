package bookimport

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// DefaultContainerClass is the class of the element wrapping every chapter
// body; imported CSS is scoped to it.
const DefaultContainerClass = "book-import"

// Import stages reported through WithProgress.
const (
	StageUnpacking = "unpacking"
	StageImporting = "importing"
	StageRelinking = "relinking"
	StageDone      = "done"
)

// Progress is one progress notification of an import run.
type Progress struct {
	Stage string
	Done  int
	Total int
	Path  string
}

// Importer turns packages into chapters of a book held by a Store.
// An Importer may be shared; every call is an independent run.
type Importer struct {
	store          Store
	log            *zap.Logger
	chapterURL     func(ChapterRef) string
	tempDir        string
	containerClass string
	progress       func(Progress)
	now            func() time.Time
}

// Option configures an Importer.
type Option func(*Importer)

// WithLogger sets the logger. The default discards everything.
func WithLogger(log *zap.Logger) Option {
	return func(im *Importer) {
		if log != nil {
			im.log = log
		}
	}
}

// WithChapterURL sets how cross-chapter links are written.
// The default is DefaultChapterURL.
func WithChapterURL(fn func(ChapterRef) string) Option {
	return func(im *Importer) {
		if fn != nil {
			im.chapterURL = fn
		}
	}
}

// WithTempDir sets the directory runs unpack packages under.
// The default is os.TempDir().
func WithTempDir(dir string) Option {
	return func(im *Importer) { im.tempDir = dir }
}

// WithContainerClass sets the class of the chapter container element.
func WithContainerClass(class string) Option {
	return func(im *Importer) {
		if class = strings.TrimSpace(class); class != "" {
			im.containerClass = class
		}
	}
}

// WithProgress registers a callback for progress notifications. It is
// called synchronously from the importing goroutine.
func WithProgress(fn func(Progress)) Option {
	return func(im *Importer) { im.progress = fn }
}

// WithClock sets the time source for chapter timestamps.
func WithClock(now func() time.Time) Option {
	return func(im *Importer) {
		if now != nil {
			im.now = now
		}
	}
}

// NewImporter returns an Importer writing into store.
func NewImporter(store Store, opts ...Option) *Importer {
	im := &Importer{
		store:          store,
		log:            zap.NewNop(),
		chapterURL:     DefaultChapterURL,
		containerClass: DefaultContainerClass,
		now:            time.Now,
	}
	for _, opt := range opts {
		opt(im)
	}
	im.log = im.log.Named("importer")
	return im
}

func (im *Importer) report(p Progress) {
	if im.progress != nil {
		im.progress(p)
	}
}

// book is an opened package ready for import.
type book struct {
	pkg      *Package
	manifest *Manifest
	files    []ChapterFile
	names    NavMap
	warnings []string
}

// openBook opens a package and reads everything an import needs before the
// first chapter is written. Every error it returns is fatal for the run.
func (im *Importer) openBook(r io.ReaderAt, size int64) (*book, error) {
	pkg, err := OpenPackage(r, size)
	if err != nil {
		return nil, err
	}

	fontObfuscation, err := pkg.CheckDRM()
	if err != nil {
		return nil, err
	}

	m, err := pkg.LocateManifest()
	if err != nil {
		return nil, err
	}

	files := m.ChapterFiles()
	if len(files) == 0 {
		return nil, ErrNoChapters
	}

	b := &book{
		pkg:      pkg,
		manifest: m,
		files:    files,
		names:    pkg.BuildNavMap(m),
	}
	if fontObfuscation {
		b.warnings = append(b.warnings, "font obfuscation detected; obfuscated fonts will not render")
	}
	b.warnings = append(b.warnings, m.Warnings...)
	b.warnings = append(b.warnings, pkg.Warnings()...)
	return b, nil
}

// withBook opens the package, unpacks it into a workspace owned by this run
// and calls fn. The workspace is removed on every return path.
func (im *Importer) withBook(r io.ReaderAt, size int64, s Settings, fn func(*book, *workspace) error) error {
	if err := s.Validate(); err != nil {
		return err
	}
	b, err := im.openBook(r, size)
	if err != nil {
		return err
	}
	defer b.pkg.Close()

	im.report(Progress{Stage: StageUnpacking, Total: len(b.pkg.entries)})
	ws, err := unpack(b.pkg, im.tempDir)
	if err != nil {
		return err
	}
	defer func() {
		if err := ws.Close(); err != nil {
			im.log.Warn("removing workspace", zap.Error(err))
		}
	}()

	return fn(b, ws)
}

// prependWarnings puts package-level warnings in front of a run's own.
func prependWarnings(res *Result, warnings []string) {
	if res != nil && len(warnings) > 0 {
		res.Summary.Warnings = append(append([]string(nil), warnings...), res.Summary.Warnings...)
	}
}

// ImportEPUB imports an EPUB into the existing book bookID, appending its
// chapters after the book's last page.
func (im *Importer) ImportEPUB(ctx context.Context, bookID int64, r io.ReaderAt, size int64, s Settings) (*Result, error) {
	var res *Result
	err := im.withBook(r, size, s, func(b *book, ws *workspace) error {
		var err error
		res, err = im.Import(ctx, bookID, ws, b.files, b.names, s)
		prependWarnings(res, b.warnings)
		return err
	})
	return res, err
}

// ImportEPUBAsBook creates a book titled after the package metadata and
// imports the EPUB into it.
func (im *Importer) ImportEPUBAsBook(ctx context.Context, r io.ReaderAt, size int64, s Settings) (*Result, error) {
	var res *Result
	err := im.withBook(r, size, s, func(b *book, ws *workspace) error {
		title := cleanTitle(b.manifest.Metadata.Title())
		if title == "" {
			title = untitledBook
		}
		bookID, err := im.store.CreateBook(ctx, title)
		if err != nil {
			return fmt.Errorf("%w: create book: %w", ErrStorageWrite, err)
		}
		md := b.manifest.Metadata
		im.log.Info("created book",
			zap.Int64("book", bookID),
			zap.String("title", title),
			zap.Strings("authors", md.AuthorNames()),
			zap.Strings("language", md.Language))

		res, err = im.Import(ctx, bookID, ws, b.files, b.names, s)
		if res != nil {
			res.Metadata = &md
		}
		prependWarnings(res, b.warnings)
		return err
	})
	return res, err
}

// ImportEPUBAsBooks creates one book per document of the EPUB, titled after
// the document's navigation entry. Links between documents stay unresolved
// since their targets end up in different books.
func (im *Importer) ImportEPUBAsBooks(ctx context.Context, r io.ReaderAt, size int64, s Settings) ([]*Result, error) {
	var results []*Result
	err := im.withBook(r, size, s, func(b *book, ws *workspace) error {
		for _, f := range b.files {
			if err := ctx.Err(); err != nil {
				return err
			}
			_, name := SplitPath(f.Path)
			title := chapterTitle(b.names[f.Path], strings.TrimSuffix(name, path.Ext(name)))
			bookID, err := im.store.CreateBook(ctx, title)
			if err != nil {
				return fmt.Errorf("%w: create book: %w", ErrStorageWrite, err)
			}
			res, err := im.Import(ctx, bookID, ws, []ChapterFile{f}, b.names, s)
			if res != nil {
				results = append(results, res)
			}
			if err != nil {
				return err
			}
		}
		if len(results) > 0 {
			prependWarnings(results[0], b.warnings)
		}
		return nil
	})
	return results, err
}

// Import runs the pipeline over documents already available from src:
// every file is split into chapters that are stored in order with their
// resources, then links between the new chapters are rewritten.
//
// On error the returned Result still lists the chapters stored so far;
// they are not rolled back. Cancelling ctx stops the run between chapters.
func (im *Importer) Import(ctx context.Context, bookID int64, src Source, files []ChapterFile, names NavMap, s Settings) (*Result, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	log := im.log.With(zap.Int64("book", bookID))
	res := &Result{BookID: bookID}

	page, err := im.store.MaxPageNumber(ctx, bookID)
	if err != nil {
		return nil, fmt.Errorf("bookimport: read page numbers of book %d: %w", bookID, err)
	}

	rl := newRelinker(log.Named("relink"), src, "div."+im.containerClass, s.cssOptions(), im.chapterURL, &res.Summary)
	log.Info("importing chapters", zap.Int("files", len(files)), zap.String("split", s.SplitTag))

	for i, f := range files {
		if err := ctx.Err(); err != nil {
			return im.finish(res), err
		}
		im.report(Progress{Stage: StageImporting, Done: i, Total: len(files), Path: f.Path})

		data, err := src.ReadFile(f.Path)
		if err != nil {
			rl.warn(fmt.Sprintf("skipping chapter file %s: %v", f.Path, err))
			continue
		}
		doc, err := parseDocument(data)
		if err != nil {
			rl.warn(fmt.Sprintf("skipping chapter file %s: %v", f.Path, err))
			continue
		}

		docTitle := documentTitle(doc)
		styles := collectStyles(doc, f.Path, s, rl)
		if body := findElement(doc, atom.Body); body != nil {
			scrubBodyStyles(body, f.Path, s, rl)
		}
		for _, frag := range SplitChapters(doc, f.Path, s.SplitTag, s.SplitClasses) {
			if err := ctx.Err(); err != nil {
				return im.finish(res), err
			}
			page++
			ch, err := im.storeFragment(ctx, bookID, page, f, frag, styles, names[f.Path], docTitle, s, rl)
			if ch != nil {
				res.Chapters = append(res.Chapters, *ch)
			}
			if err != nil {
				return im.finish(res), err
			}
		}
	}

	im.report(Progress{Stage: StageRelinking, Total: len(res.Chapters)})
	if err := rl.resolveAnchors(ctx, im.store, res.Chapters); err != nil {
		return im.finish(res), err
	}

	if rb, ok := im.store.(RevisionBumper); ok && len(res.Chapters) > 0 {
		if err := rb.BumpRevision(ctx, bookID); err != nil {
			return im.finish(res), fmt.Errorf("%w: bump revision: %w", ErrStorageWrite, err)
		}
	}

	im.finish(res)
	im.report(Progress{Stage: StageDone, Done: len(res.Chapters), Total: len(res.Chapters)})
	log.Info("import finished",
		zap.Int("chapters", res.Summary.Chapters),
		zap.Int("files", res.Summary.CopiedFiles),
		zap.Int("skipped_resources", res.Summary.SkippedResources),
		zap.Int("skipped_stylesheets", res.Summary.SkippedStylesheets),
		zap.Int("unmatched_anchors", res.Summary.UnmatchedAnchors))
	return res, nil
}

func (im *Importer) finish(res *Result) *Result {
	res.Summary.Chapters = len(res.Chapters)
	return res
}

// storeFragment builds one chapter from a fragment, stores it and copies
// the resources it references into its file area.
func (im *Importer) storeFragment(ctx context.Context, bookID int64, page int, f ChapterFile, frag ChapterFragment, styles []*html.Node, navTitle, docTitle string, s Settings, rl *relinker) (*StoredChapter, error) {
	root := buildContent(frag, styles, im.containerClass, s)
	files := rl.resolveResources(root, frag.SourcePath)
	content, err := renderChildren(root)
	if err != nil {
		return nil, fmt.Errorf("bookimport: render chapter from %s: %w", frag.SourcePath, err)
	}

	now := im.now()
	ch := &StoredChapter{
		BookID:       bookID,
		PageNum:      page,
		Title:        chapterTitle(frag.Title, navTitle, docTitle),
		Content:      content,
		Subchapter:   frag.Subchapter,
		Hidden:       f.NonLinear,
		SourcePath:   frag.SourcePath,
		TimeCreated:  now,
		TimeModified: now,
	}
	id, err := im.store.InsertChapter(ctx, ch)
	if err != nil {
		return nil, fmt.Errorf("%w: insert chapter from %s: %w", ErrStorageWrite, frag.SourcePath, err)
	}
	ch.ID = id

	if err := storeFiles(ctx, im.store, id, files, rl.summary); err != nil {
		return ch, err
	}
	return ch, nil
}
