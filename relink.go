package bookimport

import (
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// PlaceholderToken prefixes links to files stored in a chapter's own file
// area. The host replaces it with the real file URL when serving content.
const PlaceholderToken = "@@PLUGINFILE@@"

// Placeholder returns the stored-file reference for a rooted package path,
// e.g. "@@PLUGINFILE@@/OEBPS/images/a.png".
func Placeholder(p string) string {
	return PlaceholderToken + CleanPath(p)
}

// ChapterRef identifies the target of a rewritten cross-chapter link.
type ChapterRef struct {
	BookID    int64
	ChapterID int64
	Fragment  string
}

// DefaultChapterURL renders a ChapterRef as "/book/{book}/chapter/{id}",
// with "#fragment" appended when present.
func DefaultChapterURL(ref ChapterRef) string {
	u := fmt.Sprintf("/book/%d/chapter/%d", ref.BookID, ref.ChapterID)
	if ref.Fragment != "" {
		u += "#" + ref.Fragment
	}
	return u
}

// storedFile is a package file to be copied into a chapter's file area.
type storedFile struct {
	path string
	data []byte
}

type cssResult struct {
	data []byte
	err  error
}

// relinker rewrites the references of one import run. Resources are
// resolved while each chapter is built; anchors only once every chapter of
// the run is stored.
type relinker struct {
	log        *zap.Logger
	src        Source
	container  string
	opts       CSSOptions
	chapterURL func(ChapterRef) string
	summary    *Summary

	// Each stylesheet is scoped at most once per run.
	sheets map[string]cssResult
}

func newRelinker(log *zap.Logger, src Source, container string, opts CSSOptions, chapterURL func(ChapterRef) string, summary *Summary) *relinker {
	return &relinker{
		log:        log,
		src:        src,
		container:  container,
		opts:       opts,
		chapterURL: chapterURL,
		summary:    summary,
		sheets:     make(map[string]cssResult),
	}
}

// warn logs a skipped item and records it in the run summary.
func (r *relinker) warn(text string, fields ...zap.Field) {
	r.log.Warn(text, fields...)
	r.summary.Warnings = append(r.summary.Warnings, text)
}

// resourceAttr returns the index of the attribute of n that references an
// embedded resource, and whether that resource is a stylesheet.
func resourceAttr(n *html.Node) (idx int, stylesheet, ok bool) {
	key, ns := "", ""
	switch n.DataAtom {
	case atom.Link:
		rel, _ := getAttr(n, "rel")
		if !hasProperty(strings.ToLower(rel), "stylesheet") {
			return 0, false, false
		}
		key, stylesheet = "href", true
	case atom.Img, atom.Video, atom.Audio, atom.Source, atom.Embed:
		key = "src"
	case atom.Object:
		key = "data"
	case atom.Image:
		for i, a := range n.Attr {
			if matchAttr(a, "xlink", "href") || matchAttr(a, "", "href") {
				return i, false, true
			}
		}
		return 0, false, false
	default:
		return 0, false, false
	}
	for i, a := range n.Attr {
		if matchAttr(a, ns, key) {
			return i, stylesheet, true
		}
	}
	return 0, false, false
}

// resolveResources rewrites every relative resource reference under root
// to a placeholder and returns the files to store with the chapter, once
// per path. References to files the package lacks are left untouched. A
// stylesheet link whose CSS cannot be scoped is removed.
func (r *relinker) resolveResources(root *html.Node, sourcePath string) []storedFile {
	dir, _ := SplitPath(sourcePath)
	var files []storedFile
	seen := make(map[string]bool)
	var drop []*html.Node

	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			if idx, stylesheet, ok := resourceAttr(n); ok {
				if !r.resolveResource(n, idx, stylesheet, dir, sourcePath, seen, &files) {
					drop = append(drop, n)
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)

	for _, n := range drop {
		if n.Parent != nil {
			n.Parent.RemoveChild(n)
		}
	}
	return files
}

// resolveResource handles one reference. It returns false when the element
// must be dropped.
func (r *relinker) resolveResource(n *html.Node, idx int, stylesheet bool, dir, sourcePath string, seen map[string]bool, files *[]storedFile) bool {
	ref := strings.TrimSpace(n.Attr[idx].Val)
	if !isRelativeRef(ref) || strings.HasPrefix(strings.ToLower(ref), "data:") {
		return true
	}
	target, frag := splitFragment(ref)
	p := ResolvePath(dir, stripQuery(target))

	if !r.src.Exists(p) {
		r.summary.SkippedResources++
		r.log.Debug("resource not found",
			zap.String("chapter", sourcePath), zap.String("ref", ref), zap.String("path", p))
		return true
	}

	var data []byte
	if stylesheet || strings.EqualFold(path.Ext(p), ".css") {
		res, first := r.stylesheet(p)
		if res.err != nil {
			if first {
				r.summary.SkippedStylesheets++
				r.warn(fmt.Sprintf("skipping stylesheet %s in %s: %v", p, sourcePath, res.err))
			}
			return !stylesheet
		}
		data = res.data
	} else {
		var err error
		if data, err = r.src.ReadFile(p); err != nil {
			r.summary.SkippedResources++
			r.log.Debug("resource unreadable", zap.String("path", p), zap.Error(err))
			return true
		}
	}

	if !seen[p] {
		seen[p] = true
		*files = append(*files, storedFile{path: p, data: data})
	}
	v := Placeholder(p)
	if frag != "" {
		v += "#" + frag
	}
	n.Attr[idx].Val = v
	return true
}

// stylesheet returns the scoped form of the stylesheet at p, computing it on
// first use. first reports whether this call did the computing.
func (r *relinker) stylesheet(p string) (res cssResult, first bool) {
	if res, ok := r.sheets[p]; ok {
		return res, false
	}
	raw, err := r.src.ReadFile(p)
	if err != nil {
		res.err = err
	} else {
		scoped, err := ScopeCSS(string(stripBOM(raw)), r.container, r.opts)
		res = cssResult{data: []byte(scoped), err: err}
	}
	r.sheets[p] = res
	return res, true
}

// scopeStyleElement scopes the text of a <style> element in place. It
// returns false when the CSS cannot be parsed and the element should go.
func (r *relinker) scopeStyleElement(n *html.Node, sourcePath string) bool {
	scoped, err := ScopeCSS(nodeTextContent(n), r.container, r.opts)
	if err != nil {
		r.summary.SkippedStylesheets++
		r.warn(fmt.Sprintf("skipping embedded stylesheet in %s: %v", sourcePath, err))
		return false
	}
	for c := n.FirstChild; c != nil; c = n.FirstChild {
		n.RemoveChild(c)
	}
	n.AppendChild(&html.Node{Type: html.TextNode, Data: scoped})
	return true
}

// linkedChapter is the per-chapter state of the anchor pass.
type linkedChapter struct {
	root *html.Node
	ids  map[string]bool
}

// resolveAnchors rewrites <a href> links between the chapters of a run to
// chapter URLs. A link with a fragment goes to the one chapter of the
// target document holding that id; ambiguous or unknown fragments stay as
// they are. A link without fragment goes to the document's leading chapter.
// Links to other package files, HTML documents excepted, are copied into
// the chapter's file area like embedded resources.
func (r *relinker) resolveAnchors(ctx context.Context, store Store, chapters []StoredChapter) error {
	bySource := make(map[string][]int)
	linked := make([]linkedChapter, len(chapters))
	for i, ch := range chapters {
		bySource[ch.SourcePath] = append(bySource[ch.SourcePath], i)
		root, err := parseContent(ch.Content)
		if err != nil {
			r.warn(fmt.Sprintf("cannot parse chapter %d for relinking: %v", ch.ID, err))
			continue
		}
		ids := make(map[string]bool)
		goquery.NewDocumentFromNode(root).Find("[id]").Each(func(_ int, s *goquery.Selection) {
			id, _ := s.Attr("id")
			ids[id] = true
		})
		linked[i] = linkedChapter{root: root, ids: ids}
	}

	for i := range chapters {
		if err := ctx.Err(); err != nil {
			return err
		}
		if linked[i].root == nil {
			continue
		}

		changed := false
		var files []storedFile
		seen := make(map[string]bool)
		goquery.NewDocumentFromNode(linked[i].root).Find("a[href]").Each(func(_ int, s *goquery.Selection) {
			href, _ := s.Attr("href")
			v, file, ok := r.anchorTarget(chapters, linked, bySource, i, href)
			if !ok {
				return
			}
			s.SetAttr("href", v)
			changed = true
			if file != nil && !seen[file.path] {
				seen[file.path] = true
				files = append(files, *file)
			}
		})
		if !changed {
			continue
		}

		content, err := renderChildren(linked[i].root)
		if err != nil {
			return fmt.Errorf("bookimport: render chapter %d: %w", chapters[i].ID, err)
		}
		if err := storeFiles(ctx, store, chapters[i].ID, files, r.summary); err != nil {
			return err
		}
		if err := store.UpdateChapterContent(ctx, chapters[i].ID, content); err != nil {
			return fmt.Errorf("%w: update chapter %d: %w", ErrStorageWrite, chapters[i].ID, err)
		}
		chapters[i].Content = content
	}
	return nil
}

// anchorTarget decides the new href for a link in chapter i. ok is false
// when the link stays unchanged.
func (r *relinker) anchorTarget(chapters []StoredChapter, linked []linkedChapter, bySource map[string][]int, i int, href string) (v string, file *storedFile, ok bool) {
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(href, "//") || strings.HasPrefix(href, PlaceholderToken) || hasURIScheme(href) {
		return "", nil, false
	}
	target, frag := splitFragment(href)
	target = stripQuery(target)
	if target == "" && frag == "" {
		return "", nil, false
	}

	src := chapters[i].SourcePath
	p := src
	if target != "" {
		dir, _ := SplitPath(src)
		p = ResolvePath(dir, target)
	}

	candidates := bySource[p]
	if len(candidates) == 0 {
		if target != "" && !isDocumentPath(p) && r.src.Exists(p) {
			data, err := r.src.ReadFile(p)
			if err == nil {
				u := Placeholder(p)
				if frag != "" {
					u += "#" + frag
				}
				return u, &storedFile{path: p, data: data}, true
			}
		}
		r.summary.UnmatchedAnchors++
		return "", nil, false
	}

	if frag == "" {
		return r.rewrite(chapters[candidates[0]], ""), nil, true
	}

	match, n := -1, 0
	for _, c := range candidates {
		if linked[c].ids[frag] {
			match, n = c, n+1
		}
	}
	if n != 1 {
		r.summary.UnmatchedAnchors++
		r.log.Debug("anchor target not unique",
			zap.String("chapter", src), zap.String("href", href), zap.Int("matches", n))
		return "", nil, false
	}
	if target == "" && match == i {
		return "", nil, false
	}
	return r.rewrite(chapters[match], frag), nil, true
}

// isDocumentPath reports whether p names an HTML document. Documents are
// only ever reached as chapters, never copied as files.
func isDocumentPath(p string) bool {
	switch strings.ToLower(path.Ext(p)) {
	case ".xhtml", ".html", ".htm":
		return true
	}
	return false
}

func (r *relinker) rewrite(ch StoredChapter, frag string) string {
	r.summary.RewrittenAnchors++
	return r.chapterURL(ChapterRef{BookID: ch.BookID, ChapterID: ch.ID, Fragment: frag})
}

// storeFiles copies files into a chapter's file area, skipping paths the
// chapter already has.
func storeFiles(ctx context.Context, store Store, chapterID int64, files []storedFile, summary *Summary) error {
	for _, f := range files {
		has, err := store.HasFile(ctx, chapterID, f.path)
		if err != nil {
			return fmt.Errorf("%w: check file %s: %w", ErrStorageWrite, f.path, err)
		}
		if has {
			continue
		}
		if err := store.PutFile(ctx, chapterID, f.path, f.data); err != nil {
			return fmt.Errorf("%w: store file %s: %w", ErrStorageWrite, f.path, err)
		}
		summary.CopiedFiles++
		summary.CopiedBytes += int64(len(f.data))
	}
	return nil
}

// parseContent parses stored chapter content into a detached root whose
// children are the content nodes.
func parseContent(content string) (*html.Node, error) {
	body := &html.Node{Type: html.ElementNode, Data: "body", DataAtom: atom.Body}
	nodes, err := html.ParseFragment(strings.NewReader(content), body)
	if err != nil {
		return nil, err
	}
	root := &html.Node{Type: html.ElementNode, Data: "div", DataAtom: atom.Div}
	for _, n := range nodes {
		root.AppendChild(n)
	}
	return root, nil
}
