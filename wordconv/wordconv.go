// Package wordconv converts Word documents (.docx) into a single HTML
// document plus the images it references, ready to be imported as a book
// chapter.
//
// Only the document body is converted: headings, paragraphs, bold and
// italic runs, line breaks, tables, inline images, bookmarks and hyperlinks.
// Numbering, fields, comments and tracked deletions are ignored.
package wordconv

import (
	"archive/zip"
	"bytes"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/antchfx/xmlquery"
	"github.com/antchfx/xpath"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// ErrNotWordDocument is returned when the input is not a zip archive or has
// no word/document.xml part.
var ErrNotWordDocument = errors.New("wordconv: not a word document")

// maxPartSize limits the decompressed size of a single part.
const maxPartSize int64 = 256 * 1024 * 1024

// ImageDir is the directory, relative to the HTML document, images are
// referenced from.
const ImageDir = "images"

const (
	partDocument = "word/document.xml"
	partRels     = "word/_rels/document.xml.rels"
	partStyles   = "word/styles.xml"
	partCore     = "docProps/core.xml"
)

// Document is the result of a conversion.
type Document struct {
	// Title is the dc:title of the document properties, or the text of the
	// first heading when the properties have none.
	Title string

	// HTML is a complete UTF-8 HTML document.
	HTML []byte

	// Images maps file names under ImageDir to their content.
	Images map[string][]byte
}

var (
	exprBody       = xpath.MustCompile(`//*[local-name()='document']/*[local-name()='body']`)
	exprRels       = xpath.MustCompile(`//*[local-name()='Relationship']`)
	exprStyles     = xpath.MustCompile(`//*[local-name()='style']`)
	exprCoreTitle  = xpath.MustCompile(`//*[local-name()='title']`)
	exprBlip       = xpath.MustCompile(`.//*[local-name()='blip']`)
	exprImageData  = xpath.MustCompile(`.//*[local-name()='imagedata']`)
	exprDocPr      = xpath.MustCompile(`.//*[local-name()='docPr']`)
	exprStyleLevel = xpath.MustCompile(`./*[local-name()='pPr']/*[local-name()='outlineLvl']`)
)

// builtinHeadings maps lowercased style ids to heading levels.
var builtinHeadings = map[string]int{
	"title":    1,
	"heading1": 1, "heading2": 2, "heading3": 3,
	"heading4": 4, "heading5": 5, "heading6": 6,
	"heading7": 6, "heading8": 6, "heading9": 6,
}

type relationship struct {
	target   string
	typ      string
	external bool
}

type converter struct {
	parts    map[string]*zip.File
	rels     map[string]relationship
	headings map[string]int
	images   map[string][]byte
	named    map[string]string // image part path -> file name under ImageDir
	title    string
}

// ConvertBytes converts an in-memory .docx file.
func ConvertBytes(data []byte) (*Document, error) {
	return Convert(bytes.NewReader(data), int64(len(data)))
}

// Convert reads a .docx package and renders its body as HTML.
func Convert(r io.ReaderAt, size int64) (*Document, error) {
	zr, err := zip.NewReader(r, size)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNotWordDocument, err)
	}

	c := &converter{
		parts:    make(map[string]*zip.File, len(zr.File)),
		rels:     make(map[string]relationship),
		headings: make(map[string]int),
		images:   make(map[string][]byte),
		named:    make(map[string]string),
	}
	for _, f := range zr.File {
		c.parts[strings.ToLower(strings.TrimPrefix(f.Name, "/"))] = f
	}

	docXML, err := c.read(partDocument)
	if err != nil {
		if errors.Is(err, errMissingPart) {
			return nil, ErrNotWordDocument
		}
		return nil, err
	}
	doc, err := xmlquery.Parse(bytes.NewReader(docXML))
	if err != nil {
		return nil, fmt.Errorf("wordconv: parse %s: %w", partDocument, err)
	}

	if err := c.loadRelationships(); err != nil {
		return nil, err
	}
	if err := c.loadStyles(); err != nil {
		return nil, err
	}
	title, err := c.coreTitle()
	if err != nil {
		return nil, err
	}

	body := &html.Node{Type: html.ElementNode, Data: "body", DataAtom: atom.Body}
	if b := xmlquery.QuerySelector(doc, exprBody); b != nil {
		c.blocks(body, b)
	}
	if title == "" {
		title = c.title
	}

	out, err := render(title, body)
	if err != nil {
		return nil, err
	}
	return &Document{Title: title, HTML: out, Images: c.images}, nil
}

var errMissingPart = errors.New("wordconv: missing part")

// read returns the content of a package part. Part names are matched
// case-insensitively.
func (c *converter) read(name string) ([]byte, error) {
	f, ok := c.parts[strings.ToLower(name)]
	if !ok {
		return nil, fmt.Errorf("%w: %s", errMissingPart, name)
	}
	if f.UncompressedSize64 > uint64(maxPartSize) {
		return nil, fmt.Errorf("wordconv: part %s too large: %d bytes", name, f.UncompressedSize64)
	}
	rc, err := f.Open()
	if err != nil {
		return nil, fmt.Errorf("wordconv: open %s: %w", name, err)
	}
	defer rc.Close()

	data, err := io.ReadAll(io.LimitReader(rc, maxPartSize+1))
	if err != nil {
		return nil, fmt.Errorf("wordconv: read %s: %w", name, err)
	}
	if int64(len(data)) > maxPartSize {
		return nil, fmt.Errorf("wordconv: part %s exceeds %d bytes", name, maxPartSize)
	}
	return data, nil
}

// readOptional parses an optional XML part; a missing part yields nil.
func (c *converter) readOptional(name string) (*xmlquery.Node, error) {
	data, err := c.read(name)
	if errors.Is(err, errMissingPart) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	n, err := xmlquery.Parse(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("wordconv: parse %s: %w", name, err)
	}
	return n, nil
}

func (c *converter) loadRelationships() error {
	doc, err := c.readOptional(partRels)
	if err != nil || doc == nil {
		return err
	}
	for _, n := range xmlquery.QuerySelectorAll(doc, exprRels) {
		id := attr(n, "Id")
		if id == "" {
			continue
		}
		c.rels[id] = relationship{
			target:   attr(n, "Target"),
			typ:      attr(n, "Type"),
			external: strings.EqualFold(attr(n, "TargetMode"), "External"),
		}
	}
	return nil
}

// loadStyles records every paragraph style that renders as a heading,
// either by outline level or by a "heading N" name.
func (c *converter) loadStyles() error {
	doc, err := c.readOptional(partStyles)
	if err != nil || doc == nil {
		return err
	}
	for _, s := range xmlquery.QuerySelectorAll(doc, exprStyles) {
		id := strings.ToLower(attr(s, "styleId"))
		if id == "" {
			continue
		}
		if lvl := xmlquery.QuerySelector(s, exprStyleLevel); lvl != nil {
			if level, ok := outlineLevel(attr(lvl, "val")); ok {
				c.headings[id] = level
				continue
			}
		}
		if name := child(s, "name"); name != nil {
			v := strings.ToLower(strings.ReplaceAll(attr(name, "val"), " ", ""))
			if level, ok := builtinHeadings[v]; ok {
				c.headings[id] = level
			}
		}
	}
	return nil
}

func (c *converter) coreTitle() (string, error) {
	doc, err := c.readOptional(partCore)
	if err != nil || doc == nil {
		return "", err
	}
	if t := xmlquery.QuerySelector(doc, exprCoreTitle); t != nil {
		return strings.TrimSpace(t.InnerText()), nil
	}
	return "", nil
}

// outlineLevel converts a zero-based OOXML outline level to a heading level.
// Level 9 means body text.
func outlineLevel(v string) (int, bool) {
	if len(v) != 1 || v[0] < '0' || v[0] > '8' {
		return 0, false
	}
	return min(int(v[0]-'0')+1, 6), true
}

// headingLevel returns the heading level of a paragraph, or 0.
func (c *converter) headingLevel(p *xmlquery.Node) int {
	ppr := child(p, "pPr")
	if ppr == nil {
		return 0
	}
	if lvl := child(ppr, "outlineLvl"); lvl != nil {
		if level, ok := outlineLevel(attr(lvl, "val")); ok {
			return level
		}
	}
	st := child(ppr, "pStyle")
	if st == nil {
		return 0
	}
	id := strings.ToLower(attr(st, "val"))
	if level, ok := c.headings[id]; ok {
		return level
	}
	return builtinHeadings[id]
}

// blocks converts the block-level content of a body, cell or content
// control into parent.
func (c *converter) blocks(parent *html.Node, n *xmlquery.Node) {
	for k := n.FirstChild; k != nil; k = k.NextSibling {
		if k.Type != xmlquery.ElementNode {
			continue
		}
		switch k.Data {
		case "p":
			c.paragraph(parent, k)
		case "tbl":
			c.table(parent, k)
		case "sdt":
			if content := child(k, "sdtContent"); content != nil {
				c.blocks(parent, content)
			}
		case "customXml", "ins":
			c.blocks(parent, k)
		}
	}
}

func (c *converter) paragraph(parent *html.Node, p *xmlquery.Node) {
	el := element(atom.P)
	if level := c.headingLevel(p); level > 0 {
		el = element(headingAtoms[level-1])
	}
	c.inline(el, p)
	if el.DataAtom != atom.P && c.title == "" {
		c.title = strings.Join(strings.Fields(textContent(el)), " ")
	}
	parent.AppendChild(el)
}

var headingAtoms = [...]atom.Atom{atom.H1, atom.H2, atom.H3, atom.H4, atom.H5, atom.H6}

func (c *converter) table(parent *html.Node, tbl *xmlquery.Node) {
	table := element(atom.Table)
	tbody := element(atom.Tbody)
	table.AppendChild(tbody)
	for tr := tbl.FirstChild; tr != nil; tr = tr.NextSibling {
		if tr.Type != xmlquery.ElementNode || tr.Data != "tr" {
			continue
		}
		row := element(atom.Tr)
		for tc := tr.FirstChild; tc != nil; tc = tc.NextSibling {
			if tc.Type != xmlquery.ElementNode || tc.Data != "tc" {
				continue
			}
			cell := element(atom.Td)
			c.blocks(cell, tc)
			row.AppendChild(cell)
		}
		tbody.AppendChild(row)
	}
	parent.AppendChild(table)
}

// inline converts the runs, hyperlinks and bookmarks of a paragraph.
func (c *converter) inline(parent *html.Node, n *xmlquery.Node) {
	for k := n.FirstChild; k != nil; k = k.NextSibling {
		if k.Type != xmlquery.ElementNode {
			continue
		}
		switch k.Data {
		case "r":
			c.run(parent, k)
		case "hyperlink":
			c.hyperlink(parent, k)
		case "bookmarkStart":
			name := attr(k, "name")
			if name == "" || strings.HasPrefix(name, "_GoBack") {
				continue
			}
			a := element(atom.A)
			a.Attr = []html.Attribute{{Key: "id", Val: name}}
			parent.AppendChild(a)
		case "ins", "smartTag", "fldSimple", "customXml":
			c.inline(parent, k)
		case "sdt":
			if content := child(k, "sdtContent"); content != nil {
				c.inline(parent, content)
			}
		}
	}
}

func (c *converter) hyperlink(parent *html.Node, h *xmlquery.Node) {
	var href string
	if anchor := attr(h, "anchor"); anchor != "" {
		href = "#" + anchor
	} else if rel, ok := c.rels[attr(h, "id")]; ok && strings.HasSuffix(rel.typ, "/hyperlink") {
		href = rel.target
	}
	if href == "" {
		c.inline(parent, h)
		return
	}
	a := element(atom.A)
	a.Attr = []html.Attribute{{Key: "href", Val: href}}
	c.inline(a, h)
	parent.AppendChild(a)
}

// run converts a text run, wrapping it in <b> and <i> as its properties ask.
func (c *converter) run(parent *html.Node, r *xmlquery.Node) {
	target := parent
	if rpr := child(r, "rPr"); rpr != nil {
		if isOn(child(rpr, "b")) {
			b := element(atom.B)
			target.AppendChild(b)
			target = b
		}
		if isOn(child(rpr, "i")) {
			i := element(atom.I)
			target.AppendChild(i)
			target = i
		}
	}

	for k := r.FirstChild; k != nil; k = k.NextSibling {
		if k.Type != xmlquery.ElementNode {
			continue
		}
		switch k.Data {
		case "t":
			appendText(target, k.InnerText())
		case "tab":
			appendText(target, "\t")
		case "noBreakHyphen":
			appendText(target, "‑")
		case "br", "cr":
			if attr(k, "type") == "page" {
				continue
			}
			target.AppendChild(element(atom.Br))
		case "drawing":
			if blip := xmlquery.QuerySelector(k, exprBlip); blip != nil {
				alt := ""
				if pr := xmlquery.QuerySelector(k, exprDocPr); pr != nil {
					alt = attr(pr, "descr")
				}
				c.image(target, attr(blip, "embed"), alt)
			}
		case "pict", "object":
			if data := xmlquery.QuerySelector(k, exprImageData); data != nil {
				c.image(target, attr(data, "id"), attr(data, "title"))
			}
		}
	}

	// A formatting wrapper without content is dropped.
	if target != parent && target.FirstChild == nil {
		for target.Parent != parent {
			target = target.Parent
		}
		parent.RemoveChild(target)
	}
}

// image appends an <img> for the image part behind relationship id and
// records the image content.
func (c *converter) image(parent *html.Node, id, alt string) {
	rel, ok := c.rels[id]
	if !ok || rel.external || rel.target == "" {
		return
	}
	part := strings.TrimPrefix(path.Clean(path.Join("word", rel.target)), "/")
	if strings.HasPrefix(rel.target, "/") {
		part = strings.TrimPrefix(path.Clean(rel.target), "/")
	}

	name, ok := c.named[part]
	if !ok {
		data, err := c.read(part)
		if err != nil {
			return
		}
		name = c.uniqueName(path.Base(part))
		c.named[part] = name
		c.images[name] = data
	}

	img := element(atom.Img)
	img.Attr = []html.Attribute{
		{Key: "src", Val: ImageDir + "/" + name},
		{Key: "alt", Val: alt},
	}
	parent.AppendChild(img)
}

func (c *converter) uniqueName(name string) string {
	if _, taken := c.images[name]; !taken {
		return name
	}
	ext := path.Ext(name)
	stem := strings.TrimSuffix(name, ext)
	for i := 2; ; i++ {
		candidate := fmt.Sprintf("%s-%d%s", stem, i, ext)
		if _, taken := c.images[candidate]; !taken {
			return candidate
		}
	}
}

// render wraps body in a complete HTML document.
func render(title string, body *html.Node) ([]byte, error) {
	root := element(atom.Html)
	head := element(atom.Head)
	meta := element(atom.Meta)
	meta.Attr = []html.Attribute{{Key: "charset", Val: "utf-8"}}
	head.AppendChild(meta)
	if title != "" {
		t := element(atom.Title)
		appendText(t, title)
		head.AppendChild(t)
	}
	root.AppendChild(head)
	root.AppendChild(body)

	var buf bytes.Buffer
	buf.WriteString("<!DOCTYPE html>\n")
	if err := html.Render(&buf, root); err != nil {
		return nil, fmt.Errorf("wordconv: render: %w", err)
	}
	return buf.Bytes(), nil
}

func element(a atom.Atom) *html.Node {
	return &html.Node{Type: html.ElementNode, Data: a.String(), DataAtom: a}
}

// appendText adds text to n, merging with a trailing text node.
func appendText(n *html.Node, s string) {
	if s == "" {
		return
	}
	if last := n.LastChild; last != nil && last.Type == html.TextNode {
		last.Data += s
		return
	}
	n.AppendChild(&html.Node{Type: html.TextNode, Data: s})
}

func textContent(n *html.Node) string {
	if n.Type == html.TextNode {
		return n.Data
	}
	var sb strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		sb.WriteString(textContent(c))
	}
	return sb.String()
}

// child returns the first element child of n with the given local name.
func child(n *xmlquery.Node, local string) *xmlquery.Node {
	for k := n.FirstChild; k != nil; k = k.NextSibling {
		if k.Type == xmlquery.ElementNode && k.Data == local {
			return k
		}
	}
	return nil
}

// attr returns an attribute by local name, whatever its prefix.
func attr(n *xmlquery.Node, local string) string {
	for _, a := range n.Attr {
		if a.Name.Local == local {
			return a.Value
		}
	}
	return ""
}

// isOn reports whether a toggle property such as <w:b/> is set.
func isOn(n *xmlquery.Node) bool {
	if n == nil {
		return false
	}
	switch strings.ToLower(attr(n, "val")) {
	case "0", "false", "off", "none":
		return false
	}
	return true
}
