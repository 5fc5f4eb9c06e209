package bookimport

import (
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
	"golang.org/x/text/unicode/norm"
)

// maxTitleLength is the longest chapter or book title stored, in characters.
const maxTitleLength = 250

// untitledBook names a book created from a package without a title.
const untitledBook = "Untitled"

// chapterTitle returns the first candidate that is not blank, cleaned up,
// or "*" when every candidate is blank.
func chapterTitle(candidates ...string) string {
	for _, c := range candidates {
		if t := cleanTitle(c); t != "" {
			return t
		}
	}
	return "*"
}

// cleanTitle collapses whitespace, normalizes to NFC and cuts the result to
// maxTitleLength characters.
func cleanTitle(s string) string {
	return truncateRunes(norm.NFC.String(collapseWhitespace(s)), maxTitleLength)
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}

// documentTitle returns the text of the document's <title> element.
func documentTitle(doc *html.Node) string {
	if t := findElement(doc, atom.Title); t != nil {
		return textOf(t)
	}
	return ""
}

func isStylesheetLink(n *html.Node) bool {
	_, stylesheet, ok := resourceAttr(n)
	return ok && stylesheet
}

// collectStyles returns copies of the <style> and stylesheet <link>
// elements of the document head, in document order, with embedded CSS
// already scoped. Nothing is collected when styles are disabled.
func collectStyles(doc *html.Node, sourcePath string, s Settings, rl *relinker) []*html.Node {
	if !s.EnableStyles {
		return nil
	}
	head := findElement(doc, atom.Head)
	if head == nil {
		return nil
	}

	var out []*html.Node
	goquery.NewDocumentFromNode(head).Find("style, link").Each(func(_ int, sel *goquery.Selection) {
		n := sel.Get(0)
		switch {
		case n.DataAtom == atom.Style:
			st := cloneDeep(n)
			if rl.scopeStyleElement(st, sourcePath) {
				out = append(out, st)
			}
		case isStylesheetLink(n):
			out = append(out, cloneDeep(n))
		}
	})
	return out
}

// scrubBodyStyles scopes <style> elements found inside the body, or removes
// them together with stylesheet links when styles are disabled.
func scrubBodyStyles(body *html.Node, sourcePath string, s Settings, rl *relinker) {
	var drop []*html.Node
	goquery.NewDocumentFromNode(body).Find("style, link").Each(func(_ int, sel *goquery.Selection) {
		n := sel.Get(0)
		switch {
		case n.DataAtom == atom.Style:
			if !s.EnableStyles || !rl.scopeStyleElement(n, sourcePath) {
				drop = append(drop, n)
			}
		case isStylesheetLink(n) && !s.EnableStyles:
			drop = append(drop, n)
		}
	})
	for _, n := range drop {
		n.Parent.RemoveChild(n)
	}
}

// buildContent assembles the stored form of a fragment: the document's
// styles, then the chapter container holding header, body and footer. The
// fragment's nodes move into the result.
func buildContent(frag ChapterFragment, styles []*html.Node, containerClass string, s Settings) *html.Node {
	root := &html.Node{Type: html.ElementNode, Data: "div", DataAtom: atom.Div}
	for _, st := range styles {
		root.AppendChild(cloneDeep(st))
	}

	wrap := &html.Node{
		Type:     html.ElementNode,
		Data:     "div",
		DataAtom: atom.Div,
		Attr:     []html.Attribute{{Key: "class", Val: containerClass}},
	}
	root.AppendChild(wrap)

	appendSnippet(wrap, s.Header)
	for _, c := range childNodes(frag.Body) {
		frag.Body.RemoveChild(c)
		wrap.AppendChild(c)
	}
	appendSnippet(wrap, s.Footer)
	return root
}

// appendSnippet parses an HTML snippet and appends its nodes to parent.
func appendSnippet(parent *html.Node, snippet string) {
	if strings.TrimSpace(snippet) == "" {
		return
	}
	nodes, err := html.ParseFragment(strings.NewReader(snippet), &html.Node{
		Type:     html.ElementNode,
		Data:     "div",
		DataAtom: atom.Div,
	})
	if err != nil {
		return
	}
	for _, n := range nodes {
		parent.AppendChild(n)
	}
}
