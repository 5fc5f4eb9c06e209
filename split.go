package bookimport

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// SplitChapters cuts the body of doc into fragments, starting a new
// fragment at every element named tag. When classes is non-empty only
// elements carrying at least one of them count.
//
// The result always holds the leading fragment (content before the first
// match, possibly empty) followed by one fragment per match, in document
// order. A split tag of "" or "none" yields the whole body as a single
// fragment; a document without a body yields none. Matches nested inside
// earlier matches are cut like any other, by document order.
//
// SplitChapters mutates doc: the body keeps only the leading fragment.
func SplitChapters(doc *html.Node, sourcePath, tag string, classes []string) []ChapterFragment {
	body := findElement(doc, atom.Body)
	if body == nil {
		return nil
	}

	frags := []ChapterFragment{{SourcePath: sourcePath, Body: body}}
	tag = strings.ToLower(strings.TrimSpace(tag))
	if tag == "" || tag == SplitNone {
		return frags
	}

	var points []*html.Node
	goquery.NewDocumentFromNode(body).Find(tag).Each(func(_ int, s *goquery.Selection) {
		n := s.Get(0)
		if len(classes) > 0 && !hasClass(n, classes) {
			return
		}
		points = append(points, n)
	})

	// Titles are read before any node moves.
	titles := make([]string, len(points))
	for i, n := range points {
		titles[i] = textOf(n)
	}

	for i, n := range points {
		last := frags[len(frags)-1].Body
		if !contains(last, n) {
			continue
		}
		frags = append(frags, ChapterFragment{
			SourcePath: sourcePath,
			Title:      titles[i],
			Subchapter: true,
			Body:       cutBefore(last, n),
			Ordinal:    len(frags),
		})
	}
	return frags
}

// cutBefore moves target and everything after it in document order out of
// container into a shallow copy of container, which it returns. Ancestors
// of target between the two are copied the same way. An ancestor left with
// nothing but whitespace is removed and its id handed to its copy.
func cutBefore(container, target *html.Node) *html.Node {
	tail := cloneShallow(container)
	kids := childNodes(container)

	idx := -1
	for i, c := range kids {
		if contains(c, target) {
			idx = i
			break
		}
	}
	if idx < 0 {
		return tail
	}

	start := idx
	if kids[idx] != target {
		head := kids[idx]
		inner := cutBefore(head, target)
		tail.AppendChild(inner)
		if isBlank(head) {
			if id, ok := getAttr(head, "id"); ok {
				setAttr(inner, "id", id)
			}
			container.RemoveChild(head)
		}
		start = idx + 1
	}

	for _, c := range kids[start:] {
		container.RemoveChild(c)
		tail.AppendChild(c)
	}
	return tail
}

// isBlank reports whether n has no element children and no visible text.
func isBlank(n *html.Node) bool {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		switch c.Type {
		case html.ElementNode:
			return false
		case html.TextNode:
			if strings.TrimSpace(c.Data) != "" {
				return false
			}
		}
	}
	return true
}
