package bookimport

import (
	"bytes"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
	"golang.org/x/net/html/charset"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/transform"
)

// entityNameToNumeric maps lowercase HTML entity names to their XML numeric
// character references. encoding/xml does not recognise HTML named entities,
// so we convert them before parsing OPF/NCX files.
var entityNameToNumeric = map[string][]byte{
	"nbsp": []byte("&#160;"), "mdash": []byte("&#8212;"), "ndash": []byte("&#8211;"),
	"hellip": []byte("&#8230;"),
	"lsquo": []byte("&#8216;"), "rsquo": []byte("&#8217;"),
	"ldquo": []byte("&#8220;"), "rdquo": []byte("&#8221;"),
	"copy": []byte("&#169;"), "reg": []byte("&#174;"), "trade": []byte("&#8482;"),
	"eacute": []byte("&#233;"), "egrave": []byte("&#232;"),
	"aacute": []byte("&#225;"), "agrave": []byte("&#224;"),
	"ouml": []byte("&#246;"), "uuml": []byte("&#252;"), "auml": []byte("&#228;"),
	"laquo": []byte("&#171;"), "raquo": []byte("&#187;"),
}

var htmlEntityPattern = regexp.MustCompile(
	`(?i)&(nbsp|mdash|ndash|hellip|lsquo|rsquo|ldquo|rdquo|copy|reg|trade|` +
		`eacute|egrave|aacute|agrave|ouml|uuml|auml|laquo|raquo);`)

// preprocessHTMLEntities replaces common HTML named entities with numeric
// references so that encoding/xml can parse package files written by
// careless tools.
func preprocessHTMLEntities(data []byte) []byte {
	return htmlEntityPattern.ReplaceAllFunc(data, func(match []byte) []byte {
		name := strings.ToLower(string(match[1 : len(match)-1]))
		if replacement, ok := entityNameToNumeric[name]; ok {
			return replacement
		}
		return match
	})
}

var xmlDeclEncoding = regexp.MustCompile(`^\s*<\?xml[^>]*?encoding\s*=\s*["']([A-Za-z0-9._:-]+)["']`)

// decodeToUTF8 converts a chapter document to UTF-8. The XML declaration
// wins when it names an encoding; valid UTF-8 is kept as is; anything else
// goes through the HTML5 sniffing rules (BOM, <meta charset>, fallback).
func decodeToUTF8(data []byte) []byte {
	data = stripBOM(data)
	if bytes.HasPrefix(data, []byte{0xFE, 0xFF}) || bytes.HasPrefix(data, []byte{0xFF, 0xFE}) {
		e, _, _ := charset.DetermineEncoding(data, "text/html")
		return decodeWith(e, data)
	}
	if m := xmlDeclEncoding.FindSubmatch(data); m != nil {
		if e, err := htmlindex.Get(string(m[1])); err == nil {
			return decodeWith(e, data)
		}
	}
	if utf8.Valid(data) {
		return data
	}
	e, _, _ := charset.DetermineEncoding(data, "text/html")
	return decodeWith(e, data)
}

func decodeWith(e encoding.Encoding, data []byte) []byte {
	out, _, err := transform.Bytes(e.NewDecoder(), data)
	if err != nil {
		return data
	}
	return stripBOM(out)
}

// parseDocument decodes and parses a chapter document.
func parseDocument(data []byte) (*html.Node, error) {
	doc, err := html.Parse(bytes.NewReader(decodeToUTF8(data)))
	if err != nil {
		return nil, fmt.Errorf("bookimport: parse html: %w", err)
	}
	return doc, nil
}

// findElement performs a depth-first search for a node with the given atom tag.
func findElement(n *html.Node, a atom.Atom) *html.Node {
	if n.Type == html.ElementNode && n.DataAtom == a {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if result := findElement(c, a); result != nil {
			return result
		}
	}
	return nil
}

// renderChildren renders the children of n back to HTML.
func renderChildren(n *html.Node) (string, error) {
	var buf bytes.Buffer
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if err := html.Render(&buf, c); err != nil {
			return "", err
		}
	}
	return buf.String(), nil
}

// nodeTextContent recursively collects all text content within a node.
func nodeTextContent(n *html.Node) string {
	if n.Type == html.TextNode {
		return n.Data
	}
	var sb strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		sb.WriteString(nodeTextContent(c))
	}
	return sb.String()
}

// textOf returns the visible text of n with whitespace runs collapsed and
// the ends trimmed.
func textOf(n *html.Node) string {
	return strings.TrimSpace(collapseWhitespace(nodeTextContent(n)))
}

// collapseWhitespace replaces runs of whitespace characters with a single
// space. Returns empty string if the input is all whitespace.
func collapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// getAttr returns the value of the attribute key on n.
func getAttr(n *html.Node, key string) (string, bool) {
	for _, a := range n.Attr {
		if a.Namespace == "" && a.Key == key {
			return a.Val, true
		}
	}
	return "", false
}

// setAttr sets the attribute key on n, adding it when missing.
func setAttr(n *html.Node, key, val string) {
	for i, a := range n.Attr {
		if a.Namespace == "" && a.Key == key {
			n.Attr[i].Val = val
			return
		}
	}
	n.Attr = append(n.Attr, html.Attribute{Key: key, Val: val})
}

// matchAttr checks if an html.Attribute matches the given namespace and key.
func matchAttr(attr html.Attribute, namespace, key string) bool {
	if namespace == "" {
		return attr.Key == key && attr.Namespace == ""
	}
	// x/net/html stores foreign attributes either with a namespace or with a
	// prefixed key, depending on the parsing context.
	if attr.Namespace == namespace && attr.Key == key {
		return true
	}
	return attr.Key == namespace+":"+key
}

// hasClass reports whether n's class attribute contains any of classes.
func hasClass(n *html.Node, classes []string) bool {
	v, _ := getAttr(n, "class")
	for _, c := range strings.Fields(v) {
		for _, want := range classes {
			if c == want {
				return true
			}
		}
	}
	return false
}

// cloneShallow copies an element without its children. The id attribute is
// dropped so a split never duplicates an anchor target.
func cloneShallow(n *html.Node) *html.Node {
	c := &html.Node{
		Type:      n.Type,
		DataAtom:  n.DataAtom,
		Data:      n.Data,
		Namespace: n.Namespace,
	}
	for _, a := range n.Attr {
		if a.Namespace == "" && a.Key == "id" {
			continue
		}
		c.Attr = append(c.Attr, a)
	}
	return c
}

// childNodes returns the children of n as a slice so callers can move them
// without walking a list that changes under them.
func childNodes(n *html.Node) []*html.Node {
	var out []*html.Node
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		out = append(out, c)
	}
	return out
}

// contains reports whether target is n or one of its descendants.
func contains(n, target *html.Node) bool {
	for t := target; t != nil; t = t.Parent {
		if t == n {
			return true
		}
	}
	return false
}

// cloneDeep copies n and its whole subtree.
func cloneDeep(n *html.Node) *html.Node {
	c := &html.Node{
		Type:      n.Type,
		DataAtom:  n.DataAtom,
		Data:      n.Data,
		Namespace: n.Namespace,
		Attr:      append([]html.Attribute(nil), n.Attr...),
	}
	for k := n.FirstChild; k != nil; k = k.NextSibling {
		c.AppendChild(cloneDeep(k))
	}
	return c
}
