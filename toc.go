package bookimport

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// BuildNavMap collects chapter titles from the EPUB 3 navigation document
// and the EPUB 2 NCX file, in that order. Each href is resolved against the
// directory of the file that contains it and stripped of its fragment; the
// first title seen for a path wins.
//
// Navigation problems never fail an import: an unreadable or malformed
// navigation file only contributes fewer entries, and a warning.
func (p *Package) BuildNavMap(m *Manifest) NavMap {
	names := make(NavMap)

	for _, e := range m.Order {
		if hasProperty(e.Properties, "nav") {
			p.addNavDocument(names, e.Path)
		}
	}

	if m.TOC != "" {
		if e, ok := m.Entries[m.TOC]; ok {
			p.addNCX(names, e.Path)
		}
	}

	return names
}

// addNavDocument adds every <a href> of the navigation document in document
// order.
func (p *Package) addNavDocument(names NavMap, navPath string) {
	data, err := p.ReadFile(navPath)
	if err != nil {
		p.warnings = append(p.warnings, fmt.Sprintf("failed to read nav document: %v", err))
		return
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(stripBOM(data)))
	if err != nil {
		p.warnings = append(p.warnings, fmt.Sprintf("failed to parse nav document: %v", err))
		return
	}

	dir, _ := SplitPath(navPath)
	doc.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
		href, _ := a.Attr("href")
		names.add(dir, href, a.Text())
	})
}

// addNCX adds every navPoint of the NCX file, depth first.
func (p *Package) addNCX(names NavMap, ncxPath string) {
	data, err := p.ReadFile(ncxPath)
	if err != nil {
		p.warnings = append(p.warnings, fmt.Sprintf("failed to read NCX file: %v", err))
		return
	}

	points, err := parseNCX(data)
	if err != nil {
		p.warnings = append(p.warnings, err.Error())
		return
	}

	dir, _ := SplitPath(ncxPath)
	var walk func([]ncxNavPoint)
	walk = func(points []ncxNavPoint) {
		for _, np := range points {
			names.add(dir, np.Content.Src, np.Label.Text)
			walk(np.Children)
		}
	}
	walk(points)
}

// add records title for href unless the path already has one. Empty hrefs,
// empty titles and links leaving the package are ignored.
func (n NavMap) add(dir, href, title string) {
	href = strings.TrimSpace(href)
	title = strings.TrimSpace(collapseWhitespace(title))
	if href == "" || title == "" || !isRelativeRef(href) {
		return
	}
	target, _ := splitFragment(href)
	key := ResolvePath(dir, stripQuery(target))
	if _, exists := n[key]; !exists {
		n[key] = title
	}
}

// --- NCX XML decoding structs (EPUB 2) ---

type ncxDocument struct {
	XMLName xml.Name  `xml:"ncx"`
	NavMap  ncxNavMap `xml:"navMap"`
}

type ncxNavMap struct {
	NavPoints []ncxNavPoint `xml:"navPoint"`
}

type ncxNavPoint struct {
	Label    ncxNavLabel   `xml:"navLabel"`
	Content  ncxContent    `xml:"content"`
	Children []ncxNavPoint `xml:"navPoint"`
}

type ncxNavLabel struct {
	Text string `xml:"text"`
}

type ncxContent struct {
	Src string `xml:"src,attr"`
}

// parseNCX decodes an NCX file and returns its top-level navPoints.
func parseNCX(data []byte) ([]ncxNavPoint, error) {
	data = preprocessHTMLEntities(data)
	data = stripBOM(data)

	var doc ncxDocument
	if err := xml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse NCX file: %w", err)
	}
	return doc.NavMap.NavPoints, nil
}
