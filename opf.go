package bookimport

import (
	"encoding/xml"
	"fmt"
	"strings"
)

// opfPackage represents the root <package> element of an OPF file.
type opfPackage struct {
	XMLName  xml.Name    `xml:"package"`
	Version  string      `xml:"version,attr"`
	Metadata opfMetadata `xml:"metadata"`
	Manifest opfManifest `xml:"manifest"`
	Spine    opfSpine    `xml:"spine"`
}

// opfMetadata holds the Dublin Core elements used to title imported books.
type opfMetadata struct {
	Titles      []opfDCElement `xml:"http://purl.org/dc/elements/1.1/ title"`
	Creators    []opfDCElement `xml:"http://purl.org/dc/elements/1.1/ creator"`
	Languages   []opfDCElement `xml:"http://purl.org/dc/elements/1.1/ language"`
	Identifiers []opfDCElement `xml:"http://purl.org/dc/elements/1.1/ identifier"`
	Metas       []opfMeta      `xml:"meta"`
}

// opfDCElement holds a Dublin Core element with optional OPF attributes.
// EPUB 2 puts opf:file-as and opf:role on the element itself; EPUB 3 uses
// <meta refines="..."> elements instead.
type opfDCElement struct {
	Value  string `xml:",chardata"`
	ID     string `xml:"id,attr"`
	FileAs string `xml:"file-as,attr"`
	Role   string `xml:"role,attr"`
}

// opfMeta represents an EPUB 3 <meta property="..." refines="..."> element.
type opfMeta struct {
	Property string `xml:"property,attr"`
	Refines  string `xml:"refines,attr"`
	Value    string `xml:",chardata"`
}

type opfManifest struct {
	Items []opfManifestItem `xml:"item"`
}

type opfManifestItem struct {
	ID         string `xml:"id,attr"`
	Href       string `xml:"href,attr"`
	MediaType  string `xml:"media-type,attr"`
	Properties string `xml:"properties,attr"`
}

type opfSpine struct {
	Toc      string            `xml:"toc,attr"`
	ItemRefs []opfSpineItemRef `xml:"itemref"`
}

type opfSpineItemRef struct {
	IDRef  string `xml:"idref,attr"`
	Linear string `xml:"linear,attr"`
}

// parseOPF parses the package document. Parse failures wrap ErrMalformedXML.
func parseOPF(data []byte) (*opfPackage, error) {
	data = preprocessHTMLEntities(data)
	data = stripBOM(data)

	var pkg opfPackage
	if err := xml.Unmarshal(data, &pkg); err != nil {
		return nil, fmt.Errorf("bookimport: parse OPF: %v: %w", err, ErrMalformedXML)
	}

	if pkg.Version == "" {
		pkg.Version = "2.0"
	}
	return &pkg, nil
}

// buildManifest turns the parsed OPF into a Manifest. Item hrefs are
// resolved against the directory of the package document. Items missing an
// id, href or media type are dropped with a warning, as are spine references
// to unknown items.
func buildManifest(pkg *opfPackage, opfPath string) *Manifest {
	baseDir, _ := SplitPath(opfPath)
	m := &Manifest{
		Path:     opfPath,
		BaseDir:  baseDir,
		Version:  pkg.Version,
		TOC:      strings.TrimSpace(pkg.Spine.Toc),
		Entries:  make(map[string]ManifestEntry, len(pkg.Manifest.Items)),
		Metadata: extractMetadata(pkg),
	}

	for i, item := range pkg.Manifest.Items {
		id := strings.TrimSpace(item.ID)
		href := strings.TrimSpace(item.Href)
		mediaType := strings.TrimSpace(item.MediaType)
		if id == "" || href == "" || mediaType == "" {
			m.Warnings = append(m.Warnings, fmt.Sprintf("manifest item %d is missing id, href or media-type; skipped", i))
			continue
		}
		if _, dup := m.Entries[id]; dup {
			m.Warnings = append(m.Warnings, fmt.Sprintf("duplicate manifest id %q; first kept", id))
			continue
		}
		entry := ManifestEntry{
			ID:         id,
			Href:       href,
			MediaType:  mediaType,
			Properties: item.Properties,
			Path:       ResolvePath(baseDir, stripQuery(href)),
		}
		m.Entries[id] = entry
		m.Order = append(m.Order, entry)
	}

	for _, ref := range pkg.Spine.ItemRefs {
		idref := strings.TrimSpace(ref.IDRef)
		if _, ok := m.Entries[idref]; !ok {
			m.Warnings = append(m.Warnings, fmt.Sprintf("spine references unknown manifest item %q; skipped", idref))
			continue
		}
		m.Spine = append(m.Spine, SpineItem{
			IDRef:  idref,
			Linear: strings.TrimSpace(ref.Linear) != "no",
		})
	}

	return m
}

// ChapterFiles returns the spine documents that can be imported as
// chapters, in reading order: items whose media type is
// application/xhtml+xml or text/html. A document listed twice is imported
// once.
func (m *Manifest) ChapterFiles() []ChapterFile {
	files := make([]ChapterFile, 0, len(m.Spine))
	seen := make(map[string]bool, len(m.Spine))
	for _, si := range m.Spine {
		e := m.Entries[si.IDRef]
		if !isChapterMediaType(e.MediaType) || seen[e.Path] {
			continue
		}
		seen[e.Path] = true
		files = append(files, ChapterFile{Path: e.Path, ID: e.ID, NonLinear: !si.Linear})
	}
	return files
}

func isChapterMediaType(mediaType string) bool {
	mt := strings.ToLower(mediaType)
	if i := strings.IndexByte(mt, ';'); i >= 0 {
		mt = strings.TrimSpace(mt[:i])
	}
	return mt == "application/xhtml+xml" || mt == "text/html"
}

func hasProperty(properties, name string) bool {
	for _, p := range strings.Fields(properties) {
		if p == name {
			return true
		}
	}
	return false
}
