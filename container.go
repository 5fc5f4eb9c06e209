package bookimport

import (
	"encoding/xml"
	"fmt"
	"strings"
)

// containerXML models the META-INF/container.xml file used to locate the OPF.
type containerXML struct {
	XMLName   xml.Name   `xml:"container"`
	RootFiles []rootFile `xml:"rootfiles>rootfile"`
}

// rootFile represents a single <rootfile> element inside container.xml.
type rootFile struct {
	FullPath  string `xml:"full-path,attr"`
	MediaType string `xml:"media-type,attr"`
}

// containerPath is the well-known location of container.xml in an EPUB archive.
const containerPath = "META-INF/container.xml"

// LocateManifest finds the package document through META-INF/container.xml,
// parses it and returns the manifest and spine.
//
// When container.xml is missing or names no rootfile, the first ".opf" entry
// is used instead. If neither exists, ErrMissingContainer is returned. A
// container or package document that cannot be parsed yields ErrMalformedXML.
func (p *Package) LocateManifest() (*Manifest, error) {
	opfPath, err := p.packageDocumentPath()
	if err != nil {
		return nil, err
	}

	data, err := p.ReadFile(opfPath)
	if err != nil {
		return nil, fmt.Errorf("bookimport: package document %s: %w", opfPath, ErrMissingContainer)
	}

	pkg, err := parseOPF(data)
	if err != nil {
		return nil, err
	}
	return buildManifest(pkg, CleanPath(opfPath)), nil
}

// packageDocumentPath returns the path of the OPF named by container.xml,
// falling back to a scan for any ".opf" entry.
func (p *Package) packageDocumentPath() (string, error) {
	if f := p.findFile(containerPath); f != nil {
		data, err := readZipFile(f)
		if err != nil {
			return "", fmt.Errorf("bookimport: read container.xml: %w", err)
		}
		fullPath, err := parseContainerXML(data)
		if err != nil {
			return "", err
		}
		if fullPath != "" {
			return fullPath, nil
		}
		p.warnings = append(p.warnings, "container.xml names no rootfile; scanning for a package document")
	}
	return p.fallbackFindOPF()
}

// parseContainerXML decodes container.xml and returns the full-path of the
// preferred rootfile: the first with the OPF media type, else the first
// non-empty one. An empty result means no usable rootfile was listed.
func parseContainerXML(data []byte) (string, error) {
	data = stripBOM(data)

	var c containerXML
	if err := xml.Unmarshal(data, &c); err != nil {
		return "", fmt.Errorf("bookimport: parse container.xml: %v: %w", err, ErrMalformedXML)
	}

	var fallbackPath string
	for _, rf := range c.RootFiles {
		fullPath := strings.TrimSpace(rf.FullPath)
		if fullPath == "" {
			continue
		}
		if strings.EqualFold(strings.TrimSpace(rf.MediaType), "application/oebps-package+xml") {
			return fullPath, nil
		}
		if fallbackPath == "" {
			fallbackPath = fullPath
		}
	}
	return fallbackPath, nil
}

// fallbackFindOPF returns the first entry ending in ".opf" (case-insensitive).
func (p *Package) fallbackFindOPF() (string, error) {
	for _, e := range p.entries {
		if strings.HasSuffix(strings.ToLower(e.Path), ".opf") {
			return e.Path, nil
		}
	}
	return "", ErrMissingContainer
}
