package bookimport

import (
	"sort"
	"strconv"
	"strings"
)

// extractMetadata converts the raw OPF metadata into Metadata.
func extractMetadata(opf *opfPackage) Metadata {
	om := &opf.Metadata
	refines := buildRefinesMap(om.Metas)

	md := Metadata{
		Titles:  extractTitles(om.Titles, refines),
		Authors: extractAuthors(om.Creators, refines),
	}
	for _, l := range om.Languages {
		if v := strings.TrimSpace(l.Value); v != "" {
			md.Language = append(md.Language, v)
		}
	}
	for _, id := range om.Identifiers {
		if v := strings.TrimSpace(id.Value); v != "" {
			md.Identifiers = append(md.Identifiers, v)
		}
	}
	return md
}

// Title returns the primary title, or "" when the package has none.
// AuthorNames returns the creator names in order, each followed by its
// role when the role is not plain authorship.
func (md Metadata) AuthorNames() []string {
	names := make([]string, 0, len(md.Authors))
	for _, a := range md.Authors {
		name := strings.TrimSpace(a.Name)
		if name == "" {
			continue
		}
		if a.Role != "" && a.Role != "aut" {
			name += " (" + a.Role + ")"
		}
		names = append(names, name)
	}
	return names
}

func (md Metadata) Title() string {
	if len(md.Titles) == 0 {
		return ""
	}
	return md.Titles[0]
}

// buildRefinesMap maps an element id (without "#") to the <meta> elements
// refining it.
func buildRefinesMap(metas []opfMeta) map[string][]opfMeta {
	m := make(map[string][]opfMeta)
	for _, meta := range metas {
		id, ok := strings.CutPrefix(strings.TrimSpace(meta.Refines), "#")
		if !ok || id == "" {
			continue
		}
		m[id] = append(m[id], meta)
	}
	return m
}

func findRefine(refines map[string][]opfMeta, id, property string) (string, bool) {
	for _, m := range refines[id] {
		if m.Property != property {
			continue
		}
		if v := strings.TrimSpace(m.Value); v != "" {
			return v, true
		}
	}
	return "", false
}

// extractTitles returns non-empty dc:title values, ordered by EPUB 3
// display-seq when any title carries one. Titles without a sequence keep
// their document order after the sequenced ones.
func extractTitles(titles []opfDCElement, refines map[string][]opfMeta) []string {
	type titleEntry struct {
		value string
		seq   int
	}
	var entries []titleEntry
	for _, t := range titles {
		v := strings.TrimSpace(t.Value)
		if v == "" {
			continue
		}
		e := titleEntry{value: v}
		if t.ID != "" {
			if s, ok := findRefine(refines, t.ID, "display-seq"); ok {
				if n, err := strconv.Atoi(s); err == nil && n > 0 {
					e.seq = n
				}
			}
		}
		entries = append(entries, e)
	}

	sort.SliceStable(entries, func(i, j int) bool {
		si, sj := entries[i].seq, entries[j].seq
		if si == 0 || sj == 0 {
			return si != 0 && sj == 0
		}
		return si < sj
	})

	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.value
	}
	return out
}

// extractAuthors reads dc:creator entries, taking file-as and role from the
// element attributes (EPUB 2) or from refining metas (EPUB 3).
func extractAuthors(creators []opfDCElement, refines map[string][]opfMeta) []Author {
	var authors []Author
	for _, c := range creators {
		name := strings.TrimSpace(c.Value)
		if name == "" {
			continue
		}
		a := Author{Name: name, FileAs: c.FileAs, Role: c.Role}
		if c.ID != "" {
			if a.FileAs == "" {
				a.FileAs, _ = findRefine(refines, c.ID, "file-as")
			}
			if a.Role == "" {
				a.Role, _ = findRefine(refines, c.ID, "role")
			}
		}
		authors = append(authors, a)
	}
	return authors
}
