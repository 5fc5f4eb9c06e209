package bookimport

import (
	"net/url"
	"strings"
)

// ResolvePath resolves rel against the directory base and returns a rooted,
// normalized package path such as "/OEBPS/images/a.png".
//
// rel is URL-decoded first. A rel that already starts with "/" is taken as
// rooted at the package and base is ignored, so resolving an already
// resolved path returns it unchanged. ".." segments consume the preceding
// segment; ".." at the root is dropped, so the result never escapes the
// package.
func ResolvePath(base, rel string) string {
	if decoded, err := url.PathUnescape(rel); err == nil {
		rel = decoded
	}
	rel = strings.ReplaceAll(rel, "\\", "/")
	if strings.HasPrefix(rel, "/") {
		return CleanPath(rel)
	}
	return CleanPath(base + "/" + rel)
}

// CleanPath normalizes p into a rooted package path: duplicate slashes are
// collapsed, "." segments removed, ".." resolved and characters that are
// not allowed in stored file paths stripped.
func CleanPath(p string) string {
	p = sanitizePath(p)
	segs := strings.Split(p, "/")
	out := make([]string, 0, len(segs))
	for _, s := range segs {
		switch s {
		case "", ".":
		case "..":
			if len(out) > 0 {
				out = out[:len(out)-1]
			}
		default:
			out = append(out, s)
		}
	}
	return "/" + strings.Join(out, "/")
}

// SplitPath splits p into its directory and file name. The directory is
// either empty or ends with "/".
func SplitPath(p string) (dir, file string) {
	i := strings.LastIndexByte(p, '/')
	if i < 0 {
		return "", p
	}
	return p[:i+1], p[i+1:]
}

// splitFragment separates a reference into its path (query included) and
// the fragment after '#'.
func splitFragment(ref string) (p, fragment string) {
	if i := strings.IndexByte(ref, '#'); i >= 0 {
		return ref[:i], ref[i+1:]
	}
	return ref, ""
}

// stripQuery drops a "?query" suffix from a reference path.
func stripQuery(p string) string {
	if i := strings.IndexByte(p, '?'); i >= 0 {
		return p[:i]
	}
	return p
}

// sanitizePath removes control characters and characters that are illegal
// in stored file paths.
func sanitizePath(p string) string {
	return strings.Map(func(r rune) rune {
		if r < 0x20 || r == 0x7f {
			return -1
		}
		switch r {
		case ':', '*', '?', '"', '<', '>', '|':
			return -1
		}
		return r
	}, p)
}

// isRelativeRef reports whether ref points into the package: it has no URI
// scheme, is not protocol-relative, not a bare fragment and not empty.
func isRelativeRef(ref string) bool {
	ref = strings.TrimSpace(ref)
	if ref == "" || strings.HasPrefix(ref, "#") || strings.HasPrefix(ref, "//") {
		return false
	}
	if strings.HasPrefix(ref, PlaceholderToken) {
		return false
	}
	return !hasURIScheme(ref)
}

// hasURIScheme reports whether s starts with a URI scheme like "mailto:" or
// "data:".
func hasURIScheme(s string) bool {
	s = strings.TrimSpace(s)
	if s == "" {
		return false
	}
	// RFC 3986: URI scheme must start with a letter.
	if !((s[0] >= 'A' && s[0] <= 'Z') || (s[0] >= 'a' && s[0] <= 'z')) {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c == ':' {
			return i > 1
		}
		if !(c == '+' || c == '-' || c == '.' || (c >= '0' && c <= '9') || (c >= 'A' && c <= 'Z') || (c >= 'a' && c <= 'z')) {
			return false
		}
	}
	return false
}
