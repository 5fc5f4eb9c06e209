package bookimport

import (
	"fmt"
	"strings"
)

// SplitNone disables splitting: every document becomes one chapter.
const SplitNone = "none"

// splitTags lists the element names a document may be split at.
var splitTags = map[string]bool{
	"": true, SplitNone: true,
	"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
	"section": true, "div": true, "p": true,
}

// Settings controls one import run. The zero value imports every document
// as a single chapter with styles disabled.
type Settings struct {
	// EnableStyles keeps the documents' stylesheets, scoped to the chapter
	// container. When false, <style> and stylesheet links are dropped.
	EnableStyles bool

	// PreventSmallFonts raises em/rem font sizes below 1 and percentage
	// sizes below 100% to those minimums.
	PreventSmallFonts bool

	// IgnoreFontFamily replaces every font-family declaration with inherit.
	IgnoreFontFamily bool

	// SplitTag is the element that starts a new subchapter: one of h1..h6,
	// section, div, p, or "none".
	SplitTag string

	// SplitClasses, when non-empty, restricts splitting to SplitTag
	// elements that carry at least one of these classes.
	SplitClasses []string

	// Header and Footer are HTML snippets placed around every chapter body.
	Header string
	Footer string
}

// DefaultSettings returns the settings an import form starts with: styles
// kept, no splitting.
func DefaultSettings() Settings {
	return Settings{EnableStyles: true, SplitTag: SplitNone}
}

// Validate reports settings that cannot be honoured.
func (s Settings) Validate() error {
	tag := strings.ToLower(strings.TrimSpace(s.SplitTag))
	if !splitTags[tag] {
		return fmt.Errorf("%w: unsupported split tag %q", ErrInvalidSettings, s.SplitTag)
	}
	return nil
}

func (s Settings) cssOptions() CSSOptions {
	return CSSOptions{
		PreventSmallFonts: s.PreventSmallFonts,
		IgnoreFontFamily:  s.IgnoreFontFamily,
	}
}

// ParseSplitClasses splits a whitespace-separated class list as typed into
// a form field.
func ParseSplitClasses(s string) []string {
	return strings.Fields(s)
}
