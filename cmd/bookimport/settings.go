package main

import (
	"github.com/simp-lee/bookimport"
	"github.com/spf13/cobra"
)

// settingsArgs mirrors bookimport.Settings as command line flags.
type settingsArgs struct {
	styles            bool
	preventSmallFonts bool
	ignoreFontFamily  bool
	splitTag          string
	splitClasses      string
	header            string
	footer            string
}

func addSettingsFlags(cmd *cobra.Command, a *settingsArgs) {
	f := cmd.Flags()
	f.BoolVar(&a.styles, "styles", true, "keep document styles, scoped to the chapter")
	f.BoolVar(&a.preventSmallFonts, "prevent-small-fonts", false, "raise font sizes below 1em/100%")
	f.BoolVar(&a.ignoreFontFamily, "ignore-font-family", false, "replace font-family declarations with inherit")
	f.StringVar(&a.splitTag, "split-tag", bookimport.SplitNone, "start a new chapter at this element (h1-h6, section, div, p or none)")
	f.StringVar(&a.splitClasses, "split-classes", "", "only split at elements with one of these space-separated classes")
	f.StringVar(&a.header, "header", "", "HTML inserted before every chapter body")
	f.StringVar(&a.footer, "footer", "", "HTML inserted after every chapter body")
}

func (a settingsArgs) settings() bookimport.Settings {
	return bookimport.Settings{
		EnableStyles:      a.styles,
		PreventSmallFonts: a.preventSmallFonts,
		IgnoreFontFamily:  a.ignoreFontFamily,
		SplitTag:          a.splitTag,
		SplitClasses:      bookimport.ParseSplitClasses(a.splitClasses),
		Header:            a.header,
		Footer:            a.footer,
	}
}
