package bookimport

import (
	"testing"

	"golang.org/x/net/html"
)

func splitString(t *testing.T, body, tag string, classes []string) []ChapterFragment {
	t.Helper()
	doc, err := parseDocument([]byte("<html><head></head><body>" + body + "</body></html>"))
	if err != nil {
		t.Fatalf("parseDocument() error: %v", err)
	}
	return SplitChapters(doc, "/OEBPS/ch.xhtml", tag, classes)
}

func fragmentHTML(t *testing.T, f ChapterFragment) string {
	t.Helper()
	s, err := renderChildren(f.Body)
	if err != nil {
		t.Fatalf("renderChildren() error: %v", err)
	}
	return s
}

func TestSplitChapters(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		tag     string
		classes []string
		want    []string
		titles  []string
	}{
		{
			name:   "no split",
			body:   "<h2>A</h2><p>a</p>",
			tag:    SplitNone,
			want:   []string{"<h2>A</h2><p>a</p>"},
			titles: []string{""},
		},
		{
			name:   "empty tag",
			body:   "<p>a</p>",
			tag:    "",
			want:   []string{"<p>a</p>"},
			titles: []string{""},
		},
		{
			name:   "headings",
			body:   "<p>intro</p><h2>A</h2><p>a</p><h2>B <em>b</em></h2><p>b</p>",
			tag:    "h2",
			want:   []string{"<p>intro</p>", "<h2>A</h2><p>a</p>", "<h2>B <em>b</em></h2><p>b</p>"},
			titles: []string{"", "A", "B b"},
		},
		{
			name:   "tag is case insensitive",
			body:   "<p>intro</p><h2>A</h2>",
			tag:    " H2 ",
			want:   []string{"<p>intro</p>", "<h2>A</h2>"},
			titles: []string{"", "A"},
		},
		{
			name:   "leading fragment empty",
			body:   "<h2>A</h2><p>a</p>",
			tag:    "h2",
			want:   []string{"", "<h2>A</h2><p>a</p>"},
			titles: []string{"", "A"},
		},
		{
			name:   "no match",
			body:   "<p>a</p>",
			tag:    "h1",
			want:   []string{"<p>a</p>"},
			titles: []string{""},
		},
		{
			name:    "classes restrict matches",
			body:    `<p>x</p><h2 class="chapter">A</h2><p>a</p><h2>aside</h2><h2 class="part other">B</h2>`,
			tag:     "h2",
			classes: []string{"chapter", "part"},
			want: []string{
				"<p>x</p>",
				`<h2 class="chapter">A</h2><p>a</p><h2>aside</h2>`,
				`<h2 class="part other">B</h2>`,
			},
			titles: []string{"", "A", "B"},
		},
		{
			name: "wrapper keeps id on copy",
			body: `<div id="wrap" class="c"><h2>A</h2><p>a</p></div>`,
			tag:  "h2",
			want: []string{
				"",
				`<div class="c" id="wrap"><h2>A</h2><p>a</p></div>`,
			},
			titles: []string{"", "A"},
		},
		{
			name: "wrapper with content stays",
			body: `<div id="wrap"><p>intro</p><h2>A</h2><p>a</p></div>`,
			tag:  "h2",
			want: []string{
				`<div id="wrap"><p>intro</p></div>`,
				`<div><h2>A</h2><p>a</p></div>`,
			},
			titles: []string{"", "A"},
		},
		{
			name: "nested matches in document order",
			body: "<section><h2>A</h2><section><h2>B</h2></section></section>",
			tag:  "section",
			want: []string{
				"",
				"<section><h2>A</h2></section>",
				"<section><section><h2>B</h2></section></section>",
			},
			titles: []string{"", "AB", "B"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			frags := splitString(t, tt.body, tt.tag, tt.classes)
			if len(frags) != len(tt.want) {
				t.Fatalf("got %d fragments, want %d", len(frags), len(tt.want))
			}
			for i, f := range frags {
				if got := fragmentHTML(t, f); got != tt.want[i] {
					t.Errorf("fragment %d = %q, want %q", i, got, tt.want[i])
				}
				if f.Title != tt.titles[i] {
					t.Errorf("fragment %d title = %q, want %q", i, f.Title, tt.titles[i])
				}
				if f.Ordinal != i {
					t.Errorf("fragment %d Ordinal = %d", i, f.Ordinal)
				}
				if f.Subchapter != (i > 0) {
					t.Errorf("fragment %d Subchapter = %v", i, f.Subchapter)
				}
				if f.SourcePath != "/OEBPS/ch.xhtml" {
					t.Errorf("fragment %d SourcePath = %q", i, f.SourcePath)
				}
			}
		})
	}
}

func TestSplitChapters_NoBody(t *testing.T) {
	doc := &html.Node{Type: html.DocumentNode}
	if frags := SplitChapters(doc, "/a.xhtml", "h1", nil); frags != nil {
		t.Errorf("SplitChapters() = %v, want nil", frags)
	}
}

func TestSplitChapters_LeadingIsBody(t *testing.T) {
	doc, err := parseDocument([]byte("<body><p>a</p><h1>B</h1></body>"))
	if err != nil {
		t.Fatal(err)
	}
	frags := SplitChapters(doc, "/a.xhtml", "h1", nil)
	if len(frags) != 2 {
		t.Fatalf("got %d fragments, want 2", len(frags))
	}
	if frags[0].Body.Parent == nil || frags[0].Body.Data != "body" {
		t.Error("leading fragment is not the document body")
	}
	if frags[1].Body.Parent != nil {
		t.Error("later fragment is attached to the document")
	}
}
