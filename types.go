package bookimport

import (
	"time"

	"golang.org/x/net/html"
)

// Metadata holds the Dublin Core metadata used when a package is imported
// as a new book.
type Metadata struct {
	// Titles contains all dc:title values. The first entry is the primary title.
	Titles []string

	// Authors contains all dc:creator entries with their roles and file-as values.
	Authors []Author

	// Language contains all dc:language values (BCP 47 tags, e.g., "en", "zh-CN").
	Language []string

	// Identifiers contains all dc:identifier values (ISBN, UUID, URI, etc.).
	Identifiers []string
}

// Author represents a dc:creator entry with optional file-as and role attributes.
type Author struct {
	Name   string
	FileAs string
	Role   string
}

// ManifestEntry is one <item> of the package manifest.
type ManifestEntry struct {
	ID         string
	Href       string
	MediaType  string
	Properties string

	// Path is Href resolved against the package document directory.
	Path string
}

// SpineItem is one <itemref> of the spine.
type SpineItem struct {
	IDRef  string
	Linear bool
}

// Manifest is the parsed package document.
type Manifest struct {
	// Path is the rooted path of the package document itself.
	Path string

	// BaseDir is the directory of the package document, ending in "/".
	BaseDir string

	// Version is the package version attribute, "2.0" when absent.
	Version string

	// Entries maps manifest ids to entries; Order keeps document order.
	Entries map[string]ManifestEntry
	Order   []ManifestEntry

	// Spine lists the reading order.
	Spine []SpineItem

	// TOC is the spine's toc attribute: the manifest id of the NCX file.
	TOC string

	Metadata Metadata

	// Warnings lists items that were skipped while building the manifest.
	Warnings []string
}

// ChapterFile is one HTML document to be imported, in reading order.
type ChapterFile struct {
	// Path is the rooted package path of the document; it is the key used
	// to match cross-document links back to chapters.
	Path string

	// ID is the manifest id, empty for documents not listed in a manifest.
	ID string

	// NonLinear marks documents the spine lists with linear="no". Their
	// chapters are stored hidden.
	NonLinear bool
}

// NavMap maps a rooted document path to the title the navigation document
// (or NCX) gives it. Paths never carry a fragment.
type NavMap map[string]string

// ChapterFragment is one piece of a source document produced by
// SplitChapters.
type ChapterFragment struct {
	// SourcePath is the document the fragment was cut from.
	SourcePath string

	// Title is the trimmed text of the heading that started the fragment;
	// empty for the leading fragment.
	Title string

	// Subchapter is false only for the leading fragment of a document.
	Subchapter bool

	// Body is a body-equivalent container whose children are the
	// fragment's content.
	Body *html.Node

	// Ordinal is the fragment's position within its document, starting at 0.
	Ordinal int
}

// StoredChapter is a chapter as handed to and returned by a Store.
type StoredChapter struct {
	ID           int64
	BookID       int64
	PageNum      int
	Title        string
	Content      string
	Subchapter   bool
	Hidden       bool
	SourcePath   string
	TimeCreated  time.Time
	TimeModified time.Time
}

// Summary counts what an import run did and what it had to skip.
type Summary struct {
	Chapters           int
	CopiedFiles        int
	CopiedBytes        int64
	SkippedResources   int
	SkippedStylesheets int
	UnmatchedAnchors   int
	RewrittenAnchors   int

	// Warnings carries non-fatal problems in the order they were noticed.
	Warnings []string
}

// Result is the outcome of importing into one book.
type Result struct {
	BookID   int64
	Chapters []StoredChapter
	Summary  Summary

	// Metadata is set when the import created the book from a package.
	Metadata *Metadata
}
