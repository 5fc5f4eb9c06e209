// Package bookimport imports EPUB packages and Word documents into a book
// held by a host [Store], one chapter at a time.
//
// An import run reads the package manifest, walks the spine in reading
// order and turns every HTML document into one or more chapters. Resources
// the chapters embed (images, media, stylesheets) are copied into each
// chapter's own file area and referenced through [PlaceholderToken]. Links
// between the imported documents are rewritten to chapter URLs once every
// chapter of the run is stored. DRM-protected packages are rejected with
// [ErrDRMProtected].
//
// # Importing
//
// Create an [Importer] over a Store and call one of its entry points:
//
//	im := bookimport.NewImporter(store, bookimport.WithLogger(logger))
//	res, err := im.ImportEPUB(ctx, bookID, f, size, bookimport.DefaultSettings())
//
// [Importer.ImportEPUBAsBook] creates the book from the package title first;
// [Importer.ImportEPUBAsBooks] creates one book per document; and
// [Importer.ImportWord] converts a .docx file before importing it. The
// returned [Result] lists the stored chapters and a [Summary] of what was
// copied and what had to be skipped.
//
// # Splitting
//
// [Settings.SplitTag] names the element (h1 to h6, section, div or p) that
// starts a subchapter; [Settings.SplitClasses] narrows it to elements with
// one of the given classes. Content before the first match stays in the
// document's leading chapter.
//
// # Styles
//
// Stylesheets are rewritten by [ScopeCSS] so they only apply inside the
// chapter container, a div with class [DefaultContainerClass]. Rules for
// body and html apply to the container itself. A stylesheet that cannot be
// parsed is dropped and counted in [Summary.SkippedStylesheets].
//
// # Errors
//
// Problems with the package itself fail the run before anything is
// written: [ErrNotAnArchive], [ErrMissingContainer], [ErrMalformedXML],
// [ErrDRMProtected] and [ErrNoChapters]. A store failure during the run
// yields [ErrStorageWrite]; chapters stored before it are kept.
package bookimport
