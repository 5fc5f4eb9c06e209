package bookimport

import "errors"

// Sentinel errors returned by the bookimport package.
var (
	// ErrNotAnArchive indicates the input could not be opened as a ZIP archive.
	ErrNotAnArchive = errors.New("bookimport: input is not a zip archive")

	// ErrMissingContainer indicates neither META-INF/container.xml nor any
	// .opf package document was found in the archive.
	ErrMissingContainer = errors.New("bookimport: no container or package document found")

	// ErrMalformedXML indicates the container or package document could not
	// be parsed.
	ErrMalformedXML = errors.New("bookimport: malformed package XML")

	// ErrDRMProtected indicates the archive is protected by DRM
	// (e.g., Adobe ADEPT, Apple FairPlay, Readium LCP) and cannot be imported.
	ErrDRMProtected = errors.New("bookimport: file is DRM protected")

	// ErrNoChapters indicates the spine lists no importable HTML documents.
	ErrNoChapters = errors.New("bookimport: no chapter files found")

	// ErrFileNotFound indicates the requested file does not exist
	// in the package.
	ErrFileNotFound = errors.New("bookimport: file not found in package")

	// ErrCSSParse indicates a stylesheet could not be parsed. The stylesheet
	// is skipped; the import continues.
	ErrCSSParse = errors.New("bookimport: stylesheet could not be parsed")

	// ErrStorageWrite indicates the host store rejected a write. The run
	// stops; chapters already stored are kept.
	ErrStorageWrite = errors.New("bookimport: storage write failed")

	// ErrInvalidSettings indicates an import was requested with settings
	// that cannot be honoured (for example, an unknown split tag).
	ErrInvalidSettings = errors.New("bookimport: invalid settings")
)
