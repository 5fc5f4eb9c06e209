package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/simp-lee/bookimport"
	"github.com/simp-lee/bookimport/sqlitestore"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type rootArgs struct {
	db      string
	tempDir string
	verbose bool
}

var (
	rArgs  rootArgs
	logger = zap.NewNop()
)

var rootCmd = &cobra.Command{
	Use:           "bookimport",
	Short:         "Import EPUB and Word documents into a book database",
	Long:          "Import EPUB and Word documents as chapters of books stored in a SQLite database",
	SilenceUsage:  true,
	SilenceErrors: false,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		l, err := newLogger(rArgs.verbose)
		if err != nil {
			return fmt.Errorf("failed to create logger: %w", err)
		}
		logger = l
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = logger.Sync()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&rArgs.db, "db", "books.db", "SQLite database file")
	rootCmd.PersistentFlags().StringVar(&rArgs.tempDir, "temp-dir", "", "directory for unpacked packages (default: system temp dir)")
	rootCmd.PersistentFlags().BoolVarP(&rArgs.verbose, "verbose", "v", false, "log progress and debug details")
}

// newLogger logs warnings and errors to stderr, or everything when verbose.
func newLogger(verbose bool) (*zap.Logger, error) {
	if verbose {
		return zap.NewDevelopment()
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(zapcore.WarnLevel)
	cfg.Encoding = "console"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	return cfg.Build()
}

// session opens the database and an importer writing into it. The returned
// function closes the database.
func session() (*sqlitestore.Store, *bookimport.Importer, func(), error) {
	store, err := sqlitestore.Open(rArgs.db)
	if err != nil {
		return nil, nil, nil, err
	}
	opts := []bookimport.Option{
		bookimport.WithLogger(logger),
		bookimport.WithTempDir(rArgs.tempDir),
	}
	if rArgs.verbose {
		opts = append(opts, bookimport.WithProgress(func(p bookimport.Progress) {
			logger.Debug("progress",
				zap.String("stage", p.Stage),
				zap.Int("done", p.Done),
				zap.Int("total", p.Total),
				zap.String("path", p.Path))
		}))
	}
	closeFn := func() {
		if err := store.Close(); err != nil {
			logger.Warn("closing database", zap.Error(err))
		}
	}
	return store, bookimport.NewImporter(store, opts...), closeFn, nil
}

// printSummary writes a short report of one import run.
func printSummary(w io.Writer, res *bookimport.Result) {
	s := res.Summary
	fmt.Fprintf(w, "book %d: %s %s, %s %s (%s)\n",
		res.BookID,
		humanize.Comma(int64(s.Chapters)), plural(s.Chapters, "chapter"),
		humanize.Comma(int64(s.CopiedFiles)), plural(s.CopiedFiles, "file"),
		humanize.Bytes(uint64(s.CopiedBytes)))
	if md := res.Metadata; md != nil {
		if names := md.AuthorNames(); len(names) > 0 {
			fmt.Fprintf(w, "  by %s\n", strings.Join(names, ", "))
		}
		if len(md.Language) > 0 {
			fmt.Fprintf(w, "  language: %s\n", strings.Join(md.Language, ", "))
		}
		for _, id := range md.Identifiers {
			fmt.Fprintf(w, "  identifier: %s\n", id)
		}
	}

	var skipped []string
	if s.SkippedResources > 0 {
		skipped = append(skipped, fmt.Sprintf("%d missing %s", s.SkippedResources, plural(s.SkippedResources, "resource")))
	}
	if s.SkippedStylesheets > 0 {
		skipped = append(skipped, fmt.Sprintf("%d unparseable %s", s.SkippedStylesheets, plural(s.SkippedStylesheets, "stylesheet")))
	}
	if s.UnmatchedAnchors > 0 {
		skipped = append(skipped, fmt.Sprintf("%d unmatched %s", s.UnmatchedAnchors, plural(s.UnmatchedAnchors, "link")))
	}
	if len(skipped) > 0 {
		fmt.Fprintf(w, "  skipped: %s\n", strings.Join(skipped, ", "))
	}
	for _, warn := range s.Warnings {
		fmt.Fprintf(w, "  warning: %s\n", warn)
	}
}

func plural(n int, word string) string {
	if n == 1 {
		return word
	}
	return word + "s"
}
