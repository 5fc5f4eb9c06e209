package main

import (
	"fmt"
	"os"

	"github.com/simp-lee/bookimport"
	"github.com/spf13/cobra"
)

type epubArgs struct {
	bookID          int64
	newBook         bool
	chaptersAsBooks bool
	settings        settingsArgs
}

var eArgs epubArgs

var epubCmd = &cobra.Command{
	Use:   "epub <file>",
	Short: "Import an EPUB file",
	Long:  "Import an EPUB file into an existing book, a new book, or one new book per document",
	Args:  cobra.ExactArgs(1),
	RunE:  runEPUB,
}

func init() {
	epubCmd.Flags().Int64VarP(&eArgs.bookID, "book", "b", 0, "id of the book to append chapters to")
	epubCmd.Flags().BoolVar(&eArgs.newBook, "new-book", false, "create a new book titled after the EPUB")
	epubCmd.Flags().BoolVar(&eArgs.chaptersAsBooks, "chapters-as-books", false, "create one book per document of the EPUB")
	epubCmd.MarkFlagsMutuallyExclusive("book", "new-book", "chapters-as-books")
	addSettingsFlags(epubCmd, &eArgs.settings)
	rootCmd.AddCommand(epubCmd)
}

func runEPUB(cmd *cobra.Command, args []string) error {
	if eArgs.bookID == 0 && !eArgs.newBook && !eArgs.chaptersAsBooks {
		return fmt.Errorf("one of --book, --new-book or --chapters-as-books is required")
	}

	f, err := os.Open(args[0])
	if err != nil {
		return err
	}
	defer f.Close()
	fi, err := f.Stat()
	if err != nil {
		return err
	}

	_, im, closeStore, err := session()
	if err != nil {
		return err
	}
	defer closeStore()

	ctx := cmd.Context()
	s := eArgs.settings.settings()
	switch {
	case eArgs.chaptersAsBooks:
		results, err := im.ImportEPUBAsBooks(ctx, f, fi.Size(), s)
		for _, res := range results {
			printSummary(cmd.OutOrStdout(), res)
		}
		if err != nil {
			return fmt.Errorf("failed to import %s: %w", args[0], err)
		}
		return nil
	case eArgs.newBook:
		return report(cmd, args[0])(im.ImportEPUBAsBook(ctx, f, fi.Size(), s))
	default:
		return report(cmd, args[0])(im.ImportEPUB(ctx, eArgs.bookID, f, fi.Size(), s))
	}
}

// report prints the summary of a run, including a failed one that stored
// chapters before stopping.
func report(cmd *cobra.Command, name string) func(*bookimport.Result, error) error {
	return func(res *bookimport.Result, err error) error {
		if res != nil {
			printSummary(cmd.OutOrStdout(), res)
		}
		if err != nil {
			return fmt.Errorf("failed to import %s: %w", name, err)
		}
		return nil
	}
}
