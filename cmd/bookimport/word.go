package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
)

type wordArgs struct {
	bookID   int64
	settings settingsArgs
}

var wArgs wordArgs

var wordCmd = &cobra.Command{
	Use:   "word <file>",
	Short: "Import a Word (.docx) document",
	Long:  "Convert a Word (.docx) document to HTML and import it; without --book a new book named after the file is created",
	Args:  cobra.ExactArgs(1),
	RunE:  runWord,
}

func init() {
	wordCmd.Flags().Int64VarP(&wArgs.bookID, "book", "b", 0, "id of the book to append chapters to")
	addSettingsFlags(wordCmd, &wArgs.settings)
	rootCmd.AddCommand(wordCmd)
}

func runWord(cmd *cobra.Command, args []string) error {
	f, err := os.Open(args[0])
	if err != nil {
		return err
	}
	defer f.Close()
	fi, err := f.Stat()
	if err != nil {
		return err
	}

	store, im, closeStore, err := session()
	if err != nil {
		return err
	}
	defer closeStore()

	ctx := cmd.Context()
	bookID := wArgs.bookID
	if bookID == 0 {
		name := filepath.Base(args[0])
		bookID, err = store.CreateBook(ctx, strings.TrimSuffix(name, filepath.Ext(name)))
		if err != nil {
			return fmt.Errorf("failed to create book: %w", err)
		}
	}
	return report(cmd, args[0])(im.ImportWord(ctx, bookID, f, fi.Size(), wArgs.settings.settings()))
}
