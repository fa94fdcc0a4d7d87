package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/bibkeep/bibkeep/internal/bib"
	"github.com/bibkeep/bibkeep/internal/citekey"
	"github.com/bibkeep/bibkeep/internal/config"
	"github.com/bibkeep/bibkeep/internal/events"
	"github.com/bibkeep/bibkeep/internal/fetch"
)

var unifyDryRun bool

func init() {
	unifyCmd.Flags().BoolVar(&unifyDryRun, "dry-run", false, "Show the renames without writing anything")
	rootCmd.AddCommand(unifyCmd)
}

var unifyCmd = &cobra.Command{
	Use:   "unify <file>",
	Short: "Normalize all citation keys",
	Long: `Rewrite every citation key to the canonical surname-year form.

Keys collide in file order; later entries get a letter suffix (smith2021,
smith2021a, ...). Entries without a year, or without both author and title,
keep their keys. Linked PDF files are renamed to match the new keys.`,
	Args: cobra.ExactArgs(1),
	RunE: runUnify,
}

func runUnify(cmd *cobra.Command, args []string) error {
	cfg := config.Load("")
	startUpdateCheck(cfg)

	c := loadCollection(args[0])

	// Unify mutates only in memory; a dry run simply skips the save.
	mapping := citekey.Unify(c)
	if unifyDryRun {
		return reportUnify(mapping, 0)
	}
	if len(mapping) > 0 {
		bus.Publish(events.CitekeysUnified{Mapping: mapping})
	}

	// Rename linked PDFs to follow their entries.
	renamed := 0
	for _, e := range c.Entries() {
		old, ok := oldKey(mapping, e.Key)
		if !ok {
			continue
		}
		path := bib.FindPDF(e.Get("file"), old, cfg.PDFBaseDir)
		if path == "" {
			continue
		}
		dest := filepath.Join(filepath.Dir(path), fetch.Filename(e.Key, e.Title()))
		if dest != path {
			if err := os.Rename(path, dest); err != nil {
				fmt.Fprintf(os.Stderr, "warning: renaming %s: %v\n", filepath.Base(path), err)
				dest = path
			} else {
				renamed++
			}
		}
		e.Set("file", bib.FormatFileLink(dest, cfg.PDFBaseDir))
	}

	if len(mapping) > 0 {
		saveCollection(c, args[0])
	}
	return reportUnify(mapping, renamed)
}

// oldKey finds the pre-unify key that was renamed to newKey.
func oldKey(mapping map[string]string, newKey string) (string, bool) {
	for old, now := range mapping {
		if now == newKey {
			return old, true
		}
	}
	return "", false
}

func reportUnify(mapping map[string]string, renamedPDFs int) error {
	if humanOutput {
		if len(mapping) == 0 {
			outputHuman("All keys already canonical.\n")
			return nil
		}
		for old, now := range mapping {
			outputHuman("%s -> %s\n", old, now)
		}
		outputHuman("%d keys changed, %d PDFs renamed\n", len(mapping), renamedPDFs)
		return nil
	}
	return outputJSON(map[string]interface{}{
		"changed":      len(mapping),
		"mapping":      mapping,
		"renamed_pdfs": renamedPDFs,
	})
}
