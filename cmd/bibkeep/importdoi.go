package main

import (
	"context"
	"errors"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/bibkeep/bibkeep/internal/bib"
	"github.com/bibkeep/bibkeep/internal/config"
	"github.com/bibkeep/bibkeep/internal/crossref"
	"github.com/bibkeep/bibkeep/internal/events"
	"github.com/bibkeep/bibkeep/internal/fetch"
)

func init() {
	rootCmd.AddCommand(importCmd)
}

var importCmd = &cobra.Command{
	Use:   "import <file> <doi>",
	Short: "Import an entry by DOI",
	Long: `Fetch metadata for a DOI from Crossref and append it to the bibliography.

The new entry gets a canonical citation key, suffixed if it collides with an
existing one. With auto_fetch_pdf enabled, a PDF download is attempted right
away.`,
	Args: cobra.ExactArgs(2),
	RunE: runImport,
}

func runImport(cmd *cobra.Command, args []string) error {
	cfg := config.Load("")
	startUpdateCheck(cfg)

	file, doi := args[0], fetch.NormalizeDOI(args[1])
	c := loadCollection(file)

	if e := findByDOI(c, doi); e != nil {
		exitWithError(ExitDataError, "DOI already present as %q", e.Key)
	}

	email := unpaywallEmail(cfg)
	client := crossref.NewClient(email)
	entry, err := client.Work(context.Background(), doi)
	if err != nil {
		code := ExitError
		if errors.Is(err, crossref.ErrNotFound) {
			code = ExitDataError
		}
		exitWithError(code, "%v", err)
	}

	entry.Key = uniqueKey(c, entry.Key)
	c.Append(entry)
	bus.Publish(events.EntryAdded{Key: entry.Key})

	fetched := ""
	if cfg.AutoFetchPDF && cfg.PDFBaseDir != "" {
		f := fetch.New(fetch.Config{BaseDir: cfg.PDFBaseDir, Email: email}, bus)
		if out := f.Fetch(context.Background(), entry); out.Status == fetch.StatusSuccess {
			entry.Set("file", bib.FormatFileLink(out.Path, cfg.PDFBaseDir))
			fetched = out.Path
		}
	}

	saveCollection(c, file)

	if humanOutput {
		outputHuman("Added %s: %s\n", entry.Key, entry.Title())
		if fetched != "" {
			outputHuman("PDF stored at %s\n", fetched)
		}
		return nil
	}
	return outputJSON(map[string]interface{}{
		"key":   entry.Key,
		"title": entry.Title(),
		"doi":   doi,
		"pdf":   fetched,
	})
}

// findByDOI returns the entry holding doi, compared case-insensitively.
func findByDOI(c *bib.Collection, doi string) *bib.Entry {
	for _, e := range c.Entries() {
		if fetch.NormalizeDOI(e.DOI()) == doi {
			return e
		}
	}
	return nil
}

// uniqueKey suffixes key until it is free in the collection.
func uniqueKey(c *bib.Collection, key string) string {
	if key == "" {
		key = "unknown"
	}
	if !c.HasKey(key) {
		return key
	}
	for s := 'a'; s <= 'z'; s++ {
		if cand := key + string(s); !c.HasKey(cand) {
			return cand
		}
	}
	for n := 2; ; n++ {
		if cand := key + "z" + strconv.Itoa(n); !c.HasKey(cand) {
			return cand
		}
	}
}
