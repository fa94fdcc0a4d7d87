package main

import (
	"context"
	"sort"

	"github.com/spf13/cobra"

	"github.com/bibkeep/bibkeep/internal/bib"
	"github.com/bibkeep/bibkeep/internal/config"
	"github.com/bibkeep/bibkeep/internal/fetch"
)

var (
	fetchOverwrite bool
	fetchWorkers   int
)

func init() {
	fetchCmd.Flags().BoolVar(&fetchOverwrite, "overwrite", false, "Replace an existing PDF at the destination")
	fetchCmd.Flags().IntVar(&fetchWorkers, "workers", fetch.DefaultWorkers, "Concurrent downloads when fetching all missing PDFs")
	rootCmd.AddCommand(fetchCmd)
}

var fetchCmd = &cobra.Command{
	Use:   "fetch <file> [key]",
	Short: "Download open-access PDFs",
	Long: `Download a PDF for one entry, or for every entry without a linked file.

Sources are tried in order: arXiv, Unpaywall, then the entry's own url field.
Unpaywall requires a contact email (unpaywall_email in the config, or
UNPAYWALL_EMAIL). Downloads land next to the bibliography's other PDFs and
are written atomically; a failed download leaves nothing behind.`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runFetch,
}

// FetchResult is one per-entry outcome in fetch output.
type FetchResult struct {
	Key    string `json:"key"`
	Status string `json:"status"`
	Source string `json:"source,omitempty"`
	Path   string `json:"path,omitempty"`
	Reason string `json:"reason,omitempty"`
}

func runFetch(cmd *cobra.Command, args []string) error {
	cfg := config.Load("")
	startUpdateCheck(cfg)

	email := unpaywallEmail(cfg)
	if cfg.PDFBaseDir == "" {
		exitWithError(ExitConfigError, "pdf_base_dir is not configured")
	}

	c := loadCollection(args[0])
	f := fetch.New(fetch.Config{
		BaseDir:   cfg.PDFBaseDir,
		Email:     email,
		Workers:   fetchWorkers,
		Overwrite: fetchOverwrite,
	}, bus)

	ctx := context.Background()

	// Single entry.
	if len(args) == 2 {
		e := c.Lookup(args[1])
		if e == nil {
			exitWithError(ExitError, "no entry with key %q", args[1])
		}
		out := f.Fetch(ctx, e)
		if out.Status == fetch.StatusSuccess {
			e.Set("file", bib.FormatFileLink(out.Path, cfg.PDFBaseDir))
			c.Dirty = true
			saveCollection(c, args[0])
		}
		return reportFetch([]FetchResult{toResult(args[1], out)})
	}

	// All entries missing a PDF.
	outcomes := f.FetchMissing(ctx, c)
	if c.Dirty {
		saveCollection(c, args[0])
	}

	results := make([]FetchResult, 0, len(outcomes))
	for key, out := range outcomes {
		results = append(results, toResult(key, out))
	}
	sort.Slice(results, func(i, j int) bool { return results[i].Key < results[j].Key })
	return reportFetch(results)
}

func toResult(key string, out fetch.Outcome) FetchResult {
	return FetchResult{
		Key:    key,
		Status: string(out.Status),
		Source: string(out.Source),
		Path:   out.Path,
		Reason: out.Reason(),
	}
}

func reportFetch(results []FetchResult) error {
	if humanOutput {
		counts := map[string]int{}
		for _, r := range results {
			counts[r.Status]++
			switch r.Status {
			case string(fetch.StatusSuccess):
				outputHuman("%-24s ok (%s) %s\n", r.Key, r.Source, r.Path)
			case string(fetch.StatusSkipped):
				outputHuman("%-24s skipped: %s\n", r.Key, r.Reason)
			default:
				outputHuman("%-24s failed: %s\n", r.Key, r.Reason)
			}
		}
		outputHuman("%d fetched, %d skipped, %d failed\n",
			counts[string(fetch.StatusSuccess)],
			counts[string(fetch.StatusSkipped)],
			counts[string(fetch.StatusFailed)])
		return nil
	}
	return outputJSON(map[string]interface{}{
		"count":   len(results),
		"results": results,
	})
}
