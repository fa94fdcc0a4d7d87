// Package main provides the bibkeep CLI entry point.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/bibkeep/bibkeep/internal/bib"
	"github.com/bibkeep/bibkeep/internal/config"
	"github.com/bibkeep/bibkeep/internal/events"
	"github.com/bibkeep/bibkeep/internal/update"
)

// Version is set at build time via ldflags
var Version = "dev"

// humanOutput controls whether to use human-readable output
var humanOutput bool

// bus carries domain events raised during a command run; commands drain it
// before exiting.
var bus = events.NewBus(64)

func main() {
	// Optional .env for local overrides (UNPAYWALL_EMAIL and friends).
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		// Print the error since we have SilenceErrors: true
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(ExitError)
	}
}

var rootCmd = &cobra.Command{
	Use:   "bibkeep",
	Short: "BibTeX bibliography keeper",
	Long: `bibkeep maintains BibTeX bibliographies.

Core features:
  - Round-trip safe parsing: comments, unknown fields and entry order survive
  - Citation key normalization (surname + year, collision suffixes)
  - Open-access PDF acquisition (arXiv, Unpaywall, direct URLs)
  - DOI import via Crossref
  - Download folder scanning to link already-fetched PDFs

All commands output JSON by default; pass --human for readable text.`,
	Args:          cobra.MaximumNArgs(1),
	RunE:          runRoot,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// runRoot opens a bibliography and prints a summary of its state.
func runRoot(cmd *cobra.Command, args []string) error {
	if len(args) == 0 {
		return cmd.Help()
	}
	cfg := config.Load("")
	startUpdateCheck(cfg)

	c := loadCollection(args[0])
	entries := c.Entries()
	withPDF := 0
	for _, e := range entries {
		if e.FileLink() != "" {
			withPDF++
		}
	}

	if humanOutput {
		outputHuman("%s: %d entries, %d with PDFs, %d duplicate keys, %d parse warnings\n",
			args[0], len(entries), withPDF, len(c.Duplicates), len(c.Diagnostics))
		return nil
	}
	return outputJSON(map[string]interface{}{
		"path":       args[0],
		"entries":    len(entries),
		"with_pdf":   withPDF,
		"duplicates": c.Duplicates,
		"warnings":   len(c.Diagnostics),
	})
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&humanOutput, "human", false, "Use human-readable output instead of JSON")
	rootCmd.Version = Version
}

// loadCollection loads and parses a bibliography, exiting on read failure.
// Parse diagnostics are warnings, not errors.
func loadCollection(path string) *bib.Collection {
	c, err := bib.Load(path)
	if err != nil {
		exitWithError(ExitDataError, "%v", err)
	}
	for _, d := range c.Diagnostics {
		fmt.Fprintf(os.Stderr, "warning: %s:%d: %s\n", path, d.Line, d.Message)
	}
	for _, key := range c.Duplicates {
		fmt.Fprintf(os.Stderr, "warning: %s: duplicate key %q\n", path, key)
	}
	return c
}

// unpaywallEmail returns the Unpaywall contact email, preferring the
// UNPAYWALL_EMAIL environment override over the configured value.
func unpaywallEmail(cfg *config.Config) string {
	if env := os.Getenv("UNPAYWALL_EMAIL"); env != "" {
		return env
	}
	return cfg.UnpaywallEmail
}

// saveCollection persists a collection, exiting on failure.
func saveCollection(c *bib.Collection, path string) {
	if err := bib.Save(c, path); err != nil {
		exitWithError(ExitError, "%v", err)
	}
}

// startUpdateCheck launches the background version check if enabled and
// prints a notice from the previously persisted state. The goroutine is not
// awaited; a result found now is reported on the next run.
func startUpdateCheck(cfg *config.Config) {
	if !cfg.CheckForUpdates {
		return
	}
	if v := cfg.Updates.LatestVersion; v != "" && update.Newer(v, Version) {
		fmt.Fprintf(os.Stderr, "A newer version is available: %s (running %s)\n", v, Version)
	}
	// The checker goroutine persists through its own config copy so it never
	// races with the command's reads.
	cfgCopy := *cfg
	checker := update.New(Version, &configStore{cfg: &cfgCopy}, bus)
	checker.Start(context.Background())
}
