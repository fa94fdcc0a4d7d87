package main

import (
	"github.com/spf13/cobra"

	"github.com/bibkeep/bibkeep/internal/config"
	"github.com/bibkeep/bibkeep/internal/fetch"
)

var scanDir string

func init() {
	scanCmd.Flags().StringVar(&scanDir, "dir", "", "Directory to scan (default: configured download_dir)")
	rootCmd.AddCommand(scanCmd)
}

var scanCmd = &cobra.Command{
	Use:   "scan <file>",
	Short: "Link downloaded PDFs to entries",
	Long: `Scan the download directory for PDFs belonging to bibliography entries.

Each PDF's first pages are searched for a DOI; a match against an entry that
has no linked file moves the PDF into the PDF directory and records the link.`,
	Args: cobra.ExactArgs(1),
	RunE: runScan,
}

func runScan(cmd *cobra.Command, args []string) error {
	cfg := config.Load("")
	startUpdateCheck(cfg)

	dir := scanDir
	if dir == "" {
		dir = cfg.DownloadDir
	}
	if dir == "" {
		exitWithError(ExitConfigError, "download_dir is not configured")
	}
	if cfg.PDFBaseDir == "" {
		exitWithError(ExitConfigError, "pdf_base_dir is not configured")
	}

	c := loadCollection(args[0])
	f := fetch.New(fetch.Config{BaseDir: cfg.PDFBaseDir}, bus)

	linked, err := f.ScanDownloads(c, dir)
	if err != nil {
		exitWithError(ExitError, "%v", err)
	}
	if c.Dirty {
		saveCollection(c, args[0])
	}

	if humanOutput {
		for _, l := range linked {
			outputHuman("%-24s <- %s\n", l.Key, l.Path)
		}
		outputHuman("%d PDFs linked\n", len(linked))
		return nil
	}
	return outputJSON(map[string]interface{}{
		"count":  len(linked),
		"linked": linked,
	})
}
