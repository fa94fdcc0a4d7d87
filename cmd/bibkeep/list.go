package main

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/bibkeep/bibkeep/internal/config"
)

func init() {
	rootCmd.AddCommand(listCmd)
}

var listCmd = &cobra.Command{
	Use:   "list <file>",
	Short: "List bibliography entries",
	Long: `List the entries of a BibTeX file.

Shows key, type, title, authors, year and whether a PDF is linked.`,
	Args: cobra.ExactArgs(1),
	RunE: runList,
}

func runList(cmd *cobra.Command, args []string) error {
	cfg := config.Load("")
	startUpdateCheck(cfg)

	c := loadCollection(args[0])

	entries := c.Entries()
	summaries := make([]EntrySummary, 0, len(entries))
	for _, e := range entries {
		summaries = append(summaries, EntrySummary{
			Key:     e.Key,
			Type:    e.Type,
			Title:   e.Title(),
			Authors: strings.Join(e.Authors(), ", "),
			Year:    e.Year(),
			DOI:     e.DOI(),
			HasPDF:  e.FileLink() != "",
		})
	}

	if humanOutput {
		for _, s := range summaries {
			pdf := " "
			if s.HasPDF {
				pdf = "P"
			}
			outputHuman("[%s] %-24s %s\n", pdf, s.Key, truncateString(s.Title, ListTitleMaxLen))
			if s.Authors != "" || s.Year != "" {
				outputHuman("    %s (%s)\n", s.Authors, s.Year)
			}
		}
		outputHuman("%d entries\n", len(summaries))
		return nil
	}
	return outputJSON(map[string]interface{}{
		"count":   len(summaries),
		"entries": summaries,
	})
}
