package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/bibkeep/bibkeep/internal/config"
)

func init() {
	rootCmd.AddCommand(configCmd)
}

var configCmd = &cobra.Command{
	Use:   "config [key] [value]",
	Short: "Get or set configuration values",
	Long: `Get or set configuration values.

Usage:
  bibkeep config                                 # Show all config
  bibkeep config pdf-base-dir                    # Get specific value
  bibkeep config pdf-base-dir ~/papers           # Set value

Keys:
  pdf-base-dir       Directory where fetched PDFs are stored
  download-dir       Directory scanned for manually downloaded PDFs
  unpaywall-email    Contact email for the Unpaywall API
  auto-fetch-pdf     Fetch a PDF right after a DOI import (true/false)
  check-for-updates  Background update checks (true/false)`,
	Args: cobra.MaximumNArgs(2),
	RunE: runConfig,
}

// ConfigResponse is the response for config get commands.
type ConfigResponse struct {
	PDFBaseDir      string `json:"pdf_base_dir,omitempty"`
	DownloadDir     string `json:"download_dir,omitempty"`
	UnpaywallEmail  string `json:"unpaywall_email,omitempty"`
	AutoFetchPDF    bool   `json:"auto_fetch_pdf"`
	CheckForUpdates bool   `json:"check_for_updates"`
}

func runConfig(cmd *cobra.Command, args []string) error {
	cfg := config.Load("")

	// No args: show all config
	if len(args) == 0 {
		if humanOutput {
			fmt.Printf("pdf-base-dir:      %s\n", cfg.PDFBaseDir)
			fmt.Printf("download-dir:      %s\n", cfg.DownloadDir)
			fmt.Printf("unpaywall-email:   %s\n", cfg.UnpaywallEmail)
			fmt.Printf("auto-fetch-pdf:    %t\n", cfg.AutoFetchPDF)
			fmt.Printf("check-for-updates: %t\n", cfg.CheckForUpdates)
		} else {
			outputJSON(ConfigResponse{
				PDFBaseDir:      cfg.PDFBaseDir,
				DownloadDir:     cfg.DownloadDir,
				UnpaywallEmail:  cfg.UnpaywallEmail,
				AutoFetchPDF:    cfg.AutoFetchPDF,
				CheckForUpdates: cfg.CheckForUpdates,
			})
		}
		return nil
	}

	key := args[0]

	// One arg: get specific value
	if len(args) == 1 {
		var value string
		switch key {
		case "pdf-base-dir":
			value = cfg.PDFBaseDir
		case "download-dir":
			value = cfg.DownloadDir
		case "unpaywall-email":
			value = cfg.UnpaywallEmail
		case "auto-fetch-pdf":
			value = strconv.FormatBool(cfg.AutoFetchPDF)
		case "check-for-updates":
			value = strconv.FormatBool(cfg.CheckForUpdates)
		default:
			exitWithError(ExitError, "unknown configuration key: %s", key)
		}
		if humanOutput {
			fmt.Println(value)
		} else {
			outputJSON(map[string]string{key: value})
		}
		return nil
	}

	// Two args: set value
	value := args[1]
	switch key {
	case "pdf-base-dir":
		cfg.PDFBaseDir = config.ExpandTilde(value)
	case "download-dir":
		cfg.DownloadDir = config.ExpandTilde(value)
	case "unpaywall-email":
		cfg.UnpaywallEmail = value
	case "auto-fetch-pdf":
		b, err := strconv.ParseBool(value)
		if err != nil {
			exitWithError(ExitError, "auto-fetch-pdf wants true or false, got %q", value)
		}
		cfg.AutoFetchPDF = b
	case "check-for-updates":
		b, err := strconv.ParseBool(value)
		if err != nil {
			exitWithError(ExitError, "check-for-updates wants true or false, got %q", value)
		}
		cfg.CheckForUpdates = b
	default:
		exitWithError(ExitError, "unknown configuration key: %s", key)
	}

	if err := cfg.Save(""); err != nil {
		exitWithError(ExitConfigError, "%v", err)
	}

	if humanOutput {
		fmt.Printf("Set %s = %s\n", key, value)
		return nil
	}
	return outputJSON(map[string]string{"status": "updated", "key": key, "value": value})
}
