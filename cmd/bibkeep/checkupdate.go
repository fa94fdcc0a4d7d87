package main

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"github.com/bibkeep/bibkeep/internal/config"
	"github.com/bibkeep/bibkeep/internal/events"
	"github.com/bibkeep/bibkeep/internal/update"
)

var checkUpdateForce bool

func init() {
	checkUpdateCmd.Flags().BoolVar(&checkUpdateForce, "force", false, "Check even if the last check was recent")
	rootCmd.AddCommand(checkUpdateCmd)
}

var checkUpdateCmd = &cobra.Command{
	Use:   "check-update",
	Short: "Check for a newer release",
	Args:  cobra.NoArgs,
	RunE:  runCheckUpdate,
}

func runCheckUpdate(cmd *cobra.Command, args []string) error {
	cfg := config.Load("")

	checker := update.New(Version, &configStore{cfg: cfg}, bus)
	if checkUpdateForce {
		checker.Interval = time.Nanosecond
	}
	if err := checker.RunOnce(context.Background()); err != nil {
		exitWithError(ExitError, "%v", err)
	}

	latest := ""
	for _, ev := range bus.Drain() {
		if ua, ok := ev.(events.UpdateAvailable); ok {
			latest = ua.Version
		}
	}

	if humanOutput {
		if latest != "" {
			outputHuman("Update available: %s (running %s)\n", latest, Version)
		} else {
			outputHuman("Up to date (running %s)\n", Version)
		}
		return nil
	}
	return outputJSON(map[string]interface{}{
		"current":          Version,
		"update_available": latest != "",
		"latest":           latest,
	})
}

// configStore persists the update checker's state inside the global config
// file.
type configStore struct {
	cfg *config.Config
}

func (s *configStore) Load() (update.State, error) {
	var st update.State
	st.LatestVersion = s.cfg.Updates.LatestVersion
	if t, err := time.Parse(time.RFC3339, s.cfg.Updates.LastCheck); err == nil {
		st.LastCheck = t
	}
	if t, err := time.Parse(time.RFC3339, s.cfg.Updates.LastNotified); err == nil {
		st.LastNotified = t
	}
	return st, nil
}

func (s *configStore) Save(st update.State) error {
	s.cfg.Updates.LatestVersion = st.LatestVersion
	if !st.LastCheck.IsZero() {
		s.cfg.Updates.LastCheck = st.LastCheck.UTC().Format(time.RFC3339)
	}
	if !st.LastNotified.IsZero() {
		s.cfg.Updates.LastNotified = st.LastNotified.UTC().Format(time.RFC3339)
	}
	return s.cfg.Save("")
}
