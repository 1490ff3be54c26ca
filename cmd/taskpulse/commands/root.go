// Package commands implements the taskpulse CLI commands using cobra.
package commands

import (
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/marcus/taskpulse/internal/config"
	"github.com/marcus/taskpulse/internal/logging"
)

var (
	// Version is set at build time
	Version = "0.2.0"
)

var rootCmd = &cobra.Command{
	Use:   "taskpulse",
	Short: "Operational tracker for tasks and service metrics",
	Long: `Taskpulse tracks reward-bearing tasks through their lifecycle and
collects operational metrics with warning and critical thresholds.

Add tasks, move them through pending, in-progress, completed, and
submitted, and watch deadlines and metric health from one CLI.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: false,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		appConfig = cfg

		return logging.Init(logging.Config{
			Level:         cfg.Logging.Level,
			Path:          filepath.Join(cfg.ExpandedDataDir(), "logs"),
			Format:        cfg.Logging.Format,
			RetentionDays: cfg.Logging.RetentionDays,
		})
	},
}

// appConfig is loaded once in PersistentPreRunE and shared by commands.
var appConfig *config.Config

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
