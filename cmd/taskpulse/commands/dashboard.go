package commands

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/marcus/taskpulse/internal/ui"
)

var dashboardCmd = &cobra.Command{
	Use:     "dashboard",
	Aliases: []string{"dash"},
	Short:   "Interactive dashboard",
	Long: `Launch the interactive terminal dashboard.

Shows tasks with earnings on one panel and registered metrics with
their latest readings on the other. Refreshes every second so lazy
deadline expiry shows up without restarting.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		model := ui.New(dashboardSnapshot)
		return model.Run()
	},
}

func init() {
	rootCmd.AddCommand(dashboardCmd)
}

func dashboardSnapshot() (ui.Snapshot, error) {
	app, err := openApp()
	if err != nil {
		return ui.Snapshot{}, err
	}
	defer app.Close()

	taskList := app.registry.List(nil)
	if err := app.persistTasks(); err != nil {
		return ui.Snapshot{}, err
	}

	var rows []ui.MetricRow
	for _, def := range app.store.Definitions() {
		row := ui.MetricRow{Name: def.Name, Unit: def.Unit}
		sample, ok, err := app.store.Latest(def.Name)
		if err == nil && ok {
			row.HasSample = true
			row.Value = sample.Value
			row.Timestamp = sample.Timestamp
			row.Breach = def.Breach(sample.Value)
		}
		rows = append(rows, row)
	}

	return ui.Snapshot{
		Tasks:     taskList,
		Earnings:  app.registry.Earnings(),
		Metrics:   rows,
		Refreshed: time.Now(),
	}, nil
}
