package commands

import (
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/marcus/taskpulse/internal/config"
	"github.com/marcus/taskpulse/internal/logging"
	"github.com/marcus/taskpulse/internal/metrics"
	"github.com/marcus/taskpulse/internal/scheduler"
)

var metricCmd = &cobra.Command{
	Use:   "metric",
	Short: "Manage operational metrics",
	Long:  `Register metrics, collect readings, and review history and statistics.`,
}

var metricRegisterCmd = &cobra.Command{
	Use:   "register <name>",
	Short: "Register a new metric",
	Long: `Register a metric definition. Thresholds are one-sided: a reading
at or above --warning is a warning, at or above --critical is critical.`,
	Args: cobra.ExactArgs(1),
	RunE: runMetricRegister,
}

var metricCollectCmd = &cobra.Command{
	Use:   "collect <name> <value>",
	Short: "Record a metric reading",
	Args:  cobra.ExactArgs(2),
	RunE:  runMetricCollect,
}

var metricListCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered metrics with their latest readings",
	RunE:  runMetricList,
}

var metricHistoryCmd = &cobra.Command{
	Use:   "history <name>",
	Short: "Show a metric's sample history",
	Long: `Show recorded samples for a metric, oldest first.

--start and --end accept RFC3339, YYYY-MM-DD, or the words now, today,
yesterday, and tomorrow. Bounds are inclusive.`,
	Args: cobra.ExactArgs(1),
	RunE: runMetricHistory,
}

var metricStatsCmd = &cobra.Command{
	Use:   "stats <name>",
	Short: "Show summary statistics for a metric",
	Args:  cobra.ExactArgs(1),
	RunE:  runMetricStats,
}

var metricExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export all metrics and samples to a JSON file",
	Long: `Export every metric definition and its samples as JSON.

Without --output the file lands in the configured export directory
with a timestamped name. With --schedule the command stays in the
foreground and re-exports on the given cron schedule until interrupted.
--watch does the same using the export.schedule from the config file.`,
	RunE: runMetricExport,
}

var (
	breachWarnStyle = lipgloss.NewStyle().
			Foreground(lipgloss.AdaptiveColor{Light: "#b08800", Dark: "#d29922"}).
			Bold(true)
	breachCritStyle = lipgloss.NewStyle().
			Foreground(lipgloss.AdaptiveColor{Light: "#cb2431", Dark: "#f85149"}).
			Bold(true)
	breachOKStyle = lipgloss.NewStyle().
			Foreground(lipgloss.AdaptiveColor{Light: "#22863a", Dark: "#3fb950"})
)

func init() {
	metricRegisterCmd.Flags().StringP("description", "d", "", "Metric description")
	metricRegisterCmd.Flags().StringP("unit", "u", "", "Unit label (e.g. percent, ms)")
	metricRegisterCmd.Flags().Float64("warning", 0, "Warning threshold (high is bad)")
	metricRegisterCmd.Flags().Float64("critical", 0, "Critical threshold (high is bad)")

	metricHistoryCmd.Flags().String("start", "", "Inclusive lower time bound")
	metricHistoryCmd.Flags().String("end", "", "Inclusive upper time bound")
	metricHistoryCmd.Flags().Bool("json", false, "Output as JSON")

	metricStatsCmd.Flags().Bool("json", false, "Output as JSON")

	metricExportCmd.Flags().StringP("output", "o", "", "Destination file path")
	metricExportCmd.Flags().String("schedule", "", "Cron schedule for repeated export")
	metricExportCmd.Flags().Bool("watch", false, "Repeat on the configured export.schedule")

	metricCmd.AddCommand(metricRegisterCmd)
	metricCmd.AddCommand(metricCollectCmd)
	metricCmd.AddCommand(metricListCmd)
	metricCmd.AddCommand(metricHistoryCmd)
	metricCmd.AddCommand(metricStatsCmd)
	metricCmd.AddCommand(metricExportCmd)
	rootCmd.AddCommand(metricCmd)
}

func runMetricRegister(cmd *cobra.Command, args []string) error {
	description, _ := cmd.Flags().GetString("description")
	unit, _ := cmd.Flags().GetString("unit")

	def := metrics.Definition{
		Name:        args[0],
		Description: description,
		Unit:        unit,
	}
	if cmd.Flags().Changed("warning") {
		v, _ := cmd.Flags().GetFloat64("warning")
		def.WarningThreshold = &v
	}
	if cmd.Flags().Changed("critical") {
		v, _ := cmd.Flags().GetFloat64("critical")
		def.CriticalThreshold = &v
	}

	app, err := openApp()
	if err != nil {
		return err
	}
	defer app.Close()

	if err := app.store.Register(def); err != nil {
		return err
	}
	if err := app.database.SaveDefinition(def); err != nil {
		return err
	}

	logging.Component("metrics").Infof("registered metric %s", def.Name)
	fmt.Printf("Registered metric %s\n", def.Name)
	return nil
}

func runMetricCollect(cmd *cobra.Command, args []string) error {
	name := args[0]
	value, err := strconv.ParseFloat(args[1], 64)
	if err != nil {
		return fmt.Errorf("invalid value %q: %w", args[1], err)
	}

	app, err := openApp()
	if err != nil {
		return err
	}
	defer app.Close()

	sample, breach, err := app.store.Collect(name, value)
	if err != nil {
		return err
	}
	if err := app.database.AppendSample(name, sample); err != nil {
		return err
	}

	def, _ := app.store.Definition(name)
	label := fmt.Sprintf("%s = %g %s", name, sample.Value, def.Unit)

	clog := logging.Component("metrics").With().
		Str("metric", name).
		Float64("value", sample.Value).
		Logger()

	switch breach {
	case metrics.BreachCritical:
		clog.Error().Msg("critical threshold breached")
		fmt.Printf("%s  %s\n", label, breachCritStyle.Render("CRITICAL"))
	case metrics.BreachWarning:
		clog.Warn().Msg("warning threshold breached")
		fmt.Printf("%s  %s\n", label, breachWarnStyle.Render("WARNING"))
	default:
		fmt.Printf("%s  %s\n", label, breachOKStyle.Render("ok"))
	}
	return nil
}

func runMetricList(cmd *cobra.Command, args []string) error {
	app, err := openApp()
	if err != nil {
		return err
	}
	defer app.Close()

	defs := app.store.Definitions()
	if len(defs) == 0 {
		fmt.Println("No metrics registered.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "NAME\tUNIT\tWARN\tCRIT\tLATEST\tAT")
	for _, def := range defs {
		latest, ok, err := app.store.Latest(def.Name)
		if err != nil {
			return err
		}
		latestStr, atStr := "-", "-"
		if ok {
			latestStr = fmt.Sprintf("%g", latest.Value)
			atStr = latest.Timestamp.Format("2006-01-02 15:04:05")
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			def.Name, def.Unit,
			thresholdLabel(def.WarningThreshold),
			thresholdLabel(def.CriticalThreshold),
			latestStr, atStr)
	}
	_ = w.Flush()
	return nil
}

func runMetricHistory(cmd *cobra.Command, args []string) error {
	startStr, _ := cmd.Flags().GetString("start")
	endStr, _ := cmd.Flags().GetString("end")
	asJSON, _ := cmd.Flags().GetBool("json")

	var start, end *time.Time
	if startStr != "" {
		t, err := parseTimeInput(startStr, time.Local)
		if err != nil {
			return err
		}
		start = &t
	}
	if endStr != "" {
		t, err := parseTimeInput(endStr, time.Local)
		if err != nil {
			return err
		}
		end = &t
	}

	app, err := openApp()
	if err != nil {
		return err
	}
	defer app.Close()

	samples, err := app.store.History(args[0], start, end)
	if err != nil {
		return err
	}

	if asJSON {
		type entry struct {
			Timestamp time.Time `json:"timestamp"`
			Value     float64   `json:"value"`
		}
		entries := make([]entry, len(samples))
		for i, s := range samples {
			entries[i] = entry{Timestamp: s.Timestamp, Value: s.Value}
		}
		return printJSON(entries)
	}

	if len(samples) == 0 {
		fmt.Println("No samples in range.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "TIMESTAMP\tVALUE")
	for _, s := range samples {
		_, _ = fmt.Fprintf(w, "%s\t%g\n", s.Timestamp.Format(time.RFC3339), s.Value)
	}
	_ = w.Flush()
	fmt.Printf("\n%d sample(s)\n", len(samples))
	return nil
}

func runMetricStats(cmd *cobra.Command, args []string) error {
	asJSON, _ := cmd.Flags().GetBool("json")

	app, err := openApp()
	if err != nil {
		return err
	}
	defer app.Close()

	stats, err := app.store.ComputeStats(args[0])
	if err != nil {
		return err
	}

	if asJSON {
		return printJSON(stats)
	}

	if stats.Count == 0 {
		fmt.Printf("No samples recorded for %s.\n", args[0])
		return nil
	}

	fmt.Printf("Metric:  %s\n", args[0])
	fmt.Printf("Count:   %d\n", stats.Count)
	fmt.Printf("Min:     %g\n", stats.Min)
	fmt.Printf("Max:     %g\n", stats.Max)
	fmt.Printf("Mean:    %.4f\n", stats.Mean)
	fmt.Printf("Stddev:  %.4f\n", stats.StdDev)
	return nil
}

func runMetricExport(cmd *cobra.Command, args []string) error {
	output, _ := cmd.Flags().GetString("output")
	schedule, _ := cmd.Flags().GetString("schedule")

	watch, _ := cmd.Flags().GetBool("watch")
	if schedule == "" && watch {
		cfg := appConfig
		if cfg == nil {
			loaded, err := config.Load()
			if err != nil {
				return err
			}
			cfg = loaded
		}
		schedule = cfg.Export.Schedule
		if schedule == "" {
			return fmt.Errorf("--watch requires export.schedule in the config")
		}
	}

	// Each run rehydrates from the database so samples collected by
	// other invocations land in the export.
	exportOnce := func() (string, error) {
		app, err := openApp()
		if err != nil {
			return "", err
		}
		defer app.Close()
		return app.store.Export(output, app.cfg.ExpandedExportDir())
	}

	if schedule == "" {
		path, err := exportOnce()
		if err != nil {
			return err
		}
		fmt.Printf("Exported metrics to %s\n", path)
		return nil
	}

	sched := scheduler.New()
	log := logging.Component("export")
	err := sched.ScheduleCron("export", schedule, func() {
		path, err := exportOnce()
		if err != nil {
			log.Err(err).Msg("scheduled export failed")
			return
		}
		log.Infof("exported metrics to %s", path)
	})
	if err != nil {
		return err
	}

	sched.Start()
	defer sched.Stop()

	fmt.Printf("Exporting on schedule %q (Ctrl+C to stop). Next run: %s\n",
		schedule, sched.NextRun("export").Format(time.RFC3339))

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig
	fmt.Println("\nStopping scheduled export.")
	return nil
}

func thresholdLabel(v *float64) string {
	if v == nil {
		return "-"
	}
	return fmt.Sprintf("%g", *v)
}
