package commands

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
)

var logsCmd = &cobra.Command{
	Use:   "logs",
	Short: "View logs",
	Long: `View taskpulse logs.

Shows recent entries from the daily log files. --follow streams new
entries as they arrive, switching to the next file at midnight
rollover. --level and --component narrow the output.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		tail, _ := cmd.Flags().GetInt("tail")
		follow, _ := cmd.Flags().GetBool("follow")
		export, _ := cmd.Flags().GetString("export")
		level, _ := cmd.Flags().GetString("level")
		component, _ := cmd.Flags().GetString("component")

		filter, err := newLogFilter(level, component)
		if err != nil {
			return err
		}

		logDir := defaultLogPath()
		if appConfig != nil {
			logDir = filepath.Join(appConfig.ExpandedDataDir(), "logs")
		}

		if export != "" {
			return exportLogs(logDir, export, filter)
		}
		if follow {
			return followLogs(logDir, tail, filter)
		}
		return showLogs(logDir, tail, filter)
	},
}

func init() {
	logsCmd.Flags().IntP("tail", "n", 50, "Number of log lines to show")
	logsCmd.Flags().BoolP("follow", "f", false, "Follow log output")
	logsCmd.Flags().StringP("export", "e", "", "Export logs to file")
	logsCmd.Flags().String("level", "", "Minimum level to show (trace, debug, info, warn, error)")
	logsCmd.Flags().String("component", "", "Only show entries from this component")
	rootCmd.AddCommand(logsCmd)
}

func defaultLogPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".local", "share", "taskpulse", "logs")
}

// logEntry is one structured line from a JSON-format log file.
// Console-format files fail to parse and pass through verbatim.
type logEntry struct {
	Level     string    `json:"level"`
	Time      time.Time `json:"time"`
	Message   string    `json:"message"`
	Component string    `json:"component,omitempty"`
	Error     string    `json:"error,omitempty"`
}

var logLevelRank = map[string]int{
	"trace": -1,
	"debug": 0,
	"info":  1,
	"warn":  2,
	"error": 3,
}

var logLevelStyles = map[string]lipgloss.Style{
	"trace": lipgloss.NewStyle().Faint(true),
	"debug": lipgloss.NewStyle().Faint(true),
	"warn":  breachWarnStyle,
	"error": breachCritStyle,
}

// logFilter narrows output by minimum level and component. The zero
// filter passes everything, including lines that fail to parse.
type logFilter struct {
	minRank   int
	hasLevel  bool
	component string
}

func newLogFilter(level, component string) (logFilter, error) {
	f := logFilter{component: component}
	if level == "" {
		return f, nil
	}
	rank, ok := logLevelRank[strings.ToLower(level)]
	if !ok {
		return f, fmt.Errorf("unknown log level %q", level)
	}
	f.minRank = rank
	f.hasLevel = true
	return f, nil
}

func (f logFilter) active() bool {
	return f.hasLevel || f.component != ""
}

func (f logFilter) matches(line string) bool {
	if !f.active() {
		return true
	}
	var entry logEntry
	if err := json.Unmarshal([]byte(line), &entry); err != nil {
		return false
	}
	if f.hasLevel {
		rank, ok := logLevelRank[entry.Level]
		if !ok || rank < f.minRank {
			return false
		}
	}
	if f.component != "" && entry.Component != f.component {
		return false
	}
	return true
}

func showLogs(logDir string, n int, filter logFilter) error {
	files, err := logFilesNewestFirst(logDir)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		fmt.Println("No log files found.")
		return nil
	}

	for _, line := range tailLogLines(files, n, filter) {
		printLogLine(line)
	}
	return nil
}

func followLogs(logDir string, initialLines int, filter logFilter) error {
	files, err := logFilesNewestFirst(logDir)
	if err != nil {
		return err
	}
	if len(files) > 0 && initialLines > 0 {
		for _, line := range tailLogLines(files, initialLines, filter) {
			printLogLine(line)
		}
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	defer func() { _ = watcher.Close() }()

	if err := watcher.Add(logDir); err != nil {
		return fmt.Errorf("watching log dir: %w", err)
	}

	tail := newLogTail(filter)
	tail.open(todaysLogFile(logDir))

	fmt.Println("--- Following logs (Ctrl+C to exit) ---")

	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			switch {
			case event.Op&fsnotify.Create != 0 && isLogFile(filepath.Base(event.Name)):
				// Midnight rollover starts a fresh file.
				tail.openFromStart(event.Name)
				tail.drain()
			case event.Op&fsnotify.Write != 0 && event.Name == tail.path:
				tail.drain()
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			fmt.Fprintf(os.Stderr, "watcher error: %v\n", err)
		}
	}
}

// logTail incrementally reads one log file, printing matching lines.
type logTail struct {
	path   string
	file   *os.File
	reader *bufio.Reader
	filter logFilter
}

func newLogTail(filter logFilter) *logTail {
	return &logTail{filter: filter}
}

// open attaches to path and seeks to its end, so only lines written
// after attach are printed.
func (t *logTail) open(path string) {
	t.attach(path, io.SeekEnd)
}

// openFromStart attaches to path at offset zero. Used for freshly
// created files whose every line is new.
func (t *logTail) openFromStart(path string) {
	t.attach(path, io.SeekStart)
}

func (t *logTail) attach(path string, whence int) {
	if path == "" {
		return
	}
	if t.file != nil {
		_ = t.file.Close()
		t.file = nil
		t.reader = nil
	}
	f, err := os.Open(path)
	if err != nil {
		return
	}
	_, _ = f.Seek(0, whence)
	t.path = path
	t.file = f
	t.reader = bufio.NewReader(f)
}

func (t *logTail) drain() {
	if t.reader == nil {
		return
	}
	for {
		line, err := t.reader.ReadString('\n')
		if err != nil {
			return
		}
		line = strings.TrimSuffix(line, "\n")
		if t.filter.matches(line) {
			printLogLine(line)
		}
	}
}

func exportLogs(logDir, outFile string, filter logFilter) error {
	files, err := logFilesNewestFirst(logDir)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return fmt.Errorf("no log files found")
	}

	out, err := os.Create(outFile)
	if err != nil {
		return fmt.Errorf("creating output file: %w", err)
	}
	defer func() { _ = out.Close() }()

	total := 0
	for i := len(files) - 1; i >= 0; i-- {
		for _, line := range fileLines(files[i]) {
			if !filter.matches(line) {
				continue
			}
			_, _ = out.WriteString(line + "\n")
			total++
		}
	}

	fmt.Printf("Exported %d log lines to %s\n", total, outFile)
	return nil
}

func isLogFile(name string) bool {
	return strings.HasPrefix(name, "taskpulse-") && strings.HasSuffix(name, ".log")
}

// logFilesNewestFirst lists the daily log files, most recent date
// first. The date sits in the filename, so lexical order is date order.
func logFilesNewestFirst(logDir string) ([]string, error) {
	entries, err := os.ReadDir(logDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading log dir: %w", err)
	}

	var files []string
	for _, entry := range entries {
		if entry.IsDir() || !isLogFile(entry.Name()) {
			continue
		}
		files = append(files, filepath.Join(logDir, entry.Name()))
	}
	sort.Sort(sort.Reverse(sort.StringSlice(files)))
	return files, nil
}

func todaysLogFile(logDir string) string {
	path := filepath.Join(logDir, fmt.Sprintf("taskpulse-%s.log", time.Now().Format("2006-01-02")))
	if _, err := os.Stat(path); err != nil {
		return ""
	}
	return path
}

// tailLogLines returns the last n matching lines across the daily
// files, oldest first. Files arrive newest first so older files are
// only read once the quota is still unfilled.
func tailLogLines(files []string, n int, filter logFilter) []string {
	if n <= 0 {
		return nil
	}
	collected := make([]string, 0, n)

	for _, file := range files {
		if len(collected) >= n {
			break
		}
		lines := fileLines(file)
		// Walk this file backwards, prepending until the quota fills.
		for i := len(lines) - 1; i >= 0 && len(collected) < n; i-- {
			if filter.matches(lines[i]) {
				collected = append(collected, lines[i])
			}
		}
	}

	// Reverse into chronological order.
	for i, j := 0, len(collected)-1; i < j; i, j = i+1, j-1 {
		collected[i], collected[j] = collected[j], collected[i]
	}
	return collected
}

func fileLines(path string) []string {
	f, err := os.Open(path)
	if err != nil {
		return nil
	}
	defer func() { _ = f.Close() }()

	var lines []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	return lines
}

func printLogLine(line string) {
	var entry logEntry
	if err := json.Unmarshal([]byte(line), &entry); err != nil {
		// Console-format files are already human-readable.
		fmt.Println(line)
		return
	}

	var b strings.Builder
	b.WriteString(entry.Time.Format("15:04:05"))
	b.WriteByte(' ')
	b.WriteString(formatLogLevel(entry.Level))
	if entry.Component != "" {
		b.WriteString(" [")
		b.WriteString(entry.Component)
		b.WriteByte(']')
	}
	b.WriteByte(' ')
	b.WriteString(entry.Message)
	if entry.Error != "" {
		b.WriteString(" error=")
		b.WriteString(entry.Error)
	}
	fmt.Println(b.String())
}

// formatLogLevel renders the zerolog-style three-letter level tag,
// colored the same way breach labels are.
func formatLogLevel(level string) string {
	var tag string
	switch level {
	case "trace":
		tag = "TRC"
	case "debug":
		tag = "DBG"
	case "info":
		tag = "INF"
	case "warn":
		tag = "WRN"
	case "error":
		tag = "ERR"
	default:
		tag = strings.ToUpper(level)
		if len(tag) > 3 {
			tag = tag[:3]
		}
	}
	if style, ok := logLevelStyles[level]; ok {
		return style.Render(tag)
	}
	return tag
}
