package commands

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/marcus/taskpulse/internal/logging"
	"github.com/marcus/taskpulse/internal/tasks"
)

var taskCmd = &cobra.Command{
	Use:   "task",
	Short: "Manage tracked tasks",
	Long:  `Add tasks, move them through their lifecycle, and review earnings.`,
}

var taskAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Add a new task",
	Long: `Add a new pending task with a PFT reward and an estimated effort
in hours. The deadline is the creation time plus the estimate.

If --id is omitted a random ID is generated.`,
	RunE: runTaskAdd,
}

var taskListCmd = &cobra.Command{
	Use:   "list",
	Short: "List tasks",
	Long: `List tracked tasks with state and deadline.

Use --state to filter by lifecycle state. Use --by-priority to rank
pending tasks by reward per remaining hour. Use --json for scripting.`,
	RunE: runTaskList,
}

var taskShowCmd = &cobra.Command{
	Use:   "show <task-id>",
	Short: "Show task details",
	Args:  cobra.ExactArgs(1),
	RunE:  runTaskShow,
}

var taskStartCmd = &cobra.Command{
	Use:   "start <task-id>",
	Short: "Start working on a pending task",
	Args:  cobra.ExactArgs(1),
	RunE:  transitionRunE("start", (*tasks.Registry).Start),
}

var taskCompleteCmd = &cobra.Command{
	Use:   "complete <task-id>",
	Short: "Mark an in-progress task as completed",
	Args:  cobra.ExactArgs(1),
	RunE:  transitionRunE("complete", (*tasks.Registry).Complete),
}

var taskSubmitCmd = &cobra.Command{
	Use:   "submit <task-id>",
	Short: "Submit a completed task for payment",
	Args:  cobra.ExactArgs(1),
	RunE:  transitionRunE("submit", (*tasks.Registry).Submit),
}

var taskEarningsCmd = &cobra.Command{
	Use:   "earnings",
	Short: "Show total earnings from completed and submitted tasks",
	RunE:  runTaskEarnings,
}

func init() {
	taskAddCmd.Flags().String("id", "", "Task ID (generated if empty)")
	taskAddCmd.Flags().StringP("description", "d", "", "Task description")
	taskAddCmd.Flags().Float64("reward", 0, "Reward in PFT")
	taskAddCmd.Flags().Float64("hours", 0, "Estimated effort in hours")
	_ = taskAddCmd.MarkFlagRequired("description")
	_ = taskAddCmd.MarkFlagRequired("reward")
	_ = taskAddCmd.MarkFlagRequired("hours")

	taskListCmd.Flags().String("state", "", "Filter by state (pending, in_progress, completed, submitted, expired)")
	taskListCmd.Flags().Bool("by-priority", false, "Rank pending tasks by reward per remaining hour")
	taskListCmd.Flags().Bool("json", false, "Output as JSON")

	taskShowCmd.Flags().Bool("json", false, "Output as JSON")

	taskCmd.AddCommand(taskAddCmd)
	taskCmd.AddCommand(taskListCmd)
	taskCmd.AddCommand(taskShowCmd)
	taskCmd.AddCommand(taskStartCmd)
	taskCmd.AddCommand(taskCompleteCmd)
	taskCmd.AddCommand(taskSubmitCmd)
	taskCmd.AddCommand(taskEarningsCmd)
	rootCmd.AddCommand(taskCmd)
}

func runTaskAdd(cmd *cobra.Command, args []string) error {
	id, _ := cmd.Flags().GetString("id")
	description, _ := cmd.Flags().GetString("description")
	reward, _ := cmd.Flags().GetFloat64("reward")
	hours, _ := cmd.Flags().GetFloat64("hours")

	if id == "" {
		id = "T-" + uuid.NewString()[:8]
	}

	app, err := openApp()
	if err != nil {
		return err
	}
	defer app.Close()

	task, err := app.registry.Add(id, description, reward, hours)
	if err != nil {
		return err
	}
	if err := app.database.SaveTask(task); err != nil {
		return err
	}

	clog := logging.Component("registry").With().
		Str("task", task.ID).
		Float64("reward", task.Reward).
		Logger()
	clog.Info().Msg("task added")

	fmt.Printf("Added task %s (reward %.2f PFT, due %s)\n",
		task.ID, task.Reward, task.Deadline.Format(time.RFC3339))
	return nil
}

func runTaskList(cmd *cobra.Command, args []string) error {
	stateFilter, _ := cmd.Flags().GetString("state")
	byPriority, _ := cmd.Flags().GetBool("by-priority")
	asJSON, _ := cmd.Flags().GetBool("json")

	app, err := openApp()
	if err != nil {
		return err
	}
	defer app.Close()

	var list []tasks.Task
	if byPriority {
		list = app.registry.Prioritized()
	} else {
		var filter *tasks.State
		if stateFilter != "" {
			state, err := tasks.ParseState(stateFilter)
			if err != nil {
				return err
			}
			filter = &state
		}
		list = app.registry.List(filter)
	}

	// Listing re-evaluates deadlines, so expired transitions need
	// to land in the database too.
	if err := app.persistTasks(); err != nil {
		return err
	}

	if len(list) == 0 {
		fmt.Println("No tasks found.")
		return nil
	}

	if asJSON {
		return printJSON(taskEntries(list))
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	if byPriority {
		_, _ = fmt.Fprintln(w, "ID\tDESCRIPTION\tREWARD\tDEADLINE\tPRIORITY")
		for _, t := range list {
			_, _ = fmt.Fprintf(w, "%s\t%s\t%.2f\t%s\t%d\n",
				t.ID, t.Description, t.Reward, t.Deadline.Format("2006-01-02 15:04"), t.Priority)
		}
	} else {
		_, _ = fmt.Fprintln(w, "ID\tDESCRIPTION\tSTATE\tREWARD\tDEADLINE")
		for _, t := range list {
			_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%.2f\t%s\n",
				t.ID, t.Description, t.State, t.Reward, t.Deadline.Format("2006-01-02 15:04"))
		}
	}
	_ = w.Flush()
	fmt.Printf("\n%d task(s)\n", len(list))
	return nil
}

func runTaskShow(cmd *cobra.Command, args []string) error {
	asJSON, _ := cmd.Flags().GetBool("json")

	app, err := openApp()
	if err != nil {
		return err
	}
	defer app.Close()

	task, err := app.registry.Get(args[0])
	if err != nil {
		return err
	}
	if err := app.persistTasks(); err != nil {
		return err
	}

	if asJSON {
		return printJSON(taskEntries([]tasks.Task{task})[0])
	}

	fmt.Printf("Task:        %s\n", task.ID)
	fmt.Printf("Description: %s\n", task.Description)
	fmt.Printf("State:       %s\n", task.State)
	fmt.Printf("Reward:      %.2f PFT\n", task.Reward)
	fmt.Printf("Estimate:    %.1fh\n", task.EstimatedHours)
	fmt.Printf("Created:     %s\n", task.CreatedAt.Format(time.RFC3339))
	fmt.Printf("Deadline:    %s\n", task.Deadline.Format(time.RFC3339))
	printMilestone("Started", task.StartedAt)
	printMilestone("Completed", task.CompletedAt)
	printMilestone("Submitted", task.SubmittedAt)
	return nil
}

func transitionRunE(verb string, apply func(*tasks.Registry, string) (tasks.Task, error)) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		app, err := openApp()
		if err != nil {
			return err
		}
		defer app.Close()

		task, err := apply(app.registry, args[0])
		if err != nil {
			// The failed attempt may still have expired the task.
			if persistErr := app.persistTasks(); persistErr != nil {
				return persistErr
			}
			return err
		}
		if err := app.database.SaveTask(task); err != nil {
			return err
		}

		clog := logging.Component("registry").With().
			Str("task", task.ID).
			Str("state", task.State.String()).
			Logger()
		clog.Info().Msgf("task %s", verb)

		fmt.Printf("Task %s is now %s\n", task.ID, task.State)
		return nil
	}
}

func runTaskEarnings(cmd *cobra.Command, args []string) error {
	app, err := openApp()
	if err != nil {
		return err
	}
	defer app.Close()

	total := app.registry.Earnings()
	if err := app.persistTasks(); err != nil {
		return err
	}

	fmt.Printf("Total earnings: %.2f PFT\n", total)
	return nil
}

func printMilestone(label string, at *time.Time) {
	if at == nil {
		return
	}
	fmt.Printf("%-12s %s\n", label+":", at.Format(time.RFC3339))
}

// --- JSON output ---

type taskEntry struct {
	ID             string     `json:"id"`
	Description    string     `json:"description"`
	Reward         float64    `json:"reward"`
	EstimatedHours float64    `json:"estimated_hours"`
	State          string     `json:"state"`
	Priority       int        `json:"priority,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	Deadline       time.Time  `json:"deadline"`
	StartedAt      *time.Time `json:"started_at,omitempty"`
	CompletedAt    *time.Time `json:"completed_at,omitempty"`
	SubmittedAt    *time.Time `json:"submitted_at,omitempty"`
}

func taskEntries(list []tasks.Task) []taskEntry {
	entries := make([]taskEntry, len(list))
	for i, t := range list {
		entries[i] = taskEntry{
			ID:             t.ID,
			Description:    t.Description,
			Reward:         t.Reward,
			EstimatedHours: t.EstimatedHours,
			State:          t.State.String(),
			Priority:       t.Priority,
			CreatedAt:      t.CreatedAt,
			Deadline:       t.Deadline,
			StartedAt:      t.StartedAt,
			CompletedAt:    t.CompletedAt,
			SubmittedAt:    t.SubmittedAt,
		}
	}
	return entries
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
