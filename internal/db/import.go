package db

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"
)

const legacyTasksFile = "tasks.json"

// importLegacyTasks loads a legacy tasks.json into SQLite if present.
func importLegacyTasks(db *sql.DB) error {
	return importLegacyTasksFromPath(db, legacyTasksPath())
}

func legacyTasksPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".local", "share", "taskpulse", legacyTasksFile)
}

func importLegacyTasksFromPath(db *sql.DB, path string) error {
	if db == nil {
		return errors.New("db is nil")
	}

	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("stat legacy tasks: %w", err)
	}
	if info.IsDir() {
		return fmt.Errorf("legacy tasks path is directory: %s", path)
	}

	hasRows, err := dbHasTaskRows(db)
	if err != nil {
		return err
	}
	if hasRows {
		return nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read legacy tasks: %w", err)
	}

	var legacy map[string]legacyTask
	if err := json.Unmarshal(data, &legacy); err != nil {
		return fmt.Errorf("parse legacy tasks: %w", err)
	}

	count, err := importLegacyTaskData(db, legacy)
	if err != nil {
		return err
	}

	if err := os.Rename(path, path+".migrated"); err != nil {
		return fmt.Errorf("rename legacy tasks: %w", err)
	}

	log.Printf("migrated %d tasks from tasks.json", count)
	return nil
}

func importLegacyTaskData(db *sql.DB, legacy map[string]legacyTask) (int, error) {
	tx, err := db.Begin()
	if err != nil {
		return 0, fmt.Errorf("begin legacy import: %w", err)
	}

	stmt, err := tx.Prepare(`INSERT INTO tasks
		(id, description, reward, estimated_hours, created_at, deadline, state, started_at, completed_at, submitted_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, NULL, NULL, NULL)`)
	if err != nil {
		_ = tx.Rollback()
		return 0, fmt.Errorf("prepare tasks insert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	now := time.Now()
	count := 0
	for id, task := range legacy {
		resolvedID := task.TaskID
		if resolvedID == "" {
			resolvedID = id
		}

		deadline, err := parseLegacyTime(task.Deadline)
		if err != nil {
			_ = tx.Rollback()
			return 0, fmt.Errorf("task %s deadline: %w", resolvedID, err)
		}

		// The old format never recorded creation time or the hours
		// estimate, only the resulting deadline. Anchor creation at
		// import time and back out the remaining hours so the
		// deadline survives the round trip.
		estimatedHours := deadline.Sub(now).Hours()
		if estimatedHours < 0 {
			estimatedHours = 0
		}

		state := task.Status
		if state == "available" || state == "" {
			state = "pending"
		}

		if _, err := stmt.Exec(resolvedID, task.Description, task.Reward, estimatedHours,
			now.Format(timeLayout), deadline.Format(timeLayout), state); err != nil {
			_ = tx.Rollback()
			return 0, fmt.Errorf("insert task %s: %w", resolvedID, err)
		}
		count++
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit legacy import: %w", err)
	}

	return count, nil
}

func dbHasTaskRows(db *sql.DB) (bool, error) {
	row := db.QueryRow("SELECT 1 FROM tasks LIMIT 1")
	var one int
	err := row.Scan(&one)
	if err == nil {
		return true, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return false, fmt.Errorf("check tasks rows: %w", err)
	}
	return false, nil
}

// parseLegacyTime accepts the naive ISO timestamps Python's isoformat
// produces alongside proper RFC 3339.
func parseLegacyTime(raw string) (time.Time, error) {
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05.999999999", "2006-01-02T15:04:05"} {
		if t, err := time.ParseInLocation(layout, raw, time.Local); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", raw)
}

type legacyTask struct {
	TaskID      string  `json:"task_id"`
	Description string  `json:"description"`
	Reward      float64 `json:"reward"`
	Deadline    string  `json:"deadline"`
	Status      string  `json:"status"`
	Priority    int     `json:"priority"`
}
