package db

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/marcus/taskpulse/internal/tasks"
)

func TestImportLegacyTasks(t *testing.T) {
	database := openTestDB(t)

	deadline := time.Now().Add(12 * time.Hour).Format("2006-01-02T15:04:05.999999999")
	legacy := `{
		"T-1": {"task_id": "T-1", "description": "triage queue", "reward": 50, "deadline": "` + deadline + `", "status": "available", "priority": 0},
		"T-2": {"task_id": "T-2", "description": "ship report", "reward": 80, "deadline": "` + deadline + `", "status": "in_progress", "priority": 0}
	}`

	path := filepath.Join(t.TempDir(), "tasks.json")
	if err := os.WriteFile(path, []byte(legacy), 0o644); err != nil {
		t.Fatalf("write legacy file: %v", err)
	}

	if err := importLegacyTasksFromPath(database.SQL(), path); err != nil {
		t.Fatalf("import legacy tasks: %v", err)
	}

	loaded, err := database.LoadTasks()
	if err != nil {
		t.Fatalf("load tasks: %v", err)
	}
	if len(loaded) != 2 {
		t.Fatalf("expected 2 tasks, got %d", len(loaded))
	}

	byID := make(map[string]tasks.Task, len(loaded))
	for _, task := range loaded {
		byID[task.ID] = task
	}
	if byID["T-1"].State != tasks.Pending {
		t.Fatalf("expected available to map to pending, got %s", byID["T-1"].State)
	}
	if byID["T-2"].State != tasks.InProgress {
		t.Fatalf("expected in_progress, got %s", byID["T-2"].State)
	}
	if byID["T-1"].EstimatedHours <= 0 {
		t.Fatalf("expected positive estimated hours, got %v", byID["T-1"].EstimatedHours)
	}

	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("expected legacy file to be renamed, stat err: %v", err)
	}
	if _, err := os.Stat(path + ".migrated"); err != nil {
		t.Fatalf("expected .migrated file: %v", err)
	}
}

func TestImportLegacyTasksMissingFile(t *testing.T) {
	database := openTestDB(t)

	path := filepath.Join(t.TempDir(), "tasks.json")
	if err := importLegacyTasksFromPath(database.SQL(), path); err != nil {
		t.Fatalf("expected no error for missing file, got %v", err)
	}
}

func TestImportLegacyTasksSkipsWhenPopulated(t *testing.T) {
	database := openTestDB(t)

	existing := tasks.Task{
		ID:             "T-keep",
		Description:    "already here",
		Reward:         1,
		EstimatedHours: 1,
		CreatedAt:      time.Now().UTC(),
		Deadline:       time.Now().UTC().Add(time.Hour),
		State:          tasks.Pending,
	}
	if err := database.SaveTask(existing); err != nil {
		t.Fatalf("save task: %v", err)
	}

	legacy := `{"T-new": {"task_id": "T-new", "description": "x", "reward": 1, "deadline": "2026-01-01T00:00:00", "status": "available", "priority": 0}}`
	path := filepath.Join(t.TempDir(), "tasks.json")
	if err := os.WriteFile(path, []byte(legacy), 0o644); err != nil {
		t.Fatalf("write legacy file: %v", err)
	}

	if err := importLegacyTasksFromPath(database.SQL(), path); err != nil {
		t.Fatalf("import: %v", err)
	}

	loaded, err := database.LoadTasks()
	if err != nil {
		t.Fatalf("load tasks: %v", err)
	}
	if len(loaded) != 1 || loaded[0].ID != "T-keep" {
		t.Fatalf("expected import skipped, got %+v", loaded)
	}

	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected legacy file untouched: %v", err)
	}
}
