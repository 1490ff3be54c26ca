package db

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/marcus/taskpulse/internal/metrics"
	"github.com/marcus/taskpulse/internal/tasks"
)

// Timestamps are stored as RFC3339Nano text. The modernc driver hands
// DATETIME columns back as strings anyway, so text in, text out.
const timeLayout = time.RFC3339Nano

// SaveTask inserts or replaces a task row.
func (d *DB) SaveTask(t tasks.Task) error {
	_, err := d.sql.Exec(
		`INSERT OR REPLACE INTO tasks
		 (id, description, reward, estimated_hours, created_at, deadline, state, started_at, completed_at, submitted_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID,
		t.Description,
		t.Reward,
		t.EstimatedHours,
		t.CreatedAt.Format(timeLayout),
		t.Deadline.Format(timeLayout),
		t.State.String(),
		nullableTime(t.StartedAt),
		nullableTime(t.CompletedAt),
		nullableTime(t.SubmittedAt),
	)
	if err != nil {
		return fmt.Errorf("saving task %s: %w", t.ID, err)
	}
	return nil
}

// LoadTasks reads all persisted tasks ordered by creation time.
func (d *DB) LoadTasks() ([]tasks.Task, error) {
	rows, err := d.sql.Query(
		`SELECT id, description, reward, estimated_hours, created_at, deadline, state, started_at, completed_at, submitted_at
		 FROM tasks ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("querying tasks: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []tasks.Task
	for rows.Next() {
		var (
			t                               tasks.Task
			stateRaw, createdRaw, deadRaw   string
			startedRaw, doneRaw, subbedRaw  sql.NullString
		)
		if err := rows.Scan(&t.ID, &t.Description, &t.Reward, &t.EstimatedHours,
			&createdRaw, &deadRaw, &stateRaw, &startedRaw, &doneRaw, &subbedRaw); err != nil {
			return nil, fmt.Errorf("scanning task: %w", err)
		}

		t.State, err = tasks.ParseState(stateRaw)
		if err != nil {
			return nil, fmt.Errorf("task %s: %w", t.ID, err)
		}
		if t.CreatedAt, err = parseTime(createdRaw); err != nil {
			return nil, fmt.Errorf("task %s created_at: %w", t.ID, err)
		}
		if t.Deadline, err = parseTime(deadRaw); err != nil {
			return nil, fmt.Errorf("task %s deadline: %w", t.ID, err)
		}
		if t.StartedAt, err = parseNullTime(startedRaw); err != nil {
			return nil, fmt.Errorf("task %s started_at: %w", t.ID, err)
		}
		if t.CompletedAt, err = parseNullTime(doneRaw); err != nil {
			return nil, fmt.Errorf("task %s completed_at: %w", t.ID, err)
		}
		if t.SubmittedAt, err = parseNullTime(subbedRaw); err != nil {
			return nil, fmt.Errorf("task %s submitted_at: %w", t.ID, err)
		}

		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("task rows: %w", err)
	}
	return out, nil
}

// SaveDefinition inserts a metric definition row.
func (d *DB) SaveDefinition(def metrics.Definition) error {
	_, err := d.sql.Exec(
		`INSERT INTO metrics (name, description, unit, warning_threshold, critical_threshold)
		 VALUES (?, ?, ?, ?, ?)`,
		def.Name, def.Description, def.Unit,
		nullableFloat(def.WarningThreshold),
		nullableFloat(def.CriticalThreshold),
	)
	if err != nil {
		return fmt.Errorf("saving metric %s: %w", def.Name, err)
	}
	return nil
}

// AppendSample persists one collected sample. Rows are never updated
// or deleted; the samples table is the append-only log.
func (d *DB) AppendSample(name string, s metrics.Sample) error {
	_, err := d.sql.Exec(
		`INSERT INTO samples (metric_name, timestamp, value) VALUES (?, ?, ?)`,
		name, s.Timestamp.Format(timeLayout), s.Value,
	)
	if err != nil {
		return fmt.Errorf("appending sample for %s: %w", name, err)
	}
	return nil
}

// LoadMetrics reads all definitions with their full sample histories,
// in insertion order per metric.
func (d *DB) LoadMetrics() ([]metrics.Definition, map[string][]metrics.Sample, error) {
	rows, err := d.sql.Query(
		`SELECT name, description, unit, warning_threshold, critical_threshold FROM metrics ORDER BY name`)
	if err != nil {
		return nil, nil, fmt.Errorf("querying metrics: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var defs []metrics.Definition
	for rows.Next() {
		var (
			def           metrics.Definition
			warn, crit    sql.NullFloat64
		)
		if err := rows.Scan(&def.Name, &def.Description, &def.Unit, &warn, &crit); err != nil {
			return nil, nil, fmt.Errorf("scanning metric: %w", err)
		}
		if warn.Valid {
			v := warn.Float64
			def.WarningThreshold = &v
		}
		if crit.Valid {
			v := crit.Float64
			def.CriticalThreshold = &v
		}
		defs = append(defs, def)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("metric rows: %w", err)
	}

	samples := make(map[string][]metrics.Sample, len(defs))
	sampleRows, err := d.sql.Query(
		`SELECT metric_name, timestamp, value FROM samples ORDER BY metric_name, id`)
	if err != nil {
		return nil, nil, fmt.Errorf("querying samples: %w", err)
	}
	defer func() { _ = sampleRows.Close() }()

	for sampleRows.Next() {
		var (
			name  string
			tsRaw string
			s     metrics.Sample
		)
		if err := sampleRows.Scan(&name, &tsRaw, &s.Value); err != nil {
			return nil, nil, fmt.Errorf("scanning sample: %w", err)
		}
		if s.Timestamp, err = parseTime(tsRaw); err != nil {
			return nil, nil, fmt.Errorf("sample for %s: %w", name, err)
		}
		samples[name] = append(samples[name], s)
	}
	if err := sampleRows.Err(); err != nil {
		return nil, nil, fmt.Errorf("sample rows: %w", err)
	}

	return defs, samples, nil
}

func nullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.Format(timeLayout)
}

func nullableFloat(f *float64) any {
	if f == nil {
		return nil
	}
	return *f
}

func parseTime(raw string) (time.Time, error) {
	t, err := time.Parse(timeLayout, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing timestamp %q: %w", raw, err)
	}
	return t, nil
}

func parseNullTime(raw sql.NullString) (*time.Time, error) {
	if !raw.Valid || raw.String == "" {
		return nil, nil
	}
	t, err := parseTime(raw.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
