package commands

import (
	"fmt"

	"github.com/marcus/taskpulse/internal/config"
	"github.com/marcus/taskpulse/internal/db"
	"github.com/marcus/taskpulse/internal/logging"
	"github.com/marcus/taskpulse/internal/metrics"
	"github.com/marcus/taskpulse/internal/tasks"
)

// app bundles the hydrated engines and their backing database for one
// command invocation. Commands mutate the in-memory engines and then
// persist through the db handle.
type app struct {
	cfg      *config.Config
	database *db.DB
	registry *tasks.Registry
	store    *metrics.Store
}

// openApp opens the database and hydrates the task registry and
// metric store from it.
func openApp() (*app, error) {
	cfg := appConfig
	if cfg == nil {
		loaded, err := config.Load()
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	database, err := db.Open(cfg.ExpandedDBPath())
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	logging.Component("db").Debugf("opened %s", database.Path())

	registry := tasks.NewRegistry()
	stored, err := database.LoadTasks()
	if err != nil {
		_ = database.Close()
		return nil, fmt.Errorf("load tasks: %w", err)
	}
	for _, task := range stored {
		if err := registry.Restore(task); err != nil {
			_ = database.Close()
			return nil, fmt.Errorf("restore task %s: %w", task.ID, err)
		}
	}

	store := metrics.NewStore()
	defs, samples, err := database.LoadMetrics()
	if err != nil {
		_ = database.Close()
		return nil, fmt.Errorf("load metrics: %w", err)
	}
	for _, def := range defs {
		if err := store.Restore(def, samples[def.Name]); err != nil {
			_ = database.Close()
			return nil, fmt.Errorf("restore metric %s: %w", def.Name, err)
		}
	}

	return &app{
		cfg:      cfg,
		database: database,
		registry: registry,
		store:    store,
	}, nil
}

// Close releases the database handle.
func (a *app) Close() {
	if err := a.database.Close(); err != nil {
		logging.Component("db").Err(err).Msg("closing database")
	}
}

// persistTasks writes the registry's current state back to the
// database. Lazy deadline expiry mutates tasks on read, so every
// command that touches the registry saves the full set.
func (a *app) persistTasks() error {
	for _, task := range a.registry.List(nil) {
		if err := a.database.SaveTask(task); err != nil {
			return err
		}
	}
	return nil
}
