package commands

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/marcus/taskpulse/internal/metrics"
)

// Exports rehydrate from the database, so samples collected by one
// invocation show up in an export run by a later one.
func TestExportSeesSamplesFromEarlierInvocation(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	warn := 80.0
	def := metrics.Definition{Name: "cpu_usage", Unit: "percent", WarningThreshold: &warn}

	first, err := openApp()
	if err != nil {
		t.Fatalf("openApp: %v", err)
	}
	if err := first.store.Register(def); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := first.database.SaveDefinition(def); err != nil {
		t.Fatalf("SaveDefinition: %v", err)
	}
	sample, _, err := first.store.Collect("cpu_usage", 72.5)
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if err := first.database.AppendSample("cpu_usage", sample); err != nil {
		t.Fatalf("AppendSample: %v", err)
	}
	first.Close()

	second, err := openApp()
	if err != nil {
		t.Fatalf("openApp (second): %v", err)
	}
	defer second.Close()

	out := filepath.Join(t.TempDir(), "export.json")
	path, err := second.store.Export(out, second.cfg.ExpandedExportDir())
	if err != nil {
		t.Fatalf("Export: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading export: %v", err)
	}
	var doc map[string]struct {
		Samples []struct {
			Value float64 `json:"value"`
		} `json:"samples"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		t.Fatalf("unmarshaling export: %v", err)
	}

	exported, ok := doc["cpu_usage"]
	if !ok {
		t.Fatalf("export missing cpu_usage: %v", doc)
	}
	if len(exported.Samples) != 1 || exported.Samples[0].Value != 72.5 {
		t.Errorf("exported samples = %+v, want one sample of 72.5", exported.Samples)
	}
}
