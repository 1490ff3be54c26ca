package metrics

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// exportedMetric is the per-metric shape of the export document.
type exportedMetric struct {
	Name              string           `json:"name"`
	Description       string           `json:"description"`
	Unit              string           `json:"unit"`
	WarningThreshold  *float64         `json:"warning_threshold,omitempty"`
	CriticalThreshold *float64         `json:"critical_threshold,omitempty"`
	Samples           []exportedSample `json:"samples"`
}

type exportedSample struct {
	Timestamp string  `json:"timestamp"`
	Value     float64 `json:"value"`
}

// Export serializes all definitions and their full histories to a JSON
// document at destination and returns the resolved path. An empty
// destination resolves to a timestamped file under defaultDir. The
// write goes through a temp file and rename so a failure never leaves
// a partial document behind.
func (s *Store) Export(destination, defaultDir string) (string, error) {
	s.mu.Lock()
	doc := make(map[string]exportedMetric, len(s.metrics))
	for name, m := range s.metrics {
		out := exportedMetric{
			Name:              m.def.Name,
			Description:       m.def.Description,
			Unit:              m.def.Unit,
			WarningThreshold:  m.def.WarningThreshold,
			CriticalThreshold: m.def.CriticalThreshold,
			Samples:           make([]exportedSample, len(m.samples)),
		}
		for i, sample := range m.samples {
			out.Samples[i] = exportedSample{
				Timestamp: sample.Timestamp.Format(time.RFC3339Nano),
				Value:     sample.Value,
			}
		}
		doc[name] = out
	}
	now := s.nowFunc()
	s.mu.Unlock()

	if destination == "" {
		destination = filepath.Join(defaultDir, fmt.Sprintf("metrics-%s.json", now.Format("20060102-150405")))
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshaling export: %w", err)
	}

	if dir := filepath.Dir(destination); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return "", fmt.Errorf("creating export dir: %w", err)
		}
	}

	tmp := destination + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return "", fmt.Errorf("writing export: %w", err)
	}
	if err := os.Rename(tmp, destination); err != nil {
		_ = os.Remove(tmp)
		return "", fmt.Errorf("renaming export file: %w", err)
	}

	return destination, nil
}
