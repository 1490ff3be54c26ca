package metrics

import (
	"encoding/json"
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func ptr(v float64) *float64 { return &v }

// newTestStore returns a store with a clock that advances one second
// per Collect call, so sample order is deterministic.
func newTestStore(t *testing.T, start time.Time) (*Store, *time.Time) {
	t.Helper()
	s := NewStore()
	now := start
	s.SetNowFunc(func() time.Time {
		now = now.Add(time.Second)
		return now
	})
	return s, &now
}

func TestStore_Register_Duplicate(t *testing.T) {
	s := NewStore()
	def := Definition{Name: "cpu", Description: "CPU usage", Unit: "%"}
	if err := s.Register(def); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := s.Register(def); !errors.Is(err, ErrDuplicateMetric) {
		t.Errorf("second register error = %v, want ErrDuplicateMetric", err)
	}
}

func TestStore_Collect_Unregistered(t *testing.T) {
	s := NewStore()
	if _, _, err := s.Collect("nope", 1); !errors.Is(err, ErrMetricNotFound) {
		t.Errorf("collect error = %v, want ErrMetricNotFound", err)
	}
}

func TestStore_Collect_BreachLevels(t *testing.T) {
	tests := []struct {
		name     string
		warning  *float64
		critical *float64
		value    float64
		want     BreachLevel
	}{
		{"below both", ptr(80), ptr(95), 50, BreachNone},
		{"warning band", ptr(80), ptr(95), 82, BreachWarning},
		{"critical", ptr(80), ptr(95), 97, BreachCritical},
		{"warning boundary inclusive", ptr(80), ptr(95), 80, BreachWarning},
		{"critical boundary inclusive", ptr(80), ptr(95), 95, BreachCritical},
		{"no thresholds", nil, nil, 1e9, BreachNone},
		{"warning only", ptr(80), nil, 97, BreachWarning},
		{"critical only", nil, ptr(95), 97, BreachCritical},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewStore()
			err := s.Register(Definition{
				Name:              "m",
				WarningThreshold:  tt.warning,
				CriticalThreshold: tt.critical,
			})
			if err != nil {
				t.Fatalf("register: %v", err)
			}
			_, breach, err := s.Collect("m", tt.value)
			if err != nil {
				t.Fatalf("collect: %v", err)
			}
			if breach != tt.want {
				t.Errorf("breach(%g) = %s, want %s", tt.value, breach, tt.want)
			}
		})
	}
}

func TestStore_History_Bounds(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s, _ := newTestStore(t, base)
	if err := s.Register(Definition{Name: "rps"}); err != nil {
		t.Fatalf("register: %v", err)
	}

	// Samples at base+1s .. base+5s with values 1..5.
	for v := 1; v <= 5; v++ {
		if _, _, err := s.Collect("rps", float64(v)); err != nil {
			t.Fatalf("collect: %v", err)
		}
	}

	full, err := s.History("rps", nil, nil)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(full) != 5 {
		t.Fatalf("full history length = %d, want 5", len(full))
	}
	for i := 1; i < len(full); i++ {
		if full[i].Timestamp.Before(full[i-1].Timestamp) {
			t.Fatal("history out of chronological order")
		}
	}

	// Inclusive window covering samples 2..4.
	start := base.Add(2 * time.Second)
	end := base.Add(4 * time.Second)
	got, err := s.History("rps", &start, &end)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(got) != 3 || got[0].Value != 2 || got[2].Value != 4 {
		t.Errorf("bounded history = %v, want values 2..4", got)
	}

	// Open start.
	got, err = s.History("rps", nil, &end)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(got) != 4 {
		t.Errorf("history(nil, end) length = %d, want 4", len(got))
	}

	// Open end.
	got, err = s.History("rps", &start, nil)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(got) != 4 {
		t.Errorf("history(start, nil) length = %d, want 4", len(got))
	}

	if _, err := s.History("nope", nil, nil); !errors.Is(err, ErrMetricNotFound) {
		t.Errorf("history error = %v, want ErrMetricNotFound", err)
	}
}

func TestStore_ComputeStats(t *testing.T) {
	s, _ := newTestStore(t, time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	if err := s.Register(Definition{Name: "latency", Unit: "ms"}); err != nil {
		t.Fatalf("register: %v", err)
	}

	// Empty series: zero-count sentinel, not an error.
	st, err := s.ComputeStats("latency")
	if err != nil {
		t.Fatalf("stats on empty series: %v", err)
	}
	if st.Count != 0 {
		t.Errorf("empty series count = %d, want 0", st.Count)
	}

	for _, v := range []float64{10, 20, 30} {
		if _, _, err := s.Collect("latency", v); err != nil {
			t.Fatalf("collect: %v", err)
		}
	}

	st, err = s.ComputeStats("latency")
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if st.Count != 3 || st.Min != 10 || st.Max != 30 || st.Mean != 20 {
		t.Errorf("stats = %+v, want count=3 min=10 max=30 mean=20", st)
	}
	wantStdDev := math.Sqrt(200.0 / 3.0)
	if math.Abs(st.StdDev-wantStdDev) > 1e-9 {
		t.Errorf("stddev = %g, want %g (population)", st.StdDev, wantStdDev)
	}

	if _, err := s.ComputeStats("nope"); !errors.Is(err, ErrMetricNotFound) {
		t.Errorf("stats error = %v, want ErrMetricNotFound", err)
	}
}

func TestStore_Latest(t *testing.T) {
	s, _ := newTestStore(t, time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	if err := s.Register(Definition{Name: "cpu"}); err != nil {
		t.Fatalf("register: %v", err)
	}

	_, ok, err := s.Latest("cpu")
	if err != nil {
		t.Fatalf("latest: %v", err)
	}
	if ok {
		t.Error("expected ok=false for empty series")
	}

	for _, v := range []float64{5, 7, 9} {
		if _, _, err := s.Collect("cpu", v); err != nil {
			t.Fatalf("collect: %v", err)
		}
	}
	sample, ok, err := s.Latest("cpu")
	if err != nil || !ok {
		t.Fatalf("latest: ok=%v err=%v", ok, err)
	}
	if sample.Value != 9 {
		t.Errorf("latest value = %g, want 9", sample.Value)
	}
}

func TestStore_CollectThenHistory(t *testing.T) {
	s, _ := newTestStore(t, time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	err := s.Register(Definition{
		Name:              "cpu",
		Description:       "CPU usage",
		Unit:              "%",
		WarningThreshold:  ptr(70),
		CriticalThreshold: ptr(90),
	})
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	_, breach, err := s.Collect("cpu", 95)
	if err != nil {
		t.Fatalf("collect: %v", err)
	}
	if breach != BreachCritical {
		t.Errorf("breach = %s, want critical", breach)
	}

	hist, err := s.History("cpu", nil, nil)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(hist) != 1 || hist[0].Value != 95 {
		t.Errorf("history = %v, want one sample with value 95", hist)
	}
}

func TestStore_Export(t *testing.T) {
	s, _ := newTestStore(t, time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	err := s.Register(Definition{
		Name:              "cpu",
		Description:       "CPU usage",
		Unit:              "%",
		WarningThreshold:  ptr(70),
		CriticalThreshold: ptr(90),
	})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := s.Register(Definition{Name: "rps", Unit: "req/s"}); err != nil {
		t.Fatalf("register: %v", err)
	}
	for _, v := range []float64{10, 50, 95} {
		if _, _, err := s.Collect("cpu", v); err != nil {
			t.Fatalf("collect: %v", err)
		}
	}

	dest := filepath.Join(t.TempDir(), "out.json")
	got, err := s.Export(dest, "")
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if got != dest {
		t.Errorf("resolved path = %s, want %s", got, dest)
	}

	data, err := os.ReadFile(dest)
	if err != nil {
		t.Fatalf("read export: %v", err)
	}
	var doc map[string]struct {
		Name              string   `json:"name"`
		Unit              string   `json:"unit"`
		WarningThreshold  *float64 `json:"warning_threshold"`
		CriticalThreshold *float64 `json:"critical_threshold"`
		Samples           []struct {
			Timestamp string  `json:"timestamp"`
			Value     float64 `json:"value"`
		} `json:"samples"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		t.Fatalf("parse export: %v", err)
	}

	cpu, ok := doc["cpu"]
	if !ok {
		t.Fatal("export missing cpu metric")
	}
	if len(cpu.Samples) != 3 || cpu.Samples[2].Value != 95 {
		t.Errorf("cpu samples = %v", cpu.Samples)
	}
	if cpu.WarningThreshold == nil || *cpu.WarningThreshold != 70 {
		t.Errorf("warning threshold = %v, want 70", cpu.WarningThreshold)
	}
	if _, err := time.Parse(time.RFC3339Nano, cpu.Samples[0].Timestamp); err != nil {
		t.Errorf("timestamp not RFC3339: %v", err)
	}

	rps, ok := doc["rps"]
	if !ok {
		t.Fatal("export missing rps metric")
	}
	if len(rps.Samples) != 0 {
		t.Errorf("rps samples = %v, want empty", rps.Samples)
	}
}

func TestStore_Export_DefaultPath(t *testing.T) {
	s, _ := newTestStore(t, time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	if err := s.Register(Definition{Name: "cpu"}); err != nil {
		t.Fatalf("register: %v", err)
	}

	dir := t.TempDir()
	got, err := s.Export("", dir)
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if filepath.Dir(got) != dir {
		t.Errorf("default export landed in %s, want %s", filepath.Dir(got), dir)
	}
	name := filepath.Base(got)
	if matched, _ := filepath.Match("metrics-*.json", name); !matched {
		t.Errorf("default export name = %s, want metrics-<ts>.json", name)
	}
	if _, err := os.Stat(got); err != nil {
		t.Errorf("export file missing: %v", err)
	}
}

func TestStore_Export_IOError(t *testing.T) {
	s := NewStore()
	if err := s.Register(Definition{Name: "cpu"}); err != nil {
		t.Fatalf("register: %v", err)
	}

	// Destination inside a path blocked by a regular file.
	blocked := filepath.Join(t.TempDir(), "file")
	if err := os.WriteFile(blocked, []byte("x"), 0644); err != nil {
		t.Fatalf("write blocker: %v", err)
	}
	if _, err := s.Export(filepath.Join(blocked, "out.json"), ""); err == nil {
		t.Error("expected write failure")
	}
}

func TestStore_Restore(t *testing.T) {
	s := NewStore()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	samples := []Sample{
		{Timestamp: base, Value: 1},
		{Timestamp: base.Add(time.Minute), Value: 2},
	}
	if err := s.Restore(Definition{Name: "cpu"}, samples); err != nil {
		t.Fatalf("restore: %v", err)
	}

	hist, err := s.History("cpu", nil, nil)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(hist) != 2 || hist[1].Value != 2 {
		t.Errorf("restored history = %v", hist)
	}

	if err := s.Restore(Definition{Name: "cpu"}, nil); !errors.Is(err, ErrDuplicateMetric) {
		t.Errorf("restore duplicate error = %v, want ErrDuplicateMetric", err)
	}
}
