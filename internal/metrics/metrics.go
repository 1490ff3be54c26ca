// Package metrics implements the named time-series store.
// Each metric has a definition with optional warning/critical thresholds
// and an append-only sample log; collection reports threshold breaches
// and history/statistics are derived from the stored samples.
package metrics

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"
)

// Sentinel errors returned by Store operations.
var (
	ErrDuplicateMetric = errors.New("metric already registered")
	ErrMetricNotFound  = errors.New("metric not registered")
)

// BreachLevel classifies a collected value against its thresholds.
type BreachLevel int

const (
	BreachNone BreachLevel = iota
	BreachWarning
	BreachCritical
)

func (b BreachLevel) String() string {
	switch b {
	case BreachWarning:
		return "warning"
	case BreachCritical:
		return "critical"
	default:
		return "none"
	}
}

// Definition describes a metric. Thresholds are one-sided: a value at
// or above a threshold breaches it. Nil means the bound is unset.
type Definition struct {
	Name              string
	Description       string
	Unit              string
	WarningThreshold  *float64
	CriticalThreshold *float64
}

// Breach classifies a value against the definition's thresholds.
// Critical wins over warning when both are crossed.
func (d Definition) Breach(value float64) BreachLevel {
	if d.CriticalThreshold != nil && value >= *d.CriticalThreshold {
		return BreachCritical
	}
	if d.WarningThreshold != nil && value >= *d.WarningThreshold {
		return BreachWarning
	}
	return BreachNone
}

// Sample is one collected observation. Samples are append-only and
// stored in non-decreasing timestamp order.
type Sample struct {
	Timestamp time.Time
	Value     float64
}

// Stats summarizes a metric's full sample history. A zero Count means
// the series is empty and the remaining fields are undefined; an empty
// series is a valid observable state, not an error.
type Stats struct {
	Count  int
	Min    float64
	Max    float64
	Mean   float64
	StdDev float64
}

// series pairs a definition with its sample log.
type series struct {
	def     Definition
	samples []Sample
}

// Store owns metric definitions and their histories. The threshold
// check and the append happen under one lock so concurrent collectors
// on the same metric cannot miss or duplicate a breach signal.
type Store struct {
	mu      sync.Mutex
	metrics map[string]*series
	nowFunc func() time.Time
}

// NewStore creates an empty metric store.
func NewStore() *Store {
	return &Store{
		metrics: make(map[string]*series),
		nowFunc: time.Now,
	}
}

// SetNowFunc overrides the store clock. Used by tests.
func (s *Store) SetNowFunc(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nowFunc = now
}

// Register adds a metric definition. The name must be unique.
func (s *Store) Register(def Definition) error {
	if def.Name == "" {
		return errors.New("metric name is empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.metrics[def.Name]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateMetric, def.Name)
	}
	s.metrics[def.Name] = &series{def: def}
	return nil
}

// Collect appends a timestamped value to a registered metric and
// reports the breach level for that value. The breach is only
// returned, never stored; it can always be recomputed from history.
func (s *Store) Collect(name string, value float64) (Sample, BreachLevel, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.metrics[name]
	if !ok {
		return Sample{}, BreachNone, fmt.Errorf("%w: %s", ErrMetricNotFound, name)
	}

	sample := Sample{Timestamp: s.nowFunc(), Value: value}
	m.samples = append(m.samples, sample)
	return sample, m.def.Breach(value), nil
}

// Definition returns a metric's definition by name.
func (s *Store) Definition(name string) (Definition, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.metrics[name]
	if !ok {
		return Definition{}, fmt.Errorf("%w: %s", ErrMetricNotFound, name)
	}
	return m.def, nil
}

// Definitions returns all registered definitions sorted by name.
func (s *Store) Definitions() []Definition {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Definition, 0, len(s.metrics))
	for _, m := range s.metrics {
		out = append(out, m.def)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// History returns the samples with start <= timestamp <= end in
// chronological order. Nil bounds are unbounded.
func (s *Store) History(name string, start, end *time.Time) ([]Sample, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.metrics[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrMetricNotFound, name)
	}

	out := make([]Sample, 0, len(m.samples))
	for _, sample := range m.samples {
		if start != nil && sample.Timestamp.Before(*start) {
			continue
		}
		if end != nil && sample.Timestamp.After(*end) {
			continue
		}
		out = append(out, sample)
	}
	return out, nil
}

// Latest returns the most recent sample, or ok=false for an empty series.
func (s *Store) Latest(name string) (Sample, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.metrics[name]
	if !ok {
		return Sample{}, false, fmt.Errorf("%w: %s", ErrMetricNotFound, name)
	}
	if len(m.samples) == 0 {
		return Sample{}, false, nil
	}
	return m.samples[len(m.samples)-1], true, nil
}

// ComputeStats computes count, min, max, mean, and population standard
// deviation over the full sample history. Two-pass formulation; the
// divisor is count, not count-1.
func (s *Store) ComputeStats(name string) (Stats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.metrics[name]
	if !ok {
		return Stats{}, fmt.Errorf("%w: %s", ErrMetricNotFound, name)
	}
	if len(m.samples) == 0 {
		return Stats{}, nil
	}

	st := Stats{
		Count: len(m.samples),
		Min:   m.samples[0].Value,
		Max:   m.samples[0].Value,
	}
	var sum float64
	for _, sample := range m.samples {
		sum += sample.Value
		if sample.Value < st.Min {
			st.Min = sample.Value
		}
		if sample.Value > st.Max {
			st.Max = sample.Value
		}
	}
	st.Mean = sum / float64(st.Count)

	var sq float64
	for _, sample := range m.samples {
		d := sample.Value - st.Mean
		sq += d * d
	}
	st.StdDev = math.Sqrt(sq / float64(st.Count))

	return st, nil
}

// Restore inserts a persisted metric with its history verbatim.
// Fails on duplicate name without touching existing entries.
func (s *Store) Restore(def Definition, samples []Sample) error {
	if def.Name == "" {
		return errors.New("metric name is empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.metrics[def.Name]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateMetric, def.Name)
	}
	s.metrics[def.Name] = &series{
		def:     def,
		samples: append([]Sample(nil), samples...),
	}
	return nil
}
