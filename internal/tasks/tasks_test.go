package tasks

import (
	"errors"
	"testing"
	"time"
)

// fixedClock returns a registry whose clock is pinned to a settable time.
func fixedClock(t *testing.T, r *Registry, start time.Time) *time.Time {
	t.Helper()
	now := start
	r.SetNowFunc(func() time.Time { return now })
	return &now
}

func TestRegistry_Add(t *testing.T) {
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	r := NewRegistry()
	fixedClock(t, r, base)

	task, err := r.Add("T1", "write docs", 100, 24)
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if task.State != Pending {
		t.Errorf("state = %s, want pending", task.State)
	}
	if !task.CreatedAt.Equal(base) {
		t.Errorf("created_at = %v, want %v", task.CreatedAt, base)
	}
	if want := base.Add(24 * time.Hour); !task.Deadline.Equal(want) {
		t.Errorf("deadline = %v, want %v", task.Deadline, want)
	}
	if task.StartedAt != nil || task.CompletedAt != nil || task.SubmittedAt != nil {
		t.Error("milestone timestamps should be unset at creation")
	}
}

func TestRegistry_Add_Validation(t *testing.T) {
	tests := []struct {
		name    string
		id      string
		reward  float64
		hours   float64
		wantErr error
	}{
		{"negative reward", "T1", -1, 8, ErrValidation},
		{"zero hours", "T1", 10, 0, ErrValidation},
		{"negative hours", "T1", 10, -2, ErrValidation},
		{"empty id", "", 10, 8, ErrValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewRegistry()
			if _, err := r.Add(tt.id, "x", tt.reward, tt.hours); !errors.Is(err, tt.wantErr) {
				t.Errorf("Add() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestRegistry_Add_Duplicate(t *testing.T) {
	r := NewRegistry()
	if _, err := r.Add("T1", "first", 10, 8); err != nil {
		t.Fatalf("add: %v", err)
	}
	_, err := r.Add("T1", "second", 20, 4)
	if !errors.Is(err, ErrDuplicateTask) {
		t.Fatalf("duplicate add error = %v, want ErrDuplicateTask", err)
	}

	// The original task must be untouched.
	got, err := r.Get("T1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Description != "first" || got.Reward != 10 {
		t.Errorf("existing task mutated by failed add: %+v", got)
	}
}

func TestRegistry_Lifecycle(t *testing.T) {
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	r := NewRegistry()
	now := fixedClock(t, r, base)

	if _, err := r.Add("T1", "doc", 100, 24); err != nil {
		t.Fatalf("add: %v", err)
	}

	*now = base.Add(time.Hour)
	started, err := r.Start("T1")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if started.State != InProgress {
		t.Errorf("state after start = %s", started.State)
	}
	if started.StartedAt == nil || !started.StartedAt.Equal(*now) {
		t.Errorf("started_at = %v, want %v", started.StartedAt, *now)
	}

	*now = base.Add(2 * time.Hour)
	completed, err := r.Complete("T1")
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if completed.State != Completed || completed.CompletedAt == nil {
		t.Errorf("complete = %+v", completed)
	}

	if got := r.Earnings(); got != 100 {
		t.Errorf("earnings after complete = %g, want 100", got)
	}

	submitted, err := r.Submit("T1")
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if submitted.State != Submitted || submitted.SubmittedAt == nil {
		t.Errorf("submit = %+v", submitted)
	}

	// Submitted is terminal.
	if _, err := r.Submit("T1"); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("second submit error = %v, want ErrInvalidTransition", err)
	}
	if got := r.Earnings(); got != 100 {
		t.Errorf("earnings after submit = %g, want 100", got)
	}
}

func TestRegistry_InvalidTransitions(t *testing.T) {
	tests := []struct {
		name string
		op   func(r *Registry) error
	}{
		{"complete before start", func(r *Registry) error {
			_, err := r.Complete("T1")
			return err
		}},
		{"submit before complete", func(r *Registry) error {
			_, err := r.Submit("T1")
			return err
		}},
		{"start twice", func(r *Registry) error {
			if _, err := r.Start("T1"); err != nil {
				return err
			}
			_, err := r.Start("T1")
			return err
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewRegistry()
			if _, err := r.Add("T1", "x", 10, 8); err != nil {
				t.Fatalf("add: %v", err)
			}
			if err := tt.op(r); !errors.Is(err, ErrInvalidTransition) {
				t.Errorf("error = %v, want ErrInvalidTransition", err)
			}
		})
	}
}

func TestRegistry_NotFound(t *testing.T) {
	r := NewRegistry()
	for name, op := range map[string]func() error{
		"start":    func() error { _, err := r.Start("nope"); return err },
		"complete": func() error { _, err := r.Complete("nope"); return err },
		"submit":   func() error { _, err := r.Submit("nope"); return err },
		"get":      func() error { _, err := r.Get("nope"); return err },
	} {
		if err := op(); !errors.Is(err, ErrTaskNotFound) {
			t.Errorf("%s error = %v, want ErrTaskNotFound", name, err)
		}
	}
}

func TestRegistry_LazyExpiry(t *testing.T) {
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	r := NewRegistry()
	now := fixedClock(t, r, base)

	if _, err := r.Add("pending", "never started", 50, 2); err != nil {
		t.Fatalf("add: %v", err)
	}
	if _, err := r.Add("started", "in flight", 75, 2); err != nil {
		t.Fatalf("add: %v", err)
	}
	if _, err := r.Start("started"); err != nil {
		t.Fatalf("start: %v", err)
	}

	// Deadline passes with no explicit expiry call.
	*now = base.Add(3 * time.Hour)

	all := r.List(nil)
	for _, task := range all {
		if task.State != Expired {
			t.Errorf("task %s state = %s, want expired", task.ID, task.State)
		}
	}

	// Transitions on expired tasks fail with the state machine error.
	if _, err := r.Start("pending"); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("start expired error = %v, want ErrInvalidTransition", err)
	}
	if _, err := r.Complete("started"); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("complete expired error = %v, want ErrInvalidTransition", err)
	}
	if got := r.Earnings(); got != 0 {
		t.Errorf("earnings over expired tasks = %g, want 0", got)
	}
}

func TestRegistry_CompletedDoesNotExpire(t *testing.T) {
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	r := NewRegistry()
	now := fixedClock(t, r, base)

	mustAdd(t, r, "T1", 40, 1)
	mustStart(t, r, "T1")
	if _, err := r.Complete("T1"); err != nil {
		t.Fatalf("complete: %v", err)
	}

	*now = base.Add(48 * time.Hour)

	got, err := r.Get("T1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.State != Completed {
		t.Errorf("state = %s, want completed (completed work keeps its value)", got.State)
	}
	if earnings := r.Earnings(); earnings != 40 {
		t.Errorf("earnings = %g, want 40", earnings)
	}
}

func TestRegistry_Earnings_Interleaved(t *testing.T) {
	r := NewRegistry()

	mustAdd(t, r, "a", 10, 8)
	mustAdd(t, r, "b", 20, 8)
	mustAdd(t, r, "c", 40, 8)

	if got := r.Earnings(); got != 0 {
		t.Fatalf("earnings with all pending = %g, want 0", got)
	}

	mustStart(t, r, "a")
	mustStart(t, r, "b")
	if got := r.Earnings(); got != 0 {
		t.Fatalf("earnings with in-progress = %g, want 0", got)
	}

	if _, err := r.Complete("a"); err != nil {
		t.Fatalf("complete a: %v", err)
	}
	if got := r.Earnings(); got != 10 {
		t.Fatalf("earnings = %g, want 10", got)
	}

	if _, err := r.Submit("a"); err != nil {
		t.Fatalf("submit a: %v", err)
	}
	if _, err := r.Complete("b"); err != nil {
		t.Fatalf("complete b: %v", err)
	}
	if got := r.Earnings(); got != 30 {
		t.Fatalf("earnings = %g, want 30 (submitted + completed)", got)
	}
}

func TestRegistry_List_Filter(t *testing.T) {
	r := NewRegistry()
	mustAdd(t, r, "a", 10, 8)
	mustAdd(t, r, "b", 20, 8)
	mustStart(t, r, "b")

	pending := Pending
	got := r.List(&pending)
	if len(got) != 1 || got[0].ID != "a" {
		t.Errorf("List(pending) = %v, want [a]", ids(got))
	}

	inProgress := InProgress
	got = r.List(&inProgress)
	if len(got) != 1 || got[0].ID != "b" {
		t.Errorf("List(in_progress) = %v, want [b]", ids(got))
	}

	if got := r.List(nil); len(got) != 2 {
		t.Errorf("List(nil) returned %d tasks, want 2", len(got))
	}
}

func TestRegistry_Prioritized(t *testing.T) {
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	r := NewRegistry()
	fixedClock(t, r, base)

	// urgent: 90 PFT / 3h -> 3000; slow: 90 PFT / 30h -> 300; cheap: 3/3h -> 100.
	mustAdd(t, r, "urgent", 90, 3)
	mustAdd(t, r, "slow", 90, 30)
	mustAdd(t, r, "cheap", 3, 3)
	mustAdd(t, r, "taken", 500, 1)
	mustStart(t, r, "taken")

	got := r.Prioritized()
	want := []string{"urgent", "slow", "cheap"}
	if len(got) != len(want) {
		t.Fatalf("Prioritized() = %v, want %v", ids(got), want)
	}
	for i, id := range want {
		if got[i].ID != id {
			t.Errorf("Prioritized()[%d] = %s, want %s", i, got[i].ID, id)
		}
	}
	if got[0].Priority != 3000 {
		t.Errorf("urgent priority = %d, want 3000", got[0].Priority)
	}
}

func TestRegistry_Restore(t *testing.T) {
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	started := base.Add(time.Hour)
	r := NewRegistry()
	fixedClock(t, r, base.Add(2*time.Hour))

	err := r.Restore(Task{
		ID:             "T1",
		Description:    "restored",
		Reward:         25,
		EstimatedHours: 48,
		CreatedAt:      base,
		Deadline:       base.Add(48 * time.Hour),
		State:          InProgress,
		StartedAt:      &started,
	})
	if err != nil {
		t.Fatalf("restore: %v", err)
	}

	got, err := r.Get("T1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.State != InProgress {
		t.Errorf("state = %s, want in_progress", got.State)
	}
	if got.StartedAt == nil || !got.StartedAt.Equal(started) {
		t.Errorf("started_at = %v, want %v", got.StartedAt, started)
	}

	if err := r.Restore(Task{ID: "T1"}); !errors.Is(err, ErrDuplicateTask) {
		t.Errorf("restore duplicate error = %v, want ErrDuplicateTask", err)
	}
}

func TestParseState_RoundTrip(t *testing.T) {
	for _, s := range []State{Pending, InProgress, Completed, Submitted, Expired} {
		got, err := ParseState(s.String())
		if err != nil {
			t.Fatalf("parse %q: %v", s, err)
		}
		if got != s {
			t.Errorf("ParseState(%q) = %v, want %v", s.String(), got, s)
		}
	}
	if _, err := ParseState("bogus"); err == nil {
		t.Error("expected error for unknown state name")
	}
}

// --- helpers ---

func mustAdd(t *testing.T, r *Registry, id string, reward, hours float64) {
	t.Helper()
	if _, err := r.Add(id, "task "+id, reward, hours); err != nil {
		t.Fatalf("add %s: %v", id, err)
	}
}

func mustStart(t *testing.T, r *Registry, id string) {
	t.Helper()
	if _, err := r.Start(id); err != nil {
		t.Fatalf("start %s: %v", id, err)
	}
}

func ids(tasks []Task) []string {
	out := make([]string, len(tasks))
	for i, t := range tasks {
		out[i] = t.ID
	}
	return out
}
