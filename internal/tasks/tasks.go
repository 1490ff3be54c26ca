// Package tasks implements the task lifecycle registry.
// Tasks move Pending -> InProgress -> Completed -> Submitted, earn PFT
// rewards, and expire lazily once their deadline passes.
package tasks

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"
)

// State is a task's lifecycle state.
type State int

const (
	Pending State = iota
	InProgress
	Completed
	Submitted
	Expired
)

// String returns the lowercase state name used in output and storage.
func (s State) String() string {
	switch s {
	case Pending:
		return "pending"
	case InProgress:
		return "in_progress"
	case Completed:
		return "completed"
	case Submitted:
		return "submitted"
	case Expired:
		return "expired"
	default:
		return "unknown"
	}
}

// ParseState parses a state name as produced by State.String.
func ParseState(s string) (State, error) {
	switch s {
	case "pending":
		return Pending, nil
	case "in_progress":
		return InProgress, nil
	case "completed":
		return Completed, nil
	case "submitted":
		return Submitted, nil
	case "expired":
		return Expired, nil
	default:
		return 0, fmt.Errorf("unknown task state: %q", s)
	}
}

// terminal reports whether no transition may leave the state.
func (s State) terminal() bool {
	return s == Submitted || s == Expired
}

// Sentinel errors returned by Registry operations. Callers match with
// errors.Is; messages carry the offending ID via wrapping.
var (
	ErrDuplicateTask     = errors.New("task already exists")
	ErrTaskNotFound      = errors.New("task not found")
	ErrInvalidTransition = errors.New("invalid task transition")
	ErrValidation        = errors.New("invalid task input")
)

// Task is a unit of paid work. Reward is denominated in PFT.
// Milestone timestamps are set exactly once by the owning Registry.
type Task struct {
	ID             string
	Description    string
	Reward         float64
	EstimatedHours float64
	CreatedAt      time.Time
	Deadline       time.Time
	State          State
	StartedAt      *time.Time
	CompletedAt    *time.Time
	SubmittedAt    *time.Time

	// Priority is a derived ranking score, populated only by Prioritized.
	Priority int
}

// Registry owns the id -> Task map and enforces lifecycle transitions.
// All read-modify-write sequences, including the lazy expiry check that
// precedes every transition, run under a single mutex.
type Registry struct {
	mu      sync.Mutex
	tasks   map[string]*Task
	nowFunc func() time.Time
}

// NewRegistry creates an empty task registry.
func NewRegistry() *Registry {
	return &Registry{
		tasks:   make(map[string]*Task),
		nowFunc: time.Now,
	}
}

// SetNowFunc overrides the registry clock. Used by tests to drive expiry.
func (r *Registry) SetNowFunc(now func() time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nowFunc = now
}

// Add creates a task in Pending with the deadline derived from the
// estimated effort. The ID is caller-assigned and must be unique.
func (r *Registry) Add(id, description string, reward, estimatedHours float64) (Task, error) {
	if id == "" {
		return Task{}, fmt.Errorf("%w: empty id", ErrValidation)
	}
	if reward < 0 {
		return Task{}, fmt.Errorf("%w: reward %g is negative", ErrValidation, reward)
	}
	if estimatedHours <= 0 {
		return Task{}, fmt.Errorf("%w: estimated hours %g must be positive", ErrValidation, estimatedHours)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.tasks[id]; ok {
		return Task{}, fmt.Errorf("%w: %s", ErrDuplicateTask, id)
	}

	now := r.nowFunc()
	t := &Task{
		ID:             id,
		Description:    description,
		Reward:         reward,
		EstimatedHours: estimatedHours,
		CreatedAt:      now,
		Deadline:       now.Add(time.Duration(estimatedHours * float64(time.Hour))),
		State:          Pending,
	}
	r.tasks[id] = t
	return *t, nil
}

// Get returns a task by ID after the lazy expiry check.
func (r *Registry) Get(id string) (Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.tasks[id]
	if !ok {
		return Task{}, fmt.Errorf("%w: %s", ErrTaskNotFound, id)
	}
	r.expireLocked(t)
	return *t, nil
}

// List returns all tasks, each re-evaluated for expiry first, sorted by
// creation time then ID. Pass a state to filter; pass nil for all.
func (r *Registry) List(filter *State) []Task {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Task, 0, len(r.tasks))
	for _, t := range r.tasks {
		r.expireLocked(t)
		if filter != nil && t.State != *filter {
			continue
		}
		out = append(out, *t)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Prioritized returns Pending tasks ranked by reward per hour remaining
// until deadline, highest first. Tasks at or past their deadline never
// appear: the expiry check runs before ranking.
func (r *Registry) Prioritized() []Task {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.nowFunc()
	out := make([]Task, 0, len(r.tasks))
	for _, t := range r.tasks {
		r.expireLocked(t)
		if t.State != Pending {
			continue
		}
		c := *t
		hoursLeft := c.Deadline.Sub(now).Hours()
		if hoursLeft > 0 {
			c.Priority = int(c.Reward / hoursLeft * 100)
		}
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority > out[j].Priority
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Start moves a Pending task to InProgress and stamps StartedAt.
func (r *Registry) Start(id string) (Task, error) {
	return r.transition(id, Pending, InProgress)
}

// Complete moves an InProgress task to Completed and stamps CompletedAt.
func (r *Registry) Complete(id string) (Task, error) {
	return r.transition(id, InProgress, Completed)
}

// Submit moves a Completed task to Submitted and stamps SubmittedAt.
func (r *Registry) Submit(id string) (Task, error) {
	return r.transition(id, Completed, Submitted)
}

// transition performs the shared expiry-check-then-advance sequence.
func (r *Registry) transition(id string, from, to State) (Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.tasks[id]
	if !ok {
		return Task{}, fmt.Errorf("%w: %s", ErrTaskNotFound, id)
	}
	r.expireLocked(t)

	if t.State.terminal() {
		return Task{}, fmt.Errorf("%w: task %s is %s", ErrInvalidTransition, id, t.State)
	}
	if t.State != from {
		return Task{}, fmt.Errorf("%w: task %s is %s, want %s", ErrInvalidTransition, id, t.State, from)
	}

	now := r.nowFunc()
	t.State = to
	switch to {
	case InProgress:
		t.StartedAt = &now
	case Completed:
		t.CompletedAt = &now
	case Submitted:
		t.SubmittedAt = &now
	}
	return *t, nil
}

// Earnings sums rewards over tasks currently Completed or Submitted.
// Recomputed on every call; the implicit re-scan also surfaces expiry.
func (r *Registry) Earnings() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()

	var total float64
	for _, t := range r.tasks {
		r.expireLocked(t)
		if t.State == Completed || t.State == Submitted {
			total += t.Reward
		}
	}
	return total
}

// Restore inserts a previously persisted task verbatim, preserving its
// state and milestone timestamps. Fails on duplicate ID without
// touching existing entries.
func (r *Registry) Restore(t Task) error {
	if t.ID == "" {
		return fmt.Errorf("%w: empty id", ErrValidation)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.tasks[t.ID]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateTask, t.ID)
	}
	c := t
	r.tasks[t.ID] = &c
	return nil
}

// expireLocked applies lazy expiry to a single task. Only Pending and
// InProgress tasks can expire; Completed work keeps its earnings and
// terminal states are never revisited. Must hold the registry lock.
func (r *Registry) expireLocked(t *Task) {
	if t.State != Pending && t.State != InProgress {
		return
	}
	if !r.nowFunc().Before(t.Deadline) {
		t.State = Expired
	}
}
