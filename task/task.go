package task

import (
	"errors"
	"fmt"
	"maps"
	"sort"
	"time"
)

// Common errors
var (
	ErrNotFound          = errors.New("task not found")
	ErrInvalidTransition = errors.New("invalid task status transition")
	ErrStoreClosed       = errors.New("store is closed")
	ErrInvalidInput      = errors.New("invalid input")
)

// Kind is the media kind a task produces.
type Kind string

const (
	KindVideo  Kind = "video"
	KindMusic  Kind = "music"
	KindSpeech Kind = "speech"
)

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	switch k {
	case KindVideo, KindMusic, KindSpeech:
		return true
	}
	return false
}

// Status is the lifecycle state of a generation task.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// IsTerminal reports whether no further transitions are allowed.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

func (s Status) rank() int {
	switch s {
	case StatusPending:
		return 0
	case StatusProcessing:
		return 1
	case StatusCompleted, StatusFailed:
		return 2
	}
	return -1
}

// CanTransitionTo reports whether a task in status s may move to next.
// Status only moves forward; terminal states are final.
func (s Status) CanTransitionTo(next Status) bool {
	if s.rank() < 0 || next.rank() < 0 || s.IsTerminal() {
		return false
	}
	return next.rank() >= s.rank()
}

// Task is a single generation request tracked through its lifecycle.
type Task struct {
	ID          string            `json:"id"`
	Kind        Kind              `json:"kind"`
	Provider    string            `json:"provider"`
	Model       string            `json:"model,omitempty"`
	Prompt      string            `json:"prompt,omitempty"`
	Inputs      map[string]string `json:"inputs,omitempty"`
	Status      Status            `json:"status"`
	Progress    int               `json:"progress"`
	Error       string            `json:"error,omitempty"`
	OutputRef   string            `json:"output_ref,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
	CompletedAt *time.Time        `json:"completed_at,omitempty"`
}

// Clone returns a deep copy of the task.
func (t *Task) Clone() *Task {
	if t == nil {
		return nil
	}
	c := *t
	c.Inputs = maps.Clone(t.Inputs)
	c.Metadata = maps.Clone(t.Metadata)
	if t.CompletedAt != nil {
		ts := *t.CompletedAt
		c.CompletedAt = &ts
	}
	return &c
}

// Input describes a task to create.
type Input struct {
	Kind     Kind
	Provider string
	Model    string
	Prompt   string
	Inputs   map[string]string
	Metadata map[string]string
}

// Update is a partial mutation. Nil fields are left unchanged and Metadata
// entries are merged.
type Update struct {
	Status    *Status
	Progress  *int
	Error     *string
	OutputRef *string
	Metadata  map[string]string
}

// SetStatus returns an update that moves the task to s.
func SetStatus(s Status) Update {
	return Update{Status: &s}
}

// SetProgress returns an update that records a progress percentage.
func SetProgress(pct int) Update {
	return Update{Progress: &pct}
}

// Complete returns an update marking the task completed with its output.
func Complete(outputRef string) Update {
	s := StatusCompleted
	pct := 100
	return Update{Status: &s, Progress: &pct, OutputRef: &outputRef}
}

// Fail returns an update marking the task failed with msg recorded verbatim.
func Fail(msg string) Update {
	s := StatusFailed
	return Update{Status: &s, Error: &msg}
}

// Filter selects tasks for List.
type Filter struct {
	Kind     Kind
	Status   Status
	Provider string
	Limit    int
	Offset   int
}

func newTask(id string, in Input, now time.Time) (*Task, error) {
	if !in.Kind.Valid() {
		return nil, fmt.Errorf("%w: unknown kind %q", ErrInvalidInput, in.Kind)
	}
	if in.Provider == "" {
		return nil, fmt.Errorf("%w: provider is required", ErrInvalidInput)
	}
	return &Task{
		ID:        id,
		Kind:      in.Kind,
		Provider:  in.Provider,
		Model:     in.Model,
		Prompt:    in.Prompt,
		Inputs:    maps.Clone(in.Inputs),
		Metadata:  maps.Clone(in.Metadata),
		Status:    StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// applyUpdate merges u into t. It is the single mutation path shared by all
// backends so the transition rules hold everywhere.
func applyUpdate(t *Task, u Update, now time.Time) error {
	if t.Status.IsTerminal() {
		return fmt.Errorf("%w: task %s is already %s", ErrInvalidTransition, t.ID, t.Status)
	}
	if u.Status != nil {
		if !t.Status.CanTransitionTo(*u.Status) {
			return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, t.Status, *u.Status)
		}
		t.Status = *u.Status
		if t.Status.IsTerminal() {
			ts := now
			t.CompletedAt = &ts
		}
	}
	if u.Progress != nil {
		t.Progress = clampProgress(*u.Progress)
	}
	if u.Error != nil {
		t.Error = *u.Error
	}
	if u.OutputRef != nil {
		t.OutputRef = *u.OutputRef
	}
	if len(u.Metadata) > 0 {
		if t.Metadata == nil {
			t.Metadata = make(map[string]string, len(u.Metadata))
		}
		maps.Copy(t.Metadata, u.Metadata)
	}
	t.UpdatedAt = now
	return nil
}

func clampProgress(p int) int {
	return max(0, min(100, p))
}

func (f Filter) matches(t *Task) bool {
	if f.Kind != "" && t.Kind != f.Kind {
		return false
	}
	if f.Status != "" && t.Status != f.Status {
		return false
	}
	if f.Provider != "" && t.Provider != f.Provider {
		return false
	}
	return true
}

// selectTasks filters, orders newest first and pages the given tasks.
func selectTasks(all []*Task, f Filter) []*Task {
	result := make([]*Task, 0, len(all))
	for _, t := range all {
		if f.matches(t) {
			result = append(result, t)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].ID < result[j].ID
		}
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})

	if f.Offset > 0 {
		if f.Offset >= len(result) {
			return []*Task{}
		}
		result = result[f.Offset:]
	}
	if f.Limit > 0 && f.Limit < len(result) {
		result = result[:f.Limit]
	}
	return result
}
