// Package tasks implements the long-running tool execution subsystem:
// task records, a concurrency-safe in-memory store, execution units,
// deadline enforcement, a polling/wait surface, and a throttled batch
// executor.
package tasks

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Status represents the lifecycle state of a task.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusTimedOut  Status = "timed_out"
)

// Terminal reports whether no further transitions are permitted from s.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusTimedOut
}

// statusRank orders statuses along the lifecycle. Transitions must move
// strictly forward.
func statusRank(s Status) int {
	switch s {
	case StatusPending:
		return 0
	case StatusRunning:
		return 1
	case StatusCompleted, StatusFailed, StatusTimedOut:
		return 2
	default:
		return -1
	}
}

// ErrorKind classifies task and invocation errors.
type ErrorKind string

const (
	KindValidation        ErrorKind = "validation"
	KindNotFound          ErrorKind = "not_found"
	KindInvalidTransition ErrorKind = "invalid_transition"
	KindCallerTimeout     ErrorKind = "caller_timeout"
	KindTaskTimedOut      ErrorKind = "task_timed_out"
	KindCancelled         ErrorKind = "cancelled"
	KindExecution         ErrorKind = "execution"
)

// TaskError is the structured terminal error carried by failed and
// timed-out tasks. It is reported to callers as data, not as a transport
// failure.
type TaskError struct {
	Kind    ErrorKind `json:"kind"`
	Message string    `json:"message"`
}

func (e *TaskError) Error() string {
	return string(e.Kind) + ": " + e.Message
}

// NewTaskError builds a TaskError from a kind and an underlying cause.
func NewTaskError(kind ErrorKind, err error) *TaskError {
	return &TaskError{Kind: kind, Message: err.Error()}
}

// Checkpoint is one progress entry appended during a task's running phase.
type Checkpoint struct {
	Step    int             `json:"step"`
	Payload json.RawMessage `json:"payload,omitempty"`
	Ts      time.Time       `json:"ts"`
}

// NewCheckpoint marshals an arbitrary payload into a checkpoint for step.
func NewCheckpoint(step int, payload any) Checkpoint {
	data, _ := json.Marshal(payload)
	return Checkpoint{Step: step, Payload: data, Ts: time.Now()}
}

// Task is one tracked invocation of a long-running operation.
//
// Result and Error are mutually exclusive and both unset until a terminal
// status is reached. Checkpoints are append-only and frozen once terminal.
type Task struct {
	ID          string          `json:"id"`
	Title       string          `json:"title,omitempty"`
	Status      Status          `json:"status"`
	Checkpoints []Checkpoint    `json:"checkpoints,omitempty"`
	Result      json.RawMessage `json:"result,omitempty"`
	Error       *TaskError      `json:"error,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
	StartedAt   *time.Time      `json:"started_at,omitempty"`
	CompletedAt *time.Time      `json:"completed_at,omitempty"`
	Deadline    *time.Time      `json:"deadline,omitempty"`
}

// Clone returns a deep copy so readers never alias store-owned state.
func (t *Task) Clone() *Task {
	c := *t
	if len(t.Checkpoints) > 0 {
		c.Checkpoints = make([]Checkpoint, len(t.Checkpoints))
		copy(c.Checkpoints, t.Checkpoints)
	}
	if len(t.Result) > 0 {
		c.Result = make(json.RawMessage, len(t.Result))
		copy(c.Result, t.Result)
	}
	if t.Error != nil {
		e := *t.Error
		c.Error = &e
	}
	if t.StartedAt != nil {
		ts := *t.StartedAt
		c.StartedAt = &ts
	}
	if t.CompletedAt != nil {
		ts := *t.CompletedAt
		c.CompletedAt = &ts
	}
	if t.Deadline != nil {
		ts := *t.Deadline
		c.Deadline = &ts
	}
	return &c
}

// LatestCheckpoint returns the most recent checkpoint, or nil if none.
func (t *Task) LatestCheckpoint() *Checkpoint {
	if len(t.Checkpoints) == 0 {
		return nil
	}
	return &t.Checkpoints[len(t.Checkpoints)-1]
}

// GenerateTaskID creates a unique task identifier.
func GenerateTaskID() string {
	u := uuid.New().String()
	return "task_" + strings.ReplaceAll(u[:8], "-", "")
}
