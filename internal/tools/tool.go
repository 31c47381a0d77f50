// Package tools defines the tool invocation boundary: named tools with
// parameter manifests, a registry, and the uniform result envelope every
// transport (MCP, WS, HTTP) carries back to callers.
package tools

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/mjoubert/taskgate/internal/registry"
	"github.com/mjoubert/taskgate/internal/tasks"
)

// ParamSpec describes one named argument of a tool.
type ParamSpec struct {
	Type        string   `json:"type"`
	Description string   `json:"description"`
	Required    bool     `json:"required,omitempty"`
	Enum        []string `json:"enum,omitempty"`
	Default     any      `json:"default,omitempty"`
}

// ToolSpec is the manifest for a single tool.
type ToolSpec struct {
	Name        string               `json:"name"`
	Description string               `json:"description"`
	Parameters  map[string]ParamSpec `json:"parameters,omitempty"`
}

// Handler executes a tool call. Args is the raw named-argument mapping.
// Returning a Pending value marks the envelope as pending instead of
// success.
type Handler func(ctx context.Context, args json.RawMessage) (any, error)

// Tool pairs a manifest with its handler.
type Tool struct {
	Spec    ToolSpec
	Handler Handler
}

// Pending wraps a handler result for operations that were accepted but
// have not completed, such as starting a long-running task.
type Pending struct {
	Result any
}

// InvocationStatus is the coarse outcome of one tool call.
type InvocationStatus string

const (
	StatusSuccess InvocationStatus = "success"
	StatusError   InvocationStatus = "error"
	StatusPending InvocationStatus = "pending"
	StatusTimeout InvocationStatus = "timeout"
)

// Invocation is the structured result of one tool call. Task failures
// travel inside Result as data; Error is set only when the call itself
// could not produce a result.
type Invocation struct {
	Status          InvocationStatus `json:"status"`
	Result          json.RawMessage  `json:"result,omitempty"`
	Error           *tasks.TaskError `json:"error,omitempty"`
	DurationSeconds float64          `json:"duration_seconds"`
	Timestamp       time.Time        `json:"timestamp"`
}

// classifyErr maps domain errors onto the envelope's error kinds.
func classifyErr(err error) *tasks.TaskError {
	var terr *tasks.TaskError
	if errors.As(err, &terr) {
		return terr
	}

	kind := tasks.KindExecution
	switch {
	case errors.Is(err, registry.ErrInvalidInput):
		kind = tasks.KindValidation
	case errors.Is(err, registry.ErrUserNotFound), errors.Is(err, tasks.ErrNotFound):
		kind = tasks.KindNotFound
	case errors.Is(err, tasks.ErrWaitTimeout):
		kind = tasks.KindCallerTimeout
	case errors.Is(err, tasks.ErrInvalidTransition):
		kind = tasks.KindInvalidTransition
	}
	return &tasks.TaskError{Kind: kind, Message: err.Error()}
}
