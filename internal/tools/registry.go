package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/mjoubert/taskgate/internal/events"
	"github.com/mjoubert/taskgate/internal/tasks"
)

// Registry holds the named tool set exposed over every transport.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]*Tool
	bus   *events.Bus
}

// NewRegistry creates an empty tool registry. bus may be nil.
func NewRegistry(bus *events.Bus) *Registry {
	return &Registry{tools: make(map[string]*Tool), bus: bus}
}

// Register adds a tool. Duplicate names are a wiring bug.
func (r *Registry) Register(t *Tool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[t.Spec.Name]; exists {
		return fmt.Errorf("duplicate tool %q", t.Spec.Name)
	}
	r.tools[t.Spec.Name] = t
	return nil
}

// Names returns all registered tool names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Spec returns a tool's manifest, or nil if unknown.
func (r *Registry) Spec(name string) *ToolSpec {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if t, ok := r.tools[name]; ok {
		spec := t.Spec
		return &spec
	}
	return nil
}

// Invoke runs a named tool and wraps the outcome in the result envelope.
// The envelope is always well-formed: unknown tools, handler errors, and
// wait timeouts all come back as data.
func (r *Registry) Invoke(ctx context.Context, name string, args json.RawMessage) Invocation {
	started := time.Now()

	r.mu.RLock()
	t, ok := r.tools[name]
	r.mu.RUnlock()

	if !ok {
		return r.finish(name, started, Invocation{
			Status: StatusError,
			Error:  &tasks.TaskError{Kind: tasks.KindNotFound, Message: fmt.Sprintf("unknown tool %q", name)},
		})
	}

	r.publish(events.ToolCallPayload{Status: events.ToolStatusStarted, Name: name})

	out, err := t.Handler(ctx, args)
	if err != nil {
		terr := classifyErr(err)
		status := StatusError
		if terr.Kind == tasks.KindCallerTimeout {
			status = StatusTimeout
		}
		return r.finish(name, started, Invocation{Status: status, Error: terr})
	}

	status := StatusSuccess
	if p, isPending := out.(Pending); isPending {
		status = StatusPending
		out = p.Result
	}

	data, err := json.Marshal(out)
	if err != nil {
		return r.finish(name, started, Invocation{
			Status: StatusError,
			Error:  &tasks.TaskError{Kind: tasks.KindExecution, Message: "marshal result: " + err.Error()},
		})
	}

	return r.finish(name, started, Invocation{Status: status, Result: data})
}

// finish stamps duration/timestamp and publishes the tool.call event.
func (r *Registry) finish(name string, started time.Time, inv Invocation) Invocation {
	inv.DurationSeconds = time.Since(started).Seconds()
	inv.Timestamp = time.Now()

	payload := events.ToolCallPayload{
		Status:          events.ToolStatusCompleted,
		Name:            name,
		DurationSeconds: inv.DurationSeconds,
	}
	if inv.Error != nil {
		payload.Status = events.ToolStatusFailed
		payload.Error = inv.Error.Message
		slog.Debug("tool call failed", "tool", name, "kind", inv.Error.Kind, "error", inv.Error.Message)
	}
	r.publish(payload)
	return inv
}

func (r *Registry) publish(payload events.EventPayload) {
	if r.bus != nil {
		r.bus.Publish(events.NewTypedEvent(events.SourceTool, payload))
	}
}
