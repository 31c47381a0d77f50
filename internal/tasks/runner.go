package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/mjoubert/taskgate/internal/events"
)

// ProgressFunc reports a progress checkpoint for the running task. It
// returns an error when the record no longer accepts progress (terminal,
// e.g. after a forced timeout), which a cooperative work function should
// treat as a stop signal.
type ProgressFunc func(step int, payload any) error

// Work is one opaque long-running operation. It may suspend at I/O points;
// each suspension point should also observe ctx for cancellation and
// deadline. The returned payload becomes the task result.
type Work func(ctx context.Context, progress ProgressFunc) (json.RawMessage, error)

// Runner is the execution unit for a single task: it runs one Work to a
// terminal transition on the store, whatever happens. An unhandled panic
// becomes a Failed record rather than a task stuck in running.
type Runner struct {
	taskID string
	work   Work
	store  Store
	bus    *events.Bus
}

// NewRunner binds a work function to the task record it reports into.
func NewRunner(taskID string, work Work, store Store, bus *events.Bus) *Runner {
	return &Runner{taskID: taskID, work: work, store: store, bus: bus}
}

// Run executes the work function and writes the terminal status.
//
// When the task deadline elapses first, the scheduler's watchdog has
// already forced the record to timed_out; the unit's own terminal
// transition then loses the race and is dropped. That rejection is the
// one expected ErrInvalidTransition in normal operation.
func (r *Runner) Run(ctx context.Context) {
	defer func() {
		if rec := recover(); rec != nil {
			r.finishErr(StatusFailed, &TaskError{
				Kind:    KindExecution,
				Message: fmt.Sprintf("panic: %v", rec),
			})
		}
	}()

	result, err := r.work(ctx, r.progress)

	switch {
	case err == nil && ctx.Err() == nil:
		r.finishOK(result)
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		r.finishErr(StatusTimedOut, &TaskError{Kind: KindTaskTimedOut, Message: "task deadline exceeded"})
	case ctx.Err() != nil:
		r.finishErr(StatusFailed, &TaskError{Kind: KindCancelled, Message: "task cancelled"})
	default:
		r.finishErr(StatusFailed, NewTaskError(KindExecution, err))
	}
}

// progress appends a checkpoint and publishes it on the bus.
func (r *Runner) progress(step int, payload any) error {
	cp := NewCheckpoint(step, payload)
	if err := r.store.AppendCheckpoint(r.taskID, cp); err != nil {
		return err
	}
	r.publish(events.TaskProgressPayload{
		TaskID:  r.taskID,
		Step:    step,
		Payload: cp.Payload,
	})
	return nil
}

func (r *Runner) finishOK(result json.RawMessage) {
	t, err := r.store.Transition(r.taskID, StatusCompleted, result, nil)
	if err != nil {
		r.dropLateTransition(StatusCompleted, err)
		return
	}
	slog.Info("task completed", "task_id", r.taskID)
	r.publish(events.TaskCompletedPayload{TaskID: t.ID, Title: t.Title})
}

func (r *Runner) finishErr(to Status, terr *TaskError) {
	t, err := r.store.Transition(r.taskID, to, nil, terr)
	if err != nil {
		r.dropLateTransition(to, err)
		return
	}
	slog.Warn("task finished with error", "task_id", r.taskID, "status", to, "kind", terr.Kind, "error", terr.Message)
	r.publish(events.TaskFailedPayload{
		TaskID: t.ID,
		Title:  t.Title,
		Status: string(to),
		Kind:   string(terr.Kind),
		Error:  terr.Message,
	})
}

// dropLateTransition handles the expected losing side of the
// deadline/completion race; anything else is surfaced loudly.
func (r *Runner) dropLateTransition(to Status, err error) {
	if errors.Is(err, ErrInvalidTransition) {
		slog.Debug("late terminal transition dropped", "task_id", r.taskID, "to", to)
		return
	}
	slog.Error("task terminal transition failed", "task_id", r.taskID, "to", to, "error", err)
}

func (r *Runner) publish(payload events.EventPayload) {
	if r.bus != nil {
		r.bus.Publish(events.NewTypedEvent(events.SourceTask, payload))
	}
}
