package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ErrWaitTimeout is returned to a poller whose wait bound elapsed before
// the task became terminal. It says nothing about the task itself, which
// may still complete; the caller can retry the wait.
var ErrWaitTimeout = errors.New("wait timed out")

// StatusSnapshot is the non-blocking poll result: current status, the
// latest checkpoint, and the terminal payload if one exists.
type StatusSnapshot struct {
	TaskID   string          `json:"task_id"`
	Status   Status          `json:"status"`
	Progress *Checkpoint     `json:"progress,omitempty"`
	Result   json.RawMessage `json:"result,omitempty"`
	Error    *TaskError      `json:"error,omitempty"`
}

// Status returns an immediate snapshot of a task. Unknown ids fail with
// ErrNotFound.
func (s *Scheduler) Status(id string) (StatusSnapshot, error) {
	t, err := s.store.Get(id)
	if err != nil {
		return StatusSnapshot{}, err
	}
	return StatusSnapshot{
		TaskID:   t.ID,
		Status:   t.Status,
		Progress: t.LatestCheckpoint(),
		Result:   t.Result,
		Error:    t.Error,
	}, nil
}

// Wait blocks until the task reaches a terminal status or timeout elapses,
// whichever comes first. Already-terminal tasks return immediately
// regardless of timeout, and repeated waits return the identical terminal
// record. On timeout the caller gets ErrWaitTimeout, which is distinct
// from the task's own timed_out status.
func (s *Scheduler) Wait(ctx context.Context, id string, timeout time.Duration) (*Task, error) {
	done, err := s.store.Watch(id)
	if err != nil {
		return nil, err
	}

	// Already-terminal tasks return immediately, whatever the bound.
	select {
	case <-done:
		return s.store.Get(id)
	default:
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-done:
		return s.store.Get(id)
	case <-timer.C:
		return nil, fmt.Errorf("%w: task %s not terminal after %s", ErrWaitTimeout, id, timeout)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
