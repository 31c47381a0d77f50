package tasks

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/mjoubert/taskgate/internal/events"
)

// runningTask tracks an in-flight execution unit.
type runningTask struct {
	taskID string
	cancel context.CancelFunc
}

// StartOptions configures a single task launch.
type StartOptions struct {
	Title   string
	Timeout time.Duration // 0 = scheduler default; negative = no deadline
}

// SchedulerConfig holds dependencies for building a Scheduler.
type SchedulerConfig struct {
	Store          Store
	Bus            *events.Bus
	DefaultTimeout time.Duration // applied when StartOptions.Timeout == 0
}

// Scheduler creates task records, launches execution units, and enforces
// per-task deadlines. Deadline enforcement and unit completion race on the
// record; the store's forward-only transition rule decides the winner.
type Scheduler struct {
	store          Store
	bus            *events.Bus
	defaultTimeout time.Duration

	mu      sync.Mutex
	running map[string]*runningTask

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewScheduler creates a Scheduler.
func NewScheduler(cfg SchedulerConfig) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		store:          cfg.Store,
		bus:            cfg.Bus,
		defaultTimeout: cfg.DefaultTimeout,
		running:        make(map[string]*runningTask),
		ctx:            ctx,
		cancel:         cancel,
	}
}

// Store returns the underlying task store.
func (s *Scheduler) Store() Store { return s.store }

// Start creates a task record, transitions it to running, and launches an
// execution unit bound to it. It returns the task id immediately.
//
// Deadline policy: cancellation is cooperative. The unit's context is
// cancelled at the deadline and work observes it at suspension points; a
// watchdog forces the record to timed_out at the deadline so pollers never
// wait on a unit that has not noticed yet.
func (s *Scheduler) Start(work Work, opts StartOptions) (string, error) {
	timeout := opts.Timeout
	if timeout == 0 {
		timeout = s.defaultTimeout
	}

	var deadline *time.Time
	if timeout > 0 {
		d := time.Now().Add(timeout)
		deadline = &d
	}

	t, err := s.store.Create(opts.Title, deadline)
	if err != nil {
		return "", err
	}
	s.publish(events.TaskCreatedPayload{TaskID: t.ID, Title: t.Title})

	if _, err := s.store.Transition(t.ID, StatusRunning, nil, nil); err != nil {
		return "", err
	}
	s.publish(events.TaskStartedPayload{TaskID: t.ID, Title: t.Title})

	var taskCtx context.Context
	var taskCancel context.CancelFunc
	if deadline != nil {
		taskCtx, taskCancel = context.WithDeadline(s.ctx, *deadline)
	} else {
		taskCtx, taskCancel = context.WithCancel(s.ctx)
	}

	rt := &runningTask{taskID: t.ID, cancel: taskCancel}
	s.mu.Lock()
	s.running[t.ID] = rt
	s.mu.Unlock()

	done, err := s.store.Watch(t.ID)
	if err != nil {
		taskCancel()
		return "", err
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer func() {
			taskCancel()
			s.mu.Lock()
			delete(s.running, t.ID)
			s.mu.Unlock()
		}()
		NewRunner(t.ID, work, s.store, s.bus).Run(taskCtx)
	}()

	if deadline != nil {
		s.wg.Add(1)
		go s.watchdog(t.ID, taskCtx, done)
	}

	slog.Info("task started", "task_id", t.ID, "title", t.Title, "deadline", deadline)
	return t.ID, nil
}

// watchdog forces a non-terminal record to timed_out when its deadline
// elapses. The unit keeps its cancelled context and winds down on its own;
// its late terminal write is rejected by the store.
func (s *Scheduler) watchdog(taskID string, taskCtx context.Context, done <-chan struct{}) {
	defer s.wg.Done()

	select {
	case <-done:
		return
	case <-taskCtx.Done():
		if !errors.Is(taskCtx.Err(), context.DeadlineExceeded) {
			return
		}
	}

	terr := &TaskError{Kind: KindTaskTimedOut, Message: "task deadline exceeded"}
	t, err := s.store.Transition(taskID, StatusTimedOut, nil, terr)
	if err != nil {
		// The unit finished in the same instant the deadline fired.
		if !errors.Is(err, ErrInvalidTransition) {
			slog.Error("force timeout transition failed", "task_id", taskID, "error", err)
		}
		return
	}
	slog.Warn("task timed out", "task_id", taskID)
	s.publish(events.TaskFailedPayload{
		TaskID: t.ID,
		Title:  t.Title,
		Status: string(StatusTimedOut),
		Kind:   string(KindTaskTimedOut),
		Error:  terr.Message,
	})
}

// Cancel stops a running task. Terminal tasks are left untouched.
func (s *Scheduler) Cancel(taskID, reason string) error {
	t, err := s.store.Get(taskID)
	if err != nil {
		return err
	}
	if t.Status.Terminal() {
		return nil
	}

	if reason == "" {
		reason = "cancelled by caller"
	}
	if _, err := s.store.Transition(taskID, StatusFailed, nil, &TaskError{Kind: KindCancelled, Message: reason}); err != nil {
		if errors.Is(err, ErrInvalidTransition) {
			return nil // finished while we were cancelling
		}
		return err
	}

	s.mu.Lock()
	if rt, ok := s.running[taskID]; ok {
		rt.cancel()
	}
	s.mu.Unlock()

	s.publish(events.TaskFailedPayload{
		TaskID: taskID,
		Title:  t.Title,
		Status: string(StatusFailed),
		Kind:   string(KindCancelled),
		Error:  reason,
	})
	return nil
}

// Stop cancels all running units and waits for them to wind down.
func (s *Scheduler) Stop() {
	s.cancel()
	s.wg.Wait()
	slog.Info("task scheduler stopped")
}

func (s *Scheduler) publish(payload events.EventPayload) {
	if s.bus != nil {
		s.bus.Publish(events.NewTypedEvent(events.SourceTask, payload))
	}
}
