package tasks

import (
	"bytes"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"
)

func TestCreateAndGet(t *testing.T) {
	s := NewMemStore()

	created, err := s.Create("index rebuild", nil)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if created.ID == "" {
		t.Fatal("expected non-empty id")
	}
	if created.Status != StatusPending {
		t.Fatalf("expected status %q, got %q", StatusPending, created.Status)
	}
	if created.Result != nil || created.Error != nil {
		t.Fatal("result and error must be unset on a fresh record")
	}

	got, err := s.Get(created.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.ID != created.ID || got.Title != "index rebuild" {
		t.Fatalf("got %+v", got)
	}
}

func TestGetNotFound(t *testing.T) {
	s := NewMemStore()
	_, err := s.Get("task_missing")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestConcurrentCreatesDistinctIDs(t *testing.T) {
	s := NewMemStore()

	const n = 50
	ids := make(chan string, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			task, err := s.Create(fmt.Sprintf("task %d", i), nil)
			if err != nil {
				t.Errorf("Create: %v", err)
				return
			}
			ids <- task.ID
		}(i)
	}
	wg.Wait()
	close(ids)

	seen := make(map[string]bool)
	for id := range ids {
		if seen[id] {
			t.Fatalf("duplicate id %s", id)
		}
		seen[id] = true
	}
	if len(seen) != n {
		t.Fatalf("expected %d records, got %d", n, len(seen))
	}

	list, err := s.List(ListFilter{})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(list) != n {
		t.Fatalf("expected %d listed, got %d", n, len(list))
	}
}

func TestTransitionForwardOnly(t *testing.T) {
	s := NewMemStore()
	task, _ := s.Create("lifecycle", nil)

	if _, err := s.Transition(task.ID, StatusRunning, nil, nil); err != nil {
		t.Fatalf("pending to running: %v", err)
	}

	// Backwards is rejected.
	if _, err := s.Transition(task.ID, StatusPending, nil, nil); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition going backwards, got %v", err)
	}

	if _, err := s.Transition(task.ID, StatusCompleted, []byte(`{"ok":true}`), nil); err != nil {
		t.Fatalf("running to completed: %v", err)
	}

	// Terminal is final: no transition out, not even to another terminal.
	for _, to := range []Status{StatusRunning, StatusFailed, StatusTimedOut, StatusCompleted} {
		if _, err := s.Transition(task.ID, to, nil, nil); !errors.Is(err, ErrInvalidTransition) {
			t.Fatalf("expected ErrInvalidTransition for completed to %s, got %v", to, err)
		}
	}
}

func TestTransitionResultErrorExclusive(t *testing.T) {
	s := NewMemStore()

	completed, _ := s.Create("ok", nil)
	s.Transition(completed.ID, StatusRunning, nil, nil)
	got, err := s.Transition(completed.ID, StatusCompleted, []byte(`{"n":1}`), nil)
	if err != nil {
		t.Fatalf("Transition: %v", err)
	}
	if got.Result == nil || got.Error != nil {
		t.Fatalf("completed record must carry result only, got %+v", got)
	}

	failed, _ := s.Create("boom", nil)
	s.Transition(failed.ID, StatusRunning, nil, nil)
	got, err = s.Transition(failed.ID, StatusFailed, nil, &TaskError{Kind: KindExecution, Message: "boom"})
	if err != nil {
		t.Fatalf("Transition: %v", err)
	}
	if got.Result != nil || got.Error == nil {
		t.Fatalf("failed record must carry error only, got %+v", got)
	}
	if got.Error.Kind != KindExecution {
		t.Fatalf("got kind %q", got.Error.Kind)
	}
}

func TestIdempotentTerminalReads(t *testing.T) {
	s := NewMemStore()
	task, _ := s.Create("stable", nil)
	s.Transition(task.ID, StatusRunning, nil, nil)
	s.Transition(task.ID, StatusCompleted, []byte(`{"answer":42}`), nil)

	first, err := s.Get(task.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	for i := 0; i < 10; i++ {
		again, err := s.Get(task.ID)
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if again.Status != first.Status {
			t.Fatalf("status changed between reads: %s vs %s", first.Status, again.Status)
		}
		if !bytes.Equal(again.Result, first.Result) {
			t.Fatalf("result changed between reads: %s vs %s", first.Result, again.Result)
		}
		if !again.UpdatedAt.Equal(first.UpdatedAt) {
			t.Fatal("updated_at changed between reads of a terminal record")
		}
	}
}

func TestCheckpointsOnlyWhileRunning(t *testing.T) {
	s := NewMemStore()
	task, _ := s.Create("steps", nil)

	// Pending records reject checkpoints.
	if err := s.AppendCheckpoint(task.ID, NewCheckpoint(1, "early")); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition on pending, got %v", err)
	}

	s.Transition(task.ID, StatusRunning, nil, nil)
	for i := 1; i <= 3; i++ {
		if err := s.AppendCheckpoint(task.ID, NewCheckpoint(i, map[string]int{"step": i})); err != nil {
			t.Fatalf("AppendCheckpoint %d: %v", i, err)
		}
	}

	got, _ := s.Get(task.ID)
	if len(got.Checkpoints) != 3 {
		t.Fatalf("expected 3 checkpoints, got %d", len(got.Checkpoints))
	}
	// Append-only ordering.
	for i, cp := range got.Checkpoints {
		if cp.Step != i+1 {
			t.Fatalf("checkpoint %d has step %d", i, cp.Step)
		}
	}

	s.Transition(task.ID, StatusCompleted, nil, nil)

	// Terminal records are frozen.
	if err := s.AppendCheckpoint(task.ID, NewCheckpoint(4, "late")); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition on terminal, got %v", err)
	}
	after, _ := s.Get(task.ID)
	if len(after.Checkpoints) != 3 {
		t.Fatalf("terminal checkpoint list changed: %d entries", len(after.Checkpoints))
	}
}

func TestListStatusFilter(t *testing.T) {
	s := NewMemStore()
	a, _ := s.Create("a", nil)
	b, _ := s.Create("b", nil)
	s.Create("c", nil)

	s.Transition(a.ID, StatusRunning, nil, nil)
	s.Transition(b.ID, StatusRunning, nil, nil)
	s.Transition(b.ID, StatusFailed, nil, &TaskError{Kind: KindExecution, Message: "x"})

	running, _ := s.List(ListFilter{Status: StatusRunning})
	if len(running) != 1 || running[0].ID != a.ID {
		t.Fatalf("running filter: got %d entries", len(running))
	}

	failed, _ := s.List(ListFilter{Status: StatusFailed})
	if len(failed) != 1 || failed[0].ID != b.ID {
		t.Fatalf("failed filter: got %d entries", len(failed))
	}

	all, _ := s.List(ListFilter{})
	if len(all) != 3 {
		t.Fatalf("expected 3 tasks, got %d", len(all))
	}
}

func TestWatchClosedOnTerminal(t *testing.T) {
	s := NewMemStore()
	task, _ := s.Create("watched", nil)

	done, err := s.Watch(task.ID)
	if err != nil {
		t.Fatalf("Watch: %v", err)
	}

	select {
	case <-done:
		t.Fatal("done closed before terminal transition")
	default:
	}

	s.Transition(task.ID, StatusRunning, nil, nil)
	s.Transition(task.ID, StatusCompleted, nil, nil)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("done not closed after terminal transition")
	}
}

func TestDelete(t *testing.T) {
	s := NewMemStore()
	task, _ := s.Create("gone", nil)

	if err := s.Delete(task.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := s.Get(task.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
	if err := s.Delete(task.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound on double delete, got %v", err)
	}
}

func TestSnapshotsDoNotAliasStoreState(t *testing.T) {
	s := NewMemStore()
	task, _ := s.Create("aliasing", nil)
	s.Transition(task.ID, StatusRunning, nil, nil)
	s.AppendCheckpoint(task.ID, NewCheckpoint(1, "one"))

	snap, _ := s.Get(task.ID)
	snap.Title = "mutated"
	snap.Checkpoints[0].Step = 99

	again, _ := s.Get(task.ID)
	if again.Title != "aliasing" {
		t.Fatal("snapshot mutation leaked into store title")
	}
	if again.Checkpoints[0].Step != 1 {
		t.Fatal("snapshot mutation leaked into store checkpoints")
	}
}
