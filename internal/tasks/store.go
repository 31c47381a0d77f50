package tasks

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"
)

var (
	// ErrNotFound is returned when no task exists for an id.
	ErrNotFound = errors.New("task not found")
	// ErrInvalidTransition is returned when a status change or checkpoint
	// append would violate the lifecycle invariant. Outside the expected
	// deadline/completion race this indicates a bug in the caller.
	ErrInvalidTransition = errors.New("invalid task transition")
)

// ListFilter defines criteria for filtering task lists.
type ListFilter struct {
	Status Status `json:"status,omitempty"`
}

// Store is the keyed task record store. All mutations go through it;
// execution units and the scheduler never hold a private mutable copy.
type Store interface {
	Create(title string, deadline *time.Time) (*Task, error)
	Get(id string) (*Task, error)
	List(filter ListFilter) ([]*Task, error)
	Transition(id string, to Status, result []byte, terr *TaskError) (*Task, error)
	AppendCheckpoint(id string, cp Checkpoint) error
	Watch(id string) (<-chan struct{}, error)
	Delete(id string) error
}

// record pairs a task with its own lock and completion signal, so unrelated
// tasks never contend with each other.
type record struct {
	mu   sync.Mutex
	task Task
	done chan struct{} // closed when the task reaches a terminal status
}

// MemStore is an in-memory Store: a locked map of per-record actors.
// Reads return deep copies, so a caller can never observe a record
// mid-mutation or mutate store-owned state.
type MemStore struct {
	mu      sync.RWMutex
	records map[string]*record
}

// NewMemStore creates an empty MemStore.
func NewMemStore() *MemStore {
	return &MemStore{records: make(map[string]*record)}
}

// Create allocates a new pending task and returns a snapshot of it.
// The id is observable by Get/Transition only after Create returns.
func (s *MemStore) Create(title string, deadline *time.Time) (*Task, error) {
	now := time.Now()
	t := Task{
		ID:        GenerateTaskID(),
		Title:     title,
		Status:    StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if deadline != nil {
		d := *deadline
		t.Deadline = &d
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.records[t.ID]; exists {
		return nil, fmt.Errorf("duplicate task id %s", t.ID)
	}
	s.records[t.ID] = &record{task: t, done: make(chan struct{})}
	return t.Clone(), nil
}

// lookup fetches the record for id under the map lock.
func (s *MemStore) lookup(id string) (*record, error) {
	s.mu.RLock()
	rec, ok := s.records[id]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return rec, nil
}

// Get returns a snapshot of the task.
func (s *MemStore) Get(id string) (*Task, error) {
	rec, err := s.lookup(id)
	if err != nil {
		return nil, err
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	return rec.task.Clone(), nil
}

// List returns snapshots of tasks matching the filter, newest first.
func (s *MemStore) List(filter ListFilter) ([]*Task, error) {
	s.mu.RLock()
	recs := make([]*record, 0, len(s.records))
	for _, rec := range s.records {
		recs = append(recs, rec)
	}
	s.mu.RUnlock()

	var out []*Task
	for _, rec := range recs {
		rec.mu.Lock()
		if filter.Status == "" || rec.task.Status == filter.Status {
			out = append(out, rec.task.Clone())
		}
		rec.mu.Unlock()
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

// Transition applies a status change. Transitions must move strictly
// forward along pending → running → terminal; anything else is rejected
// with ErrInvalidTransition. Exactly one of result (for StatusCompleted)
// and terr (for StatusFailed/StatusTimedOut) may be set.
func (s *MemStore) Transition(id string, to Status, result []byte, terr *TaskError) (*Task, error) {
	rec, err := s.lookup(id)
	if err != nil {
		return nil, err
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()

	from := rec.task.Status
	if statusRank(to) <= statusRank(from) {
		return nil, fmt.Errorf("%w: %s → %s (task %s)", ErrInvalidTransition, from, to, id)
	}

	now := time.Now()
	rec.task.Status = to
	rec.task.UpdatedAt = now

	switch {
	case to == StatusRunning:
		rec.task.StartedAt = &now
	case to.Terminal():
		rec.task.CompletedAt = &now
		if to == StatusCompleted {
			rec.task.Result = append([]byte(nil), result...)
		} else {
			if terr == nil {
				terr = &TaskError{Kind: KindExecution, Message: "unspecified failure"}
			}
			e := *terr
			rec.task.Error = &e
		}
		close(rec.done)
	}

	return rec.task.Clone(), nil
}

// AppendCheckpoint appends a progress entry. Only running tasks accept
// checkpoints; pending and terminal records reject them.
func (s *MemStore) AppendCheckpoint(id string, cp Checkpoint) error {
	rec, err := s.lookup(id)
	if err != nil {
		return err
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()

	if rec.task.Status != StatusRunning {
		return fmt.Errorf("%w: checkpoint on %s task %s", ErrInvalidTransition, rec.task.Status, id)
	}
	if cp.Ts.IsZero() {
		cp.Ts = time.Now()
	}
	rec.task.Checkpoints = append(rec.task.Checkpoints, cp)
	rec.task.UpdatedAt = cp.Ts
	return nil
}

// Watch returns a channel closed when the task reaches a terminal status.
// For already-terminal tasks the channel is closed on return.
func (s *MemStore) Watch(id string) (<-chan struct{}, error) {
	rec, err := s.lookup(id)
	if err != nil {
		return nil, err
	}
	return rec.done, nil
}

// Delete removes a record. Subsequent Gets fail with ErrNotFound.
func (s *MemStore) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[id]; !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	delete(s.records, id)
	return nil
}

var _ Store = (*MemStore)(nil)
