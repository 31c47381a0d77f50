package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/mjoubert/taskgate/internal/events"
	"github.com/mjoubert/taskgate/internal/registry"
	"github.com/mjoubert/taskgate/internal/tasks"
	"github.com/mjoubert/taskgate/internal/tools"
)

// waitForEvents polls the bus history until at least n events are present.
func waitForEvents(bus *events.Bus, n int) {
	for i := 0; i < 200; i++ {
		if len(bus.History(100)) >= n {
			return
		}
		runtime.Gosched()
		time.Sleep(time.Millisecond)
	}
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	bus := events.NewBus(64)
	t.Cleanup(func() { bus.Close() })

	sched := tasks.NewScheduler(tasks.SchedulerConfig{
		Store: tasks.NewMemStore(),
		Bus:   bus,
	})
	t.Cleanup(sched.Stop)

	users := registry.New(bus)
	toolReg := tools.NewRegistry(bus)
	return NewServer(bus, sched, users, toolReg, "localhost", 0)
}

func TestHandleHealth(t *testing.T) {
	srv := newTestServer(t)
	defer srv.hub.Close()

	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	w := httptest.NewRecorder()
	srv.httpServer.Handler.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}

	var body map[string]string
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["status"] != "ok" {
		t.Fatalf("expected status %q, got %q", "ok", body["status"])
	}
}

func TestHandleEvents_Empty(t *testing.T) {
	srv := newTestServer(t)
	defer srv.hub.Close()

	req := httptest.NewRequest(http.MethodGet, "/api/events", nil)
	w := httptest.NewRecorder()
	srv.httpServer.Handler.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}

	var body []any
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if len(body) != 0 {
		t.Fatalf("expected empty array, got %d items", len(body))
	}
}

func TestHandleEvents_WithHistory(t *testing.T) {
	srv := newTestServer(t)
	defer srv.hub.Close()

	srv.bus.Publish(events.NewEvent(events.EventTaskCreated, events.SourceTask, map[string]any{"task_id": "task_1"}))
	srv.bus.Publish(events.NewEvent(events.EventTaskStarted, events.SourceTask, map[string]any{"task_id": "task_1"}))

	waitForEvents(srv.bus, 2)

	req := httptest.NewRequest(http.MethodGet, "/api/events", nil)
	w := httptest.NewRecorder()
	srv.httpServer.Handler.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}

	var body []map[string]any
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if len(body) < 2 {
		t.Fatalf("expected at least 2 events, got %d", len(body))
	}
}

func TestHandleEvents_LimitParam(t *testing.T) {
	srv := newTestServer(t)
	defer srv.hub.Close()

	for i := 0; i < 10; i++ {
		srv.bus.Publish(events.NewEvent(events.EventTaskProgress, events.SourceTask, map[string]any{"i": i}))
	}

	waitForEvents(srv.bus, 10)

	req := httptest.NewRequest(http.MethodGet, "/api/events?limit=5", nil)
	w := httptest.NewRecorder()
	srv.httpServer.Handler.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}

	var body []map[string]any
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if len(body) != 5 {
		t.Fatalf("expected 5 events with limit=5, got %d", len(body))
	}
}

func TestHandleTasks_Empty(t *testing.T) {
	srv := newTestServer(t)
	defer srv.hub.Close()

	req := httptest.NewRequest(http.MethodGet, "/api/tasks", nil)
	w := httptest.NewRecorder()
	srv.httpServer.Handler.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}

	var body []any
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if len(body) != 0 {
		t.Fatalf("expected empty array, got %d items", len(body))
	}
}

func TestHandleTasks_WithRecords(t *testing.T) {
	srv := newTestServer(t)
	defer srv.hub.Close()

	store := srv.sched.Store()
	if _, err := store.Create("first", nil); err != nil {
		t.Fatalf("create task: %v", err)
	}
	if _, err := store.Create("second", nil); err != nil {
		t.Fatalf("create task: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/tasks", nil)
	w := httptest.NewRecorder()
	srv.httpServer.Handler.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}

	var body []map[string]any
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if len(body) != 2 {
		t.Fatalf("expected 2 tasks, got %d", len(body))
	}
}

func TestHandleTasks_StatusFilter(t *testing.T) {
	srv := newTestServer(t)
	defer srv.hub.Close()

	store := srv.sched.Store()
	pending, err := store.Create("stays pending", nil)
	if err != nil {
		t.Fatalf("create task: %v", err)
	}
	running, err := store.Create("goes running", nil)
	if err != nil {
		t.Fatalf("create task: %v", err)
	}
	if _, err := store.Transition(running.ID, tasks.StatusRunning, nil, nil); err != nil {
		t.Fatalf("transition: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/tasks?status=pending", nil)
	w := httptest.NewRecorder()
	srv.httpServer.Handler.ServeHTTP(w, req)

	var body []map[string]any
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if len(body) != 1 {
		t.Fatalf("expected 1 pending task, got %d", len(body))
	}
	if body[0]["id"] != pending.ID {
		t.Fatalf("expected task %q, got %v", pending.ID, body[0]["id"])
	}
}

func TestHandleTask_NotFound(t *testing.T) {
	srv := newTestServer(t)
	defer srv.hub.Close()

	req := httptest.NewRequest(http.MethodGet, "/api/tasks/task_missing", nil)
	w := httptest.NewRecorder()
	srv.httpServer.Handler.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", w.Code)
	}
}

func TestHandleCancelTask(t *testing.T) {
	srv := newTestServer(t)
	defer srv.hub.Close()

	blocked := make(chan struct{})
	t.Cleanup(func() { close(blocked) })
	id, err := srv.sched.Start(func(ctx context.Context, progress tasks.ProgressFunc) (json.RawMessage, error) {
		select {
		case <-blocked:
		case <-ctx.Done():
		}
		return nil, ctx.Err()
	}, tasks.StartOptions{Title: "cancel me"})
	if err != nil {
		t.Fatalf("start task: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/tasks/"+id+"/cancel", strings.NewReader(`{"reason":"test"}`))
	w := httptest.NewRecorder()
	srv.httpServer.Handler.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", w.Code, w.Body.String())
	}

	task, err := srv.sched.Store().Get(id)
	if err != nil {
		t.Fatalf("get task: %v", err)
	}
	if task.Status != tasks.StatusFailed {
		t.Fatalf("expected status %q after cancel, got %q", tasks.StatusFailed, task.Status)
	}
}

func TestHandleUsers(t *testing.T) {
	srv := newTestServer(t)
	defer srv.hub.Close()

	if _, err := srv.users.Create(registry.CreateUserInput{Name: "Ada", Email: "ada@example.com", Role: "admin"}); err != nil {
		t.Fatalf("create user: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/users", nil)
	w := httptest.NewRecorder()
	srv.httpServer.Handler.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}

	var body []map[string]any
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if len(body) != 1 {
		t.Fatalf("expected 1 user, got %d", len(body))
	}
	if body[0]["name"] != "Ada" {
		t.Fatalf("expected name %q, got %v", "Ada", body[0]["name"])
	}
}
