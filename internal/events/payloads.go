package events

import (
	"encoding/json"
	"time"
)

// EventPayload is the interface all typed payloads implement.
type EventPayload interface {
	EventType() EventType
}

// =============================================================================
// TASK EVENTS
// =============================================================================

type TaskCreatedPayload struct {
	TaskID string `json:"task_id"`
	Title  string `json:"title,omitempty"`
}

func (TaskCreatedPayload) EventType() EventType { return EventTaskCreated }

type TaskStartedPayload struct {
	TaskID string `json:"task_id"`
	Title  string `json:"title,omitempty"`
}

func (TaskStartedPayload) EventType() EventType { return EventTaskStarted }

type TaskProgressPayload struct {
	TaskID  string          `json:"task_id"`
	Step    int             `json:"step"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

func (TaskProgressPayload) EventType() EventType { return EventTaskProgress }

type TaskCompletedPayload struct {
	TaskID string `json:"task_id"`
	Title  string `json:"title,omitempty"`
}

func (TaskCompletedPayload) EventType() EventType { return EventTaskCompleted }

// TaskFailedPayload covers both failed and timed-out terminal states; the
// Status field distinguishes them.
type TaskFailedPayload struct {
	TaskID string `json:"task_id"`
	Title  string `json:"title,omitempty"`
	Status string `json:"status"`
	Kind   string `json:"kind"`
	Error  string `json:"error"`
}

func (TaskFailedPayload) EventType() EventType { return EventTaskFailed }

// =============================================================================
// BATCH EVENTS
// =============================================================================

type BatchCompletedPayload struct {
	Items           int     `json:"items"`
	SuccessfulCount int     `json:"successful_count"`
	FailedCount     int     `json:"failed_count"`
	DurationSeconds float64 `json:"duration_seconds"`
}

func (BatchCompletedPayload) EventType() EventType { return EventBatchCompleted }

// =============================================================================
// USER REGISTRY EVENTS
// =============================================================================

type UserChangedPayload struct {
	Action string `json:"action"` // "created" | "updated" | "deleted"
	UserID string `json:"user_id"`
	Name   string `json:"name,omitempty"`
}

func (p UserChangedPayload) EventType() EventType {
	switch p.Action {
	case "updated":
		return EventUserUpdated
	case "deleted":
		return EventUserDeleted
	default:
		return EventUserCreated
	}
}

// =============================================================================
// TOOL EVENTS
// =============================================================================

type ToolStatus string

const (
	ToolStatusStarted   ToolStatus = "started"
	ToolStatusCompleted ToolStatus = "completed"
	ToolStatusFailed    ToolStatus = "failed"
)

type ToolCallPayload struct {
	Status          ToolStatus `json:"status"`
	Name            string     `json:"name"`
	Error           string     `json:"error,omitempty"`
	DurationSeconds float64    `json:"duration_seconds,omitempty"`
}

func (ToolCallPayload) EventType() EventType { return EventToolCall }

// =============================================================================
// TYPED EVENT CONSTRUCTORS
// =============================================================================

func NewTypedEvent(source EventSource, payload EventPayload) Event {
	return Event{
		ID:        generateEventID(),
		Type:      payload.EventType(),
		Timestamp: time.Now(),
		Source:    source,
		Payload:   toMap(payload),
	}
}

func toMap(v any) map[string]any {
	var result map[string]any
	data, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	if err := json.Unmarshal(data, &result); err != nil {
		return nil
	}
	return result
}

// =============================================================================
// TYPED PAYLOAD EXTRACTORS
// =============================================================================

func ExtractPayload[T EventPayload](e Event) (T, bool) {
	var result T
	data, err := json.Marshal(e.Payload)
	if err != nil {
		return result, false
	}
	if err := json.Unmarshal(data, &result); err != nil {
		return result, false
	}
	return result, true
}

func GetTaskProgressPayload(e Event) (TaskProgressPayload, bool) {
	return ExtractPayload[TaskProgressPayload](e)
}

func GetTaskFailedPayload(e Event) (TaskFailedPayload, bool) {
	return ExtractPayload[TaskFailedPayload](e)
}

func GetToolCallPayload(e Event) (ToolCallPayload, bool) {
	return ExtractPayload[ToolCallPayload](e)
}
