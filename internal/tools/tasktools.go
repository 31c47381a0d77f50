package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mjoubert/taskgate/internal/events"
	"github.com/mjoubert/taskgate/internal/registry"
	"github.com/mjoubert/taskgate/internal/tasks"
)

// maxBatchItems bounds a single batch_execute call.
const maxBatchItems = 100

// RegisterTaskTools wires the long-running task surface into reg. Batch
// items re-enter the registry as nested tool calls, so reg must already
// hold the tools a batch may reference. batchDelay is the inter-item
// delay applied when a batch call does not set one.
func RegisterTaskTools(reg *Registry, sched *tasks.Scheduler, batchDelay time.Duration) error {
	toolset := []*Tool{
		newStartTaskTool(sched),
		newGetProgressTool(sched),
		newWaitForTaskTool(sched),
		newCancelTaskTool(sched),
		newListTasksTool(sched),
		newBatchExecuteTool(reg, batchDelay),
	}
	for _, t := range toolset {
		if err := reg.Register(t); err != nil {
			return err
		}
	}
	return nil
}

// startTaskInput describes a simulated long-running operation: a number of
// steps with a fixed per-step delay, optionally failing partway through.
type startTaskInput struct {
	Title            string  `json:"title"`
	Steps            int     `json:"steps"`
	StepDelaySeconds float64 `json:"step_delay_seconds"`
	FailAtStep       int     `json:"fail_at_step,omitempty"`
	TimeoutSeconds   float64 `json:"timeout_seconds,omitempty"`
}

// simulatedWork builds a Work that sleeps through its steps, checkpoints
// after each one, and observes cancellation at every suspension point.
func simulatedWork(in startTaskInput) tasks.Work {
	stepDelay := time.Duration(in.StepDelaySeconds * float64(time.Second))

	return func(ctx context.Context, progress tasks.ProgressFunc) (json.RawMessage, error) {
		for step := 1; step <= in.Steps; step++ {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(stepDelay):
			}

			if in.FailAtStep > 0 && step == in.FailAtStep {
				return nil, fmt.Errorf("step %d failed", step)
			}

			if err := progress(step, map[string]any{
				"completed": step,
				"total":     in.Steps,
			}); err != nil {
				// Record went terminal under us (forced timeout); stop here.
				return nil, err
			}
		}
		return json.Marshal(map[string]any{
			"title":           in.Title,
			"steps_completed": in.Steps,
		})
	}
}

func newStartTaskTool(sched *tasks.Scheduler) *Tool {
	return &Tool{
		Spec: ToolSpec{
			Name:        "start_task",
			Description: "Start a long-running operation. Returns a task ID immediately; poll with get_progress or block with wait_for_task.",
			Parameters: map[string]ParamSpec{
				"title":              {Type: "string", Description: "Short label for the task"},
				"steps":              {Type: "integer", Description: "Number of work steps", Required: true},
				"step_delay_seconds": {Type: "number", Description: "Seconds each step takes", Required: true},
				"fail_at_step":       {Type: "integer", Description: "Step at which the work fails (0 = never)"},
				"timeout_seconds":    {Type: "number", Description: "Task deadline in seconds (0 = server default)"},
			},
		},
		Handler: func(_ context.Context, args json.RawMessage) (any, error) {
			var in startTaskInput
			if err := json.Unmarshal(args, &in); err != nil {
				return nil, fmt.Errorf("%w: %v", registry.ErrInvalidInput, err)
			}
			if in.Steps <= 0 {
				return nil, fmt.Errorf("%w: steps must be positive", registry.ErrInvalidInput)
			}
			if in.StepDelaySeconds < 0 || in.TimeoutSeconds < 0 {
				return nil, fmt.Errorf("%w: delays must be non-negative", registry.ErrInvalidInput)
			}

			id, err := sched.Start(simulatedWork(in), tasks.StartOptions{
				Title:   in.Title,
				Timeout: time.Duration(in.TimeoutSeconds * float64(time.Second)),
			})
			if err != nil {
				return nil, err
			}
			return Pending{Result: map[string]string{"task_id": id}}, nil
		},
	}
}

type taskIDInput struct {
	TaskID string `json:"task_id"`
}

func newGetProgressTool(sched *tasks.Scheduler) *Tool {
	return &Tool{
		Spec: ToolSpec{
			Name:        "get_progress",
			Description: "Get the current status and latest progress checkpoint of a task. Never blocks.",
			Parameters: map[string]ParamSpec{
				"task_id": {Type: "string", Description: "The task ID to check", Required: true},
			},
		},
		Handler: func(_ context.Context, args json.RawMessage) (any, error) {
			var in taskIDInput
			if err := json.Unmarshal(args, &in); err != nil {
				return nil, fmt.Errorf("%w: %v", registry.ErrInvalidInput, err)
			}
			if in.TaskID == "" {
				return nil, fmt.Errorf("%w: task_id is required", registry.ErrInvalidInput)
			}
			return sched.Status(in.TaskID)
		},
	}
}

type waitForTaskInput struct {
	TaskID         string  `json:"task_id"`
	TimeoutSeconds float64 `json:"timeout_seconds"`
}

func newWaitForTaskTool(sched *tasks.Scheduler) *Tool {
	return &Tool{
		Spec: ToolSpec{
			Name:        "wait_for_task",
			Description: "Block until a task reaches a terminal status or the wait bound elapses. A wait timeout is reported to the caller and can be retried; it does not affect the task.",
			Parameters: map[string]ParamSpec{
				"task_id":         {Type: "string", Description: "The task ID to wait on", Required: true},
				"timeout_seconds": {Type: "number", Description: "Maximum seconds to wait", Required: true},
			},
		},
		Handler: func(ctx context.Context, args json.RawMessage) (any, error) {
			var in waitForTaskInput
			if err := json.Unmarshal(args, &in); err != nil {
				return nil, fmt.Errorf("%w: %v", registry.ErrInvalidInput, err)
			}
			if in.TaskID == "" {
				return nil, fmt.Errorf("%w: task_id is required", registry.ErrInvalidInput)
			}
			if in.TimeoutSeconds <= 0 {
				return nil, fmt.Errorf("%w: timeout_seconds must be positive", registry.ErrInvalidInput)
			}

			timeout := time.Duration(in.TimeoutSeconds * float64(time.Second))
			return sched.Wait(ctx, in.TaskID, timeout)
		},
	}
}

type cancelTaskInput struct {
	TaskID string `json:"task_id"`
	Reason string `json:"reason,omitempty"`
}

func newCancelTaskTool(sched *tasks.Scheduler) *Tool {
	return &Tool{
		Spec: ToolSpec{
			Name:        "cancel_task",
			Description: "Cancel a running task. Terminal tasks are left untouched.",
			Parameters: map[string]ParamSpec{
				"task_id": {Type: "string", Description: "The task ID to cancel", Required: true},
				"reason":  {Type: "string", Description: "Optional reason for cancellation"},
			},
		},
		Handler: func(_ context.Context, args json.RawMessage) (any, error) {
			var in cancelTaskInput
			if err := json.Unmarshal(args, &in); err != nil {
				return nil, fmt.Errorf("%w: %v", registry.ErrInvalidInput, err)
			}
			if in.TaskID == "" {
				return nil, fmt.Errorf("%w: task_id is required", registry.ErrInvalidInput)
			}
			if err := sched.Cancel(in.TaskID, in.Reason); err != nil {
				return nil, err
			}
			return map[string]string{"task_id": in.TaskID, "status": "cancelled"}, nil
		},
	}
}

type listTasksInput struct {
	Status string `json:"status,omitempty"`
}

func newListTasksTool(sched *tasks.Scheduler) *Tool {
	return &Tool{
		Spec: ToolSpec{
			Name:        "list_tasks",
			Description: "List tasks with an optional status filter, newest first.",
			Parameters: map[string]ParamSpec{
				"status": {
					Type:        "string",
					Description: "Filter by status",
					Enum:        []string{"pending", "running", "completed", "failed", "timed_out"},
				},
			},
		},
		Handler: func(_ context.Context, args json.RawMessage) (any, error) {
			var in listTasksInput
			if len(args) > 0 {
				if err := json.Unmarshal(args, &in); err != nil {
					return nil, fmt.Errorf("%w: %v", registry.ErrInvalidInput, err)
				}
			}
			return sched.Store().List(tasks.ListFilter{Status: tasks.Status(in.Status)})
		},
	}
}

// batchItemInput is one sub-operation of a batch: a nested tool call.
type batchItemInput struct {
	Tool string          `json:"tool"`
	Args json.RawMessage `json:"args,omitempty"`
}

type batchExecuteInput struct {
	Items        []batchItemInput `json:"items"`
	DelaySeconds float64          `json:"delay_seconds"`
}

func newBatchExecuteTool(reg *Registry, defaultDelay time.Duration) *Tool {
	return &Tool{
		Spec: ToolSpec{
			Name:        "batch_execute",
			Description: "Run a sequence of tool calls with a fixed delay between items. A failing item is recorded and the batch continues.",
			Parameters: map[string]ParamSpec{
				"items":         {Type: "array", Description: "Ordered list of {tool, args} sub-operations", Required: true},
				"delay_seconds": {Type: "number", Description: "Delay enforced between consecutive items (0 = server default)"},
			},
		},
		Handler: func(ctx context.Context, args json.RawMessage) (any, error) {
			var in batchExecuteInput
			if err := json.Unmarshal(args, &in); err != nil {
				return nil, fmt.Errorf("%w: %v", registry.ErrInvalidInput, err)
			}
			if len(in.Items) == 0 {
				return nil, fmt.Errorf("%w: items must not be empty", registry.ErrInvalidInput)
			}
			if len(in.Items) > maxBatchItems {
				return nil, fmt.Errorf("%w: at most %d items per batch", registry.ErrInvalidInput, maxBatchItems)
			}
			if in.DelaySeconds < 0 {
				return nil, fmt.Errorf("%w: delay_seconds must be non-negative", registry.ErrInvalidInput)
			}
			for i, item := range in.Items {
				if item.Tool == "" {
					return nil, fmt.Errorf("%w: item %d is missing a tool name", registry.ErrInvalidInput, i)
				}
				if item.Tool == "batch_execute" {
					return nil, fmt.Errorf("%w: item %d: batches do not nest", registry.ErrInvalidInput, i)
				}
			}

			items := make([]tasks.BatchItem, len(in.Items))
			for i, item := range in.Items {
				items[i] = func(ctx context.Context) (json.RawMessage, error) {
					inv := reg.Invoke(ctx, item.Tool, item.Args)
					if inv.Error != nil {
						return nil, inv.Error
					}
					return inv.Result, nil
				}
			}

			delay := time.Duration(in.DelaySeconds * float64(time.Second))
			if delay == 0 {
				delay = defaultDelay
			}
			res := tasks.ExecuteBatch(ctx, items, delay)
			reg.publish(events.BatchCompletedPayload{
				Items:           len(in.Items),
				SuccessfulCount: res.SuccessfulCount,
				FailedCount:     res.FailedCount,
				DurationSeconds: res.DurationSeconds,
			})
			return res, nil
		},
	}
}
