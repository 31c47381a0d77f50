package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"golang.org/x/time/rate"
)

// BatchItem is one sub-operation of a batch.
type BatchItem func(ctx context.Context) (json.RawMessage, error)

// BatchSuccess is a per-item success payload tagged with its index.
type BatchSuccess struct {
	Index  int             `json:"index"`
	Result json.RawMessage `json:"result"`
}

// BatchFailure is a per-item error tagged with the originating index.
type BatchFailure struct {
	Index int        `json:"index"`
	Error *TaskError `json:"error"`
}

// BatchResult aggregates the ordered per-item outcomes of a batch run.
type BatchResult struct {
	Successes       []BatchSuccess `json:"successes"`
	Failures        []BatchFailure `json:"failures"`
	SuccessfulCount int            `json:"successful_count"`
	FailedCount     int            `json:"failed_count"`
	DurationSeconds float64        `json:"duration_seconds"`
}

// ExecuteBatch runs items in order with delay enforced between consecutive
// items (none before the first). A failing item is recorded and the batch
// continues; one bad item never aborts the rest. Total elapsed time is at
// least (N-1)*delay.
//
// Context cancellation stops the batch between items; items not reached
// are reported as failures so the caller sees every index accounted for.
func ExecuteBatch(ctx context.Context, items []BatchItem, delay time.Duration) BatchResult {
	started := time.Now()
	res := BatchResult{
		Successes: []BatchSuccess{},
		Failures:  []BatchFailure{},
	}

	// A 1-token limiter refilled every delay: the first Wait is free, each
	// subsequent one enforces the inter-item gap.
	limit := rate.Inf
	if delay > 0 {
		limit = rate.Every(delay)
	}
	limiter := rate.NewLimiter(limit, 1)

	for i, item := range items {
		if err := limiter.Wait(ctx); err != nil {
			for j := i; j < len(items); j++ {
				res.Failures = append(res.Failures, BatchFailure{
					Index: j,
					Error: &TaskError{Kind: KindCancelled, Message: "batch cancelled: " + err.Error()},
				})
			}
			break
		}

		out, err := runBatchItem(ctx, item)
		if err != nil {
			var terr *TaskError
			if !errors.As(err, &terr) {
				terr = NewTaskError(KindExecution, err)
			}
			res.Failures = append(res.Failures, BatchFailure{Index: i, Error: terr})
			continue
		}
		res.Successes = append(res.Successes, BatchSuccess{Index: i, Result: out})
	}

	res.SuccessfulCount = len(res.Successes)
	res.FailedCount = len(res.Failures)
	res.DurationSeconds = time.Since(started).Seconds()
	return res
}

// runBatchItem isolates a single item so a panic is captured as that
// item's failure instead of taking down the batch.
func runBatchItem(ctx context.Context, item BatchItem) (out json.RawMessage, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = &TaskError{Kind: KindExecution, Message: fmt.Sprintf("panic: %v", rec)}
		}
	}()
	return item(ctx)
}
