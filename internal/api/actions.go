package api

import (
	"context"

	"linotype/internal/queue"
)

// JobActor captures the store operations behind cancel and requeue.
type JobActor interface {
	GetJob(ctx context.Context, id string) (*queue.Job, error)
	Cancel(ctx context.Context, id string) (queue.CancelOutcome, error)
	Requeue(ctx context.Context, id string) (bool, error)
	AppendEvent(ctx context.Context, jobID string, eventType queue.EventType, payload any) error
}

type CancelJobOutcome string

const (
	CancelJobDone      CancelJobOutcome = "cancelled"
	CancelJobRequested CancelJobOutcome = "cancel_requested"
	CancelJobNotFound  CancelJobOutcome = "not_found"
	CancelJobRejected  CancelJobOutcome = "rejected"
)

// CancelJobResult reports what a cancel request did to the job.
type CancelJobResult struct {
	JobID       string           `json:"job_id"`
	Outcome     CancelJobOutcome `json:"outcome"`
	PriorStatus string           `json:"prior_status,omitempty"`
}

type RequeueOutcome string

const (
	RequeueDone      RequeueOutcome = "requeued"
	RequeueNotFound  RequeueOutcome = "not_found"
	RequeueNotFailed RequeueOutcome = "not_failed"
)

// RequeueResult reports what an operator requeue did to the job.
type RequeueResult struct {
	JobID       string         `json:"job_id"`
	Outcome     RequeueOutcome `json:"outcome"`
	PriorStatus string         `json:"prior_status,omitempty"`
}

// CancelJob cancels a waiting job immediately or flags an in-flight one to
// stop at its next stage boundary. A job the store will not cancel (already
// terminal) comes back rejected.
func CancelJob(ctx context.Context, store JobActor, id string) (CancelJobResult, error) {
	job, err := store.GetJob(ctx, id)
	if err != nil {
		return CancelJobResult{}, err
	}
	if job == nil {
		return CancelJobResult{JobID: id, Outcome: CancelJobNotFound}, nil
	}

	outcome, err := store.Cancel(ctx, id)
	if err != nil {
		return CancelJobResult{}, err
	}
	result := CancelJobResult{JobID: id, PriorStatus: string(job.Status)}
	switch outcome {
	case queue.CancelImmediate:
		result.Outcome = CancelJobDone
		// The worker never saw this job, so the trail gets its terminal
		// entry here.
		if err := store.AppendEvent(ctx, id, queue.EventCancelled, queue.StagePayload{
			Stage:   string(job.Stage),
			Attempt: job.AttemptCount,
			Detail:  "cancelled before processing",
		}); err != nil {
			return CancelJobResult{}, err
		}
	case queue.CancelRequested:
		result.Outcome = CancelJobRequested
	default:
		result.Outcome = CancelJobRejected
	}
	return result, nil
}

// RequeueJob returns a failed job to the queue with a fresh attempt budget.
// Only failed jobs are eligible.
func RequeueJob(ctx context.Context, store JobActor, id string) (RequeueResult, error) {
	job, err := store.GetJob(ctx, id)
	if err != nil {
		return RequeueResult{}, err
	}
	if job == nil {
		return RequeueResult{JobID: id, Outcome: RequeueNotFound}, nil
	}

	updated, err := store.Requeue(ctx, id)
	if err != nil {
		return RequeueResult{}, err
	}
	result := RequeueResult{JobID: id, PriorStatus: string(job.Status)}
	if !updated {
		result.Outcome = RequeueNotFailed
		return result, nil
	}
	result.Outcome = RequeueDone
	if err := store.AppendEvent(ctx, id, queue.EventRequeued, queue.StagePayload{
		Stage:   string(job.Stage),
		Attempt: job.AttemptCount,
		Detail:  "operator requeue",
	}); err != nil {
		return RequeueResult{}, err
	}
	return result, nil
}
