package api

import (
	"context"
	"testing"

	"linotype/internal/queue"
)

type fakeJobActor struct {
	job           *queue.Job
	cancelOutcome queue.CancelOutcome
	requeued      bool
	events        []queue.EventType
}

func (f *fakeJobActor) GetJob(context.Context, string) (*queue.Job, error) {
	return f.job, nil
}

func (f *fakeJobActor) Cancel(context.Context, string) (queue.CancelOutcome, error) {
	return f.cancelOutcome, nil
}

func (f *fakeJobActor) Requeue(context.Context, string) (bool, error) {
	return f.requeued, nil
}

func (f *fakeJobActor) AppendEvent(_ context.Context, _ string, eventType queue.EventType, _ any) error {
	f.events = append(f.events, eventType)
	return nil
}

func TestCancelJobImmediate(t *testing.T) {
	actor := &fakeJobActor{
		job:           &queue.Job{ID: "job-1", Status: queue.JobStatusQueued, Stage: queue.StageConvert},
		cancelOutcome: queue.CancelImmediate,
	}
	result, err := CancelJob(t.Context(), actor, "job-1")
	if err != nil {
		t.Fatalf("CancelJob returned error: %v", err)
	}
	if result.Outcome != CancelJobDone {
		t.Fatalf("unexpected outcome: %q", result.Outcome)
	}
	if result.PriorStatus != string(queue.JobStatusQueued) {
		t.Fatalf("unexpected prior status: %q", result.PriorStatus)
	}
	if len(actor.events) != 1 || actor.events[0] != queue.EventCancelled {
		t.Fatalf("expected a cancelled event, got %v", actor.events)
	}
}

func TestCancelJobInFlight(t *testing.T) {
	actor := &fakeJobActor{
		job:           &queue.Job{ID: "job-1", Status: queue.JobStatusProcessing},
		cancelOutcome: queue.CancelRequested,
	}
	result, err := CancelJob(t.Context(), actor, "job-1")
	if err != nil {
		t.Fatalf("CancelJob returned error: %v", err)
	}
	if result.Outcome != CancelJobRequested {
		t.Fatalf("unexpected outcome: %q", result.Outcome)
	}
	if len(actor.events) != 0 {
		t.Fatalf("worker owns the cancelled event for in-flight jobs, got %v", actor.events)
	}
}

func TestCancelJobNotFound(t *testing.T) {
	result, err := CancelJob(t.Context(), &fakeJobActor{}, "missing")
	if err != nil {
		t.Fatalf("CancelJob returned error: %v", err)
	}
	if result.Outcome != CancelJobNotFound {
		t.Fatalf("unexpected outcome: %q", result.Outcome)
	}
}

func TestCancelJobTerminalRejected(t *testing.T) {
	actor := &fakeJobActor{
		job:           &queue.Job{ID: "job-1", Status: queue.JobStatusSucceeded},
		cancelOutcome: queue.CancelRejected,
	}
	result, err := CancelJob(t.Context(), actor, "job-1")
	if err != nil {
		t.Fatalf("CancelJob returned error: %v", err)
	}
	if result.Outcome != CancelJobRejected {
		t.Fatalf("unexpected outcome: %q", result.Outcome)
	}
}

func TestRequeueJobFailed(t *testing.T) {
	actor := &fakeJobActor{
		job:      &queue.Job{ID: "job-1", Status: queue.JobStatusFailed, Stage: queue.StagePublish},
		requeued: true,
	}
	result, err := RequeueJob(t.Context(), actor, "job-1")
	if err != nil {
		t.Fatalf("RequeueJob returned error: %v", err)
	}
	if result.Outcome != RequeueDone {
		t.Fatalf("unexpected outcome: %q", result.Outcome)
	}
	if len(actor.events) != 1 || actor.events[0] != queue.EventRequeued {
		t.Fatalf("expected a requeued event, got %v", actor.events)
	}
}

func TestRequeueJobNotFailed(t *testing.T) {
	actor := &fakeJobActor{job: &queue.Job{ID: "job-1", Status: queue.JobStatusQueued}}
	result, err := RequeueJob(t.Context(), actor, "job-1")
	if err != nil {
		t.Fatalf("RequeueJob returned error: %v", err)
	}
	if result.Outcome != RequeueNotFailed {
		t.Fatalf("unexpected outcome: %q", result.Outcome)
	}
	if len(actor.events) != 0 {
		t.Fatalf("expected no events, got %v", actor.events)
	}
}

func TestRequeueJobNotFound(t *testing.T) {
	result, err := RequeueJob(t.Context(), &fakeJobActor{}, "missing")
	if err != nil {
		t.Fatalf("RequeueJob returned error: %v", err)
	}
	if result.Outcome != RequeueNotFound {
		t.Fatalf("unexpected outcome: %q", result.Outcome)
	}
}
