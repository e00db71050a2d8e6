package api

import (
	"context"
	"errors"
	"testing"

	"linotype/internal/services"
	"linotype/internal/submission"
)

type fakeIntake struct {
	got    submission.Request
	result submission.Result
	err    error
}

func (f *fakeIntake) Submit(_ context.Context, req submission.Request) (submission.Result, error) {
	f.got = req
	return f.result, f.err
}

func TestSubmitMapsFields(t *testing.T) {
	intake := &fakeIntake{result: submission.Result{
		SubmissionID: "sub-1",
		JobID:        "job-1",
		Deduplicated: true,
	}}

	resp, err := Submit(t.Context(), intake, SubmitRequest{
		ClientID:       "client-1",
		TargetHost:     "blog.example.com",
		SourceKind:     "doc-link",
		DocURL:         "https://docs.example.com/post.md",
		LinkPlacement:  "conclusion",
		PublishState:   "publish",
		Title:          "Launch notes",
		IdempotencyKey: "client-1:launch",
	})
	if err != nil {
		t.Fatalf("Submit returned error: %v", err)
	}
	if resp.SubmissionID != "sub-1" || resp.JobID != "job-1" || !resp.Deduplicated {
		t.Fatalf("unexpected response: %+v", resp)
	}
	if intake.got.ClientID != "client-1" || intake.got.TargetHost != "blog.example.com" {
		t.Fatalf("request identity not forwarded: %+v", intake.got)
	}
	if intake.got.LinkPlacement != "conclusion" || intake.got.PublishState != "publish" {
		t.Fatalf("request options not forwarded: %+v", intake.got)
	}
	if intake.got.IdempotencyKey != "client-1:launch" {
		t.Fatalf("idempotency key not forwarded: %q", intake.got.IdempotencyKey)
	}
}

func TestSubmitPropagatesValidationError(t *testing.T) {
	intake := &fakeIntake{err: services.Wrap(services.ErrValidation, "intake", "submit", "unknown target host", nil)}
	_, err := Submit(t.Context(), intake, SubmitRequest{ClientID: "client-1"})
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}
