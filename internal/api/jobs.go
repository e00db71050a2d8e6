package api

import (
	"context"
	"fmt"
	"strings"

	"linotype/internal/queue"
	"linotype/internal/services"
)

// JobReader abstracts the store lookups needed for API queries.
type JobReader interface {
	GetJob(ctx context.Context, id string) (*queue.Job, error)
	ListJobs(ctx context.Context, statuses ...queue.JobStatus) ([]*queue.Job, error)
	EventsForJob(ctx context.Context, jobID string) ([]*queue.Event, error)
	GetSubmission(ctx context.Context, id string) (*queue.Submission, error)
	FindSubmissionByIdempotencyKey(ctx context.Context, key string) (*queue.Submission, error)
	LatestJobForSubmission(ctx context.Context, submissionID string) (*queue.Job, error)
}

// JobService exposes read-only job operations returning API DTOs.
type JobService struct {
	store JobReader
}

// NewJobService constructs a JobService around the provided reader.
func NewJobService(store JobReader) *JobService {
	if store == nil {
		return nil
	}
	return &JobService{store: store}
}

// List returns jobs filtered by status. An empty filter returns everything.
// Unknown status strings are rejected so typos do not read as "no matches".
func (s *JobService) List(ctx context.Context, statusFilter string) ([]Job, error) {
	if s == nil || s.store == nil {
		return nil, nil
	}
	var statuses []queue.JobStatus
	if trimmed := strings.TrimSpace(statusFilter); trimmed != "" {
		status, ok := queue.ParseJobStatus(trimmed)
		if !ok {
			return nil, services.Wrap(services.ErrValidation, "api", "list jobs", fmt.Sprintf("unknown status %q", trimmed), nil)
		}
		statuses = append(statuses, status)
	}
	jobs, err := s.store.ListJobs(ctx, statuses...)
	if err != nil {
		return nil, err
	}
	return FromJobs(jobs), nil
}

// Describe fetches a single job with its ordered event trail.
func (s *JobService) Describe(ctx context.Context, id string) (*StatusReport, error) {
	if s == nil || s.store == nil {
		return nil, nil
	}
	job, err := s.store.GetJob(ctx, id)
	if err != nil || job == nil {
		return nil, err
	}
	return s.report(ctx, job, nil)
}

// StatusQuery selects a job by exactly one of its identifiers, checked in the
// order listed.
type StatusQuery struct {
	JobID          string
	SubmissionID   string
	IdempotencyKey string
}

// Resolve answers a status lookup. A rejected submission that never produced
// a job yields a report with only the submission populated. A nil report with
// a nil error means nothing matched.
func (s *JobService) Resolve(ctx context.Context, query StatusQuery) (*StatusReport, error) {
	if s == nil || s.store == nil {
		return nil, nil
	}
	if id := strings.TrimSpace(query.JobID); id != "" {
		return s.Describe(ctx, id)
	}

	var (
		sub *queue.Submission
		err error
	)
	switch {
	case strings.TrimSpace(query.SubmissionID) != "":
		sub, err = s.store.GetSubmission(ctx, strings.TrimSpace(query.SubmissionID))
	case strings.TrimSpace(query.IdempotencyKey) != "":
		sub, err = s.store.FindSubmissionByIdempotencyKey(ctx, strings.TrimSpace(query.IdempotencyKey))
	default:
		return nil, services.Wrap(services.ErrValidation, "api", "status lookup", "one of job_id, submission_id, or idempotency_key is required", nil)
	}
	if err != nil || sub == nil {
		return nil, err
	}

	job, err := s.store.LatestJobForSubmission(ctx, sub.ID)
	if err != nil {
		return nil, err
	}
	if job == nil {
		dto := FromSubmission(sub)
		return &StatusReport{Submission: &dto}, nil
	}
	return s.report(ctx, job, sub)
}

func (s *JobService) report(ctx context.Context, job *queue.Job, sub *queue.Submission) (*StatusReport, error) {
	events, err := s.store.EventsForJob(ctx, job.ID)
	if err != nil {
		return nil, err
	}
	jobDTO := FromJob(job)
	out := &StatusReport{Job: &jobDTO, Events: FromEvents(events)}
	if sub != nil {
		subDTO := FromSubmission(sub)
		out.Submission = &subDTO
	}
	return out, nil
}
