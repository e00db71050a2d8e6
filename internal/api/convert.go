package api

import (
	"slices"

	"linotype/internal/queue"
	"linotype/internal/workflow"
)

// FromJob converts a queue record to its API representation.
func FromJob(job *queue.Job) Job {
	if job == nil {
		return Job{}
	}
	dto := Job{
		ID:              job.ID,
		SubmissionID:    job.SubmissionID,
		ClientID:        job.ClientID,
		TargetHost:      job.TargetHost,
		Status:          string(job.Status),
		Stage:           string(job.Stage),
		AttemptCount:    job.AttemptCount,
		MaxAttempts:     job.MaxAttempts,
		LastError:       job.LastError,
		PostID:          job.PostID,
		PostURL:         job.PostURL,
		CancelRequested: job.CancelRequested,
	}
	if job.NextAttemptAt != nil {
		dto.NextAttemptAt = job.NextAttemptAt.UTC().Format(dateTimeFormat)
	}
	if !job.CreatedAt.IsZero() {
		dto.CreatedAt = job.CreatedAt.UTC().Format(dateTimeFormat)
	}
	if !job.UpdatedAt.IsZero() {
		dto.UpdatedAt = job.UpdatedAt.UTC().Format(dateTimeFormat)
	}
	return dto
}

// FromJobs converts a slice of queue records into API DTOs.
func FromJobs(jobs []*queue.Job) []Job {
	if len(jobs) == 0 {
		return nil
	}
	out := make([]Job, 0, len(jobs))
	for _, job := range jobs {
		out = append(out, FromJob(job))
	}
	return out
}

// FromSubmission converts an intake record to its API representation.
func FromSubmission(sub *queue.Submission) Submission {
	if sub == nil {
		return Submission{}
	}
	dto := Submission{
		ID:              sub.ID,
		ClientID:        sub.ClientID,
		TargetHost:      sub.TargetHost,
		SourceKind:      string(sub.SourceKind),
		Status:          string(sub.Status),
		RejectionReason: sub.RejectionReason,
		IdempotencyKey:  sub.IdempotencyKey,
	}
	if !sub.CreatedAt.IsZero() {
		dto.CreatedAt = sub.CreatedAt.UTC().Format(dateTimeFormat)
	}
	return dto
}

// FromEvent converts one trail entry, passing the payload through verbatim.
func FromEvent(event *queue.Event) Event {
	if event == nil {
		return Event{}
	}
	dto := Event{
		ID:      event.ID,
		Type:    string(event.Type),
		Payload: event.Payload,
	}
	if !event.CreatedAt.IsZero() {
		dto.CreatedAt = event.CreatedAt.UTC().Format(dateTimeFormat)
	}
	return dto
}

// FromEvents converts a job's ordered trail into API DTOs.
func FromEvents(events []*queue.Event) []Event {
	if len(events) == 0 {
		return nil
	}
	out := make([]Event, 0, len(events))
	for _, event := range events {
		out = append(out, FromEvent(event))
	}
	return out
}

// FromStatsSummary converts queue counters into the API payload.
func FromStatsSummary(stats queue.StatsSummary) QueueStats {
	return QueueStats{
		Total:      stats.Total,
		Queued:     stats.Queued,
		Processing: stats.Processing,
		Retrying:   stats.Retrying,
		Succeeded:  stats.Succeeded,
		Failed:     stats.Failed,
		Cancelled:  stats.Cancelled,
	}
}

// FromStatusSummary converts a workflow status summary to the API payload.
// Stage health is ordered by stage name so output stays deterministic.
func FromStatusSummary(summary workflow.StatusSummary) WorkflowStatus {
	healthNames := make([]string, 0, len(summary.StageHealth))
	for name := range summary.StageHealth {
		healthNames = append(healthNames, name)
	}
	slices.Sort(healthNames)

	health := make([]StageHealth, 0, len(healthNames))
	for _, name := range healthNames {
		h := summary.StageHealth[name]
		health = append(health, StageHealth{
			Name:   name,
			Ready:  h.Ready,
			Detail: h.Detail,
		})
	}

	wf := WorkflowStatus{
		Running:     summary.Running,
		QueueStats:  FromStatsSummary(summary.QueueStats),
		StageHealth: health,
	}
	if summary.LastError != "" {
		wf.LastError = summary.LastError
	}
	if summary.LastJob != nil {
		last := FromJob(summary.LastJob)
		wf.LastJob = &last
	}
	return wf
}
