package api

import "encoding/json"

// dateTimeFormat is used for RFC3339 timestamps in API payloads.
const dateTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// Job describes a publication job in a transport-friendly format.
type Job struct {
	ID              string `json:"id"`
	SubmissionID    string `json:"submission_id"`
	ClientID        string `json:"client_id"`
	TargetHost      string `json:"target_host"`
	Status          string `json:"status"`
	Stage           string `json:"stage"`
	AttemptCount    int    `json:"attempt_count"`
	MaxAttempts     int    `json:"max_attempts"`
	LastError       string `json:"last_error,omitempty"`
	NextAttemptAt   string `json:"next_attempt_at,omitempty"`
	PostID          int64  `json:"post_id,omitempty"`
	PostURL         string `json:"post_url,omitempty"`
	CancelRequested bool   `json:"cancel_requested,omitempty"`
	CreatedAt       string `json:"created_at,omitempty"`
	UpdatedAt       string `json:"updated_at,omitempty"`
}

// Submission describes an intake record, including rejected ones that never
// produced a job.
type Submission struct {
	ID              string `json:"id"`
	ClientID        string `json:"client_id"`
	TargetHost      string `json:"target_host"`
	SourceKind      string `json:"source_kind"`
	Status          string `json:"status"`
	RejectionReason string `json:"rejection_reason,omitempty"`
	IdempotencyKey  string `json:"idempotency_key,omitempty"`
	CreatedAt       string `json:"created_at,omitempty"`
}

// Event is one entry from a job's append-only trail. Payload is passed
// through untouched.
type Event struct {
	ID        string          `json:"id"`
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	CreatedAt string          `json:"created_at,omitempty"`
}

// StatusReport answers a status lookup: the job with its ordered events, or
// just the submission when intake rejected the request before creating one.
type StatusReport struct {
	Job        *Job        `json:"job,omitempty"`
	Submission *Submission `json:"submission,omitempty"`
	Events     []Event     `json:"events,omitempty"`
}

// QueueStats is a normalized per-status job count payload.
type QueueStats struct {
	Total      int `json:"total"`
	Queued     int `json:"queued"`
	Processing int `json:"processing"`
	Retrying   int `json:"retrying"`
	Succeeded  int `json:"succeeded"`
	Failed     int `json:"failed"`
	Cancelled  int `json:"cancelled"`
}

// StageHealth mirrors readiness reporting for pipeline stages.
type StageHealth struct {
	Name   string `json:"name"`
	Ready  bool   `json:"ready"`
	Detail string `json:"detail,omitempty"`
}

// WorkflowStatus summarizes workflow execution state.
type WorkflowStatus struct {
	Running     bool          `json:"running"`
	LastError   string        `json:"last_error,omitempty"`
	LastJob     *Job          `json:"last_job,omitempty"`
	QueueStats  QueueStats    `json:"queue_stats"`
	StageHealth []StageHealth `json:"stage_health"`
}

// ComponentHealth reports one health-check probe.
type ComponentHealth struct {
	OK     bool   `json:"ok"`
	Detail string `json:"detail,omitempty"`
}

// HealthReport aggregates daemon health for API consumers.
type HealthReport struct {
	Healthy  bool            `json:"healthy"`
	Store    ComponentHealth `json:"store"`
	Workflow WorkflowStatus  `json:"workflow"`
}

// JobListResponse wraps a collection of jobs for API responses.
type JobListResponse struct {
	Jobs []Job `json:"jobs"`
}

// JobResponse wraps a single job.
type JobResponse struct {
	Job Job `json:"job"`
}
