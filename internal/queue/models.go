package queue

import (
	"strings"
	"time"
)

// SubmissionStatus represents the intake lifecycle of a submission.
type SubmissionStatus string

const (
	SubmissionReceived  SubmissionStatus = "received"
	SubmissionValidated SubmissionStatus = "validated"
	SubmissionRejected  SubmissionStatus = "rejected"
	SubmissionQueued    SubmissionStatus = "queued"
)

// SourceKind identifies how the submitted document is provided.
type SourceKind string

const (
	SourceDocLink      SourceKind = "doc-link"
	SourceUploadedFile SourceKind = "uploaded-file"
)

// LinkPlacement controls where the client backlink lands in the published post.
type LinkPlacement string

const (
	PlacementIntro      LinkPlacement = "intro"
	PlacementConclusion LinkPlacement = "conclusion"
)

// PublishState is the visibility the finished post is created with.
type PublishState string

const (
	PublishDraft PublishState = "draft"
	PublishLive  PublishState = "publish"
)

// JobStatus represents the lifecycle of a publication job.
type JobStatus string

const (
	JobStatusQueued     JobStatus = "queued"
	JobStatusProcessing JobStatus = "processing"
	JobStatusSucceeded  JobStatus = "succeeded"
	JobStatusFailed     JobStatus = "failed"
	JobStatusRetrying   JobStatus = "retrying"
	JobStatusCancelled  JobStatus = "cancelled"
)

// Stage identifies the pipeline step a job resumes from.
type Stage string

const (
	StageConvert    Stage = "convert"
	StageIllustrate Stage = "illustrate"
	StagePublish    Stage = "publish"
)

var allJobStatuses = []JobStatus{
	JobStatusQueued,
	JobStatusProcessing,
	JobStatusSucceeded,
	JobStatusFailed,
	JobStatusRetrying,
	JobStatusCancelled,
}

var jobStatusSet = func() map[JobStatus]struct{} {
	set := make(map[JobStatus]struct{}, len(allJobStatuses))
	for _, status := range allJobStatuses {
		set[status] = struct{}{}
	}
	return set
}()

var allowedTransitions = map[JobStatus]map[JobStatus]struct{}{
	JobStatusQueued:     {JobStatusProcessing: {}, JobStatusCancelled: {}},
	JobStatusRetrying:   {JobStatusProcessing: {}, JobStatusCancelled: {}},
	JobStatusProcessing: {JobStatusSucceeded: {}, JobStatusFailed: {}, JobStatusRetrying: {}, JobStatusCancelled: {}},
	JobStatusFailed:     {JobStatusQueued: {}},
}

// AllJobStatuses returns the ordered list of known job statuses.
func AllJobStatuses() []JobStatus {
	cp := make([]JobStatus, len(allJobStatuses))
	copy(cp, allJobStatuses)
	return cp
}

// ParseJobStatus converts a string into a known JobStatus.
func ParseJobStatus(value string) (JobStatus, bool) {
	normalized := JobStatus(strings.ToLower(strings.TrimSpace(value)))
	if normalized == "" {
		return "", false
	}
	_, ok := jobStatusSet[normalized]
	return normalized, ok
}

// IsTerminal reports whether a status admits no further automatic transitions.
// Failed jobs are terminal for the workers; only an operator requeue moves
// them back to queued.
func (s JobStatus) IsTerminal() bool {
	switch s {
	case JobStatusSucceeded, JobStatusFailed, JobStatusCancelled:
		return true
	default:
		return false
	}
}

// CanTransition reports whether moving a job from one status to another is legal.
func CanTransition(from, to JobStatus) bool {
	targets, ok := allowedTransitions[from]
	if !ok {
		return false
	}
	_, ok = targets[to]
	return ok
}

// NextStage returns the stage following s, or false when s is the last stage.
func NextStage(s Stage) (Stage, bool) {
	switch s {
	case StageConvert:
		return StageIllustrate, true
	case StageIllustrate:
		return StagePublish, true
	default:
		return "", false
	}
}

// Submission captures a publication request as received from a client.
type Submission struct {
	ID              string
	ClientID        string
	TargetHost      string
	SourceKind      SourceKind
	DocURL          string
	FileURL         string
	LinkPlacement   LinkPlacement
	PublishState    PublishState
	Title           string
	ExcerptHint     string
	Notes           string
	IdempotencyKey  string
	Status          SubmissionStatus
	RejectionReason string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// SourceURL returns whichever document reference the submission carries.
func (s Submission) SourceURL() string {
	if s.SourceKind == SourceUploadedFile {
		return s.FileURL
	}
	return s.DocURL
}

// Job represents one durable publication attempt chain for a submission.
type Job struct {
	ID              string
	SubmissionID    string
	ClientID        string
	TargetHost      string
	Status          JobStatus
	Stage           Stage
	AttemptCount    int
	MaxAttempts     int
	LastError       string
	NextAttemptAt   *time.Time
	DraftJSON       string
	PostID          int64
	PostURL         string
	LastHeartbeat   *time.Time
	CancelRequested bool
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Draft is the persisted converter output a job carries between stages.
type Draft struct {
	Title       string `json:"title"`
	Slug        string `json:"slug"`
	CleanHTML   string `json:"clean_html"`
	Excerpt     string `json:"excerpt"`
	ImagePrompt string `json:"image_prompt"`
}

// AssetKind identifies the role an asset plays in the published post.
type AssetKind string

const (
	AssetIllustration AssetKind = "illustration"
)

// Asset records an artifact produced while processing a job. StorageURL is
// empty while the asset is provisional (generated but not yet uploaded).
type Asset struct {
	ID         string
	JobID      string
	Kind       AssetKind
	Provider   string
	SourceURL  string
	StorageURL string
	MediaID    int64
	Width      int
	Height     int
	Format     string
	CreatedAt  time.Time
}

// StatsSummary aggregates job counts for diagnostics and the status API.
type StatsSummary struct {
	Total      int
	Queued     int
	Processing int
	Retrying   int
	Succeeded  int
	Failed     int
	Cancelled  int
}
