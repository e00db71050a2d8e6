package queue

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// EventType labels an entry in a job's append-only audit trail.
type EventType string

const (
	EventSubmissionAccepted EventType = "submission_accepted"
	EventStageStarted       EventType = "stage_started"
	EventStageOK            EventType = "stage_ok"
	EventStageFailed        EventType = "stage_failed"
	EventStageSkipped       EventType = "stage_skipped"
	EventImageGenerated     EventType = "image_generated"
	EventMediaUploaded      EventType = "media_uploaded"
	EventPublishOK          EventType = "publish_ok"
	EventRetryScheduled     EventType = "retry_scheduled"
	EventTerminalFailed     EventType = "terminal_failed"
	EventCancelled          EventType = "cancelled"
	EventRequeued           EventType = "requeued"
)

// Event is one immutable record in a job's history.
type Event struct {
	ID        string
	JobID     string
	Type      EventType
	Payload   json.RawMessage
	CreatedAt time.Time
}

// SubmissionAcceptedPayload seeds a job's event trail at enqueue time.
type SubmissionAcceptedPayload struct {
	SubmissionID string `json:"submission_id"`
	ClientID     string `json:"client_id"`
	TargetHost   string `json:"target_host"`
	SourceKind   string `json:"source_kind"`
}

// StagePayload describes a stage boundary crossing.
type StagePayload struct {
	Stage   string `json:"stage"`
	Attempt int    `json:"attempt"`
	Detail  string `json:"detail,omitempty"`
}

// StageFailedPayload describes a stage failure and the scheduler's reaction.
type StageFailedPayload struct {
	Stage     string `json:"stage"`
	Attempt   int    `json:"attempt"`
	Max       int    `json:"max_attempts"`
	WillRetry bool   `json:"will_retry"`
	Error     string `json:"error"`
}

// ImageGeneratedPayload records a completed generation.
type ImageGeneratedPayload struct {
	Provider string `json:"provider"`
	ImageURL string `json:"image_url"`
	Width    int    `json:"width"`
	Height   int    `json:"height"`
	Prompt   string `json:"prompt,omitempty"`
}

// MediaUploadedPayload records the CMS media item backing the featured image.
type MediaUploadedPayload struct {
	MediaID    int64 `json:"media_id"`
	Bytes      int64 `json:"bytes"`
	Width      int   `json:"width"`
	Height     int   `json:"height"`
	SizesTried int   `json:"sizes_tried"`
}

// PublishPayload records the created or updated post.
type PublishPayload struct {
	PostID  int64  `json:"post_id"`
	PostURL string `json:"post_url"`
	Title   string `json:"title,omitempty"`
	Slug    string `json:"slug,omitempty"`
	Updated bool   `json:"updated"`
}

// RetryScheduledPayload records a backoff decision.
type RetryScheduledPayload struct {
	Attempt       int    `json:"attempt"`
	Max           int    `json:"max_attempts"`
	NextAttemptAt string `json:"next_attempt_at"`
	Error         string `json:"error"`
}

// AppendEvent records an event for a job. Payload may be any JSON-marshalable
// value; nil records an event without payload.
func (s *Store) AppendEvent(ctx context.Context, jobID string, eventType EventType, payload any) error {
	ctx = ensureContext(ctx)
	var encoded string
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("marshal event payload: %w", err)
		}
		encoded = string(raw)
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)
	if _, err := s.execWithRetry(ctx,
		`INSERT INTO job_events (id, job_id, event_type, payload, created_at) VALUES (?, ?, ?, ?, ?)`,
		uuid.NewString(), jobID, eventType, nullableString(encoded), now,
	); err != nil {
		return fmt.Errorf("append event: %w", err)
	}
	return nil
}

func appendEventTx(ctx context.Context, tx *sql.Tx, jobID string, eventType EventType, payload, timestamp string) error {
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO job_events (id, job_id, event_type, payload, created_at) VALUES (?, ?, ?, ?, ?)`,
		uuid.NewString(), jobID, eventType, nullableString(payload), timestamp,
	); err != nil {
		return fmt.Errorf("append event: %w", err)
	}
	return nil
}

// EventsForJob returns a job's events in insertion order.
func (s *Store) EventsForJob(ctx context.Context, jobID string) ([]*Event, error) {
	rows, err := s.db.QueryContext(ensureContext(ctx),
		`SELECT id, job_id, event_type, payload, created_at
         FROM job_events WHERE job_id = ? ORDER BY created_at, id`, jobID)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var events []*Event
	for rows.Next() {
		var (
			id         string
			job        string
			eventType  string
			payload    sql.NullString
			createdRaw string
		)
		if err := rows.Scan(&id, &job, &eventType, &payload, &createdRaw); err != nil {
			return nil, err
		}
		event := &Event{ID: id, JobID: job, Type: EventType(eventType)}
		if payload.Valid {
			event.Payload = json.RawMessage(payload.String)
		}
		if created, err := parseTimeString(createdRaw); err == nil {
			event.CreatedAt = created
		}
		events = append(events, event)
	}
	return events, rows.Err()
}

// DecodePayload unmarshals the event payload into dst. Unknown event types
// keep their raw JSON; callers pass a map or struct as appropriate.
func (e *Event) DecodePayload(dst any) error {
	if len(e.Payload) == 0 {
		return nil
	}
	return json.Unmarshal(e.Payload, dst)
}
