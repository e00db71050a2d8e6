package queue

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// NewSubmission carries the validated intake fields for a publication request.
type NewSubmission struct {
	ClientID       string
	TargetHost     string
	SourceKind     SourceKind
	DocURL         string
	FileURL        string
	LinkPlacement  LinkPlacement
	PublishState   PublishState
	Title          string
	ExcerptHint    string
	Notes          string
	IdempotencyKey string
	MaxAttempts    int
}

// CreateSubmission persists a submission together with its first job and the
// seed event in a single transaction. The submission lands in status queued
// because validation happens before this call.
func (s *Store) CreateSubmission(ctx context.Context, req NewSubmission) (*Submission, *Job, error) {
	ctx = ensureContext(ctx)
	now := time.Now().UTC()
	timestamp := now.Format(time.RFC3339Nano)

	submissionID := uuid.NewString()
	jobID := uuid.NewString()
	maxAttempts := req.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	if req.LinkPlacement == "" {
		req.LinkPlacement = PlacementIntro
	}
	if req.PublishState == "" {
		req.PublishState = PublishDraft
	}

	err := retryOnBusy(ctx, func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer func() { _ = tx.Rollback() }()

		if _, err := tx.ExecContext(ctx,
			`INSERT INTO submissions (
                id, client_id, target_host, source_kind, doc_url, file_url,
                link_placement, publish_state, title, excerpt_hint, notes,
                idempotency_key, status, created_at, updated_at
            ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			submissionID,
			req.ClientID,
			req.TargetHost,
			req.SourceKind,
			nullableString(req.DocURL),
			nullableString(req.FileURL),
			req.LinkPlacement,
			req.PublishState,
			nullableString(req.Title),
			nullableString(req.ExcerptHint),
			nullableString(req.Notes),
			nullableString(req.IdempotencyKey),
			SubmissionQueued,
			timestamp,
			timestamp,
		); err != nil {
			return fmt.Errorf("insert submission: %w", err)
		}

		if _, err := tx.ExecContext(ctx,
			`INSERT INTO jobs (
                id, submission_id, client_id, target_host, status, stage,
                attempt_count, max_attempts, created_at, updated_at
            ) VALUES (?, ?, ?, ?, ?, ?, 0, ?, ?, ?)`,
			jobID,
			submissionID,
			req.ClientID,
			req.TargetHost,
			JobStatusQueued,
			StageConvert,
			maxAttempts,
			timestamp,
			timestamp,
		); err != nil {
			return fmt.Errorf("insert job: %w", err)
		}

		payload, err := json.Marshal(SubmissionAcceptedPayload{
			SubmissionID: submissionID,
			ClientID:     req.ClientID,
			TargetHost:   req.TargetHost,
			SourceKind:   string(req.SourceKind),
		})
		if err != nil {
			return fmt.Errorf("marshal seed event: %w", err)
		}
		if err := appendEventTx(ctx, tx, jobID, EventSubmissionAccepted, string(payload), timestamp); err != nil {
			return err
		}

		return tx.Commit()
	})
	if err != nil {
		return nil, nil, err
	}

	sub, err := s.GetSubmission(ctx, submissionID)
	if err != nil {
		return nil, nil, err
	}
	job, err := s.GetJob(ctx, jobID)
	if err != nil {
		return nil, nil, err
	}
	return sub, job, nil
}

// NewJobForSubmission enqueues a fresh job for an already stored submission.
// Used when a client resubmits the same document for another publication run.
func (s *Store) NewJobForSubmission(ctx context.Context, submissionID string, maxAttempts int) (*Job, error) {
	ctx = ensureContext(ctx)
	sub, err := s.GetSubmission(ctx, submissionID)
	if err != nil {
		return nil, err
	}
	if sub == nil {
		return nil, fmt.Errorf("submission %s not found", submissionID)
	}

	now := time.Now().UTC().Format(time.RFC3339Nano)
	jobID := uuid.NewString()
	if maxAttempts <= 0 {
		maxAttempts = 3
	}

	err = retryOnBusy(ctx, func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer func() { _ = tx.Rollback() }()

		if _, err := tx.ExecContext(ctx,
			`INSERT INTO jobs (
                id, submission_id, client_id, target_host, status, stage,
                attempt_count, max_attempts, created_at, updated_at
            ) VALUES (?, ?, ?, ?, ?, ?, 0, ?, ?, ?)`,
			jobID,
			sub.ID,
			sub.ClientID,
			sub.TargetHost,
			JobStatusQueued,
			StageConvert,
			maxAttempts,
			now,
			now,
		); err != nil {
			return fmt.Errorf("insert job: %w", err)
		}

		payload, err := json.Marshal(SubmissionAcceptedPayload{
			SubmissionID: sub.ID,
			ClientID:     sub.ClientID,
			TargetHost:   sub.TargetHost,
			SourceKind:   string(sub.SourceKind),
		})
		if err != nil {
			return fmt.Errorf("marshal seed event: %w", err)
		}
		if err := appendEventTx(ctx, tx, jobID, EventSubmissionAccepted, string(payload), now); err != nil {
			return err
		}

		return tx.Commit()
	})
	if err != nil {
		return nil, err
	}
	return s.GetJob(ctx, jobID)
}

// CreateRejectedSubmission persists a submission that failed validation. No
// job is created; the row exists so the rejection survives for audit.
func (s *Store) CreateRejectedSubmission(ctx context.Context, req NewSubmission, reason string) (*Submission, error) {
	ctx = ensureContext(ctx)
	now := time.Now().UTC().Format(time.RFC3339Nano)
	submissionID := uuid.NewString()

	// Rejected rows must still satisfy the table constraints even when the
	// request was malformed, so invalid enum values are coerced before insert.
	if req.SourceKind != SourceDocLink && req.SourceKind != SourceUploadedFile {
		req.SourceKind = SourceDocLink
	}
	if req.SourceKind == SourceDocLink && req.DocURL == "" {
		req.DocURL = "invalid"
	}
	if req.SourceKind == SourceUploadedFile && req.FileURL == "" {
		req.FileURL = "invalid"
	}
	if req.LinkPlacement != PlacementIntro && req.LinkPlacement != PlacementConclusion {
		req.LinkPlacement = PlacementIntro
	}
	if req.PublishState != PublishDraft && req.PublishState != PublishLive {
		req.PublishState = PublishDraft
	}

	if err := s.execWithoutResultRetry(ctx,
		`INSERT INTO submissions (
            id, client_id, target_host, source_kind, doc_url, file_url,
            link_placement, publish_state, title, excerpt_hint, notes,
            idempotency_key, status, rejection_reason, created_at, updated_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, NULL, ?, ?, ?, ?)`,
		submissionID,
		req.ClientID,
		req.TargetHost,
		req.SourceKind,
		nullableString(req.DocURL),
		nullableString(req.FileURL),
		req.LinkPlacement,
		req.PublishState,
		nullableString(req.Title),
		nullableString(req.ExcerptHint),
		nullableString(req.Notes),
		SubmissionRejected,
		nullableString(reason),
		now,
		now,
	); err != nil {
		return nil, fmt.Errorf("insert rejected submission: %w", err)
	}
	return s.GetSubmission(ctx, submissionID)
}

// GetSubmission fetches a submission by identifier.
func (s *Store) GetSubmission(ctx context.Context, id string) (*Submission, error) {
	row := s.db.QueryRowContext(ensureContext(ctx),
		`SELECT `+submissionColumns+` FROM submissions WHERE id = ?`, id)
	sub, err := scanSubmission(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get submission: %w", err)
	}
	return sub, nil
}

// FindSubmissionByIdempotencyKey returns the submission stored under a key, if any.
func (s *Store) FindSubmissionByIdempotencyKey(ctx context.Context, key string) (*Submission, error) {
	if key == "" {
		return nil, nil
	}
	row := s.db.QueryRowContext(ensureContext(ctx),
		`SELECT `+submissionColumns+` FROM submissions WHERE idempotency_key = ?`, key)
	sub, err := scanSubmission(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find submission by key: %w", err)
	}
	return sub, nil
}

// LatestJobForSubmission returns the most recently created job for a submission.
func (s *Store) LatestJobForSubmission(ctx context.Context, submissionID string) (*Job, error) {
	row := s.db.QueryRowContext(ensureContext(ctx),
		`SELECT `+jobColumns+` FROM jobs WHERE submission_id = ? ORDER BY created_at DESC, id DESC LIMIT 1`,
		submissionID)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("latest job for submission: %w", err)
	}
	return job, nil
}

// RejectSubmission marks a submission rejected with a reason. Only submissions
// that have not produced a job should be rejected.
func (s *Store) RejectSubmission(ctx context.Context, id, reason string) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	if err := s.execWithoutResultRetry(ctx,
		`UPDATE submissions SET status = ?, rejection_reason = ?, updated_at = ? WHERE id = ?`,
		SubmissionRejected, nullableString(reason), now, id,
	); err != nil {
		return fmt.Errorf("reject submission: %w", err)
	}
	return nil
}
