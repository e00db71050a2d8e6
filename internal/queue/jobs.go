package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// maxErrorLength bounds persisted error text so a chatty integration cannot
// bloat the jobs table.
const maxErrorLength = 2000

func truncateError(message string) string {
	if len(message) <= maxErrorLength {
		return message
	}
	return message[:maxErrorLength]
}

// GetJob fetches a job by identifier.
func (s *Store) GetJob(ctx context.Context, id string) (*Job, error) {
	row := s.db.QueryRowContext(ensureContext(ctx),
		`SELECT `+jobColumns+` FROM jobs WHERE id = ?`, id)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return job, nil
}

// ListJobs returns jobs filtered by status set (or all jobs when no status is
// provided), oldest first.
func (s *Store) ListJobs(ctx context.Context, statuses ...JobStatus) ([]*Job, error) {
	ctx = ensureContext(ctx)
	var (
		rows *sql.Rows
		err  error
	)

	baseQuery := `SELECT ` + jobColumns + ` FROM jobs`
	orderClause := ` ORDER BY created_at, id`

	if len(statuses) == 0 {
		rows, err = s.db.QueryContext(ctx, baseQuery+orderClause)
	} else {
		placeholders := makePlaceholders(len(statuses))
		args := make([]any, len(statuses))
		for i, status := range statuses {
			args[i] = status
		}
		query := baseQuery + ` WHERE status IN (` + placeholders + `)` + orderClause
		rows, err = s.db.QueryContext(ctx, query, args...)
	}
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

// ClaimNext atomically claims the oldest runnable job for processing. Queued
// jobs are claimed as-is; retrying jobs whose backoff has elapsed are claimed
// with attempt_count incremented. Returns nil when nothing is runnable. The
// conditional UPDATE guarantees at most one claimer wins a given job.
func (s *Store) ClaimNext(ctx context.Context) (*Job, error) {
	ctx = ensureContext(ctx)
	for {
		now := time.Now().UTC()
		nowStr := now.Format(time.RFC3339Nano)

		row := s.db.QueryRowContext(ctx,
			`SELECT `+jobColumns+` FROM jobs
             WHERE status = ? OR (status = ? AND (next_attempt_at IS NULL OR next_attempt_at <= ?))
             ORDER BY created_at, id LIMIT 1`,
			JobStatusQueued, JobStatusRetrying, nowStr)
		candidate, err := scanJob(row)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		if err != nil {
			return nil, fmt.Errorf("select claim candidate: %w", err)
		}

		var res sql.Result
		switch candidate.Status {
		case JobStatusQueued:
			res, err = s.execWithRetry(ctx,
				`UPDATE jobs SET status = ?, last_heartbeat = ?, updated_at = ?
                 WHERE id = ? AND status = ?`,
				JobStatusProcessing, nowStr, nowStr, candidate.ID, JobStatusQueued)
		case JobStatusRetrying:
			res, err = s.execWithRetry(ctx,
				`UPDATE jobs SET status = ?, attempt_count = attempt_count + 1,
                     next_attempt_at = NULL, last_heartbeat = ?, updated_at = ?
                 WHERE id = ? AND status = ?`,
				JobStatusProcessing, nowStr, nowStr, candidate.ID, JobStatusRetrying)
		default:
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("claim job: %w", err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return nil, fmt.Errorf("claim rows affected: %w", err)
		}
		if affected == 1 {
			return s.GetJob(ctx, candidate.ID)
		}
		// Lost the race to another claimer; look for the next candidate.
	}
}

// MarkSucceeded finalizes a processing job. The status guard keeps terminal
// rows immutable even if a stale worker calls in late.
func (s *Store) MarkSucceeded(ctx context.Context, id string) (bool, error) {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	res, err := s.execWithRetry(ctx,
		`UPDATE jobs SET status = ?, last_error = NULL, last_heartbeat = NULL, updated_at = ?
         WHERE id = ? AND status = ?`,
		JobStatusSucceeded, now, id, JobStatusProcessing)
	if err != nil {
		return false, fmt.Errorf("mark succeeded: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected == 1, nil
}

// MarkRetrying schedules another attempt after a transient failure.
func (s *Store) MarkRetrying(ctx context.Context, id, message string, nextAttemptAt time.Time) (bool, error) {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	res, err := s.execWithRetry(ctx,
		`UPDATE jobs SET status = ?, last_error = ?, next_attempt_at = ?, last_heartbeat = NULL, updated_at = ?
         WHERE id = ? AND status = ?`,
		JobStatusRetrying, nullableString(truncateError(message)),
		nextAttemptAt.UTC().Format(time.RFC3339Nano), now, id, JobStatusProcessing)
	if err != nil {
		return false, fmt.Errorf("mark retrying: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected == 1, nil
}

// MarkFailed finalizes a processing job as permanently failed.
func (s *Store) MarkFailed(ctx context.Context, id, message string) (bool, error) {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	res, err := s.execWithRetry(ctx,
		`UPDATE jobs SET status = ?, last_error = ?, last_heartbeat = NULL, updated_at = ?
         WHERE id = ? AND status = ?`,
		JobStatusFailed, nullableString(truncateError(message)), now, id, JobStatusProcessing)
	if err != nil {
		return false, fmt.Errorf("mark failed: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected == 1, nil
}

// CancelOutcome reports what a cancellation request achieved.
type CancelOutcome string

const (
	CancelImmediate CancelOutcome = "cancelled"
	CancelRequested CancelOutcome = "cancel_requested"
	CancelRejected  CancelOutcome = "rejected"
)

// Cancel cancels a waiting job immediately, or flags an in-flight job so the
// worker stops at the next stage boundary. Terminal jobs are left untouched.
func (s *Store) Cancel(ctx context.Context, id string) (CancelOutcome, error) {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	res, err := s.execWithRetry(ctx,
		`UPDATE jobs SET status = ?, last_heartbeat = NULL, next_attempt_at = NULL, updated_at = ?
         WHERE id = ? AND status IN (?, ?)`,
		JobStatusCancelled, now, id, JobStatusQueued, JobStatusRetrying)
	if err != nil {
		return CancelRejected, fmt.Errorf("cancel job: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return CancelRejected, err
	}
	if affected == 1 {
		return CancelImmediate, nil
	}

	res, err = s.execWithRetry(ctx,
		`UPDATE jobs SET cancel_requested = 1, updated_at = ? WHERE id = ? AND status = ?`,
		now, id, JobStatusProcessing)
	if err != nil {
		return CancelRejected, fmt.Errorf("request cancel: %w", err)
	}
	affected, err = res.RowsAffected()
	if err != nil {
		return CancelRejected, err
	}
	if affected == 1 {
		return CancelRequested, nil
	}
	return CancelRejected, nil
}

// FinishCancelled moves a processing job with a pending cancel request to the
// cancelled terminal state. Called by the worker at a stage boundary.
func (s *Store) FinishCancelled(ctx context.Context, id string) (bool, error) {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	res, err := s.execWithRetry(ctx,
		`UPDATE jobs SET status = ?, cancel_requested = 0, last_heartbeat = NULL, updated_at = ?
         WHERE id = ? AND status = ? AND cancel_requested = 1`,
		JobStatusCancelled, now, id, JobStatusProcessing)
	if err != nil {
		return false, fmt.Errorf("finish cancelled: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected == 1, nil
}

// Requeue returns a failed job to the queue with a fresh attempt budget. The
// stage cursor is preserved so the job resumes where it failed.
func (s *Store) Requeue(ctx context.Context, id string) (bool, error) {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	res, err := s.execWithRetry(ctx,
		`UPDATE jobs SET status = ?, attempt_count = 0, last_error = NULL,
             next_attempt_at = NULL, updated_at = ?
         WHERE id = ? AND status = ?`,
		JobStatusQueued, now, id, JobStatusFailed)
	if err != nil {
		return false, fmt.Errorf("requeue job: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected == 1, nil
}

// AdvanceStage persists the stage cursor so a retried job resumes past
// completed stages. The status guard refuses writes from a worker that lost
// the job to reclaim.
func (s *Store) AdvanceStage(ctx context.Context, id string, stage Stage) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	res, err := s.execWithRetry(ctx,
		`UPDATE jobs SET stage = ?, updated_at = ? WHERE id = ? AND status = ?`,
		stage, now, id, JobStatusProcessing)
	if err != nil {
		return fmt.Errorf("advance stage: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected != 1 {
		return fmt.Errorf("advance stage: job %s is not processing", id)
	}
	return nil
}

// SetDraft persists the converter output carried between stages. Guarded like
// AdvanceStage so a stale worker cannot overwrite another worker's draft.
func (s *Store) SetDraft(ctx context.Context, id, draftJSON string) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	res, err := s.execWithRetry(ctx,
		`UPDATE jobs SET draft_json = ?, updated_at = ? WHERE id = ? AND status = ?`,
		nullableString(draftJSON), now, id, JobStatusProcessing)
	if err != nil {
		return fmt.Errorf("set draft: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected != 1 {
		return fmt.Errorf("set draft: job %s is not processing", id)
	}
	return nil
}

// SetPost records the published post so later attempts update instead of
// creating a duplicate. Guarded like AdvanceStage.
func (s *Store) SetPost(ctx context.Context, id string, postID int64, postURL string) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	res, err := s.execWithRetry(ctx,
		`UPDATE jobs SET post_id = ?, post_url = ?, updated_at = ? WHERE id = ? AND status = ?`,
		nullableInt64(postID), nullableString(postURL), now, id, JobStatusProcessing)
	if err != nil {
		return fmt.Errorf("set post: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected != 1 {
		return fmt.Errorf("set post: job %s is not processing", id)
	}
	return nil
}

// UpdateHeartbeat refreshes the liveness marker for an in-flight job.
func (s *Store) UpdateHeartbeat(ctx context.Context, id string) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	if err := s.execWithoutResultRetry(ctx,
		`UPDATE jobs SET last_heartbeat = ?, updated_at = ? WHERE id = ? AND status = ?`,
		now, now, id, JobStatusProcessing,
	); err != nil {
		return fmt.Errorf("update heartbeat: %w", err)
	}
	return nil
}
