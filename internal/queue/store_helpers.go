package queue

import (
	"database/sql"
	"errors"
	"time"
)

const submissionColumns = "id, client_id, target_host, source_kind, doc_url, file_url, link_placement, publish_state, title, excerpt_hint, notes, idempotency_key, status, rejection_reason, created_at, updated_at"

const jobColumns = "id, submission_id, client_id, target_host, status, stage, attempt_count, max_attempts, last_error, next_attempt_at, draft_json, post_id, post_url, last_heartbeat, cancel_requested, created_at, updated_at"

const assetColumns = "id, job_id, kind, provider, source_url, storage_url, media_id, width, height, format, created_at"

type rowScanner interface{ Scan(dest ...any) error }

func scanSubmission(scanner rowScanner) (*Submission, error) {
	var (
		id              string
		clientID        string
		targetHost      string
		sourceKind      string
		docURL          sql.NullString
		fileURL         sql.NullString
		linkPlacement   string
		publishState    string
		title           sql.NullString
		excerptHint     sql.NullString
		notes           sql.NullString
		idempotencyKey  sql.NullString
		statusStr       string
		rejectionReason sql.NullString
		createdRaw      string
		updatedRaw      string
	)

	if err := scanner.Scan(
		&id,
		&clientID,
		&targetHost,
		&sourceKind,
		&docURL,
		&fileURL,
		&linkPlacement,
		&publishState,
		&title,
		&excerptHint,
		&notes,
		&idempotencyKey,
		&statusStr,
		&rejectionReason,
		&createdRaw,
		&updatedRaw,
	); err != nil {
		return nil, err
	}

	sub := &Submission{
		ID:              id,
		ClientID:        clientID,
		TargetHost:      targetHost,
		SourceKind:      SourceKind(sourceKind),
		DocURL:          docURL.String,
		FileURL:         fileURL.String,
		LinkPlacement:   LinkPlacement(linkPlacement),
		PublishState:    PublishState(publishState),
		Title:           title.String,
		ExcerptHint:     excerptHint.String,
		Notes:           notes.String,
		IdempotencyKey:  idempotencyKey.String,
		Status:          SubmissionStatus(statusStr),
		RejectionReason: rejectionReason.String,
	}
	if created, err := parseTimeString(createdRaw); err == nil {
		sub.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw); err == nil {
		sub.UpdatedAt = updated
	}
	return sub, nil
}

func scanJob(scanner rowScanner) (*Job, error) {
	var (
		id               string
		submissionID     string
		clientID         string
		targetHost       string
		statusStr        string
		stageStr         string
		attemptCount     int
		maxAttempts      int
		lastError        sql.NullString
		nextAttemptRaw   sql.NullString
		draftJSON        sql.NullString
		postID           sql.NullInt64
		postURL          sql.NullString
		lastHeartbeatRaw sql.NullString
		cancelRequested  sql.NullInt64
		createdRaw       string
		updatedRaw       string
	)

	if err := scanner.Scan(
		&id,
		&submissionID,
		&clientID,
		&targetHost,
		&statusStr,
		&stageStr,
		&attemptCount,
		&maxAttempts,
		&lastError,
		&nextAttemptRaw,
		&draftJSON,
		&postID,
		&postURL,
		&lastHeartbeatRaw,
		&cancelRequested,
		&createdRaw,
		&updatedRaw,
	); err != nil {
		return nil, err
	}

	job := &Job{
		ID:           id,
		SubmissionID: submissionID,
		ClientID:     clientID,
		TargetHost:   targetHost,
		Status:       JobStatus(statusStr),
		Stage:        Stage(stageStr),
		AttemptCount: attemptCount,
		MaxAttempts:  maxAttempts,
		LastError:    lastError.String,
		DraftJSON:    draftJSON.String,
		PostID:       postID.Int64,
		PostURL:      postURL.String,
	}
	if cancelRequested.Valid {
		job.CancelRequested = cancelRequested.Int64 != 0
	}
	if nextAttemptRaw.Valid {
		if next, err := parseTimeString(nextAttemptRaw.String); err == nil {
			job.NextAttemptAt = &next
		}
	}
	if lastHeartbeatRaw.Valid {
		if heartbeat, err := parseTimeString(lastHeartbeatRaw.String); err == nil {
			job.LastHeartbeat = &heartbeat
		}
	}
	if created, err := parseTimeString(createdRaw); err == nil {
		job.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw); err == nil {
		job.UpdatedAt = updated
	}
	return job, nil
}

func scanAsset(scanner rowScanner) (*Asset, error) {
	var (
		id         string
		jobID      string
		kind       string
		provider   string
		sourceURL  sql.NullString
		storageURL sql.NullString
		mediaID    sql.NullInt64
		width      sql.NullInt64
		height     sql.NullInt64
		format     sql.NullString
		createdRaw string
	)

	if err := scanner.Scan(
		&id,
		&jobID,
		&kind,
		&provider,
		&sourceURL,
		&storageURL,
		&mediaID,
		&width,
		&height,
		&format,
		&createdRaw,
	); err != nil {
		return nil, err
	}

	asset := &Asset{
		ID:         id,
		JobID:      jobID,
		Kind:       AssetKind(kind),
		Provider:   provider,
		SourceURL:  sourceURL.String,
		StorageURL: storageURL.String,
		MediaID:    mediaID.Int64,
		Width:      int(width.Int64),
		Height:     int(height.Int64),
		Format:     format.String,
	}
	if created, err := parseTimeString(createdRaw); err == nil {
		asset.CreatedAt = created
	}
	return asset, nil
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func nullableInt64(value int64) any {
	if value == 0 {
		return nil
	}
	return value
}

func nullableTime(value *time.Time) any {
	if value == nil {
		return nil
	}
	return value.UTC().Format(time.RFC3339Nano)
}

func boolToInt(value bool) int {
	if value {
		return 1
	}
	return 0
}

func parseTimeString(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty")
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02 15:04:05", value)
}

func makePlaceholders(count int) string {
	if count <= 0 {
		return ""
	}
	placeholders := make([]byte, 0, count*2)
	for i := 0; i < count; i++ {
		if i > 0 {
			placeholders = append(placeholders, ',')
		}
		placeholders = append(placeholders, '?')
	}
	return string(placeholders)
}
