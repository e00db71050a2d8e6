package api

import (
	"context"

	"linotype/internal/submission"
)

// IntakeService is the slice of the intake layer the API needs.
type IntakeService interface {
	Submit(ctx context.Context, req submission.Request) (submission.Result, error)
}

// SubmitRequest is the wire form of a publication request. Field names match
// the submission intake body accepted over HTTP.
type SubmitRequest struct {
	ClientID       string `json:"client_id"`
	TargetHost     string `json:"target_host"`
	SourceKind     string `json:"source_kind"`
	DocURL         string `json:"doc_url,omitempty"`
	FileURL        string `json:"file_url,omitempty"`
	LinkPlacement  string `json:"link_placement,omitempty"`
	PublishState   string `json:"publish_state,omitempty"`
	Title          string `json:"title,omitempty"`
	ExcerptHint    string `json:"excerpt_hint,omitempty"`
	Notes          string `json:"notes,omitempty"`
	IdempotencyKey string `json:"idempotency_key,omitempty"`
	DeriveKey      bool   `json:"derive_key,omitempty"`
}

// SubmitResponse identifies the submission and job a request mapped to.
type SubmitResponse struct {
	SubmissionID string `json:"submission_id"`
	JobID        string `json:"job_id"`
	Deduplicated bool   `json:"deduplicated"`
}

// Submit runs a wire-form request through intake. Validation failures come
// back as services.ErrValidation errors for the transport layer to shape.
func Submit(ctx context.Context, intake IntakeService, req SubmitRequest) (SubmitResponse, error) {
	result, err := intake.Submit(ctx, submission.Request{
		ClientID:       req.ClientID,
		TargetHost:     req.TargetHost,
		SourceKind:     req.SourceKind,
		DocURL:         req.DocURL,
		FileURL:        req.FileURL,
		LinkPlacement:  req.LinkPlacement,
		PublishState:   req.PublishState,
		Title:          req.Title,
		ExcerptHint:    req.ExcerptHint,
		Notes:          req.Notes,
		IdempotencyKey: req.IdempotencyKey,
		DeriveKey:      req.DeriveKey,
	})
	if err != nil {
		return SubmitResponse{}, err
	}
	return SubmitResponse{
		SubmissionID: result.SubmissionID,
		JobID:        result.JobID,
		Deduplicated: result.Deduplicated,
	}, nil
}
