// Package submission normalizes inbound publication requests into persisted
// submissions and guards against duplicate work via idempotency keys.
package submission

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"linotype/internal/logging"
	"linotype/internal/queue"
	"linotype/internal/services"
	"linotype/internal/targets"
)

const maxIdempotencyKeyLength = 200

// Request is a raw inbound publication request before validation.
type Request struct {
	ClientID       string
	TargetHost     string
	SourceKind     string
	DocURL         string
	FileURL        string
	LinkPlacement  string
	PublishState   string
	Title          string
	ExcerptHint    string
	Notes          string
	IdempotencyKey string
	// DeriveKey asks for a deterministic idempotency key computed from the
	// request identity when the caller supplies none. Off by default: no key
	// means every call creates new work.
	DeriveKey bool
}

// Result identifies the submission and job an accepted request maps to.
type Result struct {
	SubmissionID string
	JobID        string
	Deduplicated bool
}

// Intake validates requests against the target directory and writes them to
// the store.
type Intake struct {
	store       *queue.Store
	directory   *targets.Directory
	maxAttempts int
	logger      *slog.Logger
}

// NewIntake constructs the intake service. maxAttempts seeds the retry ceiling
// on every job it creates.
func NewIntake(store *queue.Store, directory *targets.Directory, maxAttempts int, logger *slog.Logger) *Intake {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Intake{store: store, directory: directory, maxAttempts: maxAttempts, logger: logger}
}

// Submit runs a request through validation and the idempotency guard, then
// persists it. Validation failures persist a rejected submission and return a
// services.ErrValidation error; no job is created for rejections.
func (i *Intake) Submit(ctx context.Context, req Request) (Result, error) {
	var empty Result

	normalized, err := i.normalize(req)
	if err != nil {
		reason := err.Error()
		if sub, rejectErr := i.store.CreateRejectedSubmission(ctx, rejectedRecord(req), reason); rejectErr != nil {
			i.logger.Warn("failed to persist rejected submission",
				logging.String(logging.FieldComponent, "submission"),
				logging.Error(rejectErr))
		} else if sub != nil {
			i.logger.Info("submission rejected",
				logging.String(logging.FieldComponent, "submission"),
				logging.String(logging.FieldSubmissionID, sub.ID),
				logging.String("reason", reason))
		}
		return empty, err
	}

	if normalized.IdempotencyKey != "" {
		existing, err := i.store.FindSubmissionByIdempotencyKey(ctx, normalized.IdempotencyKey)
		if err != nil {
			return empty, err
		}
		if existing != nil {
			job, err := i.store.LatestJobForSubmission(ctx, existing.ID)
			if err != nil {
				return empty, err
			}
			if job == nil {
				return empty, fmt.Errorf("submission %s has no job", existing.ID)
			}
			i.logger.Info("submission deduplicated",
				logging.String(logging.FieldComponent, "submission"),
				logging.String(logging.FieldSubmissionID, existing.ID),
				logging.String(logging.FieldJobID, job.ID))
			return Result{SubmissionID: existing.ID, JobID: job.ID, Deduplicated: true}, nil
		}
	}

	sub, job, err := i.store.CreateSubmission(ctx, normalized)
	if err != nil {
		// A concurrent request may have landed the same key first; a lost
		// race resolves to the winner's pair.
		if normalized.IdempotencyKey != "" && isUniqueViolation(err) {
			existing, lookupErr := i.store.FindSubmissionByIdempotencyKey(ctx, normalized.IdempotencyKey)
			if lookupErr == nil && existing != nil {
				if job, jobErr := i.store.LatestJobForSubmission(ctx, existing.ID); jobErr == nil && job != nil {
					return Result{SubmissionID: existing.ID, JobID: job.ID, Deduplicated: true}, nil
				}
			}
		}
		return empty, err
	}

	i.logger.Info("submission accepted",
		logging.String(logging.FieldComponent, "submission"),
		logging.String(logging.FieldSubmissionID, sub.ID),
		logging.String(logging.FieldJobID, job.ID),
		logging.String(logging.FieldTarget, sub.TargetHost))
	return Result{SubmissionID: sub.ID, JobID: job.ID}, nil
}

// Resubmit enqueues a fresh job for an existing submission.
func (i *Intake) Resubmit(ctx context.Context, submissionID string) (Result, error) {
	job, err := i.store.NewJobForSubmission(ctx, submissionID, i.maxAttempts)
	if err != nil {
		return Result{}, err
	}
	return Result{SubmissionID: submissionID, JobID: job.ID}, nil
}

func (i *Intake) normalize(req Request) (queue.NewSubmission, error) {
	var empty queue.NewSubmission

	clientID := strings.TrimSpace(req.ClientID)
	if clientID == "" {
		return empty, services.Wrap(services.ErrValidation, "intake", "normalize", "client_id required", nil)
	}

	host := strings.ToLower(strings.TrimSpace(req.TargetHost))
	if host == "" {
		return empty, services.Wrap(services.ErrValidation, "intake", "normalize", "target_host required", nil)
	}
	if _, err := i.directory.Lookup(host); err != nil {
		return empty, services.Wrap(services.ErrValidation, "intake", "normalize",
			fmt.Sprintf("target_host %q is not a configured target", host), nil)
	}

	kind := queue.SourceKind(strings.TrimSpace(req.SourceKind))
	docURL := strings.TrimSpace(req.DocURL)
	fileURL := strings.TrimSpace(req.FileURL)
	switch kind {
	case queue.SourceDocLink, queue.SourceUploadedFile:
	case "":
		return empty, services.Wrap(services.ErrValidation, "intake", "normalize", "source_kind required", nil)
	default:
		return empty, services.Wrap(services.ErrValidation, "intake", "normalize",
			fmt.Sprintf("source_kind %q must be %s or %s", kind, queue.SourceDocLink, queue.SourceUploadedFile), nil)
	}
	if docURL != "" && fileURL != "" {
		return empty, services.Wrap(services.ErrValidation, "intake", "normalize",
			"exactly one of doc_url and file_url may be set", nil)
	}
	switch kind {
	case queue.SourceDocLink:
		if docURL == "" {
			return empty, services.Wrap(services.ErrValidation, "intake", "normalize", "doc_url required for doc-link", nil)
		}
		parsed, err := url.Parse(docURL)
		if err != nil || parsed.Scheme == "" || parsed.Host == "" {
			return empty, services.Wrap(services.ErrValidation, "intake", "normalize",
				fmt.Sprintf("doc_url %q is not an absolute URL", docURL), nil)
		}
	case queue.SourceUploadedFile:
		if fileURL == "" {
			return empty, services.Wrap(services.ErrValidation, "intake", "normalize", "file_url required for uploaded-file", nil)
		}
	}

	placement := queue.LinkPlacement(strings.TrimSpace(req.LinkPlacement))
	switch placement {
	case queue.PlacementIntro, queue.PlacementConclusion:
	case "":
		placement = queue.PlacementIntro
	default:
		return empty, services.Wrap(services.ErrValidation, "intake", "normalize",
			fmt.Sprintf("link_placement %q must be %s or %s", placement, queue.PlacementIntro, queue.PlacementConclusion), nil)
	}

	state := queue.PublishState(strings.TrimSpace(req.PublishState))
	switch state {
	case queue.PublishDraft, queue.PublishLive:
	case "":
		state = queue.PublishDraft
	default:
		return empty, services.Wrap(services.ErrValidation, "intake", "normalize",
			fmt.Sprintf("publish_state %q must be %s or %s", state, queue.PublishDraft, queue.PublishLive), nil)
	}

	key := strings.TrimSpace(req.IdempotencyKey)
	if key == "" && req.DeriveKey {
		source := docURL
		if kind == queue.SourceUploadedFile {
			source = fileURL
		}
		key = DeriveKey(clientID, host, string(kind), source)
	}
	if len(key) > maxIdempotencyKeyLength {
		key = key[:maxIdempotencyKeyLength]
	}

	return queue.NewSubmission{
		ClientID:       clientID,
		TargetHost:     host,
		SourceKind:     kind,
		DocURL:         docURL,
		FileURL:        fileURL,
		LinkPlacement:  placement,
		PublishState:   state,
		Title:          strings.TrimSpace(req.Title),
		ExcerptHint:    strings.TrimSpace(req.ExcerptHint),
		Notes:          strings.TrimSpace(req.Notes),
		IdempotencyKey: key,
		MaxAttempts:    i.maxAttempts,
	}, nil
}

// DeriveKey builds a deterministic idempotency key from the request identity.
// Two requests for the same document against the same target collapse into
// one unit of work when key derivation is requested.
func DeriveKey(clientID, targetHost, sourceKind, source string) string {
	key := strings.Join([]string{
		sanitizeKeyPart(clientID),
		sanitizeKeyPart(targetHost),
		sanitizeKeyPart(sourceKind),
		sanitizeKeyPart(source),
	}, ":")
	if len(key) > maxIdempotencyKeyLength {
		key = key[:maxIdempotencyKeyLength]
	}
	return key
}

func sanitizeKeyPart(part string) string {
	part = strings.ToLower(strings.TrimSpace(part))
	var b strings.Builder
	b.Grow(len(part))
	for _, r := range part {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-', r == '.', r == '/', r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('-')
		}
	}
	return b.String()
}

func rejectedRecord(req Request) queue.NewSubmission {
	return queue.NewSubmission{
		ClientID:      strings.TrimSpace(req.ClientID),
		TargetHost:    strings.ToLower(strings.TrimSpace(req.TargetHost)),
		SourceKind:    queue.SourceKind(strings.TrimSpace(req.SourceKind)),
		DocURL:        strings.TrimSpace(req.DocURL),
		FileURL:       strings.TrimSpace(req.FileURL),
		LinkPlacement: queue.LinkPlacement(strings.TrimSpace(req.LinkPlacement)),
		PublishState:  queue.PublishState(strings.TrimSpace(req.PublishState)),
		Title:         strings.TrimSpace(req.Title),
		Notes:         strings.TrimSpace(req.Notes),
	}
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(strings.ToLower(err.Error()), "unique")
}
