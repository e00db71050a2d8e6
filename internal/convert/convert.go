// Package convert implements the first pipeline stage: turning the submitted
// source document into a sanitized draft ready for illustration and publish.
package convert

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"linotype/internal/config"
	"linotype/internal/logging"
	"linotype/internal/queue"
	"linotype/internal/services"
	"linotype/internal/services/converter"
	"linotype/internal/stage"
)

// Service describes the document conversion dependency.
type Service interface {
	Convert(ctx context.Context, sourceURL, publishingHost string) (converter.Result, error)
}

// transportRetry bounds the nested retry around one conversion call. It sits
// inside the job-level attempt so a blip on the wire does not burn a whole
// attempt.
var transportRetry = services.RetryPolicy{Attempts: 3, Delay: 2 * time.Second}

// Converter is the convert stage handler.
type Converter struct {
	store     *queue.Store
	cfg       *config.Config
	logger    *slog.Logger
	converter Service
}

// NewConverter constructs the stage handler with the configured conversion client.
func NewConverter(cfg *config.Config, store *queue.Store, logger *slog.Logger) *Converter {
	client := converter.NewClient(cfg.Converter.BaseURL,
		converter.WithAPIKey(cfg.Converter.APIKey),
		converter.WithTimeout(time.Duration(cfg.Converter.TimeoutSeconds)*time.Second))
	return NewConverterWithService(cfg, store, logger, client)
}

// NewConverterWithService allows injecting the conversion dependency (used in tests).
func NewConverterWithService(cfg *config.Config, store *queue.Store, logger *slog.Logger, svc Service) *Converter {
	stageLogger := logger
	if stageLogger != nil {
		stageLogger = stageLogger.With(logging.String(logging.FieldComponent, "convert"))
	}
	return &Converter{store: store, cfg: cfg, logger: stageLogger, converter: svc}
}

func (c *Converter) Prepare(ctx context.Context, job *queue.Job) error {
	logger := logging.WithContext(ctx, c.logger)
	sub, err := c.store.GetSubmission(ctx, job.SubmissionID)
	if err != nil {
		return err
	}
	if sub == nil {
		return services.Wrap(services.ErrValidation, "convert", "load submission",
			fmt.Sprintf("job %s references missing submission %s", job.ID, job.SubmissionID), nil)
	}
	if sub.SourceURL() == "" {
		return services.Wrap(services.ErrValidation, "convert", "load submission",
			"submission carries no source document", nil)
	}
	logger.Info("starting conversion",
		logging.String("source", sub.SourceURL()),
		logging.String(logging.FieldTarget, job.TargetHost))
	return nil
}

func (c *Converter) Execute(ctx context.Context, job *queue.Job) error {
	logger := logging.WithContext(ctx, c.logger)

	sub, err := c.store.GetSubmission(ctx, job.SubmissionID)
	if err != nil {
		return err
	}
	if sub == nil {
		return services.Wrap(services.ErrValidation, "convert", "load submission",
			fmt.Sprintf("job %s references missing submission %s", job.ID, job.SubmissionID), nil)
	}

	var result converter.Result
	err = services.Retry(ctx, transportRetry, func(ctx context.Context) error {
		var callErr error
		result, callErr = c.converter.Convert(ctx, sub.SourceURL(), job.TargetHost)
		return callErr
	})
	if err != nil {
		return err
	}

	draft := queue.Draft{
		Title:       result.Title,
		Slug:        result.Slug,
		CleanHTML:   result.CleanHTML,
		Excerpt:     result.Excerpt,
		ImagePrompt: result.ImagePrompt,
	}
	// The submitter's own title wins over the derived one.
	if sub.Title != "" {
		draft.Title = sub.Title
	}

	encoded, err := json.Marshal(draft)
	if err != nil {
		return services.Wrap(services.ErrPermanent, "convert", "encode draft", "", err)
	}
	if err := c.store.SetDraft(ctx, job.ID, string(encoded)); err != nil {
		return err
	}
	job.DraftJSON = string(encoded)

	logger.Info("conversion complete",
		logging.String("title", draft.Title),
		logging.String("slug", draft.Slug),
		logging.Int("content_bytes", len(draft.CleanHTML)))
	return nil
}

func (c *Converter) HealthCheck(ctx context.Context) stage.Health {
	if c.cfg.Converter.BaseURL == "" {
		return stage.Unhealthy("convert", "converter base_url not configured")
	}
	return stage.Healthy("convert")
}
