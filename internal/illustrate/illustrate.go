// Package illustrate implements the image generation stage. The stage is
// decorative: depending on policy a failure here may skip ahead to publish
// instead of failing the job.
package illustrate

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"linotype/internal/config"
	"linotype/internal/logging"
	"linotype/internal/queue"
	"linotype/internal/services"
	"linotype/internal/services/imagegen"
	"linotype/internal/stage"
)

// Generator describes the image generation dependency.
type Generator interface {
	Generate(ctx context.Context, req imagegen.Request) (imagegen.Image, error)
}

var transportRetry = services.RetryPolicy{Attempts: 2, Delay: 2 * time.Second}

// Illustrator is the illustrate stage handler.
type Illustrator struct {
	store     *queue.Store
	cfg       *config.Config
	logger    *slog.Logger
	generator Generator
}

// NewIllustrator constructs the stage handler with the configured generation client.
func NewIllustrator(cfg *config.Config, store *queue.Store, logger *slog.Logger) *Illustrator {
	var generator Generator
	if cfg.ImageGen.Enabled {
		generator = imagegen.NewClient(cfg.ImageGen.BaseURL, cfg.ImageGen.APIKey,
			imagegen.WithModel(cfg.ImageGen.Model),
			imagegen.WithPolling(
				time.Duration(cfg.ImageGen.PollIntervalSeconds)*time.Second,
				time.Duration(cfg.ImageGen.PollTimeoutSeconds)*time.Second))
	}
	return NewIllustratorWithGenerator(cfg, store, logger, generator)
}

// NewIllustratorWithGenerator allows injecting the generation dependency (used in tests).
func NewIllustratorWithGenerator(cfg *config.Config, store *queue.Store, logger *slog.Logger, generator Generator) *Illustrator {
	stageLogger := logger
	if stageLogger != nil {
		stageLogger = stageLogger.With(logging.String(logging.FieldComponent, "illustrate"))
	}
	return &Illustrator{store: store, cfg: cfg, logger: stageLogger, generator: generator}
}

func (i *Illustrator) Prepare(ctx context.Context, job *queue.Job) error {
	if !i.cfg.ImageGen.Enabled {
		return nil
	}
	_, err := stage.ParseDraft(job.DraftJSON)
	return err
}

func (i *Illustrator) Execute(ctx context.Context, job *queue.Job) error {
	logger := logging.WithContext(ctx, i.logger)

	if !i.cfg.ImageGen.Enabled {
		logger.Info("image generation disabled, skipping")
		return i.store.AppendEvent(ctx, job.ID, queue.EventStageSkipped, queue.StagePayload{
			Stage:   string(queue.StageIllustrate),
			Attempt: job.AttemptCount,
			Detail:  "image generation disabled",
		})
	}

	draft, err := stage.ParseDraft(job.DraftJSON)
	if err != nil {
		return err
	}
	prompt := draft.ImagePrompt
	if prompt == "" {
		prompt = fmt.Sprintf("Editorial illustration for an article titled %q", draft.Title)
	}

	width := i.cfg.ImageGen.Width
	height := i.cfg.ImageGen.Height
	var image imagegen.Image
	err = services.Retry(ctx, transportRetry, func(ctx context.Context) error {
		var callErr error
		image, callErr = i.generator.Generate(ctx, imagegen.Request{Prompt: prompt, Width: width, Height: height})
		return callErr
	})
	if err != nil {
		return err
	}

	asset, err := i.store.InsertAsset(ctx, queue.NewAsset{
		JobID:     job.ID,
		Kind:      queue.AssetIllustration,
		Provider:  "imagegen",
		SourceURL: image.URL,
		Width:     image.Width,
		Height:    image.Height,
		Format:    "png",
	})
	if err != nil {
		return err
	}

	if err := i.store.AppendEvent(ctx, job.ID, queue.EventImageGenerated, queue.ImageGeneratedPayload{
		Provider: "imagegen",
		ImageURL: image.URL,
		Width:    image.Width,
		Height:   image.Height,
		Prompt:   prompt,
	}); err != nil {
		return err
	}

	logger.Info("illustration generated",
		logging.String("asset_id", asset.ID),
		logging.Int("width", image.Width),
		logging.Int("height", image.Height))
	return nil
}

func (i *Illustrator) HealthCheck(ctx context.Context) stage.Health {
	if !i.cfg.ImageGen.Enabled {
		return stage.Healthy("illustrate")
	}
	if i.cfg.ImageGen.BaseURL == "" || i.cfg.ImageGen.APIKey == "" {
		return stage.Unhealthy("illustrate", "image generation enabled but not configured")
	}
	return stage.Healthy("illustrate")
}
