// Package publish implements the final pipeline stage: uploading the
// illustration to the target CMS and creating or updating the post.
package publish

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
	"linotype/internal/services/wordpress"
	"linotype/internal/stage"
	"linotype/internal/targets"
)

// CMS describes the publishing operations against one target site.
type CMS interface {
	UploadMedia(ctx context.Context, filename, contentType string, data []byte) (wordpress.Media, error)
	CreatePost(ctx context.Context, input wordpress.PostInput) (wordpress.Post, error)
	UpdatePost(ctx context.Context, postID int64, input wordpress.PostInput) (wordpress.Post, error)
	FindPostBySlug(ctx context.Context, slug string) (*wordpress.Post, error)
}

// ImageSource regenerates and fetches illustration renditions for the
// payload-shrink ladder.
type ImageSource interface {
	Generate(ctx context.Context, req imagegen.Request) (imagegen.Image, error)
	Download(ctx context.Context, url string) ([]byte, error)
}

// shrinkLadder lists the fallback dimensions tried, in order, when the CMS
// rejects an upload as too large. Each size is tried at most once.
var shrinkLadder = [][2]int{{768, 432}, {640, 360}, {512, 288}}

var transportRetry = services.RetryPolicy{Attempts: 2, Delay: 2 * time.Second}

// Publisher is the publish stage handler.
type Publisher struct {
	store      *queue.Store
	cfg        *config.Config
	logger     *slog.Logger
	directory  *targets.Directory
	cmsFactory func(targets.Target) CMS
	images     ImageSource
}

// NewPublisher constructs the stage handler with real CMS clients per target.
func NewPublisher(cfg *config.Config, store *queue.Store, logger *slog.Logger, directory *targets.Directory) *Publisher {
	factory := func(t targets.Target) CMS {
		return wordpress.NewClient(t.BaseURL, t.Username, t.AppPassword)
	}
	var images ImageSource
	if cfg.ImageGen.Enabled {
		images = imagegen.NewClient(cfg.ImageGen.BaseURL, cfg.ImageGen.APIKey,
			imagegen.WithModel(cfg.ImageGen.Model),
			imagegen.WithPolling(
				time.Duration(cfg.ImageGen.PollIntervalSeconds)*time.Second,
				time.Duration(cfg.ImageGen.PollTimeoutSeconds)*time.Second))
	}
	return NewPublisherWithDependencies(cfg, store, logger, directory, factory, images)
}

// NewPublisherWithDependencies allows injecting collaborators (used in tests).
func NewPublisherWithDependencies(
	cfg *config.Config,
	store *queue.Store,
	logger *slog.Logger,
	directory *targets.Directory,
	cmsFactory func(targets.Target) CMS,
	images ImageSource,
) *Publisher {
	stageLogger := logger
	if stageLogger != nil {
		stageLogger = stageLogger.With(logging.String(logging.FieldComponent, "publish"))
	}
	return &Publisher{
		store:      store,
		cfg:        cfg,
		logger:     stageLogger,
		directory:  directory,
		cmsFactory: cmsFactory,
		images:     images,
	}
}

func (p *Publisher) Prepare(ctx context.Context, job *queue.Job) error {
	if _, err := stage.ParseDraft(job.DraftJSON); err != nil {
		return err
	}
	if _, err := p.directory.Lookup(job.TargetHost); err != nil {
		return services.Wrap(services.ErrConfiguration, "publish", "resolve target",
			fmt.Sprintf("target %q not configured", job.TargetHost), err)
	}
	return nil
}

func (p *Publisher) Execute(ctx context.Context, job *queue.Job) error {
	logger := logging.WithContext(ctx, p.logger)

	draft, err := stage.ParseDraft(job.DraftJSON)
	if err != nil {
		return err
	}
	target, err := p.directory.Lookup(job.TargetHost)
	if err != nil {
		return services.Wrap(services.ErrConfiguration, "publish", "resolve target",
			fmt.Sprintf("target %q not configured", job.TargetHost), err)
	}
	sub, err := p.store.GetSubmission(ctx, job.SubmissionID)
	if err != nil {
		return err
	}
	if sub == nil {
		return services.Wrap(services.ErrValidation, "publish", "load submission",
			fmt.Sprintf("job %s references missing submission %s", job.ID, job.SubmissionID), nil)
	}

	cms := p.cmsFactory(target)

	featuredMedia, err := p.ensureMedia(ctx, cms, job, draft, logger)
	if err != nil {
		return err
	}

	input := wordpress.PostInput{
		Title:         draft.Title,
		Slug:          draft.Slug,
		ContentHTML:   composeContent(draft, sub),
		Excerpt:       draft.Excerpt,
		Status:        string(sub.PublishState),
		FeaturedMedia: featuredMedia,
		Categories:    target.Categories,
		Tags:          target.Tags,
	}

	post, updated, err := p.writePost(ctx, cms, job, draft.Slug, input)
	if err != nil {
		return err
	}

	if err := p.store.SetPost(ctx, job.ID, post.ID, post.Link); err != nil {
		return err
	}
	job.PostID = post.ID
	job.PostURL = post.Link

	if err := p.store.AppendEvent(ctx, job.ID, queue.EventPublishOK, queue.PublishPayload{
		PostID:  post.ID,
		PostURL: post.Link,
		Title:   draft.Title,
		Slug:    draft.Slug,
		Updated: updated,
	}); err != nil {
		return err
	}

	logger.Info("published",
		logging.Int64("post_id", post.ID),
		logging.String("post_url", post.Link),
		logging.Bool("updated", updated))
	return nil
}

// ensureMedia uploads the job's illustration, walking the shrink ladder on
// oversize rejections. Returns 0 when the job carries no illustration.
func (p *Publisher) ensureMedia(ctx context.Context, cms CMS, job *queue.Job, draft queue.Draft, logger *slog.Logger) (int64, error) {
	assets, err := p.store.AssetsForJob(ctx, job.ID)
	if err != nil {
		return 0, err
	}
	var asset *queue.Asset
	for _, candidate := range assets {
		if candidate.Kind == queue.AssetIllustration {
			asset = candidate
		}
	}
	if asset == nil {
		return 0, nil
	}
	// A previous attempt may already have uploaded it.
	if asset.MediaID > 0 {
		return asset.MediaID, nil
	}
	if p.images == nil {
		logger.Warn("illustration present but image source unavailable, publishing without it")
		return 0, nil
	}

	filename := draft.Slug + ".png"
	sizesTried := 0
	imageURL := asset.SourceURL
	width, height := asset.Width, asset.Height

	for {
		data, err := p.images.Download(ctx, imageURL)
		if err != nil {
			return 0, err
		}

		var media wordpress.Media
		err = services.Retry(ctx, transportRetry, func(ctx context.Context) error {
			var callErr error
			media, callErr = cms.UploadMedia(ctx, filename, "image/png", data)
			return callErr
		})
		sizesTried++
		if err == nil {
			if err := p.store.FinalizeAsset(ctx, asset.ID, media.URL, media.ID, width, height); err != nil {
				return 0, err
			}
			if err := p.store.AppendEvent(ctx, job.ID, queue.EventMediaUploaded, queue.MediaUploadedPayload{
				MediaID:    media.ID,
				Bytes:      int64(len(data)),
				Width:      width,
				Height:     height,
				SizesTried: sizesTried,
			}); err != nil {
				return 0, err
			}
			return media.ID, nil
		}
		if !services.IsPayloadTooLarge(err) {
			return 0, err
		}
		if sizesTried > len(shrinkLadder) {
			return 0, err
		}

		next := shrinkLadder[sizesTried-1]
		logger.Info("upload rejected as too large, regenerating smaller rendition",
			logging.Int("width", next[0]),
			logging.Int("height", next[1]))

		prompt := draft.ImagePrompt
		if prompt == "" {
			prompt = fmt.Sprintf("Editorial illustration for an article titled %q", draft.Title)
		}
		image, err := p.images.Generate(ctx, imagegen.Request{Prompt: prompt, Width: next[0], Height: next[1]})
		if err != nil {
			return 0, err
		}
		imageURL = image.URL
		width, height = next[0], next[1]
	}
}

// writePost updates the post a previous attempt created, or creates one,
// reusing an existing post with the same slug so retries stay idempotent.
func (p *Publisher) writePost(ctx context.Context, cms CMS, job *queue.Job, slug string, input wordpress.PostInput) (wordpress.Post, bool, error) {
	postID := job.PostID
	if postID == 0 {
		existing, err := cms.FindPostBySlug(ctx, slug)
		if err != nil {
			return wordpress.Post{}, false, err
		}
		if existing != nil {
			postID = existing.ID
		}
	}

	var post wordpress.Post
	err := services.Retry(ctx, transportRetry, func(ctx context.Context) error {
		var callErr error
		if postID > 0 {
			post, callErr = cms.UpdatePost(ctx, postID, input)
		} else {
			post, callErr = cms.CreatePost(ctx, input)
		}
		return callErr
	})
	if err != nil {
		return wordpress.Post{}, false, err
	}
	return post, postID > 0, nil
}

// composeContent places the source attribution link according to the
// submission's placement choice.
func composeContent(draft queue.Draft, sub *queue.Submission) string {
	source := sub.SourceURL()
	if source == "" || sub.SourceKind != queue.SourceDocLink {
		return draft.CleanHTML
	}
	attribution := fmt.Sprintf(`<p><a href=%q>Source document</a></p>`, source)
	if sub.LinkPlacement == queue.PlacementConclusion {
		return draft.CleanHTML + "\n" + attribution
	}
	return attribution + "\n" + draft.CleanHTML
}

func (p *Publisher) HealthCheck(ctx context.Context) stage.Health {
	if len(p.directory.Hosts()) == 0 {
		return stage.Unhealthy("publish", "no publish targets configured")
	}
	return stage.Healthy("publish")
}
