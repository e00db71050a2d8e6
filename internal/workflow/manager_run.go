package workflow

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"linotype/internal/logging"
	"linotype/internal/queue"
	"linotype/internal/services"
	"linotype/internal/stage"
)

var (
	errAlreadyRunning = errors.New("workflow already running")
	errNoHandlers     = errors.New("workflow stages not configured")
)

// processJob walks a freshly claimed job through the pipeline from its stage
// cursor until it succeeds, fails, or yields to cancellation.
func (m *Manager) processJob(ctx context.Context, job *queue.Job) {
	requestID := uuid.NewString()
	jobCtx := services.WithJobID(ctx, job.ID)
	jobCtx = services.WithAttempt(jobCtx, job.AttemptCount)
	jobCtx = services.WithRequestID(jobCtx, requestID)

	logger := logging.WithContext(jobCtx, m.logger)
	logger.Info("job claimed",
		logging.String(logging.FieldStage, string(job.Stage)),
		logging.String(logging.FieldTarget, job.TargetHost))
	m.setLastJob(job)

	current := job.Stage
	for {
		if yielded, err := m.yieldIfCancelRequested(jobCtx, logger, job); err != nil || yielded {
			if err != nil {
				m.setLastError(err)
			}
			return
		}

		stageCtx := services.WithStage(jobCtx, string(current))
		if done := m.runStage(stageCtx, job, current); done {
			return
		}

		next, ok := queue.NextStage(current)
		if !ok {
			m.finishJob(jobCtx, logger, job)
			return
		}
		if err := m.store.AdvanceStage(jobCtx, job.ID, next); err != nil {
			m.setLastError(err)
			logger.Error("failed to advance stage cursor", logging.Error(err))
			return
		}
		job.Stage = next
		current = next
	}
}

// runStage executes one stage. It returns true when job processing must stop,
// either because the stage failed or the context was cancelled.
func (m *Manager) runStage(ctx context.Context, job *queue.Job, current queue.Stage) bool {
	logger := logging.WithContext(ctx, m.logger)
	handler, ok := m.handlers[current]
	if !ok {
		err := services.Wrap(services.ErrConfiguration, string(current), "dispatch",
			"no handler registered for stage", nil)
		m.handleStageFailure(ctx, logger, job, current, err)
		return true
	}

	started := time.Now()
	if err := m.store.AppendEvent(ctx, job.ID, queue.EventStageStarted, queue.StagePayload{
		Stage:   string(current),
		Attempt: job.AttemptCount,
	}); err != nil {
		logger.Warn("failed to record stage start", logging.Error(err))
	}
	logger.Info("stage started")

	err := handler.Prepare(ctx, job)
	if err == nil {
		err = m.executeWithHeartbeat(ctx, handler, job)
	}
	if err != nil {
		if errors.Is(err, context.Canceled) {
			logger.Debug("stage interrupted by shutdown")
			return true
		}
		if m.degradeAllowed(current) {
			logger.Warn("optional stage failed, continuing without it", logging.Error(err))
			if appendErr := m.store.AppendEvent(ctx, job.ID, queue.EventStageSkipped, queue.StagePayload{
				Stage:   string(current),
				Attempt: job.AttemptCount,
				Detail:  err.Error(),
			}); appendErr != nil {
				logger.Warn("failed to record stage skip", logging.Error(appendErr))
			}
			return false
		}
		m.handleStageFailure(ctx, logger, job, current, err)
		return true
	}

	if err := m.store.AppendEvent(ctx, job.ID, queue.EventStageOK, queue.StagePayload{
		Stage:   string(current),
		Attempt: job.AttemptCount,
	}); err != nil {
		logger.Warn("failed to record stage completion", logging.Error(err))
	}
	logger.Info("stage completed", logging.Duration("stage_duration", time.Since(started)))
	return false
}

func (m *Manager) executeWithHeartbeat(ctx context.Context, handler stage.Handler, job *queue.Job) error {
	hbCtx, hbCancel := context.WithCancel(ctx)
	var hbWG sync.WaitGroup
	hbWG.Add(1)
	go m.heartbeat.StartLoop(hbCtx, &hbWG, job.ID)

	execErr := handler.Execute(ctx, job)
	hbCancel()
	hbWG.Wait()
	return execErr
}

// degradeAllowed reports whether a failed stage may be skipped instead of
// failing the job. Only the illustration is decorative enough for that.
func (m *Manager) degradeAllowed(current queue.Stage) bool {
	return current == queue.StageIllustrate && m.cfg.Workflow.ImageOptional
}

func (m *Manager) finishJob(ctx context.Context, logger *slog.Logger, job *queue.Job) {
	ok, err := m.store.MarkSucceeded(ctx, job.ID)
	if err != nil {
		m.setLastError(err)
		logger.Error("failed to mark job succeeded", logging.Error(err))
		return
	}
	if !ok {
		logger.Warn("job was no longer processing at completion")
		return
	}
	job.Status = queue.JobStatusSucceeded
	m.setLastJob(job)
	logger.Info("job succeeded",
		logging.Int64("post_id", job.PostID),
		logging.String("post_url", job.PostURL))
}

// yieldIfCancelRequested honors a cooperative cancel flag at a stage boundary.
func (m *Manager) yieldIfCancelRequested(ctx context.Context, logger *slog.Logger, job *queue.Job) (bool, error) {
	fresh, err := m.store.GetJob(ctx, job.ID)
	if err != nil {
		return false, err
	}
	if fresh == nil || !fresh.CancelRequested {
		return false, nil
	}
	finished, err := m.store.FinishCancelled(ctx, job.ID)
	if err != nil {
		return false, err
	}
	if finished {
		if err := m.store.AppendEvent(ctx, job.ID, queue.EventCancelled, queue.StagePayload{
			Stage:   string(job.Stage),
			Attempt: job.AttemptCount,
			Detail:  "cancelled at stage boundary",
		}); err != nil {
			logger.Warn("failed to record cancellation", logging.Error(err))
		}
		job.Status = queue.JobStatusCancelled
		m.setLastJob(job)
		logger.Info("job cancelled at stage boundary")
	}
	return true, nil
}

func (m *Manager) handleStageFailure(ctx context.Context, logger *slog.Logger, job *queue.Job, current queue.Stage, stageErr error) {
	message := stageErr.Error()
	retryable := services.FailureStatus(stageErr) == queue.JobStatusRetrying
	willRetry := retryable && job.AttemptCount < job.MaxAttempts

	if err := m.store.AppendEvent(ctx, job.ID, queue.EventStageFailed, queue.StageFailedPayload{
		Stage:     string(current),
		Attempt:   job.AttemptCount,
		Max:       job.MaxAttempts,
		WillRetry: willRetry,
		Error:     message,
	}); err != nil {
		logger.Warn("failed to record stage failure", logging.Error(err))
	}

	if willRetry {
		nextAttemptAt := time.Now().UTC().Add(m.backoff(job.AttemptCount))
		ok, err := m.store.MarkRetrying(ctx, job.ID, message, nextAttemptAt)
		if err != nil {
			m.setLastError(err)
			logger.Error("failed to schedule retry", logging.Error(err))
			return
		}
		if !ok {
			logger.Warn("job was no longer processing when scheduling retry")
			return
		}
		if err := m.store.AppendEvent(ctx, job.ID, queue.EventRetryScheduled, queue.RetryScheduledPayload{
			Attempt:       job.AttemptCount,
			Max:           job.MaxAttempts,
			NextAttemptAt: nextAttemptAt.Format(time.RFC3339Nano),
			Error:         message,
		}); err != nil {
			logger.Warn("failed to record retry schedule", logging.Error(err))
		}
		job.Status = queue.JobStatusRetrying
		m.setLastJob(job)
		m.setLastError(stageErr)
		logger.Warn("stage failed, retry scheduled",
			logging.Error(stageErr),
			logging.String("next_attempt_at", nextAttemptAt.Format(time.RFC3339)))
		return
	}

	ok, err := m.store.MarkFailed(ctx, job.ID, message)
	if err != nil {
		m.setLastError(err)
		logger.Error("failed to mark job failed", logging.Error(err))
		return
	}
	if !ok {
		logger.Warn("job was no longer processing when marking failed")
		return
	}
	if err := m.store.AppendEvent(ctx, job.ID, queue.EventTerminalFailed, queue.StageFailedPayload{
		Stage:   string(current),
		Attempt: job.AttemptCount,
		Max:     job.MaxAttempts,
		Error:   message,
	}); err != nil {
		logger.Warn("failed to record terminal failure", logging.Error(err))
	}
	job.Status = queue.JobStatusFailed
	m.setLastJob(job)
	m.setLastError(stageErr)
	logger.Error("job failed permanently", logging.Error(stageErr))
}

// backoff computes the delay before the next attempt: base doubled per
// completed attempt, capped.
func (m *Manager) backoff(attempt int) time.Duration {
	base := time.Duration(m.cfg.Workflow.RetryBackoffSeconds) * time.Second
	if base <= 0 {
		base = time.Second
	}
	ceiling := time.Duration(m.cfg.Workflow.RetryBackoffCap) * time.Second
	if ceiling < base {
		ceiling = base
	}
	delay := base
	for i := 0; i < attempt; i++ {
		delay *= 2
		if delay >= ceiling {
			return ceiling
		}
	}
	return delay
}
