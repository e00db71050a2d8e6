package workflow

import (
	"context"
	"testing"
	"time"

	"linotype/internal/config"
	"linotype/internal/queue"
	"linotype/internal/services"
	"linotype/internal/stage"
	"linotype/internal/testsupport"
)

type fakeHandler struct {
	name    string
	execute func(ctx context.Context, job *queue.Job) error
	calls   int
}

func (f *fakeHandler) Prepare(ctx context.Context, job *queue.Job) error { return nil }

func (f *fakeHandler) Execute(ctx context.Context, job *queue.Job) error {
	f.calls++
	if f.execute != nil {
		return f.execute(ctx, job)
	}
	return nil
}

func (f *fakeHandler) HealthCheck(ctx context.Context) stage.Health {
	return stage.Healthy(f.name)
}

type testPipeline struct {
	convert    *fakeHandler
	illustrate *fakeHandler
	publish    *fakeHandler
}

func newTestPipeline() *testPipeline {
	return &testPipeline{
		convert:    &fakeHandler{name: "convert"},
		illustrate: &fakeHandler{name: "illustrate"},
		publish:    &fakeHandler{name: "publish"},
	}
}

func (p *testPipeline) set() StageSet {
	return StageSet{
		queue.StageConvert:    p.convert,
		queue.StageIllustrate: p.illustrate,
		queue.StagePublish:    p.publish,
	}
}

func newTestManager(t *testing.T, cfg *config.Config, store *queue.Store, pipeline *testPipeline) *Manager {
	t.Helper()
	return NewManager(cfg, store, nil, pipeline.set())
}

func claim(t *testing.T, store *queue.Store) *queue.Job {
	t.Helper()
	job, err := store.ClaimNext(t.Context())
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if job == nil {
		t.Fatal("expected a claimable job")
	}
	return job
}

func eventTypes(t *testing.T, store *queue.Store, jobID string) []queue.EventType {
	t.Helper()
	events, err := store.EventsForJob(t.Context(), jobID)
	if err != nil {
		t.Fatalf("events: %v", err)
	}
	types := make([]queue.EventType, 0, len(events))
	for _, event := range events {
		types = append(types, event.Type)
	}
	return types
}

func hasEvent(types []queue.EventType, want queue.EventType) bool {
	for _, typ := range types {
		if typ == want {
			return true
		}
	}
	return false
}

func TestProcessJobRunsAllStagesToSuccess(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	testsupport.SeedSubmission(t, store)

	pipeline := newTestPipeline()
	manager := newTestManager(t, cfg, store, pipeline)

	job := claim(t, store)
	manager.processJob(t.Context(), job)

	stored, err := store.GetJob(t.Context(), job.ID)
	if err != nil {
		t.Fatalf("get job: %v", err)
	}
	if stored.Status != queue.JobStatusSucceeded {
		t.Fatalf("expected succeeded, got %s (%s)", stored.Status, stored.LastError)
	}
	if pipeline.convert.calls != 1 || pipeline.illustrate.calls != 1 || pipeline.publish.calls != 1 {
		t.Fatalf("expected each stage once, got %d/%d/%d",
			pipeline.convert.calls, pipeline.illustrate.calls, pipeline.publish.calls)
	}

	types := eventTypes(t, store, job.ID)
	if !hasEvent(types, queue.EventStageStarted) || !hasEvent(types, queue.EventStageOK) {
		t.Fatalf("missing stage boundary events: %v", types)
	}
}

func TestProcessJobResumesFromStageCursor(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	_, seeded := testsupport.SeedSubmission(t, store)
	if _, err := store.ClaimNext(t.Context()); err != nil {
		t.Fatalf("claim: %v", err)
	}
	if err := store.AdvanceStage(t.Context(), seeded.ID, queue.StagePublish); err != nil {
		t.Fatalf("advance stage: %v", err)
	}
	if _, err := store.MarkRetrying(t.Context(), seeded.ID, "interrupted", time.Now().UTC().Add(-time.Second)); err != nil {
		t.Fatalf("mark retrying: %v", err)
	}

	pipeline := newTestPipeline()
	manager := newTestManager(t, cfg, store, pipeline)

	job := claim(t, store)
	manager.processJob(t.Context(), job)

	if pipeline.convert.calls != 0 || pipeline.illustrate.calls != 0 {
		t.Fatalf("completed stages must not re-run, got %d/%d",
			pipeline.convert.calls, pipeline.illustrate.calls)
	}
	if pipeline.publish.calls != 1 {
		t.Fatalf("expected publish once, got %d", pipeline.publish.calls)
	}
}

func TestTransientFailureSchedulesRetry(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	testsupport.SeedSubmission(t, store)

	pipeline := newTestPipeline()
	pipeline.convert.execute = func(context.Context, *queue.Job) error {
		return services.Wrap(services.ErrTransient, "convert", "call", "upstream 502", nil)
	}
	manager := newTestManager(t, cfg, store, pipeline)

	job := claim(t, store)
	manager.processJob(t.Context(), job)

	stored, _ := store.GetJob(t.Context(), job.ID)
	if stored.Status != queue.JobStatusRetrying {
		t.Fatalf("expected retrying, got %s", stored.Status)
	}
	if stored.NextAttemptAt == nil || !stored.NextAttemptAt.After(time.Now().UTC().Add(-time.Second)) {
		t.Fatalf("expected future next_attempt_at, got %v", stored.NextAttemptAt)
	}
	if stored.LastError == "" {
		t.Fatal("expected last_error populated")
	}
	if stored.AttemptCount != 0 {
		t.Fatalf("attempt count must not change until reclaim, got %d", stored.AttemptCount)
	}

	types := eventTypes(t, store, job.ID)
	if !hasEvent(types, queue.EventStageFailed) || !hasEvent(types, queue.EventRetryScheduled) {
		t.Fatalf("missing failure events: %v", types)
	}
}

func TestPermanentFailureFailsImmediately(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	testsupport.SeedSubmission(t, store)

	pipeline := newTestPipeline()
	pipeline.convert.execute = func(context.Context, *queue.Job) error {
		return services.Wrap(services.ErrPermanent, "convert", "call", "document rejected", nil)
	}
	manager := newTestManager(t, cfg, store, pipeline)

	job := claim(t, store)
	manager.processJob(t.Context(), job)

	stored, _ := store.GetJob(t.Context(), job.ID)
	if stored.Status != queue.JobStatusFailed {
		t.Fatalf("expected failed, got %s", stored.Status)
	}
	types := eventTypes(t, store, job.ID)
	if !hasEvent(types, queue.EventTerminalFailed) {
		t.Fatalf("missing terminal_failed event: %v", types)
	}
	if hasEvent(types, queue.EventRetryScheduled) {
		t.Fatalf("permanent failure must not schedule retries: %v", types)
	}
}

func TestAttemptCeilingFailsPermanently(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithMaxAttempts(2))
	cfg.Workflow.RetryBackoffCap = 1
	store := testsupport.MustOpenStore(t, cfg)
	testsupport.SeedSubmission(t, store, func(req *queue.NewSubmission) {
		req.MaxAttempts = 2
	})

	pipeline := newTestPipeline()
	pipeline.convert.execute = func(context.Context, *queue.Job) error {
		return services.Wrap(services.ErrTransient, "convert", "call", "upstream 502", nil)
	}
	manager := newTestManager(t, cfg, store, pipeline)

	first := claim(t, store)
	manager.processJob(t.Context(), first)
	stored, _ := store.GetJob(t.Context(), first.ID)
	if stored.Status != queue.JobStatusRetrying {
		t.Fatalf("first run should schedule a retry, got %s", stored.Status)
	}

	// Backoff in the test config is capped at one second.
	time.Sleep(1100 * time.Millisecond)

	second := claim(t, store)
	if second.AttemptCount != 1 {
		t.Fatalf("retry claim should increment attempts, got %d", second.AttemptCount)
	}
	manager.processJob(t.Context(), second)

	stored, _ = store.GetJob(t.Context(), second.ID)
	if stored.Status != queue.JobStatusRetrying {
		t.Fatalf("attempts below the ceiling must keep retrying, got %s", stored.Status)
	}

	time.Sleep(1100 * time.Millisecond)

	third := claim(t, store)
	manager.processJob(t.Context(), third)

	stored, _ = store.GetJob(t.Context(), third.ID)
	if stored.Status != queue.JobStatusFailed {
		t.Fatalf("ceiling should convert the third failure to failed, got %s", stored.Status)
	}
	if stored.AttemptCount != stored.MaxAttempts {
		t.Fatalf("terminal attempt count should equal the ceiling, got %d of %d",
			stored.AttemptCount, stored.MaxAttempts)
	}
	if pipeline.convert.calls != 3 {
		t.Fatalf("expected exactly 3 runs, got %d", pipeline.convert.calls)
	}
}

func TestIllustrateFailureDegradesToPublish(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	testsupport.SeedSubmission(t, store)

	pipeline := newTestPipeline()
	pipeline.illustrate.execute = func(context.Context, *queue.Job) error {
		return services.Wrap(services.ErrPermanent, "illustrate", "generate", "prompt rejected", nil)
	}
	manager := newTestManager(t, cfg, store, pipeline)

	job := claim(t, store)
	manager.processJob(t.Context(), job)

	stored, _ := store.GetJob(t.Context(), job.ID)
	if stored.Status != queue.JobStatusSucceeded {
		t.Fatalf("expected degrade to publish and succeed, got %s", stored.Status)
	}
	if pipeline.publish.calls != 1 {
		t.Fatal("publish must still run after degrade")
	}
	types := eventTypes(t, store, job.ID)
	if !hasEvent(types, queue.EventStageSkipped) {
		t.Fatalf("missing stage_skipped event: %v", types)
	}
}

func TestIllustrateFailureFailsJobWhenImageRequired(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Workflow.ImageOptional = false
	store := testsupport.MustOpenStore(t, cfg)
	testsupport.SeedSubmission(t, store)

	pipeline := newTestPipeline()
	pipeline.illustrate.execute = func(context.Context, *queue.Job) error {
		return services.Wrap(services.ErrTransient, "illustrate", "generate", "upstream 503", nil)
	}
	manager := newTestManager(t, cfg, store, pipeline)

	job := claim(t, store)
	manager.processJob(t.Context(), job)

	stored, _ := store.GetJob(t.Context(), job.ID)
	if stored.Status != queue.JobStatusRetrying {
		t.Fatalf("expected retrying, got %s", stored.Status)
	}
	if pipeline.publish.calls != 0 {
		t.Fatal("publish must not run after a required stage fails")
	}
}

func TestCancelRequestedHonoredAtStageBoundary(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	testsupport.SeedSubmission(t, store)

	pipeline := newTestPipeline()
	pipeline.convert.execute = func(ctx context.Context, job *queue.Job) error {
		// Operator cancels while convert is in flight.
		outcome, err := store.Cancel(ctx, job.ID)
		if err != nil {
			return err
		}
		if outcome != queue.CancelRequested {
			t.Errorf("expected cooperative cancel, got %s", outcome)
		}
		return nil
	}
	manager := newTestManager(t, cfg, store, pipeline)

	job := claim(t, store)
	manager.processJob(t.Context(), job)

	stored, _ := store.GetJob(t.Context(), job.ID)
	if stored.Status != queue.JobStatusCancelled {
		t.Fatalf("expected cancelled, got %s", stored.Status)
	}
	if pipeline.illustrate.calls != 0 {
		t.Fatal("stages after the cancel boundary must not run")
	}
	types := eventTypes(t, store, job.ID)
	if !hasEvent(types, queue.EventCancelled) {
		t.Fatalf("missing cancelled event: %v", types)
	}
}

func TestStartStopProcessesQueuedJobs(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	_, job := testsupport.SeedSubmission(t, store)

	pipeline := newTestPipeline()
	manager := newTestManager(t, cfg, store, pipeline)

	if err := manager.Start(t.Context()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer manager.Stop()

	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		stored, err := store.GetJob(t.Context(), job.ID)
		if err != nil {
			t.Fatalf("get job: %v", err)
		}
		if stored.Status == queue.JobStatusSucceeded {
			return
		}
		time.Sleep(50 * time.Millisecond)
	}
	t.Fatal("job did not complete before deadline")
}

func TestStartRequiresHandlers(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	manager := NewManager(cfg, store, nil, nil)
	if err := manager.Start(t.Context()); err == nil {
		t.Fatal("expected error starting without handlers")
	}
}

func TestStatusReportsHealthAndStats(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	testsupport.SeedSubmission(t, store)

	manager := newTestManager(t, cfg, store, newTestPipeline())
	summary := manager.Status(t.Context())
	if summary.Running {
		t.Fatal("manager not started, should not report running")
	}
	if summary.QueueStats.Queued != 1 {
		t.Fatalf("expected 1 queued job, got %+v", summary.QueueStats)
	}
	if len(summary.StageHealth) != 3 {
		t.Fatalf("expected health for 3 stages, got %v", summary.StageHealth)
	}
	for name, health := range summary.StageHealth {
		if !health.Ready {
			t.Fatalf("stage %s unexpectedly unhealthy: %+v", name, health)
		}
	}
}

func TestBackoffDoublesAndCaps(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Workflow.RetryBackoffSeconds = 30
	cfg.Workflow.RetryBackoffCap = 120
	store := testsupport.MustOpenStore(t, cfg)
	manager := newTestManager(t, cfg, store, newTestPipeline())

	cases := []struct {
		attempt int
		want    time.Duration
	}{
		{0, 30 * time.Second},
		{1, 60 * time.Second},
		{2, 120 * time.Second},
		{5, 120 * time.Second},
	}
	for _, tc := range cases {
		if got := manager.backoff(tc.attempt); got != tc.want {
			t.Fatalf("backoff(%d) = %v, want %v", tc.attempt, got, tc.want)
		}
	}
}
