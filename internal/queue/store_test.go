package queue_test

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"linotype/internal/queue"
	"linotype/internal/testsupport"
)

func TestCreateSubmissionSeedsJobAndEvent(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	sub, job := testsupport.SeedSubmission(t, store)
	if sub.Status != queue.SubmissionQueued {
		t.Fatalf("expected queued submission, got %s", sub.Status)
	}
	if job.Status != queue.JobStatusQueued {
		t.Fatalf("expected queued job, got %s", job.Status)
	}
	if job.Stage != queue.StageConvert {
		t.Fatalf("expected convert stage, got %s", job.Stage)
	}
	if job.AttemptCount != 0 {
		t.Fatalf("expected zero attempts, got %d", job.AttemptCount)
	}

	events, err := store.EventsForJob(ctx, job.ID)
	if err != nil {
		t.Fatalf("events: %v", err)
	}
	if len(events) != 1 || events[0].Type != queue.EventSubmissionAccepted {
		t.Fatalf("expected single submission_accepted event, got %+v", events)
	}
	var payload queue.SubmissionAcceptedPayload
	if err := events[0].DecodePayload(&payload); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if payload.SubmissionID != sub.ID {
		t.Fatalf("payload submission mismatch: %q vs %q", payload.SubmissionID, sub.ID)
	}
}

func TestIdempotencyKeyIsUnique(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	sub, _ := testsupport.SeedSubmission(t, store, func(req *queue.NewSubmission) {
		req.IdempotencyKey = "client-1:blog.example.com:doc-link:abc"
	})

	found, err := store.FindSubmissionByIdempotencyKey(ctx, "client-1:blog.example.com:doc-link:abc")
	if err != nil {
		t.Fatalf("find by key: %v", err)
	}
	if found == nil || found.ID != sub.ID {
		t.Fatalf("expected to find submission %s, got %+v", sub.ID, found)
	}

	_, _, err = store.CreateSubmission(ctx, queue.NewSubmission{
		ClientID:       "client-1",
		TargetHost:     "blog.example.com",
		SourceKind:     queue.SourceDocLink,
		DocURL:         "https://docs.google.com/document/d/other",
		IdempotencyKey: "client-1:blog.example.com:doc-link:abc",
	})
	if err == nil || !strings.Contains(strings.ToLower(err.Error()), "unique") {
		t.Fatalf("expected unique constraint violation, got %v", err)
	}
}

func TestClaimNextIsExclusive(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	_, job := testsupport.SeedSubmission(t, store)

	const claimers = 8
	var wg sync.WaitGroup
	winners := make(chan string, claimers)
	for i := 0; i < claimers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			claimed, err := store.ClaimNext(ctx)
			if err != nil {
				t.Errorf("claim: %v", err)
				return
			}
			if claimed != nil {
				winners <- claimed.ID
			}
		}()
	}
	wg.Wait()
	close(winners)

	var won []string
	for id := range winners {
		won = append(won, id)
	}
	if len(won) != 1 || won[0] != job.ID {
		t.Fatalf("expected exactly one claimer to win job %s, got %v", job.ID, won)
	}

	claimed, err := store.GetJob(ctx, job.ID)
	if err != nil {
		t.Fatalf("get job: %v", err)
	}
	if claimed.Status != queue.JobStatusProcessing {
		t.Fatalf("expected processing, got %s", claimed.Status)
	}
	if claimed.AttemptCount != 0 {
		t.Fatalf("first claim must not advance attempts, got %d", claimed.AttemptCount)
	}
	if claimed.LastHeartbeat == nil {
		t.Fatal("expected heartbeat to be set on claim")
	}
}

func TestRetryClaimIncrementsAttempts(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	_, job := testsupport.SeedSubmission(t, store)

	claimed, err := store.ClaimNext(ctx)
	if err != nil || claimed == nil {
		t.Fatalf("claim: %v %v", claimed, err)
	}

	ok, err := store.MarkRetrying(ctx, job.ID, "converter timeout", time.Now().Add(-time.Second))
	if err != nil || !ok {
		t.Fatalf("mark retrying: %v %v", ok, err)
	}

	reclaimed, err := store.ClaimNext(ctx)
	if err != nil || reclaimed == nil {
		t.Fatalf("reclaim: %v %v", reclaimed, err)
	}
	if reclaimed.AttemptCount != 1 {
		t.Fatalf("expected attempt 1 after retry claim, got %d", reclaimed.AttemptCount)
	}
	if reclaimed.NextAttemptAt != nil {
		t.Fatal("expected next_attempt_at cleared on claim")
	}
}

func TestRetryingJobWaitsForBackoff(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	_, job := testsupport.SeedSubmission(t, store)
	if _, err := store.ClaimNext(ctx); err != nil {
		t.Fatalf("claim: %v", err)
	}
	if _, err := store.MarkRetrying(ctx, job.ID, "flaky", time.Now().Add(time.Hour)); err != nil {
		t.Fatalf("mark retrying: %v", err)
	}

	claimed, err := store.ClaimNext(ctx)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if claimed != nil {
		t.Fatalf("expected no claimable job before backoff elapses, got %s", claimed.ID)
	}
}

func TestTerminalStatesAreImmutable(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	_, job := testsupport.SeedSubmission(t, store)
	if _, err := store.ClaimNext(ctx); err != nil {
		t.Fatalf("claim: %v", err)
	}
	if ok, err := store.MarkSucceeded(ctx, job.ID); err != nil || !ok {
		t.Fatalf("mark succeeded: %v %v", ok, err)
	}

	if ok, _ := store.MarkFailed(ctx, job.ID, "late worker"); ok {
		t.Fatal("succeeded job must not transition to failed")
	}
	if ok, _ := store.MarkRetrying(ctx, job.ID, "late worker", time.Now()); ok {
		t.Fatal("succeeded job must not transition to retrying")
	}
	if outcome, _ := store.Cancel(ctx, job.ID); outcome != queue.CancelRejected {
		t.Fatalf("succeeded job must reject cancellation, got %s", outcome)
	}

	final, err := store.GetJob(ctx, job.ID)
	if err != nil {
		t.Fatalf("get job: %v", err)
	}
	if final.Status != queue.JobStatusSucceeded {
		t.Fatalf("terminal status changed to %s", final.Status)
	}
}

func TestCancelWaitingJobImmediately(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	_, job := testsupport.SeedSubmission(t, store)
	outcome, err := store.Cancel(ctx, job.ID)
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if outcome != queue.CancelImmediate {
		t.Fatalf("expected immediate cancellation, got %s", outcome)
	}

	cancelled, err := store.GetJob(ctx, job.ID)
	if err != nil {
		t.Fatalf("get job: %v", err)
	}
	if cancelled.Status != queue.JobStatusCancelled {
		t.Fatalf("expected cancelled, got %s", cancelled.Status)
	}

	if claimed, _ := store.ClaimNext(ctx); claimed != nil {
		t.Fatalf("cancelled job must not be claimable, got %s", claimed.ID)
	}
}

func TestCancelProcessingJobIsCooperative(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	_, job := testsupport.SeedSubmission(t, store)
	if _, err := store.ClaimNext(ctx); err != nil {
		t.Fatalf("claim: %v", err)
	}

	outcome, err := store.Cancel(ctx, job.ID)
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if outcome != queue.CancelRequested {
		t.Fatalf("expected cooperative cancel, got %s", outcome)
	}

	flagged, err := store.GetJob(ctx, job.ID)
	if err != nil {
		t.Fatalf("get job: %v", err)
	}
	if flagged.Status != queue.JobStatusProcessing || !flagged.CancelRequested {
		t.Fatalf("expected processing with cancel flag, got %s %v", flagged.Status, flagged.CancelRequested)
	}

	ok, err := store.FinishCancelled(ctx, job.ID)
	if err != nil || !ok {
		t.Fatalf("finish cancelled: %v %v", ok, err)
	}
	final, _ := store.GetJob(ctx, job.ID)
	if final.Status != queue.JobStatusCancelled {
		t.Fatalf("expected cancelled, got %s", final.Status)
	}
}

func TestRequeueResetsAttemptBudget(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	_, job := testsupport.SeedSubmission(t, store)
	if _, err := store.ClaimNext(ctx); err != nil {
		t.Fatalf("claim: %v", err)
	}
	if _, err := store.MarkRetrying(ctx, job.ID, "boom", time.Now().Add(-time.Second)); err != nil {
		t.Fatalf("mark retrying: %v", err)
	}
	if _, err := store.ClaimNext(ctx); err != nil {
		t.Fatalf("claim: %v", err)
	}
	if err := store.AdvanceStage(ctx, job.ID, queue.StagePublish); err != nil {
		t.Fatalf("advance stage: %v", err)
	}
	if ok, err := store.MarkFailed(ctx, job.ID, "out of attempts"); err != nil || !ok {
		t.Fatalf("mark failed: %v %v", ok, err)
	}

	ok, err := store.Requeue(ctx, job.ID)
	if err != nil || !ok {
		t.Fatalf("requeue: %v %v", ok, err)
	}

	requeued, err := store.GetJob(ctx, job.ID)
	if err != nil {
		t.Fatalf("get job: %v", err)
	}
	if requeued.Status != queue.JobStatusQueued {
		t.Fatalf("expected queued, got %s", requeued.Status)
	}
	if requeued.AttemptCount != 0 {
		t.Fatalf("expected attempt reset, got %d", requeued.AttemptCount)
	}
	if requeued.LastError != "" {
		t.Fatalf("expected error cleared, got %q", requeued.LastError)
	}
	if requeued.Stage != queue.StagePublish {
		t.Fatalf("requeue must preserve the stage cursor, got %s", requeued.Stage)
	}
}

func TestReclaimStaleProcessing(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	_, job := testsupport.SeedSubmission(t, store)
	if _, err := store.ClaimNext(ctx); err != nil {
		t.Fatalf("claim: %v", err)
	}

	count, err := store.ReclaimStaleProcessing(ctx, time.Now().Add(-time.Minute))
	if err != nil {
		t.Fatalf("reclaim: %v", err)
	}
	if count != 0 {
		t.Fatalf("fresh heartbeat must survive reclaim, got %d", count)
	}

	count, err = store.ReclaimStaleProcessing(ctx, time.Now().Add(time.Minute))
	if err != nil {
		t.Fatalf("reclaim: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected one reclaimed job, got %d", count)
	}

	reclaimed, err := store.GetJob(ctx, job.ID)
	if err != nil {
		t.Fatalf("get job: %v", err)
	}
	if reclaimed.Status != queue.JobStatusRetrying {
		t.Fatalf("expected retrying after reclaim, got %s", reclaimed.Status)
	}
}

func TestStageWritesRequireProcessing(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	_, job := testsupport.SeedSubmission(t, store)

	if err := store.AdvanceStage(ctx, job.ID, queue.StagePublish); err == nil {
		t.Fatal("advance stage must refuse an unclaimed job")
	}
	if err := store.SetDraft(ctx, job.ID, `{"title":"x"}`); err == nil {
		t.Fatal("set draft must refuse an unclaimed job")
	}
	if err := store.SetPost(ctx, job.ID, 7, "https://blog.example.com/?p=7"); err == nil {
		t.Fatal("set post must refuse an unclaimed job")
	}

	if _, err := store.ClaimNext(ctx); err != nil {
		t.Fatalf("claim: %v", err)
	}
	if err := store.AdvanceStage(ctx, job.ID, queue.StageIllustrate); err != nil {
		t.Fatalf("advance stage while processing: %v", err)
	}
	if err := store.SetDraft(ctx, job.ID, `{"title":"x"}`); err != nil {
		t.Fatalf("set draft while processing: %v", err)
	}
	if err := store.SetPost(ctx, job.ID, 7, "https://blog.example.com/?p=7"); err != nil {
		t.Fatalf("set post while processing: %v", err)
	}

	// Heartbeat reclaim takes the job away; the old worker's writes must bounce.
	if _, err := store.ReclaimStaleProcessing(ctx, time.Now().Add(time.Minute)); err != nil {
		t.Fatalf("reclaim: %v", err)
	}
	if err := store.AdvanceStage(ctx, job.ID, queue.StagePublish); err == nil {
		t.Fatal("advance stage must refuse a reclaimed job")
	}
	if err := store.SetDraft(ctx, job.ID, `{"title":"stale"}`); err == nil {
		t.Fatal("set draft must refuse a reclaimed job")
	}

	fresh, err := store.GetJob(ctx, job.ID)
	if err != nil {
		t.Fatalf("get job: %v", err)
	}
	if fresh.Stage != queue.StageIllustrate {
		t.Fatalf("stage moved by a refused write, got %s", fresh.Stage)
	}
	if !strings.Contains(fresh.DraftJSON, `"x"`) {
		t.Fatalf("draft overwritten by a refused write, got %q", fresh.DraftJSON)
	}
}

func TestEventsAreOrdered(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	_, job := testsupport.SeedSubmission(t, store)
	sequence := []queue.EventType{
		queue.EventStageStarted,
		queue.EventStageOK,
		queue.EventPublishOK,
	}
	for _, eventType := range sequence {
		if err := store.AppendEvent(ctx, job.ID, eventType, queue.StagePayload{Stage: "convert"}); err != nil {
			t.Fatalf("append %s: %v", eventType, err)
		}
	}

	events, err := store.EventsForJob(ctx, job.ID)
	if err != nil {
		t.Fatalf("events: %v", err)
	}
	if len(events) != len(sequence)+1 {
		t.Fatalf("expected %d events, got %d", len(sequence)+1, len(events))
	}
	for i, expected := range sequence {
		if events[i+1].Type != expected {
			t.Fatalf("event %d: expected %s, got %s", i+1, expected, events[i+1].Type)
		}
	}
}

func TestAssetLifecycle(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	_, job := testsupport.SeedSubmission(t, store)
	asset, err := store.InsertAsset(ctx, queue.NewAsset{
		JobID:     job.ID,
		Kind:      queue.AssetIllustration,
		Provider:  "leonardo",
		SourceURL: "https://cdn.example/img.png",
		Width:     1024,
		Height:    576,
		Format:    "png",
	})
	if err != nil {
		t.Fatalf("insert asset: %v", err)
	}
	if asset.StorageURL != "" {
		t.Fatal("new asset must be provisional")
	}

	if err := store.FinalizeAsset(ctx, asset.ID, "https://blog.example.com/media/img.png", 99, 768, 432); err != nil {
		t.Fatalf("finalize asset: %v", err)
	}

	assets, err := store.AssetsForJob(ctx, job.ID)
	if err != nil {
		t.Fatalf("assets: %v", err)
	}
	if len(assets) != 1 {
		t.Fatalf("expected one asset, got %d", len(assets))
	}
	final := assets[0]
	if final.StorageURL == "" || final.MediaID != 99 || final.Width != 768 {
		t.Fatalf("unexpected finalized asset %+v", final)
	}
}

func TestResubmissionCreatesFreshJob(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	sub, first := testsupport.SeedSubmission(t, store)
	second, err := store.NewJobForSubmission(ctx, sub.ID, 3)
	if err != nil {
		t.Fatalf("new job: %v", err)
	}
	if second.ID == first.ID {
		t.Fatal("expected a distinct job")
	}

	latest, err := store.LatestJobForSubmission(ctx, sub.ID)
	if err != nil {
		t.Fatalf("latest job: %v", err)
	}
	if latest.ID != second.ID {
		t.Fatalf("expected latest job %s, got %s", second.ID, latest.ID)
	}
}

func TestSummaryCounts(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	_, job := testsupport.SeedSubmission(t, store)
	testsupport.SeedSubmission(t, store, func(req *queue.NewSubmission) {
		req.DocURL = "https://docs.google.com/document/d/second"
	})

	if _, err := store.ClaimNext(ctx); err != nil {
		t.Fatalf("claim: %v", err)
	}
	if _, err := store.MarkFailed(ctx, job.ID, "fatal"); err != nil {
		t.Fatalf("mark failed: %v", err)
	}

	summary, err := store.Summary(ctx)
	if err != nil {
		t.Fatalf("summary: %v", err)
	}
	if summary.Total != 2 || summary.Failed != 1 || summary.Queued != 1 {
		t.Fatalf("unexpected summary %+v", summary)
	}
}
