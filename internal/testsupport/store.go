package testsupport

import (
	"context"
	"testing"
	"time"

	"linotype/internal/config"
	"linotype/internal/queue"
)

// MustOpenStore opens a queue.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *queue.Store {
	t.Helper()

	store, err := queue.Open(cfg)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() {
		if err := store.Close(); err != nil {
			t.Errorf("close store: %v", err)
		}
	})
	return store
}

// SeedSubmission inserts a submission with one queued job using sensible
// defaults and returns both.
func SeedSubmission(t testing.TB, store *queue.Store, opts ...func(*queue.NewSubmission)) (*queue.Submission, *queue.Job) {
	t.Helper()

	req := queue.NewSubmission{
		ClientID:      "client-1",
		TargetHost:    "blog.example.com",
		SourceKind:    queue.SourceDocLink,
		DocURL:        "https://docs.google.com/document/d/test",
		LinkPlacement: queue.PlacementIntro,
		PublishState:  queue.PublishDraft,
		MaxAttempts:   3,
	}
	for _, opt := range opts {
		opt(&req)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	sub, job, err := store.CreateSubmission(ctx, req)
	if err != nil {
		t.Fatalf("seed submission: %v", err)
	}
	return sub, job
}

// SeedProcessingJob seeds a submission and claims its job, handing back the
// in-flight row the way a worker sees it.
func SeedProcessingJob(t testing.TB, store *queue.Store, opts ...func(*queue.NewSubmission)) *queue.Job {
	t.Helper()

	SeedSubmission(t, store, opts...)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	job, err := store.ClaimNext(ctx)
	if err != nil {
		t.Fatalf("claim seeded job: %v", err)
	}
	if job == nil {
		t.Fatal("expected a claimable job")
	}
	return job
}
