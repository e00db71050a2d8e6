package daemon_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"testing"
	"time"

	"linotype/internal/api"
	"linotype/internal/daemon"
	"linotype/internal/queue"
	"linotype/internal/stage"
	"linotype/internal/testsupport"
	"linotype/internal/workflow"
)

// blockingStage parks until the workflow shuts down, keeping claimed jobs
// in-flight for the duration of a test.
type blockingStage struct{ name string }

func (blockingStage) Prepare(context.Context, *queue.Job) error { return nil }
func (blockingStage) Execute(ctx context.Context, _ *queue.Job) error {
	<-ctx.Done()
	return ctx.Err()
}
func (s blockingStage) HealthCheck(context.Context) stage.Health {
	return stage.Healthy(s.name)
}

func startDaemon(t *testing.T, d *daemon.Daemon) string {
	t.Helper()
	ctx, cancel := context.WithCancel(t.Context())
	t.Cleanup(cancel)
	if err := d.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	t.Cleanup(d.Stop)
	addr := d.APIAddr()
	if addr == "" {
		t.Fatal("expected API listener address")
	}
	return "http://" + addr
}

func postJSON(t *testing.T, url string, payload any) *http.Response {
	t.Helper()
	body, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	resp, err := http.Post(url, "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("POST %s: %v", url, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func getJSON(t *testing.T, url string, out any) *http.Response {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode %s: %v", url, err)
		}
	}
	return resp
}

func TestAPISubmitAndStatus(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	d := newTestDaemon(t, cfg)
	base := startDaemon(t, d)

	resp := postJSON(t, base+"/api/submissions", api.SubmitRequest{
		ClientID:   "client-1",
		TargetHost: "blog.example.com",
		SourceKind: "doc-link",
		DocURL:     "https://docs.example.com/post.md",
	})
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("unexpected status: %d", resp.StatusCode)
	}
	var submitted api.SubmitResponse
	if err := json.NewDecoder(resp.Body).Decode(&submitted); err != nil {
		t.Fatalf("decode submit response: %v", err)
	}
	if submitted.SubmissionID == "" || submitted.JobID == "" {
		t.Fatalf("expected ids, got %+v", submitted)
	}

	var report api.StatusReport
	statusResp := getJSON(t, base+"/api/status?job_id="+submitted.JobID, &report)
	if statusResp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected status: %d", statusResp.StatusCode)
	}
	if report.Job == nil || report.Job.ID != submitted.JobID {
		t.Fatalf("unexpected report: %+v", report)
	}
}

func TestAPISubmitValidationError(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	d := newTestDaemon(t, cfg)
	base := startDaemon(t, d)

	resp := postJSON(t, base+"/api/submissions", api.SubmitRequest{
		ClientID:   "client-1",
		TargetHost: "unknown.example.com",
		SourceKind: "doc-link",
		DocURL:     "https://docs.example.com/post.md",
	})
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("unexpected status: %d", resp.StatusCode)
	}
	var body map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	if body["error"] == "" {
		t.Fatal("expected structured error message")
	}
}

func TestAPIJobsListAndCancel(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	stages := workflow.StageSet{
		queue.StageConvert:    blockingStage{name: "convert"},
		queue.StageIllustrate: blockingStage{name: "illustrate"},
		queue.StagePublish:    blockingStage{name: "publish"},
	}
	d := newTestDaemonWithStages(t, cfg, stages)
	_, job := testsupport.SeedSubmission(t, d.Store())
	base := startDaemon(t, d)

	var listing api.JobListResponse
	if resp := getJSON(t, base+"/api/jobs", &listing); resp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected status: %d", resp.StatusCode)
	}
	if len(listing.Jobs) == 0 {
		t.Fatal("expected at least one job")
	}

	resp := postJSON(t, fmt.Sprintf("%s/api/jobs/%s/cancel", base, job.ID), nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected status: %d", resp.StatusCode)
	}
	var result api.CancelJobResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		t.Fatalf("decode cancel result: %v", err)
	}
	if result.Outcome != api.CancelJobDone && result.Outcome != api.CancelJobRequested {
		t.Fatalf("unexpected outcome: %q", result.Outcome)
	}
}

func TestAPIJobsRejectsUnknownStatusFilter(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	d := newTestDaemon(t, cfg)
	base := startDaemon(t, d)

	resp := getJSON(t, base+"/api/jobs?status=bogus", nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("unexpected status: %d", resp.StatusCode)
	}
}

func TestAPIRequeueNotFound(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	d := newTestDaemon(t, cfg)
	base := startDaemon(t, d)

	resp := postJSON(t, base+"/api/jobs/ghost/requeue", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("unexpected status: %d", resp.StatusCode)
	}
}

func TestAPIHealth(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	d := newTestDaemon(t, cfg)
	base := startDaemon(t, d)

	var report api.HealthReport
	resp := getJSON(t, base+"/api/health", &report)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected status: %d", resp.StatusCode)
	}
	if !report.Healthy || !report.Store.OK {
		t.Fatalf("expected healthy report, got %+v", report)
	}
	if len(report.Workflow.StageHealth) != 3 {
		t.Fatalf("expected three stages, got %+v", report.Workflow.StageHealth)
	}
}

func TestAPIBearerToken(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Paths.APIToken = "sekrit"
	d := newTestDaemon(t, cfg)
	base := startDaemon(t, d)

	resp, err := http.Get(base + "/api/jobs")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("unexpected status: %d", resp.StatusCode)
	}

	req, err := http.NewRequest(http.MethodGet, base+"/api/jobs", nil)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Authorization", "Bearer sekrit")
	client := &http.Client{Timeout: 5 * time.Second}
	authed, err := client.Do(req)
	if err != nil {
		t.Fatalf("GET with token: %v", err)
	}
	authed.Body.Close()
	if authed.StatusCode != http.StatusOK {
		t.Fatalf("unexpected status: %d", authed.StatusCode)
	}

	health, err := http.Get(base + "/api/health")
	if err != nil {
		t.Fatalf("GET health: %v", err)
	}
	health.Body.Close()
	if health.StatusCode != http.StatusOK {
		t.Fatalf("health should skip auth, got %d", health.StatusCode)
	}
}
