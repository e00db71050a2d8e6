package daemonrun

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"linotype/internal/logging"
	"linotype/internal/queue"
	"linotype/internal/targets"
	"linotype/internal/testsupport"
)

func TestBuildStagesCoversPipeline(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	directory, err := targets.Parse([]byte(`
[[target]]
host = "blog.example.com"
base_url = "https://blog.example.com"
username = "publisher"
app_password = "abcd efgh"
`))
	if err != nil {
		t.Fatalf("parse targets: %v", err)
	}

	stages := buildStages(cfg, store, logging.NewNop(), directory)
	for _, name := range []queue.Stage{queue.StageConvert, queue.StageIllustrate, queue.StagePublish} {
		if stages[name] == nil {
			t.Fatalf("missing handler for stage %q", name)
		}
	}
	if len(stages) != 3 {
		t.Fatalf("unexpected stage count: %d", len(stages))
	}
}

func TestWritePIDFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "linotyped.pid")
	if err := writePIDFile(path); err != nil {
		t.Fatalf("writePIDFile: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read pid file: %v", err)
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid != os.Getpid() {
		t.Fatalf("unexpected pid file contents: %q", data)
	}
}
