package testsupport

import (
	"path/filepath"
	"testing"

	"linotype/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t   testing.TB
	cfg *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// It defaults common fields and applies any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.DataDir = filepath.Join(base, "data")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Paths.TargetsPath = filepath.Join(base, "targets.toml")
	cfgVal.Paths.APIBind = "127.0.0.1:0"
	cfgVal.Converter.BaseURL = "http://127.0.0.1:1"
	cfgVal.ImageGen.Enabled = false
	cfgVal.Workflow.QueuePollInterval = 1
	cfgVal.Workflow.RetryBackoffSeconds = 1
	cfgVal.Workflow.RetryBackoffCap = 2

	builder := &configBuilder{t: t, cfg: &cfgVal}
	for _, opt := range opts {
		opt(builder)
	}
	return builder.cfg
}

// WithConverterURL points the converter client at a test server.
func WithConverterURL(url string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Converter.BaseURL = url
	}
}

// WithImageGen enables image generation against a test server.
func WithImageGen(url string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.ImageGen.Enabled = true
		b.cfg.ImageGen.BaseURL = url
		b.cfg.ImageGen.APIKey = "test"
		b.cfg.ImageGen.PollIntervalSeconds = 1
		b.cfg.ImageGen.PollTimeoutSeconds = 5
	}
}

// WithMaxAttempts overrides the job attempt ceiling.
func WithMaxAttempts(n int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Workflow.MaxAttempts = n
	}
}
