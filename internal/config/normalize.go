package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeConverter()
	c.normalizeImageGen()
	c.normalizeWorkflow()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.DataDir) == "" {
		c.Paths.DataDir = defaultDataDir
	}
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return fmt.Errorf("paths.data_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.TargetsPath) == "" {
		c.Paths.TargetsPath = defaultTargetsPath
	}
	if c.Paths.TargetsPath, err = expandPath(c.Paths.TargetsPath); err != nil {
		return fmt.Errorf("paths.targets_path: %w", err)
	}
	c.Paths.APIBind = strings.TrimSpace(c.Paths.APIBind)
	if c.Paths.APIBind == "" {
		c.Paths.APIBind = defaultAPIBind
	}
	c.Paths.APIToken = strings.TrimSpace(c.Paths.APIToken)
	if c.Paths.APIToken == "" {
		if value, ok := os.LookupEnv("LINOTYPE_API_TOKEN"); ok {
			c.Paths.APIToken = strings.TrimSpace(value)
		}
	}
	return nil
}

func (c *Config) normalizeConverter() {
	c.Converter.BaseURL = strings.TrimRight(strings.TrimSpace(c.Converter.BaseURL), "/")
	c.Converter.APIKey = strings.TrimSpace(c.Converter.APIKey)
	if c.Converter.APIKey == "" {
		if value, ok := os.LookupEnv("CONVERTER_API_KEY"); ok {
			c.Converter.APIKey = strings.TrimSpace(value)
		}
	}
	if c.Converter.TimeoutSeconds <= 0 {
		c.Converter.TimeoutSeconds = defaultConverterTimeout
	}
}

func (c *Config) normalizeImageGen() {
	c.ImageGen.BaseURL = strings.TrimRight(strings.TrimSpace(c.ImageGen.BaseURL), "/")
	c.ImageGen.APIKey = strings.TrimSpace(c.ImageGen.APIKey)
	if c.ImageGen.APIKey == "" {
		if value, ok := os.LookupEnv("IMAGEGEN_API_KEY"); ok {
			c.ImageGen.APIKey = strings.TrimSpace(value)
		} else if value, ok := os.LookupEnv("LEONARDO_API_KEY"); ok {
			c.ImageGen.APIKey = strings.TrimSpace(value)
		}
	}
	c.ImageGen.Model = strings.TrimSpace(c.ImageGen.Model)
	if c.ImageGen.Model == "" {
		c.ImageGen.Model = defaultImageGenModel
	}
	if c.ImageGen.Width <= 0 {
		c.ImageGen.Width = defaultImageWidth
	}
	if c.ImageGen.Height <= 0 {
		c.ImageGen.Height = defaultImageHeight
	}
	if c.ImageGen.PollIntervalSeconds <= 0 {
		c.ImageGen.PollIntervalSeconds = defaultImagePollInterval
	}
	if c.ImageGen.PollTimeoutSeconds <= 0 {
		c.ImageGen.PollTimeoutSeconds = defaultImagePollTimeout
	}
}

func (c *Config) normalizeWorkflow() {
	if c.Workflow.QueuePollInterval <= 0 {
		c.Workflow.QueuePollInterval = defaultQueuePollInterval
	}
	if c.Workflow.HeartbeatInterval <= 0 {
		c.Workflow.HeartbeatInterval = defaultHeartbeatInterval
	}
	if c.Workflow.HeartbeatTimeout <= 0 {
		c.Workflow.HeartbeatTimeout = defaultHeartbeatTimeout
	}
	if c.Workflow.MaxAttempts <= 0 {
		c.Workflow.MaxAttempts = defaultMaxAttempts
	}
	if c.Workflow.RetryBackoffSeconds <= 0 {
		c.Workflow.RetryBackoffSeconds = defaultRetryBackoffSeconds
	}
	if c.Workflow.RetryBackoffCap <= 0 {
		c.Workflow.RetryBackoffCap = defaultRetryBackoffCap
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "console":
		c.Logging.Format = "console"
	case "json":
	default:
		c.Logging.Format = "console"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	if c.Logging.MaxSizeMB <= 0 {
		c.Logging.MaxSizeMB = defaultLogMaxSizeMB
	}
	if c.Logging.MaxBackups <= 0 {
		c.Logging.MaxBackups = defaultLogMaxBackups
	}
}
