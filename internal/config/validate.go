package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateConverter(); err != nil {
		return err
	}
	if err := c.validateImageGen(); err != nil {
		return err
	}
	if err := c.validateWorkflow(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateConverter() error {
	if strings.TrimSpace(c.Converter.BaseURL) == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			defaultPath = "~/.config/linotype/config.toml"
		}
		return fmt.Errorf("converter.base_url is required. Edit %s (create with 'linotype config init')", defaultPath)
	}
	if c.Converter.TimeoutSeconds <= 0 {
		return errors.New("converter.timeout_seconds must be positive")
	}
	return nil
}

func (c *Config) validateImageGen() error {
	if !c.ImageGen.Enabled {
		return nil
	}
	if strings.TrimSpace(c.ImageGen.BaseURL) == "" {
		return errors.New("imagegen.base_url must be set when imagegen.enabled is true")
	}
	if strings.TrimSpace(c.ImageGen.APIKey) == "" {
		return errors.New("imagegen.api_key must be set when imagegen.enabled is true (or set IMAGEGEN_API_KEY)")
	}
	if c.ImageGen.Width <= 0 || c.ImageGen.Height <= 0 {
		return errors.New("imagegen.width and imagegen.height must be positive")
	}
	if c.ImageGen.PollTimeoutSeconds <= c.ImageGen.PollIntervalSeconds {
		return errors.New("imagegen.poll_timeout_seconds must be greater than imagegen.poll_interval_seconds")
	}
	return nil
}

func (c *Config) validateWorkflow() error {
	if err := ensurePositiveMap(map[string]int{
		"workflow.queue_poll_interval":    c.Workflow.QueuePollInterval,
		"workflow.max_attempts":           c.Workflow.MaxAttempts,
		"workflow.retry_backoff_seconds":  c.Workflow.RetryBackoffSeconds,
		"workflow.retry_backoff_cap_seconds": c.Workflow.RetryBackoffCap,
	}); err != nil {
		return err
	}
	if c.Workflow.HeartbeatInterval <= 0 {
		return errors.New("workflow.heartbeat_interval must be positive")
	}
	if c.Workflow.HeartbeatTimeout <= 0 {
		return errors.New("workflow.heartbeat_timeout must be positive")
	}
	if c.Workflow.HeartbeatTimeout <= c.Workflow.HeartbeatInterval {
		return errors.New("workflow.heartbeat_timeout must be greater than workflow.heartbeat_interval")
	}
	if c.Workflow.RetryBackoffCap < c.Workflow.RetryBackoffSeconds {
		return errors.New("workflow.retry_backoff_cap_seconds must be >= workflow.retry_backoff_seconds")
	}
	return nil
}

func ensurePositiveMap(values map[string]int) error {
	for key, value := range values {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}
