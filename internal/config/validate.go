package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate ensures the configuration is usable.
//
// An empty OpenAI API key is allowed here so that CLI commands which only read the
// catalog keep working; the daemon checks it during preflight.
func (c *Config) Validate() error {
	if err := c.validateRetry(); err != nil {
		return err
	}
	if err := c.validateAudio(); err != nil {
		return err
	}
	if err := c.validateContent(); err != nil {
		return err
	}
	if err := c.validateStorage(); err != nil {
		return err
	}
	if err := c.validateWorkflow(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validateRetry() error {
	if c.Retry.MaxAttempts < 1 {
		return errors.New("retry.max_attempts must be at least 1")
	}
	if c.Retry.BaseDelaySeconds < 0 || c.Retry.MaxDelaySeconds < 0 {
		return errors.New("retry delays must not be negative")
	}
	if c.Retry.MaxDelaySeconds > 0 && c.Retry.MaxDelaySeconds < c.Retry.BaseDelaySeconds {
		return errors.New("retry.max_delay_seconds must be >= retry.base_delay_seconds")
	}
	return nil
}

func (c *Config) validateAudio() error {
	if c.Audio.MaxFileBytes <= 0 {
		return errors.New("audio.max_file_bytes must be positive")
	}
	return nil
}

func (c *Config) validateContent() error {
	if c.Content.ExcerptChars <= 0 {
		return errors.New("content.excerpt_chars must be positive")
	}
	if c.Content.MaxDescriptionWords <= 0 {
		return errors.New("content.max_description_words must be positive")
	}
	switch c.Content.Tone {
	case ToneProfessional, ToneCasual, ToneAcademic, ToneMarketing:
	default:
		return fmt.Errorf("content.tone: unsupported value %q", c.Content.Tone)
	}
	if c.Content.Temperature < 0 || c.Content.Temperature > 2 {
		return errors.New("content.temperature must be between 0 and 2")
	}
	return nil
}

func (c *Config) validateStorage() error {
	switch c.Storage.Backend {
	case StorageBackendFS:
	case StorageBackendHTTP:
		if c.Storage.HTTPBaseURL == "" {
			return errors.New("storage.http_base_url is required when storage.backend is http")
		}
	default:
		return fmt.Errorf("storage.backend: unsupported value %q", c.Storage.Backend)
	}
	if c.Storage.SignedURLTTLSeconds <= 0 {
		return errors.New("storage.signed_url_ttl_seconds must be positive")
	}
	return nil
}

func (c *Config) validateWorkflow() error {
	if c.Workflow.PollInterval <= 0 {
		return errors.New("workflow.poll_interval must be positive")
	}
	if c.Workflow.ErrorRetryInterval <= 0 {
		return errors.New("workflow.error_retry_interval must be positive")
	}
	if c.Workflow.HeartbeatInterval <= 0 {
		return errors.New("workflow.heartbeat_interval must be positive")
	}
	if c.Workflow.HeartbeatTimeout <= c.Workflow.HeartbeatInterval {
		return errors.New("workflow.heartbeat_timeout must exceed workflow.heartbeat_interval")
	}
	if c.Workflow.MaxRunAttempts < 1 {
		return errors.New("workflow.max_run_attempts must be at least 1")
	}
	if c.Workflow.Workers < 1 {
		return errors.New("workflow.workers must be at least 1")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch strings.ToLower(c.Logging.Format) {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format: unsupported value %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level: unsupported value %q", c.Logging.Level)
	}
	return nil
}
