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
	c.normalizeOpenAI()
	c.normalizeAudio()
	c.normalizeContent()
	c.normalizeStorage()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	if strings.TrimSpace(c.Paths.DataDir) == "" {
		c.Paths.DataDir = defaultDataDir
	}
	if strings.TrimSpace(c.Paths.ScratchDir) == "" {
		c.Paths.ScratchDir = defaultScratchDir
	}
	if strings.TrimSpace(c.Paths.StorageDir) == "" {
		c.Paths.StorageDir = defaultStorageDir
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}

	var err error
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return fmt.Errorf("paths.data_dir: %w", err)
	}
	if c.Paths.ScratchDir, err = expandPath(c.Paths.ScratchDir); err != nil {
		return fmt.Errorf("paths.scratch_dir: %w", err)
	}
	if c.Paths.StorageDir, err = expandPath(c.Paths.StorageDir); err != nil {
		return fmt.Errorf("paths.storage_dir: %w", err)
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}

	c.Paths.APIBind = strings.TrimSpace(c.Paths.APIBind)
	c.Paths.APIToken = strings.TrimSpace(c.Paths.APIToken)
	if c.Paths.APIToken == "" {
		c.Paths.APIToken = strings.TrimSpace(os.Getenv("LECTERN_API_TOKEN"))
	}
	return nil
}

func (c *Config) normalizeOpenAI() {
	c.OpenAI.APIKey = strings.TrimSpace(c.OpenAI.APIKey)
	if c.OpenAI.APIKey == "" {
		c.OpenAI.APIKey = strings.TrimSpace(os.Getenv("OPENAI_API_KEY"))
	}
	c.OpenAI.BaseURL = strings.TrimSpace(c.OpenAI.BaseURL)
	if c.OpenAI.BaseURL == "" {
		c.OpenAI.BaseURL = defaultOpenAIBaseURL
	}
	if !strings.HasSuffix(c.OpenAI.BaseURL, "/") {
		c.OpenAI.BaseURL += "/"
	}
	if strings.TrimSpace(c.OpenAI.TranscriptionModel) == "" {
		c.OpenAI.TranscriptionModel = defaultTranscriptionModel
	}
	if strings.TrimSpace(c.OpenAI.ContentModel) == "" {
		c.OpenAI.ContentModel = defaultContentModel
	}
	if c.OpenAI.TimeoutSeconds <= 0 {
		c.OpenAI.TimeoutSeconds = defaultOpenAITimeoutSeconds
	}
}

func (c *Config) normalizeAudio() {
	if len(c.Audio.Extensions) == 0 {
		c.Audio.Extensions = defaultExtensions()
		return
	}
	seen := make(map[string]struct{}, len(c.Audio.Extensions))
	normalized := make([]string, 0, len(c.Audio.Extensions))
	for _, ext := range c.Audio.Extensions {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext == "" {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		if _, ok := seen[ext]; ok {
			continue
		}
		seen[ext] = struct{}{}
		normalized = append(normalized, ext)
	}
	c.Audio.Extensions = normalized
}

func (c *Config) normalizeContent() {
	c.Content.Tone = strings.ToLower(strings.TrimSpace(c.Content.Tone))
	if c.Content.Tone == "" {
		c.Content.Tone = defaultTone
	}
	cleaned := c.Content.PreferredCategories[:0]
	for _, category := range c.Content.PreferredCategories {
		if category = strings.TrimSpace(category); category != "" {
			cleaned = append(cleaned, category)
		}
	}
	c.Content.PreferredCategories = cleaned
}

func (c *Config) normalizeStorage() {
	c.Storage.Backend = strings.ToLower(strings.TrimSpace(c.Storage.Backend))
	if c.Storage.Backend == "" {
		c.Storage.Backend = StorageBackendFS
	}
	c.Storage.Bucket = strings.TrimSpace(c.Storage.Bucket)
	if c.Storage.Bucket == "" {
		c.Storage.Bucket = defaultBucket
	}
	c.Storage.HTTPBaseURL = strings.TrimRight(strings.TrimSpace(c.Storage.HTTPBaseURL), "/")
	c.Storage.PublicBaseURL = strings.TrimRight(strings.TrimSpace(c.Storage.PublicBaseURL), "/")
	c.Storage.SigningSecret = strings.TrimSpace(c.Storage.SigningSecret)
	if c.Storage.SigningSecret == "" {
		c.Storage.SigningSecret = strings.TrimSpace(os.Getenv("LECTERN_SIGNING_SECRET"))
	}
	if c.Storage.PublicBaseURL == "" && c.Paths.APIBind != "" {
		c.Storage.PublicBaseURL = "http://" + c.Paths.APIBind + "/files"
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
