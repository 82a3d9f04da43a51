package content

import (
	"context"
	"log/slog"
	"time"
	"unicode/utf8"

	"lectern/internal/config"
	"lectern/internal/logging"
	"lectern/internal/services"
	"lectern/internal/services/llm"
)

const (
	DefaultExcerptChars        = 4000
	DefaultMaxDescriptionWords = 800
)

// Generator is the chat client.
type Generator interface {
	Generate(ctx context.Context, instructions, transcript string) (llm.Generated, error)
}

// Options tunes prompt construction and post-processing.
type Options struct {
	ExcerptChars        int
	MaxDescriptionWords int
	Tone                string
	KeywordsEnabled     bool
	PreferredCategories []string
}

// OptionsFromConfig reads the [content] section.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		ExcerptChars:        cfg.Content.ExcerptChars,
		MaxDescriptionWords: cfg.Content.MaxDescriptionWords,
		Tone:                cfg.Content.Tone,
		KeywordsEnabled:     cfg.Content.KeywordsEnabled,
		PreferredCategories: cfg.Content.PreferredCategories,
	}
}

// Request describes the audiobook and its transcript.
type Request struct {
	Title           string
	Author          string
	Transcript      string
	DurationSeconds float64
	WordCount       int
	Confidence      float64
}

// Result is the post-processed content.
type Result struct {
	Description    string
	Summary        string
	Categories     []string
	Keywords       []string
	ContentLength  int
	Confidence     float64
	PromptTokens   int
	ProcessingTime time.Duration
}

// Service produces Results from transcripts.
type Service struct {
	client Generator
	opts   Options
	logger *slog.Logger
	now    func() time.Time
}

// NewService builds a service. Zero option values take the defaults.
func NewService(client Generator, opts Options, logger *slog.Logger) *Service {
	if opts.ExcerptChars <= 0 {
		opts.ExcerptChars = DefaultExcerptChars
	}
	if opts.MaxDescriptionWords <= 0 {
		opts.MaxDescriptionWords = DefaultMaxDescriptionWords
	}
	if opts.Tone == "" {
		opts.Tone = config.ToneProfessional
	}
	return &Service{
		client: client,
		opts:   opts,
		logger: logging.NewComponentLogger(logger, "content"),
		now:    time.Now,
	}
}

// Generate builds the prompt, calls the model and post-processes its reply.
// Every client failure is reported as ErrContentGeneration with the cause kept.
func (s *Service) Generate(ctx context.Context, req Request) (Result, error) {
	started := s.now()
	instructions := BuildInstructions(s.opts.Tone, s.opts.PreferredCategories) + "\n\n" + BuildContext(req)
	excerpt := Excerpt(req.Transcript, s.opts.ExcerptChars)
	if excerpt == "" {
		return Result{}, services.Wrap(services.ErrContentGeneration, "generating_content", "build prompt", "transcript is empty", nil)
	}

	generated, err := s.client.Generate(ctx, instructions, excerpt)
	if err != nil {
		return Result{}, services.Wrap(services.ErrContentGeneration, "generating_content", "generate content", "", err)
	}

	description := TruncateWords(generated.Description, s.opts.MaxDescriptionWords)
	categories := NormalizeCategories(generated.Categories)
	var keywords []string
	if s.opts.KeywordsEnabled {
		keywords = ExtractKeywords(req.Transcript, categories)
	} else {
		keywords = []string{}
	}

	result := Result{
		Description:    description,
		Summary:        generated.Summary,
		Categories:     categories,
		Keywords:       keywords,
		ContentLength:  utf8.RuneCountInString(description),
		Confidence:     Confidence(req.Confidence, description, categories),
		PromptTokens:   generated.PromptTokens,
		ProcessingTime: s.now().Sub(started),
	}
	logging.WithContext(ctx, s.logger).Info("content generated",
		logging.Int("description_chars", result.ContentLength),
		logging.Any("categories", result.Categories),
		logging.Float64("confidence", result.Confidence),
	)
	return result, nil
}
