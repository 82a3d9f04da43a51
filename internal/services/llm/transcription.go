package llm

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/openai/openai-go/v3"

	"lectern/internal/services"
)

// Transcript is the speech-to-text result for one file.
type Transcript struct {
	Text            string
	DurationSeconds float64
	Language        string
}

type verboseTranscription struct {
	Text     string  `json:"text"`
	Duration float64 `json:"duration"`
	Language string  `json:"language"`
}

// Transcribe uploads the file at path and returns its transcript. The caller
// is responsible for enforcing the upload size ceiling beforehand.
func (c *Client) Transcribe(ctx context.Context, path string) (Transcript, error) {
	const operation = "transcribe"
	var out verboseTranscription
	err := c.withRetry(ctx, operation, func(ctx context.Context) error {
		f, err := os.Open(path)
		if err != nil {
			return services.Wrap(services.ErrValidation, "llm", operation, "open audio file", err)
		}
		defer f.Close()

		out = verboseTranscription{}
		params := openai.AudioTranscriptionNewParams{
			File:           f,
			Model:          openai.AudioModel(c.cfg.TranscriptionModel),
			ResponseFormat: openai.AudioResponseFormatVerboseJSON,
		}
		return c.api.Post(ctx, "audio/transcriptions", params, &out)
	})
	if err != nil {
		return Transcript{}, err
	}
	text := strings.TrimSpace(out.Text)
	if text == "" {
		return Transcript{}, services.Wrap(services.ErrInvalidResponse, "llm", operation, "transcription returned no text", nil)
	}
	if out.Duration < 0 {
		return Transcript{}, services.Wrap(services.ErrInvalidResponse, "llm", operation, fmt.Sprintf("negative duration %.2f", out.Duration), nil)
	}
	return Transcript{Text: text, DurationSeconds: out.Duration, Language: out.Language}, nil
}
