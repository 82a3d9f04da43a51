package llm

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/shared"

	"lectern/internal/services"
)

// Generated is the validated content returned by the chat model.
type Generated struct {
	Description  string
	Summary      string
	Categories   []string
	PromptTokens int
	Raw          string
}

type generatedPayload struct {
	Description string           `json:"description"`
	Summary     string           `json:"summary"`
	Categories  *json.RawMessage `json:"categories"`
}

// Generate sends the instructions as the system prompt and the transcript
// excerpt as the user message, and validates the JSON reply.
func (c *Client) Generate(ctx context.Context, instructions, transcript string) (Generated, error) {
	const operation = "generate content"
	instructions = strings.TrimSpace(instructions)
	transcript = strings.TrimSpace(transcript)
	if instructions == "" || transcript == "" {
		return Generated{}, services.Wrap(services.ErrValidation, "llm", operation, "prompt and transcript are required", nil)
	}

	params := openai.ChatCompletionNewParams{
		Model: shared.ChatModel(c.cfg.ContentModel),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(instructions),
			openai.UserMessage(transcript),
		},
		Temperature: openai.Float(c.cfg.Temperature),
		ResponseFormat: openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &shared.ResponseFormatJSONObjectParam{Type: "json_object"},
		},
	}

	var content string
	err := c.withRetry(ctx, operation, func(ctx context.Context) error {
		completion, err := c.api.Chat.Completions.New(ctx, params)
		if err != nil {
			return err
		}
		if len(completion.Choices) == 0 {
			return services.Wrap(services.ErrInvalidResponse, "llm", operation, "no choices returned", nil)
		}
		content = completion.Choices[0].Message.Content
		return nil
	})
	if err != nil {
		return Generated{}, err
	}

	result, err := parseGenerated(content)
	if err != nil {
		return Generated{}, err
	}
	result.PromptTokens = c.CountTokens(instructions) + c.CountTokens(transcript)
	return result, nil
}

func parseGenerated(content string) (Generated, error) {
	const operation = "parse content"
	var payload generatedPayload
	if err := DecodeLLMJSON(content, &payload); err != nil {
		return Generated{}, services.Wrap(services.ErrInvalidResponse, "llm", operation, "reply is not valid JSON", err)
	}
	description := strings.TrimSpace(payload.Description)
	if description == "" {
		return Generated{}, services.Wrap(services.ErrInvalidResponse, "llm", operation, "reply has no description", nil)
	}
	summary := strings.TrimSpace(payload.Summary)
	if summary == "" {
		return Generated{}, services.Wrap(services.ErrInvalidResponse, "llm", operation, "reply has no summary", nil)
	}
	if payload.Categories == nil {
		return Generated{}, services.Wrap(services.ErrInvalidResponse, "llm", operation, "reply has no categories", nil)
	}
	var categories []string
	if err := json.Unmarshal(*payload.Categories, &categories); err != nil {
		return Generated{}, services.Wrap(services.ErrInvalidResponse, "llm", operation, "categories must be a list of strings", err)
	}
	return Generated{
		Description: description,
		Summary:     summary,
		Categories:  categories,
		Raw:         content,
	}, nil
}
