package llm

import (
	"context"
	"fmt"
)

type modelList struct {
	Data []struct {
		ID string `json:"id"`
	} `json:"data"`
}

// HealthCheck lists the available models once, without retries, and reports
// whether the configured transcription and content models are among them.
func (c *Client) HealthCheck(ctx context.Context) (missing []string, err error) {
	const operation = "health check"
	var out modelList
	if err := c.api.Get(ctx, "models", nil, &out); err != nil {
		return nil, classify(ctx, operation, err)
	}
	known := make(map[string]struct{}, len(out.Data))
	for _, model := range out.Data {
		known[model.ID] = struct{}{}
	}
	for _, want := range []string{c.cfg.TranscriptionModel, c.cfg.ContentModel} {
		if _, ok := known[want]; !ok {
			missing = append(missing, want)
		}
	}
	if len(out.Data) == 0 {
		return missing, fmt.Errorf("%s: model list is empty", operation)
	}
	return missing, nil
}
