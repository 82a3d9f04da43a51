package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"lectern/internal/config"
)

const userAgent = "Lectern-Go/0.1.0"

// Event names a notification kind.
type Event string

const (
	EventProcessingCompleted Event = "processing_completed"
	EventProcessingFailed    Event = "processing_failed"
	EventJobCancelled        Event = "job_cancelled"
	EventTest                Event = "test"
)

// Payload carries event-specific values.
type Payload map[string]any

// Service publishes notifications.
type Service interface {
	Publish(ctx context.Context, event Event, payload Payload) error
}

// NewService builds an ntfy-backed service, or a no-op when no topic is set.
func NewService(cfg *config.Config) Service {
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopService{}
	}
	timeout := time.Duration(cfg.Notifications.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &ntfyService{
		endpoint: topic,
		client:   &http.Client{Timeout: timeout},
	}
}

type message struct {
	title    string
	body     string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint string
	client   *http.Client
}

func (n *ntfyService) Publish(ctx context.Context, event Event, payload Payload) error {
	msg, ok := format(event, payload)
	if !ok {
		return nil
	}
	return n.send(ctx, msg)
}

func format(event Event, payload Payload) (message, bool) {
	title := payloadString(payload, "title")
	if title == "" {
		title = "audiobook"
	}
	switch event {
	case EventProcessingCompleted:
		body := fmt.Sprintf("✅ Ready: %s", title)
		if ms, ok := payload["processingTimeMs"].(int64); ok && ms > 0 {
			body = fmt.Sprintf("%s (%s)", body, (time.Duration(ms) * time.Millisecond).Round(time.Second))
		}
		return message{
			title: "Lectern - Processing Complete",
			body:  body,
			tags:  []string{"lectern", "pipeline", "completed"},
		}, true
	case EventProcessingFailed:
		reason := payloadString(payload, "error")
		if reason == "" {
			reason = "unknown"
		}
		return message{
			title:    "Lectern - Processing Failed",
			body:     fmt.Sprintf("❌ %s failed: %s", title, reason),
			tags:     []string{"lectern", "error", "alert"},
			priority: "high",
		}, true
	case EventTest:
		return message{
			title:    "Lectern - Test",
			body:     "🧪 Notification system test",
			tags:     []string{"lectern", "test"},
			priority: "low",
		}, true
	default:
		return message{}, false
	}
}

func payloadString(payload Payload, key string) string {
	if payload == nil {
		return ""
	}
	if v, ok := payload[key].(string); ok {
		return strings.TrimSpace(v)
	}
	return ""
}

func (n *ntfyService) send(ctx context.Context, msg message) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(msg.body))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if msg.title != "" {
		req.Header.Set("Title", msg.title)
	}
	if len(msg.tags) > 0 {
		req.Header.Set("Tags", strings.Join(msg.tags, ","))
	}
	if msg.priority != "" && msg.priority != "default" {
		req.Header.Set("Priority", msg.priority)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

type noopService struct{}

func (noopService) Publish(context.Context, Event, Payload) error { return nil }
