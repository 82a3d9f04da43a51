package notifications

import (
	"context"
	"log/slog"
	"time"

	"lectern/internal/events"
	"lectern/internal/logging"
)

// Bridge forwards processing-complete events to a Service.
type Bridge struct {
	service Service
	logger  *slog.Logger
	timeout time.Duration
}

// NewBridge wires service to the bus and returns the bridge with its unsubscribe func.
func NewBridge(bus *events.Bus, service Service, logger *slog.Logger) (*Bridge, func()) {
	b := &Bridge{
		service: service,
		logger:  logging.NewComponentLogger(logger, "notifications"),
		timeout: 15 * time.Second,
	}
	return b, bus.Subscribe(events.ProcessingComplete, b.handle)
}

func (b *Bridge) handle(ctx context.Context, event events.Event) {
	done, ok := event.Payload.(events.CompletePayload)
	if !ok {
		return
	}
	kind := EventProcessingCompleted
	payload := Payload{
		"title":            done.Title,
		"audiobookId":      done.AudiobookID,
		"jobId":            done.JobID,
		"processingTimeMs": done.ProcessingTimeMs,
	}
	if !done.Success {
		kind = EventProcessingFailed
		payload["error"] = done.Error
	}

	// Delivery must not hold up the publishing worker past its own cancellation.
	sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), b.timeout)
	defer cancel()
	if err := b.service.Publish(sendCtx, kind, payload); err != nil {
		logging.WarnWithContext(b.logger, "notification delivery failed", "notification_failed",
			logging.Int64(logging.FieldJobID, done.JobID),
			logging.String(logging.FieldEventType, string(kind)),
			logging.Error(err),
			logging.String(logging.FieldImpact, "operator not notified of pipeline outcome"),
		)
	}
}
