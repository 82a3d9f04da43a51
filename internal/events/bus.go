// Package events is the in-process event bus connecting uploads, admin
// actions and the job coordinator, with a bounded history for dashboards.
package events

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"lectern/internal/logging"
)

// Name identifies an event.
type Name string

const (
	Uploaded           Name = "audiobook/uploaded"
	RetryProcessing    Name = "audiobook/retry-processing"
	ProcessingComplete Name = "audiobook/processing-complete"
	JobProgress        Name = "job/progress"
)

// UploadedPayload announces a stored upload that needs processing.
type UploadedPayload struct {
	AudiobookID int64  `json:"audiobookId"`
	FileName    string `json:"fileName"`
	FileSize    int64  `json:"fileSize"`
	FilePath    string `json:"filePath"`
	Bucket      string `json:"bucket"`
}

// RetryPayload asks for a failed job to be run again.
type RetryPayload struct {
	AudiobookID   int64 `json:"audiobookId"`
	OriginalJobID int64 `json:"originalJobId"`
}

// CompletePayload reports the outcome of a run.
type CompletePayload struct {
	AudiobookID      int64  `json:"audiobookId"`
	JobID            int64  `json:"jobId"`
	Title            string `json:"title,omitempty"`
	Success          bool   `json:"success"`
	Error            string `json:"error,omitempty"`
	TranscriptionID  int64  `json:"transcriptionId,omitempty"`
	ProcessingTimeMs int64  `json:"processingTimeMs,omitempty"`
}

// ProgressPayload mirrors a persisted job progress write.
type ProgressPayload struct {
	AudiobookID int64  `json:"audiobookId"`
	JobID       int64  `json:"jobId"`
	Status      string `json:"status"`
	Progress    int    `json:"progress"`
	Message     string `json:"message,omitempty"`
}

// Event is a sequenced bus message.
type Event struct {
	Seq       int64     `json:"seq"`
	Timestamp time.Time `json:"timestamp"`
	Name      Name      `json:"name"`
	Payload   any       `json:"payload"`
}

// Handler receives events synchronously on the publisher's goroutine.
type Handler func(ctx context.Context, event Event)

type subscription struct {
	id      int64
	name    Name
	handler Handler
}

type listener struct {
	id int64
	ch chan Event
}

// Bus fans events out to subscribers and keeps recent history.
type Bus struct {
	mu        sync.RWMutex
	nextSeq   int64
	nextID    int64
	maxEvents int
	history   []Event
	subs      []subscription
	listeners []listener
	logger    *slog.Logger
}

// NewBus creates a bus retaining up to maxEvents events.
func NewBus(maxEvents int, logger *slog.Logger) *Bus {
	if maxEvents <= 0 {
		maxEvents = 500
	}
	return &Bus{
		maxEvents: maxEvents,
		history:   make([]Event, 0, maxEvents),
		logger:    logging.NewComponentLogger(logger, "events"),
	}
}

// Subscribe registers handler for name and returns a function that removes it.
func (b *Bus) Subscribe(name Name, handler Handler) func() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	id := b.nextID
	b.subs = append(b.subs, subscription{id: id, name: name, handler: handler})
	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		for i, sub := range b.subs {
			if sub.id == id {
				b.subs = append(b.subs[:i], b.subs[i+1:]...)
				return
			}
		}
	}
}

// Listen returns a channel receiving every event published after the call.
// Slow listeners drop events rather than block publishers.
func (b *Bus) Listen(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 64
	}
	ch := make(chan Event, buffer)
	b.mu.Lock()
	b.nextID++
	id := b.nextID
	b.listeners = append(b.listeners, listener{id: id, ch: ch})
	b.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			for i, l := range b.listeners {
				if l.id == id {
					b.listeners = append(b.listeners[:i], b.listeners[i+1:]...)
					break
				}
			}
			close(ch)
		})
	}
}

// Publish records the event and delivers it to subscribers of name.
func (b *Bus) Publish(ctx context.Context, name Name, payload any) Event {
	b.mu.Lock()
	b.nextSeq++
	event := Event{Seq: b.nextSeq, Timestamp: time.Now().UTC(), Name: name, Payload: payload}
	b.history = append(b.history, event)
	if len(b.history) > b.maxEvents {
		trim := len(b.history) - b.maxEvents
		b.history = append([]Event(nil), b.history[trim:]...)
	}
	var handlers []Handler
	for _, sub := range b.subs {
		if sub.name == name {
			handlers = append(handlers, sub.handler)
		}
	}
	for _, l := range b.listeners {
		select {
		case l.ch <- event:
		default:
		}
	}
	b.mu.Unlock()

	for _, handler := range handlers {
		b.deliver(ctx, handler, event)
	}
	return event
}

func (b *Bus) deliver(ctx context.Context, handler Handler, event Event) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("event handler panicked",
				logging.String(logging.FieldEventType, string(event.Name)),
				logging.Any("panic", r),
				logging.Alert("event_handler_panic"),
			)
		}
	}()
	handler(ctx, event)
}

// Since returns retained events with sequence strictly greater than seq.
func (b *Bus) Since(seq int64) []Event {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]Event, 0, len(b.history))
	for _, event := range b.history {
		if event.Seq > seq {
			out = append(out, event)
		}
	}
	return out
}

// LastSeq returns the sequence of the most recent event.
func (b *Bus) LastSeq() int64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.nextSeq
}
