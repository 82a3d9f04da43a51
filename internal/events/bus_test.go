package events

import (
	"context"
	"testing"

	"lectern/internal/logging"
)

func TestBusSinceAndCap(t *testing.T) {
	bus := NewBus(2, logging.NewNop())
	ctx := context.Background()
	bus.Publish(ctx, JobProgress, ProgressPayload{Progress: 1})
	bus.Publish(ctx, JobProgress, ProgressPayload{Progress: 2})
	bus.Publish(ctx, JobProgress, ProgressPayload{Progress: 3})

	events := bus.Since(0)
	if len(events) != 2 {
		t.Fatalf("len = %d, want 2", len(events))
	}
	if events[0].Seq != 2 || events[1].Seq != 3 {
		t.Fatalf("unexpected seqs: %+v", events)
	}
	if got := bus.Since(2); len(got) != 1 || got[0].Seq != 3 {
		t.Fatalf("Since(2) = %+v", got)
	}
	if bus.LastSeq() != 3 {
		t.Fatalf("LastSeq = %d", bus.LastSeq())
	}
}

func TestBusDeliversToMatchingSubscribers(t *testing.T) {
	bus := NewBus(10, logging.NewNop())
	var uploads []UploadedPayload
	unsubscribe := bus.Subscribe(Uploaded, func(_ context.Context, e Event) {
		uploads = append(uploads, e.Payload.(UploadedPayload))
	})
	bus.Subscribe(RetryProcessing, func(context.Context, Event) {
		t.Fatal("retry subscriber should not see uploads")
	})

	bus.Publish(context.Background(), Uploaded, UploadedPayload{AudiobookID: 4, FileName: "a.mp3"})
	if len(uploads) != 1 || uploads[0].AudiobookID != 4 {
		t.Fatalf("uploads = %+v", uploads)
	}

	unsubscribe()
	bus.Publish(context.Background(), Uploaded, UploadedPayload{AudiobookID: 5})
	if len(uploads) != 1 {
		t.Fatalf("unsubscribed handler still called: %+v", uploads)
	}
}

func TestBusRecoversHandlerPanic(t *testing.T) {
	bus := NewBus(10, logging.NewNop())
	called := false
	bus.Subscribe(ProcessingComplete, func(context.Context, Event) { panic("boom") })
	bus.Subscribe(ProcessingComplete, func(context.Context, Event) { called = true })

	bus.Publish(context.Background(), ProcessingComplete, CompletePayload{Success: true})
	if !called {
		t.Fatal("second handler not called after panic")
	}
}

func TestBusListen(t *testing.T) {
	bus := NewBus(10, logging.NewNop())
	ch, stop := bus.Listen(1)
	bus.Publish(context.Background(), JobProgress, ProgressPayload{Progress: 5})
	bus.Publish(context.Background(), JobProgress, ProgressPayload{Progress: 6})

	first := <-ch
	if first.Payload.(ProgressPayload).Progress != 5 {
		t.Fatalf("unexpected event: %+v", first)
	}
	stop()
	stop()
	if _, ok := <-ch; ok {
		t.Fatal("expected channel closed after stop")
	}
}
