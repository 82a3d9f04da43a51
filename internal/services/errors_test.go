package services_test

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"lectern/internal/services"
)

func TestWrapIncludesContext(t *testing.T) {
	base := errors.New("boom")
	err := services.Wrap(services.ErrExternalTool, "transcription", "download", "fetch failed", base)
	if !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("expected marker to be retained, got %v", err)
	}
	if !errors.Is(err, base) {
		t.Fatalf("expected wrapped error to contain base error, got %v", err)
	}
	msg := err.Error()
	for _, fragment := range []string{"transcription", "download", "fetch failed", "boom"} {
		if !strings.Contains(msg, fragment) {
			t.Fatalf("expected %q in error string %q", fragment, msg)
		}
	}
}

func TestWrapDefaultsToTransient(t *testing.T) {
	err := services.Wrap(nil, "", "", "", nil)
	if !errors.Is(err, services.ErrTransient) {
		t.Fatalf("expected transient marker, got %v", err)
	}
	if !strings.Contains(err.Error(), "service failure") {
		t.Fatalf("unexpected message %q", err.Error())
	}
}

func TestDetailsPrefersSpecificMarker(t *testing.T) {
	inner := services.Wrap(services.ErrQuotaExceeded, "transcription", "request", "quota exhausted", errors.New("429"))
	outer := services.Wrap(services.ErrExternalTool, "coordinator", "transcribe", "", fmt.Errorf("run: %w", inner))

	details := services.Details(outer)
	if details.Kind != services.KindQuotaExceeded {
		t.Fatalf("expected quota kind, got %s", details.Kind)
	}
	if details.Stage != "coordinator" || details.Operation != "transcribe" {
		t.Fatalf("unexpected step context %+v", details)
	}
	if services.IsRetryable(outer) {
		t.Fatal("quota errors must not be retryable")
	}
}

func TestIsRetryable(t *testing.T) {
	cases := []struct {
		err  error
		want bool
	}{
		{services.Wrap(services.ErrTransient, "x", "y", "", nil), true},
		{services.Wrap(services.ErrRateLimited, "x", "y", "", nil), true},
		{services.Wrap(services.ErrValidation, "x", "y", "", nil), false},
		{services.Wrap(services.ErrInvalidResponse, "x", "y", "", nil), false},
		{services.Wrap(services.ErrTimeout, "x", "y", "", nil), true},
		{services.Wrap(services.ErrExternalTool, "x", "y", "", nil), false},
		{services.Wrap(services.ErrQuotaExceeded, "x", "y", "", errors.New("429")), false},
		{errors.New("plain"), false},
	}
	for _, tc := range cases {
		if got := services.IsRetryable(tc.err); got != tc.want {
			t.Fatalf("IsRetryable(%v) = %v, want %v", tc.err, got, tc.want)
		}
	}
}
