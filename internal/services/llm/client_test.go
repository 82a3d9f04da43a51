package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"lectern/internal/services"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	client, err := NewClient(
		Config{APIKey: "test", BaseURL: server.URL, Timeout: 5 * time.Second},
		WithRetryPolicy(RetryPolicy{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond}),
		WithTokenCounter(ApproxCounter{}),
	)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return client
}

func writeAudio(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "chapter.mp3")
	if err := os.WriteFile(path, []byte("ID3 fake audio"), 0o644); err != nil {
		t.Fatalf("write audio: %v", err)
	}
	return path
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{"message": message, "type": code, "code": code},
	})
}

func writeChat(w http.ResponseWriter, content string) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"id":      "chatcmpl-1",
		"object":  "chat.completion",
		"created": 0,
		"model":   "gpt-4o-mini",
		"choices": []any{
			map[string]any{
				"index":         0,
				"finish_reason": "stop",
				"message":       map[string]any{"role": "assistant", "content": content},
			},
		},
	})
}

func TestNewClientRequiresAPIKey(t *testing.T) {
	_, err := NewClient(Config{})
	if !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}

func TestTranscribeSuccess(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/audio/transcriptions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("parse multipart: %v", err)
		}
		if got := r.FormValue("response_format"); got != "verbose_json" {
			t.Errorf("response_format = %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"text":"  Call me Ishmael.  ","duration":12.5,"language":"english"}`))
	})

	got, err := client.Transcribe(context.Background(), writeAudio(t))
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if got.Text != "Call me Ishmael." || got.DurationSeconds != 12.5 {
		t.Fatalf("unexpected transcript: %+v", got)
	}
}

func TestTranscribeRetryClassification(t *testing.T) {
	cases := []struct {
		name      string
		status    int
		code      string
		wantCalls int32
		wantErr   error
	}{
		{"quota never retried", http.StatusTooManyRequests, "insufficient_quota", 1, services.ErrQuotaExceeded},
		{"rate limit retried", http.StatusTooManyRequests, "rate_limit_exceeded", 3, services.ErrRateLimited},
		{"client error not retried", http.StatusBadRequest, "invalid_request_error", 1, services.ErrValidation},
		{"server error retried", http.StatusBadGateway, "server_error", 3, services.ErrTransient},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var calls atomic.Int32
			client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				calls.Add(1)
				writeError(w, tc.status, tc.code, "failure: "+tc.code)
			})
			_, err := client.Transcribe(context.Background(), writeAudio(t))
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("expected %v, got %v", tc.wantErr, err)
			}
			if got := calls.Load(); got != tc.wantCalls {
				t.Fatalf("calls = %d, want %d", got, tc.wantCalls)
			}
		})
	}
}

func TestTranscribeRecoversAfterTransientFailure(t *testing.T) {
	var calls atomic.Int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			writeError(w, http.StatusServiceUnavailable, "server_error", "busy")
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"text":"ok","duration":1}`))
	})
	got, err := client.Transcribe(context.Background(), writeAudio(t))
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if got.Text != "ok" || calls.Load() != 2 {
		t.Fatalf("unexpected result %+v after %d calls", got, calls.Load())
	}
}

func TestGenerateParsesCodeFencedReply(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		format, _ := body["response_format"].(map[string]any)
		if format["type"] != "json_object" {
			t.Errorf("response_format = %v", body["response_format"])
		}
		writeChat(w, "```json\n{\"description\":\"A tale.\",\"summary\":\"Short.\",\"categories\":[\"fiction\"]}\n```")
	})
	got, err := client.Generate(context.Background(), "Describe the book.", "Once upon a time.")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if got.Description != "A tale." || got.Summary != "Short." || len(got.Categories) != 1 {
		t.Fatalf("unexpected content: %+v", got)
	}
	if got.PromptTokens <= 0 {
		t.Fatalf("expected prompt token estimate, got %d", got.PromptTokens)
	}
}

func TestGenerateAcceptsEmptyCategoryList(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeChat(w, `{"description":"A tale.","summary":"Short.","categories":[]}`)
	})
	got, err := client.Generate(context.Background(), "Describe.", "Text.")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if len(got.Categories) != 0 {
		t.Fatalf("expected empty categories, got %v", got.Categories)
	}
}

func TestGenerateInvalidResponseNotRetried(t *testing.T) {
	replies := map[string]string{
		"missing description": `{"summary":"s","categories":["a"]}`,
		"missing summary":     `{"description":"d","categories":["a"]}`,
		"missing categories":  `{"description":"d","summary":"s"}`,
		"not json":            `I cannot help with that.`,
		"bad categories":      `{"description":"d","summary":"s","categories":"fiction"}`,
	}
	for name, reply := range replies {
		t.Run(name, func(t *testing.T) {
			var calls atomic.Int32
			client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				calls.Add(1)
				writeChat(w, reply)
			})
			_, err := client.Generate(context.Background(), "Describe.", "Text.")
			if !errors.Is(err, services.ErrInvalidResponse) {
				t.Fatalf("expected invalid response, got %v", err)
			}
			if calls.Load() != 1 {
				t.Fatalf("calls = %d, want 1", calls.Load())
			}
		})
	}
}

func TestDecodeLLMJSONExtractsObjectFromProse(t *testing.T) {
	var out struct {
		OK bool `json:"ok"`
	}
	if err := DecodeLLMJSON("Sure! Here it is: {\"ok\": true} Thanks.", &out); err != nil {
		t.Fatalf("DecodeLLMJSON: %v", err)
	}
	if !out.OK {
		t.Fatal("expected ok=true")
	}
	if err := DecodeLLMJSON("   ", &out); err == nil {
		t.Fatal("expected error for empty payload")
	}
}
