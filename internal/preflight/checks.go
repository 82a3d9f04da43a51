package preflight

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strings"
	"time"

	"golang.org/x/sys/unix"

	"lectern/internal/config"
	"lectern/internal/services"
	"lectern/internal/services/llm"
)

// CheckOpenAI verifies that the API is reachable, the key is accepted and the
// configured models exist. It uses a 30-second timeout and a single attempt.
func CheckOpenAI(ctx context.Context, cfg *config.Config) Result {
	const name = "OpenAI API"
	if strings.TrimSpace(cfg.OpenAI.APIKey) == "" {
		return Result{Name: name, Detail: "API key missing (openai.api_key or OPENAI_API_KEY)"}
	}

	checkCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	client, err := llm.NewClient(llm.Config{
		APIKey:             cfg.OpenAI.APIKey,
		BaseURL:            cfg.OpenAI.BaseURL,
		TranscriptionModel: cfg.OpenAI.TranscriptionModel,
		ContentModel:       cfg.OpenAI.ContentModel,
		Timeout:            30 * time.Second,
	}, llm.WithRetryPolicy(llm.RetryPolicy{MaxAttempts: 1}))
	if err != nil {
		return Result{Name: name, Detail: err.Error()}
	}
	missing, err := client.HealthCheck(checkCtx)
	if err != nil {
		return Result{Name: name, Detail: summarizeLLMError(err)}
	}
	if len(missing) > 0 {
		return Result{Name: name, Detail: fmt.Sprintf("API reachable but models not listed: %s", strings.Join(missing, ", "))}
	}
	return Result{Name: name, Passed: true, Detail: "API reachable"}
}

// CheckSigning reports whether signed download URLs can be issued.
func CheckSigning(cfg *config.Config) Result {
	const name = "URL signing"
	if strings.TrimSpace(cfg.Storage.SigningSecret) == "" {
		return Result{Name: name, Detail: "signing secret missing (storage.signing_secret or LECTERN_SIGNING_SECRET)"}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("ttl %s", cfg.SignedURLTTL())}
}

// CheckDirectoryAccess verifies that the directory exists and is readable/writable.
func CheckDirectoryAccess(name, path string) Result {
	if strings.TrimSpace(path) == "" {
		return Result{Name: name, Detail: "not configured"}
	}
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", path)}
}

// summarizeLLMError produces a human-readable summary for OpenAI health check failures.
func summarizeLLMError(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return "health check timed out (OpenAI API unresponsive)"
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "health check timed out (OpenAI API unreachable)"
	}
	switch services.Details(err).Kind {
	case services.KindQuotaExceeded:
		return "quota exceeded (check plan and billing)"
	case services.KindValidation:
		return "request rejected (check api key): " + err.Error()
	}
	return err.Error()
}
