package llm

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/openai/openai-go/v3"

	"lectern/internal/logging"
	"lectern/internal/services"
)

const quotaCode = "insufficient_quota"

// withRetry runs call under the client's retry policy. call returns raw SDK
// errors; they are classified here and only retryable ones are attempted again.
func (c *Client) withRetry(ctx context.Context, operation string, call func(context.Context) error) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = c.retry.BaseDelay
	bo.Multiplier = 2
	bo.RandomizationFactor = 0
	if c.retry.MaxDelay > 0 {
		bo.MaxInterval = c.retry.MaxDelay
	}
	bo.MaxElapsedTime = 0
	bo.Reset()

	policy := backoff.WithContext(backoff.WithMaxRetries(bo, uint64(c.retry.MaxAttempts-1)), ctx)

	attempt := 0
	err := backoff.RetryNotify(func() error {
		attempt++
		callErr := call(ctx)
		if callErr == nil {
			return nil
		}
		classified := classify(ctx, operation, callErr)
		if !services.IsRetryable(classified) {
			return backoff.Permanent(classified)
		}
		return classified
	}, policy, func(err error, delay time.Duration) {
		c.logger.Info("retrying openai request",
			logging.String("operation", operation),
			logging.Int("attempt", attempt),
			logging.Int("max_attempts", c.retry.MaxAttempts),
			logging.Duration("delay", delay),
			logging.String(logging.FieldErrorKind, string(services.Details(err).Kind)),
		)
	})
	if err == nil {
		return nil
	}
	if ctx.Err() != nil && !errors.Is(err, services.ErrTimeout) {
		return services.Wrap(services.ErrTimeout, "llm", operation, "request cancelled", err)
	}
	if services.IsRetryable(err) && attempt > 1 {
		return fmt.Errorf("%s: gave up after %d attempts: %w", operation, attempt, err)
	}
	return err
}

// classify maps an SDK or transport error onto a services marker.
func classify(ctx context.Context, operation string, err error) error {
	var step *services.StepError
	if errors.As(err, &step) {
		return err
	}
	if ctx.Err() != nil {
		return services.Wrap(services.ErrTimeout, "llm", operation, "request cancelled", err)
	}

	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		status := apiErr.StatusCode
		switch {
		case isQuotaError(apiErr):
			return services.Wrap(services.ErrQuotaExceeded, "llm", operation,
				"openai quota exceeded; check plan and billing before retrying", err)
		case status == http.StatusTooManyRequests:
			return services.Wrap(services.ErrRateLimited, "llm", operation, "openai rate limit", err)
		case status == http.StatusRequestTimeout:
			return services.Wrap(services.ErrTimeout, "llm", operation, "openai request timeout", err)
		case status >= 500:
			return services.Wrap(services.ErrTransient, "llm", operation, fmt.Sprintf("openai server error (http %d)", status), err)
		case status >= 400:
			return services.Wrap(services.ErrValidation, "llm", operation, fmt.Sprintf("openai rejected request (http %d)", status), err)
		}
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return services.Wrap(services.ErrTimeout, "llm", operation, "openai request timed out", err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return services.Wrap(services.ErrTransient, "llm", operation, "network error", err)
	}
	return services.Wrap(services.ErrTransient, "llm", operation, "openai request failed", err)
}

func isQuotaError(apiErr *openai.Error) bool {
	if apiErr.StatusCode != http.StatusTooManyRequests {
		return false
	}
	if apiErr.Code == quotaCode || apiErr.Type == quotaCode {
		return true
	}
	return strings.Contains(strings.ToLower(apiErr.Error()), quotaCode) ||
		strings.Contains(strings.ToLower(apiErr.Message), "exceeded your current quota")
}
