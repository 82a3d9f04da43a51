// Package llm wraps the OpenAI speech-to-text and chat completion APIs used by
// the audiobook pipeline.
//
// Both calls share one retry loop built on cenkalti/backoff: exponential
// delays starting at the configured base (2s by default) and doubling up to
// the configured ceiling, for at most Retry.MaxAttempts attempts.
//
// Failures are classified into the services markers:
//   - quota exhaustion (HTTP 429 with insufficient_quota) is never retried
//   - other 429 responses are rate limits and are retried
//   - remaining 4xx responses are rejected requests and are not retried
//   - 5xx responses, timeouts and network errors are transient and retried
//   - a chat reply missing description, summary or categories is an invalid
//     response and is not retried
//
// The SDK's own retry layer is disabled so the policy above is the only one.
package llm
