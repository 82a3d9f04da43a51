package services

import (
	"errors"
	"strings"
)

var (
	ErrExternalTool      = errors.New("external service error")
	ErrValidation        = errors.New("validation error")
	ErrConfiguration     = errors.New("configuration error")
	ErrNotFound          = errors.New("not found")
	ErrTimeout           = errors.New("timeout")
	ErrTransient         = errors.New("transient failure")
	ErrRateLimited       = errors.New("rate limited")
	ErrQuotaExceeded     = errors.New("quota exceeded")
	ErrInvalidResponse   = errors.New("invalid response")
	ErrContentGeneration = errors.New("content generation failed")
	ErrConflict          = errors.New("conflict")
)

// Kind names a marker for logs and API payloads.
type Kind string

const (
	KindUnknown           Kind = "unknown"
	KindExternal          Kind = "external"
	KindValidation        Kind = "validation"
	KindConfiguration     Kind = "configuration"
	KindNotFound          Kind = "not_found"
	KindTimeout           Kind = "timeout"
	KindTransient         Kind = "transient"
	KindRateLimited       Kind = "rate_limited"
	KindQuotaExceeded     Kind = "quota_exceeded"
	KindInvalidResponse   Kind = "invalid_response"
	KindContentGeneration Kind = "content_generation"
	KindConflict          Kind = "conflict"
)

// markerKinds is ordered from most to least specific so that an error carrying
// several markers reports the one closest to the root cause.
var markerKinds = []struct {
	marker error
	kind   Kind
}{
	{ErrQuotaExceeded, KindQuotaExceeded},
	{ErrRateLimited, KindRateLimited},
	{ErrInvalidResponse, KindInvalidResponse},
	{ErrNotFound, KindNotFound},
	{ErrValidation, KindValidation},
	{ErrConfiguration, KindConfiguration},
	{ErrConflict, KindConflict},
	{ErrTimeout, KindTimeout},
	{ErrContentGeneration, KindContentGeneration},
	{ErrExternalTool, KindExternal},
	{ErrTransient, KindTransient},
}

// StepError is a stage-scoped failure. Both the marker and the cause stay
// reachable through errors.Is and errors.As.
type StepError struct {
	Marker    error
	Stage     string
	Operation string
	Message   string
	Err       error
}

func (e *StepError) Error() string {
	detail := buildDetail(e.Stage, e.Operation, e.Message)
	if e.Err != nil {
		return e.Marker.Error() + ": " + detail + ": " + e.Err.Error()
	}
	return e.Marker.Error() + ": " + detail
}

func (e *StepError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Marker}
	}
	return []error{e.Marker, e.Err}
}

// Wrap builds an error that includes stage context while tagging it with the
// provided marker for later classification. The marker should be one of the
// exported sentinel errors above.
func Wrap(marker error, stage, operation, message string, err error) error {
	if marker == nil {
		marker = ErrTransient
	}
	return &StepError{
		Marker:    marker,
		Stage:     strings.TrimSpace(stage),
		Operation: strings.TrimSpace(operation),
		Message:   strings.TrimSpace(message),
		Err:       err,
	}
}

// ErrorDetails summarises an error for logs and persisted job state.
type ErrorDetails struct {
	Kind      Kind
	Stage     string
	Operation string
	Message   string
	Cause     error
}

// Details walks the error chain and reports the outermost step context plus the
// most specific marker kind found anywhere in the chain.
func Details(err error) ErrorDetails {
	if err == nil {
		return ErrorDetails{Kind: KindUnknown}
	}
	details := ErrorDetails{Kind: KindUnknown, Message: err.Error()}
	var step *StepError
	if errors.As(err, &step) {
		details.Stage = step.Stage
		details.Operation = step.Operation
		details.Cause = step.Err
		if step.Message != "" {
			details.Message = step.Message
			if step.Err != nil {
				details.Message += ": " + step.Err.Error()
			}
		}
	}
	for _, mk := range markerKinds {
		if errors.Is(err, mk.marker) {
			details.Kind = mk.kind
			break
		}
	}
	return details
}

// IsRetryable reports whether a failure is worth another attempt.
func IsRetryable(err error) bool {
	switch Details(err).Kind {
	case KindTransient, KindTimeout, KindRateLimited:
		return true
	default:
		return false
	}
}

func buildDetail(stage, operation, message string) string {
	parts := make([]string, 0, 3)
	for _, part := range []string{stage, operation, message} {
		if part != "" {
			parts = append(parts, part)
		}
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
