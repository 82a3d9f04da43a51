package catalog

import (
	"encoding/json"
	"fmt"
)

// Metadata is the open key/value bag attached to a job. Values are scalars or
// nested objects of scalars. Writes are merged into the stored document with
// JSON merge-patch semantics, so nested objects accumulate keys and a nil value
// removes a key.
type Metadata map[string]any

// Recognized metadata keys.
const (
	// Set when the job is created from an upload trigger.
	MetaFileName  = "fileName"
	MetaFileSize  = "fileSize"
	MetaFilePath  = "filePath"
	MetaBucket    = "bucket"
	MetaStartTime = "startTime"

	// Updated on every progress write.
	MetaPhase   = "phase"
	MetaMessage = "message"
	// MetaPhases maps each phase to the time it was last reported.
	MetaPhases = "phases"

	// Set when the transcript is persisted.
	MetaTranscriptionID = "transcriptionId"
	MetaWordCount       = "wordCount"
	MetaDurationSeconds = "durationSeconds"
	MetaConfidence      = "confidence"
	MetaLanguage        = "language"
	// MetaChunkCount is always 1 because oversized files are rejected rather than chunked.
	MetaChunkCount = "chunkCount"

	// Set when content generation finishes.
	MetaCategoriesGenerated = "categoriesGenerated"
	MetaContentConfidence   = "contentConfidence"
	MetaPromptTokens        = "promptTokens"

	// Set on completion.
	MetaTotalTimeMs = "totalTimeMs"
	MetaCompletedBy = "completedBy"

	// Maintained by the store.
	MetaRunAttempts = "runAttempts"
	MetaRetryCount  = "retryCount"
	MetaRetriedAt   = "retriedAt"
	MetaCancelledAt = "cancelledAt"
	MetaErrorKind   = "errorKind"
)

// String returns a string value or "".
func (m Metadata) String(key string) string {
	if v, ok := m[key].(string); ok {
		return v
	}
	return ""
}

// Int64 returns a numeric value as int64. JSON numbers decode as float64.
func (m Metadata) Int64(key string) int64 {
	switch v := m[key].(type) {
	case float64:
		return int64(v)
	case int64:
		return v
	case int:
		return int64(v)
	case json.Number:
		n, _ := v.Int64()
		return n
	default:
		return 0
	}
}

func (m Metadata) encode() (string, error) {
	if len(m) == 0 {
		return "{}", nil
	}
	data, err := json.Marshal(m)
	if err != nil {
		return "", fmt.Errorf("encode job metadata: %w", err)
	}
	return string(data), nil
}

func decodeMetadata(raw string) Metadata {
	meta := Metadata{}
	if raw == "" {
		return meta
	}
	_ = json.Unmarshal([]byte(raw), &meta)
	return meta
}
