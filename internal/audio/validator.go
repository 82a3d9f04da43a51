package audio

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"lectern/internal/services"
)

// DefaultMaxBytes is the Whisper upload ceiling.
const DefaultMaxBytes int64 = 25 * 1024 * 1024

// FormatUnknown is reported for extensions outside the allow-list.
const FormatUnknown = "unknown"

var (
	ErrFileNotFound    = errors.New("audio file not found")
	ErrFileTooLarge    = errors.New("audio file too large")
	ErrAudioProcessing = errors.New("audio processing error")
)

var knownFormats = map[string]string{
	".mp3":  "mp3",
	".m4a":  "m4a",
	".m4b":  "m4b",
	".wav":  "wav",
	".flac": "flac",
	".ogg":  "ogg",
	".oga":  "ogg",
	".aac":  "aac",
	".webm": "webm",
	".mp4":  "mp4",
	".mpeg": "mpeg",
	".mpga": "mpga",
}

// Metadata is what validation learns about a file.
type Metadata struct {
	SizeBytes int64  `json:"sizeBytes"`
	Format    string `json:"format"`
}

// Validator enforces the size ceiling and derives formats.
type Validator struct {
	maxBytes int64
	formats  map[string]string
}

// NewValidator builds a validator. A non-positive maxBytes selects DefaultMaxBytes;
// an empty extension list selects the built-in allow-list.
func NewValidator(maxBytes int64, extensions []string) *Validator {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	formats := knownFormats
	if len(extensions) > 0 {
		formats = make(map[string]string, len(extensions))
		for _, ext := range extensions {
			ext = strings.ToLower(strings.TrimSpace(ext))
			if ext == "" {
				continue
			}
			if !strings.HasPrefix(ext, ".") {
				ext = "." + ext
			}
			if name, ok := knownFormats[ext]; ok {
				formats[ext] = name
			} else {
				formats[ext] = strings.TrimPrefix(ext, ".")
			}
		}
	}
	return &Validator{maxBytes: maxBytes, formats: formats}
}

// MaxBytes returns the configured size ceiling.
func (v *Validator) MaxBytes() int64 {
	return v.maxBytes
}

// Validate checks the file at path and reports its size and format.
func (v *Validator) Validate(path string) (Metadata, error) {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Metadata{}, services.Wrap(services.ErrNotFound, "audio", "validate", path,
				fmt.Errorf("%w: %w", ErrFileNotFound, err))
		}
		return Metadata{}, services.Wrap(services.ErrValidation, "audio", "validate", "stat file",
			fmt.Errorf("%w: %w", ErrAudioProcessing, err))
	}
	if info.IsDir() {
		return Metadata{}, services.Wrap(services.ErrValidation, "audio", "validate", path,
			fmt.Errorf("%w: path is a directory", ErrAudioProcessing))
	}
	size := info.Size()
	if size > v.maxBytes {
		return Metadata{}, services.Wrap(services.ErrValidation, "audio", "validate",
			fmt.Sprintf("file is %s, limit is %s; chunked transcription is not supported", humanBytes(size), humanBytes(v.maxBytes)),
			ErrFileTooLarge)
	}
	if size == 0 {
		return Metadata{}, services.Wrap(services.ErrValidation, "audio", "validate", path,
			fmt.Errorf("%w: file is empty", ErrAudioProcessing))
	}
	return Metadata{SizeBytes: size, Format: v.Format(path)}, nil
}

// Format maps the file extension to a format name, or FormatUnknown.
func (v *Validator) Format(path string) string {
	if name, ok := v.formats[strings.ToLower(filepath.Ext(path))]; ok {
		return name
	}
	return FormatUnknown
}

func humanBytes(n int64) string {
	const mb = 1024 * 1024
	if n >= mb {
		return fmt.Sprintf("%.1fMB", float64(n)/mb)
	}
	return fmt.Sprintf("%dB", n)
}
