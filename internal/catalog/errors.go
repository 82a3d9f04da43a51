package catalog

import (
	"errors"
	"fmt"

	"lectern/internal/services"
)

var (
	ErrJobNotFound           = fmt.Errorf("processing job %w", services.ErrNotFound)
	ErrAudiobookNotFound     = fmt.Errorf("audiobook %w", services.ErrNotFound)
	ErrTranscriptionNotFound = fmt.Errorf("transcription %w", services.ErrNotFound)

	// ErrActiveJobExists is returned when an audiobook already has a non-terminal job.
	ErrActiveJobExists = fmt.Errorf("%w: audiobook already has an active processing job", services.ErrConflict)
	// ErrInvalidTransition is returned when an admin action is not legal from the job's status.
	ErrInvalidTransition = fmt.Errorf("%w: invalid job status transition", services.ErrConflict)
	// ErrJobNotActive is returned when a run tries to write to a job it no longer owns,
	// for example after an admin cancelled it.
	ErrJobNotActive = errors.New("processing job is no longer active for this run")
)
