// Package transcription turns an uploaded object into a transcript: it
// downloads the object into a per-run scratch directory, validates it against
// the upload ceiling, sends it to the speech-to-text client and always removes
// the scratch directory afterwards.
//
// Progress is reported to an Observer on a 0-100 scale with a phase name.
// The caller decides how that scale maps onto job progress.
package transcription
