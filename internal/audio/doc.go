// Package audio inspects local audio files before they are sent for
// transcription.
//
// Validation is limited to what the file system reports: existence, size
// against the remote API ceiling, and a format derived from the extension.
// Decoding and format conversion are not performed.
package audio
