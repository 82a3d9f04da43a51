// Package language normalizes the language reported by speech-to-text
// responses, which may be an English name ("english"), an ISO 639 code or a
// BCP 47 tag, into a two-letter code with a display name.
package language
