// Package services defines shared utilities consumed by the pipeline stages and
// external integrations.
//
// Key responsibilities:
//   - Context helpers that stamp job IDs, stage names, run IDs and correlation
//     identifiers for logging.
//   - Structured error markers plus the Wrap helper so every step reports
//     failures with the same shape and classification.
//
// Remote API clients live in subpackages (see services/llm).
package services
