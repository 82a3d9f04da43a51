// Package content generates the marketing copy for an audiobook from its
// transcript: it builds a bounded prompt, calls the chat model once and
// post-processes the reply (description truncation, category normalization,
// keyword extraction and a confidence score).
package content
