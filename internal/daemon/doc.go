// Package daemon runs lecternd: it holds the single-instance lock, starts the
// job coordinator and serves the admin HTTP API.
//
// Routes under /api require the configured bearer token when one is set.
// /files/{bucket}/{key} serves stored audio to holders of a signed URL and
// ignores the bearer token.
package daemon
