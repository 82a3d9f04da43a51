// Package api is the admin surface over processing jobs and audiobooks.
//
// JobService implements the operations behind both the daemon's HTTP routes
// and the lectern CLI: listing with per-status counts, describe, retry, cancel,
// forced job creation and audiobook ingest. DTOs use camelCase JSON tags and
// RFC3339 timestamps with milliseconds; job metadata passes through as a JSON
// object.
package api
