// Package catalog persists audiobooks, processing jobs and transcriptions in
// SQLite and exposes the state transitions the job coordinator and admin
// surfaces rely on.
//
// Writes made on behalf of a running job are guarded by the job's run id, so a
// run that lost ownership (cancelled, reclaimed after a stale heartbeat) cannot
// overwrite newer state. Job metadata is a JSON document merged with
// json_patch, never replaced wholesale.
package catalog
