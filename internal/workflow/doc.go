// Package workflow drives processing jobs through the transcription and
// content pipeline.
//
// The Coordinator runs a fixed pool of workers. Each worker claims the oldest
// pending job under a fresh run id, heartbeats while it works, and persists
// every status transition through run-guarded catalog writes so that a job
// cancelled or reclaimed mid-run rejects the stale run's late results. A
// supervisor loop returns jobs whose run stopped heartbeating to pending, or
// fails them once their attempt budget is spent.
//
// Upload and retry events arrive on the in-process bus. Uploads create the
// job; both wake idle workers instead of waiting for the next poll.
package workflow
