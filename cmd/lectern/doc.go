// Command lectern is the admin CLI for the audiobook pipeline.
//
// It reads and writes the catalog database directly, so it works whether or
// not lecternd is running. Jobs it queues are claimed by the daemon's next poll.
package main
