// Package staging owns the per-run scratch directories that hold downloaded
// audio while it is validated and transcribed.
package staging
