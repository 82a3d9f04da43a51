// Package notifications pushes pipeline outcomes to ntfy.
//
// When no topic is configured the service degrades to a no-op. The Bridge
// subscribes a Service to the in-process event bus so the coordinator never
// talks to the notifier directly.
package notifications
