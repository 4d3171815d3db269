// Package notifications delivers job outcomes to ntfy.
//
// NewService returns a no-op implementation when no topic is configured, so
// the workflow manager can notify unconditionally. Messages are plain text
// with the ntfy Title, Tags and Priority headers set per outcome.
package notifications
