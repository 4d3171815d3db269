// Package api defines the wire-format types of the Status API and the service
// that produces them.
//
// # Key Types
//
// Job: transport representation of a generation job (status, current stage,
// progress, partial success, error message, options, timestamps).
//
// Item: one unit-of-work record of a job stage.
//
// StartJobRequest: body of a start call. Stage names are parsed here so the
// workflow package only sees validated values.
//
// DaemonStatus: daemon running state, workflow summary and stage health.
//
// # Service and client
//
// JobService wraps the workflow manager and the project library and returns
// DTOs; the HTTP layer is a thin shell around it. Client speaks the same
// payloads over HTTP and is what the CLI uses to reach a running daemon.
//
// # Design Notes
//
// DTOs use camelCase JSON tags. Enums are exposed as lowercase strings and
// timestamps use RFC3339 with milliseconds in UTC. Errors that callers can
// act on (not found, busy project, invalid request, job still active) are
// kept distinguishable with errors.Is so transports can map them to status
// codes.
package api
