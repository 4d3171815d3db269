// Package services defines shared utilities consumed by the pipeline stages and
// the external collaborators they call.
//
// Key responsibilities:
//   - Context helpers that stamp job IDs, project IDs, stage names, and
//     correlation identifiers for logging and tracing.
//   - Structured error markers plus the Wrap helper that let the orchestrator
//     decide whether a failed unit is worth retrying.
//
// Use these helpers when wiring new stage logic so operational behaviour (error
// handling, observability, retries) stays uniform across the pipeline.
package services
