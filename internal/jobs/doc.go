// Package jobs defines the pipeline Job and Item records and the SQLite store
// that persists them.
//
// A Job is one execution of an ordered stage sequence for a project. Every
// write to a job row is guarded by its version column: Update only succeeds
// against the version the caller read and bumps it, so a late writer holding a
// stale snapshot gets ErrStaleVersion instead of silently overwriting a newer
// state. Mutate wraps the read-modify-write loop for callers.
//
// Items are the per-unit history of a job. They are inserted when a unit is
// dispatched and finalized exactly once; finalized rows are never rewritten.
//
// The store also enforces the per-project exclusivity rule durably: a partial
// unique index allows at most one queued or running job per project, surfaced
// as ErrActiveJobExists.
package jobs
