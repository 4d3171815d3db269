// Package workflow runs generation jobs through their stage sequence.
//
// The Manager owns every job state transition. StartJob validates the request,
// takes the per-project lock and persists a queued job; a background goroutine
// then waits for a global job slot and walks the stages in order. Each stage is
// planned once, its units are dispatched through a bounded worker pool with a
// per-unit timeout and retry budget, and the stage is only considered complete
// once every dispatched unit has a finalized item. A stage whose failed-item
// fraction reaches the configured threshold fails the job; failures below it
// mark the job as a partial success.
//
// Cancellation is cooperative. Cancel raises a per-job flag that stops new
// units and stages from being dispatched; in-flight units settle before the
// job is written as canceled. Progress is derived from settled items with equal
// stage weights and is never written backwards.
//
// Every job write goes through jobs.Store.Mutate so a late item callback can
// never resurrect a job that was already finalized, and every written snapshot
// is pushed to Subscribe listeners.
package workflow
