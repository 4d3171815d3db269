package jobs

import "errors"

var (
	// ErrNotFound indicates the job or item does not exist.
	ErrNotFound = errors.New("job not found")
	// ErrStaleVersion indicates a write was attempted against an outdated job version.
	ErrStaleVersion = errors.New("stale job version")
	// ErrActiveJobExists indicates the project already has a queued or running job.
	ErrActiveJobExists = errors.New("project already has an active job")
	// ErrJobActive indicates an operation that requires a terminal job was attempted on an active one.
	ErrJobActive = errors.New("job is still active")
	// ErrItemExists indicates a unit was already dispatched for this job and stage.
	ErrItemExists = errors.New("item already recorded")
	// ErrItemFinalized indicates a finalized item was written again.
	ErrItemFinalized = errors.New("item already finalized")
	// ErrNoChange may be returned from a Mutate callback to skip the write.
	ErrNoChange = errors.New("no change")
)
