// Package stage defines the contract every pipeline step implements.
//
// A stage plans its units of work from the project's current library state
// and executes one unit at a time. Execute must be safe to repeat for the
// same unit: the orchestrator retries failed units and a later job may
// replan the same refs.
package stage
