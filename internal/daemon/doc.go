// Package daemon coordinates the long-running Plotline process.
//
// It wires configuration, the job store, the workflow manager and the HTTP
// Status API into a single lifecycle with flock-based locking to prevent
// multiple instances from sharing a data directory. Crash recovery runs only
// after the lock is held, so a second process can never finalize jobs that
// belong to a live daemon.
//
// Keep orchestration logic here: pipeline execution lives in the workflow
// package while the daemon focuses on startup, shutdown, and high level
// coordination.
package daemon
