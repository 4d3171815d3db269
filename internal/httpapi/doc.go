// Package httpapi exposes the Status API over HTTP/JSON using a chi router.
//
// Job snapshots are also pushed as Server-Sent Events on
// /v1/jobs/{id}/events until the job reaches a terminal state. Every route
// below /v1 requires the configured bearer token when one is set; /healthz
// never does.
package httpapi
