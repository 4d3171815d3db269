// Package preflight provides readiness checks for the filesystem paths and
// external services Plotline depends on.
//
// These checks run in two contexts:
//   - The daemon calls RunAll before it starts accepting jobs and refuses to
//     start when a directory is unusable.
//   - The CLI "plotline doctor" command adds CheckService probes that talk
//     to the text and image providers.
//
// Missing credentials are reported but do not fail RunAll: stages report
// themselves unhealthy and their units fail with a configuration error.
package preflight
