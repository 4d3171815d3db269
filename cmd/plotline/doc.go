// Command plotline runs the manuscript illustration daemon and talks to it
// over its HTTP API.
//
// "plotline serve" runs the daemon in the foreground. Every other job
// command is a thin client: it resolves the daemon address from the config
// (or --api) and renders the response as a table, or as JSON with --json.
package main
