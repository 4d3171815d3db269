// Package library stores the outputs a pipeline produces for a project:
// characters, chapters, scenes with their character mappings and prompts,
// generated image assets, and the manuscript the pipeline reads from.
//
// Library rows belong to the project. They record the job that last wrote
// them but are never removed when that job is deleted. Every write is an
// upsert keyed by a deterministic identifier so stage units can be retried
// without duplicating output.
package library
