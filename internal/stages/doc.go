// Package stages implements the six pipeline steps: character extraction,
// chapter split, scene split, character linking, prompt generation and image
// generation.
//
// Every stage plans from what the library holds when the stage starts and
// writes its output back to the library with upserts, so executing a unit
// twice leaves the same rows behind.
package stages
