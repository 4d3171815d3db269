// Package config loads, normalizes, and validates Plotline configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment overrides such as
// PLOTLINE_LLM_API_KEY and OPENAI_API_KEY. The Config type centralizes every
// knob the daemon and CLI need: storage locations, the text analysis and image
// generation collaborators, and the pipeline's concurrency, retry and failure
// policy.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical log formats, and clear validation errors.
package config
