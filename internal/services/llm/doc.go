// Package llm provides an OpenRouter-compatible chat client that returns JSON
// payloads for the manuscript analysis stages.
//
// The text analysis collaborator builds prompts for character extraction,
// chapter splitting and scene splitting, then relies on CompleteJSON to return
// a structured answer it can decode with DecodeLLMJSON.
//
// # Configuration
//
// Requires api_key and model, optionally base_url, referer, title and timeout.
//
// # Retry Behaviour
//
// Requests are retried on HTTP 408/429/5xx, empty completions and network
// timeouts with exponential backoff (retry-go). A Retry-After header from the
// provider is honoured up to the configured maximum delay. Context
// cancellation aborts retries immediately.
package llm
