// Package enrichers fetches supplementary product data from an external
// HTTP API.
//
// HTTPEnricher performs one logical lookup per product. Every attempt is
// admitted by the shared rate limiter first, and failed attempts are retried
// with exponential backoff (base, 2×base, 4×base, ...) up to MaxRetries
// attempts in total. An attempt fails when the transport fails, when the
// status is not 2xx, or when the body is not a JSON object. The outcome
// carries either the decoded object or the last failure text; it is never
// cached.
//
// The lookup URL either contains the placeholder {{.sku}}, which is
// replaced with the path-escaped SKU, or receives the SKU as the sku query
// parameter.
//
// Authentication supports bearer tokens, basic credentials and API keys
// sent in a configurable header.
package enrichers
