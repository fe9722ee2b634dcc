// Package upstream builds the HTTP client shared by the token provider and
// the catalog fetcher, and performs single GET round trips against the
// shapeyourcity.ca endpoints.
//
// NewClient applies the configured timeout, TLS options and User-Agent.
// WithBearer wraps a client so every request carries an
// "Authorization: Bearer <token>" header (authRoundTripper).
//
// Get classifies failures for the retry layer: transport errors, 5xx and 429
// are transient; every other non-2xx status is marked retry.Permanent.
package upstream
