// Package fetch downloads facility pages over HTTP.
//
// HTTPFetcher wraps go-retryablehttp with a client-side token bucket and a
// per-host circuit breaker. Connection errors and 5xx responses are retried
// with exponential backoff; 4xx responses are not. Bodies larger than the
// extraction size limit, or that do not sniff as text markup, are rejected.
package fetch
