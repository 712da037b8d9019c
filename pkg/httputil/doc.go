// Package httputil builds the HTTP client used for outgoing requests.
//
// # Overview
//
// [NewClient] returns a retrying client with:
//
//   - Automatic retry with exponential backoff for network errors, 5xx
//     and 429 responses (via go-retryablehttp)
//   - Retry attempts logged through the process logger
//   - Every attempt reported to the observability HTTP hooks
//
// Non-retryable responses such as 404 are returned to the caller unchanged;
// after the last retry the final response is passed through instead of being
// replaced by a synthetic error.
//
// # Configuration
//
// Default settings suit avatar lookups:
//
//   - Timeout: 10 seconds per attempt
//   - Max retries: 2
//   - Backoff: 200ms doubling up to 2s
package httputil
