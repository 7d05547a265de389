// Package retry runs an operation with bounded exponential backoff.
//
// Failures are classified once, where they are observed, into an Outcome
// carrying a Class: Retryable (network errors, 5xx), NonRetryable (4xx,
// validation) or Cancelled. Policy.Do only retries Retryable outcomes, and
// its sleeps return early when the context is cancelled.
//
// With the default policy an operation is attempted at most three times,
// waiting BaseDelay*2^attempt plus up to MaxJitter between attempts.
package retry
