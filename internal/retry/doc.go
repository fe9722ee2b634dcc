// Package retry runs an upstream call under a bounded retry budget.
//
// Policy{Attempts, Delay} defaults to three immediate attempts with no jitter.
// Errors wrapped with Permanent stop the loop at once, as do cancelled
// contexts; anything else is retried until the budget is spent and the last
// error is returned.
package retry
