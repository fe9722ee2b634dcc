// Package pipeline runs one scrape-compare-notify cycle and schedules it.
//
// A run:
//  1. redelivers reports left in the outbox by earlier failed deliveries
//  2. obtains an API token
//  3. reads every record from the catalog; any failure aborts the run
//     before the snapshot store is touched
//  4. classifies each record as new, changed or unchanged against the state
//     at the start of the run, then upserts all of them, in one transaction
//  5. hands the resulting report to the notifier, queueing it on failure
//  6. updates metrics
//
// Runner.Watch repeats runs on an interval until its context is cancelled.
package pipeline
