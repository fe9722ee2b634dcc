// Package notify delivers run reports to people.
//
// A Notifier receives one types.Report per run that found new or changed
// records. Webhook posts the report to Slack, Microsoft Teams or any HTTP
// endpoint; Log writes a console summary through slog; Multi fans a report
// out to several notifiers.
//
// Empty reports are never delivered. Delivery errors are returned to the
// caller, which decides whether to queue the report for redelivery.
package notify
