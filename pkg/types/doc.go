// Package types defines the shared Go types exchanged between the fetcher,
// the snapshot store, the diff engine and the notifiers. Record and Page map
// directly to the JSON:API payload returned by the projects endpoint.
package types
