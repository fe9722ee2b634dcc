// Package catalog streams every project from the paginated projects API.
//
// Fetcher.FetchAll returns an iter.Seq2 that requests one page at a time,
// yields its records in order, and follows links.next until it is null. Each
// page GET is authenticated with the bearer token, retried under the retry
// policy, and (when enabled) served from the page cache keyed by the exact
// page URL.
//
// A page whose body is not JSON ends the stream with an error. A page whose
// data member is missing or is not an array ends the stream quietly: that
// shape means the upstream contract changed and continuing could loop.
//
// There is no cycle detection on links.next; a misbehaving upstream that
// points back at an earlier page would be followed indefinitely (bounded only
// by ctx).
package catalog
