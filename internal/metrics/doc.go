// Package metrics exposes run statistics as Prometheus metrics.
//
// Collectors live on a private registry. Watch mode serves them over HTTP
// through Handler; one-shot runs can drop them into a node_exporter textfile
// collector directory with WriteTextfile.
package metrics
