// Package metrics records provisioning metrics with Prometheus and writes
// them to a node_exporter textfile collector file at the end of a run.
package metrics
