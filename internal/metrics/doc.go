// Package metrics exposes Prometheus collectors for the pipeline.
//
// A single Metrics value implements the observer interfaces of the provider
// HTTP client, the dispatcher, the workflow engine and the reconciler, so the
// daemon wires one instance into each. Collectors live on a private registry
// served by Handler.
package metrics
