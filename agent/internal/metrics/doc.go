// Package metrics instruments the sample pipeline with Prometheus collectors.
// A nil *Metrics is valid and records nothing.
package metrics
