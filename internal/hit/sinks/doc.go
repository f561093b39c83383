// Package sinks implements concrete hit consumers: Prometheus, Google Cloud
// Pub/Sub, a Cloud Storage archive, structured logging, JSON lines and an
// in-memory recorder. Each sink satisfies the hit.Sink interface and is safe
// for repeated Consume/Close cycles.
package sinks
