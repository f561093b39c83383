// Package hit defines the analytics hits produced by page trackers and the
// non-blocking Hub that batches them on a background goroutine and fans them
// out to pluggable sinks such as Prometheus, Pub/Sub, or structured logs.
package hit
