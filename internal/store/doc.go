// Package store defines the namespaced key/value persistence used for
// per-page scroll state and session bookkeeping. Implementations live in the
// memory, redis and postgres subpackages; this package must not import
// database drivers or concrete clients.
package store
