package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidNamespace is returned when a store is opened without a tracking
// ID or namespace.
var ErrInvalidNamespace = errors.New("store: tracking id and namespace are required")

// Store is a key to integer mapping scoped to one tracker identity and
// namespace.
type Store interface {
	// Get returns a copy of every key currently stored.
	Get(ctx context.Context) (map[string]int64, error)
	// GetOr returns the value stored under key or def when the key is absent.
	// A stored zero is returned as zero, never replaced by def.
	GetOr(ctx context.Context, key string, def int64) (int64, error)
	// Set merges partial into the store, overwriting the given keys only.
	Set(ctx context.Context, partial map[string]int64) error
	// Clear removes every key.
	Clear(ctx context.Context) error
}

// Provider opens stores. Opening the same tracking ID and namespace twice
// yields views of the same underlying data.
type Provider interface {
	Open(ctx context.Context, trackingID, namespace string) (Store, error)
}

// Key builds the backend key for a tracking ID and namespace.
func Key(trackingID, namespace string) (string, error) {
	trackingID = strings.TrimSpace(trackingID)
	namespace = strings.TrimSpace(namespace)
	if trackingID == "" || namespace == "" {
		return "", ErrInvalidNamespace
	}
	return fmt.Sprintf("maxscroll:%s:%s", trackingID, namespace), nil
}

// Scoped returns a Provider that isolates every namespace it opens under
// scope, so several clients sharing one backend and tracking ID keep
// separate state. An empty scope returns p unchanged.
func Scoped(p Provider, scope string) Provider {
	scope = strings.TrimSpace(scope)
	if scope == "" {
		return p
	}
	return scopedProvider{inner: p, scope: scope}
}

type scopedProvider struct {
	inner Provider
	scope string
}

func (s scopedProvider) Open(ctx context.Context, trackingID, namespace string) (Store, error) {
	if strings.TrimSpace(namespace) == "" {
		return nil, ErrInvalidNamespace
	}
	return s.inner.Open(ctx, trackingID, s.scope+"/"+namespace)
}
