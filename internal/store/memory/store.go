// Package memory keeps scroll state in-process for development and tests.
package memory

import (
	"context"
	"sync"

	"github.com/JakeFAU/maxscroll/internal/store"
)

// Provider hands out one shared Store per tracking ID and namespace.
type Provider struct {
	mu     sync.Mutex
	stores map[string]*Store
}

// NewProvider constructs an empty Provider.
func NewProvider() *Provider {
	return &Provider{stores: make(map[string]*Store)}
}

// Open returns the Store for the namespace, creating it on first use.
func (p *Provider) Open(_ context.Context, trackingID, namespace string) (store.Store, error) {
	key, err := store.Key(trackingID, namespace)
	if err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	s, ok := p.stores[key]
	if !ok {
		s = NewStore()
		p.stores[key] = s
	}
	return s, nil
}

// Store is a mutex guarded map.
type Store struct {
	mu   sync.RWMutex
	data map[string]int64
}

// NewStore constructs an empty Store.
func NewStore() *Store {
	return &Store{data: make(map[string]int64)}
}

// Get returns a copy of the stored values.
func (s *Store) Get(_ context.Context) (map[string]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]int64, len(s.data))
	for k, v := range s.data {
		out[k] = v
	}
	return out, nil
}

// GetOr returns the value for key or def when absent.
func (s *Store) GetOr(_ context.Context, key string, def int64) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if v, ok := s.data[key]; ok {
		return v, nil
	}
	return def, nil
}

// Set merges partial into the store.
func (s *Store) Set(_ context.Context, partial map[string]int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, v := range partial {
		s.data[k] = v
	}
	return nil
}

// Clear removes every key.
func (s *Store) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data = make(map[string]int64)
	return nil
}
