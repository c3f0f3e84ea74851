// ABOUTME: Storage contract for key material plus the in-memory reference backend.
// ABOUTME: Real deployments inject a platform keychain, sqlite, or custom backend.
package vault

import (
	"context"
	"sync"
)

// Storage is an asynchronous key-value backend for persisted key material.
// Implementations must treat values as opaque text.
//
// The core assumes no transactional guarantees: the manager issues the writes
// of one bundle concurrently for throughput, so a crash mid-write can leave a
// partially updated bundle behind. Load catches that case by requiring all
// mandatory fields to be present and valid.
type Storage interface {
	// Get returns the value stored under key, or ErrNotFound when absent.
	Get(ctx context.Context, key string) (string, error)

	// Set stores value under key, overwriting any previous value.
	Set(ctx context.Context, key, value string) error

	// Delete removes key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error
}

// Namespace prefixes every storage key of one bundle, letting independent
// bundles share a backend. Two managers with different namespaces never see
// each other's fields; two managers with the same namespace and backend
// operate on the same bundle.
type Namespace string

// DefaultNamespace is used when Config.Namespace is empty.
const DefaultNamespace Namespace = "phrasekey"

func (n Namespace) privateKeyField() string { return string(n) + ".private_key" }
func (n Namespace) publicKeyField() string  { return string(n) + ".public_key" }
func (n Namespace) mnemonicField() string   { return string(n) + ".mnemonic" }
func (n Namespace) metadataField() string   { return string(n) + ".metadata" }

// MemoryStore is a Storage held in an in-process map. It is safe for use by
// multiple managers sharing one instance, and is the default choice for tests
// and for platforms without a keychain.
type MemoryStore struct {
	mu sync.RWMutex
	m  map[string]string
}

// NewMemoryStore returns an empty in-memory backend.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{m: make(map[string]string)}
}

// Get implements Storage.
func (s *MemoryStore) Get(_ context.Context, key string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.m[key]
	if !ok {
		return "", ErrNotFound
	}
	return v, nil
}

// Set implements Storage.
func (s *MemoryStore) Set(_ context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m[key] = value
	return nil
}

// Delete implements Storage.
func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.m, key)
	return nil
}
