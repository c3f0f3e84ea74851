package vault

import (
	"context"
	"errors"

	"github.com/99designs/keyring"
)

// KeyringStore keeps bundle fields in the platform credential store via the
// keyring library: Keychain on macOS, Secret Service on Linux, Credential
// Manager on Windows.
type KeyringStore struct {
	ring keyring.Keyring
}

// NewKeyringStore opens the platform credential store under serviceName.
// An empty serviceName falls back to the default namespace.
func NewKeyringStore(serviceName string) (*KeyringStore, error) {
	if serviceName == "" {
		serviceName = string(DefaultNamespace)
	}
	ring, err := keyring.Open(keyring.Config{ServiceName: serviceName})
	if err != nil {
		return nil, err
	}
	return &KeyringStore{ring: ring}, nil
}

// Get returns the value stored under key, or ErrNotFound.
func (s *KeyringStore) Get(_ context.Context, key string) (string, error) {
	item, err := s.ring.Get(key)
	if errors.Is(err, keyring.ErrKeyNotFound) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", err
	}
	return string(item.Data), nil
}

// Set stores value under key, replacing any previous value.
func (s *KeyringStore) Set(_ context.Context, key, value string) error {
	return s.ring.Set(keyring.Item{Key: key, Data: []byte(value)})
}

// Delete removes key. Deleting an absent key is not an error.
func (s *KeyringStore) Delete(_ context.Context, key string) error {
	err := s.ring.Remove(key)
	if errors.Is(err, keyring.ErrKeyNotFound) {
		return nil
	}
	return err
}
