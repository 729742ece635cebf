package cart

import (
	"context"
	"errors"
	"strings"
	"sync"
)

// DefaultStorageKey is the key under which the serialised cart is kept.
const DefaultStorageKey = "matica-cart"

// ErrNotFound is returned by Storage.Load when nothing has been stored under the key yet.
var ErrNotFound = errors.New("cart storage: key not found")

// Storage is the durable persistence port used by Store. Payloads are opaque JSON documents;
// decoding and validation happen inside the store so adapters stay byte oriented.
type Storage interface {
	Load(ctx context.Context, key string) ([]byte, error)
	Save(ctx context.Context, key string, payload []byte) error
}

// Deleter is implemented by storages able to drop a key outright instead of saving an empty cart.
type Deleter interface {
	Delete(ctx context.Context, key string) error
}

// OwnerKey scopes DefaultStorageKey to a single cart owner (guest session or user).
func OwnerKey(owner string) string {
	owner = strings.TrimSpace(owner)
	if owner == "" {
		return DefaultStorageKey
	}
	return DefaultStorageKey + ":" + owner
}

// MemoryStorage keeps payloads in process memory. It is used in tests and as the guest
// cart backend for single-instance local development.
type MemoryStorage struct {
	mu     sync.RWMutex
	values map[string][]byte
}

// NewMemoryStorage constructs an empty MemoryStorage.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{values: make(map[string][]byte)}
}

// Load implements Storage.
func (m *MemoryStorage) Load(_ context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	value, ok := m.values[key]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), value...), nil
}

// Save implements Storage.
func (m *MemoryStorage) Save(_ context.Context, key string, payload []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = append([]byte(nil), payload...)
	return nil
}

// Delete drops the stored payload for key.
func (m *MemoryStorage) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.values, key)
	return nil
}
