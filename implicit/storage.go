package implicit

import (
	"context"
	"sync"
)

// Storage is the durable key-value store the driver keeps its session in.
// Get must return ("", false, nil) for a key that isn't stored.
// Implementations must be concurrently safe.
type Storage interface {
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
}

// StorageKeys names the three storage slots the driver uses.
type StorageKeys struct {
	IDToken   string
	State     string
	AuthStyle string
}

// DefaultStorageKeys are used unless WithStorageKeys is given.
var DefaultStorageKeys = StorageKeys{
	IDToken:   "implicit_auth.id_token",
	State:     "implicit_auth.state",
	AuthStyle: "implicit_auth.auth_style",
}

// All returns the keys in the order they are cleared on logout.
func (k StorageKeys) All() []string {
	return []string{k.IDToken, k.State, k.AuthStyle}
}

// MemoryStorage is an in-memory Storage.  It is concurrently safe and its
// zero value is ready to use.
type MemoryStorage struct {
	mu sync.RWMutex
	m  map[string]string
}

// ensure that MemoryStorage implements the Storage interface
var _ Storage = (*MemoryStorage)(nil)

// NewMemoryStorage returns an empty MemoryStorage.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{m: map[string]string{}}
}

// Get implements Storage.Get
func (s *MemoryStorage) Get(_ context.Context, key string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.m[key]
	return v, ok, nil
}

// Set implements Storage.Set
func (s *MemoryStorage) Set(_ context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.m == nil {
		s.m = map[string]string{}
	}
	s.m[key] = value
	return nil
}

// Delete implements Storage.Delete
func (s *MemoryStorage) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.m, key)
	return nil
}
