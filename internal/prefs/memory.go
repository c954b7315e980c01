package prefs

import "sync"

// MemoryStore is an in-memory Store. The zero value is not usable; call
// NewMemoryStore.
type MemoryStore struct {
	mu     sync.Mutex
	values map[string]string

	// SetError, if set, is returned by Set.
	SetError error
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{values: make(map[string]string)}
}

func (m *MemoryStore) Get(key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.values[key]
	return v, ok, nil
}

func (m *MemoryStore) Set(key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.SetError != nil {
		return m.SetError
	}
	m.values[key] = value
	return nil
}
