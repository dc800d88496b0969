package storage

import (
	"context"
	"sort"
	"sync"

	"tradeproof/pkg/types"
)

// MemoryStorage is an in-process ObjectStore for local development and
// tests.
type MemoryStorage struct {
	mu      sync.RWMutex
	objects map[string]memoryObject

	// Hooks for failure injection
	PutErr    error
	GetErr    error
	DeleteErr error
}

type memoryObject struct {
	data        []byte
	contentType string
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{objects: make(map[string]memoryObject)}
}

func (m *MemoryStorage) Put(_ context.Context, path string, data []byte, opts PutOptions) (string, error) {
	if m.PutErr != nil {
		return "", m.PutErr
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.objects[path]; exists && opts.NoClobber {
		return "", types.ErrUploadConflict
	}

	m.objects[path] = memoryObject{data: append([]byte(nil), data...), contentType: opts.ContentType}
	return path, nil
}

func (m *MemoryStorage) Get(_ context.Context, path string) ([]byte, error) {
	if m.GetErr != nil {
		return nil, m.GetErr
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	obj, ok := m.objects[path]
	if !ok {
		return nil, types.ErrObjectNotFound
	}
	return append([]byte(nil), obj.data...), nil
}

func (m *MemoryStorage) Delete(_ context.Context, paths ...string) error {
	if m.DeleteErr != nil {
		return m.DeleteErr
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for _, p := range paths {
		delete(m.objects, p)
	}
	return nil
}

func (m *MemoryStorage) Exists(path string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.objects[path]
	return ok
}

func (m *MemoryStorage) ContentType(path string) string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.objects[path].contentType
}

// Paths lists stored object paths in sorted order.
func (m *MemoryStorage) Paths() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.objects))
	for p := range m.objects {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}
