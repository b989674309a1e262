// Package upload defines the durable asset-storage collaborator.
package upload

import (
	"context"
	"sync"
)

// Store moves a generated asset from its provider URL into durable
// storage and returns the stored location.
type Store interface {
	Upload(ctx context.Context, sourceURL, targetKey string) (storedURL string, err error)
}

// Memory is an in-process Store for tests and dev mode.
type Memory struct {
	BaseURL string
	mu      sync.Mutex
	objects map[string]string
}

func (m *Memory) Upload(_ context.Context, sourceURL, targetKey string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.objects == nil {
		m.objects = make(map[string]string)
	}
	m.objects[targetKey] = sourceURL
	base := m.BaseURL
	if base == "" {
		base = "https://storage.invalid"
	}
	return base + "/" + targetKey, nil
}

// Stored returns the source recorded under a key, if any.
func (m *Memory) Stored(targetKey string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	src, ok := m.objects[targetKey]
	return src, ok
}
