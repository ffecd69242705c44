package store

import (
	"context"
	"sync"
)

// MemoryKV is an in-memory KV used in tests and as a fallback when no
// database path is configured.
type MemoryKV struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// NewMemoryKV returns an empty in-memory KV.
func NewMemoryKV() *MemoryKV {
	return &MemoryKV{data: map[string][]byte{}}
}

// Get implements KV.
func (kv *MemoryKV) Get(_ context.Context, key string) ([]byte, bool, error) {
	kv.mu.RLock()
	defer kv.mu.RUnlock()
	v, ok := kv.data[key]
	if !ok {
		return nil, false, nil
	}
	out := make([]byte, len(v))
	copy(out, v)
	return out, true, nil
}

// Set implements KV.
func (kv *MemoryKV) Set(_ context.Context, key string, value []byte) error {
	kv.mu.Lock()
	defer kv.mu.Unlock()
	v := make([]byte, len(value))
	copy(v, value)
	kv.data[key] = v
	return nil
}

// Delete implements KV.
func (kv *MemoryKV) Delete(_ context.Context, key string) error {
	kv.mu.Lock()
	defer kv.mu.Unlock()
	delete(kv.data, key)
	return nil
}
