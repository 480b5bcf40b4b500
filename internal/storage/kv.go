package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// KVStore is a durable string-keyed byte store. No transactional guarantees.
type KVStore interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
}

// GetJSON reads key and decodes it into a T. ok is false when the key is absent.
func GetJSON[T any](ctx context.Context, kv KVStore, key string) (T, bool, error) {
	var v T
	raw, ok, err := kv.Get(ctx, key)
	if err != nil || !ok {
		return v, false, err
	}
	if err := json.Unmarshal(raw, &v); err != nil {
		return v, false, fmt.Errorf("failed to decode %s: %w", key, err)
	}
	return v, true, nil
}

// SetJSON encodes v and stores it under key.
func SetJSON[T any](ctx context.Context, kv KVStore, key string, v T) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", key, err)
	}
	return kv.Set(ctx, key, raw)
}

// Prefixed scopes every key of an underlying store under a prefix.
type Prefixed struct {
	prefix string
	kv     KVStore
}

// WithPrefix returns a KVStore that namespaces keys with prefix + "/".
func WithPrefix(kv KVStore, prefix string) *Prefixed {
	return &Prefixed{prefix: prefix + "/", kv: kv}
}

func (p *Prefixed) Get(ctx context.Context, key string) ([]byte, bool, error) {
	return p.kv.Get(ctx, p.prefix+key)
}

func (p *Prefixed) Set(ctx context.Context, key string, value []byte) error {
	return p.kv.Set(ctx, p.prefix+key, value)
}

func (p *Prefixed) Delete(ctx context.Context, key string) error {
	return p.kv.Delete(ctx, p.prefix+key)
}

// MemoryStore is an in-process KVStore.
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string][]byte)}
}

func (m *MemoryStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data[key]
	if !ok {
		return nil, false, nil
	}
	out := make([]byte, len(v))
	copy(out, v)
	return out, true, nil
}

func (m *MemoryStore) Set(_ context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	v := make([]byte, len(value))
	copy(v, value)
	m.data[key] = v
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

// Keys returns the sorted keys starting with prefix.
func (m *MemoryStore) Keys(_ context.Context, prefix string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var keys []string
	for k := range m.data {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

var (
	_ KVStore = (*MemoryStore)(nil)
	_ KVStore = (*Prefixed)(nil)
)
