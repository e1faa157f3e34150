package repository

import (
	"context"
	"slices"
	"sync"
)

// MemoryKVStore はプロセス内メモリに保持するKVStore。
// テストとSTORAGE_DRIVER=memoryで使用する。
type MemoryKVStore struct {
	mu      sync.RWMutex
	entries map[string][]byte
}

// NewMemoryKVStore はMemoryKVStoreを生成する。
func NewMemoryKVStore() *MemoryKVStore {
	return &MemoryKVStore{entries: make(map[string][]byte)}
}

// Get は指定キーの値のコピーを返す。
func (s *MemoryKVStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.entries[key]
	if !ok {
		return nil, false, nil
	}
	return slices.Clone(v), true, nil
}

// Set は値のコピーを保存する。
func (s *MemoryKVStore) Set(ctx context.Context, key string, value []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key] = slices.Clone(value)
	return nil
}

// Delete は指定キーを削除する。
func (s *MemoryKVStore) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key)
	return nil
}

// compile-time interface check
var _ KVStore = (*MemoryKVStore)(nil)
