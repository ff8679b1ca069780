// Package store 在两次调用之间保存编码后的选择记录。
package store

import (
	"context"
	"sync"

	"github.com/lk2023060901/scenekeep-go/pkg/util/merr"
)

// Store 是按 key 保存记录字节的存储。
//
// Load 在 key 不存在时返回 ok=false 且 err=nil；Delete 对不存在的 key 不报错。
type Store interface {
	Save(ctx context.Context, key string, data []byte) error
	Load(ctx context.Context, key string) (data []byte, ok bool, err error)
	Delete(ctx context.Context, key string) error
}

func checkKey(key string) error {
	if key == "" {
		return merr.WrapErrParameterMissing("key")
	}
	return nil
}

// MemoryStore 是进程内存储，主要用于测试与 demo。
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string][]byte
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string][]byte)}
}

func (s *MemoryStore) Save(_ context.Context, key string, data []byte) error {
	if err := checkKey(key); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = append([]byte(nil), data...)
	return nil
}

func (s *MemoryStore) Load(_ context.Context, key string) ([]byte, bool, error) {
	if err := checkKey(key); err != nil {
		return nil, false, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.data[key]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), data...), true, nil
}

func (s *MemoryStore) Delete(_ context.Context, key string) error {
	if err := checkKey(key); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, key)
	return nil
}

// Len 返回当前保存的 key 数量。
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}
