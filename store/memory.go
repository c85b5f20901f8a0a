package store

import (
	"bytes"
	"context"

	"github.com/arloliu/handover/types"
	"github.com/puzpuzpuz/xsync/v4"
)

// Memory is an in-process Backend.
//
// Values are copied on the way in and out so callers may reuse their buffers.
type Memory struct {
	data *xsync.Map[string, []byte]
}

var _ Backend = (*Memory)(nil)

// NewMemory creates an empty in-memory backend.
func NewMemory() *Memory {
	return &Memory{data: xsync.NewMap[string, []byte]()}
}

// Get implements Backend.
func (m *Memory) Get(_ context.Context, key string) ([]byte, error) {
	v, ok := m.data.Load(key)
	if !ok {
		return nil, types.ErrKeyNotFound
	}

	return bytes.Clone(v), nil
}

// Put implements Backend.
func (m *Memory) Put(_ context.Context, key string, value []byte) error {
	m.data.Store(key, bytes.Clone(value))
	return nil
}

// Delete implements Backend.
func (m *Memory) Delete(_ context.Context, key string) error {
	m.data.Delete(key)
	return nil
}

// Keys implements Backend.
func (m *Memory) Keys(_ context.Context, prefix string) ([]string, error) {
	var keys []string
	m.data.Range(func(key string, _ []byte) bool {
		if hasPrefix(key, prefix) {
			keys = append(keys, key)
		}

		return true
	})

	return keys, nil
}

// Len returns the number of stored keys.
func (m *Memory) Len() int {
	return m.data.Size()
}
