package cache

import (
	"context"
	"net/http"
	"time"

	"github.com/arloliu/handover/types"
	"github.com/puzpuzpuz/xsync/v4"
)

// Memory is an in-process Backend.
type Memory struct {
	partitions *xsync.Map[string, *memoryPartition]
}

var _ Backend = (*Memory)(nil)

// NewMemory creates an empty in-memory backend.
func NewMemory() *Memory {
	return &Memory{partitions: xsync.NewMap[string, *memoryPartition]()}
}

// Open implements Backend.
func (m *Memory) Open(_ context.Context, name string) (Partition, error) {
	p, _ := m.partitions.LoadOrStore(name, &memoryPartition{
		name:    name,
		entries: xsync.NewMap[string, *Response](),
	})

	return p, nil
}

// Names implements Backend.
func (m *Memory) Names(context.Context) ([]string, error) {
	var names []string
	m.partitions.Range(func(name string, _ *memoryPartition) bool {
		names = append(names, name)
		return true
	})

	return names, nil
}

// Drop implements Backend.
func (m *Memory) Drop(_ context.Context, name string) error {
	m.partitions.Delete(name)
	return nil
}

type memoryPartition struct {
	name    string
	entries *xsync.Map[string, *Response]
}

func (p *memoryPartition) Name() string {
	return p.name
}

func (p *memoryPartition) Match(ctx context.Context, req *http.Request) (*Response, error) {
	if req.Method != http.MethodGet && req.Method != "" {
		return nil, types.ErrEntryNotFound
	}

	return p.MatchURL(ctx, req.URL.String())
}

func (p *memoryPartition) MatchURL(_ context.Context, url string) (*Response, error) {
	resp, ok := p.entries.Load(url)
	if !ok {
		return nil, types.ErrEntryNotFound
	}

	return resp, nil
}

func (p *memoryPartition) Put(_ context.Context, url string, resp *Response) error {
	stored := *resp
	stored.URL = url
	if stored.StoredAt.IsZero() {
		stored.StoredAt = time.Now()
	}
	p.entries.Store(url, &stored)

	return nil
}
