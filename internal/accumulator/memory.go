package accumulator

import (
	"context"

	cmap "github.com/orcaman/concurrent-map/v2"
)

// MemoryStore 以分片并发 map 保存叶子列表。列表采用写时复制，读取方拿到的切片不会被后续追加修改。
type MemoryStore struct {
	leaves cmap.ConcurrentMap[string, []string]
}

// NewMemoryStore 创建内存累加器存储。
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{leaves: cmap.New[[]string]()}
}

// Append 实现 Store 接口。
func (m *MemoryStore) Append(_ context.Context, schemaID, leaf string) error {
	m.leaves.Upsert(schemaID, []string{leaf}, func(exist bool, current []string, added []string) []string {
		if !exist {
			return added
		}
		next := make([]string, len(current), len(current)+len(added))
		copy(next, current)
		return append(next, added...)
	})
	return nil
}

// List 实现 Store 接口。
func (m *MemoryStore) List(_ context.Context, schemaID string) ([]string, error) {
	current, ok := m.leaves.Get(schemaID)
	if !ok {
		return []string{}, nil
	}
	out := make([]string, len(current))
	copy(out, current)
	return out, nil
}

// Close 对内存存储无需操作。
func (m *MemoryStore) Close() error { return nil }
