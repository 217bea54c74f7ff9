package credential

import (
	"context"
	"sort"
	"sync"
	"time"

	xerrors "X402-Registry/internal/errors"
)

// Store 抽象了凭证记录的持久化接口。
type Store interface {
	Create(ctx context.Context, c *Credential) error
	Get(ctx context.Context, id string) (*Credential, error)
	// Revoke 将凭证标记为吊销并返回最新记录，已吊销的凭证保持原样。
	Revoke(ctx context.Context, id, reason string, at time.Time) (*Credential, error)
	// ListByAgent 返回智能体名下未吊销的凭证，按签发时间排序。
	ListByAgent(ctx context.Context, agentID string) ([]*Credential, error)
	NullifierExists(ctx context.Context, schemaID, nullifier string) (bool, error)
	Close() error
}

// MemoryStore 以内存方式保存凭证，主要用于测试。
type MemoryStore struct {
	mu          sync.RWMutex
	credentials map[string]*Credential
}

// NewMemoryStore 创建 MemoryStore。
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{credentials: make(map[string]*Credential)}
}

// Create 实现 Store 接口。
func (m *MemoryStore) Create(_ context.Context, c *Credential) error {
	if c == nil || c.ID == "" {
		return xerrors.New(xerrors.CodeInvalidArgument, "凭证 ID 不能为空")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.credentials[c.ID]; ok {
		return xerrors.New(xerrors.CodeConflict, "凭证已存在")
	}
	for _, existing := range m.credentials {
		if existing.Nullifier == c.Nullifier {
			return xerrors.New(xerrors.CodeConflict, "nullifier 已存在")
		}
	}
	m.credentials[c.ID] = cloneCredential(c)
	return nil
}

// Get 实现 Store 接口。
func (m *MemoryStore) Get(_ context.Context, id string) (*Credential, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.credentials[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneCredential(c), nil
}

// Revoke 实现 Store 接口。
func (m *MemoryStore) Revoke(_ context.Context, id, reason string, at time.Time) (*Credential, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.credentials[id]
	if !ok {
		return nil, ErrNotFound
	}
	if !c.IsRevoked {
		c.IsRevoked = true
		c.RevokedAt = &at
		c.RevocationReason = reason
	}
	return cloneCredential(c), nil
}

// ListByAgent 实现 Store 接口。
func (m *MemoryStore) ListByAgent(_ context.Context, agentID string) ([]*Credential, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Credential, 0)
	for _, c := range m.credentials {
		if c.AgentID == agentID && !c.IsRevoked {
			out = append(out, cloneCredential(c))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

// NullifierExists 实现 Store 接口。
func (m *MemoryStore) NullifierExists(_ context.Context, schemaID, nullifier string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, c := range m.credentials {
		if c.SchemaID == schemaID && c.Nullifier == nullifier {
			return true, nil
		}
	}
	return false, nil
}

// Close 对内存存储无需操作。
func (m *MemoryStore) Close() error { return nil }
