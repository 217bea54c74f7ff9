package registry

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// MemoryRegistry 以内存方式保存注册表数据，用于开发与测试。
type MemoryRegistry struct {
	mu       sync.RWMutex
	agents   map[string]*Agent
	disputes map[string]*Dispute
	services map[string]*Service
	payments map[string]*Payment
	now      func() time.Time
}

// NewMemoryRegistry 创建空的内存注册表。
func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{
		agents:   make(map[string]*Agent),
		disputes: make(map[string]*Dispute),
		services: make(map[string]*Service),
		payments: make(map[string]*Payment),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// ApplySeed 覆盖写入种子数据。
func (m *MemoryRegistry) ApplySeed(_ context.Context, seed Seed) error {
	if err := seed.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	for _, a := range seed.Agents {
		a := a
		a.UpdatedAt = now
		m.agents[a.ID] = &a
	}
	for _, s := range seed.Services {
		s := s
		s.UpdatedAt = now
		m.services[s.ID] = &s
	}
	for _, d := range seed.Disputes {
		d := d
		d.UpdatedAt = now
		m.disputes[d.ID] = &d
	}
	for _, p := range seed.Payments {
		p := p
		m.payments[p.ID] = &p
	}
	return nil
}

// Agent 返回智能体副本。
func (m *MemoryRegistry) Agent(_ context.Context, id string) (*Agent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.agents[id]
	if !ok {
		return nil, ErrAgentNotFound
	}
	clone := *a
	return &clone, nil
}

// TotalStaked 汇总全部智能体的质押额。
func (m *MemoryRegistry) TotalStaked(_ context.Context) (decimal.Decimal, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	total := decimal.Zero
	for _, a := range m.agents {
		total = total.Add(a.StakedAmount)
	}
	return total, nil
}

// SetAgentStatus 更新智能体状态。
func (m *MemoryRegistry) SetAgentStatus(_ context.Context, id string, status AgentStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.agents[id]
	if !ok {
		return ErrAgentNotFound
	}
	a.Status = status
	a.UpdatedAt = m.now()
	return nil
}

// Dispute 返回争议副本。
func (m *MemoryRegistry) Dispute(_ context.Context, id string) (*Dispute, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.disputes[id]
	if !ok {
		return nil, ErrDisputeNotFound
	}
	return cloneDispute(d), nil
}

// TransitionDispute 实现 Registry 接口。
func (m *MemoryRegistry) TransitionDispute(_ context.Context, id string, from, to DisputeStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.disputes[id]
	if !ok {
		return ErrDisputeNotFound
	}
	if d.Status != from {
		return ErrDisputeState
	}
	d.Status = to
	d.UpdatedAt = m.now()
	return nil
}

// ResolveDispute 实现 Registry 接口。
func (m *MemoryRegistry) ResolveDispute(_ context.Context, id string, res Resolution) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.disputes[id]
	if !ok {
		return false, ErrDisputeNotFound
	}
	if d.Status == DisputeResolved {
		return false, nil
	}
	var agent *Agent
	if res.SlashAmount.IsPositive() {
		agent, ok = m.agents[d.AgentID]
		if !ok {
			return false, ErrAgentNotFound
		}
	}

	now := m.now()
	d.Status = DisputeResolved
	d.Resolution = res.Resolution
	d.SlashAmount = res.SlashAmount
	d.Compensation = res.Compensation
	d.ResolvedAt = &now
	d.UpdatedAt = now
	if agent != nil {
		applyPenalty(agent, res.SlashAmount)
		agent.UpdatedAt = now
	}
	return true, nil
}

// Service 返回服务副本。
func (m *MemoryRegistry) Service(_ context.Context, id string) (*Service, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.services[id]
	if !ok {
		return nil, ErrServiceNotFound
	}
	clone := *s
	return &clone, nil
}

// SetServiceStatus 更新服务状态。
func (m *MemoryRegistry) SetServiceStatus(_ context.Context, id string, status ServiceStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.services[id]
	if !ok {
		return ErrServiceNotFound
	}
	s.Status = status
	s.UpdatedAt = m.now()
	return nil
}

// Payment 返回付费记录副本。
func (m *MemoryRegistry) Payment(_ context.Context, id string) (*Payment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.payments[id]
	if !ok {
		return nil, ErrPaymentNotFound
	}
	clone := *p
	if p.ConfirmedAt != nil {
		at := *p.ConfirmedAt
		clone.ConfirmedAt = &at
	}
	return &clone, nil
}

// Close 对内存注册表无需操作。
func (m *MemoryRegistry) Close() error { return nil }

func cloneDispute(d *Dispute) *Dispute {
	clone := *d
	if d.ResolvedAt != nil {
		at := *d.ResolvedAt
		clone.ResolvedAt = &at
	}
	return &clone
}
