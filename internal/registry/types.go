package registry

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// AgentStatus 表示智能体的账户状态。
type AgentStatus string

const (
	AgentActive    AgentStatus = "ACTIVE"
	AgentSuspended AgentStatus = "SUSPENDED"
)

// DisputeStatus 表示争议的处理阶段。
type DisputeStatus string

const (
	DisputeOpen          DisputeStatus = "OPEN"
	DisputeInvestigating DisputeStatus = "INVESTIGATING"
	DisputeResolved      DisputeStatus = "RESOLVED"
)

// ServiceStatus 表示服务的上架状态。
type ServiceStatus string

const (
	ServiceActive    ServiceStatus = "ACTIVE"
	ServiceSuspended ServiceStatus = "SUSPENDED"
)

// PaymentStatus 表示一次付费调用的结算状态。
type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "PENDING"
	PaymentConfirmed PaymentStatus = "CONFIRMED"
	PaymentFailed    PaymentStatus = "FAILED"
)

const (
	// MaxReputation 是信誉分上限。
	MaxReputation = 10000
	// DisputePenalty 是败诉一次扣除的信誉分。
	DisputePenalty = 1000
)

// Agent 描述注册表中的智能体。
type Agent struct {
	ID                     string          `json:"id"`
	WalletAddress          string          `json:"wallet_address"`
	ReputationScore        int             `json:"reputation_score"`
	StakedAmount           decimal.Decimal `json:"staked_amount"`
	SlashedAmount          decimal.Decimal `json:"slashed_amount"`
	DisputesLost           int             `json:"disputes_lost"`
	TotalTransactions      int             `json:"total_transactions"`
	SuccessfulTransactions int             `json:"successful_transactions"`
	TotalSpent             decimal.Decimal `json:"total_spent"`
	Status                 AgentStatus     `json:"status"`
	UpdatedAt              time.Time       `json:"updated_at"`
}

// Dispute 描述一次服务争议。
type Dispute struct {
	ID           string          `json:"id"`
	AgentID      string          `json:"agent_id"`
	ServiceID    string          `json:"service_id,omitempty"`
	Status       DisputeStatus   `json:"status"`
	Resolution   string          `json:"resolution,omitempty"`
	SlashAmount  decimal.Decimal `json:"slash_amount"`
	Compensation decimal.Decimal `json:"compensation"`
	ResolvedAt   *time.Time      `json:"resolved_at,omitempty"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// Service 描述注册表中的付费服务。
type Service struct {
	ID                 string        `json:"id"`
	Name               string        `json:"name"`
	OwnerWalletAddress string        `json:"owner_wallet_address"`
	Status             ServiceStatus `json:"status"`
	UpdatedAt          time.Time     `json:"updated_at"`
}

// Payment 描述智能体对服务的一次付费记录。
type Payment struct {
	ID          string          `json:"id"`
	AgentID     string          `json:"agent_id"`
	ServiceID   string          `json:"service_id"`
	Status      PaymentStatus   `json:"status"`
	AmountUSDC  decimal.Decimal `json:"amount_usdc"`
	ConfirmedAt *time.Time      `json:"confirmed_at,omitempty"`
}

// Resolution 是治理提案通过后对争议的裁决。
type Resolution struct {
	Resolution   string          `json:"resolution"`
	SlashAmount  decimal.Decimal `json:"slashAmount"`
	Compensation decimal.Decimal `json:"compensation"`
}

// Registry 聚合了各业务模块需要的注册表读写能力。
type Registry interface {
	Agent(ctx context.Context, id string) (*Agent, error)
	TotalStaked(ctx context.Context) (decimal.Decimal, error)
	SetAgentStatus(ctx context.Context, id string, status AgentStatus) error

	Dispute(ctx context.Context, id string) (*Dispute, error)
	// TransitionDispute 仅当争议处于 from 状态时将其切换到 to。
	TransitionDispute(ctx context.Context, id string, from, to DisputeStatus) error
	// ResolveDispute 原子地结案并对败诉方执行处罚。争议已结案时返回 false。
	ResolveDispute(ctx context.Context, id string, res Resolution) (bool, error)

	Service(ctx context.Context, id string) (*Service, error)
	SetServiceStatus(ctx context.Context, id string, status ServiceStatus) error

	Payment(ctx context.Context, id string) (*Payment, error)

	ApplySeed(ctx context.Context, seed Seed) error
	Close() error
}

// applyPenalty 对败诉智能体扣减质押与信誉，信誉分不低于 0。
func applyPenalty(agent *Agent, slash decimal.Decimal) {
	agent.StakedAmount = agent.StakedAmount.Sub(slash)
	agent.SlashedAmount = agent.SlashedAmount.Add(slash)
	agent.ReputationScore -= DisputePenalty
	if agent.ReputationScore < 0 {
		agent.ReputationScore = 0
	}
	agent.DisputesLost++
}
