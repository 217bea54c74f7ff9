package governance

import (
	"time"

	"github.com/shopspring/decimal"
)

// ProposalType 决定法定人数比例与执行动作。
type ProposalType string

const (
	TypeDisputeResolution  ProposalType = "DISPUTE_RESOLUTION"
	TypeAgentSuspension    ProposalType = "AGENT_SUSPENSION"
	TypeServiceSuspension  ProposalType = "SERVICE_SUSPENSION"
	TypeParameterChange    ProposalType = "PARAMETER_CHANGE"
	TypeTreasuryAllocation ProposalType = "TREASURY_ALLOCATION"
)

// ProposalStatus 描述提案状态：ACTIVE → {PASSED → EXECUTED, REJECTED}。
type ProposalStatus string

const (
	StatusActive   ProposalStatus = "ACTIVE"
	StatusPassed   ProposalStatus = "PASSED"
	StatusRejected ProposalStatus = "REJECTED"
	StatusExecuted ProposalStatus = "EXECUTED"
)

// VoteType 是投票选项。
type VoteType string

const (
	VoteFor     VoteType = "FOR"
	VoteAgainst VoteType = "AGAINST"
	VoteAbstain VoteType = "ABSTAIN"
)

// ArbitrationStatus 描述仲裁进度。
type ArbitrationStatus string

const (
	ArbitrationAssigned  ArbitrationStatus = "ASSIGNED"
	ArbitrationCompleted ArbitrationStatus = "COMPLETED"
)

// Proposal 是治理提案。
type Proposal struct {
	ID              string         `json:"id"`
	ProposerID      string         `json:"proposerId"`
	Type            ProposalType   `json:"type"`
	Title           string         `json:"title"`
	Description     string         `json:"description"`
	DisputeID       string         `json:"disputeId,omitempty"`
	TargetAgentID   string         `json:"targetAgentId,omitempty"`
	TargetServiceID string         `json:"targetServiceId,omitempty"`
	ProposedAction  string         `json:"proposedAction"`
	VotingStartAt   time.Time      `json:"votingStartAt"`
	VotingEndAt     time.Time      `json:"votingEndAt"`
	QuorumRequired  int64          `json:"quorumRequired"`
	TotalVotes      int64          `json:"totalVotes"`
	VotesFor        int64          `json:"votesFor"`
	VotesAgainst    int64          `json:"votesAgainst"`
	VotesAbstain    int64          `json:"votesAbstain"`
	Status          ProposalStatus `json:"status"`
	ExecutedAt      *time.Time     `json:"executedAt,omitempty"`
	CreatedAt       time.Time      `json:"createdAt"`
	UpdatedAt       time.Time      `json:"updatedAt"`
}

// Passes 判断计票是否满足法定人数且赞成多于反对。
func (p *Proposal) Passes() bool {
	return p.TotalVotes >= p.QuorumRequired && p.VotesFor > p.VotesAgainst
}

// Vote 是一次不可修改的投票，votingPower 在投票时确定。
type Vote struct {
	ID          string    `json:"id"`
	ProposalID  string    `json:"proposalId"`
	VoterID     string    `json:"voterId"`
	VoteType    VoteType  `json:"voteType"`
	VotingPower int64     `json:"votingPower"`
	Reason      string    `json:"reason,omitempty"`
	Signature   string    `json:"signature,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
}

// VoteDetail 附带投票者的钱包地址与声誉。
type VoteDetail struct {
	Vote
	VoterWalletAddress string `json:"voterWalletAddress,omitempty"`
	VoterReputation    int    `json:"voterReputation"`
}

// ProposalView 是提案及其投票。
type ProposalView struct {
	Proposal *Proposal    `json:"proposal"`
	Votes    []VoteDetail `json:"votes"`
}

// Arbitration 记录争议的仲裁过程。
type Arbitration struct {
	ID                  string            `json:"id"`
	DisputeID           string            `json:"disputeId"`
	ArbitratorID        string            `json:"arbitratorId"`
	Status              ArbitrationStatus `json:"status"`
	Ruling              string            `json:"ruling,omitempty"`
	Compensation        decimal.Decimal   `json:"compensation"`
	SlashRecommendation decimal.Decimal   `json:"slashRecommendation"`
	ProposalID          string            `json:"proposalId,omitempty"`
	CreatedAt           time.Time         `json:"createdAt"`
	CompletedAt         *time.Time        `json:"completedAt,omitempty"`
}

// CreateProposalRequest 描述新提案。
type CreateProposalRequest struct {
	ProposerID          string       `json:"proposerId" validate:"required"`
	Type                ProposalType `json:"type" validate:"required,uppercase"`
	Title               string       `json:"title" validate:"max=255"`
	Description         string       `json:"description"`
	DisputeID           string       `json:"disputeId,omitempty"`
	TargetAgentID       string       `json:"targetAgentId,omitempty"`
	TargetServiceID     string       `json:"targetServiceId,omitempty"`
	ProposedAction      string       `json:"proposedAction"`
	VotingDurationHours int          `json:"votingDurationHours" validate:"gt=0"`
}

// CastVoteRequest 描述一次投票。
type CastVoteRequest struct {
	ProposalID  string   `json:"proposalId" validate:"required"`
	VoterID     string   `json:"voterId" validate:"required"`
	VoteType    VoteType `json:"voteType" validate:"oneof=FOR AGAINST ABSTAIN"`
	VotingPower int64    `json:"votingPower" validate:"min=0"`
	Reason      string   `json:"reason,omitempty"`
	Signature   string   `json:"signature"`
}

func cloneProposal(p *Proposal) *Proposal {
	if p == nil {
		return nil
	}
	out := *p
	if p.ExecutedAt != nil {
		at := *p.ExecutedAt
		out.ExecutedAt = &at
	}
	return &out
}

func cloneArbitration(a *Arbitration) *Arbitration {
	if a == nil {
		return nil
	}
	out := *a
	if a.CompletedAt != nil {
		at := *a.CompletedAt
		out.CompletedAt = &at
	}
	return &out
}
