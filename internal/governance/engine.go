package governance

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	xerrors "X402-Registry/internal/errors"
	"X402-Registry/internal/observability/alerting"
	"X402-Registry/internal/observability/metrics"
	"X402-Registry/internal/registry"
	"X402-Registry/pkg/logger"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	// DefaultMinProposerReputation 是发起提案所需的最低声誉。
	DefaultMinProposerReputation = 7000
	// DefaultMinArbitratorReputation 是担任仲裁者所需的最低声誉。
	DefaultMinArbitratorReputation = 8000
	// DefaultArbitrationVotingPeriod 是仲裁生成的争议裁决提案的投票时长。
	DefaultArbitrationVotingPeriod = 72 * time.Hour
)

// Registry 是治理引擎依赖的注册表能力。
type Registry interface {
	Agent(ctx context.Context, id string) (*registry.Agent, error)
	TotalStaked(ctx context.Context) (decimal.Decimal, error)
	SetAgentStatus(ctx context.Context, id string, status registry.AgentStatus) error
	Dispute(ctx context.Context, id string) (*registry.Dispute, error)
	TransitionDispute(ctx context.Context, id string, from, to registry.DisputeStatus) error
	ResolveDispute(ctx context.Context, id string, res registry.Resolution) (bool, error)
	SetServiceStatus(ctx context.Context, id string, status registry.ServiceStatus) error
}

// Engine 是基于质押加权投票的治理引擎。
type Engine struct {
	store                   Store
	registry                Registry
	dispatcher              Dispatcher
	validate                *validator.Validate
	alerts                  alerting.Dispatcher
	indicators              metrics.Indicators
	logger                  *slog.Logger
	now                     func() time.Time
	verifyVotingPower       bool
	minProposerReputation   int
	minArbitratorReputation int
	arbitrationPeriod       time.Duration
}

// Option 定义可选配置。
type Option func(*Engine)

// WithClock 替换时间来源。
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// WithLogger 指定日志输出。
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithIndicators 配置业务指标。
func WithIndicators(ind metrics.Indicators) Option {
	return func(e *Engine) {
		if ind != nil {
			e.indicators = ind
		}
	}
}

// WithAlertDispatcher 配置执行失败时的告警出口。
func WithAlertDispatcher(d alerting.Dispatcher) Option {
	return func(e *Engine) {
		e.alerts = d
	}
}

// WithDispatcher 替换已通过提案的执行方式，默认同步执行。
func WithDispatcher(d Dispatcher) Option {
	return func(e *Engine) {
		if d != nil {
			e.dispatcher = d
		}
	}
}

// WithVotingPowerCheck 开启后投票权重将与注册表重新计算的结果比对。
func WithVotingPowerCheck(enabled bool) Option {
	return func(e *Engine) {
		e.verifyVotingPower = enabled
	}
}

// WithMinProposerReputation 设置发起提案的声誉门槛。
func WithMinProposerReputation(v int) Option {
	return func(e *Engine) {
		if v > 0 {
			e.minProposerReputation = v
		}
	}
}

// WithMinArbitratorReputation 设置仲裁者的声誉门槛。
func WithMinArbitratorReputation(v int) Option {
	return func(e *Engine) {
		if v > 0 {
			e.minArbitratorReputation = v
		}
	}
}

// WithArbitrationVotingPeriod 设置仲裁提案的投票时长。
func WithArbitrationVotingPeriod(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.arbitrationPeriod = d
		}
	}
}

// NewEngine 构造治理引擎。
func NewEngine(store Store, reg Registry, opts ...Option) *Engine {
	e := &Engine{
		store:                   store,
		registry:                reg,
		validate:                validator.New(),
		indicators:              metrics.Nop{},
		logger:                  logger.Named("governance"),
		now:                     func() time.Time { return time.Now().UTC() },
		minProposerReputation:   DefaultMinProposerReputation,
		minArbitratorReputation: DefaultMinArbitratorReputation,
		arbitrationPeriod:       DefaultArbitrationVotingPeriod,
	}
	e.dispatcher = InlineDispatcher{Executor: e}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	return e
}

// CreateProposal 校验提案人声誉并按类型计算法定人数后开启投票。
func (e *Engine) CreateProposal(ctx context.Context, req CreateProposalRequest) (*Proposal, error) {
	p, err := e.buildProposal(ctx, req)
	if err != nil {
		return nil, err
	}
	if err := e.store.CreateProposal(ctx, p); err != nil {
		return nil, err
	}
	e.auditProposal("治理提案已创建", p)
	return cloneProposal(p), nil
}

func (e *Engine) buildProposal(ctx context.Context, req CreateProposalRequest) (*Proposal, error) {
	if err := e.validate.Struct(req); err != nil {
		return nil, xerrors.Wrap(CodeInvalidProposal, err, "提案参数不合法")
	}
	if req.Type == TypeDisputeResolution && req.DisputeID != "" {
		if _, err := parseResolution(req.ProposedAction); err != nil {
			return nil, xerrors.Wrap(CodeInvalidProposal, err, "争议裁决动作无法解析")
		}
	}

	proposer, err := e.registry.Agent(ctx, req.ProposerID)
	if err != nil {
		if xerrors.CodeOf(err) == registry.CodeAgentNotFound {
			return nil, ErrProposerNotFound
		}
		return nil, err
	}
	if proposer.ReputationScore < e.minProposerReputation {
		return nil, ErrInsufficientReputation
	}

	totalStaked, err := e.registry.TotalStaked(ctx)
	if err != nil {
		return nil, err
	}

	now := e.now()
	return &Proposal{
		ID:              uuid.NewString(),
		ProposerID:      req.ProposerID,
		Type:            req.Type,
		Title:           req.Title,
		Description:     req.Description,
		DisputeID:       req.DisputeID,
		TargetAgentID:   req.TargetAgentID,
		TargetServiceID: req.TargetServiceID,
		ProposedAction:  req.ProposedAction,
		VotingStartAt:   now,
		VotingEndAt:     now.Add(time.Duration(req.VotingDurationHours) * time.Hour),
		QuorumRequired:  QuorumFor(req.Type, totalStaked),
		Status:          StatusActive,
		CreatedAt:       now,
		UpdatedAt:       now,
	}, nil
}

// CastVote 记录一次投票并重算计票。投票窗口已过时先关闭提案再返回 ErrVotingClosed。
func (e *Engine) CastVote(ctx context.Context, req CastVoteRequest) (*Vote, error) {
	if err := e.validate.Struct(req); err != nil {
		return nil, xerrors.Wrap(CodeInvalidVote, err, "投票参数不合法")
	}
	p, err := e.store.GetProposal(ctx, req.ProposalID)
	if err != nil {
		return nil, err
	}
	if p.Status != StatusActive {
		return nil, ErrProposalNotActive
	}
	if e.now().After(p.VotingEndAt) {
		return nil, e.closeElapsed(ctx, p.ID)
	}

	voter, err := e.registry.Agent(ctx, req.VoterID)
	if err != nil {
		if xerrors.CodeOf(err) == registry.CodeAgentNotFound {
			return nil, ErrVoterNotFound
		}
		return nil, err
	}
	if e.verifyVotingPower {
		expected := VotingPower(voter.StakedAmount, voter.ReputationScore)
		if expected != req.VotingPower {
			return nil, xerrors.New(CodeInvalidVote, "投票权重与注册表不一致",
				xerrors.WithMetadata("expected", decimal.NewFromInt(expected).String()))
		}
	}

	now := e.now()
	vote := &Vote{
		ID:          uuid.NewString(),
		ProposalID:  req.ProposalID,
		VoterID:     req.VoterID,
		VoteType:    req.VoteType,
		VotingPower: req.VotingPower,
		Reason:      req.Reason,
		Signature:   req.Signature,
		CreatedAt:   now,
	}
	elapsed := false
	_, err = e.store.AddVote(ctx, vote, func(current *Proposal) error {
		if current.Status != StatusActive {
			return ErrProposalNotActive
		}
		if now.After(current.VotingEndAt) {
			elapsed = true
			return ErrVotingClosed
		}
		current.UpdatedAt = now
		return nil
	})
	if err != nil {
		if elapsed {
			return nil, e.closeElapsed(ctx, req.ProposalID)
		}
		return nil, err
	}

	e.indicators.VoteCast(string(vote.VoteType))
	logger.Audit().Info("治理投票已记录",
		slog.String("proposal_id", vote.ProposalID),
		slog.String("voter_id", vote.VoterID),
		slog.String("vote_type", string(vote.VoteType)),
		slog.Int64("voting_power", vote.VotingPower),
	)
	copied := *vote
	return &copied, nil
}

func (e *Engine) closeElapsed(ctx context.Context, proposalID string) error {
	if _, err := e.CloseProposal(ctx, proposalID); err != nil {
		e.logger.Warn("投票窗口已过但关闭提案失败", slog.String("proposal_id", proposalID), slog.Any("error", err))
	}
	return ErrVotingClosed
}

// CloseProposal 对 ACTIVE 提案计票并定为 PASSED 或 REJECTED；对已关闭的提案是幂等的。
// PASSED 提案随后交给 Dispatcher 执行，执行失败不影响关闭结果。
func (e *Engine) CloseProposal(ctx context.Context, proposalID string) (*Proposal, error) {
	p, _, err := e.closeProposal(ctx, proposalID)
	return p, err
}

// closeProposal 返回的 bool 表示本次调用是否做出了裁决。
func (e *Engine) closeProposal(ctx context.Context, proposalID string) (*Proposal, bool, error) {
	decided := false
	p, err := e.store.UpdateProposal(ctx, proposalID, func(current *Proposal) error {
		if current.Status != StatusActive {
			return nil
		}
		if current.Passes() {
			current.Status = StatusPassed
		} else {
			current.Status = StatusRejected
		}
		current.UpdatedAt = e.now()
		decided = true
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	if !decided {
		return p, false, nil
	}

	e.indicators.ProposalDecided(string(p.Status))
	e.auditProposal("治理提案已关闭", p)
	if p.Status != StatusPassed {
		return p, true, nil
	}

	if err := e.dispatcher.Dispatch(ctx, p.ID); err != nil {
		e.logger.Error("提案执行派发失败", slog.String("proposal_id", p.ID), slog.Any("error", err))
	}
	latest, err := e.store.GetProposal(ctx, p.ID)
	if err != nil {
		return p, true, nil
	}
	return latest, true, nil
}

// ExecuteProposal 应用 PASSED 提案并标记 EXECUTED；其他状态直接返回。
// 应用失败时记录日志并告警，提案保持 PASSED 以便重试。
func (e *Engine) ExecuteProposal(ctx context.Context, proposalID string) error {
	p, err := e.store.GetProposal(ctx, proposalID)
	if err != nil {
		return err
	}
	if p.Status != StatusPassed {
		return nil
	}

	if err := e.apply(ctx, p); err != nil {
		e.indicators.ProposalExecuted("failed")
		e.logger.Error("提案执行失败，保持 PASSED",
			slog.String("proposal_id", p.ID),
			slog.String("type", string(p.Type)),
			slog.Any("error", err),
		)
		alerting.Emit(ctx, e.alerts, CodeExecutionFailed, err, "governance_proposal", p.ID,
			map[string]string{"type": string(p.Type)})
		return xerrors.Wrap(CodeExecutionFailed, err, "提案执行失败")
	}

	executedAt := e.now()
	updated, err := e.store.UpdateProposal(ctx, proposalID, func(current *Proposal) error {
		if current.Status != StatusPassed {
			return nil
		}
		current.Status = StatusExecuted
		current.ExecutedAt = &executedAt
		current.UpdatedAt = executedAt
		return nil
	})
	if err != nil {
		return err
	}
	e.indicators.ProposalExecuted("executed")
	e.auditProposal("治理提案已执行", updated)
	return nil
}

func (e *Engine) apply(ctx context.Context, p *Proposal) error {
	switch p.Type {
	case TypeDisputeResolution:
		if p.DisputeID == "" {
			return nil
		}
		res, err := parseResolution(p.ProposedAction)
		if err != nil {
			return err
		}
		applied, err := e.registry.ResolveDispute(ctx, p.DisputeID, res)
		if err != nil {
			return err
		}
		if !applied {
			e.logger.Info("争议已裁决，跳过重复处罚", slog.String("dispute_id", p.DisputeID))
		}
	case TypeAgentSuspension:
		if p.TargetAgentID != "" {
			return e.registry.SetAgentStatus(ctx, p.TargetAgentID, registry.AgentSuspended)
		}
	case TypeServiceSuspension:
		if p.TargetServiceID != "" {
			return e.registry.SetServiceStatus(ctx, p.TargetServiceID, registry.ServiceSuspended)
		}
	}
	return nil
}

func parseResolution(action string) (registry.Resolution, error) {
	var res registry.Resolution
	if err := json.Unmarshal([]byte(action), &res); err != nil {
		return res, err
	}
	return res, nil
}

// GetVotingPower = floor(staked×100 + reputation/100)；智能体不存在时为 0。
func (e *Engine) GetVotingPower(ctx context.Context, agentID string) (int64, error) {
	agent, err := e.registry.Agent(ctx, agentID)
	if err != nil {
		if xerrors.CodeOf(err) == registry.CodeAgentNotFound {
			return 0, nil
		}
		return 0, err
	}
	return VotingPower(agent.StakedAmount, agent.ReputationScore), nil
}

// ScheduleProposalClosures 关闭所有投票窗口已过的 ACTIVE 提案，返回关闭数量。
func (e *Engine) ScheduleProposalClosures(ctx context.Context) (int, error) {
	active, err := e.store.ListActive(ctx)
	if err != nil {
		return 0, err
	}
	now := e.now()
	closed := 0
	for _, p := range active {
		if p.VotingEndAt.After(now) {
			continue
		}
		_, decided, err := e.closeProposal(ctx, p.ID)
		if err != nil {
			e.logger.Error("定时关闭提案失败", slog.String("proposal_id", p.ID), slog.Any("error", err))
			continue
		}
		if decided {
			closed++
		}
	}
	return closed, nil
}

// ActiveProposals 返回仍在投票窗口内的提案，按截止时间升序。
func (e *Engine) ActiveProposals(ctx context.Context) ([]ProposalView, error) {
	active, err := e.store.ListActive(ctx)
	if err != nil {
		return nil, err
	}
	now := e.now()
	out := make([]ProposalView, 0, len(active))
	for _, p := range active {
		if !p.VotingEndAt.After(now) {
			continue
		}
		votes, err := e.store.ListVotes(ctx, p.ID)
		if err != nil {
			return nil, err
		}
		details := make([]VoteDetail, 0, len(votes))
		for _, v := range votes {
			details = append(details, VoteDetail{Vote: *v})
		}
		out = append(out, ProposalView{Proposal: p, Votes: details})
	}
	return out, nil
}

// ProposalDetails 返回提案及投票，投票附带投票者的钱包地址与声誉。
func (e *Engine) ProposalDetails(ctx context.Context, proposalID string) (*ProposalView, error) {
	p, err := e.store.GetProposal(ctx, proposalID)
	if err != nil {
		return nil, err
	}
	votes, err := e.store.ListVotes(ctx, proposalID)
	if err != nil {
		return nil, err
	}
	details := make([]VoteDetail, 0, len(votes))
	for _, v := range votes {
		detail := VoteDetail{Vote: *v}
		if agent, err := e.registry.Agent(ctx, v.VoterID); err == nil {
			detail.VoterWalletAddress = agent.WalletAddress
			detail.VoterReputation = agent.ReputationScore
		}
		details = append(details, detail)
	}
	return &ProposalView{Proposal: p, Votes: details}, nil
}

func (e *Engine) auditProposal(msg string, p *Proposal) {
	logger.Audit().Info(msg,
		slog.String("proposal_id", p.ID),
		slog.String("type", string(p.Type)),
		slog.String("status", string(p.Status)),
		slog.Int64("total_votes", p.TotalVotes),
		slog.Int64("quorum_required", p.QuorumRequired),
	)
}
