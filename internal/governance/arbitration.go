package governance

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	xerrors "X402-Registry/internal/errors"
	"X402-Registry/internal/registry"
	"X402-Registry/pkg/logger"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// AssignArbitrator 为 OPEN 争议指派仲裁者并将争议置为 INVESTIGATING。
func (e *Engine) AssignArbitrator(ctx context.Context, disputeID, arbitratorID string) (*Arbitration, error) {
	dispute, err := e.registry.Dispute(ctx, disputeID)
	if err != nil {
		if xerrors.CodeOf(err) == registry.CodeDisputeNotFound {
			return nil, ErrDisputeNotFound
		}
		return nil, err
	}
	if dispute.Status != registry.DisputeOpen {
		return nil, ErrDisputeNotOpen
	}
	arbitrator, err := e.registry.Agent(ctx, arbitratorID)
	if err != nil {
		if xerrors.CodeOf(err) == registry.CodeAgentNotFound {
			return nil, ErrArbitratorNotFound
		}
		return nil, err
	}
	if arbitrator.ReputationScore < e.minArbitratorReputation {
		return nil, ErrArbitratorReputation
	}

	if err := e.registry.TransitionDispute(ctx, disputeID, registry.DisputeOpen, registry.DisputeInvestigating); err != nil {
		if xerrors.CodeOf(err) == registry.CodeDisputeState {
			return nil, ErrDisputeNotOpen
		}
		return nil, err
	}

	arbitration := &Arbitration{
		ID:                  uuid.NewString(),
		DisputeID:           disputeID,
		ArbitratorID:        arbitratorID,
		Status:              ArbitrationAssigned,
		Compensation:        decimal.Zero,
		SlashRecommendation: decimal.Zero,
		CreatedAt:           e.now(),
	}
	if err := e.store.CreateArbitration(ctx, arbitration); err != nil {
		if rollbackErr := e.registry.TransitionDispute(ctx, disputeID, registry.DisputeInvestigating, registry.DisputeOpen); rollbackErr != nil {
			e.logger.Error("回滚争议状态失败", slog.String("dispute_id", disputeID), slog.Any("error", rollbackErr))
		}
		return nil, err
	}

	logger.Audit().Info("仲裁者已指派",
		slog.String("arbitration_id", arbitration.ID),
		slog.String("dispute_id", disputeID),
		slog.String("arbitrator_id", arbitratorID),
	)
	return cloneArbitration(arbitration), nil
}

// CompleteArbitration 记录裁决，并以仲裁者名义创建争议裁决提案。
func (e *Engine) CompleteArbitration(ctx context.Context, arbitrationID, ruling string, compensation, slashRecommendation decimal.Decimal) (*Arbitration, *Proposal, error) {
	if compensation.IsNegative() || slashRecommendation.IsNegative() {
		return nil, nil, xerrors.New(CodeInvalidProposal, "赔偿与罚没金额不能为负")
	}
	current, err := e.store.GetArbitration(ctx, arbitrationID)
	if err != nil {
		return nil, nil, err
	}

	action, err := json.Marshal(registry.Resolution{
		Resolution:   ruling,
		SlashAmount:  slashRecommendation,
		Compensation: compensation,
	})
	if err != nil {
		return nil, nil, xerrors.Wrap(CodeInvalidProposal, err, "编码裁决动作失败")
	}
	proposal, err := e.buildProposal(ctx, CreateProposalRequest{
		ProposerID:          current.ArbitratorID,
		Type:                TypeDisputeResolution,
		Title:               fmt.Sprintf("Resolution for Dispute %s", current.DisputeID),
		Description:         ruling,
		DisputeID:           current.DisputeID,
		ProposedAction:      string(action),
		VotingDurationHours: int(e.arbitrationPeriod.Hours()),
	})
	if err != nil {
		return nil, nil, err
	}

	arbitration, proposal, err := e.store.CompleteArbitration(ctx, arbitrationID, func(a *Arbitration) (*Proposal, error) {
		if a.Status != ArbitrationAssigned {
			return nil, ErrArbitrationCompleted
		}
		completedAt := e.now()
		a.Status = ArbitrationCompleted
		a.Ruling = ruling
		a.Compensation = compensation
		a.SlashRecommendation = slashRecommendation
		a.ProposalID = proposal.ID
		a.CompletedAt = &completedAt
		return proposal, nil
	})
	if err != nil {
		return nil, nil, err
	}

	logger.Audit().Info("仲裁已完成",
		slog.String("arbitration_id", arbitration.ID),
		slog.String("dispute_id", arbitration.DisputeID),
		slog.String("proposal_id", proposal.ID),
		slog.String("slash_recommendation", slashRecommendation.String()),
	)
	e.auditProposal("治理提案已创建", proposal)
	return arbitration, cloneProposal(proposal), nil
}

// Arbitration 返回仲裁记录。
func (e *Engine) Arbitration(ctx context.Context, id string) (*Arbitration, error) {
	return e.store.GetArbitration(ctx, id)
}
