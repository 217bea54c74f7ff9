package credential

import (
	"context"
	"fmt"
	"time"

	xerrors "X402-Registry/internal/errors"
	"X402-Registry/internal/registry"
)

// IssueReputationProof 在信誉分达到阈值时签发信誉凭证。
func (i *Issuer) IssueReputationProof(ctx context.Context, agentID string, threshold int) (*Credential, error) {
	agent, err := i.agent(ctx, agentID)
	if err != nil {
		return nil, err
	}
	if agent.ReputationScore < threshold {
		return nil, xerrors.New(CodeThresholdNotMet,
			fmt.Sprintf("信誉分 %d 低于阈值 %d", agent.ReputationScore, threshold))
	}
	now := i.now()
	validUntil := now.Add(DerivedValidity)
	return i.IssueCredential(ctx, Claim{
		AgentID:        agentID,
		CredentialType: TypeReputationProof,
		Attributes: map[string]any{
			"minReputationScore": threshold,
			"actualScore":        agent.ReputationScore,
			"verifiedAt":         now.Format(time.RFC3339),
		},
		ValidUntil: &validUntil,
	}, SystemIssuer)
}

// IssueTransactionHistoryProof 在交易次数达到下限时签发交易历史凭证。
func (i *Issuer) IssueTransactionHistoryProof(ctx context.Context, agentID string, minTransactions int) (*Credential, error) {
	agent, err := i.agent(ctx, agentID)
	if err != nil {
		return nil, err
	}
	if agent.TotalTransactions < minTransactions {
		return nil, xerrors.New(CodeThresholdNotMet,
			fmt.Sprintf("交易次数 %d 低于下限 %d", agent.TotalTransactions, minTransactions))
	}
	successRate := 0.0
	if agent.TotalTransactions > 0 {
		successRate = float64(agent.SuccessfulTransactions) / float64(agent.TotalTransactions) * 100
	}
	now := i.now()
	validUntil := now.Add(DerivedValidity)
	return i.IssueCredential(ctx, Claim{
		AgentID:        agentID,
		CredentialType: TypeTransactionHistory,
		Attributes: map[string]any{
			"minTransactions":    minTransactions,
			"actualTransactions": agent.TotalTransactions,
			"successRate":        fmt.Sprintf("%.2f", successRate),
			"totalSpent":         agent.TotalSpent.String(),
			"verifiedAt":         now.Format(time.RFC3339),
		},
		ValidUntil: &validUntil,
	}, SystemIssuer)
}

// IssueServiceCompletionProof 基于一笔已确认的付费记录签发服务完成凭证，签发者为服务所有者钱包。
func (i *Issuer) IssueServiceCompletionProof(ctx context.Context, agentID, serviceID, paymentID string) (*Credential, error) {
	payment, err := i.registry.Payment(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	if payment.AgentID != agentID {
		return nil, xerrors.New(CodeTransactionMismatch, "交易不属于该智能体")
	}
	if payment.ServiceID != serviceID {
		return nil, xerrors.New(CodeTransactionMismatch, "交易与服务不匹配")
	}
	if payment.Status != registry.PaymentConfirmed {
		return nil, xerrors.New(CodeTransactionMismatch, "交易尚未确认")
	}
	service, err := i.registry.Service(ctx, serviceID)
	if err != nil {
		return nil, err
	}

	completedAt := ""
	if payment.ConfirmedAt != nil {
		completedAt = payment.ConfirmedAt.UTC().Format(time.RFC3339)
	}
	return i.IssueCredential(ctx, Claim{
		AgentID:        agentID,
		CredentialType: TypeServiceCompletion,
		Attributes: map[string]any{
			"serviceId":     serviceID,
			"serviceName":   service.Name,
			"transactionId": paymentID,
			"completedAt":   completedAt,
			"amountPaid":    payment.AmountUSDC.String(),
		},
	}, service.OwnerWalletAddress)
}
