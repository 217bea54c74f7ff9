package credential

import (
	"context"
	"testing"
	"time"

	"X402-Registry/internal/accumulator"
	xerrors "X402-Registry/internal/errors"
	"X402-Registry/internal/registry"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	issuer *Issuer
	store  *MemoryStore
	leaves *accumulator.MemoryStore
	clock  *time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	reg := registry.NewMemoryRegistry()
	confirmed := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	require.NoError(t, reg.ApplySeed(context.Background(), registry.Seed{
		Agents: []registry.Agent{
			{ID: "agent-1", WalletAddress: "0xa1", ReputationScore: 8200, StakedAmount: decimal.NewFromInt(10),
				TotalTransactions: 40, SuccessfulTransactions: 38, TotalSpent: decimal.RequireFromString("12.75")},
			{ID: "agent-2", WalletAddress: "0xa2", ReputationScore: 3000},
		},
		Services: []registry.Service{{ID: "svc-1", Name: "geo", OwnerWalletAddress: "0xowner"}},
		Payments: []registry.Payment{
			{ID: "pay-ok", AgentID: "agent-1", ServiceID: "svc-1", Status: registry.PaymentConfirmed,
				AmountUSDC: decimal.RequireFromString("0.05"), ConfirmedAt: &confirmed},
			{ID: "pay-pending", AgentID: "agent-1", ServiceID: "svc-1", Status: registry.PaymentPending},
		},
	}))

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	f := &fixture{store: NewMemoryStore(), leaves: accumulator.NewMemoryStore(), clock: &now}
	f.issuer = NewIssuer(f.store, f.leaves, reg, WithClock(func() time.Time { return *f.clock }))
	return f
}

func identityClaim(agentID string) Claim {
	return Claim{AgentID: agentID, CredentialType: TypeIdentityVerification, Attributes: map[string]any{"kyc": "level-2"}}
}

func TestIssueCredentialAppendsCommitment(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	cred, err := f.issuer.IssueCredential(ctx, identityClaim("agent-1"), "issuer-x")
	require.NoError(t, err)
	require.Equal(t, "identity-v1", cred.SchemaID)
	require.Len(t, cred.Commitment, 64)
	require.Len(t, cred.Nullifier, 64)
	require.Contains(t, cred.ProofURI, "ipfs://")
	require.False(t, cred.IsRevoked)

	leaves, err := f.leaves.List(ctx, "identity-v1")
	require.NoError(t, err)
	require.Equal(t, []string{cred.Commitment}, leaves)
}

func TestIssueCredentialValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.issuer.IssueCredential(ctx, Claim{CredentialType: TypeIdentityVerification}, "issuer-x")
	require.Equal(t, CodeInvalidClaim, xerrors.CodeOf(err))

	_, err = f.issuer.IssueCredential(ctx, Claim{AgentID: "agent-1", CredentialType: "MADE_UP"}, "issuer-x")
	require.ErrorIs(t, err, ErrUnknownType)

	_, err = f.issuer.IssueCredential(ctx, identityClaim("ghost"), "issuer-x")
	require.ErrorIs(t, err, ErrAgentNotFound)
}

func TestProofRootMatchesAccumulatorAndSurvivesAppend(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.issuer.IssueCredential(ctx, identityClaim("agent-1"), "issuer-x")
	require.NoError(t, err)

	proof, err := f.issuer.GenerateProof(ctx, first.ID, []string{"kyc"})
	require.NoError(t, err)
	leaves, err := f.leaves.List(ctx, "identity-v1")
	require.NoError(t, err)
	root, err := accumulator.ComputeRoot(leaves)
	require.NoError(t, err)
	require.Equal(t, root, proof.PublicSignals[0])
	require.Equal(t, first.Nullifier, proof.PublicSignals[1])
	require.Equal(t, "kyc", proof.PublicSignals[2])

	_, err = f.issuer.IssueCredential(ctx, identityClaim("agent-2"), "issuer-x")
	require.NoError(t, err)

	newRoot, err := f.issuer.MerkleRoot(ctx, "identity-v1")
	require.NoError(t, err)
	require.NotEqual(t, root, newRoot)

	again, err := f.issuer.GenerateProof(ctx, first.ID, nil)
	require.NoError(t, err)
	require.Equal(t, newRoot, again.PublicSignals[0])
	path := accumulator.Proof{Leaf: first.Commitment, Index: again.LeafIndex, Siblings: again.MerklePath}
	require.True(t, path.Verify(newRoot))
}

func TestVerifyProof(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	cred, err := f.issuer.IssueCredential(ctx, identityClaim("agent-1"), "issuer-x")
	require.NoError(t, err)
	proof, err := f.issuer.GenerateProof(ctx, cred.ID, nil)
	require.NoError(t, err)

	ok, err := f.issuer.VerifyProof(ctx, *proof, "identity-v1", "")
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = f.issuer.VerifyProof(ctx, *proof, "identity-v1", cred.Nullifier)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = f.issuer.VerifyProof(ctx, *proof, "identity-v1", "deadbeef")
	require.NoError(t, err)
	require.False(t, ok, "expected nullifier mismatch")

	ok, err = f.issuer.VerifyProof(ctx, *proof, "reputation-v1", "")
	require.NoError(t, err)
	require.False(t, ok, "nullifier unknown under another schema")

	tampered := *proof
	tampered.Proof = `{"protocol":"plonk","curve":"bn128"}`
	ok, err = f.issuer.VerifyProof(ctx, tampered, "identity-v1", "")
	require.NoError(t, err)
	require.False(t, ok)

	// 证明可以重复校验，nullifier 不会被消耗。
	ok, err = f.issuer.VerifyProof(ctx, *proof, "identity-v1", "")
	require.NoError(t, err)
	require.True(t, ok)

	_, err = f.issuer.IssueCredential(ctx, identityClaim("agent-2"), "issuer-x")
	require.NoError(t, err)
	ok, err = f.issuer.VerifyProof(ctx, *proof, "identity-v1", "")
	require.NoError(t, err)
	require.False(t, ok, "stale root after a new issuance")
}

func TestRevocationBlocksNewProofsOnly(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	cred, err := f.issuer.IssueCredential(ctx, identityClaim("agent-1"), "issuer-x")
	require.NoError(t, err)
	before, err := f.issuer.GenerateProof(ctx, cred.ID, nil)
	require.NoError(t, err)

	revoked, err := f.issuer.RevokeCredential(ctx, cred.ID, "compromised key")
	require.NoError(t, err)
	require.True(t, revoked.IsRevoked)
	require.NotNil(t, revoked.RevokedAt)

	_, err = f.issuer.GenerateProof(ctx, cred.ID, nil)
	require.ErrorIs(t, err, ErrRevoked)

	ok, err := f.issuer.VerifyProof(ctx, *before, "identity-v1", "")
	require.NoError(t, err)
	require.True(t, ok, "a proof generated before revocation stays verifiable")

	leaves, err := f.leaves.List(ctx, "identity-v1")
	require.NoError(t, err)
	require.Contains(t, leaves, cred.Commitment)

	list, err := f.issuer.CredentialsByAgent(ctx, "agent-1")
	require.NoError(t, err)
	require.Empty(t, list)

	_, err = f.issuer.RevokeCredential(ctx, "missing", "x")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestExpiredCredential(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	until := f.clock.Add(time.Hour)
	claim := identityClaim("agent-1")
	claim.ValidUntil = &until
	cred, err := f.issuer.IssueCredential(ctx, claim, "issuer-x")
	require.NoError(t, err)

	*f.clock = f.clock.Add(2 * time.Hour)
	_, err = f.issuer.GenerateProof(ctx, cred.ID, nil)
	require.ErrorIs(t, err, ErrExpired)
}

func TestDerivedProofs(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	rep, err := f.issuer.IssueReputationProof(ctx, "agent-1", 8000)
	require.NoError(t, err)
	require.Equal(t, "reputation-v1", rep.SchemaID)
	require.Equal(t, SystemIssuer, rep.IssuedBy)
	require.NotNil(t, rep.ExpiresAt)
	require.Equal(t, f.clock.Add(DerivedValidity), *rep.ExpiresAt)

	_, err = f.issuer.IssueReputationProof(ctx, "agent-2", 8000)
	require.Equal(t, CodeThresholdNotMet, xerrors.CodeOf(err))

	hist, err := f.issuer.IssueTransactionHistoryProof(ctx, "agent-1", 25)
	require.NoError(t, err)
	require.Equal(t, "transaction-history-v1", hist.SchemaID)

	_, err = f.issuer.IssueTransactionHistoryProof(ctx, "agent-1", 100)
	require.Equal(t, CodeThresholdNotMet, xerrors.CodeOf(err))

	svc, err := f.issuer.IssueServiceCompletionProof(ctx, "agent-1", "svc-1", "pay-ok")
	require.NoError(t, err)
	require.Equal(t, "0xowner", svc.IssuedBy)
	require.Nil(t, svc.ExpiresAt)

	_, err = f.issuer.IssueServiceCompletionProof(ctx, "agent-1", "svc-1", "pay-pending")
	require.Equal(t, CodeTransactionMismatch, xerrors.CodeOf(err))

	_, err = f.issuer.IssueServiceCompletionProof(ctx, "agent-2", "svc-1", "pay-ok")
	require.Equal(t, CodeTransactionMismatch, xerrors.CodeOf(err))

	_, err = f.issuer.IssueServiceCompletionProof(ctx, "agent-1", "svc-9", "pay-ok")
	require.Equal(t, CodeTransactionMismatch, xerrors.CodeOf(err))
}
