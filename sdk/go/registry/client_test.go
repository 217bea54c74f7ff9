package registry

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"X402-Registry/internal/accumulator"
	"X402-Registry/internal/api"
	"X402-Registry/internal/credential"
	"X402-Registry/internal/governance"
	"X402-Registry/internal/multisig"
	registrystore "X402-Registry/internal/registry"
	"X402-Registry/internal/web3"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

type env struct {
	client *Client
	ledger *web3.MemoryLedger
}

func newEnv(t *testing.T, agents ...registrystore.Agent) *env {
	t.Helper()
	reg := registrystore.NewMemoryRegistry()
	require.NoError(t, reg.ApplySeed(context.Background(), registrystore.Seed{Agents: agents}))
	ledger := web3.NewMemoryLedger()
	handler := api.NewServer(":0", api.Services{
		Governance:  governance.NewEngine(governance.NewMemoryStore(), reg),
		Multisig:    multisig.NewService(multisig.NewMemoryStore(), reg, ledger),
		Credentials: credential.NewIssuer(credential.NewMemoryStore(), accumulator.NewMemoryStore(), reg),
	}).Handler()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	client, err := NewClient(srv.URL, srv.Client())
	require.NoError(t, err)
	return &env{client: client, ledger: ledger}
}

func TestProposalRoundTrip(t *testing.T) {
	e := newEnv(t,
		registrystore.Agent{ID: "agent-1", ReputationScore: 8500, StakedAmount: decimal.NewFromInt(6000)},
		registrystore.Agent{ID: "agent-2", ReputationScore: 5000},
	)
	ctx := context.Background()

	p, err := e.client.CreateProposal(ctx, NewProposal{
		ProposerID:          "agent-1",
		Type:                "AGENT_SUSPENSION",
		Title:               "suspend agent-2",
		TargetAgentID:       "agent-2",
		VotingDurationHours: 24,
	})
	require.NoError(t, err)
	require.Equal(t, "ACTIVE", p.Status)

	vote, err := e.client.CastVote(ctx, p.ID, Ballot{VoterID: "agent-1", VoteType: "FOR", VotingPower: 5100})
	require.NoError(t, err)
	require.Equal(t, p.ID, vote.ProposalID)

	active, err := e.client.ActiveProposals(ctx)
	require.NoError(t, err)
	require.Len(t, active, 1)

	view, err := e.client.Proposal(ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, view.Votes, 1)
	require.EqualValues(t, 5100, view.Proposal.VotesFor)

	closed, err := e.client.CloseProposal(ctx, p.ID)
	require.NoError(t, err)
	require.Equal(t, "EXECUTED", closed.Status)

	power, err := e.client.VotingPower(ctx, "agent-1")
	require.NoError(t, err)
	require.Positive(t, power)
}

func TestErrorsDecodeIntoAPIError(t *testing.T) {
	e := newEnv(t, registrystore.Agent{ID: "agent-1", ReputationScore: 8500})

	_, err := e.client.Proposal(context.Background(), "missing")
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	require.Equal(t, http.StatusNotFound, apiErr.StatusCode)
	require.NotEmpty(t, apiErr.Code)

	_, err = e.client.CreateProposal(context.Background(), NewProposal{ProposerID: "agent-1", Type: "PARAMETER_CHANGE"})
	require.True(t, errors.As(err, &apiErr))
	require.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
}

func TestWalletSignAndExecute(t *testing.T) {
	k1, err := crypto.GenerateKey()
	require.NoError(t, err)
	k2, err := crypto.GenerateKey()
	require.NoError(t, err)
	a1 := crypto.PubkeyToAddress(k1.PublicKey).Hex()
	a2 := crypto.PubkeyToAddress(k2.PublicKey).Hex()
	e := newEnv(t,
		registrystore.Agent{ID: "agent-1", WalletAddress: a1, ReputationScore: 5000},
		registrystore.Agent{ID: "agent-2", WalletAddress: a2, ReputationScore: 5000},
	)
	ctx := context.Background()

	w, err := e.client.CreateWallet(ctx, NewWallet{Signers: []string{a1, a2}, Threshold: 2, AgentIDs: []string{"agent-1", "agent-2"}})
	require.NoError(t, err)
	e.ledger.Fund(w.Address, decimal.NewFromInt(10))

	tx, err := e.client.CreateTransaction(ctx, w.ID, Transfer{InitiatorID: "agent-1", Recipient: "0xrecipient", Amount: decimal.NewFromInt(3)})
	require.NoError(t, err)
	require.Equal(t, 2, tx.SignaturesRequired)

	pending, err := e.client.PendingTransactions(ctx, w.ID)
	require.NoError(t, err)
	require.Len(t, pending, 1)

	sig, err := Sign(tx, "agent-1", k1)
	require.NoError(t, err)
	tx, err = e.client.SignTransaction(ctx, tx.ID, sig)
	require.NoError(t, err)
	require.Equal(t, "PARTIALLY_SIGNED", tx.Status)

	sig, err = Sign(tx, "agent-2", k2)
	require.NoError(t, err)
	tx, err = e.client.SignTransaction(ctx, tx.ID, sig)
	require.NoError(t, err)
	require.Equal(t, "EXECUTED", tx.Status)
	require.NotEmpty(t, tx.TxSignature)
}

func TestCredentialProofVerification(t *testing.T) {
	e := newEnv(t, registrystore.Agent{ID: "agent-1", ReputationScore: 7000})
	ctx := context.Background()

	cred, err := e.client.IssueCredential(ctx, Claim{
		AgentID:        "agent-1",
		CredentialType: "IDENTITY_VERIFICATION",
		Attributes:     map[string]any{"kyc": "level-2"},
		IssuerID:       "issuer-1",
	})
	require.NoError(t, err)
	require.NotEmpty(t, cred.Commitment)

	proof, err := e.client.GenerateProof(ctx, cred.ID, []string{"kyc"})
	require.NoError(t, err)
	require.Equal(t, cred.Commitment, proof.Commitment)

	ok, err := e.client.VerifyProof(ctx, *proof, cred.SchemaID, cred.Nullifier)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = e.client.VerifyProof(ctx, *proof, cred.SchemaID, "other-nullifier")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestAccessTokenIsSent(t *testing.T) {
	var got string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Get("Authorization")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"votingPower":42}`))
	}))
	defer srv.Close()

	client, err := NewClient(srv.URL+"/base", srv.Client())
	require.NoError(t, err)
	client.SetAccessToken("abc")
	power, err := client.VotingPower(context.Background(), "agent-1")
	require.NoError(t, err)
	require.EqualValues(t, 42, power)
	require.Equal(t, "Bearer abc", got)
}
