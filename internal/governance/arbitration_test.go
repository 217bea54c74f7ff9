package governance

import (
	"context"
	"testing"
	"time"

	"X402-Registry/internal/registry"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestAssignArbitratorGuards(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.engine.AssignArbitrator(ctx, "missing", "arbiter")
	require.ErrorIs(t, err, ErrDisputeNotFound)
	_, err = f.engine.AssignArbitrator(ctx, "dispute-2", "arbiter")
	require.ErrorIs(t, err, ErrDisputeNotOpen)
	_, err = f.engine.AssignArbitrator(ctx, "dispute-1", "ghost")
	require.ErrorIs(t, err, ErrArbitratorNotFound)
	_, err = f.engine.AssignArbitrator(ctx, "dispute-1", "junior")
	require.ErrorIs(t, err, ErrArbitratorReputation)

	dispute, err := f.reg.Dispute(ctx, "dispute-1")
	require.NoError(t, err)
	require.Equal(t, registry.DisputeOpen, dispute.Status)

	arbitration, err := f.engine.AssignArbitrator(ctx, "dispute-1", "arbiter")
	require.NoError(t, err)
	require.Equal(t, ArbitrationAssigned, arbitration.Status)

	dispute, err = f.reg.Dispute(ctx, "dispute-1")
	require.NoError(t, err)
	require.Equal(t, registry.DisputeInvestigating, dispute.Status)

	_, err = f.engine.AssignArbitrator(ctx, "dispute-1", "arbiter")
	require.ErrorIs(t, err, ErrDisputeNotOpen)
}

func TestCompleteArbitrationCreatesResolutionProposal(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	arbitration, err := f.engine.AssignArbitrator(ctx, "dispute-1", "arbiter")
	require.NoError(t, err)

	completed, proposal, err := f.engine.CompleteArbitration(ctx, arbitration.ID, "seller at fault",
		decimal.RequireFromString("2.5"), decimal.NewFromInt(30))
	require.NoError(t, err)
	require.Equal(t, ArbitrationCompleted, completed.Status)
	require.Equal(t, proposal.ID, completed.ProposalID)
	require.NotNil(t, completed.CompletedAt)

	require.Equal(t, "arbiter", proposal.ProposerID)
	require.Equal(t, TypeDisputeResolution, proposal.Type)
	require.Equal(t, "Resolution for Dispute dispute-1", proposal.Title)
	require.Equal(t, "seller at fault", proposal.Description)
	require.Equal(t, "dispute-1", proposal.DisputeID)
	require.Equal(t, f.clock.Add(72*time.Hour), proposal.VotingEndAt)
	require.Equal(t, int64(1000), proposal.QuorumRequired)

	stored, err := f.store.GetProposal(ctx, proposal.ID)
	require.NoError(t, err)
	require.Equal(t, StatusActive, stored.Status)

	_, _, err = f.engine.CompleteArbitration(ctx, arbitration.ID, "again", decimal.Zero, decimal.Zero)
	require.ErrorIs(t, err, ErrArbitrationCompleted)
	_, _, err = f.engine.CompleteArbitration(ctx, "missing", "x", decimal.Zero, decimal.Zero)
	require.ErrorIs(t, err, ErrArbitrationNotFound)

	f.vote(t, proposal.ID, "proposer", VoteFor, 1200)
	closed, err := f.engine.CloseProposal(ctx, proposal.ID)
	require.NoError(t, err)
	require.Equal(t, StatusExecuted, closed.Status)

	dispute, err := f.reg.Dispute(ctx, "dispute-1")
	require.NoError(t, err)
	require.Equal(t, registry.DisputeResolved, dispute.Status)
	require.True(t, dispute.Compensation.Equal(decimal.RequireFromString("2.5")))
	offender, err := f.reg.Agent(ctx, "offender")
	require.NoError(t, err)
	require.True(t, offender.StakedAmount.Equal(decimal.NewFromInt(70)))
}

func TestSweeperClosesExpiredProposals(t *testing.T) {
	dispatcher := &recordingDispatcher{}
	f := newFixture(t, WithDispatcher(dispatcher))
	p := f.propose(t, CreateProposalRequest{Type: TypeParameterChange, VotingDurationHours: 1})
	f.advance(2 * time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		f.engine.RunSweeper(ctx, 5*time.Millisecond)
		close(done)
	}()

	require.Eventually(t, func() bool {
		stored, err := f.store.GetProposal(context.Background(), p.ID)
		return err == nil && stored.Status == StatusRejected
	}, time.Second, 5*time.Millisecond)
	cancel()
	<-done
}

// staleListStore 返回预先拍下的 ACTIVE 列表，模拟列表与关闭之间的竞争。
type staleListStore struct {
	*MemoryStore
	snapshot []*Proposal
}

func (s *staleListStore) ListActive(context.Context) ([]*Proposal, error) {
	return s.snapshot, nil
}

func TestScheduleProposalClosuresCountsOnlyOwnDecisions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	first := f.propose(t, CreateProposalRequest{Type: TypeParameterChange, VotingDurationHours: 1})
	f.propose(t, CreateProposalRequest{Type: TypeParameterChange, VotingDurationHours: 1})
	f.advance(2 * time.Hour)

	snapshot, err := f.store.ListActive(ctx)
	require.NoError(t, err)
	require.Len(t, snapshot, 2)

	_, err = f.engine.CloseProposal(ctx, first.ID)
	require.NoError(t, err)

	sweeper := NewEngine(&staleListStore{MemoryStore: f.store, snapshot: snapshot}, f.reg,
		WithClock(func() time.Time { return *f.clock }))
	closed, err := sweeper.ScheduleProposalClosures(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, closed)

	closed, err = sweeper.ScheduleProposalClosures(ctx)
	require.NoError(t, err)
	require.Zero(t, closed)
}
