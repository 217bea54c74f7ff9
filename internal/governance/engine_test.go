package governance

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	xerrors "X402-Registry/internal/errors"
	"X402-Registry/internal/observability/alerting"
	"X402-Registry/internal/registry"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

type recordingAlerts struct {
	mu     sync.Mutex
	events []alerting.Event
}

func (r *recordingAlerts) Notify(_ context.Context, event alerting.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

func (r *recordingAlerts) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

type recordingDispatcher struct {
	mu  sync.Mutex
	ids []string
}

func (d *recordingDispatcher) Dispatch(_ context.Context, id string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.ids = append(d.ids, id)
	return nil
}

type fixture struct {
	engine *Engine
	store  *MemoryStore
	reg    *registry.MemoryRegistry
	alerts *recordingAlerts
	clock  *time.Time
}

// Total stake across the seeded agents is 10000.
func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	reg := registry.NewMemoryRegistry()
	require.NoError(t, reg.ApplySeed(context.Background(), registry.Seed{
		Agents: []registry.Agent{
			{ID: "proposer", WalletAddress: "0xp", ReputationScore: 9000, StakedAmount: decimal.NewFromInt(5000)},
			{ID: "arbiter", WalletAddress: "0xarb", ReputationScore: 8500, StakedAmount: decimal.NewFromInt(2000)},
			{ID: "junior", WalletAddress: "0xj", ReputationScore: 7500, StakedAmount: decimal.NewFromInt(1000)},
			{ID: "voter-a", WalletAddress: "0xa", ReputationScore: 6000, StakedAmount: decimal.NewFromInt(1000)},
			{ID: "voter-b", WalletAddress: "0xb", ReputationScore: 4000, StakedAmount: decimal.NewFromInt(900)},
			{ID: "offender", WalletAddress: "0xo", ReputationScore: 5000, StakedAmount: decimal.NewFromInt(100)},
		},
		Services: []registry.Service{{ID: "svc-1", Name: "geo", OwnerWalletAddress: "0xowner"}},
		Disputes: []registry.Dispute{
			{ID: "dispute-1", AgentID: "offender", ServiceID: "svc-1"},
			{ID: "dispute-2", AgentID: "offender", ServiceID: "svc-1", Status: registry.DisputeResolved},
		},
	}))

	now := time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)
	f := &fixture{store: NewMemoryStore(), reg: reg, alerts: &recordingAlerts{}, clock: &now}
	base := []Option{
		WithClock(func() time.Time { return *f.clock }),
		WithAlertDispatcher(f.alerts),
	}
	f.engine = NewEngine(f.store, reg, append(base, opts...)...)
	return f
}

func (f *fixture) advance(d time.Duration) {
	*f.clock = f.clock.Add(d)
}

func (f *fixture) propose(t *testing.T, req CreateProposalRequest) *Proposal {
	t.Helper()
	if req.ProposerID == "" {
		req.ProposerID = "proposer"
	}
	if req.VotingDurationHours == 0 {
		req.VotingDurationHours = 24
	}
	p, err := f.engine.CreateProposal(context.Background(), req)
	require.NoError(t, err)
	return p
}

func (f *fixture) vote(t *testing.T, proposalID, voterID string, vt VoteType, power int64) {
	t.Helper()
	_, err := f.engine.CastVote(context.Background(), CastVoteRequest{
		ProposalID: proposalID, VoterID: voterID, VoteType: vt, VotingPower: power, Signature: "sig-" + voterID,
	})
	require.NoError(t, err)
}

func TestCreateProposalComputesQuorum(t *testing.T) {
	f := newFixture(t)
	cases := map[ProposalType]int64{
		TypeDisputeResolution:   1000,
		TypeAgentSuspension:     2000,
		TypeServiceSuspension:   2000,
		TypeParameterChange:     3000,
		TypeTreasuryAllocation:  4000,
		ProposalType("GENERAL"): 1500,
	}
	for typ, quorum := range cases {
		p := f.propose(t, CreateProposalRequest{Type: typ, Title: string(typ)})
		require.Equal(t, quorum, p.QuorumRequired, typ)
		require.Equal(t, StatusActive, p.Status)
		require.Equal(t, f.clock.Add(24*time.Hour), p.VotingEndAt)
	}
}

func TestCreateProposalRejectsProposers(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.engine.CreateProposal(ctx, CreateProposalRequest{ProposerID: "ghost", Type: TypeParameterChange, VotingDurationHours: 1})
	require.ErrorIs(t, err, ErrProposerNotFound)
	_, err = f.engine.CreateProposal(ctx, CreateProposalRequest{ProposerID: "voter-a", Type: TypeParameterChange, VotingDurationHours: 1})
	require.ErrorIs(t, err, ErrInsufficientReputation)
	_, err = f.engine.CreateProposal(ctx, CreateProposalRequest{ProposerID: "proposer", Type: TypeParameterChange})
	require.ErrorIs(t, err, ErrInvalidProposal)
	_, err = f.engine.CreateProposal(ctx, CreateProposalRequest{
		ProposerID: "proposer", Type: TypeDisputeResolution, DisputeID: "dispute-1", ProposedAction: "{", VotingDurationHours: 1,
	})
	require.ErrorIs(t, err, ErrInvalidProposal)
}

func TestTallyInvariantHolds(t *testing.T) {
	f := newFixture(t)
	p := f.propose(t, CreateProposalRequest{Type: TypeParameterChange})

	f.vote(t, p.ID, "voter-a", VoteFor, 300)
	f.vote(t, p.ID, "voter-b", VoteAgainst, 200)
	f.vote(t, p.ID, "junior", VoteAbstain, 50)

	stored, err := f.store.GetProposal(context.Background(), p.ID)
	require.NoError(t, err)
	require.Equal(t, int64(300), stored.VotesFor)
	require.Equal(t, int64(200), stored.VotesAgainst)
	require.Equal(t, int64(50), stored.VotesAbstain)
	require.Equal(t, stored.VotesFor+stored.VotesAgainst+stored.VotesAbstain, stored.TotalVotes)
}

func TestDuplicateVoteRejectedWithoutChangingTallies(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.propose(t, CreateProposalRequest{Type: TypeParameterChange})
	f.vote(t, p.ID, "voter-a", VoteFor, 300)

	_, err := f.engine.CastVote(ctx, CastVoteRequest{ProposalID: p.ID, VoterID: "voter-a", VoteType: VoteAgainst, VotingPower: 999})
	require.ErrorIs(t, err, ErrAlreadyVoted)

	stored, err := f.store.GetProposal(ctx, p.ID)
	require.NoError(t, err)
	require.Equal(t, int64(300), stored.TotalVotes)
	require.Equal(t, int64(300), stored.VotesFor)
	require.Equal(t, int64(0), stored.VotesAgainst)
}

func TestCastVoteValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.propose(t, CreateProposalRequest{Type: TypeParameterChange})

	_, err := f.engine.CastVote(ctx, CastVoteRequest{ProposalID: "missing", VoterID: "voter-a", VoteType: VoteFor})
	require.ErrorIs(t, err, ErrProposalNotFound)
	_, err = f.engine.CastVote(ctx, CastVoteRequest{ProposalID: p.ID, VoterID: "ghost", VoteType: VoteFor})
	require.ErrorIs(t, err, ErrVoterNotFound)
	_, err = f.engine.CastVote(ctx, CastVoteRequest{ProposalID: p.ID, VoterID: "voter-a", VoteType: "MAYBE"})
	require.ErrorIs(t, err, ErrInvalidVote)
	_, err = f.engine.CastVote(ctx, CastVoteRequest{ProposalID: p.ID, VoterID: "voter-a", VoteType: VoteFor, VotingPower: -1})
	require.ErrorIs(t, err, ErrInvalidVote)
}

func TestCloseProposalOutcomes(t *testing.T) {
	dispatcher := &recordingDispatcher{}
	f := newFixture(t, WithDispatcher(dispatcher))
	ctx := context.Background()

	passing := f.propose(t, CreateProposalRequest{Type: TypeDisputeResolution})
	require.Equal(t, int64(1000), passing.QuorumRequired)
	f.vote(t, passing.ID, "voter-a", VoteFor, 1200)
	closed, err := f.engine.CloseProposal(ctx, passing.ID)
	require.NoError(t, err)
	require.Equal(t, StatusPassed, closed.Status)

	rejected := f.propose(t, CreateProposalRequest{Type: TypeDisputeResolution})
	f.vote(t, rejected.ID, "voter-a", VoteFor, 400)
	f.vote(t, rejected.ID, "voter-b", VoteAgainst, 800)
	closed, err = f.engine.CloseProposal(ctx, rejected.ID)
	require.NoError(t, err)
	require.Equal(t, int64(1200), closed.TotalVotes)
	require.Equal(t, StatusRejected, closed.Status)

	underQuorum := f.propose(t, CreateProposalRequest{Type: TypeDisputeResolution})
	f.vote(t, underQuorum.ID, "voter-a", VoteFor, 999)
	closed, err = f.engine.CloseProposal(ctx, underQuorum.ID)
	require.NoError(t, err)
	require.Equal(t, StatusRejected, closed.Status)

	require.Equal(t, []string{passing.ID}, dispatcher.ids)
}

func TestCloseProposalIsIdempotent(t *testing.T) {
	dispatcher := &recordingDispatcher{}
	f := newFixture(t, WithDispatcher(dispatcher))
	ctx := context.Background()
	p := f.propose(t, CreateProposalRequest{Type: TypeDisputeResolution})
	f.vote(t, p.ID, "voter-a", VoteFor, 1200)

	first, err := f.engine.CloseProposal(ctx, p.ID)
	require.NoError(t, err)
	second, err := f.engine.CloseProposal(ctx, p.ID)
	require.NoError(t, err)
	require.Equal(t, first.Status, second.Status)
	require.Equal(t, first.UpdatedAt, second.UpdatedAt)
	require.Len(t, dispatcher.ids, 1)

	_, err = f.engine.CastVote(ctx, CastVoteRequest{ProposalID: p.ID, VoterID: "voter-b", VoteType: VoteFor, VotingPower: 1})
	require.ErrorIs(t, err, ErrProposalNotActive)
}

func TestVoteAfterWindowClosesProposal(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.propose(t, CreateProposalRequest{Type: TypeParameterChange, VotingDurationHours: 1})
	f.vote(t, p.ID, "voter-a", VoteFor, 10)

	f.advance(2 * time.Hour)
	_, err := f.engine.CastVote(ctx, CastVoteRequest{ProposalID: p.ID, VoterID: "voter-b", VoteType: VoteFor, VotingPower: 5000})
	require.ErrorIs(t, err, ErrVotingClosed)

	stored, err := f.store.GetProposal(ctx, p.ID)
	require.NoError(t, err)
	require.Equal(t, StatusRejected, stored.Status)
	require.Equal(t, int64(10), stored.TotalVotes)
}

func TestDisputeResolutionExecutesOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.propose(t, CreateProposalRequest{
		Type:           TypeDisputeResolution,
		DisputeID:      "dispute-1",
		ProposedAction: `{"resolution":"refund buyer","slashAmount":40,"compensation":"5"}`,
	})
	f.vote(t, p.ID, "proposer", VoteFor, 1500)

	closed, err := f.engine.CloseProposal(ctx, p.ID)
	require.NoError(t, err)
	require.Equal(t, StatusExecuted, closed.Status)
	require.NotNil(t, closed.ExecutedAt)

	dispute, err := f.reg.Dispute(ctx, "dispute-1")
	require.NoError(t, err)
	require.Equal(t, registry.DisputeResolved, dispute.Status)
	require.Equal(t, "refund buyer", dispute.Resolution)

	offender, err := f.reg.Agent(ctx, "offender")
	require.NoError(t, err)
	require.True(t, offender.StakedAmount.Equal(decimal.NewFromInt(60)))
	require.True(t, offender.SlashedAmount.Equal(decimal.NewFromInt(40)))
	require.Equal(t, 4000, offender.ReputationScore)
	require.Equal(t, 1, offender.DisputesLost)

	require.NoError(t, f.engine.ExecuteProposal(ctx, p.ID))
	offender, err = f.reg.Agent(ctx, "offender")
	require.NoError(t, err)
	require.Equal(t, 1, offender.DisputesLost)
}

func TestExecuteSkipsAlreadyResolvedDispute(t *testing.T) {
	dispatcher := &recordingDispatcher{}
	f := newFixture(t, WithDispatcher(dispatcher))
	ctx := context.Background()
	p := f.propose(t, CreateProposalRequest{
		Type:           TypeDisputeResolution,
		DisputeID:      "dispute-2",
		ProposedAction: `{"resolution":"late","slashAmount":10,"compensation":0}`,
	})
	f.vote(t, p.ID, "proposer", VoteFor, 1500)
	_, err := f.engine.CloseProposal(ctx, p.ID)
	require.NoError(t, err)

	require.NoError(t, f.engine.ExecuteProposal(ctx, p.ID))
	stored, err := f.store.GetProposal(ctx, p.ID)
	require.NoError(t, err)
	require.Equal(t, StatusExecuted, stored.Status)

	offender, err := f.reg.Agent(ctx, "offender")
	require.NoError(t, err)
	require.Equal(t, 0, offender.DisputesLost)
}

func TestSuspensionProposals(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	agentVote := f.propose(t, CreateProposalRequest{Type: TypeAgentSuspension, TargetAgentID: "offender"})
	f.vote(t, agentVote.ID, "proposer", VoteFor, 2500)
	closed, err := f.engine.CloseProposal(ctx, agentVote.ID)
	require.NoError(t, err)
	require.Equal(t, StatusExecuted, closed.Status)
	agent, err := f.reg.Agent(ctx, "offender")
	require.NoError(t, err)
	require.Equal(t, registry.AgentSuspended, agent.Status)

	serviceVote := f.propose(t, CreateProposalRequest{Type: TypeServiceSuspension, TargetServiceID: "svc-1"})
	f.vote(t, serviceVote.ID, "proposer", VoteFor, 2500)
	_, err = f.engine.CloseProposal(ctx, serviceVote.ID)
	require.NoError(t, err)
	svc, err := f.reg.Service(ctx, "svc-1")
	require.NoError(t, err)
	require.Equal(t, registry.ServiceSuspended, svc.Status)
}

func TestExecutionFailureLeavesProposalPassed(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.propose(t, CreateProposalRequest{Type: TypeAgentSuspension, TargetAgentID: "ghost"})
	f.vote(t, p.ID, "proposer", VoteFor, 2500)

	closed, err := f.engine.CloseProposal(ctx, p.ID)
	require.NoError(t, err)
	require.Equal(t, StatusPassed, closed.Status)
	require.Nil(t, closed.ExecutedAt)
	require.Equal(t, 1, f.alerts.count())

	err = f.engine.ExecuteProposal(ctx, p.ID)
	require.ErrorIs(t, err, ErrExecutionFailed)
	require.True(t, xerrors.AttributesOf(xerrors.CodeOf(err)).Retryable)
	require.Equal(t, 2, f.alerts.count())
}

func TestGetVotingPower(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	power, err := f.engine.GetVotingPower(ctx, "voter-a")
	require.NoError(t, err)
	require.Equal(t, int64(1000*100+60), power)

	power, err = f.engine.GetVotingPower(ctx, "ghost")
	require.NoError(t, err)
	require.Zero(t, power)

	require.Equal(t, int64(1310), VotingPower(decimal.RequireFromString("12.345"), 7550))
}

func TestVotingPowerCheck(t *testing.T) {
	f := newFixture(t, WithVotingPowerCheck(true))
	ctx := context.Background()
	p := f.propose(t, CreateProposalRequest{Type: TypeParameterChange})

	_, err := f.engine.CastVote(ctx, CastVoteRequest{ProposalID: p.ID, VoterID: "voter-a", VoteType: VoteFor, VotingPower: 1})
	require.ErrorIs(t, err, ErrInvalidVote)

	vote, err := f.engine.CastVote(ctx, CastVoteRequest{ProposalID: p.ID, VoterID: "voter-a", VoteType: VoteFor, VotingPower: 100060})
	require.NoError(t, err)
	require.Equal(t, int64(100060), vote.VotingPower)
}

func TestScheduleProposalClosures(t *testing.T) {
	dispatcher := &recordingDispatcher{}
	f := newFixture(t, WithDispatcher(dispatcher))
	ctx := context.Background()
	short := f.propose(t, CreateProposalRequest{Type: TypeDisputeResolution, VotingDurationHours: 1})
	long := f.propose(t, CreateProposalRequest{Type: TypeDisputeResolution, VotingDurationHours: 48})
	f.vote(t, short.ID, "voter-a", VoteFor, 1500)

	f.advance(2 * time.Hour)
	closed, err := f.engine.ScheduleProposalClosures(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, closed)

	stored, err := f.store.GetProposal(ctx, short.ID)
	require.NoError(t, err)
	require.Equal(t, StatusPassed, stored.Status)
	stored, err = f.store.GetProposal(ctx, long.ID)
	require.NoError(t, err)
	require.Equal(t, StatusActive, stored.Status)
	require.Equal(t, []string{short.ID}, dispatcher.ids)
}

func TestActiveProposalsAndDetails(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	late := f.propose(t, CreateProposalRequest{Type: TypeParameterChange, VotingDurationHours: 10})
	early := f.propose(t, CreateProposalRequest{Type: TypeParameterChange, VotingDurationHours: 5})
	expired := f.propose(t, CreateProposalRequest{Type: TypeParameterChange, VotingDurationHours: 1})
	f.vote(t, early.ID, "voter-a", VoteFor, 7)

	f.advance(2 * time.Hour)
	active, err := f.engine.ActiveProposals(ctx)
	require.NoError(t, err)
	require.Len(t, active, 2)
	require.Equal(t, early.ID, active[0].Proposal.ID)
	require.Equal(t, late.ID, active[1].Proposal.ID)
	require.Len(t, active[0].Votes, 1)
	for _, view := range active {
		require.NotEqual(t, expired.ID, view.Proposal.ID)
	}

	details, err := f.engine.ProposalDetails(ctx, early.ID)
	require.NoError(t, err)
	require.Len(t, details.Votes, 1)
	require.Equal(t, "0xa", details.Votes[0].VoterWalletAddress)
	require.Equal(t, 6000, details.Votes[0].VoterReputation)

	_, err = f.engine.ProposalDetails(ctx, "missing")
	require.ErrorIs(t, err, ErrProposalNotFound)
}

func TestConcurrentVotesKeepTallyConsistent(t *testing.T) {
	reg := registry.NewMemoryRegistry()
	agents := []registry.Agent{{ID: "proposer", ReputationScore: 9000, StakedAmount: decimal.NewFromInt(100)}}
	for i := 0; i < 40; i++ {
		agents = append(agents, registry.Agent{ID: fmt.Sprintf("v-%d", i)})
	}
	require.NoError(t, reg.ApplySeed(context.Background(), registry.Seed{Agents: agents}))
	store := NewMemoryStore()
	engine := NewEngine(store, reg)
	p, err := engine.CreateProposal(context.Background(), CreateProposalRequest{
		ProposerID: "proposer", Type: TypeParameterChange, VotingDurationHours: 1,
	})
	require.NoError(t, err)

	types := []VoteType{VoteFor, VoteAgainst, VoteAbstain}
	var wg sync.WaitGroup
	for i := 0; i < 40; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			// every voter submits twice; only the first may count.
			for attempt := 0; attempt < 2; attempt++ {
				_, _ = engine.CastVote(context.Background(), CastVoteRequest{
					ProposalID: p.ID, VoterID: fmt.Sprintf("v-%d", i), VoteType: types[i%3], VotingPower: int64(i + 1),
				})
			}
		}(i)
	}
	wg.Wait()

	stored, err := store.GetProposal(context.Background(), p.ID)
	require.NoError(t, err)
	require.Equal(t, int64(40*41/2), stored.TotalVotes)
	require.Equal(t, stored.VotesFor+stored.VotesAgainst+stored.VotesAbstain, stored.TotalVotes)
	votes, err := store.ListVotes(context.Background(), p.ID)
	require.NoError(t, err)
	require.Len(t, votes, 40)
}
