package governance

import (
	"context"
	"sort"
	"sync"
)

// Store 持久化提案、投票与仲裁。Update* 与 AddVote 在单个原子读改写中执行 fn。
type Store interface {
	CreateProposal(ctx context.Context, p *Proposal) error
	GetProposal(ctx context.Context, id string) (*Proposal, error)
	UpdateProposal(ctx context.Context, id string, fn func(*Proposal) error) (*Proposal, error)
	// AddVote 锁定提案并调用 fn 校验，随后插入投票并重算全部计票。
	AddVote(ctx context.Context, vote *Vote, fn func(*Proposal) error) (*Proposal, error)
	ListVotes(ctx context.Context, proposalID string) ([]*Vote, error)
	// ListActive 按 votingEndAt 升序返回全部 ACTIVE 提案。
	ListActive(ctx context.Context) ([]*Proposal, error)

	CreateArbitration(ctx context.Context, a *Arbitration) error
	GetArbitration(ctx context.Context, id string) (*Arbitration, error)
	// CompleteArbitration 锁定仲裁并调用 fn，fn 返回的提案与仲裁更新一起提交。
	CompleteArbitration(ctx context.Context, id string, fn func(*Arbitration) (*Proposal, error)) (*Arbitration, *Proposal, error)
	Close() error
}

// MemoryStore 是 Store 的内存实现。
type MemoryStore struct {
	mu           sync.Mutex
	proposals    map[string]*Proposal
	votes        map[string][]*Vote
	arbitrations map[string]*Arbitration
}

// NewMemoryStore 创建内存存储。
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		proposals:    make(map[string]*Proposal),
		votes:        make(map[string][]*Vote),
		arbitrations: make(map[string]*Arbitration),
	}
}

// CreateProposal 实现 Store 接口。
func (s *MemoryStore) CreateProposal(_ context.Context, p *Proposal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.proposals[p.ID] = cloneProposal(p)
	return nil
}

// GetProposal 实现 Store 接口。
func (s *MemoryStore) GetProposal(_ context.Context, id string) (*Proposal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.proposals[id]
	if !ok {
		return nil, ErrProposalNotFound
	}
	return cloneProposal(p), nil
}

// UpdateProposal 实现 Store 接口。
func (s *MemoryStore) UpdateProposal(_ context.Context, id string, fn func(*Proposal) error) (*Proposal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.proposals[id]
	if !ok {
		return nil, ErrProposalNotFound
	}
	p := cloneProposal(current)
	if err := fn(p); err != nil {
		return nil, err
	}
	s.proposals[id] = cloneProposal(p)
	return p, nil
}

// AddVote 实现 Store 接口。
func (s *MemoryStore) AddVote(_ context.Context, vote *Vote, fn func(*Proposal) error) (*Proposal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.proposals[vote.ProposalID]
	if !ok {
		return nil, ErrProposalNotFound
	}
	p := cloneProposal(current)
	if err := fn(p); err != nil {
		return nil, err
	}
	for _, existing := range s.votes[vote.ProposalID] {
		if existing.VoterID == vote.VoterID {
			return nil, ErrAlreadyVoted
		}
	}
	stored := *vote
	votes := append(s.votes[vote.ProposalID], &stored)
	s.votes[vote.ProposalID] = votes
	applyTally(p, votes)
	s.proposals[p.ID] = cloneProposal(p)
	return p, nil
}

// ListVotes 实现 Store 接口。
func (s *MemoryStore) ListVotes(_ context.Context, proposalID string) ([]*Vote, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Vote, 0, len(s.votes[proposalID]))
	for _, v := range s.votes[proposalID] {
		copied := *v
		out = append(out, &copied)
	}
	return out, nil
}

// ListActive 实现 Store 接口。
func (s *MemoryStore) ListActive(_ context.Context) ([]*Proposal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Proposal, 0)
	for _, p := range s.proposals {
		if p.Status == StatusActive {
			out = append(out, cloneProposal(p))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].VotingEndAt.Equal(out[j].VotingEndAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].VotingEndAt.Before(out[j].VotingEndAt)
	})
	return out, nil
}

// CreateArbitration 实现 Store 接口。
func (s *MemoryStore) CreateArbitration(_ context.Context, a *Arbitration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.arbitrations[a.ID] = cloneArbitration(a)
	return nil
}

// GetArbitration 实现 Store 接口。
func (s *MemoryStore) GetArbitration(_ context.Context, id string) (*Arbitration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.arbitrations[id]
	if !ok {
		return nil, ErrArbitrationNotFound
	}
	return cloneArbitration(a), nil
}

// CompleteArbitration 实现 Store 接口。
func (s *MemoryStore) CompleteArbitration(_ context.Context, id string, fn func(*Arbitration) (*Proposal, error)) (*Arbitration, *Proposal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.arbitrations[id]
	if !ok {
		return nil, nil, ErrArbitrationNotFound
	}
	a := cloneArbitration(current)
	p, err := fn(a)
	if err != nil {
		return nil, nil, err
	}
	s.arbitrations[id] = cloneArbitration(a)
	if p != nil {
		s.proposals[p.ID] = cloneProposal(p)
	}
	return a, p, nil
}

// Close 实现 Store 接口。
func (s *MemoryStore) Close() error { return nil }

// applyTally 由全部投票重算计票，保证 for+against+abstain == total。
func applyTally(p *Proposal, votes []*Vote) {
	var forVotes, against, abstain int64
	for _, v := range votes {
		switch v.VoteType {
		case VoteFor:
			forVotes += v.VotingPower
		case VoteAgainst:
			against += v.VotingPower
		case VoteAbstain:
			abstain += v.VotingPower
		}
	}
	p.VotesFor = forVotes
	p.VotesAgainst = against
	p.VotesAbstain = abstain
	p.TotalVotes = forVotes + against + abstain
}
