package governance

import (
	"context"
	"database/sql"
	stdErrors "errors"

	xerrors "X402-Registry/internal/errors"
	sqlstore "X402-Registry/internal/storage/mysql"
)

// MySQLStore 使用 MySQL 保存提案、投票与仲裁。
type MySQLStore struct {
	db *sql.DB
}

// NewMySQLStore 使用已迁移的连接池创建 MySQLStore。
func NewMySQLStore(db *sql.DB) *MySQLStore {
	return &MySQLStore{db: db}
}

const (
	proposalColumns = `id, proposer_id, type, title, COALESCE(description, ''), dispute_id, target_agent_id, target_service_id,
        COALESCE(proposed_action, ''), voting_start_at, voting_end_at, quorum_required, total_votes, votes_for, votes_against,
        votes_abstain, status, executed_at, created_at, updated_at`
	voteColumns        = `id, proposal_id, voter_id, vote_type, voting_power, COALESCE(reason, ''), COALESCE(signature, ''), created_at`
	arbitrationColumns = `id, dispute_id, arbitrator_id, status, COALESCE(ruling, ''), compensation, slash_recommendation,
        proposal_id, created_at, completed_at`
)

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProposal(row rowScanner) (*Proposal, error) {
	var p Proposal
	var typ, status string
	var executedAt sql.NullTime
	if err := row.Scan(&p.ID, &p.ProposerID, &typ, &p.Title, &p.Description, &p.DisputeID, &p.TargetAgentID,
		&p.TargetServiceID, &p.ProposedAction, &p.VotingStartAt, &p.VotingEndAt, &p.QuorumRequired, &p.TotalVotes,
		&p.VotesFor, &p.VotesAgainst, &p.VotesAbstain, &status, &executedAt, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	p.Type = ProposalType(typ)
	p.Status = ProposalStatus(status)
	if executedAt.Valid {
		at := executedAt.Time
		p.ExecutedAt = &at
	}
	return &p, nil
}

func scanVote(row rowScanner) (*Vote, error) {
	var v Vote
	var typ string
	if err := row.Scan(&v.ID, &v.ProposalID, &v.VoterID, &typ, &v.VotingPower, &v.Reason, &v.Signature, &v.CreatedAt); err != nil {
		return nil, err
	}
	v.VoteType = VoteType(typ)
	return &v, nil
}

func scanArbitration(row rowScanner) (*Arbitration, error) {
	var a Arbitration
	var status string
	var completedAt sql.NullTime
	if err := row.Scan(&a.ID, &a.DisputeID, &a.ArbitratorID, &status, &a.Ruling, &a.Compensation, &a.SlashRecommendation,
		&a.ProposalID, &a.CreatedAt, &completedAt); err != nil {
		return nil, err
	}
	a.Status = ArbitrationStatus(status)
	if completedAt.Valid {
		at := completedAt.Time
		a.CompletedAt = &at
	}
	return &a, nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func insertProposal(ctx context.Context, db execer, p *Proposal) error {
	_, err := db.ExecContext(ctx, `INSERT INTO governance_proposals
        (id, proposer_id, type, title, description, dispute_id, target_agent_id, target_service_id, proposed_action,
         voting_start_at, voting_end_at, quorum_required, total_votes, votes_for, votes_against, votes_abstain, status,
         executed_at, created_at, updated_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.ProposerID, string(p.Type), p.Title, p.Description, p.DisputeID, p.TargetAgentID, p.TargetServiceID,
		p.ProposedAction, p.VotingStartAt, p.VotingEndAt, p.QuorumRequired, p.TotalVotes, p.VotesFor, p.VotesAgainst,
		p.VotesAbstain, string(p.Status), p.ExecutedAt, p.CreatedAt, p.UpdatedAt)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "插入提案失败")
	}
	return nil
}

func writeProposal(ctx context.Context, db execer, p *Proposal) error {
	_, err := db.ExecContext(ctx, `UPDATE governance_proposals SET total_votes = ?, votes_for = ?, votes_against = ?,
        votes_abstain = ?, status = ?, executed_at = ?, updated_at = ? WHERE id = ?`,
		p.TotalVotes, p.VotesFor, p.VotesAgainst, p.VotesAbstain, string(p.Status), p.ExecutedAt, p.UpdatedAt, p.ID)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "更新提案失败")
	}
	return nil
}

func lockProposal(ctx context.Context, tx *sql.Tx, id string) (*Proposal, error) {
	p, err := scanProposal(tx.QueryRowContext(ctx, `SELECT `+proposalColumns+` FROM governance_proposals WHERE id = ? FOR UPDATE`, id))
	if err != nil {
		if stdErrors.Is(err, sql.ErrNoRows) {
			return nil, ErrProposalNotFound
		}
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "锁定提案失败")
	}
	return p, nil
}

// CreateProposal 实现 Store 接口。
func (s *MySQLStore) CreateProposal(ctx context.Context, p *Proposal) error {
	return insertProposal(ctx, s.db, p)
}

// GetProposal 实现 Store 接口。
func (s *MySQLStore) GetProposal(ctx context.Context, id string) (*Proposal, error) {
	p, err := scanProposal(s.db.QueryRowContext(ctx, `SELECT `+proposalColumns+` FROM governance_proposals WHERE id = ?`, id))
	if err != nil {
		if stdErrors.Is(err, sql.ErrNoRows) {
			return nil, ErrProposalNotFound
		}
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "查询提案失败")
	}
	return p, nil
}

// UpdateProposal 实现 Store 接口。
func (s *MySQLStore) UpdateProposal(ctx context.Context, id string, fn func(*Proposal) error) (*Proposal, error) {
	var out *Proposal
	err := sqlstore.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		p, err := lockProposal(ctx, tx, id)
		if err != nil {
			return err
		}
		if err := fn(p); err != nil {
			return err
		}
		if err := writeProposal(ctx, tx, p); err != nil {
			return err
		}
		out = p
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// AddVote 实现 Store 接口。
func (s *MySQLStore) AddVote(ctx context.Context, vote *Vote, fn func(*Proposal) error) (*Proposal, error) {
	var out *Proposal
	err := sqlstore.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		p, err := lockProposal(ctx, tx, vote.ProposalID)
		if err != nil {
			return err
		}
		if err := fn(p); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO governance_votes (`+voteColumnsInsert+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			vote.ID, vote.ProposalID, vote.VoterID, string(vote.VoteType), vote.VotingPower, vote.Reason, vote.Signature,
			vote.CreatedAt); err != nil {
			if sqlstore.IsDuplicateEntry(err) {
				return ErrAlreadyVoted
			}
			return xerrors.Wrap(xerrors.CodeStorageFailure, err, "插入投票失败")
		}

		rows, err := tx.QueryContext(ctx, `SELECT `+voteColumns+` FROM governance_votes WHERE proposal_id = ?`, vote.ProposalID)
		if err != nil {
			return xerrors.Wrap(xerrors.CodeStorageFailure, err, "查询投票失败")
		}
		votes, err := collectVotes(rows)
		if err != nil {
			return err
		}
		applyTally(p, votes)
		if err := writeProposal(ctx, tx, p); err != nil {
			return err
		}
		out = p
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

const voteColumnsInsert = `id, proposal_id, voter_id, vote_type, voting_power, reason, signature, created_at`

func collectVotes(rows *sql.Rows) ([]*Vote, error) {
	defer rows.Close()
	out := make([]*Vote, 0)
	for rows.Next() {
		v, err := scanVote(rows)
		if err != nil {
			return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "解析投票失败")
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "遍历投票失败")
	}
	return out, nil
}

// ListVotes 实现 Store 接口。
func (s *MySQLStore) ListVotes(ctx context.Context, proposalID string) ([]*Vote, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+voteColumns+` FROM governance_votes WHERE proposal_id = ?
        ORDER BY created_at ASC, id ASC`, proposalID)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "查询投票失败")
	}
	return collectVotes(rows)
}

// ListActive 实现 Store 接口。
func (s *MySQLStore) ListActive(ctx context.Context) ([]*Proposal, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+proposalColumns+` FROM governance_proposals
        WHERE status = ? ORDER BY voting_end_at ASC, id ASC`, string(StatusActive))
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "查询活跃提案失败")
	}
	defer rows.Close()

	out := make([]*Proposal, 0)
	for rows.Next() {
		p, err := scanProposal(rows)
		if err != nil {
			return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "解析提案失败")
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "遍历提案失败")
	}
	return out, nil
}

// CreateArbitration 实现 Store 接口。
func (s *MySQLStore) CreateArbitration(ctx context.Context, a *Arbitration) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO arbitrations (`+arbitrationColumnsInsert+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.DisputeID, a.ArbitratorID, string(a.Status), a.Ruling, a.Compensation, a.SlashRecommendation,
		a.ProposalID, a.CreatedAt, a.CompletedAt)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "插入仲裁失败")
	}
	return nil
}

const arbitrationColumnsInsert = `id, dispute_id, arbitrator_id, status, ruling, compensation, slash_recommendation,
        proposal_id, created_at, completed_at`

// GetArbitration 实现 Store 接口。
func (s *MySQLStore) GetArbitration(ctx context.Context, id string) (*Arbitration, error) {
	a, err := scanArbitration(s.db.QueryRowContext(ctx, `SELECT `+arbitrationColumns+` FROM arbitrations WHERE id = ?`, id))
	if err != nil {
		if stdErrors.Is(err, sql.ErrNoRows) {
			return nil, ErrArbitrationNotFound
		}
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "查询仲裁失败")
	}
	return a, nil
}

// CompleteArbitration 实现 Store 接口。
func (s *MySQLStore) CompleteArbitration(ctx context.Context, id string, fn func(*Arbitration) (*Proposal, error)) (*Arbitration, *Proposal, error) {
	var outA *Arbitration
	var outP *Proposal
	err := sqlstore.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		a, err := scanArbitration(tx.QueryRowContext(ctx, `SELECT `+arbitrationColumns+` FROM arbitrations WHERE id = ? FOR UPDATE`, id))
		if err != nil {
			if stdErrors.Is(err, sql.ErrNoRows) {
				return ErrArbitrationNotFound
			}
			return xerrors.Wrap(xerrors.CodeStorageFailure, err, "锁定仲裁失败")
		}
		p, err := fn(a)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `UPDATE arbitrations SET status = ?, ruling = ?, compensation = ?,
        slash_recommendation = ?, proposal_id = ?, completed_at = ? WHERE id = ?`,
			string(a.Status), a.Ruling, a.Compensation, a.SlashRecommendation, a.ProposalID, a.CompletedAt, a.ID); err != nil {
			return xerrors.Wrap(xerrors.CodeStorageFailure, err, "更新仲裁失败")
		}
		if p != nil {
			if err := insertProposal(ctx, tx, p); err != nil {
				return err
			}
		}
		outA, outP = a, p
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return outA, outP, nil
}

// Close 不关闭共享连接池，连接池由创建方释放。
func (s *MySQLStore) Close() error { return nil }
