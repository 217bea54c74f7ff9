package registry

import (
	"context"
	"database/sql"
	stdErrors "errors"
	"time"

	xerrors "X402-Registry/internal/errors"
	sqlstore "X402-Registry/internal/storage/mysql"

	"github.com/shopspring/decimal"
)

// MySQLRegistry 基于 MySQL 的注册表实现。
type MySQLRegistry struct {
	db *sql.DB
}

// NewMySQLRegistry 使用已迁移的连接池创建注册表。
func NewMySQLRegistry(db *sql.DB) *MySQLRegistry {
	return &MySQLRegistry{db: db}
}

const agentColumns = `id, wallet_address, reputation_score, staked_amount, slashed_amount, disputes_lost,
        total_transactions, successful_transactions, total_spent, status, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAgent(row rowScanner) (*Agent, error) {
	var a Agent
	if err := row.Scan(&a.ID, &a.WalletAddress, &a.ReputationScore, &a.StakedAmount, &a.SlashedAmount,
		&a.DisputesLost, &a.TotalTransactions, &a.SuccessfulTransactions, &a.TotalSpent, &a.Status, &a.UpdatedAt); err != nil {
		return nil, err
	}
	return &a, nil
}

// Agent 查询智能体。
func (s *MySQLRegistry) Agent(ctx context.Context, id string) (*Agent, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+agentColumns+` FROM agents WHERE id = ?`, id)
	a, err := scanAgent(row)
	if err != nil {
		if stdErrors.Is(err, sql.ErrNoRows) {
			return nil, ErrAgentNotFound
		}
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "查询智能体失败")
	}
	return a, nil
}

// TotalStaked 汇总全部智能体的质押额。
func (s *MySQLRegistry) TotalStaked(ctx context.Context) (decimal.Decimal, error) {
	var total decimal.NullDecimal
	if err := s.db.QueryRowContext(ctx, `SELECT SUM(staked_amount) FROM agents`).Scan(&total); err != nil {
		return decimal.Zero, xerrors.Wrap(xerrors.CodeStorageFailure, err, "汇总质押额失败")
	}
	if !total.Valid {
		return decimal.Zero, nil
	}
	return total.Decimal, nil
}

// SetAgentStatus 更新智能体状态。
func (s *MySQLRegistry) SetAgentStatus(ctx context.Context, id string, status AgentStatus) error {
	return s.updateStatus(ctx, "agents", id, string(status), ErrAgentNotFound)
}

// SetServiceStatus 更新服务状态。
func (s *MySQLRegistry) SetServiceStatus(ctx context.Context, id string, status ServiceStatus) error {
	return s.updateStatus(ctx, "services", id, string(status), ErrServiceNotFound)
}

func (s *MySQLRegistry) updateStatus(ctx context.Context, table, id, status string, notFound error) error {
	return sqlstore.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `UPDATE `+table+` SET status = ?, updated_at = ? WHERE id = ?`, status, time.Now().UTC(), id)
		if err != nil {
			return xerrors.Wrap(xerrors.CodeStorageFailure, err, "更新状态失败")
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return xerrors.Wrap(xerrors.CodeStorageFailure, err, "获取影响行数失败")
		}
		if affected == 0 {
			// 状态未变化时 MySQL 也返回 0，需要再确认记录是否存在。
			var exists int
			if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM `+table+` WHERE id = ?`, id).Scan(&exists); err != nil {
				return xerrors.Wrap(xerrors.CodeStorageFailure, err, "查询记录失败")
			}
			if exists == 0 {
				return notFound
			}
		}
		return nil
	})
}

const disputeColumns = `id, agent_id, service_id, status, COALESCE(resolution, ''), slash_amount, compensation, resolved_at, updated_at`

func scanDispute(row rowScanner) (*Dispute, error) {
	var d Dispute
	var resolvedAt sql.NullTime
	if err := row.Scan(&d.ID, &d.AgentID, &d.ServiceID, &d.Status, &d.Resolution, &d.SlashAmount, &d.Compensation, &resolvedAt, &d.UpdatedAt); err != nil {
		return nil, err
	}
	if resolvedAt.Valid {
		at := resolvedAt.Time
		d.ResolvedAt = &at
	}
	return &d, nil
}

// Dispute 查询争议。
func (s *MySQLRegistry) Dispute(ctx context.Context, id string) (*Dispute, error) {
	d, err := scanDispute(s.db.QueryRowContext(ctx, `SELECT `+disputeColumns+` FROM disputes WHERE id = ?`, id))
	if err != nil {
		if stdErrors.Is(err, sql.ErrNoRows) {
			return nil, ErrDisputeNotFound
		}
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "查询争议失败")
	}
	return d, nil
}

// TransitionDispute 实现 Registry 接口。
func (s *MySQLRegistry) TransitionDispute(ctx context.Context, id string, from, to DisputeStatus) error {
	return sqlstore.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		var status DisputeStatus
		err := tx.QueryRowContext(ctx, `SELECT status FROM disputes WHERE id = ? FOR UPDATE`, id).Scan(&status)
		if err != nil {
			if stdErrors.Is(err, sql.ErrNoRows) {
				return ErrDisputeNotFound
			}
			return xerrors.Wrap(xerrors.CodeStorageFailure, err, "锁定争议失败")
		}
		if status != from {
			return ErrDisputeState
		}
		if _, err := tx.ExecContext(ctx, `UPDATE disputes SET status = ?, updated_at = ? WHERE id = ?`, to, time.Now().UTC(), id); err != nil {
			return xerrors.Wrap(xerrors.CodeStorageFailure, err, "更新争议状态失败")
		}
		return nil
	})
}

// ResolveDispute 在同一事务内结案并处罚败诉方。
func (s *MySQLRegistry) ResolveDispute(ctx context.Context, id string, res Resolution) (bool, error) {
	applied := false
	err := sqlstore.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		d, err := scanDispute(tx.QueryRowContext(ctx, `SELECT `+disputeColumns+` FROM disputes WHERE id = ? FOR UPDATE`, id))
		if err != nil {
			if stdErrors.Is(err, sql.ErrNoRows) {
				return ErrDisputeNotFound
			}
			return xerrors.Wrap(xerrors.CodeStorageFailure, err, "锁定争议失败")
		}
		if d.Status == DisputeResolved {
			return nil
		}

		now := time.Now().UTC()
		if res.SlashAmount.IsPositive() {
			agent, err := scanAgent(tx.QueryRowContext(ctx, `SELECT `+agentColumns+` FROM agents WHERE id = ? FOR UPDATE`, d.AgentID))
			if err != nil {
				if stdErrors.Is(err, sql.ErrNoRows) {
					return ErrAgentNotFound
				}
				return xerrors.Wrap(xerrors.CodeStorageFailure, err, "锁定智能体失败")
			}
			applyPenalty(agent, res.SlashAmount)
			const penalize = `UPDATE agents SET staked_amount = ?, slashed_amount = ?, reputation_score = ?, disputes_lost = ?, updated_at = ?
        WHERE id = ?`
			if _, err := tx.ExecContext(ctx, penalize, agent.StakedAmount, agent.SlashedAmount, agent.ReputationScore, agent.DisputesLost, now, agent.ID); err != nil {
				return xerrors.Wrap(xerrors.CodeStorageFailure, err, "扣减质押失败")
			}
		}

		const resolve = `UPDATE disputes SET status = ?, resolution = ?, slash_amount = ?, compensation = ?, resolved_at = ?, updated_at = ?
        WHERE id = ?`
		if _, err := tx.ExecContext(ctx, resolve, DisputeResolved, res.Resolution, res.SlashAmount, res.Compensation, now, now, id); err != nil {
			return xerrors.Wrap(xerrors.CodeStorageFailure, err, "更新争议失败")
		}
		applied = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return applied, nil
}

// Service 查询服务。
func (s *MySQLRegistry) Service(ctx context.Context, id string) (*Service, error) {
	var svc Service
	err := s.db.QueryRowContext(ctx, `SELECT id, name, owner_wallet_address, status, updated_at FROM services WHERE id = ?`, id).
		Scan(&svc.ID, &svc.Name, &svc.OwnerWalletAddress, &svc.Status, &svc.UpdatedAt)
	if err != nil {
		if stdErrors.Is(err, sql.ErrNoRows) {
			return nil, ErrServiceNotFound
		}
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "查询服务失败")
	}
	return &svc, nil
}

// Payment 查询付费记录。
func (s *MySQLRegistry) Payment(ctx context.Context, id string) (*Payment, error) {
	var p Payment
	var confirmedAt sql.NullTime
	err := s.db.QueryRowContext(ctx, `SELECT id, agent_id, service_id, status, amount_usdc, confirmed_at FROM payments WHERE id = ?`, id).
		Scan(&p.ID, &p.AgentID, &p.ServiceID, &p.Status, &p.AmountUSDC, &confirmedAt)
	if err != nil {
		if stdErrors.Is(err, sql.ErrNoRows) {
			return nil, ErrPaymentNotFound
		}
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "查询付费记录失败")
	}
	if confirmedAt.Valid {
		at := confirmedAt.Time
		p.ConfirmedAt = &at
	}
	return &p, nil
}

// ApplySeed 以 upsert 方式写入种子数据。
func (s *MySQLRegistry) ApplySeed(ctx context.Context, seed Seed) error {
	if err := seed.Validate(); err != nil {
		return err
	}
	now := time.Now().UTC()
	return sqlstore.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		for _, a := range seed.Agents {
			const stmt = `INSERT INTO agents (` + agentColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
        ON DUPLICATE KEY UPDATE wallet_address = VALUES(wallet_address), reputation_score = VALUES(reputation_score),
        staked_amount = VALUES(staked_amount), status = VALUES(status), updated_at = VALUES(updated_at)`
			if _, err := tx.ExecContext(ctx, stmt, a.ID, a.WalletAddress, a.ReputationScore, a.StakedAmount, a.SlashedAmount,
				a.DisputesLost, a.TotalTransactions, a.SuccessfulTransactions, a.TotalSpent, a.Status, now); err != nil {
				return xerrors.Wrap(xerrors.CodeStorageFailure, err, "写入种子智能体失败")
			}
		}
		for _, svc := range seed.Services {
			const stmt = `INSERT INTO services (id, name, owner_wallet_address, status, updated_at) VALUES (?, ?, ?, ?, ?)
        ON DUPLICATE KEY UPDATE name = VALUES(name), owner_wallet_address = VALUES(owner_wallet_address), status = VALUES(status)`
			if _, err := tx.ExecContext(ctx, stmt, svc.ID, svc.Name, svc.OwnerWalletAddress, svc.Status, now); err != nil {
				return xerrors.Wrap(xerrors.CodeStorageFailure, err, "写入种子服务失败")
			}
		}
		for _, d := range seed.Disputes {
			const stmt = `INSERT INTO disputes (id, agent_id, service_id, status, slash_amount, compensation, updated_at)
        VALUES (?, ?, ?, ?, ?, ?, ?) ON DUPLICATE KEY UPDATE status = VALUES(status)`
			if _, err := tx.ExecContext(ctx, stmt, d.ID, d.AgentID, d.ServiceID, d.Status, d.SlashAmount, d.Compensation, now); err != nil {
				return xerrors.Wrap(xerrors.CodeStorageFailure, err, "写入种子争议失败")
			}
		}
		for _, p := range seed.Payments {
			const stmt = `INSERT INTO payments (id, agent_id, service_id, status, amount_usdc, confirmed_at)
        VALUES (?, ?, ?, ?, ?, ?) ON DUPLICATE KEY UPDATE status = VALUES(status), confirmed_at = VALUES(confirmed_at)`
			if _, err := tx.ExecContext(ctx, stmt, p.ID, p.AgentID, p.ServiceID, p.Status, p.AmountUSDC, p.ConfirmedAt); err != nil {
				return xerrors.Wrap(xerrors.CodeStorageFailure, err, "写入种子付费记录失败")
			}
		}
		return nil
	})
}

// Close 不关闭共享连接池，连接池由创建方释放。
func (s *MySQLRegistry) Close() error { return nil }
