package credential

import (
	"context"
	"database/sql"
	stdErrors "errors"
	"time"

	xerrors "X402-Registry/internal/errors"
	sqlstore "X402-Registry/internal/storage/mysql"
)

// MySQLStore 使用 MySQL 保存凭证。
type MySQLStore struct {
	db *sql.DB
}

// NewMySQLStore 使用已迁移的连接池创建 MySQLStore。
func NewMySQLStore(db *sql.DB) *MySQLStore {
	return &MySQLStore{db: db}
}

const credentialColumns = `id, agent_id, credential_type, schema_id, commitment, nullifier, proof_uri, issued_by,
        expires_at, is_revoked, revoked_at, COALESCE(revocation_reason, ''), created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCredential(row rowScanner) (*Credential, error) {
	var c Credential
	var expiresAt, revokedAt sql.NullTime
	if err := row.Scan(&c.ID, &c.AgentID, &c.CredentialType, &c.SchemaID, &c.Commitment, &c.Nullifier, &c.ProofURI,
		&c.IssuedBy, &expiresAt, &c.IsRevoked, &revokedAt, &c.RevocationReason, &c.CreatedAt); err != nil {
		return nil, err
	}
	if expiresAt.Valid {
		at := expiresAt.Time
		c.ExpiresAt = &at
	}
	if revokedAt.Valid {
		at := revokedAt.Time
		c.RevokedAt = &at
	}
	return &c, nil
}

// Create 实现 Store 接口。
func (s *MySQLStore) Create(ctx context.Context, c *Credential) error {
	const stmt = `INSERT INTO zk_credentials
        (id, agent_id, credential_type, schema_id, commitment, nullifier, proof_uri, issued_by, expires_at, is_revoked, created_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, 0, ?)`
	_, err := s.db.ExecContext(ctx, stmt, c.ID, c.AgentID, c.CredentialType, c.SchemaID, c.Commitment, c.Nullifier,
		c.ProofURI, c.IssuedBy, c.ExpiresAt, c.CreatedAt)
	if err != nil {
		if sqlstore.IsDuplicateEntry(err) {
			return xerrors.Wrap(xerrors.CodeConflict, err, "凭证已存在")
		}
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "插入凭证失败")
	}
	return nil
}

// Get 实现 Store 接口。
func (s *MySQLStore) Get(ctx context.Context, id string) (*Credential, error) {
	c, err := scanCredential(s.db.QueryRowContext(ctx, `SELECT `+credentialColumns+` FROM zk_credentials WHERE id = ?`, id))
	if err != nil {
		if stdErrors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "查询凭证失败")
	}
	return c, nil
}

// Revoke 实现 Store 接口。
func (s *MySQLStore) Revoke(ctx context.Context, id, reason string, at time.Time) (*Credential, error) {
	var out *Credential
	err := sqlstore.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		c, err := scanCredential(tx.QueryRowContext(ctx, `SELECT `+credentialColumns+` FROM zk_credentials WHERE id = ? FOR UPDATE`, id))
		if err != nil {
			if stdErrors.Is(err, sql.ErrNoRows) {
				return ErrNotFound
			}
			return xerrors.Wrap(xerrors.CodeStorageFailure, err, "锁定凭证失败")
		}
		if !c.IsRevoked {
			if _, err := tx.ExecContext(ctx, `UPDATE zk_credentials SET is_revoked = 1, revoked_at = ?, revocation_reason = ? WHERE id = ?`,
				at, reason, id); err != nil {
				return xerrors.Wrap(xerrors.CodeStorageFailure, err, "吊销凭证失败")
			}
			c.IsRevoked = true
			c.RevokedAt = &at
			c.RevocationReason = reason
		}
		out = c
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ListByAgent 实现 Store 接口。
func (s *MySQLStore) ListByAgent(ctx context.Context, agentID string) ([]*Credential, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+credentialColumns+` FROM zk_credentials
        WHERE agent_id = ? AND is_revoked = 0 ORDER BY created_at ASC, id ASC`, agentID)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "查询凭证列表失败")
	}
	defer rows.Close()

	out := make([]*Credential, 0)
	for rows.Next() {
		c, err := scanCredential(rows)
		if err != nil {
			return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "解析凭证失败")
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "遍历凭证失败")
	}
	return out, nil
}

// NullifierExists 实现 Store 接口。
func (s *MySQLStore) NullifierExists(ctx context.Context, schemaID, nullifier string) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM zk_credentials WHERE schema_id = ? AND nullifier = ?`, schemaID, nullifier).Scan(&count)
	if err != nil {
		return false, xerrors.Wrap(xerrors.CodeStorageFailure, err, "查询 nullifier 失败")
	}
	return count > 0, nil
}

// Close 不关闭共享连接池，连接池由创建方释放。
func (s *MySQLStore) Close() error { return nil }
