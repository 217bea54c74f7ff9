package multisig

import (
	"context"
	"database/sql"
	"encoding/json"
	stdErrors "errors"
	"strings"

	xerrors "X402-Registry/internal/errors"
	sqlstore "X402-Registry/internal/storage/mysql"
)

// MySQLStore 使用 MySQL 保存钱包与交易，签名者列表以 JSON 文本存储。
type MySQLStore struct {
	db *sql.DB
}

// NewMySQLStore 使用已迁移的连接池创建 MySQLStore。
func NewMySQLStore(db *sql.DB) *MySQLStore {
	return &MySQLStore{db: db}
}

const (
	walletColumns = `id, address, threshold, signers, agent_ids, pending_transactions, total_transactions, created_at, updated_at`
	txColumns     = `id, wallet_id, initiator_id, recipient, amount, COALESCE(memo, ''), transaction_data, signatures_required,
        signatures, signed_by, status, tx_signature, created_at, updated_at, executed_at`
)

type rowScanner interface {
	Scan(dest ...any) error
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func scanWallet(row rowScanner) (*Wallet, error) {
	var w Wallet
	var signers, agents string
	if err := row.Scan(&w.ID, &w.Address, &w.Threshold, &signers, &agents, &w.PendingTransactions,
		&w.TotalTransactions, &w.CreatedAt, &w.UpdatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(signers), &w.Signers); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(agents), &w.AgentIDs); err != nil {
		return nil, err
	}
	return &w, nil
}

func encodeSignatures(t *Transaction) (string, string, error) {
	signatures, err := json.Marshal(t.Signatures)
	if err != nil {
		return "", "", xerrors.Wrap(xerrors.CodeStorageFailure, err, "编码签名失败")
	}
	signedBy, err := json.Marshal(t.SignedBy)
	if err != nil {
		return "", "", xerrors.Wrap(xerrors.CodeStorageFailure, err, "编码签名者失败")
	}
	return string(signatures), string(signedBy), nil
}

func scanTransaction(row rowScanner) (*Transaction, error) {
	var t Transaction
	var signatures, signedBy, status string
	var executedAt sql.NullTime
	if err := row.Scan(&t.ID, &t.WalletID, &t.InitiatorID, &t.Recipient, &t.Amount, &t.Memo, &t.TransactionData,
		&t.SignaturesRequired, &signatures, &signedBy, &status, &t.TxSignature, &t.CreatedAt, &t.UpdatedAt, &executedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(signatures), &t.Signatures); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(signedBy), &t.SignedBy); err != nil {
		return nil, err
	}
	t.Status = TransactionStatus(status)
	if executedAt.Valid {
		at := executedAt.Time
		t.ExecutedAt = &at
	}
	return &t, nil
}

func lockWallet(ctx context.Context, q queryer, id string) (*Wallet, error) {
	w, err := scanWallet(q.QueryRowContext(ctx, `SELECT `+walletColumns+` FROM multisig_wallets WHERE id = ? FOR UPDATE`, id))
	if err != nil {
		if stdErrors.Is(err, sql.ErrNoRows) {
			return nil, ErrWalletNotFound
		}
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "锁定钱包失败")
	}
	return w, nil
}

func writeWallet(ctx context.Context, tx *sql.Tx, w *Wallet) error {
	signers, err := json.Marshal(w.Signers)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "编码签名者失败")
	}
	agents, err := json.Marshal(w.AgentIDs)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "编码授权智能体失败")
	}
	_, err = tx.ExecContext(ctx, `UPDATE multisig_wallets SET threshold = ?, signers = ?, agent_ids = ?,
        pending_transactions = ?, total_transactions = ?, updated_at = ? WHERE id = ?`,
		w.Threshold, string(signers), string(agents), w.PendingTransactions, w.TotalTransactions, w.UpdatedAt, w.ID)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "更新钱包失败")
	}
	return nil
}

// CreateWallet 实现 Store 接口。
func (s *MySQLStore) CreateWallet(ctx context.Context, w *Wallet) error {
	signers, err := json.Marshal(w.Signers)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "编码签名者失败")
	}
	agents, err := json.Marshal(w.AgentIDs)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "编码授权智能体失败")
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO multisig_wallets (`+walletColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		w.ID, w.Address, w.Threshold, string(signers), string(agents), w.PendingTransactions, w.TotalTransactions,
		w.CreatedAt, w.UpdatedAt)
	if err != nil {
		if sqlstore.IsDuplicateEntry(err) {
			return xerrors.Wrap(xerrors.CodeConflict, err, "钱包地址已存在")
		}
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "插入钱包失败")
	}
	return nil
}

// GetWallet 实现 Store 接口。
func (s *MySQLStore) GetWallet(ctx context.Context, id string) (*Wallet, error) {
	w, err := scanWallet(s.db.QueryRowContext(ctx, `SELECT `+walletColumns+` FROM multisig_wallets WHERE id = ?`, id))
	if err != nil {
		if stdErrors.Is(err, sql.ErrNoRows) {
			return nil, ErrWalletNotFound
		}
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "查询钱包失败")
	}
	return w, nil
}

// UpdateWallet 实现 Store 接口。
func (s *MySQLStore) UpdateWallet(ctx context.Context, id string, fn func(*Wallet) error) (*Wallet, error) {
	var out *Wallet
	err := sqlstore.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		w, err := lockWallet(ctx, tx, id)
		if err != nil {
			return err
		}
		if err := fn(w); err != nil {
			return err
		}
		if err := writeWallet(ctx, tx, w); err != nil {
			return err
		}
		out = w
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// CreateTransaction 实现 Store 接口。
func (s *MySQLStore) CreateTransaction(ctx context.Context, t *Transaction, fn func(*Wallet) error) error {
	return sqlstore.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		w, err := lockWallet(ctx, tx, t.WalletID)
		if err != nil {
			return err
		}
		if err := fn(w); err != nil {
			return err
		}
		signatures, signedBy, err := encodeSignatures(t)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `INSERT INTO multisig_transactions
        (id, wallet_id, initiator_id, recipient, amount, memo, transaction_data, signatures_required, signatures, signed_by,
         status, tx_signature, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, '', ?, ?)`,
			t.ID, t.WalletID, t.InitiatorID, t.Recipient, t.Amount, t.Memo, t.TransactionData, t.SignaturesRequired,
			signatures, signedBy, string(t.Status), t.CreatedAt, t.UpdatedAt)
		if err != nil {
			return xerrors.Wrap(xerrors.CodeStorageFailure, err, "插入多签交易失败")
		}
		w.PendingTransactions++
		return writeWallet(ctx, tx, w)
	})
}

// GetTransaction 实现 Store 接口。
func (s *MySQLStore) GetTransaction(ctx context.Context, id string) (*Transaction, error) {
	t, err := scanTransaction(s.db.QueryRowContext(ctx, `SELECT `+txColumns+` FROM multisig_transactions WHERE id = ?`, id))
	if err != nil {
		if stdErrors.Is(err, sql.ErrNoRows) {
			return nil, ErrTransactionNotFound
		}
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "查询多签交易失败")
	}
	return t, nil
}

// UpdateTransaction 实现 Store 接口。
func (s *MySQLStore) UpdateTransaction(ctx context.Context, id string, fn func(*Transaction, *Wallet) error) (*Transaction, *Wallet, error) {
	var outTx *Transaction
	var outWallet *Wallet
	err := sqlstore.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		t, err := scanTransaction(tx.QueryRowContext(ctx, `SELECT `+txColumns+` FROM multisig_transactions WHERE id = ? FOR UPDATE`, id))
		if err != nil {
			if stdErrors.Is(err, sql.ErrNoRows) {
				return ErrTransactionNotFound
			}
			return xerrors.Wrap(xerrors.CodeStorageFailure, err, "锁定多签交易失败")
		}
		w, err := lockWallet(ctx, tx, t.WalletID)
		if err != nil {
			return err
		}
		if err := fn(t, w); err != nil {
			return err
		}
		signatures, signedBy, err := encodeSignatures(t)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `UPDATE multisig_transactions SET signatures = ?, signed_by = ?, status = ?,
        tx_signature = ?, updated_at = ?, executed_at = ? WHERE id = ?`,
			signatures, signedBy, string(t.Status), t.TxSignature, t.UpdatedAt, t.ExecutedAt, t.ID); err != nil {
			return xerrors.Wrap(xerrors.CodeStorageFailure, err, "更新多签交易失败")
		}
		if err := writeWallet(ctx, tx, w); err != nil {
			return err
		}
		outTx, outWallet = t, w
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return outTx, outWallet, nil
}

// ListTransactions 实现 Store 接口。
func (s *MySQLStore) ListTransactions(ctx context.Context, walletID string, statuses []TransactionStatus) ([]*Transaction, error) {
	query := `SELECT ` + txColumns + ` FROM multisig_transactions WHERE wallet_id = ?`
	args := []any{walletID}
	if len(statuses) > 0 {
		query += ` AND status IN (?` + strings.Repeat(", ?", len(statuses)-1) + `)`
		for _, status := range statuses {
			args = append(args, string(status))
		}
	}
	query += ` ORDER BY created_at DESC, id DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "查询多签交易列表失败")
	}
	defer rows.Close()

	out := make([]*Transaction, 0)
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "解析多签交易失败")
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "遍历多签交易失败")
	}
	return out, nil
}

// Close 不关闭共享连接池，连接池由创建方释放。
func (s *MySQLStore) Close() error { return nil }
