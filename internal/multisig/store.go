package multisig

import (
	"context"
	"sort"
	"sync"
)

// Store 持久化钱包与交易。所有 Update* 方法在单个原子读改写中执行 fn，
// fn 返回错误时不落库。
type Store interface {
	CreateWallet(ctx context.Context, w *Wallet) error
	GetWallet(ctx context.Context, id string) (*Wallet, error)
	UpdateWallet(ctx context.Context, id string, fn func(*Wallet) error) (*Wallet, error)
	// CreateTransaction 在锁定钱包后调用 fn，随后插入交易并递增 pendingTransactions。
	CreateTransaction(ctx context.Context, tx *Transaction, fn func(*Wallet) error) error
	GetTransaction(ctx context.Context, id string) (*Transaction, error)
	// UpdateTransaction 依次锁定交易与所属钱包，两者的修改一起提交。
	UpdateTransaction(ctx context.Context, id string, fn func(*Transaction, *Wallet) error) (*Transaction, *Wallet, error)
	// ListTransactions 按创建时间倒序返回钱包下处于给定状态的交易。
	ListTransactions(ctx context.Context, walletID string, statuses []TransactionStatus) ([]*Transaction, error)
	Close() error
}

// MemoryStore 是 Store 的内存实现。
type MemoryStore struct {
	mu           sync.Mutex
	wallets      map[string]*Wallet
	transactions map[string]*Transaction
}

// NewMemoryStore 创建内存存储。
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		wallets:      make(map[string]*Wallet),
		transactions: make(map[string]*Transaction),
	}
}

// CreateWallet 实现 Store 接口。
func (s *MemoryStore) CreateWallet(_ context.Context, w *Wallet) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.wallets[w.ID] = cloneWallet(w)
	return nil
}

// GetWallet 实现 Store 接口。
func (s *MemoryStore) GetWallet(_ context.Context, id string) (*Wallet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.wallets[id]
	if !ok {
		return nil, ErrWalletNotFound
	}
	return cloneWallet(w), nil
}

// UpdateWallet 实现 Store 接口。
func (s *MemoryStore) UpdateWallet(_ context.Context, id string, fn func(*Wallet) error) (*Wallet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.wallets[id]
	if !ok {
		return nil, ErrWalletNotFound
	}
	w := cloneWallet(current)
	if err := fn(w); err != nil {
		return nil, err
	}
	s.wallets[id] = cloneWallet(w)
	return w, nil
}

// CreateTransaction 实现 Store 接口。
func (s *MemoryStore) CreateTransaction(_ context.Context, tx *Transaction, fn func(*Wallet) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.wallets[tx.WalletID]
	if !ok {
		return ErrWalletNotFound
	}
	w := cloneWallet(current)
	if err := fn(w); err != nil {
		return err
	}
	w.PendingTransactions++
	s.wallets[w.ID] = w
	s.transactions[tx.ID] = cloneTransaction(tx)
	return nil
}

// GetTransaction 实现 Store 接口。
func (s *MemoryStore) GetTransaction(_ context.Context, id string) (*Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tx, ok := s.transactions[id]
	if !ok {
		return nil, ErrTransactionNotFound
	}
	return cloneTransaction(tx), nil
}

// UpdateTransaction 实现 Store 接口。
func (s *MemoryStore) UpdateTransaction(_ context.Context, id string, fn func(*Transaction, *Wallet) error) (*Transaction, *Wallet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.transactions[id]
	if !ok {
		return nil, nil, ErrTransactionNotFound
	}
	wallet, ok := s.wallets[current.WalletID]
	if !ok {
		return nil, nil, ErrWalletNotFound
	}
	tx, w := cloneTransaction(current), cloneWallet(wallet)
	if err := fn(tx, w); err != nil {
		return nil, nil, err
	}
	s.transactions[id] = cloneTransaction(tx)
	s.wallets[w.ID] = cloneWallet(w)
	return tx, w, nil
}

// ListTransactions 实现 Store 接口。
func (s *MemoryStore) ListTransactions(_ context.Context, walletID string, statuses []TransactionStatus) ([]*Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Transaction, 0)
	for _, tx := range s.transactions {
		if tx.WalletID != walletID || !statusIn(tx.Status, statuses) {
			continue
		}
		out = append(out, cloneTransaction(tx))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

// Close 实现 Store 接口。
func (s *MemoryStore) Close() error { return nil }

func statusIn(status TransactionStatus, statuses []TransactionStatus) bool {
	if len(statuses) == 0 {
		return true
	}
	for _, s := range statuses {
		if s == status {
			return true
		}
	}
	return false
}
