package web3

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"
)

// MemoryLedger is an in-process chain used for development and tests. Every
// submitted transfer is applied immediately and confirms on the next call.
type MemoryLedger struct {
	mu        sync.Mutex
	height    uint64
	balances  map[string]decimal.Decimal
	submitted map[string]Transfer

	// SubmitErr and ConfirmErr, when set, are returned by Submit and Confirm.
	SubmitErr  error
	ConfirmErr error
}

// NewMemoryLedger creates an empty ledger.
func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{
		balances:  make(map[string]decimal.Decimal),
		submitted: make(map[string]Transfer),
	}
}

type ledgerPayload struct {
	From      string          `json:"from"`
	To        string          `json:"to"`
	Amount    decimal.Decimal `json:"amount"`
	Blockhash string          `json:"blockhash"`
}

// Fund credits address with amount.
func (l *MemoryLedger) Fund(address string, amount decimal.Decimal) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.balances[address] = l.balances[address].Add(amount)
}

// LatestBlockhash implements Client.
func (l *MemoryLedger) LatestBlockhash(_ context.Context) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.blockhash(), nil
}

func (l *MemoryLedger) blockhash() string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("block-%d", l.height)))
	return "0x" + hex.EncodeToString(sum[:])
}

// BuildTransfer implements Client.
func (l *MemoryLedger) BuildTransfer(ctx context.Context, from, to string, amount decimal.Decimal) ([]byte, error) {
	if to == "" {
		return nil, errors.New("收款地址不能为空")
	}
	hash, err := l.LatestBlockhash(ctx)
	if err != nil {
		return nil, err
	}
	return json.Marshal(ledgerPayload{From: from, To: to, Amount: amount, Blockhash: hash})
}

// DecodeTransfer implements Client.
func (l *MemoryLedger) DecodeTransfer(payload []byte) (Transfer, error) {
	var p ledgerPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return Transfer{}, fmt.Errorf("解析转账载荷失败: %w", err)
	}
	return Transfer{From: p.From, To: p.To, Amount: p.Amount}, nil
}

// Submit implements Client.
func (l *MemoryLedger) Submit(ctx context.Context, payload []byte, signatures []string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	transfer, err := l.DecodeTransfer(payload)
	if err != nil {
		return "", err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.SubmitErr != nil {
		return "", l.SubmitErr
	}
	if l.balances[transfer.From].LessThan(transfer.Amount) {
		return "", fmt.Errorf("地址 %s 余额不足", transfer.From)
	}
	h := sha256.New()
	h.Write(payload)
	for _, sig := range signatures {
		h.Write([]byte(sig))
	}
	txID := "0x" + hex.EncodeToString(h.Sum(nil))
	l.balances[transfer.From] = l.balances[transfer.From].Sub(transfer.Amount)
	l.balances[transfer.To] = l.balances[transfer.To].Add(transfer.Amount)
	l.submitted[txID] = transfer
	l.height++
	return txID, nil
}

// Confirm implements Client.
func (l *MemoryLedger) Confirm(ctx context.Context, txID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.ConfirmErr != nil {
		return l.ConfirmErr
	}
	if _, ok := l.submitted[txID]; !ok {
		return fmt.Errorf("交易 %s 不存在", txID)
	}
	return nil
}

// Balance implements Client.
func (l *MemoryLedger) Balance(_ context.Context, address string) (decimal.Decimal, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.balances[address], nil
}

// Close implements Client.
func (l *MemoryLedger) Close() {}
