package web3

import (
	"context"

	"github.com/shopspring/decimal"
)

// Transfer 是从序列化载荷中解析出的转账信息。
type Transfer struct {
	From   string          `json:"from,omitempty"`
	To     string          `json:"to"`
	Amount decimal.Decimal `json:"amount"`
}

// Client defines the chain operations the treasury wallet relies on so that
// higher layers can interact with different networks uniformly.
type Client interface {
	// LatestBlockhash returns the hash of the newest block.
	LatestBlockhash(ctx context.Context) (string, error)
	// BuildTransfer serializes an unsigned transfer against current chain state.
	BuildTransfer(ctx context.Context, from, to string, amount decimal.Decimal) ([]byte, error)
	// DecodeTransfer parses a payload produced by BuildTransfer.
	DecodeTransfer(payload []byte) (Transfer, error)
	// Submit relays the payload together with its collected co-signatures and
	// returns the chain transaction identifier.
	Submit(ctx context.Context, payload []byte, signatures []string) (string, error)
	// Confirm blocks until the submitted transaction is final or ctx expires.
	Confirm(ctx context.Context, txID string) error
	// Balance returns the native balance of address in whole units.
	Balance(ctx context.Context, address string) (decimal.Decimal, error)
	Close()
}
