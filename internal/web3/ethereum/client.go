package ethereum

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"X402-Registry/internal/web3"

	gethcore "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	coretypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	gethrpc "github.com/ethereum/go-ethereum/rpc"
	"github.com/shopspring/decimal"
)

const (
	// DefaultGasLimit is the intrinsic gas of a plain value transfer.
	DefaultGasLimit uint64 = 21000
	// DefaultPollInterval controls how often receipts are polled.
	DefaultPollInterval = 2 * time.Second
	// weiDecimals is the exponent between ether and wei.
	weiDecimals = 18
)

// Config describes how to construct an EVM compatible client.
type Config struct {
	Name   string
	RPCURL string
	// RelayMethod, when set, is a custom JSON-RPC method invoked as
	// method(rawPayloadHex, signatures) instead of eth_sendRawTransaction.
	RelayMethod  string
	GasLimit     uint64
	PollInterval time.Duration
	Notes        string
}

// chainBackend mirrors the subset of ethclient used by the adapter.
type chainBackend interface {
	HeaderByNumber(ctx context.Context, number *big.Int) (*coretypes.Header, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*coretypes.Receipt, error)
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
}

// rpcCaller is implemented by *gethrpc.Client.
type rpcCaller interface {
	CallContext(ctx context.Context, result interface{}, method string, args ...interface{}) error
}

// Client implements the web3.Client interface for EVM compatible chains.
type Client struct {
	name         string
	notes        string
	relayMethod  string
	gasLimit     uint64
	pollInterval time.Duration
	rpcClient    *gethrpc.Client
	rpc          rpcCaller
	eth          chainBackend
}

var _ web3.Client = (*Client)(nil)

// NewClient dials the configured RPC endpoint and returns a ready-to-use client.
func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	rpcURL := strings.TrimSpace(cfg.RPCURL)
	if rpcURL == "" {
		return nil, errors.New("未配置以太坊 RPC 地址")
	}

	rpcClient, err := gethrpc.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("连接以太坊节点失败: %w", err)
	}

	client := newClient(cfg, rpcClient, ethclient.NewClient(rpcClient))
	client.rpcClient = rpcClient
	return client, nil
}

func newClient(cfg Config, rpc rpcCaller, eth chainBackend) *Client {
	gasLimit := cfg.GasLimit
	if gasLimit == 0 {
		gasLimit = DefaultGasLimit
	}
	poll := cfg.PollInterval
	if poll <= 0 {
		poll = DefaultPollInterval
	}
	return &Client{
		name:         cfg.Name,
		notes:        cfg.Notes,
		relayMethod:  strings.TrimSpace(cfg.RelayMethod),
		gasLimit:     gasLimit,
		pollInterval: poll,
		rpc:          rpc,
		eth:          eth,
	}
}

// Name returns the configured chain name.
func (c *Client) Name() string { return c.name }

// LatestBlockhash returns the hash of the newest block header.
func (c *Client) LatestBlockhash(ctx context.Context) (string, error) {
	header, err := c.eth.HeaderByNumber(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("获取最新区块失败: %w", err)
	}
	return header.Hash().Hex(), nil
}

// BuildTransfer prepares an unsigned legacy value transfer from the wallet
// address, using the pending nonce and the node's suggested gas price.
func (c *Client) BuildTransfer(ctx context.Context, from, to string, amount decimal.Decimal) ([]byte, error) {
	if !common.IsHexAddress(from) {
		return nil, fmt.Errorf("无效的钱包地址: %s", from)
	}
	if !common.IsHexAddress(to) {
		return nil, fmt.Errorf("无效的收款地址: %s", to)
	}
	value, err := toWei(amount)
	if err != nil {
		return nil, err
	}

	nonce, err := c.eth.PendingNonceAt(ctx, common.HexToAddress(from))
	if err != nil {
		return nil, fmt.Errorf("获取 nonce 失败: %w", err)
	}
	gasPrice, err := c.eth.SuggestGasPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("获取 gas price 失败: %w", err)
	}

	recipient := common.HexToAddress(to)
	tx := coretypes.NewTx(&coretypes.LegacyTx{
		Nonce:    nonce,
		GasPrice: gasPrice,
		Gas:      c.gasLimit,
		To:       &recipient,
		Value:    value,
	})
	payload, err := tx.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("序列化交易失败: %w", err)
	}
	return payload, nil
}

// DecodeTransfer parses a payload produced by BuildTransfer.
func (c *Client) DecodeTransfer(payload []byte) (web3.Transfer, error) {
	return decodeTransfer(payload)
}

func decodeTransfer(payload []byte) (web3.Transfer, error) {
	var tx coretypes.Transaction
	if err := tx.UnmarshalBinary(payload); err != nil {
		return web3.Transfer{}, fmt.Errorf("解析交易失败: %w", err)
	}
	if tx.To() == nil {
		return web3.Transfer{}, errors.New("交易缺少收款地址")
	}
	return web3.Transfer{
		To:     tx.To().Hex(),
		Amount: fromWei(tx.Value()),
	}, nil
}

// Submit relays the payload. With a relay method configured the co-signatures
// are forwarded alongside it; otherwise the payload is sent as a raw transaction.
func (c *Client) Submit(ctx context.Context, payload []byte, signatures []string) (string, error) {
	if len(payload) == 0 {
		return "", errors.New("交易载荷为空")
	}
	var hash common.Hash
	raw := hexutil.Encode(payload)
	var err error
	if c.relayMethod != "" {
		err = c.rpc.CallContext(ctx, &hash, c.relayMethod, raw, signatures)
	} else {
		err = c.rpc.CallContext(ctx, &hash, "eth_sendRawTransaction", raw)
	}
	if err != nil {
		return "", fmt.Errorf("广播交易失败: %w", err)
	}
	return hash.Hex(), nil
}

// Confirm polls for the transaction receipt until it is mined or ctx expires.
func (c *Client) Confirm(ctx context.Context, txID string) error {
	hash := common.HexToHash(txID)
	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		receipt, err := c.eth.TransactionReceipt(ctx, hash)
		switch {
		case err == nil:
			if receipt.Status != coretypes.ReceiptStatusSuccessful {
				return fmt.Errorf("交易 %s 执行失败", txID)
			}
			return nil
		case errors.Is(err, gethcore.NotFound):
		default:
			return fmt.Errorf("查询交易回执失败: %w", err)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Balance returns the latest balance of address in ether.
func (c *Client) Balance(ctx context.Context, address string) (decimal.Decimal, error) {
	if !common.IsHexAddress(address) {
		return decimal.Zero, fmt.Errorf("无效的地址: %s", address)
	}
	wei, err := c.eth.BalanceAt(ctx, common.HexToAddress(address), nil)
	if err != nil {
		return decimal.Zero, fmt.Errorf("查询余额失败: %w", err)
	}
	return fromWei(wei), nil
}

// Close releases the underlying RPC connection.
func (c *Client) Close() {
	if c.rpcClient != nil {
		c.rpcClient.Close()
	}
}

func toWei(amount decimal.Decimal) (*big.Int, error) {
	if !amount.IsPositive() {
		return nil, fmt.Errorf("转账金额必须大于 0: %s", amount)
	}
	wei := amount.Shift(weiDecimals)
	if !wei.Equal(wei.Truncate(0)) {
		return nil, fmt.Errorf("转账金额精度超过 %d 位小数", weiDecimals)
	}
	return wei.BigInt(), nil
}

func fromWei(wei *big.Int) decimal.Decimal {
	if wei == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(wei, -weiDecimals)
}
