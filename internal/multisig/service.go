package multisig

import (
	"context"
	"encoding/base64"
	"log/slog"
	"strings"
	"time"

	xerrors "X402-Registry/internal/errors"
	"X402-Registry/internal/observability/alerting"
	"X402-Registry/internal/observability/metrics"
	"X402-Registry/internal/registry"
	"X402-Registry/internal/web3"
	"X402-Registry/pkg/logger"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// DefaultBroadcastTimeout 限制一次广播加确认的总时长。
const DefaultBroadcastTimeout = 60 * time.Second

// Registry 是钱包服务需要的智能体查询能力。
type Registry interface {
	Agent(ctx context.Context, id string) (*registry.Agent, error)
}

// Service 管理门限钱包与联署交易。
type Service struct {
	store            Store
	registry         Registry
	chain            web3.Client
	validate         *validator.Validate
	alerts           alerting.Dispatcher
	indicators       metrics.Indicators
	logger           *slog.Logger
	now              func() time.Time
	broadcastTimeout time.Duration
	keyBinding       bool
}

// Option 定义可选配置。
type Option func(*Service)

// WithClock 替换时间来源。
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithLogger 指定日志输出。
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithIndicators 配置业务指标。
func WithIndicators(ind metrics.Indicators) Option {
	return func(s *Service) {
		if ind != nil {
			s.indicators = ind
		}
	}
}

// WithAlertDispatcher 配置广播失败时的告警出口。
func WithAlertDispatcher(d alerting.Dispatcher) Option {
	return func(s *Service) {
		s.alerts = d
	}
}

// WithBroadcastTimeout 设置广播与确认的超时。
func WithBroadcastTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.broadcastTimeout = d
		}
	}
}

// WithKeyBinding 要求签名公钥推导出的地址等于签名者登记的钱包地址。
func WithKeyBinding(enabled bool) Option {
	return func(s *Service) {
		s.keyBinding = enabled
	}
}

// NewService 构造钱包服务。
func NewService(store Store, reg Registry, chain web3.Client, opts ...Option) *Service {
	s := &Service{
		store:            store,
		registry:         reg,
		chain:            chain,
		validate:         validator.New(),
		indicators:       metrics.Nop{},
		logger:           logger.Named("multisig"),
		now:              func() time.Time { return time.Now().UTC() },
		broadcastTimeout: DefaultBroadcastTimeout,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// CreateWallet 校验门限与签名者后生成钱包地址并保存配置。
func (s *Service) CreateWallet(ctx context.Context, req CreateWalletRequest) (*Wallet, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, xerrors.Wrap(CodeInvalidRequest, err, "钱包参数不合法")
	}
	if req.Threshold < 1 || req.Threshold > len(req.Signers) {
		return nil, ErrInvalidThreshold
	}
	if len(req.Signers) < 2 {
		return nil, ErrTooFewSigners
	}
	seen := make(map[string]struct{}, len(req.Signers))
	for _, signer := range req.Signers {
		if _, dup := seen[signer]; dup {
			return nil, ErrDuplicateSigners
		}
		seen[signer] = struct{}{}
	}
	for _, agentID := range req.AgentIDs {
		if err := s.requireAgent(ctx, agentID); err != nil {
			return nil, err
		}
	}

	address, err := NewWalletAddress()
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeUnknown, err, "生成钱包地址失败")
	}
	now := s.now()
	wallet := &Wallet{
		ID:        uuid.NewString(),
		Address:   address,
		Threshold: req.Threshold,
		Signers:   append([]string(nil), req.Signers...),
		AgentIDs:  append([]string(nil), req.AgentIDs...),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.store.CreateWallet(ctx, wallet); err != nil {
		return nil, err
	}

	logger.Audit().Info("多签钱包已创建",
		slog.String("wallet_id", wallet.ID),
		slog.String("address", wallet.Address),
		slog.Int("threshold", wallet.Threshold),
		slog.Int("signers", len(wallet.Signers)),
	)
	return cloneWallet(wallet), nil
}

// CreateTransaction 基于当前链状态构造未签名转账，门限在此刻快照。
func (s *Service) CreateTransaction(ctx context.Context, req CreateTransactionRequest) (*Transaction, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, xerrors.Wrap(CodeInvalidRequest, err, "交易参数不合法")
	}
	if !req.Amount.IsPositive() {
		return nil, ErrInvalidAmount
	}
	wallet, err := s.store.GetWallet(ctx, req.WalletID)
	if err != nil {
		return nil, err
	}
	if !wallet.HasAgent(req.InitiatorID) {
		return nil, xerrors.New(CodeNotAuthorized, "发起者不在钱包授权列表中")
	}

	payload, err := s.chain.BuildTransfer(ctx, wallet.Address, req.Recipient, req.Amount)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeChainFailure, err, "构造链上转账失败")
	}

	now := s.now()
	tx := &Transaction{
		ID:              uuid.NewString(),
		WalletID:        wallet.ID,
		InitiatorID:     req.InitiatorID,
		Recipient:       req.Recipient,
		Amount:          req.Amount,
		Memo:            req.Memo,
		TransactionData: base64.StdEncoding.EncodeToString(payload),
		Signatures:      []string{},
		SignedBy:        []string{},
		Status:          StatusPending,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	err = s.store.CreateTransaction(ctx, tx, func(w *Wallet) error {
		if !w.HasAgent(req.InitiatorID) {
			return xerrors.New(CodeNotAuthorized, "发起者不在钱包授权列表中")
		}
		tx.SignaturesRequired = w.Threshold
		w.UpdatedAt = now
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.Audit().Info("多签交易已创建",
		slog.String("transaction_id", tx.ID),
		slog.String("wallet_id", tx.WalletID),
		slog.String("initiator_id", tx.InitiatorID),
		slog.String("amount", tx.Amount.String()),
		slog.Int("signatures_required", tx.SignaturesRequired),
	)
	return cloneTransaction(tx), nil
}

// SignTransaction 校验并追加一份签名；达到门限时同步执行广播，返回最终状态的交易。
func (s *Service) SignTransaction(ctx context.Context, req SignRequest) (*Transaction, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, xerrors.Wrap(CodeInvalidRequest, err, "签名参数不合法")
	}

	tx, _, err := s.store.UpdateTransaction(ctx, req.TransactionID, func(t *Transaction, w *Wallet) error {
		if !t.Status.Signable() {
			return ErrTransactionNotSignable
		}
		if !w.HasAgent(req.SignerID) {
			return ErrSignerNotAuthorized
		}
		agent, err := s.registry.Agent(ctx, req.SignerID)
		if err != nil {
			return s.agentError(err)
		}
		signerAddress := agent.WalletAddress
		if !w.HasSigner(signerAddress) {
			return xerrors.New(CodeSignerNotAuthorized, "签名者钱包地址不在签名者列表中")
		}
		if contains(t.SignedBy, req.SignerID) {
			return ErrAlreadySigned
		}
		if contains(t.Signatures, req.Signature) {
			return ErrDuplicateSignature
		}
		payload, err := base64.StdEncoding.DecodeString(t.TransactionData)
		if err != nil {
			return xerrors.Wrap(xerrors.CodeStorageFailure, err, "交易载荷已损坏")
		}
		if !VerifySignature(payload, req.Signature, req.PublicKey) {
			return ErrInvalidSignature
		}
		if s.keyBinding {
			derived, ok := AddressOfPublicKey(req.PublicKey)
			if !ok || !strings.EqualFold(derived, signerAddress) {
				return xerrors.New(CodeSignerNotAuthorized, "签名公钥与签名者钱包地址不匹配")
			}
		}

		t.Signatures = append(t.Signatures, req.Signature)
		t.SignedBy = append(t.SignedBy, req.SignerID)
		if len(t.SignedBy) >= t.SignaturesRequired {
			t.Status = StatusReady
		} else {
			t.Status = StatusPartiallySigned
		}
		t.UpdatedAt = s.now()
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.indicators.SignatureCollected()
	logger.Audit().Info("多签交易已签名",
		slog.String("transaction_id", tx.ID),
		slog.String("signer_id", req.SignerID),
		slog.Int("signatures", len(tx.Signatures)),
		slog.Int("signatures_required", tx.SignaturesRequired),
		slog.String("status", string(tx.Status)),
	)

	if tx.Status != StatusReady {
		return tx, nil
	}
	return s.executeTransaction(ctx, tx.ID)
}

// executeTransaction 广播并确认 READY 交易；任何失败都将交易终结为 CANCELLED 并告警。
func (s *Service) executeTransaction(ctx context.Context, id string) (*Transaction, error) {
	tx, err := s.store.GetTransaction(ctx, id)
	if err != nil {
		return nil, err
	}
	if tx.Status != StatusReady {
		return tx, nil
	}

	payload, err := base64.StdEncoding.DecodeString(tx.TransactionData)
	if err != nil {
		return s.cancelAfterFailure(ctx, tx, xerrors.Wrap(xerrors.CodeStorageFailure, err, "交易载荷已损坏"))
	}

	start := time.Now()
	bctx, cancel := context.WithTimeout(ctx, s.broadcastTimeout)
	txSignature, err := s.chain.Submit(bctx, payload, tx.Signatures)
	if err == nil {
		err = s.chain.Confirm(bctx, txSignature)
	}
	cancel()
	s.indicators.ObserveBroadcastLatency(time.Since(start))
	if err != nil {
		return s.cancelAfterFailure(ctx, tx, err)
	}

	// 广播结果必须落库，即使调用方已取消。
	persistCtx := context.WithoutCancel(ctx)
	executedAt := s.now()
	updated, _, err := s.store.UpdateTransaction(persistCtx, id, func(t *Transaction, w *Wallet) error {
		if t.Status != StatusReady {
			return xerrors.New(CodeTransactionFinalized, "广播期间交易状态已变化",
				xerrors.WithMetadata("status", string(t.Status)))
		}
		t.Status = StatusExecuted
		t.TxSignature = txSignature
		t.ExecutedAt = &executedAt
		t.UpdatedAt = executedAt
		w.PendingTransactions--
		w.TotalTransactions++
		w.UpdatedAt = executedAt
		return nil
	})
	if err != nil {
		s.logger.Warn("链上转账已完成但记录未更新",
			slog.String("transaction_id", id),
			slog.String("tx_signature", txSignature),
			slog.Any("error", err),
		)
		alerting.Emit(persistCtx, s.alerts, CodeBroadcastFailed, err, "multisig_transaction", id,
			map[string]string{"wallet_id": tx.WalletID, "tx_signature": txSignature})
		return s.store.GetTransaction(persistCtx, id)
	}

	s.indicators.MultisigExecuted("executed")
	logger.Audit().Info("多签交易已执行",
		slog.String("transaction_id", id),
		slog.String("wallet_id", updated.WalletID),
		slog.String("tx_signature", txSignature),
	)
	return updated, nil
}

func (s *Service) cancelAfterFailure(ctx context.Context, tx *Transaction, cause error) (*Transaction, error) {
	persistCtx := context.WithoutCancel(ctx)
	s.logger.Error("多签交易广播失败",
		slog.String("transaction_id", tx.ID),
		slog.String("wallet_id", tx.WalletID),
		slog.Any("error", cause),
	)
	alerting.Emit(persistCtx, s.alerts, CodeBroadcastFailed, cause, "multisig_transaction", tx.ID,
		map[string]string{"wallet_id": tx.WalletID})
	s.indicators.MultisigExecuted("cancelled")

	now := s.now()
	updated, _, err := s.store.UpdateTransaction(persistCtx, tx.ID, func(t *Transaction, w *Wallet) error {
		if t.Status != StatusReady {
			return nil
		}
		t.Status = StatusCancelled
		t.UpdatedAt = now
		w.PendingTransactions--
		w.UpdatedAt = now
		return nil
	})
	if err != nil {
		return nil, err
	}
	logger.Audit().Warn("多签交易因广播失败取消",
		slog.String("transaction_id", tx.ID),
		slog.String("wallet_id", tx.WalletID),
	)
	return updated, nil
}

// CancelTransaction 取消尚未终结的交易。
func (s *Service) CancelTransaction(ctx context.Context, transactionID, cancelerID string) (*Transaction, error) {
	now := s.now()
	tx, _, err := s.store.UpdateTransaction(ctx, transactionID, func(t *Transaction, w *Wallet) error {
		if t.Status.Terminal() {
			return ErrTransactionFinalized
		}
		if !w.HasAgent(cancelerID) {
			return xerrors.New(CodeNotAuthorized, "无权取消该交易")
		}
		t.Status = StatusCancelled
		t.UpdatedAt = now
		w.PendingTransactions--
		w.UpdatedAt = now
		return nil
	})
	if err != nil {
		return nil, err
	}
	logger.Audit().Info("多签交易已取消",
		slog.String("transaction_id", tx.ID),
		slog.String("canceler_id", cancelerID),
	)
	return tx, nil
}

// AddSigner 追加签名者地址及其智能体。
func (s *Service) AddSigner(ctx context.Context, walletID, newSigner, agentID, requesterID string) (*Wallet, error) {
	if strings.TrimSpace(newSigner) == "" || strings.TrimSpace(agentID) == "" {
		return nil, xerrors.New(CodeInvalidRequest, "签名者与智能体不能为空")
	}
	wallet, err := s.store.GetWallet(ctx, walletID)
	if err != nil {
		return nil, err
	}
	if !wallet.HasAgent(requesterID) {
		return nil, ErrNotAuthorized
	}
	if wallet.HasSigner(newSigner) {
		return nil, ErrSignerExists
	}
	if err := s.requireAgent(ctx, agentID); err != nil {
		return nil, err
	}

	updated, err := s.store.UpdateWallet(ctx, walletID, func(w *Wallet) error {
		if !w.HasAgent(requesterID) {
			return ErrNotAuthorized
		}
		if w.HasSigner(newSigner) {
			return ErrSignerExists
		}
		w.Signers = append(w.Signers, newSigner)
		if !w.HasAgent(agentID) {
			w.AgentIDs = append(w.AgentIDs, agentID)
		}
		w.UpdatedAt = s.now()
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.auditWallet("多签钱包新增签名者", updated, requesterID, slog.String("signer", newSigner))
	return updated, nil
}

// RemoveSigner 移除签名者，剩余签名者不得少于 2 个且不得低于门限。
func (s *Service) RemoveSigner(ctx context.Context, walletID, signer, requesterID string) (*Wallet, error) {
	updated, err := s.store.UpdateWallet(ctx, walletID, func(w *Wallet) error {
		if !w.HasAgent(requesterID) {
			return ErrNotAuthorized
		}
		if !w.HasSigner(signer) {
			return ErrSignerNotFound
		}
		remaining := make([]string, 0, len(w.Signers)-1)
		for _, existing := range w.Signers {
			if existing != signer {
				remaining = append(remaining, existing)
			}
		}
		if len(remaining) < 2 {
			return xerrors.New(CodeTooFewSigners, "移除后签名者少于 2 个")
		}
		if w.Threshold > len(remaining) {
			return xerrors.New(CodeInvalidThreshold, "移除后门限将超过签名者数量")
		}
		w.Signers = remaining
		w.UpdatedAt = s.now()
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.auditWallet("多签钱包移除签名者", updated, requesterID, slog.String("signer", signer))
	return updated, nil
}

// UpdateThreshold 修改门限；已创建交易的签名要求不受影响。
func (s *Service) UpdateThreshold(ctx context.Context, walletID string, threshold int, requesterID string) (*Wallet, error) {
	updated, err := s.store.UpdateWallet(ctx, walletID, func(w *Wallet) error {
		if !w.HasAgent(requesterID) {
			return ErrNotAuthorized
		}
		if threshold < 1 || threshold > len(w.Signers) {
			return ErrInvalidThreshold
		}
		w.Threshold = threshold
		w.UpdatedAt = s.now()
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.auditWallet("多签钱包门限已修改", updated, requesterID, slog.Int("threshold", threshold))
	return updated, nil
}

// Wallet 返回钱包配置。
func (s *Service) Wallet(ctx context.Context, walletID string) (*Wallet, error) {
	return s.store.GetWallet(ctx, walletID)
}

// WalletBalance 查询钱包地址的链上余额。
func (s *Service) WalletBalance(ctx context.Context, walletID string) (string, error) {
	wallet, err := s.store.GetWallet(ctx, walletID)
	if err != nil {
		return "", err
	}
	balance, err := s.chain.Balance(ctx, wallet.Address)
	if err != nil {
		return "", xerrors.Wrap(xerrors.CodeChainFailure, err, "查询钱包余额失败")
	}
	return balance.String(), nil
}

// PendingTransactions 按创建时间倒序列出未终结的交易。
func (s *Service) PendingTransactions(ctx context.Context, walletID string) ([]*Transaction, error) {
	if _, err := s.store.GetWallet(ctx, walletID); err != nil {
		return nil, err
	}
	return s.store.ListTransactions(ctx, walletID, PendingStatuses)
}

// TransactionDetails 返回交易及其解码后的收款方与金额。
func (s *Service) TransactionDetails(ctx context.Context, transactionID string) (*TransactionDetails, error) {
	tx, err := s.store.GetTransaction(ctx, transactionID)
	if err != nil {
		return nil, err
	}
	wallet, err := s.store.GetWallet(ctx, tx.WalletID)
	if err != nil {
		return nil, err
	}
	details := &TransactionDetails{
		Transaction:        tx,
		Recipient:          tx.Recipient,
		Amount:             tx.Amount,
		SignaturesRequired: tx.SignaturesRequired,
		SignaturesProvided: len(tx.Signatures),
		Signers:            wallet.Signers,
	}
	if payload, err := base64.StdEncoding.DecodeString(tx.TransactionData); err == nil {
		if transfer, err := s.chain.DecodeTransfer(payload); err == nil {
			details.Recipient = transfer.To
			details.Amount = transfer.Amount
		} else {
			s.logger.Debug("无法解码交易载荷", slog.String("transaction_id", tx.ID), slog.Any("error", err))
		}
	}
	return details, nil
}

func (s *Service) requireAgent(ctx context.Context, agentID string) error {
	if _, err := s.registry.Agent(ctx, agentID); err != nil {
		return s.agentError(err)
	}
	return nil
}

func (s *Service) agentError(err error) error {
	if xerrors.CodeOf(err) == registry.CodeAgentNotFound {
		return xerrors.Wrap(CodeAgentNotFound, err, "智能体不存在")
	}
	return err
}

func (s *Service) auditWallet(msg string, w *Wallet, requesterID string, attr slog.Attr) {
	logger.Audit().Info(msg,
		slog.String("wallet_id", w.ID),
		slog.String("requester_id", requesterID),
		attr,
	)
}
