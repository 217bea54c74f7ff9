package multisig

import (
	"time"

	"github.com/shopspring/decimal"
)

// TransactionStatus 描述多签交易的生命周期。
type TransactionStatus string

const (
	StatusPending         TransactionStatus = "PENDING"
	StatusPartiallySigned TransactionStatus = "PARTIALLY_SIGNED"
	StatusReady           TransactionStatus = "READY"
	StatusExecuted        TransactionStatus = "EXECUTED"
	StatusCancelled       TransactionStatus = "CANCELLED"
)

// Terminal 判断状态是否已经终结。
func (s TransactionStatus) Terminal() bool {
	return s == StatusExecuted || s == StatusCancelled
}

// Signable 判断交易是否仍在收集签名。
func (s TransactionStatus) Signable() bool {
	return s == StatusPending || s == StatusPartiallySigned
}

// PendingStatuses 是待处理交易列表包含的状态。
var PendingStatuses = []TransactionStatus{StatusPending, StatusPartiallySigned, StatusReady}

// Wallet 是门限钱包的配置。
type Wallet struct {
	ID                  string    `json:"id"`
	Address             string    `json:"address"`
	Threshold           int       `json:"threshold"`
	Signers             []string  `json:"signers"`
	AgentIDs            []string  `json:"agentIds"`
	PendingTransactions int       `json:"pendingTransactions"`
	TotalTransactions   int       `json:"totalTransactions"`
	CreatedAt           time.Time `json:"createdAt"`
	UpdatedAt           time.Time `json:"updatedAt"`
}

// HasAgent 判断 agentID 是否为钱包授权的智能体。
func (w *Wallet) HasAgent(agentID string) bool {
	return contains(w.AgentIDs, agentID)
}

// HasSigner 判断地址是否在签名者列表中。
func (w *Wallet) HasSigner(address string) bool {
	return contains(w.Signers, address)
}

// Transaction 是等待联署的转账。
type Transaction struct {
	ID                 string            `json:"id"`
	WalletID           string            `json:"walletId"`
	InitiatorID        string            `json:"initiatorId"`
	Recipient          string            `json:"recipient"`
	Amount             decimal.Decimal   `json:"amount"`
	Memo               string            `json:"memo,omitempty"`
	TransactionData    string            `json:"transactionData"`
	SignaturesRequired int               `json:"signaturesRequired"`
	Signatures         []string          `json:"signatures"`
	SignedBy           []string          `json:"signedBy"`
	Status             TransactionStatus `json:"status"`
	TxSignature        string            `json:"txSignature,omitempty"`
	CreatedAt          time.Time         `json:"createdAt"`
	UpdatedAt          time.Time         `json:"updatedAt"`
	ExecutedAt         *time.Time        `json:"executedAt,omitempty"`
}

// TransactionDetails 是交易及其解码后的转账内容。
type TransactionDetails struct {
	Transaction        *Transaction    `json:"transaction"`
	Recipient          string          `json:"recipient"`
	Amount             decimal.Decimal `json:"amount"`
	SignaturesRequired int             `json:"signaturesRequired"`
	SignaturesProvided int             `json:"signaturesProvided"`
	Signers            []string        `json:"signers"`
}

// CreateWalletRequest 描述新钱包。
type CreateWalletRequest struct {
	Signers   []string `json:"signers" validate:"dive,required"`
	Threshold int      `json:"threshold"`
	AgentIDs  []string `json:"agentIds" validate:"min=1,dive,required"`
}

// CreateTransactionRequest 描述一笔待联署转账。
type CreateTransactionRequest struct {
	WalletID    string          `json:"walletId" validate:"required"`
	InitiatorID string          `json:"initiatorId" validate:"required"`
	Recipient   string          `json:"recipient" validate:"required"`
	Amount      decimal.Decimal `json:"amount"`
	Memo        string          `json:"memo,omitempty" validate:"max=512"`
}

// SignRequest 携带签名者对交易摘要的签名。
type SignRequest struct {
	TransactionID string `json:"transactionId" validate:"required"`
	SignerID      string `json:"signerId" validate:"required"`
	Signature     string `json:"signature" validate:"required,base64"`
	PublicKey     string `json:"publicKey" validate:"required,hexadecimal"`
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}

func cloneWallet(w *Wallet) *Wallet {
	if w == nil {
		return nil
	}
	out := *w
	out.Signers = append([]string(nil), w.Signers...)
	out.AgentIDs = append([]string(nil), w.AgentIDs...)
	return &out
}

func cloneTransaction(t *Transaction) *Transaction {
	if t == nil {
		return nil
	}
	out := *t
	out.Signatures = append([]string(nil), t.Signatures...)
	out.SignedBy = append([]string(nil), t.SignedBy...)
	if t.ExecutedAt != nil {
		at := *t.ExecutedAt
		out.ExecutedAt = &at
	}
	return &out
}
