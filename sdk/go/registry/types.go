package registry

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Proposal mirrors the governance proposal resource.
type Proposal struct {
	ID              string     `json:"id"`
	ProposerID      string     `json:"proposerId"`
	Type            string     `json:"type"`
	Title           string     `json:"title"`
	Description     string     `json:"description"`
	DisputeID       string     `json:"disputeId,omitempty"`
	TargetAgentID   string     `json:"targetAgentId,omitempty"`
	TargetServiceID string     `json:"targetServiceId,omitempty"`
	ProposedAction  string     `json:"proposedAction"`
	VotingStartAt   time.Time  `json:"votingStartAt"`
	VotingEndAt     time.Time  `json:"votingEndAt"`
	QuorumRequired  int64      `json:"quorumRequired"`
	TotalVotes      int64      `json:"totalVotes"`
	VotesFor        int64      `json:"votesFor"`
	VotesAgainst    int64      `json:"votesAgainst"`
	VotesAbstain    int64      `json:"votesAbstain"`
	Status          string     `json:"status"`
	ExecutedAt      *time.Time `json:"executedAt,omitempty"`
}

// NewProposal is the payload for creating a proposal.
type NewProposal struct {
	ProposerID          string `json:"proposerId"`
	Type                string `json:"type"`
	Title               string `json:"title"`
	Description         string `json:"description,omitempty"`
	DisputeID           string `json:"disputeId,omitempty"`
	TargetAgentID       string `json:"targetAgentId,omitempty"`
	TargetServiceID     string `json:"targetServiceId,omitempty"`
	ProposedAction      string `json:"proposedAction,omitempty"`
	VotingDurationHours int    `json:"votingDurationHours"`
}

// Ballot is the payload for casting a vote.
type Ballot struct {
	VoterID     string `json:"voterId"`
	VoteType    string `json:"voteType"`
	VotingPower int64  `json:"votingPower"`
	Reason      string `json:"reason,omitempty"`
	Signature   string `json:"signature,omitempty"`
}

// Vote is a recorded vote.
type Vote struct {
	ID          string    `json:"id"`
	ProposalID  string    `json:"proposalId"`
	VoterID     string    `json:"voterId"`
	VoteType    string    `json:"voteType"`
	VotingPower int64     `json:"votingPower"`
	CreatedAt   time.Time `json:"createdAt"`
}

// ProposalView is a proposal with its votes.
type ProposalView struct {
	Proposal *Proposal `json:"proposal"`
	Votes    []Vote    `json:"votes"`
}

// Wallet mirrors the threshold wallet resource.
type Wallet struct {
	ID                  string   `json:"id"`
	Address             string   `json:"address"`
	Threshold           int      `json:"threshold"`
	Signers             []string `json:"signers"`
	AgentIDs            []string `json:"agentIds"`
	PendingTransactions int      `json:"pendingTransactions"`
	TotalTransactions   int      `json:"totalTransactions"`
}

// NewWallet is the payload for creating a wallet.
type NewWallet struct {
	Signers   []string `json:"signers"`
	Threshold int      `json:"threshold"`
	AgentIDs  []string `json:"agentIds"`
}

// Transfer is the payload for proposing a wallet transfer.
type Transfer struct {
	InitiatorID string          `json:"initiatorId"`
	Recipient   string          `json:"recipient"`
	Amount      decimal.Decimal `json:"amount"`
	Memo        string          `json:"memo,omitempty"`
}

// Transaction mirrors a multisig transaction.
type Transaction struct {
	ID                 string          `json:"id"`
	WalletID           string          `json:"walletId"`
	InitiatorID        string          `json:"initiatorId"`
	Recipient          string          `json:"recipient"`
	Amount             decimal.Decimal `json:"amount"`
	TransactionData    string          `json:"transactionData"`
	SignaturesRequired int             `json:"signaturesRequired"`
	Signatures         []string        `json:"signatures"`
	SignedBy           []string        `json:"signedBy"`
	Status             string          `json:"status"`
	TxSignature        string          `json:"txSignature,omitempty"`
	ExecutedAt         *time.Time      `json:"executedAt,omitempty"`
}

// Signature is the payload for co-signing a transaction.
type Signature struct {
	SignerID  string `json:"signerId"`
	Signature string `json:"signature"`
	PublicKey string `json:"publicKey"`
}

// Claim is the payload for issuing a credential.
type Claim struct {
	AgentID        string         `json:"agentId"`
	CredentialType string         `json:"credentialType"`
	Attributes     map[string]any `json:"attributes,omitempty"`
	ValidUntil     *time.Time     `json:"validUntil,omitempty"`
	IssuerID       string         `json:"issuerId"`
}

// Credential mirrors an issued credential.
type Credential struct {
	ID             string     `json:"id"`
	AgentID        string     `json:"agentId"`
	CredentialType string     `json:"credentialType"`
	SchemaID       string     `json:"schemaId"`
	Commitment     string     `json:"commitment"`
	Nullifier      string     `json:"nullifier"`
	ProofURI       string     `json:"proofUri"`
	IssuedBy       string     `json:"issuedBy"`
	ExpiresAt      *time.Time `json:"expiresAt,omitempty"`
	IsRevoked      bool       `json:"isRevoked"`
}

// Proof is a selective-disclosure proof for a credential.
type Proof struct {
	Commitment    string   `json:"commitment"`
	Nullifier     string   `json:"nullifier"`
	Proof         string   `json:"proof"`
	PublicSignals []string `json:"publicSignals"`
	MerklePath    []string `json:"merklePath,omitempty"`
	LeafIndex     int      `json:"leafIndex"`
}

// APIError represents server side validation or internal errors.
type APIError struct {
	StatusCode int               `json:"-"`
	Code       string            `json:"code"`
	Message    string            `json:"message"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

func (e *APIError) Error() string {
	if e == nil {
		return ""
	}
	if e.Code != "" {
		return fmt.Sprintf("registry api error (%d): %s - %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("registry api error (%d): %s", e.StatusCode, e.Message)
}
