// Package registry is a Go client for the registry REST API.
package registry

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/crypto"

	"X402-Registry/internal/multisig"
)

// DefaultHTTPTimeout is used by clients created without a custom http.Client.
// Signing the final signature of a transaction waits for chain confirmation,
// so it is longer than a typical API call.
const DefaultHTTPTimeout = 90 * time.Second

// Client wraps the HTTP interactions with the registry REST API.
type Client struct {
	baseURL    *url.URL
	httpClient *http.Client

	mu          sync.RWMutex
	accessToken string
}

// NewClient instantiates a client. When httpClient is nil, a default client
// with DefaultHTTPTimeout is used.
func NewClient(rawURL string, httpClient *http.Client) (*Client, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base url: %w", err)
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultHTTPTimeout}
	}
	return &Client{baseURL: parsed, httpClient: httpClient}, nil
}

// AccessToken returns the currently stored operator token.
func (c *Client) AccessToken() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.accessToken
}

// SetAccessToken sets the operator token sent on every request.
func (c *Client) SetAccessToken(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.accessToken = token
}

// CreateProposal opens a governance proposal.
func (c *Client) CreateProposal(ctx context.Context, p NewProposal) (*Proposal, error) {
	var out Proposal
	if err := c.call(ctx, http.MethodPost, "/api/v1/proposals", p, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ActiveProposals lists proposals that are still open for voting.
func (c *Client) ActiveProposals(ctx context.Context) ([]ProposalView, error) {
	var out []ProposalView
	if err := c.call(ctx, http.MethodGet, "/api/v1/proposals", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Proposal fetches a proposal with its votes.
func (c *Client) Proposal(ctx context.Context, id string) (*ProposalView, error) {
	var out ProposalView
	if err := c.call(ctx, http.MethodGet, "/api/v1/proposals/"+url.PathEscape(id), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CastVote records a ballot on a proposal.
func (c *Client) CastVote(ctx context.Context, proposalID string, b Ballot) (*Vote, error) {
	var out Vote
	if err := c.call(ctx, http.MethodPost, "/api/v1/proposals/"+url.PathEscape(proposalID)+"/votes", b, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CloseProposal tallies a proposal and triggers execution when it passes.
func (c *Client) CloseProposal(ctx context.Context, proposalID string) (*Proposal, error) {
	var out Proposal
	if err := c.call(ctx, http.MethodPost, "/api/v1/proposals/"+url.PathEscape(proposalID)+"/close", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// VotingPower returns the stake-weighted voting power of an agent.
func (c *Client) VotingPower(ctx context.Context, agentID string) (int64, error) {
	var out struct {
		VotingPower int64 `json:"votingPower"`
	}
	if err := c.call(ctx, http.MethodGet, "/api/v1/agents/"+url.PathEscape(agentID)+"/voting-power", nil, &out); err != nil {
		return 0, err
	}
	return out.VotingPower, nil
}

// CreateWallet creates a threshold wallet.
func (c *Client) CreateWallet(ctx context.Context, w NewWallet) (*Wallet, error) {
	var out Wallet
	if err := c.call(ctx, http.MethodPost, "/api/v1/wallets", w, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CreateTransaction proposes a transfer out of a wallet.
func (c *Client) CreateTransaction(ctx context.Context, walletID string, t Transfer) (*Transaction, error) {
	var out Transaction
	if err := c.call(ctx, http.MethodPost, "/api/v1/wallets/"+url.PathEscape(walletID)+"/transactions", t, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// PendingTransactions lists unfinished transactions of a wallet.
func (c *Client) PendingTransactions(ctx context.Context, walletID string) ([]Transaction, error) {
	var out []Transaction
	if err := c.call(ctx, http.MethodGet, "/api/v1/wallets/"+url.PathEscape(walletID)+"/transactions", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// SignTransaction submits a co-signature. The final signature triggers
// broadcast and the returned transaction reflects the outcome.
func (c *Client) SignTransaction(ctx context.Context, transactionID string, s Signature) (*Transaction, error) {
	var out Transaction
	if err := c.call(ctx, http.MethodPost, "/api/v1/transactions/"+url.PathEscape(transactionID)+"/signatures", s, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// IssueCredential issues a credential for a claim.
func (c *Client) IssueCredential(ctx context.Context, claim Claim) (*Credential, error) {
	var out Credential
	if err := c.call(ctx, http.MethodPost, "/api/v1/credentials", claim, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GenerateProof builds a proof for a credential revealing the named attributes.
func (c *Client) GenerateProof(ctx context.Context, credentialID string, reveal []string) (*Proof, error) {
	var out Proof
	body := map[string][]string{"revealAttributes": reveal}
	if err := c.call(ctx, http.MethodPost, "/api/v1/credentials/"+url.PathEscape(credentialID)+"/proofs", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// VerifyProof checks a proof against the schema's current accumulator.
func (c *Client) VerifyProof(ctx context.Context, proof Proof, schemaID, expectedNullifier string) (bool, error) {
	var out struct {
		Valid bool `json:"valid"`
	}
	body := map[string]any{"proof": proof, "schemaId": schemaID, "expectedNullifier": expectedNullifier}
	if err := c.call(ctx, http.MethodPost, "/api/v1/proofs/verify", body, &out); err != nil {
		return false, err
	}
	return out.Valid, nil
}

// Sign produces the signature and public key fields of a co-signature for the
// transaction's serialized payload.
func Sign(tx *Transaction, signerID string, key *ecdsa.PrivateKey) (Signature, error) {
	payload, err := base64.StdEncoding.DecodeString(tx.TransactionData)
	if err != nil {
		return Signature{}, fmt.Errorf("decode transaction data: %w", err)
	}
	sig, err := crypto.Sign(multisig.SigningDigest(payload), key)
	if err != nil {
		return Signature{}, fmt.Errorf("sign transaction: %w", err)
	}
	return Signature{
		SignerID:  signerID,
		Signature: base64.StdEncoding.EncodeToString(sig[:64]),
		PublicKey: hex.EncodeToString(crypto.CompressPubkey(&key.PublicKey)),
	}, nil
}

func (c *Client) call(ctx context.Context, method, endpoint string, payload, out any) error {
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(raw)
	}
	rel, err := url.Parse(endpoint)
	if err != nil {
		return fmt.Errorf("invalid endpoint: %w", err)
	}
	rel.Path = path.Join(c.baseURL.Path, rel.Path)
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL.ResolveReference(rel).String(), body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token := c.AccessToken(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("perform request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("read error response: %w", err)
		}
		if len(data) > 0 {
			_ = json.Unmarshal(data, apiErr)
		}
		if apiErr.Message == "" {
			apiErr.Message = string(bytes.TrimSpace(data))
		}
		return apiErr
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
