package credential

import "time"

// Type 表示凭证的类别。
type Type string

const (
	TypeReputationProof      Type = "REPUTATION_PROOF"
	TypeTransactionHistory   Type = "TRANSACTION_HISTORY"
	TypeIdentityVerification Type = "IDENTITY_VERIFICATION"
	TypeServiceCompletion    Type = "SERVICE_COMPLETION"
	TypeDisputeResolution    Type = "DISPUTE_RESOLUTION"
)

var schemas = map[Type]string{
	TypeReputationProof:      "reputation-v1",
	TypeTransactionHistory:   "transaction-history-v1",
	TypeIdentityVerification: "identity-v1",
	TypeServiceCompletion:    "service-completion-v1",
	TypeDisputeResolution:    "dispute-resolution-v1",
}

// SchemaFor 返回凭证类别对应的固定 schema。
func SchemaFor(t Type) (string, bool) {
	id, ok := schemas[t]
	return id, ok
}

const (
	// ProofProtocol 与 ProofCurve 是证明对象必须携带的标签。
	ProofProtocol = "groth16"
	ProofCurve    = "bn128"
	// SystemIssuer 是派生凭证的签发者。
	SystemIssuer = "system"
	// DerivedValidity 是信誉与交易历史凭证的有效期。
	DerivedValidity = 30 * 24 * time.Hour
)

// Claim 是待签发的声明。
type Claim struct {
	AgentID        string         `json:"agentId" validate:"required"`
	CredentialType Type           `json:"credentialType" validate:"required"`
	Attributes     map[string]any `json:"attributes"`
	ValidUntil     *time.Time     `json:"validUntil,omitempty"`
}

// Credential 是已签发的凭证记录。
type Credential struct {
	ID               string     `json:"id"`
	AgentID          string     `json:"agentId"`
	CredentialType   Type       `json:"credentialType"`
	SchemaID         string     `json:"schemaId"`
	Commitment       string     `json:"commitment"`
	Nullifier        string     `json:"nullifier"`
	ProofURI         string     `json:"proofUri"`
	IssuedBy         string     `json:"issuedBy"`
	ExpiresAt        *time.Time `json:"expiresAt,omitempty"`
	IsRevoked        bool       `json:"isRevoked"`
	RevokedAt        *time.Time `json:"revokedAt,omitempty"`
	RevocationReason string     `json:"revocationReason,omitempty"`
	CreatedAt        time.Time  `json:"createdAt"`
}

// Proof 是提交给校验方的证明。
type Proof struct {
	Commitment    string   `json:"commitment"`
	Nullifier     string   `json:"nullifier"`
	Proof         string   `json:"proof"`
	PublicSignals []string `json:"publicSignals"`
	MerklePath    []string `json:"merklePath,omitempty"`
	LeafIndex     int      `json:"leafIndex"`
}

// proofObject 是 Proof.Proof 中序列化的证明结构。
type proofObject struct {
	PiA      []string   `json:"pi_a"`
	PiB      [][]string `json:"pi_b"`
	PiC      []string   `json:"pi_c"`
	Protocol string     `json:"protocol"`
	Curve    string     `json:"curve"`
}

func cloneCredential(c *Credential) *Credential {
	clone := *c
	if c.ExpiresAt != nil {
		at := *c.ExpiresAt
		clone.ExpiresAt = &at
	}
	if c.RevokedAt != nil {
		at := *c.RevokedAt
		clone.RevokedAt = &at
	}
	return &clone
}
