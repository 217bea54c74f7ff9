package credential

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"time"
)

const secretSize = 32

// commitment = H(H(json{agentId, credentialType, attributes}) || secret)
func commitmentOf(claim Claim, secret []byte) (string, error) {
	payload, err := json.Marshal(struct {
		AgentID        string         `json:"agentId"`
		CredentialType Type           `json:"credentialType"`
		Attributes     map[string]any `json:"attributes"`
	}{claim.AgentID, claim.CredentialType, claim.Attributes})
	if err != nil {
		return "", err
	}
	claimHash := sha256.Sum256(payload)
	h := sha256.New()
	h.Write(claimHash[:])
	h.Write(secret)
	return hex.EncodeToString(h.Sum(nil)), nil
}

// nullifier = H(agentId ":" credentialType ":" hex(secret))
func nullifierOf(agentID string, t Type, secret []byte) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s:%s:%s", agentID, t, hex.EncodeToString(secret))))
	return hex.EncodeToString(sum[:])
}

// proofURIOf 以证明材料的摘要作为内容寻址 URI。
func proofURIOf(claim Claim, commitment string, secret []byte, issuedAt time.Time) (string, error) {
	payload, err := json.Marshal(map[string]any{
		"claim":      claim,
		"commitment": commitment,
		"secret":     hex.EncodeToString(secret),
		"issuedAt":   issuedAt.Format(time.RFC3339Nano),
	})
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(payload)
	return "ipfs://" + hex.EncodeToString(sum[:]), nil
}

func randomHex(r io.Reader, n int) (string, error) {
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

// placeholderProof 生成带有 groth16/bn128 标签的占位证明对象。
func placeholderProof(r io.Reader) (string, error) {
	elems := make([]string, 8)
	for i := range elems {
		v, err := randomHex(r, 32)
		if err != nil {
			return "", err
		}
		elems[i] = v
	}
	raw, err := json.Marshal(proofObject{
		PiA:      []string{elems[0], elems[1]},
		PiB:      [][]string{{elems[2], elems[3]}, {elems[4], elems[5]}},
		PiC:      []string{elems[6], elems[7]},
		Protocol: ProofProtocol,
		Curve:    ProofCurve,
	})
	if err != nil {
		return "", err
	}
	return string(raw), nil
}
