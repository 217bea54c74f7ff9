package api

import (
	"net/http"

	"X402-Registry/internal/credential"
)

type issueCredentialRequest struct {
	credential.Claim
	IssuerID string `json:"issuerId"`
}

type generateProofRequest struct {
	RevealAttributes []string `json:"revealAttributes"`
}

type revokeRequest struct {
	Reason string `json:"reason"`
}

type reputationProofRequest struct {
	Threshold int `json:"threshold"`
}

type historyProofRequest struct {
	MinTransactions int `json:"minTransactions"`
}

type completionProofRequest struct {
	ServiceID string `json:"serviceId"`
	PaymentID string `json:"paymentId"`
}

type verifyProofRequest struct {
	Proof             credential.Proof `json:"proof"`
	SchemaID          string           `json:"schemaId"`
	ExpectedNullifier string           `json:"expectedNullifier"`
}

func (s *Server) handleIssueCredential(w http.ResponseWriter, r *http.Request) {
	var req issueCredentialRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	c, err := s.svc.Credentials.IssueCredential(r.Context(), req.Claim, req.IssuerID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

func (s *Server) handleCredential(w http.ResponseWriter, r *http.Request) {
	c, err := s.svc.Credentials.Credential(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (s *Server) handleAgentCredentials(w http.ResponseWriter, r *http.Request) {
	list, err := s.svc.Credentials.CredentialsByAgent(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleGenerateProof(w http.ResponseWriter, r *http.Request) {
	var req generateProofRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	proof, err := s.svc.Credentials.GenerateProof(r.Context(), r.PathValue("id"), req.RevealAttributes)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, proof)
}

func (s *Server) handleRevokeCredential(w http.ResponseWriter, r *http.Request) {
	var req revokeRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	c, err := s.svc.Credentials.RevokeCredential(r.Context(), r.PathValue("id"), req.Reason)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (s *Server) handleReputationProof(w http.ResponseWriter, r *http.Request) {
	var req reputationProofRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	c, err := s.svc.Credentials.IssueReputationProof(r.Context(), r.PathValue("id"), req.Threshold)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

func (s *Server) handleTransactionHistoryProof(w http.ResponseWriter, r *http.Request) {
	var req historyProofRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	c, err := s.svc.Credentials.IssueTransactionHistoryProof(r.Context(), r.PathValue("id"), req.MinTransactions)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

func (s *Server) handleServiceCompletionProof(w http.ResponseWriter, r *http.Request) {
	var req completionProofRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	c, err := s.svc.Credentials.IssueServiceCompletionProof(r.Context(), r.PathValue("id"), req.ServiceID, req.PaymentID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

func (s *Server) handleVerifyProof(w http.ResponseWriter, r *http.Request) {
	var req verifyProofRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	valid, err := s.svc.Credentials.VerifyProof(r.Context(), req.Proof, req.SchemaID, req.ExpectedNullifier)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"valid": valid})
}

func (s *Server) handleSchemaRoot(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	root, err := s.svc.Credentials.MerkleRoot(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"schemaId": id, "root": root})
}
