package api

import (
	"net/http"

	"X402-Registry/internal/multisig"
)

type addSignerRequest struct {
	Signer      string `json:"signer"`
	AgentID     string `json:"agentId"`
	RequesterID string `json:"requesterId"`
}

type thresholdRequest struct {
	Threshold   int    `json:"threshold"`
	RequesterID string `json:"requesterId"`
}

type cancelRequest struct {
	CancelerID string `json:"cancelerId"`
}

func (s *Server) handleCreateWallet(w http.ResponseWriter, r *http.Request) {
	var req multisig.CreateWalletRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	wallet, err := s.svc.Multisig.CreateWallet(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, wallet)
}

func (s *Server) handleWallet(w http.ResponseWriter, r *http.Request) {
	wallet, err := s.svc.Multisig.Wallet(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, wallet)
}

func (s *Server) handleWalletBalance(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	balance, err := s.svc.Multisig.WalletBalance(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"walletId": id, "balance": balance})
}

func (s *Server) handlePendingTransactions(w http.ResponseWriter, r *http.Request) {
	txs, err := s.svc.Multisig.PendingTransactions(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, txs)
}

func (s *Server) handleCreateTransaction(w http.ResponseWriter, r *http.Request) {
	var req multisig.CreateTransactionRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	req.WalletID = r.PathValue("id")
	tx, err := s.svc.Multisig.CreateTransaction(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, tx)
}

func (s *Server) handleAddSigner(w http.ResponseWriter, r *http.Request) {
	var req addSignerRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	wallet, err := s.svc.Multisig.AddSigner(r.Context(), r.PathValue("id"), req.Signer, req.AgentID, req.RequesterID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, wallet)
}

func (s *Server) handleRemoveSigner(w http.ResponseWriter, r *http.Request) {
	requester := r.URL.Query().Get("requesterId")
	wallet, err := s.svc.Multisig.RemoveSigner(r.Context(), r.PathValue("id"), r.PathValue("signer"), requester)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, wallet)
}

func (s *Server) handleUpdateThreshold(w http.ResponseWriter, r *http.Request) {
	var req thresholdRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	wallet, err := s.svc.Multisig.UpdateThreshold(r.Context(), r.PathValue("id"), req.Threshold, req.RequesterID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, wallet)
}

func (s *Server) handleTransactionDetails(w http.ResponseWriter, r *http.Request) {
	details, err := s.svc.Multisig.TransactionDetails(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, details)
}

func (s *Server) handleSignTransaction(w http.ResponseWriter, r *http.Request) {
	var req multisig.SignRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	req.TransactionID = r.PathValue("id")
	tx, err := s.svc.Multisig.SignTransaction(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tx)
}

func (s *Server) handleCancelTransaction(w http.ResponseWriter, r *http.Request) {
	var req cancelRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	tx, err := s.svc.Multisig.CancelTransaction(r.Context(), r.PathValue("id"), req.CancelerID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tx)
}
