package api

import (
	"net/http"

	"X402-Registry/internal/governance"

	"github.com/shopspring/decimal"
)

type assignArbitratorRequest struct {
	DisputeID    string `json:"disputeId"`
	ArbitratorID string `json:"arbitratorId"`
}

type completeArbitrationRequest struct {
	Ruling              string          `json:"ruling"`
	Compensation        decimal.Decimal `json:"compensation"`
	SlashRecommendation decimal.Decimal `json:"slashRecommendation"`
}

type completeArbitrationResponse struct {
	Arbitration *governance.Arbitration `json:"arbitration"`
	Proposal    *governance.Proposal    `json:"proposal"`
}

func (s *Server) handleCreateProposal(w http.ResponseWriter, r *http.Request) {
	var req governance.CreateProposalRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	proposal, err := s.svc.Governance.CreateProposal(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, proposal)
}

func (s *Server) handleActiveProposals(w http.ResponseWriter, r *http.Request) {
	views, err := s.svc.Governance.ActiveProposals(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, views)
}

func (s *Server) handleProposalDetails(w http.ResponseWriter, r *http.Request) {
	view, err := s.svc.Governance.ProposalDetails(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleCastVote(w http.ResponseWriter, r *http.Request) {
	var req governance.CastVoteRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	req.ProposalID = r.PathValue("id")
	vote, err := s.svc.Governance.CastVote(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, vote)
}

func (s *Server) handleCloseProposal(w http.ResponseWriter, r *http.Request) {
	proposal, err := s.svc.Governance.CloseProposal(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, proposal)
}

// handleExecuteProposal 供运维在执行失败后手动重试。
func (s *Server) handleExecuteProposal(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.svc.Governance.ExecuteProposal(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	view, err := s.svc.Governance.ProposalDetails(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view.Proposal)
}

func (s *Server) handleVotingPower(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	power, err := s.svc.Governance.GetVotingPower(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"agentId": id, "votingPower": power})
}

func (s *Server) handleAssignArbitrator(w http.ResponseWriter, r *http.Request) {
	var req assignArbitratorRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	arb, err := s.svc.Governance.AssignArbitrator(r.Context(), req.DisputeID, req.ArbitratorID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, arb)
}

func (s *Server) handleArbitration(w http.ResponseWriter, r *http.Request) {
	arb, err := s.svc.Governance.Arbitration(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, arb)
}

func (s *Server) handleCompleteArbitration(w http.ResponseWriter, r *http.Request) {
	var req completeArbitrationRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	arb, proposal, err := s.svc.Governance.CompleteArbitration(r.Context(), r.PathValue("id"),
		req.Ruling, req.Compensation, req.SlashRecommendation)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, completeArbitrationResponse{Arbitration: arb, Proposal: proposal})
}
