package governance

import xerrors "X402-Registry/internal/errors"

const (
	CodeProposalNotFound       xerrors.Code = "GOV_PROPOSAL_NOT_FOUND"
	CodeProposerNotFound       xerrors.Code = "GOV_PROPOSER_NOT_FOUND"
	CodeInsufficientReputation xerrors.Code = "GOV_INSUFFICIENT_REPUTATION"
	CodeInvalidProposal        xerrors.Code = "GOV_INVALID_PROPOSAL"
	CodeProposalNotActive      xerrors.Code = "GOV_PROPOSAL_NOT_ACTIVE"
	CodeVotingClosed           xerrors.Code = "GOV_VOTING_CLOSED"
	CodeVoterNotFound          xerrors.Code = "GOV_VOTER_NOT_FOUND"
	CodeAlreadyVoted           xerrors.Code = "GOV_ALREADY_VOTED"
	CodeInvalidVote            xerrors.Code = "GOV_INVALID_VOTE"
	CodeExecutionFailed        xerrors.Code = "GOV_EXECUTION_FAILED"
	CodeDisputeNotFound        xerrors.Code = "GOV_DISPUTE_NOT_FOUND"
	CodeDisputeNotOpen         xerrors.Code = "GOV_DISPUTE_NOT_OPEN"
	CodeArbitratorNotFound     xerrors.Code = "GOV_ARBITRATOR_NOT_FOUND"
	CodeArbitratorReputation   xerrors.Code = "GOV_ARBITRATOR_REPUTATION"
	CodeArbitrationNotFound    xerrors.Code = "GOV_ARBITRATION_NOT_FOUND"
	CodeArbitrationCompleted   xerrors.Code = "GOV_ARBITRATION_COMPLETED"
)

var (
	// ErrProposalNotFound 表示提案不存在。
	ErrProposalNotFound = xerrors.New(CodeProposalNotFound, "proposal not found")
	// ErrProposerNotFound 表示提案人不存在。
	ErrProposerNotFound = xerrors.New(CodeProposerNotFound, "proposer not found")
	// ErrInsufficientReputation 表示提案人声誉不足。
	ErrInsufficientReputation = xerrors.New(CodeInsufficientReputation, "insufficient reputation to create proposal")
	ErrInvalidProposal        = xerrors.New(CodeInvalidProposal, "invalid proposal")
	// ErrProposalNotActive 表示提案已结束投票。
	ErrProposalNotActive = xerrors.New(CodeProposalNotActive, "proposal is not active")
	// ErrVotingClosed 表示投票窗口已过，提案已被关闭。
	ErrVotingClosed  = xerrors.New(CodeVotingClosed, "voting period has ended")
	ErrVoterNotFound = xerrors.New(CodeVoterNotFound, "voter not found")
	// ErrAlreadyVoted 表示同一投票者重复投票。
	ErrAlreadyVoted = xerrors.New(CodeAlreadyVoted, "already voted on this proposal")
	ErrInvalidVote  = xerrors.New(CodeInvalidVote, "invalid vote")
	// ErrExecutionFailed 表示通过的提案执行失败，提案保持 PASSED。
	ErrExecutionFailed      = xerrors.New(CodeExecutionFailed, "failed to execute proposal")
	ErrDisputeNotFound      = xerrors.New(CodeDisputeNotFound, "dispute not found")
	ErrDisputeNotOpen       = xerrors.New(CodeDisputeNotOpen, "dispute is not open")
	ErrArbitratorNotFound   = xerrors.New(CodeArbitratorNotFound, "arbitrator not found")
	ErrArbitratorReputation = xerrors.New(CodeArbitratorReputation, "arbitrator reputation too low")
	ErrArbitrationNotFound  = xerrors.New(CodeArbitrationNotFound, "arbitration not found")
	ErrArbitrationCompleted = xerrors.New(CodeArbitrationCompleted, "arbitration already completed")
)

func init() {
	register := func(kind xerrors.Kind, codes ...xerrors.Code) {
		for _, code := range codes {
			xerrors.Register(code, xerrors.Attributes{Message: string(code), Kind: kind, Severity: xerrors.SeverityInfo})
		}
	}
	register(xerrors.KindNotFound, CodeProposalNotFound, CodeProposerNotFound, CodeVoterNotFound, CodeDisputeNotFound,
		CodeArbitratorNotFound, CodeArbitrationNotFound)
	register(xerrors.KindForbidden, CodeInsufficientReputation, CodeArbitratorReputation)
	register(xerrors.KindValidation, CodeInvalidProposal, CodeInvalidVote)
	register(xerrors.KindConflict, CodeProposalNotActive, CodeVotingClosed, CodeAlreadyVoted, CodeDisputeNotOpen,
		CodeArbitrationCompleted)
	xerrors.Register(CodeExecutionFailed, xerrors.Attributes{
		Message:   "failed to execute proposal",
		Kind:      xerrors.KindInternal,
		Severity:  xerrors.SeverityCritical,
		Retryable: true,
		Alert:     true,
	})
}
