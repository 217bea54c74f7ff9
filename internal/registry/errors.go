package registry

import xerrors "X402-Registry/internal/errors"

const (
	CodeAgentNotFound   xerrors.Code = "REGISTRY_AGENT_NOT_FOUND"
	CodeDisputeNotFound xerrors.Code = "REGISTRY_DISPUTE_NOT_FOUND"
	CodeDisputeState    xerrors.Code = "REGISTRY_DISPUTE_STATE"
	CodeServiceNotFound xerrors.Code = "REGISTRY_SERVICE_NOT_FOUND"
	CodePaymentNotFound xerrors.Code = "REGISTRY_PAYMENT_NOT_FOUND"
	CodeInvalidSeed     xerrors.Code = "REGISTRY_INVALID_SEED"
)

var (
	// ErrAgentNotFound 表示智能体不存在。
	ErrAgentNotFound = xerrors.New(CodeAgentNotFound, "agent not found")
	// ErrDisputeNotFound 表示争议不存在。
	ErrDisputeNotFound = xerrors.New(CodeDisputeNotFound, "dispute not found")
	// ErrDisputeState 表示争议不处于期望的状态。
	ErrDisputeState = xerrors.New(CodeDisputeState, "dispute is not in the expected state")
	// ErrServiceNotFound 表示服务不存在。
	ErrServiceNotFound = xerrors.New(CodeServiceNotFound, "service not found")
	// ErrPaymentNotFound 表示付费记录不存在。
	ErrPaymentNotFound = xerrors.New(CodePaymentNotFound, "payment not found")
)

func init() {
	for _, code := range []xerrors.Code{CodeAgentNotFound, CodeDisputeNotFound, CodeServiceNotFound, CodePaymentNotFound} {
		xerrors.Register(code, xerrors.Attributes{
			Message:  "registry record not found",
			Kind:     xerrors.KindNotFound,
			Severity: xerrors.SeverityInfo,
		})
	}
	xerrors.Register(CodeDisputeState, xerrors.Attributes{
		Message:  "dispute is not in the expected state",
		Kind:     xerrors.KindConflict,
		Severity: xerrors.SeverityInfo,
	})
	xerrors.Register(CodeInvalidSeed, xerrors.Attributes{
		Message:  "invalid registry seed",
		Kind:     xerrors.KindValidation,
		Severity: xerrors.SeverityWarning,
	})
}
