package credential

import xerrors "X402-Registry/internal/errors"

const (
	CodeNotFound            xerrors.Code = "CREDENTIAL_NOT_FOUND"
	CodeRevoked             xerrors.Code = "CREDENTIAL_REVOKED"
	CodeExpired             xerrors.Code = "CREDENTIAL_EXPIRED"
	CodeAgentNotFound       xerrors.Code = "CREDENTIAL_AGENT_NOT_FOUND"
	CodeUnknownType         xerrors.Code = "CREDENTIAL_UNKNOWN_TYPE"
	CodeInvalidClaim        xerrors.Code = "CREDENTIAL_INVALID_CLAIM"
	CodeThresholdNotMet     xerrors.Code = "CREDENTIAL_THRESHOLD_NOT_MET"
	CodeLeafNotFound        xerrors.Code = "CREDENTIAL_LEAF_NOT_FOUND"
	CodeTransactionMismatch xerrors.Code = "CREDENTIAL_TX_MISMATCH"
)

var (
	// ErrNotFound 表示凭证不存在。
	ErrNotFound = xerrors.New(CodeNotFound, "credential not found")
	// ErrRevoked 表示凭证已被吊销。
	ErrRevoked = xerrors.New(CodeRevoked, "credential has been revoked")
	// ErrExpired 表示凭证已过期。
	ErrExpired = xerrors.New(CodeExpired, "credential has expired")
	// ErrAgentNotFound 表示声明主体不存在。
	ErrAgentNotFound = xerrors.New(CodeAgentNotFound, "agent not found")
	// ErrUnknownType 表示凭证类别没有对应 schema。
	ErrUnknownType = xerrors.New(CodeUnknownType, "unknown credential type")
	// ErrLeafNotFound 表示承诺不在累加器中。
	ErrLeafNotFound = xerrors.New(CodeLeafNotFound, "commitment not found in accumulator")
)

func init() {
	register := func(code xerrors.Code, msg string, kind xerrors.Kind) {
		xerrors.Register(code, xerrors.Attributes{Message: msg, Kind: kind, Severity: xerrors.SeverityInfo})
	}
	register(CodeNotFound, "credential not found", xerrors.KindNotFound)
	register(CodeAgentNotFound, "agent not found", xerrors.KindNotFound)
	register(CodeRevoked, "credential has been revoked", xerrors.KindConflict)
	register(CodeExpired, "credential has expired", xerrors.KindConflict)
	register(CodeUnknownType, "unknown credential type", xerrors.KindValidation)
	register(CodeInvalidClaim, "invalid credential claim", xerrors.KindValidation)
	register(CodeThresholdNotMet, "credential threshold not met", xerrors.KindForbidden)
	register(CodeTransactionMismatch, "transaction does not support the claim", xerrors.KindForbidden)
	xerrors.Register(CodeLeafNotFound, xerrors.Attributes{
		Message:  "commitment not found in accumulator",
		Kind:     xerrors.KindInternal,
		Severity: xerrors.SeverityCritical,
		Alert:    true,
	})
}
