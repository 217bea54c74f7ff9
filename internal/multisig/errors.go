package multisig

import xerrors "X402-Registry/internal/errors"

const (
	CodeInvalidThreshold       xerrors.Code = "MULTISIG_INVALID_THRESHOLD"
	CodeTooFewSigners          xerrors.Code = "MULTISIG_TOO_FEW_SIGNERS"
	CodeDuplicateSigners       xerrors.Code = "MULTISIG_DUPLICATE_SIGNERS"
	CodeAgentNotFound          xerrors.Code = "MULTISIG_AGENT_NOT_FOUND"
	CodeWalletNotFound         xerrors.Code = "MULTISIG_WALLET_NOT_FOUND"
	CodeTransactionNotFound    xerrors.Code = "MULTISIG_TX_NOT_FOUND"
	CodeNotAuthorized          xerrors.Code = "MULTISIG_NOT_AUTHORIZED"
	CodeTransactionNotSignable xerrors.Code = "MULTISIG_TX_NOT_SIGNABLE"
	CodeSignerNotAuthorized    xerrors.Code = "MULTISIG_SIGNER_NOT_AUTHORIZED"
	CodeDuplicateSignature     xerrors.Code = "MULTISIG_DUPLICATE_SIGNATURE"
	CodeAlreadySigned          xerrors.Code = "MULTISIG_ALREADY_SIGNED"
	CodeInvalidSignature       xerrors.Code = "MULTISIG_INVALID_SIGNATURE"
	CodeTransactionFinalized   xerrors.Code = "MULTISIG_TX_FINALIZED"
	CodeSignerExists           xerrors.Code = "MULTISIG_SIGNER_EXISTS"
	CodeSignerNotFound         xerrors.Code = "MULTISIG_SIGNER_NOT_FOUND"
	CodeBroadcastFailed        xerrors.Code = "MULTISIG_BROADCAST_FAILED"
	CodeInvalidAmount          xerrors.Code = "MULTISIG_INVALID_AMOUNT"
	CodeInvalidRequest         xerrors.Code = "MULTISIG_INVALID_REQUEST"
)

var (
	ErrInvalidThreshold       = xerrors.New(CodeInvalidThreshold, "invalid threshold")
	ErrTooFewSigners          = xerrors.New(CodeTooFewSigners, "multi-sig requires at least 2 signers")
	ErrDuplicateSigners       = xerrors.New(CodeDuplicateSigners, "duplicate signers not allowed")
	ErrAgentNotFound          = xerrors.New(CodeAgentNotFound, "agent not found")
	ErrWalletNotFound         = xerrors.New(CodeWalletNotFound, "wallet not found")
	ErrTransactionNotFound    = xerrors.New(CodeTransactionNotFound, "transaction not found")
	ErrNotAuthorized          = xerrors.New(CodeNotAuthorized, "not authorized")
	ErrTransactionNotSignable = xerrors.New(CodeTransactionNotSignable, "transaction not available for signing")
	ErrSignerNotAuthorized    = xerrors.New(CodeSignerNotAuthorized, "signer not authorized")
	ErrDuplicateSignature     = xerrors.New(CodeDuplicateSignature, "signature already provided")
	ErrAlreadySigned          = xerrors.New(CodeAlreadySigned, "signer already signed this transaction")
	ErrInvalidSignature       = xerrors.New(CodeInvalidSignature, "invalid signature")
	ErrTransactionFinalized   = xerrors.New(CodeTransactionFinalized, "transaction already finalized")
	ErrSignerExists           = xerrors.New(CodeSignerExists, "signer already exists")
	ErrSignerNotFound         = xerrors.New(CodeSignerNotFound, "signer not found")
	ErrBroadcastFailed        = xerrors.New(CodeBroadcastFailed, "transaction broadcast failed")
	ErrInvalidAmount          = xerrors.New(CodeInvalidAmount, "amount must be positive")
)

func init() {
	register := func(kind xerrors.Kind, codes ...xerrors.Code) {
		for _, code := range codes {
			xerrors.Register(code, xerrors.Attributes{Message: string(code), Kind: kind, Severity: xerrors.SeverityInfo})
		}
	}
	register(xerrors.KindValidation, CodeInvalidThreshold, CodeTooFewSigners, CodeDuplicateSigners,
		CodeInvalidSignature, CodeInvalidAmount, CodeInvalidRequest)
	register(xerrors.KindNotFound, CodeAgentNotFound, CodeWalletNotFound, CodeTransactionNotFound, CodeSignerNotFound)
	register(xerrors.KindForbidden, CodeNotAuthorized, CodeSignerNotAuthorized)
	register(xerrors.KindConflict, CodeTransactionNotSignable, CodeDuplicateSignature, CodeAlreadySigned, CodeTransactionFinalized, CodeSignerExists)
	xerrors.Register(CodeBroadcastFailed, xerrors.Attributes{
		Message:  "transaction broadcast failed",
		Kind:     xerrors.KindUnavailable,
		Severity: xerrors.SeverityCritical,
		Alert:    true,
	})
}
