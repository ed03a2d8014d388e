package errors

type Code string

const (
	CodeChainRPC    Code = "CHAIN_RPC_ERROR"
	CodeGasEstimate Code = "GAS_ESTIMATE_ERROR"
	PendingNonceAt  Code = "PENDING_NONCE_AT_ERROR"
	DailChain       Code = "DIAL_CHAIN_ERROR"
	SignerErr       Code = "SIGNER_ERROR"
	SendTxErr       Code = "SEND_TX_ERROR"
	GetchainIDErr   Code = "GET_CHAIN_ID_ERROR"

	CodeValidation          Code = "VALIDATION_ERROR"
	CodeNotFound            Code = "NOT_FOUND"
	CodeInsufficientShares  Code = "INSUFFICIENT_SHARES"
	CodeInsufficientBalance Code = "INSUFFICIENT_BALANCE"
	CodeUnauthorized        Code = "UNAUTHORIZED"
	CodeInvalidCredential   Code = "INVALID_CREDENTIAL"
	CodeVault               Code = "VAULT_ERROR"
	CodeWalletExists        Code = "WALLET_EXISTS"
	CodeLedgerSubmission    Code = "LEDGER_SUBMISSION_FAILED"
	CodeLedgerTimeout       Code = "LEDGER_TIMEOUT"
	CodeLedgerReverted      Code = "LEDGER_REVERTED"
	CodeIllegalTransition   Code = "ILLEGAL_TRANSITION"
)

// Sentinels for errors.Is; matching is by code only.
var (
	ErrValidation          = &AppError{Code: CodeValidation}
	ErrNotFound            = &AppError{Code: CodeNotFound}
	ErrInsufficientShares  = &AppError{Code: CodeInsufficientShares}
	ErrInsufficientBalance = &AppError{Code: CodeInsufficientBalance}
	ErrUnauthorized        = &AppError{Code: CodeUnauthorized}
	ErrInvalidCredential   = &AppError{Code: CodeInvalidCredential}
	ErrVault               = &AppError{Code: CodeVault}
	ErrWalletExists        = &AppError{Code: CodeWalletExists}
	ErrLedgerSubmission    = &AppError{Code: CodeLedgerSubmission}
	ErrLedgerTimeout       = &AppError{Code: CodeLedgerTimeout}
	ErrLedgerReverted      = &AppError{Code: CodeLedgerReverted}
	ErrIllegalTransition   = &AppError{Code: CodeIllegalTransition}
)
