package domain

import "errors"

// Business failure sentinels. Services return these (possibly wrapped); the
// API layer maps them to transport responses.
var (
	ErrAmountInvalid           = errors.New("amount must be positive")
	ErrWalletNotFound          = errors.New("wallet not found")
	ErrUserMismatch            = errors.New("wallet does not belong to user")
	ErrHoldMissing             = errors.New("hold journal not found")
	ErrAvailableMissing        = errors.New("available balance not found")
	ErrInsufficientFunds       = errors.New("insufficient funds")
	ErrFlowNotSupported        = errors.New("flow not supported")
	ErrUserIDRequired          = errors.New("user id required for gateway flow")
	ErrGatewayConfigMissing    = errors.New("gateway configuration missing")
	ErrInvalidStatusTransition = errors.New("invalid status transition")
	ErrPaymentNotFound         = errors.New("payment not found")
	ErrJournalNotFound         = errors.New("journal not found")
	ErrWithdrawalNotFound      = errors.New("withdrawal request not found")
	ErrReasonRequired          = errors.New("rejection reason required")
	ErrRefundExceedsCapture    = errors.New("refund exceeds captured amount")
)
