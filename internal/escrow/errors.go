package escrow

import "errors"

// Validation errors: reported to the caller, never retried.
var (
	ErrOrderNotFound           = errors.New("order not found")
	ErrHoldNotAllowed          = errors.New("order can no longer accept an escrow hold")
	ErrOrderDisputed           = errors.New("order has an active dispute")
	ErrWrongBuyer              = errors.New("buyer does not own this order")
	ErrInvalidAmount           = errors.New("amount must be greater than zero")
	ErrAmountMismatch          = errors.New("amount does not match order total")
	ErrEscrowAlreadySettled    = errors.New("escrow for this order is already settled")
	ErrDisputeNotFound         = errors.New("dispute not found")
	ErrDisputeAlreadyOpen      = errors.New("an active dispute already exists for this order")
	ErrDisputeAlreadyResolved  = errors.New("dispute is already resolved or closed")
	ErrInvalidResolution       = errors.New("unknown dispute resolution")
	ErrInvalidRefundPercentage = errors.New("refund percentage must be between 1 and 99")
	ErrBelowMinimumWithdrawal  = errors.New("amount is below the minimum withdrawal")
	ErrWithdrawalNotPending    = errors.New("withdrawal request is not pending")
	ErrEntryNotFound           = errors.New("ledger entry not found")
)

// Consistency errors: explicit failures that indicate data drift; callers may
// fall back to a documented legacy path but must log a warning.
var (
	ErrNoActiveEscrowHold  = errors.New("no active escrow hold found for order")
	ErrInsufficientBalance = errors.New("insufficient available balance")
	ErrInsufficientPending = errors.New("insufficient pending balance")
)
