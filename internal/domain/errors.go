package domain

import "errors"

// Outcome kinds shared across services. Handlers map these to protocol
// responses; nothing crosses a component boundary as a panic.
var (
	ErrInvalidSignature   = errors.New("invalid webhook signature")
	ErrMerchantMismatch   = errors.New("merchant id does not match configured value")
	ErrValidation         = errors.New("validation failed")
	ErrDepositNotFound    = errors.New("deposit not found")
	ErrPlanNotFound       = errors.New("plan not found")
	ErrAccountNotFound    = errors.New("account not found")
	ErrAmountBelowMinimum = errors.New("amount below plan minimum")
	ErrGatewayUnavailable = errors.New("payment gateway unavailable")
	ErrAlreadyFinal       = errors.New("deposit already in terminal state")
)
