package payments

import (
	"errors"
	"fmt"
)

var (
	ErrValidation         = errors.New("invalid payment request")
	ErrPaymentNotFound    = errors.New("payment not found")
	ErrInvalidTransition  = errors.New("invalid payment state transition")
	ErrGatewayUnavailable = errors.New("no gateway registered for method")
	ErrRefundUnsupported  = errors.New("gateway does not support refunds")
	ErrLockTimeout        = errors.New("timed out waiting for payment lock")
	ErrInvalidSignature   = errors.New("callback signature mismatch")
)

// GatewayError wraps a third-party failure. The payment is already marked
// failed; retrying is a fresh ProcessPayment call, never automatic.
type GatewayError struct {
	Method Method
	Msg    string
}

func (e *GatewayError) Error() string {
	return fmt.Sprintf("gateway %s: %s", e.Method, e.Msg)
}

// IsTransient reports whether the caller may safely retry the same request.
func IsTransient(err error) bool {
	return errors.Is(err, ErrLockTimeout)
}
