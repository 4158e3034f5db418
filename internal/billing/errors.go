package billing

import (
	"errors"
	"fmt"
)

var (
	// ErrPaymentNotFound is returned when the provider has no payment with the id.
	// Sandbox test pings produce this and are not failures.
	ErrPaymentNotFound = errors.New("billing: payment not found")

	// ErrSubscriptionNotFound is returned when the provider has no subscription with the id.
	ErrSubscriptionNotFound = errors.New("billing: subscription not found")

	// ErrNotConfigured is returned when no access token was provided.
	ErrNotConfigured = errors.New("billing: provider not configured")

	// ErrInvalidSignature is returned when a webhook signature does not verify.
	ErrInvalidSignature = errors.New("billing: invalid webhook signature")
)

// ProviderError wraps an unexpected provider API failure.
type ProviderError struct {
	Op         string
	StatusCode int
	Body       string
	Err        error
}

func (e *ProviderError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("mercadopago %s: status %d: %s", e.Op, e.StatusCode, e.Body)
	}
	return fmt.Sprintf("mercadopago %s: %v", e.Op, e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}
