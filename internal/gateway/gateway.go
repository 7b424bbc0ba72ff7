// Package gateway provides the payment gateway client used to charge saved
// payment methods during auto-recharge.
package gateway

import (
	"context"
	"errors"
)

// OrderStatus is the gateway-reported state of a charge order.
type OrderStatus string

const (
	// StatusCaptured means the money has been collected. Only captured
	// orders may credit the wallet.
	StatusCaptured OrderStatus = "captured"
	// StatusPending means the charge is still in flight at the gateway.
	// Pending is treated as failure by callers; the gateway's own retry
	// does not credit the wallet.
	StatusPending OrderStatus = "pending"
	// StatusFailed means the charge was declined or errored.
	StatusFailed OrderStatus = "failed"
)

// OrderRequest describes one charge against a saved payment method.
type OrderRequest struct {
	AmountMinor     int64  `json:"amount"`
	Currency        string `json:"currency"`
	PaymentMethodID string `json:"payment_method_id"`
	// IdempotencyKey lets the gateway dedupe a retried request after a
	// network failure.
	IdempotencyKey string `json:"-"`
	// Notes carry caller metadata (company id) for gateway-side audit.
	Notes map[string]string `json:"notes,omitempty"`
}

// Order is the gateway's view of a charge.
type Order struct {
	ID          string      `json:"id"`
	AmountMinor int64       `json:"amount"`
	Currency    string      `json:"currency"`
	Status      OrderStatus `json:"status"`
	ErrorReason string      `json:"error_reason,omitempty"`
}

// ErrGatewayUnavailable wraps transport-level failures where the outcome of
// the charge is unknown.
var ErrGatewayUnavailable = errors.New("payment gateway unavailable")

// Gateway creates charge orders against saved payment methods.
type Gateway interface {
	// CreateOrder charges the payment method. A non-nil Order with a
	// non-captured Status is a definite decline; an error means the outcome
	// is unknown.
	CreateOrder(ctx context.Context, req OrderRequest) (*Order, error)
}
