package gateway

import (
	"context"
	"sync"

	"github.com/oklog/ulid/v2"
)

// Fake is a scriptable in-memory Gateway for tests. Outcomes are consumed in
// order; when the script is exhausted every charge is captured.
type Fake struct {
	mu       sync.Mutex
	script   []FakeOutcome
	Requests []OrderRequest
}

// FakeOutcome is one scripted CreateOrder result.
type FakeOutcome struct {
	Status      OrderStatus
	ErrorReason string
	Err         error
}

// NewFake creates a fake gateway that captures every charge.
func NewFake() *Fake {
	return &Fake{}
}

// Script queues outcomes for subsequent CreateOrder calls.
func (f *Fake) Script(outcomes ...FakeOutcome) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.script = append(f.script, outcomes...)
}

func (f *Fake) CreateOrder(_ context.Context, req OrderRequest) (*Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.Requests = append(f.Requests, req)

	outcome := FakeOutcome{Status: StatusCaptured}
	if len(f.script) > 0 {
		outcome = f.script[0]
		f.script = f.script[1:]
	}

	if outcome.Err != nil {
		return nil, outcome.Err
	}
	return &Order{
		ID:          "order_" + ulid.Make().String(),
		AmountMinor: req.AmountMinor,
		Currency:    req.Currency,
		Status:      outcome.Status,
		ErrorReason: outcome.ErrorReason,
	}, nil
}
