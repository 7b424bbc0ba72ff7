package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/oklog/ulid/v2"
)

// Event represents a domain event envelope
type Event struct {
	ID            string          `json:"event_id"`
	Type          string          `json:"type"`
	Version       int             `json:"version"`
	OccurredAt    time.Time       `json:"occurred_at"`
	CorrelationID string          `json:"correlation_id"`
	CausationID   string          `json:"causation_id,omitempty"`
	CompanyID     string          `json:"company_id"`
	AggregateType string          `json:"aggregate_type"`
	AggregateID   string          `json:"aggregate_id"`
	Data          json.RawMessage `json:"data"`
}

// NewEvent creates a new event
func NewEvent(eventType, companyID, aggregateType, aggregateID string, data interface{}) (*Event, error) {
	dataBytes, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}

	return &Event{
		ID:            ulid.Make().String(),
		Type:          eventType,
		Version:       1,
		OccurredAt:    time.Now().UTC(),
		CompanyID:     companyID,
		AggregateType: aggregateType,
		AggregateID:   aggregateID,
		Data:          dataBytes,
	}, nil
}

// WithCorrelation adds correlation and causation IDs
func (e *Event) WithCorrelation(correlationID, causationID string) *Event {
	e.CorrelationID = correlationID
	e.CausationID = causationID
	return e
}

// DecodeData decodes the event data into a struct
func (e *Event) DecodeData(v interface{}) error {
	return json.Unmarshal(e.Data, v)
}

// EventPublisher publishes events to a message broker
type EventPublisher interface {
	Publish(ctx context.Context, event *Event) error
	PublishBatch(ctx context.Context, events []*Event) error
}

// Event types
const (
	// Wallet ledger events
	EventWalletCredited = "wallet.credited"
	EventWalletDebited  = "wallet.debited"

	// Auto-recharge events
	EventRechargeSucceeded = "wallet.recharge.succeeded"
	EventRechargeFailed    = "wallet.recharge.failed"
	EventRechargeDisabled  = "wallet.recharge.disabled"

	// Billing reconciliation events
	EventVarianceCaseCreated  = "billing.variance.case_created"
	EventVarianceCaseResolved = "billing.variance.case_resolved"
)

// WalletMutatedData is the data for wallet.credited and wallet.debited events
type WalletMutatedData struct {
	CompanyID     string `json:"company_id"`
	TransactionID string `json:"transaction_id"`
	Amount        int64  `json:"amount"`
	Currency      string `json:"currency"`
	BalanceAfter  int64  `json:"balance_after"`
	ReferenceType string `json:"reference_type"`
	ReferenceID   string `json:"reference_id,omitempty"`
}

// RechargeOutcomeData is the data for wallet.recharge.* events
type RechargeOutcomeData struct {
	CompanyID     string `json:"company_id"`
	Amount        int64  `json:"amount"`
	Currency      string `json:"currency"`
	OrderID       string `json:"order_id,omitempty"`
	FailureReason string `json:"failure_reason,omitempty"`
	RetryCount    int    `json:"retry_count,omitempty"`
}

// VarianceCaseData is the data for billing.variance.* events
type VarianceCaseData struct {
	CaseID          string  `json:"case_id"`
	CompanyID       string  `json:"company_id"`
	Provider        string  `json:"provider"`
	AWB             string  `json:"awb"`
	ExpectedMinor   int64   `json:"expected_minor"`
	BilledMinor     int64   `json:"billed_minor"`
	VariancePercent float64 `json:"variance_percent"`
}
