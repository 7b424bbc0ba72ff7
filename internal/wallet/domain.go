// Package wallet provides the per-company prepaid wallet ledger.
//
// The wallet balance is only ever mutated through the ledger's credit/debit
// path, which writes the new balance and the corresponding transaction row in
// a single database transaction. Auto-recharge metadata (last attempt, failure
// state, enabled flag) is updated only by the recharge worker while it holds
// the per-company lock.
package wallet

import (
	"errors"
	"time"

	"logiplatform/internal/common/money"
)

// TransactionType is the direction of a ledger transaction.
type TransactionType string

const (
	TransactionCredit TransactionType = "credit"
	TransactionDebit  TransactionType = "debit"
)

// ReferenceType categorizes what caused a ledger transaction.
type ReferenceType string

const (
	ReferenceAuto          ReferenceType = "auto"
	ReferenceManual        ReferenceType = "manual"
	ReferenceShippingCost  ReferenceType = "shipping_cost"
	ReferenceRTO           ReferenceType = "rto"
	ReferenceCODRemittance ReferenceType = "cod_remittance"
	ReferenceAdjustment    ReferenceType = "adjustment"
)

// Reference links a transaction to its originating record.
type Reference struct {
	Type ReferenceType `json:"type"`
	ID   string        `json:"id,omitempty"`
}

// Transaction is an immutable, append-only ledger entry.
// BalanceAfter must equal the wallet balance at the instant the entry was
// committed; the two are written in the same database transaction.
type Transaction struct {
	ID           string          `json:"id"`
	CompanyID    string          `json:"company_id"`
	Type         TransactionType `json:"type"`
	Amount       money.Money     `json:"amount"`
	BalanceAfter money.Money     `json:"balance_after"`
	Reference    Reference       `json:"reference"`
	Description  string          `json:"description,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
}

// FailureState tracks the most recent auto-recharge failure.
type FailureState struct {
	Timestamp   time.Time  `json:"timestamp"`
	Reason      string     `json:"reason"`
	RetryCount  int        `json:"retry_count"`
	NextRetryAt *time.Time `json:"next_retry_at,omitempty"`
}

// AutoRechargeSettings is the per-company recharge configuration plus the
// worker-maintained attempt metadata.
type AutoRechargeSettings struct {
	Enabled         bool          `json:"enabled"`
	Threshold       money.Money   `json:"threshold"`
	Amount          money.Money   `json:"amount"`
	PaymentMethodID string        `json:"payment_method_id,omitempty"`
	DailyLimit      *money.Money  `json:"daily_limit,omitempty"`
	MonthlyLimit    *money.Money  `json:"monthly_limit,omitempty"`
	LastAttempt     *time.Time    `json:"last_attempt,omitempty"`
	LastSuccess     *time.Time    `json:"last_success,omitempty"`
	LastFailure     *FailureState `json:"last_failure,omitempty"`
}

// Wallet is the prepaid balance embedded in a Company.
type Wallet struct {
	Balance             money.Money          `json:"balance"`
	LowBalanceThreshold money.Money          `json:"low_balance_threshold"`
	AutoRecharge        AutoRechargeSettings `json:"auto_recharge"`
}

// Company is the seller aggregate that owns a wallet.
type Company struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	IsActive  bool      `json:"is_active"`
	Wallet    Wallet    `json:"wallet"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// IsLowBalance reports whether the balance is below the advisory threshold.
func (w Wallet) IsLowBalance() bool {
	return w.Balance.LessThan(w.LowBalanceThreshold)
}

// RechargeLogStatus is the outcome recorded for a worker attempt.
type RechargeLogStatus string

const (
	RechargeLogSuccess RechargeLogStatus = "success"
	RechargeLogFailed  RechargeLogStatus = "failed"
)

// RechargeLog is one row per auto-recharge attempt that got past the gate
// checks. Skips do not produce a log row.
type RechargeLog struct {
	ID            string            `json:"id"`
	CompanyID     string            `json:"company_id"`
	Status        RechargeLogStatus `json:"status"`
	Amount        money.Money       `json:"amount"`
	OrderID       string            `json:"order_id,omitempty"`
	FailureReason string            `json:"failure_reason,omitempty"`
	CreatedAt     time.Time         `json:"created_at"`
}

// RechargeAttemptRecord is the typed command the worker applies through the
// store to persist one attempt's outcome. On success the store credits the
// wallet, appends the transaction row, writes the success log, and updates
// the recharge metadata in a single database transaction. On failure it
// writes the failed log and the failure metadata.
type RechargeAttemptRecord struct {
	CompanyID     string
	Success       bool
	Amount        money.Money
	OrderID       string
	FailureReason string
	AttemptedAt   time.Time

	// Failure bookkeeping, computed by the worker.
	RetryCount          int
	NextRetryAt         *time.Time
	DisableAutoRecharge bool
}

// Sentinel errors. Messages are part of the API contract; UI layers surface
// them without reinterpretation.
var (
	ErrInsufficientBalance = errors.New("Insufficient balance")
	ErrCompanyNotFound     = errors.New("company not found")
)

// ValidationError is returned when settings or request validation fails.
// No partial write has occurred when one is returned.
type ValidationError struct {
	msg string
}

func (e *ValidationError) Error() string { return e.msg }

// NewValidationError creates a ValidationError with the given message.
func NewValidationError(msg string) *ValidationError {
	return &ValidationError{msg: msg}
}

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
