package wallet

import (
	"context"
	"time"

	"logiplatform/internal/common/money"
)

// Store is the repository contract for wallet state. Two implementations
// exist: PostgresStore for production and MemStore for tests and local runs.
//
// Implementations must guarantee that Credit, Debit, and a successful
// RecordRechargeAttempt each commit the balance change and its transaction
// row atomically.
type Store interface {
	// CreateCompany inserts a company with its embedded wallet.
	CreateCompany(ctx context.Context, c *Company) error

	// GetCompany returns the company aggregate, or ErrCompanyNotFound.
	GetCompany(ctx context.Context, companyID string) (*Company, error)

	// ListRechargeCandidates returns companies with auto-recharge enabled.
	ListRechargeCandidates(ctx context.Context) ([]*Company, error)

	// Credit atomically increases the balance and appends a transaction row.
	Credit(ctx context.Context, companyID string, amount money.Money, ref Reference, description string) (*Transaction, error)

	// Debit atomically decreases the balance and appends a transaction row.
	// Returns ErrInsufficientBalance, without mutating state, when the
	// balance does not cover the amount.
	Debit(ctx context.Context, companyID string, amount money.Money, ref Reference, description string) (*Transaction, error)

	// UpdateAutoRechargeSettings persists validated settings. Attempt
	// metadata on the wallet is preserved.
	UpdateAutoRechargeSettings(ctx context.Context, companyID string, s SettingsUpdate) error

	// RecordRechargeAttempt applies one worker attempt outcome. On success
	// the returned transaction is the wallet credit; on failure it is nil.
	RecordRechargeAttempt(ctx context.Context, rec RechargeAttemptRecord) (*Transaction, error)

	// SumSuccessfulRecharges totals successful recharge amounts since the
	// given instant, for daily/monthly limit checks.
	SumSuccessfulRecharges(ctx context.Context, companyID string, since time.Time) (money.Money, error)

	// ListTransactions returns the transaction log, newest first.
	ListTransactions(ctx context.Context, companyID string, limit, offset int) ([]*Transaction, int64, error)

	// ListRechargeLogs returns recharge attempt logs, newest first.
	ListRechargeLogs(ctx context.Context, companyID string, limit, offset int) ([]*RechargeLog, int64, error)
}
