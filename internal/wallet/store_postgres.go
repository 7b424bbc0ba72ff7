package wallet

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/oklog/ulid/v2"

	"logiplatform/internal/common/database"
	"logiplatform/internal/common/money"
)

// PostgresStore implements Store against Postgres. Balance mutations lock the
// company row (SELECT ... FOR UPDATE), re-read the balance, and write the new
// balance together with the transaction row inside one database transaction.
type PostgresStore struct {
	db *database.DB
}

// NewPostgresStore creates a Postgres-backed wallet store.
func NewPostgresStore(db *database.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const companyColumns = `
	id, name, is_active,
	balance, currency, low_balance_threshold,
	ar_enabled, ar_threshold, ar_amount, ar_payment_method_id,
	ar_daily_limit, ar_monthly_limit,
	ar_last_attempt, ar_last_success,
	ar_failure_at, ar_failure_reason, ar_retry_count, ar_next_retry_at,
	created_at, updated_at`

// CreateCompany inserts a company with its embedded wallet.
func (s *PostgresStore) CreateCompany(ctx context.Context, c *Company) error {
	query := `
		INSERT INTO companies (` + companyColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20)
	`

	ar := c.Wallet.AutoRecharge
	var failureAt, nextRetryAt *time.Time
	var failureReason *string
	retryCount := 0
	if ar.LastFailure != nil {
		failureAt = &ar.LastFailure.Timestamp
		failureReason = &ar.LastFailure.Reason
		retryCount = ar.LastFailure.RetryCount
		nextRetryAt = ar.LastFailure.NextRetryAt
	}

	_, err := s.db.Exec(ctx, query,
		c.ID, c.Name, c.IsActive,
		c.Wallet.Balance.AmountMinor, c.Wallet.Balance.Currency, c.Wallet.LowBalanceThreshold.AmountMinor,
		ar.Enabled, ar.Threshold.AmountMinor, ar.Amount.AmountMinor, nullableString(ar.PaymentMethodID),
		nullableAmount(ar.DailyLimit), nullableAmount(ar.MonthlyLimit),
		ar.LastAttempt, ar.LastSuccess,
		failureAt, failureReason, retryCount, nextRetryAt,
		c.CreatedAt, c.UpdatedAt,
	)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return fmt.Errorf("company %s: %w", c.ID, database.ErrAlreadyExists)
		}
		return fmt.Errorf("inserting company: %w", err)
	}
	return nil
}

// GetCompany returns the company aggregate.
func (s *PostgresStore) GetCompany(ctx context.Context, companyID string) (*Company, error) {
	query := `SELECT ` + companyColumns + ` FROM companies WHERE id = $1`
	return scanCompany(s.db.QueryRow(ctx, query, companyID))
}

// ListRechargeCandidates returns companies with auto-recharge enabled.
func (s *PostgresStore) ListRechargeCandidates(ctx context.Context) ([]*Company, error) {
	query := `SELECT ` + companyColumns + ` FROM companies WHERE ar_enabled = true ORDER BY id`

	rows, err := s.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("listing recharge candidates: %w", err)
	}
	defer rows.Close()

	var companies []*Company
	for rows.Next() {
		c, err := scanCompany(rows)
		if err != nil {
			return nil, err
		}
		companies = append(companies, c)
	}
	return companies, rows.Err()
}

// Credit atomically increases the balance and appends a transaction row.
func (s *PostgresStore) Credit(ctx context.Context, companyID string, amount money.Money, ref Reference, description string) (*Transaction, error) {
	var txn *Transaction
	err := s.db.WithTx(ctx, func(tx pgx.Tx) error {
		var err error
		txn, err = creditTx(ctx, tx, companyID, amount, ref, description)
		return err
	})
	if err != nil {
		return nil, err
	}
	return txn, nil
}

// Debit atomically decreases the balance and appends a transaction row.
func (s *PostgresStore) Debit(ctx context.Context, companyID string, amount money.Money, ref Reference, description string) (*Transaction, error) {
	var txn *Transaction
	err := s.db.WithTx(ctx, func(tx pgx.Tx) error {
		balance, currency, err := lockBalance(ctx, tx, companyID)
		if err != nil {
			return err
		}
		if amount.Currency != currency {
			return fmt.Errorf("currency mismatch: wallet is %s, debit is %s", currency, amount.Currency)
		}
		if balance < amount.AmountMinor {
			return ErrInsufficientBalance
		}

		newBalance := balance - amount.AmountMinor
		txn, err = appendTransaction(ctx, tx, companyID, TransactionDebit, amount, newBalance, ref, description)
		return err
	})
	if err != nil {
		return nil, err
	}
	return txn, nil
}

// UpdateAutoRechargeSettings persists validated settings, preserving attempt
// metadata.
func (s *PostgresStore) UpdateAutoRechargeSettings(ctx context.Context, companyID string, u SettingsUpdate) error {
	query := `
		UPDATE companies
		SET ar_enabled = $1,
			ar_threshold = $2,
			ar_amount = $3,
			ar_payment_method_id = $4,
			ar_daily_limit = $5,
			ar_monthly_limit = $6,
			updated_at = now()
		WHERE id = $7
	`

	tag, err := s.db.Exec(ctx, query,
		u.Enabled, u.Threshold.AmountMinor, u.Amount.AmountMinor, nullableString(u.PaymentMethodID),
		nullableAmount(u.DailyLimit), nullableAmount(u.MonthlyLimit), companyID,
	)
	if err != nil {
		return fmt.Errorf("updating auto-recharge settings: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrCompanyNotFound
	}
	return nil
}

// RecordRechargeAttempt applies one worker attempt outcome atomically.
func (s *PostgresStore) RecordRechargeAttempt(ctx context.Context, rec RechargeAttemptRecord) (*Transaction, error) {
	var txn *Transaction
	err := s.db.WithTx(ctx, func(tx pgx.Tx) error {
		logID := ulid.Make().String()

		if rec.Success {
			var err error
			txn, err = creditTx(ctx, tx, rec.CompanyID, rec.Amount,
				Reference{Type: ReferenceAuto, ID: logID}, "Automatic wallet recharge")
			if err != nil {
				return err
			}

			_, err = tx.Exec(ctx, `
				INSERT INTO recharge_logs (id, company_id, status, amount, currency, order_id, created_at)
				VALUES ($1, $2, $3, $4, $5, $6, $7)
			`, logID, rec.CompanyID, RechargeLogSuccess, rec.Amount.AmountMinor, rec.Amount.Currency, rec.OrderID, rec.AttemptedAt)
			if err != nil {
				return fmt.Errorf("inserting recharge log: %w", err)
			}

			_, err = tx.Exec(ctx, `
				UPDATE companies
				SET ar_last_attempt = $1,
					ar_last_success = $1,
					ar_failure_at = NULL,
					ar_failure_reason = NULL,
					ar_retry_count = 0,
					ar_next_retry_at = NULL,
					updated_at = now()
				WHERE id = $2
			`, rec.AttemptedAt, rec.CompanyID)
			if err != nil {
				return fmt.Errorf("updating recharge metadata: %w", err)
			}
			return nil
		}

		_, err := tx.Exec(ctx, `
			INSERT INTO recharge_logs (id, company_id, status, amount, currency, failure_reason, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
		`, logID, rec.CompanyID, RechargeLogFailed, rec.Amount.AmountMinor, rec.Amount.Currency, rec.FailureReason, rec.AttemptedAt)
		if err != nil {
			return fmt.Errorf("inserting recharge log: %w", err)
		}

		_, err = tx.Exec(ctx, `
			UPDATE companies
			SET ar_last_attempt = $1,
				ar_failure_at = $1,
				ar_failure_reason = $2,
				ar_retry_count = $3,
				ar_next_retry_at = $4,
				ar_enabled = CASE WHEN $5 THEN false ELSE ar_enabled END,
				updated_at = now()
			WHERE id = $6
		`, rec.AttemptedAt, rec.FailureReason, rec.RetryCount, rec.NextRetryAt, rec.DisableAutoRecharge, rec.CompanyID)
		if err != nil {
			return fmt.Errorf("updating recharge metadata: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return txn, nil
}

// SumSuccessfulRecharges totals successful recharge amounts since the given
// instant.
func (s *PostgresStore) SumSuccessfulRecharges(ctx context.Context, companyID string, since time.Time) (money.Money, error) {
	query := `
		SELECT COALESCE(SUM(amount), 0), MAX(currency)
		FROM recharge_logs
		WHERE company_id = $1 AND status = $2 AND created_at >= $3
	`

	var total int64
	var currency *string
	err := s.db.QueryRow(ctx, query, companyID, RechargeLogSuccess, since).Scan(&total, &currency)
	if err != nil {
		return money.Money{}, fmt.Errorf("summing recharges: %w", err)
	}

	if currency == nil {
		company, err := s.GetCompany(ctx, companyID)
		if err != nil {
			return money.Money{}, err
		}
		return money.Zero(company.Wallet.Balance.Currency), nil
	}
	return money.New(total, money.Currency(*currency)), nil
}

// ListTransactions returns the transaction log, newest first.
func (s *PostgresStore) ListTransactions(ctx context.Context, companyID string, limit, offset int) ([]*Transaction, int64, error) {
	var total int64
	err := s.db.QueryRow(ctx, `SELECT COUNT(*) FROM wallet_transactions WHERE company_id = $1`, companyID).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("counting transactions: %w", err)
	}

	query := `
		SELECT id, company_id, type, amount, currency, balance_after,
			   reference_type, reference_id, description, created_at
		FROM wallet_transactions
		WHERE company_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2 OFFSET $3
	`

	rows, err := s.db.Query(ctx, query, companyID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("listing transactions: %w", err)
	}
	defer rows.Close()

	var txns []*Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, 0, err
		}
		txns = append(txns, t)
	}
	return txns, total, rows.Err()
}

// ListRechargeLogs returns recharge attempt logs, newest first.
func (s *PostgresStore) ListRechargeLogs(ctx context.Context, companyID string, limit, offset int) ([]*RechargeLog, int64, error) {
	var total int64
	err := s.db.QueryRow(ctx, `SELECT COUNT(*) FROM recharge_logs WHERE company_id = $1`, companyID).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("counting recharge logs: %w", err)
	}

	query := `
		SELECT id, company_id, status, amount, currency, order_id, failure_reason, created_at
		FROM recharge_logs
		WHERE company_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2 OFFSET $3
	`

	rows, err := s.db.Query(ctx, query, companyID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("listing recharge logs: %w", err)
	}
	defer rows.Close()

	var logs []*RechargeLog
	for rows.Next() {
		var l RechargeLog
		var amount int64
		var currency string
		var orderID, failureReason *string
		err := rows.Scan(&l.ID, &l.CompanyID, &l.Status, &amount, &currency, &orderID, &failureReason, &l.CreatedAt)
		if err != nil {
			return nil, 0, fmt.Errorf("scanning recharge log: %w", err)
		}
		l.Amount = money.New(amount, money.Currency(currency))
		if orderID != nil {
			l.OrderID = *orderID
		}
		if failureReason != nil {
			l.FailureReason = *failureReason
		}
		logs = append(logs, &l)
	}
	return logs, total, rows.Err()
}

// Helpers

// lockBalance locks the company row and returns the current balance.
func lockBalance(ctx context.Context, tx pgx.Tx, companyID string) (int64, money.Currency, error) {
	var balance int64
	var currency string
	err := tx.QueryRow(ctx, `SELECT balance, currency FROM companies WHERE id = $1 FOR UPDATE`, companyID).
		Scan(&balance, &currency)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, "", ErrCompanyNotFound
		}
		return 0, "", fmt.Errorf("locking wallet: %w", err)
	}
	return balance, money.Currency(currency), nil
}

// creditTx performs a credit inside an existing transaction.
func creditTx(ctx context.Context, tx pgx.Tx, companyID string, amount money.Money, ref Reference, description string) (*Transaction, error) {
	balance, currency, err := lockBalance(ctx, tx, companyID)
	if err != nil {
		return nil, err
	}
	if amount.Currency != currency {
		return nil, fmt.Errorf("currency mismatch: wallet is %s, credit is %s", currency, amount.Currency)
	}

	newBalance := balance + amount.AmountMinor
	return appendTransaction(ctx, tx, companyID, TransactionCredit, amount, newBalance, ref, description)
}

// appendTransaction writes the new balance and the transaction row.
func appendTransaction(ctx context.Context, tx pgx.Tx, companyID string, txnType TransactionType, amount money.Money, newBalance int64, ref Reference, description string) (*Transaction, error) {
	_, err := tx.Exec(ctx, `UPDATE companies SET balance = $1, updated_at = now() WHERE id = $2`, newBalance, companyID)
	if err != nil {
		return nil, fmt.Errorf("updating balance: %w", err)
	}

	txn := &Transaction{
		ID:           ulid.Make().String(),
		CompanyID:    companyID,
		Type:         txnType,
		Amount:       amount,
		BalanceAfter: money.New(newBalance, amount.Currency),
		Reference:    ref,
		Description:  description,
		CreatedAt:    time.Now().UTC(),
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO wallet_transactions (
			id, company_id, type, amount, currency, balance_after,
			reference_type, reference_id, description, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`,
		txn.ID, txn.CompanyID, txn.Type, txn.Amount.AmountMinor, txn.Amount.Currency,
		txn.BalanceAfter.AmountMinor, txn.Reference.Type, nullableString(txn.Reference.ID),
		txn.Description, txn.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("inserting transaction: %w", err)
	}

	return txn, nil
}

func scanCompany(row pgx.Row) (*Company, error) {
	var c Company
	var balance, threshold, arThreshold, arAmount int64
	var currency string
	var paymentMethodID, failureReason *string
	var dailyLimit, monthlyLimit *int64
	var lastAttempt, lastSuccess, failureAt, nextRetryAt *time.Time
	var retryCount int

	err := row.Scan(
		&c.ID, &c.Name, &c.IsActive,
		&balance, &currency, &threshold,
		&c.Wallet.AutoRecharge.Enabled, &arThreshold, &arAmount, &paymentMethodID,
		&dailyLimit, &monthlyLimit,
		&lastAttempt, &lastSuccess,
		&failureAt, &failureReason, &retryCount, &nextRetryAt,
		&c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrCompanyNotFound
		}
		return nil, fmt.Errorf("scanning company: %w", err)
	}

	cur := money.Currency(currency)
	c.Wallet.Balance = money.New(balance, cur)
	c.Wallet.LowBalanceThreshold = money.New(threshold, cur)
	c.Wallet.AutoRecharge.Threshold = money.New(arThreshold, cur)
	c.Wallet.AutoRecharge.Amount = money.New(arAmount, cur)
	if paymentMethodID != nil {
		c.Wallet.AutoRecharge.PaymentMethodID = *paymentMethodID
	}
	if dailyLimit != nil {
		m := money.New(*dailyLimit, cur)
		c.Wallet.AutoRecharge.DailyLimit = &m
	}
	if monthlyLimit != nil {
		m := money.New(*monthlyLimit, cur)
		c.Wallet.AutoRecharge.MonthlyLimit = &m
	}
	c.Wallet.AutoRecharge.LastAttempt = lastAttempt
	c.Wallet.AutoRecharge.LastSuccess = lastSuccess
	if failureAt != nil {
		c.Wallet.AutoRecharge.LastFailure = &FailureState{
			Timestamp:   *failureAt,
			RetryCount:  retryCount,
			NextRetryAt: nextRetryAt,
		}
		if failureReason != nil {
			c.Wallet.AutoRecharge.LastFailure.Reason = *failureReason
		}
	}

	return &c, nil
}

func scanTransaction(rows pgx.Rows) (*Transaction, error) {
	var t Transaction
	var amount, balanceAfter int64
	var currency string
	var referenceID *string

	err := rows.Scan(
		&t.ID, &t.CompanyID, &t.Type, &amount, &currency, &balanceAfter,
		&t.Reference.Type, &referenceID, &t.Description, &t.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("scanning transaction: %w", err)
	}

	t.Amount = money.New(amount, money.Currency(currency))
	t.BalanceAfter = money.New(balanceAfter, money.Currency(currency))
	if referenceID != nil {
		t.Reference.ID = *referenceID
	}
	return &t, nil
}

func nullableString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func nullableAmount(m *money.Money) *int64 {
	if m == nil {
		return nil
	}
	return &m.AmountMinor
}
