package wallet

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"logiplatform/internal/common/clock"
	"logiplatform/internal/common/money"
)

// MemStore is an in-memory Store for tests and local runs. All methods are
// safe for concurrent use; mutations hold the mutex for their full duration,
// which gives the same atomicity as the Postgres implementation.
type MemStore struct {
	mu           sync.Mutex
	companies    map[string]*Company
	transactions map[string][]*Transaction
	rechargeLogs map[string][]*RechargeLog
	clock        clock.Clock
}

// NewMemStore creates an empty in-memory store.
func NewMemStore(clk clock.Clock) *MemStore {
	if clk == nil {
		clk = clock.RealClock{}
	}
	return &MemStore{
		companies:    make(map[string]*Company),
		transactions: make(map[string][]*Transaction),
		rechargeLogs: make(map[string][]*RechargeLog),
		clock:        clk,
	}
}

func (m *MemStore) CreateCompany(_ context.Context, c *Company) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *c
	m.companies[c.ID] = &cp
	return nil
}

func (m *MemStore) GetCompany(_ context.Context, companyID string) (*Company, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.getLocked(companyID)
}

func (m *MemStore) getLocked(companyID string) (*Company, error) {
	c, ok := m.companies[companyID]
	if !ok {
		return nil, ErrCompanyNotFound
	}
	cp := *c
	return &cp, nil
}

func (m *MemStore) ListRechargeCandidates(_ context.Context) ([]*Company, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []*Company
	for _, c := range m.companies {
		if c.Wallet.AutoRecharge.Enabled {
			cp := *c
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MemStore) Credit(_ context.Context, companyID string, amount money.Money, ref Reference, description string) (*Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.creditLocked(companyID, amount, ref, description)
}

func (m *MemStore) creditLocked(companyID string, amount money.Money, ref Reference, description string) (*Transaction, error) {
	c, ok := m.companies[companyID]
	if !ok {
		return nil, ErrCompanyNotFound
	}

	newBalance, err := c.Wallet.Balance.Add(amount)
	if err != nil {
		return nil, err
	}
	c.Wallet.Balance = newBalance
	c.UpdatedAt = m.clock.Now()

	return m.appendLocked(c, TransactionCredit, amount, ref, description), nil
}

func (m *MemStore) Debit(_ context.Context, companyID string, amount money.Money, ref Reference, description string) (*Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.companies[companyID]
	if !ok {
		return nil, ErrCompanyNotFound
	}

	if c.Wallet.Balance.LessThan(amount) {
		return nil, ErrInsufficientBalance
	}

	newBalance, err := c.Wallet.Balance.Sub(amount)
	if err != nil {
		return nil, err
	}
	c.Wallet.Balance = newBalance
	c.UpdatedAt = m.clock.Now()

	return m.appendLocked(c, TransactionDebit, amount, ref, description), nil
}

func (m *MemStore) appendLocked(c *Company, txnType TransactionType, amount money.Money, ref Reference, description string) *Transaction {
	txn := &Transaction{
		ID:           ulid.Make().String(),
		CompanyID:    c.ID,
		Type:         txnType,
		Amount:       amount,
		BalanceAfter: c.Wallet.Balance,
		Reference:    ref,
		Description:  description,
		CreatedAt:    m.clock.Now(),
	}
	m.transactions[c.ID] = append(m.transactions[c.ID], txn)
	return txn
}

func (m *MemStore) UpdateAutoRechargeSettings(_ context.Context, companyID string, u SettingsUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.companies[companyID]
	if !ok {
		return ErrCompanyNotFound
	}

	ar := &c.Wallet.AutoRecharge
	ar.Enabled = u.Enabled
	ar.Threshold = u.Threshold
	ar.Amount = u.Amount
	ar.PaymentMethodID = u.PaymentMethodID
	ar.DailyLimit = u.DailyLimit
	ar.MonthlyLimit = u.MonthlyLimit
	c.UpdatedAt = m.clock.Now()
	return nil
}

func (m *MemStore) RecordRechargeAttempt(_ context.Context, rec RechargeAttemptRecord) (*Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.companies[rec.CompanyID]
	if !ok {
		return nil, ErrCompanyNotFound
	}

	logID := ulid.Make().String()
	ar := &c.Wallet.AutoRecharge
	attemptedAt := rec.AttemptedAt
	ar.LastAttempt = &attemptedAt

	if rec.Success {
		txn, err := m.creditLocked(rec.CompanyID, rec.Amount,
			Reference{Type: ReferenceAuto, ID: logID}, "Automatic wallet recharge")
		if err != nil {
			return nil, err
		}
		ar.LastSuccess = &attemptedAt
		ar.LastFailure = nil

		m.rechargeLogs[rec.CompanyID] = append(m.rechargeLogs[rec.CompanyID], &RechargeLog{
			ID:        logID,
			CompanyID: rec.CompanyID,
			Status:    RechargeLogSuccess,
			Amount:    rec.Amount,
			OrderID:   rec.OrderID,
			CreatedAt: rec.AttemptedAt,
		})
		return txn, nil
	}

	ar.LastFailure = &FailureState{
		Timestamp:   rec.AttemptedAt,
		Reason:      rec.FailureReason,
		RetryCount:  rec.RetryCount,
		NextRetryAt: rec.NextRetryAt,
	}
	if rec.DisableAutoRecharge {
		ar.Enabled = false
	}

	m.rechargeLogs[rec.CompanyID] = append(m.rechargeLogs[rec.CompanyID], &RechargeLog{
		ID:            logID,
		CompanyID:     rec.CompanyID,
		Status:        RechargeLogFailed,
		Amount:        rec.Amount,
		FailureReason: rec.FailureReason,
		CreatedAt:     rec.AttemptedAt,
	})
	return nil, nil
}

func (m *MemStore) SumSuccessfulRecharges(_ context.Context, companyID string, since time.Time) (money.Money, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.companies[companyID]
	if !ok {
		return money.Money{}, ErrCompanyNotFound
	}

	total := money.Zero(c.Wallet.Balance.Currency)
	for _, l := range m.rechargeLogs[companyID] {
		if l.Status == RechargeLogSuccess && !l.CreatedAt.Before(since) {
			total = total.MustAdd(l.Amount)
		}
	}
	return total, nil
}

func (m *MemStore) ListTransactions(_ context.Context, companyID string, limit, offset int) ([]*Transaction, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	all := m.transactions[companyID]
	total := int64(len(all))

	// Newest first.
	out := make([]*Transaction, len(all))
	for i, t := range all {
		out[len(all)-1-i] = t
	}
	return paginate(out, limit, offset), total, nil
}

func (m *MemStore) ListRechargeLogs(_ context.Context, companyID string, limit, offset int) ([]*RechargeLog, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	all := m.rechargeLogs[companyID]
	total := int64(len(all))

	out := make([]*RechargeLog, len(all))
	for i, l := range all {
		out[len(all)-1-i] = l
	}
	return paginate(out, limit, offset), total, nil
}

func paginate[T any](items []T, limit, offset int) []T {
	if offset >= len(items) {
		return nil
	}
	items = items[offset:]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}
