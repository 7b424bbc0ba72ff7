package recharge

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"logiplatform/internal/common/clock"
	"logiplatform/internal/common/money"
	"logiplatform/internal/featureflag"
	"logiplatform/internal/gateway"
	"logiplatform/internal/lock"
	"logiplatform/internal/wallet"
)

type fixture struct {
	worker  *Worker
	store   *wallet.MemStore
	flags   *featureflag.MemStore
	locker  *lock.MemoryLocker
	gateway *gateway.Fake
	metrics *Collector
	clock   *clock.Fixed
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	t.Setenv(featureflag.EnvAutoRecharge, "true")

	clk := &clock.Fixed{T: time.Date(2026, 3, 15, 10, 0, 0, 0, time.UTC)}
	store := wallet.NewMemStore(clk)
	flags := featureflag.NewMemStore()
	require.NoError(t, flags.SetEnabled(context.Background(), featureflag.FlagAutoRecharge, true))

	gw := gateway.NewFake()
	metrics := NewCollector()
	locker := lock.NewMemoryLocker(clk)
	logger := slog.New(slog.NewTextHandler(testWriter{t}, nil))

	worker := NewWorker(Config{}, store, flags, locker, gw, metrics, nil, clk, logger)
	return &fixture{
		worker:  worker,
		store:   store,
		flags:   flags,
		locker:  locker,
		gateway: gw,
		metrics: metrics,
		clock:   clk,
	}
}

type testWriter struct{ t *testing.T }

func (w testWriter) Write(p []byte) (int, error) {
	w.t.Log(string(p))
	return len(p), nil
}

type companyOpts struct {
	balance      int64
	threshold    int64
	amount       int64
	enabled      bool
	active       bool
	paymentID    string
	dailyLimit   *int64
	monthlyLimit *int64
	lastAttempt  *time.Time
	lastFailure  *wallet.FailureState
}

func (f *fixture) seed(t *testing.T, id string, o companyOpts) {
	t.Helper()

	ar := wallet.AutoRechargeSettings{
		Enabled:         o.enabled,
		Threshold:       money.New(o.threshold, money.INR),
		Amount:          money.New(o.amount, money.INR),
		PaymentMethodID: o.paymentID,
		LastAttempt:     o.lastAttempt,
		LastFailure:     o.lastFailure,
	}
	if o.dailyLimit != nil {
		m := money.New(*o.dailyLimit, money.INR)
		ar.DailyLimit = &m
	}
	if o.monthlyLimit != nil {
		m := money.New(*o.monthlyLimit, money.INR)
		ar.MonthlyLimit = &m
	}

	err := f.store.CreateCompany(context.Background(), &wallet.Company{
		ID:       id,
		Name:     "Acme Logistics",
		IsActive: o.active,
		Wallet: wallet.Wallet{
			Balance:             money.New(o.balance, money.INR),
			LowBalanceThreshold: money.New(o.threshold, money.INR),
			AutoRecharge:        ar,
		},
	})
	require.NoError(t, err)
}

func eligible(balance, threshold, amount int64) companyOpts {
	return companyOpts{
		balance:   balance,
		threshold: threshold,
		amount:    amount,
		enabled:   true,
		active:    true,
		paymentID: "pm-1",
	}
}

func (f *fixture) company(t *testing.T, id string) *wallet.Company {
	t.Helper()
	c, err := f.store.GetCompany(context.Background(), id)
	require.NoError(t, err)
	return c
}

func (f *fixture) logs(t *testing.T, id string) []*wallet.RechargeLog {
	t.Helper()
	logs, _, err := f.store.ListRechargeLogs(context.Background(), id, 100, 0)
	require.NoError(t, err)
	return logs
}

func TestHappyPathCreditsWalletOnce(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "comp-1", eligible(100, 500, 2000))

	require.NoError(t, f.worker.Run(context.Background()))

	c := f.company(t, "comp-1")
	assert.Equal(t, int64(2100), c.Wallet.Balance.AmountMinor)

	logs := f.logs(t, "comp-1")
	require.Len(t, logs, 1)
	assert.Equal(t, wallet.RechargeLogSuccess, logs[0].Status)
	assert.NotEmpty(t, logs[0].OrderID)

	txns, _, err := f.store.ListTransactions(context.Background(), "comp-1", 10, 0)
	require.NoError(t, err)
	require.Len(t, txns, 1)
	assert.Equal(t, wallet.TransactionCredit, txns[0].Type)
	assert.Equal(t, wallet.ReferenceAuto, txns[0].Reference.Type)
	assert.Equal(t, int64(2100), txns[0].BalanceAfter.AmountMinor)

	ar := c.Wallet.AutoRecharge
	require.NotNil(t, ar.LastAttempt)
	require.NotNil(t, ar.LastSuccess)
	assert.Equal(t, f.clock.Now(), *ar.LastAttempt)
	assert.Equal(t, f.clock.Now(), *ar.LastSuccess)
	assert.Nil(t, ar.LastFailure)

	s := f.metrics.Summary()
	assert.Equal(t, int64(1), s.Attempts)
	assert.Equal(t, int64(1), s.Successes)
	assert.Zero(t, s.Failures)
}

func TestBalanceAboveThresholdIsSkippedWithoutSideEffects(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "comp-1", eligible(5000, 500, 2000))

	require.NoError(t, f.worker.Run(context.Background()))

	c := f.company(t, "comp-1")
	assert.Equal(t, int64(5000), c.Wallet.Balance.AmountMinor)
	assert.Empty(t, f.logs(t, "comp-1"), "skips must not write log rows")
	assert.Nil(t, c.Wallet.AutoRecharge.LastAttempt)

	s := f.metrics.Summary()
	assert.Zero(t, s.Attempts)
	assert.Equal(t, int64(1), s.BySkip[skipBalanceOK])
}

func TestDisabledCompanyIsNeverCharged(t *testing.T) {
	f := newFixture(t)
	o := eligible(100, 500, 2000)
	o.enabled = false
	f.seed(t, "comp-1", o)

	require.NoError(t, f.worker.Run(context.Background()))

	c := f.company(t, "comp-1")
	assert.Equal(t, int64(100), c.Wallet.Balance.AmountMinor)
	assert.Empty(t, f.gateway.Requests)
}

func TestGateChecksSkipSilently(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*companyOpts, *fixture)
		reason string
	}{
		{"inactive company", func(o *companyOpts, _ *fixture) { o.active = false }, skipInactive},
		{"missing payment method", func(o *companyOpts, _ *fixture) { o.paymentID = "" }, skipNoPaymentMethod},
		{"cooldown active", func(o *companyOpts, f *fixture) {
			at := f.clock.Now().Add(-30 * time.Minute)
			o.lastAttempt = &at
		}, skipCooldown},
		{"backoff in future", func(o *companyOpts, f *fixture) {
			at := f.clock.Now().Add(-2 * time.Hour)
			next := f.clock.Now().Add(time.Hour)
			o.lastAttempt = &at
			o.lastFailure = &wallet.FailureState{Timestamp: at, Reason: "card declined", RetryCount: 1, NextRetryAt: &next}
		}, skipBackoff},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)
			o := eligible(100, 500, 2000)
			tc.mutate(&o, f)
			f.seed(t, "comp-1", o)

			require.NoError(t, f.worker.Run(context.Background()))

			c := f.company(t, "comp-1")
			assert.Equal(t, int64(100), c.Wallet.Balance.AmountMinor)
			assert.Empty(t, f.logs(t, "comp-1"))
			assert.Empty(t, f.gateway.Requests)
			assert.Equal(t, int64(1), f.metrics.Summary().BySkip[tc.reason])
		})
	}
}

func TestFeatureFlagOffSkipsWholeBatch(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "comp-1", eligible(100, 500, 2000))

	require.NoError(t, f.flags.SetEnabled(context.Background(), featureflag.FlagAutoRecharge, false))
	require.NoError(t, f.worker.Run(context.Background()))
	assert.Empty(t, f.gateway.Requests)

	// DB flag on but env kill switch off.
	require.NoError(t, f.flags.SetEnabled(context.Background(), featureflag.FlagAutoRecharge, true))
	t.Setenv(featureflag.EnvAutoRecharge, "false")
	require.NoError(t, f.worker.Run(context.Background()))
	assert.Empty(t, f.gateway.Requests)
}

func TestDailyLimitWritesFailedLog(t *testing.T) {
	f := newFixture(t)
	o := eligible(100, 500, 20000)
	daily := int64(10000)
	o.dailyLimit = &daily
	f.seed(t, "comp-1", o)

	require.NoError(t, f.worker.Run(context.Background()))

	c := f.company(t, "comp-1")
	assert.Equal(t, int64(100), c.Wallet.Balance.AmountMinor, "limit failure must not credit")

	logs := f.logs(t, "comp-1")
	require.Len(t, logs, 1)
	assert.Equal(t, wallet.RechargeLogFailed, logs[0].Status)
	assert.Contains(t, logs[0].FailureReason, "Daily limit exceeded")
	assert.Empty(t, f.gateway.Requests, "limit failure must not reach the gateway")

	require.NotNil(t, c.Wallet.AutoRecharge.LastAttempt)
	require.NotNil(t, c.Wallet.AutoRecharge.LastFailure)
}

func TestMonthlyLimitCountsPastRecharges(t *testing.T) {
	f := newFixture(t)
	o := eligible(100, 500, 2000)
	monthly := int64(5000)
	o.monthlyLimit = &monthly
	f.seed(t, "comp-1", o)

	// Two successful recharges of 2000 in the window; a third would exceed
	// the 5000 cap.
	for i := 0; i < 2; i++ {
		require.NoError(t, f.worker.Run(context.Background()))
		// Drop the balance back below the threshold and move past cooldown.
		_, err := f.store.Debit(context.Background(), "comp-1", money.New(2000, money.INR),
			wallet.Reference{Type: wallet.ReferenceShippingCost}, "shipping")
		require.NoError(t, err)
		f.clock.Advance(2 * time.Hour)
	}

	require.NoError(t, f.worker.Run(context.Background()))

	logs := f.logs(t, "comp-1")
	require.Len(t, logs, 3)
	assert.Equal(t, wallet.RechargeLogFailed, logs[0].Status)
	assert.Contains(t, logs[0].FailureReason, "Monthly limit exceeded")
}

func TestIdempotencyRunTwiceCreditsOnce(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "comp-1", eligible(100, 500, 2000))

	require.NoError(t, f.worker.Run(context.Background()))
	require.NoError(t, f.worker.Run(context.Background()))

	c := f.company(t, "comp-1")
	assert.Equal(t, int64(2100), c.Wallet.Balance.AmountMinor)
	assert.Len(t, f.logs(t, "comp-1"), 1)
	assert.Len(t, f.gateway.Requests, 1)
}

func TestBalanceCheckDominatesStaleLastAttempt(t *testing.T) {
	f := newFixture(t)
	o := eligible(5000, 500, 2000)
	past := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	o.lastAttempt = &past
	f.seed(t, "comp-1", o)

	require.NoError(t, f.worker.Run(context.Background()))

	c := f.company(t, "comp-1")
	assert.Equal(t, int64(5000), c.Wallet.Balance.AmountMinor)
	assert.Empty(t, f.logs(t, "comp-1"))
}

func TestGatewayFailureRecordsBackoff(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "comp-1", eligible(100, 500, 2000))
	f.gateway.Script(gateway.FakeOutcome{Status: gateway.StatusFailed, ErrorReason: "card declined"})

	require.NoError(t, f.worker.Run(context.Background()))

	c := f.company(t, "comp-1")
	assert.Equal(t, int64(100), c.Wallet.Balance.AmountMinor)

	ar := c.Wallet.AutoRecharge
	assert.True(t, ar.Enabled)
	require.NotNil(t, ar.LastFailure)
	assert.Equal(t, 1, ar.LastFailure.RetryCount)
	assert.Equal(t, "card declined", ar.LastFailure.Reason)
	require.NotNil(t, ar.LastFailure.NextRetryAt)
	assert.Equal(t, f.clock.Now().Add(30*time.Minute), *ar.LastFailure.NextRetryAt)

	logs := f.logs(t, "comp-1")
	require.Len(t, logs, 1)
	assert.Equal(t, wallet.RechargeLogFailed, logs[0].Status)
	assert.Equal(t, "card declined", logs[0].FailureReason)
}

func TestThirdFailureBacksOffSixHours(t *testing.T) {
	f := newFixture(t)
	o := eligible(100, 500, 2000)
	at := f.clock.Now().Add(-3 * time.Hour)
	next := f.clock.Now().Add(-time.Hour)
	o.lastAttempt = &at
	o.lastFailure = &wallet.FailureState{Timestamp: at, Reason: "card declined", RetryCount: 2, NextRetryAt: &next}
	f.seed(t, "comp-1", o)
	f.gateway.Script(gateway.FakeOutcome{Status: gateway.StatusFailed, ErrorReason: "card declined"})

	require.NoError(t, f.worker.Run(context.Background()))

	ar := f.company(t, "comp-1").Wallet.AutoRecharge
	assert.True(t, ar.Enabled)
	require.NotNil(t, ar.LastFailure)
	assert.Equal(t, 3, ar.LastFailure.RetryCount)
	require.NotNil(t, ar.LastFailure.NextRetryAt)
	assert.Equal(t, f.clock.Now().Add(6*time.Hour), *ar.LastFailure.NextRetryAt)
}

func TestFourthFailureDisablesAutoRecharge(t *testing.T) {
	f := newFixture(t)
	o := eligible(100, 500, 2000)
	at := f.clock.Now().Add(-8 * time.Hour)
	next := f.clock.Now().Add(-time.Hour)
	o.lastAttempt = &at
	o.lastFailure = &wallet.FailureState{Timestamp: at, Reason: "card declined", RetryCount: 3, NextRetryAt: &next}
	f.seed(t, "comp-1", o)
	f.gateway.Script(gateway.FakeOutcome{Status: gateway.StatusFailed, ErrorReason: "card declined"})

	require.NoError(t, f.worker.Run(context.Background()))

	ar := f.company(t, "comp-1").Wallet.AutoRecharge
	assert.False(t, ar.Enabled, "4th consecutive failure must auto-disable")
	require.NotNil(t, ar.LastFailure)
	assert.Equal(t, 4, ar.LastFailure.RetryCount)
}

func TestSuccessClearsFailureState(t *testing.T) {
	f := newFixture(t)
	o := eligible(100, 500, 2000)
	at := f.clock.Now().Add(-3 * time.Hour)
	next := f.clock.Now().Add(-time.Hour)
	o.lastAttempt = &at
	o.lastFailure = &wallet.FailureState{Timestamp: at, Reason: "card declined", RetryCount: 2, NextRetryAt: &next}
	f.seed(t, "comp-1", o)

	require.NoError(t, f.worker.Run(context.Background()))

	ar := f.company(t, "comp-1").Wallet.AutoRecharge
	assert.Nil(t, ar.LastFailure, "success must reset the consecutive-failure chain")
	require.NotNil(t, ar.LastSuccess)
}

func TestPendingOrderIsTreatedAsFailure(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "comp-1", eligible(100, 500, 2000))
	f.gateway.Script(gateway.FakeOutcome{Status: gateway.StatusPending})

	require.NoError(t, f.worker.Run(context.Background()))

	c := f.company(t, "comp-1")
	assert.Equal(t, int64(100), c.Wallet.Balance.AmountMinor)
	logs := f.logs(t, "comp-1")
	require.Len(t, logs, 1)
	assert.Equal(t, wallet.RechargeLogFailed, logs[0].Status)
	assert.Contains(t, logs[0].FailureReason, "pending")
}

func TestGatewayErrorIsIsolatedPerCompany(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "comp-1", eligible(100, 500, 2000))
	f.seed(t, "comp-2", eligible(200, 500, 3000))
	// Candidates are processed in ID order; fail the first charge only.
	f.gateway.Script(gateway.FakeOutcome{Err: gateway.ErrGatewayUnavailable})

	require.NoError(t, f.worker.Run(context.Background()))

	assert.Equal(t, int64(100), f.company(t, "comp-1").Wallet.Balance.AmountMinor)
	assert.Equal(t, int64(3200), f.company(t, "comp-2").Wallet.Balance.AmountMinor)

	s := f.metrics.Summary()
	assert.Equal(t, int64(2), s.Attempts)
	assert.Equal(t, int64(1), s.Successes)
	assert.Equal(t, int64(1), s.Failures)
}

func TestBatchCreditsMultipleCompaniesIndependently(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "comp-1", eligible(100, 500, 2000))
	f.seed(t, "comp-2", eligible(300, 1000, 5000))

	require.NoError(t, f.worker.Run(context.Background()))

	assert.Equal(t, int64(2100), f.company(t, "comp-1").Wallet.Balance.AmountMinor)
	assert.Equal(t, int64(5300), f.company(t, "comp-2").Wallet.Balance.AmountMinor)
}

func TestHeldLockSkipsCompany(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "comp-1", eligible(100, 500, 2000))

	_, acquired, err := f.locker.Acquire(context.Background(), lock.RechargeKey("comp-1"), time.Minute)
	require.NoError(t, err)
	require.True(t, acquired)

	require.NoError(t, f.worker.Run(context.Background()))

	c := f.company(t, "comp-1")
	assert.Equal(t, int64(100), c.Wallet.Balance.AmountMinor)
	assert.Empty(t, f.logs(t, "comp-1"))
	assert.Equal(t, int64(1), f.metrics.Summary().BySkip[skipLocked])
}

func TestOrderCarriesIdempotencyKeyAndCompanyNote(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "comp-1", eligible(100, 500, 2000))

	require.NoError(t, f.worker.Run(context.Background()))

	require.Len(t, f.gateway.Requests, 1)
	req := f.gateway.Requests[0]
	assert.NotEmpty(t, req.IdempotencyKey)
	assert.Equal(t, "pm-1", req.PaymentMethodID)
	assert.Equal(t, "comp-1", req.Notes["company_id"])
	assert.Equal(t, int64(2000), req.AmountMinor)
}
