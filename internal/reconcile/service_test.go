package reconcile

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"logiplatform/internal/common/clock"
	"logiplatform/internal/common/money"
	"logiplatform/internal/wallet"
)

type testWriter struct{ t *testing.T }

func (w testWriter) Write(p []byte) (int, error) {
	w.t.Log(string(p))
	return len(p), nil
}

func newTestService(t *testing.T) (*Service, *wallet.Service, *wallet.MemStore) {
	t.Helper()
	clk := &clock.Fixed{T: time.Date(2026, 3, 15, 10, 0, 0, 0, time.UTC)}
	logger := slog.New(slog.NewTextHandler(testWriter{t}, nil))

	walletStore := wallet.NewMemStore(clk)
	wallets := wallet.NewService(walletStore, nil, logger)
	svc := NewService(NewMemCaseStore(), wallets, nil, clk, 5.0, logger)
	return svc, wallets, walletStore
}

func seedWallet(t *testing.T, store *wallet.MemStore, id string, balanceMinor int64) {
	t.Helper()
	err := store.CreateCompany(context.Background(), &wallet.Company{
		ID:       id,
		IsActive: true,
		Wallet: wallet.Wallet{
			Balance: money.New(balanceMinor, money.INR),
		},
	})
	require.NoError(t, err)
}

func record(billed int64) ImportRecord {
	return ImportRecord{
		Provider:    "carrier-1",
		AWB:         "AWB123",
		CompanyID:   "comp-1",
		BilledMinor: billed,
		Currency:    "INR",
	}
}

func TestReconcileWithinToleranceOpensNoCase(t *testing.T) {
	svc, _, _ := newTestService(t)

	// 4% over the expected 10000 with a 5% threshold.
	vc, err := svc.Reconcile(context.Background(), money.New(10_000, money.INR), record(10_400))
	require.NoError(t, err)
	assert.Nil(t, vc)
}

func TestReconcileOverbillingOpensCase(t *testing.T) {
	svc, _, _ := newTestService(t)

	vc, err := svc.Reconcile(context.Background(), money.New(10_000, money.INR), record(12_000))
	require.NoError(t, err)
	require.NotNil(t, vc)
	assert.Equal(t, StatusOpen, vc.Status)
	assert.InDelta(t, 20.0, vc.VariancePercent, 0.001)
	assert.Equal(t, int64(2_000), vc.Difference())
}

func TestReconcileUnderbillingAlsoOpensCase(t *testing.T) {
	svc, _, _ := newTestService(t)

	vc, err := svc.Reconcile(context.Background(), money.New(10_000, money.INR), record(9_000))
	require.NoError(t, err)
	require.NotNil(t, vc)
	assert.InDelta(t, -10.0, vc.VariancePercent, 0.001)
}

func TestCaseLifecycleResolvedDebitsWallet(t *testing.T) {
	svc, _, walletStore := newTestService(t)
	seedWallet(t, walletStore, "comp-1", 50_000)

	vc, err := svc.Reconcile(context.Background(), money.New(10_000, money.INR), record(12_000))
	require.NoError(t, err)
	require.NotNil(t, vc)

	vc, err = svc.StartReview(context.Background(), vc.ID, "checking with carrier")
	require.NoError(t, err)
	assert.Equal(t, StatusUnderReview, vc.Status)

	vc, err = svc.Close(context.Background(), vc.ID, ResolutionResolved, "carrier weight audit confirmed")
	require.NoError(t, err)
	assert.Equal(t, StatusResolved, vc.Status)
	require.NotNil(t, vc.ResolvedAt)

	// Overbilled difference is debited from the wallet as an adjustment.
	c, err := walletStore.GetCompany(context.Background(), "comp-1")
	require.NoError(t, err)
	assert.Equal(t, int64(48_000), c.Wallet.Balance.AmountMinor)

	txns, _, err := walletStore.ListTransactions(context.Background(), "comp-1", 10, 0)
	require.NoError(t, err)
	require.Len(t, txns, 1)
	assert.Equal(t, wallet.ReferenceAdjustment, txns[0].Reference.Type)
	assert.Equal(t, vc.ID, txns[0].Reference.ID)
}

func TestCaseLifecycleResolvedUnderbillingCreditsWallet(t *testing.T) {
	svc, _, walletStore := newTestService(t)
	seedWallet(t, walletStore, "comp-1", 50_000)

	vc, err := svc.Reconcile(context.Background(), money.New(10_000, money.INR), record(8_000))
	require.NoError(t, err)
	require.NotNil(t, vc)

	_, err = svc.StartReview(context.Background(), vc.ID, "")
	require.NoError(t, err)
	_, err = svc.Close(context.Background(), vc.ID, ResolutionResolved, "")
	require.NoError(t, err)

	c, err := walletStore.GetCompany(context.Background(), "comp-1")
	require.NoError(t, err)
	assert.Equal(t, int64(52_000), c.Wallet.Balance.AmountMinor)
}

func TestCaseLifecycleWaivedLeavesWalletUntouched(t *testing.T) {
	svc, _, walletStore := newTestService(t)
	seedWallet(t, walletStore, "comp-1", 50_000)

	vc, err := svc.Reconcile(context.Background(), money.New(10_000, money.INR), record(12_000))
	require.NoError(t, err)

	_, err = svc.StartReview(context.Background(), vc.ID, "")
	require.NoError(t, err)
	vc, err = svc.Close(context.Background(), vc.ID, ResolutionWaived, "goodwill")
	require.NoError(t, err)
	assert.Equal(t, StatusWaived, vc.Status)

	c, err := walletStore.GetCompany(context.Background(), "comp-1")
	require.NoError(t, err)
	assert.Equal(t, int64(50_000), c.Wallet.Balance.AmountMinor)
}

func TestInvalidTransitionsRejected(t *testing.T) {
	svc, _, _ := newTestService(t)

	vc, err := svc.Reconcile(context.Background(), money.New(10_000, money.INR), record(12_000))
	require.NoError(t, err)

	// Cannot close a case that is not under review.
	_, err = svc.Close(context.Background(), vc.ID, ResolutionWaived, "")
	assert.ErrorIs(t, err, ErrInvalidTransition)

	_, err = svc.StartReview(context.Background(), vc.ID, "")
	require.NoError(t, err)

	// Cannot re-review.
	_, err = svc.StartReview(context.Background(), vc.ID, "")
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestReconcileBatchIsolatesBadRecords(t *testing.T) {
	svc, _, _ := newTestService(t)

	expected := map[string]money.Money{
		"AWB123": money.New(10_000, money.INR),
	}
	records := []ImportRecord{
		record(12_000),
		{Provider: "carrier-1", AWB: "AWB999", CompanyID: "comp-1", BilledMinor: 5_000, Currency: "INR"},
	}

	cases, errs := svc.ReconcileBatch(context.Background(), expected, records)
	assert.Len(t, cases, 1)
	assert.Len(t, errs, 1, "unknown AWB must error without aborting the batch")
}
