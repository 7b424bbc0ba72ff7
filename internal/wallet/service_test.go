package wallet

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"logiplatform/internal/common/clock"
	"logiplatform/internal/common/money"
)

func testClock() *clock.Fixed {
	return &clock.Fixed{T: time.Date(2026, 3, 15, 10, 0, 0, 0, time.UTC)}
}

func newTestService(t *testing.T) (*Service, *MemStore, *clock.Fixed) {
	t.Helper()
	clk := testClock()
	store := NewMemStore(clk)
	svc := NewService(store, nil, slog.New(slog.NewTextHandler(testWriter{t}, nil)))
	return svc, store, clk
}

type testWriter struct{ t *testing.T }

func (w testWriter) Write(p []byte) (int, error) {
	w.t.Log(string(p))
	return len(p), nil
}

func seedCompany(t *testing.T, store *MemStore, id string, balanceMinor int64) {
	t.Helper()
	err := store.CreateCompany(context.Background(), &Company{
		ID:       id,
		Name:     "Acme Logistics",
		IsActive: true,
		Wallet: Wallet{
			Balance:             money.New(balanceMinor, money.INR),
			LowBalanceThreshold: money.NewFromMajor(500, money.INR),
		},
	})
	require.NoError(t, err)
}

func TestCreditIncreasesBalanceAndAppendsTransaction(t *testing.T) {
	svc, store, _ := newTestService(t)
	seedCompany(t, store, "comp-1", 10_000)

	res, err := svc.Credit(context.Background(), "comp-1", money.NewFromMajor(250, money.INR), ReferenceManual, "Manual top-up", "")
	require.NoError(t, err)
	assert.Equal(t, int64(35_000), res.NewBalance.AmountMinor)
	assert.NotEmpty(t, res.TransactionID)

	txns, total, err := svc.ListTransactions(context.Background(), "comp-1", 10, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	require.Len(t, txns, 1)
	assert.Equal(t, TransactionCredit, txns[0].Type)
	assert.Equal(t, int64(35_000), txns[0].BalanceAfter.AmountMinor)
}

func TestDebitInsufficientBalanceLeavesStateUntouched(t *testing.T) {
	svc, store, _ := newTestService(t)
	seedCompany(t, store, "comp-1", 10_000)

	_, err := svc.Debit(context.Background(), "comp-1", money.NewFromMajor(200, money.INR), ReferenceShippingCost, "Shipping", "ship-1")
	require.ErrorIs(t, err, ErrInsufficientBalance)
	assert.Equal(t, "Insufficient balance", err.Error())

	bal, err := svc.GetBalance(context.Background(), "comp-1")
	require.NoError(t, err)
	assert.Equal(t, int64(10_000), bal.Balance.AmountMinor)

	_, total, err := svc.ListTransactions(context.Background(), "comp-1", 10, 0)
	require.NoError(t, err)
	assert.Zero(t, total, "failed debit must not append a transaction")
}

func TestDebitExactBalanceSucceeds(t *testing.T) {
	svc, store, _ := newTestService(t)
	seedCompany(t, store, "comp-1", 10_000)

	res, err := svc.Debit(context.Background(), "comp-1", money.New(10_000, money.INR), ReferenceShippingCost, "Shipping", "ship-1")
	require.NoError(t, err)
	assert.True(t, res.NewBalance.IsZero())
}

func TestMutationRejectsNonPositiveAmount(t *testing.T) {
	svc, store, _ := newTestService(t)
	seedCompany(t, store, "comp-1", 10_000)

	_, err := svc.Credit(context.Background(), "comp-1", money.Zero(money.INR), ReferenceManual, "", "")
	assert.True(t, IsValidation(err))

	_, err = svc.Debit(context.Background(), "comp-1", money.New(-100, money.INR), ReferenceManual, "", "")
	assert.True(t, IsValidation(err))
}

func TestTypedChargesUseExpectedReferences(t *testing.T) {
	svc, store, _ := newTestService(t)
	seedCompany(t, store, "comp-1", 100_000)

	_, err := svc.HandleShippingCost(context.Background(), "comp-1", money.NewFromMajor(120, money.INR), "AWB123")
	require.NoError(t, err)
	_, err = svc.HandleRTOCharge(context.Background(), "comp-1", money.NewFromMajor(80, money.INR), "AWB123")
	require.NoError(t, err)
	_, err = svc.HandleCODRemittance(context.Background(), "comp-1", money.NewFromMajor(500, money.INR), "rem-9")
	require.NoError(t, err)

	txns, _, err := svc.ListTransactions(context.Background(), "comp-1", 10, 0)
	require.NoError(t, err)
	require.Len(t, txns, 3)
	// Newest first.
	assert.Equal(t, ReferenceCODRemittance, txns[0].Reference.Type)
	assert.Equal(t, ReferenceRTO, txns[1].Reference.Type)
	assert.Equal(t, ReferenceShippingCost, txns[2].Reference.Type)
	assert.Equal(t, "AWB123", txns[2].Reference.ID)
}

func TestBalanceAfterChainIsConsistent(t *testing.T) {
	svc, store, _ := newTestService(t)
	seedCompany(t, store, "comp-1", 0)

	amounts := []int64{5_000, 12_500, 3_000}
	for _, a := range amounts {
		_, err := svc.Credit(context.Background(), "comp-1", money.New(a, money.INR), ReferenceManual, "top-up", "")
		require.NoError(t, err)
	}
	_, err := svc.Debit(context.Background(), "comp-1", money.New(7_500, money.INR), ReferenceShippingCost, "", "ship-1")
	require.NoError(t, err)

	txns, _, err := svc.ListTransactions(context.Background(), "comp-1", 10, 0)
	require.NoError(t, err)
	require.Len(t, txns, 4)

	// Replay oldest to newest.
	running := int64(0)
	for i := len(txns) - 1; i >= 0; i-- {
		switch txns[i].Type {
		case TransactionCredit:
			running += txns[i].Amount.AmountMinor
		case TransactionDebit:
			running -= txns[i].Amount.AmountMinor
		}
		assert.Equal(t, running, txns[i].BalanceAfter.AmountMinor)
	}

	bal, err := svc.GetBalance(context.Background(), "comp-1")
	require.NoError(t, err)
	assert.Equal(t, running, bal.Balance.AmountMinor)
}

func TestGetBalanceReportsLowBalance(t *testing.T) {
	svc, store, _ := newTestService(t)
	seedCompany(t, store, "comp-1", 10_000) // below the 500 INR threshold

	bal, err := svc.GetBalance(context.Background(), "comp-1")
	require.NoError(t, err)
	assert.True(t, bal.IsLowBalance)

	_, err = svc.Credit(context.Background(), "comp-1", money.NewFromMajor(1_000, money.INR), ReferenceManual, "", "")
	require.NoError(t, err)

	bal, err = svc.GetBalance(context.Background(), "comp-1")
	require.NoError(t, err)
	assert.False(t, bal.IsLowBalance)
}

func TestGetBalanceUnknownCompany(t *testing.T) {
	svc, _, _ := newTestService(t)

	_, err := svc.GetBalance(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrCompanyNotFound)
}

func TestUpdateAutoRechargeSettingsPersistsValidUpdate(t *testing.T) {
	svc, store, _ := newTestService(t)
	seedCompany(t, store, "comp-1", 10_000)

	update := SettingsUpdate{
		Enabled:         true,
		Threshold:       money.NewFromMajor(500, money.INR),
		Amount:          money.NewFromMajor(1_000, money.INR),
		PaymentMethodID: "pm-1",
	}
	require.NoError(t, svc.UpdateAutoRechargeSettings(context.Background(), "comp-1", update))

	got, err := svc.GetAutoRechargeSettings(context.Background(), "comp-1")
	require.NoError(t, err)
	assert.True(t, got.Enabled)
	assert.Equal(t, int64(100_000), got.Amount.AmountMinor)
	assert.Equal(t, "pm-1", got.PaymentMethodID)
}

func TestUpdateAutoRechargeSettingsRejectsInvalidWithoutWrite(t *testing.T) {
	svc, store, _ := newTestService(t)
	seedCompany(t, store, "comp-1", 10_000)

	update := SettingsUpdate{
		Enabled:   true,
		Threshold: money.NewFromMajor(2_000, money.INR),
		Amount:    money.NewFromMajor(1_000, money.INR),
	}
	err := svc.UpdateAutoRechargeSettings(context.Background(), "comp-1", update)
	require.Error(t, err)
	assert.Equal(t, "Auto-recharge threshold must be less than recharge amount", err.Error())

	got, err := svc.GetAutoRechargeSettings(context.Background(), "comp-1")
	require.NoError(t, err)
	assert.False(t, got.Enabled, "rejected update must not be persisted")
}
