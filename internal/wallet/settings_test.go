package wallet

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"logiplatform/internal/common/money"
)

func validUpdate() SettingsUpdate {
	return SettingsUpdate{
		Enabled:         true,
		Threshold:       money.NewFromMajor(500, money.INR),
		Amount:          money.NewFromMajor(1_000, money.INR),
		PaymentMethodID: "pm-1",
	}
}

func TestValidateSettingsAcceptsValidUpdate(t *testing.T) {
	assert.NoError(t, ValidateSettings(validUpdate(), money.INR))
}

func TestValidateSettingsAmountBelowMinimum(t *testing.T) {
	u := validUpdate()
	u.Threshold = money.NewFromMajor(10, money.INR)
	u.Amount = money.NewFromMajor(99, money.INR)

	err := ValidateSettings(u, money.INR)
	require.Error(t, err)
	assert.True(t, IsValidation(err))
	assert.Equal(t, "Recharge amount must be at least ₹100.00", err.Error())
}

func TestValidateSettingsAmountAtMinimumIsAccepted(t *testing.T) {
	u := validUpdate()
	u.Threshold = money.NewFromMajor(50, money.INR)
	u.Amount = money.NewFromMajor(100, money.INR)

	assert.NoError(t, ValidateSettings(u, money.INR))
}

func TestValidateSettingsThresholdNotBelowAmount(t *testing.T) {
	u := validUpdate()
	u.Threshold = u.Amount // equal is also rejected

	err := ValidateSettings(u, money.INR)
	require.Error(t, err)
	assert.Equal(t, "Auto-recharge threshold must be less than recharge amount", err.Error())
}

func TestValidateSettingsThresholdMustBePositive(t *testing.T) {
	u := validUpdate()
	u.Threshold = money.Zero(money.INR)

	err := ValidateSettings(u, money.INR)
	require.Error(t, err)
	assert.True(t, IsValidation(err))
}

func TestValidateSettingsCurrencyMismatch(t *testing.T) {
	u := validUpdate()
	u.Amount = money.NewFromMajor(1_000, money.USD)

	err := ValidateSettings(u, money.INR)
	require.Error(t, err)
	assert.True(t, IsValidation(err))
}

func TestValidateSettingsLimitsMustCoverAmount(t *testing.T) {
	u := validUpdate()
	daily := money.NewFromMajor(500, money.INR)
	u.DailyLimit = &daily
	err := ValidateSettings(u, money.INR)
	require.Error(t, err)

	u = validUpdate()
	monthly := money.NewFromMajor(999, money.INR)
	u.MonthlyLimit = &monthly
	err = ValidateSettings(u, money.INR)
	require.Error(t, err)

	u = validUpdate()
	daily = money.NewFromMajor(1_000, money.INR)
	u.DailyLimit = &daily
	assert.NoError(t, ValidateSettings(u, money.INR))
}
