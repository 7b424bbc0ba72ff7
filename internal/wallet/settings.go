package wallet

import (
	"fmt"

	"logiplatform/internal/common/money"
)

// MinRechargeAmountMajor is the smallest recharge amount accepted, in major
// currency units.
const MinRechargeAmountMajor = 100

// SettingsUpdate is the caller-controlled subset of AutoRechargeSettings.
// Attempt metadata (LastAttempt, LastFailure, ...) is owned by the worker and
// cannot be set through a settings update.
type SettingsUpdate struct {
	Enabled         bool         `json:"enabled"`
	Threshold       money.Money  `json:"threshold"`
	Amount          money.Money  `json:"amount"`
	PaymentMethodID string       `json:"payment_method_id"`
	DailyLimit      *money.Money `json:"daily_limit,omitempty"`
	MonthlyLimit    *money.Money `json:"monthly_limit,omitempty"`
}

// ValidateSettings checks an auto-recharge settings update against the
// wallet's currency. It returns a ValidationError before anything is written.
func ValidateSettings(s SettingsUpdate, currency money.Currency) error {
	min := money.NewFromMajor(MinRechargeAmountMajor, currency)

	if s.Threshold.Currency != currency || s.Amount.Currency != currency {
		return NewValidationError(fmt.Sprintf("settings currency must be %s", currency))
	}
	if !s.Threshold.IsPositive() {
		return NewValidationError("auto-recharge threshold must be greater than zero")
	}
	if s.Amount.LessThan(min) {
		return NewValidationError(fmt.Sprintf("Recharge amount must be at least %s", min))
	}
	if s.Threshold.GreaterThanOrEqual(s.Amount) {
		return NewValidationError("Auto-recharge threshold must be less than recharge amount")
	}
	if s.DailyLimit != nil && s.DailyLimit.LessThan(s.Amount) {
		return NewValidationError("daily limit must be at least the recharge amount")
	}
	if s.MonthlyLimit != nil && s.MonthlyLimit.LessThan(s.Amount) {
		return NewValidationError("monthly limit must be at least the recharge amount")
	}
	return nil
}
