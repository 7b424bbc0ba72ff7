package wallet

import (
	"context"
	"fmt"
	"log/slog"

	"logiplatform/internal/common/events"
	"logiplatform/internal/common/money"
)

// Service provides wallet ledger operations. It is the only write path to a
// company's balance.
type Service struct {
	store     Store
	publisher events.EventPublisher
	logger    *slog.Logger
}

// NewService creates a new wallet ledger service. The publisher may be nil,
// in which case no events are emitted.
func NewService(store Store, publisher events.EventPublisher, logger *slog.Logger) *Service {
	return &Service{
		store:     store,
		publisher: publisher,
		logger:    logger,
	}
}

// Balance is the read model returned by GetBalance.
type Balance struct {
	Balance      money.Money `json:"balance"`
	Currency     string      `json:"currency"`
	IsLowBalance bool        `json:"is_low_balance"`
}

// GetBalance returns the current balance for a company.
func (s *Service) GetBalance(ctx context.Context, companyID string) (*Balance, error) {
	company, err := s.store.GetCompany(ctx, companyID)
	if err != nil {
		return nil, err
	}

	return &Balance{
		Balance:      company.Wallet.Balance,
		Currency:     string(company.Wallet.Balance.Currency),
		IsLowBalance: company.Wallet.IsLowBalance(),
	}, nil
}

// HasMinimumBalance reports whether the balance covers the given amount.
func (s *Service) HasMinimumBalance(ctx context.Context, companyID string, amount money.Money) (bool, error) {
	company, err := s.store.GetCompany(ctx, companyID)
	if err != nil {
		return false, err
	}
	return company.Wallet.Balance.GreaterThanOrEqual(amount), nil
}

// MutationResult is returned by credit and debit operations.
type MutationResult struct {
	NewBalance    money.Money `json:"new_balance"`
	TransactionID string      `json:"transaction_id"`
}

// Credit adds funds to the wallet and appends the transaction row atomically.
func (s *Service) Credit(ctx context.Context, companyID string, amount money.Money, refType ReferenceType, description, referenceID string) (*MutationResult, error) {
	if !amount.IsPositive() {
		return nil, NewValidationError("credit amount must be greater than zero")
	}

	txn, err := s.store.Credit(ctx, companyID, amount, Reference{Type: refType, ID: referenceID}, description)
	if err != nil {
		return nil, err
	}

	s.logger.Info("wallet credited",
		"company_id", companyID,
		"amount", amount.AmountMinor,
		"currency", amount.Currency,
		"balance_after", txn.BalanceAfter.AmountMinor,
		"reference_type", refType,
	)

	s.publishMutation(ctx, events.EventWalletCredited, txn)

	return &MutationResult{NewBalance: txn.BalanceAfter, TransactionID: txn.ID}, nil
}

// Debit removes funds from the wallet. Returns ErrInsufficientBalance when
// the balance does not cover the amount; no state changes in that case.
func (s *Service) Debit(ctx context.Context, companyID string, amount money.Money, refType ReferenceType, description, referenceID string) (*MutationResult, error) {
	if !amount.IsPositive() {
		return nil, NewValidationError("debit amount must be greater than zero")
	}

	txn, err := s.store.Debit(ctx, companyID, amount, Reference{Type: refType, ID: referenceID}, description)
	if err != nil {
		return nil, err
	}

	s.logger.Info("wallet debited",
		"company_id", companyID,
		"amount", amount.AmountMinor,
		"currency", amount.Currency,
		"balance_after", txn.BalanceAfter.AmountMinor,
		"reference_type", refType,
	)

	s.publishMutation(ctx, events.EventWalletDebited, txn)

	return &MutationResult{NewBalance: txn.BalanceAfter, TransactionID: txn.ID}, nil
}

// HandleShippingCost debits the forward shipping charge for a shipment.
func (s *Service) HandleShippingCost(ctx context.Context, companyID string, amount money.Money, shipmentID string) (*MutationResult, error) {
	return s.Debit(ctx, companyID, amount, ReferenceShippingCost,
		fmt.Sprintf("Shipping cost for shipment %s", shipmentID), shipmentID)
}

// HandleRTOCharge debits the return-to-origin charge for a shipment.
func (s *Service) HandleRTOCharge(ctx context.Context, companyID string, amount money.Money, shipmentID string) (*MutationResult, error) {
	return s.Debit(ctx, companyID, amount, ReferenceRTO,
		fmt.Sprintf("RTO charge for shipment %s", shipmentID), shipmentID)
}

// HandleCODRemittance credits a collected cash-on-delivery remittance.
func (s *Service) HandleCODRemittance(ctx context.Context, companyID string, amount money.Money, remittanceID string) (*MutationResult, error) {
	return s.Credit(ctx, companyID, amount, ReferenceCODRemittance,
		fmt.Sprintf("COD remittance %s", remittanceID), remittanceID)
}

// UpdateAutoRechargeSettings validates and persists the settings. A
// ValidationError means nothing was written.
func (s *Service) UpdateAutoRechargeSettings(ctx context.Context, companyID string, update SettingsUpdate) error {
	company, err := s.store.GetCompany(ctx, companyID)
	if err != nil {
		return err
	}

	if err := ValidateSettings(update, company.Wallet.Balance.Currency); err != nil {
		return err
	}

	if err := s.store.UpdateAutoRechargeSettings(ctx, companyID, update); err != nil {
		return err
	}

	s.logger.Info("auto-recharge settings updated",
		"company_id", companyID,
		"enabled", update.Enabled,
		"threshold", update.Threshold.AmountMinor,
		"amount", update.Amount.AmountMinor,
	)

	return nil
}

// GetAutoRechargeSettings returns the current settings.
func (s *Service) GetAutoRechargeSettings(ctx context.Context, companyID string) (*AutoRechargeSettings, error) {
	company, err := s.store.GetCompany(ctx, companyID)
	if err != nil {
		return nil, err
	}
	settings := company.Wallet.AutoRecharge
	return &settings, nil
}

// ListTransactions returns the audit trail, newest first.
func (s *Service) ListTransactions(ctx context.Context, companyID string, limit, offset int) ([]*Transaction, int64, error) {
	if limit <= 0 {
		limit = 50
	}
	if limit > 100 {
		limit = 100
	}
	return s.store.ListTransactions(ctx, companyID, limit, offset)
}

// ListRechargeLogs returns auto-recharge attempt history, newest first.
func (s *Service) ListRechargeLogs(ctx context.Context, companyID string, limit, offset int) ([]*RechargeLog, int64, error) {
	if limit <= 0 {
		limit = 50
	}
	if limit > 100 {
		limit = 100
	}
	return s.store.ListRechargeLogs(ctx, companyID, limit, offset)
}

func (s *Service) publishMutation(ctx context.Context, eventType string, txn *Transaction) {
	if s.publisher == nil {
		return
	}

	data := events.WalletMutatedData{
		CompanyID:     txn.CompanyID,
		TransactionID: txn.ID,
		Amount:        txn.Amount.AmountMinor,
		Currency:      string(txn.Amount.Currency),
		BalanceAfter:  txn.BalanceAfter.AmountMinor,
		ReferenceType: string(txn.Reference.Type),
		ReferenceID:   txn.Reference.ID,
	}

	event, err := events.NewEvent(eventType, txn.CompanyID, "wallet", txn.CompanyID, data)
	if err != nil {
		s.logger.Error("failed to build wallet event", "error", err, "type", eventType)
		return
	}

	if err := s.publisher.Publish(ctx, event); err != nil {
		s.logger.Error("failed to publish wallet event",
			"error", err,
			"type", eventType,
			"transaction_id", txn.ID,
		)
	}
}
