package reconcile

import (
	"context"
	"fmt"
	"log/slog"
	"math"

	"github.com/oklog/ulid/v2"

	"logiplatform/internal/common/clock"
	"logiplatform/internal/common/events"
	"logiplatform/internal/common/money"
	"logiplatform/internal/wallet"
)

// CaseStore persists variance cases.
type CaseStore interface {
	CreateCase(ctx context.Context, c *VarianceCase) error
	GetCase(ctx context.Context, id string) (*VarianceCase, error)
	UpdateCase(ctx context.Context, c *VarianceCase) error
	ListCases(ctx context.Context, companyID string, status CaseStatus, limit, offset int) ([]*VarianceCase, int64, error)
}

// WalletAdjuster is the slice of the wallet service the reconciler needs to
// settle resolved cases.
type WalletAdjuster interface {
	Credit(ctx context.Context, companyID string, amount money.Money, refType wallet.ReferenceType, description, referenceID string) (*wallet.MutationResult, error)
	Debit(ctx context.Context, companyID string, amount money.Money, refType wallet.ReferenceType, description, referenceID string) (*wallet.MutationResult, error)
}

// Service compares carrier bills with expected amounts and manages the case
// lifecycle.
type Service struct {
	store     CaseStore
	wallets   WalletAdjuster
	publisher events.EventPublisher
	clock     clock.Clock
	logger    *slog.Logger

	// thresholdPercent is the absolute variance percentage above which a
	// case is opened.
	thresholdPercent float64
}

// NewService creates a reconciliation service. The publisher may be nil.
func NewService(store CaseStore, wallets WalletAdjuster, publisher events.EventPublisher, clk clock.Clock, thresholdPercent float64, logger *slog.Logger) *Service {
	if clk == nil {
		clk = clock.RealClock{}
	}
	return &Service{
		store:            store,
		wallets:          wallets,
		publisher:        publisher,
		clock:            clk,
		thresholdPercent: thresholdPercent,
		logger:           logger,
	}
}

// Reconcile compares one billing record with its expected amount. It returns
// the opened case when the variance exceeds the threshold, or nil when the
// bill is within tolerance.
func (s *Service) Reconcile(ctx context.Context, expected money.Money, rec ImportRecord) (*VarianceCase, error) {
	if expected.AmountMinor <= 0 {
		return nil, fmt.Errorf("expected amount must be positive for %s/%s", rec.Provider, rec.AWB)
	}
	if string(expected.Currency) != rec.Currency {
		return nil, fmt.Errorf("currency mismatch for %s/%s: expected %s, billed %s",
			rec.Provider, rec.AWB, expected.Currency, rec.Currency)
	}

	variance := float64(rec.BilledMinor-expected.AmountMinor) / float64(expected.AmountMinor) * 100
	if math.Abs(variance) <= s.thresholdPercent {
		return nil, nil
	}

	now := s.clock.Now()
	vc := &VarianceCase{
		ID:              ulid.Make().String(),
		CompanyID:       rec.CompanyID,
		Provider:        rec.Provider,
		AWB:             rec.AWB,
		Expected:        expected,
		Billed:          money.New(rec.BilledMinor, expected.Currency),
		VariancePercent: variance,
		Status:          StatusOpen,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := s.store.CreateCase(ctx, vc); err != nil {
		return nil, fmt.Errorf("creating variance case: %w", err)
	}

	s.logger.Warn("billing variance detected",
		"case_id", vc.ID,
		"company_id", vc.CompanyID,
		"provider", vc.Provider,
		"awb", vc.AWB,
		"expected", expected.AmountMinor,
		"billed", rec.BilledMinor,
		"variance_percent", variance,
	)
	s.publishCase(ctx, events.EventVarianceCaseCreated, vc)
	return vc, nil
}

// ReconcileBatch processes a billing file. Per-record errors are collected,
// not fatal; valid records still reconcile.
func (s *Service) ReconcileBatch(ctx context.Context, expected map[string]money.Money, records []ImportRecord) ([]*VarianceCase, []error) {
	var cases []*VarianceCase
	var errs []error
	for _, rec := range records {
		exp, ok := expected[rec.AWB]
		if !ok {
			errs = append(errs, fmt.Errorf("no expected amount for %s/%s", rec.Provider, rec.AWB))
			continue
		}
		vc, err := s.Reconcile(ctx, exp, rec)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if vc != nil {
			cases = append(cases, vc)
		}
	}
	return cases, errs
}

// StartReview moves an open case to under_review.
func (s *Service) StartReview(ctx context.Context, caseID, note string) (*VarianceCase, error) {
	vc, err := s.store.GetCase(ctx, caseID)
	if err != nil {
		return nil, err
	}
	if vc.Status != StatusOpen {
		return nil, fmt.Errorf("%w: %s -> under_review", ErrInvalidTransition, vc.Status)
	}

	vc.Status = StatusUnderReview
	vc.ReviewNote = note
	vc.UpdatedAt = s.clock.Now()
	if err := s.store.UpdateCase(ctx, vc); err != nil {
		return nil, err
	}
	return vc, nil
}

// Close finishes a case under review. A resolved case settles the difference
// against the company wallet: overbilling is debited, underbilling credited.
// A waived case leaves the wallet untouched.
func (s *Service) Close(ctx context.Context, caseID string, resolution Resolution, note string) (*VarianceCase, error) {
	vc, err := s.store.GetCase(ctx, caseID)
	if err != nil {
		return nil, err
	}
	if vc.Status != StatusUnderReview {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, vc.Status, resolution)
	}

	if resolution == ResolutionResolved {
		if err := s.settle(ctx, vc); err != nil {
			return nil, err
		}
		vc.Status = StatusResolved
	} else {
		vc.Status = StatusWaived
	}

	now := s.clock.Now()
	if note != "" {
		vc.ReviewNote = note
	}
	vc.UpdatedAt = now
	vc.ResolvedAt = &now
	if err := s.store.UpdateCase(ctx, vc); err != nil {
		return nil, err
	}

	s.logger.Info("variance case closed",
		"case_id", vc.ID,
		"status", vc.Status,
		"difference", vc.Difference(),
	)
	s.publishCase(ctx, events.EventVarianceCaseResolved, vc)
	return vc, nil
}

func (s *Service) settle(ctx context.Context, vc *VarianceCase) error {
	diff := vc.Difference()
	if diff == 0 {
		return nil
	}

	description := fmt.Sprintf("Billing adjustment for %s AWB %s", vc.Provider, vc.AWB)
	if diff > 0 {
		_, err := s.wallets.Debit(ctx, vc.CompanyID, money.New(diff, vc.Expected.Currency),
			wallet.ReferenceAdjustment, description, vc.ID)
		if err != nil {
			return fmt.Errorf("debiting variance adjustment: %w", err)
		}
		return nil
	}

	_, err := s.wallets.Credit(ctx, vc.CompanyID, money.New(-diff, vc.Expected.Currency),
		wallet.ReferenceAdjustment, description, vc.ID)
	if err != nil {
		return fmt.Errorf("crediting variance adjustment: %w", err)
	}
	return nil
}

// ListCases returns variance cases, optionally filtered by status.
func (s *Service) ListCases(ctx context.Context, companyID string, status CaseStatus, limit, offset int) ([]*VarianceCase, int64, error) {
	if limit <= 0 {
		limit = 50
	}
	if limit > 100 {
		limit = 100
	}
	return s.store.ListCases(ctx, companyID, status, limit, offset)
}

func (s *Service) publishCase(ctx context.Context, eventType string, vc *VarianceCase) {
	if s.publisher == nil {
		return
	}

	data := events.VarianceCaseData{
		CaseID:          vc.ID,
		CompanyID:       vc.CompanyID,
		Provider:        vc.Provider,
		AWB:             vc.AWB,
		ExpectedMinor:   vc.Expected.AmountMinor,
		BilledMinor:     vc.Billed.AmountMinor,
		VariancePercent: vc.VariancePercent,
	}

	event, err := events.NewEvent(eventType, vc.CompanyID, "variance_case", vc.ID, data)
	if err != nil {
		s.logger.Error("failed to build variance event", "error", err, "type", eventType)
		return
	}
	if err := s.publisher.Publish(ctx, event); err != nil {
		s.logger.Error("failed to publish variance event", "error", err, "type", eventType)
	}
}
