// Package reconcile detects carrier billing variance: when a carrier's billed
// amount for a shipment deviates from the quoted amount beyond a configured
// percentage, a variance case is opened for manual review.
package reconcile

import (
	"errors"
	"time"

	"logiplatform/internal/common/money"
)

// CaseStatus is the variance case lifecycle state.
type CaseStatus string

const (
	StatusOpen        CaseStatus = "open"
	StatusUnderReview CaseStatus = "under_review"
	StatusResolved    CaseStatus = "resolved"
	StatusWaived      CaseStatus = "waived"
)

// Resolution is the terminal outcome of a reviewed case.
type Resolution string

const (
	// ResolutionResolved means the variance was legitimate; the difference
	// is charged to (or refunded to) the company wallet.
	ResolutionResolved Resolution = "resolved"
	// ResolutionWaived means the variance is absorbed; no wallet adjustment.
	ResolutionWaived Resolution = "waived"
)

// ImportRecord is one row from a carrier billing file.
type ImportRecord struct {
	Provider    string `json:"provider"`
	AWB         string `json:"awb"`
	CompanyID   string `json:"company_id"`
	BilledMinor int64  `json:"billed_minor"`
	Currency    string `json:"currency"`
}

// VarianceCase records a billing discrepancy pending review.
type VarianceCase struct {
	ID              string      `json:"id"`
	CompanyID       string      `json:"company_id"`
	Provider        string      `json:"provider"`
	AWB             string      `json:"awb"`
	Expected        money.Money `json:"expected"`
	Billed          money.Money `json:"billed"`
	VariancePercent float64     `json:"variance_percent"`
	Status          CaseStatus  `json:"status"`
	ReviewNote      string      `json:"review_note,omitempty"`
	CreatedAt       time.Time   `json:"created_at"`
	UpdatedAt       time.Time   `json:"updated_at"`
	ResolvedAt      *time.Time  `json:"resolved_at,omitempty"`
}

// Difference is the signed amount the carrier billed over (positive) or
// under (negative) the expectation, in minor units.
func (c *VarianceCase) Difference() int64 {
	return c.Billed.AmountMinor - c.Expected.AmountMinor
}

var (
	ErrCaseNotFound = errors.New("variance case not found")
	// ErrInvalidTransition is returned for lifecycle moves the state machine
	// does not allow (open -> under_review -> resolved|waived).
	ErrInvalidTransition = errors.New("invalid variance case transition")
)
