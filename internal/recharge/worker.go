// Package recharge implements the auto-recharge worker: a batch job that
// scans companies, decides who needs a top-up, and drives each attempt
// through locking, payment, and ledger credit.
package recharge

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/oklog/ulid/v2"

	"logiplatform/internal/common/clock"
	"logiplatform/internal/common/events"
	"logiplatform/internal/common/money"
	"logiplatform/internal/featureflag"
	"logiplatform/internal/gateway"
	"logiplatform/internal/lock"
	"logiplatform/internal/wallet"
)

// Failure reasons surfaced to UI layers. These strings are stable.
const (
	ReasonDailyLimitExceeded   = "Daily limit exceeded"
	ReasonMonthlyLimitExceeded = "Monthly limit exceeded"
)

// Skip reasons used for metrics labels.
const (
	skipInactive        = "company_inactive"
	skipDisabled        = "auto_recharge_disabled"
	skipNoPaymentMethod = "no_payment_method"
	skipBalanceOK       = "balance_above_threshold"
	skipCooldown        = "cooldown_active"
	skipBackoff         = "backoff_wait"
	skipLocked          = "lock_unavailable"
)

// maxRetries is the consecutive-failure count at which auto-recharge is
// disabled for the company.
const maxRetries = 4

// DefaultBackoff is the retry delay schedule indexed by retry count.
// retryCount 1 waits 30 minutes, 2 waits 2 hours, 3 waits 6 hours; the final
// entry applies to any further failures.
var DefaultBackoff = []time.Duration{
	30 * time.Minute,
	2 * time.Hour,
	6 * time.Hour,
	24 * time.Hour,
}

// Config holds worker tuning.
type Config struct {
	// Cooldown is the minimum wait between attempts for one company.
	Cooldown time.Duration `envconfig:"RECHARGE_COOLDOWN" default:"1h"`
	// LockTTL bounds how long a crashed worker can block a company.
	LockTTL time.Duration `envconfig:"RECHARGE_LOCK_TTL" default:"2m"`
	// DailyWindow and MonthlyWindow are the rolling periods for limit checks.
	DailyWindow   time.Duration `envconfig:"RECHARGE_DAILY_WINDOW" default:"24h"`
	MonthlyWindow time.Duration `envconfig:"RECHARGE_MONTHLY_WINDOW" default:"720h"`

	Backoff []time.Duration `ignored:"true"`
}

func (c Config) withDefaults() Config {
	out := c
	if out.Cooldown <= 0 {
		out.Cooldown = time.Hour
	}
	if out.LockTTL <= 0 {
		out.LockTTL = 2 * time.Minute
	}
	if out.DailyWindow <= 0 {
		out.DailyWindow = 24 * time.Hour
	}
	if out.MonthlyWindow <= 0 {
		out.MonthlyWindow = 30 * 24 * time.Hour
	}
	if len(out.Backoff) == 0 {
		out.Backoff = DefaultBackoff
	}
	return out
}

// Worker processes auto-recharge for all eligible companies.
type Worker struct {
	config    Config
	store     wallet.Store
	flags     featureflag.Store
	locker    lock.Locker
	gateway   gateway.Gateway
	metrics   MetricsSink
	publisher events.EventPublisher
	clock     clock.Clock
	logger    *slog.Logger
}

// NewWorker creates a recharge worker. The publisher may be nil; metrics must
// not be.
func NewWorker(cfg Config, store wallet.Store, flags featureflag.Store, locker lock.Locker, gw gateway.Gateway, metrics MetricsSink, publisher events.EventPublisher, clk clock.Clock, logger *slog.Logger) *Worker {
	if clk == nil {
		clk = clock.RealClock{}
	}
	return &Worker{
		config:    cfg.withDefaults(),
		store:     store,
		flags:     flags,
		locker:    locker,
		gateway:   gw,
		metrics:   metrics,
		publisher: publisher,
		clock:     clk,
		logger:    logger,
	}
}

// Run executes one batch pass. Companies are processed independently; one
// company's failure never aborts the others. Only batch-fatal errors (flag
// store or candidate listing unreachable) propagate.
func (w *Worker) Run(ctx context.Context) error {
	enabled, err := featureflag.AutoRechargeEnabled(ctx, w.flags)
	if err != nil {
		return fmt.Errorf("checking feature flag: %w", err)
	}
	if !enabled {
		w.logger.Info("auto-recharge feature disabled, skipping batch")
		return nil
	}

	candidates, err := w.store.ListRechargeCandidates(ctx)
	if err != nil {
		return fmt.Errorf("listing recharge candidates: %w", err)
	}

	w.logger.Info("starting recharge batch", "candidates", len(candidates))

	for _, c := range candidates {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := w.processCompany(ctx, c); err != nil {
			w.logger.Error("recharge processing failed",
				"company_id", c.ID,
				"error", err,
			)
		}
	}
	return nil
}

// processCompany runs the full attempt pipeline for one candidate.
func (w *Worker) processCompany(ctx context.Context, c *wallet.Company) error {
	now := w.clock.Now()

	if reason, skip := w.shouldSkip(c, now); skip {
		w.metrics.IncSkip(reason)
		return nil
	}

	release, acquired, err := w.locker.Acquire(ctx, lock.RechargeKey(c.ID), w.config.LockTTL)
	if err != nil {
		return fmt.Errorf("acquiring lock: %w", err)
	}
	if !acquired {
		w.metrics.IncSkip(skipLocked)
		return nil
	}
	defer func() {
		if err := release(ctx); err != nil {
			w.logger.Error("lock release failed", "company_id", c.ID, "error", err)
		}
	}()

	// Re-read under the lock; another worker may have finished an attempt
	// between the candidate scan and our acquire.
	c, err = w.store.GetCompany(ctx, c.ID)
	if err != nil {
		return fmt.Errorf("reloading company: %w", err)
	}
	now = w.clock.Now()
	if reason, skip := w.shouldSkip(c, now); skip {
		w.metrics.IncSkip(reason)
		return nil
	}

	w.metrics.IncAttempt()
	ar := c.Wallet.AutoRecharge

	if reason, exceeded, err := w.limitExceeded(ctx, c, now); err != nil {
		return err
	} else if exceeded {
		return w.recordFailure(ctx, c, reason, now)
	}

	order, err := w.gateway.CreateOrder(ctx, gateway.OrderRequest{
		AmountMinor:     ar.Amount.AmountMinor,
		Currency:        string(ar.Amount.Currency),
		PaymentMethodID: ar.PaymentMethodID,
		IdempotencyKey:  ulid.Make().String(),
		Notes:           map[string]string{"company_id": c.ID},
	})
	if err != nil {
		return w.recordFailure(ctx, c, err.Error(), now)
	}
	if order.Status != gateway.StatusCaptured {
		reason := order.ErrorReason
		if reason == "" {
			reason = fmt.Sprintf("payment not captured (status %s)", order.Status)
		}
		return w.recordFailure(ctx, c, reason, now)
	}

	txn, err := w.store.RecordRechargeAttempt(ctx, wallet.RechargeAttemptRecord{
		CompanyID:   c.ID,
		Success:     true,
		Amount:      ar.Amount,
		OrderID:     order.ID,
		AttemptedAt: now,
	})
	if err != nil {
		return fmt.Errorf("recording successful recharge: %w", err)
	}

	w.metrics.IncSuccess()
	w.logger.Info("auto-recharge succeeded",
		"company_id", c.ID,
		"amount", ar.Amount.AmountMinor,
		"order_id", order.ID,
		"balance_after", txn.BalanceAfter.AmountMinor,
	)
	w.publishOutcome(ctx, events.EventRechargeSucceeded, c.ID, ar.Amount, order.ID, "", 0)
	return nil
}

// shouldSkip evaluates the gate checks. Skips have no side effects and no log
// row.
func (w *Worker) shouldSkip(c *wallet.Company, now time.Time) (string, bool) {
	ar := c.Wallet.AutoRecharge
	switch {
	case !c.IsActive:
		return skipInactive, true
	case !ar.Enabled:
		return skipDisabled, true
	case ar.PaymentMethodID == "":
		return skipNoPaymentMethod, true
	case c.Wallet.Balance.GreaterThanOrEqual(ar.Threshold):
		return skipBalanceOK, true
	case ar.LastAttempt != nil && now.Sub(*ar.LastAttempt) < w.config.Cooldown:
		return skipCooldown, true
	case ar.LastFailure != nil && ar.LastFailure.NextRetryAt != nil && ar.LastFailure.NextRetryAt.After(now):
		return skipBackoff, true
	}
	return "", false
}

// limitExceeded checks the daily and monthly caps against recent successful
// recharges.
func (w *Worker) limitExceeded(ctx context.Context, c *wallet.Company, now time.Time) (string, bool, error) {
	ar := c.Wallet.AutoRecharge

	if ar.DailyLimit != nil {
		sum, err := w.store.SumSuccessfulRecharges(ctx, c.ID, now.Add(-w.config.DailyWindow))
		if err != nil {
			return "", false, fmt.Errorf("summing daily recharges: %w", err)
		}
		if sum.MustAdd(ar.Amount).GreaterThan(*ar.DailyLimit) {
			return ReasonDailyLimitExceeded, true, nil
		}
	}

	if ar.MonthlyLimit != nil {
		sum, err := w.store.SumSuccessfulRecharges(ctx, c.ID, now.Add(-w.config.MonthlyWindow))
		if err != nil {
			return "", false, fmt.Errorf("summing monthly recharges: %w", err)
		}
		if sum.MustAdd(ar.Amount).GreaterThan(*ar.MonthlyLimit) {
			return ReasonMonthlyLimitExceeded, true, nil
		}
	}

	return "", false, nil
}

// recordFailure persists one failed attempt with retry bookkeeping. The 4th
// consecutive failure disables auto-recharge for the company.
func (w *Worker) recordFailure(ctx context.Context, c *wallet.Company, reason string, now time.Time) error {
	ar := c.Wallet.AutoRecharge

	retryCount := 1
	if ar.LastFailure != nil {
		retryCount = ar.LastFailure.RetryCount + 1
	}

	disable := retryCount >= maxRetries
	var nextRetryAt *time.Time
	if !disable {
		t := now.Add(w.backoffDelay(retryCount))
		nextRetryAt = &t
	}

	_, err := w.store.RecordRechargeAttempt(ctx, wallet.RechargeAttemptRecord{
		CompanyID:           c.ID,
		Success:             false,
		Amount:              ar.Amount,
		FailureReason:       reason,
		AttemptedAt:         now,
		RetryCount:          retryCount,
		NextRetryAt:         nextRetryAt,
		DisableAutoRecharge: disable,
	})
	if err != nil {
		return fmt.Errorf("recording failed recharge: %w", err)
	}

	w.metrics.IncFailure(reason)
	w.logger.Warn("auto-recharge failed",
		"company_id", c.ID,
		"reason", reason,
		"retry_count", retryCount,
		"auto_disabled", disable,
	)

	w.publishOutcome(ctx, events.EventRechargeFailed, c.ID, ar.Amount, "", reason, retryCount)
	if disable {
		w.publishOutcome(ctx, events.EventRechargeDisabled, c.ID, ar.Amount, "", reason, retryCount)
	}
	return nil
}

func (w *Worker) backoffDelay(retryCount int) time.Duration {
	idx := retryCount - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(w.config.Backoff) {
		idx = len(w.config.Backoff) - 1
	}
	return w.config.Backoff[idx]
}

func (w *Worker) publishOutcome(ctx context.Context, eventType, companyID string, amount money.Money, orderID, reason string, retryCount int) {
	if w.publisher == nil {
		return
	}

	data := events.RechargeOutcomeData{
		CompanyID:     companyID,
		Amount:        amount.AmountMinor,
		Currency:      string(amount.Currency),
		OrderID:       orderID,
		FailureReason: reason,
		RetryCount:    retryCount,
	}

	event, err := events.NewEvent(eventType, companyID, "wallet", companyID, data)
	if err != nil {
		w.logger.Error("failed to build recharge event", "error", err, "type", eventType)
		return
	}
	if err := w.publisher.Publish(ctx, event); err != nil {
		w.logger.Error("failed to publish recharge event", "error", err, "type", eventType)
	}
}
