// Package featureflag gates the auto-recharge worker behind a runtime flag.
// The worker runs only when both the process-level kill switch (environment)
// and the database flag are on, so operations can halt recharging without a
// deploy from either side.
package featureflag

import (
	"context"
	"os"
	"strconv"
)

// FlagAutoRecharge is the database flag that enables the recharge worker.
const FlagAutoRecharge = "wallet_auto_recharge"

// EnvAutoRecharge is the process-level kill switch.
const EnvAutoRecharge = "AUTO_RECHARGE_FEATURE_ENABLED"

// Store reads feature flags.
type Store interface {
	// IsEnabled reports whether the named flag is on. Unknown flags are off.
	IsEnabled(ctx context.Context, name string) (bool, error)
}

// AutoRechargeEnabled combines the environment kill switch with the database
// flag. Both must be on.
func AutoRechargeEnabled(ctx context.Context, store Store) (bool, error) {
	if !envEnabled() {
		return false, nil
	}
	return store.IsEnabled(ctx, FlagAutoRecharge)
}

func envEnabled() bool {
	v := os.Getenv(EnvAutoRecharge)
	if v == "" {
		return false
	}
	enabled, err := strconv.ParseBool(v)
	return err == nil && enabled
}
