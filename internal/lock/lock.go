// Package lock provides per-company mutual exclusion for the recharge worker.
// Locks guarantee at most one in-flight recharge attempt per company across
// worker replicas.
package lock

import (
	"context"
	"fmt"
	"time"
)

// Locker acquires short-lived exclusive locks by key.
type Locker interface {
	// Acquire tries to take the lock. Returns (release, true) when acquired;
	// (nil, false) when another holder has it. Release is idempotent and only
	// frees the lock if this holder still owns it.
	Acquire(ctx context.Context, key string, ttl time.Duration) (release func(context.Context) error, acquired bool, err error)
}

// RechargeKey is the lock key for a company's auto-recharge attempt.
func RechargeKey(companyID string) string {
	return fmt.Sprintf("autorecharge:lock:%s", companyID)
}
