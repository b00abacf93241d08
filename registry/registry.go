// Package registry integrates guard402 with an external subscription
// registry: a read/write collaborator that knows which user holds an active
// plan. The registry is consulted, never owned; guard402 only depends on the
// Registry interface and treats all registry state as remote truth.
package registry

import (
	"context"
	"errors"
	"fmt"
)

// ErrRegistry is the sentinel for registry transport failures. A gate must
// treat it as "deny with internal error", distinct from "deny because
// inactive".
var ErrRegistry = errors.New("registry: call failed")

// Error wraps a failed registry call with the operation that failed.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string { return fmt.Sprintf("registry: %s: %v", e.Op, e.Err) }

func (e *Error) Unwrap() error { return ErrRegistry }

// Registry is the subscription collaborator contract. Write operations
// return an opaque transaction reference. All calls may fail with an error
// wrapping ErrRegistry.
type Registry interface {
	// IsActive reports whether user holds an active subscription to planID.
	IsActive(ctx context.Context, user, planID string) (bool, error)

	// CreatePlan provisions a plan. Implementations treat "plan already
	// exists" as success, so provisioning is best-effort idempotent.
	CreatePlan(ctx context.Context, plan Plan) (txRef string, err error)

	// Subscribe subscribes user to planID.
	Subscribe(ctx context.Context, user, planID string) (txRef string, err error)

	// RecordUsage reports settled usage for a subscription upstream.
	RecordUsage(ctx context.Context, user, planID string, usdCents int64) (txRef string, err error)
}

// Plan describes a subscription plan to provision.
type Plan struct {
	ID            string `json:"planId"`
	PriceUSDCents int64  `json:"priceUsdCents"`
	PeriodDays    int    `json:"periodDays"`
}

// EnsurePlanAndSubscribe provisions the plan then subscribes the user.
// Plan creation is advisory: a create failure is carried along but does not
// stop the subscribe attempt, matching the registry's idempotent-provision
// contract.
func EnsurePlanAndSubscribe(ctx context.Context, reg Registry, plan Plan, user string) (string, error) {
	// Advisory create: the plan may exist already or be owned by another
	// provisioner. Subscribe decides.
	_, _ = reg.CreatePlan(ctx, plan)

	return reg.Subscribe(ctx, user, plan.ID)
}
