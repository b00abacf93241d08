package guard402

import (
	"fmt"
	"time"
)

// Budget is an entry in the rolling-window budget model, the generalization
// of PolicyConfig's calendar windows. Each budget caps spend over
// [now-Window, now] for events matching its scope.
//
// Unlike PolicyConfig, where the most specific policy governs and Global is a
// fallback, budgets combine with AND semantics: every matching budget must
// pass. The two models are therefore not interchangeable, and a Guard accepts
// only one of them.
type Budget struct {
	ID          string        `json:"id"`
	Scope       BudgetScope   `json:"scope"`
	Window      time.Duration `json:"window"`
	MaxUSDCents int64         `json:"maxUsdCents"`
}

// BudgetScope selects the events a Budget applies to. Empty fields are
// unconstrained; set fields must all match. A zero scope matches everything.
type BudgetScope struct {
	ServiceID      string `json:"serviceId,omitempty"`
	AgentID        string `json:"agentId,omitempty"`
	SubscriptionID string `json:"subscriptionId,omitempty"`
}

// Matches reports whether the scope accepts the event.
func (s BudgetScope) Matches(event UsageEvent) bool {
	if s.ServiceID != "" && event.ServiceID != s.ServiceID {
		return false
	}
	if s.AgentID != "" && event.AgentID != s.AgentID {
		return false
	}
	if s.SubscriptionID != "" && event.SubscriptionID != s.SubscriptionID {
		return false
	}
	return true
}

// matchesRecord applies the scope to a committed record.
func (s BudgetScope) matchesRecord(r UsageRecord) bool {
	return s.Matches(r.UsageEvent)
}

// EnforceBudgets evaluates every budget whose scope matches the proposed
// event against its rolling window ending at now. Like Enforce it is pure
// and idempotent. The first violated budget denies; budgets that do not
// match the event are skipped.
func EnforceBudgets(ledger Ledger, budgets []Budget, now time.Time, event UsageEvent) Decision {
	for _, b := range budgets {
		if !b.Scope.Matches(event) {
			continue
		}

		from := now.Add(-b.Window)
		spent := windowSpendUSD(ledger, from, now, b.Scope)
		capUSD := float64(b.MaxUSDCents) / 100

		if spent+event.USDAmount > capUSD {
			return Deny(fmt.Sprintf("budget %s cap exceeded", b.ID))
		}
	}
	return Allow()
}

// windowSpendUSD uses the ledger's native windowed sum when available and
// falls back to scanning the full record snapshot.
func windowSpendUSD(ledger Ledger, from, to time.Time, scope BudgetScope) float64 {
	if ws, ok := ledger.(WindowSpender); ok {
		return ws.WindowSpendUSD(from, to, scope)
	}

	var sum, comp float64 // Kahan compensation
	for _, r := range ledger.Records() {
		if !InWindow(r.Timestamp, from, to) || !scope.matchesRecord(r) {
			continue
		}
		y := r.USDAmount - comp
		t := sum + y
		comp = (t - sum) - y
		sum = t
	}
	return sum
}
