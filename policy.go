package guard402

import "fmt"

// BudgetPolicy caps spend over calendar windows. A nil cap is unconstrained
// for that window. Caps must be non-negative.
type BudgetPolicy struct {
	DailyUSDCap   *float64 `yaml:"daily_usd_cap" json:"dailyUsdCap,omitempty"`
	MonthlyUSDCap *float64 `yaml:"monthly_usd_cap" json:"monthlyUsdCap,omitempty"`
}

// ServicePolicy is a BudgetPolicy with an additional per-call ceiling.
type ServicePolicy struct {
	BudgetPolicy     `yaml:",inline"`
	PerRequestMaxUSD *float64 `yaml:"per_request_max_usd" json:"perRequestMaxUsd,omitempty"`
}

// PolicyConfig maps scopes to budget policies. The most specific applicable
// policy governs: service, then agent; Global is consulted only when neither
// a service nor an agent policy applies to the event. It is a fallback, not
// an extra constraint layered on top.
type PolicyConfig struct {
	Global   *BudgetPolicy             `yaml:"global" json:"global,omitempty"`
	Services map[string]*ServicePolicy `yaml:"services" json:"services,omitempty"`
	Agents   map[string]*BudgetPolicy  `yaml:"agents" json:"agents,omitempty"`
}

// Empty reports whether no policy is configured at any scope.
func (c PolicyConfig) Empty() bool {
	return c.Global == nil && len(c.Services) == 0 && len(c.Agents) == 0
}

// Enforce decides whether the proposed event may proceed under the config.
// It is pure: it never writes to the ledger, and calling it any number of
// times with the same ledger state and event yields the same decision.
//
// Evaluation order, first violation wins:
//  1. service policy for event.ServiceID (per-request ceiling, daily, monthly)
//  2. agent policy for event.AgentID
//  3. Global, only if neither specific policy existed
func Enforce(ledger Ledger, cfg PolicyConfig, event UsageEvent) Decision {
	applied := false

	if sp, ok := cfg.Services[event.ServiceID]; ok && sp != nil {
		applied = true
		if sp.PerRequestMaxUSD != nil && event.USDAmount > *sp.PerRequestMaxUSD {
			return Deny(fmt.Sprintf("per-request cap exceeded for service %s", event.ServiceID))
		}
		q := SpendQuery{Date: event.Timestamp, ServiceID: event.ServiceID}
		if d := applyBudgetPolicy(ledger, sp.BudgetPolicy, q, event.USDAmount, "service "+event.ServiceID); !d.Allowed {
			return d
		}
	}

	if event.AgentID != "" {
		if ap, ok := cfg.Agents[event.AgentID]; ok && ap != nil {
			applied = true
			q := SpendQuery{Date: event.Timestamp, AgentID: event.AgentID}
			if d := applyBudgetPolicy(ledger, *ap, q, event.USDAmount, "agent "+event.AgentID); !d.Allowed {
				return d
			}
		}
	}

	if !applied && cfg.Global != nil {
		q := SpendQuery{Date: event.Timestamp}
		return applyBudgetPolicy(ledger, *cfg.Global, q, event.USDAmount, "all traffic")
	}

	return Allow()
}

// applyBudgetPolicy checks the daily cap, then the monthly cap, against spend
// matching the query. Service policies count the service's spend across all
// agents, agent policies count the agent's spend across all services, and the
// global fallback counts everything. A cap is violated when matched spend
// plus the proposed amount strictly exceeds it: landing exactly on the cap is
// allowed, crossing it is not.
func applyBudgetPolicy(ledger Ledger, p BudgetPolicy, q SpendQuery, amount float64, scope string) Decision {
	if p.DailyUSDCap != nil {
		if ledger.DailySpendUSD(q)+amount > *p.DailyUSDCap {
			return Deny(fmt.Sprintf("daily cap exceeded for %s", scope))
		}
	}

	if p.MonthlyUSDCap != nil {
		if ledger.MonthlySpendUSD(q)+amount > *p.MonthlyUSDCap {
			return Deny(fmt.Sprintf("monthly cap exceeded for %s", scope))
		}
	}

	return Allow()
}
