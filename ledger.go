package guard402

import "time"

// Ledger is the append-only store of committed usage records. All aggregates
// are derived from it; nothing else is persisted.
//
// Implementations must serialize RecordUsage against reads so that no caller
// observes a partially applied append or reset. Reads return consistent
// snapshots.
type Ledger interface {
	// RecordUsage assigns an identifier, appends the event and returns the
	// persisted record. Storage-backed implementations may return an error.
	RecordUsage(event UsageEvent) (UsageRecord, error)

	// Records returns all records in insertion order. The returned slice is a
	// defensive copy; mutating it does not affect the ledger.
	Records() []UsageRecord

	// DailySpendUSD sums USDAmount over the local calendar day of q.Date,
	// filtered by the query's ServiceID/AgentID when set.
	DailySpendUSD(q SpendQuery) float64

	// MonthlySpendUSD is DailySpendUSD over the calendar month of q.Date.
	MonthlySpendUSD(q SpendQuery) float64

	// Reset clears all records atomically. Intended for test/demo isolation.
	Reset()
}

// SpendQuery selects a spend window and optional filters. An empty filter
// field is unconstrained; set fields combine with AND semantics.
type SpendQuery struct {
	Date      time.Time
	ServiceID string
	AgentID   string
}

// Matches reports whether the query's filters accept the record.
func (q SpendQuery) Matches(r UsageRecord) bool {
	if q.ServiceID != "" && r.ServiceID != q.ServiceID {
		return false
	}
	if q.AgentID != "" && r.AgentID != q.AgentID {
		return false
	}
	return true
}

// WindowSpender is an optional Ledger extension for arbitrary rolling
// windows, used by the budget-list policy model. Ledgers that can answer
// windowed sums natively (SQL, Redis) should implement it; EnforceBudgets
// falls back to scanning Records() otherwise.
type WindowSpender interface {
	// WindowSpendUSD sums USDAmount over [from, to] inclusive for records
	// matching the scope.
	WindowSpendUSD(from, to time.Time, scope BudgetScope) float64
}
