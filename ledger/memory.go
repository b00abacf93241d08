package ledger

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/402guard/guard402"
)

// MemoryLedger is the reference in-memory Ledger. Records live in insertion
// order; a mutex serializes appends against reads and resets so every caller
// sees a consistent snapshot.
type MemoryLedger struct {
	mu      sync.RWMutex
	records []guard402.UsageRecord
}

var (
	_ guard402.Ledger        = (*MemoryLedger)(nil)
	_ guard402.WindowSpender = (*MemoryLedger)(nil)
)

// NewMemoryLedger creates an empty in-memory ledger.
func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{}
}

// RecordUsage assigns an id, appends and returns the persisted record.
// It never fails.
func (l *MemoryLedger) RecordUsage(event guard402.UsageEvent) (guard402.UsageRecord, error) {
	rec := guard402.UsageRecord{
		UsageEvent: event,
		ID:         uuid.New().String(),
	}

	l.mu.Lock()
	l.records = append(l.records, rec)
	l.mu.Unlock()

	return rec, nil
}

// Records returns a defensive copy of all records in insertion order.
func (l *MemoryLedger) Records() []guard402.UsageRecord {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]guard402.UsageRecord, len(l.records))
	copy(out, l.records)
	return out
}

// DailySpendUSD sums spend over the local calendar day of q.Date, applying
// the query's filters.
func (l *MemoryLedger) DailySpendUSD(q guard402.SpendQuery) float64 {
	from, to := guard402.DayWindow(q.Date)
	return l.sum(from, to, q.Matches)
}

// MonthlySpendUSD sums spend over the calendar month of q.Date.
func (l *MemoryLedger) MonthlySpendUSD(q guard402.SpendQuery) float64 {
	from, to := guard402.MonthWindow(q.Date)
	return l.sum(from, to, q.Matches)
}

// WindowSpendUSD sums spend over [from, to] inclusive for the scope. Used by
// the rolling-window budget model.
func (l *MemoryLedger) WindowSpendUSD(from, to time.Time, scope guard402.BudgetScope) float64 {
	return l.sum(from, to, func(r guard402.UsageRecord) bool {
		return scope.Matches(r.UsageEvent)
	})
}

// Reset clears all records. No concurrent reader observes a partial clear.
func (l *MemoryLedger) Reset() {
	l.mu.Lock()
	l.records = nil
	l.mu.Unlock()
}

// sum adds matching amounts in insertion order using Kahan compensated
// summation, so long record runs do not drift.
func (l *MemoryLedger) sum(from, to time.Time, match func(guard402.UsageRecord) bool) float64 {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var sum, comp float64
	for _, r := range l.records {
		if !guard402.InWindow(r.Timestamp, from, to) || !match(r) {
			continue
		}
		y := r.USDAmount - comp
		t := sum + y
		comp = (t - sum) - y
		sum = t
	}
	return sum
}
