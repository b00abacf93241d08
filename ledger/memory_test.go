package ledger_test

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/402guard/guard402"
	"github.com/402guard/guard402/ledger"
)

func record(t *testing.T, l *ledger.MemoryLedger, serviceID, agentID string, usd float64, ts time.Time) guard402.UsageRecord {
	t.Helper()
	rec, err := l.RecordUsage(guard402.UsageEvent{
		ServiceID: serviceID,
		AgentID:   agentID,
		USDAmount: usd,
		Timestamp: ts,
	})
	require.NoError(t, err)
	return rec
}

// Test 1: records come back in insertion order with unique ids.
func TestMemoryLedger_RecordAndList(t *testing.T) {
	l := ledger.NewMemoryLedger()
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	a := record(t, l, "api.a.com", "bot-1", 0.01, now)
	b := record(t, l, "api.b.com", "bot-1", 0.02, now.Add(time.Second))

	assert.NotEmpty(t, a.ID)
	assert.NotEmpty(t, b.ID)
	assert.NotEqual(t, a.ID, b.ID)

	records := l.Records()
	require.Len(t, records, 2)
	assert.Equal(t, "api.a.com", records[0].ServiceID)
	assert.Equal(t, "api.b.com", records[1].ServiceID)
}

// Test 2: mutating the returned slice does not touch the ledger.
func TestMemoryLedger_DefensiveCopy(t *testing.T) {
	l := ledger.NewMemoryLedger()
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	record(t, l, "api.a.com", "", 0.01, now)

	snapshot := l.Records()
	snapshot[0].ServiceID = "tampered"
	snapshot[0].USDAmount = 999

	records := l.Records()
	assert.Equal(t, "api.a.com", records[0].ServiceID)
	assert.InDelta(t, 0.01, records[0].USDAmount, 1e-12)
}

// Test 3: daily spend honors the calendar day and the query filters.
func TestMemoryLedger_DailySpend(t *testing.T) {
	l := ledger.NewMemoryLedger()
	day := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)

	record(t, l, "api.a.com", "bot-1", 0.01, day.Add(1*time.Hour))
	record(t, l, "api.a.com", "bot-2", 0.02, day.Add(2*time.Hour))
	record(t, l, "api.b.com", "bot-1", 0.04, day.Add(3*time.Hour))
	// Previous day, last instant. Must not count toward the 10th.
	record(t, l, "api.a.com", "bot-1", 0.08, day.Add(-time.Nanosecond))

	q := guard402.SpendQuery{Date: day.Add(12 * time.Hour)}
	assert.InDelta(t, 0.07, l.DailySpendUSD(q), 1e-9)

	q.ServiceID = "api.a.com"
	assert.InDelta(t, 0.03, l.DailySpendUSD(q), 1e-9)

	q.AgentID = "bot-1"
	assert.InDelta(t, 0.01, l.DailySpendUSD(q), 1e-9)
}

// Test 4: monthly spend includes both window endpoints.
func TestMemoryLedger_MonthlySpendBoundaries(t *testing.T) {
	l := ledger.NewMemoryLedger()

	first := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	last := time.Date(2026, 3, 31, 23, 59, 59, 999999999, time.UTC)
	record(t, l, "api.a.com", "", 0.01, first)
	record(t, l, "api.a.com", "", 0.02, last)
	record(t, l, "api.a.com", "", 0.04, last.Add(time.Nanosecond))

	q := guard402.SpendQuery{Date: time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC)}
	assert.InDelta(t, 0.03, l.MonthlySpendUSD(q), 1e-9)

	april := guard402.SpendQuery{Date: time.Date(2026, 4, 2, 0, 0, 0, 0, time.UTC)}
	assert.InDelta(t, 0.04, l.MonthlySpendUSD(april), 1e-9)
}

// Test 5: zero-amount records count toward record totals but not spend.
func TestMemoryLedger_ZeroAmount(t *testing.T) {
	l := ledger.NewMemoryLedger()
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	record(t, l, "api.a.com", "", 0, now)
	record(t, l, "api.a.com", "", 0.01, now)

	assert.Len(t, l.Records(), 2)
	assert.InDelta(t, 0.01, l.DailySpendUSD(guard402.SpendQuery{Date: now}), 1e-9)
}

// Test 6: rolling-window sums respect bounds and scope.
func TestMemoryLedger_WindowSpend(t *testing.T) {
	l := ledger.NewMemoryLedger()
	base := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	record(t, l, "api.a.com", "bot-1", 0.01, base)
	record(t, l, "api.a.com", "bot-1", 0.02, base.Add(30*time.Minute))
	record(t, l, "api.a.com", "bot-1", 0.04, base.Add(2*time.Hour))

	got := l.WindowSpendUSD(base, base.Add(time.Hour), guard402.BudgetScope{ServiceID: "api.a.com"})
	assert.InDelta(t, 0.03, got, 1e-9)

	got = l.WindowSpendUSD(base, base.Add(3*time.Hour), guard402.BudgetScope{AgentID: "bot-2"})
	assert.Zero(t, got)
}

// Test 7: many fractional-cent records sum without drift.
func TestMemoryLedger_SumStability(t *testing.T) {
	l := ledger.NewMemoryLedger()
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 10000; i++ {
		record(t, l, "api.a.com", "", 0.0001, now)
	}
	assert.InDelta(t, 1.0, l.DailySpendUSD(guard402.SpendQuery{Date: now}), 1e-9)
}

// Test 8: Reset empties everything; concurrent use does not race.
func TestMemoryLedger_ResetAndConcurrency(t *testing.T) {
	l := ledger.NewMemoryLedger()
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			record(t, l, "api.a.com", "", 0.01, now)
			l.Records()
			l.DailySpendUSD(guard402.SpendQuery{Date: now})
		}()
	}
	wg.Wait()

	assert.Len(t, l.Records(), 50)

	l.Reset()
	assert.Empty(t, l.Records())
	assert.Zero(t, l.DailySpendUSD(guard402.SpendQuery{Date: now}))
}
