package guard402_test

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	g402 "github.com/402guard/guard402"
	"github.com/402guard/guard402/ledger"
)

func seedLedger(t *testing.T) *ledger.MemoryLedger {
	t.Helper()
	l := ledger.NewMemoryLedger()
	base := time.Date(2026, time.March, 10, 12, 0, 0, 0, time.Local)

	mustRecord(t, l, g402.UsageEvent{ServiceID: "api.a.com", AgentID: "bot-1", SubscriptionID: "pro", USDAmount: 0.01, Timestamp: base})
	mustRecord(t, l, g402.UsageEvent{ServiceID: "api.a.com", AgentID: "bot-2", SubscriptionID: "pro", USDAmount: 0.02, Timestamp: base.Add(time.Minute)})
	mustRecord(t, l, g402.UsageEvent{ServiceID: "api.b.com", AgentID: "bot-1", USDAmount: 0.05, Timestamp: base.Add(2 * time.Minute)})
	mustRecord(t, l, g402.UsageEvent{ServiceID: "api.c.com", USDAmount: 0.10, Timestamp: base.Add(3 * time.Minute)})
	return l
}

// Test 1: per-service totals cover every record, in first-seen order.
func TestSummaryByService(t *testing.T) {
	l := seedLedger(t)

	rows := g402.SummaryByService(l)
	require.Len(t, rows, 3)

	assert.Equal(t, "api.a.com", rows[0].Key)
	assert.Equal(t, 2, rows[0].Count)
	assert.InDelta(t, 0.03, rows[0].TotalUSD, 1e-9)

	assert.Equal(t, "api.b.com", rows[1].Key)
	assert.Equal(t, "api.c.com", rows[2].Key)
	assert.InDelta(t, 0.10, rows[2].TotalUSD, 1e-9)
}

// Test 2: agent and subscription groupings skip records without the key
// instead of inventing a bucket for them.
func TestSummaryExcludesEmptyKeys(t *testing.T) {
	l := seedLedger(t)

	byAgent := g402.SummaryByAgent(l)
	require.Len(t, byAgent, 2)
	assert.Equal(t, "bot-1", byAgent[0].Key)
	assert.Equal(t, 2, byAgent[0].Count)
	assert.InDelta(t, 0.06, byAgent[0].TotalUSD, 1e-9)
	assert.Equal(t, "bot-2", byAgent[1].Key)

	bySub := g402.SummaryBySubscription(l)
	require.Len(t, bySub, 1)
	assert.Equal(t, "pro", bySub[0].Key)
	assert.Equal(t, 2, bySub[0].Count)
}

// Test 3: summaries over an empty ledger are empty, not nil-panicky.
func TestSummaryEmptyLedger(t *testing.T) {
	l := ledger.NewMemoryLedger()
	assert.Empty(t, g402.SummaryByService(l))
	assert.Empty(t, g402.SummaryByAgent(l))
}

// Test 4: an invoice covers exactly one subscription and period, grouped by
// service, and its total equals the sum of the lines.
func TestGenerateInvoice(t *testing.T) {
	l := ledger.NewMemoryLedger()
	mar := time.Date(2026, time.March, 1, 0, 0, 0, 0, time.Local)

	mustRecord(t, l, g402.UsageEvent{ServiceID: "api.a.com", SubscriptionID: "pro", USDAmount: 0.01, Timestamp: mar.AddDate(0, 0, 2)})
	mustRecord(t, l, g402.UsageEvent{ServiceID: "api.a.com", SubscriptionID: "pro", USDAmount: 0.02, Timestamp: mar.AddDate(0, 0, 15)})
	mustRecord(t, l, g402.UsageEvent{ServiceID: "api.b.com", SubscriptionID: "pro", USDAmount: 0.04, Timestamp: mar.AddDate(0, 0, 20)})
	// Different subscription and out-of-period records must not leak in.
	mustRecord(t, l, g402.UsageEvent{ServiceID: "api.a.com", SubscriptionID: "free", USDAmount: 1.00, Timestamp: mar.AddDate(0, 0, 5)})
	mustRecord(t, l, g402.UsageEvent{ServiceID: "api.a.com", SubscriptionID: "pro", USDAmount: 1.00, Timestamp: mar.AddDate(0, 1, 3)})

	end := mar.AddDate(0, 1, 0).Add(-time.Nanosecond)
	inv := g402.GenerateInvoice(l, "pro", mar, end)

	assert.Equal(t, "pro", inv.SubscriptionID)
	assert.Equal(t, "USD", inv.Currency)
	require.Len(t, inv.Lines, 2)

	assert.Equal(t, "api.a.com", inv.Lines[0].ServiceID)
	assert.Equal(t, 2, inv.Lines[0].Count)
	assert.InDelta(t, 0.03, inv.Lines[0].TotalUSD, 1e-9)
	assert.Equal(t, "api.b.com", inv.Lines[1].ServiceID)

	var sum float64
	for _, line := range inv.Lines {
		sum += line.TotalUSD
	}
	assert.InDelta(t, sum, inv.TotalUSD, 1e-9)
	assert.InDelta(t, 0.07, inv.TotalUSD, 1e-9)
}

// Test 5: period bounds are inclusive on both ends.
func TestGenerateInvoiceInclusiveBounds(t *testing.T) {
	l := ledger.NewMemoryLedger()
	start := time.Date(2026, time.March, 1, 0, 0, 0, 0, time.Local)
	end := start.AddDate(0, 0, 7)

	mustRecord(t, l, g402.UsageEvent{ServiceID: "api.a.com", SubscriptionID: "pro", USDAmount: 0.01, Timestamp: start})
	mustRecord(t, l, g402.UsageEvent{ServiceID: "api.a.com", SubscriptionID: "pro", USDAmount: 0.01, Timestamp: end})
	mustRecord(t, l, g402.UsageEvent{ServiceID: "api.a.com", SubscriptionID: "pro", USDAmount: 0.01, Timestamp: end.Add(time.Nanosecond)})

	inv := g402.GenerateInvoice(l, "pro", start, end)
	require.Len(t, inv.Lines, 1)
	assert.Equal(t, 2, inv.Lines[0].Count)
}

// Test 6: CSV export format and filtering.
func TestWriteCSV(t *testing.T) {
	l := ledger.NewMemoryLedger()
	ts := time.Date(2026, time.March, 10, 9, 30, 0, 0, time.UTC)

	mustRecord(t, l, g402.UsageEvent{ServiceID: "api.a.com", AgentID: "bot-1", USDAmount: 0.015, Timestamp: ts})
	mustRecord(t, l, g402.UsageEvent{ServiceID: "api.b.com", AgentID: "bot-2", USDAmount: 2, Timestamp: ts.Add(time.Hour)})

	var buf bytes.Buffer
	require.NoError(t, g402.WriteCSV(&buf, l, g402.CSVFilter{}))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "timestamp,serviceId,agentId,usdAmount", lines[0])
	assert.Equal(t, "2026-03-10T09:30:00Z,api.a.com,bot-1,0.0150", lines[1])
	assert.Equal(t, "2026-03-10T10:30:00Z,api.b.com,bot-2,2.0000", lines[2])
}

// Test 7: agent and time filters narrow the export.
func TestWriteCSVFiltered(t *testing.T) {
	l := ledger.NewMemoryLedger()
	ts := time.Date(2026, time.March, 10, 9, 0, 0, 0, time.UTC)

	mustRecord(t, l, g402.UsageEvent{ServiceID: "api.a.com", AgentID: "bot-1", USDAmount: 0.01, Timestamp: ts})
	mustRecord(t, l, g402.UsageEvent{ServiceID: "api.a.com", AgentID: "bot-2", USDAmount: 0.02, Timestamp: ts.Add(time.Hour)})
	mustRecord(t, l, g402.UsageEvent{ServiceID: "api.a.com", AgentID: "bot-1", USDAmount: 0.03, Timestamp: ts.Add(48 * time.Hour)})

	var buf bytes.Buffer
	require.NoError(t, g402.WriteCSV(&buf, l, g402.CSVFilter{
		AgentID: "bot-1",
		From:    ts,
		To:      ts.Add(24 * time.Hour),
	}))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[1], "bot-1")
	assert.Contains(t, lines[1], "0.0100")
}
