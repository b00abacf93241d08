package guard402

import (
	"encoding/csv"
	"fmt"
	"io"
	"time"
)

// InvoiceLine is the per-service subtotal of an invoice.
type InvoiceLine struct {
	ServiceID string  `json:"serviceId"`
	Count     int     `json:"count"`
	TotalUSD  float64 `json:"totalUsd"`
}

// Invoice is a derived, read-only projection over the ledger for one
// subscription and period. It is computed on demand and never persisted.
type Invoice struct {
	SubscriptionID string        `json:"subscriptionId"`
	PeriodStart    time.Time     `json:"periodStart"`
	PeriodEnd      time.Time     `json:"periodEnd"`
	GeneratedAt    time.Time     `json:"generatedAt"`
	Currency       string        `json:"currency"`
	Lines          []InvoiceLine `json:"lines"`
	TotalUSD       float64       `json:"totalUsd"`
}

// GenerateInvoice builds an invoice from ledger records matching the
// subscription exactly, with timestamps in [periodStart, periodEnd]
// inclusive, grouped by service. The invoice total equals the sum of its
// line totals.
func GenerateInvoice(ledger Ledger, subscriptionID string, periodStart, periodEnd time.Time) Invoice {
	index := make(map[string]int)
	var lines []InvoiceLine

	for _, r := range ledger.Records() {
		if r.SubscriptionID != subscriptionID {
			continue
		}
		if !InWindow(r.Timestamp, periodStart, periodEnd) {
			continue
		}

		i, ok := index[r.ServiceID]
		if !ok {
			i = len(lines)
			index[r.ServiceID] = i
			lines = append(lines, InvoiceLine{ServiceID: r.ServiceID})
		}
		lines[i].Count++
		lines[i].TotalUSD += r.USDAmount
	}

	var total float64
	for _, l := range lines {
		total += l.TotalUSD
	}

	return Invoice{
		SubscriptionID: subscriptionID,
		PeriodStart:    periodStart,
		PeriodEnd:      periodEnd,
		GeneratedAt:    time.Now(),
		Currency:       "USD",
		Lines:          lines,
		TotalUSD:       total,
	}
}

// CSVFilter restricts which records WriteCSV exports. Zero time bounds are
// unconstrained; the window is [From, To] inclusive.
type CSVFilter struct {
	AgentID string
	From    time.Time
	To      time.Time
}

func (f CSVFilter) matches(r UsageRecord) bool {
	if f.AgentID != "" && r.AgentID != f.AgentID {
		return false
	}
	if !f.From.IsZero() && r.Timestamp.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && r.Timestamp.After(f.To) {
		return false
	}
	return true
}

// WriteCSV exports matching ledger records as CSV with the header
// timestamp,serviceId,agentId,usdAmount. Timestamps are RFC 3339 and
// amounts are four-decimal dollars, one row per record.
func WriteCSV(w io.Writer, ledger Ledger, filter CSVFilter) error {
	cw := csv.NewWriter(w)

	if err := cw.Write([]string{"timestamp", "serviceId", "agentId", "usdAmount"}); err != nil {
		return fmt.Errorf("guard402: write csv header: %w", err)
	}

	for _, r := range ledger.Records() {
		if !filter.matches(r) {
			continue
		}
		row := []string{
			r.Timestamp.Format(time.RFC3339),
			r.ServiceID,
			r.AgentID,
			fmt.Sprintf("%.4f", r.USDAmount),
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("guard402: write csv row: %w", err)
		}
	}

	cw.Flush()
	return cw.Error()
}
