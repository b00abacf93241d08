package guard402

// SpendSummary is one row of a grouped spend aggregate.
type SpendSummary struct {
	Key      string  `json:"key"`
	Count    int     `json:"count"`
	TotalUSD float64 `json:"totalUsd"`
}

// SummaryByService aggregates total spend and call count per service across
// the full ledger. Rows come out in first-seen order, so results are
// deterministic for a fixed ledger snapshot.
func SummaryByService(ledger Ledger) []SpendSummary {
	return summarize(ledger, func(r UsageRecord) string { return r.ServiceID })
}

// SummaryByAgent aggregates per agent. Records with no agent id are excluded
// from this grouping rather than bucketed under a sentinel key.
func SummaryByAgent(ledger Ledger) []SpendSummary {
	return summarize(ledger, func(r UsageRecord) string { return r.AgentID })
}

// SummaryBySubscription aggregates per subscription. Records with no
// subscription id are excluded.
func SummaryBySubscription(ledger Ledger) []SpendSummary {
	return summarize(ledger, func(r UsageRecord) string { return r.SubscriptionID })
}

func summarize(ledger Ledger, keyOf func(UsageRecord) string) []SpendSummary {
	index := make(map[string]int)
	var out []SpendSummary

	for _, r := range ledger.Records() {
		key := keyOf(r)
		if key == "" {
			continue
		}
		i, ok := index[key]
		if !ok {
			i = len(out)
			index[key] = i
			out = append(out, SpendSummary{Key: key})
		}
		out[i].Count++
		out[i].TotalUSD += r.USDAmount
	}

	return out
}
