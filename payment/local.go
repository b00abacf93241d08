// Package payment provides PaymentExecutor implementations for guard402:
// a local stub for demos and tests, and a facilitator-backed executor that
// settles quotes through an HTTP facilitator with signed requests.
package payment

import (
	"context"
	"fmt"

	"github.com/402guard/guard402"
)

// TestPaymentHeader marks a retried request as paid for demo servers that
// accept pretend settlement.
const TestPaymentHeader = "X-Test-Payment"

// Local returns an executor that performs no real settlement: it retries the
// original request with the test payment header attached and fabricates
// settlement metadata from the selected option. Useful for demos and for
// exercising the challenge path in tests.
func Local() guard402.PaymentExecutor {
	return func(ctx context.Context, args guard402.PaymentArgs) (*guard402.PaymentResult, error) {
		req := args.Request.WithContext(ctx)
		req.Header.Set(TestPaymentHeader, "paid")

		resp, err := args.Client.Do(req)
		if err != nil {
			return nil, fmt.Errorf("payment: retry request: %w", err)
		}
		if resp.StatusCode == guard402.StatusPaymentRequired {
			resp.Body.Close()
			return nil, fmt.Errorf("payment: server still demands payment after retry (status %d)", resp.StatusCode)
		}

		return &guard402.PaymentResult{
			Response: resp,
			Settlement: &guard402.SettlementMeta{
				Success:     true,
				Transaction: "0x-local-tx",
				Network:     args.Option.Network,
				Payer:       "0x-local-payer",
			},
		}, nil
	}
}
