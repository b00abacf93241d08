package guard402

import (
	"context"
	"net/http"
)

// Estimator predicts the dollar cost of a request before it is sent, for the
// direct-budgeted path. It must be pure and fast; it runs synchronously on
// the hot path. Absent an estimator the Guard assumes zero cost.
type Estimator func(req *http.Request) float64

// FlatEstimate returns an Estimator that prices every request the same.
func FlatEstimate(usd float64) Estimator {
	return func(*http.Request) float64 { return usd }
}

// OptionSelector picks one of the quote's payment options. It must return an
// element of quote.Options.
type OptionSelector func(quote *PaymentQuote) (PaymentOption, error)

// PickFirstOption is the default OptionSelector: the first offered option.
func PickFirstOption(quote *PaymentQuote) (PaymentOption, error) {
	if len(quote.Options) == 0 {
		return PaymentOption{}, ErrNoPaymentOptions
	}
	return quote.Options[0], nil
}

// QuoteEstimator converts a quote and the selected option into a concrete
// dollar amount. The resulting amount is what the quote preview checks and,
// on success, what the ledger records.
type QuoteEstimator func(quote *PaymentQuote, option PaymentOption) float64

// FlatQuoteEstimate returns a QuoteEstimator that ignores the quote and
// prices every challenge the same.
func FlatQuoteEstimate(usd float64) QuoteEstimator {
	return func(*PaymentQuote, PaymentOption) float64 { return usd }
}

// PaymentArgs is everything a PaymentExecutor needs to settle and retry.
// Request is the buffered original request; its body can be re-read via
// GetBody.
type PaymentArgs struct {
	Quote   *PaymentQuote
	Option  PaymentOption
	Request *http.Request
	Client  *http.Client
}

// PaymentResult is a successful executor outcome: the response obtained by
// retrying the original request with proof of payment, plus optional
// settlement details.
type PaymentResult struct {
	Response   *http.Response
	Settlement *SettlementMeta
}

// PaymentExecutor performs settlement and retries the original request with
// proof of payment attached. It must not return successfully unless the
// retried request obtained a non-challenge response; any failure (network,
// signing, settlement rejection) must surface as an error rather than a
// partial result.
type PaymentExecutor func(ctx context.Context, args PaymentArgs) (*PaymentResult, error)

// PaymentHooks groups the three callbacks that switch a Guard into
// challenge/pay/retry mode.
type PaymentHooks struct {
	SelectOption OptionSelector // defaults to PickFirstOption
	EstimateUSD  QuoteEstimator // required
	Pay          PaymentExecutor
}
