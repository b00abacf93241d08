package guard402

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// StatusPaymentRequired is the HTTP status that triggers the challenge path.
const StatusPaymentRequired = http.StatusPaymentRequired

// maxQuoteBody bounds how much of a 402 body is read when parsing a quote.
const maxQuoteBody = 1 << 20

// ParseQuote reads and decodes the payment quote from a 402 response body.
// The body is consumed and closed.
func ParseQuote(resp *http.Response) (*PaymentQuote, error) {
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxQuoteBody))
	if err != nil {
		return nil, fmt.Errorf("guard402: read quote body: %w", err)
	}

	var quote PaymentQuote
	if err := json.Unmarshal(data, &quote); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadQuote, err)
	}
	if len(quote.Options) == 0 {
		return nil, ErrNoPaymentOptions
	}

	return &quote, nil
}
