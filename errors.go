package guard402

import (
	"errors"
	"fmt"
)

// Sentinel errors.
var (
	ErrPolicyDenied     = errors.New("guard402: policy denied")
	ErrPaymentFailed    = errors.New("guard402: payment failed")
	ErrBadQuote         = errors.New("guard402: malformed payment quote")
	ErrNoPaymentOptions = errors.New("guard402: quote has no payment options")
	ErrBothPolicyModels = errors.New("guard402: policies and budgets are mutually exclusive")
)

// PolicyDeniedError is returned when a pre-check or quote-preview rejects a
// request. It is an expected control-flow outcome, not a transport failure;
// callers should branch on errors.Is(err, ErrPolicyDenied).
type PolicyDeniedError struct {
	ServiceID string
	AgentID   string
	USDAmount float64
	Reason    string
	Phase     Phase // PhaseInit for the pre-check, PhaseQuoted for the quote preview
}

func (e *PolicyDeniedError) Error() string {
	return fmt.Sprintf("guard402: denied service=%s agent=%s usd=%.4f phase=%s: %s",
		e.ServiceID, e.AgentID, e.USDAmount, e.Phase, e.Reason)
}

func (e *PolicyDeniedError) Unwrap() error { return ErrPolicyDenied }

// PaymentError wraps a payment-executor failure. No usage is recorded when
// the executor fails; a failed payment must never appear as billed spend.
type PaymentError struct {
	ServiceID string
	USDAmount float64
	Err       error
}

func (e *PaymentError) Error() string {
	return fmt.Sprintf("guard402: payment for service=%s usd=%.4f: %v", e.ServiceID, e.USDAmount, e.Err)
}

func (e *PaymentError) Unwrap() error { return ErrPaymentFailed }

// IsDenied reports whether err is a policy denial (as opposed to a transport
// or settlement failure).
func IsDenied(err error) bool {
	return errors.Is(err, ErrPolicyDenied)
}
