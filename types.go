package guard402

import "time"

// UsageEvent describes a proposed, not-yet-committed use of a metered service.
// The policy engine evaluates events; the ledger stores them once committed.
type UsageEvent struct {
	ServiceID      string       `json:"serviceId"`
	AgentID        string       `json:"agentId,omitempty"`
	SubscriptionID string       `json:"subscriptionId,omitempty"`
	USDAmount      float64      `json:"usdAmount"`
	Timestamp      time.Time    `json:"timestamp"`
	Payment        *PaymentMeta `json:"payment,omitempty"`
}

// UsageRecord is a committed UsageEvent. The ID is assigned by the ledger at
// commit time and is never reused.
type UsageRecord struct {
	UsageEvent
	ID string `json:"id"`
}

// PaymentMeta is the settlement context kept alongside a UsageRecord for
// calls that went through a payment flow.
type PaymentMeta struct {
	FacilitatorID string `json:"facilitatorId,omitempty"`
	Network       string `json:"network,omitempty"`
	Asset         string `json:"asset,omitempty"`
	Transaction   string `json:"transaction,omitempty"`
}

// PaymentQuote is the parsed JSON body of an HTTP 402 response.
type PaymentQuote struct {
	ProtocolVersion int             `json:"x402Version"`
	Options         []PaymentOption `json:"accepts"`
	Error           string          `json:"error,omitempty"`
}

// PaymentOption is one acceptable way to pay for the quoted resource.
type PaymentOption struct {
	Scheme         string `json:"scheme"`
	Network        string `json:"network"`
	AmountRequired string `json:"maxAmountRequired"` // smallest units, decimal string
	PayTo          string `json:"payTo"`
	Asset          string `json:"asset"`
	Resource       string `json:"resource,omitempty"`
}

// SettlementMeta reports the outcome of a payment executor run.
type SettlementMeta struct {
	Success     bool   `json:"success"`
	Transaction string `json:"transaction,omitempty"`
	Network     string `json:"network,omitempty"`
	Payer       string `json:"payer,omitempty"`
	ErrorReason string `json:"errorReason,omitempty"`
}

// Decision is the outcome of a policy check.
type Decision struct {
	Allowed bool
	Reason  string // set only when denied
}

// Allow is the positive Decision.
func Allow() Decision { return Decision{Allowed: true} }

// Deny builds a negative Decision with the given reason.
func Deny(reason string) Decision { return Decision{Allowed: false, Reason: reason} }

// Float64Ptr returns a pointer to the given float64, for optional caps.
func Float64Ptr(v float64) *float64 { return &v }

// Phase identifies where in the guarded request lifecycle an event or error
// occurred.
type Phase string

const (
	PhaseInit      Phase = "init"
	PhaseSent      Phase = "sent"
	PhaseQuoted    Phase = "quoted"
	PhasePreviewed Phase = "previewed"
	PhasePaid      Phase = "paid"
	PhaseRetried   Phase = "retried"
	PhaseDone      Phase = "done"
	PhaseBlocked   Phase = "blocked"
	PhaseError     Phase = "error"
)
