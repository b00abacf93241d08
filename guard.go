package guard402

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"
)

// Guard wraps an HTTP client with budget enforcement and, when payment hooks
// are configured, an HTTP 402 quote→pay→retry protocol.
//
// With no payment hooks a Guard runs in direct-budgeted mode: the estimated
// cost of each request is checked and committed before the request is sent.
// With hooks it runs in challenge mode: requests go out unchecked, and only
// a 402 response triggers quote parsing, a preview-only budget check,
// settlement through the injected executor and a single retry. Usage is
// committed only after settlement succeeds.
//
// Construct one Guard (and its ledger) per logical session or plan and pass
// it explicitly; Guards hold no global state.
type Guard struct {
	client         *http.Client
	ledger         Ledger
	policies       PolicyConfig
	budgets        []Budget
	agentID        string
	subscriptionID string
	facilitatorID  string
	estimate       Estimator
	hooks          *PaymentHooks
	meter          Meter
	nowFunc        func() time.Time

	// mu makes enforce+commit one critical section, closing the
	// check-then-act window between the policy read and the ledger append.
	mu sync.Mutex
}

// Option configures a Guard.
type Option func(*Guard)

// WithHTTPClient sets the underlying HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(g *Guard) { g.client = c }
}

// WithLedger sets the usage ledger.
func WithLedger(l Ledger) Option {
	return func(g *Guard) { g.ledger = l }
}

// WithPolicies sets the calendar-window policy config.
func WithPolicies(cfg PolicyConfig) Option {
	return func(g *Guard) { g.policies = cfg }
}

// WithBudgets sets the rolling-window budget list. Mutually exclusive with
// WithPolicies.
func WithBudgets(budgets []Budget) Option {
	return func(g *Guard) { g.budgets = budgets }
}

// WithAgentID tags every event with the calling agent's identity.
func WithAgentID(id string) Option {
	return func(g *Guard) { g.agentID = id }
}

// WithSubscriptionID tags every event with a subscription. The agent id
// defaults to the subscription id when not set separately, so agent-level
// analytics keep working for subscription traffic.
func WithSubscriptionID(id string) Option {
	return func(g *Guard) { g.subscriptionID = id }
}

// WithFacilitatorID labels payment metadata with the settlement facilitator.
func WithFacilitatorID(id string) Option {
	return func(g *Guard) { g.facilitatorID = id }
}

// WithEstimator sets the pre-send cost estimator for direct-budgeted mode.
func WithEstimator(e Estimator) Option {
	return func(g *Guard) { g.estimate = e }
}

// WithPaymentHooks switches the Guard into challenge/pay/retry mode.
func WithPaymentHooks(h PaymentHooks) Option {
	return func(g *Guard) { g.hooks = &h }
}

// WithMeter sets the meter.
func WithMeter(m Meter) Option {
	return func(g *Guard) { g.meter = m }
}

// WithNow overrides the clock, for tests.
func WithNow(now func() time.Time) Option {
	return func(g *Guard) { g.nowFunc = now }
}

// New creates a Guard. Defaults: a plain http.Client, an unlimited in-memory
// no-op ledger, no policies, a no-op meter.
func New(opts ...Option) (*Guard, error) {
	g := &Guard{
		client: &http.Client{},
	}

	for _, opt := range opts {
		opt(g)
	}

	if !g.policies.Empty() && len(g.budgets) > 0 {
		return nil, ErrBothPolicyModels
	}
	if g.hooks != nil {
		if g.hooks.Pay == nil {
			return nil, fmt.Errorf("guard402: payment hooks require an executor")
		}
		if g.hooks.EstimateUSD == nil {
			return nil, fmt.Errorf("guard402: payment hooks require a quote estimator")
		}
		if g.hooks.SelectOption == nil {
			g.hooks.SelectOption = PickFirstOption
		}
	}
	if g.subscriptionID != "" && g.agentID == "" {
		g.agentID = g.subscriptionID
	}

	// Apply defaults after options.
	if g.ledger == nil {
		g.ledger = &nopLedger{}
	}
	if g.meter == nil {
		g.meter = &noopMeter{}
	}

	return g, nil
}

// Ledger returns the guard's ledger, for analytics and invoicing reads.
func (g *Guard) Ledger() Ledger { return g.ledger }

func (g *Guard) now() time.Time {
	if g.nowFunc != nil {
		return g.nowFunc()
	}
	return time.Now()
}

// newEvent builds the proposed usage event for a request costing usd.
func (g *Guard) newEvent(serviceID string, usd float64) UsageEvent {
	return UsageEvent{
		ServiceID:      serviceID,
		AgentID:        g.agentID,
		SubscriptionID: g.subscriptionID,
		USDAmount:      usd,
		Timestamp:      g.now(),
	}
}

// enforce runs whichever policy model is configured. Pure; takes no locks.
func (g *Guard) enforce(event UsageEvent) Decision {
	if len(g.budgets) > 0 {
		return EnforceBudgets(g.ledger, g.budgets, g.now(), event)
	}
	return Enforce(g.ledger, g.policies, event)
}

// Preview runs the policy check for the event without committing anything.
// The ledger is unchanged across any number of Preview calls.
func (g *Guard) Preview(event UsageEvent) Decision {
	return g.enforce(event)
}

// CheckAndRecord enforces policy for the event and, if allowed, commits it to
// the ledger. The check and the commit form one critical section, so
// sequential and concurrent callers both see every prior commit. On denial it
// returns a *PolicyDeniedError and writes nothing.
func (g *Guard) CheckAndRecord(event UsageEvent) (UsageRecord, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	dec := g.enforce(event)
	g.meter.OnDecision(DecisionEvent{
		ServiceID: event.ServiceID,
		AgentID:   event.AgentID,
		USDAmount: event.USDAmount,
		Phase:     PhaseInit,
		Allowed:   dec.Allowed,
		Reason:    dec.Reason,
	})
	if !dec.Allowed {
		return UsageRecord{}, &PolicyDeniedError{
			ServiceID: event.ServiceID,
			AgentID:   event.AgentID,
			USDAmount: event.USDAmount,
			Reason:    dec.Reason,
			Phase:     PhaseInit,
		}
	}

	return g.ledger.RecordUsage(event)
}

// Do executes the request through the guard. The request's own context
// carries cancellation and deadlines; the guard passes it through unchanged.
func (g *Guard) Do(req *http.Request) (*http.Response, error) {
	if g.hooks != nil {
		return g.doChallenge(req)
	}
	return g.doDirect(req)
}

// doDirect is the direct-budgeted path: estimate, check-and-record, send.
// The response comes back verbatim; its status is not policy-checked, only
// the cost estimate was.
func (g *Guard) doDirect(req *http.Request) (*http.Response, error) {
	serviceID := ServiceIDFromURL(req.URL.String())
	start := g.now()

	var usd float64
	if g.estimate != nil {
		usd = g.estimate(req)
	}

	event := g.newEvent(serviceID, usd)
	if _, err := g.CheckAndRecord(event); err != nil {
		g.meter.OnOutcome(OutcomeEvent{
			ServiceID: serviceID,
			AgentID:   g.agentID,
			Phase:     PhaseBlocked,
			USDAmount: usd,
			Duration:  g.now().Sub(start),
			Err:       err,
		})
		return nil, err
	}

	resp, err := g.client.Do(req)
	if err != nil {
		g.meter.OnOutcome(OutcomeEvent{
			ServiceID: serviceID,
			AgentID:   g.agentID,
			Phase:     PhaseError,
			USDAmount: usd,
			Duration:  g.now().Sub(start),
			Err:       err,
		})
		return nil, err
	}

	g.meter.OnOutcome(OutcomeEvent{
		ServiceID: serviceID,
		AgentID:   g.agentID,
		Phase:     PhaseDone,
		Status:    resp.StatusCode,
		USDAmount: usd,
		Duration:  g.now().Sub(start),
	})
	return resp, nil
}

// doChallenge is the challenge/pay/retry path. The request is sent once with
// no pre-check; cost is only known once a quote exists, so non-402 responses
// pass through with no accounting.
func (g *Guard) doChallenge(req *http.Request) (*http.Response, error) {
	serviceID := ServiceIDFromURL(req.URL.String())
	start := g.now()
	ctx := req.Context()

	if err := bufferBody(req); err != nil {
		return nil, fmt.Errorf("guard402: buffer request body: %w", err)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		g.meter.OnOutcome(OutcomeEvent{
			ServiceID: serviceID, AgentID: g.agentID, Phase: PhaseError,
			Duration: g.now().Sub(start), Err: err,
		})
		return nil, err
	}

	if resp.StatusCode != StatusPaymentRequired {
		g.meter.OnOutcome(OutcomeEvent{
			ServiceID: serviceID, AgentID: g.agentID, Phase: PhaseDone,
			Status: resp.StatusCode, Duration: g.now().Sub(start),
		})
		return resp, nil
	}

	quote, err := ParseQuote(resp)
	if err != nil {
		g.meter.OnOutcome(OutcomeEvent{
			ServiceID: serviceID, AgentID: g.agentID, Phase: PhaseError,
			Status: resp.StatusCode, Duration: g.now().Sub(start), Err: err,
		})
		return nil, err
	}

	option, err := g.hooks.SelectOption(quote)
	if err != nil {
		return nil, err
	}
	usd := g.hooks.EstimateUSD(quote, option)

	// Preview only: no payment may be attempted, and nothing recorded, until
	// the quoted amount clears the budget. An irreversible payment must never
	// need rolling back on a budget violation.
	event := g.newEvent(serviceID, usd)
	dec := g.Preview(event)
	g.meter.OnDecision(DecisionEvent{
		ServiceID: serviceID,
		AgentID:   g.agentID,
		USDAmount: usd,
		Phase:     PhaseQuoted,
		Allowed:   dec.Allowed,
		Reason:    dec.Reason,
	})
	if !dec.Allowed {
		err := &PolicyDeniedError{
			ServiceID: serviceID,
			AgentID:   g.agentID,
			USDAmount: usd,
			Reason:    dec.Reason,
			Phase:     PhaseQuoted,
		}
		g.meter.OnOutcome(OutcomeEvent{
			ServiceID: serviceID, AgentID: g.agentID, Phase: PhaseBlocked,
			USDAmount: usd, Duration: g.now().Sub(start), Err: err,
		})
		return nil, err
	}

	retryReq, err := rewindRequest(req)
	if err != nil {
		return nil, fmt.Errorf("guard402: rebuild request for retry: %w", err)
	}

	result, err := g.hooks.Pay(ctx, PaymentArgs{
		Quote:   quote,
		Option:  option,
		Request: retryReq,
		Client:  g.client,
	})
	if err != nil {
		perr := &PaymentError{ServiceID: serviceID, USDAmount: usd, Err: err}
		g.meter.OnOutcome(OutcomeEvent{
			ServiceID: serviceID, AgentID: g.agentID, Phase: PhaseError,
			USDAmount: usd, Duration: g.now().Sub(start), Err: perr,
		})
		return nil, perr
	}

	// Settlement succeeded: commit the quote-derived amount, not a post-hoc
	// re-estimate, together with whatever the executor learned about it.
	event.Payment = &PaymentMeta{
		FacilitatorID: g.facilitatorID,
		Network:       option.Network,
		Asset:         option.Asset,
	}
	if result.Settlement != nil {
		if result.Settlement.Network != "" {
			event.Payment.Network = result.Settlement.Network
		}
		event.Payment.Transaction = result.Settlement.Transaction
	}

	g.mu.Lock()
	_, recErr := g.ledger.RecordUsage(event)
	g.mu.Unlock()
	if recErr != nil {
		return result.Response, fmt.Errorf("guard402: record settled usage: %w", recErr)
	}

	status := 0
	if result.Response != nil {
		status = result.Response.StatusCode
	}
	g.meter.OnOutcome(OutcomeEvent{
		ServiceID: serviceID,
		AgentID:   g.agentID,
		Phase:     PhaseDone,
		Status:    status,
		Paid:      true,
		USDAmount: usd,
		Duration:  g.now().Sub(start),
	})
	return result.Response, nil
}

// bufferBody makes req.Body replayable so the challenge path can retry the
// original request after settlement.
func bufferBody(req *http.Request) error {
	if req.Body == nil || req.GetBody != nil {
		return nil
	}
	data, err := io.ReadAll(req.Body)
	req.Body.Close()
	if err != nil {
		return err
	}
	req.Body = io.NopCloser(bytes.NewReader(data))
	req.GetBody = func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(data)), nil
	}
	req.ContentLength = int64(len(data))
	return nil
}

// rewindRequest clones the original request with a fresh body for the retry.
func rewindRequest(req *http.Request) (*http.Request, error) {
	clone := req.Clone(req.Context())
	if req.GetBody != nil {
		body, err := req.GetBody()
		if err != nil {
			return nil, err
		}
		clone.Body = body
	}
	return clone, nil
}

// nopLedger is an inline no-limit ledger to avoid an import cycle with the
// ledger subpackage. It discards records and reports zero spend.
type nopLedger struct{}

func (l *nopLedger) RecordUsage(event UsageEvent) (UsageRecord, error) {
	return UsageRecord{UsageEvent: event}, nil
}
func (l *nopLedger) Records() []UsageRecord             { return nil }
func (l *nopLedger) DailySpendUSD(SpendQuery) float64   { return 0 }
func (l *nopLedger) MonthlySpendUSD(SpendQuery) float64 { return 0 }
func (l *nopLedger) Reset()                             {}

// noopMeter is a meter that does nothing.
type noopMeter struct{}

func (m *noopMeter) OnDecision(DecisionEvent) {}
func (m *noopMeter) OnOutcome(OutcomeEvent)   {}
