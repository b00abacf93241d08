package guard402

import "time"

// Meter observes guard events for monitoring/logging. Implementations must
// be safe for concurrent use; see the meter subpackage for slog, noop and
// Prometheus implementations.
type Meter interface {
	// OnDecision is called after every policy check, allowed or not.
	OnDecision(event DecisionEvent)

	// OnOutcome is called when a guarded request finishes, however it ends.
	OnOutcome(event OutcomeEvent)
}

// DecisionEvent describes one policy check.
type DecisionEvent struct {
	ServiceID string
	AgentID   string
	USDAmount float64
	Phase     Phase // PhaseInit (pre-check) or PhaseQuoted (quote preview)
	Allowed   bool
	Reason    string
}

// OutcomeEvent describes the final result of a guarded request.
type OutcomeEvent struct {
	ServiceID string
	AgentID   string
	Phase     Phase // PhaseDone, PhaseBlocked or PhaseError
	Status    int   // HTTP status when a response was obtained
	Paid      bool  // a payment flow completed
	USDAmount float64
	Duration  time.Duration
	Err       error
}
