package meter

import "github.com/402guard/guard402"

// NoopMeter is a meter that does nothing.
type NoopMeter struct{}

var _ guard402.Meter = (*NoopMeter)(nil)

func (m *NoopMeter) OnDecision(guard402.DecisionEvent) {}
func (m *NoopMeter) OnOutcome(guard402.OutcomeEvent)   {}
