package meter

import (
	"log/slog"

	"github.com/402guard/guard402"
)

// LogMeter logs guard events using slog.
type LogMeter struct {
	Logger *slog.Logger
}

var _ guard402.Meter = (*LogMeter)(nil)

// NewLogMeter creates a LogMeter with the given logger.
// If logger is nil, slog.Default() is used.
func NewLogMeter(logger *slog.Logger) *LogMeter {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogMeter{Logger: logger}
}

func (m *LogMeter) OnDecision(e guard402.DecisionEvent) {
	if e.Allowed {
		m.Logger.Info("decision",
			"service", e.ServiceID,
			"agent", e.AgentID,
			"usd", e.USDAmount,
			"phase", string(e.Phase),
			"allowed", true,
		)
	} else {
		m.Logger.Warn("decision_denied",
			"service", e.ServiceID,
			"agent", e.AgentID,
			"usd", e.USDAmount,
			"phase", string(e.Phase),
			"reason", e.Reason,
		)
	}
}

func (m *LogMeter) OnOutcome(e guard402.OutcomeEvent) {
	if e.Err != nil {
		m.Logger.Warn("outcome_error",
			"service", e.ServiceID,
			"agent", e.AgentID,
			"phase", string(e.Phase),
			"duration_ms", e.Duration.Milliseconds(),
			"error", e.Err,
		)
		return
	}
	m.Logger.Info("outcome",
		"service", e.ServiceID,
		"agent", e.AgentID,
		"phase", string(e.Phase),
		"status", e.Status,
		"paid", e.Paid,
		"usd", e.USDAmount,
		"duration_ms", e.Duration.Milliseconds(),
	)
}
