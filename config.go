package guard402

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the file-based configuration for a Guard.
type Config struct {
	AgentID        string         `yaml:"agent_id"`
	SubscriptionID string         `yaml:"subscription_id"`
	FacilitatorID  string         `yaml:"facilitator_id"`
	Policies       PolicyConfig   `yaml:"policies"`
	Budgets        []BudgetConfig `yaml:"budgets"`
}

// BudgetConfig is the YAML shape of a rolling-window budget. Windows are
// given in milliseconds.
type BudgetConfig struct {
	ID             string `yaml:"id"`
	ServiceID      string `yaml:"service_id"`
	AgentID        string `yaml:"agent_id"`
	SubscriptionID string `yaml:"subscription_id"`
	WindowMS       int64  `yaml:"window_ms"`
	MaxUSDCents    int64  `yaml:"max_usd_cents"`
}

// LoadConfig reads and parses a YAML config file.
// Environment variables in the format ${VAR} are expanded before parsing.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("guard402: read config: %w", err)
	}

	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return Config{}, fmt.Errorf("guard402: parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// Validate checks the config for consistency: non-negative caps, positive
// budget windows, unique budget ids, and at most one policy model.
func (c Config) Validate() error {
	if !c.Policies.Empty() && len(c.Budgets) > 0 {
		return ErrBothPolicyModels
	}

	if err := validatePolicy("global", c.Policies.Global); err != nil {
		return err
	}
	for id, sp := range c.Policies.Services {
		if sp == nil {
			continue
		}
		if err := validatePolicy("services."+id, &sp.BudgetPolicy); err != nil {
			return err
		}
		if sp.PerRequestMaxUSD != nil && *sp.PerRequestMaxUSD < 0 {
			return fmt.Errorf("guard402: config: services.%s: per_request_max_usd must be non-negative", id)
		}
	}
	for id, ap := range c.Policies.Agents {
		if err := validatePolicy("agents."+id, ap); err != nil {
			return err
		}
	}

	ids := make(map[string]bool, len(c.Budgets))
	for i, b := range c.Budgets {
		if b.ID == "" {
			return fmt.Errorf("guard402: config: budgets[%d]: id is required", i)
		}
		if ids[b.ID] {
			return fmt.Errorf("guard402: config: duplicate budget id %q", b.ID)
		}
		ids[b.ID] = true

		if b.WindowMS <= 0 {
			return fmt.Errorf("guard402: config: budgets[%d] (%s): window_ms must be positive", i, b.ID)
		}
		if b.MaxUSDCents < 0 {
			return fmt.Errorf("guard402: config: budgets[%d] (%s): max_usd_cents must be non-negative", i, b.ID)
		}
	}

	return nil
}

// BudgetList converts the config's budget entries into the engine's form.
func (c Config) BudgetList() []Budget {
	if len(c.Budgets) == 0 {
		return nil
	}
	out := make([]Budget, 0, len(c.Budgets))
	for _, b := range c.Budgets {
		out = append(out, Budget{
			ID: b.ID,
			Scope: BudgetScope{
				ServiceID:      b.ServiceID,
				AgentID:        b.AgentID,
				SubscriptionID: b.SubscriptionID,
			},
			Window:      time.Duration(b.WindowMS) * time.Millisecond,
			MaxUSDCents: b.MaxUSDCents,
		})
	}
	return out
}

// Options translates the config into Guard options, to be combined with the
// runtime-only ones (ledger, hooks, client).
func (c Config) Options() []Option {
	opts := []Option{WithPolicies(c.Policies)}
	if budgets := c.BudgetList(); budgets != nil {
		opts = []Option{WithBudgets(budgets)}
	}
	if c.AgentID != "" {
		opts = append(opts, WithAgentID(c.AgentID))
	}
	if c.SubscriptionID != "" {
		opts = append(opts, WithSubscriptionID(c.SubscriptionID))
	}
	if c.FacilitatorID != "" {
		opts = append(opts, WithFacilitatorID(c.FacilitatorID))
	}
	return opts
}

func validatePolicy(scope string, p *BudgetPolicy) error {
	if p == nil {
		return nil
	}
	if p.DailyUSDCap != nil && *p.DailyUSDCap < 0 {
		return fmt.Errorf("guard402: config: %s: daily_usd_cap must be non-negative", scope)
	}
	if p.MonthlyUSDCap != nil && *p.MonthlyUSDCap < 0 {
		return fmt.Errorf("guard402: config: %s: monthly_usd_cap must be non-negative", scope)
	}
	return nil
}
