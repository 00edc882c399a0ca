package models

import (
	"strings"
	"time"
)

// Default pulse limits applied when an entity's config leaves them unset.
const (
	DefaultWakeIntervalMinutes = 15
	DefaultMaxChainDepth       = 5
	DefaultDailyBudgetWakes    = 96
	DefaultDailyBudgetTokens   = 500000
)

// ActiveHours describes the daily window in which an entity may be woken.
// Start and End are wall-clock times as "HH:MM" in the given timezone.
// A window where Start > End wraps midnight.
type ActiveHours struct {
	Start    string `json:"start" yaml:"start"`
	End      string `json:"end" yaml:"end"`
	Timezone string `json:"timezone" yaml:"timezone"`
}

// Configured reports whether both bounds are set.
func (h *ActiveHours) Configured() bool {
	return h != nil && strings.TrimSpace(h.Start) != "" && strings.TrimSpace(h.End) != ""
}

// PulseConfig is the per-entity wake scheduling configuration.
type PulseConfig struct {
	Enabled             bool         `json:"enabled" yaml:"enabled"`
	WakeIntervalMinutes int          `json:"wake_interval_minutes" yaml:"wake_interval_minutes"`
	MaxChainDepth       int          `json:"max_chain_depth" yaml:"max_chain_depth"`
	DailyBudgetWakes    int          `json:"daily_budget_wakes" yaml:"daily_budget_wakes"`
	DailyBudgetTokens   int          `json:"daily_budget_tokens" yaml:"daily_budget_tokens"`
	ActiveHours         *ActiveHours `json:"active_hours,omitempty" yaml:"active_hours,omitempty"`
	Model               string       `json:"model,omitempty" yaml:"model,omitempty"`
}

// WakeInterval returns the configured interval, falling back to the default.
func (c PulseConfig) WakeInterval() time.Duration {
	minutes := c.WakeIntervalMinutes
	if minutes <= 0 {
		minutes = DefaultWakeIntervalMinutes
	}
	return time.Duration(minutes) * time.Minute
}

// ChainDepthLimit returns the configured max chain depth, falling back to the default.
func (c PulseConfig) ChainDepthLimit() int {
	if c.MaxChainDepth <= 0 {
		return DefaultMaxChainDepth
	}
	return c.MaxChainDepth
}

// WakeBudget returns the daily wake budget, falling back to the default.
func (c PulseConfig) WakeBudget() int {
	if c.DailyBudgetWakes <= 0 {
		return DefaultDailyBudgetWakes
	}
	return c.DailyBudgetWakes
}

// TokenBudget returns the daily token budget, falling back to the default.
func (c PulseConfig) TokenBudget() int {
	if c.DailyBudgetTokens <= 0 {
		return DefaultDailyBudgetTokens
	}
	return c.DailyBudgetTokens
}

// Entity is a persona the agent acts on behalf of. The scheduler core treats
// entities as read-only configuration; ownership lives with the embedding app.
type Entity struct {
	ID           string      `json:"id"`
	Name         string      `json:"name"`
	WorkspaceURL string      `json:"workspace_url,omitempty"`
	Pulse        PulseConfig `json:"pulse"`
	CreatedAt    time.Time   `json:"created_at"`
	UpdatedAt    time.Time   `json:"updated_at"`
}

// Validate checks if the entity is valid.
func (e *Entity) Validate() error {
	validation := &ValidationErrors{}
	if strings.TrimSpace(e.Name) == "" {
		validation.Add("name", ErrInvalidEntityName)
	}
	if e.Pulse.WakeIntervalMinutes < 0 {
		validation.AddMessage("wake_interval_minutes", "wake_interval_minutes must be >= 0")
	}
	if e.Pulse.MaxChainDepth < 0 {
		validation.AddMessage("max_chain_depth", "max_chain_depth must be >= 0")
	}
	if e.Pulse.ActiveHours != nil && e.Pulse.ActiveHours.Configured() {
		if !isValidClock(e.Pulse.ActiveHours.Start) {
			validation.AddMessage("active_hours.start", "start must be HH:MM")
		}
		if !isValidClock(e.Pulse.ActiveHours.End) {
			validation.AddMessage("active_hours.end", "end must be HH:MM")
		}
	}
	return validation.Err()
}

func isValidClock(value string) bool {
	if len(value) != 5 || value[2] != ':' {
		return false
	}
	hh := value[:2]
	mm := value[3:]
	for _, r := range hh + mm {
		if r < '0' || r > '9' {
			return false
		}
	}
	return hh <= "23" && mm <= "59"
}
