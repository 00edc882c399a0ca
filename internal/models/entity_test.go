package models

import (
	"testing"
	"time"
)

func TestPulseConfig_Defaults(t *testing.T) {
	var c PulseConfig

	if got := c.WakeInterval(); got != 15*time.Minute {
		t.Errorf("WakeInterval() = %v, want 15m", got)
	}
	if got := c.ChainDepthLimit(); got != 5 {
		t.Errorf("ChainDepthLimit() = %d, want 5", got)
	}
	if got := c.WakeBudget(); got != 96 {
		t.Errorf("WakeBudget() = %d, want 96", got)
	}
	if got := c.TokenBudget(); got != 500000 {
		t.Errorf("TokenBudget() = %d, want 500000", got)
	}
}

func TestPulseConfig_Overrides(t *testing.T) {
	c := PulseConfig{
		WakeIntervalMinutes: 60,
		MaxChainDepth:       2,
		DailyBudgetWakes:    10,
		DailyBudgetTokens:   1000,
	}

	if got := c.WakeInterval(); got != time.Hour {
		t.Errorf("WakeInterval() = %v, want 1h", got)
	}
	if got := c.ChainDepthLimit(); got != 2 {
		t.Errorf("ChainDepthLimit() = %d, want 2", got)
	}
	if got := c.WakeBudget(); got != 10 {
		t.Errorf("WakeBudget() = %d, want 10", got)
	}
	if got := c.TokenBudget(); got != 1000 {
		t.Errorf("TokenBudget() = %d, want 1000", got)
	}
}

func TestActiveHours_Configured(t *testing.T) {
	tests := []struct {
		name  string
		hours *ActiveHours
		want  bool
	}{
		{
			name:  "nil",
			hours: nil,
			want:  false,
		},
		{
			name:  "both set",
			hours: &ActiveHours{Start: "09:00", End: "17:00"},
			want:  true,
		},
		{
			name:  "missing end",
			hours: &ActiveHours{Start: "09:00"},
			want:  false,
		},
		{
			name:  "whitespace only",
			hours: &ActiveHours{Start: " ", End: "17:00"},
			want:  false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.hours.Configured(); got != tt.want {
				t.Errorf("ActiveHours.Configured() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestEntity_Validate(t *testing.T) {
	tests := []struct {
		name    string
		entity  Entity
		wantErr bool
	}{
		{
			name:   "valid minimal",
			entity: Entity{Name: "aria"},
		},
		{
			name:    "empty name",
			entity:  Entity{Name: "  "},
			wantErr: true,
		},
		{
			name: "negative interval",
			entity: Entity{
				Name:  "aria",
				Pulse: PulseConfig{WakeIntervalMinutes: -1},
			},
			wantErr: true,
		},
		{
			name: "valid active hours",
			entity: Entity{
				Name: "aria",
				Pulse: PulseConfig{
					ActiveHours: &ActiveHours{Start: "22:00", End: "06:00"},
				},
			},
		},
		{
			name: "malformed active hours",
			entity: Entity{
				Name: "aria",
				Pulse: PulseConfig{
					ActiveHours: &ActiveHours{Start: "9am", End: "17:00"},
				},
			},
			wantErr: true,
		},
		{
			name: "out of range clock",
			entity: Entity{
				Name: "aria",
				Pulse: PulseConfig{
					ActiveHours: &ActiveHours{Start: "24:00", End: "17:00"},
				},
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.entity.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Entity.Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestPulseLog_Validate(t *testing.T) {
	base := PulseLog{
		EntityID: "ent-1",
		WakeType: WakeTypeScheduled,
		Status:   PulseStatusInProgress,
	}

	tests := []struct {
		name    string
		mutate  func(*PulseLog)
		wantErr bool
	}{
		{
			name:   "valid in progress",
			mutate: func(p *PulseLog) {},
		},
		{
			name:    "missing entity",
			mutate:  func(p *PulseLog) { p.EntityID = "" },
			wantErr: true,
		},
		{
			name:    "unknown wake type",
			mutate:  func(p *PulseLog) { p.WakeType = "nap" },
			wantErr: true,
		},
		{
			name:    "negative chain depth",
			mutate:  func(p *PulseLog) { p.ChainDepth = -1 },
			wantErr: true,
		},
		{
			name: "skipped with end signal",
			mutate: func(p *PulseLog) {
				p.Status = PulseStatusSkipped
				p.SkipReason = SkipReasonBudgetExhausted
				p.EndSignal = EndSignalRest
			},
			wantErr: true,
		},
		{
			name: "completed with skip reason",
			mutate: func(p *PulseLog) {
				p.Status = PulseStatusCompleted
				p.SkipReason = SkipReasonBudgetExhausted
			},
			wantErr: true,
		},
		{
			name: "valid skipped",
			mutate: func(p *PulseLog) {
				p.Status = PulseStatusSkipped
				p.SkipReason = SkipReasonOutsideActiveHours
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			entry := base
			tt.mutate(&entry)
			err := entry.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("PulseLog.Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestPulseStatus_Terminal(t *testing.T) {
	terminal := []PulseStatus{PulseStatusCompleted, PulseStatusFailed, PulseStatusSkipped}
	for _, s := range terminal {
		if !s.Terminal() {
			t.Errorf("%s.Terminal() = false, want true", s)
		}
	}
	for _, s := range []PulseStatus{PulseStatusPending, PulseStatusInProgress} {
		if s.Terminal() {
			t.Errorf("%s.Terminal() = true, want false", s)
		}
	}
}
