package ratelimit

import (
	"testing"
	"time"
)

func TestRateLimitState_IsStale(t *testing.T) {
	tests := []struct {
		name     string
		state    *RateLimitState
		maxAge   time.Duration
		expected bool
	}{
		{
			name: "fresh state",
			state: &RateLimitState{
				LastUpdate: time.Now(),
			},
			maxAge:   5 * time.Minute,
			expected: false,
		},
		{
			name: "stale state",
			state: &RateLimitState{
				LastUpdate: time.Now().Add(-10 * time.Minute),
			},
			maxAge:   5 * time.Minute,
			expected: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := tt.state.IsStale(tt.maxAge)
			if result != tt.expected {
				t.Errorf("IsStale() = %v, want %v", result, tt.expected)
			}
		})
	}
}

func TestRateLimitState_NeedsCriticalBlock(t *testing.T) {
	future := time.Now().Add(time.Hour)
	past := time.Now().Add(-time.Hour)

	tests := []struct {
		name     string
		state    RateLimitState
		expected bool
	}{
		{
			name:     "unknown state",
			state:    RateLimitState{},
			expected: false,
		},
		{
			name:     "quota left",
			state:    RateLimitState{Known: true, DayRemaining: 10, DayResetAt: future},
			expected: false,
		},
		{
			name:     "quota exhausted",
			state:    RateLimitState{Known: true, DayRemaining: 0, DayResetAt: future},
			expected: true,
		},
		{
			name:     "quota exhausted but reset passed",
			state:    RateLimitState{Known: true, DayRemaining: 0, DayResetAt: past},
			expected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.state.NeedsCriticalBlock(); got != tt.expected {
				t.Errorf("NeedsCriticalBlock() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestRateLimitState_NeedsMinuteWait(t *testing.T) {
	tests := []struct {
		name     string
		state    RateLimitState
		expected bool
	}{
		{
			name:     "requests left",
			state:    RateLimitState{Known: true, MinuteRemaining: 3, MinuteResetAt: time.Now().Add(time.Minute)},
			expected: false,
		},
		{
			name:     "window used up",
			state:    RateLimitState{Known: true, MinuteRemaining: 0, MinuteResetAt: time.Now().Add(time.Minute)},
			expected: true,
		},
		{
			name:     "window already reset",
			state:    RateLimitState{Known: true, MinuteRemaining: 0, MinuteResetAt: time.Now().Add(-time.Second)},
			expected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.state.NeedsMinuteWait(); got != tt.expected {
				t.Errorf("NeedsMinuteWait() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestRateLimitState_IsLow(t *testing.T) {
	tests := []struct {
		remaining int
		expected  bool
	}{
		{DayThresholdWarning + 1, false},
		{DayThresholdWarning, false},
		{DayThresholdWarning - 1, true},
		{0, true},
	}

	for _, tt := range tests {
		state := RateLimitState{Known: true, DayRemaining: tt.remaining}
		if got := state.IsLow(); got != tt.expected {
			t.Errorf("IsLow() with %d remaining = %v, want %v", tt.remaining, got, tt.expected)
		}
	}
}

func TestRateLimitState_TimeUntilMinuteReset(t *testing.T) {
	state := RateLimitState{MinuteResetAt: time.Now().Add(-time.Minute)}
	if got := state.TimeUntilMinuteReset(); got != 0 {
		t.Errorf("TimeUntilMinuteReset() = %v, want 0", got)
	}

	state.MinuteResetAt = time.Now().Add(30 * time.Second)
	got := state.TimeUntilMinuteReset()
	if got < 29*time.Second || got > 30*time.Second {
		t.Errorf("TimeUntilMinuteReset() = %v, want about 30s", got)
	}
}
