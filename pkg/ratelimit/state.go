// Package ratelimit tracks the SurveyMonkey API request quota and gates live
// requests. It reads the X-Ratelimit-App-Global-* response headers.
package ratelimit

import (
	"time"
)

// Quota response headers.
const (
	HeaderMinuteRemaining = "X-Ratelimit-App-Global-Minute-Remaining"
	HeaderMinuteReset     = "X-Ratelimit-App-Global-Minute-Reset"
	HeaderDayRemaining    = "X-Ratelimit-App-Global-Day-Remaining"
	HeaderDayReset        = "X-Ratelimit-App-Global-Day-Reset"
)

// Thresholds for rate limit decisions.
const (
	// DayThresholdWarning logs a warning when the daily quota falls below
	// this value. Each live page costs one request.
	DayThresholdWarning = 50

	// MaxMinuteWait caps how long a request waits for the per-minute window.
	MaxMinuteWait = 65 * time.Second
)

// RateLimitState is the last quota reported by the API.
type RateLimitState struct {
	// Known is false until a response carried quota headers.
	Known bool `json:"known"`

	// MinuteRemaining is the number of requests left in the current minute.
	MinuteRemaining int `json:"minute_remaining"`

	// MinuteResetAt is when the per-minute window resets.
	MinuteResetAt time.Time `json:"minute_reset_at"`

	// DayRemaining is the number of requests left today.
	DayRemaining int `json:"day_remaining"`

	// DayResetAt is when the daily quota resets.
	DayResetAt time.Time `json:"day_reset_at"`

	// LastUpdate is the timestamp when this state was last updated.
	LastUpdate time.Time `json:"last_update"`
}

// IsStale returns true if the state data is older than the given duration.
func (s *RateLimitState) IsStale(maxAge time.Duration) bool {
	return time.Since(s.LastUpdate) > maxAge
}

// NeedsCriticalBlock returns true if the daily quota is used up.
func (s *RateLimitState) NeedsCriticalBlock() bool {
	return s.Known && s.DayRemaining <= 0 && time.Now().Before(s.DayResetAt)
}

// NeedsMinuteWait returns true if the per-minute window is used up and has not
// reset yet.
func (s *RateLimitState) NeedsMinuteWait() bool {
	return s.Known && s.MinuteRemaining <= 0 && time.Now().Before(s.MinuteResetAt)
}

// IsLow returns true if the daily quota is below the warning threshold.
func (s *RateLimitState) IsLow() bool {
	return s.Known && s.DayRemaining < DayThresholdWarning
}

// TimeUntilMinuteReset returns the duration until the minute window resets.
// Returns 0 if the reset time has already passed.
func (s *RateLimitState) TimeUntilMinuteReset() time.Duration {
	duration := time.Until(s.MinuteResetAt)
	if duration < 0 {
		return 0
	}
	return duration
}
