package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

// ErrQuotaExhausted is returned when the daily request quota is used up.
var ErrQuotaExhausted = errors.New("api daily quota exhausted")

// Prometheus metrics for rate limit tracking.
var (
	dayRemainingGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "monscrape_ratelimit_day_remaining",
		Help: "Requests remaining in the current daily API quota",
	})

	minuteRemainingGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "monscrape_ratelimit_minute_remaining",
		Help: "Requests remaining in the current per-minute API window",
	})

	rateLimitBlocksTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "monscrape_ratelimit_blocks_total",
		Help: "Total number of requests blocked because the daily quota is exhausted",
	})

	rateLimitWaitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "monscrape_ratelimit_waits_total",
		Help: "Total number of requests delayed until the per-minute window reset",
	})
)

// Tracker monitors the API quota and gates requests. It is safe for
// concurrent use.
type Tracker struct {
	mu     sync.Mutex
	state  RateLimitState
	logger zerolog.Logger

	// sleep is replaced in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewTracker creates a new rate limit tracker.
func NewTracker(logger zerolog.Logger) *Tracker {
	return &Tracker{
		logger: logger,
		sleep:  sleepContext,
	}
}

// GetState returns a copy of the current state.
func (t *Tracker) GetState() RateLimitState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// UpdateFromHeaders parses the quota headers of a response. Responses without
// quota headers leave the state untouched.
func (t *Tracker) UpdateFromHeaders(headers http.Header) error {
	dayStr := headers.Get(HeaderDayRemaining)
	minuteStr := headers.Get(HeaderMinuteRemaining)
	if dayStr == "" && minuteStr == "" {
		return nil
	}

	now := time.Now()
	t.mu.Lock()
	state := t.state
	t.mu.Unlock()

	if dayStr != "" {
		day, err := strconv.Atoi(dayStr)
		if err != nil {
			return fmt.Errorf("parse %s header: %w", HeaderDayRemaining, err)
		}
		resetAt, err := resetTime(headers.Get(HeaderDayReset), state.DayResetAt, now, dayWindow)
		if err != nil {
			return fmt.Errorf("parse %s header: %w", HeaderDayReset, err)
		}
		state.DayRemaining = day
		state.DayResetAt = resetAt
	}

	if minuteStr != "" {
		minute, err := strconv.Atoi(minuteStr)
		if err != nil {
			return fmt.Errorf("parse %s header: %w", HeaderMinuteRemaining, err)
		}
		resetAt, err := resetTime(headers.Get(HeaderMinuteReset), state.MinuteResetAt, now, minuteWindow)
		if err != nil {
			return fmt.Errorf("parse %s header: %w", HeaderMinuteReset, err)
		}
		state.MinuteRemaining = minute
		state.MinuteResetAt = resetAt
	}

	state.Known = true
	state.LastUpdate = now

	t.mu.Lock()
	t.state = state
	t.mu.Unlock()

	dayRemainingGauge.Set(float64(state.DayRemaining))
	minuteRemainingGauge.Set(float64(state.MinuteRemaining))

	if state.IsLow() {
		t.logger.Warn().
			Int("day_remaining", state.DayRemaining).
			Time("day_reset_at", state.DayResetAt).
			Msg("API daily quota running low")
	} else {
		t.logger.Debug().
			Int("day_remaining", state.DayRemaining).
			Int("minute_remaining", state.MinuteRemaining).
			Msg("API quota state updated")
	}

	return nil
}

// Wait gates one live request. It returns ErrQuotaExhausted when the daily
// quota is used up, and sleeps until the per-minute window resets when that
// one is used up.
func (t *Tracker) Wait(ctx context.Context) error {
	state := t.GetState()

	if state.NeedsCriticalBlock() {
		t.logger.Error().
			Int("day_remaining", state.DayRemaining).
			Time("day_reset_at", state.DayResetAt).
			Msg("API daily quota exhausted - blocking request")

		rateLimitBlocksTotal.Inc()
		return fmt.Errorf("%w until %s", ErrQuotaExhausted, state.DayResetAt.Format(time.RFC3339))
	}

	if state.NeedsMinuteWait() {
		wait := state.TimeUntilMinuteReset()
		if wait > MaxMinuteWait {
			wait = MaxMinuteWait
		}

		t.logger.Warn().
			Dur("wait", wait).
			Msg("API minute window exhausted - delaying request")

		rateLimitWaitsTotal.Inc()
		if err := t.sleep(ctx, wait); err != nil {
			return err
		}
	}

	return nil
}

// Quota window lengths, assumed when a response omits its reset header.
const (
	dayWindow    = 24 * time.Hour
	minuteWindow = time.Minute
)

// resetTime reads a reset header given in seconds from now. An absent header
// keeps a previous reset that is still ahead, and otherwise assumes a full
// window, so an exhausted quota stays blocked until a later response says
// otherwise.
func resetTime(value string, previous, now time.Time, window time.Duration) (time.Time, error) {
	if value == "" {
		if previous.After(now) {
			return previous, nil
		}
		return now.Add(window), nil
	}
	seconds, err := strconv.Atoi(value)
	if err != nil {
		return time.Time{}, err
	}
	if seconds < 0 {
		seconds = 0
	}
	return now.Add(time.Duration(seconds) * time.Second), nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
