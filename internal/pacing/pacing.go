// Package pacing decides whether sending is currently allowed for a campaign
// and how long to wait between consecutive sends.
//
// Everything here is a pure function over a SendingConfig: the clock is an
// argument, never read from the environment, so the business-hours gate is
// unit-testable without touching wall-clock time.
package pacing

import (
	"math/rand"
	"time"

	"github.com/textflare/dispatch/internal/domain"
)

// CanSendNow reports whether the business-hours gate permits sending at the
// given instant. When RespectBusinessHours is false it always returns true.
// The window is [start, end) against now's hour in its own location.
//
// A campaign outside its window is neither failed nor skipped permanently;
// it simply waits for the next eligible tick.
func CanSendNow(cfg domain.SendingConfig, now time.Time) bool {
	if !cfg.RespectBusinessHours {
		return true
	}
	hour := now.Hour()
	return hour >= cfg.BusinessHoursStart && hour < cfg.BusinessHoursEnd
}

// NextDelay returns a uniformly distributed delay in
// [MinIntervalMs, MaxIntervalMs] inclusive. When min == max the delay is
// constant. Bounds are assumed validated (SendingConfig.Validate).
func NextDelay(cfg domain.SendingConfig) time.Duration {
	min, max := cfg.MinIntervalMs, cfg.MaxIntervalMs
	if max <= min {
		return time.Duration(min) * time.Millisecond
	}
	ms := min + rand.Intn(max-min+1)
	return time.Duration(ms) * time.Millisecond
}
