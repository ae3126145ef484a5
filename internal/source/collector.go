package source

import (
	"context"
	"time"

	"marketpulse/internal/models"
)

type HealthStatus struct {
	Status     string
	LastPollAt *time.Time
	LastError  *string
}

type SourceInfo struct {
	SourceType   string
	Endpoint     string
	PollInterval time.Duration
}

// Emitter receives collector output. EmitNotification feeds the enrichment
// pipeline; EmitTick feeds the price fan-out and the threat detector.
type Emitter interface {
	EmitNotification(n models.Notification)
	EmitTick(t models.PriceTick)
}

// Collector is a long-lived source poller.
type Collector interface {
	Name() string
	Start(ctx context.Context, out Emitter) error
	Stop() error
	Health() HealthStatus
}

// InfoProvider lets a collector describe itself for /system/status.
type InfoProvider interface {
	SourceInfo() SourceInfo
}

// Kicker lets the API wake a poller ahead of its interval.
type Kicker interface {
	Kick()
}

// pollLoop drives a poller at a dynamic interval. A rate-limited poll doubles
// the interval until the next success, capped at capMult x base; success
// resets to base. The kick channel wakes the loop early.
func pollLoop(ctx context.Context, base time.Duration, capMult float64, kick <-chan struct{}, poll func(context.Context) pollResult) error {
	if base <= 0 {
		base = time.Minute
	}
	if capMult < 1 {
		capMult = 10
	}
	maxInterval := time.Duration(float64(base) * capMult)

	interval := base
	run := func() {
		switch poll(ctx) {
		case pollRateLimited:
			interval *= 2
			if interval > maxInterval {
				interval = maxInterval
			}
		case pollOK:
			interval = base
		case pollFailed:
			// Keep the current interval; transient failures already went
			// through the adapter retry policy.
		}
	}

	run()
	timer := time.NewTimer(interval)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-kick:
			run()
		case <-timer.C:
			run()
		}
		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(interval)
	}
}

type pollResult int

const (
	pollOK pollResult = iota
	pollFailed
	pollRateLimited
)
