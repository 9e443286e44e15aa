// Package actuator drives one physical output and reads one physical
// input per machine, over Modbus TCP (ADAM-6050 card) or a Home
// Assistant switch/sensor pair.
package actuator

import (
	"context"
	"time"

	"laundry-pay-backend/internal/model"
)

// InputState is the tri-state result of reading a machine's busy input.
type InputState int

const (
	InputUnknown InputState = iota
	InputInactive
	InputActive
)

func (s InputState) String() string {
	switch s {
	case InputActive:
		return "active"
	case InputInactive:
		return "inactive"
	default:
		return "unknown"
	}
}

// Mode selects the activation strategy.
type Mode string

const (
	// ModePulse toggles the output on then off after a short duration,
	// relying on the machine's own start latch to sustain the cycle.
	ModePulse Mode = "pulse"
	// ModeHold keeps the output on; a deferred timer releases it after
	// the cycle duration.
	ModeHold Mode = "hold"
)

// Driver actuates machines. Implementations report every failure to the
// caller after exhausting their bounded retries.
type Driver interface {
	// Activate turns the mapped output on. In pulse mode it blocks for
	// the pulse duration and releases the output before returning; in
	// hold mode it returns immediately with the output held on.
	Activate(ctx context.Context, m model.Mapping, mode Mode, pulse time.Duration) error

	// Deactivate turns the mapped output off.
	Deactivate(ctx context.Context, m model.Mapping) error

	// ReadInput samples the busy input. A transport failure is returned
	// as an error with InputUnknown.
	ReadInput(ctx context.Context, m model.Mapping) (InputState, error)
}

// minPulse is the floor applied to configured pulse durations.
const minPulse = 50 * time.Millisecond

func clampPulse(d time.Duration) time.Duration {
	if d < minPulse {
		return minPulse
	}
	return d
}

// sleep waits for d or until ctx is cancelled.
func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
