// Package arbiter fuses hardware discrete-input state, remote sensor
// state and the soft-busy timer map into one authoritative machine
// status, with a fixed precedence per actuation mode.
package arbiter

import (
	"context"
	"log"
	"time"

	"laundry-pay-backend/internal/actuator"
	"laundry-pay-backend/internal/model"
)

// State is the authoritative availability verdict for a machine.
type State string

const (
	StateBusy      State = "busy"
	StateAvailable State = "available"
	StateDisabled  State = "disabled"
	StateUnknown   State = "unknown"
)

// Source names the input that decided a verdict.
type Source string

const (
	SourceHardwareInput Source = "hardware_input"
	SourceSoftTimer     Source = "soft_timer"
	SourceRemoteSensor  Source = "remote_sensor"
	SourceNone          Source = "none"
)

// Status is a verdict annotated with its deciding source and, when the
// soft timer decided, the remaining busy duration.
type Status struct {
	State     State
	Source    Source
	Remaining time.Duration
}

// Arbiter evaluates machine availability.
type Arbiter struct {
	driver   actuator.Driver // primary per-mapping driver
	sensors  actuator.Driver // HA driver for remote-sensor fallback; may be nil
	timers   *SoftTimers
	mode     actuator.Mode
	simulate bool
}

// New builds an arbiter. sensors may be nil when no Home Assistant
// endpoint is configured; the remote-sensor source then never decides.
func New(driver, sensors actuator.Driver, timers *SoftTimers, mode actuator.Mode, simulate bool) *Arbiter {
	return &Arbiter{driver: driver, sensors: sensors, timers: timers, mode: mode, simulate: simulate}
}

// Timers exposes the timer map shared with the charge orchestrator.
func (a *Arbiter) Timers() *SoftTimers { return a.timers }

// Enabled reports the machine's resolved enabled flag. Disabled machines
// short-circuit before any I/O is attempted.
func (a *Arbiter) Enabled(m model.Machine) bool { return m.Enabled }

// Status fuses all sources into one verdict for the machine.
func (a *Arbiter) Status(ctx context.Context, m model.Machine) Status {
	if !m.Enabled {
		return Status{State: StateDisabled, Source: SourceNone}
	}

	input, sensor := a.sample(ctx, m)

	if a.mode == actuator.ModeHold {
		return a.holdVerdict(m, input, sensor)
	}
	return a.pulseVerdict(m, input, sensor)
}

// Available reports whether a charge may proceed on the machine.
func (a *Arbiter) Available(ctx context.Context, m model.Machine) bool {
	return a.Status(ctx, m).State == StateAvailable
}

// ConfirmActive samples the raw busy signal for the activation
// confirmation loop, bypassing the soft timer.
func (a *Arbiter) ConfirmActive(ctx context.Context, m model.Machine) bool {
	state, err := a.driver.ReadInput(ctx, m.Mapping)
	if err != nil {
		log.Printf("arbiter: confirm read machine %d: %v", m.ID, err)
		return false
	}
	return state == actuator.InputActive
}

// sample reads the hardware input and, when available, the remote
// sensor. For HA-mapped machines the sensor is the primary signal and
// there is no separate hardware input.
func (a *Arbiter) sample(ctx context.Context, m model.Machine) (input, sensor actuator.InputState) {
	input, sensor = actuator.InputUnknown, actuator.InputUnknown

	switch m.Mapping.Kind {
	case model.MappingModbus:
		st, err := a.driver.ReadInput(ctx, m.Mapping)
		if err != nil {
			log.Printf("arbiter: DI read machine %d: %v", m.ID, err)
		} else {
			input = st
		}
		if m.Mapping.Sensor != "" && a.sensors != nil {
			st, err := a.sensors.ReadInput(ctx, model.Mapping{Kind: model.MappingHA, Sensor: m.Mapping.Sensor})
			if err != nil {
				log.Printf("arbiter: sensor read machine %d: %v", m.ID, err)
			} else {
				sensor = st
			}
		}
	case model.MappingHA:
		st, err := a.driver.ReadInput(ctx, m.Mapping)
		if err != nil {
			log.Printf("arbiter: sensor read machine %d: %v", m.ID, err)
		} else {
			sensor = st
		}
	}
	return input, sensor
}

// holdVerdict: hardware input first, then remote sensor, then the soft
// timer. A confirmed-idle input or sensor clears the timer.
func (a *Arbiter) holdVerdict(m model.Machine, input, sensor actuator.InputState) Status {
	switch input {
	case actuator.InputActive:
		return Status{State: StateBusy, Source: SourceHardwareInput}
	case actuator.InputInactive:
		a.timers.Clear(m.ID)
		return Status{State: StateAvailable, Source: SourceHardwareInput}
	}

	switch sensor {
	case actuator.InputActive:
		return Status{State: StateBusy, Source: SourceRemoteSensor}
	case actuator.InputInactive:
		a.timers.Clear(m.ID)
		return Status{State: StateAvailable, Source: SourceRemoteSensor}
	}

	if a.timers.Busy(m.ID) {
		return Status{State: StateBusy, Source: SourceSoftTimer, Remaining: a.timers.Remaining(m.ID)}
	}

	if a.simulate {
		return Status{State: StateAvailable, Source: SourceNone}
	}
	return Status{State: StateUnknown, Source: SourceNone}
}

// pulseVerdict: the soft timer rules while unexpired. The relay already
// pulsed and released, so hardware feedback cannot vouch for the
// purchased duration. Afterwards hardware, then sensor, then available.
func (a *Arbiter) pulseVerdict(m model.Machine, input, sensor actuator.InputState) Status {
	if a.timers.Busy(m.ID) {
		return Status{State: StateBusy, Source: SourceSoftTimer, Remaining: a.timers.Remaining(m.ID)}
	}

	switch input {
	case actuator.InputActive:
		return Status{State: StateBusy, Source: SourceHardwareInput}
	case actuator.InputInactive:
		return Status{State: StateAvailable, Source: SourceHardwareInput}
	}

	switch sensor {
	case actuator.InputActive:
		return Status{State: StateBusy, Source: SourceRemoteSensor}
	case actuator.InputInactive:
		return Status{State: StateAvailable, Source: SourceRemoteSensor}
	}

	return Status{State: StateAvailable, Source: SourceNone}
}
