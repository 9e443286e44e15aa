package arbiter

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"laundry-pay-backend/internal/actuator"
	"laundry-pay-backend/internal/model"
)

// fakeDriver returns canned input states and counts reads so tests can
// assert that disabled machines never touch the bus.
type fakeDriver struct {
	state actuator.InputState
	err   error
	reads int
}

func (f *fakeDriver) Activate(ctx context.Context, m model.Mapping, mode actuator.Mode, pulse time.Duration) error {
	return nil
}

func (f *fakeDriver) Deactivate(ctx context.Context, m model.Mapping) error { return nil }

func (f *fakeDriver) ReadInput(ctx context.Context, m model.Mapping) (actuator.InputState, error) {
	f.reads++
	return f.state, f.err
}

func modbusMachine(id int) model.Machine {
	return model.Machine{
		ID:      id,
		Enabled: true,
		Mapping: model.Mapping{Kind: model.MappingModbus, Relay: id - 1, Input: id - 1},
	}
}

func TestDisabledShortCircuitsBeforeIO(t *testing.T) {
	d := &fakeDriver{state: actuator.InputActive}
	a := New(d, nil, NewSoftTimers(), actuator.ModeHold, false)

	m := modbusMachine(1)
	m.Enabled = false

	st := a.Status(context.Background(), m)
	assert.Equal(t, StateDisabled, st.State)
	assert.Equal(t, SourceNone, st.Source)
	assert.Zero(t, d.reads)
}

func TestHoldModeHardwareInputHasPriority(t *testing.T) {
	timers := NewSoftTimers()
	timers.Arm(1, time.Hour)

	d := &fakeDriver{state: actuator.InputInactive}
	a := New(d, nil, timers, actuator.ModeHold, false)

	st := a.Status(context.Background(), modbusMachine(1))
	assert.Equal(t, StateAvailable, st.State)
	assert.Equal(t, SourceHardwareInput, st.Source)
	// A confirmed-idle input clears the soft timer.
	assert.False(t, timers.Busy(1))

	d.state = actuator.InputActive
	st = a.Status(context.Background(), modbusMachine(1))
	assert.Equal(t, StateBusy, st.State)
	assert.Equal(t, SourceHardwareInput, st.Source)
}

func TestHoldModeFallsBackToSensorThenTimer(t *testing.T) {
	timers := NewSoftTimers()
	primary := &fakeDriver{err: errors.New("bus down")}
	sensors := &fakeDriver{state: actuator.InputActive}
	a := New(primary, sensors, timers, actuator.ModeHold, false)

	m := modbusMachine(2)
	m.Mapping.Sensor = "binary_sensor.machine_2_busy"

	st := a.Status(context.Background(), m)
	assert.Equal(t, StateBusy, st.State)
	assert.Equal(t, SourceRemoteSensor, st.Source)

	// Sensor also unknown: the soft timer decides.
	sensors.state = actuator.InputUnknown
	timers.Arm(2, time.Hour)
	st = a.Status(context.Background(), m)
	assert.Equal(t, StateBusy, st.State)
	assert.Equal(t, SourceSoftTimer, st.Source)
	assert.Greater(t, st.Remaining, time.Duration(0))

	// No source at all: unknown, never silently available.
	timers.Clear(2)
	st = a.Status(context.Background(), m)
	assert.Equal(t, StateUnknown, st.State)
	assert.Equal(t, SourceNone, st.Source)
}

func TestHoldModeUnknownResolvesAvailableInSimulation(t *testing.T) {
	a := New(&fakeDriver{err: errors.New("bus down")}, nil, NewSoftTimers(), actuator.ModeHold, true)
	st := a.Status(context.Background(), modbusMachine(3))
	assert.Equal(t, StateAvailable, st.State)
	assert.Equal(t, SourceNone, st.Source)
}

func TestPulseModeTimerRulesWhileUnexpired(t *testing.T) {
	timers := NewSoftTimers()
	timers.Arm(4, time.Hour)

	// Hardware says idle, but the purchased duration wins in pulse mode.
	d := &fakeDriver{state: actuator.InputInactive}
	a := New(d, nil, timers, actuator.ModePulse, false)

	st := a.Status(context.Background(), modbusMachine(4))
	assert.Equal(t, StateBusy, st.State)
	assert.Equal(t, SourceSoftTimer, st.Source)
}

func TestPulseModeFallsBackToHardwareThenDefaultAvailable(t *testing.T) {
	d := &fakeDriver{state: actuator.InputActive}
	a := New(d, nil, NewSoftTimers(), actuator.ModePulse, false)

	st := a.Status(context.Background(), modbusMachine(5))
	assert.Equal(t, StateBusy, st.State)
	assert.Equal(t, SourceHardwareInput, st.Source)

	d.err = errors.New("bus down")
	st = a.Status(context.Background(), modbusMachine(5))
	assert.Equal(t, StateAvailable, st.State)
	assert.Equal(t, SourceNone, st.Source)
}

func TestHAMappedMachineUsesSensorSource(t *testing.T) {
	d := &fakeDriver{state: actuator.InputActive}
	a := New(d, nil, NewSoftTimers(), actuator.ModeHold, false)

	m := model.Machine{
		ID:      6,
		Enabled: true,
		Mapping: model.Mapping{Kind: model.MappingHA, Switch: "switch.m6", Sensor: "binary_sensor.m6"},
	}
	st := a.Status(context.Background(), m)
	assert.Equal(t, StateBusy, st.State)
	assert.Equal(t, SourceRemoteSensor, st.Source)
}

func TestSoftTimers(t *testing.T) {
	timers := NewSoftTimers()
	assert.False(t, timers.Busy(1))
	assert.Zero(t, timers.Remaining(1))

	timers.Arm(1, 40*time.Millisecond)
	assert.True(t, timers.Busy(1))
	assert.Greater(t, timers.Remaining(1), time.Duration(0))

	time.Sleep(60 * time.Millisecond)
	assert.False(t, timers.Busy(1))
	assert.Zero(t, timers.Remaining(1))

	timers.Arm(2, time.Hour)
	timers.Clear(2)
	assert.False(t, timers.Busy(2))

	// Non-positive durations never arm.
	timers.Arm(3, 0)
	assert.False(t, timers.Busy(3))
}
