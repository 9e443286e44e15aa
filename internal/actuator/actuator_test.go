package actuator

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"laundry-pay-backend/internal/model"
)

func modbusMapping(relay, di int) model.Mapping {
	return model.Mapping{Kind: model.MappingModbus, Relay: relay, Input: di}
}

func TestSimDriverConfirmsAfterActivate(t *testing.T) {
	d := NewSimDriver()
	m := modbusMapping(0, 0)

	state, err := d.ReadInput(context.Background(), m)
	require.NoError(t, err)
	assert.Equal(t, InputInactive, state)

	require.NoError(t, d.Activate(context.Background(), m, ModePulse, time.Millisecond))
	state, err = d.ReadInput(context.Background(), m)
	require.NoError(t, err)
	assert.Equal(t, InputActive, state)

	require.NoError(t, d.Deactivate(context.Background(), m))
	state, err = d.ReadInput(context.Background(), m)
	require.NoError(t, err)
	assert.Equal(t, InputInactive, state)
}

func TestSimDriverWithoutConfirmation(t *testing.T) {
	d := NewSimDriver()
	d.ConfirmAfterActivate = false
	m := modbusMapping(2, 2)

	require.NoError(t, d.Activate(context.Background(), m, ModeHold, 0))
	state, err := d.ReadInput(context.Background(), m)
	require.NoError(t, err)
	assert.Equal(t, InputInactive, state)
}

func TestModbusCoilAddressing(t *testing.T) {
	d := NewModbusDriver("192.168.1.101", 502, 1, time.Second, 1, 16, false)
	// DO0..DO5 sit at coils 16..21 on the ADAM-6050.
	assert.Equal(t, uint16(16), d.coilAddr(0))
	assert.Equal(t, uint16(21), d.coilAddr(5))
}

func TestMapSensorState(t *testing.T) {
	assert.Equal(t, InputActive, MapSensorState("on"))
	assert.Equal(t, InputActive, MapSensorState("running"))
	assert.Equal(t, InputInactive, MapSensorState("off"))
	assert.Equal(t, InputInactive, MapSensorState("idle"))
	assert.Equal(t, InputUnknown, MapSensorState("unavailable"))
	assert.Equal(t, InputUnknown, MapSensorState(""))
}

func TestRouterDispatch(t *testing.T) {
	sim := NewSimDriver()
	r := &RouterDriver{Modbus: sim}

	require.NoError(t, r.Activate(context.Background(), modbusMapping(1, 1), ModeHold, 0))

	_, err := r.ReadInput(context.Background(), model.Mapping{Kind: model.MappingHA, Sensor: "binary_sensor.x"})
	assert.Error(t, err)
}

func TestClampPulse(t *testing.T) {
	assert.Equal(t, minPulse, clampPulse(0))
	assert.Equal(t, time.Second, clampPulse(time.Second))
}
