package actuator

import (
	"context"
	"fmt"
	"time"

	"laundry-pay-backend/internal/model"
)

// RouterDriver dispatches to the field-bus or Home Assistant driver based
// on a machine's actuation mapping.
type RouterDriver struct {
	Modbus Driver
	HA     Driver
}

func (r *RouterDriver) pick(m model.Mapping) (Driver, error) {
	switch m.Kind {
	case model.MappingModbus:
		if r.Modbus == nil {
			return nil, fmt.Errorf("no field-bus driver configured")
		}
		return r.Modbus, nil
	case model.MappingHA:
		if r.HA == nil {
			return nil, fmt.Errorf("no home-assistant driver configured")
		}
		return r.HA, nil
	default:
		return nil, fmt.Errorf("unknown mapping kind %q", m.Kind)
	}
}

// Activate implements Driver.
func (r *RouterDriver) Activate(ctx context.Context, m model.Mapping, mode Mode, pulse time.Duration) error {
	d, err := r.pick(m)
	if err != nil {
		return err
	}
	return d.Activate(ctx, m, mode, pulse)
}

// Deactivate implements Driver.
func (r *RouterDriver) Deactivate(ctx context.Context, m model.Mapping) error {
	d, err := r.pick(m)
	if err != nil {
		return err
	}
	return d.Deactivate(ctx, m)
}

// ReadInput implements Driver.
func (r *RouterDriver) ReadInput(ctx context.Context, m model.Mapping) (InputState, error) {
	d, err := r.pick(m)
	if err != nil {
		return InputUnknown, err
	}
	return d.ReadInput(ctx, m)
}
