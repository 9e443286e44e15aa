package actuator

import (
	"context"
	"fmt"
	"log"
	"time"

	"laundry-pay-backend/internal/ha"
	"laundry-pay-backend/internal/model"
)

// HADriver actuates machines through a Home Assistant switch entity and
// reads busy state from a binary sensor entity.
type HADriver struct {
	Client  *ha.Client
	Retries int
}

// NewHADriver wraps an HA client with the same bounded-retry contract as
// the field-bus driver.
func NewHADriver(client *ha.Client, retries int) *HADriver {
	if retries < 1 {
		retries = 1
	}
	return &HADriver{Client: client, Retries: retries}
}

// Activate implements Driver.
func (d *HADriver) Activate(ctx context.Context, m model.Mapping, mode Mode, pulse time.Duration) error {
	if err := d.retry(ctx, "turn_on "+m.Switch, func() error {
		return d.Client.TurnOn(ctx, m.Switch)
	}); err != nil {
		return err
	}
	if mode == ModeHold {
		return nil
	}
	if err := sleep(ctx, clampPulse(pulse)); err != nil {
		d.Client.TurnOff(context.Background(), m.Switch)
		return err
	}
	if err := d.retry(ctx, "turn_off "+m.Switch, func() error {
		return d.Client.TurnOff(ctx, m.Switch)
	}); err != nil {
		return fmt.Errorf("release after pulse: %w", err)
	}
	return nil
}

// Deactivate implements Driver.
func (d *HADriver) Deactivate(ctx context.Context, m model.Mapping) error {
	return d.retry(ctx, "turn_off "+m.Switch, func() error {
		return d.Client.TurnOff(ctx, m.Switch)
	})
}

// ReadInput implements Driver. The sensor state string maps to the same
// tri-state as a discrete input.
func (d *HADriver) ReadInput(ctx context.Context, m model.Mapping) (InputState, error) {
	state, err := d.Client.State(ctx, m.Sensor)
	if err != nil {
		return InputUnknown, err
	}
	return MapSensorState(state), nil
}

// MapSensorState converts an HA state string to a tri-state input.
func MapSensorState(state string) InputState {
	switch state {
	case "on", "true", "1", "running":
		return InputActive
	case "off", "false", "0", "idle":
		return InputInactive
	default:
		return InputUnknown
	}
}

func (d *HADriver) retry(ctx context.Context, what string, op func() error) error {
	var lastErr error
	for attempt := 1; attempt <= d.Retries; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := op(); err != nil {
			lastErr = err
			log.Printf("ha: %s failed (attempt %d/%d): %v", what, attempt, d.Retries, err)
			time.Sleep(retryBackoff)
			continue
		}
		return nil
	}
	return fmt.Errorf("%s: %w", what, lastErr)
}
