package actuator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"laundry-pay-backend/internal/model"
)

// SimDriver is an in-memory driver for simulation mode and tests. After
// an activation it marks the input active (optionally after a delay)
// the way a machine's own busy contact would.
type SimDriver struct {
	mu     sync.Mutex
	active map[string]bool

	// ConfirmAfterActivate mirrors a machine that reports busy once
	// started. Disable it to exercise confirmation timeouts.
	ConfirmAfterActivate bool
	ConfirmDelay         time.Duration
}

// NewSimDriver returns a driver whose inputs confirm right after activation.
func NewSimDriver() *SimDriver {
	return &SimDriver{
		active:               make(map[string]bool),
		ConfirmAfterActivate: true,
	}
}

func mappingKey(m model.Mapping) string {
	if m.Kind == model.MappingHA {
		return m.Switch
	}
	return fmt.Sprintf("do:%d", m.Relay)
}

// Activate implements Driver.
func (d *SimDriver) Activate(ctx context.Context, m model.Mapping, mode Mode, pulse time.Duration) error {
	if d.ConfirmAfterActivate {
		if d.ConfirmDelay > 0 {
			if err := sleep(ctx, d.ConfirmDelay); err != nil {
				return err
			}
		}
		d.setActive(m, true)
	}
	return nil
}

// Deactivate implements Driver.
func (d *SimDriver) Deactivate(ctx context.Context, m model.Mapping) error {
	d.setActive(m, false)
	return nil
}

// ReadInput implements Driver.
func (d *SimDriver) ReadInput(ctx context.Context, m model.Mapping) (InputState, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.active[mappingKey(m)] {
		return InputActive, nil
	}
	return InputInactive, nil
}

// SetActive overrides an input directly, useful in tests.
func (d *SimDriver) SetActive(m model.Mapping, active bool) {
	d.setActive(m, active)
}

func (d *SimDriver) setActive(m model.Mapping, active bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if active {
		d.active[mappingKey(m)] = true
	} else {
		delete(d.active, mappingKey(m))
	}
}
