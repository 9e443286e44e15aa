package actuator

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/goburrow/modbus"

	"laundry-pay-backend/internal/model"
)

// retryBackoff is the pause between failed transport attempts.
const retryBackoff = 100 * time.Millisecond

// ModbusDriver actuates relay coils and reads discrete inputs on the
// ADAM-6050 I/O card over Modbus TCP. Every attempt opens a fresh
// transport session; a connect failure, an exception reply and a read
// error all count as one failed attempt.
type ModbusDriver struct {
	Addr     string
	UnitID   byte
	Timeout  time.Duration
	Retries  int
	CoilBase uint16 // ADAM-6050: DO0..5 live at coils 16..21
	InvertDI bool
}

// NewModbusDriver builds a driver for host:port with the given settings.
func NewModbusDriver(host string, port int, unitID byte, timeout time.Duration, retries int, coilBase uint16, invertDI bool) *ModbusDriver {
	if retries < 1 {
		retries = 1
	}
	return &ModbusDriver{
		Addr:     fmt.Sprintf("%s:%d", host, port),
		UnitID:   unitID,
		Timeout:  timeout,
		Retries:  retries,
		CoilBase: coilBase,
		InvertDI: invertDI,
	}
}

func (d *ModbusDriver) coilAddr(index int) uint16 {
	return d.CoilBase + uint16(index)
}

// Activate implements Driver.
func (d *ModbusDriver) Activate(ctx context.Context, m model.Mapping, mode Mode, pulse time.Duration) error {
	if err := d.writeCoil(ctx, m.Relay, true); err != nil {
		return err
	}
	if mode == ModeHold {
		return nil
	}
	if err := sleep(ctx, clampPulse(pulse)); err != nil {
		// Cancelled mid-pulse: still try to release the relay.
		d.writeCoil(context.Background(), m.Relay, false)
		return err
	}
	if err := d.writeCoil(ctx, m.Relay, false); err != nil {
		return fmt.Errorf("release after pulse: %w", err)
	}
	return nil
}

// Deactivate implements Driver.
func (d *ModbusDriver) Deactivate(ctx context.Context, m model.Mapping) error {
	return d.writeCoil(ctx, m.Relay, false)
}

// ReadInput implements Driver.
func (d *ModbusDriver) ReadInput(ctx context.Context, m model.Mapping) (InputState, error) {
	var lastErr error
	for attempt := 1; attempt <= d.Retries; attempt++ {
		if err := ctx.Err(); err != nil {
			return InputUnknown, err
		}
		raw, err := d.readDI(uint16(m.Input))
		if err != nil {
			lastErr = err
			log.Printf("modbus: DI read failed (attempt %d/%d): %v", attempt, d.Retries, err)
			time.Sleep(retryBackoff)
			continue
		}
		if d.InvertDI {
			raw = !raw
		}
		if raw {
			return InputActive, nil
		}
		return InputInactive, nil
	}
	return InputUnknown, fmt.Errorf("read DI %d: %w", m.Input, lastErr)
}

func (d *ModbusDriver) writeCoil(ctx context.Context, index int, on bool) error {
	addr := d.coilAddr(index)
	var value uint16
	if on {
		value = 0xFF00
	}

	var lastErr error
	for attempt := 1; attempt <= d.Retries; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := d.writeOnce(addr, value); err != nil {
			lastErr = err
			log.Printf("modbus: write coil %d=%v failed (attempt %d/%d): %v", addr, on, attempt, d.Retries, err)
			time.Sleep(retryBackoff)
			continue
		}
		return nil
	}
	return fmt.Errorf("write coil %d: %w", addr, lastErr)
}

func (d *ModbusDriver) writeOnce(addr, value uint16) error {
	handler := modbus.NewTCPClientHandler(d.Addr)
	handler.Timeout = d.Timeout
	handler.SlaveId = d.UnitID
	if err := handler.Connect(); err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer handler.Close()

	client := modbus.NewClient(handler)
	if _, err := client.WriteSingleCoil(addr, value); err != nil {
		return err
	}
	return nil
}

func (d *ModbusDriver) readDI(addr uint16) (bool, error) {
	handler := modbus.NewTCPClientHandler(d.Addr)
	handler.Timeout = d.Timeout
	handler.SlaveId = d.UnitID
	if err := handler.Connect(); err != nil {
		return false, fmt.Errorf("connect: %w", err)
	}
	defer handler.Close()

	client := modbus.NewClient(handler)
	bits, err := client.ReadDiscreteInputs(addr, 1)
	if err != nil {
		return false, err
	}
	if len(bits) == 0 {
		return false, fmt.Errorf("empty DI response")
	}
	return bits[0]&0x01 == 0x01, nil
}
