package model

import "github.com/shopspring/decimal"

// MachineCategory determines a machine's default price and cycle length.
type MachineCategory string

const (
	CategoryWashing MachineCategory = "washing"
	CategoryDryer   MachineCategory = "dryer"
)

// MappingKind selects which driver actuates a machine.
type MappingKind string

const (
	// MappingModbus drives a relay coil / discrete input pair on the
	// ADAM-6050 I/O card.
	MappingModbus MappingKind = "modbus"
	// MappingHA drives a Home Assistant switch entity and polls a
	// binary sensor entity.
	MappingHA MappingKind = "ha"
)

// Mapping ties a machine to its physical actuation channel.
type Mapping struct {
	Kind MappingKind

	// Modbus indexes (machine N defaults to relay N-1, input N-1).
	Relay int
	Input int

	// Home Assistant entity ids.
	Switch string
	Sensor string
}

// Machine is one unit of the six-machine fleet. Machines exist only in
// configuration; at runtime nothing about them mutates except the
// soft-busy deadline held elsewhere.
type Machine struct {
	ID           int
	Category     MachineCategory
	Enabled      bool
	Price        decimal.Decimal
	CycleMinutes int
	Mapping      Mapping
}
