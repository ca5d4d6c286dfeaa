package analysis

import (
	"fmt"
	"math/cmplx"
	"strings"

	"github.com/edp1096/toy-stability/internal/consts"
	"github.com/edp1096/toy-stability/pkg/device"
	"github.com/edp1096/toy-stability/pkg/network"
)

type MeterKind int

const (
	BusMeter MeterKind = iota
	GeneratorMeter
)

type Quantity string

const (
	BusVoltage      Quantity = "VM"
	BusAngleDeg     Quantity = "VA_DEG"
	BusAngleRad     Quantity = "VA_RAD"
	RotorAngleDeg   Quantity = "ANGLE_DEG"
	RotorAngleRad   Quantity = "ANGLE_RAD"
	ElectricalPower Quantity = "PE_MW"
	RotorSpeed      Quantity = "SPEED_PU"
	MechanicalPower Quantity = "PM_MW"
	FieldVoltage    Quantity = "EFD_PU"
)

var quantityKind = map[Quantity]MeterKind{
	BusVoltage:      BusMeter,
	BusAngleDeg:     BusMeter,
	BusAngleRad:     BusMeter,
	RotorAngleDeg:   GeneratorMeter,
	RotorAngleRad:   GeneratorMeter,
	ElectricalPower: GeneratorMeter,
	RotorSpeed:      GeneratorMeter,
	MechanicalPower: GeneratorMeter,
	FieldVoltage:    GeneratorMeter,
}

// ParseQuantity accepts the quantity names case-insensitively.
func ParseQuantity(s string) (Quantity, MeterKind, error) {
	q := Quantity(strings.ToUpper(strings.TrimSpace(s)))
	kind, ok := quantityKind[q]
	if !ok {
		return "", 0, fmt.Errorf("%w: unknown meter quantity %q", ErrConfig, s)
	}
	return q, kind, nil
}

// Meter names one recorded quantity. It has no effect on the dynamics.
type Meter struct {
	Kind     MeterKind
	Bus      int
	ID       string // generator id, generator meters only
	Quantity Quantity

	read func() float64
}

func NewBusMeter(bus int, q Quantity) Meter {
	return Meter{Kind: BusMeter, Bus: bus, Quantity: q}
}

func NewGeneratorMeter(bus int, id string, q Quantity) Meter {
	return Meter{Kind: GeneratorMeter, Bus: bus, ID: id, Quantity: q}
}

func (m Meter) Label() string {
	if m.Kind == BusMeter {
		return fmt.Sprintf("%s@BUS%d", m.Quantity, m.Bus)
	}
	return fmt.Sprintf("%s@GEN%d/%s", m.Quantity, m.Bus, m.ID)
}

func busReader(bus *network.Bus, q Quantity) func() float64 {
	switch q {
	case BusVoltage:
		return func() float64 { return cmplx.Abs(bus.V[device.Current]) }
	case BusAngleDeg:
		return func() float64 { return cmplx.Phase(bus.V[device.Current]) * consts.RAD2DEG }
	default:
		return func() float64 { return cmplx.Phase(bus.V[device.Current]) }
	}
}

func unitReader(u *device.Unit, q Quantity) func() float64 {
	sbase := u.Base.SBASE
	switch q {
	case RotorAngleDeg:
		return func() float64 { return u.Angle(device.Current) * consts.RAD2DEG }
	case RotorAngleRad:
		return func() float64 { return u.Angle(device.Current) }
	case ElectricalPower:
		return func() float64 { return u.Signals(device.Current).Pe * sbase }
	case RotorSpeed:
		return func() float64 { return u.Speed(device.Current) }
	case MechanicalPower:
		return func() float64 { return u.MechanicalPower(device.Current) * sbase }
	default:
		return func() float64 { return u.FieldVoltage(device.Current) }
	}
}
