package device

import (
	"errors"
	"fmt"
	"math/cmplx"
	"sort"
)

var (
	ErrUnknownModel     = errors.New("unknown model")
	ErrUnsupportedModel = errors.New("model not supported by the dynamic engine")
	ErrParameter        = errors.New("invalid model parameter")
	ErrSetpoint         = errors.New("initial setpoint outside limits")
)

// SetpointError reports a control whose steady state lies outside its limits.
// The control starts clamped, so its derivative is not zero at the first step.
type SetpointError struct {
	Model    string
	Name     string
	Quantity string
	Value    float64
	Min, Max float64
}

func (e *SetpointError) Error() string {
	return fmt.Sprintf("%s %s %.4g outside [%g, %g]", e.Name, e.Quantity, e.Value, e.Min, e.Max)
}

func (e *SetpointError) Unwrap() error { return ErrSetpoint }

func checkSetpoint(model, name, quantity string, value, lo, hi float64) error {
	if value < lo || value > hi {
		return &SetpointError{Model: model, Name: name, Quantity: quantity, Value: value, Min: lo, Max: hi}
	}
	return nil
}

// Slot selects one of the two state buffers held by every device.
type Slot int

const (
	Current   Slot = iota // accepted value at the last completed time
	Predicted             // provisional value from the predictor phase
)

func (s Slot) String() string {
	switch s {
	case Current:
		return "current"
	case Predicted:
		return "predicted"
	default:
		return fmt.Sprintf("slot(%d)", int(s))
	}
}

type Kind int

const (
	GEN Kind = iota
	AVR
	GOV
)

func (k Kind) String() string {
	switch k {
	case GEN:
		return "GEN"
	case AVR:
		return "AVR"
	case GOV:
		return "GOV"
	default:
		return "?"
	}
}

// Signals are the network quantities seen by a unit in one slot.
type Signals struct {
	Vt complex128 // terminal voltage (p.u.)
	It complex128 // terminal current on system base (p.u.)
	Pe float64    // electrical power on system base (p.u.)
}

// Base carries the per-unit bases a model converts between.
type Base struct {
	SBASE float64 // system base (MVA)
	MBASE float64 // machine base (MVA)
	FBASE float64 // frequency (Hz)
}

// ToSystem converts a machine-base impedance to system base.
func (b Base) ToSystem(x float64) float64 {
	return x * b.SBASE / b.MBASE
}

type ModelParam struct {
	Type   string // model name, e.g. GENCLS
	Kind   Kind
	Bus    int
	ID     string
	Params map[string]float64
}

func (p ModelParam) Name() string {
	return fmt.Sprintf("%s %d/%s", p.Type, p.Bus, p.ID)
}

func (p ModelParam) Get(name string) float64 {
	return p.Params[name]
}

// Require returns an error naming every missing parameter.
func (p ModelParam) Require(names ...string) error {
	var missing []string
	for _, n := range names {
		if _, ok := p.Params[n]; !ok {
			missing = append(missing, n)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return fmt.Errorf("%w: %s missing %v", ErrParameter, p.Name(), missing)
	}
	return nil
}

type Machine interface {
	Model() string
	StateNames() []string
	// Init writes the steady state seen from the power-flow terminal voltage and current.
	Init(x []float64, vt, it complex128)
	Derivative(dx, x []float64, sig Signals, pm, efd float64)
	EMF(x []float64) complex128
	InternalAdmittance() complex128
	SaliencyCurrent(x []float64, vt complex128) complex128
	Angle(x []float64) float64
	Speed(x []float64) float64
}

// FieldDriven is a machine whose internal EMF responds to field voltage.
type FieldDriven interface {
	// FieldVoltage returns the field voltage holding the EMF steady at the given signals.
	FieldVoltage(x []float64, sig Signals) float64
}

type Exciter interface {
	Model() string
	StateNames() []string
	// Init holds efd at steady state. A *SetpointError is returned when efd
	// lies outside the field limits.
	Init(x []float64, vt complex128, efd float64) error
	Derivative(dx, x []float64, vt complex128)
	Clamp(x []float64)
	FieldVoltage(x []float64) float64
}

type Governor interface {
	Model() string
	StateNames() []string
	// Init settles the governor at pm, given on system base.
	Init(x []float64, pm float64) error
	Derivative(dx, x []float64, speed float64)
	Clamp(x []float64)
	// MechanicalPower returns the turbine output on system base.
	MechanicalPower(x []float64) float64
}

// toDQ resolves a network-frame phasor onto the rotor axes at angle delta.
func toDQ(a complex128, delta float64) (d, q float64) {
	r := a * cmplx.Rect(1, -delta)
	return -imag(r), real(r)
}

func fromDQ(d, q, delta float64) complex128 {
	return complex(q, -d) * cmplx.Rect(1, delta)
}
