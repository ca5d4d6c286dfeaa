package device

import (
	"errors"
	"fmt"
	"math/cmplx"
)

// Unit is one generator: a machine with an optional exciter and governor,
// holding a flat state vector per slot laid out machine | exciter | governor.
type Unit struct {
	Bus      int    // Original bus number
	ID       string // Generator id
	Index    int    // Matrix index of the bus
	P, Q     float64
	Base     Base
	Machine  Machine
	Exciter  Exciter
	Governor Governor

	pm0, efd0 float64 // held constant when the sub-model is absent

	nm, ne, ng int
	states     [2][]float64
	signals    [2]Signals
}

func NewUnit(bus int, id string, base Base, m Machine, e Exciter, g Governor) (*Unit, error) {
	if m == nil {
		return nil, fmt.Errorf("unit %d/%s: no machine model", bus, id)
	}

	u := &Unit{
		Bus:      bus,
		ID:       id,
		Base:     base,
		Machine:  m,
		Exciter:  e,
		Governor: g,
		nm:       len(m.StateNames()),
	}
	if e != nil {
		u.ne = len(e.StateNames())
	}
	if g != nil {
		u.ng = len(g.StateNames())
	}

	n := u.nm + u.ne + u.ng
	u.states[Current] = make([]float64, n)
	u.states[Predicted] = make([]float64, n)
	return u, nil
}

func (u *Unit) Name() string {
	return fmt.Sprintf("%d/%s", u.Bus, u.ID)
}

func (u *Unit) NumStates() int { return u.nm + u.ne + u.ng }

func (u *Unit) State(s Slot) []float64 { return u.states[s] }

func (u *Unit) StateNames() []string {
	names := make([]string, 0, u.NumStates())
	names = append(names, u.Machine.StateNames()...)
	if u.Exciter != nil {
		names = append(names, u.Exciter.StateNames()...)
	}
	if u.Governor != nil {
		names = append(names, u.Governor.StateNames()...)
	}
	return names
}

func (u *Unit) machineState(x []float64) []float64  { return x[:u.nm] }
func (u *Unit) exciterState(x []float64) []float64  { return x[u.nm : u.nm+u.ne] }
func (u *Unit) governorState(x []float64) []float64 { return x[u.nm+u.ne:] }

func (u *Unit) Signals(s Slot) Signals { return u.signals[s] }

func (u *Unit) SetSignals(s Slot, sig Signals) { u.signals[s] = sig }

// Init sets the machine states from the power-flow terminal voltage.
func (u *Unit) Init(vt complex128) {
	it := cmplx.Conj(complex(u.P, u.Q)/complex(u.Base.SBASE, 0)) / cmplx.Conj(vt)
	u.Machine.Init(u.machineState(u.states[Current]), vt, it)
	u.signals[Current] = Signals{Vt: vt, It: it, Pe: real(vt * cmplx.Conj(it))}
}

// Settle finishes initialization once the network has been solved for the
// current slot: mechanical power matches Pe, field voltage holds the EMF, and
// the controls are set at those values. Both slots are left equal.
// Controls whose setpoint lies outside their limits start clamped and are
// reported as *SetpointError.
func (u *Unit) Settle() error {
	x := u.states[Current]
	sig := u.signals[Current]

	u.pm0 = sig.Pe
	switch m := u.Machine.(type) {
	case FieldDriven:
		u.efd0 = m.FieldVoltage(u.machineState(x), sig)
	case *GENCLS:
		u.efd0 = m.EMFMagnitude()
	}
	var excErr, govErr error
	if u.Exciter != nil {
		excErr = u.Exciter.Init(u.exciterState(x), sig.Vt, u.efd0)
	}
	if u.Governor != nil {
		govErr = u.Governor.Init(u.governorState(x), u.pm0)
	}

	copy(u.states[Predicted], x)
	u.signals[Predicted] = sig
	return errors.Join(excErr, govErr)
}

func (u *Unit) MechanicalPower(s Slot) float64 {
	if u.Governor == nil {
		return u.pm0
	}
	return u.Governor.MechanicalPower(u.governorState(u.states[s]))
}

func (u *Unit) FieldVoltage(s Slot) float64 {
	if u.Exciter == nil {
		return u.efd0
	}
	return u.Exciter.FieldVoltage(u.exciterState(u.states[s]))
}

func (u *Unit) Angle(s Slot) float64 { return u.Machine.Angle(u.states[s]) }

func (u *Unit) Speed(s Slot) float64 { return u.Machine.Speed(u.states[s]) }

func (u *Unit) EMF(s Slot) complex128 {
	return u.Machine.EMF(u.machineState(u.states[s]))
}

func (u *Unit) SaliencyCurrent(s Slot, vt complex128) complex128 {
	return u.Machine.SaliencyCurrent(u.machineState(u.states[s]), vt)
}

// Derivative evaluates every sub-model at slot s into dx.
func (u *Unit) Derivative(dx []float64, s Slot) {
	x := u.states[s]
	sig := u.signals[s]
	pm := u.MechanicalPower(s)
	efd := u.FieldVoltage(s)

	u.Machine.Derivative(u.machineState(dx), u.machineState(x), sig, pm, efd)
	if u.Exciter != nil {
		u.Exciter.Derivative(u.exciterState(dx), u.exciterState(x), sig.Vt)
	}
	if u.Governor != nil {
		u.Governor.Derivative(u.governorState(dx), u.governorState(x), u.Machine.Speed(x))
	}
}

// Clamp applies the hard limits of the controls to slot s.
func (u *Unit) Clamp(s Slot) {
	x := u.states[s]
	if u.Exciter != nil {
		u.Exciter.Clamp(u.exciterState(x))
	}
	if u.Governor != nil {
		u.Governor.Clamp(u.governorState(x))
	}
}
