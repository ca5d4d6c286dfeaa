package device

import (
	"fmt"
	"math"
	"math/cmplx"
)

// GENTRA is the one-axis machine: classical swing plus E'q driven by field voltage.
type GENTRA struct {
	Name string
	Td0p float64 // d-axis open circuit transient time constant (s)
	H    float64 // Inertia constant (s), machine base
	D    float64 // Damping, system base
	Xd   float64 // System base reactances
	Xq   float64
	Xdp  float64
	Tj   float64
	Wb   float64
}

var (
	_ Machine     = (*GENTRA)(nil)
	_ FieldDriven = (*GENTRA)(nil)
)

func NewGENTRA(p ModelParam, base Base) (*GENTRA, error) {
	if err := p.Require("TD0P", "H", "XD", "XQ", "XDP"); err != nil {
		return nil, err
	}
	for _, name := range []string{"TD0P", "H", "XD", "XQ", "XDP"} {
		if p.Get(name) <= 0 {
			return nil, fmt.Errorf("%w: %s %s must be positive", ErrParameter, p.Name(), name)
		}
	}

	scale := base.MBASE / base.SBASE
	return &GENTRA{
		Name: p.Name(),
		Td0p: p.Get("TD0P"),
		H:    p.Get("H"),
		D:    p.Get("D") * scale,
		Xd:   base.ToSystem(p.Get("XD")),
		Xq:   base.ToSystem(p.Get("XQ")),
		Xdp:  base.ToSystem(p.Get("XDP")),
		Tj:   2 * p.Get("H") * scale,
		Wb:   2 * math.Pi * base.FBASE,
	}, nil
}

func (g *GENTRA) Model() string { return "GENTRA" }

// States: rotor angle, speed, q-axis transient EMF.
func (g *GENTRA) StateNames() []string { return []string{"delta", "omega", "eqp"} }

func (g *GENTRA) Init(x []float64, vt, it complex128) {
	eq := vt + complex(0, g.Xq)*it
	delta := cmplx.Phase(eq)
	id, _ := toDQ(it, delta)
	_, vq := toDQ(vt, delta)

	x[0] = delta
	x[1] = 1.0
	x[2] = vq + g.Xdp*id
}

func (g *GENTRA) Derivative(dx, x []float64, sig Signals, pm, efd float64) {
	slip := x[1] - 1.0
	id, _ := toDQ(sig.It, x[0])

	dx[0] = g.Wb * slip
	dx[1] = (pm - sig.Pe - g.D*slip) / g.Tj
	dx[2] = (efd - x[2] - (g.Xd-g.Xdp)*id) / g.Td0p
}

func (g *GENTRA) FieldVoltage(x []float64, sig Signals) float64 {
	id, _ := toDQ(sig.It, x[0])
	return x[2] + (g.Xd-g.Xdp)*id
}

func (g *GENTRA) EMF(x []float64) complex128 {
	return fromDQ(0, x[2], x[0])
}

func (g *GENTRA) InternalAdmittance() complex128 {
	return complex(0, -0.5*(g.Xdp+g.Xq)/(g.Xdp*g.Xq))
}

// SaliencyCurrent is the part of the stator current that depends on the
// difference between Xq and X'd.
func (g *GENTRA) SaliencyCurrent(x []float64, vt complex128) complex128 {
	k := complex(0, 0.5*(g.Xdp-g.Xq)/(g.Xdp*g.Xq))
	return k * (cmplx.Conj(g.EMF(x)) - cmplx.Conj(vt)) * cmplx.Rect(1, 2*x[0])
}

func (g *GENTRA) Angle(x []float64) float64 { return x[0] }

func (g *GENTRA) Speed(x []float64) float64 { return x[1] }
