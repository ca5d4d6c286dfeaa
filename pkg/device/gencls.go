package device

import (
	"fmt"
	"math"
	"math/cmplx"
)

// GENCLS is the classical machine: constant EMF behind transient reactance.
type GENCLS struct {
	Name string
	H    float64 // Inertia constant (s), machine base
	D    float64 // Damping (p.u.), machine base
	Xdp  float64 // Transient reactance, system base
	Tj   float64 // 2H on system base
	Wb   float64 // Base angular frequency (rad/s)

	emag float64 // |E| fixed at Init
}

var _ Machine = (*GENCLS)(nil)

func NewGENCLS(p ModelParam, base Base) (*GENCLS, error) {
	if err := p.Require("H"); err != nil {
		return nil, err
	}

	xdp := p.Get("XDP")
	if xdp <= 0 {
		// PSS/E takes the reactance of GENCLS from the source impedance, which
		// the case carries as ZX on machine base.
		xdp = p.Get("ZX")
	}
	if xdp <= 0 {
		return nil, fmt.Errorf("%w: %s needs a positive transient reactance", ErrParameter, p.Name())
	}
	if p.Get("H") <= 0 {
		return nil, fmt.Errorf("%w: %s H must be positive", ErrParameter, p.Name())
	}

	scale := base.MBASE / base.SBASE
	return &GENCLS{
		Name: p.Name(),
		H:    p.Get("H"),
		D:    p.Get("D") * scale,
		Xdp:  base.ToSystem(xdp),
		Tj:   2 * p.Get("H") * scale,
		Wb:   2 * math.Pi * base.FBASE,
	}, nil
}

func (g *GENCLS) Model() string { return "GENCLS" }

func (g *GENCLS) StateNames() []string { return []string{"delta", "omega"} }

func (g *GENCLS) Init(x []float64, vt, it complex128) {
	e := vt + complex(0, g.Xdp)*it
	g.emag = cmplx.Abs(e)
	x[0] = cmplx.Phase(e)
	x[1] = 1.0
}

func (g *GENCLS) Derivative(dx, x []float64, sig Signals, pm, efd float64) {
	slip := x[1] - 1.0
	dx[0] = g.Wb * slip
	dx[1] = (pm - sig.Pe - g.D*slip) / g.Tj
}

func (g *GENCLS) EMF(x []float64) complex128 {
	return cmplx.Rect(g.emag, x[0])
}

func (g *GENCLS) InternalAdmittance() complex128 {
	return 1 / complex(0, g.Xdp)
}

func (g *GENCLS) SaliencyCurrent(x []float64, vt complex128) complex128 { return 0 }

func (g *GENCLS) Angle(x []float64) float64 { return x[0] }

func (g *GENCLS) Speed(x []float64) float64 { return x[1] }

// EMFMagnitude is the constant internal voltage fixed at Init.
func (g *GENCLS) EMFMagnitude() float64 { return g.emag }
