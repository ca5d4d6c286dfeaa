package device

import (
	"fmt"

	"github.com/edp1096/toy-stability/pkg/util"
)

// IEEEG3 is the IEEE type 3 hydro governor with a linearised water column.
// Quantities are on machine base.
type IEEEG3 struct {
	Name  string
	TG    float64 // Gate servomotor time constant (s)
	TP    float64 // Pilot valve time constant (s)
	UO    float64 // Gate opening velocity limit (p.u./s)
	UC    float64 // Gate closing velocity limit (p.u./s), negative
	PMAX  float64 // Gate position limits
	PMIN  float64
	Sigma float64 // Permanent droop
	Delta float64 // Transient droop
	TR    float64 // Dashpot reset time (s)
	TW    float64 // Water starting time (s)
	A11   float64 // Turbine coefficients
	A13   float64
	A21   float64
	A23   float64

	P0    float64 // Load reference, set at Init
	scale float64
}

var _ Governor = (*IEEEG3)(nil)

func NewIEEEG3(p ModelParam, base Base) (*IEEEG3, error) {
	if err := p.Require("TG", "TP", "UO", "UC", "PMAX", "PMIN", "SIGMA", "DELTA", "TR", "TW", "A11", "A13", "A21", "A23"); err != nil {
		return nil, err
	}

	g := &IEEEG3{
		Name:  p.Name(),
		TG:    p.Get("TG"),
		TP:    p.Get("TP"),
		UO:    p.Get("UO"),
		UC:    p.Get("UC"),
		PMAX:  p.Get("PMAX"),
		PMIN:  p.Get("PMIN"),
		Sigma: p.Get("SIGMA"),
		Delta: p.Get("DELTA"),
		TR:    p.Get("TR"),
		TW:    p.Get("TW"),
		A11:   p.Get("A11"),
		A13:   p.Get("A13"),
		A21:   p.Get("A21"),
		A23:   p.Get("A23"),
		scale: base.MBASE / base.SBASE,
	}

	switch {
	case g.TG <= 0 || g.TP <= 0:
		return nil, fmt.Errorf("%w: %s TG and TP must be positive", ErrParameter, g.Name)
	case g.A11 <= 0 || g.A23 <= 0:
		return nil, fmt.Errorf("%w: %s A11 and A23 must be positive", ErrParameter, g.Name)
	case g.TR < 0 || g.TW < 0:
		return nil, fmt.Errorf("%w: %s TR and TW must not be negative", ErrParameter, g.Name)
	case g.PMIN > g.PMAX || g.UC > g.UO:
		return nil, fmt.Errorf("%w: %s inverted limits", ErrParameter, g.Name)
	}
	return g, nil
}

func (g *IEEEG3) Model() string { return "IEEEG3" }

// States: gate velocity, gate position, dashpot lag, water column.
func (g *IEEEG3) StateNames() []string { return []string{"x1", "x2", "x3", "x4"} }

// coupling is the water column term a13·a21/a11.
func (g *IEEEG3) coupling() float64 {
	return g.A13 * g.A21 / g.A11
}

func (g *IEEEG3) Init(x []float64, pm float64) error {
	gate := pm / g.scale / g.A23
	x[0] = 0
	x[1] = gate
	x[2] = gate
	x[3] = g.coupling() * gate
	g.P0 = g.Sigma * gate
	return checkSetpoint(g.Model(), g.Name, "gate", gate, g.PMIN, g.PMAX)
}

func (g *IEEEG3) Derivative(dx, x []float64, speed float64) {
	transient := 0.0
	if g.TR > 0 {
		transient = g.Delta * (x[1] - x[2])
	}
	e := g.P0 - (speed - 1) - g.Sigma*x[1] - transient

	dx[0] = util.HoldAtLimit(x[0], (e/g.TG-x[0])/g.TP, g.UC, g.UO)
	dx[1] = util.HoldAtLimit(x[1], x[0], g.PMIN, g.PMAX)
	if g.TR > 0 {
		dx[2] = (x[1] - x[2]) / g.TR
	} else {
		dx[2] = dx[1]
	}
	if g.TW > 0 {
		dx[3] = (g.coupling()*x[1] - x[3]) / (g.A11 * g.TW)
	} else {
		dx[3] = g.coupling() * dx[1]
	}
}

func (g *IEEEG3) Clamp(x []float64) {
	x[0] = util.Clamp(x[0], g.UC, g.UO)
	x[1] = util.Clamp(x[1], g.PMIN, g.PMAX)
}

func (g *IEEEG3) MechanicalPower(x []float64) float64 {
	return (g.A23*x[1] - g.coupling()*x[1] + x[3]) * g.scale
}
