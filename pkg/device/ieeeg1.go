package device

import (
	"fmt"

	"github.com/edp1096/toy-stability/pkg/util"
)

// IEEEG1 is the IEEE type 1 steam turbine governor reduced to its valve servo
// and two reheat lags. Quantities are on machine base.
type IEEEG1 struct {
	Name string
	K    float64 // Gain (1/droop)
	T3   float64 // Servo time constant (s)
	UO   float64 // Valve opening rate limit (p.u./s)
	UC   float64 // Valve closing rate limit (p.u./s), negative
	PMAX float64
	PMIN float64
	T4   float64 // Inlet volume time constant (s)
	T5   float64 // Reheater time constant (s)
	K1   float64 // Power fractions
	K3   float64

	P0    float64 // Load reference, set at Init
	scale float64 // MBASE/SBASE
}

var _ Governor = (*IEEEG1)(nil)

func NewIEEEG1(p ModelParam, base Base) (*IEEEG1, error) {
	if err := p.Require("K", "T3", "UO", "UC", "PMAX", "PMIN", "T4", "K1", "T5", "K3"); err != nil {
		return nil, err
	}

	g := &IEEEG1{
		Name:  p.Name(),
		K:     p.Get("K"),
		T3:    p.Get("T3"),
		UO:    p.Get("UO"),
		UC:    p.Get("UC"),
		PMAX:  p.Get("PMAX"),
		PMIN:  p.Get("PMIN"),
		T4:    p.Get("T4"),
		T5:    p.Get("T5"),
		K1:    p.Get("K1"),
		K3:    p.Get("K3"),
		scale: base.MBASE / base.SBASE,
	}

	switch {
	case g.T3 <= 0 || g.T4 <= 0:
		return nil, fmt.Errorf("%w: %s T3 and T4 must be positive", ErrParameter, g.Name)
	case g.T5 < 0:
		return nil, fmt.Errorf("%w: %s T5 must not be negative", ErrParameter, g.Name)
	case g.K1+g.K3 == 0:
		return nil, fmt.Errorf("%w: %s K1+K3 is zero", ErrParameter, g.Name)
	case g.PMIN > g.PMAX || g.UC > g.UO:
		return nil, fmt.Errorf("%w: %s inverted limits", ErrParameter, g.Name)
	}
	return g, nil
}

func (g *IEEEG1) Model() string { return "IEEEG1" }

// States: valve position, inlet steam, reheater output.
func (g *IEEEG1) StateNames() []string { return []string{"x1", "x2", "x3"} }

func (g *IEEEG1) Init(x []float64, pm float64) error {
	v := pm / g.scale / (g.K1 + g.K3)
	x[0], x[1], x[2] = v, v, v
	g.P0 = v
	return checkSetpoint(g.Model(), g.Name, "valve", v, g.PMIN, g.PMAX)
}

func (g *IEEEG1) Derivative(dx, x []float64, speed float64) {
	dx1 := util.Clamp((g.P0-g.K*(speed-1)-x[0])/g.T3, g.UC, g.UO)
	dx[0] = util.HoldAtLimit(x[0], dx1, g.PMIN, g.PMAX)
	dx[1] = (x[0] - x[1]) / g.T4
	if g.T5 > 0 {
		dx[2] = (x[1] - x[2]) / g.T5
	} else {
		dx[2] = dx[1]
	}
}

func (g *IEEEG1) Clamp(x []float64) {
	x[0] = util.Clamp(x[0], g.PMIN, g.PMAX)
}

func (g *IEEEG1) MechanicalPower(x []float64) float64 {
	return (g.K1*x[1] + g.K3*x[2]) * g.scale
}
