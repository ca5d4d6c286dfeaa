package device

import (
	"fmt"
	"math/cmplx"

	"github.com/edp1096/toy-stability/pkg/util"
)

// SEXS is the simplified excitation system: lead-lag, then a limited first order gain.
type SEXS struct {
	Name string
	TA   float64 // Lead time constant (s)
	TB   float64 // Lag time constant (s)
	K    float64 // Gain
	TE   float64 // Exciter time constant (s)
	EMIN float64 // Field voltage limits (p.u.)
	EMAX float64

	Vref float64 // Set at Init
}

var _ Exciter = (*SEXS)(nil)

func NewSEXS(p ModelParam) (*SEXS, error) {
	if err := p.Require("TA/TB", "TB", "K", "TE", "EMIN", "EMAX"); err != nil {
		return nil, err
	}

	e := &SEXS{
		Name: p.Name(),
		TA:   p.Get("TA/TB") * p.Get("TB"),
		TB:   p.Get("TB"),
		K:    p.Get("K"),
		TE:   p.Get("TE"),
		EMIN: p.Get("EMIN"),
		EMAX: p.Get("EMAX"),
	}

	switch {
	case e.K <= 0:
		return nil, fmt.Errorf("%w: %s K must be positive", ErrParameter, e.Name)
	case e.TE <= 0:
		return nil, fmt.Errorf("%w: %s TE must be positive", ErrParameter, e.Name)
	case e.TB < 0:
		return nil, fmt.Errorf("%w: %s TB must not be negative", ErrParameter, e.Name)
	case e.EMIN > e.EMAX:
		return nil, fmt.Errorf("%w: %s EMIN above EMAX", ErrParameter, e.Name)
	}
	return e, nil
}

func (e *SEXS) Model() string { return "SEXS" }

// States: lead-lag lag state, field voltage.
func (e *SEXS) StateNames() []string { return []string{"xll", "efd"} }

func (e *SEXS) Init(x []float64, vt complex128, efd float64) error {
	err := checkSetpoint(e.Model(), e.Name, "EFD", efd, e.EMIN, e.EMAX)
	efd = util.Clamp(efd, e.EMIN, e.EMAX)
	u := efd / e.K
	e.Vref = cmplx.Abs(vt) + u
	x[0] = u
	x[1] = efd
	return err
}

func (e *SEXS) leadLag(x []float64, u float64) (y, dx float64) {
	if e.TB == 0 {
		return u, 0
	}
	ratio := e.TA / e.TB
	return ratio*u + (1-ratio)*x[0], (u - x[0]) / e.TB
}

func (e *SEXS) Derivative(dx, x []float64, vt complex128) {
	u := e.Vref - cmplx.Abs(vt)
	y, dll := e.leadLag(x, u)

	dx[0] = dll
	dx[1] = util.HoldAtLimit(x[1], (e.K*y-x[1])/e.TE, e.EMIN, e.EMAX)
}

func (e *SEXS) Clamp(x []float64) {
	x[1] = util.Clamp(x[1], e.EMIN, e.EMAX)
}

func (e *SEXS) FieldVoltage(x []float64) float64 { return x[1] }
