package device

import (
	"math/cmplx"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var systemBase = Base{SBASE: 100, MBASE: 100, FBASE: 60}

func genParam(model string, params map[string]float64) ModelParam {
	return ModelParam{Type: model, Kind: GEN, Bus: 1, ID: "1", Params: params}
}

func TestRegistry(t *testing.T) {
	_, err := NewMachine(genParam("GENROU", map[string]float64{"H": 3}), systemBase)
	assert.ErrorIs(t, err, ErrUnsupportedModel)

	_, err = NewMachine(genParam("GENXYZ", nil), systemBase)
	assert.ErrorIs(t, err, ErrUnknownModel)

	_, err = NewMachine(genParam("GENCLS", map[string]float64{"D": 0}), systemBase)
	assert.ErrorIs(t, err, ErrParameter)

	_, err = NewMachine(genParam("GENCLS", map[string]float64{"H": 3}), systemBase)
	assert.ErrorIs(t, err, ErrParameter, "no reactance given")

	_, err = NewExciter(ModelParam{Type: "ESST1A", Kind: AVR, Bus: 1, ID: "1"})
	assert.ErrorIs(t, err, ErrUnknownModel)

	_, err = NewGovernor(ModelParam{Type: "HYGOV", Kind: GOV, Bus: 1, ID: "1"}, systemBase)
	assert.ErrorIs(t, err, ErrUnknownModel)

	m, err := NewMachine(genParam("GENCLS", map[string]float64{"H": 3, "ZX": 0.2}), systemBase)
	require.NoError(t, err)
	assert.Equal(t, "GENCLS", m.Model())

	for model, want := range map[string]Kind{"GENCLS": GEN, "GENSAL": GEN, "SEXS": AVR, "IEEEG3": GOV} {
		kind, ok := KindOf(model)
		assert.True(t, ok, model)
		assert.Equal(t, want, kind, model)
	}
	_, ok := KindOf("PSS2A")
	assert.False(t, ok)
}

func TestRequireNamesMissing(t *testing.T) {
	p := genParam("GENTRA", map[string]float64{"H": 3})
	err := p.Require("XD", "H", "TD0P")
	require.ErrorIs(t, err, ErrParameter)
	assert.Contains(t, err.Error(), "[TD0P XD]")
	assert.Equal(t, "GENTRA 1/1", p.Name())
}

func TestGENCLSMachineBase(t *testing.T) {
	base := Base{SBASE: 100, MBASE: 200, FBASE: 50}
	m, err := NewMachine(genParam("GENCLS", map[string]float64{"H": 3, "D": 2, "XDP": 0.2}), base)
	require.NoError(t, err)

	g := m.(*GENCLS)
	assert.InDelta(t, 0.1, g.Xdp, 1e-15)
	assert.InDelta(t, 12.0, g.Tj, 1e-15)
	assert.InDelta(t, 4.0, g.D, 1e-15)
	assert.InDelta(t, 100*3.141592653589793, g.Wb, 1e-9)
}

func TestMachineSteadyState(t *testing.T) {
	vt := cmplx.Rect(1.025, 0.16)
	it := cmplx.Conj(complex(1.63, 0.067)) / cmplx.Conj(vt)

	cls, err := NewGENCLS(genParam("GENCLS", map[string]float64{"H": 6.4, "XDP": 0.1198}), systemBase)
	require.NoError(t, err)
	tra, err := NewGENTRA(genParam("GENTRA", map[string]float64{
		"TD0P": 6.0, "H": 6.4, "D": 0, "XD": 0.8958, "XQ": 0.8645, "XDP": 0.1198,
	}), systemBase)
	require.NoError(t, err)

	for _, m := range []Machine{cls, tra} {
		t.Run(m.Model(), func(t *testing.T) {
			x := make([]float64, len(m.StateNames()))
			m.Init(x, vt, it)

			// The stator equation seen by the network returns the power-flow current.
			got := m.InternalAdmittance()*(m.EMF(x)-vt) + m.SaliencyCurrent(x, vt)
			assert.InDelta(t, real(it), real(got), 1e-12)
			assert.InDelta(t, imag(it), imag(got), 1e-12)

			sig := Signals{Vt: vt, It: it, Pe: real(vt * cmplx.Conj(it))}
			efd := 0.0
			if fd, ok := m.(FieldDriven); ok {
				efd = fd.FieldVoltage(x, sig)
			}

			dx := make([]float64, len(x))
			m.Derivative(dx, x, sig, sig.Pe, efd)
			for k, v := range dx {
				assert.InDelta(t, 0, v, 1e-12, m.StateNames()[k])
			}
			assert.Equal(t, 1.0, m.Speed(x))
		})
	}
}

func TestGENTRAFieldVoltage(t *testing.T) {
	tra, err := NewGENTRA(genParam("GENTRA", map[string]float64{
		"TD0P": 8.96, "H": 23.64, "XD": 0.146, "XQ": 0.0969, "XDP": 0.0608,
	}), systemBase)
	require.NoError(t, err)

	vt := complex(1.04, 0)
	it := cmplx.Conj(complex(0.716, 0.27)) / cmplx.Conj(vt)
	x := make([]float64, 3)
	tra.Init(x, vt, it)

	sig := Signals{Vt: vt, It: it}
	efd := tra.FieldVoltage(x, sig)
	assert.Greater(t, efd, x[2], "field voltage exceeds E'q under lagging load")

	// more field voltage raises E'q
	dx := make([]float64, 3)
	tra.Derivative(dx, x, sig, 0, efd+0.1)
	assert.InDelta(t, 0.1/8.96, dx[2], 1e-12)
}

func sexsParam(emax float64) ModelParam {
	return ModelParam{Type: "SEXS", Kind: AVR, Bus: 1, ID: "1", Params: map[string]float64{
		"TA/TB": 0.1, "TB": 10, "K": 100, "TE": 0.05, "EMIN": 0.5, "EMAX": emax,
	}}
}

func TestSEXSInit(t *testing.T) {
	e, err := NewSEXS(sexsParam(4))
	require.NoError(t, err)
	assert.InDelta(t, 1.0, e.TA, 1e-15)

	x := make([]float64, 2)
	require.NoError(t, e.Init(x, complex(1.02, 0), 1.8))
	assert.InDelta(t, 1.038, e.Vref, 1e-12)
	assert.Equal(t, 1.8, e.FieldVoltage(x))

	dx := make([]float64, 2)
	e.Derivative(dx, x, complex(1.02, 0))
	assert.InDelta(t, 0, dx[0], 1e-10)
	assert.InDelta(t, 0, dx[1], 1e-10)

	_, err = NewSEXS(ModelParam{Type: "SEXS", Params: map[string]float64{
		"TA/TB": 0.1, "TB": 10, "K": 100, "TE": 0.05, "EMIN": 2, "EMAX": 1,
	}})
	assert.ErrorIs(t, err, ErrParameter)
}

func TestSEXSInitOutsideLimits(t *testing.T) {
	e, err := NewSEXS(sexsParam(1.5))
	require.NoError(t, err)

	x := make([]float64, 2)
	err = e.Init(x, complex(1.0, 0), 1.8)
	require.ErrorIs(t, err, ErrSetpoint)

	var se *SetpointError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "SEXS", se.Model)
	assert.Equal(t, 1.8, se.Value)
	assert.Equal(t, "SEXS 1/1 EFD 1.8 outside [0.5, 1.5]", err.Error())

	// starts at the ceiling
	assert.Equal(t, 1.5, e.FieldVoltage(x))

	err = e.Init(x, complex(1.0, 0), 0.2)
	assert.ErrorIs(t, err, ErrSetpoint)
	assert.Equal(t, 0.5, e.FieldVoltage(x))
}

// A sustained voltage dip drives the field voltage into its ceiling, where it
// must stay through every predictor and corrector phase.
func TestSEXSCeiling(t *testing.T) {
	e, err := NewSEXS(sexsParam(1.5))
	require.NoError(t, err)

	const h = 0.001
	cur := make([]float64, 2)
	pred := make([]float64, 2)
	f0 := make([]float64, 2)
	f1 := make([]float64, 2)

	e.Init(cur, complex(1.0, 0), 1.4)
	vt := complex(0.8, 0)
	pinned := 0
	for step := 0; step < 600; step++ {
		e.Derivative(f0, cur, vt)
		for k := range cur {
			pred[k] = cur[k] + h*f0[k]
		}
		e.Clamp(pred)
		require.LessOrEqual(t, pred[1], 1.5)

		e.Derivative(f1, pred, vt)
		for k := range cur {
			cur[k] += 0.5 * h * (f0[k] + f1[k])
		}
		e.Clamp(cur)
		require.LessOrEqual(t, cur[1], 1.5)

		if cur[1] == 1.5 {
			pinned++
		} else {
			require.Zero(t, pinned, "left the ceiling at step %d", step)
		}
	}
	assert.GreaterOrEqual(t, pinned, 500)
	assert.Equal(t, 1.5, e.FieldVoltage(cur))

	// at the ceiling a further push is held
	dx := make([]float64, 2)
	e.Derivative(dx, cur, vt)
	assert.Equal(t, 0.0, dx[1])
}

func TestIEEEG1(t *testing.T) {
	p := ModelParam{Type: "IEEEG1", Kind: GOV, Bus: 1, ID: "1", Params: map[string]float64{
		"K": 20, "T3": 0.1, "UO": 0.1, "UC": -0.2, "PMAX": 1.0, "PMIN": 0,
		"T4": 0.3, "K1": 0.3, "T5": 7.0, "K3": 0.7,
	}}
	base := Base{SBASE: 100, MBASE: 200, FBASE: 60}
	g, err := NewIEEEG1(p, base)
	require.NoError(t, err)

	x := make([]float64, 3)
	require.NoError(t, g.Init(x, 1.6))
	assert.InDelta(t, 0.8, g.P0, 1e-12)
	assert.InDelta(t, 1.6, g.MechanicalPower(x), 1e-12)

	dx := make([]float64, 3)
	g.Derivative(dx, x, 1.0)
	assert.Equal(t, []float64{0, 0, 0}, dx)

	// underspeed opens the valve at the rate limit
	g.Derivative(dx, x, 0.9)
	assert.Equal(t, 0.1, dx[0])

	// overspeed closes it at the closing limit
	g.Derivative(dx, x, 1.1)
	assert.Equal(t, -0.2, dx[0])

	// a valve at PMAX does not open further
	x[0] = 1.0
	g.Derivative(dx, x, 0.9)
	assert.Equal(t, 0.0, dx[0])

	x[0] = 1.3
	g.Clamp(x)
	assert.Equal(t, 1.0, x[0])

	err = g.Init(x, 2.4)
	var se *SetpointError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "IEEEG1", se.Model)
	assert.Equal(t, "valve", se.Quantity)
	assert.InDelta(t, 1.2, se.Value, 1e-12)
}

func TestIEEEG3(t *testing.T) {
	p := ModelParam{Type: "IEEEG3", Kind: GOV, Bus: 1, ID: "1", Params: map[string]float64{
		"TG": 0.05, "TP": 0.04, "UO": 0.1, "UC": -0.1, "PMAX": 1.0, "PMIN": 0,
		"SIGMA": 0.04, "DELTA": 0.3, "TR": 5, "TW": 1.0,
		"A11": 0.5, "A13": 1.0, "A21": 1.5, "A23": 1.0,
	}}
	g, err := NewIEEEG3(p, systemBase)
	require.NoError(t, err)

	x := make([]float64, 4)
	require.NoError(t, g.Init(x, 0.5))
	assert.InDelta(t, 0.5, g.MechanicalPower(x), 1e-12)
	assert.InDelta(t, 0.02, g.P0, 1e-15)

	dx := make([]float64, 4)
	g.Derivative(dx, x, 1.0)
	for k, v := range dx {
		assert.InDelta(t, 0, v, 1e-12, g.StateNames()[k])
	}

	// overspeed starts closing the gate
	g.Derivative(dx, x, 1.01)
	assert.Less(t, dx[0], 0.0)

	x[0] = 0.5
	g.Clamp(x)
	assert.Equal(t, 0.1, x[0])

	err = g.Init(make([]float64, 4), 1.2)
	assert.ErrorIs(t, err, ErrSetpoint)

	p.Params["A23"] = 0
	_, err = NewIEEEG3(p, systemBase)
	assert.ErrorIs(t, err, ErrParameter)
}

func TestUnitLayout(t *testing.T) {
	m, err := NewGENTRA(genParam("GENTRA", map[string]float64{
		"TD0P": 6, "H": 6.4, "XD": 0.8958, "XQ": 0.8645, "XDP": 0.1198,
	}), systemBase)
	require.NoError(t, err)
	e, err := NewSEXS(sexsParam(4))
	require.NoError(t, err)

	u, err := NewUnit(2, "1", systemBase, m, e, nil)
	require.NoError(t, err)
	assert.Equal(t, 5, u.NumStates())
	assert.Equal(t, []string{"delta", "omega", "eqp", "xll", "efd"}, u.StateNames())
	assert.Equal(t, "2/1", u.Name())

	u.P, u.Q = 163, 6.7
	vt := cmplx.Rect(1.025, 0.16)
	u.Init(vt)
	require.NoError(t, u.Settle())

	assert.InDelta(t, 163.0/100, u.MechanicalPower(Current), 1e-12)
	assert.Equal(t, u.State(Current), u.State(Predicted))

	dx := make([]float64, u.NumStates())
	u.Derivative(dx, Current)
	for k, v := range dx {
		assert.InDelta(t, 0, v, 1e-10, u.StateNames()[k])
	}

	_, err = NewUnit(1, "1", systemBase, nil, nil, nil)
	assert.Error(t, err)
}

func TestUnitSettleReportsLimits(t *testing.T) {
	m, err := NewGENCLS(genParam("GENCLS", map[string]float64{"H": 6.4, "ZX": 0.1198}), systemBase)
	require.NoError(t, err)
	g, err := NewIEEEG1(ModelParam{Type: "IEEEG1", Kind: GOV, Bus: 1, ID: "1", Params: map[string]float64{
		"K": 20, "T3": 0.1, "UO": 0.1, "UC": -0.2, "PMAX": 1.0, "PMIN": 0,
		"T4": 0.3, "K1": 0.3, "T5": 7.0, "K3": 0.7,
	}}, systemBase)
	require.NoError(t, err)

	u, err := NewUnit(1, "1", systemBase, m, nil, g)
	require.NoError(t, err)
	u.P, u.Q = 163, 6.7
	u.Init(cmplx.Rect(1.025, 0.16))

	err = u.Settle()
	var se *SetpointError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "IEEEG1", se.Model)
	assert.InDelta(t, 1.63, se.Value, 1e-12)
	assert.Equal(t, u.State(Current), u.State(Predicted))
}
