package network

import (
	"math/cmplx"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edp1096/toy-stability/pkg/device"
	"github.com/edp1096/toy-stability/pkg/matrix"
	"github.com/edp1096/toy-stability/pkg/netlist"
)

const threeBus = `
name: three bus
buses:
  - {number: 10, vm: 1.04, va: 0}
  - {number: 20, vm: 1.01, va: -3, bs: 20}
  - {number: 30, vm: 1.00, va: -5}
branches:
  - {from: 10, to: 20, r: 0.01, x: 0.1, b: 0.02}
  - {from: 20, to: 30, r: 0.02, x: 0.2, b: 0.04}
  - {from: 10, to: 30, r: 0.0, x: 0.25, tap: 1.05}
loads:
  - {bus: 30, p: 80, q: 30}
generators:
  - {bus: 10, p: 80, q: 25, zx: 0.2}
`

func loadCase(t *testing.T) *netlist.Case {
	t.Helper()
	c, err := netlist.LoadCase(strings.NewReader(threeBus))
	require.NoError(t, err)
	return c
}

func newUnits(t *testing.T, c *netlist.Case) []*device.Unit {
	t.Helper()

	var units []*device.Unit
	for _, g := range c.Generators {
		base := device.Base{SBASE: c.SBASE, MBASE: g.MBASE, FBASE: c.FBASE}
		m, err := device.NewGENCLS(device.ModelParam{
			Type: "GENCLS", Bus: g.Bus, ID: g.ID,
			Params: map[string]float64{"H": 5, "ZX": g.ZX},
		}, base)
		require.NoError(t, err)

		u, err := device.NewUnit(g.Bus, g.ID, base, m, nil, nil)
		require.NoError(t, err)
		u.P, u.Q = g.P, g.Q
		units = append(units, u)
	}
	return units
}

func newNetwork(t *testing.T, opts ...Option) *Network {
	t.Helper()

	c := loadCase(t)
	units := newUnits(t, c)
	n, err := New(c, units, opts...)
	require.NoError(t, err)
	t.Cleanup(n.Y.Destroy)

	for _, u := range units {
		bus, err := n.Bus(u.Bus)
		require.NoError(t, err)
		u.Init(bus.V[device.Current])
	}
	return n
}

func assertComplex(t *testing.T, want, got complex128, msg string) {
	t.Helper()
	assert.InDelta(t, real(want), real(got), 1e-12, msg)
	assert.InDelta(t, imag(want), imag(got), 1e-12, msg)
}

func TestStampBranch(t *testing.T) {
	s := StampBranch(netlist.Branch{R: 0.01, X: 0.1, B: 0.02, BI: 0.1, BJ: -0.05, Tap: 1})
	ys := 1 / complex(0.01, 0.1)
	assertComplex(t, ys+complex(0, 0.01+0.1), s.Yii, "Yii")
	assertComplex(t, ys+complex(0, 0.01-0.05), s.Yjj, "Yjj")
	assertComplex(t, -ys, s.Yij, "Yij")

	s = StampBranch(netlist.Branch{X: 0.25, Tap: 1.05})
	ys = complex(0, -4)
	assertComplex(t, ys/complex(1.05*1.05, 0), s.Yii, "tapped Yii")
	assertComplex(t, ys, s.Yjj, "tapped Yjj")
	assertComplex(t, -ys/complex(1.05, 0), s.Yij, "tapped Yij")
}

func TestBuildBasicY(t *testing.T) {
	c := loadCase(t)
	index := map[int]int{10: 1, 20: 2, 30: 3}

	y, err := matrix.NewYMatrix(3)
	require.NoError(t, err)
	defer y.Destroy()
	require.NoError(t, BuildBasicY(c, index, y))

	y12 := 1 / complex(0.01, 0.1)
	y23 := 1 / complex(0.02, 0.2)
	y13 := complex(0, -4)

	assertComplex(t, y12+complex(0, 0.01)+y13/complex(1.05*1.05, 0), y.At(1, 1), "Y11")
	assertComplex(t, y12+y23+complex(0, 0.01+0.02+0.2), y.At(2, 2), "Y22")
	assertComplex(t, y23+complex(0, 0.02)+y13, y.At(3, 3), "Y33")
	assertComplex(t, -y12, y.At(1, 2), "Y12")
	assertComplex(t, -y12, y.At(2, 1), "Y21")
	assertComplex(t, -y13/complex(1.05, 0), y.At(3, 1), "Y31")

	delete(index, 30)
	y2, err := matrix.NewYMatrix(3)
	require.NoError(t, err)
	defer y2.Destroy()
	assert.ErrorIs(t, BuildBasicY(c, index, y2), ErrUnknownBus)
}

func TestNewFoldsLoadsAndMachines(t *testing.T) {
	n := newNetwork(t)

	bus30, err := n.Bus(30)
	require.NoError(t, err)
	assert.Equal(t, 3, bus30.Index)
	assert.Equal(t, 1, n.Units[0].Index)

	basic, err := matrix.NewYMatrix(3)
	require.NoError(t, err)
	defer basic.Destroy()
	require.NoError(t, BuildBasicY(n.Case, map[int]int{10: 1, 20: 2, 30: 3}, basic))

	load := complex(0.8, -0.3) / complex(1.0*1.0, 0)
	assertComplex(t, basic.At(3, 3)+load, n.Y.At(3, 3), "load admittance")
	assertComplex(t, basic.At(1, 1)+1/complex(0, 0.2), n.Y.At(1, 1), "machine admittance")
	assertComplex(t, basic.At(2, 2), n.Y.At(2, 2), "plain bus")

	_, err = n.Bus(99)
	assert.ErrorIs(t, err, ErrUnknownBus)
}

func TestSolveClassical(t *testing.T) {
	n := newNetwork(t)

	report, err := n.Solve(device.Current)
	require.NoError(t, err)
	assert.True(t, report.Converged)
	assert.Equal(t, 2, report.Iterations)
	assert.Less(t, report.Residual, 1e-12)

	// Y·V equals the machine injection at every bus
	u := n.Units[0]
	for i := 1; i <= 3; i++ {
		var sum complex128
		for _, bus := range n.Buses {
			sum += n.Y.At(i, bus.Index) * bus.V[device.Current]
		}
		var want complex128
		if i == u.Index {
			want = u.Machine.InternalAdmittance() * u.EMF(device.Current)
		}
		assertComplex(t, want, sum, "injection")
	}

	sig := u.Signals(device.Current)
	bus10, _ := n.Bus(10)
	assert.Equal(t, bus10.V[device.Current], sig.Vt)
	assert.InDelta(t, real(sig.Vt*cmplx.Conj(sig.It)), sig.Pe, 1e-15)

	// the predicted slot is left alone
	bus20, _ := n.Bus(20)
	v, err := n.Voltage(20, device.Predicted)
	require.NoError(t, err)
	assert.Equal(t, cmplx.Rect(bus20.Vm0, bus20.Va0), v)
}

func TestSolveIterationCap(t *testing.T) {
	n := newNetwork(t, WithMaxIterations(1))

	report, err := n.Solve(device.Current)
	require.NoError(t, err)
	assert.False(t, report.Converged)
	assert.Equal(t, 1, report.Iterations)
	assert.Greater(t, report.Residual, 1e-12)
}

func TestFaultPairRestoresMatrix(t *testing.T) {
	n := newNetwork(t)
	_, err := n.Solve(device.Current)
	require.NoError(t, err)

	before := n.Y.Dense()
	rev := n.Revision()

	fault := complex(0, -1e6)
	require.NoError(t, n.ApplyFault(20, fault))
	assert.NotEqual(t, rev, n.Revision())

	_, err = n.Solve(device.Current)
	require.NoError(t, err)
	v, _ := n.Voltage(20, device.Current)
	assert.Less(t, cmplx.Abs(v), 1e-4)

	require.NoError(t, n.ClearFault(20, fault))
	after := n.Y.Dense()
	assert.Equal(t, before.RawCMatrix().Data, after.RawCMatrix().Data)

	assert.ErrorIs(t, n.ApplyFault(99, fault), ErrUnknownBus)
}

func TestTripAndRestoreLine(t *testing.T) {
	n := newNetwork(t)
	before := n.Y.Dense()

	require.NoError(t, n.TripLine(20, 10, ""))
	assert.Equal(t, complex128(0), n.Y.At(1, 2))
	require.Len(t, n.TrippedLines(), 1)
	assert.Equal(t, 10, n.TrippedLines()[0].From)

	assert.ErrorIs(t, n.TripLine(10, 20, "1"), ErrLineState)
	assert.ErrorIs(t, n.TripLine(10, 20, "2"), ErrUnknownLine)
	assert.ErrorIs(t, n.RestoreLine(20, 30, "1"), ErrLineState)

	require.NoError(t, n.RestoreLine(10, 20, "1"))
	assert.Empty(t, n.TrippedLines())
	assert.Equal(t, before.RawCMatrix().Data, n.Y.Dense().RawCMatrix().Data)
}
