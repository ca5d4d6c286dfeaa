package network

import (
	"fmt"
	"math/cmplx"

	"github.com/edp1096/toy-stability/pkg/device"
)

type SolveReport struct {
	Iterations int
	Residual   float64 // Largest voltage change of the last iteration (p.u.)
	Converged  bool
}

// Solve finds the bus voltages consistent with the unit states in slot s.
// Injections are the EMF term YGp·E plus the voltage-dependent saliency term,
// iterated from the accepted voltages until the largest change is below the
// tolerance or the iteration cap is reached. In the latter case the last
// iterate is kept and the report says so.
func (n *Network) Solve(s device.Slot) (SolveReport, error) {
	var report SolveReport

	v := n.voltages
	for _, bus := range n.Buses {
		v[bus.Index] = bus.V[device.Current]
	}

	emf := make([]complex128, len(n.Units))
	for k, u := range n.Units {
		emf[k] = u.Machine.InternalAdmittance() * u.EMF(s)
	}

	for iter := 1; iter <= n.maxIter; iter++ {
		n.Y.ClearRHS()
		for k, u := range n.Units {
			inj := emf[k] + u.SaliencyCurrent(s, v[u.Index])
			n.Y.AddComplexRHS(u.Index, real(inj), imag(inj))
		}

		if err := n.Y.Solve(); err != nil {
			return report, fmt.Errorf("network solve (%s): %w", s, err)
		}

		residual := 0.0
		for i := 1; i < len(v); i++ {
			next := n.Y.GetComplexSolution(i)
			if d := cmplx.Abs(next - v[i]); d > residual {
				residual = d
			}
			v[i] = next
		}

		report.Iterations = iter
		report.Residual = residual
		if residual < n.tol {
			report.Converged = true
			break
		}
	}

	for _, bus := range n.Buses {
		bus.V[s] = v[bus.Index]
	}
	n.updateSignals(s)

	return report, nil
}

// updateSignals recomputes terminal current and electrical power of every
// unit from the solved voltages of slot s.
func (n *Network) updateSignals(s device.Slot) {
	for _, u := range n.Units {
		vt := n.voltages[u.Index]
		ygp := u.Machine.InternalAdmittance()
		it := ygp*u.EMF(s) + u.SaliencyCurrent(s, vt) - ygp*vt
		u.SetSignals(s, device.Signals{
			Vt: vt,
			It: it,
			Pe: real(vt * cmplx.Conj(it)),
		})
	}
}
