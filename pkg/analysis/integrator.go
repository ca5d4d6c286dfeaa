package analysis

import (
	"fmt"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"gonum.org/v1/gonum/floats"

	"github.com/edp1096/toy-stability/pkg/device"
	"github.com/edp1096/toy-stability/pkg/network"
	"github.com/edp1096/toy-stability/pkg/util"
)

type Stats struct {
	Steps        int
	Solves       int
	Iterations   int // network iterations over all solves
	NonConverged int
	Refactors    int
}

// Integrator advances all unit states by one fixed step: an explicit Euler
// prediction followed by a trapezoidal correction, with a network solve after
// each phase.
type Integrator struct {
	net    *network.Network
	h      float64
	method util.IntegrationMethod
	logger log.Logger
	stats  *Stats

	solvedRev uint64
	synced    bool
	f0, f1    [][]float64
}

func NewIntegrator(net *network.Network, h float64, logger log.Logger, stats *Stats) *Integrator {
	in := &Integrator{
		net:    net,
		h:      h,
		method: util.TrapezoidalMethod,
		logger: log.With(logger, "component", "integrator"),
		stats:  stats,
	}
	for _, u := range net.Units {
		in.f0 = append(in.f0, make([]float64, u.NumStates()))
		in.f1 = append(in.f1, make([]float64, u.NumStates()))
	}
	return in
}

func (in *Integrator) solve(s device.Slot, t float64) error {
	report, err := in.net.Solve(s)
	if err != nil {
		return err
	}

	in.stats.Solves++
	in.stats.Iterations += report.Iterations
	in.stats.Refactors = in.net.Y.Refactors()
	if !report.Converged {
		in.stats.NonConverged++
		level.Warn(in.logger).Log(
			"msg", "network solve hit iteration cap",
			"slot", s,
			"t", t,
			"iterations", report.Iterations,
			"residual", report.Residual,
		)
	}

	if s == device.Current {
		in.solvedRev = in.net.Revision()
		in.synced = true
	}
	return nil
}

// Sync re-solves the accepted voltages if the admittance matrix changed since
// they were last solved.
func (in *Integrator) Sync(t float64) error {
	if in.synced && in.solvedRev == in.net.Revision() {
		return nil
	}
	return in.solve(device.Current, t)
}

func (in *Integrator) Step(t float64) error {
	if err := in.Sync(t); err != nil {
		return err
	}

	w0, _ := util.GetIntegratorWeights(util.EulerMethod, in.h)
	for k, u := range in.net.Units {
		u.Derivative(in.f0[k], device.Current)
		floats.AddScaledTo(u.State(device.Predicted), u.State(device.Current), w0, in.f0[k])
		u.Clamp(device.Predicted)
	}
	if err := in.solve(device.Predicted, t+in.h); err != nil {
		return fmt.Errorf("predictor: %w", err)
	}

	c0, c1 := util.GetIntegratorWeights(in.method, in.h)
	for k, u := range in.net.Units {
		u.Derivative(in.f1[k], device.Predicted)
		x := u.State(device.Current)
		floats.AddScaled(x, c0, in.f0[k])
		floats.AddScaled(x, c1, in.f1[k])
		u.Clamp(device.Current)
	}
	if err := in.solve(device.Current, t+in.h); err != nil {
		return fmt.Errorf("corrector: %w", err)
	}

	in.stats.Steps++
	return nil
}
