package analysis

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"

	"github.com/edp1096/toy-stability/internal/consts"
	"github.com/edp1096/toy-stability/pkg/device"
	"github.com/edp1096/toy-stability/pkg/netlist"
	"github.com/edp1096/toy-stability/pkg/network"
)

type State int

const (
	Uninitialized State = iota
	Initialized
	Running
	Stopped
)

func (s State) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case Initialized:
		return "initialized"
	case Running:
		return "running"
	case Stopped:
		return "stopped"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Simulation owns one run: the clock, the network with its units, the meters
// and the recorded trajectory.
type Simulation struct {
	mu sync.Mutex

	Case    *netlist.Case
	Dynamic *netlist.DynamicData
	Network *network.Network
	Units   []*device.Unit

	state      State
	timeStep   float64
	steps      int
	meters     []Meter
	trajectory *Trajectory
	integrator *Integrator
	stats      Stats
	logger     log.Logger
	netOpts    []network.Option
}

type Option func(*Simulation)

func WithTimeStep(h float64) Option {
	return func(s *Simulation) { s.timeStep = h }
}

func WithLogger(logger log.Logger) Option {
	return func(s *Simulation) { s.logger = logger }
}

func WithNetworkTolerance(tol float64) Option {
	return func(s *Simulation) { s.netOpts = append(s.netOpts, network.WithTolerance(tol)) }
}

func WithMaxIterations(n int) Option {
	return func(s *Simulation) { s.netOpts = append(s.netOpts, network.WithMaxIterations(n)) }
}

// NewSimulation resolves the dynamic models of every case generator. A
// generator whose models cannot be resolved is logged and left out of the run.
func NewSimulation(c *netlist.Case, dyn *netlist.DynamicData, opts ...Option) (*Simulation, error) {
	if c == nil || dyn == nil {
		return nil, errors.New("simulation needs a case and dynamic data")
	}

	s := &Simulation{
		Case:     c,
		Dynamic:  dyn,
		timeStep: consts.DefaultTimeStep,
		logger:   log.NewNopLogger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.timeStep <= 0 {
		return nil, fmt.Errorf("%w: time step must be positive, got %g", ErrConfig, s.timeStep)
	}
	s.netOpts = append(s.netOpts, network.WithLogger(log.With(s.logger, "component", "network")))

	for _, w := range dyn.Warnings {
		level.Warn(s.logger).Log("msg", "dynamic record skipped", "detail", w)
	}
	s.buildUnits()

	return s, nil
}

func (s *Simulation) configError(err error, keyvals ...interface{}) error {
	keyvals = append(keyvals, "err", err)
	level.Error(s.logger).Log(keyvals...)
	if errors.Is(err, ErrConfig) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrConfig, err)
}

func (s *Simulation) buildUnits() {
	for _, g := range s.Case.Generators {
		base := device.Base{SBASE: s.Case.SBASE, MBASE: g.MBASE, FBASE: s.Case.FBASE}
		logger := log.With(s.logger, "bus", g.Bus, "gen", g.ID)

		gp, ok := s.Dynamic.Find(g.Bus, g.ID, device.GEN)
		if !ok {
			level.Error(logger).Log("msg", "generator has no dynamic model, left out of the run")
			continue
		}
		gp.Params = withDefault(gp.Params, "ZX", g.ZX)

		m, err := device.NewMachine(gp, base)
		if err != nil {
			level.Error(logger).Log("msg", "generator model skipped", "model", gp.Type, "err", err)
			continue
		}

		var exc device.Exciter
		if ep, ok := s.Dynamic.Find(g.Bus, g.ID, device.AVR); ok {
			if _, driven := m.(device.FieldDriven); !driven {
				level.Warn(logger).Log("msg", "exciter ignored on constant EMF machine", "model", ep.Type)
			} else if exc, err = device.NewExciter(ep); err != nil {
				level.Error(logger).Log("msg", "exciter model skipped", "model", ep.Type, "err", err)
				exc = nil
			}
		}

		var gov device.Governor
		if tp, ok := s.Dynamic.Find(g.Bus, g.ID, device.GOV); ok {
			if gov, err = device.NewGovernor(tp, base); err != nil {
				level.Error(logger).Log("msg", "governor model skipped", "model", tp.Type, "err", err)
				gov = nil
			}
		}

		u, err := device.NewUnit(g.Bus, g.ID, base, m, exc, gov)
		if err != nil {
			level.Error(logger).Log("msg", "unit skipped", "err", err)
			continue
		}
		u.P, u.Q = g.P, g.Q
		s.Units = append(s.Units, u)
	}
}

func withDefault(params map[string]float64, name string, value float64) map[string]float64 {
	out := make(map[string]float64, len(params)+1)
	for k, v := range params {
		out[k] = v
	}
	if _, ok := out[name]; !ok && value != 0 {
		out[name] = value
	}
	return out
}

func (s *Simulation) findUnit(bus int, id string) *device.Unit {
	for _, u := range s.Units {
		if u.Bus == bus && u.ID == id {
			return u
		}
	}
	return nil
}

// AddMeter registers an output quantity. Meters are accepted only before Start.
func (s *Simulation) AddMeter(m Meter) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != Uninitialized {
		return fmt.Errorf("%w: meters must be added before start (state %s)", ErrSequence, s.state)
	}
	if kind, ok := quantityKind[m.Quantity]; !ok || kind != m.Kind {
		return s.configError(fmt.Errorf("meter %s: quantity does not apply", m.Label()), "msg", "meter rejected")
	}

	switch m.Kind {
	case BusMeter:
		found := false
		for _, b := range s.Case.Buses {
			found = found || b.Number == m.Bus
		}
		if !found {
			return s.configError(fmt.Errorf("%w: %d", network.ErrUnknownBus, m.Bus), "msg", "meter rejected", "meter", m.Label())
		}
	case GeneratorMeter:
		if s.findUnit(m.Bus, m.ID) == nil {
			return s.configError(fmt.Errorf("meter %s: no such generator in the run", m.Label()), "msg", "meter rejected")
		}
	}

	s.meters = append(s.meters, m)
	return nil
}

func (s *Simulation) Meters() []Meter {
	return append([]Meter(nil), s.meters...)
}

// Start builds the dynamic admittance model and brings every unit to the
// steady state of the power-flow snapshot.
func (s *Simulation) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != Uninitialized {
		return fmt.Errorf("%w: start in state %s", ErrSequence, s.state)
	}

	net, err := network.New(s.Case, s.Units, s.netOpts...)
	if err != nil {
		return fmt.Errorf("building dynamic network: %w", err)
	}
	s.Network = net

	for _, u := range s.Units {
		bus, _ := net.Bus(u.Bus)
		u.Init(bus.V[device.Current])
	}

	s.integrator = NewIntegrator(net, s.timeStep, s.logger, &s.stats)
	if err := s.integrator.Sync(0); err != nil {
		return fmt.Errorf("initial network solve: %w", err)
	}

	for _, u := range s.Units {
		if err := u.Settle(); err != nil {
			var se *device.SetpointError
			model := ""
			if errors.As(err, &se) {
				model = se.Model
			}
			level.Warn(s.logger).Log("msg", "control starts outside its limits", "bus", u.Bus, "gen", u.ID, "model", model, "err", err)
		}
	}
	for _, bus := range net.Buses {
		bus.V[device.Predicted] = bus.V[device.Current]
	}

	labels := make([]string, len(s.meters))
	for i := range s.meters {
		m := &s.meters[i]
		labels[i] = m.Label()
		if m.Kind == BusMeter {
			bus, _ := net.Bus(m.Bus)
			m.read = busReader(bus, m.Quantity)
		} else {
			m.read = unitReader(s.findUnit(m.Bus, m.ID), m.Quantity)
		}
	}
	s.trajectory = NewTrajectory(labels)

	s.state = Initialized
	level.Info(s.logger).Log("msg", "simulation initialized", "buses", len(net.Buses), "units", len(s.Units), "h", s.timeStep)
	return nil
}

// Time is the simulation clock. It is derived from the step count so repeated
// runs land on identical times.
func (s *Simulation) Time() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.clock()
}

func (s *Simulation) clock() float64 {
	return float64(s.steps) * s.timeStep
}

func (s *Simulation) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Simulation) TimeStep() float64 { return s.timeStep }

func (s *Simulation) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

// Trajectory returns the recorded rows. The store is appended to by RunTo, so
// read it between runs.
func (s *Simulation) Trajectory() *Trajectory {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.trajectory
}

func (s *Simulation) record() {
	row := make([]float64, len(s.meters))
	for i, m := range s.meters {
		row[i] = m.read()
	}
	s.trajectory.StoreTimeResult(s.clock(), row)
}

// RunTo records the meters and steps while the clock has not passed stop.
// Cancellation is honoured between steps only.
func (s *Simulation) RunTo(ctx context.Context, stop float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != Initialized && s.state != Running {
		return fmt.Errorf("%w: run in state %s", ErrSequence, s.state)
	}
	tol := s.timeStep * consts.ClockTolerance
	if stop < s.clock()-tol {
		return fmt.Errorf("%w: stop %g, clock %g", ErrTimeBehind, stop, s.clock())
	}

	s.state = Running
	for s.clock() <= stop+tol {
		if err := ctx.Err(); err != nil {
			return err
		}

		t := s.clock()
		if err := s.integrator.Sync(t); err != nil {
			return &StepError{Step: s.steps, Time: t, Err: err}
		}
		s.record()

		if err := s.integrator.Step(t); err != nil {
			return &StepError{Step: s.steps, Time: t, Err: err}
		}
		s.steps++
	}
	return nil
}

func (s *Simulation) requireRunning(op string) error {
	if s.state != Running {
		return fmt.Errorf("%w: %s in state %s", ErrSequence, op, s.state)
	}
	return nil
}

func (s *Simulation) ApplyFault(bus int, y complex128) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.requireRunning("apply fault"); err != nil {
		return err
	}
	if err := s.Network.ApplyFault(bus, y); err != nil {
		return s.configError(err, "msg", "fault not applied", "bus", bus, "t", s.clock())
	}
	return nil
}

func (s *Simulation) ClearFault(bus int, y complex128) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.requireRunning("clear fault"); err != nil {
		return err
	}
	if err := s.Network.ClearFault(bus, y); err != nil {
		return s.configError(err, "msg", "fault not cleared", "bus", bus, "t", s.clock())
	}
	return nil
}

func (s *Simulation) TripLine(from, to int, ckt string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.requireRunning("trip line"); err != nil {
		return err
	}
	if err := s.Network.TripLine(from, to, ckt); err != nil {
		return s.configError(err, "msg", "line not tripped", "from", from, "to", to, "t", s.clock())
	}
	return nil
}

func (s *Simulation) RestoreLine(from, to int, ckt string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.requireRunning("restore line"); err != nil {
		return err
	}
	if err := s.Network.RestoreLine(from, to, ckt); err != nil {
		return s.configError(err, "msg", "line not restored", "from", from, "to", to, "t", s.clock())
	}
	return nil
}

// Stop marks the run finished. Nothing needs releasing beyond the sparse matrix.
func (s *Simulation) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.Network != nil {
		s.Network.Y.Destroy()
	}
	s.state = Stopped
	level.Info(s.logger).Log("msg", "simulation stopped", "t", s.clock(), "steps", s.stats.Steps, "nonconverged", s.stats.NonConverged)
}
