package network

import (
	"errors"
	"fmt"
	"math/cmplx"
	"sort"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"

	"github.com/edp1096/toy-stability/internal/consts"
	"github.com/edp1096/toy-stability/pkg/device"
	"github.com/edp1096/toy-stability/pkg/matrix"
	"github.com/edp1096/toy-stability/pkg/netlist"
)

var (
	ErrUnknownBus  = errors.New("unknown bus")
	ErrUnknownLine = errors.New("unknown line")
	ErrLineState   = errors.New("line already in requested state")
)

type Bus struct {
	Number int
	Name   string
	Index  int     // 1-based matrix index
	Vm0    float64 // Power-flow voltage (p.u.)
	Va0    float64 // (rad)
	V      [2]complex128
}

type lineKey struct {
	from, to int
	ckt      string
}

// Network is the dynamic admittance model: the basic Y of the case with loads
// and machine internal admittances folded in, plus the bus voltages it solves.
type Network struct {
	Case   *netlist.Case
	Buses  []*Bus
	Units  []*device.Unit
	Y      *matrix.YMatrix
	logger log.Logger

	busMap   map[int]*Bus
	lines    map[lineKey]netlist.Branch
	tripped  map[lineKey]bool
	maxIter  int
	tol      float64
	voltages []complex128 // iterate, 1-based
}

type Option func(*Network)

func WithLogger(logger log.Logger) Option {
	return func(n *Network) { n.logger = logger }
}

func WithTolerance(tol float64) Option {
	return func(n *Network) {
		if tol > 0 {
			n.tol = tol
		}
	}
}

func WithMaxIterations(maxIter int) Option {
	return func(n *Network) {
		if maxIter > 0 {
			n.maxIter = maxIter
		}
	}
}

// New numbers the buses in case order, binds the units to their buses and
// builds the dynamic admittance matrix.
func New(c *netlist.Case, units []*device.Unit, opts ...Option) (*Network, error) {
	n := &Network{
		Case:    c,
		Units:   units,
		logger:  log.NewNopLogger(),
		busMap:  make(map[int]*Bus),
		lines:   make(map[lineKey]netlist.Branch),
		tripped: make(map[lineKey]bool),
		maxIter: consts.NetworkMaxIter,
		tol:     consts.NetworkTolerance,
	}
	for _, opt := range opts {
		opt(n)
	}

	index := make(map[int]int, len(c.Buses))
	for i, b := range c.Buses {
		bus := &Bus{
			Number: b.Number,
			Name:   b.Name,
			Index:  i + 1,
			Vm0:    b.Vm,
			Va0:    b.Va * consts.DEG2RAD,
		}
		v := cmplx.Rect(bus.Vm0, bus.Va0)
		bus.V[device.Current], bus.V[device.Predicted] = v, v
		n.Buses = append(n.Buses, bus)
		n.busMap[b.Number] = bus
		index[b.Number] = bus.Index
	}

	for _, u := range units {
		bus, ok := n.busMap[u.Bus]
		if !ok {
			return nil, fmt.Errorf("%w: %d for unit %s", ErrUnknownBus, u.Bus, u.Name())
		}
		u.Index = bus.Index
	}

	for _, br := range c.Branches {
		key := lineKey{br.From, br.To, br.Ckt}
		if _, dup := n.lines[key]; dup {
			return nil, fmt.Errorf("duplicate branch %d-%d/%s", br.From, br.To, br.Ckt)
		}
		n.lines[key] = br
	}

	y, err := matrix.NewYMatrix(len(n.Buses))
	if err != nil {
		return nil, err
	}
	n.Y = y
	n.voltages = make([]complex128, len(n.Buses)+1)

	if err := BuildBasicY(c, index, n.Y); err != nil {
		return nil, fmt.Errorf("building basic admittance matrix: %w", err)
	}
	n.foldLoads()
	n.foldMachines()

	return n, nil
}

// foldLoads represents each load as a constant admittance at its
// pre-disturbance voltage.
func (n *Network) foldLoads() {
	for _, l := range n.Case.Loads {
		bus := n.busMap[l.Bus]
		y := complex(l.P, -l.Q) / complex(n.Case.SBASE*bus.Vm0*bus.Vm0, 0)
		n.Y.AddComplexElement(bus.Index, bus.Index, real(y), imag(y))
	}
}

func (n *Network) foldMachines() {
	for _, u := range n.Units {
		y := u.Machine.InternalAdmittance()
		n.Y.AddComplexElement(u.Index, u.Index, real(y), imag(y))
	}
}

func (n *Network) Bus(number int) (*Bus, error) {
	bus, ok := n.busMap[number]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownBus, number)
	}
	return bus, nil
}

func (n *Network) Voltage(number int, s device.Slot) (complex128, error) {
	bus, err := n.Bus(number)
	if err != nil {
		return 0, err
	}
	return bus.V[s], nil
}

// Revision changes whenever the admittance matrix is edited.
func (n *Network) Revision() uint64 {
	return n.Y.Revision()
}

func (n *Network) ApplyFault(number int, y complex128) error {
	bus, err := n.Bus(number)
	if err != nil {
		return err
	}
	if err := n.Y.Edit(bus.Index, bus.Index, y); err != nil {
		return err
	}
	level.Info(n.logger).Log("msg", "fault applied", "bus", number, "y", fmt.Sprint(y))
	return nil
}

func (n *Network) ClearFault(number int, y complex128) error {
	bus, err := n.Bus(number)
	if err != nil {
		return err
	}
	if err := n.Y.Edit(bus.Index, bus.Index, -y); err != nil {
		return err
	}
	level.Info(n.logger).Log("msg", "fault cleared", "bus", number, "y", fmt.Sprint(y))
	return nil
}

func (n *Network) findLine(from, to int, ckt string) (lineKey, netlist.Branch, error) {
	if ckt == "" {
		ckt = "1"
	}
	if br, ok := n.lines[lineKey{from, to, ckt}]; ok {
		return lineKey{from, to, ckt}, br, nil
	}
	if br, ok := n.lines[lineKey{to, from, ckt}]; ok {
		return lineKey{to, from, ckt}, br, nil
	}
	return lineKey{}, netlist.Branch{}, fmt.Errorf("%w: %d-%d/%s", ErrUnknownLine, from, to, ckt)
}

func (n *Network) editLine(br netlist.Branch, sign float64) error {
	i, j := n.busMap[br.From].Index, n.busMap[br.To].Index
	s := StampBranch(br)
	k := complex(sign, 0)

	for _, e := range []struct {
		row, col int
		y        complex128
	}{
		{i, i, s.Yii},
		{j, j, s.Yjj},
		{i, j, s.Yij},
		{j, i, s.Yij},
	} {
		if err := n.Y.Edit(e.row, e.col, k*e.y); err != nil {
			return err
		}
	}
	return nil
}

// TripLine removes a branch from service.
func (n *Network) TripLine(from, to int, ckt string) error {
	key, br, err := n.findLine(from, to, ckt)
	if err != nil {
		return err
	}
	if n.tripped[key] {
		return fmt.Errorf("%w: %d-%d/%s is out of service", ErrLineState, br.From, br.To, br.Ckt)
	}
	if err := n.editLine(br, -1); err != nil {
		return err
	}
	n.tripped[key] = true
	level.Info(n.logger).Log("msg", "line tripped", "from", br.From, "to", br.To, "ckt", br.Ckt)
	return nil
}

// RestoreLine returns a tripped branch to service.
func (n *Network) RestoreLine(from, to int, ckt string) error {
	key, br, err := n.findLine(from, to, ckt)
	if err != nil {
		return err
	}
	if !n.tripped[key] {
		return fmt.Errorf("%w: %d-%d/%s is in service", ErrLineState, br.From, br.To, br.Ckt)
	}
	if err := n.editLine(br, 1); err != nil {
		return err
	}
	delete(n.tripped, key)
	level.Info(n.logger).Log("msg", "line restored", "from", br.From, "to", br.To, "ckt", br.Ckt)
	return nil
}

// TrippedLines lists the branches out of service, sorted.
func (n *Network) TrippedLines() []netlist.Branch {
	keys := make([]lineKey, 0, len(n.tripped))
	for k := range n.tripped {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(a, b int) bool {
		if keys[a].from != keys[b].from {
			return keys[a].from < keys[b].from
		}
		if keys[a].to != keys[b].to {
			return keys[a].to < keys[b].to
		}
		return keys[a].ckt < keys[b].ckt
	})

	out := make([]netlist.Branch, 0, len(keys))
	for _, k := range keys {
		out = append(out, n.lines[k])
	}
	return out
}
