package netlist

import (
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/edp1096/toy-stability/internal/consts"
)

// Case is a solved power-flow snapshot: topology, injections and bus voltages.
type Case struct {
	Name       string      `yaml:"name"`
	SBASE      float64     `yaml:"sbase"`
	FBASE      float64     `yaml:"fbase"`
	Buses      []Bus       `yaml:"buses"`
	Branches   []Branch    `yaml:"branches"`
	Loads      []Load      `yaml:"loads"`
	Generators []Generator `yaml:"generators"`
}

type Bus struct {
	Number int     `yaml:"number"`
	Name   string  `yaml:"name"`
	Vm     float64 `yaml:"vm"` // p.u.
	Va     float64 `yaml:"va"` // degrees
	Gs     float64 `yaml:"gs"` // fixed shunt at 1 p.u. (MW)
	Bs     float64 `yaml:"bs"` // (MVAr)
}

type Branch struct {
	From int     `yaml:"from"`
	To   int     `yaml:"to"`
	Ckt  string  `yaml:"ckt"`
	R    float64 `yaml:"r"`
	X    float64 `yaml:"x"`
	B    float64 `yaml:"b"`   // total line charging
	BI   float64 `yaml:"bi"` // shunt at from end
	BJ   float64 `yaml:"bj"` // shunt at to end
	Tap  float64 `yaml:"tap"` // off-nominal ratio at from end, 0 means 1
}

type Load struct {
	Bus int     `yaml:"bus"`
	ID  string  `yaml:"id"`
	P   float64 `yaml:"p"` // MW
	Q   float64 `yaml:"q"` // MVAr
}

type Generator struct {
	Bus   int     `yaml:"bus"`
	ID    string  `yaml:"id"`
	P     float64 `yaml:"p"`
	Q     float64 `yaml:"q"`
	MBASE float64 `yaml:"mbase"`
	ZX    float64 `yaml:"zx"` // source reactance, machine base
}

func LoadCaseFile(path string) (*Case, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening case file: %w", err)
	}
	defer f.Close()
	return LoadCase(f)
}

func LoadCase(r io.Reader) (*Case, error) {
	var c Case
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&c); err != nil {
		return nil, fmt.Errorf("decoding case: %w", err)
	}

	c.setDefaults()
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Case) setDefaults() {
	if c.SBASE == 0 {
		c.SBASE = consts.SBASE
	}
	if c.FBASE == 0 {
		c.FBASE = consts.FBASE
	}
	for i := range c.Branches {
		if c.Branches[i].Ckt == "" {
			c.Branches[i].Ckt = "1"
		}
		if c.Branches[i].Tap == 0 {
			c.Branches[i].Tap = 1
		}
	}
	for i := range c.Generators {
		if c.Generators[i].ID == "" {
			c.Generators[i].ID = "1"
		}
		if c.Generators[i].MBASE == 0 {
			c.Generators[i].MBASE = c.SBASE
		}
	}
	for i := range c.Loads {
		if c.Loads[i].ID == "" {
			c.Loads[i].ID = "1"
		}
	}
}

// Validate checks that every reference names a bus and that voltages are usable.
func (c *Case) Validate() error {
	if len(c.Buses) == 0 {
		return fmt.Errorf("case %q has no buses", c.Name)
	}

	buses := make(map[int]bool, len(c.Buses))
	for _, b := range c.Buses {
		if buses[b.Number] {
			return fmt.Errorf("duplicate bus %d", b.Number)
		}
		if b.Vm <= 0 {
			return fmt.Errorf("bus %d: voltage magnitude must be positive", b.Number)
		}
		buses[b.Number] = true
	}

	for _, br := range c.Branches {
		if !buses[br.From] || !buses[br.To] {
			return fmt.Errorf("branch %d-%d/%s: unknown bus", br.From, br.To, br.Ckt)
		}
		if br.From == br.To {
			return fmt.Errorf("branch %d-%d/%s: both ends on one bus", br.From, br.To, br.Ckt)
		}
		if br.R == 0 && br.X == 0 {
			return fmt.Errorf("branch %d-%d/%s: zero impedance", br.From, br.To, br.Ckt)
		}
	}
	for _, l := range c.Loads {
		if !buses[l.Bus] {
			return fmt.Errorf("load %d/%s: unknown bus", l.Bus, l.ID)
		}
	}
	for _, g := range c.Generators {
		if !buses[g.Bus] {
			return fmt.Errorf("generator %d/%s: unknown bus", g.Bus, g.ID)
		}
	}
	return nil
}
