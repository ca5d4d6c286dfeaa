package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/edp1096/toy-stability/internal/consts"
	"github.com/edp1096/toy-stability/pkg/analysis"
)

type Settings struct {
	Case    string  `mapstructure:"case"`
	Dyr     string  `mapstructure:"dyr"`
	Sim     Sim     `mapstructure:"sim"`
	Network Network `mapstructure:"network"`
	Output  Output  `mapstructure:"output"`
	Events  []Event `mapstructure:"events"`
	Meters  []Meter `mapstructure:"meters"`
}

type Sim struct {
	Step float64 `mapstructure:"step"`
	Stop float64 `mapstructure:"stop"`
}

type Network struct {
	Tolerance     float64 `mapstructure:"tolerance"`
	MaxIterations int     `mapstructure:"max_iterations"`
}

type Output struct {
	CSV  string `mapstructure:"csv"`
	PNG  string `mapstructure:"png"`  // directory
	HTML string `mapstructure:"html"`
	Log  string `mapstructure:"log"`  // logfmt level filter: debug, info, warn, error
}

// Event is a scheduled disturbance. G and B give the fault admittance in p.u.
type Event struct {
	Time   float64 `mapstructure:"time"`
	Action string  `mapstructure:"action"`
	Bus    int     `mapstructure:"bus"`
	G      float64 `mapstructure:"g"`
	B      float64 `mapstructure:"b"`
	From   int     `mapstructure:"from"`
	To     int     `mapstructure:"to"`
	Ckt    string  `mapstructure:"ckt"`
}

// Meter names a recorded quantity. A zero bus with a generator quantity
// means every generator, and with a bus quantity every bus.
type Meter struct {
	Quantity string `mapstructure:"quantity"`
	Bus      int    `mapstructure:"bus"`
	ID       string `mapstructure:"id"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("sim.step", consts.DefaultTimeStep)
	v.SetDefault("sim.stop", consts.DefaultStopTime)
	v.SetDefault("network.tolerance", consts.NetworkTolerance)
	v.SetDefault("network.max_iterations", consts.NetworkMaxIter)
	v.SetDefault("output.log", "info")
}

// Load reads the scenario file, if any, with TSTAB_ environment overrides.
func Load(path string) (*Settings, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("TSTAB")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
	}

	var s Settings
	if err := v.Unmarshal(&s); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

func (s *Settings) Validate() error {
	if s.Sim.Step <= 0 {
		return fmt.Errorf("sim.step must be positive, got %g", s.Sim.Step)
	}
	if s.Sim.Stop < 0 {
		return fmt.Errorf("sim.stop must not be negative, got %g", s.Sim.Stop)
	}
	for i, e := range s.Events {
		if _, err := analysis.ParseAction(e.Action); err != nil {
			return fmt.Errorf("events[%d]: %w", i, err)
		}
	}
	for i, m := range s.Meters {
		if _, _, err := analysis.ParseQuantity(m.Quantity); err != nil {
			return fmt.Errorf("meters[%d]: %w", i, err)
		}
	}
	return nil
}

// AnalysisEvents converts the scheduled events for the simulation.
func (s *Settings) AnalysisEvents() []analysis.Event {
	events := make([]analysis.Event, 0, len(s.Events))
	for _, e := range s.Events {
		action, _ := analysis.ParseAction(e.Action)
		events = append(events, analysis.Event{
			Time:   e.Time,
			Action: action,
			Bus:    e.Bus,
			Y:      complex(e.G, e.B),
			From:   e.From,
			To:     e.To,
			Ckt:    e.Ckt,
		})
	}
	return events
}
