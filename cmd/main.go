package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"math/cmplx"
	"os"
	"os/signal"
	"sort"
	"strings"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/google/uuid"

	"github.com/edp1096/toy-stability/internal/config"
	"github.com/edp1096/toy-stability/internal/consts"
	"github.com/edp1096/toy-stability/pkg/analysis"
	"github.com/edp1096/toy-stability/pkg/device"
	"github.com/edp1096/toy-stability/pkg/netlist"
	"github.com/edp1096/toy-stability/pkg/network"
	"github.com/edp1096/toy-stability/pkg/report"
	"github.com/edp1096/toy-stability/pkg/util"
)

var (
	configPath = flag.String("config", "", "scenario file (yaml, toml or json)")
	casePath   = flag.String("case", "", "power-flow case file, overrides the scenario")
	dyrPath    = flag.String("dyr", "", "dynamic data file, overrides the scenario")
	csvPath    = flag.String("csv", "", "write the trajectory as csv")
	pngDir     = flag.String("png", "", "write one png per quantity into this directory")
	htmlPath   = flag.String("html", "", "write an interactive html chart")
	verbose    = flag.Bool("v", false, "print the final network state and every recorded row")
)

func newLogger(filter string) log.Logger {
	logger := log.NewLogfmtLogger(log.NewSyncWriter(os.Stderr))
	logger = log.With(logger, "ts", log.DefaultTimestampUTC, "run", uuid.NewString())

	switch strings.ToLower(filter) {
	case "debug":
		return level.NewFilter(logger, level.AllowDebug())
	case "warn":
		return level.NewFilter(logger, level.AllowWarn())
	case "error":
		return level.NewFilter(logger, level.AllowError())
	default:
		return level.NewFilter(logger, level.AllowInfo())
	}
}

// addMeters registers the configured meters. A zero bus expands to every bus
// or every generator. Without configured meters every rotor angle is recorded.
func addMeters(sim *analysis.Simulation, meters []config.Meter) {
	if len(meters) == 0 {
		meters = []config.Meter{{Quantity: string(analysis.RotorAngleDeg)}}
	}

	for _, m := range meters {
		q, kind, _ := analysis.ParseQuantity(m.Quantity)
		var list []analysis.Meter
		switch {
		case kind == analysis.BusMeter && m.Bus == 0:
			for _, b := range sim.Case.Buses {
				list = append(list, analysis.NewBusMeter(b.Number, q))
			}
		case kind == analysis.BusMeter:
			list = append(list, analysis.NewBusMeter(m.Bus, q))
		case m.Bus == 0:
			for _, u := range sim.Units {
				list = append(list, analysis.NewGeneratorMeter(u.Bus, u.ID, q))
			}
		default:
			id := m.ID
			if id == "" {
				id = "1"
			}
			list = append(list, analysis.NewGeneratorMeter(m.Bus, id, q))
		}
		for _, meter := range list {
			// rejected meters are logged by the simulation
			_ = sim.AddMeter(meter)
		}
	}
}

func printSummary(sim *analysis.Simulation) {
	t := sim.Trajectory()
	st := sim.Stats()

	fmt.Println("\nTransient Stability Results:")
	fmt.Println("============================")
	fmt.Printf("Time step      %s\n", util.FormatValueFactor(sim.TimeStep(), "s"))
	fmt.Printf("Final time     %s\n", util.FormatTime(sim.Time()))
	fmt.Printf("Steps          %d\n", st.Steps)
	fmt.Printf("Network solves %d (%d iterations, %d not converged)\n", st.Solves, st.Iterations, st.NonConverged)
	fmt.Printf("Refactors      %d\n", st.Refactors)

	if t == nil || t.Len() == 0 {
		return
	}

	columns := append([]string(nil), t.Columns...)
	sort.Strings(columns)

	fmt.Println("\nQuantity                        initial       final         min         max")
	fmt.Println("---------------------------------------------------------------------------")
	for _, c := range columns {
		values := t.Column(c)
		lo, hi := values[0], values[0]
		for _, v := range values {
			lo = min(lo, v)
			hi = max(hi, v)
		}
		fmt.Printf("%-28s %s  %s  %s  %s\n", c,
			util.FormatMagnitude(values[0]), util.FormatMagnitude(values[len(values)-1]),
			util.FormatMagnitude(lo), util.FormatMagnitude(hi))
	}

	if !*verbose {
		return
	}
	printNetwork(os.Stdout, sim.Network)
	fmt.Println()
	for i, time := range t.Time {
		fmt.Printf("%s  ", util.FormatTime(time))
		for k, v := range t.Row(i) {
			fmt.Printf("%s=%s  ", t.Columns[k], util.FormatMagnitude(v))
		}
		fmt.Println()
	}
}

// printNetwork dumps the admittance matrix and the accepted bus voltages.
func printNetwork(w io.Writer, net *network.Network) {
	net.Y.PrintSystem(w)

	fmt.Fprintln(w, "\nBus Voltages:")
	for _, bus := range net.Buses {
		v := bus.V[device.Current]
		name := fmt.Sprintf("V%d", bus.Number)
		fmt.Fprintf(w, "%-8s %s\n", bus.Name, util.FormatMagnitudePhase(name, cmplx.Abs(v), cmplx.Phase(v)*consts.RAD2DEG))
	}
}

func writeReports(logger log.Logger, s *config.Settings, sim *analysis.Simulation) error {
	t := sim.Trajectory()
	if s.Output.CSV != "" {
		if err := report.SaveCSV(s.Output.CSV, t); err != nil {
			return err
		}
		level.Info(logger).Log("msg", "csv written", "path", s.Output.CSV)
	}
	if s.Output.PNG != "" {
		paths, err := report.SavePlots(s.Output.PNG, t)
		if err != nil {
			return err
		}
		level.Info(logger).Log("msg", "plots written", "files", len(paths), "dir", s.Output.PNG)
	}
	if s.Output.HTML != "" {
		if err := report.SaveChart(s.Output.HTML, sim.Case.Name, t); err != nil {
			return err
		}
		level.Info(logger).Log("msg", "chart written", "path", s.Output.HTML)
	}
	return nil
}

func override(dst *string, flagValue string) {
	if flagValue != "" {
		*dst = flagValue
	}
}

func run(ctx context.Context) error {
	s, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	override(&s.Case, *casePath)
	override(&s.Dyr, *dyrPath)
	override(&s.Output.CSV, *csvPath)
	override(&s.Output.PNG, *pngDir)
	override(&s.Output.HTML, *htmlPath)
	if s.Case == "" || s.Dyr == "" {
		return fmt.Errorf("a case file and a dyr file are required")
	}

	logger := newLogger(s.Output.Log)

	c, err := netlist.LoadCaseFile(s.Case)
	if err != nil {
		return err
	}
	dyn, err := netlist.ParseDyrFile(s.Dyr)
	if err != nil {
		return err
	}
	level.Info(logger).Log("msg", "case loaded", "case", c.Name, "buses", len(c.Buses), "branches", len(c.Branches), "models", len(dyn.Models))

	sim, err := analysis.NewSimulation(c, dyn,
		analysis.WithTimeStep(s.Sim.Step),
		analysis.WithLogger(logger),
		analysis.WithNetworkTolerance(s.Network.Tolerance),
		analysis.WithMaxIterations(s.Network.MaxIterations),
	)
	if err != nil {
		return err
	}
	defer sim.Stop()
	addMeters(sim, s.Meters)

	events := s.AnalysisEvents()
	for _, ev := range events {
		level.Debug(logger).Log("msg", "event scheduled", "event", ev)
	}

	tran := analysis.NewTransient(sim, s.Sim.Stop, events)
	if err := tran.Setup(); err != nil {
		return err
	}
	if err := tran.ExecuteContext(ctx); err != nil {
		return err
	}

	printSummary(sim)
	return writeReports(logger, s, sim)
}

func main() {
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
