package main

import (
	"encoding/json"
	"fmt"
	"log"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nasa-jpl/cryosweep/cryocon"
	"github.com/nasa-jpl/cryosweep/generichttp"
	"github.com/nasa-jpl/cryosweep/generichttp/sequence"
	"github.com/nasa-jpl/cryosweep/generichttp/thermal"
	"github.com/nasa-jpl/cryosweep/generichttp/tmc"
	"github.com/nasa-jpl/cryosweep/keithley"
	"github.com/nasa-jpl/cryosweep/lakeshore"
	"github.com/nasa-jpl/cryosweep/orx"
	"github.com/nasa-jpl/cryosweep/server/middleware/locker"
	"github.com/nasa-jpl/cryosweep/sink"
	"github.com/nasa-jpl/cryosweep/sweep"
	"github.com/nasa-jpl/cryosweep/util"
)

// ControllerSetup holds the connection and loop setup of the temperature controller
type ControllerSetup struct {
	// Addr holds the network or filesystem address of the controller,
	// e.g. 192.168.100.123:7777 for a 336 on the network or /dev/ttyUSB0
	Addr string `yaml:"Addr" koanf:"Addr"`

	// Serial determines if the connection is serial/RS232 (True) or TCP (False)
	Serial bool `yaml:"Serial" koanf:"Serial"`

	// Baud is the serial baud rate, 57600 for the 335/336 and 9600 for the 332
	Baud int `yaml:"Baud" koanf:"Baud"`

	// Loop is the heater output used for control
	Loop int `yaml:"Loop" koanf:"Loop"`

	// Input is the sensor input, A through D
	Input string `yaml:"Input" koanf:"Input"`

	// P, I and D are the loop gains applied before every run, all zero to
	// leave the controller's gains alone
	P float64 `yaml:"P" koanf:"P"`
	I float64 `yaml:"I" koanf:"I"`
	D float64 `yaml:"D" koanf:"D"`
}

// MeterSetup holds the connection of the resistance meter
type MeterSetup struct {
	// Addr is the address of the GPIB-Ethernet bridge, host:port
	Addr string `yaml:"Addr" koanf:"Addr"`

	// GPIB is the GPIB address of the meter, 0 if the bridge is preconfigured
	GPIB int `yaml:"GPIB" koanf:"GPIB"`
}

// GeneratorSetup holds the connection of the optional function generator
type GeneratorSetup struct {
	// Addr is the address of the generator, empty if there is none
	Addr string `yaml:"Addr" koanf:"Addr"`

	// Serial determines if the connection is serial/RS232 (True) or TCP (False)
	Serial bool `yaml:"Serial" koanf:"Serial"`
}

// MonitorSetup holds the connection of the optional reference thermometer
type MonitorSetup struct {
	// Addr is the address of a Cryo-con monitor, host:port, empty if there is none
	Addr string `yaml:"Addr" koanf:"Addr"`
}

// OutputSetup controls where data files go
type OutputSetup struct {
	// Root is the directory data files are written to
	Root string `yaml:"Root" koanf:"Root"`

	// Prefix begins every data file name
	Prefix string `yaml:"Prefix" koanf:"Prefix"`
}

// Config is a struct that holds the initialization parameters for the
// instruments, the server and the default run.  It is to be populated by koanf.
type Config struct {
	// Addr is the address to listen at
	Addr string `yaml:"Addr" koanf:"Addr"`

	// Mock uses simulated instruments
	Mock bool `yaml:"Mock" koanf:"Mock"`

	// MockSpeed speeds up the passage of time for simulated instruments
	MockSpeed float64 `yaml:"MockSpeed" koanf:"MockSpeed"`

	Controller ControllerSetup `yaml:"Controller" koanf:"Controller"`
	Meter      MeterSetup      `yaml:"Meter" koanf:"Meter"`
	Generator  GeneratorSetup  `yaml:"Generator" koanf:"Generator"`
	Monitor    MonitorSetup    `yaml:"Monitor" koanf:"Monitor"`

	// Run holds the default run settings
	Run sweep.Settings `yaml:"Run" koanf:"Run"`

	Output OutputSetup `yaml:"Output" koanf:"Output"`

	// Limits are software limits on every setpoint and run temperature, K
	Limits util.Limiter `yaml:"Limits" koanf:"Limits"`
}

// controller is what the server and the sequencer need of a temperature controller
type controller interface {
	sweep.TemperatureActuator
	thermal.Controller
}

// the loop setup is optional, the mock has it and so does the real thing
type (
	pidSetter interface {
		SetPID(p, i, d float64) error
	}
	outputModer interface {
		SetOutputMode(mode lakeshore.OutputMode, input string, powerUp bool) error
	}
)

// Instruments are the connected instruments
type Instruments struct {
	Controller controller
	Meter      sweep.QuantityMeter

	// Generator is nil if none is configured
	Generator tmc.FunctionGenerator

	// Monitor is nil if none is configured
	Monitor *cryocon.Monitor
}

// Connect creates the instruments described by c.  Connections are opened
// lazily on first use.
func Connect(c Config) Instruments {
	var inst Instruments
	if c.Mock {
		stage := lakeshore.NewMock(c.Run.MinTemperature)
		if c.MockSpeed > 0 {
			stage.Speed = c.MockSpeed
		}
		inst.Controller = stage
		inst.Meter = keithley.NewMock(stage)
		if c.Generator.Addr != "" {
			log.Println("function generator mock interface is not yet implemented, skipping generator")
		}
		if c.Monitor.Addr != "" {
			log.Println("temperature monitor mock interface is not yet implemented, skipping monitor")
		}
		return inst
	}
	ctl := lakeshore.NewController(c.Controller.Addr, c.Controller.Serial, c.Controller.Baud)
	if c.Controller.Loop != 0 {
		ctl.Loop = c.Controller.Loop
	}
	if c.Controller.Input != "" {
		ctl.Input = c.Controller.Input
	}
	inst.Controller = ctl
	inst.Meter = keithley.NewDMM2001(c.Meter.Addr, c.Meter.GPIB)
	if c.Generator.Addr != "" {
		inst.Generator = orx.NewFunctionGenerator(c.Generator.Addr, c.Generator.Serial)
	}
	if c.Monitor.Addr != "" {
		inst.Monitor = cryocon.NewMonitor(c.Monitor.Addr)
	}
	return inst
}

// PrepareLoop puts the control loop in closed loop mode on the configured
// input and applies the configured gains
func PrepareLoop(ctl controller, setup ControllerSetup) error {
	if pid, ok := ctl.(pidSetter); ok && (setup.P != 0 || setup.I != 0 || setup.D != 0) {
		if err := pid.SetPID(setup.P, setup.I, setup.D); err != nil {
			return err
		}
	}
	if om, ok := ctl.(outputModer); ok {
		input := setup.Input
		if input == "" {
			input = "A"
		}
		if err := om.SetOutputMode(lakeshore.ModeClosedLoop, input, true); err != nil {
			return err
		}
	}
	return nil
}

// NewSequencer returns a Sequencer over the instruments with no sink
func NewSequencer(inst Instruments) *sweep.Sequencer {
	return sweep.New(inst.Controller, inst.Meter, nil)
}

// runTemperature reads the controller only when no run is in progress
type runTemperature struct {
	controller
	mgr *sequence.Manager
}

func (r runTemperature) Read() (float64, error) {
	return r.mgr.Temperature(r.controller.Read)
}

// Server is everything BuildMux wires together
type Server struct {
	Mux     chi.Router
	Manager *sequence.Manager
}

// BuildMux constructs the HTTP interface to the instruments and the run
// manager.  The mux serves a special route, /endpoints, which returns a
// map of every route as JSON.
func BuildMux(c Config, inst Instruments, reg *prometheus.Registry) Server {
	root := chi.NewRouter()
	root.Use(middleware.Logger)
	supergraph := map[string][]string{}

	mount := func(endpoint string, httper generichttp.HTTPer, lock *locker.Locker) {
		hndlS := generichttp.SubMuxSanitize(endpoint)
		locker.Inject(httper, lock)
		supergraph[hndlS] = httper.RT().Endpoints()
		r := chi.NewRouter()
		r.Use(lock.Check)
		httper.RT().Bind(r)
		root.Mount(hndlS, r)
	}

	mgr := sequence.NewManager(NewSequencer(inst), c.Run)
	mgr.Limits = c.Limits
	mgr.Dir = c.Output.Root
	if c.Output.Prefix != "" {
		mgr.Prefix = c.Output.Prefix
	}
	mgr.Metrics = sink.NewMetrics(reg)

	// the run owns the controller, only the temperature routes stay open and
	// they answer from the run
	live := runTemperature{controller: inst.Controller, mgr: mgr}
	ctlLock := locker.New()
	ctlLock.DoNotProtect = append(ctlLock.DoNotProtect, "/temperature")
	ctl := thermal.NewHTTPController(inst.Controller, c.Limits)
	ctl.RouteTable[generichttp.MethodPath{Method: http.MethodGet, Path: "/temperature"}] = thermal.GetTemperature(live)
	ctl.RouteTable[generichttp.MethodPath{Method: http.MethodGet, Path: "/temperature/celsius"}] = thermal.GetTemperatureCelsius(live)
	mount("controller", ctl, ctlLock)
	mgr.Locks = []*locker.Locker{ctlLock}

	if inst.Generator != nil {
		mount("generator", tmc.NewHTTPFunctionGenerator(inst.Generator), locker.New())
	}

	if inst.Monitor != nil {
		mount("monitor", cryocon.NewHTTPMonitor(inst.Monitor), locker.New())
		reg.MustRegister(monitorCollector{inst.Monitor})
	}

	mount("sweep", sequence.NewHTTPManager(mgr), locker.New())

	reg.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "cryosweep_controller_temperature_kelvin",
		Help: "Temperature of the controller at scrape time, from the run while one is in progress.",
	}, func() float64 {
		t, err := live.Read()
		if err != nil {
			return math.NaN()
		}
		return t
	}))
	root.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	root.Get("/endpoints", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		err := json.NewEncoder(w).Encode(supergraph)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
	})
	return Server{Mux: root, Manager: mgr}
}

var monitorDesc = prometheus.NewDesc(
	"cryosweep_monitor_temperature_kelvin",
	"Temperature read from the reference monitor at scrape time.",
	[]string{"channel"}, nil)

// monitorCollector exports every populated channel of a monitor
type monitorCollector struct {
	m *cryocon.Monitor
}

func (c monitorCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- monitorDesc
}

func (c monitorCollector) Collect(ch chan<- prometheus.Metric) {
	temps, err := c.m.ReadAll()
	if err != nil {
		ch <- prometheus.NewInvalidMetric(monitorDesc, err)
		return
	}
	for i, t := range temps {
		if math.IsNaN(t) {
			continue
		}
		ch <- prometheus.MustNewConstMetric(monitorDesc, prometheus.GaugeValue, t, strconv.Itoa(i))
	}
}

// describe is a one line summary of a run result
func describe(res sweep.Result, file string) string {
	s := fmt.Sprintf("%s after %d samples", res.Status, res.Samples)
	if res.Err != nil && sweep.KindOf(res.Err) != sweep.KindCancelled {
		s += fmt.Sprintf(" (%v)", res.Err)
	}
	if file != "" {
		s += ", data in " + file
	}
	return s
}

// progress is the spinner message for a run state
func progress(st sweep.RunState, started time.Time) string {
	el := time.Since(started).Round(time.Second)
	switch st.Phase {
	case sweep.Ramping:
		return fmt.Sprintf("ramping %s: %d samples, %.3f K, %.6g ohm", el, st.Samples, st.Temperature, st.Value)
	default:
		return fmt.Sprintf("%s %s", st.Phase, el)
	}
}
