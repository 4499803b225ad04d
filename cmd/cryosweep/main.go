package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/knadh/koanf"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/theckman/yacspin"

	"github.com/nasa-jpl/cryosweep/sink"
	"github.com/nasa-jpl/cryosweep/sweep"
	"github.com/nasa-jpl/cryosweep/util"

	yml "gopkg.in/yaml.v2"
)

var (
	// Version is the version number.  Typically injected via ldflags with git build
	Version = "1"

	// ConfigFileName is what it sounds like
	ConfigFileName = "cryosweep.yml"

	// EnvPrefix begins environment variables that override the config file,
	// e.g. CRYOSWEEP_CONTROLLER_ADDR
	EnvPrefix = "CRYOSWEEP_"

	k = koanf.New(".")
)

func defaultConfig() Config {
	return Config{
		Addr:      ":8000",
		MockSpeed: 1,
		Controller: ControllerSetup{
			Addr:  "192.168.100.40:7777",
			Baud:  57600,
			Loop:  1,
			Input: "A",
			P:     100,
			I:     50,
		},
		Meter: MeterSetup{
			Addr: "192.168.100.41:1234",
			GPIB: 12,
		},
		Run: sweep.DefaultParameters().Settings(),
		Output: OutputSetup{
			Root:   "data",
			Prefix: "T_SWEEP",
		},
		Limits: util.Limiter{Min: 1.5, Max: 325},
	}
}

// envKey maps CRYOSWEEP_CONTROLLER_ADDR to the existing key Controller.Addr
func envKey(s string) string {
	key := strings.ReplaceAll(strings.TrimPrefix(s, EnvPrefix), "_", ".")
	for _, known := range k.Keys() {
		if strings.EqualFold(known, key) {
			return known
		}
	}
	return key
}

func setupconfig() {
	k.Load(structs.Provider(defaultConfig(), "koanf"), nil)
	if err := k.Load(file.Provider(ConfigFileName), yaml.Parser()); err != nil {
		errtxt := err.Error()
		if !strings.Contains(errtxt, "no such") { // file missing, who cares
			log.Fatalf("error loading config: %v", err)
		}
	}
	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		log.Fatalf("error loading environment: %v", err)
	}
}

func root() {
	str := `cryosweep ramps a cryostat temperature controller while logging a resistance
meter, writing each sweep to a CSV file.  It can also serve the instruments and
the sweeps over HTTP.

Usage:
	cryosweep <command>

Commands:
	run
	serve
	help
	mkconf
	conf
	version`
	fmt.Println(str)
}

func help() {
	str := `cryosweep is amenable to configuration via its .yaml file.  For a primer on YAML, see
https://yaml.org/start.html

Any value may be overridden by an environment variable, e.g.
CRYOSWEEP_CONTROLLER_ADDR=/dev/ttyUSB0 or CRYOSWEEP_RUN_MAXTEMPERATURE=20

run performs one sweep with the Run settings and exits.  Ctrl-C stops the sweep
early; the instruments are always left with the heaters off and the setpoint at
SafeSetpoint.

serve listens at Addr and exposes:
- /controller  temperature, setpoint, ramp and heater routes
- /generator   function generator routes, if Generator.Addr is set
- /monitor     reference thermometer readings, if Monitor.Addr is set
- /sweep       POST /run, POST /stop, GET /status, GET /samples?since=N, GET /params
- /metrics     Prometheus metrics
- /endpoints   every route
While a sweep runs it owns the controller: /controller/temperature answers from the
sweep and every other controller route returns 423 (locked).

Supported hardware:
- Lakeshore
	> 332, 335, 336 temperature controllers (serial or TCP)
- Keithley
	> 2001 multimeter behind a Prologix GPIB-Ethernet bridge
- OR-X
	> ORX, ORX325 function generators
- Cryo-con
	> 12, 14, 18i temperature monitors (TCP)

Set Mock: true to use simulated instruments, MockSpeed speeds them up.`
	fmt.Println(str)
}

func mkconf() {
	c := Config{}
	err := k.Unmarshal("", &c)
	if err != nil {
		log.Fatal(err)
	}
	f, err := os.Create(ConfigFileName)
	if err != nil {
		log.Fatal(err)
	}
	defer f.Close()
	err = yml.NewEncoder(f).Encode(c)
	if err != nil {
		log.Fatal(err)
	}
}

func printconf() {
	c := Config{}
	k.Unmarshal("", &c)
	err := yml.NewEncoder(os.Stdout).Encode(c)
	if err != nil {
		log.Fatal(err)
	}
}

func pversion() {
	fmt.Printf("cryosweep version %v\n", Version)
}

func loadConfig() Config {
	c := Config{}
	err := k.Unmarshal("", &c)
	if err != nil {
		log.Fatal(err)
	}
	return c
}

func run() {
	c := loadConfig()
	params := c.Run.Parameters().WithDefaults()
	if err := params.Validate(); err != nil {
		log.Fatal(err)
	}
	if !c.Limits.Check(params.MinTemperature) || !c.Limits.Check(params.MaxTemperature) {
		log.Fatalf("run from %g to %g K violates the limits %g to %g K",
			params.MinTemperature, params.MaxTemperature, c.Limits.Min, c.Limits.Max)
	}

	inst := Connect(c)
	if err := PrepareLoop(inst.Controller, c.Controller); err != nil {
		log.Fatal(err)
	}
	fn := sink.UniqueFilename(c.Output.Root, c.Output.Prefix, time.Now())
	csv, err := sink.CreateCSV(fn, params.Settings())
	if err != nil {
		log.Fatal(err)
	}

	seq := NewSequencer(inst)
	seq.Sink = csv

	flag := &sweep.Flag{}
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt)
	go func() {
		<-sigs
		flag.Set()
	}()

	spinner, err := yacspin.New(yacspin.Config{
		Frequency:         250 * time.Millisecond,
		CharSet:           yacspin.CharSets[14],
		Suffix:            " ",
		StopCharacter:     "✓",
		StopColors:        []string{"fgGreen"},
		StopFailCharacter: "✗",
		StopFailColors:    []string{"fgRed"},
	})
	if err != nil {
		log.Fatal(err)
	}
	// the spinner owns the terminal while it runs
	seq.Logger = log.New(io.Discard, "", 0)
	spinner.Start()

	started := time.Now()
	done := make(chan struct{})
	go func() {
		tick := time.NewTicker(500 * time.Millisecond)
		defer tick.Stop()
		for {
			select {
			case <-done:
				return
			case <-tick.C:
				spinner.Message(progress(seq.State(), started))
			}
		}
	}()
	res, err := seq.Run(params, flag)
	close(done)
	cerr := csv.Close()
	if err != nil {
		spinner.StopFailMessage(err.Error())
		spinner.StopFail()
		os.Exit(1)
	}
	msg := describe(res, fn)
	if res.Teardown != nil {
		msg += fmt.Sprintf("; teardown: %v", res.Teardown)
	}
	if cerr != nil {
		msg += fmt.Sprintf("; closing %s: %v", fn, cerr)
	}
	if inst.Generator != nil {
		if err := inst.Generator.DisableOutput(); err != nil {
			msg += fmt.Sprintf("; generator: %v", err)
		}
	}
	if res.Status == sweep.Faulted || res.Teardown != nil || cerr != nil {
		spinner.StopFailMessage(msg)
		spinner.StopFail()
		os.Exit(1)
	}
	spinner.StopMessage(msg)
	spinner.Stop()
}

func serve() {
	c := loadConfig()
	inst := Connect(c)
	if err := PrepareLoop(inst.Controller, c.Controller); err != nil {
		log.Println("error preparing the control loop:", err)
	}
	reg := prometheus.NewRegistry()
	srv := BuildMux(c, inst, reg)
	hs := &http.Server{Addr: c.Addr, Handler: srv.Mux}

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt)
	go func() {
		<-sigs
		log.Println("shutting down")
		if srv.Manager.Stop() == nil {
			out := srv.Manager.Wait()
			log.Println("sweep stopped:", out.Status)
		}
		if inst.Generator != nil {
			if err := inst.Generator.DisableOutput(); err != nil {
				log.Println("error disabling generator output:", err)
			}
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		hs.Shutdown(ctx)
	}()

	log.Println("now listening for requests at ", c.Addr)
	if err := hs.ListenAndServe(); err != http.ErrServerClosed {
		log.Fatal(err)
	}
}

func main() {
	var cmd string
	args := os.Args
	if len(args) == 1 {
		root()
		return
	}
	setupconfig()
	cmd = args[1]
	cmd = strings.ToLower(cmd)
	switch cmd {
	case "help":
		help()
		return
	case "mkconf":
		mkconf()
		return
	case "conf":
		printconf()
		return
	case "run":
		run()
		return
	case "serve":
		serve()
		return
	case "version":
		pversion()
		return
	default:
		log.Fatal("unknown command")
	}
}
