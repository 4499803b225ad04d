package sweep

import (
	"time"

	"github.com/nasa-jpl/cryosweep/util"
)

const (
	// DefaultTolerance is the convergence tolerance, K
	DefaultTolerance = 0.1

	// DefaultSettle is how long the controller sits at the minimum
	// temperature before the ramp starts
	DefaultSettle = 10 * time.Second

	// DefaultPollInterval is the stabilization polling period
	DefaultPollInterval = 1 * time.Second
)

// RunParameters configure one run.  They are copied when the run starts.
type RunParameters struct {
	// MinTemperature is where the ramp starts, K
	MinTemperature float64

	// MaxTemperature is where the ramp ends, K
	MaxTemperature float64

	// RampRate is the setpoint ramp rate, K/min
	RampRate float64

	// MeterRange is the meter measurement range, zero selects autorange
	MeterRange float64

	// MeterNPLC is the meter integration time in power line cycles, zero
	// leaves the meter's setting alone
	MeterNPLC float64

	// Dwell is the time between samples
	Dwell time.Duration

	// HeaterLimit caps the heater current, A.  Zero leaves it unset.
	HeaterLimit float64

	// Tolerance is the convergence tolerance, K
	Tolerance float64

	// Settle is how long to hold MinTemperature once reached
	Settle time.Duration

	// PollInterval is the stabilization polling period
	PollInterval time.Duration

	// SafeSetpoint is the setpoint left behind by Teardown, K
	SafeSetpoint float64

	// StabilizeTimeout bounds the stabilization, zero waits forever
	StabilizeTimeout time.Duration
}

// DefaultParameters returns the parameters of a 10 K to 15 K sweep at
// 0.5 K/min sampling a 200 kOhm range at 1 PLC every 100 ms
func DefaultParameters() RunParameters {
	return RunParameters{
		MinTemperature: 10,
		MaxTemperature: 15,
		RampRate:       0.5,
		MeterRange:     200e3,
		MeterNPLC:      1,
		Dwell:          100 * time.Millisecond,
		HeaterLimit:    2,
		Tolerance:      DefaultTolerance,
		Settle:         DefaultSettle,
		PollInterval:   DefaultPollInterval,
	}
}

// WithDefaults returns a copy of p with the unset fields whose zero value is
// not meaningful filled in
func (p RunParameters) WithDefaults() RunParameters {
	if p.Tolerance == 0 {
		p.Tolerance = DefaultTolerance
	}
	if p.PollInterval == 0 {
		p.PollInterval = DefaultPollInterval
	}
	return p
}

// Validate returns a KindPreconditionViolated Fault if p cannot be run
func (p RunParameters) Validate() error {
	if !util.Finite(p.MinTemperature, p.MaxTemperature, p.RampRate, p.MeterRange,
		p.MeterNPLC, p.HeaterLimit, p.Tolerance, p.SafeSetpoint) {
		return precondition("parameters must be finite")
	}
	if p.MinTemperature >= p.MaxTemperature {
		return precondition("min temperature %g K must be below max temperature %g K", p.MinTemperature, p.MaxTemperature)
	}
	if p.RampRate <= 0 {
		return precondition("ramp rate %g K/min must be positive", p.RampRate)
	}
	if p.Dwell <= 0 {
		return precondition("dwell %v must be positive", p.Dwell)
	}
	if p.Tolerance <= 0 {
		return precondition("tolerance %g K must be positive", p.Tolerance)
	}
	if p.Settle < 0 {
		return precondition("settle %v must not be negative", p.Settle)
	}
	if p.PollInterval <= 0 {
		return precondition("poll interval %v must be positive", p.PollInterval)
	}
	if p.HeaterLimit < 0 {
		return precondition("heater limit %g A must not be negative", p.HeaterLimit)
	}
	if p.MeterRange < 0 || p.MeterNPLC < 0 {
		return precondition("meter range and NPLC must not be negative")
	}
	if p.StabilizeTimeout < 0 {
		return precondition("stabilize timeout %v must not be negative", p.StabilizeTimeout)
	}
	return nil
}

// Settings are RunParameters in human units, seconds for every duration.
// They are the form used in configuration files, over HTTP and in data file
// headers.
type Settings struct {
	MinTemperature   float64 `yaml:"MinTemperature" json:"minTemperature" koanf:"MinTemperature"`
	MaxTemperature   float64 `yaml:"MaxTemperature" json:"maxTemperature" koanf:"MaxTemperature"`
	RampRate         float64 `yaml:"RampRate" json:"rampRate" koanf:"RampRate"`
	MeterRange       float64 `yaml:"MeterRange" json:"meterRange" koanf:"MeterRange"`
	MeterNPLC        float64 `yaml:"MeterNPLC" json:"meterNPLC" koanf:"MeterNPLC"`
	Dwell            float64 `yaml:"Dwell" json:"dwell" koanf:"Dwell"`
	HeaterLimit      float64 `yaml:"HeaterLimit" json:"heaterLimit" koanf:"HeaterLimit"`
	Tolerance        float64 `yaml:"Tolerance" json:"tolerance" koanf:"Tolerance"`
	Settle           float64 `yaml:"Settle" json:"settle" koanf:"Settle"`
	PollInterval     float64 `yaml:"PollInterval" json:"pollInterval" koanf:"PollInterval"`
	SafeSetpoint     float64 `yaml:"SafeSetpoint" json:"safeSetpoint" koanf:"SafeSetpoint"`
	StabilizeTimeout float64 `yaml:"StabilizeTimeout" json:"stabilizeTimeout" koanf:"StabilizeTimeout"`
}

// Parameters converts s to RunParameters
func (s Settings) Parameters() RunParameters {
	return RunParameters{
		MinTemperature:   s.MinTemperature,
		MaxTemperature:   s.MaxTemperature,
		RampRate:         s.RampRate,
		MeterRange:       s.MeterRange,
		MeterNPLC:        s.MeterNPLC,
		Dwell:            util.SecsToDuration(s.Dwell),
		HeaterLimit:      s.HeaterLimit,
		Tolerance:        s.Tolerance,
		Settle:           util.SecsToDuration(s.Settle),
		PollInterval:     util.SecsToDuration(s.PollInterval),
		SafeSetpoint:     s.SafeSetpoint,
		StabilizeTimeout: util.SecsToDuration(s.StabilizeTimeout),
	}
}

// Settings converts p to human units
func (p RunParameters) Settings() Settings {
	return Settings{
		MinTemperature:   p.MinTemperature,
		MaxTemperature:   p.MaxTemperature,
		RampRate:         p.RampRate,
		MeterRange:       p.MeterRange,
		MeterNPLC:        p.MeterNPLC,
		Dwell:            p.Dwell.Seconds(),
		HeaterLimit:      p.HeaterLimit,
		Tolerance:        p.Tolerance,
		Settle:           p.Settle.Seconds(),
		PollInterval:     p.PollInterval.Seconds(),
		SafeSetpoint:     p.SafeSetpoint,
		StabilizeTimeout: p.StabilizeTimeout.Seconds(),
	}
}
