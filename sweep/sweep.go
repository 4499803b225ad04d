/*Package sweep drives a temperature ramp while sampling a meter.

A run walks the states Idle, Stabilizing, Ramping and then one of Completed,
Cancelled or Faulted.  The controller is first parked at the minimum
temperature, then commanded once to ramp to the maximum.  While the ramp is in
flight the meter and the controller are polled every Dwell and each pair of
readings is emitted to a SampleSink.  Whatever the outcome, the instruments
are left idle by Teardown.

A minimal use looks like

	seq := sweep.New(ctl, meter, sink)
	flag := &sweep.Flag{}
	res, err := seq.Run(params, flag)

where ctl and meter satisfy TemperatureActuator and QuantityMeter.
*/
package sweep

import "time"

// TemperatureActuator is a temperature controller with a single control loop
type TemperatureActuator interface {
	// SetSetpoint sets the control setpoint in Kelvin
	SetSetpoint(kelvin float64) error

	// SetRamp enables or disables setpoint ramping at the given rate, K/min
	SetRamp(enabled bool, kelvinPerMinute float64) error

	// Read returns the current temperature in Kelvin
	Read() (float64, error)

	// DisableOutputs turns every heater off
	DisableOutputs() error
}

// QuantityMeter measures the dependent quantity, e.g. resistance
type QuantityMeter interface {
	// Configure sets the measurement range and integration time (power line cycles)
	Configure(rng, nplc float64) error

	// Read takes one measurement
	Read() (float64, error)

	// Reset returns the meter to its idle power-on state
	Reset() error
}

// HeaterRange is the output range of a heater
type HeaterRange int

const (
	// RangeOff disables the heater
	RangeOff HeaterRange = iota

	// RangeLow is the lowest power range
	RangeLow

	// RangeMedium is the middle power range
	RangeMedium

	// RangeHigh is the highest power range
	RangeHigh
)

func (r HeaterRange) String() string {
	switch r {
	case RangeOff:
		return "off"
	case RangeLow:
		return "low"
	case RangeMedium:
		return "medium"
	case RangeHigh:
		return "high"
	default:
		return "unknown"
	}
}

// HeaterRanger is an actuator whose heater power range can be selected.
// The low range is used while stabilizing and the high range while ramping.
type HeaterRanger interface {
	SetHeaterRange(HeaterRange) error
}

// HeaterLimiter is an actuator whose heater current can be capped
type HeaterLimiter interface {
	SetHeaterLimit(amps float64) error
}

// Sample is one pair of readings taken during the ramp
type Sample struct {
	// Index counts from zero without gaps within a run
	Index int `json:"index"`

	// Temperature is the controller reading, K
	Temperature float64 `json:"temperature"`

	// Value is the meter reading
	Value float64 `json:"value"`

	// Time is when the sample was taken
	Time time.Time `json:"time"`
}

// SampleSink receives samples in order.  Emit is called synchronously from
// the run, a slow sink slows the run.
type SampleSink interface {
	Emit(Sample) error
}

// SinkFunc adapts a function to a SampleSink
type SinkFunc func(Sample) error

// Emit calls f(s)
func (f SinkFunc) Emit(s Sample) error {
	return f(s)
}
