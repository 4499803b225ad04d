package sweep_test

import (
	"errors"
	"fmt"
	"io"
	"log"
	"sync"
	"time"

	"github.com/nasa-jpl/cryosweep/sweep"
)

var errLink = errors.New("link down")

// fakeActuator reads temp, temp+step, temp+2*step, ...
type fakeActuator struct {
	mu sync.Mutex

	temp float64
	step float64

	reads     int
	calls     []string
	setpoints []float64
	ranges    []sweep.HeaterRange
	limits    []float64
	rampOn    bool
	rampRate  float64

	// failReadAt fails the n'th Read, 1-based
	failReadAt  int
	setpointErr func(float64) error
	disableErr  error
}

func (f *fakeActuator) record(call string) {
	f.calls = append(f.calls, call)
}

func (f *fakeActuator) SetSetpoint(k float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record(fmt.Sprintf("SetSetpoint(%g)", k))
	if f.setpointErr != nil {
		if err := f.setpointErr(k); err != nil {
			return err
		}
	}
	f.setpoints = append(f.setpoints, k)
	return nil
}

func (f *fakeActuator) SetRamp(on bool, rate float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record(fmt.Sprintf("SetRamp(%t, %g)", on, rate))
	f.rampOn = on
	f.rampRate = rate
	return nil
}

func (f *fakeActuator) Read() (float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reads++
	if f.failReadAt > 0 && f.reads == f.failReadAt {
		return 0, errLink
	}
	t := f.temp
	f.temp += f.step
	return t, nil
}

func (f *fakeActuator) DisableOutputs() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("DisableOutputs")
	return f.disableErr
}

func (f *fakeActuator) SetHeaterRange(r sweep.HeaterRange) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("SetHeaterRange(" + r.String() + ")")
	f.ranges = append(f.ranges, r)
	return nil
}

func (f *fakeActuator) SetHeaterLimit(amps float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record(fmt.Sprintf("SetHeaterLimit(%g)", amps))
	f.limits = append(f.limits, amps)
	return nil
}

func (f *fakeActuator) count(call string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c == call {
			n++
		}
	}
	return n
}

// plainActuator hides the optional heater capabilities
type plainActuator struct {
	sweep.TemperatureActuator
}

type fakeMeter struct {
	mu sync.Mutex

	value float64
	reads int
	calls []string

	failReadAt int
	resetErr   error
}

func (m *fakeMeter) Configure(rng, nplc float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, fmt.Sprintf("Configure(%g, %g)", rng, nplc))
	return nil
}

func (m *fakeMeter) Read() (float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reads++
	if m.failReadAt > 0 && m.reads == m.failReadAt {
		return 0, errLink
	}
	m.value++
	return m.value, nil
}

func (m *fakeMeter) Reset() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, "Reset")
	return m.resetErr
}

type recorder struct {
	samples []sweep.Sample
	hook    func(sweep.Sample) error
}

func (r *recorder) Emit(s sweep.Sample) error {
	if r.hook != nil {
		if err := r.hook(s); err != nil {
			return err
		}
	}
	r.samples = append(r.samples, s)
	return nil
}

type sleeps struct {
	mu sync.Mutex
	d  []time.Duration
}

func (s *sleeps) Sleep(d time.Duration) {
	s.mu.Lock()
	s.d = append(s.d, d)
	s.mu.Unlock()
}

// simClock is a clock that only moves when slept on
type simClock struct {
	mu sync.Mutex
	t  time.Time
}

func newSimClock() *simClock {
	return &simClock{t: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *simClock) Sleep(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func (c *simClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

var quiet = log.New(io.Discard, "", 0)

// exampleParams are the parameters of the 10 K to 15 K example
func exampleParams() sweep.RunParameters {
	return sweep.RunParameters{
		MinTemperature: 10,
		MaxTemperature: 15,
		Tolerance:      0.1,
		RampRate:       0.5,
		Dwell:          100 * time.Millisecond,
		Settle:         10 * time.Second,
		PollInterval:   time.Second,
	}
}

func newRig(sink sweep.SampleSink) (*sweep.Sequencer, *fakeActuator, *fakeMeter, *sleeps) {
	act := &fakeActuator{temp: 10, step: 1}
	meter := &fakeMeter{}
	sl := &sleeps{}
	seq := sweep.New(act, meter, sink)
	seq.Logger = quiet
	seq.Sleep = sl.Sleep
	return seq, act, meter, sl
}
