package sweep

import (
	"fmt"
	"log"
	"math"
	"sync"
	"time"
)

// Phase is the state of a Sequencer
type Phase int

const (
	// Idle is the state between runs
	Idle Phase = iota

	// Stabilizing is the approach to the minimum temperature
	Stabilizing

	// Ramping is the acquisition loop
	Ramping

	// Completed is a run that reached the maximum temperature
	Completed

	// Cancelled is a run stopped by its CancellationSource
	Cancelled

	// Faulted is a run stopped by an error
	Faulted
)

func (p Phase) String() string {
	switch p {
	case Idle:
		return "idle"
	case Stabilizing:
		return "stabilizing"
	case Ramping:
		return "ramping"
	case Completed:
		return "completed"
	case Cancelled:
		return "cancelled"
	case Faulted:
		return "faulted"
	default:
		return "unknown"
	}
}

// MarshalText encodes the phase by name
func (p Phase) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// UnmarshalText decodes a phase name written by MarshalText
func (p *Phase) UnmarshalText(b []byte) error {
	for q := Idle; q <= Faulted; q++ {
		if q.String() == string(b) {
			*p = q
			return nil
		}
	}
	return fmt.Errorf("sweep: unknown phase %q", b)
}

// RunState is a snapshot of a run in progress
type RunState struct {
	Phase          Phase   `json:"phase"`
	Temperature    float64 `json:"temperature"`
	Value          float64 `json:"value"`
	Samples        int     `json:"samples"`
	CancelObserved bool    `json:"cancelObserved"`
}

// Result is the outcome of a run
type Result struct {
	// Status is Completed, Cancelled or Faulted
	Status Phase

	// Err is why the run did not complete, nil if it did
	Err error

	// Samples is the number of samples emitted
	Samples int

	// Teardown is the error from Teardown, it does not change Status
	Teardown error
}

// Sequencer runs sweeps over one controller and one meter.  It borrows the
// instruments for the duration of a run and never closes them.
type Sequencer struct {
	Actuator TemperatureActuator
	Meter    QuantityMeter

	// Sink receives the samples, may be nil
	Sink SampleSink

	// Logger defaults to log.Default()
	Logger *log.Logger

	// Sleep defaults to time.Sleep
	Sleep func(time.Duration)

	// Now defaults to time.Now
	Now func() time.Time

	mu      sync.Mutex
	running bool
	state   RunState
}

// New returns a Sequencer with the default logger, sleep and clock
func New(act TemperatureActuator, meter QuantityMeter, sink SampleSink) *Sequencer {
	return &Sequencer{Actuator: act, Meter: meter, Sink: sink}
}

// State returns a copy of the current run state
func (s *Sequencer) State() RunState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Running returns true while a run is in progress
func (s *Sequencer) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

func (s *Sequencer) update(fn func(*RunState)) {
	s.mu.Lock()
	fn(&s.state)
	s.mu.Unlock()
}

func (s *Sequencer) setPhase(p Phase) {
	s.update(func(st *RunState) { st.Phase = p })
	s.logger().Println("sweep:", p)
}

func (s *Sequencer) logger() *log.Logger {
	if s.Logger == nil {
		return log.Default()
	}
	return s.Logger
}

func (s *Sequencer) sleep(d time.Duration) {
	if s.Sleep == nil {
		time.Sleep(d)
		return
	}
	s.Sleep(d)
}

func (s *Sequencer) now() time.Time {
	if s.Now == nil {
		return time.Now()
	}
	return s.Now()
}

/*Run performs one sweep and blocks until it is over and the instruments have
been torn down.  cancel may be nil.

Invalid parameters produce a Faulted result with a KindPreconditionViolated
error before any instrument is touched, and no teardown.  Otherwise Teardown
runs exactly once, whatever the outcome.

The returned error is ErrBusy if another run is in progress, the outcome of
the run itself is in the Result.
*/
func (s *Sequencer) Run(params RunParameters, cancel CancellationSource) (Result, error) {
	p := params.WithDefaults()
	if err := p.Validate(); err != nil {
		return Result{Status: Faulted, Err: err}, nil
	}
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return Result{}, ErrBusy
	}
	s.running = true
	s.state = RunState{Phase: Idle}
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.running = false
		s.state = RunState{Phase: Idle}
		s.mu.Unlock()
	}()

	res := s.execute(p, cancel)
	s.setPhase(res.Status)
	if res.Err != nil {
		s.logger().Printf("sweep: run ended with %d samples: %v", res.Samples, res.Err)
	} else {
		s.logger().Printf("sweep: run ended with %d samples", res.Samples)
	}
	res.Teardown = Teardown(s.Actuator, s.Meter, p.SafeSetpoint, s.logger())
	return res, nil
}

func (s *Sequencer) execute(p RunParameters, cancel CancellationSource) Result {
	act, meter := s.Actuator, s.Meter
	ranger, hasRanger := act.(HeaterRanger)
	faulted := func(n int, err error) Result {
		return Result{Status: Faulted, Err: err, Samples: n}
	}

	s.setPhase(Stabilizing)
	if err := meter.Reset(); err != nil {
		return faulted(0, instrumentFault("meter.Reset", err))
	}
	if err := meter.Configure(p.MeterRange, p.MeterNPLC); err != nil {
		return faulted(0, instrumentFault("meter.Configure", err))
	}
	if limiter, ok := act.(HeaterLimiter); ok && p.HeaterLimit > 0 {
		if err := limiter.SetHeaterLimit(p.HeaterLimit); err != nil {
			return faulted(0, instrumentFault("actuator.SetHeaterLimit", err))
		}
	}
	if hasRanger {
		if err := ranger.SetHeaterRange(RangeLow); err != nil {
			return faulted(0, instrumentFault("actuator.SetHeaterRange", err))
		}
	}
	err := Stabilize(act, p.MinTemperature, p.Tolerance, p.Settle, p.PollInterval,
		WithCancellation(cancel),
		WithTimeout(p.StabilizeTimeout),
		WithSleep(s.sleep),
		WithClock(s.now),
		WithReadings(func(t float64) {
			s.update(func(st *RunState) { st.Temperature = t })
		}),
		WithLogger(s.logger()))
	if err != nil {
		if KindOf(err) == KindCancelled {
			s.update(func(st *RunState) { st.CancelObserved = true })
			return Result{Status: Cancelled, Err: err}
		}
		return faulted(0, err)
	}

	s.setPhase(Ramping)
	if err := act.SetSetpoint(p.MaxTemperature); err != nil {
		return faulted(0, instrumentFault("actuator.SetSetpoint", err))
	}
	if hasRanger {
		if err := ranger.SetHeaterRange(RangeHigh); err != nil {
			return faulted(0, instrumentFault("actuator.SetHeaterRange", err))
		}
	}
	if err := act.SetRamp(true, p.RampRate); err != nil {
		return faulted(0, instrumentFault("actuator.SetRamp", err))
	}

	for n := 0; ; {
		s.sleep(p.Dwell)
		v, err := meter.Read()
		if err != nil {
			return faulted(n, instrumentFault("meter.Read", err))
		}
		t, err := act.Read()
		if err != nil {
			return faulted(n, instrumentFault("actuator.Read", err))
		}
		smp := Sample{Index: n, Temperature: t, Value: v, Time: s.now()}
		if s.Sink != nil {
			if err := s.Sink.Emit(smp); err != nil {
				return faulted(n, &Fault{Kind: KindSinkIO, Op: "sink.Emit", Err: err})
			}
		}
		n++
		s.update(func(st *RunState) {
			st.Temperature = t
			st.Value = v
			st.Samples = n
		})

		// convergence wins over a stop request in the same iteration
		if math.Abs(t-p.MaxTemperature) < p.Tolerance {
			return Result{Status: Completed, Samples: n}
		}
		if cancelled(cancel) {
			s.update(func(st *RunState) { st.CancelObserved = true })
			return Result{Status: Cancelled, Err: &Fault{Kind: KindCancelled, Op: "ramp", Err: ErrCancelled}, Samples: n}
		}
	}
}
