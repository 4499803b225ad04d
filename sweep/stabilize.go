package sweep

import (
	"log"
	"math"
	"time"
)

type stabilizeConfig struct {
	cancel  CancellationSource
	timeout time.Duration
	sleep   func(time.Duration)
	now     func() time.Time
	logger  *log.Logger
	reading func(float64)
}

// StabilizeOption configures Stabilize
type StabilizeOption func(*stabilizeConfig)

// WithCancellation makes Stabilize check src once per poll and return a
// KindCancelled Fault when it is set
func WithCancellation(src CancellationSource) StabilizeOption {
	return func(c *stabilizeConfig) { c.cancel = src }
}

// WithTimeout makes Stabilize return a KindTimeout Fault if the temperature
// has not converged after d.  Zero waits forever.
func WithTimeout(d time.Duration) StabilizeOption {
	return func(c *stabilizeConfig) { c.timeout = d }
}

// WithSleep replaces time.Sleep
func WithSleep(fn func(time.Duration)) StabilizeOption {
	return func(c *stabilizeConfig) { c.sleep = fn }
}

// WithClock replaces time.Now for measuring the timeout.  Pair it with
// WithSleep so a simulated sleep advances the clock.
func WithClock(fn func() time.Time) StabilizeOption {
	return func(c *stabilizeConfig) { c.now = fn }
}

// WithReadings calls fn with every temperature read
func WithReadings(fn func(float64)) StabilizeOption {
	return func(c *stabilizeConfig) { c.reading = fn }
}

// WithLogger sets the logger for progress messages
func WithLogger(l *log.Logger) StabilizeOption {
	return func(c *stabilizeConfig) { c.logger = l }
}

/*Stabilize commands act to target and waits for it to get there.

The setpoint is written once, then the temperature is read every poll until
it is within tolerance of target, at which point Stabilize sleeps for settle
and returns nil.  Instrument errors are returned immediately as KindInstrumentIO
Faults without retry.

With no options the wait is unbounded, thermal systems take as long as they
take.  WithCancellation and WithTimeout bound it.
*/
func Stabilize(act TemperatureActuator, target, tolerance float64, settle, poll time.Duration, opts ...StabilizeOption) error {
	cfg := stabilizeConfig{sleep: time.Sleep, now: time.Now, logger: log.Default()}
	for _, opt := range opts {
		opt(&cfg)
	}
	err := act.SetSetpoint(target)
	if err != nil {
		return instrumentFault("actuator.SetSetpoint", err)
	}
	start := cfg.now()
	for {
		t, err := act.Read()
		if err != nil {
			return instrumentFault("actuator.Read", err)
		}
		if cfg.reading != nil {
			cfg.reading(t)
		}
		if math.Abs(t-target) < tolerance {
			cfg.logger.Printf("temperature reached %.3f K, settling for %v", t, settle)
			cfg.sleep(settle)
			return nil
		}
		cfg.logger.Printf("current temperature: %.3f K", t)
		if cancelled(cfg.cancel) {
			return &Fault{Kind: KindCancelled, Op: "stabilize", Err: ErrCancelled}
		}
		if cfg.timeout > 0 && cfg.now().Sub(start) >= cfg.timeout {
			return &Fault{Kind: KindTimeout, Op: "stabilize", Err: ErrStabilizeTimeout}
		}
		cfg.sleep(poll)
	}
}
