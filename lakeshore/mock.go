package lakeshore

import (
	"math"
	"sync"
	"time"

	"github.com/nasa-jpl/cryosweep/sweep"
)

const (
	// mockTau is the thermal time constant of the simulated stage
	mockTau = 20 * time.Second

	// mockNoise is the peak sensor noise, K
	mockNoise = 1e-3
)

// Mock is a simulated controller.  The stage temperature relaxes toward the
// setpoint with a first order lag, or toward Base when the heater is off.
// With ramping enabled the setpoint walks toward its target at the ramp rate.
type Mock struct {
	sync.Mutex

	// Base is the temperature the stage cools to with no heat, K
	Base float64

	// Speed multiplies the passage of time, 1 is real time
	Speed float64

	// Now is the clock, defaults to time.Now
	Now func() time.Time

	temp     float64
	setpoint float64
	target   float64
	rampOn   bool
	rate     float64
	rng      sweep.HeaterRange
	limit    float64
	pid      [3]float64
	last     time.Time
	tick     int
}

// NewMock returns a Mock whose stage starts at temp
func NewMock(temp float64) *Mock {
	return &Mock{Base: temp, Speed: 1, temp: temp, setpoint: temp, target: temp}
}

func (m *Mock) now() time.Time {
	if m.Now == nil {
		return time.Now()
	}
	return m.Now()
}

// advance integrates the model up to now.  Must be called with the lock held.
func (m *Mock) advance() {
	now := m.now()
	if m.last.IsZero() {
		m.last = now
		return
	}
	dt := now.Sub(m.last).Seconds() * m.Speed
	m.last = now
	if dt <= 0 {
		return
	}
	if m.rampOn && m.rate > 0 {
		step := m.rate / 60 * dt
		switch {
		case m.target > m.setpoint:
			m.setpoint = math.Min(m.setpoint+step, m.target)
		case m.target < m.setpoint:
			m.setpoint = math.Max(m.setpoint-step, m.target)
		}
	} else {
		m.setpoint = m.target
	}
	goal := m.setpoint
	if m.rng == sweep.RangeOff {
		goal = m.Base
	}
	m.temp += (goal - m.temp) * (1 - math.Exp(-dt/mockTau.Seconds()))
}

// Read returns the stage temperature in Kelvin, with a little noise
func (m *Mock) Read() (float64, error) {
	m.Lock()
	defer m.Unlock()
	m.advance()
	m.tick++
	noise := mockNoise * math.Sin(float64(m.tick))
	return m.temp + noise, nil
}

// SetSetpoint sets the setpoint target.  Without ramping the setpoint jumps.
func (m *Mock) SetSetpoint(k float64) error {
	m.Lock()
	defer m.Unlock()
	m.advance()
	m.target = k
	if !m.rampOn {
		m.setpoint = k
	}
	return nil
}

// GetSetpoint returns the present, possibly ramping, setpoint
func (m *Mock) GetSetpoint() (float64, error) {
	m.Lock()
	defer m.Unlock()
	m.advance()
	return m.setpoint, nil
}

// SetRamp enables or disables ramping.  A ramp starts from the present
// stage temperature.
func (m *Mock) SetRamp(enabled bool, rate float64) error {
	m.Lock()
	defer m.Unlock()
	m.advance()
	if enabled && !m.rampOn {
		m.setpoint = m.temp
	}
	m.rampOn = enabled
	m.rate = rate
	return nil
}

// GetRamp returns the ramp state
func (m *Mock) GetRamp() (bool, float64, error) {
	m.Lock()
	defer m.Unlock()
	return m.rampOn, m.rate, nil
}

// SetHeaterRange sets the heater range
func (m *Mock) SetHeaterRange(r sweep.HeaterRange) error {
	m.Lock()
	defer m.Unlock()
	m.advance()
	m.rng = r
	return nil
}

// GetHeaterRange returns the heater range
func (m *Mock) GetHeaterRange() (sweep.HeaterRange, error) {
	m.Lock()
	defer m.Unlock()
	return m.rng, nil
}

// SetHeaterLimit records the current limit
func (m *Mock) SetHeaterLimit(amps float64) error {
	m.Lock()
	defer m.Unlock()
	m.limit = amps
	return nil
}

// SetPID records the gains
func (m *Mock) SetPID(p, i, d float64) error {
	m.Lock()
	defer m.Unlock()
	m.pid = [3]float64{p, i, d}
	return nil
}

// SetOutputMode validates the input and otherwise does nothing
func (m *Mock) SetOutputMode(mode OutputMode, input string, powerUp bool) error {
	_, err := inputNumber(input)
	return err
}

// DisableOutputs turns the heater off and stops any ramp
func (m *Mock) DisableOutputs() error {
	m.Lock()
	defer m.Unlock()
	m.advance()
	m.rng = sweep.RangeOff
	m.rampOn = false
	return nil
}

// Identification returns a fake *IDN? string
func (m *Mock) Identification() (string, error) {
	return "LSCI,MODEL336,MOCK,1.0", nil
}
