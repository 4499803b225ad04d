package keithley

import (
	"errors"
	"math"
	"sync"
)

// ErrNotConfigured is returned by the Mock when read before Configure
var ErrNotConfigured = errors.New("keithley: mock read before configure")

// Thermometer is anything that can report a temperature in Kelvin
type Thermometer interface {
	Read() (float64, error)
}

// Mock is a simulated meter measuring a thin film whose resistance follows
// R(T) = R0 * (1 + Alpha*(T-T0)) on the stage read through Stage
type Mock struct {
	sync.Mutex

	Stage Thermometer

	R0    float64
	T0    float64
	Alpha float64

	configured bool
	rng        float64
}

// NewMock returns a mock meter on the stage with a 1 kOhm film at 10 K
func NewMock(stage Thermometer) *Mock {
	return &Mock{Stage: stage, R0: 1e3, T0: 10, Alpha: 4e-3}
}

// Reset clears the configuration
func (m *Mock) Reset() error {
	m.Lock()
	defer m.Unlock()
	m.configured = false
	return nil
}

// Configure records the range
func (m *Mock) Configure(rng, nplc float64) error {
	m.Lock()
	defer m.Unlock()
	m.configured = true
	m.rng = rng
	return nil
}

// Read returns the film resistance, clipped to the range
func (m *Mock) Read() (float64, error) {
	m.Lock()
	defer m.Unlock()
	if !m.configured {
		return 0, ErrNotConfigured
	}
	t, err := m.Stage.Read()
	if err != nil {
		return 0, err
	}
	r := m.R0 * (1 + m.Alpha*(t-m.T0))
	if m.rng > 0 {
		r = math.Min(r, m.rng)
	}
	return r, nil
}
