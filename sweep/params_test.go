package sweep_test

import (
	"math"
	"testing"
	"time"

	"github.com/nasa-jpl/cryosweep/sweep"
	"github.com/stretchr/testify/assert"
)

func TestValidate(t *testing.T) {
	cases := []struct {
		name string
		mod  func(*sweep.RunParameters)
		ok   bool
	}{
		{"example", func(*sweep.RunParameters) {}, true},
		{"min equals max", func(p *sweep.RunParameters) { p.MinTemperature = 15 }, false},
		{"min above max", func(p *sweep.RunParameters) { p.MinTemperature = 20 }, false},
		{"zero ramp", func(p *sweep.RunParameters) { p.RampRate = 0 }, false},
		{"negative ramp", func(p *sweep.RunParameters) { p.RampRate = -1 }, false},
		{"zero dwell", func(p *sweep.RunParameters) { p.Dwell = 0 }, false},
		{"zero tolerance", func(p *sweep.RunParameters) { p.Tolerance = 0 }, false},
		{"negative settle", func(p *sweep.RunParameters) { p.Settle = -time.Second }, false},
		{"zero settle", func(p *sweep.RunParameters) { p.Settle = 0 }, true},
		{"zero poll", func(p *sweep.RunParameters) { p.PollInterval = 0 }, false},
		{"negative heater limit", func(p *sweep.RunParameters) { p.HeaterLimit = -1 }, false},
		{"NaN max", func(p *sweep.RunParameters) { p.MaxTemperature = math.NaN() }, false},
		{"infinite rate", func(p *sweep.RunParameters) { p.RampRate = math.Inf(1) }, false},
		{"negative timeout", func(p *sweep.RunParameters) { p.StabilizeTimeout = -1 }, false},
	}
	for _, c := range cases {
		p := exampleParams()
		c.mod(&p)
		err := p.Validate()
		if c.ok {
			assert.NoError(t, err, c.name)
			continue
		}
		assert.Equal(t, sweep.KindPreconditionViolated, sweep.KindOf(err), c.name)
	}
}

func TestDefaultParametersAreValid(t *testing.T) {
	assert.NoError(t, sweep.DefaultParameters().Validate())
}

func TestWithDefaults(t *testing.T) {
	p := sweep.RunParameters{MinTemperature: 1, MaxTemperature: 2, RampRate: 1, Dwell: time.Second}
	p = p.WithDefaults()
	assert.Equal(t, sweep.DefaultTolerance, p.Tolerance)
	assert.Equal(t, sweep.DefaultPollInterval, p.PollInterval)
	assert.Zero(t, p.Settle)

	p.Tolerance = 0.5
	assert.Equal(t, 0.5, p.WithDefaults().Tolerance)
}

func TestSettingsUseSeconds(t *testing.T) {
	s := sweep.Settings{MinTemperature: 10, MaxTemperature: 15, Dwell: 0.1, Settle: 10, PollInterval: 1}
	p := s.Parameters()
	assert.Equal(t, 100*time.Millisecond, p.Dwell)
	assert.Equal(t, 10*time.Second, p.Settle)
	assert.Equal(t, time.Second, p.PollInterval)
	assert.Equal(t, s, p.Settings())
}
