package sweep_test

import (
	"errors"
	"testing"

	"github.com/nasa-jpl/cryosweep/sweep"
	"github.com/stretchr/testify/assert"
)

func TestTeardownAttemptsEveryStepOnce(t *testing.T) {
	cases := []struct {
		name  string
		setup func(*fakeActuator, *fakeMeter)
	}{
		{"all ok", func(*fakeActuator, *fakeMeter) {}},
		{"reset fails", func(_ *fakeActuator, m *fakeMeter) { m.resetErr = errLink }},
		{"setpoint fails", func(a *fakeActuator, _ *fakeMeter) {
			a.setpointErr = func(float64) error { return errLink }
		}},
		{"disable fails", func(a *fakeActuator, _ *fakeMeter) { a.disableErr = errLink }},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			act, meter := &fakeActuator{}, &fakeMeter{}
			c.setup(act, meter)
			err := sweep.Teardown(act, meter, 0, quiet)
			assert.Equal(t, []string{"Reset"}, meter.calls)
			assert.Equal(t, []string{"SetSetpoint(0)", "DisableOutputs"}, act.calls)
			if c.name == "all ok" {
				assert.NoError(t, err)
				return
			}
			assert.True(t, errors.Is(err, errLink))
			assert.Equal(t, sweep.KindInstrumentIO, sweep.KindOf(err))
		})
	}
}

func TestTeardownJoinsFailures(t *testing.T) {
	act := &fakeActuator{
		setpointErr: func(float64) error { return errLink },
		disableErr:  errLink,
	}
	meter := &fakeMeter{resetErr: errLink}
	err := sweep.Teardown(act, meter, 300, nil)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "meter.Reset")
	assert.Contains(t, err.Error(), "actuator.SetSetpoint")
	assert.Contains(t, err.Error(), "actuator.DisableOutputs")
	assert.Equal(t, []string{"SetSetpoint(300)", "DisableOutputs"}, act.calls)
}
