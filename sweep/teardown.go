package sweep

import (
	"errors"
	"log"
)

// Teardown leaves the instruments idle.  It resets the meter, sets the
// controller to safeSetpoint and turns off its outputs.  Every step is
// attempted once even if an earlier one failed.  Failures are logged and
// joined into the returned error.
func Teardown(act TemperatureActuator, meter QuantityMeter, safeSetpoint float64, logger *log.Logger) error {
	if logger == nil {
		logger = log.Default()
	}
	var errs []error
	step := func(op string, fn func() error) {
		if err := fn(); err != nil {
			logger.Printf("teardown: %s failed: %v", op, err)
			errs = append(errs, instrumentFault(op, err))
		}
	}
	step("meter.Reset", meter.Reset)
	step("actuator.SetSetpoint", func() error { return act.SetSetpoint(safeSetpoint) })
	step("actuator.DisableOutputs", act.DisableOutputs)
	return errors.Join(errs...)
}
