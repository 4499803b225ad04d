/*Package lakeshore provides tools for working with Lakeshore 332, 335 and 336
temperature controllers.

*/
package lakeshore

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/nasa-jpl/cryosweep/comm"
	"github.com/nasa-jpl/cryosweep/sweep"
	perrors "github.com/pkg/errors"
	"github.com/tarm/serial"
	"golang.org/x/time/rate"
)

// per the Lakeshore 33x manuals, the temperature controller serial interface
// uses the following schema:

// baud 9600 (332) or 57600 (335, 336)
// 10 bits per character, 1 start 7 data, 1 parity, 1 stop
// odd parity
// terminator CRLF
// < 20 commands per second

// command messages look like <command><space><parameter data><terminators>
// query messages look like <query mnemonic><?><space><parameter data><terminators>
//
// the 336 also listens on TCP port 7777 with the same syntax

const (
	// MaxCommandsPerSecond is the command rate the controller tolerates
	MaxCommandsPerSecond = 19

	// DefaultBaud is the baud rate of the 335 and 336
	DefaultBaud = 57600
)

// OutputMode is the control mode of a heater output
type OutputMode int

const (
	// ModeOff disables the output
	ModeOff OutputMode = iota

	// ModeClosedLoop is PID control
	ModeClosedLoop

	// ModeZone is PID control with gains from the zone table
	ModeZone

	// ModeOpenLoop is manual output
	ModeOpenLoop
)

// heater resistance and display codes of HTRSET
const (
	heater25Ohm  = 1
	userCurrent  = 0
	displayPower = 2
)

// ErrBadInput is returned when an input channel is not one of A, B, C, D
var ErrBadInput = errors.New("lakeshore: input must be one of A, B, C, D")

func makeSerConf(addr string, baud int) *serial.Config {
	return &serial.Config{
		Name:        addr,
		Baud:        baud,
		Size:        7,
		Parity:      serial.ParityOdd,
		StopBits:    serial.Stop1,
		ReadTimeout: 1 * time.Second}
}

// Controller is a Lakeshore 33x temperature controller.  Loop is the heater
// output used for control and Input the sensor input read by Read.
type Controller struct {
	*comm.RemoteDevice

	// Loop is the control loop / heater output, 1-based
	Loop int

	// Input is the sensor input, A through D
	Input string

	// Outputs is the number of heater outputs turned off by DisableOutputs
	Outputs int

	// Limiter paces commands
	Limiter *rate.Limiter
}

// NewController returns a new Controller instance.  If baud is zero,
// DefaultBaud is used.
func NewController(addr string, serial bool, baud int) *Controller {
	if baud == 0 {
		baud = DefaultBaud
	}
	rd := comm.NewRemoteDevice(addr, serial, &comm.LF, makeSerConf(addr, baud))
	return &Controller{
		RemoteDevice: rd,
		Loop:         1,
		Input:        "A",
		Outputs:      2,
		Limiter:      rate.NewLimiter(rate.Every(time.Second/MaxCommandsPerSecond), 1),
	}
}

func (c *Controller) pace() error {
	if c.Limiter == nil {
		return nil
	}
	return c.Limiter.Wait(context.Background())
}

func (c *Controller) write(cmd string) error {
	err := c.Open()
	if err != nil {
		return err
	}
	defer c.CloseEventually()
	if err = c.pace(); err != nil {
		return err
	}
	// LF is appended by the RemoteDevice
	return perrors.Wrapf(c.Send([]byte(cmd+"\r")), "lakeshore: %s", cmd)
}

func (c *Controller) query(cmd string) (string, error) {
	err := c.Open()
	if err != nil {
		return "", err
	}
	defer c.CloseEventually()
	if err = c.pace(); err != nil {
		return "", err
	}
	resp, err := c.SendRecv([]byte(cmd + "\r"))
	if err != nil {
		return "", perrors.Wrapf(err, "lakeshore: %s", cmd)
	}
	return strings.TrimSpace(string(resp)), nil
}

func (c *Controller) queryFloat(cmd string) (float64, error) {
	resp, err := c.query(cmd)
	if err != nil {
		return 0, err
	}
	f, err := strconv.ParseFloat(resp, 64)
	return f, perrors.Wrapf(err, "lakeshore: %s", cmd)
}

func (c *Controller) queryFloats(cmd string, n int) ([]float64, error) {
	resp, err := c.query(cmd)
	if err != nil {
		return nil, err
	}
	pieces := strings.Split(resp, ",")
	if len(pieces) != n {
		return nil, fmt.Errorf("lakeshore: %s: expected %d values, got %q", cmd, n, resp)
	}
	out := make([]float64, n)
	for i, p := range pieces {
		out[i], err = strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return nil, perrors.Wrapf(err, "lakeshore: %s", cmd)
		}
	}
	return out, nil
}

func inputNumber(in string) (int, error) {
	switch strings.ToUpper(in) {
	case "A":
		return 1, nil
	case "B":
		return 2, nil
	case "C":
		return 3, nil
	case "D":
		return 4, nil
	default:
		return 0, ErrBadInput
	}
}

// Identification returns the *IDN? string of the controller
func (c *Controller) Identification() (string, error) {
	return c.query("*IDN?")
}

// Read returns the temperature of Input in Kelvin
func (c *Controller) Read() (float64, error) {
	return c.queryFloat("KRDG? " + c.Input)
}

// ReadInput returns the temperature of any input in Kelvin
func (c *Controller) ReadInput(in string) (float64, error) {
	if _, err := inputNumber(in); err != nil {
		return 0, err
	}
	return c.queryFloat("KRDG? " + strings.ToUpper(in))
}

// SetSetpoint sets the setpoint of Loop in Kelvin
func (c *Controller) SetSetpoint(k float64) error {
	return c.write(fmt.Sprintf("SETP %d,%.3f", c.Loop, k))
}

// GetSetpoint returns the setpoint of Loop in Kelvin.  While ramping this
// is the moving setpoint, not the target.
func (c *Controller) GetSetpoint() (float64, error) {
	return c.queryFloat(fmt.Sprintf("SETP? %d", c.Loop))
}

// SetRamp enables or disables setpoint ramping of Loop at rate K/min
func (c *Controller) SetRamp(enabled bool, rate float64) error {
	on := 0
	if enabled {
		on = 1
	}
	return c.write(fmt.Sprintf("RAMP %d,%d,%g", c.Loop, on, rate))
}

// GetRamp returns whether ramping is enabled and the rate in K/min
func (c *Controller) GetRamp() (bool, float64, error) {
	fs, err := c.queryFloats(fmt.Sprintf("RAMP? %d", c.Loop), 2)
	if err != nil {
		return false, 0, err
	}
	return fs[0] == 1, fs[1], nil
}

// SetHeaterRange sets the heater range of Loop
func (c *Controller) SetHeaterRange(r sweep.HeaterRange) error {
	return c.setRange(c.Loop, r)
}

func (c *Controller) setRange(output int, r sweep.HeaterRange) error {
	return c.write(fmt.Sprintf("RANGE %d,%d", output, int(r)))
}

// GetHeaterRange returns the heater range of Loop
func (c *Controller) GetHeaterRange() (sweep.HeaterRange, error) {
	f, err := c.queryFloat(fmt.Sprintf("RANGE? %d", c.Loop))
	return sweep.HeaterRange(f), err
}

// SetHeaterLimit configures the heater of Loop as 25 Ohm with a user
// specified maximum current and power display
func (c *Controller) SetHeaterLimit(amps float64) error {
	return c.write(fmt.Sprintf("HTRSET %d,%d,%d,%.3f,%d", c.Loop, heater25Ohm, userCurrent, amps, displayPower))
}

// SetOutputMode sets the control mode of Loop and the input that feeds it.
// If powerUp is true the output stays enabled after a power cycle.
func (c *Controller) SetOutputMode(mode OutputMode, input string, powerUp bool) error {
	in, err := inputNumber(input)
	if err != nil {
		return err
	}
	pu := 0
	if powerUp {
		pu = 1
	}
	return c.write(fmt.Sprintf("OUTMODE %d,%d,%d,%d", c.Loop, int(mode), in, pu))
}

// SetPID sets the gains of Loop
func (c *Controller) SetPID(p, i, d float64) error {
	return c.write(fmt.Sprintf("PID %d,%g,%g,%g", c.Loop, p, i, d))
}

// PID reads the PID constants of Loop from the controller:
// kP - linear / proportional term
// kI - integral term
// kD - derivative term
func (c *Controller) PID() ([]float64, error) {
	return c.queryFloats(fmt.Sprintf("PID? %d", c.Loop), 3)
}

// HeaterOutput reads the heater output of Loop in %
func (c *Controller) HeaterOutput() (float64, error) {
	return c.queryFloat(fmt.Sprintf("HTR? %d", c.Loop))
}

// DisableOutputs sets every heater output to the off range.  All outputs
// are attempted even if one fails.
func (c *Controller) DisableOutputs() error {
	n := c.Outputs
	if n == 0 {
		n = 1
	}
	var errs []error
	for i := 1; i <= n; i++ {
		if err := c.setRange(i, sweep.RangeOff); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
