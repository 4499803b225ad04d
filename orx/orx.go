// Package orx provides an interface to ORX and ORX325 function generators
package orx

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/nasa-jpl/cryosweep/comm"
	"github.com/pkg/errors"
	"github.com/tarm/serial"
	"golang.org/x/time/rate"
)

// the generator is slow to digest commands, two per second is safe
const commandInterval = 500 * time.Millisecond

// makeSerConf makes a new serial.Config with correct parity, baud, etc, set.
func makeSerConf(addr string) *serial.Config {
	return &serial.Config{
		Name:        addr,
		Baud:        9600,
		Size:        8,
		Parity:      serial.ParityNone,
		StopBits:    serial.Stop1,
		ReadTimeout: 1 * time.Second}
}

// FunctionGenerator is an interface to hardware of the same name
type FunctionGenerator struct {
	*comm.RemoteDevice

	// Limiter paces commands
	Limiter *rate.Limiter
}

// NewFunctionGenerator creates a new FunctionGenerator instance with
// the communication set up
func NewFunctionGenerator(addr string, serial bool) *FunctionGenerator {
	rd := comm.NewRemoteDevice(addr, serial, &comm.LF, makeSerConf(addr))
	return &FunctionGenerator{
		RemoteDevice: rd,
		Limiter:      rate.NewLimiter(rate.Every(commandInterval), 1),
	}
}

func (f *FunctionGenerator) pace() error {
	if f.Limiter == nil {
		return nil
	}
	return f.Limiter.Wait(context.Background())
}

func (f *FunctionGenerator) writeOnlyBus(cmds ...string) error {
	err := f.RemoteDevice.Open()
	if err != nil {
		return err
	}
	defer f.CloseEventually()
	if err = f.pace(); err != nil {
		return err
	}
	s := strings.Join(cmds, " ")
	return errors.Wrapf(f.RemoteDevice.Send([]byte(s+"\r")), "orx: %s", s)
}

func (f *FunctionGenerator) readString(cmds ...string) (string, error) {
	err := f.RemoteDevice.Open()
	if err != nil {
		return "", err
	}
	defer f.CloseEventually()
	if err = f.pace(); err != nil {
		return "", err
	}
	s := strings.Join(cmds, " ")
	resp, err := f.RemoteDevice.SendRecv([]byte(s + "\r"))
	if err != nil {
		return "", errors.Wrapf(err, "orx: %s", s)
	}
	return strings.TrimSpace(string(resp)), nil
}

func (f *FunctionGenerator) readFloat(cmds ...string) (float64, error) {
	resp, err := f.readString(cmds...)
	if err != nil {
		return 0, err
	}
	// some firmware echoes the unit, e.g. 100HZ
	resp = strings.TrimRight(resp, "HZVhzv")
	return strconv.ParseFloat(resp, 64)
}

// Identification returns the *IDN? string
func (f *FunctionGenerator) Identification() (string, error) {
	return f.readString("*IDN?")
}

// SetFunction configures the output function used by the generator,
// e.g. SIN, SQU, TRI
func (f *FunctionGenerator) SetFunction(fcn string) error {
	return f.writeOnlyBus("FUNC", strings.ToUpper(fcn))
}

// GetFunction returns the output function
func (f *FunctionGenerator) GetFunction() (string, error) {
	return f.readString("FUNC?")
}

// SetFrequency sets the output frequency in Hz
func (f *FunctionGenerator) SetFrequency(hz float64) error {
	return f.writeOnlyBus("FREQ", strconv.FormatFloat(hz, 'g', -1, 64))
}

// GetFrequency returns the output frequency in Hz
func (f *FunctionGenerator) GetFrequency() (float64, error) {
	return f.readFloat("FREQ?")
}

// SetVoltage sets the output amplitude in V
func (f *FunctionGenerator) SetVoltage(v float64) error {
	return f.writeOnlyBus("VOLT", strconv.FormatFloat(v, 'g', -1, 64))
}

// GetVoltage returns the output amplitude in V
func (f *FunctionGenerator) GetVoltage() (float64, error) {
	return f.readFloat("VOLT?")
}

// SetOffset sets the DC offset in V
func (f *FunctionGenerator) SetOffset(v float64) error {
	return f.writeOnlyBus("VOLT:OFFS", strconv.FormatFloat(v, 'g', -1, 64))
}

// GetOffset returns the DC offset in V
func (f *FunctionGenerator) GetOffset() (float64, error) {
	return f.readFloat("VOLT:OFFS?")
}

// EnableOutput turns the output on
func (f *FunctionGenerator) EnableOutput() error {
	return f.writeOnlyBus("OUTP ON")
}

// DisableOutput turns the output off
func (f *FunctionGenerator) DisableOutput() error {
	return f.writeOnlyBus("OUTP OFF")
}

// GetOutput returns true if the output is on
func (f *FunctionGenerator) GetOutput() (bool, error) {
	resp, err := f.readString("OUTP?")
	if err != nil {
		return false, err
	}
	switch strings.ToUpper(resp) {
	case "1", "ON":
		return true, nil
	case "0", "OFF":
		return false, nil
	default:
		return false, errors.Errorf("orx: unexpected OUTP? response %q", resp)
	}
}
