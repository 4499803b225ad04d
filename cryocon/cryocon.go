// Package cryocon provides a driver for Cryo-con temperature monitors, used
// as a reference thermometer next to the control loop.
// Supports model 12, 14, 18i and maybe more
package cryocon

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/nasa-jpl/cryosweep/comm"
	"github.com/nasa-jpl/cryosweep/scpi"
	"github.com/nasa-jpl/cryosweep/temperature"
	"github.com/pkg/errors"
)

// parseKelvin converts a response string looking like "250.123124;K" into
// the same temperature in K, or errors on malformed input.
// Unpopulated channel responses ("--", "..") return NaN
func parseKelvin(resp string) (float64, error) {
	if strings.Contains(resp, "--") || strings.Contains(resp, "..") || strings.TrimSpace(resp) == "" {
		return math.NaN(), nil
	}
	pieces := strings.Split(strings.TrimSpace(resp), ";")
	if len(pieces) != 2 {
		return 0, fmt.Errorf("cryocon: malformed reading %q", resp)
	}
	T, err := strconv.ParseFloat(strings.TrimSpace(pieces[0]), 64)
	if err != nil {
		return 0, errors.Wrapf(err, "cryocon: reading %q", resp)
	}

	switch strings.TrimSpace(pieces[1]) {
	case "K":
		return T, nil
	case "C":
		return float64(temperature.C2K(temperature.Celsius(T))), nil
	case "F":
		return float64(temperature.F2K(temperature.Fahrenheit(T))), nil
	}
	return 0, fmt.Errorf("cryocon: do not know how to convert unit %s to Kelvin", pieces[1])
}

// Monitor models a Model 12, 14 or 18i temperature monitor
type Monitor struct {
	s scpi.SCPI
}

// NewMonitor creates a new temperature monitor at addr, host:port
func NewMonitor(addr string) *Monitor {
	maker := comm.BackingOffTCPConnMaker(addr, time.Second)
	pool := comm.NewPool(1, 10*time.Second, maker)
	return &Monitor{scpi.SCPI{Pool: pool}}
}

// Identification returns the identifying information from the monitor.
// it looks something like:
//
// Cryocon Model 12/14 Rev <firmware rev code><hardware rev code>
func (m *Monitor) Identification() (string, error) {
	return m.s.ReadString("*IDN?")
}

// Channels is the number of inputs of the monitor, from its identification.
// Unknown models are assumed to have 8.
func (m *Monitor) Channels() (int, error) {
	id, err := m.Identification()
	if err != nil {
		return 0, err
	}
	switch {
	case strings.Contains(id, "Model 12"):
		return 2, nil
	case strings.Contains(id, "Model 14"):
		return 4, nil
	default:
		return 8, nil
	}
}

// Read reads the temperature on a channel in K, where the channel is a
// letter like "A" or an index like "0"
func (m *Monitor) Read(ch string) (float64, error) {
	s, err := m.s.ReadString("INP", ch+":TEMP?;UNIT?")
	if err != nil {
		return 0, err
	}
	return parseKelvin(s)
}

// ReadAll reads all of the channels of the monitor in K.
// Unpopulated channels are NaN.
func (m *Monitor) ReadAll() ([]float64, error) {
	n, err := m.Channels()
	if err != nil {
		return nil, err
	}
	out := make([]float64, 0, n)
	for ch := 0; ch < n; ch++ {
		resp, err := m.s.ReadString("INP", strconv.Itoa(ch)+":TEMP?;UNIT?")
		if err != nil {
			return out, err
		}
		if resp == "NAK" {
			break // past the last channel
		}
		t, err := parseKelvin(resp)
		if err != nil {
			return out, err
		}
		out = append(out, t)
	}
	return out, nil
}
