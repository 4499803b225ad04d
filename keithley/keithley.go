/*Package keithley provides an interface to Keithley 2001 digital multimeters.

The meter speaks GPIB, which is reached through a GPIB-Ethernet bridge in
Prologix controller mode.  Each connection to the bridge is addressed to the
meter before it is handed out.
*/
package keithley

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/nasa-jpl/cryosweep/comm"
	"github.com/nasa-jpl/cryosweep/scpi"
	"github.com/pkg/errors"
)

// DefaultGPIBAddress is the factory GPIB address of the 2001
const DefaultGPIBAddress = 12

// units the 2001 appends to readings
var suffixes = []string{"NOHM", "NVDC", "NVAC", "NADC", "NAAC"}

// ParseReading converts a reading such as "+1.234567E+03NOHM" or
// "+1.234567E+03NOHM,+0001.2SECS,+00001RDNG#" to a float
func ParseReading(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, ','); i >= 0 {
		s = s[:i]
	}
	for _, suf := range suffixes {
		s = strings.TrimSuffix(s, suf)
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, errors.Wrapf(err, "keithley: unparseable reading %q", s)
	}
	return f, nil
}

// prologix returns a CreationFunc that dials the bridge and addresses the
// instrument at gpib.  A gpib address of zero skips the setup, for bridges
// configured by other means.
func prologix(addr string, gpib int) comm.CreationFunc {
	dial := comm.BackingOffTCPConnMaker(addr, 3*time.Second)
	return func() (io.ReadWriteCloser, error) {
		conn, err := dial()
		if err != nil || gpib == 0 {
			return conn, err
		}
		setup := fmt.Sprintf("++mode 1\n++addr %d\n++auto 1\n++eos 2\n", gpib)
		if _, err := io.WriteString(conn, setup); err != nil {
			conn.Close()
			return nil, errors.Wrap(err, "keithley: configuring GPIB bridge")
		}
		return conn, nil
	}
}

// DMM2001 is a Keithley 2001 multimeter configured for resistance
type DMM2001 struct {
	scpi.SCPI
}

// NewDMM2001 returns a meter at GPIB address gpib behind the bridge at addr
func NewDMM2001(addr string, gpib int) *DMM2001 {
	pool := comm.NewPool(1, time.Minute, prologix(addr, gpib))
	return &DMM2001{scpi.SCPI{Pool: pool}}
}

// Reset sends *RST, which also stops triggering
func (d *DMM2001) Reset() error {
	return d.Write("*RST")
}

// Configure selects two wire resistance with range rng Ohms and an
// integration time of nplc power line cycles.  A range of zero selects
// autoranging, an nplc of zero leaves the integration time alone.
func (d *DMM2001) Configure(rng, nplc float64) error {
	cmds := []string{":SENS:FUNC 'RES'"}
	if rng == 0 {
		cmds = append(cmds, ":SENS:RES:RANG:AUTO ON")
	} else {
		cmds = append(cmds, ":SENS:RES:RANG "+strconv.FormatFloat(rng, 'g', -1, 64))
	}
	if nplc != 0 {
		cmds = append(cmds, ":SENS:RES:NPLC "+strconv.FormatFloat(nplc, 'g', -1, 64))
	}
	for _, cmd := range cmds {
		if err := d.Write(cmd); err != nil {
			return errors.Wrapf(err, "keithley: %s", cmd)
		}
	}
	return nil
}

// Read triggers and returns one reading
func (d *DMM2001) Read() (float64, error) {
	resp, err := d.ReadString(":READ?")
	if err != nil {
		return 0, errors.Wrap(err, "keithley: :READ?")
	}
	return ParseReading(resp)
}

// Fetch returns the latest reading without triggering
func (d *DMM2001) Fetch() (float64, error) {
	resp, err := d.ReadString(":FETC?")
	if err != nil {
		return 0, errors.Wrap(err, "keithley: :FETC?")
	}
	return ParseReading(resp)
}

// Identification returns the *IDN? string
func (d *DMM2001) Identification() (string, error) {
	return d.ReadString("*IDN?")
}
