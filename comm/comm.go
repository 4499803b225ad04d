/*Package comm provides embeddable types for communication with lab hardware.

Most usages of this package will boil down to:
	1.  embed *RemoteDevice in a type that represents your hardware.
	2.  pass the right Terminators and, for RS232 links, a serial.Config
	    to NewRemoteDevice.
	3.  write methods for the device on top of SendRecv and Send.

A minimal example is provided below for a temperature sensor that responds to
"RD?" with the current temperature

	type MySensor struct {
		*comm.RemoteDevice
	}

	func (ms *MySensor) ReadTemp() (float64, error) {
		err := ms.Open()
		if err != nil {
			return 0, err
		}
		defer ms.CloseEventually()
		resp, err := ms.SendRecv([]byte("RD?"))
		if err != nil {
			return 0, err
		}
		return strconv.ParseFloat(string(resp), 64)
	}
*/
package comm

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/tarm/serial"
)

const (
	// DefaultTimeout is the read/write timeout used when a RemoteDevice is
	// created with Timeout == 0
	DefaultTimeout = 3 * time.Second

	// DefaultIdle is how long a connection is kept open after the last
	// communication when CloseEventually is used
	DefaultIdle = 10 * time.Second
)

var (
	// ErrNoSerialConf is generated when a serial RemoteDevice has no serial.Config
	ErrNoSerialConf = errors.New("comm: device is serial but has no serial config")

	// ErrNotConnected is generated when .Conn is nil and Send or Recv is called.
	ErrNotConnected = errors.New("comm: conn is nil, not connected to remote")

	// ErrTerminatorNotFound is generated when the termination byte is not found in a response
	ErrTerminatorNotFound = errors.New("comm: termination byte not found")
)

// Terminators holds the bytes that end a message in each direction
type Terminators struct {
	// Rx terminates messages from the device
	Rx byte

	// Tx terminates messages to the device
	Tx byte
}

// LF terminates in both directions, for CRLF devices the caller writes the
// CR and Recv strips it
var LF = Terminators{Rx: '\n', Tx: '\n'}

/*RemoteDevice has an address and can Open, Send, Recv and Close.

When IsSerial is true, the serial.Config given at construction is used,
otherwise Addr is dialed over TCP (e.g. a port on a terminal server).

The device is concurrent-safe, SendRecv holds the lock across the write and
the read so responses cannot be interleaved between callers.
*/
type RemoteDevice struct {
	sync.Mutex

	// Addr is the network or filesystem address of the device
	Addr string

	// IsSerial selects RS232 (true) or TCP (false)
	IsSerial bool

	// Timeout bounds each read and write
	Timeout time.Duration

	// Idle is how long CloseEventually waits before closing
	Idle time.Duration

	// LastComm is the time of the last successful transaction
	LastComm time.Time

	// Conn is the underlying connection, nil when closed
	Conn io.ReadWriteCloser

	term   Terminators
	serCfg *serial.Config
	reader *bufio.Reader
	timer  *time.Timer
	gen    int
}

// NewRemoteDevice creates a new RemoteDevice instance.  If term is nil, CR
// is used in both directions.
func NewRemoteDevice(addr string, isSerial bool, term *Terminators, cfg *serial.Config) *RemoteDevice {
	if term == nil {
		term = &Terminators{Rx: '\r', Tx: '\r'}
	}
	return &RemoteDevice{
		Addr:     addr,
		IsSerial: isSerial,
		Timeout:  DefaultTimeout,
		Idle:     DefaultIdle,
		term:     *term,
		serCfg:   cfg,
	}
}

// Open the connection, setting the Conn variable.  Open is a no-op if the
// connection is already open.  Connecting is retried with an exponential
// backoff for a few seconds, terminal servers do not like being thrashed.
func (rd *RemoteDevice) Open() error {
	rd.Lock()
	defer rd.Unlock()
	rd.gen++
	if rd.timer != nil {
		rd.timer.Stop()
	}
	if rd.Conn != nil {
		return nil
	}
	var last error
	op := func() error {
		last = rd.open()
		return last
	}
	err := backoff.Retry(op, &backoff.ExponentialBackOff{
		InitialInterval:     25 * time.Millisecond,
		RandomizationFactor: 0.,
		Multiplier:          2.,
		MaxInterval:         1 * time.Second,
		MaxElapsedTime:      3 * time.Second,
		Clock:               backoff.SystemClock})
	if err != nil {
		return fmt.Errorf("comm: unable to connect to %s: %w", rd.Addr, last)
	}
	return nil
}

func (rd *RemoteDevice) open() error {
	var (
		err  error
		conn io.ReadWriteCloser
	)
	if rd.IsSerial {
		if rd.serCfg == nil {
			return ErrNoSerialConf
		}
		conn, err = serial.OpenPort(rd.serCfg)
	} else {
		conn, err = net.DialTimeout("tcp", rd.Addr, rd.timeout())
	}
	if err != nil {
		return err
	}
	rd.Conn = conn
	rd.reader = bufio.NewReader(conn)
	return nil
}

// Close the connection, nil-ing the Conn variable
func (rd *RemoteDevice) Close() error {
	rd.Lock()
	defer rd.Unlock()
	return rd.close()
}

func (rd *RemoteDevice) close() error {
	if rd.Conn == nil {
		return nil
	}
	err := rd.Conn.Close()
	rd.Conn = nil
	rd.reader = nil
	return err
}

// CloseEventually closes the connection once it has been idle for rd.Idle.
// A call to Open before then cancels the close.
func (rd *RemoteDevice) CloseEventually() {
	rd.Lock()
	defer rd.Unlock()
	if rd.timer != nil {
		rd.timer.Stop()
	}
	idle := rd.Idle
	if idle == 0 {
		idle = DefaultIdle
	}
	rd.gen++
	gen := rd.gen
	rd.timer = time.AfterFunc(idle, func() {
		rd.Lock()
		defer rd.Unlock()
		// an Open after we were scheduled wins
		if gen == rd.gen {
			rd.close()
		}
	})
}

func (rd *RemoteDevice) timeout() time.Duration {
	if rd.Timeout == 0 {
		return DefaultTimeout
	}
	return rd.Timeout
}

type deadliner interface {
	SetDeadline(time.Time) error
}

func (rd *RemoteDevice) arm() {
	if d, ok := rd.Conn.(deadliner); ok {
		d.SetDeadline(time.Now().Add(rd.timeout()))
	}
}

// Send writes data to the remote, appending the Tx terminator
func (rd *RemoteDevice) Send(b []byte) error {
	rd.Lock()
	defer rd.Unlock()
	return rd.send(b)
}

func (rd *RemoteDevice) send(b []byte) error {
	if rd.Conn == nil {
		return ErrNotConnected
	}
	rd.arm()
	msg := make([]byte, 0, len(b)+1)
	msg = append(msg, b...)
	msg = append(msg, rd.term.Tx)
	_, err := rd.Conn.Write(msg)
	if err == nil {
		rd.LastComm = time.Now()
	}
	return err
}

// Recv recieves data from the remote and strips the Rx terminator
func (rd *RemoteDevice) Recv() ([]byte, error) {
	rd.Lock()
	defer rd.Unlock()
	return rd.recv()
}

func (rd *RemoteDevice) recv() ([]byte, error) {
	if rd.Conn == nil {
		return nil, ErrNotConnected
	}
	rd.arm()
	buf, err := rd.reader.ReadBytes(rd.term.Rx)
	if err != nil {
		if err == io.EOF && len(buf) > 0 {
			return buf, ErrTerminatorNotFound
		}
		return nil, err
	}
	rd.LastComm = time.Now()
	buf = bytes.TrimSuffix(buf, []byte{rd.term.Rx})
	// CRLF devices leave the CR behind when Rx is LF
	buf = bytes.TrimSuffix(buf, []byte{'\r'})
	return buf, nil
}

// SendRecv sends a buffer after appending the Tx terminator,
// then returns the response with the Rx terminator stripped
func (rd *RemoteDevice) SendRecv(b []byte) ([]byte, error) {
	rd.Lock()
	defer rd.Unlock()
	err := rd.send(b)
	if err != nil {
		return nil, err
	}
	return rd.recv()
}

// TCPSetup opens a new TCP connection and sets a timeout on connect, read, and write
func TCPSetup(addr string, timeout time.Duration) (net.Conn, error) {
	conn, err := net.DialTimeout("tcp", addr, timeout)
	if err != nil {
		return nil, err
	}
	deadline := time.Now().Add(timeout)
	conn.SetReadDeadline(deadline)
	conn.SetWriteDeadline(deadline)
	return conn, nil
}

// BackingOffTCPConnMaker returns a CreationFunc that dials addr with an
// exponential backoff, for use with NewPool
func BackingOffTCPConnMaker(addr string, timeout time.Duration) CreationFunc {
	return func() (io.ReadWriteCloser, error) {
		var conn net.Conn
		op := func() error {
			var err error
			conn, err = net.DialTimeout("tcp", addr, timeout)
			return err
		}
		err := backoff.Retry(op, &backoff.ExponentialBackOff{
			InitialInterval:     25 * time.Millisecond,
			RandomizationFactor: 0.,
			Multiplier:          2.,
			MaxInterval:         1 * time.Second,
			MaxElapsedTime:      3 * time.Second,
			Clock:               backoff.SystemClock})
		if err != nil {
			return nil, err
		}
		return conn, nil
	}
}
