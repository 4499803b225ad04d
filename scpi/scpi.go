// Package scpi provides primitives for working with devices that
// have SCPI interfaces
package scpi

import (
	"bytes"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/nasa-jpl/cryosweep/comm"
)

const (
	timeout = 5 * time.Second

	tcpFrameSize = 1500
)

// Error is an entry from the device's error queue, e.g.
// -222,"Data out of range"
type Error struct {
	Code int
	Msg  string
}

func (e Error) Error() string {
	return fmt.Sprintf("scpi: %d, %s", e.Code, e.Msg)
}

// ParseError converts an error queue entry to an Error.  "0,No error" and
// "+0,..." yield nil.
func ParseError(s string) error {
	s = strings.TrimSpace(s)
	pieces := strings.SplitN(s, ",", 2)
	code, err := strconv.Atoi(strings.TrimPrefix(pieces[0], "+"))
	if err != nil {
		return fmt.Errorf("scpi: unparseable error queue entry %q", s)
	}
	if code == 0 {
		return nil
	}
	msg := ""
	if len(pieces) == 2 {
		msg = strings.Trim(pieces[1], `"`)
	}
	return Error{Code: code, Msg: msg}
}

// SCPI is a type for encapsulating SCPI communication
type SCPI struct {
	Pool *comm.Pool

	// Handshaking indicates if the communication shall use handshaking,
	// where an error query is sent with every message
	// to ensure the device accepted the input
	Handshaking bool
}

func (s *SCPI) wrap(conn io.ReadWriter) io.ReadWriter {
	term := comm.NewTerminator(conn, '\n', '\n')
	to, err := comm.NewTimeout(term, timeout)
	if err != nil {
		return term
	}
	return to
}

// Write sends a command to the device.  if f.Handshaking == true,
// it also requests an error response and checks that it is OK
// it is assumed this is used for set operations and not get.
func (s *SCPI) Write(cmds ...string) (err error) {
	conn, err := s.Pool.Get()
	if err != nil {
		return err
	}
	defer func() { s.Pool.ReturnWithError(conn, err) }()
	wrap := s.wrap(conn)
	if s.Handshaking {
		cmds = append([]string{"*CLS;"}, cmds...)
		cmds = append(cmds, ";:SYSTem:ERRor?")
	}
	str := strings.Join(cmds, " ")
	_, err = io.WriteString(wrap, str)
	if err != nil {
		return err
	}
	if s.Handshaking {
		buf := make([]byte, tcpFrameSize)
		n, err := wrap.Read(buf)
		if err != nil {
			return err
		}
		return ParseError(string(buf[:n]))
	}
	return nil
}

// WriteRead is write, but with a read call after.  It is assumed that "get"
// calls use this underlying mechanism
func (s *SCPI) WriteRead(cmds ...string) (resp []byte, err error) {
	conn, err := s.Pool.Get()
	if err != nil {
		return resp, err
	}
	defer func() { s.Pool.ReturnWithError(conn, err) }()
	wrap := s.wrap(conn)
	if s.Handshaking {
		cmds = append([]string{"*CLS;"}, cmds...)
		cmds = append(cmds, ";:SYSTem:ERRor?")
	}
	str := strings.Join(cmds, " ")
	_, err = io.WriteString(wrap, str)
	if err != nil {
		return resp, err
	}
	buf := make([]byte, tcpFrameSize)
	n, err := wrap.Read(buf)
	if err != nil {
		return resp, err
	}
	resp = buf[:n]
	if s.Handshaking {
		pieces := bytes.Split(resp, []byte{';'})
		if qerr := ParseError(string(pieces[len(pieces)-1])); qerr != nil {
			return resp, qerr
		}
		return bytes.Join(pieces[:len(pieces)-1], []byte{}), nil
	}
	return resp, nil
}

// ReadString sends a command to the device, the reads the response
// and returns it as a decoded ASCII or UTF-8 string
func (s *SCPI) ReadString(cmds ...string) (string, error) {
	resp, err := s.WriteRead(cmds...)
	return strings.TrimRight(string(resp), "\r\n"), err
}

// ReadFloat sends a command to the device, then reads the
// response and parses it as a floating point value
func (s *SCPI) ReadFloat(cmds ...string) (float64, error) {
	resp, err := s.ReadString(cmds...)
	if err != nil {
		return 0, err
	}
	return strconv.ParseFloat(resp, 64)
}

// ReadBool sends a command to the device, then reads the
// response and parses it as a boolean
func (s *SCPI) ReadBool(cmds ...string) (bool, error) {
	resp, err := s.ReadString(cmds...)
	if err != nil {
		return false, err
	}
	return strconv.ParseBool(resp)
}

// ReadInt sends a command to the device, then reads the
// response and parses it as an integer
func (s *SCPI) ReadInt(cmds ...string) (int, error) {
	resp, err := s.ReadString(cmds...)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(resp)
}

// Raw sends a command to the device and returns a response if it was a query,
// else a blank string
func (s *SCPI) Raw(str string) (string, error) {
	prev := s.Handshaking
	s.Handshaking = false
	defer func() { s.Handshaking = prev }()
	if strings.Contains(str, "?") {
		return s.ReadString(str)
	}
	return "", s.Write(str)
}

// PopError gets a single error from the queue on the device
func (s *SCPI) PopError() error {
	str, err := s.ReadString("SYSTem:ERRor?")
	if err != nil {
		return err
	}
	return ParseError(str)
}

// AllErrors returns all errors from the device as a list.  Transport
// failures end the list.
func (s *SCPI) AllErrors() []error {
	var errs []error
	for {
		err := s.PopError()
		if err == nil {
			break
		}
		errs = append(errs, err)
		if _, ok := err.(Error); !ok {
			break
		}
	}
	return errs
}

// AllErrorsString is equivalent to AllErrors, but joining by newline
// if there were no errors, the error return value is nil, otherwise
// it is the first error in the list and has no particular meaning
func (s *SCPI) AllErrorsString() (string, error) {
	errs := s.AllErrors()
	if len(errs) == 0 {
		return "", nil
	}
	strs := make([]string, len(errs))
	for i := 0; i < len(errs); i++ {
		strs[i] = errs[i].Error()
	}
	return strings.Join(strs, "\n"), errs[0]
}
