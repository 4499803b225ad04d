package comm

import (
	"bufio"
	"bytes"
	"errors"
	"io"
	"time"
)

// ErrNoDeadline is returned by NewTimeout when the wrapped connection cannot
// have a deadline set on it
var ErrNoDeadline = errors.New("comm: connection does not support deadlines")

// Terminator wraps a ReadWriter, appending Tx to every Write and reading up
// to and including Rx on every Read.  The terminator is not returned to the
// caller.
type Terminator struct {
	rw io.ReadWriter
	br *bufio.Reader
	tx byte
	rx byte
}

// NewTerminator wraps rw with message termination
func NewTerminator(rw io.ReadWriter, rx, tx byte) *Terminator {
	return &Terminator{rw: rw, br: bufio.NewReader(rw), rx: rx, tx: tx}
}

// Write writes p followed by the Tx terminator
func (t *Terminator) Write(p []byte) (int, error) {
	buf := make([]byte, 0, len(p)+1)
	buf = append(buf, p...)
	buf = append(buf, t.tx)
	n, err := t.rw.Write(buf)
	if n > len(p) {
		n = len(p)
	}
	return n, err
}

// Read reads one message into p.  If p is too small the remainder of the
// message is dropped and io.ErrShortBuffer returned.
func (t *Terminator) Read(p []byte) (int, error) {
	msg, err := t.br.ReadBytes(t.rx)
	if err != nil {
		return copy(p, msg), err
	}
	msg = bytes.TrimSuffix(msg, []byte{t.rx})
	msg = bytes.TrimSuffix(msg, []byte{'\r'})
	n := copy(p, msg)
	if n < len(msg) {
		return n, io.ErrShortBuffer
	}
	return n, nil
}

// SetDeadline forwards to the wrapped connection if it supports deadlines
func (t *Terminator) SetDeadline(tm time.Time) error {
	if d, ok := t.rw.(deadliner); ok {
		return d.SetDeadline(tm)
	}
	return ErrNoDeadline
}

// Timeout wraps a ReadWriter and bounds each Read and Write by a timeout
type Timeout struct {
	rw      io.ReadWriter
	d       deadliner
	timeout time.Duration
}

// NewTimeout wraps rw.  rw must have a SetDeadline method.
func NewTimeout(rw io.ReadWriter, timeout time.Duration) (*Timeout, error) {
	d, ok := rw.(deadliner)
	if !ok {
		return nil, ErrNoDeadline
	}
	return &Timeout{rw: rw, d: d, timeout: timeout}, nil
}

func (t *Timeout) arm() error {
	err := t.d.SetDeadline(time.Now().Add(t.timeout))
	if err == ErrNoDeadline {
		return nil
	}
	return err
}

func (t *Timeout) Read(p []byte) (int, error) {
	if err := t.arm(); err != nil {
		return 0, err
	}
	return t.rw.Read(p)
}

func (t *Timeout) Write(p []byte) (int, error) {
	if err := t.arm(); err != nil {
		return 0, err
	}
	return t.rw.Write(p)
}
