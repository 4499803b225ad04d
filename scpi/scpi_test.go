package scpi

import (
	"bufio"
	"io"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nasa-jpl/cryosweep/comm"
)

// pipeDevice answers each line written to it with reply(line), skipping
// empty replies
type pipeDevice struct {
	mu    sync.Mutex
	got   []string
	reply func(string) string
}

func (d *pipeDevice) maker() comm.CreationFunc {
	return func() (io.ReadWriteCloser, error) {
		client, server := net.Pipe()
		go d.serve(server)
		return client, nil
	}
}

func (d *pipeDevice) serve(conn net.Conn) {
	defer conn.Close()
	r := bufio.NewReader(conn)
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			return
		}
		line = strings.TrimRight(line, "\n")
		d.mu.Lock()
		d.got = append(d.got, line)
		d.mu.Unlock()
		if resp := d.reply(line); resp != "" {
			conn.Write([]byte(resp + "\n"))
		}
	}
}

func (d *pipeDevice) lines() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.got...)
}

func newSCPI(reply func(string) string) (*SCPI, *pipeDevice) {
	dev := &pipeDevice{reply: reply}
	return &SCPI{Pool: comm.NewPool(1, time.Second, dev.maker())}, dev
}

func TestParseError(t *testing.T) {
	if err := ParseError("0,\"No error\""); err != nil {
		t.Errorf("expected nil for code 0, got %v", err)
	}
	if err := ParseError("+0,No error\r\n"); err != nil {
		t.Errorf("expected nil for code +0, got %v", err)
	}
	err := ParseError(`-222,"Data out of range"`)
	e, ok := err.(Error)
	if !ok {
		t.Fatalf("expected an Error, got %T", err)
	}
	if e.Code != -222 || e.Msg != "Data out of range" {
		t.Errorf("unexpected parse %+v", e)
	}
	if ParseError("garbage") == nil {
		t.Error("expected an error for an unparseable entry")
	}
}

func TestReadFloat(t *testing.T) {
	s, _ := newSCPI(func(string) string { return "1.25\r" })
	f, err := s.ReadFloat("MEAS?")
	if err != nil {
		t.Fatal(err)
	}
	if f != 1.25 {
		t.Errorf("expected 1.25, got %v", f)
	}
}

func TestConnectionIsReused(t *testing.T) {
	s, dev := newSCPI(func(string) string { return "1" })
	for i := 0; i < 3; i++ {
		if _, err := s.ReadInt("COUNT?"); err != nil {
			t.Fatal(err)
		}
	}
	if s.Pool.Size() != 1 {
		t.Errorf("expected one connection, got %d", s.Pool.Size())
	}
	if n := len(dev.lines()); n != 3 {
		t.Errorf("expected 3 queries, got %d", n)
	}
}

func TestHandshakingWriteReportsDeviceError(t *testing.T) {
	s, dev := newSCPI(func(string) string { return `-222,"Data out of range"` })
	s.Handshaking = true
	err := s.Write("VOLT 1000")
	e, ok := err.(Error)
	if !ok || e.Code != -222 {
		t.Errorf("expected a -222 error, got %v", err)
	}
	got := dev.lines()
	if len(got) != 1 || got[0] != "*CLS; VOLT 1000 ;:SYSTem:ERRor?" {
		t.Errorf("unexpected wire traffic %q", got)
	}
}

func TestHandshakingWriteReadStripsQueue(t *testing.T) {
	s, _ := newSCPI(func(string) string { return "42;0,\"No error\"" })
	s.Handshaking = true
	resp, err := s.ReadString("COUNT?")
	if err != nil {
		t.Fatal(err)
	}
	if resp != "42" {
		t.Errorf("expected 42, got %q", resp)
	}
}

func TestRawDisablesHandshaking(t *testing.T) {
	s, dev := newSCPI(func(string) string { return "" })
	s.Handshaking = true
	if _, err := s.Raw("*RST"); err != nil {
		t.Fatal(err)
	}
	if !s.Handshaking {
		t.Error("expected handshaking to be restored")
	}
	// the write completes before the device goroutine records it
	time.Sleep(10 * time.Millisecond)
	if got := dev.lines(); len(got) != 1 || got[0] != "*RST" {
		t.Errorf("expected a bare *RST, got %q", got)
	}
}

func TestAllErrorsDrainsQueue(t *testing.T) {
	queue := []string{`-100,"Command error"`, `-222,"Data out of range"`, `0,"No error"`}
	var mu sync.Mutex
	s, _ := newSCPI(func(string) string {
		mu.Lock()
		defer mu.Unlock()
		head := queue[0]
		if len(queue) > 1 {
			queue = queue[1:]
		}
		return head
	})
	str, err := s.AllErrorsString()
	if err == nil {
		t.Fatal("expected the first error back")
	}
	if strings.Count(str, "\n") != 1 {
		t.Errorf("expected two errors, got %q", str)
	}
	if e := err.(Error); e.Code != -100 {
		t.Errorf("expected -100 first, got %d", e.Code)
	}
}
