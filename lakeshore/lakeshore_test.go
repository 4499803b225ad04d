package lakeshore_test

import (
	"bufio"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nasa-jpl/cryosweep/lakeshore"
	"github.com/nasa-jpl/cryosweep/sweep"
	"golang.org/x/time/rate"
)

// fakeDevice speaks the 33x protocol on a loopback socket.  Queries are
// answered from replies, everything received is recorded without the CRLF.
type fakeDevice struct {
	mu      sync.Mutex
	got     []string
	replies map[string]string
	crlf    bool
}

func (f *fakeDevice) serve(t *testing.T) string {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { ln.Close() })
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go f.handle(conn)
		}
	}()
	return ln.Addr().String()
}

func (f *fakeDevice) handle(conn net.Conn) {
	defer conn.Close()
	r := bufio.NewReader(conn)
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			return
		}
		f.mu.Lock()
		if strings.HasSuffix(line, "\r\n") {
			f.crlf = true
		}
		cmd := strings.TrimRight(line, "\r\n")
		f.got = append(f.got, cmd)
		reply, ok := f.replies[cmd]
		f.mu.Unlock()
		if ok {
			conn.Write([]byte(reply + "\r\n"))
		}
	}
}

func (f *fakeDevice) commands() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.got...)
}

func newController(t *testing.T, replies map[string]string) (*lakeshore.Controller, *fakeDevice) {
	dev := &fakeDevice{replies: replies}
	addr := dev.serve(t)
	c := lakeshore.NewController(addr, false, 0)
	c.Limiter = rate.NewLimiter(rate.Inf, 1)
	t.Cleanup(func() { c.Close() })
	return c, dev
}

// waitFor polls until the device has received n commands, writes have no
// reply to synchronize on
func waitFor(t *testing.T, dev *fakeDevice, n int) []string {
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if got := dev.commands(); len(got) >= n {
			return got
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("device received %v, wanted %d commands", dev.commands(), n)
	return nil
}

func TestReadParsesKelvin(t *testing.T) {
	c, dev := newController(t, map[string]string{"KRDG? A": "+010.123"})
	k, err := c.Read()
	if err != nil {
		t.Fatal(err)
	}
	if k != 10.123 {
		t.Errorf("expected 10.123 K, got %v", k)
	}
	dev.mu.Lock()
	crlf := dev.crlf
	dev.mu.Unlock()
	if !crlf {
		t.Error("commands were not CRLF terminated")
	}
}

func TestReadInputRejectsUnknownChannel(t *testing.T) {
	c, _ := newController(t, nil)
	if _, err := c.ReadInput("E"); err != lakeshore.ErrBadInput {
		t.Errorf("expected ErrBadInput, got %v", err)
	}
}

func TestReadGarbage(t *testing.T) {
	c, _ := newController(t, map[string]string{"KRDG? A": "OVERLOAD"})
	if _, err := c.Read(); err == nil {
		t.Error("expected a parse error")
	}
}

func TestWriteCommands(t *testing.T) {
	c, dev := newController(t, nil)
	steps := []struct {
		fn   func() error
		want string
	}{
		{func() error { return c.SetSetpoint(15) }, "SETP 1,15.000"},
		{func() error { return c.SetRamp(true, 0.5) }, "RAMP 1,1,0.5"},
		{func() error { return c.SetRamp(false, 0) }, "RAMP 1,0,0"},
		{func() error { return c.SetHeaterRange(sweep.RangeLow) }, "RANGE 1,1"},
		{func() error { return c.SetHeaterRange(sweep.RangeHigh) }, "RANGE 1,3"},
		{func() error { return c.SetHeaterLimit(2) }, "HTRSET 1,1,0,2.000,2"},
		{func() error { return c.SetPID(100, 50, 0) }, "PID 1,100,50,0"},
		{func() error { return c.SetOutputMode(lakeshore.ModeClosedLoop, "A", true) }, "OUTMODE 1,1,1,1"},
	}
	for i, s := range steps {
		if err := s.fn(); err != nil {
			t.Fatal(err)
		}
		got := waitFor(t, dev, i+1)
		if got[i] != s.want {
			t.Errorf("command %d: expected %q, got %q", i, s.want, got[i])
		}
	}
}

func TestDisableOutputsTurnsOffEveryOutput(t *testing.T) {
	c, dev := newController(t, nil)
	if err := c.DisableOutputs(); err != nil {
		t.Fatal(err)
	}
	got := waitFor(t, dev, 2)
	if got[0] != "RANGE 1,0" || got[1] != "RANGE 2,0" {
		t.Errorf("expected both outputs off, got %v", got)
	}
}

func TestQueries(t *testing.T) {
	c, _ := newController(t, map[string]string{
		"*IDN?":    "LSCI,MODEL336,1234567,2.9",
		"SETP? 1":  "+15.000",
		"RAMP? 1":  "1,+0.5",
		"PID? 1":   "+100.0,+50.0,+0.0",
		"RANGE? 1": "3",
	})
	id, err := c.Identification()
	if err != nil || !strings.HasPrefix(id, "LSCI,MODEL336") {
		t.Errorf("bad identification %q %v", id, err)
	}
	sp, err := c.GetSetpoint()
	if err != nil || sp != 15 {
		t.Errorf("expected setpoint 15, got %v %v", sp, err)
	}
	on, r, err := c.GetRamp()
	if err != nil || !on || r != 0.5 {
		t.Errorf("expected ramp on at 0.5, got %v %v %v", on, r, err)
	}
	pid, err := c.PID()
	if err != nil || pid[0] != 100 || pid[1] != 50 || pid[2] != 0 {
		t.Errorf("bad PID %v %v", pid, err)
	}
	rng, err := c.GetHeaterRange()
	if err != nil || rng != sweep.RangeHigh {
		t.Errorf("expected high range, got %v %v", rng, err)
	}
}

func TestControllerSatisfiesSweepInterfaces(t *testing.T) {
	var c interface{} = lakeshore.NewController("127.0.0.1:1", false, 0)
	if _, ok := c.(sweep.TemperatureActuator); !ok {
		t.Error("Controller is not a TemperatureActuator")
	}
	if _, ok := c.(sweep.HeaterRanger); !ok {
		t.Error("Controller is not a HeaterRanger")
	}
	if _, ok := c.(sweep.HeaterLimiter); !ok {
		t.Error("Controller is not a HeaterLimiter")
	}
}
