package orx_test

import (
	"bufio"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nasa-jpl/cryosweep/orx"
	"golang.org/x/time/rate"
)

// fakeGenerator keeps the state the commands set and answers queries from it
type fakeGenerator struct {
	mu    sync.Mutex
	state map[string]string
	got   []string
}

func (g *fakeGenerator) serve(t *testing.T) string {
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
			go g.handle(conn)
		}
	}()
	return ln.Addr().String()
}

func (g *fakeGenerator) handle(conn net.Conn) {
	defer conn.Close()
	r := bufio.NewReader(conn)
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			return
		}
		cmd := strings.TrimRight(line, "\r\n")
		g.mu.Lock()
		g.got = append(g.got, cmd)
		var reply string
		switch {
		case cmd == "*IDN?":
			reply = "OR-X,ORX325,0,1.0"
		case strings.HasSuffix(cmd, "?"):
			reply = g.state[strings.TrimSuffix(cmd, "?")]
		default:
			pieces := strings.SplitN(cmd, " ", 2)
			if len(pieces) == 2 {
				g.state[pieces[0]] = pieces[1]
			}
		}
		g.mu.Unlock()
		if reply != "" {
			conn.Write([]byte(reply + "\r\n"))
		}
	}
}

func newGenerator(t *testing.T) (*orx.FunctionGenerator, *fakeGenerator) {
	dev := &fakeGenerator{state: map[string]string{}}
	fg := orx.NewFunctionGenerator(dev.serve(t), false)
	fg.Limiter = rate.NewLimiter(rate.Inf, 1)
	t.Cleanup(func() { fg.Close() })
	return fg, dev
}

func TestSetThenGet(t *testing.T) {
	fg, _ := newGenerator(t)
	if err := fg.SetFrequency(100); err != nil {
		t.Fatal(err)
	}
	if err := fg.SetVoltage(2); err != nil {
		t.Fatal(err)
	}
	if err := fg.SetOffset(-0.5); err != nil {
		t.Fatal(err)
	}
	if err := fg.SetFunction("sin"); err != nil {
		t.Fatal(err)
	}
	if err := fg.EnableOutput(); err != nil {
		t.Fatal(err)
	}

	// the queries go down the same connection, after the writes
	if f, err := fg.GetFrequency(); err != nil || f != 100 {
		t.Errorf("expected 100 Hz, got %v %v", f, err)
	}
	if v, err := fg.GetVoltage(); err != nil || v != 2 {
		t.Errorf("expected 2 V, got %v %v", v, err)
	}
	if v, err := fg.GetOffset(); err != nil || v != -0.5 {
		t.Errorf("expected -0.5 V, got %v %v", v, err)
	}
	if s, err := fg.GetFunction(); err != nil || s != "SIN" {
		t.Errorf("expected SIN, got %q %v", s, err)
	}
	if on, err := fg.GetOutput(); err != nil || !on {
		t.Errorf("expected output on, got %v %v", on, err)
	}
	if err := fg.DisableOutput(); err != nil {
		t.Fatal(err)
	}
	if on, err := fg.GetOutput(); err != nil || on {
		t.Errorf("expected output off, got %v %v", on, err)
	}
}

func TestIdentification(t *testing.T) {
	fg, dev := newGenerator(t)
	id, err := fg.Identification()
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(id, "ORX325") {
		t.Errorf("unexpected identification %q", id)
	}
	dev.mu.Lock()
	defer dev.mu.Unlock()
	if len(dev.got) != 1 || dev.got[0] != "*IDN?" {
		t.Errorf("expected a single *IDN?, got %v", dev.got)
	}
}

func TestCommandsArePaced(t *testing.T) {
	fg, _ := newGenerator(t)
	fg.Limiter = rate.NewLimiter(rate.Every(20*time.Millisecond), 1)
	start := time.Now()
	for i := 0; i < 3; i++ {
		if err := fg.SetFrequency(float64(i)); err != nil {
			t.Fatal(err)
		}
	}
	if el := time.Since(start); el < 40*time.Millisecond {
		t.Errorf("three commands took %v, expected at least 40ms", el)
	}
}
