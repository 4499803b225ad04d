/*Package sequence runs sweeps in the background and exposes them over HTTP.

A Manager owns one sweep.Sequencer.  A run is started with POST /run, whose
body is a sweep.Settings; fields left out take the Manager's defaults.  The
run can be stopped early with POST /stop, watched with GET /status and
GET /samples?since=N, and its settings fetched with GET /params.

While a run is in progress the Manager holds every instrument Locker it was
given, so the instruments cannot be commanded over HTTP behind its back.
*/
package sequence

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/nasa-jpl/cryosweep/generichttp"
	"github.com/nasa-jpl/cryosweep/server/middleware/locker"
	"github.com/nasa-jpl/cryosweep/sink"
	"github.com/nasa-jpl/cryosweep/sweep"
	"github.com/nasa-jpl/cryosweep/util"
	"github.com/pkg/errors"
)

// holder is the name the Manager holds instrument locks under
const holder = "sweep"

var (
	// ErrNotRunning is returned by Stop when there is nothing to stop
	ErrNotRunning = errors.New("sequence: no run in progress")

	// ErrLimits is returned by Start for runs outside the software limits
	ErrLimits = errors.New("sequence: run temperatures violate software limits")

	// ErrNoReading is returned by Temperature before a run has read the
	// temperature
	ErrNoReading = errors.New("sequence: no temperature read yet in this run")
)

// Outcome summarizes a finished run
type Outcome struct {
	Status   sweep.Phase `json:"status"`
	Kind     string      `json:"kind,omitempty"`
	Error    string      `json:"error,omitempty"`
	Teardown string      `json:"teardown,omitempty"`
	Samples  int         `json:"samples"`
	File     string      `json:"file,omitempty"`
	Started  time.Time   `json:"started"`
	Ended    time.Time   `json:"ended"`
}

func newOutcome(res sweep.Result, file string, started, ended time.Time) Outcome {
	o := Outcome{Status: res.Status, Samples: res.Samples, File: file, Started: started, Ended: ended}
	if res.Err != nil {
		o.Error = res.Err.Error()
		o.Kind = sweep.KindOf(res.Err).String()
	}
	if res.Teardown != nil {
		o.Teardown = res.Teardown.Error()
	}
	return o
}

// Status is a snapshot of the Manager
type Status struct {
	Running bool            `json:"running"`
	State   sweep.RunState  `json:"state"`
	Params  *sweep.Settings `json:"params,omitempty"`
	File    string          `json:"file,omitempty"`
	Last    *Outcome        `json:"last,omitempty"`
}

// Manager runs one sweep at a time in the background
type Manager struct {
	// Seq performs the runs.  Its Sink is replaced on every run.
	Seq *sweep.Sequencer

	// Defaults fill the fields a run request leaves out
	Defaults sweep.Settings

	// Limits bound the run temperatures, a zero Limiter imposes none
	Limits util.Limiter

	// Buffer holds the samples of the current or last run, may be nil
	Buffer *sink.Buffer

	// Metrics is updated with every sample and run, may be nil
	Metrics *sink.Metrics

	// Dir is where a CSV file is written for each run, "" for none
	Dir string

	// Prefix begins each CSV file name
	Prefix string

	// Sinks receive every sample after the built in ones
	Sinks []sweep.SampleSink

	// Locks are held for the length of a run
	Locks []*locker.Locker

	mu      sync.Mutex
	running bool
	flag    *sweep.Flag
	params  *sweep.Settings
	file    string
	last    *Outcome
	done    chan struct{}
}

// NewManager returns a Manager over seq with a default sized Buffer
func NewManager(seq *sweep.Sequencer, defaults sweep.Settings) *Manager {
	return &Manager{Seq: seq, Defaults: defaults, Buffer: sink.NewBuffer(0), Prefix: "T_SWEEP"}
}

// Check validates settings without starting anything
func (m *Manager) Check(s sweep.Settings) error {
	p := s.Parameters().WithDefaults()
	if err := p.Validate(); err != nil {
		return err
	}
	if !m.Limits.Check(p.MinTemperature) || !m.Limits.Check(p.MaxTemperature) {
		return errors.Wrapf(ErrLimits, "%g to %g K, limits are %g to %g K",
			p.MinTemperature, p.MaxTemperature, m.Limits.Min, m.Limits.Max)
	}
	return nil
}

// Start begins a run with s in the background.  It returns sweep.ErrBusy if
// a run is in progress, and the validation error if s is no good.
func (m *Manager) Start(s sweep.Settings) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		return sweep.ErrBusy
	}
	if err := m.Check(s); err != nil {
		return err
	}
	// record what will be run, not what was asked for
	s = s.Parameters().WithDefaults().Settings()

	var (
		sinks  sink.Multi
		closer io.Closer
		file   string
	)
	if m.Buffer != nil {
		m.Buffer.Reset()
		sinks = append(sinks, m.Buffer)
	}
	if m.Dir != "" {
		file = sink.UniqueFilename(m.Dir, m.Prefix, time.Now())
		csv, err := sink.CreateCSV(file, s)
		if err != nil {
			return err
		}
		sinks = append(sinks, csv)
		closer = csv
	}
	if m.Metrics != nil {
		sinks = append(sinks, m.Metrics)
	}
	sinks = append(sinks, m.Sinks...)
	m.Seq.Sink = sinks

	for _, l := range m.Locks {
		l.Hold(holder)
	}
	params := s
	m.running = true
	m.flag = &sweep.Flag{}
	m.params = &params
	m.file = file
	m.done = make(chan struct{})
	go m.run(s.Parameters(), m.flag, closer, file, m.done)
	return nil
}

func (m *Manager) run(p sweep.RunParameters, flag *sweep.Flag, closer io.Closer, file string, done chan struct{}) {
	started := time.Now()
	res, err := m.Seq.Run(p, flag)
	if err != nil {
		// the sequencer is in use by someone other than this Manager
		res = sweep.Result{Status: sweep.Faulted, Err: err}
	}
	if closer != nil {
		if cerr := closer.Close(); cerr != nil {
			log.Printf("sequence: closing %s: %v", file, cerr)
		}
	}
	if m.Metrics != nil {
		m.Metrics.Finished(res.Status)
	}
	for _, l := range m.Locks {
		l.Release()
	}
	out := newOutcome(res, file, started, time.Now())

	m.mu.Lock()
	m.running = false
	m.last = &out
	m.mu.Unlock()
	close(done)
}

// Stop requests cancellation of the run in progress.  The run ends at its
// next cancellation check, Wait blocks until then.
func (m *Manager) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.running {
		return ErrNotRunning
	}
	m.flag.Set()
	return nil
}

// Wait blocks until the current run, if any, is over and returns its outcome.
// The Outcome is nil if no run was ever started.
func (m *Manager) Wait() *Outcome {
	m.mu.Lock()
	done := m.done
	m.mu.Unlock()
	if done != nil {
		<-done
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.last
}

// Status returns a snapshot of the Manager
func (m *Manager) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	st := Status{Running: m.running, Params: m.params, File: m.file, Last: m.last}
	if m.running {
		st.State = m.Seq.State()
	}
	return st
}

// Temperature returns the controller temperature without disturbing a run.
// While a run is in progress it is the latest reading of the run, otherwise
// read is called.  No run starts while read is in progress.
func (m *Manager) Temperature(read func() (float64, error)) (float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.running {
		return read()
	}
	// nothing gets to 0 K, it means the run has not read yet
	if t := m.Seq.State().Temperature; t != 0 {
		return t, nil
	}
	return 0, ErrNoReading
}

// Params returns the settings of the current or last run, or the defaults
func (m *Manager) Params() sweep.Settings {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.params != nil {
		return *m.params
	}
	return m.Defaults
}

// HTTPRun starts a run from a JSON sweep.Settings body.  An empty body runs
// with the defaults.
func (m *Manager) HTTPRun(w http.ResponseWriter, r *http.Request) {
	s := m.Defaults
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(&s); err != nil && err != io.EOF {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	err := m.Start(s)
	switch {
	case err == nil:
		w.WriteHeader(http.StatusAccepted)
	case errors.Is(err, sweep.ErrBusy):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, ErrLimits), sweep.KindOf(err) == sweep.KindPreconditionViolated:
		http.Error(w, err.Error(), http.StatusBadRequest)
	default:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// HTTPStop requests the run in progress to stop
func (m *Manager) HTTPStop(w http.ResponseWriter, r *http.Request) {
	if err := m.Stop(); err != nil {
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// HTTPStatus returns Status as JSON
func (m *Manager) HTTPStatus(w http.ResponseWriter, r *http.Request) {
	generichttp.JSON(w, m.Status())
}

// HTTPParams returns Params as JSON
func (m *Manager) HTTPParams(w http.ResponseWriter, r *http.Request) {
	generichttp.JSON(w, m.Params())
}

// HTTPSamples returns the buffered samples with index >= the since query
// parameter as a JSON array
func (m *Manager) HTTPSamples(w http.ResponseWriter, r *http.Request) {
	since := 0
	if q := r.URL.Query().Get("since"); q != "" {
		i, err := strconv.Atoi(q)
		if err != nil || i < 0 {
			http.Error(w, fmt.Sprintf("since must be a non-negative integer, got %q", q), http.StatusBadRequest)
			return
		}
		since = i
	}
	samples := []sweep.Sample{}
	if m.Buffer != nil {
		samples = m.Buffer.Since(since)
	}
	generichttp.JSON(w, samples)
}

// HTTPManager wraps a Manager in an HTTP route table
type HTTPManager struct {
	Mgr *Manager

	// RouteTable maps URLs to functions
	RouteTable generichttp.RouteTable
}

// NewHTTPManager returns the run control routes for m
func NewHTTPManager(m *Manager) HTTPManager {
	rt := generichttp.RouteTable{
		generichttp.MethodPath{Method: http.MethodPost, Path: "/run"}:    m.HTTPRun,
		generichttp.MethodPath{Method: http.MethodPost, Path: "/stop"}:   m.HTTPStop,
		generichttp.MethodPath{Method: http.MethodGet, Path: "/status"}:  m.HTTPStatus,
		generichttp.MethodPath{Method: http.MethodGet, Path: "/samples"}: m.HTTPSamples,
		generichttp.MethodPath{Method: http.MethodGet, Path: "/params"}:  m.HTTPParams,
	}
	return HTTPManager{Mgr: m, RouteTable: rt}
}

// RT satisfies the generichttp.HTTPer interface
func (h HTTPManager) RT() generichttp.RouteTable {
	return h.RouteTable
}
