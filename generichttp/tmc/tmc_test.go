package tmc

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memoryGenerator struct {
	fcn           string
	freq, v, offs float64
	out           bool
}

func (g *memoryGenerator) SetFunction(s string) error     { g.fcn = s; return nil }
func (g *memoryGenerator) GetFunction() (string, error)   { return g.fcn, nil }
func (g *memoryGenerator) SetFrequency(f float64) error   { g.freq = f; return nil }
func (g *memoryGenerator) GetFrequency() (float64, error) { return g.freq, nil }
func (g *memoryGenerator) SetVoltage(f float64) error     { g.v = f; return nil }
func (g *memoryGenerator) GetVoltage() (float64, error)   { return g.v, nil }
func (g *memoryGenerator) SetOffset(f float64) error      { g.offs = f; return nil }
func (g *memoryGenerator) GetOffset() (float64, error)    { return g.offs, nil }
func (g *memoryGenerator) EnableOutput() error            { g.out = true; return nil }
func (g *memoryGenerator) DisableOutput() error           { g.out = false; return nil }
func (g *memoryGenerator) GetOutput() (bool, error)       { return g.out, nil }

type identifiedGenerator struct{ memoryGenerator }

func (g *identifiedGenerator) Identification() (string, error) { return "OR-X,ORX325", nil }

func TestFunctionGeneratorRoutes(t *testing.T) {
	g := &memoryGenerator{}
	r := chi.NewRouter()
	NewHTTPFunctionGenerator(g).RT().Bind(r)

	posts := map[string]string{
		"/function":  `{"str": "SQU"}`,
		"/frequency": `{"f64": 1000}`,
		"/voltage":   `{"f64": 2.5}`,
		"/offset":    `{"f64": -1}`,
		"/output":    `{"bool": true}`,
	}
	for path, body := range posts {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, path, strings.NewReader(body)))
		require.Equal(t, http.StatusOK, w.Code, path)
	}
	assert.Equal(t, &memoryGenerator{fcn: "SQU", freq: 1000, v: 2.5, offs: -1, out: true}, g)

	gets := map[string]string{
		"/function":  `{"str": "SQU"}`,
		"/frequency": `{"f64": 1000}`,
		"/output":    `{"bool": true}`,
	}
	for path, want := range gets {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
		require.Equal(t, http.StatusOK, w.Code, path)
		assert.JSONEq(t, want, w.Body.String(), path)
	}
}

func TestIdentificationRouteIsOptional(t *testing.T) {
	plain := NewHTTPFunctionGenerator(&memoryGenerator{})
	assert.NotContains(t, plain.RT().Endpoints(), "GET /idn")

	idn := NewHTTPFunctionGenerator(&identifiedGenerator{})
	assert.Contains(t, idn.RT().Endpoints(), "GET /idn")
}
