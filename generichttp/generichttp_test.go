package generichttp

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubMuxSanitize(t *testing.T) {
	cases := map[string]string{
		"omc/nkt":    "/omc/nkt",
		"/omc/nkt/*": "/omc/nkt",
		"stage/":     "/stage",
		"":           "/",
	}
	for in, want := range cases {
		assert.Equal(t, want, SubMuxSanitize(in), in)
	}
}

func TestEndpointsSorted(t *testing.T) {
	rt := RouteTable{
		{Method: http.MethodPost, Path: "/setpoint"}:   nil,
		{Method: http.MethodGet, Path: "/temperature"}: nil,
		{Method: http.MethodGet, Path: "/setpoint"}:    nil,
	}
	assert.Equal(t, []string{"GET /setpoint", "GET /temperature", "POST /setpoint"}, rt.Endpoints())
}

func TestBindAndRoundTrip(t *testing.T) {
	var stored float64
	rt := RouteTable{
		{Method: http.MethodGet, Path: "/value"}:  GetFloat(func() (float64, error) { return stored, nil }),
		{Method: http.MethodPost, Path: "/value"}: SetFloat(func(f float64) error { stored = f; return nil }),
	}
	r := chi.NewRouter()
	rt.Bind(r)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/value", strings.NewReader(`{"f64": 12.5}`)))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 12.5, stored)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/value", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"f64": 12.5}`, w.Body.String())

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPut, "/value", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}

func TestPlainTextPayload(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Accept", "text/plain")
	w := httptest.NewRecorder()
	GetString(func() (string, error) { return "SIN", nil })(w, req)
	assert.Equal(t, "SIN", w.Body.String())
}

func TestSetterErrors(t *testing.T) {
	h := SetBool(func(bool) error { return errors.New("device said no") })

	w := httptest.NewRecorder()
	h(w, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`not json`)))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = httptest.NewRecorder()
	h(w, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"bool": true}`)))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), "device said no")
}

func TestSetBoolSplit(t *testing.T) {
	var calls []string
	h := SetBoolSplit(
		func() error { calls = append(calls, "on"); return nil },
		func() error { calls = append(calls, "off"); return nil })
	for _, body := range []string{`{"bool": true}`, `{"bool": false}`} {
		w := httptest.NewRecorder()
		h(w, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body)))
		require.Equal(t, http.StatusOK, w.Code)
	}
	assert.Equal(t, []string{"on", "off"}, calls)
}
