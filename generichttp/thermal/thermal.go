// Package thermal exposes an HTTP interface to thermal controllers
package thermal

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/nasa-jpl/cryosweep/generichttp"
	"github.com/nasa-jpl/cryosweep/sweep"
	"github.com/nasa-jpl/cryosweep/temperature"
	"github.com/nasa-jpl/cryosweep/util"
)

var (
	errLimited = errors.New("requested setpoint violates software limits, aborted")
)

// Controller is an interface to a thermal controller with a single control loop.
// Temperatures are in Kelvin.
type Controller interface {
	// Read gets the temperature
	Read() (float64, error)

	// GetSetpoint gets the temperature setpoint
	GetSetpoint() (float64, error)

	// SetSetpoint sets the temperature setpoint
	SetSetpoint(float64) error
}

// Ramper can ramp its setpoint at a rate in K/min
type Ramper interface {
	SetRamp(enabled bool, rate float64) error
	GetRamp() (bool, float64, error)
}

// HeaterRanger can select and report its heater range
type HeaterRanger interface {
	sweep.HeaterRanger
	GetHeaterRange() (sweep.HeaterRange, error)
}

// HeaterDisabler can turn all of its heaters off
type HeaterDisabler interface {
	DisableOutputs() error
}

// Ramp is the JSON form of a ramp setting
type Ramp struct {
	Enabled bool    `json:"enabled"`
	Rate    float64 `json:"rate"`
}

// GetTemperature returns an HTTP handler func that returns the temperature over HTTP
func GetTemperature(c Controller) http.HandlerFunc {
	return generichttp.GetFloat(c.Read)
}

// GetTemperatureCelsius returns the temperature in Celsius over HTTP
func GetTemperatureCelsius(c Controller) http.HandlerFunc {
	return generichttp.GetFloat(func() (float64, error) {
		k, err := c.Read()
		if err != nil {
			return 0, err
		}
		return float64(temperature.K2C(temperature.Kelvin(k))), nil
	})
}

// GetSetpoint returns the setpoint as JSON over HTTP
func GetSetpoint(c Controller) http.HandlerFunc {
	return generichttp.GetFloat(c.GetSetpoint)
}

// SetSetpoint returns an HTTP handler func that sets the setpoint over HTTP.
// Setpoints outside of lim are refused with StatusBadRequest.
func SetSetpoint(c Controller, lim util.Limiter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		f := generichttp.FloatT{}
		err := json.NewDecoder(r.Body).Decode(&f)
		defer r.Body.Close()
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if !util.Finite(f.F64) || !lim.Check(f.F64) {
			http.Error(w, errLimited.Error(), http.StatusBadRequest)
			return
		}
		err = c.SetSetpoint(f.F64)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}
}

// GetRamp returns the ramp setting as JSON over HTTP
func GetRamp(rmp Ramper) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		on, rate, err := rmp.GetRamp()
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		generichttp.JSON(w, Ramp{Enabled: on, Rate: rate})
	}
}

// SetRamp configures the ramp from JSON {"enabled": bool, "rate": K/min}
func SetRamp(rmp Ramper) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ramp := Ramp{}
		err := json.NewDecoder(r.Body).Decode(&ramp)
		defer r.Body.Close()
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if ramp.Enabled && !(ramp.Rate > 0) {
			http.Error(w, "ramp rate must be positive", http.StatusBadRequest)
			return
		}
		err = rmp.SetRamp(ramp.Enabled, ramp.Rate)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}
}

// GetHeaterRange returns the heater range as {"int": n} over HTTP
func GetHeaterRange(hr HeaterRanger) http.HandlerFunc {
	return generichttp.GetInt(func() (int, error) {
		rng, err := hr.GetHeaterRange()
		return int(rng), err
	})
}

// SetHeaterRange sets the heater range from {"int": n}, 0 (off) to 3 (high)
func SetHeaterRange(hr HeaterRanger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		i := generichttp.IntT{}
		err := json.NewDecoder(r.Body).Decode(&i)
		defer r.Body.Close()
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		rng := sweep.HeaterRange(i.Int)
		if rng < sweep.RangeOff || rng > sweep.RangeHigh {
			http.Error(w, "heater range must be 0, 1, 2 or 3", http.StatusBadRequest)
			return
		}
		err = hr.SetHeaterRange(rng)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}
}

// DisableHeaters turns every heater off
func DisableHeaters(hd HeaterDisabler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := hd.DisableOutputs(); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}
}

// GetLimits returns the software setpoint limits
func GetLimits(lim util.Limiter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		generichttp.JSON(w, lim)
	}
}

// HTTPController wraps a Controller in an HTTP route table
type HTTPController struct {
	// Ctl is the underlying controller
	Ctl Controller

	// Limits bounds the setpoints accepted over HTTP
	Limits util.Limiter

	// RouteTable maps URLs to functions
	RouteTable generichttp.RouteTable
}

// NewHTTPController returns a new HTTP wrapper around a controller.
// Ramp, heater range and heater shutoff routes are added when ctl
// supports them.
func NewHTTPController(ctl Controller, lim util.Limiter) HTTPController {
	h := HTTPController{Ctl: ctl, Limits: lim}
	rt := generichttp.RouteTable{
		generichttp.MethodPath{Method: http.MethodGet, Path: "/temperature"}:         GetTemperature(ctl),
		generichttp.MethodPath{Method: http.MethodGet, Path: "/temperature/celsius"}: GetTemperatureCelsius(ctl),
		generichttp.MethodPath{Method: http.MethodGet, Path: "/setpoint"}:            GetSetpoint(ctl),
		generichttp.MethodPath{Method: http.MethodPost, Path: "/setpoint"}:           SetSetpoint(ctl, lim),
		generichttp.MethodPath{Method: http.MethodGet, Path: "/limits"}:              GetLimits(lim),
	}
	if rmp, ok := interface{}(ctl).(Ramper); ok {
		rt[generichttp.MethodPath{Method: http.MethodGet, Path: "/ramp"}] = GetRamp(rmp)
		rt[generichttp.MethodPath{Method: http.MethodPost, Path: "/ramp"}] = SetRamp(rmp)
	}
	if hr, ok := interface{}(ctl).(HeaterRanger); ok {
		rt[generichttp.MethodPath{Method: http.MethodGet, Path: "/heater/range"}] = GetHeaterRange(hr)
		rt[generichttp.MethodPath{Method: http.MethodPost, Path: "/heater/range"}] = SetHeaterRange(hr)
	}
	if hd, ok := interface{}(ctl).(HeaterDisabler); ok {
		rt[generichttp.MethodPath{Method: http.MethodPost, Path: "/heater/off"}] = DisableHeaters(hd)
	}
	h.RouteTable = rt
	return h
}

// RT satisfies the generichttp.HTTPer interface
func (h HTTPController) RT() generichttp.RouteTable {
	return h.RouteTable
}
