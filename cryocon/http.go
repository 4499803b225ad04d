package cryocon

import (
	"go/types"
	"math"
	"net/http"

	"github.com/go-chi/chi"

	"github.com/nasa-jpl/cryosweep/generichttp"
)

// HTTPMonitor provides HTTP bindings on top of a Monitor
type HTTPMonitor struct {
	Monitor *Monitor

	// RouteTable maps URLs to functions
	RouteTable generichttp.RouteTable
}

// NewHTTPMonitor returns a new HTTP wrapper with the route table pre-configured
func NewHTTPMonitor(m *Monitor) HTTPMonitor {
	w := HTTPMonitor{Monitor: m}
	w.RouteTable = generichttp.RouteTable{
		generichttp.MethodPath{Method: http.MethodGet, Path: "/read"}:      w.HTTPReadAll,
		generichttp.MethodPath{Method: http.MethodGet, Path: "/read/{ch}"}: w.HTTPReadChan,
		generichttp.MethodPath{Method: http.MethodGet, Path: "/idn"}:       w.HTTPIdentification,
	}
	return w
}

// RT satisfies the generichttp.HTTPer interface
func (h HTTPMonitor) RT() generichttp.RouteTable {
	return h.RouteTable
}

// HTTPReadAll reads all the channels and returns them as a JSON array, K.
// Unpopulated channels are null.
func (h HTTPMonitor) HTTPReadAll(w http.ResponseWriter, r *http.Request) {
	f, err := h.Monitor.ReadAll()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	out := make([]*float64, len(f))
	for i := range f {
		if !math.IsNaN(f[i]) {
			out[i] = &f[i]
		}
	}
	generichttp.JSON(w, out)
}

// HTTPReadChan reads the channel named in the URL and returns it in K
func (h HTTPMonitor) HTTPReadChan(w http.ResponseWriter, r *http.Request) {
	f, err := h.Monitor.Read(chi.URLParam(r, "ch"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if math.IsNaN(f) {
		http.Error(w, "channel is not populated", http.StatusNotFound)
		return
	}
	hp := generichttp.HumanPayload{T: types.Float64, Float: f}
	hp.EncodeAndRespond(w, r)
}

// HTTPIdentification returns the identification string of the monitor
func (h HTTPMonitor) HTTPIdentification(w http.ResponseWriter, r *http.Request) {
	v, err := h.Monitor.Identification()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	hp := generichttp.HumanPayload{T: types.String, String: v}
	hp.EncodeAndRespond(w, r)
}
