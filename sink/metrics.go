package sink

import (
	"github.com/nasa-jpl/cryosweep/sweep"
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exports the latest sample as Prometheus gauges
type Metrics struct {
	samples     prometheus.Counter
	temperature prometheus.Gauge
	value       prometheus.Gauge
	index       prometheus.Gauge
	runs        *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them with reg
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		samples: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cryosweep_samples_total",
			Help: "Total samples emitted by all runs.",
		}),
		temperature: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "cryosweep_temperature_kelvin",
			Help: "Temperature of the most recent sample.",
		}),
		value: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "cryosweep_resistance_ohms",
			Help: "Meter reading of the most recent sample.",
		}),
		index: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "cryosweep_sample_index",
			Help: "Index of the most recent sample within its run.",
		}),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cryosweep_runs_total",
			Help: "Finished runs by final status.",
		}, []string{"status"}),
	}
	reg.MustRegister(m.samples, m.temperature, m.value, m.index, m.runs)
	return m
}

// Emit updates the gauges
func (m *Metrics) Emit(s sweep.Sample) error {
	m.samples.Inc()
	m.temperature.Set(s.Temperature)
	m.value.Set(s.Value)
	m.index.Set(float64(s.Index))
	return nil
}

// Finished counts a run that ended with status
func (m *Metrics) Finished(status sweep.Phase) {
	m.runs.WithLabelValues(status.String()).Inc()
}
