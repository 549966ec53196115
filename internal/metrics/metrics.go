// Package metrics exposes node counters and gauges in Prometheus format.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "roomwatch"

// Metrics holds every collector. A nil *Metrics is valid and records
// nothing, so components can be built without it in tests.
type Metrics struct {
	registry *prometheus.Registry

	MotionTransitions *prometheus.CounterVec
	Notifications     *prometheus.CounterVec
	TelemetryPublish  prometheus.Counter
	SensorFailures    prometheus.Counter
	SwitchCommands    *prometheus.CounterVec
	Temperature       prometheus.Gauge
	Humidity          prometheus.Gauge
	MotionActive      prometheus.Gauge
	SwitchState       *prometheus.GaugeVec
	BrokerConnected   prometheus.Gauge
}

// New registers all collectors on a private registry along with the Go
// runtime and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		MotionTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "motion_transitions_total",
			Help:      "Motion state transitions by direction.",
		}, []string{"transition"}),
		Notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_total",
			Help:      "Notification attempts by outcome (sent, suppressed, failed).",
		}, []string{"outcome"}),
		TelemetryPublish: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "telemetry_publishes_total",
			Help:      "Climate samples published to the broker.",
		}),
		SensorFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sensor_read_failures_total",
			Help:      "Climate reads that produced NaN on either channel.",
		}),
		SwitchCommands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "switch_commands_total",
			Help:      "Switch commands applied, by switch and origin.",
		}, []string{"switch", "origin"}),
		Temperature: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "temperature_celsius",
			Help:      "Last published temperature.",
		}),
		Humidity: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "humidity_percent",
			Help:      "Last published relative humidity.",
		}),
		MotionActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "motion_active",
			Help:      "1 while motion is detected.",
		}),
		SwitchState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "switch_state",
			Help:      "1 when the LED switch is on.",
		}, []string{"switch"}),
		BrokerConnected: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "broker_connected",
			Help:      "1 while the MQTT connection is up.",
		}),
	}

	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.MotionTransitions,
		m.Notifications,
		m.TelemetryPublish,
		m.SensorFailures,
		m.SwitchCommands,
		m.Temperature,
		m.Humidity,
		m.MotionActive,
		m.SwitchState,
		m.BrokerConnected,
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Motion records a transition and the resulting state.
func (m *Metrics) Motion(transition string, active bool) {
	if m == nil {
		return
	}
	m.MotionTransitions.WithLabelValues(transition).Inc()
	m.MotionActive.Set(boolGauge(active))
}

// Notification records one notification outcome.
func (m *Metrics) Notification(outcome string) {
	if m == nil {
		return
	}
	m.Notifications.WithLabelValues(outcome).Inc()
}

// Climate records a published sample.
func (m *Metrics) Climate(temperature, humidity float64) {
	if m == nil {
		return
	}
	m.TelemetryPublish.Inc()
	m.Temperature.Set(temperature)
	m.Humidity.Set(humidity)
}

// SensorFailure counts a NaN read.
func (m *Metrics) SensorFailure() {
	if m == nil {
		return
	}
	m.SensorFailures.Inc()
}

// Switch records a switch change and its origin (mqtt, http, motion,
// restore).
func (m *Metrics) Switch(name, origin string, on bool) {
	if m == nil {
		return
	}
	m.SwitchCommands.WithLabelValues(name, origin).Inc()
	m.SwitchState.WithLabelValues(name).Set(boolGauge(on))
}

// Broker records the connection state.
func (m *Metrics) Broker(connected bool) {
	if m == nil {
		return
	}
	m.BrokerConnected.Set(boolGauge(connected))
}

func boolGauge(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
