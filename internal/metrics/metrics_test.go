package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.Motion("started", true)
	m.Notification("sent")
	m.Climate(24, 40)
	m.SensorFailure()
	m.Switch("red", "mqtt", true)
	m.Broker(true)
	if m.Registry() != nil {
		t.Error("nil Metrics should have nil registry")
	}
}

func TestCounters(t *testing.T) {
	m := New()

	m.Notification("sent")
	m.Notification("suppressed")
	m.Notification("suppressed")
	m.Motion("started", true)

	if got := testutil.ToFloat64(m.Notifications.WithLabelValues("suppressed")); got != 2 {
		t.Errorf("suppressed = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.MotionActive); got != 1 {
		t.Errorf("motion_active = %v, want 1", got)
	}

	m.Climate(23.5, 41)
	if got := testutil.ToFloat64(m.Temperature); got != 23.5 {
		t.Errorf("temperature = %v, want 23.5", got)
	}
	if got := testutil.ToFloat64(m.TelemetryPublish); got != 1 {
		t.Errorf("telemetry publishes = %v, want 1", got)
	}
}

func TestHandlerExposesMetrics(t *testing.T) {
	m := New()
	m.Switch("green", "http", true)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, _ := io.ReadAll(rec.Body)
	for _, want := range []string{
		`roomwatch_switch_state{switch="green"} 1`,
		`roomwatch_switch_commands_total{origin="http",switch="green"} 1`,
		"go_goroutines",
	} {
		if !strings.Contains(string(body), want) {
			t.Errorf("metrics output missing %q", want)
		}
	}
}
