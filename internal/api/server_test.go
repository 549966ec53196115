package api

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rlima/roomwatch/internal/config"
	"github.com/rlima/roomwatch/internal/connwatch"
	"github.com/rlima/roomwatch/internal/events"
	"github.com/rlima/roomwatch/internal/metrics"
	"github.com/rlima/roomwatch/internal/station"
)

type fakeStation struct {
	mu   sync.Mutex
	snap station.Snapshot
	cmds []station.Command
	err  error
}

func (f *fakeStation) Snapshot() station.Snapshot {
	return f.snap
}

func (f *fakeStation) Submit(cmd station.Command) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	if cmd.Switch != "red" && cmd.Switch != "green" && cmd.Switch != "blue" {
		return station.ErrUnknownSwitch
	}
	f.cmds = append(f.cmds, cmd)
	return nil
}

type fakeHealth map[string]connwatch.ServiceStatus

func (f fakeHealth) Status() map[string]connwatch.ServiceStatus { return f }

func newTestServer(st Station) *Server {
	return NewServer(config.ListenConfig{Port: 0}, st, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestHealth(t *testing.T) {
	tests := []struct {
		name       string
		health     HealthSource
		wantCode   int
		wantStatus string
	}{
		{"no watchers", nil, http.StatusOK, "ok"},
		{"broker up", fakeHealth{"mqtt": {Name: "mqtt", Ready: true}}, http.StatusOK, "ok"},
		{"broker down", fakeHealth{"mqtt": {Name: "mqtt", LastError: "refused"}}, http.StatusServiceUnavailable, "degraded"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(&fakeStation{})
			if tt.health != nil {
				s.SetHealth(tt.health)
			}

			rec := httptest.NewRecorder()
			s.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/health", nil))

			if rec.Code != tt.wantCode {
				t.Errorf("code = %d, want %d", rec.Code, tt.wantCode)
			}
			var resp healthResponse
			if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if resp.Status != tt.wantStatus {
				t.Errorf("status = %q, want %q", resp.Status, tt.wantStatus)
			}
		})
	}
}

func TestVersion(t *testing.T) {
	s := newTestServer(&fakeStation{})
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/v1/version", nil))

	var info map[string]string
	if err := json.NewDecoder(rec.Body).Decode(&info); err != nil {
		t.Fatalf("decode: %v", err)
	}
	for _, key := range []string{"version", "go_version", "uptime"} {
		if info[key] == "" {
			t.Errorf("version response missing %q: %v", key, info)
		}
	}
}

func TestState(t *testing.T) {
	st := &fakeStation{snap: station.Snapshot{
		Motion:   true,
		Switches: map[string]bool{"red": true, "green": false},
	}}
	s := newTestServer(st)

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/v1/state", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("code = %d", rec.Code)
	}
	var got station.Snapshot
	if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !got.Motion || !got.Switches["red"] {
		t.Errorf("snapshot = %+v", got)
	}
}

func TestSwitchCommand(t *testing.T) {
	tests := []struct {
		name     string
		path     string
		body     string
		stErr    error
		wantCode int
		wantOn   bool
	}{
		{"on", "/v1/switches/red", `{"state":"ON"}`, nil, http.StatusAccepted, true},
		{"off lowercase", "/v1/switches/blue", `{"state":"off"}`, nil, http.StatusAccepted, false},
		{"bad state", "/v1/switches/red", `{"state":"blink"}`, nil, http.StatusBadRequest, false},
		{"bad json", "/v1/switches/red", `state=ON`, nil, http.StatusBadRequest, false},
		{"unknown switch", "/v1/switches/purple", `{"state":"ON"}`, nil, http.StatusNotFound, false},
		{"queue full", "/v1/switches/green", `{"state":"ON"}`, station.ErrBusy, http.StatusServiceUnavailable, false},
		{"other error", "/v1/switches/green", `{"state":"ON"}`, errors.New("boom"), http.StatusInternalServerError, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := &fakeStation{err: tt.stErr}
			s := newTestServer(st)

			rec := httptest.NewRecorder()
			s.Handler().ServeHTTP(rec, httptest.NewRequest("POST", tt.path, strings.NewReader(tt.body)))

			if rec.Code != tt.wantCode {
				t.Fatalf("code = %d, want %d (body %s)", rec.Code, tt.wantCode, rec.Body.String())
			}
			if tt.wantCode != http.StatusAccepted {
				return
			}
			if len(st.cmds) != 1 {
				t.Fatalf("commands = %d, want 1", len(st.cmds))
			}
			cmd := st.cmds[0]
			if cmd.On != tt.wantOn || cmd.Origin != station.OriginHTTP {
				t.Errorf("command = %+v", cmd)
			}
		})
	}
}

func TestSwitchRejectsGet(t *testing.T) {
	s := newTestServer(&fakeStation{})
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/v1/switches/red", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("code = %d, want 405", rec.Code)
	}
}

func TestMetricsRoute(t *testing.T) {
	s := newTestServer(&fakeStation{})

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("code without metrics = %d, want 404", rec.Code)
	}

	m := metrics.New()
	m.Notification("sent")
	s.SetMetrics(m.Handler())

	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	if !strings.Contains(rec.Body.String(), `roomwatch_notifications_total{outcome="sent"} 1`) {
		t.Errorf("metrics body missing notification counter")
	}
}

func TestEventStream(t *testing.T) {
	bus := events.New()
	s := newTestServer(&fakeStation{})
	s.SetEventBus(bus)

	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/v1/events"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(time.Second)
	for bus.SubscriberCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if bus.SubscriberCount() != 1 {
		t.Fatalf("subscribers = %d, want 1", bus.SubscriberCount())
	}

	bus.Emit(events.SourceMotion, events.KindStarted, nil)

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var got events.Event
	if err := conn.ReadJSON(&got); err != nil {
		t.Fatalf("read: %v", err)
	}
	if got.Source != events.SourceMotion || got.Kind != events.KindStarted {
		t.Errorf("event = %+v", got)
	}

	conn.Close()
	deadline = time.Now().Add(time.Second)
	for bus.SubscriberCount() != 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if bus.SubscriberCount() != 0 {
		t.Error("subscription not released after client closed")
	}
}
