// Package api implements the node's local status server: health,
// build info, live state, switch control, an event stream and
// Prometheus metrics.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/rlima/roomwatch/internal/buildinfo"
	"github.com/rlima/roomwatch/internal/config"
	"github.com/rlima/roomwatch/internal/connwatch"
	"github.com/rlima/roomwatch/internal/events"
	"github.com/rlima/roomwatch/internal/station"
)

// maxBodyBytes caps switch request bodies.
const maxBodyBytes = 1 << 10

// writeJSON encodes v as JSON to w, logging any errors at debug level.
// Errors here typically mean the client disconnected mid-response.
func writeJSON(w http.ResponseWriter, status int, v any, logger *slog.Logger) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Debug("failed to write JSON response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string, logger *slog.Logger) {
	writeJSON(w, status, map[string]string{"error": msg}, logger)
}

// Station is the part of the station the server reads and controls.
type Station interface {
	Snapshot() station.Snapshot
	Submit(cmd station.Command) error
}

// HealthSource reports watched service status.
type HealthSource interface {
	Status() map[string]connwatch.ServiceStatus
}

// Server is the status HTTP server.
type Server struct {
	address string
	port    int
	station Station
	health  HealthSource
	bus     *events.Bus
	metrics http.Handler
	logger  *slog.Logger
	server  *http.Server
}

// NewServer creates a status server. Optional sources are attached
// with the Set methods before Start.
func NewServer(cfg config.ListenConfig, st Station, logger *slog.Logger) *Server {
	return &Server{
		address: cfg.Address,
		port:    cfg.Port,
		station: st,
		logger:  logger,
	}
}

// SetHealth configures the source for /health.
func (s *Server) SetHealth(h HealthSource) {
	s.health = h
}

// SetEventBus configures the bus streamed on /v1/events.
func (s *Server) SetEventBus(b *events.Bus) {
	s.bus = b
}

// SetMetrics configures the /metrics handler.
func (s *Server) SetMetrics(h http.Handler) {
	s.metrics = h
}

// Handler returns the routed handler with request logging.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /v1/version", s.handleVersion)
	mux.HandleFunc("GET /v1/state", s.handleState)
	mux.HandleFunc("POST /v1/switches/{name}", s.handleSwitch)

	if s.bus != nil {
		mux.HandleFunc("GET /v1/events", s.handleEvents)
	}
	if s.metrics != nil {
		mux.Handle("GET /metrics", s.metrics)
	}

	return s.withLogging(mux)
}

// Start begins serving HTTP requests. It returns http.ErrServerClosed
// after Shutdown.
func (s *Server) Start(ctx context.Context) error {
	s.server = &http.Server{
		Addr:        fmt.Sprintf("%s:%d", s.address, s.port),
		Handler:     s.Handler(),
		ReadTimeout: 10 * time.Second,
		BaseContext: func(_ net.Listener) context.Context { return ctx },
	}

	addr := s.address
	if addr == "" {
		addr = "0.0.0.0"
	}
	s.logger.Info("starting status server", "address", addr, "port", s.port)
	return s.server.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Debug("request",
			"method", r.Method,
			"path", r.URL.Path,
			"duration", time.Since(start),
		)
	})
}

// healthResponse is the /health body. Status is "ok" when every watched
// service is ready, "degraded" otherwise.
type healthResponse struct {
	Status   string                             `json:"status"`
	Version  string                             `json:"version"`
	Uptime   string                             `json:"uptime"`
	Services map[string]connwatch.ServiceStatus `json:"services,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{
		Status:  "ok",
		Version: buildinfo.Version,
		Uptime:  buildinfo.Uptime().Truncate(time.Second).String(),
	}
	if s.health != nil {
		resp.Services = s.health.Status()
		for _, svc := range resp.Services {
			if !svc.Ready {
				resp.Status = "degraded"
			}
		}
	}

	code := http.StatusOK
	if resp.Status != "ok" {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, resp, s.logger)
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, buildinfo.RuntimeInfo(), s.logger)
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.station.Snapshot(), s.logger)
}

// switchRequest is the POST /v1/switches/{name} body.
type switchRequest struct {
	State string `json:"state"`
}

func (s *Server) handleSwitch(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")

	var req switchRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body", s.logger)
		return
	}

	var on bool
	switch strings.ToUpper(strings.TrimSpace(req.State)) {
	case "ON":
		on = true
	case "OFF":
	default:
		writeError(w, http.StatusBadRequest, `state must be "ON" or "OFF"`, s.logger)
		return
	}

	err := s.station.Submit(station.Command{Switch: name, On: on, Origin: station.OriginHTTP})
	switch {
	case errors.Is(err, station.ErrUnknownSwitch):
		writeError(w, http.StatusNotFound, err.Error(), s.logger)
		return
	case errors.Is(err, station.ErrBusy):
		writeError(w, http.StatusServiceUnavailable, err.Error(), s.logger)
		return
	case err != nil:
		writeError(w, http.StatusInternalServerError, err.Error(), s.logger)
		return
	}

	s.logger.Info("switch command queued", "switch", name, "on", on)
	writeJSON(w, http.StatusAccepted, map[string]any{
		"switch": name,
		"state":  strings.ToUpper(strings.TrimSpace(req.State)),
		"queued": true,
	}, s.logger)
}
