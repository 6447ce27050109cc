// Package api exposes the dispatch engine over HTTP: rider-facing request
// and ride endpoints, operator endpoints for the fleet and escalations, a
// websocket stream of ride events and the Prometheus scrape endpoint.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/charujain10/smartchair-dispatch/core/archive"
	"github.com/charujain10/smartchair-dispatch/core/dispatch"
	"github.com/charujain10/smartchair-dispatch/core/escalation"
	"github.com/charujain10/smartchair-dispatch/core/fleet"
	"github.com/charujain10/smartchair-dispatch/core/queue"
	"github.com/charujain10/smartchair-dispatch/core/ride"
	"github.com/charujain10/smartchair-dispatch/infra/logger"
)

// Config holds the HTTP listener settings.
type Config struct {
	Addr            string `json:"addr"`
	ReadTimeoutSec  int    `json:"read_timeout_sec"`
	WriteTimeoutSec int    `json:"write_timeout_sec"`
}

func (c *Config) SetDefaults() {
	if c.Addr == "" {
		c.Addr = ":8080"
	}
	if c.ReadTimeoutSec <= 0 {
		c.ReadTimeoutSec = 10
	}
	if c.WriteTimeoutSec <= 0 {
		c.WriteTimeoutSec = 30
	}
}

// Server routes HTTP traffic to the core.
type Server struct {
	fleet       *fleet.Registry
	queue       *queue.Queue
	rides       *ride.Machine
	dispatcher  *dispatch.Manager
	escalations *escalation.Store
	history     archive.Store
	stream      *StreamHub
	router      *mux.Router
	log         logger.Logger
	cfg         Config
}

// NewServer wires the routes. The stream hub may be nil when websocket
// streaming is disabled.
func NewServer(cfg Config, reg *fleet.Registry, q *queue.Queue, rides *ride.Machine, d *dispatch.Manager, esc *escalation.Store, history archive.Store, stream *StreamHub, log logger.Logger) *Server {
	cfg.SetDefaults()
	s := &Server{
		fleet:       reg,
		queue:       q,
		rides:       rides,
		dispatcher:  d,
		escalations: esc,
		history:     history,
		stream:      stream,
		router:      mux.NewRouter(),
		log:         log,
		cfg:         cfg,
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.router.Use(s.recoverMiddleware)
	s.router.Use(s.logMiddleware)

	r := s.router
	r.HandleFunc("/api/requests", s.handleSubmitRequest).Methods(http.MethodPost)
	r.HandleFunc("/api/requests/pending", s.handlePendingRequests).Methods(http.MethodGet)
	r.HandleFunc("/api/requests/{id}", s.handleGetRequest).Methods(http.MethodGet)
	r.HandleFunc("/api/requests/{id}/cancel", s.handleCancelRequest).Methods(http.MethodPost)

	r.HandleFunc("/api/rides/{id}", s.handleGetRide).Methods(http.MethodGet)
	r.HandleFunc("/api/rides/{id}/destination", s.handleChangeDestination).Methods(http.MethodPost)
	r.HandleFunc("/api/rides/{id}/cancel", s.handleCancelRide).Methods(http.MethodPost)
	r.HandleFunc("/api/rides/{id}/emergency", s.handleRaiseEmergency).Methods(http.MethodPost)
	r.HandleFunc("/api/rides/{id}/events", s.handleRideEvents).Methods(http.MethodGet)
	r.HandleFunc("/api/riders/{id}/rides", s.handleRiderHistory).Methods(http.MethodGet)

	r.HandleFunc("/api/escalations", s.handleListEscalations).Methods(http.MethodGet)
	r.HandleFunc("/api/escalations/{id}/ack", s.handleAckEscalation).Methods(http.MethodPost)

	r.HandleFunc("/api/fleet", s.handleFleetSnapshot).Methods(http.MethodGet)
	r.HandleFunc("/api/fleet", s.handleRegisterUnit).Methods(http.MethodPost)
	r.HandleFunc("/api/fleet/stats", s.handleFleetStats).Methods(http.MethodGet)
	r.HandleFunc("/api/fleet/{id}/out-of-service", s.handleOutOfService).Methods(http.MethodPost)
	r.HandleFunc("/api/fleet/{id}/return-to-service", s.handleReturnToService).Methods(http.MethodPost)
	r.HandleFunc("/api/assign", s.handleManualAssign).Methods(http.MethodPost)

	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}).Methods(http.MethodGet)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { s.router.ServeHTTP(w, r) }

// Run serves until the context is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:         s.cfg.Addr,
		Handler:      s.router,
		ReadTimeout:  time.Duration(s.cfg.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(s.cfg.WriteTimeoutSec) * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()
	s.log.Infof("http listening on %s", s.cfg.Addr)
	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.log.Errorf("panic recovered: %v", rec)
				http.Error(w, "internal error", http.StatusInternalServerError)
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func (s *Server) logMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(ww, r)
		s.log.Debugw("http request", map[string]interface{}{
			"method":      r.Method,
			"path":        r.URL.Path,
			"status":      ww.status,
			"duration_ms": time.Since(start).Milliseconds(),
		})
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

type errorBody struct {
	Error string `json:"error"`
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, errorBody{Error: err.Error()})
}

// statusFor maps core sentinel errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, queue.ErrNotFound),
		errors.Is(err, fleet.ErrNotFound),
		errors.Is(err, ride.ErrNotFound),
		errors.Is(err, archive.ErrNotFound),
		errors.Is(err, escalation.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, queue.ErrAlreadyTerminal),
		errors.Is(err, queue.ErrNotPending),
		errors.Is(err, queue.ErrRiderBusy),
		errors.Is(err, fleet.ErrAlreadyReserved),
		errors.Is(err, fleet.ErrDuplicateUnit),
		errors.Is(err, ride.ErrInvalidTransition),
		errors.Is(err, dispatch.ErrNoUnitAvailable):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
