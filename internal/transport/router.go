// Package transport serves a running machine over HTTP: health and
// Prometheus endpoints, late-join state, and a websocket observer stream
// that also accepts live inputs.
package transport

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"slices"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"github.com/roach88/circuit/internal/engine"
	"github.com/roach88/circuit/internal/ir"
	"github.com/roach88/circuit/internal/synchronizer"
)

// Machine is the subset of engine.Machine the transport drives.
type Machine interface {
	Inject(id ir.BlockID, connector string, v ir.Value) error
	ClearInjection(id ir.BlockID, connector string) error
	Snapshot() engine.MachineSnapshot
}

// Sync is the subset of the synchronizer observers read from.
type Sync interface {
	Subscribe(obs synchronizer.Observer) (replay []synchronizer.Event, cancel func())
	Existing(channel string) []synchronizer.Event
	Channels() []string
}

// Metrics receives transport counters. metrics.Collector implements it.
type Metrics interface {
	ObserversChanged(n int)
	MessageSent()
	InputDropped(reason string)
}

type nopMetrics struct{}

func (nopMetrics) ObserversChanged(int) {}
func (nopMetrics) MessageSent()         {}
func (nopMetrics) InputDropped(string)  {}

// Config contains the router's dependencies.
type Config struct {
	// Machine and Sync are required.
	Machine Machine
	Sync    Sync

	// Gatherer backs /metrics. Default: prometheus.DefaultGatherer.
	Gatherer prometheus.Gatherer

	// Metrics receives observer and input counters. Default: none.
	Metrics Metrics

	Logger *slog.Logger

	// InputRate and InputBurst bound inbound inputs per websocket
	// connection, and across all HTTP input requests.
	InputRate  rate.Limit
	InputBurst int

	// AllowedOrigins lists browser origins accepted besides the server's
	// own host, for websocket upgrades and CORS. "*" accepts any origin.
	AllowedOrigins []string

	// DisableLogging turns off per-request logs.
	DisableLogging bool
}

// DefaultInputRate and DefaultInputBurst apply when Config leaves them zero.
const (
	DefaultInputRate  rate.Limit = 20
	DefaultInputBurst            = 40
)

// Server is the router plus the observer hub behind /observe.
type Server struct {
	router  *chi.Mux
	hub     *Hub
	machine Machine
	sync    Sync
	limiter *rate.Limiter
	logger  *slog.Logger
	metrics Metrics
}

// NewServer constructs the HTTP handler. It starts no goroutines and opens
// no listeners, so it is safe to wrap in httptest.NewServer.
func NewServer(cfg Config) *Server {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = nopMetrics{}
	}
	if cfg.Gatherer == nil {
		cfg.Gatherer = prometheus.DefaultGatherer
	}
	if cfg.InputRate <= 0 {
		cfg.InputRate = DefaultInputRate
	}
	if cfg.InputBurst <= 0 {
		cfg.InputBurst = DefaultInputBurst
	}

	s := &Server{
		router:  chi.NewRouter(),
		machine: cfg.Machine,
		sync:    cfg.Sync,
		limiter: rate.NewLimiter(cfg.InputRate, cfg.InputBurst),
		logger:  cfg.Logger.With("component", "transport"),
		metrics: cfg.Metrics,
	}
	s.hub = newHub(cfg, s.logger)

	r := s.router
	if !cfg.DisableLogging {
		r.Use(requestLogger(s.logger))
	}
	r.Use(middleware.Recoverer)
	if len(cfg.AllowedOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: cfg.AllowedOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
			AllowedHeaders: []string{"Content-Type"},
			MaxAge:         300,
		}))
	}

	r.Get("/health", s.handleHealth)
	r.Handle("/metrics", promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{}))
	r.Get("/snapshot", s.handleSnapshot)
	r.Get("/state", s.handleState)
	r.Get("/state/{channel}", s.handleState)
	r.Get("/observe", s.hub.handleObserve)
	r.Route("/blocks/{block}/inputs/{connector}", func(r chi.Router) {
		r.Post("/", s.handleInject)
		r.Delete("/", s.handleClearInput)
	})
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Hub returns the observer hub.
func (s *Server) Hub() *Hub { return s.hub }

// Close disconnects every observer.
func (s *Server) Close() { s.hub.Close() }

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	snap := s.machine.Snapshot()
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"machine":   snap.ID,
		"tick":      snap.Tick,
		"nodes":     len(snap.Nodes),
		"observers": s.hub.Len(),
	})
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.machine.Snapshot())
}

// handleState answers late joiners that poll instead of subscribing.
func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	channel := chi.URLParam(r, "channel")
	if channel != "" && !slices.Contains(s.sync.Channels(), channel) {
		writeError(w, http.StatusNotFound, "unknown channel "+channel)
		return
	}
	writeJSON(w, http.StatusOK, s.sync.Existing(channel))
}

func (s *Server) handleInject(w http.ResponseWriter, r *http.Request) {
	if !s.limiter.Allow() {
		s.metrics.InputDropped("rate_limit")
		writeError(w, http.StatusTooManyRequests, "input rate limit exceeded")
		return
	}
	var body struct {
		Kind  string          `json:"kind"`
		Value json.RawMessage `json:"value"`
	}
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxMessageSize)).Decode(&body); err != nil {
		s.metrics.InputDropped("invalid")
		writeError(w, http.StatusBadRequest, "invalid body: "+err.Error())
		return
	}
	v, err := decodeInput(body.Kind, body.Value)
	if err != nil {
		s.metrics.InputDropped("invalid")
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	block, connector := ir.BlockID(chi.URLParam(r, "block")), chi.URLParam(r, "connector")
	if err := s.machine.Inject(block, connector, v); err != nil {
		s.metrics.InputDropped("rejected")
		writeError(w, injectStatus(err), err.Error())
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) handleClearInput(w http.ResponseWriter, r *http.Request) {
	block, connector := ir.BlockID(chi.URLParam(r, "block")), chi.URLParam(r, "connector")
	if err := s.machine.ClearInjection(block, connector); err != nil {
		writeError(w, injectStatus(err), err.Error())
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func injectStatus(err error) int {
	if errors.Is(err, engine.ErrStopped) {
		return http.StatusServiceUnavailable
	}
	return http.StatusUnprocessableEntity
}

// decodeInput converts a wire input into a typed value of a primitive kind.
func decodeInput(kind string, raw json.RawMessage) (ir.Value, error) {
	k, err := ir.ParseKind(kind)
	if err != nil {
		return nil, err
	}
	if !k.IsPrimitive() {
		return nil, errors.New("inputs must carry a value kind, not " + kind)
	}
	if len(raw) == 0 {
		return nil, errors.New("input value is required")
	}
	p, err := ir.UnmarshalPayload(raw)
	if err != nil {
		return nil, err
	}
	return ir.DecodeValue(k, p)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// requestLogger logs each request through slog instead of chi's
// log-based middleware.Logger.
func requestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			logger.Debug("http request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"duration", time.Since(start),
			)
		})
	}
}
