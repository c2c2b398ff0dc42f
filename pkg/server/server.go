package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/labsim/collab/pkg/archive"
	"github.com/labsim/collab/pkg/collab"
	"github.com/labsim/collab/pkg/middleware"
)

// archiveTimeout bounds a single transcript upload.
const archiveTimeout = 30 * time.Second

// Options carries optional collaborators for a Server.
type Options struct {
	// Logger is the base logger. Default: slog.Default().
	Logger *slog.Logger

	// Registerer receives the server's Prometheus metrics.
	// Default: prometheus.DefaultRegisterer. Tests pass a fresh registry.
	Registerer prometheus.Registerer

	// Archiver, when set, receives a transcript of every session that
	// leaves the registry. Uploads are asynchronous and best-effort.
	Archiver archive.Archiver
}

// Server is the collaboration endpoint: one websocket route for all
// sessions plus the read-only HTTP API over the registry.
type Server struct {
	config   *Config
	registry *collab.Registry
	metrics  *Metrics
	archiver archive.Archiver
	upgrader websocket.Upgrader
	tracer   trace.Tracer

	handler    http.Handler
	httpServer *http.Server

	logger *slog.Logger
}

// New creates a Server. A nil config or opts gets defaults.
func New(config *Config, opts *Options) *Server {
	if config == nil {
		config = DefaultConfig()
	} else {
		config.normalize()
	}
	if opts == nil {
		opts = &Options{}
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "server")

	registerer := opts.Registerer
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	metrics := NewMetrics(registerer)

	registry := collab.NewRegistry(&collab.RegistryConfig{
		MaxSessions:   config.MaxSessions,
		SweepInterval: config.SweepInterval,
	}, logger)

	s := &Server{
		config:   config,
		registry: registry,
		metrics:  metrics,
		archiver: opts.Archiver,
		tracer:   otel.Tracer(tracerName),
		logger:   logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:    4096,
			WriteBufferSize:   4096,
			CheckOrigin:       config.CheckOrigin,
			EnableCompression: config.EnableCompression,
		},
	}

	registry.SetOnBroadcastDrop(metrics.RecordBroadcastDrop)
	registry.SetOnSessionCreate(func(*collab.Session) { metrics.RecordSessionCreate() })
	registry.SetOnSessionClose(s.onSessionClose)

	s.handler = s.routes(registerer)
	return s
}

// Registry exposes the session registry for the HTTP API's consumers and
// for tests. Callers get summaries and snapshots, never connection handles.
func (s *Server) Registry() *collab.Registry {
	return s.registry
}

func (s *Server) routes(registerer prometheus.Registerer) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(middleware.Prometheus(middleware.WithRegistry(registerer)))
	r.Use(middleware.OpenTelemetry())

	r.Get("/ws", s.handleWebSocket)

	r.Route("/api", func(r chi.Router) {
		r.Get("/sessions", s.handleListSessions)
		r.Get("/sessions/{id}", s.handleGetSession)
		r.Get("/stats", s.handleStats)
	})

	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	return r
}

// ServeHTTP implements http.Handler so the server composes with httptest
// and outer routers.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// handleWebSocket upgrades the connection and runs its read loop until the
// client goes away.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("websocket upgrade failed", "error", err)
		return
	}

	conn := newConn(ws, s)
	conn.serve()
}

// onSessionClose mirrors registry removals into metrics and kicks off the
// transcript upload when an archiver is configured. The upload is detached
// from session teardown: a slow or failing archive never blocks or breaks
// anything user-visible.
func (s *Server) onSessionClose(sess *collab.Session) {
	s.metrics.RecordSessionClose()

	if s.archiver == nil {
		return
	}
	t := archive.FromSession(sess)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), archiveTimeout)
		defer cancel()
		if err := s.archiver.Archive(ctx, t); err != nil {
			s.logger.Warn("transcript archive failed",
				"session_id", t.SessionID,
				"error", err)
		}
	}()
}

// Start listens on the configured address and serves until Shutdown.
func (s *Server) Start() error {
	s.httpServer = &http.Server{
		Addr:              s.config.Addr,
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.logger.Info("listening", "addr", s.config.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests, then tears down the registry, closing
// every live websocket.
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	if s.httpServer != nil {
		err = s.httpServer.Shutdown(ctx)
	}
	s.registry.Shutdown()
	s.logger.Info("server shutdown")
	return err
}
