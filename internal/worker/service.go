// Package worker provides the HTTP worker service for tabletalk.
package worker

import (
	"context"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"

	"github.com/thebtf/tabletalk/internal/agent"
	"github.com/thebtf/tabletalk/internal/config"
	"github.com/thebtf/tabletalk/internal/datastore"
	"github.com/thebtf/tabletalk/internal/db"
	"github.com/thebtf/tabletalk/internal/session"
	"github.com/thebtf/tabletalk/internal/worker/sse"
)

// Service wires the orchestration client and its stores behind the
// HTTP API.
type Service struct {
	version string
	config  *config.Config

	store        *db.Store
	sessionStore *db.SessionStore
	auditStore   *db.AuditStore
	dataStore    datastore.Store

	tracker        *session.Tracker
	client         *agent.Client
	sseBroadcaster *sse.Broadcaster

	router     *chi.Mux
	httpServer *http.Server

	ctx       context.Context
	cancel    context.CancelFunc
	startTime time.Time
	ready     atomic.Bool
}

// Options collects the collaborators a Service needs.
type Options struct {
	Version      string
	Config       *config.Config
	Store        *db.Store
	SessionStore *db.SessionStore
	AuditStore   *db.AuditStore
	DataStore    datastore.Store
	Tracker      *session.Tracker
	Client       *agent.Client
	Broadcaster  *sse.Broadcaster
}

// NewService creates the worker service and registers its routes.
func NewService(opts Options) *Service {
	ctx, cancel := context.WithCancel(context.Background())
	svc := &Service{
		version:        opts.Version,
		config:         opts.Config,
		store:          opts.Store,
		sessionStore:   opts.SessionStore,
		auditStore:     opts.AuditStore,
		dataStore:      opts.DataStore,
		tracker:        opts.Tracker,
		client:         opts.Client,
		sseBroadcaster: opts.Broadcaster,
		router:         chi.NewRouter(),
		ctx:            ctx,
		cancel:         cancel,
		startTime:      time.Now(),
	}
	svc.setupRoutes()
	return svc
}

func (s *Service) setupRoutes() {
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.RequestID)

	s.router.Route("/api", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Post("/query", s.handleQuery)

		r.Get("/sessions", s.handleListSessions)
		r.Get("/sessions/{sessionID}/messages", s.handleListMessages)
		r.Get("/sessions/{sessionID}/operations", s.handleSessionOperations)
		r.Delete("/sessions/{sessionID}", s.handleCloseSession)

		r.Get("/runs/{runID}/operations", s.handleRunOperations)

		r.Get("/tables", s.handleListTables)
		r.Get("/tables/{tableID}", s.handleGetTable)

		r.Get("/events", s.sseBroadcaster.ServeHTTP)
	})
}

// Router exposes the configured router, mainly for tests.
func (s *Service) Router() http.Handler {
	return s.router
}

// Start begins serving HTTP on the configured port. Blocks until the
// server stops.
func (s *Service) Start() error {
	addr := fmt.Sprintf("127.0.0.1:%d", s.config.WorkerPort)
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.ready.Store(true)
	log.Info().Str("addr", addr).Str("version", s.version).Msg("Worker service listening")

	err := s.httpServer.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown stops the HTTP server gracefully.
func (s *Service) Shutdown(ctx context.Context) error {
	s.ready.Store(false)
	s.cancel()
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}
