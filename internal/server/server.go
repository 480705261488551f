package server

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/ziadkadry99/dynadash/internal/audit"
	"github.com/ziadkadry99/dynadash/internal/db"
	"github.com/ziadkadry99/dynadash/internal/download"
	"github.com/ziadkadry99/dynadash/internal/realtime"
	"github.com/ziadkadry99/dynadash/internal/visual"
)

// Config holds server configuration.
type Config struct {
	Port         int
	AllowAll     bool // allow all CORS origins (dev mode)
	Variable     string
	DownloadName string
	LoadTimeout  time.Duration
	MaxBytes     int
}

// Server serves the dashboard pages, the visualisation API and the
// progress websocket.
type Server struct {
	cfg        Config
	db         *db.DB
	hub        *realtime.Hub
	downloads  *download.Registry
	audit      *audit.Store
	visuals    *visual.Handler
	router     chi.Router
	httpServer *http.Server
}

// New creates a server with all dependencies.
func New(cfg Config, database *db.DB, hub *realtime.Hub, downloads *download.Registry) *Server {
	s := &Server{
		cfg:       cfg,
		db:        database,
		hub:       hub,
		downloads: downloads,
		audit:     audit.NewStore(database),
	}
	s.visuals = visual.NewHandler(visual.NewStore(database), downloads, hub, visual.Options{
		Variable:     cfg.Variable,
		DownloadName: cfg.DownloadName,
		LoadTimeout:  cfg.LoadTimeout,
		MaxBytes:     cfg.MaxBytes,
		Audit:        s.audit,
	})

	s.router = s.buildRouter()
	return s
}

// buildRouter creates and configures the chi router with all routes.
func (s *Server) buildRouter() chi.Router {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// CORS
	corsOpts := cors.Options{
		AllowedOrigins:   []string{"http://localhost:*", "http://127.0.0.1:*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}
	if s.cfg.AllowAll {
		corsOpts.AllowedOrigins = []string{"*"}
	}
	r.Use(cors.Handler(corsOpts))

	// Health check
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	})

	// Websocket connections are long-lived and stay outside the timeout.
	if s.hub != nil {
		r.Get("/ws/progress", s.hub.ServeWS)
	}

	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(60 * time.Second))
		s.visuals.RegisterRoutes(r)
		audit.RegisterRoutes(r, s.audit)
	})

	return r
}

// Router returns the chi router for registering additional routes.
func (s *Server) Router() chi.Router { return s.router }

// Database returns the database connection.
func (s *Server) Database() *db.DB { return s.db }

// Hub returns the progress hub, or nil when progress is disabled.
func (s *Server) Hub() *realtime.Hub { return s.hub }

// Visuals returns the visualisation handler.
func (s *Server) Visuals() *visual.Handler { return s.visuals }

// ServerConfig returns the server configuration.
func (s *Server) ServerConfig() Config { return s.cfg }

// Start begins listening on the configured port.
func (s *Server) Start() error {
	addr := fmt.Sprintf(":%d", s.cfg.Port)
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	log.Printf("dynadash server listening on %s", addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server and disconnects progress
// subscribers.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.hub != nil {
		s.hub.Close()
	}
	if s.httpServer != nil {
		return s.httpServer.Shutdown(ctx)
	}
	return nil
}
