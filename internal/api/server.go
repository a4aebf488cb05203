package api

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/anshika-patel383/AI-Powered-Multi-Camera-Face-Tracker/internal/auth"
	"github.com/anshika-patel383/AI-Powered-Multi-Camera-Face-Tracker/internal/inference"
	"github.com/anshika-patel383/AI-Powered-Multi-Camera-Face-Tracker/internal/pipeline"
	"github.com/anshika-patel383/AI-Powered-Multi-Camera-Face-Tracker/internal/store"
	"github.com/anshika-patel383/AI-Powered-Multi-Camera-Face-Tracker/internal/telegram"
	"github.com/anshika-patel383/AI-Powered-Multi-Camera-Face-Tracker/internal/ws"
)

// Server exposes the REST and websocket API of the tracker
type Server struct {
	router     *chi.Mux
	httpServer *http.Server

	manager       *pipeline.Manager
	matcher       pipeline.Matcher
	store         *store.Store
	client        inference.Client
	authenticator *auth.Authenticator
	hub           *ws.Hub
	bot           *telegram.Bot

	// runCtx parents camera enable operations so a re-enabled camera
	// stops with the rest of the pipeline
	runCtx context.Context
}

// Deps carries the server's collaborators
type Deps struct {
	Manager       *pipeline.Manager
	Matcher       pipeline.Matcher
	Store         *store.Store
	Inference     inference.Client
	Authenticator *auth.Authenticator
	Hub           *ws.Hub
	Bot           *telegram.Bot
}

// NewServer builds the router and HTTP server
func NewServer(addr string, runCtx context.Context, deps Deps) *Server {
	r := chi.NewRouter()

	s := &Server{
		router:        r,
		manager:       deps.Manager,
		matcher:       deps.Matcher,
		store:         deps.Store,
		client:        deps.Inference,
		authenticator: deps.Authenticator,
		hub:           deps.Hub,
		bot:           deps.Bot,
		runCtx:        runCtx,
	}

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)

	s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

func (s *Server) setupRoutes() {
	s.router.Post("/api/login", s.handleLogin)
	s.router.Get("/healthz", s.handleHealthz)

	s.router.Group(func(r chi.Router) {
		r.Use(auth.Middleware(s.authenticator))

		r.Get("/api/status", s.handleStatus)
		r.Get("/api/cameras", s.handleCameras)
		r.Post("/api/cameras/{id}/enable", s.handleEnableCamera)
		r.Post("/api/cameras/{id}/disable", s.handleDisableCamera)
		r.Get("/api/alerts", s.handleListAlerts)
		r.Get("/api/identities", s.handleListIdentities)
		r.Post("/api/identities", s.handleAddIdentity)
		r.Delete("/api/identities/{id}", s.handleRemoveIdentity)
		r.Post("/api/telegram/test", s.handleTelegramTest)
		r.Handle("/ws", ws.NewHandler(s.hub))
	})
}

// Start runs the HTTP server until Shutdown
func (s *Server) Start() error {
	log.Printf("[API] listening on %s", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server failed: %w", err)
	}
	return nil
}

// Shutdown stops the HTTP server gracefully
func (s *Server) Shutdown(ctx context.Context) error {
	s.hub.CloseAll()
	return s.httpServer.Shutdown(ctx)
}
