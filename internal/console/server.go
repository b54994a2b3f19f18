// Package console exposes the debugging console over HTTP: connection and
// channel actions, state snapshots, the live event feed, backend endpoint
// invocation, and event-log export.
package console

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/janw/rtscope/internal/archive"
	"github.com/janw/rtscope/internal/log"
	"github.com/janw/rtscope/internal/realtime"
	"github.com/janw/rtscope/internal/store"
)

// Settings keys the console persists.
const (
	SettingAPIBaseURL = "apiBaseUrl"
	SettingAuthToken  = "authToken"
)

// Server is the console's HTTP surface.
type Server struct {
	ctrl    *realtime.Controller
	store   *store.Store
	exports archive.Sink
	router  *chi.Mux

	httpServer *http.Server
}

// New creates a console server around a controller. store holds settings
// and request history; exports receives event-log exports and may be nil
// to disable the export endpoint.
func New(ctrl *realtime.Controller, st *store.Store, exports archive.Sink) *Server {
	s := &Server{
		ctrl:    ctrl,
		store:   st,
		exports: exports,
		router:  chi.NewRouter(),
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	// CORS middleware for browser-based frontends
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	s.router.Use(log.RequestLogger)
	s.router.Use(middleware.Recoverer)

	s.router.Get("/health", s.handleHealth)

	s.router.Route("/api/v1", func(r chi.Router) {
		r.Get("/state", s.handleState)
		r.Post("/connect", s.handleConnect)
		r.Post("/disconnect", s.handleDisconnect)

		r.Get("/subscriptions", s.handleListSubscriptions)
		r.Post("/subscriptions", s.handleSubscribe)
		r.Delete("/subscriptions", s.handleUnsubscribe)

		r.Get("/presence", s.handleListPresence)
		r.Post("/presence/enter", s.handlePresenceEnter)
		r.Post("/presence/leave", s.handlePresenceLeave)

		r.Post("/publish", s.handlePublish)

		r.Get("/events", s.handleListEvents)
		r.Delete("/events", s.handleClearEvents)
		r.Get("/events/feed", s.handleEventsFeed)
		r.Post("/events/export", s.handleExport)

		r.Get("/token", s.handleToken)
		r.Post("/token/inspect", s.handleTokenInspect)

		r.Get("/channels/describe", s.handleDescribeChannel)

		r.Get("/endpoints", s.handleListEndpoints)
		r.Post("/endpoints/{role}/{name}", s.handleCallEndpoint)
		r.Get("/history/{role}", s.handleHistory)
		r.Delete("/history/{role}", s.handleClearHistory)

		r.Get("/settings", s.handleGetSettings)
		r.Put("/settings", s.handlePutSettings)

		r.Get("/logs", s.handleLogs)
	})
}

// Router returns the underlying router, mainly for tests.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// ListenAndServe serves the console on addr until Shutdown is called.
func (s *Server) ListenAndServe(addr string) error {
	s.httpServer = &http.Server{
		Addr:    addr,
		Handler: s.router,
	}
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Debug("console: response write failed", "error", err.Error())
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func decodeBody(r *http.Request, v any) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(v)
}
