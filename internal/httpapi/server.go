package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	"offline-chat/internal/archive"
	"offline-chat/internal/backup"
	"offline-chat/internal/delivery"
	"offline-chat/internal/session"
	"offline-chat/internal/storage"
)

// Server exposes the chat pipeline over HTTP: sending, editing,
// scheduling, queue management, backup/restore, and a live websocket
// timeline feed.
type Server struct {
	controller *session.Controller
	queue      *delivery.Queue
	engine     *backup.Engine
	store      *storage.Store
	media      *storage.MediaCatalog
	archive    *archive.Archive
	metrics    *Metrics
	hub        *wsHub
}

// Options carries the server's collaborators. Archive may be nil.
type Options struct {
	Controller *session.Controller
	Queue      *delivery.Queue
	Engine     *backup.Engine
	Store      *storage.Store
	Media      *storage.MediaCatalog
	Archive    *archive.Archive
}

// New wires a Server and subscribes its websocket hub to timeline
// updates.
func New(opts Options) *Server {
	s := &Server{
		controller: opts.Controller,
		queue:      opts.Queue,
		engine:     opts.Engine,
		store:      opts.Store,
		media:      opts.Media,
		archive:    opts.Archive,
		metrics:    &Metrics{},
		hub:        newWSHub(),
	}
	if s.controller != nil {
		s.controller.Subscribe(s.hub.Broadcast)
	}
	return s
}

// MetricsSnapshot exposes the current counters.
func (s *Server) MetricsSnapshot() MetricsSnapshot { return s.metrics.Snapshot() }

// Close disconnects websocket clients.
func (s *Server) Close() { s.hub.Close() }

// Router wires up chi routes, middleware, and handlers ready for
// http.ListenAndServe.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Authorization"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.Use(s.loggingMiddleware())

	r.Post("/token", s.tokenHandler())
	r.Get("/healthz", s.healthHandler())
	r.Get("/metrics", s.metricsHandler())

	r.Group(func(r chi.Router) {
		r.Use(s.authenticated())
		r.Get("/messages", s.timelineHandler())
		r.Get("/messages/older", s.loadMoreHandler())
		r.Post("/messages", s.sendHandler())
		r.Post("/messages/media", s.sendMediaHandler())
		r.Post("/messages/schedule", s.scheduleHandler())
		r.Post("/messages/{id}/edit", s.editHandler())
		r.Post("/messages/{id}/reactions", s.reactHandler())
		r.Post("/messages/{id}/forward", s.forwardHandler())
		r.Get("/queue", s.queueHandler())
		r.Post("/queue/sync", s.syncHandler())
		r.Post("/queue/redrive", s.redriveHandler())
		r.Post("/backups", s.createBackupHandler())
		r.Post("/backups/restore", s.restoreBackupHandler())
		r.Get("/history", s.historyHandler())
	})

	r.Get("/ws", s.handleWS)
	return r
}
