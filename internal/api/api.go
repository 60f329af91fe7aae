/*
Copyright (C) 2026 Litecast Contributors

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package api exposes the HTTP and WebSocket surface: authentication,
// destination and media management, broadcast session control, and the
// live event feed.
package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/litecasthq/litecast/internal/accounts"
	"github.com/litecasthq/litecast/internal/auth"
	"github.com/litecasthq/litecast/internal/config"
	"github.com/litecasthq/litecast/internal/events"
	"github.com/litecasthq/litecast/internal/logbuffer"
	"github.com/litecasthq/litecast/internal/media"
	"github.com/litecasthq/litecast/internal/stream"
)

// StreamEngine is the session-control surface the API needs.
type StreamEngine interface {
	StartSession(ctx context.Context, req stream.StartRequest) (stream.Summary, error)
	StopSession(id string) error
	StopOwner(owner, reason string) int
	ListActive(owner string) []stream.Summary
	ActiveCount(owner string) int
}

// QuotaService meters and resets daily airtime usage.
type QuotaService interface {
	ResetIfNewDay(ctx context.Context, owner string, today string) (bool, error)
	Remaining(ctx context.Context, owner string) (int64, error)
}

// EventBus is the pub/sub surface used by handlers and the event feed.
type EventBus interface {
	Publish(events.EventType, events.Payload)
	Subscribe(events.EventType) events.Subscriber
	Unsubscribe(events.EventType, events.Subscriber)
}

// API wires handlers to the underlying services.
type API struct {
	db        *gorm.DB
	cfg       *config.Config
	jwtSecret []byte
	accounts  *accounts.Store
	media     *media.Service
	engine    StreamEngine
	quota     QuotaService
	bus       EventBus
	logBuffer *logbuffer.Buffer
	logger    zerolog.Logger
}

// New creates the API router wrapper. logBuf may be nil when log capture is
// disabled.
func New(db *gorm.DB, cfg *config.Config, accountStore *accounts.Store, mediaSvc *media.Service, engine StreamEngine, quotaSvc QuotaService, bus EventBus, logBuf *logbuffer.Buffer, logger zerolog.Logger) *API {
	return &API{
		db:        db,
		cfg:       cfg,
		jwtSecret: []byte(cfg.JWTSigningKey),
		accounts:  accountStore,
		media:     mediaSvc,
		engine:    engine,
		quota:     quotaSvc,
		bus:       bus,
		logBuffer: logBuf,
		logger:    logger.With().Str("component", "api").Logger(),
	}
}

// Routes mounts all endpoints on the router.
func (a *API) Routes(r chi.Router) {
	r.Get("/health", a.handleHealth)

	r.Route("/api/v1", func(r chi.Router) {
		// Public endpoints
		r.Post("/auth/register", a.handleRegister)
		r.Post("/auth/login", a.handleLogin)
		r.Get("/plans", a.handleListPlans)

		// Authenticated endpoints
		r.Group(func(pr chi.Router) {
			pr.Use(auth.Middleware(a.jwtSecret))

			pr.Get("/auth/me", a.handleMe)

			pr.Route("/destinations", func(dr chi.Router) {
				dr.Get("/", a.handleListDestinations)
				dr.Post("/", a.handleCreateDestination)
				dr.Put("/{id}", a.handleUpdateDestination)
				dr.Delete("/{id}", a.handleDeleteDestination)
				dr.Post("/{id}/toggle", a.handleToggleDestination)
			})

			pr.Route("/media", func(mr chi.Router) {
				mr.Get("/", a.handleListMedia)
				mr.Post("/upload", a.handleUploadMedia)
				mr.Delete("/{id}", a.handleDeleteMedia)
			})

			pr.Route("/streams", func(sr chi.Router) {
				sr.Get("/", a.handleListStreams)
				sr.Post("/start", a.handleStartStream)
				sr.Post("/stop", a.handleStopAllStreams)
				sr.Post("/{id}/stop", a.handleStopStream)
			})

			pr.Get("/events", a.handleEvents)

			// Admin endpoints
			pr.With(auth.RequireAdmin).Put("/plans/{id}", a.handleUpdatePlan)
			pr.With(auth.RequireAdmin).Get("/admin/logs", a.handleAdminLogs)
			pr.With(auth.RequireAdmin).Get("/admin/logs/stats", a.handleAdminLogStats)
		})
	})
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code string) {
	writeJSON(w, status, map[string]string{"error": code})
}
