/*
Copyright (C) 2026 Litecast Contributors

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package server wires configuration, storage, the stream engine, and the
// HTTP surface into one runnable process.
package server

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/litecasthq/litecast/internal/accounts"
	"github.com/litecasthq/litecast/internal/api"
	"github.com/litecasthq/litecast/internal/config"
	"github.com/litecasthq/litecast/internal/db"
	"github.com/litecasthq/litecast/internal/eventbus"
	"github.com/litecasthq/litecast/internal/events"
	"github.com/litecasthq/litecast/internal/logbuffer"
	"github.com/litecasthq/litecast/internal/media"
	"github.com/litecasthq/litecast/internal/quota"
	"github.com/litecasthq/litecast/internal/stream"
	"github.com/litecasthq/litecast/internal/telemetry"
)

// Server bundles the HTTP server and the services behind it.
type Server struct {
	cfg        *config.Config
	logger     zerolog.Logger
	logBuffer  *logbuffer.Buffer
	router     chi.Router
	httpServer *http.Server
	closers    []func() error

	db       *gorm.DB
	bus      api.EventBus
	engine   *stream.Engine
	tracker  *quota.Tracker
	accounts *accounts.Store
	media    *media.Service
	api      *api.API
	tracer   *telemetry.TracerProvider
}

// New constructs the server and wires dependencies. logBuf may be nil when
// log capture is disabled.
func New(cfg *config.Config, logBuf *logbuffer.Buffer, logger zerolog.Logger) (*Server, error) {
	router := chi.NewRouter()

	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)
	router.Use(securityHeadersMiddleware)
	router.Use(telemetry.TracingMiddleware("litecast-api"))
	router.Use(telemetry.MetricsMiddleware)
	// Timeout everything except WebSocket upgrades and uploads, which are
	// legitimately long-running.
	router.Use(func(next http.Handler) http.Handler {
		timeout := middleware.Timeout(60 * time.Second)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("Upgrade") == "websocket" {
				next.ServeHTTP(w, r)
				return
			}
			if r.URL.Path == "/api/v1/media/upload" {
				next.ServeHTTP(w, r)
				return
			}
			timeout(next).ServeHTTP(w, r)
		})
	})

	srv := &Server{
		cfg:       cfg,
		logger:    logger,
		logBuffer: logBuf,
		router:    router,
	}

	if err := srv.initDependencies(); err != nil {
		srv.Close()
		return nil, err
	}

	srv.configureRoutes()

	addr := fmt.Sprintf("%s:%d", cfg.HTTPBind, cfg.HTTPPort)
	srv.httpServer = &http.Server{
		Addr:    addr,
		Handler: srv.router,
		// Header deadline protects against slowloris; no full-body read
		// deadline so large uploads survive.
		ReadHeaderTimeout: 15 * time.Second,
		ReadTimeout:       0,
		WriteTimeout:      0,
		IdleTimeout:       60 * time.Second,
	}

	return srv, nil
}

func securityHeadersMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		w.Header().Set("X-Frame-Options", "DENY")

		if r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https" {
			w.Header().Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) initDependencies() error {
	database, err := db.Connect(s.cfg)
	if err != nil {
		return err
	}
	if err := db.Migrate(database); err != nil {
		return err
	}
	if err := db.Seed(database, s.cfg.AdminPassword); err != nil {
		return err
	}
	s.db = database
	s.DeferClose(func() error { return db.Close(database) })

	if s.cfg.S3Bucket == "" {
		if err := os.MkdirAll(s.cfg.MediaRoot, 0755); err != nil {
			return fmt.Errorf("create media directory %s: %w", s.cfg.MediaRoot, err)
		}
		s.logger.Info().Str("path", s.cfg.MediaRoot).Msg("media directory ready")
	}

	localBus := events.NewBus()
	if s.cfg.EventBridgeEnabled {
		bridgeCfg := eventbus.DefaultConfig()
		bridgeCfg.Addr = s.cfg.RedisAddr
		bridgeCfg.Password = s.cfg.RedisPassword
		bridgeCfg.DB = s.cfg.RedisDB
		bridge, err := eventbus.New(bridgeCfg, s.cfg.InstanceID, localBus, s.logger)
		if err != nil {
			return fmt.Errorf("initialize event bridge: %w", err)
		}
		s.bus = bridge
		s.DeferClose(bridge.Close)
	} else {
		s.bus = localBus
	}

	tracer, err := telemetry.InitTracer(context.Background(), telemetry.TracerConfig{
		ServiceName:    "litecast",
		ServiceVersion: "dev",
		OTLPEndpoint:   s.cfg.OTLPEndpoint,
		Enabled:        s.cfg.TracingEnabled,
		SampleRate:     s.cfg.TracingSampleRate,
	}, s.logger)
	if err != nil {
		return fmt.Errorf("initialize tracing: %w", err)
	}
	s.tracer = tracer
	s.DeferClose(func() error {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return tracer.Shutdown(ctx)
	})

	s.accounts = accounts.NewStore(database)

	mediaSvc, err := media.NewService(s.cfg, database, s.accounts, s.bus, s.logger)
	if err != nil {
		return err
	}
	s.media = mediaSvc
	if s.cfg.S3Bucket != "" {
		if err := mediaSvc.CheckStorageAccess(); err != nil {
			s.logger.Warn().Err(err).Msg("object storage unreachable at startup")
		}
	}

	s.engine = stream.NewEngine(stream.Options{
		Factory: &stream.FFmpegFactory{Binary: s.cfg.FFmpegBin},
		Bus:     s.bus,
		Logger:  s.logger,
		Encode: stream.EncodeParams{
			Width:            s.cfg.StreamWidth,
			Height:           s.cfg.StreamHeight,
			FrameRate:        s.cfg.StreamFrameRate,
			VideoBitrateKbps: s.cfg.VideoBitrateKbps,
			AudioBitrateKbps: s.cfg.AudioBitrateKbps,
		},
		StartTimeout:  s.cfg.SessionStartTimeout,
		SampleSeconds: int64(s.cfg.QuotaSampleSeconds),
	})

	s.tracker = quota.NewTracker(s.accounts, s.engine, s.bus, s.logger)
	s.engine.SetUsageSink(s.tracker)

	telemetry.CollectEngineMetrics(s.bus)

	s.api = api.New(database, s.cfg, s.accounts, s.media, s.engine, s.tracker, s.bus, s.logBuffer, s.logger)
	return nil
}

func (s *Server) configureRoutes() {
	s.router.Handle("/metrics", telemetry.Handler())
	s.api.Routes(s.router)
}

// HTTPServer exposes the underlying net/http server.
func (s *Server) HTTPServer() *http.Server {
	return s.httpServer
}

// Run serves HTTP until the listener closes.
func (s *Server) Run() error {
	s.logger.Info().Str("addr", s.httpServer.Addr).Msg("http server listening")
	return s.httpServer.ListenAndServe()
}

// Shutdown drains HTTP and stops every live broadcast session.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.httpServer.Shutdown(ctx)
	if engineErr := s.engine.Shutdown(ctx); engineErr != nil && err == nil {
		err = engineErr
	}
	return err
}

// Close releases owned resources in reverse order.
func (s *Server) Close() error {
	var firstErr error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// DeferClose registers a cleanup hook.
func (s *Server) DeferClose(fn func() error) {
	s.closers = append(s.closers, fn)
}
