/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package server

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/friendsincode/encore/internal/audio"
	"github.com/friendsincode/encore/internal/broadcast"
	"github.com/friendsincode/encore/internal/concerts"
	"github.com/friendsincode/encore/internal/config"
	"github.com/friendsincode/encore/internal/db"
	"github.com/friendsincode/encore/internal/eventbus"
	"github.com/friendsincode/encore/internal/events"
	"github.com/friendsincode/encore/internal/playlist"
	"github.com/friendsincode/encore/internal/rtc"
	"github.com/friendsincode/encore/internal/schedule"
	"github.com/friendsincode/encore/internal/telemetry"
)

// ConcertStore is the read side of concert storage the server needs.
type ConcertStore interface {
	broadcast.PlaylistSource
	StartTime(ctx context.Context, id int64) (time.Time, error)
	Upcoming(ctx context.Context, since time.Time) ([]concerts.Concert, error)
	ExportICal(ctx context.Context, from, to time.Time) (*concerts.CalendarExport, error)
}

// Server bundles HTTP and supporting services.
type Server struct {
	cfg        *config.Config
	logger     zerolog.Logger
	router     chi.Router
	httpServer *http.Server
	closers    []func() error

	db        *gorm.DB
	store     ConcertStore
	bus       *events.Bus
	scheduler *schedule.CronScheduler
	registry  *broadcast.Registry
	relay     *eventbus.Relay

	bgCancel context.CancelFunc
	bgWG     sync.WaitGroup
}

// New constructs the server and wires dependencies.
func New(cfg *config.Config, logger zerolog.Logger) (*Server, error) {
	srv := &Server{
		cfg:    cfg,
		logger: logger,
		router: newRouter(),
		bus:    events.NewBus(),
	}

	if err := srv.initDependencies(); err != nil {
		srv.Close()
		return nil, err
	}

	srv.configureRoutes()
	srv.startBackgroundWorkers()

	addr := fmt.Sprintf("%s:%d", cfg.HTTPBind, cfg.HTTPPort)
	srv.httpServer = &http.Server{
		Addr:              addr,
		Handler:           srv.router,
		ReadHeaderTimeout: 15 * time.Second,
		// WriteTimeout stays 0 for signaling websockets; the middleware
		// timeout covers everything else.
		WriteTimeout: 0,
		IdleTimeout:  60 * time.Second,
	}

	return srv, nil
}

func newRouter() chi.Router {
	router := chi.NewRouter()

	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)
	router.Use(securityHeadersMiddleware)
	router.Use(telemetry.TracingMiddleware("encore-api"))
	router.Use(telemetry.MetricsMiddleware)
	// Skip timeout for WebSocket connections
	router.Use(func(next http.Handler) http.Handler {
		timeout := middleware.Timeout(60 * time.Second)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if strings.EqualFold(r.Header.Get("Upgrade"), "websocket") {
				next.ServeHTTP(w, r)
				return
			}
			// Starting a broadcast waits for the playlist compile.
			if r.Method == http.MethodPost && strings.HasSuffix(r.URL.Path, "/start") {
				next.ServeHTTP(w, r)
				return
			}
			timeout(next).ServeHTTP(w, r)
		})
	})
	return router
}

func securityHeadersMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'; base-uri 'none'")

		// Only advertise HSTS for requests served over HTTPS.
		if r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https" {
			w.Header().Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) initDependencies() error {
	ctx := context.Background()

	database, err := db.Connect(s.cfg)
	if err != nil {
		return err
	}
	s.db = database
	s.DeferClose(func() error { return db.Close(database) })
	if s.cfg.DBAutoMigrate {
		if err := db.Migrate(database); err != nil {
			return err
		}
	}
	store := concerts.NewStore(database, s.logger)
	s.store = store

	if err := s.initRelay(ctx); err != nil {
		return err
	}

	compiler, err := NewCompiler(ctx, s.cfg, s.logger)
	if err != nil {
		return err
	}

	engine, err := rtc.NewPionEngine(rtc.Config{
		STUNServer:   s.cfg.WebRTCSTUNURL,
		TURNServer:   s.cfg.WebRTCTURNURL,
		TURNUsername: s.cfg.WebRTCTURNUsername,
		TURNPassword: s.cfg.WebRTCTURNPassword,
	}, s.logger)
	if err != nil {
		return fmt.Errorf("init rtc engine: %w", err)
	}
	s.logger.Info().
		Bool("turn_enabled", s.cfg.WebRTCTURNURL != "").
		Msg("WebRTC engine initialized")

	s.scheduler = schedule.NewCronScheduler(s.cfg.Location(), s.logger)
	s.scheduler.Start()
	s.DeferClose(func() error { s.scheduler.Stop(); return nil })

	opusCfg := audio.OpusConfig{Bitrate: s.cfg.OpusBitrate, FEC: s.cfg.OpusFEC}
	s.initBroadcasts(broadcast.Options{
		Engine:     engine,
		Compiler:   compiler,
		Playlists:  store,
		Scheduler:  s.scheduler,
		QueueDepth: s.cfg.QueueDepth,
		NewEncoder: func() (audio.Encoder, error) {
			return audio.NewOpusEncoder(opusCfg)
		},
	})

	return nil
}

// initBroadcasts creates the coordinator registry. It is registered last so
// broadcasts stop before the scheduler and database close.
func (s *Server) initBroadcasts(opts broadcast.Options) {
	opts.Bus = s.bus
	s.registry = broadcast.NewRegistry(broadcast.NewOptionsFactory(opts, s.logger), s.logger)
	s.DeferClose(func() error {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return s.registry.CloseAll(ctx)
	})
}

// NewCompiler builds the ffmpeg playlist compiler with local and, when
// configured, S3 media resolution.
func NewCompiler(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*playlist.FFmpegCompiler, error) {
	resolver := playlist.SchemeResolver{Local: playlist.LocalResolver{Root: cfg.MediaRoot}}
	if cfg.S3Endpoint != "" || cfg.S3AccessKeyID != "" {
		s3r, err := playlist.NewS3Resolver(ctx, playlist.S3Config{
			AccessKeyID:     cfg.S3AccessKeyID,
			SecretAccessKey: cfg.S3SecretAccessKey,
			Region:          cfg.S3Region,
			Endpoint:        cfg.S3Endpoint,
			UsePathStyle:    cfg.S3UsePathStyle,
			PresignTTL:      cfg.S3PresignTTL,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("init s3 resolver: %w", err)
		}
		resolver.S3 = s3r
	}
	return playlist.NewFFmpegCompiler(playlist.FFmpegConfig{
		Bin:     cfg.FFmpegBin,
		TempDir: cfg.CompileDir,
	}, resolver, logger), nil
}

// initRelay connects the optional outbound event relay. NATS wins when both
// brokers are configured.
func (s *Server) initRelay(ctx context.Context) error {
	var (
		pub eventbus.Publisher
		err error
	)
	switch {
	case s.cfg.NATSURL != "":
		natsCfg := eventbus.DefaultNATSConfig()
		natsCfg.URL = s.cfg.NATSURL
		natsCfg.Token = s.cfg.NATSToken
		pub, err = eventbus.NewNATSPublisher(natsCfg, s.logger)
	case s.cfg.RedisAddr != "":
		redisCfg := eventbus.DefaultRedisConfig()
		redisCfg.Addr = s.cfg.RedisAddr
		redisCfg.Password = s.cfg.RedisPassword
		redisCfg.DB = s.cfg.RedisDB
		pub, err = eventbus.NewRedisPublisher(ctx, redisCfg, s.logger)
	default:
		return nil
	}
	if err != nil {
		return fmt.Errorf("init event relay: %w", err)
	}

	s.relay = eventbus.NewRelay(s.bus, pub, s.cfg.EventsPrefix, s.logger)
	s.relay.Start(context.Background())
	s.DeferClose(s.relay.Close)
	return nil
}

// HTTPServer exposes the underlying net/http server.
func (s *Server) HTTPServer() *http.Server {
	return s.httpServer
}

// Close stops every broadcast and releases owned resources in reverse order.
func (s *Server) Close() error {
	s.stopBackgroundWorkers()
	var firstErr error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	s.closers = nil
	return firstErr
}

// DeferClose registers a cleanup hook.
func (s *Server) DeferClose(fn func() error) {
	s.closers = append(s.closers, fn)
}

func (s *Server) startBackgroundWorkers() {
	ctx, cancel := context.WithCancel(context.Background())
	s.bgCancel = cancel

	// Start database metrics updater
	if s.db != nil {
		s.bgWG.Add(1)
		go func() {
			defer s.bgWG.Done()
			ticker := time.NewTicker(30 * time.Second)
			defer ticker.Stop()

			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					db.UpdateConnectionMetrics(s.db)
				}
			}
		}()
	}

	for _, et := range events.BroadcastEvents {
		s.bgWG.Add(1)
		go func(et events.EventType) {
			defer s.bgWG.Done()
			s.logEvents(ctx, et)
		}(et)
	}
}

// logEvents writes broadcast lifecycle events to the process log.
func (s *Server) logEvents(ctx context.Context, et events.EventType) {
	sub := s.bus.Subscribe(et)
	defer s.bus.Unsubscribe(et, sub)

	for {
		select {
		case <-ctx.Done():
			return
		case payload, ok := <-sub:
			if !ok {
				return
			}
			evt := s.logger.Debug()
			if et != events.EventReaction {
				evt = s.logger.Info()
			}
			evt.Str("event", string(et)).Fields(map[string]any(payload)).Msg("broadcast event")
		}
	}
}

func (s *Server) stopBackgroundWorkers() {
	if s.bgCancel == nil {
		return
	}
	s.bgCancel()
	s.bgWG.Wait()
	s.bgCancel = nil
}

func (s *Server) configureRoutes() {
	s.router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"status":     "ok",
			"broadcasts": len(s.registry.IDs()),
		})
	})

	if s.cfg.MetricsEnabled {
		s.router.Handle("/metrics", telemetry.Handler())
	}

	s.router.Get("/concerts/calendar.ics", s.handleCalendar)
	s.router.Route("/concerts/{concertID}", func(r chi.Router) {
		r.Get("/live", s.handleLive)
		r.Get("/status", s.handleStatus)
		r.Post("/start", s.handleStart)
		r.Post("/stop", s.handleStop)
		r.Post("/schedule", s.handleSchedule)
		r.Delete("/broadcast", s.handleDeleteBroadcast)
	})
}
