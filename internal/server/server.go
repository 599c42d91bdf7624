package server

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"sync"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"

	"gridd.sh/internal/annotations"
	"gridd.sh/internal/chat"
	"gridd.sh/internal/config"
	"gridd.sh/internal/inference"
	"gridd.sh/internal/metrics"
	"gridd.sh/internal/middleware"
	"gridd.sh/internal/observability"
	"gridd.sh/internal/simulation"
	"gridd.sh/internal/store"
	"gridd.sh/internal/ticker"
	"gridd.sh/internal/version"
)

// Server is the grid monitoring daemon: live metric streams, scenario
// simulation, Monte Carlo risk runs, chat, and annotations behind one
// HTTP surface.
type Server struct {
	cfg        *config.Config
	db         *sql.DB
	httpServer *http.Server
	router     *mux.Router

	ticker      *ticker.Ticker
	engine      *simulation.Engine
	sampler     *simulation.Sampler
	inferClient *inference.Client
	annotations *annotations.Service
	annotHub    *annotations.Hub
	chatRepo    *store.ChatRepository

	sessionsMu sync.Mutex
	sessions   map[string]*chat.Session

	valkeyLimiter   *middleware.ValkeyRateLimiter
	inMemoryLimiter *middleware.RateLimiter
	tracer          *observability.Tracer

	logger *slog.Logger
}

// New wires the daemon together from configuration.
func New(ctx context.Context, cfg *config.Config) (*Server, error) {
	db, err := store.Open(ctx, cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	hub := annotations.NewHub()
	annotRepo := store.NewAnnotationRepository(db)

	s := &Server{
		cfg:         cfg,
		db:          db,
		router:      mux.NewRouter(),
		ticker:      ticker.New(cfg.Ticker.Period, nil),
		engine:      simulation.NewEngine(nil),
		sampler:     simulation.NewSampler(nil),
		inferClient: inference.NewClient(&inference.Config{
			BaseURL: cfg.Inference.URL,
			APIKey:  cfg.Inference.APIKey,
			Timeout: cfg.Inference.Timeout,
		}),
		annotations: annotations.NewService(annotRepo, hub),
		annotHub:    hub,
		chatRepo:    store.NewChatRepository(db),
		sessions:    make(map[string]*chat.Session),
		logger:      slog.Default().With("component", "server"),
	}

	s.registerDefaultSeries()
	s.setupRateLimiting()
	s.setupRoutes()

	return s, nil
}

// registerDefaultSeries seeds the live metric series every dashboard
// panel subscribes to.
func (s *Server) registerDefaultSeries() {
	seed := []struct {
		name                             string
		initial, lower, upper, maxDelta float64
	}{
		{"grid_frequency_hz", 50.0, 49.8, 50.2, 0.05},
		{"total_demand_gw", 185, 120, 250, 8},
		{"renewable_output_gw", 62, 0, 150, 6},
		{"storage_charge_percent", 70, 0, 100, 4},
		{"spot_price_usd_mwh", 42, 15, 180, 6},
		{"carbon_intensity_g_kwh", 310, 80, 500, 12},
	}

	for _, def := range seed {
		if err := s.ticker.Register(def.name, def.initial, def.lower, def.upper, def.maxDelta); err != nil {
			s.logger.Error("failed to register series", "series", def.name, "error", err)
		}
	}
}

func (s *Server) setupRateLimiting() {
	cfg := s.cfg.RateLimit

	if cfg.ValkeyAddr != "" {
		limiter, err := middleware.NewValkeyRateLimiter(cfg.ValkeyAddr, cfg.Requests, cfg.WindowSeconds)
		if err == nil {
			s.valkeyLimiter = limiter
			s.logger.Info("Valkey rate limiter initialized", "addr", cfg.ValkeyAddr)
			return
		}
		s.logger.Warn("Failed to initialize Valkey rate limiter, falling back to in-memory", "error", err)
	}

	rate := float64(cfg.Requests) / float64(cfg.WindowSeconds)
	s.inMemoryLimiter = middleware.NewRateLimiter(middleware.RateLimiterConfig{
		Rate:       rate,
		Burst:      cfg.Requests,
		Expiration: time.Hour,
	})
	s.logger.Info("Using in-memory rate limiting", "rate_per_second", rate, "burst", cfg.Requests)
}

func (s *Server) setupRoutes() {
	r := s.router

	// Health and operational endpoints
	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/health/live", s.handleHealthLive).Methods(http.MethodGet)
	r.HandleFunc("/health/ready", s.handleHealthReady).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	api := r.PathPrefix("/api/v1").Subrouter()

	// Live metrics
	api.HandleFunc("/metrics/snapshot", s.handleMetricsSnapshot).Methods(http.MethodGet)
	api.HandleFunc("/metrics/live", s.handleMetricsLive).Methods(http.MethodGet)

	// Simulation
	api.HandleFunc("/simulate", s.handleSimulate).Methods(http.MethodPost)
	api.HandleFunc("/simulate/montecarlo", s.handleMonteCarlo).Methods(http.MethodPost)
	api.HandleFunc("/presets", s.handlePresets).Methods(http.MethodGet)

	// Authenticated surface
	auth := middleware.Auth(s.cfg.Auth.SecretKey, s.cfg.Auth.DevMode)
	api.Handle("/chat", auth(http.HandlerFunc(s.handleChatSend))).Methods(http.MethodPost)
	api.Handle("/chat/history", auth(http.HandlerFunc(s.handleChatHistory))).Methods(http.MethodGet)
	api.Handle("/analyze", auth(http.HandlerFunc(s.handleAnalyze))).Methods(http.MethodPost)

	api.HandleFunc("/annotations", s.handleAnnotationsList).Methods(http.MethodGet)
	api.Handle("/annotations", auth(http.HandlerFunc(s.handleAnnotationCreate))).Methods(http.MethodPost)
	api.Handle("/annotations/{id}", auth(http.HandlerFunc(s.handleAnnotationDelete))).Methods(http.MethodDelete)
	api.HandleFunc("/annotations/feed", s.handleAnnotationFeed).Methods(http.MethodGet)
}

// handler assembles the full middleware chain around the router. Tests
// exercise this same chain so the production serving path is covered.
func (s *Server) handler() http.Handler {
	var handler http.Handler = s.router
	handler = middleware.Metrics("gridd")(handler)
	handler = middleware.RequestID(handler)
	if s.valkeyLimiter != nil {
		handler = s.valkeyLimiter.HTTPMiddleware(handler)
	} else if s.inMemoryLimiter != nil {
		handler = middleware.RateLimit(s.inMemoryLimiter)(handler)
	}
	if s.tracer != nil {
		handler = observability.HTTPHandler(handler, "gridd-api")
	}

	return cors.New(cors.Options{
		AllowedOrigins:   s.cfg.Server.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
	}).Handler(handler)
}

// Start runs the daemon until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	if s.cfg.Tracing.Enabled {
		tracer, err := observability.InitTracing(ctx, observability.TracingConfig{
			ServiceName:    "gridd",
			ServiceVersion: version.Version,
			Endpoint:       s.cfg.Tracing.Endpoint,
			SampleRate:     s.cfg.Tracing.SampleRate,
			Insecure:       true,
			Enabled:        true,
		})
		if err != nil {
			s.logger.Warn("Failed to initialize tracing", "error", err)
		} else {
			s.tracer = tracer
		}
	}

	s.httpServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.cfg.Server.Port),
		Handler:           s.handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go s.ticker.Run(ctx)
	go s.collectSystemMetrics(ctx)

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Starting HTTP server", "port", s.cfg.Server.Port)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		return s.Shutdown(context.Background())
	case err := <-errCh:
		return err
	}
}

// Shutdown gracefully stops the daemon.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down gridd server")

	ctx, cancel := context.WithTimeout(ctx, s.cfg.Server.ShutdownTimeout)
	defer cancel()

	var httpErr error
	if s.httpServer != nil {
		httpErr = s.httpServer.Shutdown(ctx)
		if httpErr != nil {
			s.logger.Error("Failed to shutdown HTTP server", "error", httpErr)
		}
	}

	s.ticker.Close()
	s.annotHub.Close()

	if s.inMemoryLimiter != nil {
		s.inMemoryLimiter.Stop()
	}
	if s.valkeyLimiter != nil {
		s.valkeyLimiter.Close()
	}
	if s.tracer != nil {
		if err := s.tracer.Shutdown(ctx); err != nil {
			s.logger.Error("Failed to shutdown tracer", "error", err)
		}
	}

	if s.db != nil {
		if err := s.db.Close(); err != nil {
			s.logger.Error("Failed to close database", "error", err)
		}
	}

	return httpErr
}

// Run starts the server and blocks until a shutdown signal arrives.
func (s *Server) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigCh
		s.logger.Info("Received shutdown signal")
		cancel()
	}()

	return s.Start(ctx)
}

// session returns the chat session for a user, creating and replaying
// it on first use.
func (s *Server) session(ctx context.Context, userID string) *chat.Session {
	s.sessionsMu.Lock()
	defer s.sessionsMu.Unlock()

	if sess, ok := s.sessions[userID]; ok {
		return sess
	}

	sess := chat.NewSession(userID, s.inferClient, s.chatRepo)
	if err := sess.LoadHistory(ctx); err != nil {
		s.logger.Warn("failed to replay transcript", "user_id", userID, "error", err)
	}
	s.sessions[userID] = sess
	return sess
}

// collectSystemMetrics periodically refreshes process-level gauges.
func (s *Server) collectSystemMetrics(ctx context.Context) {
	tick := time.NewTicker(10 * time.Second)
	defer tick.Stop()

	startTime := time.Now()

	for {
		select {
		case <-ctx.Done():
			return
		case <-tick.C:
			metrics.SystemUptime.Set(time.Since(startTime).Seconds())
			metrics.SystemGoroutines.Set(float64(runtime.NumGoroutine()))
		}
	}
}
