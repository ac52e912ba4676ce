// Package main provides the entry point for the stream resolver server.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"

	"github.com/jmylchreest/streamresolver/internal/api/handlers"
	"github.com/jmylchreest/streamresolver/internal/cache"
	"github.com/jmylchreest/streamresolver/internal/config"
	"github.com/jmylchreest/streamresolver/internal/http/mw"
	"github.com/jmylchreest/streamresolver/internal/logging"
	"github.com/jmylchreest/streamresolver/internal/models"
	"github.com/jmylchreest/streamresolver/internal/pagefetch"
	"github.com/jmylchreest/streamresolver/internal/session"
	"github.com/jmylchreest/streamresolver/internal/shutdown"
	"github.com/jmylchreest/streamresolver/internal/solver"
	"github.com/jmylchreest/streamresolver/internal/stream"
	"github.com/jmylchreest/streamresolver/internal/transport"
	"github.com/jmylchreest/streamresolver/internal/unlock"
	"github.com/jmylchreest/streamresolver/internal/version"
)

func main() {
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()
	if *showVersion {
		fmt.Println(version.Get().String())
		return
	}

	if err := godotenv.Load(); err != nil {
		fmt.Println("No .env file found, using environment variables")
	}

	cfg := config.Load()
	logger := logging.SetDefault()

	if cfg.LogFiltersFile != "" {
		total, active, err := logging.LoadFilters(cfg.LogFiltersFile)
		if err != nil {
			logger.Warn("log filters not loaded", "error", err)
		} else {
			logger.Info("log filters loaded", "path", cfg.LogFiltersFile, "total_filters", total, "active_filters", active)
		}
	}

	logger.Info("starting stream resolver",
		"version", version.Get().Version,
		"port", cfg.Port,
		"origin", cfg.OriginBaseURL,
		"use_browser", cfg.UseBrowser,
		"anonymous", !cfg.HasCredentials(),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var proxy *session.Proxy
	if cfg.ProxyURL != "" {
		p, err := session.ParseProxy(cfg.ProxyURL)
		if err != nil {
			logger.Error("invalid PROXY_URL", "error", err)
			os.Exit(1)
		}
		proxy = p
		logger.Info("proxy configured", "proxy", proxy, "enabled", cfg.ProxyEnabled)
	}

	// Browser session (launched on first use)
	sessions := session.NewManager(session.NewRodDriver(logger), session.Options{
		ChromePath:        cfg.ChromePath,
		Headless:          cfg.Headless,
		DisableStealth:    cfg.DisableStealth,
		UserAgent:         cfg.OriginUserAgent,
		Proxy:             proxy,
		ProxyEnabled:      cfg.ProxyEnabled,
		NavigationTimeout: cfg.NavigationTimeout,
		MaxIdle:           cfg.SessionMaxIdle,
	}, logger)
	defer sessions.Close()
	go sessions.StartCleanup(ctx)

	if cfg.UseBrowser {
		go func() {
			if err := sessions.Ensure(ctx); err != nil {
				logger.Warn("browser warmup failed, will retry on first request", "error", err)
			}
		}()
	}

	// Origin HTTP calls share the session's egress
	client := transport.New(transport.Options{
		Timeout: cfg.HTTPTimeout,
		Proxy:   sessions.ProxyURL,
		Logger:  logger,
	})

	solverChain := buildSolverChain(cfg, logger)

	browserPages := pagefetch.NewBrowser(sessions, solverChain, pagefetch.BrowserConfig{
		ChallengeWait:  cfg.ChallengeWaitTime,
		DismissConsent: cfg.DismissConsent,
		Logger:         logger,
	})
	var pages pagefetch.Fetcher = browserPages
	if !cfg.UseBrowser {
		pages = &pagefetch.Fallback{
			Primary: pagefetch.NewHTTP(pagefetch.HTTPConfig{
				UserAgent: cfg.OriginUserAgent,
				Timeout:   cfg.HTTPTimeout,
				Proxy:     sessions.ProxyURL,
				Logger:    logger,
			}),
			Secondary: browserPages,
			Logger:    logger,
		}
	}

	endpoints, err := unlock.DefaultEndpoints(cfg.OriginBaseURL, cfg.OriginLoginURL)
	if err != nil {
		logger.Error("invalid origin endpoints", "error", err)
		os.Exit(1)
	}

	engine := unlock.NewEngine(client, pages, unlock.Options{
		Endpoints:       endpoints,
		Credentials:     unlock.Credentials{User: cfg.GamerUser, Password: cfg.GamerPassword},
		UserAgent:       cfg.OriginUserAgent,
		AdDwell:         cfg.AdDwell,
		PollInterval:    cfg.PollInterval,
		PollAttempts:    cfg.PollAttempts,
		MaxRotations:    cfg.MaxRotations,
		FinalizeTimeout: cfg.FinalizeTimeout,
		Timeout:         cfg.NegotiationTimeout,
	}, logger)

	streamCache := cache.New(cache.Config{
		TTL:            cfg.CacheTTL,
		RefreshHorizon: cfg.CacheRefreshHorizon,
		Logger:         logger,
	})

	sched := cron.New()
	if _, err := streamCache.ScheduleSweep(sched, cfg.CacheSweepInterval); err != nil {
		logger.Error("failed to schedule cache sweep", "error", err)
		os.Exit(1)
	}
	sched.Start()
	defer sched.Stop()

	idle := shutdown.NewWatcher(shutdown.WatcherConfig{
		Timeout: cfg.IdleTimeout,
		Logger:  logger,
	})
	go idle.Run(ctx)

	resolver := stream.New(engine, streamCache, client, stream.Config{
		UserAgent: cfg.OriginUserAgent,
		Activity:  idle.Begin,
		Logger:    logger,
	})

	// Initialize handlers
	healthHandler := handlers.NewHealthHandler(sessions, resolver)
	streamHandler := handlers.NewStreamHandler(resolver, logger)
	cacheHandler := handlers.NewCacheHandler(resolver, logger)
	sessionHandler := handlers.NewSessionHandler(sessions, logger)

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(cfg.NegotiationTimeout + 30*time.Second))
	r.Use(mw.Identity)
	if idle.Enabled() {
		r.Use(idle.Middleware)
	}

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	humaConfig := huma.DefaultConfig("Stream Resolver", version.Get().Version)
	humaConfig.Info.Description = "Resolves gated video pages into playable HLS manifest URLs"
	api := humachi.New(r, humaConfig)

	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
		Description: "Returns health status, browser session and cache statistics",
		Tags:        []string{"Health"},
	}, func(ctx context.Context, input *struct{}) (*models.HumaHealthResponse, error) {
		return &models.HumaHealthResponse{Body: *healthHandler.Handle(ctx)}, nil
	})

	// Rate-limited API routes
	v1Router := chi.NewRouter()
	if cfg.RateLimitPerMinute > 0 {
		v1Router.Use(httprate.LimitByIP(cfg.RateLimitPerMinute, time.Minute))
	}
	v1API := humachi.New(v1Router, humaConfig)
	registerV1(v1API, streamHandler, cacheHandler, sessionHandler)
	r.Mount("/", v1Router)

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: cfg.NegotiationTimeout + 60*time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-quit:
		logger.Info("received signal", "signal", sig.String())
	case <-idle.Done():
		logger.Info("idle timeout reached, exiting")
	}

	logger.Info("shutting down server...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
	}

	logger.Info("server stopped")
}

func buildSolverChain(cfg *config.Config, logger *slog.Logger) solver.Solver {
	var solvers []solver.Solver

	if cfg.CapSolverAPIKey != "" {
		logger.Info("CapSolver enabled")
		solvers = append(solvers, solver.NewPoller(solver.NewCapSolver(cfg.CapSolverAPIKey), solver.PollerConfig{
			Interval:    time.Second,
			MaxAttempts: 10,
			Logger:      logger,
		}))
	}
	if cfg.TwoCaptchaAPIKey != "" {
		logger.Info("2Captcha solver enabled")
		solvers = append(solvers, solver.NewPoller(solver.NewTwoCaptcha(cfg.TwoCaptchaAPIKey), solver.PollerConfig{
			Interval:    5 * time.Second,
			MaxAttempts: 24,
			Logger:      logger,
		}))
	}

	if len(solvers) == 0 {
		logger.Info("no CAPTCHA solver configured, only auto-resolving challenges can be passed")
		return nil
	}
	return solver.NewChain(solvers...)
}
