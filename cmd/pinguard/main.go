package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/BradenHooton/pinguard/internal/auth"
	"github.com/BradenHooton/pinguard/internal/background"
	"github.com/BradenHooton/pinguard/internal/biometric"
	"github.com/BradenHooton/pinguard/internal/clock"
	"github.com/BradenHooton/pinguard/internal/config"
	"github.com/BradenHooton/pinguard/internal/database"
	"github.com/BradenHooton/pinguard/internal/handlers"
	"github.com/BradenHooton/pinguard/internal/machine"
	middlewareCustom "github.com/BradenHooton/pinguard/internal/middleware"
	"github.com/BradenHooton/pinguard/internal/models"
	"github.com/BradenHooton/pinguard/internal/repositories"
	"github.com/BradenHooton/pinguard/internal/routes"
	"github.com/BradenHooton/pinguard/internal/services"
	pkglogger "github.com/BradenHooton/pinguard/pkg/logger"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Server.LogLevel)); err == nil {
		logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
		slog.SetDefault(logger)
	}

	logger.Info("configuration loaded",
		slog.String("env", cfg.Server.Env),
		slog.String("store", cfg.Store.Driver),
	)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	store, healthCheck, closeStore, err := openStore(ctx, cfg, logger)
	cancel()
	if err != nil {
		logger.Error("failed to open credential store", slog.Any("error", err))
		os.Exit(1)
	}
	defer closeStore()

	clk := clock.Real{}
	ns := cfg.Server.Namespace

	// Initialize repositories
	lockRepo := repositories.NewLockStateRepository(store, ns)
	sessionRepo := repositories.NewSessionStateRepository(store, ns)
	tokenRepo := repositories.NewTokenRepository(store, ns, auth.NewTokenInspector(cfg.Session.TokenSecret, clk.Now))

	// The relay needs the bridge to reach the shell's platform prompt.
	var sensor services.BiometricSensor = biometric.Unavailable{}
	var relay *biometric.Relay
	if cfg.Bridge.Enabled {
		relay = biometric.NewRelay(clk.Now)
		sensor = relay
	}

	bus := services.NewEventBus(logger)
	defer bus.Close()
	auditLogger := pkglogger.NewAuditLogger(logger, cfg.Server.Env)

	engine := services.NewLockEngine(lockRepo, sensor, bus, auditLogger, clk, services.LockEngineConfig{
		MaxAttempts: cfg.Lock.MaxAttempts,
		Lockout: machine.LockoutPolicy{
			Window:     cfg.Lock.LockoutWindow,
			Multiplier: cfg.Lock.LockoutMultiplier,
			MaxWindow:  cfg.Lock.LockoutMaxWindow,
		},
		InactivityTimeout: cfg.Lock.InactivityTimeout,
		HashCost:          cfg.Lock.PinHashCost,
		Timing: auth.TimingConfig{
			BaseDelay:   time.Duration(cfg.Lock.FailureDelayMs) * time.Millisecond,
			RandomDelay: time.Duration(cfg.Lock.FailureJitterMs) * time.Millisecond,
		},
	}, logger)
	defer engine.Close()

	tracker := services.NewSessionTracker(sessionRepo, tokenRepo, bus, auditLogger, clk, services.SessionConfig{
		MaxSession:  cfg.Session.MaxDuration,
		MaxInactive: cfg.Session.MaxInactive,
		WarningLead: cfg.Session.WarningLead,
	}, logger)
	defer tracker.Close()

	observer := services.NewLifecycleObserver(engine, tracker, lockRepo, clk, logger)
	hub := services.NewActivityHub(logger, engine, tracker)
	gate := services.NewVerificationGate(engine, services.EngineChallenger{Engine: engine}, auditLogger, logger)

	// Restore persisted state. Both fail safe: the engine starts locked and a
	// session that cannot be validated is discarded.
	ctx, cancel = context.WithTimeout(context.Background(), 10*time.Second)
	if err := engine.Load(ctx); err != nil {
		logger.Error("lock state load failed, running degraded", slog.Any("error", err))
	}
	if restored, err := tracker.Restore(ctx); err != nil {
		logger.Error("session restore failed", slog.Any("error", err))
	} else {
		logger.Info("session restore finished", slog.Bool("restored", restored))
	}
	// A mark left by a process killed in the background is honoured here.
	if err := observer.HandleTransition(ctx, models.AppStateActive); err != nil {
		logger.Error("initial lifecycle check failed", slog.Any("error", err))
	}
	cancel()

	// Start inactivity monitor
	monitorCtx, monitorCancel := context.WithCancel(context.Background())
	defer monitorCancel()

	monitor := background.NewInactivityMonitor(engine, logger, cfg.Lock.PollInterval)
	go monitor.Start(monitorCtx)

	var server *http.Server
	if cfg.Bridge.Enabled {
		server, err = newBridgeServer(cfg, logger, bridgeDeps{
			engine:      engine,
			tracker:     tracker,
			tokens:      tokenRepo,
			hub:         hub,
			observer:    observer,
			gate:        gate,
			relay:       relay,
			bus:         bus,
			healthCheck: healthCheck,
		})
		if err != nil {
			logger.Error("failed to configure bridge", slog.Any("error", err))
			os.Exit(1)
		}

		go func() {
			logger.Info("starting bridge", slog.String("addr", server.Addr))
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("bridge error", slog.Any("error", err))
				os.Exit(1)
			}
		}()
	}

	// Graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutdown signal received")

	monitorCancel()
	monitor.Stop()

	if server != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("bridge shutdown error", slog.Any("error", err))
		}
	}

	logger.Info("pinguard stopped gracefully")
}

// openStore opens the configured credential store and runs its migrations.
func openStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (repositories.CredentialStore, handlers.HealthCheckFunc, func(), error) {
	switch cfg.Store.Driver {
	case "memory":
		logger.Warn("using in-memory credential store, nothing survives a restart")
		return repositories.NewMemoryStore(), nil, func() {}, nil

	case "sqlite":
		db, err := database.OpenSQLite(ctx, cfg.Store.SQLitePath, logger)
		if err != nil {
			return nil, nil, nil, err
		}
		if err := database.MigrateSQLite(ctx, db, logger); err != nil {
			db.Close()
			return nil, nil, nil, err
		}
		return repositories.NewSQLiteStore(db), db.PingContext, func() { db.Close() }, nil

	case "postgres":
		db, err := database.NewConnection(&cfg.Store.Database, logger)
		if err != nil {
			return nil, nil, nil, err
		}
		if err := db.Migrate(ctx); err != nil {
			db.Close()
			return nil, nil, nil, err
		}
		return repositories.NewPostgresStore(db), db.HealthCheck, db.Close, nil
	}
	return nil, nil, nil, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
}

type bridgeDeps struct {
	engine      *services.LockEngine
	tracker     *services.SessionTracker
	tokens      *repositories.TokenRepository
	hub         *services.ActivityHub
	observer    *services.LifecycleObserver
	gate        *services.VerificationGate
	relay       *biometric.Relay
	bus         *services.EventBus
	healthCheck handlers.HealthCheckFunc
}

// newBridgeServer builds the local HTTP bridge the UI shell talks to. When no
// token is configured a fresh one is generated and printed once for the
// parent process to read.
func newBridgeServer(cfg *config.Config, logger *slog.Logger, deps bridgeDeps) (*http.Server, error) {
	token := cfg.Bridge.Token
	if token == "" {
		generated, err := auth.GenerateBridgeToken()
		if err != nil {
			return nil, err
		}
		token = generated
		fmt.Fprintf(os.Stdout, "PINGUARD_BRIDGE_TOKEN=%s\n", token)
	}
	tokenManager, err := auth.NewBridgeTokenManager(token)
	if err != nil {
		return nil, err
	}

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middlewareCustom.SecurityHeaders(middlewareCustom.SecurityHeadersConfig{Env: cfg.Server.Env}))
	router.Use(middlewareCustom.SecureLogger(logger))
	router.Use(middleware.Recoverer)

	routes.RegisterRoutes(router, routes.Handlers{
		Lock:         handlers.NewLockHandler(deps.engine, logger),
		Session:      handlers.NewSessionHandler(deps.tracker, deps.tokens, logger),
		Activity:     handlers.NewActivityHandler(deps.hub, deps.observer, logger),
		Verification: handlers.NewVerificationHandler(deps.gate, logger),
		Biometric:    handlers.NewBiometricHandler(deps.relay, deps.engine, logger),
		Events:       handlers.NewEventsHandler(deps.bus, logger),
		Health:       handlers.NewHealthHandler(cfg.Store.Driver, deps.healthCheck, logger),
	}, tokenManager, middlewareCustom.RateLimitConfig{
		Requests: cfg.Bridge.RateLimit,
		Window:   cfg.Bridge.RateWindow,
	})

	return &http.Server{
		Addr:         cfg.Bridge.Addr,
		Handler:      router,
		ReadTimeout:  cfg.Bridge.ReadTimeout,
		WriteTimeout: cfg.Bridge.WriteTimeout,
		IdleTimeout:  cfg.Bridge.IdleTimeout,
	}, nil
}
