package app

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

	httpapi "github.com/aussiebroadwan/parking/internal/parking/http"
	"github.com/aussiebroadwan/parking/internal/parking/lock"
	"github.com/aussiebroadwan/parking/internal/parking/metrics"
	"github.com/aussiebroadwan/parking/internal/parking/mqtt"
	"github.com/aussiebroadwan/parking/internal/parking/notify"
	"github.com/aussiebroadwan/parking/internal/parking/service"
	"github.com/aussiebroadwan/parking/internal/parking/store"
	"github.com/aussiebroadwan/parking/internal/parking/store/drivers/mongo"
	"github.com/aussiebroadwan/parking/internal/parking/store/drivers/sqlite"
	"github.com/aussiebroadwan/parking/pkg/cryptox"
	"github.com/aussiebroadwan/parking/pkg/idx"
	"github.com/aussiebroadwan/parking/pkg/jwtx"
	"github.com/aussiebroadwan/parking/pkg/slogx"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
)

const (
	// BuildVersion should be set at build time via ldflags.
	BuildVersion = "v0.1.0"
)

// Application encapsulates the parking service with all its dependencies
type Application struct {
	cfg    Config
	logger *slog.Logger

	// Core dependencies
	db       store.Store
	locks    lock.Locker
	redis    *redis.Client   // nil with the memory lock driver
	broker   *mqtt.Publisher // nil without MQTT_BROKER
	registry *prometheus.Registry
	verifier *jwtx.HS256

	// Services
	effects     *service.Effects
	coordinator *service.AccessCoordinator
	admin       *service.AdminService

	// HTTP server
	server *http.Server
	router *httpapi.Router
}

// New creates a new Application instance with all dependencies initialized
func New(cfg Config) (*Application, error) {
	app := &Application{
		cfg: cfg,
		logger: slogx.New(slogx.Config{
			Service: "parking",
			Version: BuildVersion,
			Env:     cfg.Env,
			Level:   cfg.LogLevel,
			Format:  cfg.LogFormat,
		}),
	}

	pepper, err := cryptox.LoadOrCreatePepper(cfg.PepperFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load pepper: %w", err)
	}
	cryptox.SetPepper(pepper)

	app.verifier, err = jwtx.NewHS256([]byte(cfg.JWTSharedToken), 30*time.Second)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize JWT verifier: %w", err)
	}

	ctx := context.Background()
	if err := app.initDatabase(ctx); err != nil {
		return nil, err
	}
	if err := app.initLocks(ctx); err != nil {
		_ = app.db.Close()
		return nil, err
	}

	app.initServices()
	app.initHTTP()

	return app, nil
}

// Run starts the application and blocks until shutdown is requested
func (app *Application) Run() error {
	app.logger.Info("parking service starting", "port", app.cfg.Port, "version", BuildVersion)

	// Start server in a goroutine
	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- app.server.ListenAndServe()
	}()

	// Setup signal handling for graceful shutdown
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	// Block until we receive a shutdown signal or server error
	select {
	case err := <-serverErrors:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
	case sig := <-shutdown:
		app.logger.Info("shutdown signal received", "signal", sig)

		if err := app.Shutdown(); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
	}

	return nil
}

// Shutdown stops accepting requests, lets pending notifications and node
// commands finish, then closes the backends.
func (app *Application) Shutdown() error {
	app.logger.Info("shutting down parking service...")

	ctx, cancel := context.WithTimeout(context.Background(), app.cfg.ShutdownGracePeriod)
	defer cancel()

	if err := app.server.Shutdown(ctx); err != nil {
		app.logger.Error("graceful server shutdown failed", "error", err)
		if err := app.server.Close(); err != nil {
			app.logger.Error("error closing server", "error", err)
		}
	}

	drained := make(chan struct{})
	go func() {
		app.effects.Close()
		close(drained)
	}()
	select {
	case <-drained:
	case <-ctx.Done():
		app.logger.Warn("side effects still pending at shutdown")
	}

	if app.broker != nil {
		app.broker.Close()
	}
	if app.redis != nil {
		if err := app.redis.Close(); err != nil {
			app.logger.Error("error closing redis", "error", err)
		}
	}

	if err := app.db.Close(); err != nil {
		app.logger.Error("error closing database", "error", err)
		return err
	}

	app.logger.Info("parking service stopped")
	return nil
}

// initDatabase opens the configured store and applies migrations
func (app *Application) initDatabase(ctx context.Context) error {
	var (
		db  store.Store
		err error
	)
	switch app.cfg.StoreDriver {
	case "mongo":
		db, err = mongo.NewStore(ctx, app.cfg.MongoURI, app.cfg.MongoDatabase)
	default:
		host := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", app.cfg.DatabaseFile)
		db, err = sqlite.NewStore(host)
	}
	if err != nil {
		return fmt.Errorf("failed to initialize %s store: %w", app.cfg.StoreDriver, err)
	}
	app.db = db

	if err := db.ApplyMigrations(); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to apply database migrations: %w", err)
	}

	app.logger.Info("database migrations applied successfully", "driver", app.cfg.StoreDriver)
	return nil
}

// initLocks picks the in-process lock table or Redis leases shared between
// replicas.
func (app *Application) initLocks(ctx context.Context) error {
	if app.cfg.LockDriver != "redis" {
		app.locks = lock.NewKeyedMutex()
		return nil
	}

	client, err := lock.Connect(ctx, app.cfg.RedisURI)
	if err != nil {
		return fmt.Errorf("failed to connect to redis: %w", err)
	}
	app.redis = client
	app.locks = &lock.RedisLocker{
		Client: client,
		Prefix: "parking:lock:",
		TTL:    app.cfg.LockTTL,
	}
	app.logger.Info("using redis locks")
	return nil
}

// initServices wires the collaborators and the use case services
func (app *Application) initServices() {
	app.registry = prometheus.NewRegistry()
	app.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	rec := metrics.NewCollector(app.registry)

	app.effects = &service.Effects{
		Notifier: notify.New(notify.Config{
			WebhookURL:     app.cfg.DiscordWebhook,
			SMTPHost:       app.cfg.MXSMTPURL,
			SMTPPort:       app.cfg.MXSMTPPort,
			SenderAddr:     app.cfg.MXSenderAddr,
			SenderPassword: app.cfg.MXSenderPassword,
		}),
		Metrics: rec,
		Timeout: app.cfg.NotifyTimeout,
	}

	if app.cfg.MQTTBroker != "" {
		app.broker = mqtt.Connect(mqtt.Config{
			Broker:   app.cfg.MQTTBroker,
			Port:     app.cfg.MQTTPort,
			Username: app.cfg.MQTTUsername,
			Password: app.cfg.MQTTPassword,
			ClientID: idx.Prefixed("parking"),
		}, app.logger)
		app.effects.Commands = app.broker
	} else {
		app.logger.Warn("MQTT_BROKER not set, node commands will not be published")
	}

	ledger := &service.ReservationLedger{Store: app.db}
	machine := &service.NodeStateMachine{
		Store:   app.db,
		Ledger:  ledger,
		Effects: app.effects,
		Locks:   app.locks,
		Metrics: rec,
	}

	app.coordinator = &service.AccessCoordinator{
		Store:   app.db,
		Badges:  &service.BadgeAuthenticator{Store: app.db, Metrics: rec},
		Nodes:   machine,
		Effects: app.effects,
		Metrics: rec,
	}
	app.admin = &service.AdminService{
		Store:  app.db,
		Nodes:  machine,
		Ledger: ledger,
		Locks:  app.locks,
	}
}

// initHTTP initializes the HTTP router and server
func (app *Application) initHTTP() {
	router := httpapi.NewRouter(app.verifier, BuildVersion, app.db, app.logger)

	router.Coordinator = app.coordinator
	router.Admin = app.admin
	router.Gatherer = app.registry
	router.Limits = app.cfg.RateLimits
	if app.broker != nil {
		router.Broker = app.broker
	}
	router.ApplyRoutes()

	app.router = router

	app.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", app.cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 3 * time.Second,
	}
}
